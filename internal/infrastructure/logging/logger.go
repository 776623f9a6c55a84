// Package logging provides structured logging infrastructure for the focusvault application.
// It wraps Go's standard log/slog package with context-aware logging, correlation IDs,
// and session sync log attributes.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// contextKey is used for storing logger-related values in context.
type contextKey string

const (
	// CorrelationIDKey is the context key for correlation IDs.
	CorrelationIDKey contextKey = "correlation_id"
	// SessionIDKey is the context key for study session IDs.
	SessionIDKey contextKey = "session_id"
	// WriteIDKey is the context key for queued write IDs.
	WriteIDKey contextKey = "write_id"
)

// Level represents log levels.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Format represents log output formats.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Config holds logging configuration.
type Config struct {
	Level      Level
	Format     Format
	Output     io.Writer
	AddSource  bool
	TimeFormat string
}

// DefaultConfig returns sensible default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:      LevelInfo,
		Format:     FormatText,
		Output:     os.Stderr,
		AddSource:  false,
		TimeFormat: time.RFC3339,
	}
}

// Logger wraps slog.Logger with additional functionality for focusvault.
type Logger struct {
	slogger *slog.Logger
}

// global is the package-level default logger.
var (
	global     *Logger
	globalOnce sync.Once
)

// Default returns the global logger, initializing it with defaults if necessary.
func Default() *Logger {
	globalOnce.Do(func() {
		global = New(DefaultConfig())
	})
	return global
}

// New creates a new Logger with the provided configuration.
func New(cfg Config) *Logger {
	level := parseLevel(cfg.Level)

	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Customize time format
			if a.Key == slog.TimeKey && cfg.TimeFormat != "" {
				if t, ok := a.Value.Any().(time.Time); ok {
					return slog.String(slog.TimeKey, t.Format(cfg.TimeFormat))
				}
			}
			return a
		},
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	switch cfg.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return &Logger{slogger: slog.New(handler)}
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return New(Config{Level: LevelError, Output: io.Discard})
}

// parseLevel converts a Level to slog.Level.
func parseLevel(l Level) slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a new Logger with the given attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slogger: l.slogger.With(args...)}
}

// WithGroup returns a new Logger with the given group name.
func (l *Logger) WithGroup(name string) *Logger {
	return &Logger{slogger: l.slogger.WithGroup(name)}
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, args ...any) {
	l.slogger.Debug(msg, args...)
}

// Info logs at info level.
func (l *Logger) Info(msg string, args ...any) {
	l.slogger.Info(msg, args...)
}

// Warn logs at warn level.
func (l *Logger) Warn(msg string, args ...any) {
	l.slogger.Warn(msg, args...)
}

// Error logs at error level.
func (l *Logger) Error(msg string, args ...any) {
	l.slogger.Error(msg, args...)
}

// DebugContext logs at debug level with context.
func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.slogger.DebugContext(ctx, msg, l.enrichArgs(ctx, args)...)
}

// InfoContext logs at info level with context.
func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.slogger.InfoContext(ctx, msg, l.enrichArgs(ctx, args)...)
}

// WarnContext logs at warn level with context.
func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.slogger.WarnContext(ctx, msg, l.enrichArgs(ctx, args)...)
}

// ErrorContext logs at error level with context.
func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.slogger.ErrorContext(ctx, msg, l.enrichArgs(ctx, args)...)
}

// enrichArgs extracts context values and adds them as log attributes.
func (l *Logger) enrichArgs(ctx context.Context, args []any) []any {
	enriched := make([]any, 0, len(args)+6)

	if v := ctx.Value(CorrelationIDKey); v != nil {
		enriched = append(enriched, "correlation_id", v)
	}
	if v := ctx.Value(SessionIDKey); v != nil {
		enriched = append(enriched, "session_id", v)
	}
	if v := ctx.Value(WriteIDKey); v != nil {
		enriched = append(enriched, "write_id", v)
	}

	enriched = append(enriched, args...)
	return enriched
}

// --- Context helpers ---

// WithCorrelationID adds a correlation ID to the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, id)
}

// WithSessionID adds a study session ID to the context.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, SessionIDKey, id)
}

// WithWriteID adds a queued write ID to the context.
func WithWriteID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, WriteIDKey, id)
}

// CorrelationID extracts the correlation ID from context.
func CorrelationID(ctx context.Context) string {
	if v := ctx.Value(CorrelationIDKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// --- Domain-specific logging helpers ---

// LogFlush logs a checkpoint write to the remote service.
func LogFlush(ctx context.Context, logger *Logger, reason string, elapsed int, queued bool) {
	logger.DebugContext(ctx, "checkpoint flushed",
		"reason", reason,
		"elapsed_seconds", elapsed,
		"queued", queued,
	)
}

// LogWriteQueued logs a write that was durably queued for replay.
func LogWriteQueued(ctx context.Context, logger *Logger, method, path string, cause error) {
	logger.InfoContext(ctx, "write queued for replay",
		"method", method,
		"path", path,
		"cause", errString(cause),
	)
}

// LogReplayResult logs the outcome of a queue drain.
func LogReplayResult(ctx context.Context, logger *Logger, replayed, rejected, expired, remaining int, duration time.Duration) {
	logger.InfoContext(ctx, "queue drained",
		"replayed", replayed,
		"rejected", rejected,
		"expired", expired,
		"remaining", remaining,
		"duration_ms", duration.Milliseconds(),
	)
}

// LogWriteDropped logs a queued write removed without being delivered.
func LogWriteDropped(ctx context.Context, logger *Logger, method, path, reason string, err error) {
	logger.WarnContext(ctx, "queued write dropped",
		"method", method,
		"path", path,
		"reason", reason,
		"error", errString(err),
	)
}

// LogAlarmFired logs an alarm crossing.
func LogAlarmFired(ctx context.Context, logger *Logger, elapsed, target int, audible bool) {
	logger.InfoContext(ctx, "target reached",
		"elapsed_seconds", elapsed,
		"target_seconds", target,
		"audible", audible,
	)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
