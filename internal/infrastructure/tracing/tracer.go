// Package tracing provides OpenTelemetry-based distributed tracing infrastructure.
// It supports multiple exporters (stdout, OTLP) and provides span helpers for
// remote writes, queue drains, and checkpoint flushes.
package tracing

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	// TracerName is the name used for the focusvault tracer.
	TracerName = "github.com/jbctechsolutions/focusvault"

	// Version is the semantic version of the tracer.
	Version = "0.4.0"
)

// ExporterType defines the type of trace exporter.
type ExporterType string

const (
	ExporterNone   ExporterType = "none"
	ExporterStdout ExporterType = "stdout"
	ExporterOTLP   ExporterType = "otlp"
)

// Config holds tracing configuration.
type Config struct {
	Enabled      bool         // Whether tracing is enabled
	ExporterType ExporterType // Type of exporter to use
	OTLPEndpoint string       // OTLP collector endpoint (for OTLP exporter)
	ServiceName  string       // Service name for traces
	Environment  string       // Deployment environment (development, production)
	SampleRate   float64      // Sampling rate (0.0 to 1.0)
	Output       io.Writer    // Output for stdout exporter (defaults to os.Stdout)
}

// DefaultConfig returns sensible default tracing configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:      false,
		ExporterType: ExporterNone,
		ServiceName:  "focusvault",
		Environment:  "development",
		SampleRate:   1.0,
	}
}

// Tracer wraps an OpenTelemetry tracer with domain-specific functionality.
type Tracer struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	config   Config
}

// Default returns a tracer backed by the global otel provider, which is a
// no-op unless one has been registered.
func Default() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(TracerName),
		config: DefaultConfig(),
	}
}

// New creates a new Tracer with the provided configuration.
func New(ctx context.Context, cfg Config) (*Tracer, error) {
	if !cfg.Enabled || cfg.ExporterType == ExporterNone {
		return &Tracer{
			tracer: noop.NewTracerProvider().Tracer(TracerName),
			config: cfg,
		}, nil
	}

	// Create exporter
	exporter, err := createExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	// Create resource without merging with Default() to avoid schema URL conflicts.
	// The default resource's schema URL may conflict with our semconv version.
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(Version),
			attribute.String("deployment.environment", cfg.Environment),
		),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	// Create sampler
	var sampler sdktrace.Sampler
	if cfg.SampleRate >= 1.0 {
		sampler = sdktrace.AlwaysSample()
	} else if cfg.SampleRate <= 0.0 {
		sampler = sdktrace.NeverSample()
	} else {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	// Create tracer provider
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	// Set global propagator
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	// Set global tracer provider
	otel.SetTracerProvider(provider)

	return &Tracer{
		tracer:   provider.Tracer(TracerName, trace.WithInstrumentationVersion(Version)),
		provider: provider,
		config:   cfg,
	}, nil
}

// createExporter creates the appropriate exporter based on configuration.
func createExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.ExporterType {
	case ExporterStdout:
		opts := []stdouttrace.Option{
			stdouttrace.WithPrettyPrint(),
		}
		if cfg.Output != nil {
			opts = append(opts, stdouttrace.WithWriter(cfg.Output))
		}
		return stdouttrace.New(opts...)

	case ExporterOTLP:
		opts := []otlptracehttp.Option{
			otlptracehttp.WithInsecure(),
		}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.OTLPEndpoint))
		}
		return otlptracehttp.New(ctx, opts...)

	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", cfg.ExporterType)
	}
}

// Shutdown gracefully shuts down the tracer provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider != nil {
		return t.provider.Shutdown(ctx)
	}
	return nil
}

// Start starts a new span with the given name.
func (t *Tracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// SpanFromContext returns the current span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// --- Domain-specific span helpers ---

// WriteSpan represents a single remote write.
type WriteSpan struct {
	span trace.Span
}

// StartWriteSpan starts a span for a remote write.
func (t *Tracer) StartWriteSpan(ctx context.Context, method, path string) (context.Context, *WriteSpan) {
	ctx, span := t.tracer.Start(ctx, "remote.write",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("write.path", path),
		),
	)
	return ctx, &WriteSpan{span: span}
}

// SetQueued marks the write as queued for replay instead of delivered.
func (ws *WriteSpan) SetQueued(queued bool) {
	ws.span.SetAttributes(attribute.Bool("write.queued", queued))
}

// SetBacklog records how many writes were queued ahead of this one.
func (ws *WriteSpan) SetBacklog(n int) {
	ws.span.SetAttributes(attribute.Int("write.backlog", n))
}

// End ends the write span with success status.
func (ws *WriteSpan) End() {
	ws.span.SetStatus(codes.Ok, "write completed")
	ws.span.End()
}

// EndWithError ends the write span with error status.
func (ws *WriteSpan) EndWithError(err error) {
	ws.span.RecordError(err)
	ws.span.SetStatus(codes.Error, err.Error())
	ws.span.End()
}

// DrainSpan represents one replay run over the offline queue.
type DrainSpan struct {
	span trace.Span
}

// StartDrainSpan starts a span for a queue drain.
func (t *Tracer) StartDrainSpan(ctx context.Context, trigger string) (context.Context, *DrainSpan) {
	ctx, span := t.tracer.Start(ctx, "outbox.drain",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("drain.trigger", trigger)),
	)
	return ctx, &DrainSpan{span: span}
}

// SetCounts records the drain outcome.
func (ds *DrainSpan) SetCounts(replayed, rejected, expired, remaining int) {
	ds.span.SetAttributes(
		attribute.Int("drain.replayed", replayed),
		attribute.Int("drain.rejected", rejected),
		attribute.Int("drain.expired", expired),
		attribute.Int("drain.remaining", remaining),
	)
}

// End ends the drain span with success status.
func (ds *DrainSpan) End() {
	ds.span.SetStatus(codes.Ok, "drain completed")
	ds.span.End()
}

// EndWithError ends the drain span with error status.
func (ds *DrainSpan) EndWithError(err error) {
	ds.span.RecordError(err)
	ds.span.SetStatus(codes.Error, err.Error())
	ds.span.End()
}

// FlushSpan represents a checkpoint flush.
type FlushSpan struct {
	span trace.Span
}

// StartFlushSpan starts a span for a checkpoint flush.
func (t *Tracer) StartFlushSpan(ctx context.Context, sessionID, reason string) (context.Context, *FlushSpan) {
	ctx, span := t.tracer.Start(ctx, "session.flush",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("flush.reason", reason),
		),
	)
	return ctx, &FlushSpan{span: span}
}

// SetElapsed records the elapsed seconds that were written.
func (fs *FlushSpan) SetElapsed(elapsed int) {
	fs.span.SetAttributes(attribute.Int("session.elapsed_seconds", elapsed))
}

// SetQueued marks the flush as queued.
func (fs *FlushSpan) SetQueued(queued bool) {
	fs.span.SetAttributes(attribute.Bool("flush.queued", queued))
}

// End ends the flush span with success status.
func (fs *FlushSpan) End() {
	fs.span.SetStatus(codes.Ok, "flush completed")
	fs.span.End()
}

// EndWithError ends the flush span with error status.
func (fs *FlushSpan) EndWithError(err error) {
	fs.span.RecordError(err)
	fs.span.SetStatus(codes.Error, err.Error())
	fs.span.End()
}

// AddEvent adds an event to the current span.
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// RecordError records an error on the current span.
func RecordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
}

// SetAttribute sets an attribute on the current span.
func SetAttribute(ctx context.Context, key string, value any) {
	span := trace.SpanFromContext(ctx)
	switch v := value.(type) {
	case string:
		span.SetAttributes(attribute.String(key, v))
	case int:
		span.SetAttributes(attribute.Int(key, v))
	case int64:
		span.SetAttributes(attribute.Int64(key, v))
	case float64:
		span.SetAttributes(attribute.Float64(key, v))
	case bool:
		span.SetAttributes(attribute.Bool(key, v))
	}
}
