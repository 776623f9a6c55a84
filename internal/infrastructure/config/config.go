// Package config provides configuration structs and utilities for the focusvault application.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config represents the root configuration for the focusvault application.
type Config struct {
	Remote        RemoteConfig        `yaml:"remote"`
	Sync          SyncConfig          `yaml:"sync"`
	Queue         QueueConfig         `yaml:"queue"`
	Storage       StorageConfig       `yaml:"storage"`
	Alarm         AlarmConfig         `yaml:"alarm"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// RemoteConfig holds the session service endpoint and credentials.
type RemoteConfig struct {
	BaseURL        string        `yaml:"base_url"`
	TokenEncrypted string        `yaml:"token_encrypted,omitempty"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"` // retries for reads only
}

// SyncConfig holds the clock and flush cadence.
type SyncConfig struct {
	FlushInterval  time.Duration `yaml:"flush_interval"`  // debounced flush window
	ForegroundTick time.Duration `yaml:"foreground_tick"` // tick while the console is shown
	BackgroundTick time.Duration `yaml:"background_tick"` // tick while hidden
	TriggerFile    string        `yaml:"trigger_file"`    // touching it forces a replay
}

// QueueConfig holds the offline write queue limits.
type QueueConfig struct {
	MaxAge        time.Duration `yaml:"max_age"`
	MaxAttempts   int           `yaml:"max_attempts"`
	WakeInterval  time.Duration `yaml:"wake_interval"`
	ProbeInterval time.Duration `yaml:"probe_interval"`
}

// StorageConfig holds the local database location.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// AlarmConfig holds alarm notification settings.
type AlarmConfig struct {
	Bell    bool `yaml:"bell"`    // ring the terminal bell when the target is reached
	Desktop bool `yaml:"desktop"` // also raise a desktop notification
}

// LoggingConfig holds configuration for application logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ObservabilityConfig holds configuration for observability features.
type ObservabilityConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
}

// TracingConfig holds configuration for distributed tracing.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`       // Whether tracing is enabled
	ExporterType string  `yaml:"exporter_type"` // none, stdout, otlp
	OTLPEndpoint string  `yaml:"otlp_endpoint"` // OTLP collector endpoint
	SampleRate   float64 `yaml:"sample_rate"`   // Sampling rate (0.0 to 1.0)
	ServiceName  string  `yaml:"service_name"`  // Service name for traces
}

// Default configuration values.
const (
	DefaultRemoteURL        = "http://localhost:5000/api/study"
	DefaultRemoteTimeout    = 10 * time.Second
	DefaultRemoteMaxRetries = 2
	DefaultLogLevel         = "warn"
	DefaultLogFormat        = "text"

	// Sync defaults
	DefaultFlushInterval  = 30 * time.Second
	DefaultForegroundTick = 100 * time.Millisecond
	DefaultBackgroundTick = time.Second
	DefaultTriggerFile    = "~/.focusvault/sync.trigger"

	// Queue defaults
	DefaultQueueMaxAge        = 24 * time.Hour
	DefaultQueueMaxAttempts   = 50
	DefaultQueueWakeInterval  = time.Minute
	DefaultQueueProbeInterval = 15 * time.Second

	DefaultStoragePath = "~/.focusvault/focusvault.db"
	DefaultAlarmBell   = true

	// Observability defaults
	DefaultTracingEnabled      = false
	DefaultTracingExporterType = "none"
	DefaultTracingSampleRate   = 1.0
	DefaultTracingServiceName  = "focusvault"
)

// Valid log levels.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Valid log formats.
var validLogFormats = map[string]bool{
	"json": true,
	"text": true,
}

// Valid tracing exporter types.
var validTracingExporterTypes = map[string]bool{
	"none":   true,
	"stdout": true,
	"otlp":   true,
}

// NewDefaultConfig creates a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		Remote: RemoteConfig{
			BaseURL:    DefaultRemoteURL,
			Timeout:    DefaultRemoteTimeout,
			MaxRetries: DefaultRemoteMaxRetries,
		},
		Sync: SyncConfig{
			FlushInterval:  DefaultFlushInterval,
			ForegroundTick: DefaultForegroundTick,
			BackgroundTick: DefaultBackgroundTick,
			TriggerFile:    DefaultTriggerFile,
		},
		Queue: QueueConfig{
			MaxAge:        DefaultQueueMaxAge,
			MaxAttempts:   DefaultQueueMaxAttempts,
			WakeInterval:  DefaultQueueWakeInterval,
			ProbeInterval: DefaultQueueProbeInterval,
		},
		Storage: StorageConfig{
			Path: DefaultStoragePath,
		},
		Alarm: AlarmConfig{
			Bell: DefaultAlarmBell,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Observability: ObservabilityConfig{
			Tracing: TracingConfig{
				Enabled:      DefaultTracingEnabled,
				ExporterType: DefaultTracingExporterType,
				SampleRate:   DefaultTracingSampleRate,
				ServiceName:  DefaultTracingServiceName,
			},
		},
	}
}

// Validate checks if the configuration is valid and returns an error if not.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Remote.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("remote: %w", err))
	}

	if err := c.Sync.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("sync: %w", err))
	}

	if err := c.Queue.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("queue: %w", err))
	}

	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("storage: %w", err))
	}

	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}

	if err := c.Observability.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("observability: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Validate checks if the RemoteConfig is valid.
func (r *RemoteConfig) Validate() error {
	var errs []error

	if r.BaseURL == "" {
		errs = append(errs, errors.New("base_url is required"))
	} else {
		parsedURL, err := url.Parse(r.BaseURL)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid base_url: %w", err))
		} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			errs = append(errs, errors.New("base_url must use http or https scheme"))
		}
	}

	if r.Timeout < 0 {
		errs = append(errs, errors.New("timeout must be non-negative"))
	}

	if r.MaxRetries < 0 {
		errs = append(errs, errors.New("max_retries must be non-negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Validate checks if the SyncConfig is valid.
func (s *SyncConfig) Validate() error {
	var errs []error

	if s.FlushInterval <= 0 {
		errs = append(errs, errors.New("flush_interval must be positive"))
	}
	if s.ForegroundTick <= 0 || s.ForegroundTick > time.Second {
		errs = append(errs, errors.New("foreground_tick must be between 0 and 1s"))
	}
	if s.BackgroundTick <= 0 {
		errs = append(errs, errors.New("background_tick must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Validate checks if the QueueConfig is valid. Zero MaxAge or MaxAttempts
// disables that bound.
func (q *QueueConfig) Validate() error {
	var errs []error

	if q.MaxAge < 0 {
		errs = append(errs, errors.New("max_age must be non-negative"))
	}
	if q.MaxAttempts < 0 {
		errs = append(errs, errors.New("max_attempts must be non-negative"))
	}
	if q.WakeInterval <= 0 {
		errs = append(errs, errors.New("wake_interval must be positive"))
	}
	if q.ProbeInterval <= 0 {
		errs = append(errs, errors.New("probe_interval must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Validate checks if the StorageConfig is valid.
func (s *StorageConfig) Validate() error {
	if s.Path == "" {
		return errors.New("path is required")
	}
	return nil
}

// Validate checks if the LoggingConfig is valid.
func (l *LoggingConfig) Validate() error {
	var errs []error

	if l.Level != "" && !validLogLevels[l.Level] {
		errs = append(errs, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", l.Level))
	}

	if l.Format != "" && !validLogFormats[l.Format] {
		errs = append(errs, fmt.Errorf("invalid log format %q: must be one of json, text", l.Format))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Validate checks if the ObservabilityConfig is valid.
func (o *ObservabilityConfig) Validate() error {
	if err := o.Tracing.Validate(); err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	return nil
}

// Validate checks if the TracingConfig is valid.
func (t *TracingConfig) Validate() error {
	var errs []error

	if t.Enabled {
		if t.ExporterType != "" && !validTracingExporterTypes[t.ExporterType] {
			errs = append(errs, fmt.Errorf("invalid exporter_type %q: must be one of none, stdout, otlp", t.ExporterType))
		}
		if t.ExporterType == "otlp" && t.OTLPEndpoint == "" {
			errs = append(errs, errors.New("otlp_endpoint is required when exporter_type is 'otlp'"))
		}
		if t.SampleRate < 0 || t.SampleRate > 1 {
			errs = append(errs, errors.New("sample_rate must be between 0.0 and 1.0"))
		}
		if t.ServiceName == "" {
			errs = append(errs, errors.New("service_name is required when tracing is enabled"))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// ExpandPath replaces a leading ~ with the user's home directory.
func ExpandPath(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, strings.TrimPrefix(p, "~")), nil
}
