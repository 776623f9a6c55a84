package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	if cfg == nil {
		t.Fatal("NewDefaultConfig returned nil")
	}

	if cfg.Remote.BaseURL != DefaultRemoteURL {
		t.Errorf("expected remote URL %q, got %q", DefaultRemoteURL, cfg.Remote.BaseURL)
	}
	if cfg.Remote.TokenEncrypted != "" {
		t.Error("expected no token by default")
	}

	if cfg.Sync.FlushInterval != 30*time.Second {
		t.Errorf("expected flush interval 30s, got %v", cfg.Sync.FlushInterval)
	}
	if cfg.Sync.BackgroundTick != time.Second {
		t.Errorf("expected background tick 1s, got %v", cfg.Sync.BackgroundTick)
	}

	if cfg.Queue.MaxAge != 24*time.Hour || cfg.Queue.MaxAttempts != 50 {
		t.Errorf("unexpected queue defaults %+v", cfg.Queue)
	}

	if cfg.Storage.Path != DefaultStoragePath {
		t.Errorf("expected storage path %q, got %q", DefaultStoragePath, cfg.Storage.Path)
	}

	if !cfg.Alarm.Bell {
		t.Error("expected the alarm bell to be on by default")
	}

	if cfg.Logging.Level != DefaultLogLevel {
		t.Errorf("expected log level %q, got %q", DefaultLogLevel, cfg.Logging.Level)
	}
	if cfg.Observability.Tracing.Enabled {
		t.Error("expected tracing to be disabled by default")
	}
}

func TestConfig_Validate_DefaultIsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid, got error: %v", err)
	}
}

func TestRemoteConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  RemoteConfig
		wantErr bool
	}{
		{
			name:    "valid https",
			config:  RemoteConfig{BaseURL: "https://study.example.com/api", Timeout: time.Second},
			wantErr: false,
		},
		{
			name:    "missing base url",
			config:  RemoteConfig{Timeout: time.Second},
			wantErr: true,
		},
		{
			name:    "non-http scheme",
			config:  RemoteConfig{BaseURL: "ftp://example.com"},
			wantErr: true,
		},
		{
			name:    "negative timeout",
			config:  RemoteConfig{BaseURL: "http://localhost", Timeout: -time.Second},
			wantErr: true,
		},
		{
			name:    "negative retries",
			config:  RemoteConfig{BaseURL: "http://localhost", MaxRetries: -1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSyncConfig_Validate(t *testing.T) {
	valid := NewDefaultConfig().Sync

	tests := []struct {
		name    string
		mutate  func(s *SyncConfig)
		wantErr bool
	}{
		{"defaults", func(s *SyncConfig) {}, false},
		{"zero flush interval", func(s *SyncConfig) { s.FlushInterval = 0 }, true},
		{"foreground tick above a second", func(s *SyncConfig) { s.ForegroundTick = 2 * time.Second }, true},
		{"zero background tick", func(s *SyncConfig) { s.BackgroundTick = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid
			tt.mutate(&s)
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestQueueConfig_Validate(t *testing.T) {
	valid := NewDefaultConfig().Queue

	tests := []struct {
		name    string
		mutate  func(q *QueueConfig)
		wantErr bool
	}{
		{"defaults", func(q *QueueConfig) {}, false},
		{"unbounded age and attempts", func(q *QueueConfig) { q.MaxAge, q.MaxAttempts = 0, 0 }, false},
		{"negative age", func(q *QueueConfig) { q.MaxAge = -time.Hour }, true},
		{"negative attempts", func(q *QueueConfig) { q.MaxAttempts = -1 }, true},
		{"zero wake interval", func(q *QueueConfig) { q.WakeInterval = 0 }, true},
		{"zero probe interval", func(q *QueueConfig) { q.ProbeInterval = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := valid
			tt.mutate(&q)
			err := q.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoggingConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  LoggingConfig
		wantErr bool
	}{
		{"valid debug level", LoggingConfig{Level: "debug", Format: "json"}, false},
		{"valid error level", LoggingConfig{Level: "error", Format: "text"}, false},
		{"invalid log level", LoggingConfig{Level: "invalid", Format: "json"}, true},
		{"invalid log format", LoggingConfig{Level: "info", Format: "invalid"}, true},
		{"empty values are valid", LoggingConfig{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTracingConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  TracingConfig
		wantErr bool
	}{
		{"disabled skips checks", TracingConfig{Enabled: false, ExporterType: "bogus"}, false},
		{"stdout", TracingConfig{Enabled: true, ExporterType: "stdout", SampleRate: 1, ServiceName: "fv"}, false},
		{"otlp without endpoint", TracingConfig{Enabled: true, ExporterType: "otlp", SampleRate: 1, ServiceName: "fv"}, true},
		{"bad sample rate", TracingConfig{Enabled: true, ExporterType: "stdout", SampleRate: 2, ServiceName: "fv"}, true},
		{"missing service name", TracingConfig{Enabled: true, ExporterType: "stdout", SampleRate: 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_MultipleErrors(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Remote.BaseURL = ""
	cfg.Queue.MaxAttempts = -1
	cfg.Storage.Path = ""
	cfg.Logging.Level = "invalid"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	for _, section := range []string{"remote:", "queue:", "storage:", "logging:"} {
		if !strings.Contains(err.Error(), section) {
			t.Errorf("expected error to mention %q, got: %v", section, err)
		}
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	tests := []struct {
		in   string
		want string
	}{
		{"~/.focusvault/focusvault.db", filepath.Join(home, ".focusvault", "focusvault.db")},
		{"~", home},
		{"/var/lib/fv.db", "/var/lib/fv.db"},
		{"relative/fv.db", "relative/fv.db"},
		{"~other/fv.db", "~other/fv.db"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ExpandPath(tt.in)
			if err != nil {
				t.Fatalf("ExpandPath() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ExpandPath(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestLoader_LoadMissingReturnsDefaults(t *testing.T) {
	loader, err := NewLoader(t.TempDir())
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	cfg, err := loader.Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Remote.BaseURL != DefaultRemoteURL {
		t.Errorf("expected defaults, got %+v", cfg.Remote)
	}
}

func TestLoader_LoadMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	loader, _ := NewLoader(dir)

	yaml := `
remote:
  base_url: https://study.example.com/api
sync:
  flush_interval: 45s
queue:
  max_attempts: 5
`
	if err := os.WriteFile(loader.DefaultConfigPath(), []byte(yaml), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := loader.Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Remote.BaseURL != "https://study.example.com/api" {
		t.Errorf("base_url = %q", cfg.Remote.BaseURL)
	}
	if cfg.Sync.FlushInterval != 45*time.Second {
		t.Errorf("flush_interval = %v, want 45s", cfg.Sync.FlushInterval)
	}
	if cfg.Queue.MaxAttempts != 5 {
		t.Errorf("max_attempts = %d, want 5", cfg.Queue.MaxAttempts)
	}
	if cfg.Queue.MaxAge != DefaultQueueMaxAge {
		t.Errorf("omitted max_age = %v, want default", cfg.Queue.MaxAge)
	}
}

func TestLoader_LoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	loader, _ := NewLoader(dir)
	if err := os.WriteFile(loader.DefaultConfigPath(), []byte("remote: [unclosed"), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := loader.Load(""); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoader_LoadFromFileMissing(t *testing.T) {
	loader, _ := NewLoader(t.TempDir())
	if _, err := loader.LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestLoader_SaveRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	loader, _ := NewLoader(dir)

	cfg := NewDefaultConfig()
	cfg.Remote.TokenEncrypted = "c2VjcmV0"
	cfg.Alarm.Bell = false

	if err := loader.Save(cfg, ""); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(loader.DefaultConfigPath())
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("config file mode = %v, want 0600", info.Mode().Perm())
	}

	loaded, err := loader.LoadFromFile(loader.DefaultConfigPath())
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if loaded.Remote.TokenEncrypted != "c2VjcmV0" || loaded.Alarm.Bell {
		t.Errorf("round trip lost values: %+v %+v", loaded.Remote, loaded.Alarm)
	}
	if loaded.Sync.FlushInterval != DefaultFlushInterval {
		t.Errorf("flush_interval = %v after round trip", loaded.Sync.FlushInterval)
	}
}
