package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: test-inplay
snapshot:
  url: https://feed.example.com/inplay
  timeout: 5s
stream:
  url: wss://stream.example.com/ws
  reconnect_max_delay: 20s
`
	path := writeTempFile(t, "config.yaml", yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-inplay" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-inplay")
	}
	if cfg.Snapshot.URL != "https://feed.example.com/inplay" {
		t.Errorf("Snapshot.URL = %q, want %q", cfg.Snapshot.URL, "https://feed.example.com/inplay")
	}
	if cfg.Snapshot.Timeout != 5*time.Second {
		t.Errorf("Snapshot.Timeout = %v, want %v", cfg.Snapshot.Timeout, 5*time.Second)
	}
	if cfg.Stream.ReconnectMaxDelay != 20*time.Second {
		t.Errorf("Stream.ReconnectMaxDelay = %v, want %v", cfg.Stream.ReconnectMaxDelay, 20*time.Second)
	}
}

func TestParseEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "secret123")

	cfg, err := Parse([]byte(`
database:
  timescale:
    host: localhost
    password: ${TEST_DB_PASSWORD}
`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Database.Timescale.Password != "secret123" {
		t.Errorf("Database.Timescale.Password = %q, want %q", cfg.Database.Timescale.Password, "secret123")
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("stream:\n  reconect_jitter: 2s\n"))
	if err == nil || !strings.Contains(err.Error(), "reconect_jitter") {
		t.Errorf("Parse() error = %v, want unknown field error", err)
	}
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil) failed: %v", err)
	}
	if cfg.Markets.ChangeWindow != 600*time.Millisecond {
		t.Errorf("Markets.ChangeWindow = %v, want default", cfg.Markets.ChangeWindow)
	}
}

func TestLoadEnvFiles(t *testing.T) {
	envPath := writeTempFile(t, ".env", "INPLAY_TEST_SNAPSHOT_URL=https://env.example.com/snap\n")
	t.Setenv("INPLAY_TEST_SNAPSHOT_URL", "")
	os.Unsetenv("INPLAY_TEST_SNAPSHOT_URL")

	path := writeTempFile(t, "config.yaml", "instance:\n  id: x\nsnapshot:\n  url: ${INPLAY_TEST_SNAPSHOT_URL}\n")
	cfg, err := Load(path, filepath.Join(t.TempDir(), "missing.env"), envPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Snapshot.URL != "https://env.example.com/snap" {
		t.Errorf("Snapshot.URL = %q, want %q", cfg.Snapshot.URL, "https://env.example.com/snap")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "read config file") {
		t.Errorf("Load() error = %v, want read config file error", err)
	}
}

func TestLoadValidates(t *testing.T) {
	path := writeTempFile(t, "config.yaml", "snapshot:\n  url: https://feed.example.com/inplay\n")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "instance.id is required") {
		t.Errorf("Load() error = %v, want validation error", err)
	}
}

func TestParseDefaults(t *testing.T) {
	yaml := `
instance:
  id: test-inplay
snapshot:
  url: https://feed.example.com/inplay
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Snapshot.ApplicationType != DefaultApplicationType {
		t.Errorf("Snapshot.ApplicationType = %q, want default %q", cfg.Snapshot.ApplicationType, DefaultApplicationType)
	}
	if cfg.Snapshot.RetryMaxDelay != 30*time.Second {
		t.Errorf("Snapshot.RetryMaxDelay = %v, want %v", cfg.Snapshot.RetryMaxDelay, 30*time.Second)
	}
	if cfg.Stream.ReconnectBaseDelay != time.Second {
		t.Errorf("Stream.ReconnectBaseDelay = %v, want %v", cfg.Stream.ReconnectBaseDelay, time.Second)
	}
	if cfg.Stream.ReconnectJitter != time.Second {
		t.Errorf("Stream.ReconnectJitter = %v, want %v", cfg.Stream.ReconnectJitter, time.Second)
	}
	if cfg.Markets.ChangeWindow != 600*time.Millisecond {
		t.Errorf("Markets.ChangeWindow = %v, want %v", cfg.Markets.ChangeWindow, 600*time.Millisecond)
	}
	if cfg.Database.Timescale.Port != DefaultDBPort {
		t.Errorf("Database.Timescale.Port = %d, want default %d", cfg.Database.Timescale.Port, DefaultDBPort)
	}
	if cfg.Logging.Level != DefaultLogLevel {
		t.Errorf("Logging.Level = %q, want default %q", cfg.Logging.Level, DefaultLogLevel)
	}
	if cfg.Metrics.Port != DefaultMetricsPort {
		t.Errorf("Metrics.Port = %d, want default %d", cfg.Metrics.Port, DefaultMetricsPort)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on defaulted config: %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		c := Config{
			Instance: InstanceConfig{ID: "test"},
			Snapshot: SnapshotConfig{URL: "https://feed.example.com/inplay"},
		}
		c.applyDefaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "missing instance id",
			mutate:  func(c *Config) { c.Instance.ID = "" },
			wantErr: "instance.id is required",
		},
		{
			name:    "missing snapshot url",
			mutate:  func(c *Config) { c.Snapshot.URL = "" },
			wantErr: "snapshot.url is required",
		},
		{
			name:    "snapshot url wrong scheme",
			mutate:  func(c *Config) { c.Snapshot.URL = "ftp://x" },
			wantErr: `snapshot.url must be an http(s) URL, got "ftp://x"`,
		},
		{
			name:    "stream url wrong scheme",
			mutate:  func(c *Config) { c.Stream.URL = "http://x" },
			wantErr: `stream.url must be a ws(s) URL, got "http://x"`,
		},
		{
			name:    "reconnect max below base",
			mutate:  func(c *Config) { c.Stream.ReconnectMaxDelay = 100 * time.Millisecond },
			wantErr: "stream.reconnect_max_delay cannot be less than reconnect_base_delay",
		},
		{
			name: "ping timeout not above interval",
			mutate: func(c *Config) {
				c.Stream.PingInterval = 10 * time.Second
				c.Stream.PingTimeout = 10 * time.Second
			},
			wantErr: "stream.ping_timeout (10s) must exceed ping_interval (10s)",
		},
		{
			name: "history enabled without database",
			mutate: func(c *Config) {
				c.History.Enabled = true
			},
			wantErr: "database.timescale.host is required",
		},
		{
			name: "min_conns exceeds max_conns",
			mutate: func(c *Config) {
				c.History.Enabled = true
				c.Database.Timescale = DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 5, MinConns: 10}
			},
			wantErr: "database.timescale.min_conns (10) cannot exceed max_conns (5)",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "trace" },
			wantErr: `logging.level must be one of debug, info, warn, error, got "trace"`,
		},
		{
			name:    "bad metrics port",
			mutate:  func(c *Config) { c.Metrics.Port = 70000 },
			wantErr: "metrics.port must be between 1 and 65535, got 70000",
		},
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
		{
			name: "valid config with history",
			mutate: func(c *Config) {
				c.History.Enabled = true
				c.Database.Timescale = DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 10, MinConns: 2}
			},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
