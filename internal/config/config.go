package config

import "time"

// Config is the root configuration for an in-play odds instance.
type Config struct {
	Instance InstanceConfig `yaml:"instance"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Stream   StreamConfig   `yaml:"stream"`
	Markets  MarketsConfig  `yaml:"markets"`
	History  HistoryConfig  `yaml:"history"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// InstanceConfig identifies this instance.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// SnapshotConfig holds settings for the initial in-play snapshot fetch.
type SnapshotConfig struct {
	URL             string        `yaml:"url"`
	Timeout         time.Duration `yaml:"timeout"`
	ApplicationType string        `yaml:"application_type"` // Tag sent with every subscription
	RetryBaseDelay  time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay   time.Duration `yaml:"retry_max_delay"`
}

// StreamConfig holds WebSocket connection manager settings.
type StreamConfig struct {
	URL                string        `yaml:"url"` // Overrides the endpoint advertised by the snapshot
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	ReconnectJitter    time.Duration `yaml:"reconnect_jitter"`
	DialTimeout        time.Duration `yaml:"dial_timeout"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	PingTimeout        time.Duration `yaml:"ping_timeout"`
	BufferSize         int           `yaml:"buffer_size"`
}

// MarketsConfig holds state reconciler settings.
type MarketsConfig struct {
	ChangeWindow time.Duration `yaml:"change_window"` // How long a change marker stays visible
	NotifyBuffer int           `yaml:"notify_buffer"` // Per-subscriber notification queue
}

// HistoryConfig holds the optional odds-history writer settings.
type HistoryConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// DatabaseConfig holds the TimescaleDB connection used by the history writer.
type DatabaseConfig struct {
	Timescale DBConfig `yaml:"timescale"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // text, json
	File       string `yaml:"file"`   // Empty logs to stdout
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// MetricsConfig holds the health and Prometheus HTTP server settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}
