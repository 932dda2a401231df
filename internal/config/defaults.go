package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultSnapshotTimeout    = 15 * time.Second
	DefaultApplicationType    = "WEB"
	DefaultRetryBaseDelay     = 1 * time.Second
	DefaultRetryMaxDelay      = 30 * time.Second
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 30 * time.Second
	DefaultReconnectJitter    = 1 * time.Second
	DefaultDialTimeout        = 10 * time.Second
	DefaultPingInterval       = 15 * time.Second
	DefaultPingTimeout        = 45 * time.Second
	DefaultStreamBufferSize   = 1000
	DefaultChangeWindow       = 600 * time.Millisecond
	DefaultNotifyBuffer       = 64
	DefaultBatchSize          = 500
	DefaultFlushInterval      = 1 * time.Second
	DefaultBufferSize         = 10000
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 10
	DefaultMinConns           = 2
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
	DefaultLogMaxSizeMB       = 100
	DefaultLogMaxBackups      = 5
	DefaultLogMaxAgeDays      = 28
	DefaultMetricsPort        = 9090
	DefaultMetricsPath        = "/metrics"
)

func (c *Config) applyDefaults() {
	// Snapshot defaults
	if c.Snapshot.Timeout == 0 {
		c.Snapshot.Timeout = DefaultSnapshotTimeout
	}
	if c.Snapshot.ApplicationType == "" {
		c.Snapshot.ApplicationType = DefaultApplicationType
	}
	if c.Snapshot.RetryBaseDelay == 0 {
		c.Snapshot.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if c.Snapshot.RetryMaxDelay == 0 {
		c.Snapshot.RetryMaxDelay = DefaultRetryMaxDelay
	}

	// Stream defaults
	if c.Stream.ReconnectBaseDelay == 0 {
		c.Stream.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Stream.ReconnectMaxDelay == 0 {
		c.Stream.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Stream.ReconnectJitter == 0 {
		c.Stream.ReconnectJitter = DefaultReconnectJitter
	}
	if c.Stream.DialTimeout == 0 {
		c.Stream.DialTimeout = DefaultDialTimeout
	}
	if c.Stream.PingInterval == 0 {
		c.Stream.PingInterval = DefaultPingInterval
	}
	if c.Stream.PingTimeout == 0 {
		c.Stream.PingTimeout = DefaultPingTimeout
	}
	if c.Stream.BufferSize == 0 {
		c.Stream.BufferSize = DefaultStreamBufferSize
	}

	// Markets defaults
	if c.Markets.ChangeWindow == 0 {
		c.Markets.ChangeWindow = DefaultChangeWindow
	}
	if c.Markets.NotifyBuffer == 0 {
		c.Markets.NotifyBuffer = DefaultNotifyBuffer
	}

	// History defaults
	if c.History.BatchSize == 0 {
		c.History.BatchSize = DefaultBatchSize
	}
	if c.History.FlushInterval == 0 {
		c.History.FlushInterval = DefaultFlushInterval
	}
	if c.History.BufferSize == 0 {
		c.History.BufferSize = DefaultBufferSize
	}

	// Database defaults
	applyDBDefaults(&c.Database.Timescale)

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = DefaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = DefaultLogMaxBackups
	}
	if c.Logging.MaxAgeDays == 0 {
		c.Logging.MaxAgeDays = DefaultLogMaxAgeDays
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
