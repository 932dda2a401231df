package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Snapshot.URL == "" {
		return errors.New("snapshot.url is required")
	}
	if u, err := url.Parse(c.Snapshot.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("snapshot.url must be an http(s) URL, got %q", c.Snapshot.URL)
	}
	if c.Snapshot.RetryBaseDelay <= 0 {
		return errors.New("snapshot.retry_base_delay must be > 0")
	}
	if c.Snapshot.RetryMaxDelay < c.Snapshot.RetryBaseDelay {
		return errors.New("snapshot.retry_max_delay cannot be less than retry_base_delay")
	}

	if c.Stream.URL != "" {
		if u, err := url.Parse(c.Stream.URL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return fmt.Errorf("stream.url must be a ws(s) URL, got %q", c.Stream.URL)
		}
	}
	if c.Stream.ReconnectBaseDelay <= 0 {
		return errors.New("stream.reconnect_base_delay must be > 0")
	}
	if c.Stream.ReconnectMaxDelay < c.Stream.ReconnectBaseDelay {
		return errors.New("stream.reconnect_max_delay cannot be less than reconnect_base_delay")
	}
	if c.Stream.ReconnectJitter < 0 {
		return errors.New("stream.reconnect_jitter must be >= 0")
	}
	if c.Stream.PingTimeout <= c.Stream.PingInterval {
		return fmt.Errorf("stream.ping_timeout (%s) must exceed ping_interval (%s)", c.Stream.PingTimeout, c.Stream.PingInterval)
	}
	if c.Stream.BufferSize < 1 {
		return errors.New("stream.buffer_size must be >= 1")
	}

	if c.Markets.ChangeWindow <= 0 {
		return errors.New("markets.change_window must be > 0")
	}
	if c.Markets.NotifyBuffer < 1 {
		return errors.New("markets.notify_buffer must be >= 1")
	}

	if c.History.Enabled {
		if c.History.BatchSize < 1 {
			return errors.New("history.batch_size must be >= 1")
		}
		if c.History.BufferSize < 1 {
			return errors.New("history.buffer_size must be >= 1")
		}
		if err := c.Database.Timescale.validate("database.timescale"); err != nil {
			return err
		}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
