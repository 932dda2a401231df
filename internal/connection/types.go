package connection

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrManagerClosed   = errors.New("connection manager closed")
)

// State is the Manager's connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateClosed       State = "closed"
)

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL          string        // Stream endpoint (ws:// or wss://)
	DialTimeout  time.Duration // Handshake timeout
	PingInterval time.Duration // How often we send a keepalive ping
	PingTimeout  time.Duration // Max silence (no frame, ping or pong) before the connection is stale
	WriteTimeout time.Duration // Write deadline for sends
	BufferSize   int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		DialTimeout:  10 * time.Second,
		PingInterval: 15 * time.Second,
		PingTimeout:  45 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   1000,
	}
}

// Config configures the Connection Manager.
type Config struct {
	ReconnectBaseDelay time.Duration // Delay before the first reconnect
	ReconnectMaxDelay  time.Duration // Cap on the exponential delay
	ReconnectJitter    time.Duration // Upper bound of the random delay added each attempt
	Client             ClientConfig  // Per-connection settings (URL is set by Connect)
}

// DefaultConfig returns the stream's reconnect schedule.
func DefaultConfig() Config {
	return Config{
		ReconnectBaseDelay: 1 * time.Second,
		ReconnectMaxDelay:  30 * time.Second,
		ReconnectJitter:    1 * time.Second,
		Client:             DefaultClientConfig(),
	}
}
