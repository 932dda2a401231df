package connection

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/inplay-odds/internal/clock"
	"github.com/rickgao/inplay-odds/internal/metrics"
	"github.com/rickgao/inplay-odds/internal/model"
)

// FrameHandler receives every frame from the live connection, in arrival
// order, on a single goroutine.
type FrameHandler interface {
	HandleFrame(data []byte, receivedAt time.Time)
}

// StateFunc is notified of every state transition. err is set when the
// transition to StateDisconnected was caused by a failure. It is called with
// the manager's lock held and must not call back into the Manager.
type StateFunc func(state State, err error)

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the clock used for reconnect timers.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithMetrics sets the metrics sink.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithStateFunc sets the state-change callback.
func WithStateFunc(f StateFunc) Option {
	return func(m *Manager) { m.onState = f }
}

// WithJitter replaces the random reconnect jitter source.
func WithJitter(f func() time.Duration) Option {
	return func(m *Manager) { m.jitter = f }
}

// WithDialer replaces the client constructor.
func WithDialer(f func(ClientConfig, *slog.Logger) Client) Option {
	return func(m *Manager) { m.newClient = f }
}

// Stats provides statistics about the connection manager.
type Stats struct {
	State             State
	URL               string
	SessionID         string
	Attempts          int
	Connects          int64
	Disconnects       int64
	ReconnectsPending bool
	Subscriptions     int
}

// Manager owns the stream connection and its reconnect chain.
type Manager struct {
	cfg       Config
	frames    FrameHandler
	clock     clock.Clock
	metrics   *metrics.Metrics
	logger    *slog.Logger
	onState   StateFunc
	jitter    func() time.Duration
	newClient func(ClientConfig, *slog.Logger) Client

	// gen identifies the current connection attempt. Callbacks carrying an
	// older generation are ignored.
	gen atomic.Uint64

	mu          sync.Mutex
	state       State
	url         string
	subs        []model.Subscription
	attempts    int
	client      Client
	dialCancel  context.CancelFunc
	timer       clock.Timer
	lastErr     error
	connects    int64
	disconnects int64

	wg sync.WaitGroup
}

// NewManager creates a Manager in StateDisconnected.
func NewManager(cfg Config, frames FrameHandler, opts ...Option) *Manager {
	m := &Manager{
		cfg:       cfg,
		frames:    frames,
		clock:     clock.Real(),
		logger:    slog.Default(),
		state:     StateDisconnected,
		newClient: NewClient,
	}
	m.jitter = m.randomJitter

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// SetSubscriptions replaces the list sent on every future connect.
func (m *Manager) SetSubscriptions(subs []model.Subscription) {
	cp := make([]model.Subscription, len(subs))
	copy(cp, subs)

	m.mu.Lock()
	m.subs = cp
	m.mu.Unlock()
}

// Connect closes any current connection and starts connecting to url.
// The dial runs in the background; failures feed the reconnect chain.
func (m *Manager) Connect(url string) error {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	old := m.connectLocked(url)
	m.mu.Unlock()

	if old != nil {
		old.Close()
	}
	return nil
}

// connectLocked tears down the current attempt and starts a new one. It
// returns the previous client, which the caller closes outside the lock.
func (m *Manager) connectLocked(url string) Client {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.dialCancel != nil {
		m.dialCancel()
		m.dialCancel = nil
	}
	old := m.client
	m.client = nil

	gen := m.gen.Add(1)
	m.url = url
	m.setStateLocked(StateConnecting, nil)

	ctx, cancel := context.WithCancel(context.Background())
	m.dialCancel = cancel

	cfg := m.cfg.Client
	cfg.URL = url

	m.wg.Add(1)
	go m.dial(ctx, gen, cfg)

	return old
}

// dial runs one connection attempt.
func (m *Manager) dial(ctx context.Context, gen uint64, cfg ClientConfig) {
	defer m.wg.Done()

	c := m.newClient(cfg, m.logger)
	m.logger.Info("connecting to stream", "url", cfg.URL, "session_id", c.SessionID())

	err := c.Connect(ctx)

	m.mu.Lock()
	if gen != m.gen.Load() {
		m.mu.Unlock()
		c.Close()
		return
	}
	m.dialCancel = nil

	if err != nil {
		m.lostLocked(gen, err)
		m.mu.Unlock()
		c.Close()
		return
	}

	m.client = c
	m.attempts = 0
	m.connects++
	subs := m.subs
	m.setStateLocked(StateConnected, nil)
	m.mu.Unlock()

	m.logger.Info("stream connected", "url", cfg.URL, "session_id", c.SessionID())

	if payload, err := EncodeSubscriptions(subs); err != nil {
		m.logger.Error("failed to encode subscriptions", "error", err)
	} else if payload != nil {
		if err := c.Send(payload); err != nil {
			m.logger.Warn("failed to send subscriptions", "error", err)
		} else {
			m.logger.Debug("subscriptions sent", "count", len(subs), "bytes", len(payload))
		}
	}

	m.wg.Add(1)
	go m.readLoop(gen, c)
}

// readLoop forwards frames until the client's message channel closes.
func (m *Manager) readLoop(gen uint64, c Client) {
	defer m.wg.Done()

	for msg := range c.Messages() {
		if gen != m.gen.Load() {
			continue // Drain a superseded connection without processing.
		}
		m.frames.HandleFrame(msg.Data, msg.ReceivedAt)
	}

	err := c.Err()
	if err == nil {
		err = ErrNotConnected
	}

	m.mu.Lock()
	m.lostLocked(gen, err)
	m.mu.Unlock()

	// The read side is gone; release the socket and stop the heartbeat.
	c.Close()
}

// lostLocked handles the end of connection gen and schedules a reconnect.
// Must be called with m.mu held.
func (m *Manager) lostLocked(gen uint64, err error) {
	if gen != m.gen.Load() || m.state == StateClosed {
		return
	}

	m.client = nil
	m.lastErr = err
	m.disconnects++
	m.setStateLocked(StateDisconnected, err)

	delay := clock.Backoff(m.attempts, m.cfg.ReconnectBaseDelay, m.cfg.ReconnectMaxDelay) + m.jitter()
	url := m.url

	m.logger.Warn("stream connection lost",
		"error", err,
		"attempt", m.attempts,
		"retry_in", delay,
	)
	m.metrics.ReconnectScheduled()

	m.timer = m.clock.AfterFunc(delay, func() {
		m.reconnect(gen, url)
	})
}

// reconnect fires from the reconnect timer.
func (m *Manager) reconnect(gen uint64, url string) {
	m.mu.Lock()
	if gen != m.gen.Load() || m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.attempts++
	old := m.connectLocked(url)
	m.mu.Unlock()

	if old != nil {
		old.Close()
	}
}

// Shutdown cancels the reconnect timer and any in-flight dial, closes the
// live connection and enters StateClosed. No reconnect fires afterwards.
// Safe to call more than once.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return nil
	}

	m.gen.Add(1)
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.dialCancel != nil {
		m.dialCancel()
		m.dialCancel = nil
	}
	c := m.client
	m.client = nil
	m.setStateLocked(StateClosed, nil)
	m.mu.Unlock()

	if c != nil {
		c.Close()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("connection manager stopped")
		return nil
	case <-ctx.Done():
		m.logger.Warn("connection manager shutdown timed out")
		return ctx.Err()
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastError returns the error behind the most recent disconnect.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Stats returns current statistics.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{
		State:             m.state,
		URL:               m.url,
		Attempts:          m.attempts,
		Connects:          m.connects,
		Disconnects:       m.disconnects,
		ReconnectsPending: m.timer != nil,
		Subscriptions:     len(m.subs),
	}
	if m.client != nil {
		s.SessionID = m.client.SessionID()
	}
	return s
}

func (m *Manager) setStateLocked(s State, err error) {
	if m.state == s {
		return
	}
	m.state = s
	m.metrics.SetConnectionState(string(s))
	m.logger.Debug("connection state changed", "state", s)
	if m.onState != nil {
		m.onState(s, err)
	}
}

func (m *Manager) randomJitter() time.Duration {
	if m.cfg.ReconnectJitter <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(m.cfg.ReconnectJitter)))
}
