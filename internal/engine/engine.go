package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/inplay-odds/internal/clock"
	"github.com/rickgao/inplay-odds/internal/connection"
	"github.com/rickgao/inplay-odds/internal/market"
	"github.com/rickgao/inplay-odds/internal/metrics"
	"github.com/rickgao/inplay-odds/internal/model"
	"github.com/rickgao/inplay-odds/internal/router"
	"github.com/rickgao/inplay-odds/internal/snapshot"
)

// Recorder receives every merge that moved a price. *writer.OddsWriter
// satisfies it. Record must not block.
type Recorder interface {
	Record(res market.MergeResult)
}

// Config holds engine configuration.
type Config struct {
	Snapshot     snapshot.Config
	Connection   connection.Config
	Markets      market.Config
	NotifyBuffer int    // Per-subscriber event buffer
	StreamURL    string // Replaces the endpoint advertised by the snapshot
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Snapshot:     snapshot.DefaultConfig(),
		Connection:   connection.DefaultConfig(),
		Markets:      market.DefaultConfig(),
		NotifyBuffer: 256,
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock shared by every timer in the engine.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithHistory sends every price move to r.
func WithHistory(r Recorder) Option {
	return func(e *Engine) { e.history = r }
}

// WithConnectionOptions passes extra options to the connection manager.
func WithConnectionOptions(opts ...connection.Option) Option {
	return func(e *Engine) { e.connOpts = append(e.connOpts, opts...) }
}

// Status summarizes engine health.
type Status struct {
	State       connection.State
	Endpoint    string
	Matches     int
	Markets     int
	LastError   string
	LastErrorAt time.Time
	SnapshotAt  time.Time
}

// Engine is the live-odds synchronization engine.
type Engine struct {
	cfg      Config
	clock    clock.Clock
	metrics  *metrics.Metrics
	logger   *slog.Logger
	history  Recorder
	connOpts []connection.Option

	reconciler *market.Reconciler
	router     *router.Router
	conn       *connection.Manager
	loader     *snapshot.Loader
	notifier   *notifier

	mu         sync.RWMutex
	matches    []model.Match
	endpoint   string
	snapshotAt time.Time
	lastErr    string
	lastErrAt  time.Time
	stopOnce   sync.Once
	stopErr    error
}

// New creates an Engine. Nothing runs until Start.
func New(cfg Config, fetcher snapshot.Fetcher, opts ...Option) *Engine {
	e := &Engine{
		cfg:    cfg,
		clock:  clock.Real(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.notifier = newNotifier(cfg.NotifyBuffer)

	e.reconciler = market.NewReconciler(cfg.Markets, e.clock, e.metrics, e.logger.With("component", "reconciler"))
	e.reconciler.OnExpire(e.changesExpired)

	e.router = router.New(e, e.metrics, e.logger.With("component", "router"))

	connOpts := []connection.Option{
		connection.WithClock(e.clock),
		connection.WithMetrics(e.metrics),
		connection.WithLogger(e.logger.With("component", "connection")),
		connection.WithStateFunc(e.connectionChanged),
	}
	connOpts = append(connOpts, e.connOpts...)
	e.conn = connection.NewManager(cfg.Connection, e.router, connOpts...)

	e.loader = snapshot.New(cfg.Snapshot, fetcher, e, e.clock, e.metrics, e.logger.With("component", "snapshot"))

	return e
}

// Start begins loading the snapshot. The stream connects once a snapshot
// with an endpoint arrives.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.loader.Start(ctx); err != nil {
		return fmt.Errorf("start snapshot loader: %w", err)
	}
	e.logger.Info("engine started")
	return nil
}

// Stop tears everything down: the loader, the stream connection with its
// reconnect timer, and every subscriber channel. Safe to call more than once.
func (e *Engine) Stop(ctx context.Context) error {
	e.stopOnce.Do(func() {
		var errs []error
		if err := e.loader.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop snapshot loader: %w", err))
		}
		if err := e.conn.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown connection: %w", err))
		}
		e.notifier.close()
		e.stopErr = errors.Join(errs...)
		e.logger.Info("engine stopped")
	})
	return e.stopErr
}

// ListMatches returns the matches from the latest snapshot.
func (e *Engine) ListMatches() []model.Match {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]model.Match, len(e.matches))
	for i, m := range e.matches {
		m.Markets = append([]model.MarketSummary(nil), m.Markets...)
		out[i] = m
	}
	return out
}

// ListMarkets returns a copy of every tracked market, ordered by id.
func (e *Engine) ListMarkets() []model.MarketState {
	return e.reconciler.Markets()
}

// Market returns a copy of one tracked market.
func (e *Engine) Market(id model.ID) (model.MarketState, bool) {
	return e.reconciler.Market(id)
}

// ChangesFor returns the market's live change markers, keyed by
// <runnerKey>-<side>-<index>. Empty when nothing moved recently.
func (e *Engine) ChangesFor(id model.ID) map[string]model.Direction {
	return e.reconciler.Changes(id)
}

// Remove stops tracking a market until the feed mentions it again.
func (e *Engine) Remove(id model.ID) bool {
	ok := e.reconciler.Remove(id)
	if ok {
		e.logger.Debug("market removed", "market_id", id)
		e.publish(Event{Kind: EventMarketRemoved, MarketID: id})
	}
	return ok
}

// ConnectionState returns the stream connection state.
func (e *Engine) ConnectionState() connection.State {
	return e.conn.State()
}

// Refresh reloads the snapshot from attempt zero. A successful load
// reconnects the stream with the new subscription list.
func (e *Engine) Refresh() {
	e.logger.Info("snapshot refresh requested")
	e.loader.Refresh()
}

// Subscribe returns a channel of state-changed events and a func that
// releases it. The channel is closed by the release func or by Stop.
func (e *Engine) Subscribe() (<-chan Event, func()) {
	return e.notifier.subscribe()
}

// LastError returns a short description of the most recent failure, or ""
// once the engine has recovered.
func (e *Engine) LastError() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastErr
}

// Status returns an engine health summary.
func (e *Engine) Status() Status {
	e.mu.RLock()
	s := Status{
		Endpoint:    e.endpoint,
		Matches:     len(e.matches),
		LastError:   e.lastErr,
		LastErrorAt: e.lastErrAt,
		SnapshotAt:  e.snapshotAt,
	}
	e.mu.RUnlock()

	s.State = e.conn.State()
	s.Markets = e.reconciler.Len()
	return s
}

// Stats exposes the component counters for debugging.
func (e *Engine) Stats() (router.Stats, market.Stats, connection.Stats) {
	return e.router.Stats(), e.reconciler.Stats(), e.conn.Stats()
}

// HandleSnapshot installs a loaded snapshot and (re)connects the stream.
func (e *Engine) HandleSnapshot(s snapshot.Snapshot) {
	endpoint := s.Endpoint
	if e.cfg.StreamURL != "" {
		endpoint = e.cfg.StreamURL
	}

	e.mu.Lock()
	e.matches = s.Matches
	e.endpoint = endpoint
	e.snapshotAt = s.FetchedAt
	e.lastErr = ""
	e.mu.Unlock()

	e.conn.SetSubscriptions(s.Subscriptions)

	e.logger.Info("snapshot installed",
		"matches", len(s.Matches),
		"subscriptions", len(s.Subscriptions),
		"endpoint", endpoint,
	)
	e.publish(Event{Kind: EventSnapshotLoaded})

	if endpoint == "" {
		e.logger.Warn("snapshot has no streaming endpoint, stream stays idle")
		return
	}
	if err := e.conn.Connect(endpoint); err != nil {
		e.logger.Debug("connect skipped", "error", err)
	}
}

// HandleSnapshotError records a failed snapshot attempt.
func (e *Engine) HandleSnapshotError(err error, attempt int, retryIn time.Duration) {
	e.setLastError(fmt.Sprintf("snapshot load failed: %v", err))
	e.publish(Event{Kind: EventSnapshotFailed, Err: err})
}

// HandleUpdate merges one decoded update. It runs on the stream's read
// goroutine.
func (e *Engine) HandleUpdate(u model.MarketUpdate, receivedAt time.Time) error {
	res, err := e.reconciler.Merge(u)
	if err != nil {
		return err
	}

	if e.history != nil && len(res.Moves) > 0 {
		e.history.Record(res)
	}
	e.publish(Event{Kind: EventMarketUpdated, MarketID: res.MarketID})
	return nil
}

// connectionChanged runs under the connection manager's lock.
func (e *Engine) connectionChanged(state connection.State, err error) {
	if err != nil {
		e.setLastError(fmt.Sprintf("stream connection lost: %v", err))
	} else if state == connection.StateConnected {
		e.mu.Lock()
		e.lastErr = ""
		e.mu.Unlock()
	}
	e.publish(Event{Kind: EventConnectionState, State: state, Err: err})
}

func (e *Engine) changesExpired(id model.ID) {
	e.publish(Event{Kind: EventChangesExpired, MarketID: id})
}

func (e *Engine) setLastError(msg string) {
	e.mu.Lock()
	e.lastErr = msg
	e.lastErrAt = e.clock.Now()
	e.mu.Unlock()
}

func (e *Engine) publish(ev Event) {
	ev.At = e.clock.Now()
	e.notifier.publish(ev)
}
