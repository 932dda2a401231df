package snapshot

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/inplay-odds/internal/api"
	"github.com/rickgao/inplay-odds/internal/clock"
	"github.com/rickgao/inplay-odds/internal/metrics"
	"github.com/rickgao/inplay-odds/internal/model"
)

// Fetcher performs one snapshot request.
type Fetcher interface {
	GetSnapshot(ctx context.Context) (*api.SnapshotResponse, error)
}

// Snapshot is the result of a successful load.
type Snapshot struct {
	Matches       []model.Match
	Subscriptions []model.Subscription
	Endpoint      string // Empty when the feed advertised no streaming endpoint
	FetchedAt     time.Time
}

// Handler receives load results. Calls are made from the loader goroutine,
// one at a time.
type Handler interface {
	HandleSnapshot(s Snapshot)

	// HandleSnapshotError is called for every failed attempt, before the
	// retry wait begins.
	HandleSnapshotError(err error, attempt int, retryIn time.Duration)
}

// Config holds loader configuration.
type Config struct {
	ApplicationType string
	RetryBaseDelay  time.Duration
	RetryMaxDelay   time.Duration
	Timeout         time.Duration // Per-attempt request timeout (0 = none)
}

// DefaultConfig returns the feed's retry schedule.
func DefaultConfig() Config {
	return Config{
		ApplicationType: model.DefaultApplicationType,
		RetryBaseDelay:  1 * time.Second,
		RetryMaxDelay:   30 * time.Second,
	}
}

// Loader fetches the snapshot and retries until it succeeds.
type Loader struct {
	cfg     Config
	fetcher Fetcher
	handler Handler
	clock   clock.Clock
	metrics *metrics.Metrics
	logger  *slog.Logger

	refresh chan struct{}

	mu       sync.Mutex
	inflight context.CancelFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Loader. clk and m may be nil.
func New(cfg Config, fetcher Fetcher, handler Handler, clk clock.Clock, m *metrics.Metrics, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Loader{
		cfg:     cfg,
		fetcher: fetcher,
		handler: handler,
		clock:   clk,
		metrics: m,
		logger:  logger,
		refresh: make(chan struct{}, 1),
	}
}

// Start begins the first load cycle.
func (l *Loader) Start(ctx context.Context) error {
	l.ctx, l.cancel = context.WithCancel(ctx)

	l.wg.Add(1)
	go l.run()

	l.logger.Info("snapshot loader started",
		"retry_base", l.cfg.RetryBaseDelay,
		"retry_max", l.cfg.RetryMaxDelay,
	)

	return nil
}

// Refresh abandons any in-flight attempt or retry wait and starts a new load
// cycle from attempt zero. Safe to call at any time after Start.
func (l *Loader) Refresh() {
	select {
	case l.refresh <- struct{}{}:
	default:
	}

	l.mu.Lock()
	if l.inflight != nil {
		l.inflight()
	}
	l.mu.Unlock()
}

// Stop interrupts any request or retry wait and waits for the loader to exit.
func (l *Loader) Stop(ctx context.Context) error {
	if l.cancel != nil {
		l.cancel()
	}

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		l.logger.Info("snapshot loader stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run loads once, then waits for a Refresh to load again.
func (l *Loader) run() {
	defer l.wg.Done()

	for {
		l.load()

		select {
		case <-l.ctx.Done():
			return
		case <-l.refresh:
		}
	}
}

type waitResult int

const (
	waitElapsed waitResult = iota
	waitRefresh
	waitStopped
)

// load runs one cycle: fetch, and on failure back off and fetch again until a
// fetch succeeds, Stop is called, or a Refresh restarts the count.
func (l *Loader) load() {
	attempt := 0
	for {
		resp, err := l.fetch()
		if l.ctx.Err() != nil {
			return
		}

		select {
		case <-l.refresh:
			l.logger.Debug("snapshot refresh requested, restarting load")
			attempt = 0
			continue
		default:
		}

		if err == nil {
			l.metrics.SnapshotFetched("ok")
			s := Snapshot{
				Matches:       resp.Matches,
				Subscriptions: BuildSubscriptions(resp.Matches, l.cfg.ApplicationType),
				Endpoint:      resp.StreamURL(),
				FetchedAt:     l.clock.Now(),
			}
			l.logger.Info("snapshot loaded",
				"matches", len(s.Matches),
				"subscriptions", len(s.Subscriptions),
				"endpoint", s.Endpoint,
				"attempts", attempt+1,
			)
			l.handler.HandleSnapshot(s)
			return
		}

		l.metrics.SnapshotFetched(resultLabel(err))
		delay := clock.Backoff(attempt, l.cfg.RetryBaseDelay, l.cfg.RetryMaxDelay)

		wake := make(chan struct{})
		timer := l.clock.AfterFunc(delay, func() { close(wake) })

		l.logger.Warn("snapshot fetch failed",
			"attempt", attempt,
			"retry_in", delay,
			"error", err,
		)
		l.handler.HandleSnapshotError(err, attempt, delay)

		switch l.wait(wake) {
		case waitStopped:
			timer.Stop()
			return
		case waitRefresh:
			timer.Stop()
			attempt = 0
		case waitElapsed:
			attempt++
		}
	}
}

// fetch performs one request under a context Refresh can cancel.
func (l *Loader) fetch() (*api.SnapshotResponse, error) {
	var ctx context.Context
	var cancel context.CancelFunc
	if l.cfg.Timeout > 0 {
		ctx, cancel = context.WithTimeout(l.ctx, l.cfg.Timeout)
	} else {
		ctx, cancel = context.WithCancel(l.ctx)
	}
	l.mu.Lock()
	l.inflight = cancel
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.inflight = nil
		l.mu.Unlock()
		cancel()
	}()

	return l.fetcher.GetSnapshot(ctx)
}

func (l *Loader) wait(wake <-chan struct{}) waitResult {
	select {
	case <-l.ctx.Done():
		return waitStopped
	case <-l.refresh:
		return waitRefresh
	case <-wake:
		return waitElapsed
	}
}

func resultLabel(err error) string {
	var apiErr *api.APIError
	switch {
	case errors.As(err, &apiErr):
		return "http_error"
	case errors.Is(err, api.ErrMalformedResponse):
		return "malformed"
	default:
		return "transport_error"
	}
}
