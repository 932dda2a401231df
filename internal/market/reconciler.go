package market

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/rickgao/inplay-odds/internal/clock"
	"github.com/rickgao/inplay-odds/internal/metrics"
	"github.com/rickgao/inplay-odds/internal/model"
)

// changeBatch is the marker set installed by one merge. Its address is its
// identity: expiry only clears the batch if it is still the current one.
type changeBatch struct {
	markers map[string]model.Direction
	timer   clock.Timer
}

// Reconciler owns the market-state table and change markers.
type Reconciler struct {
	cfg     Config
	clock   clock.Clock
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu       sync.Mutex
	markets  map[model.ID]model.MarketState
	changes  map[model.ID]*changeBatch
	applied  int64
	rejected int64
	moves    int64
	onExpire func(model.ID)
}

// NewReconciler creates an empty Reconciler. clk and m may be nil.
func NewReconciler(cfg Config, clk clock.Clock, m *metrics.Metrics, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.Real()
	}
	if cfg.ChangeWindow <= 0 {
		cfg.ChangeWindow = DefaultConfig().ChangeWindow
	}
	return &Reconciler{
		cfg:     cfg,
		clock:   clk,
		metrics: m,
		logger:  logger,
		markets: make(map[model.ID]model.MarketState),
		changes: make(map[model.ID]*changeBatch),
	}
}

// Merge folds one update into the table. Updates without an id are rejected
// with ErrMissingMarketID and leave no trace.
func (r *Reconciler) Merge(u model.MarketUpdate) (MergeResult, error) {
	if u.ID == "" {
		r.mu.Lock()
		r.rejected++
		r.mu.Unlock()
		r.metrics.MergeRejected("missing_id")
		return MergeResult{}, ErrMissingMarketID
	}

	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	base, found := r.markets[u.ID]
	if !found {
		base = model.NewMarketState(u.ID, now)
	}
	next := base.Apply(u)

	var moves []PriceMove
	for _, ru := range u.Runners {
		key := ru.Key()
		old, had := next.Runners[key]
		// A market's first envelope never yields markers, even when it
		// repeats a runner.
		if found && had {
			moves = append(moves, diffRunner(key, old, ru)...)
		}
		next.Runners[key] = old.Apply(ru)
	}

	if len(moves) > 0 {
		r.installLocked(u.ID, moves)
	}

	r.markets[u.ID] = next
	r.applied++
	r.moves += int64(len(moves))

	r.metrics.MergeApplied()
	r.metrics.SetMarketsTracked(len(r.markets))
	for _, mv := range moves {
		r.metrics.ChangeMarker(string(mv.Direction))
	}

	if !found {
		r.logger.Debug("market first seen", "market_id", u.ID)
	}

	return MergeResult{
		MarketID: u.ID,
		Created:  !found,
		Moves:    moves,
		MergedAt: now,
	}, nil
}

// installLocked replaces the market's marker set with one built from moves
// and schedules its expiry. Must be called with r.mu held.
func (r *Reconciler) installLocked(id model.ID, moves []PriceMove) {
	b := &changeBatch{markers: make(map[string]model.Direction, len(moves))}
	for _, mv := range moves {
		b.markers[mv.Key] = mv.Direction
	}

	if prev := r.changes[id]; prev != nil && prev.timer != nil {
		prev.timer.Stop()
	}
	r.changes[id] = b
	b.timer = r.clock.AfterFunc(r.cfg.ChangeWindow, func() {
		r.expire(id, b)
	})
}

// OnExpire registers f to be called, outside the lock, whenever a market's
// current marker batch is cleared by its timer. Set it before the first Merge.
func (r *Reconciler) OnExpire(f func(id model.ID)) {
	r.mu.Lock()
	r.onExpire = f
	r.mu.Unlock()
}

// expire clears b if it is still the market's current batch.
func (r *Reconciler) expire(id model.ID, b *changeBatch) {
	r.mu.Lock()
	current := r.changes[id] == b
	if current {
		delete(r.changes, id)
	}
	f := r.onExpire
	r.mu.Unlock()

	if current && f != nil {
		f(id)
	}
}

// Remove deletes a market and its live change markers. The next update for
// id is treated as a first sighting. Returns false if id was not tracked.
func (r *Reconciler) Remove(id model.ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b := r.changes[id]; b != nil {
		if b.timer != nil {
			b.timer.Stop()
		}
		delete(r.changes, id)
	}

	_, ok := r.markets[id]
	delete(r.markets, id)
	r.metrics.SetMarketsTracked(len(r.markets))
	return ok
}

// Changes returns a copy of the market's live change markers, or an empty
// map.
func (r *Reconciler) Changes(id model.ID) map[string]model.Direction {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.changes[id]
	if b == nil {
		return map[string]model.Direction{}
	}
	out := make(map[string]model.Direction, len(b.markers))
	for k, v := range b.markers {
		out[k] = v
	}
	return out
}

// Market returns a deep copy of one market.
func (r *Reconciler) Market(id model.ID) (model.MarketState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.markets[id]
	if !ok {
		return model.MarketState{}, false
	}
	return m.Clone(), true
}

// Markets returns deep copies of every market, ordered by id.
func (r *Reconciler) Markets() []model.MarketState {
	r.mu.Lock()
	out := make([]model.MarketState, 0, len(r.markets))
	for _, m := range r.markets {
		out = append(out, m.Clone())
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of tracked markets.
func (r *Reconciler) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.markets)
}

// Stats returns current statistics.
func (r *Reconciler) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Stats{
		Markets:       len(r.markets),
		ChangeBatches: len(r.changes),
		Applied:       r.applied,
		Rejected:      r.rejected,
		Moves:         r.moves,
	}
}
