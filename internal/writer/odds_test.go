package writer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/rickgao/inplay-odds/internal/market"
	"github.com/rickgao/inplay-odds/internal/model"
)

// fakeDB records every batch it is sent.
type fakeDB struct {
	mu      sync.Mutex
	batches [][]*pgx.QueuedQuery
	err     error
}

func (db *fakeDB) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.batches = append(db.batches, b.QueuedQueries)
	return &fakeResults{err: db.err}
}

func (db *fakeDB) rows() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	n := 0
	for _, b := range db.batches {
		n += len(b)
	}
	return n
}

type fakeResults struct {
	err error
}

func (r *fakeResults) Exec() (pgconn.CommandTag, error) {
	if r.err != nil {
		return pgconn.CommandTag{}, r.err
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (r *fakeResults) Query() (pgx.Rows, error) { return nil, r.err }
func (r *fakeResults) QueryRow() pgx.Row         { return nil }
func (r *fakeResults) Close() error              { return nil }

func mergeResult(n int) market.MergeResult {
	res := market.MergeResult{
		MarketID: "1.23",
		MergedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	for i := 0; i < n; i++ {
		res.Moves = append(res.Moves, market.PriceMove{
			Key:       "47972-0-back-0",
			RunnerKey: "47972-0",
			RunnerID:  "47972",
			Side:      model.SideBack,
			Index:     i,
			Direction: model.Up,
			OldOdds:   decimal.RequireFromString("2.5"),
			NewOdds:   decimal.RequireFromString("2.62"),
		})
	}
	return res
}

func TestOddsWriter_StopFlushesQueuedRows(t *testing.T) {
	db := &fakeDB{}
	w := NewOddsWriter(DefaultConfig(), db, nil, nil)

	w.Record(mergeResult(3))

	if err := w.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if got := db.rows(); got != 3 {
		t.Errorf("rows written = %d, want 3", got)
	}
	stats := w.Stats()
	if stats.Queued != 3 || stats.Inserts != 3 || stats.Flushes != 1 {
		t.Errorf("stats = %+v, want 3 queued, 3 inserts, 1 flush", stats)
	}
}

func TestOddsWriter_RowColumns(t *testing.T) {
	db := &fakeDB{}
	w := NewOddsWriter(DefaultConfig(), db, nil, nil)

	res := mergeResult(1)
	w.Record(res)
	w.Stop(context.Background())

	if len(db.batches) != 1 || len(db.batches[0]) != 1 {
		t.Fatalf("batches = %d, want one batch with one row", len(db.batches))
	}
	args := db.batches[0][0].Arguments
	if len(args) != 10 {
		t.Fatalf("arguments = %d, want 10", len(args))
	}

	if got := args[0].(time.Time); !got.Equal(res.MergedAt) {
		t.Errorf("changed_at = %v, want %v", got, res.MergedAt)
	}
	if got := args[1].(string); got != "1.23" {
		t.Errorf("market_id = %q, want 1.23", got)
	}
	if got := args[2].(string); got != "47972-0-back-0" {
		t.Errorf("field_key = %q", got)
	}
	if got := args[5].(string); got != "back" {
		t.Errorf("side = %q, want back", got)
	}
	if got := args[7].(string); got != "up" {
		t.Errorf("direction = %q, want up", got)
	}
	if got := args[9].(decimal.Decimal); !got.Equal(decimal.RequireFromString("2.62")) {
		t.Errorf("new_odds = %v, want 2.62", got)
	}
}

func TestOddsWriter_FlushesFullBatches(t *testing.T) {
	db := &fakeDB{}
	cfg := Config{BatchSize: 2, FlushInterval: time.Hour, BufferSize: 100}
	w := NewOddsWriter(cfg, db, nil, nil)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	w.Record(mergeResult(5))

	deadline := time.Now().Add(2 * time.Second)
	for db.rows() < 4 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := db.rows(); got != 4 {
		t.Fatalf("rows written before Stop = %d, want 4", got)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if got := db.rows(); got != 5 {
		t.Errorf("rows written after Stop = %d, want 5", got)
	}
}

func TestOddsWriter_FlushInterval(t *testing.T) {
	db := &fakeDB{}
	cfg := Config{BatchSize: 100, FlushInterval: 20 * time.Millisecond, BufferSize: 100}
	w := NewOddsWriter(cfg, db, nil, nil)

	w.Start(context.Background())
	defer w.Stop(context.Background())

	w.Record(mergeResult(1))

	deadline := time.Now().Add(2 * time.Second)
	for db.rows() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := db.rows(); got != 1 {
		t.Errorf("rows written = %d, want 1 after the flush interval", got)
	}
}

func TestOddsWriter_DropsWhenBufferFull(t *testing.T) {
	db := &fakeDB{}
	cfg := Config{BatchSize: 10, FlushInterval: time.Hour, BufferSize: 2}
	w := NewOddsWriter(cfg, db, nil, nil)

	w.Record(mergeResult(3))

	stats := w.Stats()
	if stats.Queued != 2 {
		t.Errorf("Queued = %d, want 2", stats.Queued)
	}
	if stats.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", stats.Dropped)
	}
}

func TestOddsWriter_InsertError(t *testing.T) {
	db := &fakeDB{err: errors.New("connection refused")}
	w := NewOddsWriter(DefaultConfig(), db, nil, nil)

	w.Record(mergeResult(2))
	w.Stop(context.Background())

	stats := w.Stats()
	if stats.Errors != 1 {
		t.Errorf("Errors = %d, want 1", stats.Errors)
	}
	if stats.Inserts != 0 {
		t.Errorf("Inserts = %d, want 0", stats.Inserts)
	}
}

func TestOddsWriter_StopTwice(t *testing.T) {
	w := NewOddsWriter(DefaultConfig(), &fakeDB{}, nil, nil)
	w.Start(context.Background())

	if err := w.Stop(context.Background()); err != nil {
		t.Fatalf("first Stop() error = %v", err)
	}
	if err := w.Stop(context.Background()); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}
