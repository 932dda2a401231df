package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/rickgao/inplay-odds/internal/market"
	"github.com/rickgao/inplay-odds/internal/metrics"
)

const insertOddsChange = `
	INSERT INTO odds_changes (changed_at, market_id, field_key, runner_key, runner_id, side, ladder_index, direction, old_odds, new_odds)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`

// DB is the subset of *pgxpool.Pool the writer needs.
type DB interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Config holds OddsWriter configuration.
type Config struct {
	BatchSize     int           // Rows per insert batch
	FlushInterval time.Duration // Max time a row waits in a partial batch
	BufferSize    int           // Max queued rows before new ones are dropped
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: time.Second,
		BufferSize:    100000,
	}
}

// OddsRow is one row of the odds_changes table.
type OddsRow struct {
	ChangedAt time.Time
	MarketID  string
	FieldKey  string
	RunnerKey string
	RunnerID  string
	Side      string
	Index     int
	Direction string
	OldOdds   decimal.Decimal
	NewOdds   decimal.Decimal
}

// Stats holds writer counters.
type Stats struct {
	Queued  int64
	Dropped int64
	Inserts int64
	Errors  int64
	Flushes int64
}

// OddsWriter batches detected price moves into TimescaleDB.
type OddsWriter struct {
	cfg     Config
	db      DB
	metrics *metrics.Metrics
	logger  *slog.Logger

	input *GrowableBuffer[OddsRow]

	// Batching
	batch   []OddsRow
	batchMu sync.Mutex

	// Lifecycle. ctx carries database calls; stop ends the loops so the
	// last batch can still be written after Stop is called.
	ctx  context.Context
	stop chan struct{}
	wg   sync.WaitGroup

	statsMu sync.Mutex
	stats   Stats
}

// NewOddsWriter creates a new OddsWriter.
func NewOddsWriter(cfg Config, db DB, m *metrics.Metrics, logger *slog.Logger) *OddsWriter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	initial := cfg.BatchSize * 2
	return &OddsWriter{
		cfg:     cfg,
		db:      db,
		metrics: m,
		logger:  logger,
		input:   NewBoundedBuffer[OddsRow](initial, cfg.BufferSize),
		batch:   make([]OddsRow, 0, cfg.BatchSize),
		stop:    make(chan struct{}),
	}
}

// Record queues one row per price move in res. It never blocks; rows that
// do not fit in the buffer are dropped and counted.
func (w *OddsWriter) Record(res market.MergeResult) {
	for _, mv := range res.Moves {
		row := OddsRow{
			ChangedAt: res.MergedAt,
			MarketID:  string(res.MarketID),
			FieldKey:  mv.Key,
			RunnerKey: mv.RunnerKey,
			RunnerID:  string(mv.RunnerID),
			Side:      string(mv.Side),
			Index:     mv.Index,
			Direction: string(mv.Direction),
			OldOdds:   mv.OldOdds,
			NewOdds:   mv.NewOdds,
		}

		w.statsMu.Lock()
		if w.input.Send(row) {
			w.stats.Queued++
		} else {
			w.stats.Dropped++
			w.metrics.HistoryDropped()
		}
		w.statsMu.Unlock()
	}
}

// Start begins consuming queued rows and writing to the database.
func (w *OddsWriter) Start(ctx context.Context) error {
	w.ctx = ctx

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("odds writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
		"buffer_size", w.cfg.BufferSize,
	)
	return nil
}

// Stop shuts down the writer and flushes whatever is still queued.
func (w *OddsWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping odds writer")

	select {
	case <-w.stop:
		return nil
	default:
		close(w.stop)
	}
	w.input.Close()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("odds writer stop timed out")
		return ctx.Err()
	}

	// Final flush
	for {
		rows := w.input.DrainTo(w.cfg.BatchSize)
		if len(rows) == 0 {
			break
		}
		w.add(ctx, rows)
	}
	w.flush(ctx)

	w.logger.Info("odds writer stopped")
	return nil
}

// Stats returns current counters.
func (w *OddsWriter) Stats() Stats {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	return w.stats
}

// consumeLoop moves rows from the buffer into the pending batch.
func (w *OddsWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		rows := w.input.DrainTo(w.cfg.BatchSize)
		if len(rows) == 0 {
			// Buffer empty, wait a bit before trying again
			select {
			case <-w.stop:
				return
			case <-w.ctx.Done():
				return
			case <-time.After(10 * time.Millisecond):
				continue
			}
		}

		w.add(w.ctx, rows)
	}
}

// flushLoop periodically flushes a partial batch.
func (w *OddsWriter) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush(w.ctx)
		}
	}
}

// add appends rows to the batch, flushing each time it fills.
func (w *OddsWriter) add(ctx context.Context, rows []OddsRow) {
	for _, r := range rows {
		w.batchMu.Lock()
		w.batch = append(w.batch, r)
		full := len(w.batch) >= w.cfg.BatchSize
		w.batchMu.Unlock()

		if full {
			w.flush(ctx)
		}
	}
}

// flush writes the current batch to the database.
func (w *OddsWriter) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]OddsRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	if err := w.batchInsert(ctx, batch); err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.statsMu.Lock()
		w.stats.Errors++
		w.statsMu.Unlock()
		w.metrics.HistoryFailed(len(batch))
		return
	}

	w.statsMu.Lock()
	w.stats.Inserts += int64(len(batch))
	w.stats.Flushes++
	w.statsMu.Unlock()
	w.metrics.HistoryWritten(len(batch))

	w.logger.Debug("flushed odds changes",
		"count", len(batch),
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows in a single pgx.Batch round trip.
func (w *OddsWriter) batchInsert(ctx context.Context, rows []OddsRow) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertOddsChange,
			r.ChangedAt, r.MarketID, r.FieldKey, r.RunnerKey, r.RunnerID,
			r.Side, r.Index, r.Direction, r.OldOdds, r.NewOdds,
		)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}
