// Package writer records detected odds moves to TimescaleDB.
//
// The history is an append-only audit trail. It is never read back, so the
// in-memory market table is always rebuilt from the feed on start. Rows are
// queued in a bounded GrowableBuffer and batch-inserted on size or interval;
// when the buffer is full new rows are dropped rather than stalling the
// reconciler.
package writer
