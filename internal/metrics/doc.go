// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Stream frames, decoded envelopes and decode errors
//   - Merges applied and rejected, change markers emitted
//   - Connection state and scheduled reconnects
//   - Snapshot fetch results
//   - Odds-history rows written and dropped
//
// A nil *Metrics is valid and records nothing.
package metrics
