// Package market implements the State Reconciler.
//
// The Reconciler owns the table of market states. Each merge overlays the
// fields present in an update onto the stored state, diffs every updated
// runner's ladders position by position, and installs the resulting price
// moves as the market's current change-marker batch. A batch expires after
// the change window unless a newer batch has replaced it first.
//
// All reads return deep copies. One mutex serializes merges, removals,
// marker expiry and queries; nothing under it performs I/O.
package market
