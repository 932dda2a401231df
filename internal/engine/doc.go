// Package engine wires the snapshot loader, connection manager, frame
// router and reconciler into one live-odds engine and exposes the read-only
// query interface consumers use.
//
// Data flow:
//
//	Loader -> subscriptions -> connection.Manager -> router.Router -> market.Reconciler
//
// Every state change is announced on Subscribe channels. Notifications carry
// no market data; consumers re-query what they need.
package engine
