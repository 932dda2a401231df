// Package connection implements the Connection Manager.
//
// The Manager owns one WebSocket connection to the stream endpoint:
//   - disconnected -> connecting -> connected -> disconnected -> ... -> closed
//   - Sends the subscription list once per successful connect
//   - Hands every received frame to a FrameHandler on one goroutine
//   - Reconnects forever with min(1s*2^n, 30s) backoff plus 0-1s jitter
//   - Shutdown cancels the reconnect timer and any dial, and is final
package connection
