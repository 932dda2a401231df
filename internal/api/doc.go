// Package api provides the HTTP client for the in-play snapshot endpoint.
//
// The snapshot is a single JSON document:
//
//	{"inplay_matches": [...], "wss_endpoints": [{"url": "wss://..."}]}
//
// Every call is a single attempt. Retry policy belongs to the caller
// (see snapshot.Loader).
package api
