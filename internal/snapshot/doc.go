// Package snapshot implements the Snapshot Loader and Subscription Registry.
//
// The Loader fetches the in-play document once per attempt and retries
// failures forever with capped exponential backoff (1s, 2s, 4s ... 30s). A
// successful load hands the matches, the derived subscription list and the
// first streaming endpoint to a Handler. Refresh restarts the cycle from
// attempt zero.
package snapshot
