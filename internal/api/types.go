package api

import "github.com/rickgao/inplay-odds/internal/model"

// SnapshotResponse is the body of the in-play snapshot endpoint.
type SnapshotResponse struct {
	Matches   []model.Match `json:"inplay_matches"`
	Endpoints []Endpoint    `json:"wss_endpoints"`
}

// Endpoint is one advertised streaming endpoint.
type Endpoint struct {
	URL string `json:"url"`
}

// StreamURL returns the first advertised streaming endpoint, or "" when the
// snapshot lists none.
func (r *SnapshotResponse) StreamURL() string {
	if len(r.Endpoints) == 0 {
		return ""
	}
	return r.Endpoints[0].URL
}
