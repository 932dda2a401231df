package api

import (
	"context"
	"fmt"

	"github.com/rickgao/inplay-odds/internal/model"
)

// GetSnapshot fetches the in-play match list and streaming endpoints.
// A non-2xx status yields *APIError; an undecodable body wraps
// ErrMalformedResponse.
func (c *Client) GetSnapshot(ctx context.Context) (*SnapshotResponse, error) {
	var resp SnapshotResponse
	if err := c.get(ctx, c.snapshotURL, &resp); err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	if resp.Matches == nil {
		resp.Matches = []model.Match{}
	}

	c.logger.Debug("snapshot fetched",
		"matches", len(resp.Matches),
		"endpoints", len(resp.Endpoints),
	)

	return &resp, nil
}
