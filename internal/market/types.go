package market

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/inplay-odds/internal/model"
)

// ErrMissingMarketID is returned by Merge for an update without a market id.
var ErrMissingMarketID = errors.New("market update has no id")

// Config holds Reconciler configuration.
type Config struct {
	ChangeWindow time.Duration // How long a change-marker batch stays visible
}

// DefaultConfig returns the 600ms change window.
func DefaultConfig() Config {
	return Config{
		ChangeWindow: 600 * time.Millisecond,
	}
}

// PriceMove is one ladder position whose odds changed in a merge.
type PriceMove struct {
	Key       string // <runnerKey>-<side>-<index>
	RunnerKey string
	RunnerID  model.ID
	Side      model.Side
	Index     int // Ladder position, not PriceLevel.Index
	Direction model.Direction
	OldOdds   decimal.Decimal
	NewOdds   decimal.Decimal
}

// MergeResult describes the effect of one successful merge.
type MergeResult struct {
	MarketID model.ID
	Created  bool // First sighting of this market
	Moves    []PriceMove
	MergedAt time.Time
}

// Stats contains runtime statistics.
type Stats struct {
	Markets       int
	ChangeBatches int
	Applied       int64
	Rejected      int64
	Moves         int64
}
