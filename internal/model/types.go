package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------
// Snapshot Types
// -----------------------------------------------------------------------------

// ID is a feed identifier. The feed is inconsistent about quoting ids, so both
// "123" and 123 decode to ID("123").
type ID string

// UnmarshalJSON accepts a JSON string, number, or null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Match is an in-play event listed in the snapshot. Immutable once loaded.
type Match struct {
	ID       ID              `json:"id"`
	Name     string          `json:"name"`
	Sport    string          `json:"sport"`
	OpenDate string          `json:"openDate"`
	Markets  []MarketSummary `json:"markets"`
}

// MarketSummary names one market of a Match.
type MarketSummary struct {
	MarketID   ID     `json:"marketId"`
	MarketName string `json:"marketName"`
}

// Subscription is one (market, event) pair requested from the stream.
// Field order is part of the wire format.
type Subscription struct {
	MarketID        string `json:"marketId"`
	EventID         string `json:"eventId"`
	ApplicationType string `json:"applicationType"`
}

// DefaultApplicationType is the client-type tag sent with every subscription.
const DefaultApplicationType = "WEB"

// -----------------------------------------------------------------------------
// Market State Types
// -----------------------------------------------------------------------------

// Market status values.
const (
	StatusOpen      = "OPEN"
	StatusSuspended = "SUSPENDED"
)

// MarketDefinition describes the market type and its in-play state.
type MarketDefinition struct {
	MarketType string `json:"marketType"`
	InPlay     bool   `json:"inPlay"`
	Status     string `json:"status,omitempty"`
}

// PriceLevel is one position of a ladder. Index 0 is the best price.
type PriceLevel struct {
	Index  int             `json:"index"`
	Odds   decimal.Decimal `json:"odds"`   // 0 = no price available
	Amount decimal.Decimal `json:"amount"` // Available size
}

// HasPrice reports whether the level carries a usable price.
func (p PriceLevel) HasPrice() bool {
	return p.Odds.IsPositive()
}

// Runner is one selection of a market. The same struct carries both stored
// state and incoming updates; see Apply.
type Runner struct {
	ID           ID               `json:"id"`
	Handicap     *decimal.Decimal `json:"hc,omitempty"`
	TradedVolume *decimal.Decimal `json:"tv,omitempty"`
	Back         []PriceLevel     `json:"bdatb"`
	Lay          []PriceLevel     `json:"bdatl"`
	Locked       *bool            `json:"locked,omitempty"`
}

// Key returns the composite runner key.
func (r Runner) Key() string {
	return RunnerKey(r.ID, r.Handicap)
}

// Ladder returns the ladder for one side.
func (r Runner) Ladder(side Side) []PriceLevel {
	if side == SideLay {
		return r.Lay
	}
	return r.Back
}

// MarketUpdate is one decoded envelope from the stream. Nil fields were absent
// from the envelope and must not overwrite stored values.
type MarketUpdate struct {
	ID                    ID                `json:"id"`
	MarketDefinition      *MarketDefinition `json:"marketDefinition"`
	Runners               []Runner          `json:"rc"`
	MainEventID           *ID               `json:"mainEventId"`
	MainEventName         *string           `json:"mainEventName"`
	MainEventStartTime    *int64            `json:"mainEventStartTime"` // ms since epoch
	MarketNameWithParents *string           `json:"marketNameWithParents"`
	Status                *string           `json:"status"`
	Img                   *bool             `json:"img"`
	BettingEnabled        *bool             `json:"bettingEnabled"`
	Currency              *string           `json:"currency"`
}

// MarketState is the engine's view of one market.
type MarketState struct {
	ID                    ID                `json:"id"`
	MarketDefinition      *MarketDefinition `json:"marketDefinition,omitempty"`
	MainEventID           ID                `json:"mainEventId"`
	MainEventName         string            `json:"mainEventName"`
	MainEventStartTime    int64             `json:"mainEventStartTime"`
	MarketNameWithParents string            `json:"marketNameWithParents"`
	Status                string            `json:"status"`
	Img                   *bool             `json:"img,omitempty"`
	BettingEnabled        *bool             `json:"bettingEnabled,omitempty"`
	Currency              string            `json:"currency"`
	Runners               map[string]Runner `json:"runners"`
	LastUpdated           time.Time         `json:"lastUpdated"`
}

// IsLive reports whether the market is in play and open.
func (m MarketState) IsLive() bool {
	return m.MarketDefinition != nil && m.MarketDefinition.InPlay && m.Status == StatusOpen
}

// IsSuspended reports whether the market is suspended.
func (m MarketState) IsSuspended() bool {
	return m.Status == StatusSuspended
}

// -----------------------------------------------------------------------------
// Change Markers
// -----------------------------------------------------------------------------

// Side is one side of a runner's book.
type Side string

const (
	SideBack Side = "back"
	SideLay  Side = "lay"
)

// Direction is the direction a ladder position's odds moved.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// RunnerKey builds the composite key <runnerId>-<handicap>. A missing
// handicap is keyed as 0.
func RunnerKey(id ID, handicap *decimal.Decimal) string {
	hc := "0"
	if handicap != nil {
		hc = handicap.String()
	}
	return string(id) + "-" + hc
}

// FieldKey builds the change-marker key <runnerKey>-<side>-<index>.
func FieldKey(runnerKey string, side Side, index int) string {
	return fmt.Sprintf("%s-%s-%d", runnerKey, side, index)
}
