package model

import (
	"strconv"
	"strings"
)

// RunnerNamer turns a runner into a display name. Naming is a feed-specific
// convention, so consumers supply their own lookup.
type RunnerNamer interface {
	RunnerName(market MarketState, runner Runner) string
}

// StaticRunnerNames is the lookup the public in-play feed uses: a fixed
// selection-id table for MATCH_ODDS markets, and Over/Under by id parity for
// lines carrying a handicap.
type StaticRunnerNames struct {
	MatchOdds map[ID]string
}

// DefaultRunnerNames returns the lookup with the feed's known MATCH_ODDS ids.
func DefaultRunnerNames() StaticRunnerNames {
	return StaticRunnerNames{
		MatchOdds: map[ID]string{
			"47972": "Home",
			"47973": "Away",
			"58805": "Draw",
		},
	}
}

// RunnerName implements RunnerNamer.
func (n StaticRunnerNames) RunnerName(market MarketState, runner Runner) string {
	if market.MarketDefinition != nil && market.MarketDefinition.MarketType == "MATCH_ODDS" {
		if name, ok := n.MatchOdds[runner.ID]; ok {
			return name
		}
		return "Selection " + string(runner.ID)
	}

	if runner.Handicap != nil {
		side := "Under"
		if id, err := strconv.ParseInt(strings.TrimSpace(string(runner.ID)), 10, 64); err == nil && id%2 == 0 {
			side = "Over"
		}
		return side + " " + runner.Handicap.Abs().String()
	}

	return "Sel " + string(runner.ID)
}
