package main

import (
	"fmt"
	"sort"

	"github.com/rickgao/inplay-odds/internal/model"
)

// formatChanges renders one line per live change marker, ordered by runner
// key, side and ladder position.
func formatChanges(m model.MarketState, changes map[string]model.Direction, namer model.RunnerNamer) []string {
	if len(changes) == 0 {
		return nil
	}

	keys := make([]string, 0, len(m.Runners))
	for k := range m.Runners {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var lines []string
	for _, rk := range keys {
		r := m.Runners[rk]
		for _, side := range []model.Side{model.SideBack, model.SideLay} {
			for i, lvl := range r.Ladder(side) {
				dir, ok := changes[model.FieldKey(rk, side, i)]
				if !ok {
					continue
				}
				arrow := "▲"
				if dir == model.Down {
					arrow = "▼"
				}
				price := "-"
				if lvl.HasPrice() {
					price = lvl.Odds.String()
				}
				lines = append(lines, fmt.Sprintf("%-14s %-4s #%d %s %s @ %s",
					namer.RunnerName(m, r), side, i, arrow, price, lvl.Amount))
			}
		}
	}
	return lines
}

// statusTag labels a market the way the board does: LIVE when in play and
// open, SUSPENDED when suspended, otherwise the raw status.
func statusTag(m model.MarketState) string {
	switch {
	case m.IsLive():
		return "LIVE"
	case m.IsSuspended():
		return "SUSPENDED"
	case m.Status == "":
		return "-"
	default:
		return m.Status
	}
}
