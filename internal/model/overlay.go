package model

import "time"

// NewMarketState returns the defaults for a first sighting of id.
func NewMarketState(id ID, now time.Time) MarketState {
	return MarketState{
		ID:          id,
		Runners:     make(map[string]Runner),
		LastUpdated: now,
	}
}

// Apply overlays the fields present in u onto a copy of m. Fields absent from
// u keep their value from m. Runners are not touched; the caller merges them
// one at a time with Runner.Apply so it can diff ladders first.
func (m MarketState) Apply(u MarketUpdate) MarketState {
	out := m.Clone()

	if u.ID != "" {
		out.ID = u.ID
	}
	if u.MarketDefinition != nil {
		def := *u.MarketDefinition
		out.MarketDefinition = &def
	}
	setIf(&out.MainEventID, u.MainEventID)
	setIf(&out.MainEventName, u.MainEventName)
	setIf(&out.MainEventStartTime, u.MainEventStartTime)
	setIf(&out.MarketNameWithParents, u.MarketNameWithParents)
	setIf(&out.Status, u.Status)
	setIf(&out.Currency, u.Currency)
	setPtrIf(&out.Img, u.Img)
	setPtrIf(&out.BettingEnabled, u.BettingEnabled)

	return out
}

// Apply overlays the fields present in u onto a copy of r. A ladder present in
// u replaces the stored ladder for that side entirely, even when shorter.
func (r Runner) Apply(u Runner) Runner {
	out := r.Clone()

	if u.ID != "" {
		out.ID = u.ID
	}
	setPtrIf(&out.Handicap, u.Handicap)
	setPtrIf(&out.TradedVolume, u.TradedVolume)
	setPtrIf(&out.Locked, u.Locked)
	if u.Back != nil {
		out.Back = cloneLadder(u.Back)
	}
	if u.Lay != nil {
		out.Lay = cloneLadder(u.Lay)
	}

	return out
}

// Clone returns a deep copy of m.
func (m MarketState) Clone() MarketState {
	out := m
	if m.MarketDefinition != nil {
		def := *m.MarketDefinition
		out.MarketDefinition = &def
	}
	out.Img = clonePtr(m.Img)
	out.BettingEnabled = clonePtr(m.BettingEnabled)
	if m.Runners != nil {
		out.Runners = make(map[string]Runner, len(m.Runners))
		for k, r := range m.Runners {
			out.Runners[k] = r.Clone()
		}
	}
	return out
}

// Clone returns a deep copy of r.
func (r Runner) Clone() Runner {
	out := r
	out.Handicap = clonePtr(r.Handicap)
	out.TradedVolume = clonePtr(r.TradedVolume)
	out.Locked = clonePtr(r.Locked)
	out.Back = cloneLadder(r.Back)
	out.Lay = cloneLadder(r.Lay)
	return out
}

// setIf copies *src into *dst when src is present.
func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// setPtrIf stores a private copy of *src in *dst when src is present.
func setPtrIf[T any](dst **T, src *T) {
	if src != nil {
		*dst = clonePtr(src)
	}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneLadder(levels []PriceLevel) []PriceLevel {
	if levels == nil {
		return nil
	}
	out := make([]PriceLevel, len(levels))
	copy(out, levels)
	return out
}
