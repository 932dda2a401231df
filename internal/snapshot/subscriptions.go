package snapshot

import "github.com/rickgao/inplay-odds/internal/model"

// BuildSubscriptions flattens matches into one subscription per
// (event, market) pair, in snapshot order. No filtering or dedup is applied.
func BuildSubscriptions(matches []model.Match, applicationType string) []model.Subscription {
	if applicationType == "" {
		applicationType = model.DefaultApplicationType
	}

	n := 0
	for _, m := range matches {
		n += len(m.Markets)
	}

	subs := make([]model.Subscription, 0, n)
	for _, m := range matches {
		for _, mk := range m.Markets {
			subs = append(subs, model.Subscription{
				MarketID:        string(mk.MarketID),
				EventID:         string(m.ID),
				ApplicationType: applicationType,
			})
		}
	}
	return subs
}
