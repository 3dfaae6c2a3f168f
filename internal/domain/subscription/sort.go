package subscription

import (
	"sort"
	"time"
)

// NextActionableDate returns the date of the first fulfillment, in stored
// creation order, that has not yet shipped. The second return is false
// when every fulfillment has shipped.
func (s *Subscription) NextActionableDate() (time.Time, bool) {
	for i := range s.Fulfillments {
		if s.Fulfillments[i].Status != FulfillmentShipped {
			return s.Fulfillments[i].FulfillmentDate, true
		}
	}
	return time.Time{}, false
}

// Order returns the subscriptions in actionable display order without
// modifying the input: derived Action Required first, then ascending by
// next actionable date, with fully shipped subscriptions last. The sort
// is stable, so equal-key subscriptions keep their relative input order.
func Order(subs []*Subscription) []*Subscription {
	out := make([]*Subscription, len(subs))
	copy(out, subs)

	sort.SliceStable(out, func(i, j int) bool {
		iAction := out[i].DeriveStatus() == StatusActionRequired
		jAction := out[j].DeriveStatus() == StatusActionRequired
		if iAction != jAction {
			return iAction
		}

		iDate, iOpen := out[i].NextActionableDate()
		jDate, jOpen := out[j].NextActionableDate()
		if iOpen != jOpen {
			return iOpen
		}
		if !iOpen {
			return false
		}
		return iDate.Before(jDate)
	})

	return out
}
