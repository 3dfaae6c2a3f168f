package subscription

// Derivation is the outcome of computing a subscription's aggregate
// status. Manual reports whether the sticky On Hold override suppressed
// derivation, making the precedence between the manual and computed
// values explicit to callers.
type Derivation struct {
	Status Status `json:"status"`
	Manual bool   `json:"manual"`
}

// Derive computes the aggregate status from the fulfillment set. Rules in
// priority order: the sticky On Hold override wins; every fulfillment
// Shipped means Fulfilled; any fulfillment at RX Received means Action
// Required; otherwise Active. Pending/Approved administrative values are
// transient: the first derivation over a fresh subscription lands on
// Action Required because fulfillment zero starts at RX Received.
func (s *Subscription) Derive() Derivation {
	if s.Status == StatusOnHold {
		return Derivation{Status: StatusOnHold, Manual: true}
	}

	allShipped := true
	anyReceived := false
	for i := range s.Fulfillments {
		switch s.Fulfillments[i].Status {
		case FulfillmentShipped:
		case FulfillmentRxReceived:
			anyReceived = true
			allShipped = false
		default:
			allShipped = false
		}
	}

	switch {
	case allShipped:
		return Derivation{Status: StatusFulfilled}
	case anyReceived:
		return Derivation{Status: StatusActionRequired}
	default:
		return Derivation{Status: StatusActive}
	}
}

// DeriveStatus is shorthand for Derive().Status.
func (s *Subscription) DeriveStatus() Status {
	return s.Derive().Status
}
