package domain

// transitions is the authoritative edge set for billing statuses. Anything
// not listed here is rejected with ErrInvalidTransition.
var transitions = map[BillingStatus][]BillingStatus{
	BillingStatusPending:     {BillingStatusOverdue, BillingStatusPaid, BillingStatusCancelled},
	BillingStatusOverdue:     {BillingStatusGracePeriod, BillingStatusPaid, BillingStatusDelinquent, BillingStatusCancelled},
	BillingStatusGracePeriod: {BillingStatusPaid, BillingStatusDelinquent, BillingStatusCancelled},
	BillingStatusDelinquent:  {BillingStatusCancelled},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to BillingStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves b to the target status or fails without mutating it.
func (b *Billing) Transition(to BillingStatus) error {
	if b.Status == to {
		return nil
	}
	if !CanTransition(b.Status, to) {
		return ErrInvalidTransition
	}
	b.Status = to
	return nil
}
