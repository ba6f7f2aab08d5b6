package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to BillingStatus
		ok       bool
	}{
		{BillingStatusPending, BillingStatusPaid, true},
		{BillingStatusPending, BillingStatusOverdue, true},
		{BillingStatusPending, BillingStatusCancelled, true},
		{BillingStatusPending, BillingStatusGracePeriod, false},
		{BillingStatusPending, BillingStatusDelinquent, false},
		{BillingStatusOverdue, BillingStatusGracePeriod, true},
		{BillingStatusOverdue, BillingStatusPaid, true},
		{BillingStatusOverdue, BillingStatusDelinquent, true},
		{BillingStatusOverdue, BillingStatusPending, false},
		{BillingStatusGracePeriod, BillingStatusPaid, true},
		{BillingStatusGracePeriod, BillingStatusDelinquent, true},
		{BillingStatusGracePeriod, BillingStatusOverdue, false},
		{BillingStatusDelinquent, BillingStatusCancelled, true},
		{BillingStatusDelinquent, BillingStatusPaid, false},
		{BillingStatusPaid, BillingStatusPending, false},
		{BillingStatusCancelled, BillingStatusPending, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.ok, CanTransition(tc.from, tc.to),
			"%s -> %s", tc.from, tc.to)
	}
}

func TestTransition(t *testing.T) {
	b := &Billing{Status: BillingStatusPending}

	// Same-status transitions are no-ops, not errors.
	assert.NoError(t, b.Transition(BillingStatusPending))
	assert.Equal(t, BillingStatusPending, b.Status)

	assert.NoError(t, b.Transition(BillingStatusOverdue))
	assert.Equal(t, BillingStatusOverdue, b.Status)

	err := b.Transition(BillingStatusPending)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, BillingStatusOverdue, b.Status, "failed transition must not mutate")
}

func TestPastGrace(t *testing.T) {
	end := time.Date(2026, 1, 25, 0, 0, 0, 0, time.UTC)

	assert.False(t, PastGrace(time.Date(2026, 1, 25, 23, 59, 0, 0, time.UTC), &end),
		"deadline day is inside the grace window")
	assert.True(t, PastGrace(time.Date(2026, 1, 26, 0, 1, 0, 0, time.UTC), &end))
	assert.False(t, PastGrace(time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC), &end))
	assert.False(t, PastGrace(time.Now(), nil))

	// Comparison is on the UTC calendar day regardless of the wall zone.
	jakarta := time.FixedZone("WIB", 7*3600)
	assert.False(t, PastGrace(time.Date(2026, 1, 26, 5, 0, 0, 0, jakarta), &end),
		"Jan 26 05:00 WIB is still Jan 25 in UTC")
}
