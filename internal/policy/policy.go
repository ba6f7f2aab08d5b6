// Package policy resolves policy records for billing validation. The
// registry abstracts whether policies come from a remote policy service or
// from local storage.
package policy

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/smallbiznis/premia/internal/billing/domain"
)

var (
	ErrNotFound    = errors.New("policy_not_found")
	ErrInactive    = errors.New("policy_not_active")
	ErrUnavailable = errors.New("policy_registry_unavailable")
)

// Status is the policy lifecycle state as reported by the registry.
type Status string

const (
	StatusActive Status = "ACTIVE"
	StatusLapsed Status = "LAPSED"
	StatusClosed Status = "CLOSED"
)

// Policy is the subset of a policy record the billing engine needs.
type Policy struct {
	ID            string                  `json:"id"`
	CustomerID    string                  `json:"customer_id"`
	PolicyType    string                  `json:"policy_type"`
	CustomerTier  string                  `json:"customer_tier"`
	PremiumAmount decimal.Decimal         `json:"premium_amount"`
	Frequency     domain.PaymentFrequency `json:"payment_frequency"`
	Status        Status                  `json:"status"`
}

// Registry looks up policies by id.
type Registry interface {
	Get(ctx context.Context, policyID string) (*Policy, error)
}
