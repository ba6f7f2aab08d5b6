package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Gateway outcomes. TIMEOUT means the charge outcome is unknown; the attempt
// is recorded as failed with ReasonTimeout and may be retried.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailed  Outcome = "FAILED"
	OutcomeTimeout Outcome = "TIMEOUT"
)

// Failure reasons recorded by the engine itself.
const (
	ReasonTimeout   = "gateway_timeout"
	ReasonAbandoned = "abandoned"
)

// ChargeRequest is the outbound charge call.
type ChargeRequest struct {
	TransactionID string
	PolicyID      string
	Amount        decimal.Decimal
	Method        Method
}

// ChargeResult is the gateway's verdict on one charge.
type ChargeResult struct {
	TransactionID string
	Outcome       Outcome
	Reason        string
}

// Gateway performs charges against the external payment processor.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}

// ProcessInput is a payment attempt request. BillingID targets a specific
// billing; a zero BillingID resolves the open billing for PolicyID instead.
type ProcessInput struct {
	BillingID     snowflake.ID
	PolicyID      string
	Amount        decimal.Decimal
	PaymentMethod Method
}

// HistoryQuery filters the payment history listing.
type HistoryQuery struct {
	PolicyID  string
	BillingID snowflake.ID
	Status    PaymentStatus
	Limit     int
	Offset    int
}

// StatsQuery bounds the statistics window. Zero times mean unbounded.
type StatsQuery struct {
	From time.Time
	To   time.Time
}

// Repository is the storage contract for payments and scheduled retries.
// Methods taking a *gorm.DB run inside the caller's transaction.
type Repository interface {
	InsertPayment(ctx context.Context, tx *gorm.DB, p *Payment) error
	UpdatePayment(ctx context.Context, tx *gorm.DB, p *Payment) error
	GetPayment(ctx context.Context, id snowflake.ID) (*Payment, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*Payment, error)
	ListByBilling(ctx context.Context, billingID snowflake.ID) ([]Payment, error)
	ListHistory(ctx context.Context, q HistoryQuery) ([]Payment, error)
	FindInFlight(ctx context.Context, tx *gorm.DB, billingID snowflake.ID) (*Payment, error)
	FindSuccessful(ctx context.Context, tx *gorm.DB, billingID snowflake.ID) (*Payment, error)
	FindAbandoned(ctx context.Context, cutoff time.Time, limit int) ([]Payment, error)
	Stats(ctx context.Context, q StatsQuery) (*Stats, error)

	InsertRetry(ctx context.Context, tx *gorm.DB, r *Retry) error
	ClaimDueRetries(ctx context.Context, now time.Time, limit int) ([]Retry, error)
	FinishRetry(ctx context.Context, r *Retry) error
	ReclaimStaleRetries(ctx context.Context, cutoff time.Time) (int64, error)
	ListRetriesByBilling(ctx context.Context, billingID snowflake.ID) ([]Retry, error)
	CancelScheduledRetries(ctx context.Context, tx *gorm.DB, billingID snowflake.ID) error
}

// Service is the payment lifecycle engine.
type Service interface {
	// Process runs one charge attempt against an open billing, reconciling
	// billing status, retry schedule and events in a single transaction that
	// holds the billing row lock across the gateway call.
	Process(ctx context.Context, in ProcessInput) (*Payment, error)

	// RetryBilling runs the next attempt for a billing. Returns
	// ErrRetriesExhausted once the policy is spent, after transitioning the
	// billing and emitting the exhaustion event.
	RetryBilling(ctx context.Context, billingID snowflake.ID) (*Payment, error)

	// RunRetry executes one claimed retry row and finishes it with the
	// attempt outcome. A nil payment means the retry was skipped or
	// exhausted without a new attempt.
	RunRetry(ctx context.Context, r *Retry) (*Payment, error)

	// Refund records a refund row against a successful payment. Billing
	// status is untouched.
	Refund(ctx context.Context, transactionID string, amount *decimal.Decimal) (*Payment, error)

	// ResolveAbandoned fails PENDING payments older than cutoff, running the
	// normal failure reconciliation for each. Returns the number resolved.
	ResolveAbandoned(ctx context.Context, cutoff time.Time, limit int) (int, error)

	History(ctx context.Context, q HistoryQuery) ([]Payment, error)
	GetPayment(ctx context.Context, id snowflake.ID) (*Payment, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*Payment, error)
	ListRetries(ctx context.Context, billingID snowflake.ID) ([]Retry, error)
	Stats(ctx context.Context, q StatsQuery) (*Stats, error)
}
