package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CreateInput carries a new billing request.
type CreateInput struct {
	PolicyID           string
	CustomerID         string
	PremiumAmount      decimal.Decimal
	DueDate            time.Time
	BillingPeriodStart time.Time
	BillingPeriodEnd   time.Time
	Frequency          PaymentFrequency
}

// DelinquentQuery filters the delinquency report.
type DelinquentQuery struct {
	MinDaysOverdue int
	CustomerID     string
	Limit          int
	Offset         int
}

// Repository is the storage contract for billings. Methods taking a *gorm.DB
// run inside the caller's transaction.
type Repository interface {
	Create(ctx context.Context, tx *gorm.DB, b *Billing) error
	Get(ctx context.Context, id snowflake.ID) (*Billing, error)
	GetForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*Billing, error)
	Update(ctx context.Context, tx *gorm.DB, b *Billing) error
	ListByPolicy(ctx context.Context, policyID string) ([]Billing, error)
	ListByCustomer(ctx context.Context, customerID string) ([]Billing, error)
	FindOpenByPolicyPeriod(ctx context.Context, policyID string, periodStart time.Time) (*Billing, error)
	FindOpenByPolicy(ctx context.Context, policyID string) (*Billing, error)
	FindDueBefore(ctx context.Context, cutoff time.Time, limit int) ([]Billing, error)
	FindGraceExpired(ctx context.Context, cutoff time.Time, limit int) ([]Billing, error)
	FindRetryEligible(ctx context.Context, maxRetries int, limit int) ([]Billing, error)
	ListDelinquent(ctx context.Context, cutoff time.Time, q DelinquentQuery) ([]Billing, error)
}

// Service owns billing lifecycle transitions. The *Tx methods participate in
// a transaction opened by the payment engine, which already holds the row
// lock on b.
type Service interface {
	Create(ctx context.Context, in CreateInput) (*Billing, error)
	Get(ctx context.Context, id snowflake.ID) (*Billing, error)
	ListByPolicy(ctx context.Context, policyID string) ([]Billing, error)
	ListByCustomer(ctx context.Context, customerID string) ([]Billing, error)
	ListDelinquent(ctx context.Context, q DelinquentQuery) ([]DelinquentRow, error)
	Cancel(ctx context.Context, id snowflake.ID) (*Billing, error)

	// ApplyStatus is the admin transition: it moves the newest open billing
	// of a policy to the target status, enforcing the transition table.
	ApplyStatus(ctx context.Context, policyID string, to BillingStatus) (*Billing, error)

	// MarkOverdue moves one past-due PENDING billing to OVERDUE and stamps
	// its grace deadline. No-op when the billing is no longer pending.
	MarkOverdue(ctx context.Context, id snowflake.ID) (*Billing, error)

	// MarkDelinquent moves one billing with an expired grace deadline to
	// DELINQUENT. No-op when grace has not expired or the status moved on.
	MarkDelinquent(ctx context.Context, id snowflake.ID) (*Billing, error)

	FindDueBefore(ctx context.Context, cutoff time.Time, limit int) ([]Billing, error)
	FindGraceExpired(ctx context.Context, cutoff time.Time, limit int) ([]Billing, error)

	// FindRetryEligible returns billings a retry could still rescue: overdue
	// or in grace, with retry budget left.
	FindRetryEligible(ctx context.Context, maxRetries int, limit int) ([]Billing, error)

	MarkPaidTx(ctx context.Context, tx *gorm.DB, b *Billing) error
	EnterGraceTx(ctx context.Context, tx *gorm.DB, b *Billing) error
	MarkDelinquentTx(ctx context.Context, tx *gorm.DB, b *Billing) error

	// GraceDays resolves the configured grace period for b. Lookup failures
	// degrade to the fallback, never block a transition.
	GraceDays(ctx context.Context, b *Billing) int
}
