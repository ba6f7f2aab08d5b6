// Package domain contains the billing ledger models and the status
// transition rules for scheduled premium charges.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// BillingStatus represents billing lifecycle states.
type BillingStatus string

const (
	BillingStatusPending     BillingStatus = "PENDING"
	BillingStatusPaid        BillingStatus = "PAID"
	BillingStatusOverdue     BillingStatus = "OVERDUE"
	BillingStatusGracePeriod BillingStatus = "GRACE_PERIOD"
	BillingStatusDelinquent  BillingStatus = "DELINQUENT"
	BillingStatusCancelled   BillingStatus = "CANCELLED"
)

// PaymentFrequency is the premium schedule cadence.
type PaymentFrequency string

const (
	FrequencyMonthly    PaymentFrequency = "MONTHLY"
	FrequencyQuarterly  PaymentFrequency = "QUARTERLY"
	FrequencySemiAnnual PaymentFrequency = "SEMI_ANNUAL"
	FrequencyAnnual     PaymentFrequency = "ANNUAL"
)

// ValidFrequency reports whether f is a known cadence.
func ValidFrequency(f PaymentFrequency) bool {
	switch f {
	case FrequencyMonthly, FrequencyQuarterly, FrequencySemiAnnual, FrequencyAnnual:
		return true
	default:
		return false
	}
}

// Billing is one scheduled premium charge tied to a policy period.
type Billing struct {
	ID                 snowflake.ID     `gorm:"primaryKey" json:"id"`
	PolicyID           string           `gorm:"type:text;not null;index" json:"policy_id"`
	CustomerID         string           `gorm:"type:text;not null;index" json:"customer_id"`
	PremiumAmount      decimal.Decimal  `gorm:"type:numeric(10,2);not null" json:"premium_amount"`
	DueDate            time.Time        `gorm:"not null;index" json:"due_date"`
	BillingPeriodStart time.Time        `gorm:"not null" json:"billing_period_start"`
	BillingPeriodEnd   time.Time        `gorm:"not null" json:"billing_period_end"`
	Status             BillingStatus    `gorm:"type:text;not null;default:'PENDING';index" json:"status"`
	Frequency          PaymentFrequency `gorm:"type:text;not null" json:"frequency"`
	GracePeriodEnd     *time.Time       `gorm:"" json:"grace_period_end,omitempty"`
	RetryCount         int              `gorm:"not null;default:0" json:"retry_count"`
	NextRetryDate      *time.Time       `gorm:"" json:"next_retry_date,omitempty"`
	CreatedAt          time.Time        `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time        `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Billing) TableName() string { return "billings" }

// Open reports whether the billing can still accept a payment attempt.
func (b *Billing) Open() bool {
	switch b.Status {
	case BillingStatusPending, BillingStatusOverdue, BillingStatusGracePeriod:
		return true
	default:
		return false
	}
}

// PastGrace reports whether now falls strictly after the grace deadline.
// The deadline day itself is inclusive: a payment on the same calendar day
// still lands inside the grace window.
func PastGrace(now time.Time, graceEnd *time.Time) bool {
	if graceEnd == nil {
		return false
	}
	y1, m1, d1 := now.UTC().Date()
	y2, m2, d2 := graceEnd.UTC().Date()
	nowDay := time.Date(y1, m1, d1, 0, 0, 0, 0, time.UTC)
	endDay := time.Date(y2, m2, d2, 0, 0, 0, 0, time.UTC)
	return nowDay.After(endDay)
}

// DelinquentRow is a delinquency query result. DaysOverdue counts full days
// past the grace deadline (past the due date for rows without one).
type DelinquentRow struct {
	Billing
	DaysOverdue int `json:"days_overdue"`
}
