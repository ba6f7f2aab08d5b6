// Package domain contains payment attempt models, the retry schedule rows
// and the contracts for the payment lifecycle engine.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// PaymentStatus represents payment attempt states.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusSuccess   PaymentStatus = "SUCCESS"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

// Method is the payment instrument used for a charge.
type Method string

const (
	MethodCreditCard   Method = "CREDIT_CARD"
	MethodDebitCard    Method = "DEBIT_CARD"
	MethodBankTransfer Method = "BANK_TRANSFER"
	MethodACH          Method = "ACH"
	MethodPaypal       Method = "PAYPAL"
	MethodStripe       Method = "STRIPE"
)

// ValidMethod reports whether m is a supported instrument.
func ValidMethod(m Method) bool {
	switch m {
	case MethodCreditCard, MethodDebitCard, MethodBankTransfer, MethodACH, MethodPaypal, MethodStripe:
		return true
	default:
		return false
	}
}

// Payment is one charge attempt against a billing. TransactionID is assigned
// before the gateway call so the attempt is traceable even if the process
// dies mid-charge.
type Payment struct {
	ID            snowflake.ID    `gorm:"primaryKey" json:"id"`
	BillingID     snowflake.ID    `gorm:"not null;index" json:"billing_id"`
	TransactionID string          `gorm:"type:text;not null;uniqueIndex" json:"transaction_id"`
	Amount        decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"amount"`
	PaymentMethod Method          `gorm:"type:text;not null" json:"payment_method"`
	Status        PaymentStatus   `gorm:"type:text;not null;index" json:"status"`
	AttemptNumber int             `gorm:"not null;default:1" json:"attempt_number"`
	FailureReason *string         `gorm:"type:text" json:"failure_reason,omitempty"`
	RefundOf      *string         `gorm:"type:text;column:refund_of" json:"refund_of,omitempty"`
	PaymentDate   *time.Time      `gorm:"" json:"payment_date,omitempty"`
	RefundedAt    *time.Time      `gorm:"" json:"refunded_at,omitempty"`
	CreatedAt     time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "payments" }

// RetryStatus tracks a scheduled retry through the worker.
type RetryStatus string

const (
	RetryStatusScheduled  RetryStatus = "SCHEDULED"
	RetryStatusInProgress RetryStatus = "IN_PROGRESS"
	RetryStatusSuccess    RetryStatus = "SUCCESS"
	RetryStatusFailed     RetryStatus = "FAILED"
	RetryStatusSkipped    RetryStatus = "SKIPPED"
	RetryStatusExhausted  RetryStatus = "EXHAUSTED"
)

// Retry is one scheduled re-attempt of a failed payment. A billing gets at
// most one retry row per attempt number.
type Retry struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	BillingID     snowflake.ID `gorm:"not null;uniqueIndex:idx_payment_retries_billing_attempt" json:"billing_id"`
	AttemptNumber int          `gorm:"not null;uniqueIndex:idx_payment_retries_billing_attempt" json:"attempt_number"`
	PaymentMethod Method       `gorm:"type:text;not null" json:"payment_method"`
	ScheduledAt   time.Time    `gorm:"not null;index" json:"scheduled_at"`
	Status        RetryStatus  `gorm:"type:text;not null;index" json:"status"`
	AttemptedAt   *time.Time   `gorm:"" json:"attempted_at,omitempty"`
	LastError     *string      `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt     time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Retry) TableName() string { return "payment_retries" }

// Stats aggregates payment outcomes over a window.
type Stats struct {
	TotalAttempts  int64           `json:"total_attempts"`
	Succeeded      int64           `json:"succeeded"`
	Failed         int64           `json:"failed"`
	Refunded       int64           `json:"refunded"`
	AmountCaptured decimal.Decimal `json:"amount_captured"`
	AmountRefunded decimal.Decimal `json:"amount_refunded"`
}
