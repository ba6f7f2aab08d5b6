// Package events implements the transactional outbox for billing lifecycle
// events and the dispatcher that drains it onto a message bus.
package events

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Event types emitted by the billing ledger and the payment engine.
const (
	TypeBillingCreated     = "BILLING_CREATED"
	TypePaymentDue         = "PAYMENT_DUE"
	TypePaymentAttempted   = "PAYMENT_ATTEMPTED"
	TypePaymentSuccess     = "PAYMENT_SUCCESS"
	TypePaymentFailed      = "PAYMENT_FAILED"
	TypeRetryScheduled     = "RETRY_SCHEDULED"
	TypeRetriesExhausted   = "RETRIES_EXHAUSTED"
	TypeGracePeriodStarted = "GRACE_PERIOD_STARTED"
	TypeDelinquent         = "DELINQUENT"
	TypeReminderSent       = "REMINDER_SENT"
)

// Event is one outbox row. EventID is the stable consumer-facing identity;
// ID orders publication.
type Event struct {
	ID          snowflake.ID   `gorm:"primaryKey" json:"id"`
	EventID     string         `gorm:"type:text;not null;uniqueIndex" json:"event_id"`
	BillingID   snowflake.ID   `gorm:"not null;index" json:"billing_id"`
	PolicyID    string         `gorm:"type:text;not null" json:"policy_id"`
	EventType   string         `gorm:"type:text;not null" json:"event_type"`
	Payload     datatypes.JSON `gorm:"type:jsonb" json:"payload"`
	OccurredAt  time.Time      `gorm:"not null" json:"occurred_at"`
	Published   bool           `gorm:"not null;default:false;index" json:"published"`
	PublishedAt *time.Time     `gorm:"" json:"published_at,omitempty"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (Event) TableName() string { return "billing_events" }
