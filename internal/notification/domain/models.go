// Package domain defines customer notification records produced from
// billing lifecycle events.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Channel is how the notification reaches the customer.
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelSMS   Channel = "SMS"
)

// Notification is one recorded customer notification. EventID is unique so
// redelivered bus events never double-notify.
type Notification struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	EventID          string       `gorm:"type:text;not null;uniqueIndex" json:"event_id"`
	BillingID        snowflake.ID `gorm:"not null;index" json:"billing_id"`
	PolicyID         string       `gorm:"type:text;not null" json:"policy_id"`
	NotificationType string       `gorm:"type:text;not null" json:"notification_type"`
	Channel          Channel      `gorm:"type:text;not null" json:"channel"`
	Message          string       `gorm:"type:text;not null" json:"message"`
	SentAt           time.Time    `gorm:"not null" json:"sent_at"`
	CreatedAt        time.Time    `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (Notification) TableName() string { return "notifications" }
