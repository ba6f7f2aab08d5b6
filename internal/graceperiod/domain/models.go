// Package domain defines grace period configuration records and the
// contracts for resolving how long an overdue billing may stay in grace.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"

	billing "github.com/smallbiznis/premia/internal/billing/domain"
)

// FallbackDays applies when no configuration row matches at any level.
const FallbackDays = 10

// DefaultPolicyType is the catch-all policy type used by the last
// configuration lookup level.
const DefaultPolicyType = "DEFAULT"

var (
	ErrNotFound     = errors.New("grace_config_not_found")
	ErrInvalidDays  = errors.New("invalid_grace_days")
	ErrConfigLookup = errors.New("grace_config_lookup_failed")
)

// Config is one grace period rule. CustomerTier is nil for rules that apply
// to all tiers of a policy type and frequency.
type Config struct {
	ID           snowflake.ID             `gorm:"primaryKey" json:"id"`
	PolicyType   string                   `gorm:"type:text;not null" json:"policy_type"`
	Frequency    billing.PaymentFrequency `gorm:"type:text;not null" json:"frequency"`
	CustomerTier *string                  `gorm:"type:text" json:"customer_tier,omitempty"`
	GraceDays    int                      `gorm:"not null" json:"grace_days"`
	CreatedAt    time.Time                `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time                `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Config) TableName() string { return "grace_period_configs" }

// Repository is the storage contract for grace period rules.
type Repository interface {
	FindExact(ctx context.Context, policyType string, freq billing.PaymentFrequency, tier *string) (*Config, error)
	Upsert(ctx context.Context, cfg *Config) error
	List(ctx context.Context) ([]Config, error)
}

// Service resolves grace periods and manages the rule set.
type Service interface {
	// Days resolves the grace period for a billing using the most specific
	// matching rule. Only storage failures surface as errors; a missing rule
	// resolves to FallbackDays.
	Days(ctx context.Context, policyType string, freq billing.PaymentFrequency, tier *string) (int, error)
	Upsert(ctx context.Context, cfg *Config) (*Config, error)
	List(ctx context.Context) ([]Config, error)
}
