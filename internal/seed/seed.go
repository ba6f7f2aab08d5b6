// Package seed bootstraps the default grace period rules so a fresh
// installation resolves grace windows without manual configuration.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	billingdomain "github.com/smallbiznis/premia/internal/billing/domain"
	gracedomain "github.com/smallbiznis/premia/internal/graceperiod/domain"
)

var defaultGraceDays = map[billingdomain.PaymentFrequency]int{
	billingdomain.FrequencyMonthly:    gracedomain.FallbackDays,
	billingdomain.FrequencyQuarterly:  15,
	billingdomain.FrequencySemiAnnual: 20,
	billingdomain.FrequencyAnnual:     30,
}

// EnsureDefaultGraceRules inserts the catch-all DEFAULT rule per frequency.
// Existing rules are left untouched.
func EnsureDefaultGraceRules(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for freq, days := range defaultGraceDays {
			if err := ensureGraceRuleTx(ctx, tx, node, freq, days); err != nil {
				return err
			}
		}
		return nil
	})
}

func ensureGraceRuleTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, freq billingdomain.PaymentFrequency, days int) error {
	var existing gracedomain.Config
	err := tx.WithContext(ctx).
		Where("policy_type = ? AND frequency = ? AND customer_tier IS NULL", gracedomain.DefaultPolicyType, freq).
		First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	now := time.Now().UTC()
	return tx.WithContext(ctx).Create(&gracedomain.Config{
		ID:         node.Generate(),
		PolicyType: gracedomain.DefaultPolicyType,
		Frequency:  freq,
		GraceDays:  days,
		CreatedAt:  now,
		UpdatedAt:  now,
	}).Error
}
