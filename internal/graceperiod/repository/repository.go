// Package repository persists grace period rules.
package repository

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	billing "github.com/smallbiznis/premia/internal/billing/domain"
	"github.com/smallbiznis/premia/internal/clock"
	"github.com/smallbiznis/premia/internal/graceperiod/domain"
)

type repo struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock clock.Clock
}

func New(db *gorm.DB, node *snowflake.Node, clk clock.Clock) domain.Repository {
	return &repo{db: db, node: node, clock: clk}
}

func (r *repo) FindExact(ctx context.Context, policyType string, freq billing.PaymentFrequency, tier *string) (*domain.Config, error) {
	var rows []domain.Config
	q := r.db.WithContext(ctx)

	var err error
	if tier == nil {
		err = q.Raw(`
			SELECT * FROM grace_period_configs
			WHERE policy_type = ? AND frequency = ? AND customer_tier IS NULL
			LIMIT 1`, policyType, freq).Scan(&rows).Error
	} else {
		err = q.Raw(`
			SELECT * FROM grace_period_configs
			WHERE policy_type = ? AND frequency = ? AND customer_tier = ?
			LIMIT 1`, policyType, freq, *tier).Scan(&rows).Error
	}
	if err != nil {
		return nil, fmt.Errorf("find grace config: %w", err)
	}
	if len(rows) == 0 {
		return nil, domain.ErrNotFound
	}
	return &rows[0], nil
}

func (r *repo) Upsert(ctx context.Context, cfg *domain.Config) error {
	now := r.clock.Now()

	existing, err := r.FindExact(ctx, cfg.PolicyType, cfg.Frequency, cfg.CustomerTier)
	if err != nil && err != domain.ErrNotFound {
		return err
	}

	if existing != nil {
		cfg.ID = existing.ID
		cfg.CreatedAt = existing.CreatedAt
		cfg.UpdatedAt = now
		return r.db.WithContext(ctx).
			Exec(`UPDATE grace_period_configs SET grace_days = ?, updated_at = ? WHERE id = ?`,
				cfg.GraceDays, now, cfg.ID).Error
	}

	cfg.ID = r.node.Generate()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now
	if err := r.db.WithContext(ctx).Create(cfg).Error; err != nil {
		return fmt.Errorf("insert grace config: %w", err)
	}
	return nil
}

func (r *repo) List(ctx context.Context) ([]domain.Config, error) {
	var rows []domain.Config
	err := r.db.WithContext(ctx).
		Raw(`SELECT * FROM grace_period_configs ORDER BY policy_type, frequency, customer_tier`).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list grace configs: %w", err)
	}
	return rows, nil
}
