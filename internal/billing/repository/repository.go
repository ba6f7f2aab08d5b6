// Package repository persists billing rows.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/smallbiznis/premia/internal/billing/domain"
)

type repo struct {
	db *gorm.DB
}

func New(db *gorm.DB) domain.Repository {
	return &repo{db: db}
}

func (r *repo) Create(ctx context.Context, tx *gorm.DB, b *domain.Billing) error {
	if tx == nil {
		tx = r.db
	}
	if err := tx.WithContext(ctx).Create(b).Error; err != nil {
		return fmt.Errorf("insert billing: %w", err)
	}
	return nil
}

func (r *repo) Get(ctx context.Context, id snowflake.ID) (*domain.Billing, error) {
	var rows []domain.Billing
	err := r.db.WithContext(ctx).
		Raw(`SELECT * FROM billings WHERE id = ?`, id).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("get billing: %w", err)
	}
	if len(rows) == 0 {
		return nil, domain.ErrNotFound
	}
	return &rows[0], nil
}

// GetForUpdate locks the billing row for the duration of tx. Concurrent
// payment attempts against the same billing serialize here. SQLite has a
// single writer and no row locks, so the clause applies on postgres only.
func (r *repo) GetForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Billing, error) {
	q := tx.WithContext(ctx)
	if tx.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var rows []domain.Billing
	err := q.Where("id = ?", id).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("lock billing: %w", err)
	}
	if len(rows) == 0 {
		return nil, domain.ErrNotFound
	}
	return &rows[0], nil
}

func (r *repo) Update(ctx context.Context, tx *gorm.DB, b *domain.Billing) error {
	if tx == nil {
		tx = r.db
	}
	err := tx.WithContext(ctx).Exec(`
		UPDATE billings
		SET status = ?, grace_period_end = ?, retry_count = ?, next_retry_date = ?, updated_at = ?
		WHERE id = ?`,
		b.Status, b.GracePeriodEnd, b.RetryCount, b.NextRetryDate, b.UpdatedAt, b.ID).Error
	if err != nil {
		return fmt.Errorf("update billing: %w", err)
	}
	return nil
}

func (r *repo) ListByPolicy(ctx context.Context, policyID string) ([]domain.Billing, error) {
	var rows []domain.Billing
	err := r.db.WithContext(ctx).
		Raw(`SELECT * FROM billings WHERE policy_id = ? ORDER BY due_date DESC`, policyID).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list billings by policy: %w", err)
	}
	return rows, nil
}

func (r *repo) ListByCustomer(ctx context.Context, customerID string) ([]domain.Billing, error) {
	var rows []domain.Billing
	err := r.db.WithContext(ctx).
		Raw(`SELECT * FROM billings WHERE customer_id = ? ORDER BY due_date DESC`, customerID).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list billings by customer: %w", err)
	}
	return rows, nil
}

func (r *repo) FindOpenByPolicyPeriod(ctx context.Context, policyID string, periodStart time.Time) (*domain.Billing, error) {
	var rows []domain.Billing
	err := r.db.WithContext(ctx).
		Raw(`
			SELECT * FROM billings
			WHERE policy_id = ? AND billing_period_start = ? AND status NOT IN (?, ?)
			LIMIT 1`,
			policyID, periodStart, domain.BillingStatusCancelled, domain.BillingStatusDelinquent).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("find billing by period: %w", err)
	}
	if len(rows) == 0 {
		return nil, domain.ErrNotFound
	}
	return &rows[0], nil
}

// FindOpenByPolicy returns the open billing with the earliest due date for a
// policy, used when a payment request names a policy instead of a billing.
func (r *repo) FindOpenByPolicy(ctx context.Context, policyID string) (*domain.Billing, error) {
	var rows []domain.Billing
	err := r.db.WithContext(ctx).
		Raw(`
			SELECT * FROM billings
			WHERE policy_id = ? AND status IN (?, ?, ?)
			ORDER BY due_date ASC
			LIMIT 1`,
			policyID,
			domain.BillingStatusPending, domain.BillingStatusOverdue, domain.BillingStatusGracePeriod).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("find open billing: %w", err)
	}
	if len(rows) == 0 {
		return nil, domain.ErrNotFound
	}
	return &rows[0], nil
}

func (r *repo) FindDueBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Billing, error) {
	var rows []domain.Billing
	err := r.db.WithContext(ctx).
		Raw(`
			SELECT * FROM billings
			WHERE status = ? AND due_date < ?
			ORDER BY due_date ASC
			LIMIT ?`,
			domain.BillingStatusPending, cutoff, limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("find due billings: %w", err)
	}
	return rows, nil
}

func (r *repo) FindGraceExpired(ctx context.Context, cutoff time.Time, limit int) ([]domain.Billing, error) {
	var rows []domain.Billing
	err := r.db.WithContext(ctx).
		Raw(`
			SELECT * FROM billings
			WHERE status IN (?, ?) AND grace_period_end IS NOT NULL AND grace_period_end < ?
			ORDER BY grace_period_end ASC
			LIMIT ?`,
			domain.BillingStatusOverdue, domain.BillingStatusGracePeriod, cutoff, limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("find grace expired billings: %w", err)
	}
	return rows, nil
}

func (r *repo) FindRetryEligible(ctx context.Context, maxRetries int, limit int) ([]domain.Billing, error) {
	var rows []domain.Billing
	err := r.db.WithContext(ctx).
		Raw(`
			SELECT * FROM billings
			WHERE status IN (?, ?) AND retry_count < ?
			ORDER BY due_date ASC
			LIMIT ?`,
			domain.BillingStatusOverdue, domain.BillingStatusGracePeriod, maxRetries, limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("find retry eligible billings: %w", err)
	}
	return rows, nil
}

func (r *repo) ListDelinquent(ctx context.Context, cutoff time.Time, q domain.DelinquentQuery) ([]domain.Billing, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	// Overdue age counts from the grace deadline, not the due date. Rows
	// delinquent without a stamped deadline age from due_date.
	query := `SELECT * FROM billings WHERE status = ? AND COALESCE(grace_period_end, due_date) <= ?`
	args := []any{domain.BillingStatusDelinquent, cutoff}
	if q.CustomerID != "" {
		query += ` AND customer_id = ?`
		args = append(args, q.CustomerID)
	}
	query += ` ORDER BY COALESCE(grace_period_end, due_date) ASC LIMIT ? OFFSET ?`
	args = append(args, limit, q.Offset)

	var rows []domain.Billing
	if err := r.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("list delinquent billings: %w", err)
	}
	return rows, nil
}
