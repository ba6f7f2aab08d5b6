// Package repository persists payment attempts and the retry schedule.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/smallbiznis/premia/internal/clock"
	"github.com/smallbiznis/premia/internal/payment/domain"
)

type repo struct {
	db    *gorm.DB
	clock clock.Clock
}

func New(db *gorm.DB, clk clock.Clock) domain.Repository {
	return &repo{db: db, clock: clk}
}

func (r *repo) InsertPayment(ctx context.Context, tx *gorm.DB, p *domain.Payment) error {
	if tx == nil {
		tx = r.db
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *repo) UpdatePayment(ctx context.Context, tx *gorm.DB, p *domain.Payment) error {
	if tx == nil {
		tx = r.db
	}
	err := tx.WithContext(ctx).Exec(`
		UPDATE payments
		SET status = ?, transaction_id = ?, failure_reason = ?, payment_date = ?, refunded_at = ?, updated_at = ?
		WHERE id = ?`,
		p.Status, p.TransactionID, p.FailureReason, p.PaymentDate, p.RefundedAt, p.UpdatedAt, p.ID).Error
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	return nil
}

func (r *repo) GetPayment(ctx context.Context, id snowflake.ID) (*domain.Payment, error) {
	var rows []domain.Payment
	err := r.db.WithContext(ctx).
		Raw(`SELECT * FROM payments WHERE id = ?`, id).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	if len(rows) == 0 {
		return nil, domain.ErrNotFound
	}
	return &rows[0], nil
}

func (r *repo) GetByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error) {
	var rows []domain.Payment
	err := r.db.WithContext(ctx).
		Raw(`SELECT * FROM payments WHERE transaction_id = ?`, transactionID).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("get payment by transaction: %w", err)
	}
	if len(rows) == 0 {
		return nil, domain.ErrNotFound
	}
	return &rows[0], nil
}

func (r *repo) ListByBilling(ctx context.Context, billingID snowflake.ID) ([]domain.Payment, error) {
	var rows []domain.Payment
	err := r.db.WithContext(ctx).
		Raw(`SELECT * FROM payments WHERE billing_id = ? ORDER BY created_at ASC, id ASC`, billingID).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return rows, nil
}

func (r *repo) ListHistory(ctx context.Context, q domain.HistoryQuery) ([]domain.Payment, error) {
	query := `
		SELECT p.* FROM payments p
		JOIN billings b ON b.id = p.billing_id
		WHERE 1 = 1`
	args := []any{}
	if q.PolicyID != "" {
		query += ` AND b.policy_id = ?`
		args = append(args, q.PolicyID)
	}
	if q.BillingID != 0 {
		query += ` AND p.billing_id = ?`
		args = append(args, q.BillingID)
	}
	if q.Status != "" {
		query += ` AND p.status = ?`
		args = append(args, q.Status)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` ORDER BY p.created_at DESC, p.id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, q.Offset)

	var rows []domain.Payment
	if err := r.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("list payment history: %w", err)
	}
	return rows, nil
}

func (r *repo) FindInFlight(ctx context.Context, tx *gorm.DB, billingID snowflake.ID) (*domain.Payment, error) {
	if tx == nil {
		tx = r.db
	}
	var rows []domain.Payment
	err := tx.WithContext(ctx).
		Raw(`
			SELECT * FROM payments
			WHERE billing_id = ? AND status = ?
			ORDER BY id DESC
			LIMIT 1`,
			billingID, domain.PaymentStatusPending).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("find in-flight payment: %w", err)
	}
	if len(rows) == 0 {
		return nil, domain.ErrNotFound
	}
	return &rows[0], nil
}

func (r *repo) FindSuccessful(ctx context.Context, tx *gorm.DB, billingID snowflake.ID) (*domain.Payment, error) {
	if tx == nil {
		tx = r.db
	}
	var rows []domain.Payment
	err := tx.WithContext(ctx).
		Raw(`
			SELECT * FROM payments
			WHERE billing_id = ? AND status = ?
			ORDER BY id DESC
			LIMIT 1`,
			billingID, domain.PaymentStatusSuccess).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("find successful payment: %w", err)
	}
	if len(rows) == 0 {
		return nil, domain.ErrNotFound
	}
	return &rows[0], nil
}

func (r *repo) FindAbandoned(ctx context.Context, cutoff time.Time, limit int) ([]domain.Payment, error) {
	var rows []domain.Payment
	err := r.db.WithContext(ctx).
		Raw(`
			SELECT * FROM payments
			WHERE status = ? AND created_at < ?
			ORDER BY created_at ASC
			LIMIT ?`,
			domain.PaymentStatusPending, cutoff, limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("find abandoned payments: %w", err)
	}
	return rows, nil
}

type statsRow struct {
	Status domain.PaymentStatus
	Count  int64
	Total  decimal.Decimal
}

func (r *repo) Stats(ctx context.Context, q domain.StatsQuery) (*domain.Stats, error) {
	query := `SELECT status, COUNT(1) AS count, COALESCE(SUM(amount), 0) AS total FROM payments WHERE 1 = 1`
	args := []any{}
	if !q.From.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, q.From)
	}
	if !q.To.IsZero() {
		query += ` AND created_at < ?`
		args = append(args, q.To)
	}
	query += ` GROUP BY status`

	var rows []statsRow
	if err := r.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("payment stats: %w", err)
	}

	stats := &domain.Stats{
		AmountCaptured: decimal.Zero,
		AmountRefunded: decimal.Zero,
	}
	for _, row := range rows {
		stats.TotalAttempts += row.Count
		switch row.Status {
		case domain.PaymentStatusSuccess:
			stats.Succeeded = row.Count
			stats.AmountCaptured = stats.AmountCaptured.Add(row.Total)
		case domain.PaymentStatusFailed:
			stats.Failed = row.Count
		case domain.PaymentStatusRefunded:
			stats.Refunded = row.Count
			stats.AmountRefunded = stats.AmountRefunded.Add(row.Total)
		}
	}
	return stats, nil
}

func (r *repo) InsertRetry(ctx context.Context, tx *gorm.DB, retry *domain.Retry) error {
	if tx == nil {
		tx = r.db
	}
	if err := tx.WithContext(ctx).Create(retry).Error; err != nil {
		return fmt.Errorf("insert retry: %w", err)
	}
	return nil
}

// ClaimDueRetries moves due SCHEDULED rows to IN_PROGRESS one by one with a
// compare-and-set on status. A row another worker claimed first is skipped,
// so each retry runs exactly once.
func (r *repo) ClaimDueRetries(ctx context.Context, now time.Time, limit int) ([]domain.Retry, error) {
	var due []domain.Retry
	err := r.db.WithContext(ctx).
		Raw(`
			SELECT * FROM payment_retries
			WHERE status = ? AND scheduled_at <= ?
			ORDER BY scheduled_at ASC, id ASC
			LIMIT ?`,
			domain.RetryStatusScheduled, now, limit).
		Scan(&due).Error
	if err != nil {
		return nil, fmt.Errorf("load due retries: %w", err)
	}

	claimed := make([]domain.Retry, 0, len(due))
	for i := range due {
		row := due[i]
		res := r.db.WithContext(ctx).Exec(`
			UPDATE payment_retries
			SET status = ?, attempted_at = ?, updated_at = ?
			WHERE id = ? AND status = ?`,
			domain.RetryStatusInProgress, now, now, row.ID, domain.RetryStatusScheduled)
		if res.Error != nil {
			return claimed, fmt.Errorf("claim retry %d: %w", row.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			continue
		}
		row.Status = domain.RetryStatusInProgress
		row.AttemptedAt = &now
		row.UpdatedAt = now
		claimed = append(claimed, row)
	}
	return claimed, nil
}

func (r *repo) FinishRetry(ctx context.Context, retry *domain.Retry) error {
	err := r.db.WithContext(ctx).Exec(`
		UPDATE payment_retries
		SET status = ?, last_error = ?, updated_at = ?
		WHERE id = ?`,
		retry.Status, retry.LastError, retry.UpdatedAt, retry.ID).Error
	if err != nil {
		return fmt.Errorf("finish retry: %w", err)
	}
	return nil
}

// ReclaimStaleRetries releases IN_PROGRESS rows whose worker died. The
// attempt timestamp is cleared so the next claim starts clean.
func (r *repo) ReclaimStaleRetries(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE payment_retries
		SET status = ?, attempted_at = NULL, updated_at = ?
		WHERE status = ? AND attempted_at < ?`,
		domain.RetryStatusScheduled, r.clock.Now(), domain.RetryStatusInProgress, cutoff)
	if res.Error != nil {
		return 0, fmt.Errorf("reclaim stale retries: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *repo) ListRetriesByBilling(ctx context.Context, billingID snowflake.ID) ([]domain.Retry, error) {
	var rows []domain.Retry
	err := r.db.WithContext(ctx).
		Raw(`SELECT * FROM payment_retries WHERE billing_id = ? ORDER BY attempt_number ASC`, billingID).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list retries: %w", err)
	}
	return rows, nil
}

// CancelScheduledRetries marks outstanding SCHEDULED retries SKIPPED, used
// when the billing is paid or delinquent before the retry fires.
func (r *repo) CancelScheduledRetries(ctx context.Context, tx *gorm.DB, billingID snowflake.ID) error {
	if tx == nil {
		tx = r.db
	}
	err := tx.WithContext(ctx).Exec(`
		UPDATE payment_retries
		SET status = ?, updated_at = ?
		WHERE billing_id = ? AND status = ?`,
		domain.RetryStatusSkipped, r.clock.Now(), billingID, domain.RetryStatusScheduled).Error
	if err != nil {
		return fmt.Errorf("cancel scheduled retries: %w", err)
	}
	return nil
}
