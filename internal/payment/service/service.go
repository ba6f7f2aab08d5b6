// Package service implements the payment lifecycle engine: charge attempts,
// outcome reconciliation with the billing ledger, retry scheduling and
// refunds.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	billingdomain "github.com/smallbiznis/premia/internal/billing/domain"
	"github.com/smallbiznis/premia/internal/clock"
	"github.com/smallbiznis/premia/internal/config"
	"github.com/smallbiznis/premia/internal/events"
	"github.com/smallbiznis/premia/internal/observability/metrics"
	"github.com/smallbiznis/premia/internal/payment/domain"
	"github.com/smallbiznis/premia/internal/payment/retry"
	"github.com/smallbiznis/premia/pkg/money"
)

// Params collects the engine dependencies.
type Params struct {
	fx.In

	DB          *gorm.DB
	Repo        domain.Repository
	BillingRepo billingdomain.Repository
	Ledger      billingdomain.Service
	Gateway     domain.Gateway
	Sink        events.Sink
	Clock       clock.Clock
	Node        *snowflake.Node
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
	Config      config.Config
}

type service struct {
	db          *gorm.DB
	repo        domain.Repository
	billingRepo billingdomain.Repository
	ledger      billingdomain.Service
	gateway     domain.Gateway
	sink        events.Sink
	clock       clock.Clock
	node        *snowflake.Node
	log         *zap.Logger
	metrics     *metrics.Metrics

	// inFlightCutoff is how old a PENDING payment must be before it no
	// longer blocks a new attempt.
	inFlightCutoff time.Duration
}

func New(p Params) domain.Service {
	cutoff := p.Config.Scheduler.AbandonedCutoff
	if cutoff <= 0 {
		cutoff = 15 * time.Minute
	}
	return &service{
		db:             p.DB,
		repo:           p.Repo,
		billingRepo:    p.BillingRepo,
		ledger:         p.Ledger,
		gateway:        p.Gateway,
		sink:           p.Sink,
		clock:          p.Clock,
		node:           p.Node,
		log:            p.Logger.Named("payment"),
		metrics:        p.Metrics,
		inFlightCutoff: cutoff,
	}
}

// Process runs one charge attempt. The billing row lock is held from
// validation through the gateway call and reconciliation, so attempts
// against the same billing serialize and a second caller observes the
// committed first outcome instead of charging twice.
func (s *service) Process(ctx context.Context, in domain.ProcessInput) (*domain.Payment, error) {
	amount, err := money.Parse(in.Amount.String())
	if err != nil {
		return nil, domain.ErrInvalidAmount
	}
	if !domain.ValidMethod(in.PaymentMethod) {
		return nil, domain.ErrInvalidMethod
	}

	billingID := in.BillingID
	if billingID == 0 {
		if in.PolicyID == "" {
			return nil, billingdomain.ErrNotFound
		}
		open, err := s.billingRepo.FindOpenByPolicy(ctx, in.PolicyID)
		if err != nil {
			return nil, err
		}
		billingID = open.ID
	}

	var out *domain.Payment
	err = s.db.Transaction(func(tx *gorm.DB) error {
		b, err := s.billingRepo.GetForUpdate(ctx, tx, billingID)
		if err != nil {
			return err
		}

		// A caller that lost the race sees the committed success without a
		// second gateway call.
		if b.Status == billingdomain.BillingStatusPaid {
			p, err := s.repo.FindSuccessful(ctx, tx, b.ID)
			if err != nil {
				return domain.ErrBillingNotPayable
			}
			out = p
			return nil
		}
		if !b.Open() {
			return domain.ErrBillingNotPayable
		}
		if !amount.Equal(money.Round(b.PremiumAmount)) {
			return domain.ErrAmountMismatch
		}

		now := s.clock.Now()
		if inflight, err := s.repo.FindInFlight(ctx, tx, b.ID); err == nil {
			if now.Sub(inflight.CreatedAt) < s.inFlightCutoff {
				return domain.ErrAttemptInFlight
			}
			// Crash leftover past the cutoff. Resolve just the row here; the
			// billing cascade comes from this live attempt.
			reason := domain.ReasonAbandoned
			inflight.Status = domain.PaymentStatusFailed
			inflight.FailureReason = &reason
			inflight.UpdatedAt = now
			if err := s.repo.UpdatePayment(ctx, tx, inflight); err != nil {
				return err
			}
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		p := &domain.Payment{
			ID:            s.node.Generate(),
			BillingID:     b.ID,
			TransactionID: uuid.NewString(),
			Amount:        amount,
			PaymentMethod: in.PaymentMethod,
			Status:        domain.PaymentStatusPending,
			AttemptNumber: b.RetryCount + 1,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.repo.InsertPayment(ctx, tx, p); err != nil {
			return err
		}
		if err := s.sink.PublishTx(ctx, tx, events.Record{
			BillingID: b.ID,
			PolicyID:  b.PolicyID,
			Type:      events.TypePaymentAttempted,
			Payload: map[string]any{
				"transaction_id": p.TransactionID,
				"amount":         p.Amount.String(),
				"payment_method": string(p.PaymentMethod),
				"attempt":        p.AttemptNumber,
			},
		}); err != nil {
			return err
		}

		result, err := s.gateway.Charge(ctx, domain.ChargeRequest{
			TransactionID: p.TransactionID,
			PolicyID:      b.PolicyID,
			Amount:        p.Amount,
			Method:        p.PaymentMethod,
		})
		if err != nil {
			return err
		}

		if err := s.reconcile(ctx, tx, b, p, result); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// reconcile applies a gateway outcome to the payment and the billing inside
// the caller's transaction, which holds the billing row lock.
func (s *service) reconcile(ctx context.Context, tx *gorm.DB, b *billingdomain.Billing, p *domain.Payment, result *domain.ChargeResult) error {
	now := s.clock.Now()

	if result.Outcome == domain.OutcomeSuccess {
		p.Status = domain.PaymentStatusSuccess
		p.PaymentDate = &now
		if result.TransactionID != "" {
			p.TransactionID = result.TransactionID
		}
		p.UpdatedAt = now
		if err := s.repo.UpdatePayment(ctx, tx, p); err != nil {
			return err
		}
		if err := s.repo.CancelScheduledRetries(ctx, tx, b.ID); err != nil {
			return err
		}
		if err := s.ledger.MarkPaidTx(ctx, tx, b); err != nil {
			return err
		}
		s.metrics.RecordPaymentOutcome(string(domain.OutcomeSuccess), string(p.PaymentMethod))
		s.log.Info("payment succeeded",
			zap.Int64("billing_id", b.ID.Int64()),
			zap.String("transaction_id", p.TransactionID),
			zap.Int("attempt", p.AttemptNumber),
		)
		return s.sink.PublishTx(ctx, tx, events.Record{
			BillingID: b.ID,
			PolicyID:  b.PolicyID,
			Type:      events.TypePaymentSuccess,
			Payload: map[string]any{
				"transaction_id": p.TransactionID,
				"amount":         p.Amount.String(),
				"attempt":        p.AttemptNumber,
			},
		})
	}

	// FAILED and TIMEOUT share the failure path; TIMEOUT means the outcome
	// is unknown and the retry may find the charge never landed.
	reason := result.Reason
	if reason == "" {
		reason = domain.ReasonTimeout
	}
	p.Status = domain.PaymentStatusFailed
	p.FailureReason = &reason
	p.UpdatedAt = now
	if err := s.repo.UpdatePayment(ctx, tx, p); err != nil {
		return err
	}
	b.RetryCount++

	s.metrics.RecordPaymentOutcome(string(result.Outcome), string(p.PaymentMethod))
	s.log.Warn("payment failed",
		zap.Int64("billing_id", b.ID.Int64()),
		zap.String("transaction_id", p.TransactionID),
		zap.String("reason", reason),
		zap.Int("retry_count", b.RetryCount),
	)
	if err := s.sink.PublishTx(ctx, tx, events.Record{
		BillingID: b.ID,
		PolicyID:  b.PolicyID,
		Type:      events.TypePaymentFailed,
		Payload: map[string]any{
			"transaction_id": p.TransactionID,
			"reason":         reason,
			"attempt":        p.AttemptNumber,
			"retry_count":    b.RetryCount,
		},
	}); err != nil {
		return err
	}

	switch {
	case b.Status == billingdomain.BillingStatusPending && now.After(b.DueDate):
		graceDays := s.ledger.GraceDays(ctx, b)
		graceEnd := b.DueDate.AddDate(0, 0, graceDays)
		b.Status = billingdomain.BillingStatusOverdue
		b.GracePeriodEnd = &graceEnd
		s.metrics.IncBillingTransition(string(billingdomain.BillingStatusPending), string(b.Status))
		if err := s.sink.PublishTx(ctx, tx, events.Record{
			BillingID: b.ID,
			PolicyID:  b.PolicyID,
			Type:      events.TypePaymentDue,
			Payload: map[string]any{
				"premium_amount":   b.PremiumAmount.String(),
				"due_date":         b.DueDate,
				"grace_period_end": graceEnd,
			},
		}); err != nil {
			return err
		}
	case b.Status == billingdomain.BillingStatusOverdue && billingdomain.PastGrace(now, b.GracePeriodEnd):
		// Grace already spent: skip GRACE_PERIOD, go straight delinquent.
		if err := s.ledger.MarkDelinquentTx(ctx, tx, b); err != nil {
			return err
		}
	case b.Status == billingdomain.BillingStatusOverdue:
		if err := s.ledger.EnterGraceTx(ctx, tx, b); err != nil {
			return err
		}
	}

	if retry.CanRetry(b.RetryCount + 1) {
		delay := retry.NextDelay(b.RetryCount)
		at := now.Add(delay)
		r := &domain.Retry{
			ID:            s.node.Generate(),
			BillingID:     b.ID,
			AttemptNumber: b.RetryCount + 1,
			PaymentMethod: p.PaymentMethod,
			ScheduledAt:   at,
			Status:        domain.RetryStatusScheduled,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.repo.InsertRetry(ctx, tx, r); err != nil {
			return err
		}
		b.NextRetryDate = &at
		s.metrics.IncRetryScheduled()
		if err := s.sink.PublishTx(ctx, tx, events.Record{
			BillingID: b.ID,
			PolicyID:  b.PolicyID,
			Type:      events.TypeRetryScheduled,
			Payload: map[string]any{
				"attempt":      r.AttemptNumber,
				"scheduled_at": at,
			},
		}); err != nil {
			return err
		}
	} else {
		b.NextRetryDate = nil
		if b.Status != billingdomain.BillingStatusDelinquent && billingdomain.PastGrace(now, b.GracePeriodEnd) {
			if err := s.ledger.MarkDelinquentTx(ctx, tx, b); err != nil {
				return err
			}
		}
		if err := s.sink.PublishTx(ctx, tx, events.Record{
			BillingID: b.ID,
			PolicyID:  b.PolicyID,
			Type:      events.TypeRetriesExhausted,
			Payload: map[string]any{
				"retry_count": b.RetryCount,
			},
		}); err != nil {
			return err
		}
	}

	b.UpdatedAt = now
	return s.billingRepo.Update(ctx, tx, b)
}

// RetryBilling runs attempt retry_count+1 for a billing, or runs the
// exhaustion transition when the policy is spent.
func (s *service) RetryBilling(ctx context.Context, billingID snowflake.ID) (*domain.Payment, error) {
	b, err := s.billingRepo.Get(ctx, billingID)
	if err != nil {
		return nil, err
	}

	attempt := b.RetryCount + 1
	if !retry.CanRetry(attempt) {
		err := s.db.Transaction(func(tx *gorm.DB) error {
			locked, err := s.billingRepo.GetForUpdate(ctx, tx, billingID)
			if err != nil {
				return err
			}
			now := s.clock.Now()
			locked.NextRetryDate = nil
			locked.UpdatedAt = now
			if locked.Status != billingdomain.BillingStatusDelinquent && billingdomain.PastGrace(now, locked.GracePeriodEnd) {
				if err := s.ledger.MarkDelinquentTx(ctx, tx, locked); err != nil {
					return err
				}
			} else if err := s.billingRepo.Update(ctx, tx, locked); err != nil {
				return err
			}
			return s.sink.PublishTx(ctx, tx, events.Record{
				BillingID: locked.ID,
				PolicyID:  locked.PolicyID,
				Type:      events.TypeRetriesExhausted,
				Payload: map[string]any{
					"retry_count": locked.RetryCount,
				},
			})
		})
		if err != nil {
			return nil, err
		}
		return nil, domain.ErrRetriesExhausted
	}

	if !b.Open() {
		return nil, domain.ErrBillingNotPayable
	}

	method := domain.MethodCreditCard
	if history, err := s.repo.ListByBilling(ctx, b.ID); err == nil && len(history) > 0 {
		method = history[len(history)-1].PaymentMethod
	}

	return s.Process(ctx, domain.ProcessInput{
		BillingID:     b.ID,
		Amount:        b.PremiumAmount,
		PaymentMethod: method,
	})
}

// RunRetry executes one claimed retry row and records its outcome.
func (s *service) RunRetry(ctx context.Context, r *domain.Retry) (*domain.Payment, error) {
	p, err := s.RetryBilling(ctx, r.BillingID)

	now := s.clock.Now()
	r.UpdatedAt = now
	switch {
	case errors.Is(err, domain.ErrRetriesExhausted):
		r.Status = domain.RetryStatusExhausted
	case errors.Is(err, domain.ErrBillingNotPayable), errors.Is(err, domain.ErrAttemptInFlight), errors.Is(err, billingdomain.ErrNotFound):
		r.Status = domain.RetryStatusSkipped
	case err != nil:
		r.Status = domain.RetryStatusFailed
		msg := err.Error()
		r.LastError = &msg
	case p != nil && p.Status == domain.PaymentStatusSuccess:
		r.Status = domain.RetryStatusSuccess
	default:
		r.Status = domain.RetryStatusFailed
		if p != nil && p.FailureReason != nil {
			r.LastError = p.FailureReason
		}
	}

	if finishErr := s.repo.FinishRetry(ctx, r); finishErr != nil {
		s.log.Error("failed to finish retry row",
			zap.Int64("retry_id", r.ID.Int64()), zap.Error(finishErr))
	}
	return p, err
}

// Refund records a refund row against a SUCCESS payment. The billing stays
// PAID; only an explicit admin transition moves it.
func (s *service) Refund(ctx context.Context, transactionID string, amount *decimal.Decimal) (*domain.Payment, error) {
	orig, err := s.repo.GetByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if orig.Status != domain.PaymentStatusSuccess {
		return nil, domain.ErrNotRefundable
	}

	amt := orig.Amount
	if amount != nil {
		parsed, err := money.Parse(amount.String())
		if err != nil {
			return nil, domain.ErrInvalidAmount
		}
		if parsed.GreaterThan(orig.Amount) {
			return nil, domain.ErrInvalidAmount
		}
		amt = parsed
	}

	now := s.clock.Now()
	refund := &domain.Payment{
		ID:            s.node.Generate(),
		BillingID:     orig.BillingID,
		TransactionID: uuid.NewString(),
		Amount:        amt,
		PaymentMethod: orig.PaymentMethod,
		Status:        domain.PaymentStatusRefunded,
		AttemptNumber: orig.AttemptNumber,
		RefundOf:      &orig.TransactionID,
		RefundedAt:    &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.InsertPayment(ctx, nil, refund); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	s.log.Info("refund recorded",
		zap.String("transaction_id", refund.TransactionID),
		zap.String("refund_of", orig.TransactionID),
		zap.String("amount", amt.String()),
	)
	return refund, nil
}

// ResolveAbandoned fails PENDING payments older than cutoff with reason
// `abandoned`, running the normal failure reconciliation for each.
func (s *service) ResolveAbandoned(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	stale, err := s.repo.FindAbandoned(ctx, cutoff, limit)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for i := range stale {
		p := stale[i]
		err := s.db.Transaction(func(tx *gorm.DB) error {
			b, err := s.billingRepo.GetForUpdate(ctx, tx, p.BillingID)
			if err != nil {
				return err
			}

			// Re-read under the billing lock; a racing attempt may have
			// resolved the row already.
			current, err := s.repo.GetPayment(ctx, p.ID)
			if err != nil {
				return err
			}
			if current.Status != domain.PaymentStatusPending {
				return nil
			}

			if !b.Open() {
				now := s.clock.Now()
				reason := domain.ReasonAbandoned
				current.Status = domain.PaymentStatusFailed
				current.FailureReason = &reason
				current.UpdatedAt = now
				return s.repo.UpdatePayment(ctx, tx, current)
			}
			return s.reconcile(ctx, tx, b, current, &domain.ChargeResult{
				TransactionID: current.TransactionID,
				Outcome:       domain.OutcomeFailed,
				Reason:        domain.ReasonAbandoned,
			})
		})
		if err != nil {
			s.log.Warn("failed to resolve abandoned payment",
				zap.Int64("payment_id", p.ID.Int64()), zap.Error(err))
			continue
		}
		resolved++
	}
	return resolved, nil
}

func (s *service) History(ctx context.Context, q domain.HistoryQuery) ([]domain.Payment, error) {
	return s.repo.ListHistory(ctx, q)
}

func (s *service) GetPayment(ctx context.Context, id snowflake.ID) (*domain.Payment, error) {
	return s.repo.GetPayment(ctx, id)
}

func (s *service) GetByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error) {
	return s.repo.GetByTransactionID(ctx, transactionID)
}

func (s *service) ListRetries(ctx context.Context, billingID snowflake.ID) ([]domain.Retry, error) {
	return s.repo.ListRetriesByBilling(ctx, billingID)
}

func (s *service) Stats(ctx context.Context, q domain.StatsQuery) (*domain.Stats, error) {
	return s.repo.Stats(ctx, q)
}
