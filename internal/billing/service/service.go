// Package service implements the billing ledger: creation, lifecycle
// transitions and delinquency reporting.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/premia/internal/billing/domain"
	"github.com/smallbiznis/premia/internal/clock"
	"github.com/smallbiznis/premia/internal/events"
	gracedomain "github.com/smallbiznis/premia/internal/graceperiod/domain"
	"github.com/smallbiznis/premia/internal/observability/metrics"
	"github.com/smallbiznis/premia/internal/policy"
	"github.com/smallbiznis/premia/pkg/money"
)

// Params collects the service dependencies.
type Params struct {
	fx.In

	DB       *gorm.DB
	Repo     domain.Repository
	Grace    gracedomain.Service
	Registry policy.Registry
	Sink     events.Sink
	Clock    clock.Clock
	Node     *snowflake.Node
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
}

type service struct {
	db       *gorm.DB
	repo     domain.Repository
	grace    gracedomain.Service
	registry policy.Registry
	sink     events.Sink
	clock    clock.Clock
	node     *snowflake.Node
	log      *zap.Logger
	metrics  *metrics.Metrics
}

func New(p Params) domain.Service {
	return &service{
		db:       p.DB,
		repo:     p.Repo,
		grace:    p.Grace,
		registry: p.Registry,
		sink:     p.Sink,
		clock:    p.Clock,
		node:     p.Node,
		log:      p.Logger.Named("billing"),
		metrics:  p.Metrics,
	}
}

// Create validates the request against the policy registry and opens a
// PENDING billing. The creation event commits atomically with the row.
func (s *service) Create(ctx context.Context, in domain.CreateInput) (*domain.Billing, error) {
	amount, err := money.Parse(in.PremiumAmount.String())
	if err != nil {
		return nil, domain.ErrInvalidAmount
	}
	if !domain.ValidFrequency(in.Frequency) {
		return nil, domain.ErrInvalidFrequency
	}
	if !in.BillingPeriodStart.Before(in.BillingPeriodEnd) {
		return nil, domain.ErrInvalidPeriod
	}
	if in.PolicyID == "" || in.CustomerID == "" {
		return nil, domain.ErrInvalidPeriod
	}

	pol, err := s.registry.Get(ctx, in.PolicyID)
	if err != nil {
		if errors.Is(err, policy.ErrNotFound) {
			return nil, policy.ErrNotFound
		}
		// Registry outage must not block billing creation.
		s.log.Warn("policy registry unavailable, skipping policy check",
			zap.String("policy_id", in.PolicyID), zap.Error(err))
	} else if pol.Status != policy.StatusActive {
		return nil, policy.ErrInactive
	}

	if existing, err := s.repo.FindOpenByPolicyPeriod(ctx, in.PolicyID, in.BillingPeriodStart); err == nil && existing != nil {
		return nil, fmt.Errorf("%w: billing %d covers this period", domain.ErrInvalidPeriod, existing.ID)
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	now := s.clock.Now()
	b := &domain.Billing{
		ID:                 s.node.Generate(),
		PolicyID:           in.PolicyID,
		CustomerID:         in.CustomerID,
		PremiumAmount:      amount,
		DueDate:            in.DueDate,
		BillingPeriodStart: in.BillingPeriodStart,
		BillingPeriodEnd:   in.BillingPeriodEnd,
		Status:             domain.BillingStatusPending,
		Frequency:          in.Frequency,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Create(ctx, tx, b); err != nil {
			return err
		}
		return s.sink.PublishTx(ctx, tx, events.Record{
			BillingID: b.ID,
			PolicyID:  b.PolicyID,
			Type:      events.TypeBillingCreated,
			Payload: map[string]any{
				"customer_id":    b.CustomerID,
				"premium_amount": b.PremiumAmount.String(),
				"due_date":       b.DueDate,
				"frequency":      string(b.Frequency),
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	s.log.Info("billing created",
		zap.Int64("billing_id", b.ID.Int64()),
		zap.String("policy_id", b.PolicyID),
		zap.String("premium_amount", b.PremiumAmount.String()),
	)
	return b, nil
}

func (s *service) Get(ctx context.Context, id snowflake.ID) (*domain.Billing, error) {
	return s.repo.Get(ctx, id)
}

func (s *service) ListByPolicy(ctx context.Context, policyID string) ([]domain.Billing, error) {
	return s.repo.ListByPolicy(ctx, policyID)
}

func (s *service) ListByCustomer(ctx context.Context, customerID string) ([]domain.Billing, error) {
	return s.repo.ListByCustomer(ctx, customerID)
}

// ListDelinquent reports delinquent billings at least MinDaysOverdue past
// their grace deadline, oldest first.
func (s *service) ListDelinquent(ctx context.Context, q domain.DelinquentQuery) ([]domain.DelinquentRow, error) {
	now := s.clock.Now()
	cutoff := now.AddDate(0, 0, -q.MinDaysOverdue)

	rows, err := s.repo.ListDelinquent(ctx, cutoff, q)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	out := make([]domain.DelinquentRow, 0, len(rows))
	for _, b := range rows {
		deadline := b.DueDate
		if b.GracePeriodEnd != nil {
			deadline = *b.GracePeriodEnd
		}
		days := int(now.Sub(deadline).Hours() / 24)
		if days < 0 {
			days = 0
		}
		out = append(out, domain.DelinquentRow{Billing: b, DaysOverdue: days})
	}
	return out, nil
}

func (s *service) Cancel(ctx context.Context, id snowflake.ID) (*domain.Billing, error) {
	var out *domain.Billing
	err := s.db.Transaction(func(tx *gorm.DB) error {
		b, err := s.repo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		from := b.Status
		if err := b.Transition(domain.BillingStatusCancelled); err != nil {
			return err
		}
		b.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, b); err != nil {
			return err
		}
		s.metrics.IncBillingTransition(string(from), string(b.Status))
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ApplyStatus moves the newest open billing of a policy to the target
// status. The transition table is the only authority; anything it rejects
// comes back as ErrInvalidTransition.
func (s *service) ApplyStatus(ctx context.Context, policyID string, to domain.BillingStatus) (*domain.Billing, error) {
	open, err := s.repo.FindOpenByPolicy(ctx, policyID)
	if err != nil {
		return nil, err
	}

	var out *domain.Billing
	err = s.db.Transaction(func(tx *gorm.DB) error {
		b, err := s.repo.GetForUpdate(ctx, tx, open.ID)
		if err != nil {
			return err
		}
		out = b
		if b.Status == to {
			return nil
		}
		if !domain.CanTransition(b.Status, to) {
			return domain.ErrInvalidTransition
		}

		switch to {
		case domain.BillingStatusPaid:
			return s.MarkPaidTx(ctx, tx, b)
		case domain.BillingStatusGracePeriod:
			return s.EnterGraceTx(ctx, tx, b)
		case domain.BillingStatusDelinquent:
			return s.MarkDelinquentTx(ctx, tx, b)
		case domain.BillingStatusOverdue:
			now := s.clock.Now()
			graceEnd := b.DueDate.AddDate(0, 0, s.GraceDays(ctx, b))
			from := b.Status
			b.Status = domain.BillingStatusOverdue
			b.GracePeriodEnd = &graceEnd
			b.UpdatedAt = now
			if err := s.repo.Update(ctx, tx, b); err != nil {
				return err
			}
			s.metrics.IncBillingTransition(string(from), string(b.Status))
			return s.sink.PublishTx(ctx, tx, events.Record{
				BillingID: b.ID,
				PolicyID:  b.PolicyID,
				Type:      events.TypePaymentDue,
				Payload: map[string]any{
					"premium_amount":   b.PremiumAmount.String(),
					"due_date":         b.DueDate,
					"grace_period_end": graceEnd,
				},
			})
		case domain.BillingStatusCancelled:
			from := b.Status
			b.Status = domain.BillingStatusCancelled
			b.UpdatedAt = s.clock.Now()
			if err := s.repo.Update(ctx, tx, b); err != nil {
				return err
			}
			s.metrics.IncBillingTransition(string(from), string(b.Status))
			return nil
		default:
			return domain.ErrInvalidTransition
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MarkOverdue flips one past-due PENDING billing to OVERDUE, stamps the
// grace deadline and emits PAYMENT_DUE. Racing callers see a non-pending
// status and return the row unchanged.
func (s *service) MarkOverdue(ctx context.Context, id snowflake.ID) (*domain.Billing, error) {
	var out *domain.Billing
	err := s.db.Transaction(func(tx *gorm.DB) error {
		b, err := s.repo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		out = b

		now := s.clock.Now()
		if b.Status != domain.BillingStatusPending || !b.DueDate.Before(now) {
			return nil
		}

		graceDays := s.GraceDays(ctx, b)
		graceEnd := b.DueDate.AddDate(0, 0, graceDays)

		b.Status = domain.BillingStatusOverdue
		b.GracePeriodEnd = &graceEnd
		b.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, b); err != nil {
			return err
		}
		s.metrics.IncBillingTransition(string(domain.BillingStatusPending), string(b.Status))

		return s.sink.PublishTx(ctx, tx, events.Record{
			BillingID: b.ID,
			PolicyID:  b.PolicyID,
			Type:      events.TypePaymentDue,
			Payload: map[string]any{
				"premium_amount":   b.PremiumAmount.String(),
				"due_date":         b.DueDate,
				"grace_period_end": graceEnd,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MarkDelinquent flips one billing whose grace deadline has passed to
// DELINQUENT and emits the delinquency event.
func (s *service) MarkDelinquent(ctx context.Context, id snowflake.ID) (*domain.Billing, error) {
	var out *domain.Billing
	err := s.db.Transaction(func(tx *gorm.DB) error {
		b, err := s.repo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		out = b

		now := s.clock.Now()
		if b.Status != domain.BillingStatusOverdue && b.Status != domain.BillingStatusGracePeriod {
			return nil
		}
		if !domain.PastGrace(now, b.GracePeriodEnd) {
			return nil
		}
		return s.MarkDelinquentTx(ctx, tx, b)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) FindDueBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Billing, error) {
	return s.repo.FindDueBefore(ctx, cutoff, limit)
}

func (s *service) FindGraceExpired(ctx context.Context, cutoff time.Time, limit int) ([]domain.Billing, error) {
	return s.repo.FindGraceExpired(ctx, cutoff, limit)
}

func (s *service) FindRetryEligible(ctx context.Context, maxRetries int, limit int) ([]domain.Billing, error) {
	return s.repo.FindRetryEligible(ctx, maxRetries, limit)
}

// MarkPaidTx transitions b to PAID inside the engine's transaction.
func (s *service) MarkPaidTx(ctx context.Context, tx *gorm.DB, b *domain.Billing) error {
	from := b.Status
	if err := b.Transition(domain.BillingStatusPaid); err != nil {
		return err
	}
	b.NextRetryDate = nil
	b.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, tx, b); err != nil {
		return err
	}
	s.metrics.IncBillingTransition(string(from), string(b.Status))
	return nil
}

// EnterGraceTx transitions an OVERDUE billing to GRACE_PERIOD after a failed
// payment attempt. The grace deadline stays as stamped at overdue time; it
// is computed here only if the billing never went through MarkOverdue.
func (s *service) EnterGraceTx(ctx context.Context, tx *gorm.DB, b *domain.Billing) error {
	from := b.Status
	if err := b.Transition(domain.BillingStatusGracePeriod); err != nil {
		return err
	}
	if b.GracePeriodEnd == nil {
		graceEnd := b.DueDate.AddDate(0, 0, s.GraceDays(ctx, b))
		b.GracePeriodEnd = &graceEnd
	}
	b.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, tx, b); err != nil {
		return err
	}
	s.metrics.IncBillingTransition(string(from), string(b.Status))

	return s.sink.PublishTx(ctx, tx, events.Record{
		BillingID: b.ID,
		PolicyID:  b.PolicyID,
		Type:      events.TypeGracePeriodStarted,
		Payload: map[string]any{
			"grace_period_end": b.GracePeriodEnd,
		},
	})
}

func (s *service) MarkDelinquentTx(ctx context.Context, tx *gorm.DB, b *domain.Billing) error {
	from := b.Status
	if err := b.Transition(domain.BillingStatusDelinquent); err != nil {
		return err
	}
	b.NextRetryDate = nil
	b.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, tx, b); err != nil {
		return err
	}
	s.metrics.IncBillingTransition(string(from), string(b.Status))

	s.log.Warn("billing delinquent",
		zap.Int64("billing_id", b.ID.Int64()),
		zap.String("policy_id", b.PolicyID),
	)
	return s.sink.PublishTx(ctx, tx, events.Record{
		BillingID: b.ID,
		PolicyID:  b.PolicyID,
		Type:      events.TypeDelinquent,
		Payload: map[string]any{
			"due_date":    b.DueDate,
			"retry_count": b.RetryCount,
		},
	})
}

// GraceDays resolves the grace period for b from policy attributes. Both
// registry and rule lookups degrade rather than fail the transition.
func (s *service) GraceDays(ctx context.Context, b *domain.Billing) int {
	policyType := gracedomain.DefaultPolicyType
	var tier *string

	pol, err := s.registry.Get(ctx, b.PolicyID)
	if err != nil {
		s.log.Warn("policy lookup failed for grace resolution",
			zap.String("policy_id", b.PolicyID), zap.Error(err))
	} else {
		if pol.PolicyType != "" {
			policyType = pol.PolicyType
		}
		if pol.CustomerTier != "" {
			tier = &pol.CustomerTier
		}
	}

	days, err := s.grace.Days(ctx, policyType, b.Frequency, tier)
	if err != nil {
		s.log.Warn("grace rule lookup failed, using fallback",
			zap.String("policy_id", b.PolicyID), zap.Error(err))
		return gracedomain.FallbackDays
	}
	return days
}
