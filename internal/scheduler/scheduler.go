// Package scheduler runs the periodic billing jobs: retry dispatch, stale
// retry reclamation, abandoned payment sweeping and the lazy overdue and
// delinquency transitions.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	billingdomain "github.com/smallbiznis/premia/internal/billing/domain"
	"github.com/smallbiznis/premia/internal/clock"
	"github.com/smallbiznis/premia/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/premia/internal/payment/domain"
)

type Scheduler struct {
	cfg     Config
	engine  paymentdomain.Service
	repo    paymentdomain.Repository
	ledger  billingdomain.Service
	clock   clock.Clock
	log     *zap.Logger
	metrics *metrics.Metrics
}

func New(cfg Config, engine paymentdomain.Service, repo paymentdomain.Repository, ledger billingdomain.Service, clk clock.Clock, log *zap.Logger, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		cfg:     cfg.withDefaults(),
		engine:  engine,
		repo:    repo,
		ledger:  ledger,
		clock:   clk,
		log:     log.Named("scheduler"),
		metrics: m,
	}
}

type job struct {
	name string
	run  func(ctx context.Context) error
}

func (s *Scheduler) jobs() []job {
	return []job{
		{"retry_dispatch", s.dispatchRetries},
		{"reclaim_stale", s.reclaimStaleRetries},
		{"sweep_abandoned", s.sweepAbandoned},
		{"mark_overdue", s.markOverdue},
		{"mark_delinquent", s.markDelinquent},
	}
}

// RunForever ticks until ctx is cancelled. A pass that overruns the interval
// drops the missed ticks instead of queueing them.
func (s *Scheduler) RunForever(ctx context.Context) {
	s.log.Info("scheduler started", zap.Duration("interval", s.cfg.RunInterval))
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce executes every job once with a per-job timeout. One failing job
// never blocks the rest of the pass.
func (s *Scheduler) RunOnce(ctx context.Context) {
	for _, j := range s.jobs() {
		jobCtx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
		s.metrics.IncJobRun(j.name)
		if err := j.run(jobCtx); err != nil {
			s.metrics.IncJobError(j.name)
			s.log.Warn("job failed", zap.String("job", j.name), zap.Error(err))
		}
		cancel()
		if ctx.Err() != nil {
			return
		}
	}
}

// dispatchRetries claims due retries and runs them through the engine.
func (s *Scheduler) dispatchRetries(ctx context.Context) error {
	now := s.clock.Now()
	claimed, err := s.repo.ClaimDueRetries(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return err
	}
	for i := range claimed {
		r := claimed[i]
		if _, err := s.engine.RunRetry(ctx, &r); err != nil {
			s.log.Warn("retry attempt failed",
				zap.Int64("retry_id", r.ID.Int64()),
				zap.Int64("billing_id", r.BillingID.Int64()),
				zap.Error(err),
			)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// reclaimStaleRetries releases rows a dead worker left IN_PROGRESS.
func (s *Scheduler) reclaimStaleRetries(ctx context.Context) error {
	cutoff := s.clock.Now().Add(-s.cfg.StaleRetryAfter)
	n, err := s.repo.ReclaimStaleRetries(ctx, cutoff)
	if err != nil {
		return err
	}
	if n > 0 {
		s.log.Info("reclaimed stale retries", zap.Int64("count", n))
	}
	return nil
}

// sweepAbandoned fails PENDING payments past the abandonment cutoff.
func (s *Scheduler) sweepAbandoned(ctx context.Context) error {
	cutoff := s.clock.Now().Add(-s.cfg.AbandonedCutoff)
	n, err := s.engine.ResolveAbandoned(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		return err
	}
	if n > 0 {
		s.log.Info("resolved abandoned payments", zap.Int("count", n))
	}
	return nil
}

// markOverdue transitions past-due PENDING billings.
func (s *Scheduler) markOverdue(ctx context.Context) error {
	now := s.clock.Now()
	due, err := s.ledger.FindDueBefore(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return err
	}
	for _, b := range due {
		if _, err := s.ledger.MarkOverdue(ctx, b.ID); err != nil {
			s.log.Warn("mark overdue failed",
				zap.Int64("billing_id", b.ID.Int64()), zap.Error(err))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// markDelinquent transitions billings whose grace deadline expired.
func (s *Scheduler) markDelinquent(ctx context.Context) error {
	now := s.clock.Now()
	expired, err := s.ledger.FindGraceExpired(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return err
	}
	for _, b := range expired {
		if _, err := s.ledger.MarkDelinquent(ctx, b.ID); err != nil {
			s.log.Warn("mark delinquent failed",
				zap.Int64("billing_id", b.ID.Int64()), zap.Error(err))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}
