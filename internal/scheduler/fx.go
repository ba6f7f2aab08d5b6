package scheduler

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	billingdomain "github.com/smallbiznis/premia/internal/billing/domain"
	"github.com/smallbiznis/premia/internal/clock"
	"github.com/smallbiznis/premia/internal/config"
	"github.com/smallbiznis/premia/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/premia/internal/payment/domain"
)

func newScheduler(cfg config.Config, engine paymentdomain.Service, repo paymentdomain.Repository, ledger billingdomain.Service, clk clock.Clock, log *zap.Logger, m *metrics.Metrics) *Scheduler {
	return New(Config{
		RunInterval:     cfg.Scheduler.RunInterval,
		BatchSize:       cfg.Scheduler.BatchSize,
		StaleRetryAfter: cfg.Scheduler.StaleRetryAfter,
		AbandonedCutoff: cfg.Scheduler.AbandonedCutoff,
	}, engine, repo, ledger, clk, log, m)
}

func run(lc fx.Lifecycle, s *Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				s.RunForever(ctx)
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			<-done
			return nil
		},
	})
}

var Module = fx.Module("scheduler",
	fx.Provide(newScheduler),
	fx.Invoke(run),
)
