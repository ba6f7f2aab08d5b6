package events

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/premia/internal/clock"
	"github.com/smallbiznis/premia/internal/config"
	"github.com/smallbiznis/premia/internal/observability/metrics"
)

// fanout delivers each event to every underlying bus.
type fanout struct {
	buses []Bus
}

func (f *fanout) Publish(ctx context.Context, ev Event) error {
	for _, b := range f.buses {
		if err := b.Publish(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

// NewBus wires the in-process bus, and the AMQP bus when a broker URL is
// configured. In-process delivery always happens so local subscribers work
// without a broker.
func NewBus(lc fx.Lifecycle, cfg config.Config, ch *ChannelBus, log *zap.Logger) (Bus, error) {
	if cfg.Bus.AMQPURL == "" {
		return ch, nil
	}

	amqpBus, err := NewAMQPBus(cfg.Bus.AMQPURL, cfg.Bus.Exchange, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			amqpBus.Close()
			return nil
		},
	})
	return &fanout{buses: []Bus{ch, amqpBus}}, nil
}

func newDispatcher(db *gorm.DB, bus Bus, clk clock.Clock, log *zap.Logger, m *metrics.Metrics, cfg config.Config) *Dispatcher {
	return NewDispatcher(db, bus, clk, log, m, cfg.Scheduler.BatchSize, cfg.Scheduler.DispatchInterval)
}

func runDispatcher(lc fx.Lifecycle, d *Dispatcher) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				d.Run(ctx)
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

func newOutbox(db *gorm.DB, node *snowflake.Node, clk clock.Clock) *Outbox {
	return NewOutbox(db, node, clk)
}

var Module = fx.Module("events",
	fx.Provide(
		NewChannelBus,
		NewBus,
		newOutbox,
		func(o *Outbox) Sink { return o },
		newDispatcher,
	),
	fx.Invoke(runDispatcher),
)
