package events

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/premia/internal/clock"
	"github.com/smallbiznis/premia/internal/observability/metrics"
)

// Dispatcher drains the outbox onto the bus in insertion order. Delivery is
// at-least-once: a row is marked published only after the bus accepts it, so
// a crash between the two replays the event.
type Dispatcher struct {
	db       *gorm.DB
	bus      Bus
	clock    clock.Clock
	log      *zap.Logger
	metrics  *metrics.Metrics
	batch    int
	interval time.Duration
}

func NewDispatcher(db *gorm.DB, bus Bus, clk clock.Clock, log *zap.Logger, m *metrics.Metrics, batch int, interval time.Duration) *Dispatcher {
	if batch <= 0 {
		batch = 50
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Dispatcher{
		db:       db,
		bus:      bus,
		clock:    clk,
		log:      log.Named("events.dispatcher"),
		metrics:  m,
		batch:    batch,
		interval: interval,
	}
}

// Run polls until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.RunOnce(ctx); err != nil {
				d.log.Warn("dispatch pass failed", zap.Error(err))
			}
		}
	}
}

// RunOnce publishes up to one batch of pending events and reports how many
// went out. The pass stops at the first bus error to keep per-billing order.
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	var pending []Event
	err := d.db.WithContext(ctx).
		Raw(`SELECT * FROM billing_events WHERE published = ? ORDER BY id ASC LIMIT ?`, false, d.batch).
		Scan(&pending).Error
	if err != nil {
		return 0, fmt.Errorf("load pending events: %w", err)
	}

	sent := 0
	for i := range pending {
		ev := pending[i]
		if err := d.bus.Publish(ctx, ev); err != nil {
			return sent, fmt.Errorf("publish event %s: %w", ev.EventID, err)
		}

		now := d.clock.Now()
		err := d.db.WithContext(ctx).
			Exec(`UPDATE billing_events SET published = ?, published_at = ? WHERE id = ?`, true, now, ev.ID).Error
		if err != nil {
			// The bus already has the event; redelivery on the next pass
			// is acceptable under at-least-once.
			return sent, fmt.Errorf("mark event %s published: %w", ev.EventID, err)
		}

		d.metrics.IncEventPublished(ev.EventType)
		sent++
	}
	return sent, nil
}
