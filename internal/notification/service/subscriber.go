// Package service consumes billing lifecycle events and records customer
// notifications.
package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/premia/internal/clock"
	"github.com/smallbiznis/premia/internal/events"
	"github.com/smallbiznis/premia/internal/notification/domain"
	"github.com/smallbiznis/premia/pkg/db"
)

// Subscriber turns lifecycle events into notification rows. It is safe under
// redelivery: the event_id unique index makes duplicate handling a no-op.
type Subscriber struct {
	db    *gorm.DB
	sink  events.Sink
	node  *snowflake.Node
	clock clock.Clock
	log   *zap.Logger
}

func NewSubscriber(gdb *gorm.DB, sink events.Sink, node *snowflake.Node, clk clock.Clock, log *zap.Logger) *Subscriber {
	return &Subscriber{db: gdb, sink: sink, node: node, clock: clk, log: log.Named("notification")}
}

// messages maps event types to customer-facing copy. Events not listed are
// ignored by the subscriber.
var messages = map[string]string{
	events.TypePaymentDue:         "Your premium payment is due. Please pay before the grace period ends.",
	events.TypePaymentFailed:      "A premium payment attempt failed. We will retry automatically.",
	events.TypePaymentSuccess:     "Your premium payment was received. Thank you.",
	events.TypeGracePeriodStarted: "Your policy entered its grace period. Pay now to avoid a lapse.",
	events.TypeDelinquent:         "Your policy is delinquent. Contact us to restore coverage.",
}

// Handle records one notification for a supported event.
func (s *Subscriber) Handle(ctx context.Context, ev events.Event) error {
	msg, ok := messages[ev.EventType]
	if !ok {
		return nil
	}

	now := s.clock.Now()
	n := &domain.Notification{
		ID:               s.node.Generate(),
		EventID:          ev.EventID,
		BillingID:        ev.BillingID,
		PolicyID:         ev.PolicyID,
		NotificationType: ev.EventType,
		Channel:          domain.ChannelEmail,
		Message:          msg,
		SentAt:           now,
		CreatedAt:        now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(n).Error; err != nil {
			return err
		}
		if ev.EventType != events.TypePaymentDue {
			return nil
		}
		// A recorded due reminder feeds back into the event stream.
		return s.sink.PublishTx(ctx, tx, events.Record{
			BillingID: ev.BillingID,
			PolicyID:  ev.PolicyID,
			Type:      events.TypeReminderSent,
			Payload: map[string]any{
				"notification_id": n.ID.String(),
				"channel":         string(n.Channel),
			},
		})
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil
		}
		return fmt.Errorf("record notification: %w", err)
	}

	s.log.Debug("notification recorded",
		zap.String("event_type", ev.EventType),
		zap.Int64("billing_id", ev.BillingID.Int64()),
	)
	return nil
}

// ListByBilling returns the notifications recorded for one billing.
func (s *Subscriber) ListByBilling(ctx context.Context, billingID snowflake.ID) ([]domain.Notification, error) {
	var rows []domain.Notification
	err := s.db.WithContext(ctx).
		Raw(`SELECT * FROM notifications WHERE billing_id = ? ORDER BY id ASC`, billingID).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return rows, nil
}
