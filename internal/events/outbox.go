package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/smallbiznis/premia/internal/clock"
)

// Record is what producers hand to the outbox. Payload is marshalled to JSON
// at write time so producers stay decoupled from the storage shape.
type Record struct {
	BillingID snowflake.ID
	PolicyID  string
	Type      string
	Payload   map[string]any
}

// Sink persists lifecycle events. Implementations must make the write
// atomic with the caller's transaction when one is supplied.
type Sink interface {
	PublishTx(ctx context.Context, tx *gorm.DB, rec Record) error
	Publish(ctx context.Context, rec Record) error
}

// Outbox writes events to the billing_events table for asynchronous
// dispatch. Rows are appended unpublished and drained by the Dispatcher.
type Outbox struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock clock.Clock
}

func NewOutbox(db *gorm.DB, node *snowflake.Node, clk clock.Clock) *Outbox {
	return &Outbox{db: db, node: node, clock: clk}
}

// PublishTx appends rec inside tx. The row commits or rolls back with the
// state change that produced it.
func (o *Outbox) PublishTx(ctx context.Context, tx *gorm.DB, rec Record) error {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	now := o.clock.Now()
	ev := Event{
		ID:         o.node.Generate(),
		EventID:    uuid.NewString(),
		BillingID:  rec.BillingID,
		PolicyID:   rec.PolicyID,
		EventType:  rec.Type,
		Payload:    datatypes.JSON(payload),
		OccurredAt: now,
		CreatedAt:  now,
	}

	if err := tx.WithContext(ctx).Create(&ev).Error; err != nil {
		return fmt.Errorf("insert billing event: %w", err)
	}
	return nil
}

// Publish appends rec outside any caller transaction.
func (o *Outbox) Publish(ctx context.Context, rec Record) error {
	return o.PublishTx(ctx, o.db, rec)
}
