package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// AMQPBus publishes events to a durable topic exchange. Routing keys follow
// billing.<event_type> so consumers can bind per event family.
type AMQPBus struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
	log      *zap.Logger
}

// NewAMQPBus dials the broker and declares the exchange. The dial is bounded
// so startup never hangs on an unreachable broker.
func NewAMQPBus(amqpURL, exchange string, log *zap.Logger) (*AMQPBus, error) {
	conn, err := amqp091.DialConfig(amqpURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	return &AMQPBus{conn: conn, channel: ch, exchange: exchange, log: log.Named("amqp")}, nil
}

// Publish sends ev as JSON. A failed publish reopens the channel once before
// giving up; the dispatcher leaves the row unpublished on error.
func (b *AMQPBus) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.EventID, err)
	}

	msg := amqp091.Publishing{
		ContentType: "application/json",
		MessageId:   ev.EventID,
		Timestamp:   ev.OccurredAt,
		Type:        ev.EventType,
		Body:        body,
	}

	key := routingKey(ev.EventType)
	if err := b.channel.PublishWithContext(ctx, b.exchange, key, false, false, msg); err != nil {
		b.log.Warn("publish failed, reopening channel",
			zap.String("routing_key", key),
			zap.Error(err),
		)
		ch, chErr := b.conn.Channel()
		if chErr != nil {
			return fmt.Errorf("reopen channel: %w", chErr)
		}
		b.channel = ch
		if err := b.channel.PublishWithContext(ctx, b.exchange, key, false, false, msg); err != nil {
			return fmt.Errorf("publish %s: %w", key, err)
		}
	}
	return nil
}

// Close releases the channel and connection.
func (b *AMQPBus) Close() {
	if b.channel != nil {
		b.channel.Close()
	}
	if b.conn != nil {
		b.conn.Close()
	}
}

func routingKey(eventType string) string {
	return "billing." + strings.ToLower(eventType)
}
