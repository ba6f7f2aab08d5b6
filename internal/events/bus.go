package events

import (
	"context"
	"sync"
)

// Bus delivers published events to downstream consumers.
type Bus interface {
	Publish(ctx context.Context, ev Event) error
}

// Handler consumes one event. Handlers must tolerate redelivery; the outbox
// guarantees at-least-once, not exactly-once.
type Handler func(ctx context.Context, ev Event) error

// ChannelBus is an in-process bus. It backs the notification subscriber when
// no broker is configured and keeps tests hermetic.
type ChannelBus struct {
	mu       sync.RWMutex
	handlers []Handler
}

func NewChannelBus() *ChannelBus {
	return &ChannelBus{}
}

// Subscribe registers h for every subsequent publish.
func (b *ChannelBus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish delivers ev to all handlers synchronously. The first handler error
// aborts delivery so the dispatcher retries the whole event.
func (b *ChannelBus) Publish(ctx context.Context, ev Event) error {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}
