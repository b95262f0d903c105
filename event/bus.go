package event

import (
	"context"
	"log"
	"sync"
)

// typeAny is the reserved subscription slot for catch-all handlers.
const typeAny EventType = "*"

// EventHandler consumes one published event.
type EventHandler func(ctx context.Context, event Event) error

// EventBus is the publish/subscribe surface the campaign runner emits on.
type EventBus interface {
	// Publish delivers an event to all matching handlers.
	Publish(ctx context.Context, event Event) error
	// Subscribe registers a handler for one event type.
	Subscribe(eventType EventType, handler EventHandler) error
	// SubscribeAll registers a handler for every event.
	SubscribeAll(handler EventHandler) error
}

// Logger is the minimal logging interface the bus needs.
type Logger interface {
	Printf(format string, v ...any)
}

// stdLogger logs through the standard library.
type stdLogger struct{}

func (stdLogger) Printf(format string, v ...any) {
	log.Printf(format, v...)
}

// MemoryEventBus fans events out to subscribed handlers in process.
// Handlers run on the publishing goroutine; a failing handler shows up in
// the logs, never as an error returned to the campaign.
type MemoryEventBus struct {
	mu     sync.RWMutex
	subs   map[EventType][]EventHandler
	logger Logger
}

// MemoryEventBusOption configures a MemoryEventBus.
type MemoryEventBusOption func(*MemoryEventBus)

// WithLogger routes handler failures to a custom logger.
func WithLogger(logger Logger) MemoryEventBusOption {
	return func(b *MemoryEventBus) {
		b.logger = logger
	}
}

// NewMemoryEventBus creates an empty bus logging through the standard
// library.
func NewMemoryEventBus(opts ...MemoryEventBusOption) *MemoryEventBus {
	bus := &MemoryEventBus{
		subs:   make(map[EventType][]EventHandler),
		logger: stdLogger{},
	}
	for _, opt := range opts {
		opt(bus)
	}
	return bus
}

// Subscribe registers a handler for one event type. Handlers for a type run
// in registration order.
func (b *MemoryEventBus) Subscribe(eventType EventType, handler EventHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[eventType] = append(b.subs[eventType], handler)
	return nil
}

// SubscribeAll registers a handler for every event. Catch-all handlers run
// after the type-specific ones.
func (b *MemoryEventBus) SubscribeAll(handler EventHandler) error {
	return b.Subscribe(typeAny, handler)
}

// Publish delivers the event to its type's handlers, then to the catch-all
// handlers. The subscriber list is snapshotted up front, so handlers may
// subscribe from inside a delivery.
func (b *MemoryEventBus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	batch := make([]EventHandler, 0, len(b.subs[event.Type])+len(b.subs[typeAny]))
	batch = append(batch, b.subs[event.Type]...)
	batch = append(batch, b.subs[typeAny]...)
	b.mu.RUnlock()

	for _, handler := range batch {
		b.deliver(ctx, handler, event)
	}
	return nil
}

// deliver runs one handler, absorbing its error or panic. Observers must
// never stall the campaign.
func (b *MemoryEventBus) deliver(ctx context.Context, handler EventHandler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Printf("event %s: handler panicked: %v", event.Type, r)
		}
	}()

	if err := handler(ctx, event); err != nil {
		b.logger.Printf("event %s (trial %s): handler failed: %v", event.Type, event.TrialID, err)
	}
}
