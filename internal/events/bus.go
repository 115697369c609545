package events

import (
	"sync"

	"github.com/rs/zerolog"
)

// Handler receives published events. Handlers run on the publisher's
// goroutine and must not block; slow consumers buffer on their own channel
// and drop when full.
type Handler func(*Event)

// Bus is the in-process publish/subscribe hub. Subscriptions are keyed by
// event type; a handler registered for AnyEvent sees everything.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[EventType]map[int]Handler
	log      zerolog.Logger
}

// AnyEvent subscribes a handler to every event type.
const AnyEvent EventType = "*"

// NewBus creates an empty bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[EventType]map[int]Handler),
		log:      log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers a handler for one event type and returns a function
// that removes the subscription. Unsubscribing twice is harmless.
func (b *Bus) Subscribe(t EventType, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	if b.handlers[t] == nil {
		b.handlers[t] = make(map[int]Handler)
	}
	b.handlers[t][id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if m := b.handlers[t]; m != nil {
			delete(m, id)
			if len(m) == 0 {
				delete(b.handlers, t)
			}
		}
	}
}

// Publish delivers an event to every matching subscriber synchronously. A
// panicking handler is logged and skipped; it never takes down the
// publisher.
func (b *Bus) Publish(e *Event) {
	if e == nil {
		return
	}
	b.mu.RLock()
	targets := make([]Handler, 0, 4)
	for _, h := range b.handlers[e.Type] {
		targets = append(targets, h)
	}
	for _, h := range b.handlers[AnyEvent] {
		targets = append(targets, h)
	}
	b.mu.RUnlock()

	for _, h := range targets {
		b.deliver(e, h)
	}
}

// Emit builds an envelope from a typed payload and publishes it.
func (b *Bus) Emit(module string, data EventData) {
	b.Publish(NewEvent(module, data))
}

func (b *Bus) deliver(e *Event, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().
				Str("event_type", string(e.Type)).
				Interface("panic", r).
				Msg("Event handler panicked")
		}
	}()
	h(e)
}

// Subscribers returns how many handlers are registered for a type. Intended
// for tests and the status endpoint.
func (b *Bus) Subscribers(t EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[t])
}
