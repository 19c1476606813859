// Package bus is the in-process publish/subscribe dispatcher that ties the
// trading components together. Dispatch is synchronous: Publish returns
// after every subscriber has run. One misbehaving subscriber never blocks
// delivery to the rest.
package bus

import (
	"log/slog"
	"sync"
)

// Handler receives one event. Handlers run on the publisher's goroutine.
type Handler func(Event)

type subscriber struct {
	id int
	fn Handler
}

// Bus dispatches events to subscribers. Subscribe, Unsubscribe and Publish
// are each safe under concurrent calls.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	byType map[EventType][]subscriber
	all    []subscriber
	log    *slog.Logger
}

// New returns an empty bus.
func New(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{
		byType: make(map[EventType][]subscriber),
		log:    log,
	}
}

// Subscribe registers fn for one event type and returns a function that
// removes the subscription.
func (b *Bus) Subscribe(t EventType, fn Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.byType[t] = append(b.byType[t], subscriber{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.byType[t] = remove(b.byType[t], id)
	}
}

// SubscribeAll registers fn for every event type.
func (b *Bus) SubscribeAll(fn Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.all = append(b.all, subscriber{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.all = remove(b.all, id)
	}
}

// Publish delivers ev to every matching subscriber, in subscription order.
// A panicking handler is recovered and logged; remaining handlers still run.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	subs := make([]subscriber, 0, len(b.byType[ev.Type])+len(b.all))
	subs = append(subs, b.byType[ev.Type]...)
	subs = append(subs, b.all...)
	b.mu.RUnlock()

	for _, s := range subs {
		b.dispatch(s, ev)
	}
}

func (b *Bus) dispatch(s subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked",
				"event", string(ev.Type), "source", ev.Source, "panic", r)
		}
	}()
	s.fn(ev)
}

func remove(subs []subscriber, id int) []subscriber {
	for i, s := range subs {
		if s.id == id {
			return append(subs[:i:i], subs[i+1:]...)
		}
	}
	return subs
}
