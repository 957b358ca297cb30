package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"market-chat/domain/event"
	"sync"
	"time"
)

// Listener receives one event. A returned error or a panic is logged by the
// bus and never reaches the publisher.
type Listener func(ctx context.Context, evt event.Event) error

type listenerEntry struct {
	id       uint64
	listener Listener
}

// EventBus distributes domain notifications to in-process listeners.
// One instance is built at process start and handed to every component
// that publishes or subscribes.
//
// Publish is synchronous: listeners run on the caller's goroutine, in
// registration order, and must not block for long.
type EventBus struct {
	log   *slog.Logger
	clock func() time.Time

	mu        sync.RWMutex
	nextID    uint64
	listeners map[event.Name][]listenerEntry
}

func NewEventBus(log *slog.Logger) *EventBus {
	return &EventBus{
		log:       log,
		clock:     time.Now,
		listeners: make(map[event.Name][]listenerEntry),
	}
}

// Registration removes exactly one listener from the bus.
type Registration struct {
	bus  *EventBus
	name event.Name
	id   uint64
	once sync.Once
}

// Unsubscribe is idempotent.
func (r *Registration) Unsubscribe() {
	r.once.Do(func() {
		r.bus.remove(r.name, r.id)
	})
}

// Subscribe registers listener for name. Registrations are independent, the
// same function can be registered several times.
func (b *EventBus) Subscribe(name event.Name, listener Listener) *Registration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.listeners[name] = append(b.listeners[name], listenerEntry{id: b.nextID, listener: listener})
	return &Registration{bus: b, name: name, id: b.nextID}
}

// SubscribeHandler plugs a Handler in as a listener.
func (b *EventBus) SubscribeHandler(name event.Name, handler event.Handler) *Registration {
	return b.Subscribe(name, func(_ context.Context, evt event.Event) error {
		handler.Handle(evt)
		return nil
	})
}

// Publish invokes the listeners registered for name when the call starts.
// Listeners may subscribe or unsubscribe from inside a callback.
func (b *EventBus) Publish(ctx context.Context, name event.Name, payload any) {
	b.mu.RLock()
	snapshot := make([]listenerEntry, len(b.listeners[name]))
	copy(snapshot, b.listeners[name])
	b.mu.RUnlock()

	evt := event.Event{Name: name, Payload: payload, At: b.clock()}
	for _, entry := range snapshot {
		b.invoke(ctx, entry, evt)
	}
}

// Count is the number of listeners registered for name.
func (b *EventBus) Count(name event.Name) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[name])
}

func (b *EventBus) invoke(ctx context.Context, entry listenerEntry, evt event.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event listener panicked", "event", evt.Name, "listener_id", entry.id, "panic", fmt.Sprint(r))
		}
	}()
	if err := entry.listener(ctx, evt); err != nil {
		b.log.Error("event listener failed", "event", evt.Name, "listener_id", entry.id, "error", err)
	}
}

// remove drops the entry and leaves no empty slice behind.
func (b *EventBus) remove(name event.Name, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.listeners[name]
	for i, entry := range entries {
		if entry.id != id {
			continue
		}
		remaining := make([]listenerEntry, 0, len(entries)-1)
		remaining = append(remaining, entries[:i]...)
		remaining = append(remaining, entries[i+1:]...)
		if len(remaining) == 0 {
			delete(b.listeners, name)
		} else {
			b.listeners[name] = remaining
		}
		return
	}
}
