package operations

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Event is a typed payload published on the bus.
type Event interface {
	EventName() string
	OperationID() string
}

// OperationUpdate is published after a patch was merged into an operation.
type OperationUpdate struct {
	ID        string    `json:"operationId"`
	Operation Operation `json:"operation"`
	Patch     Patch     `json:"updates"`
}

func (OperationUpdate) EventName() string     { return EventOperationUpdate }
func (e OperationUpdate) OperationID() string { return e.ID }

// OperationComplete is published once when an operation becomes terminal.
type OperationComplete struct {
	ID        string    `json:"operationId"`
	Operation Operation `json:"operation"`
	Result    Result    `json:"result"`
}

func (OperationComplete) EventName() string     { return EventOperationComplete }
func (e OperationComplete) OperationID() string { return e.ID }

// Listener receives events for the name it was registered under.
type Listener func(ctx context.Context, event Event)

// ListenerID identifies one registration; registering the same function
// twice yields two ids and two invocations.
type ListenerID uint64

type listenerEntry struct {
	id ListenerID
	fn Listener
}

// EventBus is a synchronous named-event dispatcher.
// Listeners run on the emitting goroutine in registration order.
type EventBus struct {
	mu        sync.RWMutex
	listeners map[string][]listenerEntry
	nextID    atomic.Uint64
	logger    *slog.Logger
	metrics   *Instrumentation
}

// NewEventBus creates an empty bus
func NewEventBus(logger *slog.Logger) *EventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBus{
		listeners: make(map[string][]listenerEntry),
		logger:    logger,
	}
}

// On registers fn for the named event
func (b *EventBus) On(name string, fn Listener) ListenerID {
	id := ListenerID(b.nextID.Add(1))
	b.mu.Lock()
	b.listeners[name] = append(b.listeners[name], listenerEntry{id: id, fn: fn})
	b.mu.Unlock()
	return id
}

// Off removes the registration with the given id. It reports whether one was removed.
func (b *EventBus) Off(name string, id ListenerID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.listeners[name]
	for i, e := range entries {
		if e.id != id {
			continue
		}
		// copy so that in-flight Emit snapshots keep their view
		next := make([]listenerEntry, 0, len(entries)-1)
		next = append(next, entries[:i]...)
		next = append(next, entries[i+1:]...)
		if len(next) == 0 {
			delete(b.listeners, name)
		} else {
			b.listeners[name] = next
		}
		return true
	}
	return false
}

// OnUpdate registers a typed listener for OperationUpdate events
func (b *EventBus) OnUpdate(fn func(ctx context.Context, e OperationUpdate)) ListenerID {
	return b.On(EventOperationUpdate, func(ctx context.Context, ev Event) {
		if u, ok := ev.(OperationUpdate); ok {
			fn(ctx, u)
		}
	})
}

// OnComplete registers a typed listener for OperationComplete events
func (b *EventBus) OnComplete(fn func(ctx context.Context, e OperationComplete)) ListenerID {
	return b.On(EventOperationComplete, func(ctx context.Context, ev Event) {
		if c, ok := ev.(OperationComplete); ok {
			fn(ctx, c)
		}
	})
}

// ListenerCount returns the number of listeners registered for name
func (b *EventBus) ListenerCount(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[name])
}

// Emit invokes every listener registered for the event's name.
// Listeners added during Emit are not invoked in the same pass.
func (b *EventBus) Emit(ctx context.Context, event Event) {
	name := event.EventName()

	b.mu.RLock()
	entries := b.listeners[name]
	b.mu.RUnlock()

	for _, e := range entries {
		b.invoke(ctx, name, e, event)
	}
}

func (b *EventBus) invoke(ctx context.Context, name string, e listenerEntry, event Event) {
	defer func() {
		if r := recover(); r != nil {
			err := NewListenerError(name, r)
			b.logger.ErrorContext(ctx, "event listener panicked",
				slog.String("event", name),
				slog.String("operation_id", event.OperationID()),
				slog.Uint64("listener_id", uint64(e.id)),
				slog.String("error", err.Error()))
			b.metrics.recordListenerPanic(ctx, name)
		}
	}()
	e.fn(ctx, event)
}
