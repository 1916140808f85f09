package exporter

import (
	"context"
	"sync"

	"asyncops/internal/operations"
)

// DefaultHistoryCapacity is used when a non-positive capacity is given
const DefaultHistoryCapacity = 1000

// History is a fixed-size ring of terminal operation snapshots
type History struct {
	mu      sync.RWMutex
	entries []operations.Operation
	head    int
	size    int

	bus        *operations.EventBus
	listenerID operations.ListenerID
}

// NewHistory creates a history holding at most capacity entries
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &History{entries: make([]operations.Operation, capacity)}
}

// Attach records every completion published on bus
func (h *History) Attach(bus *operations.EventBus) {
	h.Stop()
	id := bus.OnComplete(func(_ context.Context, e operations.OperationComplete) {
		h.Record(e.Operation)
	})

	h.mu.Lock()
	h.bus, h.listenerID = bus, id
	h.mu.Unlock()
}

// Stop unsubscribes from the bus
func (h *History) Stop() {
	h.mu.Lock()
	bus, id := h.bus, h.listenerID
	h.bus = nil
	h.mu.Unlock()

	if bus != nil {
		bus.Off(operations.EventOperationComplete, id)
	}
}

// Record stores op, evicting the oldest entry when full
func (h *History) Record(op operations.Operation) {
	h.mu.Lock()
	defer h.mu.Unlock()

	capacity := len(h.entries)
	h.entries[(h.head+h.size)%capacity] = op
	if h.size < capacity {
		h.size++
	} else {
		h.head = (h.head + 1) % capacity
	}
}

// Snapshot returns the retained entries, oldest first
func (h *History) Snapshot() []operations.Operation {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]operations.Operation, h.size)
	for i := range h.size {
		out[i] = h.entries[(h.head+i)%len(h.entries)]
	}
	return out
}

// Len returns the number of retained entries
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.size
}

// Capacity returns the maximum number of retained entries
func (h *History) Capacity() int {
	return len(h.entries)
}
