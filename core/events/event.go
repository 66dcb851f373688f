package events

import (
	"sync"

	"stakevault/core/types"
)

// Event represents a structured state change emitted by the chain.
type Event interface {
	EventType() string
}

// Broadcastable is implemented by events that can render themselves as an
// attribute record for indexers and receipts.
type Broadcastable interface {
	EventType() string
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Record converts an event into its attribute form. Events that do not
// implement Broadcastable produce a record carrying only the type.
func Record(evt Event) *types.Event {
	if evt == nil {
		return nil
	}
	if b, ok := evt.(Broadcastable); ok {
		if rec := b.Event(); rec != nil {
			return rec
		}
	}
	return &types.Event{Type: evt.EventType(), Attributes: map[string]string{}}
}

// Buffer collects events until the surrounding operation decides whether they
// are published (Flush) or thrown away (Reset).
type Buffer struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	b.mu.Lock()
	b.events = append(b.events, evt)
	b.mu.Unlock()
}

// Events returns a copy of the buffered events in emission order.
func (b *Buffer) Events() []Event {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Event(nil), b.events...)
}

// Len returns the number of buffered events.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Flush forwards all buffered events to the emitter and clears the buffer.
func (b *Buffer) Flush(to Emitter) []Event {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	pending := b.events
	b.events = nil
	b.mu.Unlock()
	if to != nil {
		for _, evt := range pending {
			to.Emit(evt)
		}
	}
	return pending
}

// Reset drops every buffered event.
func (b *Buffer) Reset() {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.events = nil
	b.mu.Unlock()
}

// Fanout delivers each event to every listed emitter in order.
type Fanout []Emitter

// Emit implements the Emitter interface.
func (f Fanout) Emit(evt Event) {
	for _, e := range f {
		if e != nil {
			e.Emit(evt)
		}
	}
}
