package events

import "lsdchain/core/types"

// Event represents a structured state change emitted by the chain.
type Event interface {
	EventType() string
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

// Renderable is implemented by events that can be broadcast to subscribers.
type Renderable interface {
	EventType() string
	Event() *types.Event
}

// Buffer collects events so they can be released once the surrounding unit of
// work has committed.
type Buffer struct {
	events []Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(evt Event) {
	if evt == nil {
		return
	}
	b.events = append(b.events, evt)
}

// Events returns the buffered events in emission order.
func (b *Buffer) Events() []Event {
	return b.events
}

// Flush forwards every buffered event to dst and resets the buffer.
func (b *Buffer) Flush(dst Emitter) {
	if dst == nil {
		dst = NoopEmitter{}
	}
	for _, evt := range b.events {
		dst.Emit(evt)
	}
	b.events = nil
}

// Reset drops the buffered events.
func (b *Buffer) Reset() {
	b.events = nil
}
