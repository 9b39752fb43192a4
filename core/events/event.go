package events

import (
	"sync"

	"nengajo/core/types"
)

// Event represents a structured state change emitted by the drop.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// HeightEmitter is implemented by subscribers that record the ledger height of
// the transaction that produced each event.
type HeightEmitter interface {
	EmitAt(height uint64, evt Event)
}

// EmitAt delivers evt to emitter, passing height when the emitter accepts it.
func EmitAt(emitter Emitter, height uint64, evt Event) {
	if emitter == nil {
		return
	}
	if h, ok := emitter.(HeightEmitter); ok {
		h.EmitAt(height, evt)
		return
	}
	emitter.Emit(evt)
}

// Flattener is implemented by events that can render themselves as the
// generic key/value payload.
type Flattener interface {
	Event() *types.Event
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Buffer collects events emitted while a transaction executes. The node drains
// it after a successful commit and resets it after a rejection, so subscribers
// never observe events from a rolled back call.
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

// Drain returns the buffered events and empties the buffer.
func (b *Buffer) Drain() []Event {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.events
	b.events = nil
	return out
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

// Fanout forwards each event to every non-nil emitter in order.
type Fanout []Emitter

// Emit implements the Emitter interface.
func (f Fanout) Emit(evt Event) {
	for _, emitter := range f {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}

// EmitAt implements HeightEmitter, forwarding the height to members that
// accept it.
func (f Fanout) EmitAt(height uint64, evt Event) {
	for _, emitter := range f {
		EmitAt(emitter, height, evt)
	}
}

// Flatten renders evt as the generic payload. Events without a Flattener
// implementation keep only their type.
func Flatten(evt Event) *types.Event {
	if evt == nil {
		return nil
	}
	if f, ok := evt.(Flattener); ok {
		if out := f.Event(); out != nil {
			return out
		}
	}
	return &types.Event{Type: evt.EventType(), Attributes: map[string]string{}}
}
