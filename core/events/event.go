package events

import (
	"sync"

	"nhbvault/core/types"
)

// Event is a committed vault state change.
type Event interface {
	EventType() string
	Event() *types.Event
}

// Emitter receives events after the engine commits. Implementations must not
// block the caller.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards everything.
type NoopEmitter struct{}

func (NoopEmitter) Emit(Event) {}

// Fanout delivers every event to each wrapped emitter in order. Nil entries are
// skipped.
type Fanout []Emitter

func (f Fanout) Emit(evt Event) {
	for _, emitter := range f {
		if emitter == nil {
			continue
		}
		emitter.Emit(evt)
	}
}

// Recorder buffers emitted events in memory. Tests use it to assert on the
// exact event sequence.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Reset drops all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
