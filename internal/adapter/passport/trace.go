// Package passport implements a per-channel diagnostic trace: an
// append-only ordered list of (state-name, timestamp) pairs, looked up
// by first occurrence.
package passport

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one recorded lifecycle transition.
type Event struct {
	State string
	At    time.Time
}

// Trace is an append-only, concurrency-safe event log attached to one
// channel (an OriginConnection or an inbound request's state). Multiple
// goroutines may append concurrently across the channel's lifetime (the
// connect-completion callback and the acquiring goroutine, for
// instance), so Trace guards its slice with a mutex rather than
// assuming single-threaded access.
type Trace struct {
	// ID uniquely identifies the channel this trace belongs to, for
	// correlating log lines across the lifetime of one connection or
	// request. Immutable after New.
	ID string

	mu     sync.Mutex
	events []Event
}

// New returns an empty trace with a freshly generated channel ID.
func New() *Trace {
	return &Trace{ID: uuid.NewString()}
}

// Append records state at the current time.
func (t *Trace) Append(state string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, Event{State: state, At: time.Now()})
}

// First returns the timestamp of the first occurrence of state, and
// whether it was ever recorded.
func (t *Trace) First(state string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.events {
		if e.State == state {
			return e.At, true
		}
	}
	return time.Time{}, false
}

// Has reports whether state was ever recorded.
func (t *Trace) Has(state string) bool {
	_, ok := t.First(state)
	return ok
}

// Events returns a snapshot copy of the recorded trace, in append order.
func (t *Trace) Events() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Event, len(t.events))
	copy(out, t.events)
	return out
}
