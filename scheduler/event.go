// Package scheduler provides the priority queues that order pending events.
//
// Every scheduler orders events by timestamp and then by uid, so that events
// sharing a timestamp leave the queue in the order they were created. The
// schedulers are not safe for concurrent use. The simulator engines
// serialize every access.
package scheduler

import (
	"fmt"
	"math"
)

// NoContext is the context of events that are not run on behalf of any
// particular node.
const NoContext uint32 = math.MaxUint32

// EventImpl is the action an event performs when it fires.
type EventImpl interface {
	Invoke()
}

// Func adapts a plain function to an EventImpl.
type Func func()

// Invoke calls f.
func (f Func) Invoke() {
	f()
}

// EventKey orders events. Timestamp counts steps of the time resolution.
type EventKey struct {
	Timestamp int64
	UID       uint64
	Context   uint32
}

// Less tells if k must fire before o.
func (k EventKey) Less(o EventKey) bool {
	if k.Timestamp != o.Timestamp {
		return k.Timestamp < o.Timestamp
	}
	return k.UID < o.UID
}

// Event is an entry of a scheduler.
type Event struct {
	Impl EventImpl
	Key  EventKey

	// index is owned by the scheduler holding the event.
	index int
}

// NewEvent creates an event.
func NewEvent(ts int64, uid uint64, context uint32, impl EventImpl) *Event {
	return &Event{
		Impl:  impl,
		Key:   EventKey{Timestamp: ts, UID: uid, Context: context},
		index: -1,
	}
}

func (e *Event) String() string {
	return fmt.Sprintf("event(ts=%d, uid=%d, ctx=%d)",
		e.Key.Timestamp, e.Key.UID, e.Key.Context)
}

// Scheduler is a priority queue of events.
type Scheduler interface {
	// Insert adds an event.
	Insert(ev *Event)

	// IsEmpty tells if no event is pending.
	IsEmpty() bool

	// PeekNext returns the earliest event without removing it. It returns
	// nil if the scheduler is empty.
	PeekNext() *Event

	// RemoveNext removes and returns the earliest event. It returns nil if
	// the scheduler is empty.
	RemoveNext() *Event

	// Remove deletes an arbitrary event and reports if it was present.
	Remove(ev *Event) bool

	// Len returns the number of pending events.
	Len() int
}
