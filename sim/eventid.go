package sim

import (
	"fmt"
	"math"

	"github.com/sarchlab/nssim/scheduler"
	"github.com/sarchlab/nssim/simtime"
)

const maxTimestamp = math.MaxInt64

// EventID is a handle on a scheduled event. It refers to an arena slot and
// the generation the slot had when the event was scheduled, so a handle
// outliving its event is detected as expired rather than touching whatever
// event reuses the slot. The zero EventID is always expired.
type EventID struct {
	owner Simulator
	slot  uint32
	gen   uint32
	ts    int64
	uid   uint64
	ctx   uint32
}

// Cancel prevents the event from firing.
func (id EventID) Cancel() {
	if id.owner != nil {
		id.owner.Cancel(id)
	}
}

// Remove cancels the event and removes it from the scheduler.
func (id EventID) Remove() {
	if id.owner != nil {
		id.owner.Remove(id)
	}
}

// IsExpired tells if the event has fired or was cancelled.
func (id EventID) IsExpired() bool {
	if id.owner == nil {
		return true
	}
	return id.owner.IsExpired(id)
}

// IsRunning tells if the event is still pending.
func (id EventID) IsRunning() bool {
	return !id.IsExpired()
}

// Time returns the time the event is scheduled for.
func (id EventID) Time() simtime.Time {
	return simtime.FromSteps(id.ts)
}

// Timestamp returns the scheduled time in resolution steps.
func (id EventID) Timestamp() int64 {
	return id.ts
}

// Context returns the context the event runs in.
func (id EventID) Context() uint32 {
	return id.ctx
}

// UID returns the unique id of the event.
func (id EventID) UID() uint64 {
	return id.uid
}

func (id EventID) String() string {
	return fmt.Sprintf("EventID(uid=%d, ts=%d, ctx=%d)", id.uid, id.ts, id.ctx)
}

// handle is stored in scheduler events so that the engine can find the
// arena slot of a popped event.
type handle struct {
	slot uint32
	gen  uint32
	fn   func()
}

func (h *handle) Invoke() {
	h.fn()
}

type eventSlot struct {
	gen       uint32
	live      bool
	cancelled bool
	destroy   bool
	ev        *scheduler.Event
}

// eventArena stores the state behind EventIDs. Firing, cancelling-and-
// removing or discarding an event releases its slot and bumps the
// generation.
type eventArena struct {
	slots []eventSlot
	free  []uint32
}

func (a *eventArena) alloc(ts int64, uid uint64, ctx uint32, fn func()) *scheduler.Event {
	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		idx = uint32(len(a.slots))
		a.slots = append(a.slots, eventSlot{})
	}

	s := &a.slots[idx]
	s.live = true
	s.cancelled = false
	s.destroy = false

	h := &handle{slot: idx, gen: s.gen, fn: fn}
	s.ev = scheduler.NewEvent(ts, uid, ctx, h)

	return s.ev
}

func (a *eventArena) idOf(owner Simulator, ev *scheduler.Event) EventID {
	h := ev.Impl.(*handle)
	return EventID{
		owner: owner,
		slot:  h.slot,
		gen:   h.gen,
		ts:    ev.Key.Timestamp,
		uid:   ev.Key.UID,
		ctx:   ev.Key.Context,
	}
}

func (a *eventArena) lookup(slot, gen uint32) *eventSlot {
	if int(slot) >= len(a.slots) {
		return nil
	}

	s := &a.slots[slot]
	if !s.live || s.gen != gen {
		return nil
	}

	return s
}

func (a *eventArena) lookupID(id EventID) *eventSlot {
	return a.lookup(id.slot, id.gen)
}

func (a *eventArena) lookupEvent(ev *scheduler.Event) *eventSlot {
	h := ev.Impl.(*handle)
	return a.lookup(h.slot, h.gen)
}

func (a *eventArena) release(s *eventSlot, slot uint32) {
	s.gen++
	s.live = false
	s.cancelled = false
	s.destroy = false
	s.ev = nil
	a.free = append(a.free, slot)
}

func (a *eventArena) releaseEvent(ev *scheduler.Event) {
	h := ev.Impl.(*handle)
	if s := a.lookup(h.slot, h.gen); s != nil {
		a.release(s, h.slot)
	}
}

func (a *eventArena) isExpired(id EventID) bool {
	s := a.lookupID(id)
	return s == nil || s.cancelled
}

func (a *eventArena) reset() {
	for i := range a.slots {
		if a.slots[i].live {
			a.release(&a.slots[i], uint32(i))
		}
	}
}
