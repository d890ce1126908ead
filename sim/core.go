package sim

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/nssim/hooking"
	"github.com/sarchlab/nssim/scheduler"
	"github.com/sarchlab/nssim/simtime"
)

// core holds the bookkeeping shared by both engines. Its methods do not
// lock; the engines decide which goroutines may call them.
type core struct {
	*hooking.HookableBase

	owner Simulator
	sched scheduler.Scheduler
	arena eventArena

	now            atomic.Int64
	nextUID        atomic.Uint64
	currentUID     uint64
	currentContext uint32
	eventCount     atomic.Uint64
	stop           atomic.Bool
	state          atomic.Int32

	destroyEvents []EventID

	isPaused     bool
	isPausedLock sync.Mutex
	pauseLock    sync.Mutex
}

func (c *core) init(owner Simulator, sched scheduler.Scheduler) {
	c.HookableBase = hooking.NewHookableBase()
	c.owner = owner
	c.sched = sched
	c.currentContext = NoContext
}

func (c *core) getState() State {
	return State(c.state.Load())
}

func (c *core) setState(s State) {
	c.state.Store(int32(s))
}

func (c *core) mustNotBeDestroyed() {
	if c.getState() == StateDestroyed {
		panic(ErrDestroyed)
	}
}

func (c *core) newUID() uint64 {
	return c.nextUID.Add(1)
}

func (c *core) insert(ts int64, uid uint64, ctx uint32, fn func()) EventID {
	ev := c.arena.alloc(ts, uid, ctx, fn)
	c.sched.Insert(ev)

	return c.arena.idOf(c.owner, ev)
}

func (c *core) schedule(delay simtime.Time, fn func()) EventID {
	c.mustNotBeDestroyed()
	mustNotBeNegative(delay)

	ts := addSteps(c.now.Load(), delay)

	return c.insert(ts, c.newUID(), c.currentContext, fn)
}

func (c *core) scheduleDestroy(fn func()) EventID {
	c.mustNotBeDestroyed()

	ev := c.arena.alloc(maxTimestamp, c.newUID(), c.currentContext, fn)
	c.arena.lookupEvent(ev).destroy = true

	id := c.arena.idOf(c.owner, ev)
	c.destroyEvents = append(c.destroyEvents, id)

	return id
}

func (c *core) cancel(id EventID) {
	if s := c.arena.lookupID(id); s != nil {
		s.cancelled = true
	}
}

func (c *core) remove(id EventID) {
	s := c.arena.lookupID(id)
	if s == nil {
		return
	}

	if s.destroy {
		for i, d := range c.destroyEvents {
			if d.slot == id.slot && d.gen == id.gen {
				c.destroyEvents = append(c.destroyEvents[:i], c.destroyEvents[i+1:]...)
				break
			}
		}
	} else {
		c.sched.Remove(s.ev)
	}

	c.arena.release(s, id.slot)
}

func (c *core) isExpired(id EventID) bool {
	return c.arena.isExpired(id)
}

func (c *core) delayLeft(id EventID) simtime.Time {
	if c.arena.isExpired(id) {
		return simtime.Zero()
	}
	return simtime.FromSteps(id.ts - c.now.Load())
}

// popNext removes the earliest live event. Cancelled events are dropped on
// the way.
func (c *core) popNext() *scheduler.Event {
	for !c.sched.IsEmpty() {
		ev := c.sched.RemoveNext()

		s := c.arena.lookupEvent(ev)
		if s == nil {
			continue
		}

		if s.cancelled {
			c.arena.releaseEvent(ev)
			continue
		}

		return ev
	}

	return nil
}

// peekNext returns the earliest live event without removing it.
func (c *core) peekNext() *scheduler.Event {
	for !c.sched.IsEmpty() {
		ev := c.sched.PeekNext()

		s := c.arena.lookupEvent(ev)
		if s != nil && !s.cancelled {
			return ev
		}

		c.sched.RemoveNext()
		c.arena.releaseEvent(ev)
	}

	return nil
}

// advance moves the clock to the event and releases its slot. It returns
// the function to invoke.
func (c *core) advance(ev *scheduler.Event) func() {
	now := c.now.Load()
	if ev.Key.Timestamp < now {
		panic(fmt.Errorf("%w: %s, now %d", ErrPastEvent, ev, now))
	}

	c.now.Store(ev.Key.Timestamp)
	c.currentUID = ev.Key.UID
	c.currentContext = ev.Key.Context
	c.eventCount.Add(1)

	fn := ev.Impl.(*handle).fn
	c.arena.releaseEvent(ev)

	return fn
}

// fire invokes an event between the before and after hooks.
func (c *core) fire(ev *scheduler.Event, fn func()) {
	if logrus.IsLevelEnabled(logrus.TraceLevel) {
		logrus.WithFields(logrus.Fields{
			"uid":     ev.Key.UID,
			"context": ev.Key.Context,
			"ts":      ev.Key.Timestamp,
		}).Trace("sim: invoke event")
	}

	ctx := hooking.HookCtx{
		Domain: c.owner,
		Pos:    HookPosBeforeEvent,
		Item:   ev,
	}
	c.InvokeHook(ctx)

	fn()

	ctx.Pos = HookPosAfterEvent
	c.InvokeHook(ctx)
}

func (c *core) endOfRun() {
	c.setState(StateStopped)

	c.InvokeHook(hooking.HookCtx{
		Domain: c.owner,
		Pos:    HookPosSimulationEnd,
		Item:   simtime.FromSteps(c.now.Load()),
	})

	logrus.WithFields(logrus.Fields{
		"now":    simtime.FromSteps(c.now.Load()),
		"events": c.eventCount.Load(),
	}).Info("sim: run ended")
}

// nextDestroyEvent pops the first destroy event that is still live.
func (c *core) nextDestroyEvent() func() {
	for len(c.destroyEvents) > 0 {
		id := c.destroyEvents[0]
		c.destroyEvents = c.destroyEvents[1:]

		s := c.arena.lookupID(id)
		if s == nil || s.cancelled {
			continue
		}

		fn := s.ev.Impl.(*handle).fn
		c.arena.release(s, id.slot)

		return fn
	}

	return nil
}

func (c *core) teardown() {
	pending := c.sched.Len()

	c.arena.reset()
	c.sched = nil
	c.destroyEvents = nil
	c.setState(StateDestroyed)

	logrus.WithField("discarded", pending).Info("sim: destroyed")
}

func (c *core) setScheduler(s scheduler.Scheduler) {
	old := c.sched
	for !old.IsEmpty() {
		s.Insert(old.RemoveNext())
	}
	c.sched = s

	logrus.WithField("pending", s.Len()).Info("sim: scheduler replaced")
}

// Pause prevents the engine from dispatching more events until Continue is
// called.
func (c *core) Pause() {
	c.isPausedLock.Lock()
	defer c.isPausedLock.Unlock()

	if c.isPaused {
		return
	}

	c.pauseLock.Lock()
	c.isPaused = true
}

// Continue resumes event processing after a Pause.
func (c *core) Continue() {
	c.isPausedLock.Lock()
	defer c.isPausedLock.Unlock()

	if !c.isPaused {
		return
	}

	c.pauseLock.Unlock()
	c.isPaused = false
}

// Now returns the current virtual time.
func (c *core) Now() simtime.Time {
	return simtime.FromSteps(c.now.Load())
}

// GetEventCount returns the number of events invoked so far.
func (c *core) GetEventCount() uint64 {
	return c.eventCount.Load()
}

// GetMaximumSimulationTime returns the latest time an event can have.
func (c *core) GetMaximumSimulationTime() simtime.Time {
	return simtime.FromSteps(maxTimestamp)
}

// State returns the lifecycle stage.
func (c *core) State() State {
	return c.getState()
}
