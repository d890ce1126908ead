// Package sim provides the discrete-event simulator engines.
//
// A simulator owns the current virtual time and a scheduler of pending
// events. Run pops the earliest event, advances the clock to its timestamp
// and invokes it, one event at a time. Events sharing a timestamp fire in the
// order they were scheduled.
//
// Two engines are available. DefaultSimulator runs events as fast as
// possible. RealtimeSimulator paces virtual time against the wall clock.
// Both accept ScheduleWithContext calls from any goroutine while the main
// loop is running.
package sim

import (
	"errors"
	"fmt"

	"github.com/sarchlab/nssim/hooking"
	"github.com/sarchlab/nssim/scheduler"
	"github.com/sarchlab/nssim/simtime"
)

// NoContext is the context of events not scheduled on behalf of a node.
const NoContext = scheduler.NoContext

// Usage errors. They are raised as panics that wrap one of these values.
var (
	ErrNegativeDelay = errors.New("sim: cannot schedule an event in the past")
	ErrDestroyed     = errors.New("sim: simulator has been destroyed")
	ErrHardLimit     = errors.New("sim: realtime engine exceeded its hard limit")
	ErrPastEvent     = errors.New("sim: event is in the past")
)

// State is the lifecycle stage of a simulator.
type State int

// Lifecycle stages.
const (
	StateUninitialized State = iota
	StateRunning
	StateStopped
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateDestroyed:
		return "destroyed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// HookPosBeforeEvent is the site right before an event is invoked. The hook
// item is the *scheduler.Event.
var HookPosBeforeEvent = &hooking.HookPos{Name: "BeforeEvent"}

// HookPosAfterEvent is the site right after an event is invoked.
var HookPosAfterEvent = &hooking.HookPos{Name: "AfterEvent"}

// HookPosSimulationEnd is the site reached when Run returns. The hook item is
// the current time.
var HookPosSimulationEnd = &hooking.HookPos{Name: "SimulationEnd"}

// Simulator is a discrete-event engine.
type Simulator interface {
	hooking.Hookable

	// Schedule runs fn after delay, in the context of the current event.
	// A negative delay panics with ErrNegativeDelay.
	Schedule(delay simtime.Time, fn func()) EventID

	// ScheduleNow runs fn at the current time, after the events already
	// scheduled for it.
	ScheduleNow(fn func()) EventID

	// ScheduleWithContext runs fn after delay on behalf of context. It is
	// safe to call from any goroutine. The delay is counted from the
	// simulator's current time when the event is taken in.
	ScheduleWithContext(context uint32, delay simtime.Time, fn func())

	// ScheduleDestroy runs fn when the simulator is destroyed. Destroy
	// events run in the order they were registered.
	ScheduleDestroy(fn func()) EventID

	// Cancel prevents an event from firing. Cancelling an expired event is a
	// no-op.
	Cancel(id EventID)

	// Remove cancels an event and drops it from the scheduler at once.
	Remove(id EventID)

	// IsExpired tells if an event has fired or was cancelled.
	IsExpired(id EventID) bool

	// GetDelayLeft returns the time until the event fires, or zero if it
	// has expired.
	GetDelayLeft(id EventID) simtime.Time

	// Now returns the current virtual time.
	Now() simtime.Time

	// Run processes events until none is left or Stop is called.
	Run()

	// Stop ends Run after the current event.
	Stop()

	// StopAt ends Run after delay.
	StopAt(delay simtime.Time) EventID

	// Destroy fires the destroy events and discards pending events. A
	// destroyed simulator cannot be used again.
	Destroy()

	// IsFinished tells if Run has nothing left to do.
	IsFinished() bool

	// GetContext returns the context of the running event.
	GetContext() uint32

	// GetEventCount returns the number of events invoked so far.
	GetEventCount() uint64

	// GetMaximumSimulationTime returns the latest time an event can have.
	GetMaximumSimulationTime() simtime.Time

	// SetScheduler replaces the scheduler, moving all pending events into
	// the new one.
	SetScheduler(s scheduler.Scheduler)

	// State returns the lifecycle stage.
	State() State

	// Pause blocks the main loop before its next event until Continue is
	// called.
	Pause()

	// Continue resumes a paused main loop.
	Continue()
}

func mustNotBeNegative(delay simtime.Time) {
	if delay.IsStrictlyNegative() {
		panic(fmt.Errorf("%w: delay %s", ErrNegativeDelay, delay))
	}
}

// addSteps adds a delay to a timestamp, saturating at the largest one.
func addSteps(ts int64, delay simtime.Time) int64 {
	d := delay.GetTimeStep()
	if d > maxTimestamp-ts {
		return maxTimestamp
	}
	return ts + d
}
