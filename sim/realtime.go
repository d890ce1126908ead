package sim

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/nssim/scheduler"
	"github.com/sarchlab/nssim/simtime"
)

// SyncMode decides what the realtime engine does when it falls behind the
// wall clock by more than its hard limit.
type SyncMode int

// Synchronization modes.
const (
	// SyncBestEffort keeps running late events and logs a warning once.
	SyncBestEffort SyncMode = iota
	// SyncHardLimit panics with ErrHardLimit.
	SyncHardLimit
)

// DefaultHardLimit is the lag tolerated before the sync mode applies.
const DefaultHardLimit = 100 * time.Millisecond

// ErrUnknownSyncMode is returned when parsing an unknown sync mode.
var ErrUnknownSyncMode = errors.New("sim: unknown sync mode")

func (m SyncMode) String() string {
	switch m {
	case SyncBestEffort:
		return "best-effort"
	case SyncHardLimit:
		return "hard-limit"
	}
	return fmt.Sprintf("SyncMode(%d)", int(m))
}

// ParseSyncMode converts "best-effort" or "hard-limit" to a SyncMode.
func ParseSyncMode(s string) (SyncMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "best-effort", "besteffort", "":
		return SyncBestEffort, nil
	case "hard-limit", "hardlimit":
		return SyncHardLimit, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownSyncMode, s)
}

// RealtimeSimulator paces virtual time against the wall clock. An event
// scheduled for virtual time t fires once the wall clock has advanced by t
// since Run started. Every method is safe to call from any goroutine; a
// single mutex guards the scheduler.
//
// Unlike DefaultSimulator, Run does not return when the scheduler runs
// empty. It waits for new events until Stop is called.
type RealtimeSimulator struct {
	core

	mu   sync.Mutex
	wake chan struct{}

	synchronizer *WallClockSynchronizer
	mode         SyncMode
	hardLimit    time.Duration
	maxLag       time.Duration
	warned       bool

	singleRunLock sync.Mutex
}

// NewRealtimeSimulator creates a realtime simulator.
func NewRealtimeSimulator(
	sched scheduler.Scheduler,
	mode SyncMode,
	hardLimit time.Duration,
) *RealtimeSimulator {
	s := &RealtimeSimulator{
		wake:         make(chan struct{}, 1),
		synchronizer: NewWallClockSynchronizer(),
		mode:         mode,
		hardLimit:    hardLimit,
	}
	s.init(s, sched)

	return s
}

func (s *RealtimeSimulator) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// SyncMode returns the synchronization mode.
func (s *RealtimeSimulator) SyncMode() SyncMode {
	return s.mode
}

// HardLimit returns the tolerated lag.
func (s *RealtimeSimulator) HardLimit() time.Duration {
	return s.hardLimit
}

// MaxLag returns the largest lag observed so far.
func (s *RealtimeSimulator) MaxLag() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.maxLag
}

// Schedule runs fn after delay.
func (s *RealtimeSimulator) Schedule(delay simtime.Time, fn func()) EventID {
	s.mu.Lock()
	defer s.signal()
	defer s.mu.Unlock()

	return s.schedule(delay, fn)
}

// ScheduleNow runs fn at the current time.
func (s *RealtimeSimulator) ScheduleNow(fn func()) EventID {
	return s.Schedule(simtime.Zero(), fn)
}

// ScheduleWithContext runs fn after delay on behalf of context.
func (s *RealtimeSimulator) ScheduleWithContext(
	context uint32,
	delay simtime.Time,
	fn func(),
) {
	s.mu.Lock()
	defer s.signal()
	defer s.mu.Unlock()

	s.scheduleFrom(context, s.now.Load(), delay, fn)
}

func (s *RealtimeSimulator) scheduleFrom(
	context uint32,
	from int64,
	delay simtime.Time,
	fn func(),
) EventID {
	s.mustNotBeDestroyed()
	mustNotBeNegative(delay)

	return s.insert(addSteps(from, delay), s.newUID(), context, fn)
}

// ScheduleRealtime runs fn after delay counted from the wall clock rather
// than from the current event.
func (s *RealtimeSimulator) ScheduleRealtime(delay simtime.Time, fn func()) EventID {
	return s.ScheduleRealtimeWithContext(s.GetContext(), delay, fn)
}

// ScheduleRealtimeWithContext is ScheduleRealtime on behalf of context.
func (s *RealtimeSimulator) ScheduleRealtimeWithContext(
	context uint32,
	delay simtime.Time,
	fn func(),
) EventID {
	s.mu.Lock()
	defer s.signal()
	defer s.mu.Unlock()

	return s.scheduleFrom(context, s.realtimeStepsLocked(), delay, fn)
}

// ScheduleRealtimeNow runs fn at the current wall-clock time.
func (s *RealtimeSimulator) ScheduleRealtimeNow(fn func()) EventID {
	return s.ScheduleRealtime(simtime.Zero(), fn)
}

// ScheduleRealtimeNowWithContext runs fn at the current wall-clock time on
// behalf of context.
func (s *RealtimeSimulator) ScheduleRealtimeNowWithContext(
	context uint32,
	fn func(),
) EventID {
	return s.ScheduleRealtimeWithContext(context, simtime.Zero(), fn)
}

// RealtimeNow returns the virtual time matching the wall clock. Outside of
// Run it equals Now.
func (s *RealtimeSimulator) RealtimeNow() simtime.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return simtime.FromSteps(s.realtimeStepsLocked())
}

func (s *RealtimeSimulator) realtimeStepsLocked() int64 {
	now := s.now.Load()
	if s.getState() != StateRunning {
		return now
	}

	rt := s.synchronizer.CurrentRealtime()
	if rt < now {
		return now
	}
	return rt
}

// ScheduleDestroy registers fn to run during Destroy.
func (s *RealtimeSimulator) ScheduleDestroy(fn func()) EventID {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.scheduleDestroy(fn)
}

// Cancel prevents an event from firing.
func (s *RealtimeSimulator) Cancel(id EventID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancel(id)
}

// Remove drops an event from the scheduler.
func (s *RealtimeSimulator) Remove(id EventID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mustNotBeDestroyed()
	s.remove(id)
}

// IsExpired tells if an event has fired or was cancelled.
func (s *RealtimeSimulator) IsExpired(id EventID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.isExpired(id)
}

// GetDelayLeft returns the virtual time until the event fires.
func (s *RealtimeSimulator) GetDelayLeft(id EventID) simtime.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.delayLeft(id)
}

// Run processes events in step with the wall clock until Stop is called.
func (s *RealtimeSimulator) Run() {
	s.singleRunLock.Lock()
	defer s.singleRunLock.Unlock()

	s.mustNotBeDestroyed()

	s.mu.Lock()
	s.stop.Store(false)
	s.warned = false
	s.setState(StateRunning)
	s.synchronizer.SetOrigin(s.now.Load())
	pending := s.sched.Len()
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"now":     s.Now(),
		"pending": pending,
		"mode":    s.mode,
	}).Info("sim: realtime run started")

	for !s.stop.Load() {
		s.pauseLock.Lock()
		s.pauseLock.Unlock()

		ev, fn := s.waitNext()
		if ev == nil {
			continue
		}

		s.pauseLock.Lock()
		s.fire(ev, fn)
		s.pauseLock.Unlock()
	}

	s.endOfRun()
}

// waitNext blocks until the earliest event is due and takes it. It returns
// nil if it was woken up before that.
func (s *RealtimeSimulator) waitNext() (*scheduler.Event, func()) {
	s.mu.Lock()
	next := s.peekNext()
	s.mu.Unlock()

	if next == nil {
		if !s.stop.Load() {
			s.synchronizer.WaitIdle(s.wake)
		}
		return nil, nil
	}

	ts := next.Key.Timestamp
	if !s.synchronizer.Wait(ts, s.wake) {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop.Load() {
		return nil, nil
	}

	next = s.peekNext()
	if next == nil || next.Key.Timestamp > ts {
		return nil, nil
	}

	ev := s.popNext()
	s.checkLag(ev.Key.Timestamp)

	return ev, s.advance(ev)
}

func (s *RealtimeSimulator) checkLag(ts int64) {
	lag := s.synchronizer.Lag(ts)
	if lag > s.maxLag {
		s.maxLag = lag
	}

	if lag <= s.hardLimit {
		return
	}

	if s.mode == SyncHardLimit {
		panic(fmt.Errorf("%w: %s behind at %s",
			ErrHardLimit, lag, simtime.FromSteps(ts)))
	}

	if !s.warned {
		s.warned = true
		logrus.WithFields(logrus.Fields{
			"lag":   lag,
			"limit": s.hardLimit,
			"time":  simtime.FromSteps(ts),
		}).Warn("sim: realtime engine is falling behind")
	}
}

// Stop ends Run after the current event.
func (s *RealtimeSimulator) Stop() {
	s.stop.Store(true)
	s.signal()
}

// StopAt ends Run after delay.
func (s *RealtimeSimulator) StopAt(delay simtime.Time) EventID {
	return s.Schedule(delay, s.Stop)
}

// IsFinished tells if Stop was called or no event is pending.
func (s *RealtimeSimulator) IsFinished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.getState() == StateDestroyed {
		return true
	}

	return s.stop.Load() || s.peekNext() == nil
}

// GetContext returns the context of the running event.
func (s *RealtimeSimulator) GetContext() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.currentContext
}

// SetScheduler replaces the scheduler, keeping all pending events.
func (s *RealtimeSimulator) SetScheduler(sched scheduler.Scheduler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mustNotBeDestroyed()
	s.setScheduler(sched)
}

// Destroy runs the destroy events in registration order, then discards
// every pending event.
func (s *RealtimeSimulator) Destroy() {
	if s.getState() == StateDestroyed {
		return
	}

	for {
		s.mu.Lock()
		fn := s.nextDestroyEvent()
		s.mu.Unlock()

		if fn == nil {
			break
		}

		fn()
	}

	s.mu.Lock()
	s.teardown()
	s.mu.Unlock()

	s.signal()
}
