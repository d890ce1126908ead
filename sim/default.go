package sim

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/nssim/scheduler"
	"github.com/sarchlab/nssim/simtime"
)

type inboxEvent struct {
	uid   uint64
	ctx   uint32
	delay simtime.Time
	fn    func()
}

// DefaultSimulator runs events one after another as fast as possible.
//
// All methods except ScheduleWithContext, Now, Stop, Pause and Continue must
// be called from the goroutine that calls Run, or from event callbacks.
// ScheduleWithContext is safe from any goroutine: the event is parked in an
// inbox and enters the scheduler before the main loop pops its next event.
type DefaultSimulator struct {
	core

	inboxLock    sync.Mutex
	inbox        []inboxEvent
	inboxPending atomic.Bool

	singleRunLock sync.Mutex
}

// NewDefaultSimulator creates a simulator on top of the given scheduler.
func NewDefaultSimulator(sched scheduler.Scheduler) *DefaultSimulator {
	s := &DefaultSimulator{}
	s.init(s, sched)

	return s
}

// Schedule runs fn after delay.
func (s *DefaultSimulator) Schedule(delay simtime.Time, fn func()) EventID {
	return s.schedule(delay, fn)
}

// ScheduleNow runs fn at the current time.
func (s *DefaultSimulator) ScheduleNow(fn func()) EventID {
	return s.Schedule(simtime.Zero(), fn)
}

// ScheduleWithContext parks the event in the inbox. Its uid is taken now so
// that events scheduled from the main goroutine keep their FIFO order.
func (s *DefaultSimulator) ScheduleWithContext(
	context uint32,
	delay simtime.Time,
	fn func(),
) {
	s.mustNotBeDestroyed()
	mustNotBeNegative(delay)

	ev := inboxEvent{
		uid:   s.newUID(),
		ctx:   context,
		delay: delay,
		fn:    fn,
	}

	s.inboxLock.Lock()
	s.inbox = append(s.inbox, ev)
	s.inboxPending.Store(true)
	s.inboxLock.Unlock()
}

func (s *DefaultSimulator) drainInbox() {
	if !s.inboxPending.Load() {
		return
	}

	s.inboxLock.Lock()
	pending := s.inbox
	s.inbox = nil
	s.inboxPending.Store(false)
	s.inboxLock.Unlock()

	now := s.now.Load()
	for _, ev := range pending {
		s.insert(addSteps(now, ev.delay), ev.uid, ev.ctx, ev.fn)
	}
}

// ScheduleDestroy registers fn to run during Destroy.
func (s *DefaultSimulator) ScheduleDestroy(fn func()) EventID {
	return s.scheduleDestroy(fn)
}

// Cancel prevents an event from firing.
func (s *DefaultSimulator) Cancel(id EventID) {
	s.cancel(id)
}

// Remove drops an event from the scheduler.
func (s *DefaultSimulator) Remove(id EventID) {
	s.mustNotBeDestroyed()
	s.remove(id)
}

// IsExpired tells if an event has fired or was cancelled.
func (s *DefaultSimulator) IsExpired(id EventID) bool {
	return s.isExpired(id)
}

// GetDelayLeft returns the time until the event fires.
func (s *DefaultSimulator) GetDelayLeft(id EventID) simtime.Time {
	return s.delayLeft(id)
}

// Run processes events until the scheduler is empty or Stop is called.
func (s *DefaultSimulator) Run() {
	s.singleRunLock.Lock()
	defer s.singleRunLock.Unlock()

	s.mustNotBeDestroyed()

	s.stop.Store(false)
	s.setState(StateRunning)

	logrus.WithFields(logrus.Fields{
		"now":     s.Now(),
		"pending": s.sched.Len(),
	}).Info("sim: run started")

	s.drainInbox()

	for !s.stop.Load() {
		s.pauseLock.Lock()

		ev := s.popNext()
		if ev == nil {
			s.pauseLock.Unlock()
			break
		}

		fn := s.advance(ev)
		s.fire(ev, fn)

		s.pauseLock.Unlock()

		s.drainInbox()
	}

	s.endOfRun()
}

// Stop ends Run after the current event.
func (s *DefaultSimulator) Stop() {
	s.stop.Store(true)
}

// StopAt ends Run after delay.
func (s *DefaultSimulator) StopAt(delay simtime.Time) EventID {
	return s.Schedule(delay, s.Stop)
}

// IsFinished tells if Run has nothing left to do.
func (s *DefaultSimulator) IsFinished() bool {
	if s.getState() == StateDestroyed {
		return true
	}

	s.drainInbox()

	return s.stop.Load() || s.peekNext() == nil
}

// GetContext returns the context of the running event.
func (s *DefaultSimulator) GetContext() uint32 {
	return s.currentContext
}

// SetScheduler replaces the scheduler, keeping all pending events.
func (s *DefaultSimulator) SetScheduler(sched scheduler.Scheduler) {
	s.mustNotBeDestroyed()
	s.setScheduler(sched)
}

// Destroy runs the destroy events in registration order, then discards
// every pending event. Destroying twice is a no-op.
func (s *DefaultSimulator) Destroy() {
	if s.getState() == StateDestroyed {
		return
	}

	for fn := s.nextDestroyEvent(); fn != nil; fn = s.nextDestroyEvent() {
		fn()
	}

	s.inboxLock.Lock()
	s.inbox = nil
	s.inboxPending.Store(false)
	s.inboxLock.Unlock()

	s.teardown()
}
