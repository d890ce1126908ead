package sim

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/nssim/simtime"
)

// The process-wide simulator. It is created on first use and forgotten by
// Destroy, so that a later call starts a fresh one.
var (
	defaultLock     sync.Mutex
	defaultInstance Simulator
	defaultFactory  = func() Simulator { return MakeBuilder().Build() }
)

// Default returns the process-wide simulator, creating it if needed.
func Default() Simulator {
	defaultLock.Lock()
	defer defaultLock.Unlock()

	if defaultInstance == nil {
		defaultInstance = defaultFactory()
		logrus.Debug("sim: default simulator created")
	}

	return defaultInstance
}

// SetDefaultFactory chooses how the process-wide simulator is created. It
// panics if the simulator already exists.
func SetDefaultFactory(factory func() Simulator) {
	defaultLock.Lock()
	defer defaultLock.Unlock()

	if defaultInstance != nil {
		panic("sim: the default simulator already exists")
	}

	defaultFactory = factory
}

// Schedule runs fn after delay on the process-wide simulator.
func Schedule(delay simtime.Time, fn func()) EventID {
	return Default().Schedule(delay, fn)
}

// ScheduleNow runs fn at the current time on the process-wide simulator.
func ScheduleNow(fn func()) EventID {
	return Default().ScheduleNow(fn)
}

// ScheduleWithContext runs fn after delay on behalf of context on the
// process-wide simulator.
func ScheduleWithContext(context uint32, delay simtime.Time, fn func()) {
	Default().ScheduleWithContext(context, delay, fn)
}

// ScheduleDestroy registers fn to run when the process-wide simulator is
// destroyed.
func ScheduleDestroy(fn func()) EventID {
	return Default().ScheduleDestroy(fn)
}

// Now returns the current time of the process-wide simulator.
func Now() simtime.Time {
	return Default().Now()
}

// Run runs the process-wide simulator.
func Run() {
	Default().Run()
}

// Stop stops the process-wide simulator after the current event.
func Stop() {
	Default().Stop()
}

// StopAt stops the process-wide simulator after delay.
func StopAt(delay simtime.Time) EventID {
	return Default().StopAt(delay)
}

// Destroy destroys the process-wide simulator. The next call to any
// function of the facade creates a new one.
func Destroy() {
	defaultLock.Lock()
	s := defaultInstance
	defaultLock.Unlock()

	if s == nil {
		return
	}

	s.Destroy()

	defaultLock.Lock()
	if defaultInstance == s {
		defaultInstance = nil
	}
	defaultLock.Unlock()
}
