package sim

import (
	"time"

	"github.com/sarchlab/nssim/simtime"
)

// WallClockSynchronizer maps virtual time to wall-clock time. The mapping
// is anchored at an origin: a virtual timestamp and the wall-clock instant
// it corresponds to.
type WallClockSynchronizer struct {
	originSteps int64
	originWall  time.Time
	nowFunc     func() time.Time
}

// NewWallClockSynchronizer creates a synchronizer on the system clock.
func NewWallClockSynchronizer() *WallClockSynchronizer {
	return &WallClockSynchronizer{nowFunc: time.Now}
}

// SetOrigin anchors the virtual timestamp to the current wall-clock time.
func (w *WallClockSynchronizer) SetOrigin(steps int64) {
	w.originSteps = steps
	w.originWall = w.nowFunc()
}

// WallTimeOf returns the wall-clock instant of a virtual timestamp.
func (w *WallClockSynchronizer) WallTimeOf(steps int64) time.Time {
	return w.originWall.Add(simtime.FromSteps(steps - w.originSteps).ToDuration())
}

// CurrentRealtime returns the virtual timestamp of the current wall-clock
// time.
func (w *WallClockSynchronizer) CurrentRealtime() int64 {
	elapsed := w.nowFunc().Sub(w.originWall)
	return w.originSteps + simtime.FromDuration(elapsed).GetTimeStep()
}

// Lag returns how late the wall clock is relative to a virtual timestamp.
// A negative lag means the timestamp is still in the future.
func (w *WallClockSynchronizer) Lag(steps int64) time.Duration {
	return w.nowFunc().Sub(w.WallTimeOf(steps))
}

// Wait sleeps until the wall-clock instant of a virtual timestamp. It returns
// early, with false, if wake is signalled first.
func (w *WallClockSynchronizer) Wait(steps int64, wake <-chan struct{}) bool {
	d := -w.Lag(steps)
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-wake:
		return false
	}
}

// WaitIdle blocks until wake is signalled.
func (w *WallClockSynchronizer) WaitIdle(wake <-chan struct{}) {
	<-wake
}
