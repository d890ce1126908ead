package sim

import (
	"time"

	"github.com/sarchlab/nssim/scheduler"
)

// Builder creates simulators.
type Builder struct {
	kind      scheduler.Kind
	realtime  bool
	mode      SyncMode
	hardLimit time.Duration
}

// MakeBuilder creates a builder for a default simulator on a heap scheduler.
func MakeBuilder() Builder {
	return Builder{
		kind:      scheduler.KindHeap,
		mode:      SyncBestEffort,
		hardLimit: DefaultHardLimit,
	}
}

// WithScheduler sets the scheduler implementation.
func (b Builder) WithScheduler(kind scheduler.Kind) Builder {
	b.kind = kind
	return b
}

// WithRealtime makes the builder create a RealtimeSimulator.
func (b Builder) WithRealtime() Builder {
	b.realtime = true
	return b
}

// WithSyncMode sets the realtime synchronization mode.
func (b Builder) WithSyncMode(mode SyncMode) Builder {
	b.mode = mode
	return b
}

// WithHardLimit sets the lag the realtime engine tolerates.
func (b Builder) WithHardLimit(limit time.Duration) Builder {
	b.hardLimit = limit
	return b
}

// Build creates the simulator.
func (b Builder) Build() Simulator {
	sched := scheduler.New(b.kind)

	if b.realtime {
		return NewRealtimeSimulator(sched, b.mode, b.hardLimit)
	}

	return NewDefaultSimulator(sched)
}
