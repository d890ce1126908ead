package monitoring

import (
	"sync/atomic"
	"time"

	"github.com/sarchlab/nssim/hooking"
	"github.com/sarchlab/nssim/scheduler"
	"github.com/sarchlab/nssim/sim"
)

// A ProgressBar reports how far a task has come, in a unit of its own such
// as packets or simulation time steps. Counters may be updated from any
// goroutine.
type ProgressBar struct {
	id    string
	name  string
	unit  string
	start time.Time
	total uint64

	done       atomic.Uint64
	inProgress atomic.Int64
}

// ID returns the identifier of the bar.
func (b *ProgressBar) ID() string {
	return b.id
}

// Name returns the name of the bar.
func (b *ProgressBar) Name() string {
	return b.name
}

// Total returns the amount of work that completes the bar.
func (b *ProgressBar) Total() uint64 {
	return b.total
}

// Done returns the amount of finished work.
func (b *ProgressBar) Done() uint64 {
	return b.done.Load()
}

// Start marks n units as in progress.
func (b *ProgressBar) Start(n uint64) {
	b.inProgress.Add(int64(n))
}

// Finish moves n in-progress units to done.
func (b *ProgressBar) Finish(n uint64) {
	b.inProgress.Add(-int64(n))
	b.done.Add(n)
}

// Add counts n units as done without starting them first.
func (b *ProgressBar) Add(n uint64) {
	b.done.Add(n)
}

// Set replaces the amount of finished work.
func (b *ProgressBar) Set(done uint64) {
	b.done.Store(done)
}

// Fraction returns the finished share, capped at one. A bar with no total
// reports zero.
func (b *ProgressBar) Fraction() float64 {
	if b.total == 0 {
		return 0
	}

	return min(float64(b.done.Load())/float64(b.total), 1)
}

// Remaining estimates the wall time left, assuming the rate so far holds.
// It is zero until some work is done.
func (b *ProgressBar) Remaining(now time.Time) time.Duration {
	f := b.Fraction()
	if f == 0 {
		return 0
	}

	elapsed := now.Sub(b.start)

	return time.Duration(float64(elapsed) * (1 - f) / f)
}

type progressRsp struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Unit       string    `json:"unit"`
	StartTime  time.Time `json:"start_time"`
	Total      uint64    `json:"total"`
	Finished   uint64    `json:"finished"`
	InProgress int64     `json:"in_progress"`
	Percent    float64   `json:"percent"`
	Remaining  float64   `json:"remaining_seconds"`
}

func (b *ProgressBar) snapshot(now time.Time) progressRsp {
	return progressRsp{
		ID:         b.id,
		Name:       b.name,
		Unit:       b.unit,
		StartTime:  b.start,
		Total:      b.total,
		Finished:   b.done.Load(),
		InProgress: b.inProgress.Load(),
		Percent:    b.Fraction() * 100,
		Remaining:  b.Remaining(now).Seconds(),
	}
}

// simTimeProgress moves a bar with the timestamp of every event fired.
type simTimeProgress struct {
	bar *ProgressBar
}

func (p simTimeProgress) Func(ctx hooking.HookCtx) {
	if ctx.Pos != sim.HookPosAfterEvent {
		return
	}

	ev, ok := ctx.Item.(*scheduler.Event)
	if !ok || ev.Key.Timestamp < 0 {
		return
	}

	p.bar.Set(uint64(ev.Key.Timestamp))
}
