// Package systhread runs work on background OS threads next to a
// simulation. Thread is a goroutine locked to its own OS thread. FdReader
// reads a file descriptor on such a thread and hands every chunk to the
// simulator as an event.
package systhread

import (
	"errors"
	"runtime"
	"sync"
)

// ErrAlreadyStarted is returned when a thread or reader is started twice.
var ErrAlreadyStarted = errors.New("systhread: already started")

// Thread runs a function on a dedicated OS thread.
type Thread struct {
	fn func()

	lock    sync.Mutex
	started bool
	done    chan struct{}
}

// NewThread creates a thread that runs fn once started.
func NewThread(fn func()) *Thread {
	return &Thread{
		fn:   fn,
		done: make(chan struct{}),
	}
}

// Start launches the thread.
func (t *Thread) Start() error {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.started {
		return ErrAlreadyStarted
	}
	t.started = true

	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer close(t.done)

		t.fn()
	}()

	return nil
}

// Join waits for the thread function to return. Joining a thread that was
// never started, or joining more than once, returns immediately.
func (t *Thread) Join() {
	t.lock.Lock()
	started := t.started
	t.lock.Unlock()

	if !started {
		return
	}

	<-t.done
}

// IsRunning tells if the thread has started and not returned yet.
func (t *Thread) IsRunning() bool {
	t.lock.Lock()
	started := t.started
	t.lock.Unlock()

	if !started {
		return false
	}

	select {
	case <-t.done:
		return false
	default:
		return true
	}
}
