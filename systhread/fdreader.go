//go:build unix

package systhread

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/sarchlab/nssim/sim"
	"github.com/sarchlab/nssim/simtime"
)

// DefaultReadSize is the largest chunk an FdReader reads at once.
const DefaultReadSize = 4096

// ErrStopped is returned when starting a reader that has been stopped.
var ErrStopped = errors.New("systhread: reader stopped")

// FdReader reads a file descriptor on a background thread. Every chunk read
// is delivered to the callback as a simulator event with no context, so the
// callback always runs on the simulation goroutine.
//
// The worker blocks in poll on both the descriptor and a wake pipe. Stop
// writes to the pipe, which lets the worker return even if the descriptor
// never becomes readable.
type FdReader struct {
	sim      sim.Simulator
	readSize int

	pipeRead, pipeWrite int

	lock      sync.Mutex
	fd        int
	callback  func(data []byte)
	thread    *Thread
	destroyID sim.EventID
	started   bool
	stopped   bool
}

// NewFdReader creates a reader delivering into s. It fails if the wake pipe
// cannot be created.
func NewFdReader(s sim.Simulator) (*FdReader, error) {
	fds := make([]int, 2)
	if err := unix.Pipe(fds); err != nil {
		return nil, fmt.Errorf("systhread: creating wake pipe: %w", err)
	}

	for _, fd := range fds {
		unix.CloseOnExec(fd)
	}

	return &FdReader{
		sim:       s,
		readSize:  DefaultReadSize,
		pipeRead:  fds[0],
		pipeWrite: fds[1],
		fd:        -1,
	}, nil
}

// WithReadSize sets the largest chunk delivered in one callback.
func (r *FdReader) WithReadSize(n int) *FdReader {
	if n <= 0 {
		panic("systhread: read size must be positive")
	}

	r.readSize = n
	return r
}

// Start begins reading fd. The reader stops by itself at end of file, and is
// stopped when the simulator is destroyed.
func (r *FdReader) Start(fd int, callback func(data []byte)) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	switch {
	case r.stopped:
		return ErrStopped
	case r.started:
		return ErrAlreadyStarted
	}

	r.fd = fd
	r.callback = callback
	r.thread = NewThread(r.run)

	if err := r.thread.Start(); err != nil {
		return err
	}

	r.started = true
	r.destroyID = r.sim.ScheduleDestroy(r.Stop)

	logrus.WithField("fd", fd).Debug("systhread: fd reader started")

	return nil
}

// Stop wakes the worker, waits for it to return and releases the wake pipe.
// Calling Stop more than once is safe.
func (r *FdReader) Stop() {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.stopped {
		return
	}
	r.stopped = true

	if r.started {
		r.wake()
		r.thread.Join()
		r.destroyID.Cancel()
	}

	_ = unix.Close(r.pipeRead)
	_ = unix.Close(r.pipeWrite)

	logrus.WithField("fd", r.fd).Debug("systhread: fd reader stopped")

	r.fd = -1
}

func (r *FdReader) wake() {
	for {
		_, err := unix.Write(r.pipeWrite, []byte{1})
		if err != unix.EINTR {
			return
		}
	}
}

func (r *FdReader) run() {
	fds := []unix.PollFd{
		{Fd: int32(r.fd), Events: unix.POLLIN},
		{Fd: int32(r.pipeRead), Events: unix.POLLIN},
	}

	for {
		fds[0].Revents = 0
		fds[1].Revents = 0

		_, err := unix.Poll(fds, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			logrus.WithError(err).Error("systhread: poll failed")
			return
		}

		if fds[1].Revents != 0 {
			return
		}

		if fds[0].Revents&unix.POLLNVAL != 0 {
			logrus.WithField("fd", r.fd).Warn("systhread: descriptor is not open")
			return
		}

		if fds[0].Revents == 0 {
			continue
		}

		if !r.readOnce() {
			return
		}
	}
}

// readOnce reads one chunk and schedules its delivery. It returns false at
// end of file or on a read error.
func (r *FdReader) readOnce() bool {
	buf := make([]byte, r.readSize)

	n, err := unix.Read(r.fd, buf)
	switch {
	case err == unix.EINTR || err == unix.EAGAIN:
		return true
	case err != nil:
		logrus.WithError(err).WithField("fd", r.fd).Error("systhread: read failed")
		return false
	case n == 0:
		return false
	}

	data := buf[:n]
	callback := r.callback
	r.sim.ScheduleWithContext(sim.NoContext, simtime.Zero(), func() {
		callback(data)
	})

	return true
}
