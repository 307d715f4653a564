//go:build linux

// Package backend supplies the readiness and blocking-offload primitives the
// device layer is written against.
//
// Every blocking call site in the repo funnels through a Backend, so the same
// streaming code runs inline on the calling goroutine (Blocking), suspended
// on a single epoll dispatcher (Poller), or parked on a fresh goroutine under
// the runtime scheduler (Goroutine). The three are interchangeable: given the
// same readiness sequence they produce the same results.
package backend

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

// ErrTimeout reports that the caller-specified deadline elapsed before the
// descriptor became ready.
var ErrTimeout = errors.New("backend: wait timed out")

// ErrCancelled reports that the cancel descriptor fired while waiting,
// normally because the owning device handle is closing.
var ErrCancelled = errors.New("backend: wait cancelled")

// Backend abstracts how a caller waits for descriptor readiness and how it
// runs syscalls that may block.
//
// cancelFd is the read end of a pipe that becomes readable when the owning
// handle closes; pass a negative value for no cancellation. A timeout of zero
// or less waits indefinitely.
type Backend interface {
	AwaitReadable(fd, cancelFd int, timeout time.Duration) error
	AwaitWritable(fd, cancelFd int, timeout time.Duration) error

	// RunBlocking executes fn, which may issue a blocking syscall, without
	// stalling concurrent work in this execution model.
	RunBlocking(fn func() error) error
}

const (
	pollIn  = int16(unix.POLLIN)
	pollOut = int16(unix.POLLOUT)
)

// pollWait blocks in poll(2) until fd matches events, the cancel descriptor
// fires, or the timeout elapses. POLLERR/POLLHUP count as ready so the
// caller's next syscall surfaces the driver's errno instead of hanging here.
func pollWait(fd, cancelFd int, events int16, timeout time.Duration) error {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	fds := make([]unix.PollFd, 1, 2)
	fds[0] = unix.PollFd{Fd: int32(fd), Events: events}
	if cancelFd >= 0 {
		fds = append(fds, unix.PollFd{Fd: int32(cancelFd), Events: unix.POLLIN})
	}

	for {
		ms := -1
		if timeout > 0 {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return ErrTimeout
			}
			ms = int(remaining.Milliseconds())
			if ms == 0 {
				ms = 1
			}
		}

		for i := range fds {
			fds[i].Revents = 0
		}
		n, err := unix.Poll(fds, ms)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrTimeout
		}
		if len(fds) > 1 && fds[1].Revents != 0 {
			return ErrCancelled
		}
		if fds[0].Revents&(events|unix.POLLERR|unix.POLLHUP) != 0 {
			return nil
		}
	}
}
