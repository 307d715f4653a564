//go:build linux

package backend

import "time"

// Blocking executes everything inline on the calling goroutine. Waits are a
// direct blocking poll; RunBlocking just calls fn. This is the default model
// for plain sequential callers.
type Blocking struct{}

func (Blocking) AwaitReadable(fd, cancelFd int, timeout time.Duration) error {
	return pollWait(fd, cancelFd, pollIn, timeout)
}

func (Blocking) AwaitWritable(fd, cancelFd int, timeout time.Duration) error {
	return pollWait(fd, cancelFd, pollOut, timeout)
}

func (Blocking) RunBlocking(fn func() error) error {
	return fn()
}
