//go:build linux

package backend

import "time"

// Goroutine runs every wait and blocking syscall on its own goroutine and
// parks the caller on a channel. The runtime scheduler keeps the OS thread
// free while the syscall blocks, so concurrent goroutines make progress —
// the lightweight-thread execution model.
type Goroutine struct{}

func (Goroutine) AwaitReadable(fd, cancelFd int, timeout time.Duration) error {
	return offload(func() error { return pollWait(fd, cancelFd, pollIn, timeout) })
}

func (Goroutine) AwaitWritable(fd, cancelFd int, timeout time.Duration) error {
	return offload(func() error { return pollWait(fd, cancelFd, pollOut, timeout) })
}

func (Goroutine) RunBlocking(fn func() error) error {
	return offload(fn)
}

func offload(fn func() error) error {
	ch := make(chan error, 1)
	go func() { ch <- fn() }()
	return <-ch
}
