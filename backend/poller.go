//go:build linux

package backend

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

const pollerWorkers = 4

// Poller is the cooperative-suspension model: one dispatcher goroutine sits
// in epoll_wait and wakes suspended waiters through channels, so any number
// of concurrent awaits share a single blocked thread. RunBlocking hands the
// syscall to a small worker pool so the dispatcher is never stalled by it.
type Poller struct {
	epfd    int
	eventfd int

	mu      sync.Mutex
	waiters map[int]chan struct{}

	tasks     chan func()
	done      chan struct{}
	closeOnce sync.Once
}

// NewPoller creates the epoll instance, its dispatcher goroutine and the
// blocking-work pool. Callers must Close it when done.
func NewPoller() (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	efd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}
	p := &Poller{
		epfd:    epfd,
		eventfd: efd,
		waiters: make(map[int]chan struct{}),
		tasks:   make(chan func()),
		done:    make(chan struct{}),
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(efd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, efd, &ev); err != nil {
		unix.Close(efd)
		unix.Close(epfd)
		return nil, err
	}
	go p.dispatch()
	for i := 0; i < pollerWorkers; i++ {
		go p.worker()
	}
	return p, nil
}

// Close stops the dispatcher and workers. Waits in flight return ErrCancelled.
func (p *Poller) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
		// Kick the dispatcher out of epoll_wait.
		buf := [8]byte{7: 1}
		unix.Write(p.eventfd, buf[:])
	})
	return nil
}

func (p *Poller) dispatch() {
	events := make([]unix.EpollEvent, 16)
	for {
		n, err := unix.EpollWait(p.epfd, events, -1)
		if err == unix.EINTR {
			continue
		}
		select {
		case <-p.done:
			unix.Close(p.eventfd)
			unix.Close(p.epfd)
			return
		default:
		}
		if err != nil {
			continue
		}
		p.mu.Lock()
		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			if fd == p.eventfd {
				continue
			}
			if ch, ok := p.waiters[fd]; ok {
				select {
				case ch <- struct{}{}:
				default:
				}
			}
		}
		p.mu.Unlock()
	}
}

func (p *Poller) worker() {
	for {
		select {
		case fn := <-p.tasks:
			fn()
		case <-p.done:
			return
		}
	}
}

func (p *Poller) AwaitReadable(fd, cancelFd int, timeout time.Duration) error {
	return p.await(fd, cancelFd, unix.EPOLLIN, timeout)
}

func (p *Poller) AwaitWritable(fd, cancelFd int, timeout time.Duration) error {
	return p.await(fd, cancelFd, unix.EPOLLOUT, timeout)
}

func (p *Poller) await(fd, cancelFd int, events uint32, timeout time.Duration) error {
	ready, err := p.register(fd, events)
	if err != nil {
		return err
	}
	defer p.unregister(fd)

	var cancelled chan struct{}
	if cancelFd >= 0 {
		cancelled, err = p.register(cancelFd, unix.EPOLLIN)
		if err != nil {
			return err
		}
		defer p.unregister(cancelFd)
	}

	var timer *time.Timer
	var expired <-chan time.Time
	if timeout > 0 {
		timer = time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-ready:
		return nil
	case <-cancelled:
		return ErrCancelled
	case <-expired:
		return ErrTimeout
	case <-p.done:
		return ErrCancelled
	}
}

func (p *Poller) register(fd int, events uint32) (chan struct{}, error) {
	ch := make(chan struct{}, 1)
	p.mu.Lock()
	if _, exists := p.waiters[fd]; exists {
		p.mu.Unlock()
		return nil, errors.New("backend: fd already has a waiter")
	}
	p.waiters[fd] = ch
	p.mu.Unlock()

	// POLLERR/POLLHUP are always reported by epoll; readiness with an error
	// condition still wakes the waiter so the caller's syscall can fail.
	ev := unix.EpollEvent{Events: events | unix.EPOLLERR | unix.EPOLLHUP, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		p.mu.Lock()
		delete(p.waiters, fd)
		p.mu.Unlock()
		return nil, err
	}
	return ch, nil
}

func (p *Poller) unregister(fd int) {
	unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	p.mu.Lock()
	delete(p.waiters, fd)
	p.mu.Unlock()
}

// RunBlocking executes fn on the worker pool and suspends the caller until
// it finishes. After Close, fn runs inline as a fallback.
func (p *Poller) RunBlocking(fn func() error) error {
	res := make(chan error, 1)
	task := func() { res <- fn() }
	select {
	case p.tasks <- task:
		return <-res
	case <-p.done:
		return fn()
	}
}
