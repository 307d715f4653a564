//go:build linux

// Package device owns open Linux character-device file descriptors and the
// device-control (ioctl) and raw read/write paths on top of them.
//
// A Handle is exclusively owned by its creator. Closing it unblocks any
// suspended wait through a cancel pipe, runs registered releasers (buffer
// pools and the like) and invalidates everything derived from the handle.
// Double close is a no-op.
package device

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/tiagocoutinho/linuxgo/backend"
	"github.com/tiagocoutinho/linuxgo/ioctl"
)

// Injection point for tests that fake the kernel side of ioctl.
var sysIoctl = ioctl.IoctlBytes

// Handle is one open device file descriptor plus the concurrency backend all
// of its blocking operations go through.
type Handle struct {
	path    string
	backend backend.Backend
	logger  *slog.Logger

	mu        sync.Mutex
	fd        int
	cancelR   int // read end of the cancel pipe, polled alongside fd
	cancelW   int
	closed    bool
	releasers []func()
}

// Option configures a Handle at open time.
type Option func(*Handle)

// WithBackend selects the I/O execution model. Default is backend.Blocking.
func WithBackend(b backend.Backend) Option {
	return func(h *Handle) { h.backend = b }
}

// WithLogger attaches a logger for debug-level syscall tracing.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handle) { h.logger = l }
}

// Open opens the device node read-write, non-blocking, close-on-exec.
func Open(path string, opts ...Option) (*Handle, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		if errno, ok := err.(unix.Errno); ok {
			return nil, classify("open "+path, errno)
		}
		return nil, err
	}
	h, err := FromFd(fd, path, opts...)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	return h, nil
}

// FromFd wraps an already-open descriptor. The Handle takes ownership of fd.
func FromFd(fd int, path string, opts ...Option) (*Handle, error) {
	var pipe [2]int
	if err := unix.Pipe2(pipe[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, err
	}
	h := &Handle{
		path:    path,
		backend: backend.Blocking{},
		fd:      fd,
		cancelR: pipe[0],
		cancelW: pipe[1],
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h, nil
}

// Path returns the device node path the handle was opened from.
func (h *Handle) Path() string { return h.path }

// Fd returns the raw descriptor. Valid only while the handle is open.
func (h *Handle) Fd() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fd
}

// Backend returns the concurrency backend the handle was opened with.
func (h *Handle) Backend() backend.Backend { return h.backend }

// CancelFd returns the descriptor that becomes readable when Close begins.
// Waits pass it to the backend so closing unblocks them.
func (h *Handle) CancelFd() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelR
}

// OnClose registers fn to run at the start of Close, before the descriptor
// is closed. Buffer pools register their release here so mapped memory never
// outlives the handle.
func (h *Handle) OnClose(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.releasers = append(h.releasers, fn)
}

// Control issues one device-control operation with the request's in/out
// payload. Whether the kernel reads, fills, or both is encoded in the
// request code. An interrupted call is retried exactly once; every other
// failure propagates classified.
func (h *Handle) Control(req uint32, arg []byte) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	fd := h.fd
	h.mu.Unlock()

	errno := sysIoctl(fd, req, arg)
	if errno == unix.EINTR {
		errno = sysIoctl(fd, req, arg)
	}
	if errno != 0 {
		return classify("ioctl", errno)
	}
	return nil
}

// Read fills p from the device's raw byte stream, waiting for readability
// through the backend. This is the fallback transfer path for subsystems
// without streaming buffers.
func (h *Handle) Read(p []byte) (int, error) {
	return h.ReadTimeout(p, 0)
}

// ReadTimeout is Read with a deadline; zero waits indefinitely.
func (h *Handle) ReadTimeout(p []byte, timeout time.Duration) (int, error) {
	for {
		if err := h.await(true, timeout); err != nil {
			return 0, err
		}
		n, err := unix.Read(h.Fd(), p)
		if err == unix.EAGAIN {
			continue
		}
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			if errno, ok := err.(unix.Errno); ok {
				return 0, classify("read", errno)
			}
			return 0, err
		}
		return n, nil
	}
}

// Write sends p over the raw byte stream, waiting for writability through
// the backend.
func (h *Handle) Write(p []byte) (int, error) {
	if err := h.await(false, 0); err != nil {
		return 0, err
	}
	n, err := unix.Write(h.Fd(), p)
	if err != nil {
		if errno, ok := err.(unix.Errno); ok {
			return 0, classify("write", errno)
		}
		return 0, err
	}
	return n, nil
}

// AwaitReadable suspends until the device is readable, the handle closes, or
// the timeout elapses. Errors are mapped to the device taxonomy.
func (h *Handle) AwaitReadable(timeout time.Duration) error {
	return h.await(true, timeout)
}

func (h *Handle) await(read bool, timeout time.Duration) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrStopped
	}
	fd, cancelFd := h.fd, h.cancelR
	h.mu.Unlock()

	var err error
	if read {
		err = h.backend.AwaitReadable(fd, cancelFd, timeout)
	} else {
		err = h.backend.AwaitWritable(fd, cancelFd, timeout)
	}
	switch err {
	case nil:
		return nil
	case backend.ErrCancelled:
		return ErrStopped
	case backend.ErrTimeout:
		return ErrTimeout
	default:
		return err
	}
}

// Close releases the handle: suspended waits unblock with ErrStopped,
// registered releasers run (newest first), then the descriptor closes.
// Calling Close again is a no-op.
func (h *Handle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	releasers := h.releasers
	h.releasers = nil
	fd := h.fd
	cancelR, cancelW := h.cancelR, h.cancelW
	h.fd = -1
	h.mu.Unlock()

	// Wake every wait suspended on the cancel pipe before tearing down.
	unix.Write(cancelW, []byte{1})

	for i := len(releasers) - 1; i >= 0; i-- {
		releasers[i]()
	}

	err := unix.Close(fd)
	unix.Close(cancelR)
	unix.Close(cancelW)
	if err != nil {
		h.logger.Debug("close failed", "path", h.path, "error", err)
	}
	return nil
}
