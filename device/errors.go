//go:build linux

package device

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Sentinel errors classifying device failures. Driver errnos that do not map
// to one of these surface as *DeviceError with the raw code attached.
var (
	// ErrNotFound: no such device node.
	ErrNotFound = errors.New("device not found")
	// ErrPermission: insufficient access to the device node.
	ErrPermission = errors.New("device permission denied")
	// ErrUnsupportedFormat: the driver rejected a proposed format outright
	// instead of adjusting it.
	ErrUnsupportedFormat = errors.New("format not supported by device")
	// ErrResource: buffer allocation or memory mapping failed.
	ErrResource = errors.New("device resource exhausted")
	// ErrInvalidState: the operation violates the buffer or stream state
	// machine, such as enqueueing a kernel-owned buffer.
	ErrInvalidState = errors.New("operation invalid in current state")
	// ErrStopped: the stream ended. Expected terminal condition, not a
	// failure; iterators translate it to normal termination.
	ErrStopped = errors.New("stream stopped")
	// ErrTimeout: a caller-specified deadline elapsed.
	ErrTimeout = errors.New("device wait timed out")
	// ErrClosed: the handle was closed.
	ErrClosed = errors.New("device closed")
)

// DeviceError carries an otherwise-unclassified kernel errno for diagnostics.
type DeviceError struct {
	Op    string
	Errno unix.Errno
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device %s: %s (errno %d)", e.Op, e.Errno.Error(), int(e.Errno))
}

// Unwrap exposes the errno so errors.Is(err, unix.EINVAL) works.
func (e *DeviceError) Unwrap() error { return e.Errno }

// classify maps an errno from open/ioctl to the taxonomy.
func classify(op string, errno unix.Errno) error {
	switch errno {
	case 0:
		return nil
	case unix.ENOENT, unix.ENODEV, unix.ENXIO:
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case unix.EACCES, unix.EPERM:
		return fmt.Errorf("%s: %w", op, ErrPermission)
	case unix.ENOMEM, unix.ENOBUFS:
		return fmt.Errorf("%s: %w", op, ErrResource)
	default:
		return &DeviceError{Op: op, Errno: errno}
	}
}
