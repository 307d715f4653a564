//go:build linux

package gpio

import (
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sys/unix"

	"github.com/tiagocoutinho/linuxgo/device"
	"github.com/tiagocoutinho/linuxgo/ioctl"
	"github.com/tiagocoutinho/linuxgo/layout"
)

// Ioctl routing goes through a var so tests can stand in a fake kernel
// without real GPIO hardware.
var control = func(h *device.Handle, req uint32, arg []byte) error {
	return h.Control(req, arg)
}

// Chip is an open GPIO character device.
type Chip struct {
	h    *device.Handle
	log  *slog.Logger
	info ChipInfo
}

// OpenChip opens a gpiochip node and reads its chip info.
func OpenChip(path string, opts ...device.Option) (*Chip, error) {
	h, err := device.Open(path, opts...)
	if err != nil {
		return nil, err
	}
	c, err := FromHandle(h)
	if err != nil {
		h.Close()
		return nil, err
	}
	return c, nil
}

// FromHandle wraps an existing handle. The chip owns the handle afterwards.
func FromHandle(h *device.Handle) (*Chip, error) {
	c := &Chip{h: h, log: slog.Default().With("device", h.Path())}
	raw, err := c.info.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if err := control(h, gpioGetChipInfo, raw); err != nil {
		return nil, fmt.Errorf("chip info: %w", err)
	}
	if err := c.info.UnmarshalBinary(raw); err != nil {
		return nil, err
	}
	return c, nil
}

// Info returns the chip name, label and line count.
func (c *Chip) Info() ChipInfo { return c.info }

// Path returns the device node path.
func (c *Chip) Path() string { return c.h.Path() }

// Close releases the chip. Open line requests stay valid; their fds are
// independent of the chip fd.
func (c *Chip) Close() error { return c.h.Close() }

// LineInfo describes one line without requesting it.
func (c *Chip) LineInfo(offset uint32) (LineInfo, error) {
	if offset >= c.info.Lines {
		return LineInfo{}, fmt.Errorf("line %d of %d: %w", offset, c.info.Lines, device.ErrNotFound)
	}
	li := LineInfo{Offset: offset}
	raw, err := li.MarshalBinary()
	if err != nil {
		return LineInfo{}, err
	}
	if err := control(c.h, gpioGetLineInfo, raw); err != nil {
		return LineInfo{}, fmt.Errorf("line info %d: %w", offset, err)
	}
	if err := li.UnmarshalBinary(raw); err != nil {
		return LineInfo{}, err
	}
	return li, nil
}

// RequestConfig configures a line request.
type RequestConfig struct {
	Consumer string
	Flags    LineFlag
	// EventBufferSize sizes the kernel's per-request edge event queue;
	// zero keeps the kernel default (16 per line).
	EventBufferSize uint32
}

// chunk is one kernel line request covering up to MaxLinesPerRequest offsets.
type chunk struct {
	fd      int
	offsets []uint32
}

// Lines is a set of requested lines. Sets larger than MaxLinesPerRequest are
// transparently split across several kernel requests; values and events are
// presented in the caller's offset order regardless of the split.
type Lines struct {
	chip   *Chip
	cfg    RequestConfig
	chunks []chunk
	total  int
	closed bool
}

// Request claims the given line offsets.
func (c *Chip) Request(cfg RequestConfig, offsets ...uint32) (*Lines, error) {
	if len(offsets) == 0 {
		return nil, fmt.Errorf("request with no offsets: %w", device.ErrInvalidState)
	}
	if cfg.Flags == 0 {
		cfg.Flags = LineFlagInput
	}
	l := &Lines{chip: c, cfg: cfg, total: len(offsets)}
	for _, part := range splitOffsets(offsets) {
		fd, err := c.requestChunk(cfg, part)
		if err != nil {
			l.Close()
			return nil, err
		}
		l.chunks = append(l.chunks, chunk{fd: fd, offsets: part})
	}
	c.log.Debug("lines requested", "lines", len(offsets), "requests", len(l.chunks))
	return l, nil
}

// splitOffsets partitions offsets into kernel-sized requests, preserving
// order.
func splitOffsets(offsets []uint32) [][]uint32 {
	var parts [][]uint32
	for len(offsets) > 0 {
		n := min(len(offsets), MaxLinesPerRequest)
		parts = append(parts, offsets[:n])
		offsets = offsets[n:]
	}
	return parts
}

func (c *Chip) requestChunk(cfg RequestConfig, offsets []uint32) (int, error) {
	req := LineRequest{
		Offsets:         offsets,
		Consumer:        cfg.Consumer,
		Flags:           cfg.Flags,
		NumLines:        uint32(len(offsets)),
		EventBufferSize: cfg.EventBufferSize,
		Fd:              -1,
	}
	raw, err := req.MarshalBinary()
	if err != nil {
		return -1, err
	}
	if err := control(c.h, gpioGetLine, raw); err != nil {
		return -1, fmt.Errorf("get line: %w", err)
	}
	if err := req.UnmarshalBinary(raw); err != nil {
		return -1, err
	}
	if req.Fd < 0 {
		return -1, fmt.Errorf("kernel returned fd %d: %w", req.Fd, device.ErrResource)
	}
	return int(req.Fd), nil
}

// Len returns the number of requested lines.
func (l *Lines) Len() int { return l.total }

// Close releases every underlying kernel request. Idempotent.
func (l *Lines) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	var first error
	for _, ch := range l.chunks {
		if err := unix.Close(ch.fd); err != nil && first == nil {
			first = err
		}
	}
	l.chunks = nil
	return first
}

// Values reads all lines, in request order.
func (l *Lines) Values() ([]bool, error) {
	if l.closed {
		return nil, device.ErrClosed
	}
	out := make([]bool, 0, l.total)
	for _, ch := range l.chunks {
		lv := LineValues{Mask: mask(len(ch.offsets))}
		raw, err := lv.MarshalBinary()
		if err != nil {
			return nil, err
		}
		if err := chunkIoctl(ch.fd, gpioLineGetValues, raw); err != nil {
			return nil, fmt.Errorf("get values: %w", err)
		}
		if err := lv.UnmarshalBinary(raw); err != nil {
			return nil, err
		}
		for i := range ch.offsets {
			out = append(out, lv.Bits.Has(1<<uint(i)))
		}
	}
	return out, nil
}

// SetValues writes all lines, in request order. The value count must match
// the requested line count.
func (l *Lines) SetValues(values ...bool) error {
	if l.closed {
		return device.ErrClosed
	}
	if len(values) != l.total {
		return fmt.Errorf("%d values for %d lines: %w", len(values), l.total, device.ErrInvalidState)
	}
	for _, ch := range l.chunks {
		lv := LineValues{Mask: mask(len(ch.offsets))}
		for i := range ch.offsets {
			if values[i] {
				lv.Bits = lv.Bits.With(1 << uint(i))
			}
		}
		values = values[len(ch.offsets):]
		raw, err := lv.MarshalBinary()
		if err != nil {
			return err
		}
		if err := chunkIoctl(ch.fd, gpioLineSetValues, raw); err != nil {
			return fmt.Errorf("set values: %w", err)
		}
	}
	return nil
}

// ReadEvent waits for one edge event across all requests, for at most
// timeout (zero waits indefinitely). The wait also observes the chip
// handle's cancel fd, so closing the chip unblocks with ErrStopped.
func (l *Lines) ReadEvent(timeout time.Duration) (LineEvent, error) {
	if l.closed {
		return LineEvent{}, device.ErrClosed
	}
	fd, err := l.awaitEvent(timeout)
	if err != nil {
		return LineEvent{}, err
	}
	raw := make([]byte, lineEventSize)
	for {
		n, err := unix.Read(fd, raw)
		if err == unix.EINTR || err == unix.EAGAIN {
			continue
		}
		if err != nil {
			return LineEvent{}, fmt.Errorf("read event: %w", err)
		}
		if n != lineEventSize {
			return LineEvent{}, fmt.Errorf("short event read of %d bytes: %w", n, device.ErrResource)
		}
		break
	}
	var ev LineEvent
	if err := ev.UnmarshalBinary(raw); err != nil {
		return LineEvent{}, err
	}
	return ev, nil
}

// awaitEvent polls every request fd plus the chip's cancel fd and returns
// the first readable request fd.
func (l *Lines) awaitEvent(timeout time.Duration) (int, error) {
	fds := make([]unix.PollFd, 0, len(l.chunks)+1)
	for _, ch := range l.chunks {
		fds = append(fds, unix.PollFd{Fd: int32(ch.fd), Events: unix.POLLIN})
	}
	cancelFd := l.chip.h.CancelFd()
	fds = append(fds, unix.PollFd{Fd: int32(cancelFd), Events: unix.POLLIN})

	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		ms := -1
		if !deadline.IsZero() {
			left := time.Until(deadline)
			if left <= 0 {
				return -1, device.ErrTimeout
			}
			ms = int(left.Milliseconds())
			if ms == 0 {
				ms = 1
			}
		}
		n, err := unix.Poll(fds, ms)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return -1, fmt.Errorf("poll: %w", err)
		}
		if n == 0 {
			return -1, device.ErrTimeout
		}
		if fds[len(fds)-1].Revents != 0 {
			return -1, device.ErrStopped
		}
		for i := range fds[:len(fds)-1] {
			if fds[i].Revents != 0 {
				return int(fds[i].Fd), nil
			}
		}
	}
}

// chunkIoctl issues a request on a line request fd (not the chip handle).
var chunkIoctl = func(fd int, req uint32, arg []byte) error {
	if errno := ioctl.IoctlBytes(fd, req, arg); errno != 0 {
		return errno
	}
	return nil
}

func mask(n int) layout.Flags64 {
	if n >= 64 {
		return ^layout.Flags64(0)
	}
	return layout.Flags64(1)<<uint(n) - 1
}
