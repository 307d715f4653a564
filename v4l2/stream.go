//go:build linux

package v4l2

import (
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/tiagocoutinho/linuxgo/device"
)

// State of the streaming engine.
type State int

const (
	StateIdle State = iota
	StateFormatSet
	StateAllocated
	StateStreaming
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFormatSet:
		return "format-set"
	case StateAllocated:
		return "allocated"
	case StateStreaming:
		return "streaming"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// StreamStats receives streaming lifecycle and per-frame notifications.
// The prometheus recorder in internal/metrics implements it; a nil stats
// sink disables reporting.
type StreamStats interface {
	StreamStarted(devicePath string)
	StreamStopped(devicePath string)
	FrameDequeued(devicePath string, bytes int, wait time.Duration)
}

// StreamOption configures a Stream.
type StreamOption func(*Stream)

// WithBufferCount sets the number of buffers requested at allocation
// (default 4; drivers typically grant 2–32).
func WithBufferCount(n int) StreamOption {
	return func(s *Stream) { s.count = n }
}

// WithBacking forces a memory backing instead of the capability-based
// default (mmap when the device streams, read/write otherwise).
func WithBacking(b Backing) StreamOption {
	return func(s *Stream) { s.backing = b; s.backingForced = true }
}

// WithStats attaches a stats sink.
func WithStats(st StreamStats) StreamOption {
	return func(s *Stream) { s.stats = st }
}

// WithDequeueTimeout bounds each frame wait; zero waits indefinitely.
func WithDequeueTimeout(d time.Duration) StreamOption {
	return func(s *Stream) { s.timeout = d }
}

// Stream orchestrates format negotiation, pool construction, stream on/off
// and the queue/dequeue cycle, producing a lazy sequence of frames.
//
// One Stream per Device; the engine is single-flow. The caller's execution
// model comes from the handle's backend, never from the engine itself.
type Stream struct {
	dev     *Device
	btype   BufType
	count   int
	backing Backing
	timeout time.Duration
	stats   StreamStats

	backingForced bool

	mu        sync.Mutex
	state     State
	format    Format
	pool      *Pool
	lastIndex int // buffer owed back to the kernel on the next pull
}

// NewStream creates an engine for the buffer type in StateIdle.
func NewStream(d *Device, t BufType, opts ...StreamOption) *Stream {
	s := &Stream{
		dev:       d,
		btype:     t,
		count:     4,
		lastIndex: -1,
	}
	for _, opt := range opts {
		opt(s)
	}
	if !s.backingForced {
		if d.SupportsStreaming() {
			s.backing = MemoryMap
		} else {
			s.backing = ReadWrite
		}
	}
	return s
}

// State returns the engine state.
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Format returns the negotiated format; zero before SetFormat.
func (s *Stream) Format() Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format
}

// SetFormat negotiates the format (IDLE→FORMAT_SET). The kernel-adjusted
// result is authoritative and is what Format reports afterwards.
func (s *Stream) SetFormat(f Format) (Format, error) {
	s.mu.Lock()
	if s.state != StateIdle && s.state != StateFormatSet && s.state != StateStopped {
		st := s.state
		s.mu.Unlock()
		return Format{}, fmt.Errorf("set format in state %s: %w", st, device.ErrInvalidState)
	}
	s.mu.Unlock()

	f.Type = s.btype
	actual, err := s.dev.NegotiateFormat(f)
	if err != nil {
		return Format{}, err
	}

	s.mu.Lock()
	s.format = actual
	s.state = StateFormatSet
	s.mu.Unlock()
	return actual, nil
}

// Start allocates the pool and starts streaming
// (FORMAT_SET→ALLOCATED→STREAMING). For capture queues every buffer is
// enqueued up front; for output queues buffers stay application-owned until
// the caller writes data. A driver rejection of stream-on is fatal — it
// means misconfiguration, and no retry is attempted.
func (s *Stream) Start() error {
	s.mu.Lock()
	switch s.state {
	case StateFormatSet, StateStopped:
	default:
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("start in state %s: %w", st, device.ErrInvalidState)
	}
	s.mu.Unlock()

	pool, err := s.dev.NewPool(s.btype, s.count, s.backing)
	if err != nil {
		return err
	}

	if s.backing != ReadWrite {
		if s.btype == BufTypeVideoCapture || s.btype == BufTypeMetaCapture {
			for i := 0; i < pool.Size(); i++ {
				if err := pool.Enqueue(i, 0); err != nil {
					pool.Release()
					return err
				}
			}
		}
		if err := s.dev.streamOn(s.btype); err != nil {
			pool.Release()
			return fmt.Errorf("stream on: %w", err)
		}
	}

	s.mu.Lock()
	s.pool = pool
	s.lastIndex = -1
	s.state = StateStreaming
	s.mu.Unlock()

	if s.stats != nil {
		s.stats.StreamStarted(s.dev.h.Path())
	}
	return nil
}

// Next returns the next frame, re-enqueueing the previously returned
// buffer first. The previous Frame's bytes become invalid on this call.
//
// Backpressure falls out of the pool invariant: at most pool-size buffers
// are in kernel flight, so a slow consumer gates the producer; there is no
// unbounded queue anywhere.
func (s *Stream) Next() (*Frame, error) {
	s.mu.Lock()
	if s.state != StateStreaming {
		st := s.state
		s.mu.Unlock()
		if st == StateStopped {
			return nil, device.ErrStopped
		}
		return nil, fmt.Errorf("next in state %s: %w", st, device.ErrInvalidState)
	}
	pool := s.pool
	last := s.lastIndex
	s.mu.Unlock()

	if s.backing == ReadWrite {
		return s.nextReadWrite(pool)
	}

	if last >= 0 {
		if err := pool.Enqueue(last, 0); err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.lastIndex = -1
		s.mu.Unlock()
	}

	begin := time.Now()
	i, err := pool.Dequeue(s.timeout)
	if err != nil {
		return nil, err
	}

	pool.mu.Lock()
	buf := pool.bufs[i]
	pool.mu.Unlock()

	n := buf.bytesUsed
	if n == 0 || n > uint32(len(buf.mem)) {
		n = uint32(len(buf.mem))
	}
	frame := &Frame{
		Index:     i,
		Sequence:  buf.sequence,
		Timestamp: buf.timestamp,
		data:      buf.mem[:n],
	}

	s.mu.Lock()
	s.lastIndex = i
	s.mu.Unlock()

	if s.stats != nil {
		s.stats.FrameDequeued(s.dev.h.Path(), frame.Len(), time.Since(begin))
	}
	return frame, nil
}

// nextReadWrite is the fallback path: one read per frame into the pool's
// scratch buffer.
func (s *Stream) nextReadWrite(pool *Pool) (*Frame, error) {
	buf := &pool.bufs[0]
	begin := time.Now()
	n, err := s.dev.h.ReadTimeout(buf.mem, s.timeout)
	if err != nil {
		return nil, err
	}
	buf.sequence++
	frame := &Frame{
		Index:     0,
		Sequence:  buf.sequence,
		Timestamp: time.Now(),
		data:      buf.mem[:n],
	}
	if s.stats != nil {
		s.stats.FrameDequeued(s.dev.h.Path(), n, time.Since(begin))
	}
	return frame, nil
}

// Write sends one output frame: it claims an application-owned buffer
// (waiting for the kernel to drain one if none is free), copies data in and
// enqueues it. Only valid on output queues.
func (s *Stream) Write(data []byte) error {
	s.mu.Lock()
	if s.state != StateStreaming {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("write in state %s: %w", st, device.ErrInvalidState)
	}
	pool := s.pool
	s.mu.Unlock()

	if s.btype != BufTypeVideoOutput && s.btype != BufTypeMetaOutput {
		return fmt.Errorf("write on %s stream: %w", s.btype, device.ErrInvalidState)
	}
	if s.backing == ReadWrite {
		_, err := s.dev.h.Write(data)
		return err
	}

	i := pool.freeBuffer()
	if i < 0 {
		var err error
		i, err = pool.Dequeue(s.timeout)
		if err != nil {
			return err
		}
	}

	pool.mu.Lock()
	mem := pool.bufs[i].mem
	pool.mu.Unlock()
	if len(data) > len(mem) {
		return fmt.Errorf("frame of %d bytes exceeds buffer size %d: %w",
			len(data), len(mem), device.ErrInvalidState)
	}
	copy(mem, data)
	return pool.Enqueue(i, uint32(len(data)))
}

// Frames returns the lazy frame sequence. Iteration ends normally when the
// stream stops or the handle closes; any other failure is yielded once with
// a nil frame and then ends the sequence. The sequence is restartable only
// through a full Stop then Start.
func (s *Stream) Frames() iter.Seq2[*Frame, error] {
	return func(yield func(*Frame, error) bool) {
		for {
			frame, err := s.Next()
			if err != nil {
				if errors.Is(err, device.ErrStopped) {
					return // expected terminal condition, not an error
				}
				yield(nil, err)
				return
			}
			if !yield(frame, nil) {
				return
			}
		}
	}
}

// Stop issues stream-off and releases the pool
// (STREAMING→STOPPED). Buffers dequeued but not re-enqueued are dropped;
// the kernel flushes its own queue on stream-off. Idempotent.
func (s *Stream) Stop() error {
	s.mu.Lock()
	if s.state != StateStreaming {
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopped
	pool := s.pool
	s.pool = nil
	s.lastIndex = -1
	s.mu.Unlock()

	pool.markStopped()
	var err error
	if s.backing != ReadWrite {
		err = s.dev.streamOff(s.btype)
	}
	pool.Release()

	if s.stats != nil {
		s.stats.StreamStopped(s.dev.h.Path())
	}
	return err
}

// freeBuffer returns an application-owned buffer index, or -1.
func (p *Pool) freeBuffer() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.bufs {
		if p.bufs[i].owner == OwnerApplication {
			return i
		}
	}
	return -1
}
