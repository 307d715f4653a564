//go:build linux

package v4l2

import "time"

// Frame is a transient, read-only view over one buffer's bytes, valid only
// between the dequeue that produced it and the buffer's next enqueue. It
// borrows the buffer's memory — callers needing the data past that window
// must Copy. This mirrors the kernel's own buffer-ownership contract and is
// a documented caller obligation, not a runtime-enforced lock.
type Frame struct {
	// Index of the backing buffer in its pool.
	Index int
	// Sequence is the kernel's frame counter.
	Sequence uint32
	// Timestamp is the kernel capture/output timestamp.
	Timestamp time.Time

	data []byte
}

// Bytes returns the frame payload. The slice aliases kernel-mapped memory;
// it must not be retained past the buffer's re-enqueue.
func (f *Frame) Bytes() []byte { return f.data }

// Len returns the payload length in bytes.
func (f *Frame) Len() int { return len(f.data) }

// Copy returns a copy of the payload that survives re-enqueue.
func (f *Frame) Copy() []byte {
	out := make([]byte, len(f.data))
	copy(out, f.data)
	return out
}
