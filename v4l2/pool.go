//go:build linux

package v4l2

import (
	"errors"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/tiagocoutinho/linuxgo/device"
)

// Backing selects the memory-access strategy for streaming buffers.
type Backing int

const (
	// MemoryMap: kernel-allocated buffers mapped into the process. No
	// per-frame copy; requires streaming capability.
	MemoryMap Backing = iota
	// UserPtr: the application supplies memory per buffer.
	UserPtr
	// ReadWrite: no streaming buffers at all; frames travel through the
	// raw read/write path and the pool is conceptually one buffer deep.
	ReadWrite
)

func (b Backing) String() string {
	switch b {
	case MemoryMap:
		return "mmap"
	case UserPtr:
		return "userptr"
	case ReadWrite:
		return "read-write"
	default:
		return fmt.Sprintf("Backing(%d)", int(b))
	}
}

func (b Backing) memory() Memory {
	if b == UserPtr {
		return MemoryUserPtr
	}
	return MemoryMMap
}

// Owner tracks which side of the kernel boundary holds a buffer.
type Owner int

const (
	OwnerApplication Owner = iota
	OwnerKernel
)

func (o Owner) String() string {
	if o == OwnerKernel {
		return "kernel"
	}
	return "application"
}

type poolBuffer struct {
	index     uint32
	length    uint32
	offset    uint32
	mem       []byte // mmap slice, user-supplied memory, or rw scratch
	owner     Owner
	bytesUsed uint32
	sequence  uint32
	timestamp time.Time
}

// Pool owns a fixed set of kernel-negotiated streaming buffers and, for the
// mmap backing, the mappings themselves. Mapped memory never outlives the
// device handle: Release is registered with the handle's close path.
//
// Invariants: pool size is fixed after allocation; a buffer is never
// enqueued while kernel-owned or dequeued while application-owned; at most
// len(bufs) buffers are queued to the kernel at any time.
type Pool struct {
	dev     *Device
	btype   BufType
	backing Backing

	mu       sync.Mutex
	bufs     []poolBuffer
	queued   int
	stopped  bool
	released bool
}

// NewPool allocates count buffers of the already-negotiated format.
//
// For MemoryMap each kernel buffer is mapped into the process; a failure
// mid-allocation unwinds every mapping already made before returning. For
// UserPtr the pool stores descriptors only and the application attaches
// memory per buffer with SetUserBuffer. For ReadWrite the pool is one
// scratch buffer of the format's image size and no kernel buffers exist.
func (d *Device) NewPool(t BufType, count int, backing Backing) (*Pool, error) {
	if count < 1 {
		return nil, fmt.Errorf("buffer count %d: %w", count, device.ErrInvalidState)
	}
	p := &Pool{dev: d, btype: t, backing: backing}

	if backing == ReadWrite {
		f, err := d.GetFormat(t)
		if err != nil {
			return nil, err
		}
		p.bufs = []poolBuffer{{index: 0, length: f.SizeImage, mem: make([]byte, f.SizeImage)}}
		d.h.OnClose(p.Release)
		return p, nil
	}

	rb := RequestBuffers{Count: uint32(count), Type: t, Memory: backing.memory()}
	raw, _ := rb.MarshalBinary()
	if err := control(d.h, vidiocRequestBuffers, raw); err != nil {
		return nil, fmt.Errorf("request %d buffers: %w", count, err)
	}
	if err := rb.UnmarshalBinary(raw); err != nil {
		return nil, err
	}
	if rb.Count == 0 {
		return nil, fmt.Errorf("driver granted no buffers: %w", device.ErrResource)
	}

	p.bufs = make([]poolBuffer, rb.Count)
	for i := range p.bufs {
		b := Buffer{Index: uint32(i), Type: t, Memory: backing.memory()}
		braw, _ := b.MarshalBinary()
		if err := control(d.h, vidiocQueryBuf, braw); err != nil {
			p.unwind(i)
			return nil, fmt.Errorf("query buffer %d: %w", i, err)
		}
		if err := b.UnmarshalBinary(braw); err != nil {
			p.unwind(i)
			return nil, err
		}
		p.bufs[i] = poolBuffer{index: uint32(i), length: b.Length, offset: b.Offset()}
		if backing == MemoryMap {
			mem, err := mapBuffer(d.h.Fd(), b.Offset(), b.Length)
			if err != nil {
				p.unwind(i)
				return nil, fmt.Errorf("map buffer %d: %w: %v", i, device.ErrResource, err)
			}
			p.bufs[i].mem = mem
		}
	}

	d.h.OnClose(p.Release)
	return p, nil
}

// unwind releases the first n buffers' mappings and frees the kernel set
// after a failure mid-allocation.
func (p *Pool) unwind(n int) {
	for i := 0; i < n; i++ {
		if p.backing == MemoryMap && p.bufs[i].mem != nil {
			unmapBuffer(p.bufs[i].mem)
			p.bufs[i].mem = nil
		}
	}
	p.freeKernelBuffers()
	p.released = true
}

// Size returns the number of buffers, fixed at allocation.
func (p *Pool) Size() int { return len(p.bufs) }

// Backing returns the memory-access strategy.
func (p *Pool) Backing() Backing { return p.backing }

// Owner reports which side currently holds buffer i.
func (p *Pool) Owner(i int) Owner {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bufs[i].owner
}

// SetUserBuffer attaches application memory to buffer i (UserPtr backing).
func (p *Pool) SetUserBuffer(i int, mem []byte) error {
	if p.backing != UserPtr {
		return fmt.Errorf("backing is %s, not userptr: %w", p.backing, device.ErrInvalidState)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bufs[i].owner != OwnerApplication {
		return fmt.Errorf("buffer %d is kernel-owned: %w", i, device.ErrInvalidState)
	}
	p.bufs[i].mem = mem
	p.bufs[i].length = uint32(len(mem))
	return nil
}

// Enqueue hands buffer i to the kernel (APPLICATION→KERNEL). bytesUsed is
// meaningful for output queues; pass 0 for capture.
func (p *Pool) Enqueue(i int, bytesUsed uint32) error {
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return fmt.Errorf("pool released: %w", device.ErrInvalidState)
	}
	if i < 0 || i >= len(p.bufs) {
		p.mu.Unlock()
		return fmt.Errorf("buffer index %d out of range: %w", i, device.ErrInvalidState)
	}
	if p.bufs[i].owner != OwnerApplication {
		p.mu.Unlock()
		return fmt.Errorf("buffer %d already kernel-owned: %w", i, device.ErrInvalidState)
	}
	buf := p.bufs[i]
	p.mu.Unlock()

	if p.backing == ReadWrite {
		// No kernel queue; write happens on dequeue-equivalent path.
		return fmt.Errorf("enqueue with read-write backing: %w", device.ErrInvalidState)
	}

	b := Buffer{
		Index:     buf.index,
		Type:      p.btype,
		Memory:    p.backing.memory(),
		BytesUsed: bytesUsed,
		Length:    buf.length,
	}
	if p.backing == UserPtr {
		if buf.mem == nil {
			return fmt.Errorf("buffer %d has no user memory attached: %w", i, device.ErrInvalidState)
		}
		b.M = userPtr(buf.mem)
		b.Length = uint32(len(buf.mem))
	}
	raw, _ := b.MarshalBinary()
	if err := control(p.dev.h, vidiocQueueBuf, raw); err != nil {
		return fmt.Errorf("enqueue buffer %d: %w", i, err)
	}

	p.mu.Lock()
	p.bufs[i].owner = OwnerKernel
	p.queued++
	p.mu.Unlock()
	return nil
}

// Dequeue blocks through the I/O backend until the kernel marks a buffer
// filled (capture) or drained (output), then flips it KERNEL→APPLICATION
// and returns its index. A zero timeout waits indefinitely.
//
// Fails with device.ErrStopped if streaming stopped concurrently or the
// handle closed, and device.ErrTimeout on deadline.
func (p *Pool) Dequeue(timeout time.Duration) (int, error) {
	for {
		p.mu.Lock()
		stopped := p.stopped || p.released
		p.mu.Unlock()
		if stopped {
			return 0, fmt.Errorf("dequeue: %w", device.ErrStopped)
		}

		if err := p.dev.h.AwaitReadable(timeout); err != nil {
			return 0, err
		}

		b := Buffer{Type: p.btype, Memory: p.backing.memory()}
		raw, _ := b.MarshalBinary()
		err := control(p.dev.h, vidiocDequeueBuf, raw)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) {
				continue // spurious readiness
			}
			p.mu.Lock()
			stopped = p.stopped || p.released
			p.mu.Unlock()
			if stopped || errors.Is(err, unix.EINVAL) || errors.Is(err, unix.EIO) {
				return 0, fmt.Errorf("dequeue: %w", device.ErrStopped)
			}
			return 0, err
		}
		if err := b.UnmarshalBinary(raw); err != nil {
			return 0, err
		}

		i := int(b.Index)
		p.mu.Lock()
		if i >= len(p.bufs) || p.bufs[i].owner != OwnerKernel {
			p.mu.Unlock()
			return 0, fmt.Errorf("kernel returned buffer %d in unexpected state: %w",
				i, device.ErrInvalidState)
		}
		p.bufs[i].owner = OwnerApplication
		p.bufs[i].bytesUsed = b.BytesUsed
		p.bufs[i].sequence = b.Sequence
		p.bufs[i].timestamp = b.Timestamp()
		p.queued--
		p.mu.Unlock()
		return i, nil
	}
}

// Queued returns how many buffers the kernel currently holds.
func (p *Pool) Queued() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queued
}

// markStopped makes pending and future dequeues fail with ErrStopped.
func (p *Pool) markStopped() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
}

// Release unmaps all mapped memory and frees the kernel buffer set. Safe to
// call repeatedly; also invoked automatically when the handle closes.
// Buffers the kernel still held are dropped — STREAMOFF flushed its queue.
func (p *Pool) Release() {
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return
	}
	p.released = true
	p.stopped = true
	bufs := p.bufs
	p.mu.Unlock()

	for i := range bufs {
		if p.backing == MemoryMap && bufs[i].mem != nil {
			unmapBuffer(bufs[i].mem)
			bufs[i].mem = nil
		}
		bufs[i].owner = OwnerApplication
	}
	if p.backing != ReadWrite {
		p.freeKernelBuffers()
	}
}

// userPtr encodes the address of application-supplied memory for the
// USERPTR union member.
func userPtr(mem []byte) uint64 {
	return uint64(uintptr(unsafe.Pointer(&mem[0])))
}

func (p *Pool) freeKernelBuffers() {
	rb := RequestBuffers{Count: 0, Type: p.btype, Memory: p.backing.memory()}
	raw, _ := rb.MarshalBinary()
	// Best effort: the handle may already be closing.
	control(p.dev.h, vidiocRequestBuffers, raw)
}
