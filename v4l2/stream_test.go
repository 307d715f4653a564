//go:build linux

package v4l2

import (
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/tiagocoutinho/linuxgo/backend"
	"github.com/tiagocoutinho/linuxgo/device"
)

// fakeKernel simulates a V4L2 capture driver behind the injected control
// function. Readiness is real: every buffer the fake marks filled writes one
// byte to the pipe the device handle polls, and a successful DQBUF consumes
// one, so the backend wait path is exercised for real.
type fakeKernel struct {
	t     *testing.T
	pipeR int
	pipeW int

	mu         sync.Mutex
	width      uint32 // the only size the device supports
	height     uint32
	rejectAll  bool // reject formats outright instead of adjusting
	granted    uint32
	bufLen     uint32
	queue      []uint32 // kernel-owned buffer indices, FIFO
	streaming  bool
	sequence   uint32
	unmapCalls int
}

func (k *fakeKernel) sizeImage() uint32 { return k.width * k.height * 2 }

func (k *fakeKernel) ioctl(req uint32, arg []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	switch req {
	case vidiocQueryCap:
		c := Capability{
			Driver:       "fakevid",
			Card:         "Fake Capture",
			BusInfo:      "platform:fake",
			Capabilities: CapVideoCapture | CapStreaming | CapReadWrite | CapDeviceCaps,
			DeviceCaps:   CapVideoCapture | CapStreaming | CapReadWrite,
		}
		raw, _ := c.MarshalBinary()
		copy(arg, raw)
		return nil

	case vidiocTryFormat, vidiocSetFormat:
		var f Format
		if err := f.UnmarshalBinary(arg); err != nil {
			return err
		}
		if k.rejectAll {
			return &device.DeviceError{Op: "ioctl", Errno: unix.EINVAL}
		}
		// The driver silently adjusts to the single supported size.
		f.Width = k.width
		f.Height = k.height
		f.PixelFormat = PixelFormatYUYV
		f.BytesPerLine = k.width * 2
		f.SizeImage = k.sizeImage()
		raw, _ := f.MarshalBinary()
		copy(arg, raw)
		return nil

	case vidiocGetFormat:
		f := Format{
			Type: BufTypeVideoCapture, Width: k.width, Height: k.height,
			PixelFormat: PixelFormatYUYV, BytesPerLine: k.width * 2, SizeImage: k.sizeImage(),
		}
		raw, _ := f.MarshalBinary()
		copy(arg, raw)
		return nil

	case vidiocRequestBuffers:
		var rb RequestBuffers
		if err := rb.UnmarshalBinary(arg); err != nil {
			return err
		}
		k.granted = rb.Count
		k.bufLen = k.sizeImage()
		k.queue = nil
		raw, _ := rb.MarshalBinary()
		copy(arg, raw)
		return nil

	case vidiocQueryBuf:
		var b Buffer
		if err := b.UnmarshalBinary(arg); err != nil {
			return err
		}
		b.Length = k.bufLen
		b.M = uint64(b.Index) * uint64(k.bufLen)
		raw, _ := b.MarshalBinary()
		copy(arg, raw)
		return nil

	case vidiocQueueBuf:
		var b Buffer
		if err := b.UnmarshalBinary(arg); err != nil {
			return err
		}
		k.queue = append(k.queue, b.Index)
		// The fake fills buffers instantly: queued means ready.
		unix.Write(k.pipeW, []byte{1})
		return nil

	case vidiocDequeueBuf:
		if !k.streaming {
			return &device.DeviceError{Op: "ioctl", Errno: unix.EINVAL}
		}
		if len(k.queue) == 0 {
			return &device.DeviceError{Op: "ioctl", Errno: unix.EAGAIN}
		}
		idx := k.queue[0]
		k.queue = k.queue[1:]
		k.sequence++
		var tmp [1]byte
		unix.Read(k.pipeR, tmp[:])
		b := Buffer{
			Index: idx, Type: BufTypeVideoCapture, Memory: MemoryMMap,
			BytesUsed: k.bufLen, Sequence: k.sequence, Length: k.bufLen,
			TimestampSec: time.Now().Unix(),
		}
		raw, _ := b.MarshalBinary()
		copy(arg, raw)
		return nil

	case vidiocStreamOn:
		k.streaming = true
		return nil

	case vidiocStreamOff:
		k.streaming = false
		// Stream-off flushes the kernel queue and its readiness.
		var tmp [1]byte
		for range k.queue {
			unix.Read(k.pipeR, tmp[:])
		}
		k.queue = nil
		return nil

	default:
		k.t.Fatalf("fake kernel: unexpected request %#x", req)
		return nil
	}
}

// newFakeDevice wires a Device to a fakeKernel over a real pipe.
func newFakeDevice(t *testing.T) (*Device, *fakeKernel) {
	t.Helper()

	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		t.Fatalf("pipe: %v", err)
	}
	k := &fakeKernel{t: t, pipeR: p[0], pipeW: p[1], width: 320, height: 240}

	origControl, origMap, origUnmap := control, mapBuffer, unmapBuffer
	control = func(h *device.Handle, req uint32, arg []byte) error {
		return k.ioctl(req, arg)
	}
	mapBuffer = func(fd int, offset, length uint32) ([]byte, error) {
		return make([]byte, length), nil
	}
	unmapBuffer = func(b []byte) error {
		k.mu.Lock()
		k.unmapCalls++
		k.mu.Unlock()
		return nil
	}
	t.Cleanup(func() {
		control, mapBuffer, unmapBuffer = origControl, origMap, origUnmap
		unix.Close(p[1])
	})

	h, err := device.FromFd(p[0], "/dev/video9")
	if err != nil {
		t.Fatalf("FromFd: %v", err)
	}
	t.Cleanup(func() { h.Close() })

	d, err := FromHandle(h)
	if err != nil {
		t.Fatalf("FromHandle: %v", err)
	}
	return d, k
}

func TestNegotiateAdjustsInsteadOfFailing(t *testing.T) {
	d, _ := newFakeDevice(t)

	// Propose 640x480 against a device that only does 320x240.
	got, err := d.NegotiateFormat(Format{
		Type: BufTypeVideoCapture, Width: 640, Height: 480, PixelFormat: PixelFormatYUYV,
	})
	if err != nil {
		t.Fatalf("NegotiateFormat: %v", err)
	}
	if got.Width != 320 || got.Height != 240 {
		t.Errorf("got %dx%d, want 320x240", got.Width, got.Height)
	}
	if got.SizeImage != 320*240*2 {
		t.Errorf("SizeImage: got %d", got.SizeImage)
	}
}

func TestNegotiateOutrightRejection(t *testing.T) {
	d, k := newFakeDevice(t)
	k.rejectAll = true

	_, err := d.NegotiateFormat(Format{Type: BufTypeVideoCapture, Width: 640, Height: 480})
	if !errors.Is(err, device.ErrUnsupportedFormat) {
		t.Errorf("got %v, want ErrUnsupportedFormat", err)
	}
}

func TestPoolOwnershipStateMachine(t *testing.T) {
	d, k := newFakeDevice(t)
	if _, err := d.NegotiateFormat(Format{Type: BufTypeVideoCapture, Width: 320, Height: 240}); err != nil {
		t.Fatal(err)
	}
	pool, err := d.NewPool(BufTypeVideoCapture, 4, MemoryMap)
	if err != nil {
		t.Fatal(err)
	}
	k.mu.Lock()
	k.streaming = true
	k.mu.Unlock()

	if pool.Size() != 4 {
		t.Fatalf("pool size %d", pool.Size())
	}
	for i := 0; i < 4; i++ {
		if pool.Owner(i) != OwnerApplication {
			t.Fatalf("buffer %d not application-owned at start", i)
		}
	}

	if err := pool.Enqueue(1, 0); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if pool.Owner(1) != OwnerKernel {
		t.Error("ownership did not flip to kernel")
	}

	// Double enqueue violates the state machine.
	if err := pool.Enqueue(1, 0); !errors.Is(err, device.ErrInvalidState) {
		t.Errorf("double enqueue: got %v, want ErrInvalidState", err)
	}

	i, err := pool.Dequeue(time.Second)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if i != 1 || pool.Owner(1) != OwnerApplication {
		t.Errorf("dequeue returned %d, owner %v", i, pool.Owner(1))
	}
}

func TestBackpressureBlocksUntilEnqueue(t *testing.T) {
	d, k := newFakeDevice(t)
	if _, err := d.NegotiateFormat(Format{Type: BufTypeVideoCapture, Width: 320, Height: 240}); err != nil {
		t.Fatal(err)
	}
	pool, err := d.NewPool(BufTypeVideoCapture, 4, MemoryMap)
	if err != nil {
		t.Fatal(err)
	}
	k.mu.Lock()
	k.streaming = true
	k.mu.Unlock()

	for i := 0; i < 4; i++ {
		if err := pool.Enqueue(i, 0); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 4; i++ {
		if _, err := pool.Dequeue(time.Second); err != nil {
			t.Fatal(err)
		}
	}

	// All buffers application-owned: the next dequeue must block.
	result := make(chan int, 1)
	go func() {
		i, err := pool.Dequeue(5 * time.Second)
		if err != nil {
			result <- -1
			return
		}
		result <- i
	}()

	select {
	case i := <-result:
		t.Fatalf("dequeue returned %d with nothing in kernel flight", i)
	case <-time.After(50 * time.Millisecond):
	}

	if err := pool.Enqueue(2, 0); err != nil {
		t.Fatal(err)
	}
	select {
	case i := <-result:
		if i != 2 {
			t.Errorf("got buffer %d, want 2", i)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("dequeue did not wake after enqueue")
	}
}

func TestCloseCancelsSuspendedDequeue(t *testing.T) {
	d, k := newFakeDevice(t)
	if _, err := d.NegotiateFormat(Format{Type: BufTypeVideoCapture, Width: 320, Height: 240}); err != nil {
		t.Fatal(err)
	}
	pool, err := d.NewPool(BufTypeVideoCapture, 2, MemoryMap)
	if err != nil {
		t.Fatal(err)
	}
	k.mu.Lock()
	k.streaming = true
	k.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := pool.Dequeue(0) // no timeout: only close can unblock it
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	d.Close()

	select {
	case err := <-done:
		if !errors.Is(err, device.ErrStopped) {
			t.Errorf("got %v, want ErrStopped", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("close left the dequeue hanging")
	}
}

func TestStreamEndToEnd(t *testing.T) {
	d, k := newFakeDevice(t)
	s := NewStream(d, BufTypeVideoCapture, WithBufferCount(4))

	if s.State() != StateIdle {
		t.Fatalf("state %v", s.State())
	}
	actual, err := s.SetFormat(Format{Width: 640, Height: 480, PixelFormat: PixelFormatYUYV})
	if err != nil {
		t.Fatal(err)
	}
	if s.State() != StateFormatSet {
		t.Fatalf("state %v after SetFormat", s.State())
	}

	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	if s.State() != StateStreaming {
		t.Fatalf("state %v after Start", s.State())
	}

	frame, err := s.Next()
	if err != nil {
		t.Fatal(err)
	}
	if frame.Index < 0 || frame.Index > 3 {
		t.Errorf("frame index %d out of pool range", frame.Index)
	}
	if uint32(frame.Len()) != actual.SizeImage {
		t.Errorf("frame length %d, want %d", frame.Len(), actual.SizeImage)
	}
	if k.unmapCalls != 0 {
		t.Error("buffers unmapped while streaming")
	}

	// A handful of pulls cycle through the pool without error.
	for i := 0; i < 8; i++ {
		if _, err := s.Next(); err != nil {
			t.Fatalf("pull %d: %v", i, err)
		}
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if k.unmapCalls != 4 {
		t.Errorf("unmapped %d buffers, want 4", k.unmapCalls)
	}
	if _, err := s.Next(); !errors.Is(err, device.ErrStopped) {
		t.Errorf("Next after Stop: got %v, want ErrStopped", err)
	}
	// Stop is idempotent.
	if err := s.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestStopWithFramesInFlight(t *testing.T) {
	d, k := newFakeDevice(t)
	s := NewStream(d, BufTypeVideoCapture, WithBufferCount(4))
	if _, err := s.SetFormat(Format{Width: 320, Height: 240}); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	pool := s.pool
	// Pull two buffers out without re-enqueueing: 2 of 4 application-owned.
	if _, err := pool.Dequeue(time.Second); err != nil {
		t.Fatal(err)
	}
	if _, err := pool.Dequeue(time.Second); err != nil {
		t.Fatal(err)
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, err := pool.Dequeue(time.Second); !errors.Is(err, device.ErrStopped) {
		t.Errorf("dequeue after stop: got %v, want ErrStopped", err)
	}
	if k.unmapCalls != 4 {
		t.Errorf("release unmapped %d of 4", k.unmapCalls)
	}
	pool.Release() // second release is a no-op
	if k.unmapCalls != 4 {
		t.Error("double release unmapped again")
	}
}

func TestFramesIteratorTerminatesOnStop(t *testing.T) {
	d, _ := newFakeDevice(t)
	s := NewStream(d, BufTypeVideoCapture, WithBufferCount(2))
	if _, err := s.SetFormat(Format{Width: 320, Height: 240}); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	count := 0
	for frame, err := range s.Frames() {
		if err != nil {
			t.Fatalf("iteration error: %v", err)
		}
		if frame.Len() == 0 {
			t.Fatal("empty frame")
		}
		count++
		if count == 5 {
			s.Stop()
		}
		if count > 16 {
			t.Fatal("iterator did not terminate after stop")
		}
	}
	if count < 5 {
		t.Errorf("iterated %d frames, want at least 5", count)
	}
}

func TestStreamBackendEquivalence(t *testing.T) {
	// The scripted fake kernel must yield the same frame index sequence
	// under all three execution models.
	collect := func(opts ...device.Option) []int {
		t.Helper()
		var p [2]int
		if err := unix.Pipe2(p[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
			t.Fatal(err)
		}
		k := &fakeKernel{t: t, pipeR: p[0], pipeW: p[1], width: 320, height: 240}

		origControl, origMap, origUnmap := control, mapBuffer, unmapBuffer
		control = func(h *device.Handle, req uint32, arg []byte) error { return k.ioctl(req, arg) }
		mapBuffer = func(fd int, offset, length uint32) ([]byte, error) { return make([]byte, length), nil }
		unmapBuffer = func(b []byte) error { return nil }
		defer func() {
			control, mapBuffer, unmapBuffer = origControl, origMap, origUnmap
			unix.Close(p[1])
		}()

		h, err := device.FromFd(p[0], "/dev/video9", opts...)
		if err != nil {
			t.Fatal(err)
		}
		defer h.Close()
		d, err := FromHandle(h)
		if err != nil {
			t.Fatal(err)
		}
		s := NewStream(d, BufTypeVideoCapture, WithBufferCount(3))
		if _, err := s.SetFormat(Format{Width: 320, Height: 240}); err != nil {
			t.Fatal(err)
		}
		if err := s.Start(); err != nil {
			t.Fatal(err)
		}
		defer s.Stop()

		var indices []int
		for i := 0; i < 9; i++ {
			frame, err := s.Next()
			if err != nil {
				t.Fatal(err)
			}
			indices = append(indices, frame.Index)
		}
		return indices
	}

	poller, err := backend.NewPoller()
	if err != nil {
		t.Fatal(err)
	}
	defer poller.Close()

	blocking := collect()
	suspending := collect(device.WithBackend(poller))
	lightweight := collect(device.WithBackend(backend.Goroutine{}))

	for run, got := range map[string][]int{"poller": suspending, "goroutine": lightweight} {
		for i := range blocking {
			if got[i] != blocking[i] {
				t.Errorf("%s diverged at pull %d: got %v, want %v", run, i, got, blocking)
				break
			}
		}
	}
}
