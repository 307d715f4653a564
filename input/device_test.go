//go:build linux

package input

import (
	"errors"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/tiagocoutinho/linuxgo/device"
	"github.com/tiagocoutinho/linuxgo/layout"
)

// fakeEvdev answers the introspection ioctls; events arrive through a real
// pipe so the read path goes through the backend like on hardware.
type fakeEvdev struct {
	t       *testing.T
	w       int
	grabbed bool
}

func newFakeEvdev(t *testing.T) (*fakeEvdev, *Device) {
	t.Helper()
	k := &fakeEvdev{t: t}

	prev := control
	control = k.control
	t.Cleanup(func() { control = prev })

	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		t.Fatal(err)
	}
	k.w = p[1]
	h, err := device.FromFd(p[0], "/dev/input/event3")
	if err != nil {
		t.Fatal(err)
	}
	d := FromHandle(h)
	t.Cleanup(func() {
		d.Close()
		unix.Close(p[1])
	})
	return k, d
}

func (k *fakeEvdev) control(h *device.Handle, req uint32, arg []byte) error {
	switch {
	case req == eviocgID:
		id := ID{BusType: 0x03, Vendor: 0x046d, Product: 0xc52b, Version: 0x111}
		raw, _ := id.MarshalBinary()
		copy(arg, raw)
	case req == eviocgName(uint32(len(arg))):
		copy(arg, "USB Receiver\x00")
	case req == eviocgBit(0, uint32(len(arg))):
		for i := range arg {
			arg[i] = 0
		}
		for _, et := range []EventType{EvSyn, EvKey, EvRel} {
			arg[int(et)/8] |= 1 << uint(int(et)%8)
		}
	case req == eviocgAbs(0):
		ai := AbsInfo{Value: 128, Minimum: 0, Maximum: 255, Fuzz: 4}
		raw, _ := ai.MarshalBinary()
		copy(arg, raw)
	case req == eviocgRep:
		layout.NativeEndian.PutUint32(arg[:4], 250)
		layout.NativeEndian.PutUint32(arg[4:], 33)
	case req == eviocgGrab:
		want := len(arg) == 4 && layout.NativeEndian.Uint32(arg) == 1
		if want == k.grabbed {
			return unix.EBUSY
		}
		k.grabbed = want
	default:
		return unix.ENOTTY
	}
	return nil
}

func (k *fakeEvdev) push(ev Event) {
	raw, _ := ev.MarshalBinary()
	if _, err := unix.Write(k.w, raw); err != nil {
		k.t.Fatal(err)
	}
}

func TestIdentity(t *testing.T) {
	_, d := newFakeEvdev(t)

	id, err := d.ID()
	if err != nil {
		t.Fatal(err)
	}
	if id.Vendor != 0x046d || id.Product != 0xc52b {
		t.Errorf("got %+v", id)
	}
	name, err := d.Name()
	if err != nil || name != "USB Receiver" {
		t.Errorf("Name: %q %v", name, err)
	}
	delay, period, err := d.Repeat()
	if err != nil || delay != 250 || period != 33 {
		t.Errorf("Repeat: %d %d %v", delay, period, err)
	}
}

func TestSupportedEvents(t *testing.T) {
	_, d := newFakeEvdev(t)
	types, err := d.SupportedEvents()
	if err != nil {
		t.Fatal(err)
	}
	// EV_SYN (type 0) is implicit and never listed.
	want := []EventType{EvKey, EvRel}
	if len(types) != len(want) {
		t.Fatalf("got %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("got %v, want %v", types, want)
		}
	}
}

func TestAbsInfo(t *testing.T) {
	_, d := newFakeEvdev(t)
	ai, err := d.AbsInfo(0)
	if err != nil {
		t.Fatal(err)
	}
	if ai.Maximum != 255 || ai.Fuzz != 4 {
		t.Errorf("got %+v", ai)
	}
}

func TestGrabUngrab(t *testing.T) {
	k, d := newFakeEvdev(t)

	if err := d.Ungrab(); err != nil {
		t.Errorf("ungrab without grab must be a no-op: %v", err)
	}
	if err := d.Grab(); err != nil {
		t.Fatal(err)
	}
	if !k.grabbed {
		t.Error("kernel did not record the grab")
	}
	if err := d.Ungrab(); err != nil {
		t.Fatal(err)
	}
	if k.grabbed {
		t.Error("kernel did not record the release")
	}
}

func TestReadEvent(t *testing.T) {
	k, d := newFakeEvdev(t)

	if _, err := d.ReadEvent(20 * time.Millisecond); !errors.Is(err, device.ErrTimeout) {
		t.Fatalf("idle device: got %v, want ErrTimeout", err)
	}

	want := Event{Sec: 1714138245, Usec: 500000, Type: EvKey, Code: 30, Value: 1}
	k.push(want)
	ev, err := d.ReadEvent(time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if ev != want {
		t.Errorf("got %+v, want %+v", ev, want)
	}
	if ev.Time().Unix() != want.Sec {
		t.Errorf("Time: got %v", ev.Time())
	}
}

func TestEventsEndOnClose(t *testing.T) {
	k, d := newFakeEvdev(t)

	for i := range 3 {
		k.push(Event{Type: EvKey, Code: uint16(30 + i), Value: 1})
	}

	got := make(chan []uint16, 1)
	go func() {
		var codes []uint16
		for ev, err := range d.Events() {
			if err != nil {
				t.Error(err)
				break
			}
			codes = append(codes, ev.Code)
			if len(codes) == 3 {
				go d.Close()
			}
		}
		got <- codes
	}()

	select {
	case codes := <-got:
		if len(codes) != 3 || codes[0] != 30 || codes[2] != 32 {
			t.Errorf("got codes %v", codes)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("iterator did not terminate on close")
	}
}
