//go:build linux

package input

import (
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/tiagocoutinho/linuxgo/device"
	"github.com/tiagocoutinho/linuxgo/layout"
)

// Ioctl routing goes through a var so tests can stand in a fake kernel.
var control = func(h *device.Handle, req uint32, arg []byte) error {
	return h.Control(req, arg)
}

// Device is an open event device.
type Device struct {
	h       *device.Handle
	grabbed bool
}

// Open opens an event node such as /dev/input/event3.
func Open(path string, opts ...device.Option) (*Device, error) {
	h, err := device.Open(path, opts...)
	if err != nil {
		return nil, err
	}
	return &Device{h: h}, nil
}

// FromHandle wraps an existing handle. The device owns the handle afterwards.
func FromHandle(h *device.Handle) *Device { return &Device{h: h} }

// Path returns the device node path.
func (d *Device) Path() string { return d.h.Path() }

// Close releases the device, dropping any grab.
func (d *Device) Close() error { return d.h.Close() }

// ID reports bus type, vendor, product and version.
func (d *Device) ID() (ID, error) {
	var id ID
	raw, _ := id.MarshalBinary()
	if err := control(d.h, eviocgID, raw); err != nil {
		return ID{}, fmt.Errorf("device id: %w", err)
	}
	if err := id.UnmarshalBinary(raw); err != nil {
		return ID{}, err
	}
	return id, nil
}

// Name returns the device name string.
func (d *Device) Name() (string, error) { return d.str(eviocgName) }

// Phys returns the physical topology string.
func (d *Device) Phys() (string, error) { return d.str(eviocgPhys) }

// Uniq returns the unique identifier, often empty.
func (d *Device) Uniq() (string, error) { return d.str(eviocgUniq) }

func (d *Device) str(code func(uint32) uint32) (string, error) {
	buf := make([]byte, 256)
	if err := control(d.h, code(uint32(len(buf))), buf); err != nil {
		return "", err
	}
	s, _, _ := strings.Cut(string(buf), "\x00")
	return s, nil
}

// SupportedEvents returns the event types the device generates.
func (d *Device) SupportedEvents() ([]EventType, error) {
	// EVIOCGBIT(0, ...) yields a bitmask over event type numbers.
	bits := make([]byte, (evMax+7)/8)
	if err := control(d.h, eviocgBit(0, uint32(len(bits))), bits); err != nil {
		return nil, fmt.Errorf("event bits: %w", err)
	}
	var types []EventType
	for n := 1; n <= evMax; n++ {
		if bits[n/8]&(1<<uint(n%8)) != 0 {
			types = append(types, EventType(n))
		}
	}
	return types, nil
}

// AbsInfo reports the range of one absolute axis (ABS_X is axis 0).
func (d *Device) AbsInfo(axis uint16) (AbsInfo, error) {
	var ai AbsInfo
	raw, _ := ai.MarshalBinary()
	if err := control(d.h, eviocgAbs(axis), raw); err != nil {
		return AbsInfo{}, fmt.Errorf("abs info %d: %w", axis, err)
	}
	if err := ai.UnmarshalBinary(raw); err != nil {
		return AbsInfo{}, err
	}
	return ai, nil
}

// Repeat reports the key repeat delay and period in milliseconds.
func (d *Device) Repeat() (delay, period uint32, err error) {
	raw := make([]byte, 8)
	if err := control(d.h, eviocgRep, raw); err != nil {
		return 0, 0, fmt.Errorf("repeat: %w", err)
	}
	return layout.NativeEndian.Uint32(raw[:4]), layout.NativeEndian.Uint32(raw[4:]), nil
}

// Grab takes the device exclusively; other readers stop seeing events.
func (d *Device) Grab() error {
	arg := make([]byte, 4)
	layout.NativeEndian.PutUint32(arg, 1)
	if err := control(d.h, eviocgGrab, arg); err != nil {
		return fmt.Errorf("grab: %w", err)
	}
	d.grabbed = true
	return nil
}

// Ungrab releases an exclusive grab. No-op when not grabbed.
func (d *Device) Ungrab() error {
	if !d.grabbed {
		return nil
	}
	if err := control(d.h, eviocgGrab, nil); err != nil {
		return fmt.Errorf("ungrab: %w", err)
	}
	d.grabbed = false
	return nil
}

// ReadEvent waits for and returns one event. A zero timeout waits
// indefinitely; closing the device unblocks the wait with ErrStopped.
func (d *Device) ReadEvent(timeout time.Duration) (Event, error) {
	raw := make([]byte, eventSize)
	n, err := d.h.ReadTimeout(raw, timeout)
	if err != nil {
		return Event{}, err
	}
	if n != eventSize {
		return Event{}, fmt.Errorf("short event read of %d bytes: %w", n, device.ErrResource)
	}
	var ev Event
	if err := ev.UnmarshalBinary(raw); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// Events returns the lazy event sequence. Iteration ends normally when the
// device closes; any other failure is yielded once with a zero event.
func (d *Device) Events() iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for {
			ev, err := d.ReadEvent(0)
			if err != nil {
				if errors.Is(err, device.ErrStopped) || errors.Is(err, device.ErrClosed) {
					return
				}
				yield(Event{}, err)
				return
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}
