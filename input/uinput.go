//go:build linux

package input

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"

	"golang.org/x/sys/unix"

	"github.com/tiagocoutinho/linuxgo/device"
	"github.com/tiagocoutinho/linuxgo/ioctl"
	"github.com/tiagocoutinho/linuxgo/layout"
)

// UInputPath is the kernel node for creating emulated input devices.
const UInputPath = "/dev/uinput"

const uinputMagic = 'U'

// uinput_setup (92 bytes): input_id@0 name[80]@8 ff_effects_max u32@88.
const uinputSetupSize = 92

var (
	uiDevCreate  = ioctl.IO(uinputMagic, 1)
	uiDevDestroy = ioctl.IO(uinputMagic, 2)
	uiDevSetup   = ioctl.IOW(uinputMagic, 3, uinputSetupSize)
	uiSetEvBit   = ioctl.IOW(uinputMagic, 100, 4)
	uiSetKeyBit  = ioctl.IOW(uinputMagic, 101, 4)
	uiSetRelBit  = ioctl.IOW(uinputMagic, 102, 4)
	uiSetAbsBit  = ioctl.IOW(uinputMagic, 103, 4)
	uiSetMscBit  = ioctl.IOW(uinputMagic, 104, 4)
)

// Bit-registration requests carry the value in the ioctl argument word
// itself, not behind a pointer, so they bypass the byte-payload control
// path. Routed through a var so tests can stand in a fake kernel.
var setBit = func(h *device.Handle, req uint32, val int) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(h.Fd()), uintptr(req), uintptr(val))
	if errno != 0 {
		return errno
	}
	return nil
}

// Capabilities declares the event codes a virtual device can emit, keyed by
// event type. Key, relative, absolute and miscellaneous codes register one
// by one; any other listed type registers the type bit alone.
type Capabilities map[EventType][]uint16

// VirtualConfig identifies a virtual device before creation. A zero BusType
// means virtual bus; an empty Name gets a generic one.
type VirtualConfig struct {
	Name         string
	BusType      uint16
	Vendor       uint16
	Product      uint16
	Capabilities Capabilities
}

// BusVirtual is the bus type reported by emulated devices (BUS_VIRTUAL).
const BusVirtual = 0x06

// Virtual is an emulated input device. Events written to it surface on a
// kernel-created event node as if produced by hardware.
type Virtual struct {
	h       *device.Handle
	created bool
}

// VirtualAvailable reports whether the uinput node exists.
func VirtualAvailable() bool {
	_, err := os.Stat(UInputPath)
	return err == nil
}

// CreateVirtual opens the uinput node, registers the configured
// capabilities and creates the device. Close destroys it again.
func CreateVirtual(path string, cfg VirtualConfig, opts ...device.Option) (*Virtual, error) {
	if path == "" {
		path = UInputPath
	}
	h, err := device.Open(path, opts...)
	if err != nil {
		return nil, err
	}
	v, err := VirtualFromHandle(h, cfg)
	if err != nil {
		h.Close()
		return nil, err
	}
	return v, nil
}

// VirtualFromHandle runs capability registration, setup and creation on an
// already-open handle. The virtual device owns the handle afterwards.
func VirtualFromHandle(h *device.Handle, cfg VirtualConfig) (*Virtual, error) {
	v := &Virtual{h: h}
	if err := v.setup(cfg); err != nil {
		return nil, err
	}
	if err := control(h, uiDevCreate, nil); err != nil {
		return nil, fmt.Errorf("create virtual device: %w", err)
	}
	v.created = true
	return v, nil
}

func (v *Virtual) setup(cfg VirtualConfig) error {
	for _, t := range slices.Sorted(maps.Keys(cfg.Capabilities)) {
		if err := setBit(v.h, uiSetEvBit, int(t)); err != nil {
			return fmt.Errorf("register event type %v: %w", t, err)
		}
		var req uint32
		switch t {
		case EvKey:
			req = uiSetKeyBit
		case EvRel:
			req = uiSetRelBit
		case EvAbs:
			req = uiSetAbsBit
		case EvMsc:
			req = uiSetMscBit
		default:
			continue
		}
		for _, code := range cfg.Capabilities[t] {
			if err := setBit(v.h, req, int(code)); err != nil {
				return fmt.Errorf("register %v code %d: %w", t, code, err)
			}
		}
	}

	bus := cfg.BusType
	if bus == 0 {
		bus = BusVirtual
	}
	name := cfg.Name
	if name == "" {
		name = "linuxgo virtual device"
	}
	u := layout.New("uinput_setup", uinputSetupSize)
	u.PutU16(0, bus)
	u.PutU16(2, cfg.Vendor)
	u.PutU16(4, cfg.Product)
	u.PutStr(8, 80, name)
	if err := control(v.h, uiDevSetup, u.Bytes()); err != nil {
		return fmt.Errorf("device setup: %w", err)
	}
	return nil
}

// Path returns the uinput node path, not the event node the kernel creates
// for readers.
func (v *Virtual) Path() string { return v.h.Path() }

// Emit injects one event followed by a synchronization report.
func (v *Virtual) Emit(t EventType, code uint16, value int32) error {
	if err := v.write(Event{Type: t, Code: code, Value: value}); err != nil {
		return err
	}
	return v.Sync()
}

// Sync flushes pending injected events to readers as one report.
func (v *Virtual) Sync() error {
	return v.write(Event{Type: EvSyn})
}

func (v *Virtual) write(ev Event) error {
	raw, err := ev.MarshalBinary()
	if err != nil {
		return err
	}
	n, err := v.h.Write(raw)
	if err != nil {
		return err
	}
	if n != eventSize {
		return fmt.Errorf("short event write of %d bytes: %w", n, device.ErrResource)
	}
	return nil
}

// Close destroys the virtual device and releases the node.
func (v *Virtual) Close() error {
	if v.created {
		v.created = false
		if err := control(v.h, uiDevDestroy, nil); err != nil && !errors.Is(err, device.ErrClosed) {
			v.h.Close()
			return fmt.Errorf("destroy virtual device: %w", err)
		}
	}
	return v.h.Close()
}
