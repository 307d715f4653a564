//go:build linux

// Package input reads Linux event devices (/dev/input/event*): device
// identity, capability bits, absolute axis ranges, exclusive grabs and the
// event stream itself. It also creates virtual devices through /dev/uinput
// for event injection.
package input

import (
	"fmt"
	"time"

	"github.com/tiagocoutinho/linuxgo/ioctl"
	"github.com/tiagocoutinho/linuxgo/layout"
)

// Event types (EV_*).
type EventType uint16

const (
	EvSyn EventType = 0x00
	EvKey EventType = 0x01
	EvRel EventType = 0x02
	EvAbs EventType = 0x03
	EvMsc EventType = 0x04
	EvSw  EventType = 0x05
	EvLed EventType = 0x11
	EvSnd EventType = 0x12
	EvRep EventType = 0x14
)

func (t EventType) String() string {
	switch t {
	case EvSyn:
		return "syn"
	case EvKey:
		return "key"
	case EvRel:
		return "rel"
	case EvAbs:
		return "abs"
	case EvMsc:
		return "msc"
	case EvSw:
		return "sw"
	case EvLed:
		return "led"
	case EvSnd:
		return "snd"
	case EvRep:
		return "rep"
	default:
		return fmt.Sprintf("EventType(%#x)", uint16(t))
	}
}

// evMax is the highest event type number (EV_MAX).
const evMax = 0x1f

// Pinned sizes of the evdev layouts (64-bit generation).
const (
	eventSize   = 24
	idSize      = 8
	absInfoSize = 24
)

const inputMagic = 'E'

var (
	eviocgID   = ioctl.IOR(inputMagic, 0x02, idSize)
	eviocgRep  = ioctl.IOR(inputMagic, 0x03, 8)
	eviocgGrab = ioctl.IOW(inputMagic, 0x90, 4)
)

func eviocgName(n uint32) uint32 { return ioctl.IOR(inputMagic, 0x06, n) }
func eviocgPhys(n uint32) uint32 { return ioctl.IOR(inputMagic, 0x07, n) }
func eviocgUniq(n uint32) uint32 { return ioctl.IOR(inputMagic, 0x08, n) }
func eviocgBit(ev EventType, n uint32) uint32 {
	return ioctl.IOR(inputMagic, 0x20+uint32(ev), n)
}
func eviocgAbs(axis uint16) uint32 {
	return ioctl.IOR(inputMagic, 0x40+uint32(axis), absInfoSize)
}

// Event mirrors input_event (24 bytes on 64-bit): sec i64@0 usec i64@8
// type u16@16 code u16@18 value i32@20.
type Event struct {
	Sec   int64
	Usec  int64
	Type  EventType
	Code  uint16
	Value int32
}

// Time converts the kernel timestamp.
func (e Event) Time() time.Time {
	return time.Unix(e.Sec, e.Usec*1000)
}

func (e *Event) MarshalBinary() ([]byte, error) {
	u := layout.New("input_event", eventSize)
	u.PutI64(0, e.Sec)
	u.PutI64(8, e.Usec)
	u.PutU16(16, uint16(e.Type))
	u.PutU16(18, e.Code)
	u.PutI32(20, e.Value)
	return u.Bytes(), nil
}

func (e *Event) UnmarshalBinary(b []byte) error {
	u, err := layout.Wrap("input_event", b, eventSize)
	if err != nil {
		return err
	}
	e.Sec = u.I64(0)
	e.Usec = u.I64(8)
	e.Type = EventType(u.U16(16))
	e.Code = u.U16(18)
	e.Value = u.I32(20)
	return nil
}

// ID mirrors input_id (8 bytes): bustype u16@0 vendor u16@2 product u16@4
// version u16@6.
type ID struct {
	BusType uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

func (d *ID) MarshalBinary() ([]byte, error) {
	u := layout.New("input_id", idSize)
	u.PutU16(0, d.BusType)
	u.PutU16(2, d.Vendor)
	u.PutU16(4, d.Product)
	u.PutU16(6, d.Version)
	return u.Bytes(), nil
}

func (d *ID) UnmarshalBinary(b []byte) error {
	u, err := layout.Wrap("input_id", b, idSize)
	if err != nil {
		return err
	}
	d.BusType = u.U16(0)
	d.Vendor = u.U16(2)
	d.Product = u.U16(4)
	d.Version = u.U16(6)
	return nil
}

// AbsInfo mirrors input_absinfo (24 bytes): value min max fuzz flat
// resolution, all i32.
type AbsInfo struct {
	Value      int32
	Minimum    int32
	Maximum    int32
	Fuzz       int32
	Flat       int32
	Resolution int32
}

func (a *AbsInfo) MarshalBinary() ([]byte, error) {
	u := layout.New("input_absinfo", absInfoSize)
	u.PutI32(0, a.Value)
	u.PutI32(4, a.Minimum)
	u.PutI32(8, a.Maximum)
	u.PutI32(12, a.Fuzz)
	u.PutI32(16, a.Flat)
	u.PutI32(20, a.Resolution)
	return u.Bytes(), nil
}

func (a *AbsInfo) UnmarshalBinary(b []byte) error {
	u, err := layout.Wrap("input_absinfo", b, absInfoSize)
	if err != nil {
		return err
	}
	a.Value = u.I32(0)
	a.Minimum = u.I32(4)
	a.Maximum = u.I32(8)
	a.Fuzz = u.I32(12)
	a.Flat = u.I32(16)
	a.Resolution = u.I32(20)
	return nil
}
