//go:build linux

// Package gpio drives GPIO character devices (/dev/gpiochip*) through the
// v2 line uapi: chip and line introspection, line requests with automatic
// chunking, value get/set and edge events.
package gpio

import (
	"github.com/tiagocoutinho/linuxgo/ioctl"
	"github.com/tiagocoutinho/linuxgo/layout"
)

// MaxLinesPerRequest is the kernel's GPIO_V2_LINES_MAX: one line request
// addresses at most 64 offsets. Larger sets are split across requests.
const MaxLinesPerRequest = 64

// Pinned sizes of the v2 GPIO uapi layouts (64-bit generation).
const (
	chipInfoSize    = 68
	lineInfoSize    = 256
	lineConfigSize  = 272
	lineRequestSize = 592
	lineValuesSize  = 16
	lineEventSize   = 48
)

const gpioMagic = 0xB4

var (
	gpioGetChipInfo   = ioctl.IOR(gpioMagic, 0x01, chipInfoSize)
	gpioGetLineInfo   = ioctl.IOWR(gpioMagic, 0x05, lineInfoSize)
	gpioGetLine       = ioctl.IOWR(gpioMagic, 0x07, lineRequestSize)
	gpioLineGetValues = ioctl.IOWR(gpioMagic, 0x0E, lineValuesSize)
	gpioLineSetValues = ioctl.IOWR(gpioMagic, 0x0F, lineValuesSize)
)

// LineFlag configures and describes a line (gpio_v2_line_flag).
type LineFlag = layout.Flags64

const (
	LineFlagUsed         LineFlag = 1 << 0
	LineFlagActiveLow    LineFlag = 1 << 1
	LineFlagInput        LineFlag = 1 << 2
	LineFlagOutput       LineFlag = 1 << 3
	LineFlagEdgeRising   LineFlag = 1 << 4
	LineFlagEdgeFalling  LineFlag = 1 << 5
	LineFlagOpenDrain    LineFlag = 1 << 6
	LineFlagOpenSource   LineFlag = 1 << 7
	LineFlagBiasPullUp   LineFlag = 1 << 8
	LineFlagBiasPullDown LineFlag = 1 << 9
	LineFlagBiasDisabled LineFlag = 1 << 10
)

// Edge event identifiers (gpio_v2_line_event_id).
const (
	EventRisingEdge  uint32 = 1
	EventFallingEdge uint32 = 2
)

// ChipInfo mirrors gpiochip_info (68 bytes): name[32]@0 label[32]@32
// lines u32@64.
type ChipInfo struct {
	Name  string
	Label string
	Lines uint32
}

func (c *ChipInfo) MarshalBinary() ([]byte, error) {
	u := layout.New("gpiochip_info", chipInfoSize)
	u.PutStr(0, 32, c.Name)
	u.PutStr(32, 32, c.Label)
	u.PutU32(64, c.Lines)
	return u.Bytes(), nil
}

func (c *ChipInfo) UnmarshalBinary(b []byte) error {
	u, err := layout.Wrap("gpiochip_info", b, chipInfoSize)
	if err != nil {
		return err
	}
	c.Name = u.Str(0, 32)
	c.Label = u.Str(32, 32)
	c.Lines = u.U32(64)
	return nil
}

// LineInfo mirrors gpio_v2_line_info (256 bytes): name[32]@0 consumer[32]@32
// offset u32@64 num_attrs u32@68 flags u64@72 attrs[10]@80 padding[4]u32@240.
// Attributes are carried opaquely.
type LineInfo struct {
	Name     string
	Consumer string
	Offset   uint32
	NumAttrs uint32
	Flags    LineFlag

	attrs [160]byte
	pad   [16]byte
}

func (l *LineInfo) MarshalBinary() ([]byte, error) {
	u := layout.New("gpio_v2_line_info", lineInfoSize)
	u.PutStr(0, 32, l.Name)
	u.PutStr(32, 32, l.Consumer)
	u.PutU32(64, l.Offset)
	u.PutU32(68, l.NumAttrs)
	u.PutU64(72, uint64(l.Flags))
	u.PutField(80, len(l.attrs), l.attrs[:])
	u.PutField(240, len(l.pad), l.pad[:])
	return u.Bytes(), nil
}

func (l *LineInfo) UnmarshalBinary(b []byte) error {
	u, err := layout.Wrap("gpio_v2_line_info", b, lineInfoSize)
	if err != nil {
		return err
	}
	l.Name = u.Str(0, 32)
	l.Consumer = u.Str(32, 32)
	l.Offset = u.U32(64)
	l.NumAttrs = u.U32(68)
	l.Flags = LineFlag(u.U64(72))
	u.CopyField(80, l.attrs[:])
	u.CopyField(240, l.pad[:])
	return nil
}

// LineRequest mirrors gpio_v2_line_request (592 bytes): offsets[64]u32@0
// consumer[32]@256 config@288 (flags u64@288, num_attrs u32@296,
// padding[5]u32@300, attrs[10]@320) num_lines u32@560
// event_buffer_size u32@564 padding[5]u32@568 fd i32@588.
type LineRequest struct {
	Offsets         []uint32
	Consumer        string
	Flags           LineFlag
	NumLines        uint32
	EventBufferSize uint32
	Fd              int32
}

func (r *LineRequest) MarshalBinary() ([]byte, error) {
	u := layout.New("gpio_v2_line_request", lineRequestSize)
	for i, off := range r.Offsets {
		u.PutU32(4*i, off)
	}
	u.PutStr(256, 32, r.Consumer)
	u.PutU64(288, uint64(r.Flags))
	u.PutU32(560, r.NumLines)
	u.PutU32(564, r.EventBufferSize)
	u.PutI32(588, r.Fd)
	return u.Bytes(), nil
}

func (r *LineRequest) UnmarshalBinary(b []byte) error {
	u, err := layout.Wrap("gpio_v2_line_request", b, lineRequestSize)
	if err != nil {
		return err
	}
	r.NumLines = u.U32(560)
	r.Offsets = make([]uint32, r.NumLines)
	for i := range r.Offsets {
		r.Offsets[i] = u.U32(4 * i)
	}
	r.Consumer = u.Str(256, 32)
	r.Flags = LineFlag(u.U64(288))
	r.EventBufferSize = u.U32(564)
	r.Fd = u.I32(588)
	return nil
}

// LineValues mirrors gpio_v2_line_values (16 bytes): bits u64@0 mask u64@8.
// Bit i corresponds to the i-th requested offset, not the hardware offset.
type LineValues struct {
	Bits layout.Flags64
	Mask layout.Flags64
}

func (v *LineValues) MarshalBinary() ([]byte, error) {
	u := layout.New("gpio_v2_line_values", lineValuesSize)
	u.PutU64(0, uint64(v.Bits))
	u.PutU64(8, uint64(v.Mask))
	return u.Bytes(), nil
}

func (v *LineValues) UnmarshalBinary(b []byte) error {
	u, err := layout.Wrap("gpio_v2_line_values", b, lineValuesSize)
	if err != nil {
		return err
	}
	v.Bits = layout.Flags64(u.U64(0))
	v.Mask = layout.Flags64(u.U64(8))
	return nil
}

// LineEvent mirrors gpio_v2_line_event (48 bytes): timestamp_ns u64@0
// id u32@8 offset u32@12 seqno u32@16 line_seqno u32@20 padding[6]u32@24.
type LineEvent struct {
	TimestampNs uint64
	ID          uint32
	Offset      uint32
	Seqno       uint32
	LineSeqno   uint32
}

func (e *LineEvent) MarshalBinary() ([]byte, error) {
	u := layout.New("gpio_v2_line_event", lineEventSize)
	u.PutU64(0, e.TimestampNs)
	u.PutU32(8, e.ID)
	u.PutU32(12, e.Offset)
	u.PutU32(16, e.Seqno)
	u.PutU32(20, e.LineSeqno)
	return u.Bytes(), nil
}

func (e *LineEvent) UnmarshalBinary(b []byte) error {
	u, err := layout.Wrap("gpio_v2_line_event", b, lineEventSize)
	if err != nil {
		return err
	}
	e.TimestampNs = u.U64(0)
	e.ID = u.U32(8)
	e.Offset = u.U32(12)
	e.Seqno = u.U32(16)
	e.LineSeqno = u.U32(20)
	return nil
}
