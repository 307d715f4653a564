//go:build linux

package v4l2

import (
	"fmt"
	"time"

	"github.com/tiagocoutinho/linuxgo/layout"
)

// Pinned sizes of the 64-bit videodev2 layouts this package targets. A
// payload of any other size is a descriptor/kernel generation mismatch and
// decodes fail with *layout.Error.
const (
	capabilitySize        = 104
	pixFormatSize         = 48
	formatSize            = 208
	requestBuffersSize    = 20
	bufferSize            = 88
	timecodeSize          = 16
	fmtDescSize           = 64
	frameSizeEnumSize     = 44
	frameIntervalEnumSize = 52
	streamParmSize        = 204
	fractSize             = 8
)

// Capability mirrors v4l2_capability.
//
// Layout (104 bytes): driver[16]@0, card[32]@16, bus_info[32]@48,
// version u32@80, capabilities u32@84, device_caps u32@88, reserved[3]u32@92.
type Capability struct {
	Driver       string
	Card         string
	BusInfo      string
	Version      uint32
	Capabilities CapFlag
	DeviceCaps   CapFlag
	Reserved     [3]uint32
}

func (c *Capability) MarshalBinary() ([]byte, error) {
	u := layout.New("v4l2_capability", capabilitySize)
	u.PutStr(0, 16, c.Driver)
	u.PutStr(16, 32, c.Card)
	u.PutStr(48, 32, c.BusInfo)
	u.PutU32(80, c.Version)
	u.PutU32(84, uint32(c.Capabilities))
	u.PutU32(88, uint32(c.DeviceCaps))
	for i, r := range c.Reserved {
		u.PutU32(92+4*i, r)
	}
	return u.Bytes(), nil
}

func (c *Capability) UnmarshalBinary(b []byte) error {
	u, err := layout.Wrap("v4l2_capability", b, capabilitySize)
	if err != nil {
		return err
	}
	c.Driver = u.Str(0, 16)
	c.Card = u.Str(16, 32)
	c.BusInfo = u.Str(48, 32)
	c.Version = u.U32(80)
	c.Capabilities = CapFlag(u.U32(84))
	c.DeviceCaps = CapFlag(u.U32(88))
	for i := range c.Reserved {
		c.Reserved[i] = u.U32(92 + 4*i)
	}
	return nil
}

// Effective returns the device_caps set when the driver reports per-node
// capabilities, the global set otherwise.
func (c *Capability) Effective() CapFlag {
	if c.Capabilities.Has(CapDeviceCaps) {
		return c.DeviceCaps
	}
	return c.Capabilities
}

// Format mirrors v4l2_format for the single-planar pixel union member.
//
// Layout (208 bytes): type u32@0, 4 pad, then v4l2_pix_format@8:
// width@8 height@12 pixelformat@16 field@20 bytesperline@24 sizeimage@28
// colorspace@32 priv@36 flags@40 ycbcr_enc@44 quantization@48 xfer_func@52.
// The rest of the 200-byte union is carried opaquely for round-tripping.
type Format struct {
	Type         BufType
	Width        uint32
	Height       uint32
	PixelFormat  PixelFormat
	Field        Field
	BytesPerLine uint32
	SizeImage    uint32
	Colorspace   uint32
	Priv         uint32
	Flags        uint32
	YcbcrEnc     uint32
	Quantization uint32
	XferFunc     uint32

	tail [formatSize - 8 - pixFormatSize]byte // unused union bytes
}

func (f *Format) MarshalBinary() ([]byte, error) {
	u := layout.New("v4l2_format", formatSize)
	u.PutU32(0, uint32(f.Type))
	u.PutU32(8, f.Width)
	u.PutU32(12, f.Height)
	u.PutU32(16, uint32(f.PixelFormat))
	u.PutU32(20, uint32(f.Field))
	u.PutU32(24, f.BytesPerLine)
	u.PutU32(28, f.SizeImage)
	u.PutU32(32, f.Colorspace)
	u.PutU32(36, f.Priv)
	u.PutU32(40, f.Flags)
	u.PutU32(44, f.YcbcrEnc)
	u.PutU32(48, f.Quantization)
	u.PutU32(52, f.XferFunc)
	u.PutField(8+pixFormatSize, len(f.tail), f.tail[:])
	return u.Bytes(), nil
}

func (f *Format) UnmarshalBinary(b []byte) error {
	u, err := layout.Wrap("v4l2_format", b, formatSize)
	if err != nil {
		return err
	}
	f.Type = BufType(u.U32(0))
	f.Width = u.U32(8)
	f.Height = u.U32(12)
	f.PixelFormat = PixelFormat(u.U32(16))
	f.Field = Field(u.U32(20))
	f.BytesPerLine = u.U32(24)
	f.SizeImage = u.U32(28)
	f.Colorspace = u.U32(32)
	f.Priv = u.U32(36)
	f.Flags = u.U32(40)
	f.YcbcrEnc = u.U32(44)
	f.Quantization = u.U32(48)
	f.XferFunc = u.U32(52)
	u.CopyField(8+pixFormatSize, f.tail[:])
	return nil
}

// RequestBuffers mirrors v4l2_requestbuffers (20 bytes): count@0 type@4
// memory@8 capabilities@12 flags u8@16 reserved[3]u8@17.
type RequestBuffers struct {
	Count        uint32
	Type         BufType
	Memory       Memory
	Capabilities layout.Flags32
	Flags        uint8
	Reserved     [3]uint8
}

func (r *RequestBuffers) MarshalBinary() ([]byte, error) {
	u := layout.New("v4l2_requestbuffers", requestBuffersSize)
	u.PutU32(0, r.Count)
	u.PutU32(4, uint32(r.Type))
	u.PutU32(8, uint32(r.Memory))
	u.PutU32(12, uint32(r.Capabilities))
	u.PutU8(16, r.Flags)
	u.PutField(17, 3, r.Reserved[:])
	return u.Bytes(), nil
}

func (r *RequestBuffers) UnmarshalBinary(b []byte) error {
	u, err := layout.Wrap("v4l2_requestbuffers", b, requestBuffersSize)
	if err != nil {
		return err
	}
	r.Count = u.U32(0)
	r.Type = BufType(u.U32(4))
	r.Memory = Memory(u.U32(8))
	r.Capabilities = layout.Flags32(u.U32(12))
	r.Flags = u.U8(16)
	u.CopyField(17, r.Reserved[:])
	return nil
}

// Timecode mirrors v4l2_timecode (16 bytes).
type Timecode struct {
	Type     uint32
	Flags    uint32
	Frames   uint8
	Seconds  uint8
	Minutes  uint8
	Hours    uint8
	Userbits [4]uint8
}

// Buffer mirrors v4l2_buffer on 64-bit kernels.
//
// Layout (88 bytes): index@0 type@4 bytesused@8 flags@12 field@16 4 pad
// timestamp{sec i64@24 usec i64@32} timecode@40 sequence@56 memory@60
// m union u64@64 length@72 reserved2@76 request_fd@80 4 pad.
type Buffer struct {
	Index         uint32
	Type          BufType
	BytesUsed     uint32
	Flags         BufFlag
	Field         Field
	TimestampSec  int64
	TimestampUsec int64
	Timecode      Timecode
	Sequence      uint32
	Memory        Memory
	// M carries the memory union: the mmap offset in the low 32 bits for
	// MemoryMMap, the full user pointer for MemoryUserPtr.
	M         uint64
	Length    uint32
	Reserved2 uint32
	RequestFd int32
}

// Offset returns the mmap offset for MemoryMMap buffers.
func (v *Buffer) Offset() uint32 { return uint32(v.M) }

// Timestamp converts the kernel timeval to a time.Time.
func (v *Buffer) Timestamp() time.Time {
	return time.Unix(v.TimestampSec, v.TimestampUsec*int64(time.Microsecond))
}

func (v *Buffer) MarshalBinary() ([]byte, error) {
	u := layout.New("v4l2_buffer", bufferSize)
	u.PutU32(0, v.Index)
	u.PutU32(4, uint32(v.Type))
	u.PutU32(8, v.BytesUsed)
	u.PutU32(12, uint32(v.Flags))
	u.PutU32(16, uint32(v.Field))
	u.PutI64(24, v.TimestampSec)
	u.PutI64(32, v.TimestampUsec)
	u.PutU32(40, v.Timecode.Type)
	u.PutU32(44, v.Timecode.Flags)
	u.PutU8(48, v.Timecode.Frames)
	u.PutU8(49, v.Timecode.Seconds)
	u.PutU8(50, v.Timecode.Minutes)
	u.PutU8(51, v.Timecode.Hours)
	u.PutField(52, 4, v.Timecode.Userbits[:])
	u.PutU32(56, v.Sequence)
	u.PutU32(60, uint32(v.Memory))
	u.PutU64(64, v.M)
	u.PutU32(72, v.Length)
	u.PutU32(76, v.Reserved2)
	u.PutI32(80, v.RequestFd)
	return u.Bytes(), nil
}

func (v *Buffer) UnmarshalBinary(b []byte) error {
	u, err := layout.Wrap("v4l2_buffer", b, bufferSize)
	if err != nil {
		return err
	}
	v.Index = u.U32(0)
	v.Type = BufType(u.U32(4))
	v.BytesUsed = u.U32(8)
	v.Flags = BufFlag(u.U32(12))
	v.Field = Field(u.U32(16))
	v.TimestampSec = u.I64(24)
	v.TimestampUsec = u.I64(32)
	v.Timecode.Type = u.U32(40)
	v.Timecode.Flags = u.U32(44)
	v.Timecode.Frames = u.U8(48)
	v.Timecode.Seconds = u.U8(49)
	v.Timecode.Minutes = u.U8(50)
	v.Timecode.Hours = u.U8(51)
	u.CopyField(52, v.Timecode.Userbits[:])
	v.Sequence = u.U32(56)
	v.Memory = Memory(u.U32(60))
	v.M = u.U64(64)
	v.Length = u.U32(72)
	v.Reserved2 = u.U32(76)
	v.RequestFd = u.I32(80)
	return nil
}

// FmtDesc mirrors v4l2_fmtdesc (64 bytes): index@0 type@4 flags@8
// description[32]@12 pixelformat@44 mbus_code@48 reserved[3]u32@52.
type FmtDesc struct {
	Index       uint32
	Type        BufType
	Flags       layout.Flags32
	Description string
	PixelFormat PixelFormat
	MbusCode    uint32
	Reserved    [3]uint32
}

func (d *FmtDesc) MarshalBinary() ([]byte, error) {
	u := layout.New("v4l2_fmtdesc", fmtDescSize)
	u.PutU32(0, d.Index)
	u.PutU32(4, uint32(d.Type))
	u.PutU32(8, uint32(d.Flags))
	u.PutStr(12, 32, d.Description)
	u.PutU32(44, uint32(d.PixelFormat))
	u.PutU32(48, d.MbusCode)
	for i, r := range d.Reserved {
		u.PutU32(52+4*i, r)
	}
	return u.Bytes(), nil
}

func (d *FmtDesc) UnmarshalBinary(b []byte) error {
	u, err := layout.Wrap("v4l2_fmtdesc", b, fmtDescSize)
	if err != nil {
		return err
	}
	d.Index = u.U32(0)
	d.Type = BufType(u.U32(4))
	d.Flags = layout.Flags32(u.U32(8))
	d.Description = u.Str(12, 32)
	d.PixelFormat = PixelFormat(u.U32(44))
	d.MbusCode = u.U32(48)
	for i := range d.Reserved {
		d.Reserved[i] = u.U32(52 + 4*i)
	}
	return nil
}

// Fract mirrors v4l2_fract.
type Fract struct {
	Numerator   uint32
	Denominator uint32
}

// FPS returns the frame rate a time-per-frame fraction represents.
func (f Fract) FPS() float64 {
	if f.Numerator == 0 {
		return 0
	}
	return float64(f.Denominator) / float64(f.Numerator)
}

const frameSizeDiscrete = 1

// FrameSizeEnum mirrors v4l2_frmsizeenum (44 bytes): index@0 pixel_format@4
// type@8 union@12 (discrete {w,h} or stepwise, 24 bytes) reserved[2]u32@36.
type FrameSizeEnum struct {
	Index       uint32
	PixelFormat PixelFormat
	SizeType    uint32
	Width       uint32 // discrete
	Height      uint32 // discrete
	union       [16]byte
	Reserved    [2]uint32
}

func (e *FrameSizeEnum) MarshalBinary() ([]byte, error) {
	u := layout.New("v4l2_frmsizeenum", frameSizeEnumSize)
	u.PutU32(0, e.Index)
	u.PutU32(4, uint32(e.PixelFormat))
	u.PutU32(8, e.SizeType)
	u.PutU32(12, e.Width)
	u.PutU32(16, e.Height)
	u.PutField(20, len(e.union), e.union[:])
	u.PutU32(36, e.Reserved[0])
	u.PutU32(40, e.Reserved[1])
	return u.Bytes(), nil
}

func (e *FrameSizeEnum) UnmarshalBinary(b []byte) error {
	u, err := layout.Wrap("v4l2_frmsizeenum", b, frameSizeEnumSize)
	if err != nil {
		return err
	}
	e.Index = u.U32(0)
	e.PixelFormat = PixelFormat(u.U32(4))
	e.SizeType = u.U32(8)
	e.Width = u.U32(12)
	e.Height = u.U32(16)
	u.CopyField(20, e.union[:])
	e.Reserved[0] = u.U32(36)
	e.Reserved[1] = u.U32(40)
	return nil
}

// String renders a discrete size as "640x480"; stepwise sizes report their
// raw type.
func (e *FrameSizeEnum) String() string {
	if e.SizeType == frameSizeDiscrete {
		return fmt.Sprintf("%dx%d", e.Width, e.Height)
	}
	return fmt.Sprintf("FrameSize(type=%d)", e.SizeType)
}

// FrameIntervalEnum mirrors v4l2_frmivalenum (52 bytes): index@0
// pixel_format@4 width@8 height@12 type@16 union@20 (discrete fract, 24
// bytes) reserved[2]u32@44.
type FrameIntervalEnum struct {
	Index        uint32
	PixelFormat  PixelFormat
	Width        uint32
	Height       uint32
	IntervalType uint32
	Discrete     Fract
	union        [16]byte
	Reserved     [2]uint32
}

func (e *FrameIntervalEnum) MarshalBinary() ([]byte, error) {
	u := layout.New("v4l2_frmivalenum", frameIntervalEnumSize)
	u.PutU32(0, e.Index)
	u.PutU32(4, uint32(e.PixelFormat))
	u.PutU32(8, e.Width)
	u.PutU32(12, e.Height)
	u.PutU32(16, e.IntervalType)
	u.PutU32(20, e.Discrete.Numerator)
	u.PutU32(24, e.Discrete.Denominator)
	u.PutField(28, len(e.union), e.union[:])
	u.PutU32(44, e.Reserved[0])
	u.PutU32(48, e.Reserved[1])
	return u.Bytes(), nil
}

func (e *FrameIntervalEnum) UnmarshalBinary(b []byte) error {
	u, err := layout.Wrap("v4l2_frmivalenum", b, frameIntervalEnumSize)
	if err != nil {
		return err
	}
	e.Index = u.U32(0)
	e.PixelFormat = PixelFormat(u.U32(4))
	e.Width = u.U32(8)
	e.Height = u.U32(12)
	e.IntervalType = u.U32(16)
	e.Discrete.Numerator = u.U32(20)
	e.Discrete.Denominator = u.U32(24)
	u.CopyField(28, e.union[:])
	e.Reserved[0] = u.U32(44)
	e.Reserved[1] = u.U32(48)
	return nil
}

// StreamParm mirrors v4l2_streamparm for the capture union member.
//
// Layout (204 bytes): type u32@0, then v4l2_captureparm@4: capability@4
// capturemode@8 timeperframe@12 extendedmode@20 readbuffers@24
// reserved[4]u32@28; remaining union bytes carried opaquely.
type StreamParm struct {
	Type         BufType
	Capability   layout.Flags32
	CaptureMode  uint32
	TimePerFrame Fract
	ExtendedMode uint32
	ReadBuffers  uint32
	Reserved     [4]uint32

	tail [streamParmSize - 44]byte
}

func (p *StreamParm) MarshalBinary() ([]byte, error) {
	u := layout.New("v4l2_streamparm", streamParmSize)
	u.PutU32(0, uint32(p.Type))
	u.PutU32(4, uint32(p.Capability))
	u.PutU32(8, p.CaptureMode)
	u.PutU32(12, p.TimePerFrame.Numerator)
	u.PutU32(16, p.TimePerFrame.Denominator)
	u.PutU32(20, p.ExtendedMode)
	u.PutU32(24, p.ReadBuffers)
	for i, r := range p.Reserved {
		u.PutU32(28+4*i, r)
	}
	u.PutField(44, len(p.tail), p.tail[:])
	return u.Bytes(), nil
}

func (p *StreamParm) UnmarshalBinary(b []byte) error {
	u, err := layout.Wrap("v4l2_streamparm", b, streamParmSize)
	if err != nil {
		return err
	}
	p.Type = BufType(u.U32(0))
	p.Capability = layout.Flags32(u.U32(4))
	p.CaptureMode = u.U32(8)
	p.TimePerFrame.Numerator = u.U32(12)
	p.TimePerFrame.Denominator = u.U32(16)
	p.ExtendedMode = u.U32(20)
	p.ReadBuffers = u.U32(24)
	for i := range p.Reserved {
		p.Reserved[i] = u.U32(28 + 4*i)
	}
	u.CopyField(44, p.tail[:])
	return nil
}
