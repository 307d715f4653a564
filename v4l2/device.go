//go:build linux

// Package v4l2 drives Video4Linux capture and output devices through raw
// device-control operations: format negotiation, kernel buffer pools and the
// streaming queue/dequeue cycle.
package v4l2

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/tiagocoutinho/linuxgo/device"
	"github.com/tiagocoutinho/linuxgo/layout"
)

// Ioctl routing and memory mapping go through vars so tests can stand in a
// fake kernel without a camera.
var (
	control = func(h *device.Handle, req uint32, arg []byte) error {
		return h.Control(req, arg)
	}
	mapBuffer = func(fd int, offset uint32, length uint32) ([]byte, error) {
		return unix.Mmap(fd, int64(offset), int(length),
			unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	}
	unmapBuffer = func(b []byte) error {
		return unix.Munmap(b)
	}
)

// Device is a V4L2 device: a generic handle plus the capability flags from
// the one-time VIDIOC_QUERYCAP issued at open.
type Device struct {
	h    *device.Handle
	caps Capability
}

// Open opens the video device node and queries its capabilities.
func Open(path string, opts ...device.Option) (*Device, error) {
	h, err := device.Open(path, opts...)
	if err != nil {
		return nil, err
	}
	d, err := FromHandle(h)
	if err != nil {
		h.Close()
		return nil, err
	}
	return d, nil
}

// FromHandle wraps an existing handle, querying capabilities through it.
func FromHandle(h *device.Handle) (*Device, error) {
	d := &Device{h: h}
	raw, _ := d.caps.MarshalBinary()
	if err := control(h, vidiocQueryCap, raw); err != nil {
		return nil, fmt.Errorf("query capabilities: %w", err)
	}
	if err := d.caps.UnmarshalBinary(raw); err != nil {
		return nil, err
	}
	return d, nil
}

// Handle returns the underlying generic device handle.
func (d *Device) Handle() *device.Handle { return d.h }

// Capability returns the flags captured at open.
func (d *Device) Capability() Capability { return d.caps }

// SupportsStreaming reports whether the device advertises streaming I/O,
// the precondition for mmap buffer pools.
func (d *Device) SupportsStreaming() bool {
	return d.caps.Effective().Has(CapStreaming)
}

// SupportsReadWrite reports whether the raw read/write fallback is offered.
func (d *Device) SupportsReadWrite() bool {
	return d.caps.Effective().Has(CapReadWrite)
}

// Close closes the underlying handle, releasing any live pool first.
func (d *Device) Close() error { return d.h.Close() }

// GetFormat reads the current format for the buffer type.
func (d *Device) GetFormat(t BufType) (Format, error) {
	f := Format{Type: t}
	raw, _ := f.MarshalBinary()
	if err := control(d.h, vidiocGetFormat, raw); err != nil {
		return Format{}, err
	}
	err := f.UnmarshalBinary(raw)
	return f, err
}

// TryFormat proposes a format without committing it. The driver adjusts
// width, height and pixel format to the nearest supported combination; the
// returned value is what the device would actually deliver.
func (d *Device) TryFormat(f Format) (Format, error) {
	return d.exchangeFormat(vidiocTryFormat, f)
}

// SetFormat commits a format. The driver may still adjust it; the returned,
// adjusted format is authoritative.
func (d *Device) SetFormat(f Format) (Format, error) {
	return d.exchangeFormat(vidiocSetFormat, f)
}

// NegotiateFormat runs the propose/commit protocol: TRY_FMT to let the
// driver adjust, then S_FMT with the adjusted value. Outright rejection
// (as opposed to silent adjustment) surfaces as ErrUnsupportedFormat.
func (d *Device) NegotiateFormat(f Format) (Format, error) {
	adjusted, err := d.TryFormat(f)
	if err != nil {
		return Format{}, err
	}
	return d.SetFormat(adjusted)
}

func (d *Device) exchangeFormat(req uint32, f Format) (Format, error) {
	if f.Field == FieldAny && req != vidiocGetFormat {
		f.Field = FieldNone
	}
	raw, _ := f.MarshalBinary()
	if err := control(d.h, req, raw); err != nil {
		if errors.Is(err, unix.EINVAL) {
			return Format{}, fmt.Errorf("%s %s %dx%d: %w",
				f.Type, f.PixelFormat, f.Width, f.Height, device.ErrUnsupportedFormat)
		}
		return Format{}, err
	}
	var out Format
	err := out.UnmarshalBinary(raw)
	return out, err
}

// EnumFormats lists the pixel formats the device supports for a buffer
// type, walking VIDIOC_ENUM_FMT until the driver runs out of indices.
func (d *Device) EnumFormats(t BufType) ([]FmtDesc, error) {
	var out []FmtDesc
	for index := uint32(0); ; index++ {
		desc := FmtDesc{Index: index, Type: t}
		raw, _ := desc.MarshalBinary()
		if err := control(d.h, vidiocEnumFmt, raw); err != nil {
			if errors.Is(err, unix.EINVAL) {
				return out, nil
			}
			return out, err
		}
		if err := desc.UnmarshalBinary(raw); err != nil {
			return out, err
		}
		out = append(out, desc)
	}
}

// EnumFrameSizes lists the discrete frame sizes for a pixel format.
func (d *Device) EnumFrameSizes(pf PixelFormat) ([]FrameSizeEnum, error) {
	var out []FrameSizeEnum
	for index := uint32(0); ; index++ {
		e := FrameSizeEnum{Index: index, PixelFormat: pf}
		raw, _ := e.MarshalBinary()
		if err := control(d.h, vidiocEnumFrameSizes, raw); err != nil {
			if errors.Is(err, unix.EINVAL) {
				return out, nil
			}
			return out, err
		}
		if err := e.UnmarshalBinary(raw); err != nil {
			return out, err
		}
		if e.SizeType != frameSizeDiscrete {
			// Stepwise ranges end the discrete enumeration.
			return out, nil
		}
		out = append(out, e)
	}
}

// EnumFrameIntervals lists the discrete frame intervals for a pixel format
// at a given size.
func (d *Device) EnumFrameIntervals(pf PixelFormat, width, height uint32) ([]FrameIntervalEnum, error) {
	var out []FrameIntervalEnum
	for index := uint32(0); ; index++ {
		e := FrameIntervalEnum{Index: index, PixelFormat: pf, Width: width, Height: height}
		raw, _ := e.MarshalBinary()
		if err := control(d.h, vidiocEnumFrameIntervals, raw); err != nil {
			if errors.Is(err, unix.EINVAL) {
				return out, nil
			}
			return out, err
		}
		if err := e.UnmarshalBinary(raw); err != nil {
			return out, err
		}
		out = append(out, e)
	}
}

// GetFPS reads the capture frame rate from the stream parameters.
func (d *Device) GetFPS(t BufType) (float64, error) {
	p := StreamParm{Type: t}
	raw, _ := p.MarshalBinary()
	if err := control(d.h, vidiocGetParm, raw); err != nil {
		return 0, err
	}
	if err := p.UnmarshalBinary(raw); err != nil {
		return 0, err
	}
	return p.TimePerFrame.FPS(), nil
}

// SetFPS requests a capture frame rate; the driver may adjust it. Returns
// the rate actually applied.
func (d *Device) SetFPS(t BufType, fps uint32) (float64, error) {
	if fps == 0 {
		return 0, fmt.Errorf("fps must be positive: %w", device.ErrInvalidState)
	}
	p := StreamParm{Type: t, TimePerFrame: Fract{Numerator: 1, Denominator: fps}}
	raw, _ := p.MarshalBinary()
	if err := control(d.h, vidiocSetParm, raw); err != nil {
		return 0, err
	}
	if err := p.UnmarshalBinary(raw); err != nil {
		return 0, err
	}
	return p.TimePerFrame.FPS(), nil
}

func (d *Device) streamOn(t BufType) error {
	arg := make([]byte, 4)
	layout.NativeEndian.PutUint32(arg, uint32(t))
	return control(d.h, vidiocStreamOn, arg)
}

func (d *Device) streamOff(t BufType) error {
	arg := make([]byte, 4)
	layout.NativeEndian.PutUint32(arg, uint32(t))
	return control(d.h, vidiocStreamOff, arg)
}
