//go:build linux

package v4l2

import (
	"fmt"

	"github.com/tiagocoutinho/linuxgo/ioctl"
	"github.com/tiagocoutinho/linuxgo/layout"
)

// Request codes for the 'V' magic, computed from the pinned descriptor
// sizes. The sizes are the 64-bit (amd64/arm64) generation of the uapi
// videodev2 layouts; see descriptors.go.
var (
	vidiocQueryCap           = ioctl.IOR('V', 0, capabilitySize)
	vidiocEnumFmt            = ioctl.IOWR('V', 2, fmtDescSize)
	vidiocGetFormat          = ioctl.IOWR('V', 4, formatSize)
	vidiocSetFormat          = ioctl.IOWR('V', 5, formatSize)
	vidiocRequestBuffers     = ioctl.IOWR('V', 8, requestBuffersSize)
	vidiocQueryBuf           = ioctl.IOWR('V', 9, bufferSize)
	vidiocQueueBuf           = ioctl.IOWR('V', 15, bufferSize)
	vidiocDequeueBuf         = ioctl.IOWR('V', 17, bufferSize)
	vidiocStreamOn           = ioctl.IOW('V', 18, 4)
	vidiocStreamOff          = ioctl.IOW('V', 19, 4)
	vidiocGetParm            = ioctl.IOWR('V', 21, streamParmSize)
	vidiocSetParm            = ioctl.IOWR('V', 22, streamParmSize)
	vidiocTryFormat          = ioctl.IOWR('V', 64, formatSize)
	vidiocEnumFrameSizes     = ioctl.IOWR('V', 74, frameSizeEnumSize)
	vidiocEnumFrameIntervals = ioctl.IOWR('V', 75, frameIntervalEnumSize)
)

// BufType tags the kind of data a queue carries. Unknown kernel values pass
// through decode unchanged.
type BufType uint32

const (
	BufTypeVideoCapture BufType = 1
	BufTypeVideoOutput  BufType = 2
	BufTypeVideoOverlay BufType = 3
	BufTypeMetaCapture  BufType = 13
	BufTypeMetaOutput   BufType = 14
)

func (t BufType) String() string {
	switch t {
	case BufTypeVideoCapture:
		return "video-capture"
	case BufTypeVideoOutput:
		return "video-output"
	case BufTypeVideoOverlay:
		return "video-overlay"
	case BufTypeMetaCapture:
		return "meta-capture"
	case BufTypeMetaOutput:
		return "meta-output"
	default:
		return fmt.Sprintf("BufType(%d)", uint32(t))
	}
}

// Memory selects how buffer storage is provided.
type Memory uint32

const (
	MemoryMMap    Memory = 1
	MemoryUserPtr Memory = 2
	MemoryDMABuf  Memory = 4
)

func (m Memory) String() string {
	switch m {
	case MemoryMMap:
		return "mmap"
	case MemoryUserPtr:
		return "userptr"
	case MemoryDMABuf:
		return "dmabuf"
	default:
		return fmt.Sprintf("Memory(%d)", uint32(m))
	}
}

// Field values; FieldNone means progressive frames.
type Field uint32

const (
	FieldAny        Field = 0
	FieldNone       Field = 1
	FieldInterlaced Field = 4
)

// Capability flags reported by VIDIOC_QUERYCAP.
type CapFlag = layout.Flags32

const (
	CapVideoCapture CapFlag = 0x00000001
	CapVideoOutput  CapFlag = 0x00000002
	CapVideoM2M     CapFlag = 0x00008000
	CapMetaCapture  CapFlag = 0x00800000
	CapReadWrite    CapFlag = 0x01000000
	CapStreaming    CapFlag = 0x04000000
	CapDeviceCaps   CapFlag = 0x80000000
)

// Buffer flags (v4l2_buffer.flags).
type BufFlag = layout.Flags32

const (
	BufFlagMapped   BufFlag = 0x00000001
	BufFlagQueued   BufFlag = 0x00000002
	BufFlagDone     BufFlag = 0x00000004
	BufFlagError    BufFlag = 0x00000040
	BufFlagTimecode BufFlag = 0x00000100
)

// PixelFormat is a four-character code in the kernel's packing.
type PixelFormat uint32

// FourCC builds a PixelFormat from its four characters.
func FourCC(a, b, c, d byte) PixelFormat {
	return PixelFormat(uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24)
}

var (
	PixelFormatYUYV  = FourCC('Y', 'U', 'Y', 'V')
	PixelFormatUYVY  = FourCC('U', 'Y', 'V', 'Y')
	PixelFormatMJPEG = FourCC('M', 'J', 'P', 'G')
	PixelFormatJPEG  = FourCC('J', 'P', 'E', 'G')
	PixelFormatH264  = FourCC('H', '2', '6', '4')
	PixelFormatNV12  = FourCC('N', 'V', '1', '2')
	PixelFormatRGB24 = FourCC('R', 'G', 'B', '3')
	PixelFormatBGR24 = FourCC('B', 'G', 'R', '3')
	PixelFormatGrey  = FourCC('G', 'R', 'E', 'Y')
)

// String renders the four characters, or the raw number when the code
// contains non-printable bytes.
func (p PixelFormat) String() string {
	b := [4]byte{byte(p), byte(p >> 8), byte(p >> 16), byte(p >> 24)}
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return fmt.Sprintf("PixelFormat(%#010x)", uint32(p))
		}
	}
	return string(b[:])
}

// ParsePixelFormat converts a four-character string such as "YUYV".
func ParsePixelFormat(s string) (PixelFormat, error) {
	if len(s) != 4 {
		return 0, fmt.Errorf("v4l2: pixel format %q is not a four-character code", s)
	}
	return FourCC(s[0], s[1], s[2], s[3]), nil
}
