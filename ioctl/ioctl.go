//go:build linux

// Package ioctl builds Linux ioctl request codes and issues the raw calls.
//
// Request codes follow the kernel _IOC encoding: an 8-bit command number,
// an 8-bit magic ("type") byte identifying the subsystem, a 14-bit payload
// size and a 2-bit transfer direction.
package ioctl

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	nrBits   = 8
	typeBits = 8
	sizeBits = 14
	dirBits  = 2

	nrShift   = 0
	typeShift = nrShift + nrBits
	sizeShift = typeShift + typeBits
	dirShift  = sizeShift + sizeBits

	// Transfer directions.
	dirNone  = 0
	dirWrite = 1
	dirRead  = 2
)

// IOC assembles a request code from direction, magic byte, command number
// and payload size.
func IOC(dir, magic, nr, size uint32) uint32 {
	return dir<<dirShift | magic<<typeShift | nr<<nrShift | size<<sizeShift
}

// IO builds a request code with no payload.
func IO(magic byte, nr uint32) uint32 {
	return IOC(dirNone, uint32(magic), nr, 0)
}

// IOR builds a request code for a kernel-to-user ("get") operation.
func IOR(magic byte, nr, size uint32) uint32 {
	return IOC(dirRead, uint32(magic), nr, size)
}

// IOW builds a request code for a user-to-kernel ("set") operation.
func IOW(magic byte, nr, size uint32) uint32 {
	return IOC(dirWrite, uint32(magic), nr, size)
}

// IOWR builds a request code for a bidirectional ("exchange") operation.
func IOWR(magic byte, nr, size uint32) uint32 {
	return IOC(dirRead|dirWrite, uint32(magic), nr, size)
}

// Size extracts the payload size encoded in a request code.
func Size(req uint32) int {
	return int((req >> sizeShift) & (1<<sizeBits - 1))
}

// Ioctl issues a single ioctl with a pointer payload. arg may be nil for
// requests without a payload. Returns the raw errno; callers classify it.
func Ioctl(fd int, req uint32, arg unsafe.Pointer) unix.Errno {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(arg))
	return errno
}

// IoctlBytes issues an ioctl whose payload is the given byte slice. The
// slice must be at least the size encoded in the request code.
func IoctlBytes(fd int, req uint32, b []byte) unix.Errno {
	if len(b) == 0 {
		return Ioctl(fd, req, nil)
	}
	return Ioctl(fd, req, unsafe.Pointer(&b[0]))
}
