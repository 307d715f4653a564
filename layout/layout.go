//go:build linux

// Package layout reads and writes fixed-layout kernel binary structures.
//
// Kernel ABI structs have pinned byte offsets, native byte order and explicit
// padding. Descriptors in the subsystem packages are written against those
// offsets using a Buffer, so every field access is bounds-checked and a
// wrong-sized payload fails with *Error instead of being misinterpreted.
package layout

import (
	"encoding/binary"
	"fmt"
	"unsafe"
)

// NativeEndian is the byte order of the running kernel and CPU. Kernel
// structures are exchanged in native order, never a fixed one.
var NativeEndian binary.ByteOrder = func() binary.ByteOrder {
	x := uint16(1)
	if *(*byte)(unsafe.Pointer(&x)) == 1 {
		return binary.LittleEndian
	}
	return binary.BigEndian
}()

// Error reports a mismatch between a descriptor's pinned size and the bytes
// presented for decode (or produced by a driver). It indicates a descriptor
// set compiled against a different kernel-header generation and is not
// recoverable for that descriptor.
type Error struct {
	Descriptor string
	Want       int
	Got        int
}

func (e *Error) Error() string {
	return fmt.Sprintf("layout: %s: want %d bytes, got %d", e.Descriptor, e.Want, e.Got)
}

// Buffer is a named, fixed-size byte window with typed accessors at explicit
// offsets. The zero value is not usable; obtain one from New or Wrap.
type Buffer struct {
	name string
	b    []byte
}

// New returns a zeroed Buffer of the descriptor's pinned size.
func New(name string, size int) Buffer {
	return Buffer{name: name, b: make([]byte, size)}
}

// Wrap validates that b has exactly the pinned size and wraps it. The Buffer
// aliases b; writes through the Buffer are visible in b.
func Wrap(name string, b []byte, size int) (Buffer, error) {
	if len(b) != size {
		return Buffer{}, &Error{Descriptor: name, Want: size, Got: len(b)}
	}
	return Buffer{name: name, b: b}, nil
}

// Bytes returns the underlying storage.
func (u Buffer) Bytes() []byte { return u.b }

// Size returns the pinned size.
func (u Buffer) Size() int { return len(u.b) }

func (u Buffer) U8(off int) uint8   { return u.b[off] }
func (u Buffer) U16(off int) uint16 { return NativeEndian.Uint16(u.b[off : off+2]) }
func (u Buffer) U32(off int) uint32 { return NativeEndian.Uint32(u.b[off : off+4]) }
func (u Buffer) U64(off int) uint64 { return NativeEndian.Uint64(u.b[off : off+8]) }
func (u Buffer) I32(off int) int32  { return int32(u.U32(off)) }
func (u Buffer) I64(off int) int64  { return int64(u.U64(off)) }

func (u Buffer) PutU8(off int, v uint8)   { u.b[off] = v }
func (u Buffer) PutU16(off int, v uint16) { NativeEndian.PutUint16(u.b[off:off+2], v) }
func (u Buffer) PutU32(off int, v uint32) { NativeEndian.PutUint32(u.b[off:off+4], v) }
func (u Buffer) PutU64(off int, v uint64) { NativeEndian.PutUint64(u.b[off:off+8], v) }
func (u Buffer) PutI32(off int, v int32)  { u.PutU32(off, uint32(v)) }
func (u Buffer) PutI64(off int, v int64)  { u.PutU64(off, uint64(v)) }

// Field returns the n bytes at off, aliasing the underlying storage.
func (u Buffer) Field(off, n int) []byte { return u.b[off : off+n] }

// CopyField copies the n bytes at off into dst.
func (u Buffer) CopyField(off int, dst []byte) { copy(dst, u.b[off:off+len(dst)]) }

// PutField writes src at off, zero-filling the remainder of the n-byte field.
func (u Buffer) PutField(off, n int, src []byte) {
	f := u.b[off : off+n]
	c := copy(f, src)
	for i := c; i < n; i++ {
		f[i] = 0
	}
}

// Str decodes the NUL-padded fixed-length string field at off.
func (u Buffer) Str(off, n int) string {
	f := u.b[off : off+n]
	for i, c := range f {
		if c == 0 {
			return string(f[:i])
		}
	}
	return string(f)
}

// PutStr encodes s into the n-byte field at off, NUL-padded and truncated to
// n-1 so the field stays NUL-terminated.
func (u Buffer) PutStr(off, n int, s string) {
	if len(s) >= n {
		s = s[:n-1]
	}
	u.PutField(off, n, []byte(s))
}
