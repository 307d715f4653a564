//go:build linux

package layout

import (
	"bytes"
	"math"
	"testing"
)

func TestWrapSizeMismatch(t *testing.T) {
	_, err := Wrap("v4l2_capability", make([]byte, 100), 104)
	if err == nil {
		t.Fatal("expected error for short payload")
	}
	le, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	if le.Want != 104 || le.Got != 100 || le.Descriptor != "v4l2_capability" {
		t.Errorf("unexpected error contents: %+v", le)
	}
}

func TestAccessorsRoundTrip(t *testing.T) {
	u := New("test", 40)
	u.PutU8(0, 0xAB)
	u.PutU16(2, math.MaxUint16)
	u.PutU32(4, 0xDEADBEEF)
	u.PutU64(8, math.MaxUint64)
	u.PutI32(16, -1)
	u.PutI64(24, math.MinInt64)
	u.PutStr(32, 8, "front")

	if u.U8(0) != 0xAB || u.U16(2) != math.MaxUint16 || u.U32(4) != 0xDEADBEEF {
		t.Error("unsigned accessors did not round trip")
	}
	if u.U64(8) != math.MaxUint64 || u.I32(16) != -1 || u.I64(24) != math.MinInt64 {
		t.Error("wide accessors did not round trip")
	}
	if u.Str(32, 8) != "front" {
		t.Errorf("Str: got %q", u.Str(32, 8))
	}
}

func TestStrTruncationKeepsTerminator(t *testing.T) {
	u := New("test", 4)
	u.PutStr(0, 4, "abcdef")
	if got := u.Str(0, 4); got != "abc" {
		t.Errorf("got %q, want %q", got, "abc")
	}
	if u.U8(3) != 0 {
		t.Error("field lost its NUL terminator")
	}
}

func TestPutFieldZeroFills(t *testing.T) {
	u := New("test", 8)
	for i := range u.Bytes() {
		u.Bytes()[i] = 0xFF
	}
	u.PutField(0, 8, []byte{1, 2})
	if !bytes.Equal(u.Bytes(), []byte{1, 2, 0, 0, 0, 0, 0, 0}) {
		t.Errorf("got %v", u.Bytes())
	}
}

func TestFlags(t *testing.T) {
	const (
		a Flags32 = 1 << 0
		b Flags32 = 1 << 4
		c Flags32 = 1 << 9
	)
	v := a.With(b)
	if !v.Has(a) || !v.Has(b) || v.Has(c) {
		t.Error("membership tests wrong")
	}
	if v.Without(a) != b {
		t.Error("Without wrong")
	}
	if v.Intersect(b.With(c)) != b {
		t.Error("Intersect wrong")
	}
	// All-flags-set boundary.
	all := Flags64(math.MaxUint64)
	if !all.Has(1 << 63) {
		t.Error("max-width flag not present")
	}
}
