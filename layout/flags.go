//go:build linux

package layout

// Flags32 is a 32-bit kernel flag field with set semantics.
type Flags32 uint32

// Has reports whether every bit of f is set.
func (v Flags32) Has(f Flags32) bool { return v&f == f }

// With returns v with the bits of f set.
func (v Flags32) With(f Flags32) Flags32 { return v | f }

// Without returns v with the bits of f cleared.
func (v Flags32) Without(f Flags32) Flags32 { return v &^ f }

// Intersect returns the bits common to v and f.
func (v Flags32) Intersect(f Flags32) Flags32 { return v & f }

// Flags64 is a 64-bit kernel flag field with set semantics.
type Flags64 uint64

func (v Flags64) Has(f Flags64) bool        { return v&f == f }
func (v Flags64) With(f Flags64) Flags64    { return v | f }
func (v Flags64) Without(f Flags64) Flags64 { return v &^ f }
func (v Flags64) Intersect(f Flags64) Flags64 {
	return v & f
}
