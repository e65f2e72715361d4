package ir

import "fmt"

// Type is a packed descriptor for an SSA value's type: base kind, and for
// vectors a lane count and lane width, both stored log2-encoded so the
// lattice's widen/halve/split operations are simple arithmetic on the
// packed bits rather than table lookups.
//
// Layout (low to high bits):
//
//	bits 0-3:  base kind (see kind* constants)
//	bits 4-5:  lane count log2 (0 => scalar, 1 => 2 lanes, 2 => 4 lanes, 3 => 8 lanes)
//	bits 6-8:  lane bits log2 (3 => 8 bits, 4 => 16, 5 => 32, 6 => 64)
type Type uint16

const (
	kindInvalid = iota
	kindInt
	kindFloat
	kindFlags
	kindIflags
	kindRef
)

const (
	laneCountShift = 4
	laneCountMask  = 0x3
	laneBitsShift  = 6
	laneBitsMask   = 0x7
)

func makeType(kind uint16, laneBitsLog2 uint16, laneCountLog2 uint16) Type {
	return Type(kind | (laneCountLog2&laneCountMask)<<laneCountShift | (laneBitsLog2&laneBitsMask)<<laneBitsShift)
}

func (t Type) kind() uint16 { return uint16(t) & 0xf }

var (
	typeInvalid = Type(kindInvalid)

	// TypeI8 through TypeI128 are scalar integer types.
	TypeI8   = makeType(kindInt, 3, 0)
	TypeI16  = makeType(kindInt, 4, 0)
	TypeI32  = makeType(kindInt, 5, 0)
	TypeI64  = makeType(kindInt, 6, 0)
	TypeI128 = makeType(kindInt, 7, 0)

	// TypeF16 through TypeF128 are scalar IEEE-754 float types (F16/F128
	// are bit-pattern types backed by library calls unless the target has
	// native support).
	TypeF16  = makeType(kindFloat, 4, 0)
	TypeF32  = makeType(kindFloat, 5, 0)
	TypeF64  = makeType(kindFloat, 6, 0)
	TypeF128 = makeType(kindFloat, 7, 0)

	// TypeFlags is the result type of a comparison producing a condition
	// flags value consumed directly by a branch (never spilled as data).
	TypeFlags = makeType(kindFlags, 0, 0)
	// TypeIflags is the result type of an integer comparison that still
	// needs explicit materialization into a boolean value.
	TypeIflags = makeType(kindIflags, 0, 0)
	// TypeRef is an opaque pointer-sized reference type (used by sret
	// pointers and externally-managed references).
	TypeRef = makeType(kindRef, 6, 0)
)

// VectorOf returns a vector type of the given lane type and lane count.
// lanes must be 1, 2, 4, or 8; lane must be one of the Int/Float scalar
// types. VectorOf is total: callers that pass an unsupported combination
// get typeInvalid back, which the verifier then rejects with a stable
// error rather than panicking deep in a backend.
func VectorOf(lane Type, lanes int) Type {
	if lane.kind() != kindInt && lane.kind() != kindFloat {
		return typeInvalid
	}
	var lc uint16
	switch lanes {
	case 1:
		lc = 0
	case 2:
		lc = 1
	case 4:
		lc = 2
	case 8:
		lc = 3
	default:
		return typeInvalid
	}
	laneBitsLog2 := (uint16(lane) >> laneBitsShift) & laneBitsMask
	return makeType(lane.kind(), laneBitsLog2, lc)
}

// IsInt reports whether t is a scalar integer type.
func (t Type) IsInt() bool { return t.kind() == kindInt && t.LaneCount() == 1 }

// IsFloat reports whether t is a scalar float type.
func (t Type) IsFloat() bool { return t.kind() == kindFloat && t.LaneCount() == 1 }

// IsVector reports whether t has more than one lane.
func (t Type) IsVector() bool { return t.LaneCount() > 1 }

// LaneCount returns the number of lanes (1 for scalars).
func (t Type) LaneCount() int { return 1 << ((uint16(t) >> laneCountShift) & laneCountMask) }

// LaneType returns the scalar type of a single lane of t (t itself, if t is
// already scalar).
func (t Type) LaneType() Type {
	laneBitsLog2 := (uint16(t) >> laneBitsShift) & laneBitsMask
	return makeType(t.kind(), laneBitsLog2, 0)
}

// Bits returns the number of bits in a single lane.
func (t Type) Bits() int {
	laneBitsLog2 := (uint16(t) >> laneBitsShift) & laneBitsMask
	return 1 << laneBitsLog2
}

// Size returns the total size in bytes of a value of type t (lane size *
// lane count).
func (t Type) Size() int { return (t.Bits() / 8) * t.LaneCount() }

func (t Type) invalid() bool { return t.kind() == kindInvalid }

// Widen returns the next-wider integer or float scalar type (i8->i16->...,
// f16->f32->...). Returns typeInvalid if t is already the widest type in
// its family or is not a scalar numeric type: total, never panics.
func (t Type) Widen() Type {
	if t.LaneCount() != 1 {
		return typeInvalid
	}
	laneBitsLog2 := (uint16(t) >> laneBitsShift) & laneBitsMask
	switch t.kind() {
	case kindInt:
		if laneBitsLog2 >= 7 {
			return typeInvalid
		}
		return makeType(kindInt, laneBitsLog2+1, 0)
	case kindFloat:
		if laneBitsLog2 >= 7 {
			return typeInvalid
		}
		return makeType(kindFloat, laneBitsLog2+1, 0)
	default:
		return typeInvalid
	}
}

// Halve returns the next-narrower integer scalar type. Returns typeInvalid
// if t is already the narrowest or not an integer type.
func (t Type) Halve() Type {
	if t.kind() != kindInt || t.LaneCount() != 1 {
		return typeInvalid
	}
	laneBitsLog2 := (uint16(t) >> laneBitsShift) & laneBitsMask
	if laneBitsLog2 <= 3 {
		return typeInvalid
	}
	return makeType(kindInt, laneBitsLog2-1, 0)
}

// SplitVector halves the lane count of a vector type, returning typeInvalid
// if t is already scalar.
func (t Type) SplitVector() Type {
	lc := (uint16(t) >> laneCountShift) & laneCountMask
	if lc == 0 {
		return typeInvalid
	}
	laneBitsLog2 := (uint16(t) >> laneBitsShift) & laneBitsMask
	return makeType(t.kind(), laneBitsLog2, lc-1)
}

// WidenVector doubles the lane count of a vector type, up to the 8-lane cap.
func (t Type) WidenVector() Type {
	lc := (uint16(t) >> laneCountShift) & laneCountMask
	if lc >= 3 {
		return typeInvalid
	}
	laneBitsLog2 := (uint16(t) >> laneBitsShift) & laneBitsMask
	return makeType(t.kind(), laneBitsLog2, lc+1)
}

// String implements fmt.Stringer.
func (t Type) String() string {
	if t.invalid() {
		return "invalid"
	}
	var base string
	switch t.kind() {
	case kindInt:
		base = fmt.Sprintf("i%d", t.Bits())
	case kindFloat:
		base = fmt.Sprintf("f%d", t.Bits())
	case kindFlags:
		return "flags"
	case kindIflags:
		return "iflags"
	case kindRef:
		return "ref"
	default:
		return fmt.Sprintf("type(%#x)", uint16(t))
	}
	if n := t.LaneCount(); n > 1 {
		return fmt.Sprintf("v%d%s", n, base)
	}
	return base
}
