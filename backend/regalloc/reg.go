package regalloc

import (
	"fmt"
	"math/bits"

	"github.com/joelreymont/machgen/ir"
)

// VReg identifies a register assigned to an IR value. The low 32 bits are
// a dense id; bits 32-39 carry the real register it has been colored to
// (RealRegInvalid until allocation), and bits 40-47 carry its RegType.
type VReg uint64

// VRegID is the pure identifier of a VReg, stripped of RealReg/RegType.
type VRegID uint32

const MaxVRegID = ^VRegID(0)

// RealReg returns the physical register v has been assigned, or
// RealRegInvalid if it hasn't (or is a pre-colored virtual register for a
// fixed physical operand).
func (v VReg) RealReg() RealReg { return RealReg(v >> 32) }

// IsRealReg reports whether v is backed by a physical register.
func (v VReg) IsRealReg() bool { return v.RealReg() != RealRegInvalid }

// FromRealReg builds a VReg representing a specific pre-colored physical
// register, for fixed-register operands (ABI-mandated argument/return
// registers, instructions with hardwired operands).
func FromRealReg(r RealReg, typ RegType) VReg {
	rid := VRegID(r)
	if rid > vRegIDReservedForRealNum {
		panic(fmt.Sprintf("invalid real reg %d", r))
	}
	return VReg(r).SetRealReg(r).SetRegType(typ)
}

// SetRealReg returns v with its RealReg field set to r.
func (v VReg) SetRealReg(r RealReg) VReg {
	return VReg(r)<<32 | (v & 0xff_00_ffffffff)
}

// RegType returns v's register class.
func (v VReg) RegType() RegType { return RegType(v >> 40) }

// SetRegType returns v with its RegType field set to t.
func (v VReg) SetRegType(t RegType) VReg {
	return VReg(t)<<40 | (v & 0x00_ff_ffffffff)
}

// ID returns v's dense identifier.
func (v VReg) ID() VRegID { return VRegID(v & 0xffffffff) }

// Valid reports whether v is a well-formed register reference.
func (v VReg) Valid() bool {
	return v.ID() != vRegIDInvalid && v.RegType() != RegTypeInvalid
}

// String implements fmt.Stringer.
func (v VReg) String() string {
	if v.IsRealReg() {
		return fmt.Sprintf("r%d", v.ID())
	}
	return fmt.Sprintf("v%d?", v.ID())
}

// RealReg identifies a physical register by its backend-assigned number.
type RealReg byte

const RealRegInvalid RealReg = 0

const (
	vRegIDInvalid            VRegID = 1 << 31
	VRegIDNonReservedBegin          = vRegIDReservedForRealNum
	vRegIDReservedForRealNum VRegID = 128
	VRegInvalid                     = VReg(vRegIDInvalid)
)

// String implements fmt.Stringer.
func (r RealReg) String() string {
	if r == RealRegInvalid {
		return "invalid"
	}
	return fmt.Sprintf("r%d", r)
}

// RegType is a register's allocation class: general-purpose or floating
// point/vector. Distinct classes never compete for the same physical
// register file, so the allocator runs one independent pass per class.
type RegType byte

const (
	RegTypeInvalid RegType = iota
	RegTypeInt
	RegTypeFloat
	NumRegType
)

// String implements fmt.Stringer.
func (r RegType) String() string {
	switch r {
	case RegTypeInt:
		return "int"
	case RegTypeFloat:
		return "float"
	default:
		return "invalid"
	}
}

// RegTypeOf maps a value's IR type to the register class that holds it.
// Vectors always live in the float/SIMD register file regardless of their
// lane type.
func RegTypeOf(t ir.Type) RegType {
	switch {
	case t.IsVector():
		return RegTypeFloat
	case t.IsFloat():
		return RegTypeFloat
	case t.IsInt() || t == ir.TypeRef:
		return RegTypeInt
	case t == ir.TypeFlags || t == ir.TypeIflags:
		// A comparison's raw flags result is always consumed by fusing its
		// producing instruction directly into the one branch/select that
		// reads it; AllocateVReg still reserves a VReg for bookkeeping
		// uniformity (every instruction result gets one), but it is never
		// actually read or written once the fusion happens.
		return RegTypeInt
	default:
		panic(fmt.Sprintf("regalloc: no register class for type %s", t))
	}
}

const RealRegsNumMax = 128

// bitset is a growable bitmap with a small inline backing array, used by
// VRegSet/VRegTable to avoid heap allocation for functions with few live
// virtual registers.
type bitset struct {
	bits []uint64
	buf  [5]uint64
}

func (b *bitset) reset() { b.bits, b.buf = nil, [5]uint64{} }

func (b *bitset) scan(f func(uint)) {
	for i, v := range b.bits {
		for j := uint(i * 64); v != 0; j++ {
			n := uint(bits.TrailingZeros64(v))
			j += n
			v >>= n + 1
			f(j)
		}
	}
}

func (b *bitset) has(i uint) bool {
	index, shift := i/64, i%64
	return index < uint(len(b.bits)) && (b.bits[index]&(1<<shift)) != 0
}

func (b *bitset) set(i uint) {
	index, shift := i/64, i%64
	if index >= uint(len(b.bits)) {
		if index < uint(len(b.buf)) {
			b.bits = b.buf[:]
		} else {
			b.bits = append(b.bits, make([]uint64, (index+1)-uint(len(b.bits)))...)
			b.buf = [5]uint64{}
		}
	}
	b.bits[index] |= 1 << shift
}

// VRegSet is a fast membership set over virtual registers, partitioned by
// RegType so int and float ids (which overlap numerically) never collide.
type VRegSet [NumRegType]vregTypeSet

func (s *VRegSet) Contains(v VReg) bool { return s[v.RegType()].contains(v.ID()) }
func (s *VRegSet) Insert(v VReg) {
	if v.IsRealReg() {
		panic("regalloc: cannot insert a real register into a VRegSet")
	}
	s[v.RegType()].insert(v.ID())
}
func (s *VRegSet) Range(f func(VReg)) {
	for i := range s {
		s[i].scan(func(id VRegID) { f(VReg(id).SetRegType(RegType(i))) })
	}
}
func (s *VRegSet) Reset() {
	for i := range s {
		s[i] = vregTypeSet{}
	}
}

type vregTypeSet struct {
	min VRegID
	set bitset
}

func (s *vregTypeSet) contains(id VRegID) bool { return s.set.has(uint(id - s.min)) }
func (s *vregTypeSet) insert(id VRegID)        { s.set.set(uint(id - s.min)) }
func (s *vregTypeSet) scan(f func(VRegID))     { s.set.scan(func(i uint) { f(VRegID(i) + s.min) }) }
