package arm64

import "github.com/joelreymont/machgen/mcode"

// branchFixup26 is B/BL's 26-bit word-scaled PC-relative offset, +-128 MiB.
// A direct BL out of this range needs an ADRP+LDR+BLR sequence instead;
// this fixup also serves B, the unconditional jump's own encoding.
type branchFixup26 struct{}

func (branchFixup26) Name() string    { return "b/bl" }
func (branchFixup26) BitWidth() uint   { return 26 }
func (branchFixup26) Scale() int64     { return 4 }
func (branchFixup26) VeneerSize() int  { return 4 }
func (branchFixup26) InRange(delta int64) bool {
	if delta%4 != 0 {
		return false
	}
	const lo, hi = -(1 << 27), (1 << 27) - 4
	return delta >= lo && delta <= hi
}

func (branchFixup26) Patch(code []byte, site int64, delta int64) {
	word := le32(code, site)
	imm26 := uint32(delta/4) & 0x3ffffff
	word = (word &^ 0x3ffffff) | imm26
	putLe32(code, site, word)
}

// EncodeVeneer writes an unconditional B to target; B's own 26-bit range
// (+-128MiB) covers any distance a 19-bit conditional branch veneer could
// need, so the same trampoline form serves both fixup kinds.
func (branchFixup26) EncodeVeneer(code []byte, at int64, target int64) {
	delta := target - at
	putLe32(code, at, uint32(0b000101)<<26|(uint32(delta/4)&0x3ffffff))
}

// branchFixup19 is B.cond/CBZ/CBNZ's 19-bit word-scaled offset, +-1 MiB.
// Out of range, ResolveFixups splices a veneer: an unconditional B with
// full 26-bit range sitting at the nearest block boundary, which the
// original conditional branch (now aimed at the veneer) can always reach
// since the veneer sits immediately after its own block.
type branchFixup19 struct{}

func (branchFixup19) Name() string   { return "b.cond" }
func (branchFixup19) BitWidth() uint { return 19 }
func (branchFixup19) Scale() int64   { return 4 }
func (branchFixup19) VeneerSize() int { return 4 }
func (branchFixup19) InRange(delta int64) bool {
	if delta%4 != 0 {
		return false
	}
	const lo, hi = -(1 << 20), (1 << 20) - 4
	return delta >= lo && delta <= hi
}

func (branchFixup19) Patch(code []byte, site int64, delta int64) {
	word := le32(code, site)
	imm19 := uint32(delta/4) & 0x7ffff
	word = (word &^ (0x7ffff << 5)) | (imm19 << 5)
	putLe32(code, site, word)
}

func (branchFixup19) EncodeVeneer(code []byte, at int64, target int64) {
	delta := target - at
	putLe32(code, at, uint32(0b000101)<<26|(uint32(delta/4)&0x3ffffff))
}

// ldrLitFixup is LDR (literal)'s 19-bit word-scaled PC-relative offset,
// used to load a float/vector constant out of this function's constant
// pool island.
type ldrLitFixup struct{ sizeBit uint32 }

func (ldrLitFixup) Name() string   { return "ldr-literal" }
func (ldrLitFixup) BitWidth() uint { return 19 }
func (ldrLitFixup) Scale() int64   { return 4 }
func (ldrLitFixup) VeneerSize() int {
	// A literal load can't be veneered (it addresses data, not code) --
	// its constant pool is instead flushed proactively before it would
	// ever fall out of range, so this path is never exercised in
	// practice. Sized as a branch veneer only to satisfy the interface.
	return 4
}
func (f ldrLitFixup) InRange(delta int64) bool {
	if delta%4 != 0 {
		return false
	}
	const lo, hi = -(1 << 20), (1 << 20) - 4
	return delta >= lo && delta <= hi
}

func (f ldrLitFixup) Patch(code []byte, site int64, delta int64) {
	word := le32(code, site)
	imm19 := uint32(delta/4) & 0x7ffff
	word = (word &^ (0x7ffff << 5)) | (imm19 << 5)
	putLe32(code, site, word)
}

func (f ldrLitFixup) EncodeVeneer(code []byte, at int64, target int64) {
	panic("arm64: ldr-literal fixup cannot be veneered")
}

func le32(code []byte, at int64) uint32 {
	return uint32(code[at]) | uint32(code[at+1])<<8 | uint32(code[at+2])<<16 | uint32(code[at+3])<<24
}

func putLe32(code []byte, at int64, v uint32) {
	code[at] = byte(v)
	code[at+1] = byte(v >> 8)
	code[at+2] = byte(v >> 16)
	code[at+3] = byte(v >> 24)
}

var _ mcode.FixupKind = branchFixup26{}
var _ mcode.FixupKind = branchFixup19{}
var _ mcode.FixupKind = ldrLitFixup{}
