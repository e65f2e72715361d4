package riscv64

import "github.com/joelreymont/machgen/mcode"

// jalFixup is JAL's 20-bit (pre-scale) PC-relative offset, encoded as
// delta/2 since the hardware always treats bit 0 of the target as zero
// -- a +-1MiB range, far beyond any function this module compiles, so
// EncodeVeneer is never exercised in practice (mirrors rel32Fixup's and
// ldrLitFixup's precedent elsewhere in this module).
type jalFixup struct{}

func (jalFixup) Name() string  { return "jal" }
func (jalFixup) BitWidth() uint { return 20 }
func (jalFixup) Scale() int64   { return 2 }

func (jalFixup) InRange(delta int64) bool {
	if delta%2 != 0 {
		return false
	}
	const lo, hi = -(1 << 20), (1 << 20) - 2
	return delta >= lo && delta <= hi
}

func (jalFixup) Patch(code []byte, site int64, delta int64) {
	word := le32(code, site)
	enc := uint32(delta/2) & 0xfffff
	imm10_1 := enc & 0x3ff
	imm11 := (enc >> 10) & 0x1
	imm19_12 := (enc >> 11) & 0xff
	imm20 := (enc >> 19) & 0x1
	word = (word &^ 0xfffff000) | imm20<<31 | imm19_12<<12 | imm11<<20 | imm10_1<<21
	putLe32(code, site, word)
}

func (jalFixup) VeneerSize() int { return 4 }

func (jalFixup) EncodeVeneer(code []byte, at int64, target int64) {
	panic("riscv64: jal fixup already has the largest local-branch range this ISA offers")
}

// branchFixup is a conditional branch's 12-bit (pre-scale) offset,
// encoded the same delta/2 way; a +-4KiB range, which ResolveFixups
// veneers with an unconditional jal when a branch target falls outside
// it, the same way arm64's branchFixup19 veneers through its wider
// sibling.
type branchFixup struct{}

func (branchFixup) Name() string  { return "branch" }
func (branchFixup) BitWidth() uint { return 12 }
func (branchFixup) Scale() int64   { return 2 }

func (branchFixup) InRange(delta int64) bool {
	if delta%2 != 0 {
		return false
	}
	const lo, hi = -(1 << 12), (1 << 12) - 2
	return delta >= lo && delta <= hi
}

func (branchFixup) Patch(code []byte, site int64, delta int64) {
	word := le32(code, site)
	enc := uint32(delta/2) & 0xfff
	imm4_1 := enc & 0xf
	imm10_5 := (enc >> 4) & 0x3f
	imm11 := (enc >> 10) & 0x1
	imm12 := (enc >> 11) & 0x1
	word = (word &^ 0xfe000f80) | imm12<<31 | imm10_5<<25 | imm11<<7 | imm4_1<<8
	putLe32(code, site, word)
}

func (branchFixup) VeneerSize() int { return 4 }

// EncodeVeneer writes an unconditional jal to target; jal's own 20-bit
// range covers any distance a 12-bit branch veneer could need.
func (branchFixup) EncodeVeneer(code []byte, at int64, target int64) {
	delta := target - at
	enc := uint32(delta/2) & 0xfffff
	imm10_1 := enc & 0x3ff
	imm11 := (enc >> 10) & 0x1
	imm19_12 := (enc >> 11) & 0xff
	imm20 := (enc >> 19) & 0x1
	word := imm20<<31 | imm19_12<<12 | imm11<<20 | imm10_1<<21 | uint32(opJAL)
	putLe32(code, at, word)
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

var (
	_ mcode.FixupKind = jalFixup{}
	_ mcode.FixupKind = branchFixup{}
)
