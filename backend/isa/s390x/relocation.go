package s390x

import "github.com/joelreymont/machgen/mcode"

// Every fixup here patches a big-endian instruction word, unlike every
// other backend in this module: z/Architecture is this module's one
// big-endian target (mcode.NewBuffer's doc comment names it directly),
// so brcFixup/brclFixup write their displacement fields high byte first,
// unlike the le16/le32 helpers riscv64/arm64/amd64 share.

// brcFixup is BRC's 16-bit I2 field: a halfword-counted (not byte-
// counted) PC-relative displacement, giving a +-64KiB range. Out-of-
// range targets veneer through an unconditional BRCL the same way
// riscv64's branchFixup veneers through jalFixup.
type brcFixup struct{}

func (brcFixup) Name() string  { return "brc" }
func (brcFixup) BitWidth() uint { return 16 }
func (brcFixup) Scale() int64   { return 2 }

func (brcFixup) InRange(delta int64) bool {
	if delta%2 != 0 {
		return false
	}
	const lo, hi = -(1 << 16), (1 << 16) - 2
	return delta >= lo && delta <= hi
}

// Patch overwrites the trailing 16-bit I2 field of a 4-byte BRC
// instruction word (opcode+mask in the leading 16 bits, I2 in the
// trailing 16).
func (brcFixup) Patch(code []byte, site int64, delta int64) {
	i2 := uint16(delta / 2)
	code[site+2] = byte(i2 >> 8)
	code[site+3] = byte(i2)
}

func (brcFixup) VeneerSize() int { return 6 }

// EncodeVeneer writes an unconditional BRCL (mask 15) to target; BRCL's
// 32-bit halfword-counted field covers any distance a 16-bit BRC veneer
// could need.
func (brcFixup) EncodeVeneer(code []byte, at int64, target int64) {
	delta := target - at
	i2 := uint32(delta / 2)
	code[at] = 0xc0
	code[at+1] = 0xf4 // mask 15 (always), opcode low nibble for BRCL
	code[at+2] = byte(i2 >> 24)
	code[at+3] = byte(i2 >> 16)
	code[at+4] = byte(i2 >> 8)
	code[at+5] = byte(i2)
}

// brclFixup is BRCL's 32-bit I2 field, halfword-counted per
// mcode.RelocationPC32Dbl's own doc comment -- this is the fixup kind
// BRASL call sites use too, since BRASL shares BRCL's RIL-c layout.
type brclFixup struct{}

func (brclFixup) Name() string  { return "brcl" }
func (brclFixup) BitWidth() uint { return 32 }
func (brclFixup) Scale() int64   { return 2 }

func (brclFixup) InRange(delta int64) bool {
	if delta%2 != 0 {
		return false
	}
	const lo, hi = -(1 << 32), (1 << 32) - 2
	return delta >= lo && delta <= hi
}

func (brclFixup) Patch(code []byte, site int64, delta int64) {
	i2 := uint32(delta / 2)
	code[site+2] = byte(i2 >> 24)
	code[site+3] = byte(i2 >> 16)
	code[site+4] = byte(i2 >> 8)
	code[site+5] = byte(i2)
}

func (brclFixup) VeneerSize() int { return 6 }

// EncodeVeneer is unreachable: brclFixup already spans the widest range
// this ISA's relative branches offer (mirrors jalFixup's precedent).
func (brclFixup) EncodeVeneer(code []byte, at int64, target int64) {
	panic("s390x: brcl fixup already has the largest local-branch range this ISA offers")
}

func be32(code []byte, at int64) uint32 {
	return uint32(code[at])<<24 | uint32(code[at+1])<<16 | uint32(code[at+2])<<8 | uint32(code[at+3])
}

func putBe32(code []byte, at int64, v uint32) {
	code[at] = byte(v >> 24)
	code[at+1] = byte(v >> 16)
	code[at+2] = byte(v >> 8)
	code[at+3] = byte(v)
}

func be16(code []byte, at int64) uint16 {
	return uint16(code[at])<<8 | uint16(code[at+1])
}

func putBe16(code []byte, at int64, v uint16) {
	code[at] = byte(v >> 8)
	code[at+1] = byte(v)
}

var (
	_ mcode.FixupKind = brcFixup{}
	_ mcode.FixupKind = brclFixup{}
)
