package amd64

import "github.com/joelreymont/machgen/mcode"

// rel32Fixup is every x86-64 32-bit PC-relative field this backend resolves
// itself: JMP/Jcc's disp32, and a RIP-relative float-literal load's disp32
// (a direct CALL's disp32 is left to a PLT32 relocation instead). Each is
// relative to the address immediately following the
// 4-byte field itself, not to the field's own start (unlike arm64, whose
// PC-relative immediates are relative to the instruction word they sit
// in) -- Patch and InRange correct for that by subtracting the 4 trailing
// bytes before comparing against rel32's signed range.
type rel32Fixup struct{}

func (rel32Fixup) Name() string   { return "rel32" }
func (rel32Fixup) BitWidth() uint { return 32 }
func (rel32Fixup) Scale() int64   { return 1 }

// VeneerSize is never exercised: rel32 spans +-2GiB, far beyond any
// function this module compiles.
func (rel32Fixup) VeneerSize() int { return 5 }

func (rel32Fixup) InRange(delta int64) bool {
	d := delta - 4
	return d >= -(1<<31) && d <= (1<<31)-1
}

func (rel32Fixup) Patch(code []byte, site int64, delta int64) {
	putLe32(code, site, uint32(int32(delta-4)))
}

func (rel32Fixup) EncodeVeneer(code []byte, at int64, target int64) {
	panic("amd64: rel32 fixup cannot be veneered")
}

func putLe32(code []byte, at int64, v uint32) {
	code[at] = byte(v)
	code[at+1] = byte(v >> 8)
	code[at+2] = byte(v >> 16)
	code[at+3] = byte(v >> 24)
}

var _ mcode.FixupKind = rel32Fixup{}
