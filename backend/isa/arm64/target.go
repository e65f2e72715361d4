package arm64

import (
	"github.com/joelreymont/machgen/ir"
	"github.com/joelreymont/machgen/legalize"
)

// Target implements legalize.Target for AArch64: every integer width up
// to 64 bits and every vector lane arrangement this backend's lower.go
// handles is natively legal, division and remainder use the UDIV/SDIV/
// MSUB sequence lower.go's lowerRem already emits, and every float
// opcode is legal too: lower.go emits copysign as a GPR mask sequence and
// the rounding family as single FRINT-class instructions. No opcode is
// routed to a runtime helper.
type Target struct{}

var _ legalize.Target = Target{}

func (Target) NativeIntBits() int   { return 64 }
func (Target) HasNativeFloat() bool { return true }

func (Target) TypeAction(t ir.Type) (legalize.TypeAction, ir.Type) {
	if t.IsVector() {
		return legalize.TypeLegal, t
	}
	if t.Bits() > 64 {
		return legalize.TypeExpand, t
	}
	return legalize.TypeLegal, t
}

// OpAction declares every opcode this backend's lower.go switches on as
// OpLegal; there is no expand or libcall path because lower.go already
// has a direct A64 sequence for all of them, division and remainder
// included (UDIV/SDIV/MSUB, not a shift peephole).
func (Target) OpAction(ir.Opcode, ir.Type) (legalize.OpAction, string) {
	return legalize.OpLegal, ""
}

// CustomExpand is never reached: OpAction never returns OpCustom.
func (Target) CustomExpand(*ir.Function, ir.Instruction) {
	panic("arm64: no OpCustom rule registered")
}
