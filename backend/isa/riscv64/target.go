package riscv64

import (
	"fmt"

	"github.com/joelreymont/machgen/ir"
	"github.com/joelreymont/machgen/legalize"
)

// Target implements legalize.Target for the RV64I base plus the M
// extension. This backend carries no F/D extension and no V extension:
// every float and vector opcode is marked OpExpand with no matching case
// in legalize's generic expander, so legalize.Run fails with a
// LegalizationError the moment one reaches a function targeting this
// backend, rather than silently losing a constant's value through a
// zero-argument libcall or miscompiling a soft-float sequence this
// backend doesn't carry. Division and remainder are native here (RV64M's
// DIV/DIVU/REM/REMU), unlike amd64's power-of-two-only expansion.
type Target struct{}

var _ legalize.Target = Target{}

func (Target) NativeIntBits() int   { return 64 }
func (Target) HasNativeFloat() bool { return false }

func (Target) TypeAction(t ir.Type) (legalize.TypeAction, ir.Type) {
	if t.Bits() > 64 {
		return legalize.TypeExpand, t
	}
	return legalize.TypeLegal, t
}

func (Target) OpAction(op ir.Opcode, t ir.Type) (legalize.OpAction, string) {
	switch op {
	case ir.OpcodeIadd, ir.OpcodeIsub, ir.OpcodeImul,
		ir.OpcodeUdiv, ir.OpcodeSdiv, ir.OpcodeUrem, ir.OpcodeSrem,
		ir.OpcodeBand, ir.OpcodeBor, ir.OpcodeBxor,
		ir.OpcodeIshl, ir.OpcodeUshr, ir.OpcodeSshr, ir.OpcodeRotl, ir.OpcodeRotr,
		ir.OpcodeIneg, ir.OpcodeBnot,
		ir.OpcodeIconst,
		ir.OpcodeIextend, ir.OpcodeIreduce,
		ir.OpcodeIcmp, ir.OpcodeIcmpImm, ir.OpcodeSelect,
		ir.OpcodeLoad, ir.OpcodeStore,
		ir.OpcodeUload8, ir.OpcodeSload8, ir.OpcodeIstore8,
		ir.OpcodeUload16, ir.OpcodeSload16, ir.OpcodeIstore16,
		ir.OpcodeUload32, ir.OpcodeSload32, ir.OpcodeIstore32,
		ir.OpcodeStackLoad, ir.OpcodeStackStore,
		ir.OpcodeCall, ir.OpcodeCallIndirect,
		ir.OpcodeJump, ir.OpcodeReturn, ir.OpcodeTrap,
		ir.OpcodeBrz, ir.OpcodeBrnz:
		return legalize.OpLegal, ""

	case ir.OpcodeClz, ir.OpcodeCtz, ir.OpcodePopcnt:
		return legalize.OpLibcall, libcallName(op, t)

	default:
		// Every float opcode, every vector opcode, and Icast's float<->int
		// bitcast: this backend implements neither the F/D nor the V
		// extension, so none of them has a legal or libcall-able action.
		return legalize.OpExpand, ""
	}
}

// CustomExpand is never reached: OpAction never returns OpCustom.
func (Target) CustomExpand(*ir.Function, ir.Instruction) {
	panic("riscv64: no OpCustom rule registered")
}

// libcallName derives the runtime helper symbol for an (opcode, type)
// legalize routes through OpLibcall, e.g. "machgen_popcnt_i32".
func libcallName(op ir.Opcode, t ir.Type) string {
	return fmt.Sprintf("machgen_%s_%s", opSuffix(op), t)
}

func opSuffix(op ir.Opcode) string {
	switch op {
	case ir.OpcodeClz:
		return "clz"
	case ir.OpcodeCtz:
		return "ctz"
	case ir.OpcodePopcnt:
		return "popcnt"
	default:
		return op.String()
	}
}
