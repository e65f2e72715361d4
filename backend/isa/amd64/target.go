package amd64

import (
	"fmt"

	"github.com/joelreymont/machgen/ir"
	"github.com/joelreymont/machgen/legalize"
)

// Target implements legalize.Target for x86-64. Scope is deliberately
// narrower than arm64's: this backend hand-lowers the core integer and
// scalar-float arithmetic, control flow, load/store, call and select
// surface (see lower.go), expands power-of-two division and remainder
// the same way legalize's generic expander does for every other target,
// and routes everything without a cheap native encoding -- bit-count
// ops, the IEEE rounding-mode family, NaN-propagating min/max,
// unsigned int<->float conversion, and every vector opcode -- to a
// runtime helper instead of hand-building them out of compares, masks
// and branches.
type Target struct{}

var _ legalize.Target = Target{}

func (Target) NativeIntBits() int   { return 64 }
func (Target) HasNativeFloat() bool { return true }

func (Target) TypeAction(t ir.Type) (legalize.TypeAction, ir.Type) {
	if t.IsVector() {
		// Left type-legal; every vector-producing/consuming opcode is
		// routed to OpLibcall below instead, so no vector register class
		// ever needs to exist in this backend.
		return legalize.TypeLegal, t
	}
	if t.Bits() > 64 {
		return legalize.TypeExpand, t
	}
	return legalize.TypeLegal, t
}

func (Target) OpAction(op ir.Opcode, t ir.Type) (legalize.OpAction, string) {
	switch op {
	case ir.OpcodeIadd, ir.OpcodeIsub, ir.OpcodeImul,
		ir.OpcodeBand, ir.OpcodeBor, ir.OpcodeBxor,
		ir.OpcodeIshl, ir.OpcodeUshr, ir.OpcodeSshr, ir.OpcodeRotl, ir.OpcodeRotr,
		ir.OpcodeIneg, ir.OpcodeBnot,
		ir.OpcodeIconst, ir.OpcodeF32const, ir.OpcodeF64const,
		ir.OpcodeIextend, ir.OpcodeIreduce, ir.OpcodeIcast,
		ir.OpcodeIcmp, ir.OpcodeIcmpImm, ir.OpcodeFcmp, ir.OpcodeSelect,
		ir.OpcodeFadd, ir.OpcodeFsub, ir.OpcodeFmul, ir.OpcodeFdiv,
		ir.OpcodeFneg, ir.OpcodeFabs, ir.OpcodeFcopysign, ir.OpcodeSqrt,
		ir.OpcodeFpromote, ir.OpcodeFdemote,
		ir.OpcodeFcvtToSint, ir.OpcodeFcvtFromSint,
		ir.OpcodeLoad, ir.OpcodeStore,
		ir.OpcodeUload8, ir.OpcodeSload8, ir.OpcodeIstore8,
		ir.OpcodeUload16, ir.OpcodeSload16, ir.OpcodeIstore16,
		ir.OpcodeUload32, ir.OpcodeSload32, ir.OpcodeIstore32,
		ir.OpcodeStackLoad, ir.OpcodeStackStore,
		ir.OpcodeCall, ir.OpcodeCallIndirect,
		ir.OpcodeJump, ir.OpcodeReturn, ir.OpcodeTrap,
		ir.OpcodeBrz, ir.OpcodeBrnz:
		return legalize.OpLegal, ""

	case ir.OpcodeUdiv, ir.OpcodeSdiv, ir.OpcodeUrem, ir.OpcodeSrem:
		// Only the power-of-two case is handled; a non-power-of-two
		// divisor fails legalize.Run with a LegalizationError rather than
		// emitting a software division routine this backend doesn't carry.
		return legalize.OpExpand, ""

	case ir.OpcodeClz, ir.OpcodeCtz, ir.OpcodePopcnt,
		ir.OpcodeFmin, ir.OpcodeFmax,
		ir.OpcodeCeil, ir.OpcodeFloor, ir.OpcodeTrunc, ir.OpcodeNearest,
		ir.OpcodeFcvtToUint, ir.OpcodeFcvtFromUint,
		ir.OpcodeVIadd, ir.OpcodeVIsub, ir.OpcodeVImul,
		ir.OpcodeVFadd, ir.OpcodeVFsub, ir.OpcodeVFmul, ir.OpcodeVFdiv,
		ir.OpcodeVconst, ir.OpcodeSplat, ir.OpcodeExtractlane, ir.OpcodeInsertlane:
		return legalize.OpLibcall, libcallName(op, t)

	default:
		return legalize.OpLibcall, libcallName(op, t)
	}
}

// CustomExpand is never reached: OpAction never returns OpCustom.
func (Target) CustomExpand(*ir.Function, ir.Instruction) {
	panic("amd64: no OpCustom rule registered")
}

// libcallName derives the runtime helper symbol for an (opcode, type)
// legalize routes through OpLibcall, e.g. "machgen_clz_i32",
// "machgen_fmin_f64". One symbol per (opcode, type) pair, matching
// legalOpSet's per-name FuncRef cache in legalize/oplegalizer.go.
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
	case ir.OpcodeFmin:
		return "fmin"
	case ir.OpcodeFmax:
		return "fmax"
	case ir.OpcodeCeil:
		return "ceil"
	case ir.OpcodeFloor:
		return "floor"
	case ir.OpcodeTrunc:
		return "trunc"
	case ir.OpcodeNearest:
		return "nearest"
	case ir.OpcodeFcvtToUint:
		return "fcvt_to_uint"
	case ir.OpcodeFcvtFromUint:
		return "fcvt_from_uint"
	case ir.OpcodeVIadd:
		return "viadd"
	case ir.OpcodeVIsub:
		return "visub"
	case ir.OpcodeVImul:
		return "vimul"
	case ir.OpcodeVFadd:
		return "vfadd"
	case ir.OpcodeVFsub:
		return "vfsub"
	case ir.OpcodeVFmul:
		return "vfmul"
	case ir.OpcodeVFdiv:
		return "vfdiv"
	case ir.OpcodeVconst:
		return "vconst"
	case ir.OpcodeSplat:
		return "splat"
	case ir.OpcodeExtractlane:
		return "extractlane"
	case ir.OpcodeInsertlane:
		return "insertlane"
	default:
		return op.String()
	}
}
