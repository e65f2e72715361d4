package amd64

import (
	"fmt"

	"github.com/joelreymont/machgen/backend/regalloc"
	"github.com/joelreymont/machgen/ir"
)

// instrKind enumerates every x86-64 instruction form this backend's
// lowering rules produce. Two-operand destructive forms (rd is both an
// input and the output, matching the hardware) are lowered as a
// MovReg/MovFpu into rd followed by the destructive op, rather than
// modeled as a fused three-operand instruction the way arm64's ALURRR
// is -- the extra register-to-register move costs nothing functionally
// and keeps every instrKind a direct one-to-one match with one x86
// opcode, which instr_encoding.go can encode without reconstructing an
// implicit copy.
type instrKind byte

const (
	kindInvalid instrKind = iota
	kindMovImm          // mov/movabs rd, imm
	kindMovRR           // mov rd, rn (gpr-gpr)
	kindMovFpuRR        // movsd/movss rd, rn (xmm-xmm)
	kindMovToFpu        // movq/movd rd(xmm), rn(gpr) -- bit-pattern move, not a convert
	kindMovFromFpu      // movq/movd rd(gpr), rn(xmm)
	kindALURR           // rd (op)= rm, integer
	kindALURI           // rd (op)= imm, integer
	kindNot             // rd = ~rd
	kindNeg             // rd = -rd
	kindImulRR          // rd *= rm
	kindShiftCL         // rd (shift)= cl (fixed register, see tmpCx)
	kindMovzx           // movzx rd, rn (8/16/32 -> wider, zero-extend)
	kindMovsx           // movsx/movsxd rd, rn (8/16/32 -> wider, sign-extend)
	kindCmpRR           // cmp rn, rm (sets flags)
	kindSetcc           // setcc rd (8-bit, zero-extended into rd)
	kindFpuRR           // addsd/subsd/mulsd/divsd rd, rm (destructive, rm form only)
	kindFpuUnary        // sqrtsd/cvtss2sd/cvtsd2ss rd, rn (non-destructive)
	kindFpuCmp          // ucomisd/ucomiss rn, rm
	kindCvtIntToFpu     // cvtsi2sd/cvtsi2ss rd, rn
	kindCvtFpuToInt     // cvttsd2si/cvttss2si rd, rn
	kindLoad
	kindStore
	kindFpuLoadLit // RIP-relative load of a constant-pool float literal
	kindLoadAddr   // lea rd, [rn+imm]
	kindJmp        // unconditional jmp rel32
	kindJcc        // conditional jcc rel32
	kindCall
	kindCallR
	kindRet
	kindUd2 // trap
	kindNop
)

// aluOp distinguishes which destructive ALU opcode kindALURR/kindALURI
// performs.
type aluOp byte

const (
	aluAdd aluOp = iota
	aluSub
	aluAnd
	aluOr
	aluXor
)

// fpuOp distinguishes a destructive two-operand SSE2 instruction.
type fpuOp byte

const (
	fpuAdd fpuOp = iota
	fpuSub
	fpuMul
	fpuDiv
)

// fpuUnaryOp distinguishes a non-destructive one-operand SSE2 instruction.
type fpuUnaryOp byte

const (
	fpuUnarySqrt fpuUnaryOp = iota
	fpuUnaryCvt32To64
	fpuUnaryCvt64To32
)

// shiftOp distinguishes which 0xD3 /digit shift-by-CL form kindShiftCL
// performs; ROL/ROR have no rotate-with-carry variant here since this
// backend never reads or produces the carry flag.
type shiftOp byte

const (
	shiftShl shiftOp = iota
	shiftShr
	shiftSar
	shiftRol
	shiftRor
)

// cc is the x86 condition code tested by Jcc/Setcc, set from the
// preceding CMP/UCOMISx's flags.
type cc byte

const (
	ccE cc = iota
	ccNE
	ccL
	ccGE
	ccG
	ccLE
	ccB // unsigned <
	ccAE
	ccA
	ccBE
	ccP // parity (unordered float compare)
	ccNP
)

func (c cc) invert() cc {
	switch c {
	case ccE:
		return ccNE
	case ccNE:
		return ccE
	case ccL:
		return ccGE
	case ccGE:
		return ccL
	case ccG:
		return ccLE
	case ccLE:
		return ccG
	case ccB:
		return ccAE
	case ccAE:
		return ccB
	case ccA:
		return ccBE
	case ccBE:
		return ccA
	case ccP:
		return ccNP
	default:
		return ccP
	}
}

func fromIntCC(cc0 ir.IntCC) cc {
	switch cc0 {
	case ir.IntCCEqual:
		return ccE
	case ir.IntCCNotEqual:
		return ccNE
	case ir.IntCCSignedLessThan:
		return ccL
	case ir.IntCCSignedGreaterThanOrEqual:
		return ccGE
	case ir.IntCCSignedGreaterThan:
		return ccG
	case ir.IntCCSignedLessThanOrEqual:
		return ccLE
	case ir.IntCCUnsignedLessThan:
		return ccB
	case ir.IntCCUnsignedGreaterThanOrEqual:
		return ccAE
	case ir.IntCCUnsignedGreaterThan:
		return ccA
	case ir.IntCCUnsignedLessThanOrEqual:
		return ccBE
	default:
		panic("amd64: unknown IntCC")
	}
}

func fromFloatCC(cc0 ir.FloatCC) cc {
	switch cc0 {
	case ir.FloatCCEqual:
		return ccE
	case ir.FloatCCNotEqual:
		return ccNE
	case ir.FloatCCLessThan:
		return ccB
	case ir.FloatCCLessThanOrEqual:
		return ccBE
	case ir.FloatCCGreaterThan:
		return ccA
	case ir.FloatCCGreaterThanOrEqual:
		return ccAE
	case ir.FloatCCUnordered:
		return ccP
	case ir.FloatCCOrdered:
		return ccNP
	default:
		panic("amd64: unknown FloatCC")
	}
}

// instr is one x86-64 instruction in this function's lowered list,
// doubly linked exactly as arm64's instr is, for the same splicing
// reasons (prologue/epilogue, spill code).
type instr struct {
	kind instrKind

	rd, rn, rm regalloc.VReg
	imm        int64
	size       byte // 8, 16, 32, or 64
	signed     bool
	aluOp      aluOp
	fpuOp      fpuOp
	fpuUnaryOp fpuUnaryOp
	shiftOp    shiftOp
	cc         cc

	targetBlock ir.BasicBlockID
	funcRef     string
	indirect    bool
	frameSlot   bool

	defsBuf [1]regalloc.VReg
	usesBuf [3]regalloc.VReg

	next, prev *instr
}

func (i *instr) Defs() []regalloc.VReg {
	if !i.rd.Valid() {
		return nil
	}
	i.defsBuf[0] = i.rd
	return i.defsBuf[:1]
}

// isRMW reports whether i's destination register is read before it is
// overwritten, i.e. whether rd must also appear in Uses() -- true for
// every destructive two-address form lowering emits before register
// allocation (see instrKind's doc comment). kindALURI is not included: it
// only appears in the prologue/epilogue, added after allocation.
func (i *instr) isRMW() bool {
	switch i.kind {
	case kindALURR, kindNot, kindNeg, kindImulRR, kindShiftCL, kindFpuRR:
		return true
	default:
		return false
	}
}

func (i *instr) Uses() []regalloc.VReg {
	n := 0
	if i.isRMW() && i.rd.Valid() {
		i.usesBuf[n] = i.rd
		n++
	}
	if i.rn.Valid() {
		i.usesBuf[n] = i.rn
		n++
	}
	if i.rm.Valid() {
		i.usesBuf[n] = i.rm
		n++
	}
	return i.usesBuf[:n]
}

func (i *instr) AssignUses(vs []regalloc.VReg) {
	n := 0
	if i.isRMW() && i.rd.Valid() {
		// Same vreg as Defs()[0]; AssignDef will also write it, with the
		// same allocator-assigned register since both come from the one
		// interval for this vreg.
		i.rd = vs[n]
		n++
	}
	if i.rn.Valid() {
		i.rn = vs[n]
		n++
	}
	if i.rm.Valid() {
		i.rm = vs[n]
		n++
	}
}

func (i *instr) AssignDef(v regalloc.VReg) { i.rd = v }

func (i *instr) IsCopy() bool {
	return i.kind == kindMovRR || i.kind == kindMovFpuRR
}

func (i *instr) IsCall() bool         { return i.kind == kindCall || i.kind == kindCallR }
func (i *instr) IsIndirectCall() bool { return i.kind == kindCallR }
func (i *instr) IsReturn() bool       { return i.kind == kindRet }

func (i *instr) String() string {
	switch i.kind {
	case kindMovImm:
		return fmt.Sprintf("mov %s, %#x", i.rd, i.imm)
	case kindALURR:
		return fmt.Sprintf("alu.%d %s, %s", i.aluOp, i.rd, i.rm)
	case kindLoad:
		return fmt.Sprintf("mov %s, [%s+%d]", i.rd, i.rn, i.imm)
	case kindStore:
		return fmt.Sprintf("mov [%s+%d], %s", i.rm, i.imm, i.rn)
	case kindJmp:
		return fmt.Sprintf("jmp block%d", i.targetBlock)
	case kindJcc:
		return fmt.Sprintf("j%d block%d", i.cc, i.targetBlock)
	case kindCall:
		return fmt.Sprintf("call %s", i.funcRef)
	case kindRet:
		return "ret"
	default:
		return fmt.Sprintf("amd64.instr(kind=%d)", i.kind)
	}
}
