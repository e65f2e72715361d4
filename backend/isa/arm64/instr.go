package arm64

import (
	"fmt"

	"github.com/joelreymont/machgen/backend/regalloc"
	"github.com/joelreymont/machgen/ir"
)

// instrKind enumerates every emittable A64 instruction form this backend
// selects. Grounded on instr.go's instructionKind sum type, narrowed to
// the forms this module's lowering rules actually produce rather than the
// teacher's full WebAssembly-driven set (no SIMD table lookups, no
// WebAssembly-specific atomics notify/wait).
type instrKind byte

const (
	kindInvalid instrKind = iota
	kindMovZ
	kindMovK
	kindMovN
	kindMovReg  // orr rd, xzr, rn (register-to-register move alias)
	kindFpuMov  // fmov rd, rn (float/vector move)
	kindALURRR  // rd = rn <op> rm
	kindALURRI  // rd = rn <op> imm
	kindShiftRR // rd = rn <shift> rm (register shift amount)
	kindMul
	kindDiv
	kindMsub // rd = ra - rn*rm
	kindClz
	kindRbit
	kindExtend // sign/zero-extend narrow GPR to wide GPR
	kindFpuRR  // rd = <op> rn (fneg, fabs, fsqrt, frint*, fcvt widen/narrow)
	kindFpuRRR // rd = rn <op> rm
	kindFpuCmp
	kindIntToFpu
	kindFpuToInt
	kindCmpRR // subs xzr, rn, rm (sets flags from a register comparison)
	kindCSel
	kindCSet
	kindVecRRR // three-same SIMD: rd = rn <op> rm, size-encoded
	kindDup    // dup rd.<T>, rn (broadcast scalar to every lane)
	kindLoad
	kindStore
	kindFpuLoadLit // ldr (literal): loads rd from a constant-pool entry holding imm's raw bits
	kindLoadAcq  // ldaxr (acquire-ordered exclusive load)
	kindStoreRel // stlxr (release-ordered exclusive store)
	kindAdr
	kindAdrp
	kindB      // unconditional branch to a label
	kindBCond  // conditional branch to a label
	kindCall   // bl <label/funcref>
	kindCallR  // blr rn (indirect call)
	kindRet
	kindTrap
	kindNop
)

// aluOp distinguishes the arithmetic/logical operation an ALURRR/ALURRI
// instruction performs; the encoder maps it to the fixed opcode bits of
// the corresponding A64 data-processing format.
type aluOp byte

const (
	aluAdd aluOp = iota
	aluSub
	aluAnd
	aluOrr
	aluEor
	aluOrn // bic-style rd = rn | ^rm, used to synthesize bnot as orn rd, xzr, rn
)

type shiftOp byte

const (
	shiftLsl shiftOp = iota
	shiftLsr
	shiftAsr
	shiftRor
)

type fpuRRROp byte

const (
	fpuAdd fpuRRROp = iota
	fpuSub
	fpuMul
	fpuDiv
	fpuMin
	fpuMax
)

type fpuRROp byte

const (
	fpuNeg fpuRROp = iota
	fpuAbs
	fpuSqrt
	fpuCeil
	fpuFloor
	fpuTrunc
	fpuNearest
	fpuCvt32To64
	fpuCvt64To32
)

type vecOp byte

const (
	vecIadd vecOp = iota
	vecIsub
	vecImul
	vecFadd
	vecFsub
	vecFmul
	vecFdiv
)

// instr is one A64 instruction in this function's lowered instruction
// list, doubly linked so the Machine can splice in prologue/epilogue and
// spill code without rebuilding a slice. A single flat struct (rather
// than wazero's tagged union of per-form struct literals) since this
// backend's opcode set is a deliberately smaller, spec-driven subset; the
// kind field picks which fields the encoder reads.
type instr struct {
	kind instrKind

	rd, rn, rm, ra regalloc.VReg
	imm            int64
	size           byte // operand width in bits: 8, 16, 32, 64, or 128 for vector
	signed         bool
	aluOp          aluOp
	shiftOp        shiftOp
	fpuRRROp       fpuRRROp
	fpuRROp        fpuRROp
	vecOp          vecOp
	cond           condFlag

	targetBlock ir.BasicBlockID
	funcRef     string
	indirect    bool

	// frameSlot marks a kindLoad/kindStore against a declared stack slot
	// (lowerStackLoad/lowerStackStore), whose imm is computed relative to
	// the start of the stack-slot area rather than SP itself. The final
	// SP-relative offset isn't known until register allocation has fixed
	// the spill area's size and the clobbered set, so insertPrologueEpilogue
	// rebases these imms by the callee-save area plus the spill area; spill
	// code's own loads/stores (insertSpillCode) leave this false and are
	// rebased by the callee-save area size alone, since their imm is
	// relative to the start of the spill area.
	frameSlot bool

	// defsBuf/usesBuf back the slices Defs/Uses return, avoiding a heap
	// allocation per call; sized for this backend's widest instruction
	// (three register uses).
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

func (i *instr) Uses() []regalloc.VReg {
	n := 0
	if i.rn.Valid() {
		i.usesBuf[n] = i.rn
		n++
	}
	if i.rm.Valid() {
		i.usesBuf[n] = i.rm
		n++
	}
	if i.ra.Valid() {
		i.usesBuf[n] = i.ra
		n++
	}
	return i.usesBuf[:n]
}

func (i *instr) AssignUses(vs []regalloc.VReg) {
	n := 0
	if i.rn.Valid() {
		i.rn = vs[n]
		n++
	}
	if i.rm.Valid() {
		i.rm = vs[n]
		n++
	}
	if i.ra.Valid() {
		i.ra = vs[n]
		n++
	}
}

func (i *instr) AssignDef(v regalloc.VReg) { i.rd = v }

func (i *instr) IsCopy() bool {
	return i.kind == kindMovReg || i.kind == kindFpuMov
}

func (i *instr) IsCall() bool         { return i.kind == kindCall || i.kind == kindCallR }
func (i *instr) IsIndirectCall() bool { return i.kind == kindCallR }
func (i *instr) IsReturn() bool       { return i.kind == kindRet }

func (i *instr) String() string {
	switch i.kind {
	case kindMovZ:
		return fmt.Sprintf("movz %s, #%#x", i.rd, i.imm)
	case kindALURRR:
		return fmt.Sprintf("alu.%d %s, %s, %s", i.aluOp, i.rd, i.rn, i.rm)
	case kindALURRI:
		return fmt.Sprintf("alu.%d %s, %s, #%#x", i.aluOp, i.rd, i.rn, i.imm)
	case kindLoad:
		return fmt.Sprintf("ldr%d %s, [%s, #%d]", i.size, i.rd, i.rn, i.imm)
	case kindStore:
		return fmt.Sprintf("str%d %s, [%s, #%d]", i.size, i.rn, i.rm, i.imm)
	case kindB:
		return fmt.Sprintf("b block%d", i.targetBlock)
	case kindBCond:
		return fmt.Sprintf("b.%d block%d", i.cond, i.targetBlock)
	case kindCall:
		return fmt.Sprintf("bl %s", i.funcRef)
	case kindRet:
		return "ret"
	default:
		return fmt.Sprintf("arm64.instr(kind=%d)", i.kind)
	}
}
