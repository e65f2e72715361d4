package riscv64

import (
	"fmt"

	"github.com/joelreymont/machgen/backend/regalloc"
	"github.com/joelreymont/machgen/ir"
)

// instrKind enumerates every RV64IM instruction form this backend's
// lowering rules produce. Non-destructive three-address, like arm64: RV64
// is a clean load-store RISC ISA with no implicit read-modify-write
// operand the way x86's two-address forms have, so every ALURRR/ALURRI
// instr independently names its own destination without needing a
// preceding move.
type instrKind byte

const (
	kindInvalid instrKind = iota
	kindLui       // rd = imm20 << 12 (U-type); constants wider than lui+addi's 32 bits are
	              // built by InsertLoadConstant recursively shifting a smaller materialized
	              // value left by kindALURRI's aluSll and adding the next 12-bit chunk
	kindMovReg    // addi rd, rn, 0
	kindALURRR    // rd = rn <op> rm (add/sub/and/or/xor/sll/srl/sra, plus M-extension mul/div/rem)
	kindALURRI    // rd = rn <op> imm (addi/andi/ori/xori/slli/srli/srai, plus slt/sltu/sltiu/sltiu producing a 0/1 boolean)
	kindExtend    // sign/zero-extend narrow GPR to 64 bits via a shift-left/shift-right pair
	kindLoad
	kindStore
	kindJ       // jal x0, label (unconditional jump)
	kindBranch  // b<cond> rn, rm, label
	kindCall    // auipc ra,hi20 / jalr ra,ra,lo12 relocated as a pair against funcRef
	kindCallR   // jalr ra, rn, 0 (indirect call)
	kindRet     // jalr x0, ra, 0
	kindTrap
	kindNop
)

// aluOp distinguishes which RV64I/M operation an ALURRR/ALURRI instr
// performs; the encoder maps it to the fixed funct3/funct7 bits of the
// corresponding R- or I-type format.
type aluOp byte

const (
	aluAdd aluOp = iota
	aluSub // R-type only: there is no subi, sub-by-constant lowers to addi with a negated immediate
	aluAnd
	aluOr
	aluXor
	aluSll
	aluSrl
	aluSra
	aluSlt  // rd = (rn < rm) ? 1 : 0, signed
	aluSltu // rd = (rn < rm) ? 1 : 0, unsigned
	aluMul
	aluMulh
	aluMulhu
	aluDiv
	aluDivu
	aluRem
	aluRemu
)

// branchCond is the two-register test a kindBranch instr performs; RV64
// has no flags register, so an Icmp feeding a conditional branch fuses
// directly into one of these instead of materializing a boolean first.
type branchCond byte

const (
	condBeq branchCond = iota
	condBne
	condBlt  // signed <
	condBge  // signed >=
	condBltu // unsigned <
	condBgeu // unsigned >=
)

func fromIntCC(cc ir.IntCC) (cond branchCond, swap bool) {
	switch cc {
	case ir.IntCCEqual:
		return condBeq, false
	case ir.IntCCNotEqual:
		return condBne, false
	case ir.IntCCSignedLessThan:
		return condBlt, false
	case ir.IntCCSignedGreaterThanOrEqual:
		return condBge, false
	case ir.IntCCSignedGreaterThan:
		return condBlt, true
	case ir.IntCCSignedLessThanOrEqual:
		return condBge, true
	case ir.IntCCUnsignedLessThan:
		return condBltu, false
	case ir.IntCCUnsignedGreaterThanOrEqual:
		return condBgeu, false
	case ir.IntCCUnsignedGreaterThan:
		return condBltu, true
	case ir.IntCCUnsignedLessThanOrEqual:
		return condBgeu, true
	default:
		panic("riscv64: unknown IntCC")
	}
}

// instr is one RV64 instruction in this function's lowered instruction
// list, doubly linked exactly as arm64/amd64's instr is, for the same
// splicing reasons (prologue/epilogue, spill code).
type instr struct {
	kind instrKind

	rd, rn, rm regalloc.VReg
	imm        int64
	size       byte // operand width in bits: 8, 16, 32, or 64
	signed     bool
	aluOp      aluOp
	cond       branchCond

	targetBlock ir.BasicBlockID
	funcRef     string
	indirect    bool
	frameSlot   bool

	defsBuf [1]regalloc.VReg
	usesBuf [2]regalloc.VReg

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
}

func (i *instr) AssignDef(v regalloc.VReg) { i.rd = v }

func (i *instr) IsCopy() bool { return i.kind == kindMovReg }

func (i *instr) IsCall() bool         { return i.kind == kindCall || i.kind == kindCallR }
func (i *instr) IsIndirectCall() bool { return i.kind == kindCallR }
func (i *instr) IsReturn() bool       { return i.kind == kindRet }

func (i *instr) String() string {
	switch i.kind {
	case kindLui:
		return fmt.Sprintf("lui %s, %#x", i.rd, i.imm)
	case kindALURRR:
		return fmt.Sprintf("alu.%d %s, %s, %s", i.aluOp, i.rd, i.rn, i.rm)
	case kindALURRI:
		return fmt.Sprintf("alu.%d %s, %s, %#x", i.aluOp, i.rd, i.rn, i.imm)
	case kindLoad:
		return fmt.Sprintf("l%d %s, %d(%s)", i.size, i.rd, i.imm, i.rn)
	case kindStore:
		return fmt.Sprintf("s%d %s, %d(%s)", i.size, i.rn, i.imm, i.rm)
	case kindJ:
		return fmt.Sprintf("j block%d", i.targetBlock)
	case kindBranch:
		return fmt.Sprintf("b.%d %s, %s, block%d", i.cond, i.rn, i.rm, i.targetBlock)
	case kindCall:
		return fmt.Sprintf("call %s", i.funcRef)
	case kindRet:
		return "ret"
	default:
		return fmt.Sprintf("riscv64.instr(kind=%d)", i.kind)
	}
}
