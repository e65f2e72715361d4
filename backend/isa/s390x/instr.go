package s390x

import (
	"fmt"

	"github.com/joelreymont/machgen/backend/regalloc"
	"github.com/joelreymont/machgen/ir"
)

// instrKind enumerates every z/Architecture instruction form this
// backend's lowering rules produce. Non-destructive three-address, like
// riscv64/arm64: the G-form (64-bit) register-register instructions
// (AGR, SGR, NGR, ...) are themselves two-address (they accumulate into
// their first operand), so kindALURRR's lowering first copies rn into
// rd with a kindMovReg when rd and rn differ, keeping the IR-facing
// contract of this instr set three-address like every other backend
// here.
type instrKind byte

const (
	kindInvalid instrKind = iota
	kindLoadImm  // rd = imm (LGFI for values that fit 32 bits sign-extended, or an IIHF+IILF pair for wider ones)
	kindMovReg   // LGR rd, rn
	kindALURRR   // rd = rn <op> rm (two-address G-form under the hood: rd must equal rn after a copy)
	kindALURRI   // rd = rn <op> imm (AGFI for add/sub, RSY shift-by-immediate forms)
	kindExtend   // sign/zero-extend narrow GPR to 64 bits (LGFR/LLGFR-style width conversion)
	kindLoad
	kindStore
	kindCmp    // CGR rn, rm (CLGR when unsigned): sets the condition code consumed by the next kindBranch
	kindJ      // BRC 15, label (unconditional)
	kindBranch // BRC <mask>, label, consuming the condition code kindCmp set
	kindCall   // BRASL r14, funcRef (relocated)
	kindCallR  // BASR r14, rn (indirect call)
	kindRet    // BCR 15, r14
	kindTrap
	kindNop
)

// aluOp distinguishes which z/Architecture G-form operation an ALURRR/
// ALURRI instr performs.
type aluOp byte

const (
	aluAdd aluOp = iota
	aluSub
	aluAnd
	aluOr
	aluXor
	aluSll
	aluSrl
	aluSra
	aluMul
)

// branchCond is the condition-code mask a kindBranch instr tests, set by
// the immediately preceding kindCmp. z/Architecture carries a real
// condition code register (unlike riscv64), so comparisons lower to an
// explicit compare instruction followed by a masked branch instead of
// RV64's direct two-register branch test.
type branchCond byte

const (
	condEqual branchCond = iota
	condNotEqual
	condLess
	condGreaterOrEqual
	condGreater
	condLessOrEqual
)

// mask returns the 4-bit BRC condition-code mask for c. z/Architecture's
// condition code after a signed compare is 0 (equal), 1 (low/less), or 2
// (high/greater); after an unsigned compare the same 0/1/2 encoding is
// used with CL-family instructions. The mask bit position follows CC
// value + 1 (bit 3 = CC0, bit 2 = CC1, bit 1 = CC2).
func (c branchCond) mask() uint32 {
	switch c {
	case condEqual:
		return 0b1000
	case condNotEqual:
		return 0b0110
	case condLess:
		return 0b0100
	case condGreaterOrEqual:
		return 0b1010
	case condGreater:
		return 0b0010
	case condLessOrEqual:
		return 0b1100
	default:
		panic("s390x: unknown branchCond")
	}
}

// fromIntCC maps an IR integer comparison predicate to the (compare
// instruction, branch mask, operand-swap) triple that reproduces it.
// unsigned reports whether the comparison needs CLGR (logical compare)
// instead of CGR (signed compare).
func fromIntCC(cc ir.IntCC) (cond branchCond, swap, unsigned bool) {
	switch cc {
	case ir.IntCCEqual:
		return condEqual, false, false
	case ir.IntCCNotEqual:
		return condNotEqual, false, false
	case ir.IntCCSignedLessThan:
		return condLess, false, false
	case ir.IntCCSignedGreaterThanOrEqual:
		return condGreaterOrEqual, false, false
	case ir.IntCCSignedGreaterThan:
		return condGreater, false, false
	case ir.IntCCSignedLessThanOrEqual:
		return condLessOrEqual, false, false
	case ir.IntCCUnsignedLessThan:
		return condLess, false, true
	case ir.IntCCUnsignedGreaterThanOrEqual:
		return condGreaterOrEqual, false, true
	case ir.IntCCUnsignedGreaterThan:
		return condGreater, false, true
	case ir.IntCCUnsignedLessThanOrEqual:
		return condLessOrEqual, false, true
	default:
		panic("s390x: unknown IntCC")
	}
}

// instr is one z/Architecture instruction in this function's lowered
// instruction list, doubly linked exactly as riscv64/arm64/amd64's instr
// is, for the same splicing reasons (prologue/epilogue, spill code).
type instr struct {
	kind instrKind

	rd, rn, rm regalloc.VReg
	imm        int64
	size       byte // operand width in bits: 8, 16, 32, or 64
	signed     bool
	unsigned   bool // kindCmp: logical (CLGR) instead of signed (CGR) compare
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
	case kindLoadImm:
		return fmt.Sprintf("lgfi %s, %#x", i.rd, i.imm)
	case kindMovReg:
		return fmt.Sprintf("lgr %s, %s", i.rd, i.rn)
	case kindExtend:
		return fmt.Sprintf("extend.%d%s %s, %s", i.size, signedSuffix(i.signed), i.rd, i.rn)
	case kindALURRR:
		return fmt.Sprintf("alu.%d %s, %s, %s", i.aluOp, i.rd, i.rn, i.rm)
	case kindALURRI:
		return fmt.Sprintf("alu.%d %s, %s, %#x", i.aluOp, i.rd, i.rn, i.imm)
	case kindLoad:
		return fmt.Sprintf("l%d %s, %d(%s)", i.size, i.rd, i.imm, i.rn)
	case kindStore:
		return fmt.Sprintf("s%d %s, %d(%s)", i.size, i.rn, i.imm, i.rm)
	case kindCmp:
		return fmt.Sprintf("c%s %s, %s", unsignedSuffix(i.unsigned), i.rn, i.rm)
	case kindJ:
		return fmt.Sprintf("brc 15, block%d", i.targetBlock)
	case kindBranch:
		return fmt.Sprintf("brc %#b, block%d", i.cond.mask(), i.targetBlock)
	case kindCall:
		return fmt.Sprintf("brasl r14, %s", i.funcRef)
	case kindRet:
		return "bcr 15, r14"
	default:
		return fmt.Sprintf("s390x.instr(kind=%d)", i.kind)
	}
}

func unsignedSuffix(u bool) string {
	if u {
		return "l"
	}
	return ""
}

func signedSuffix(s bool) string {
	if s {
		return "s"
	}
	return "u"
}
