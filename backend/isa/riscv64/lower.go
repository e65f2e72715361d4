package riscv64

import (
	"fmt"

	"github.com/joelreymont/machgen/backend"
	"github.com/joelreymont/machgen/backend/regalloc"
	"github.com/joelreymont/machgen/ir"
)

// gprWidth returns the GPR width (32 or 64) a value of type t computes
// in; sub-word integers are carried sign-extended in the bottom bits of
// a 32-bit W-instruction result, same convention arm64/amd64 use for
// their own narrow-int representations.
func gprWidth(t ir.Type) byte {
	if t.Bits() > 32 {
		return 64
	}
	return 32
}

// aluIs64Only reports whether op has no width-specific W-suffixed form
// and must always be encoded at the full 64 bits regardless of the IR
// type's width: AND/OR/XOR/SLT/SLTU operate bitwise or compare the whole
// register, and produce a correctly sign-extended 32-bit result for
// free as long as both operands already are (bitwise ops on replicated
// sign bits reproduce the replicated sign bit of the result).
func aluIs64Only(op aluOp) bool {
	switch op {
	case aluAnd, aluOr, aluXor, aluSlt, aluSltu:
		return true
	default:
		return false
	}
}

func (m *machine) vregOf(v ir.Value) regalloc.VReg { return m.compiler.VRegOf(v) }

// startEntryBlockParams binds each entry block parameter to its ABI-
// assigned argument register.
func (m *machine) startEntryBlockParams(blk ir.BasicBlockID) {
	fn := m.compiler.Function()
	if fn.EntryBlockID() != blk || m.currentABI == nil {
		return
	}
	for i, n := 0, fn.Params(blk); i < n; i++ {
		p := fn.Param(blk, i)
		arg := m.currentABI.Args[i]
		if arg.Kind != backend.ABIArgKindReg {
			continue // stack-passed arguments are out of scope for this backend.
		}
		m.InsertMove(m.vregOf(p), arg.Reg, p.Type())
	}
}

// LowerInstr lowers one non-branch IR instruction. This backend's
// legalize.Target (target.go) guarantees every opcode reaching this
// switch is native on RV64IM: every float and vector opcode is rejected
// during legalization instead of reaching here, and Clz/Ctz/Popcnt are
// rewritten to a libcall before lowering ever sees them.
func (m *machine) LowerInstr(inst ir.Instruction) {
	fn := m.compiler.Function()
	d := fn.DFG().InstructionData(inst)

	switch d.Opcode() {
	case ir.OpcodeIconst:
		m.InsertLoadConstant(inst, m.vregOf(d.Result()))

	case ir.OpcodeIadd:
		m.lowerALURRR(d, aluAdd)
	case ir.OpcodeIsub:
		m.lowerALURRR(d, aluSub)
	case ir.OpcodeBand:
		m.lowerALURRR(d, aluAnd)
	case ir.OpcodeBor:
		m.lowerALURRR(d, aluOr)
	case ir.OpcodeBxor:
		m.lowerALURRR(d, aluXor)
	case ir.OpcodeImul:
		m.lowerALURRR(d, aluMul)
	case ir.OpcodeUdiv:
		m.lowerALURRR(d, aluDivu)
	case ir.OpcodeSdiv:
		m.lowerALURRR(d, aluDiv)
	case ir.OpcodeUrem:
		m.lowerALURRR(d, aluRemu)
	case ir.OpcodeSrem:
		m.lowerALURRR(d, aluRem)

	case ir.OpcodeIshl:
		m.lowerALURRR(d, aluSll)
	case ir.OpcodeUshr:
		m.lowerALURRR(d, aluSrl)
	case ir.OpcodeSshr:
		m.lowerALURRR(d, aluSra)
	case ir.OpcodeRotl:
		m.lowerRotate(d, true)
	case ir.OpcodeRotr:
		m.lowerRotate(d, false)

	case ir.OpcodeIneg:
		w := gprWidth(d.Type())
		m.emit(&instr{kind: kindALURRR, aluOp: aluSub, rd: m.vregOf(d.Result()), rn: vreg(xZero), rm: m.vregOf(d.Arg()), size: w})
	case ir.OpcodeBnot:
		m.emit(&instr{kind: kindALURRI, aluOp: aluXor, rd: m.vregOf(d.Result()), rn: m.vregOf(d.Arg()), imm: -1, size: 64})

	case ir.OpcodeIextend:
		srcBits := d.Arg().Type().Bits()
		m.emit(&instr{kind: kindExtend, rd: m.vregOf(d.Result()), rn: m.vregOf(d.Arg()), imm: int64(srcBits), signed: d.Signed()})
	case ir.OpcodeIreduce:
		// Truncate then re-extend so the narrower value stays sign-extended
		// in its 64-bit register, matching every other width's convention.
		m.emit(&instr{kind: kindExtend, rd: m.vregOf(d.Result()), rn: m.vregOf(d.Arg()), imm: int64(d.Type().Bits()), signed: true})

	case ir.OpcodeIcmp, ir.OpcodeIcmpImm:
		// Only a conditional branch fuses its comparison (lowerBranchTest);
		// lowerSelect reads its cond as a register, so a comparison feeding
		// a select reaches this panic.
		panic(fmt.Sprintf("riscv64: comparison %s must be fused into its consumer", d.Opcode()))

	case ir.OpcodeSelect:
		m.lowerSelect(d)

	case ir.OpcodeLoad, ir.OpcodeUload8, ir.OpcodeSload8, ir.OpcodeUload16, ir.OpcodeSload16, ir.OpcodeUload32, ir.OpcodeSload32:
		m.lowerLoad(d)
	case ir.OpcodeStore, ir.OpcodeIstore8, ir.OpcodeIstore16, ir.OpcodeIstore32:
		m.lowerStore(d)
	case ir.OpcodeStackLoad:
		m.lowerStackLoad(d)
	case ir.OpcodeStackStore:
		m.lowerStackStore(d)

	case ir.OpcodeCall, ir.OpcodeCallIndirect:
		m.lowerCall(inst, d)

	default:
		panic(fmt.Sprintf("riscv64: lowering not implemented for %s", d.Opcode()))
	}
}

// lowerALURRR lowers a three-address integer binary op directly: RV64 is
// a clean load-store RISC ISA, so unlike amd64's two-address form this
// never needs a preceding mov into rd.
func (m *machine) lowerALURRR(d *ir.InstructionData, op aluOp) {
	x, y := d.Arg2()
	size := gprWidth(d.Type())
	if aluIs64Only(op) {
		size = 64
	}
	m.emit(&instr{kind: kindALURRR, aluOp: op, rd: m.vregOf(d.Result()), rn: m.vregOf(x), rm: m.vregOf(y), size: size})
}

// lowerRotate decomposes a rotate into two opposite shifts plus an or,
// since RV64I (without the Zbb extension) has no rotate instruction:
// rotl(x,n) = (x << n) | (x >> (w-n)); rotr(x,n) = (x >> n) | (x << (w-n)).
func (m *machine) lowerRotate(d *ir.InstructionData, left bool) {
	w := gprWidth(d.Type())
	x, y := d.Arg2()
	rd := m.vregOf(d.Result())
	rx, ry := m.vregOf(x), m.vregOf(y)

	width := m.compiler.AllocateVReg(d.Type())
	negN := m.compiler.AllocateVReg(d.Type())
	t1 := m.compiler.AllocateVReg(d.Type())
	t2 := m.compiler.AllocateVReg(d.Type())

	fwd, rev := aluSll, aluSrl
	if !left {
		fwd, rev = aluSrl, aluSll
	}

	m.emitSeq([]*instr{
		{kind: kindALURRI, aluOp: aluAdd, rd: width, rn: vreg(xZero), imm: int64(w), size: 64},
		{kind: kindALURRR, aluOp: aluSub, rd: negN, rn: width, rm: ry, size: 64},
		{kind: kindALURRR, aluOp: fwd, rd: t1, rn: rx, rm: ry, size: w},
		{kind: kindALURRR, aluOp: rev, rd: t2, rn: rx, rm: negN, size: w},
		{kind: kindALURRR, aluOp: aluOr, rd: rd, rn: t1, rm: t2, size: 64},
	})
}

// lowerSelect lowers an integer Select branchlessly: mask = -cond (0 or
// all-ones, since cond is always exactly 0 or 1), result = ifFalse XOR
// ((ifTrue XOR ifFalse) AND mask). Float/vector Select is out of scope.
func (m *machine) lowerSelect(d *ir.InstructionData) {
	if d.Type().IsFloat() || d.Type().IsVector() {
		panic("riscv64: select on float/vector values is not implemented by this backend")
	}
	w := gprWidth(d.Type())
	cond, ifTrue, ifFalse := d.Arg3()
	rd := m.vregOf(d.Result())
	mask := m.compiler.AllocateVReg(d.Type())
	diff := m.compiler.AllocateVReg(d.Type())
	m.emitSeq([]*instr{
		{kind: kindALURRR, aluOp: aluSub, rd: mask, rn: vreg(xZero), rm: m.vregOf(cond), size: w},
		{kind: kindALURRR, aluOp: aluXor, rd: diff, rn: m.vregOf(ifTrue), rm: m.vregOf(ifFalse), size: 64},
		{kind: kindALURRR, aluOp: aluAnd, rd: diff, rn: diff, rm: mask, size: 64},
		{kind: kindALURRR, aluOp: aluXor, rd: rd, rn: diff, rm: m.vregOf(ifFalse), size: 64},
	})
}

// lowerBranchTest resolves cond to a two-register branchCond test,
// fusing its producing Icmp/IcmpImm when possible: RV64 has no flags
// register, so a conditional branch compares two GPRs directly instead
// of testing a materialized boolean the way a select's cond operand is.
func (m *machine) lowerBranchTest(cond ir.Value) (bc branchCond, rn, rm regalloc.VReg) {
	def := m.compiler.ValueDefinition(cond)
	if def.IsFromInstr() {
		if op := m.compiler.MatchInstrOneOf(def, []ir.Opcode{ir.OpcodeIcmp, ir.OpcodeIcmpImm}); op != ir.OpcodeInvalid {
			d := m.compiler.Function().DFG().InstructionData(def.Instr)
			m.compiler.MarkLowered(def.Instr)
			x, y := d.Arg2()
			c, swap := fromIntCC(d.IntCC())
			rn, rm = m.vregOf(x), m.vregOf(y)
			if swap {
				rn, rm = rm, rn
			}
			return c, rn, rm
		}
	}
	// cond isn't a comparison: it's already guaranteed 0/1, so branch on
	// cond != 0.
	return condBne, m.vregOf(cond), vreg(xZero)
}

func invertBranchCond(c branchCond) branchCond {
	switch c {
	case condBeq:
		return condBne
	case condBne:
		return condBeq
	case condBlt:
		return condBge
	case condBge:
		return condBlt
	case condBltu:
		return condBgeu
	case condBgeu:
		return condBltu
	default:
		panic("riscv64: unknown branchCond")
	}
}

// LowerSingleBranch lowers a block's unconditional terminator.
func (m *machine) LowerSingleBranch(term ir.Instruction) {
	fn := m.compiler.Function()
	d := fn.DFG().InstructionData(term)
	switch d.Opcode() {
	case ir.OpcodeJump:
		t0, _ := d.Targets()
		m.emit(&instr{kind: kindJ, targetBlock: t0})
	case ir.OpcodeReturn:
		m.lowerReturnValues(fn.DFG().ValueList(term))
		m.InsertReturn()
	case ir.OpcodeTrap:
		m.emit(&instr{kind: kindTrap, imm: int64(d.TrapCode())})
	case ir.OpcodeReturnCall, ir.OpcodeReturnCallIndirect:
		panic("riscv64: tail calls are not implemented by this backend")
	default:
		panic(fmt.Sprintf("riscv64: unexpected block terminator %s", d.Opcode()))
	}
}

// LowerConditionalBranch lowers a brz/brnz (cond) immediately followed by
// its fallthrough-eliminating jump (term).
func (m *machine) LowerConditionalBranch(cond, term ir.Instruction) {
	fn := m.compiler.Function()
	cd := fn.DFG().InstructionData(cond)
	td := fn.DFG().InstructionData(term)
	taken, _ := cd.Targets()
	fallthroughBlk, _ := td.Targets()

	bc, rn, rm := m.lowerBranchTest(cd.Arg())
	if cd.Opcode() == ir.OpcodeBrz {
		bc = invertBranchCond(bc)
	}
	m.emitSeq([]*instr{
		{kind: kindBranch, cond: bc, rn: rn, rm: rm, targetBlock: taken},
		{kind: kindJ, targetBlock: fallthroughBlk},
	})
}

func (m *machine) lowerReturnValues(vals []ir.Value) {
	if m.currentABI == nil {
		return
	}
	for i, v := range vals {
		ret := m.currentABI.Rets[i]
		if ret.Kind != backend.ABIArgKindReg {
			continue // stack-returned values are out of scope for this backend.
		}
		m.InsertMove(ret.Reg, m.vregOf(v), v.Type())
	}
}

// InsertMove emits a register-to-register move of typ from src to dst.
func (m *machine) InsertMove(dst, src regalloc.VReg, typ ir.Type) {
	m.emit(&instr{kind: kindMovReg, rd: dst, rn: src, size: gprWidth(typ)})
}

// InsertLoadConstant emits the instruction(s) materializing inst's
// constant into vr.
func (m *machine) InsertLoadConstant(inst ir.Instruction, vr regalloc.VReg) {
	d := m.compiler.Function().DFG().InstructionData(inst)
	switch d.Opcode() {
	case ir.OpcodeIconst:
		m.materializeConst(vr, int64(d.ConstantVal()))
	default:
		panic(fmt.Sprintf("riscv64: %s is not a constant this backend can materialize", d.Opcode()))
	}
}

// materializeConst builds an arbitrary 64-bit constant into rd. A value
// fitting addi's signed 12-bit field takes one instruction; a value
// fitting lui's 32-bit range (sign-extended) takes lui plus an optional
// addi for its low 12 bits; anything wider recursively materializes the
// high bits, shifts them into place, then adds the low 12-bit chunk --
// RV64 has no single instruction that loads an arbitrary 64-bit
// immediate the way arm64's MOVZ/MOVK sequence or amd64's movabs does.
func (m *machine) materializeConst(rd regalloc.VReg, imm int64) {
	if fitsSigned(imm, 12) {
		m.emit(&instr{kind: kindALURRI, aluOp: aluAdd, rd: rd, rn: vreg(xZero), imm: imm, size: 64})
		return
	}

	lo := imm << 52 >> 52 // sign-extended low 12 bits
	hi := imm - lo        // exact multiple of 4096

	if fitsSigned(hi>>12, 20) {
		m.emit(&instr{kind: kindLui, rd: rd, imm: hi >> 12, size: 64})
	} else {
		m.materializeConst(rd, hi>>12)
		m.emit(&instr{kind: kindALURRI, aluOp: aluSll, rd: rd, rn: rd, imm: 12, size: 64})
	}
	if lo != 0 {
		m.emit(&instr{kind: kindALURRI, aluOp: aluAdd, rd: rd, rn: rd, imm: lo, size: 64})
	}
}

func fitsSigned(v int64, bits uint) bool {
	lo := -(int64(1) << (bits - 1))
	hi := (int64(1) << (bits - 1)) - 1
	return v >= lo && v <= hi
}

// InsertReturn marks the point the epilogue (PostRegAlloc) splices its
// ret instruction before.
func (m *machine) InsertReturn() {
	m.emit(&instr{kind: kindRet})
}

func (m *machine) lowerLoad(d *ir.InstructionData) {
	base := d.Arg()
	var bits byte
	var signed bool
	switch d.Opcode() {
	case ir.OpcodeLoad:
		// A value narrower than 64 bits is kept sign-extended in its
		// register, matching ADDW/SUBW's own convention.
		bits, signed = byte(d.Type().Bits()), true
	case ir.OpcodeUload8:
		bits, signed = 8, false
	case ir.OpcodeSload8:
		bits, signed = 8, true
	case ir.OpcodeUload16:
		bits, signed = 16, false
	case ir.OpcodeSload16:
		bits, signed = 16, true
	case ir.OpcodeUload32:
		bits, signed = 32, false
	case ir.OpcodeSload32:
		bits, signed = 32, true
	}
	m.emit(&instr{kind: kindLoad, rd: m.vregOf(d.Result()), rn: m.vregOf(base), imm: int64(d.Offset()),
		size: bits, signed: signed})
}

func (m *machine) lowerStore(d *ir.InstructionData) {
	value, base := d.Arg2()
	bits := byte(value.Type().Bits())
	switch d.Opcode() {
	case ir.OpcodeIstore8:
		bits = 8
	case ir.OpcodeIstore16:
		bits = 16
	case ir.OpcodeIstore32:
		bits = 32
	}
	m.emit(&instr{kind: kindStore, rn: m.vregOf(value), rm: m.vregOf(base), imm: int64(d.Offset()), size: bits})
}

func (m *machine) lowerStackLoad(d *ir.InstructionData) {
	slot := d.StackSlotIdx()
	off := m.stackSlotFrameOffset(slot) + int64(d.Offset())
	m.emit(&instr{kind: kindLoad, rd: m.vregOf(d.Result()), rn: vreg(xSp),
		imm: off, size: byte(d.Type().Bits()), signed: true, frameSlot: true})
}

func (m *machine) lowerStackStore(d *ir.InstructionData) {
	slot := d.StackSlotIdx()
	off := m.stackSlotFrameOffset(slot) + int64(d.Offset())
	value := d.Arg()
	m.emit(&instr{kind: kindStore, rn: m.vregOf(value), rm: vreg(xSp),
		imm: off, size: byte(value.Type().Bits()), frameSlot: true})
}

func (m *machine) lowerCall(inst ir.Instruction, d *ir.InstructionData) {
	fn := m.compiler.Function()
	var sig *ir.Signature
	var funcRef string
	var calleeAddr regalloc.VReg
	indirect := d.Opcode() == ir.OpcodeCallIndirect
	if indirect {
		sig = fn.DFG().Signature(d.SigRef())
		calleeAddr = m.vregOf(d.Arg())
	} else {
		frd := fn.DFG().FuncRefData(d.FuncRef())
		sig = fn.DFG().Signature(frd.Sig)
		funcRef = frd.Name
	}
	abi := m.compiler.FunctionABI(sig)

	args := fn.DFG().ValueList(inst)
	for i, a := range args {
		loc := abi.Args[i]
		if loc.Kind != backend.ABIArgKindReg {
			continue // stack-passed arguments are out of scope for this backend.
		}
		m.InsertMove(loc.Reg, m.vregOf(a), a.Type())
	}

	if indirect {
		m.emit(&instr{kind: kindCallR, rn: calleeAddr, indirect: true})
	} else {
		m.emit(&instr{kind: kindCall, funcRef: funcRef})
	}

	for i, r := range d.Results() {
		loc := abi.Rets[i]
		if loc.Kind != backend.ABIArgKindReg {
			continue
		}
		m.InsertMove(m.vregOf(r), loc.Reg, r.Type())
	}
}

// stackSlotFrameOffset returns slot's sp-relative byte offset, placed
// above the spill area once the frame is finalized in the epilogue pass.
func (m *machine) stackSlotFrameOffset(slot ir.StackSlot) int64 {
	fn := m.compiler.Function()
	var off int64
	for s := ir.StackSlot(0); s < slot; s++ {
		data := fn.DFG().StackSlot(s)
		off += int64(data.Size+data.Align-1) &^ int64(data.Align-1)
	}
	return off
}
