package s390x

import (
	"fmt"

	"github.com/joelreymont/machgen/backend"
	"github.com/joelreymont/machgen/backend/regalloc"
	"github.com/joelreymont/machgen/ir"
)

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
// switch is native: every float/vector opcode is rejected during
// legalization, and Udiv/Sdiv/Urem/Srem/Clz/Ctz/Popcnt are rewritten into
// runtime helper calls (OpLibcall) before reaching here.
func (m *machine) LowerInstr(inst ir.Instruction) {
	fn := m.compiler.Function()
	d := fn.DFG().InstructionData(inst)

	switch d.Opcode() {
	case ir.OpcodeIconst:
		m.InsertLoadConstant(inst, m.vregOf(d.Result()))

	case ir.OpcodeIadd:
		m.lowerALU(d, aluAdd)
	case ir.OpcodeIsub:
		m.lowerALU(d, aluSub)
	case ir.OpcodeBand:
		m.lowerALU(d, aluAnd)
	case ir.OpcodeBor:
		m.lowerALU(d, aluOr)
	case ir.OpcodeBxor:
		m.lowerALU(d, aluXor)
	case ir.OpcodeImul:
		m.lowerALU(d, aluMul)

	case ir.OpcodeIshl:
		m.lowerALU(d, aluSll)
	case ir.OpcodeUshr:
		m.lowerALU(d, aluSrl)
	case ir.OpcodeSshr:
		m.lowerALU(d, aluSra)
	case ir.OpcodeRotl:
		m.lowerRotate(d, true)
	case ir.OpcodeRotr:
		m.lowerRotate(d, false)

	case ir.OpcodeIneg:
		rd := m.vregOf(d.Result())
		zero := m.compiler.AllocateVReg(d.Type())
		m.emitSeq([]*instr{
			{kind: kindLoadImm, rd: zero, imm: 0},
			{kind: kindMovReg, rd: rd, rn: zero},
			{kind: kindALURRR, aluOp: aluSub, rd: rd, rn: rd, rm: m.vregOf(d.Arg()), size: 64},
		})
	case ir.OpcodeBnot:
		rd := m.vregOf(d.Result())
		allOnes := m.compiler.AllocateVReg(d.Type())
		m.emitSeq([]*instr{
			{kind: kindLoadImm, rd: allOnes, imm: -1},
			{kind: kindMovReg, rd: rd, rn: m.vregOf(d.Arg())},
			{kind: kindALURRR, aluOp: aluXor, rd: rd, rn: rd, rm: allOnes, size: 64},
		})

	case ir.OpcodeIextend:
		srcBits := d.Arg().Type().Bits()
		m.emit(&instr{kind: kindExtend, rd: m.vregOf(d.Result()), rn: m.vregOf(d.Arg()), size: byte(srcBits), signed: d.Signed()})
	case ir.OpcodeIreduce:
		m.emit(&instr{kind: kindExtend, rd: m.vregOf(d.Result()), rn: m.vregOf(d.Arg()), size: byte(d.Type().Bits()), signed: true})

	case ir.OpcodeIcmp, ir.OpcodeIcmpImm:
		// Only a conditional branch fuses its comparison (lowerCondition);
		// lowerSelect reads its condition as a register, so a comparison
		// feeding a select reaches this panic.
		panic(fmt.Sprintf("s390x: comparison %s must be fused into its consumer", d.Opcode()))

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
		panic(fmt.Sprintf("s390x: lowering not implemented for %s", d.Opcode()))
	}
}

// lowerALU lowers a binary op onto z/Architecture's two-address G-form:
// the hardware instruction accumulates into its first register operand,
// so unless the result already lives where x does, a copy goes first --
// the same shape amd64's own two-address ALU lowering uses, just with a
// plain register move instead of amd64's REX-prefixed MOV.
func (m *machine) lowerALU(d *ir.InstructionData, op aluOp) {
	x, y := d.Arg2()
	rd, rx, ry := m.vregOf(d.Result()), m.vregOf(x), m.vregOf(y)
	if rd != rx {
		m.emit(&instr{kind: kindMovReg, rd: rd, rn: rx})
	}
	m.emit(&instr{kind: kindALURRR, aluOp: op, rd: rd, rn: rd, rm: ry, size: 64})
}

// lowerRotate decomposes a rotate into two opposite shifts plus an or,
// since this backend implements no native rotate instruction (RLL/RLLG
// exist on z/Architecture but are left unimplemented to keep the
// instruction set this backend emits small):
// rotl(x,n) = (x << n) | (x >> (w-n)); rotr(x,n) = (x >> n) | (x << (w-n)).
func (m *machine) lowerRotate(d *ir.InstructionData, left bool) {
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
		{kind: kindLoadImm, rd: width, imm: 64},
		{kind: kindMovReg, rd: negN, rn: width},
		{kind: kindALURRR, aluOp: aluSub, rd: negN, rn: negN, rm: ry, size: 64},
		{kind: kindMovReg, rd: t1, rn: rx},
		{kind: kindALURRR, aluOp: fwd, rd: t1, rn: t1, rm: ry, size: 64},
		{kind: kindMovReg, rd: t2, rn: rx},
		{kind: kindALURRR, aluOp: rev, rd: t2, rn: t2, rm: negN, size: 64},
		{kind: kindMovReg, rd: rd, rn: t1},
		{kind: kindALURRR, aluOp: aluOr, rd: rd, rn: rd, rm: t2, size: 64},
	})
}

// lowerSelect lowers an integer Select branchlessly: mask = -cond (0 or
// all-ones, since cond is always exactly 0 or 1), result = ifFalse XOR
// ((ifTrue XOR ifFalse) AND mask). Float/vector Select is out of scope.
func (m *machine) lowerSelect(d *ir.InstructionData) {
	if d.Type().IsFloat() || d.Type().IsVector() {
		panic("s390x: select on float/vector values is not implemented by this backend")
	}
	cond, ifTrue, ifFalse := d.Arg3()
	rd := m.vregOf(d.Result())
	zero := m.compiler.AllocateVReg(d.Type())
	mask := m.compiler.AllocateVReg(d.Type())
	diff := m.compiler.AllocateVReg(d.Type())
	m.emitSeq([]*instr{
		{kind: kindLoadImm, rd: zero, imm: 0},
		{kind: kindMovReg, rd: mask, rn: zero},
		{kind: kindALURRR, aluOp: aluSub, rd: mask, rn: mask, rm: m.vregOf(cond), size: 64},
		{kind: kindMovReg, rd: diff, rn: m.vregOf(ifTrue)},
		{kind: kindALURRR, aluOp: aluXor, rd: diff, rn: diff, rm: m.vregOf(ifFalse), size: 64},
		{kind: kindALURRR, aluOp: aluAnd, rd: diff, rn: diff, rm: mask, size: 64},
		{kind: kindMovReg, rd: rd, rn: m.vregOf(ifFalse)},
		{kind: kindALURRR, aluOp: aluXor, rd: rd, rn: rd, rm: diff, size: 64},
	})
}

// lowerCondition emits the compare for cond (fusing its producing Icmp/
// IcmpImm when possible) and returns the branchCond meaning "cond is
// true". z/Architecture carries a real condition-code register, so this
// mirrors amd64's lowerCondition far more than riscv64's two-register
// branch test.
func (m *machine) lowerCondition(cond ir.Value) branchCond {
	def := m.compiler.ValueDefinition(cond)
	if def.IsFromInstr() {
		if op := m.compiler.MatchInstrOneOf(def, []ir.Opcode{ir.OpcodeIcmp, ir.OpcodeIcmpImm}); op != ir.OpcodeInvalid {
			d := m.compiler.Function().DFG().InstructionData(def.Instr)
			m.compiler.MarkLowered(def.Instr)
			x, y := d.Arg2()
			c, swap, unsigned := fromIntCC(d.IntCC())
			rx, ry := m.vregOf(x), m.vregOf(y)
			if swap {
				rx, ry = ry, rx
			}
			m.emit(&instr{kind: kindCmp, rn: rx, rm: ry, unsigned: unsigned})
			return c
		}
	}
	zero := m.compiler.AllocateVReg(cond.Type())
	m.emitSeq([]*instr{
		{kind: kindLoadImm, rd: zero, imm: 0},
		{kind: kindCmp, rn: m.vregOf(cond), rm: zero},
	})
	return condNotEqual
}

func invertBranchCond(c branchCond) branchCond {
	switch c {
	case condEqual:
		return condNotEqual
	case condNotEqual:
		return condEqual
	case condLess:
		return condGreaterOrEqual
	case condGreaterOrEqual:
		return condLess
	case condGreater:
		return condLessOrEqual
	case condLessOrEqual:
		return condGreater
	default:
		panic("s390x: unknown branchCond")
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
		panic("s390x: tail calls are not implemented by this backend")
	default:
		panic(fmt.Sprintf("s390x: unexpected block terminator %s", d.Opcode()))
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

	bc := m.lowerCondition(cd.Arg())
	if cd.Opcode() == ir.OpcodeBrz {
		bc = invertBranchCond(bc)
	}
	m.emitSeq([]*instr{
		{kind: kindBranch, cond: bc, targetBlock: taken},
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

// InsertMove emits a register-to-register move.
func (m *machine) InsertMove(dst, src regalloc.VReg, typ ir.Type) {
	m.emit(&instr{kind: kindMovReg, rd: dst, rn: src})
}

// InsertLoadConstant emits the instruction(s) materializing inst's
// constant into vr.
func (m *machine) InsertLoadConstant(inst ir.Instruction, vr regalloc.VReg) {
	d := m.compiler.Function().DFG().InstructionData(inst)
	switch d.Opcode() {
	case ir.OpcodeIconst:
		m.emit(&instr{kind: kindLoadImm, rd: vr, imm: int64(d.ConstantVal())})
	default:
		panic(fmt.Sprintf("s390x: %s is not a constant this backend can materialize", d.Opcode()))
	}
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
		// register, matching LGF's own convention.
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
	m.emit(&instr{kind: kindLoad, rd: m.vregOf(d.Result()), rn: vreg(rSP),
		imm: off, size: byte(d.Type().Bits()), signed: true, frameSlot: true})
}

func (m *machine) lowerStackStore(d *ir.InstructionData) {
	slot := d.StackSlotIdx()
	off := m.stackSlotFrameOffset(slot) + int64(d.Offset())
	value := d.Arg()
	m.emit(&instr{kind: kindStore, rn: m.vregOf(value), rm: vreg(rSP),
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
