package amd64

import (
	"fmt"

	"github.com/joelreymont/machgen/backend"
	"github.com/joelreymont/machgen/backend/regalloc"
	"github.com/joelreymont/machgen/ir"
)

// gprWidth returns the GPR width (32 or 64) a value of type t computes
// in; sub-word integers are carried in the bottom bits of a 32-bit
// operation, same convention as arm64's gprWidth.
func gprWidth(t ir.Type) byte {
	if t.Bits() > 32 {
		return 64
	}
	return 32
}

func fpuWidth(t ir.Type) byte { return byte(t.Bits()) }

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
// switch is either genuinely native here or already expanded/replaced by
// a libcall before lowering ever sees it -- Udiv/Sdiv/Urem/Srem (expanded
// to shift/mask by legalize.Run) and Clz/Ctz/Popcnt/Fmin/Fmax/Ceil/Floor/
// Trunc/Nearest/FcvtToUint/FcvtFromUint/the vector opcodes (rewritten to
// calls) never reach it.
func (m *machine) LowerInstr(inst ir.Instruction) {
	fn := m.compiler.Function()
	d := fn.DFG().InstructionData(inst)

	switch d.Opcode() {
	case ir.OpcodeIconst, ir.OpcodeF32const, ir.OpcodeF64const:
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
		m.lowerImul(d)

	case ir.OpcodeIshl:
		m.lowerShift(d, shiftShl)
	case ir.OpcodeUshr:
		m.lowerShift(d, shiftShr)
	case ir.OpcodeSshr:
		m.lowerShift(d, shiftSar)
	case ir.OpcodeRotl:
		m.lowerRotl(d)
	case ir.OpcodeRotr:
		m.lowerShift(d, shiftRor)

	case ir.OpcodeIneg:
		w := gprWidth(d.Type())
		rd := m.vregOf(d.Result())
		m.emitSeq([]*instr{
			{kind: kindMovRR, rd: rd, rn: m.vregOf(d.Arg()), size: w},
			{kind: kindNeg, rd: rd, size: w},
		})
	case ir.OpcodeBnot:
		w := gprWidth(d.Type())
		rd := m.vregOf(d.Result())
		m.emitSeq([]*instr{
			{kind: kindMovRR, rd: rd, rn: m.vregOf(d.Arg()), size: w},
			{kind: kindNot, rd: rd, size: w},
		})

	case ir.OpcodeIextend:
		srcBits := d.Arg().Type().Bits()
		kind := kindMovzx
		if d.Signed() {
			kind = kindMovsx
		}
		m.emit(&instr{kind: kind, rd: m.vregOf(d.Result()), rn: m.vregOf(d.Arg()), imm: int64(srcBits)})
	case ir.OpcodeIreduce:
		m.emit(&instr{kind: kindMovRR, rd: m.vregOf(d.Result()), rn: m.vregOf(d.Arg()), size: gprWidth(d.Type())})
	case ir.OpcodeIcast:
		m.lowerIcast(d)

	case ir.OpcodeFadd:
		m.lowerFpuRRR(d, fpuAdd)
	case ir.OpcodeFsub:
		m.lowerFpuRRR(d, fpuSub)
	case ir.OpcodeFmul:
		m.lowerFpuRRR(d, fpuMul)
	case ir.OpcodeFdiv:
		m.lowerFpuRRR(d, fpuDiv)
	case ir.OpcodeSqrt:
		m.emit(&instr{kind: kindFpuUnary, fpuUnaryOp: fpuUnarySqrt, rd: m.vregOf(d.Result()), rn: m.vregOf(d.Arg()), size: fpuWidth(d.Type())})
	case ir.OpcodeFpromote:
		m.emit(&instr{kind: kindFpuUnary, fpuUnaryOp: fpuUnaryCvt32To64, rd: m.vregOf(d.Result()), rn: m.vregOf(d.Arg()), size: 32})
	case ir.OpcodeFdemote:
		m.emit(&instr{kind: kindFpuUnary, fpuUnaryOp: fpuUnaryCvt64To32, rd: m.vregOf(d.Result()), rn: m.vregOf(d.Arg()), size: 64})
	case ir.OpcodeFneg:
		m.lowerFneg(d)
	case ir.OpcodeFabs:
		m.lowerFabs(d)
	case ir.OpcodeFcopysign:
		m.lowerFcopysign(d)

	case ir.OpcodeFcvtToSint:
		argTy := d.Arg().Type()
		m.emit(&instr{kind: kindCvtFpuToInt, rd: m.vregOf(d.Result()), rn: m.vregOf(d.Arg()),
			size: byte(d.Type().Bits()), imm: int64(argTy.Bits())})
	case ir.OpcodeFcvtFromSint:
		argTy := d.Arg().Type()
		m.emit(&instr{kind: kindCvtIntToFpu, rd: m.vregOf(d.Result()), rn: m.vregOf(d.Arg()),
			size: byte(argTy.Bits()), imm: int64(d.Type().Bits())})

	case ir.OpcodeIcmp, ir.OpcodeIcmpImm, ir.OpcodeFcmp:
		// Fused into its one branch or select consumer by lowerCondition.
		panic(fmt.Sprintf("amd64: comparison %s must be fused into its consumer", d.Opcode()))

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
		panic(fmt.Sprintf("amd64: lowering not implemented for %s", d.Opcode()))
	}
}

// lowerALU lowers a two-address integer binary op: mov rd, x; rd (op)= y.
// Always two instructions, even when x is otherwise dead after this use,
// since rd is a fresh SSA-derived vreg distinct from x's.
func (m *machine) lowerALU(d *ir.InstructionData, op aluOp) {
	w := gprWidth(d.Type())
	x, y := d.Arg2()
	rd := m.vregOf(d.Result())
	m.emitSeq([]*instr{
		{kind: kindMovRR, rd: rd, rn: m.vregOf(x), size: w},
		{kind: kindALURR, aluOp: op, rd: rd, rm: m.vregOf(y), size: w},
	})
}

func (m *machine) lowerImul(d *ir.InstructionData) {
	w := gprWidth(d.Type())
	x, y := d.Arg2()
	rd := m.vregOf(d.Result())
	m.emitSeq([]*instr{
		{kind: kindMovRR, rd: rd, rn: m.vregOf(x), size: w},
		{kind: kindImulRR, rd: rd, rm: m.vregOf(y), size: w},
	})
}

// lowerShift always takes the shift amount in rcx (tmpCx): SHL/SHR/SAR/
// ROR's variable-count form can only read it from CL.
func (m *machine) lowerShift(d *ir.InstructionData, op shiftOp) {
	w := gprWidth(d.Type())
	x, y := d.Arg2()
	rd := m.vregOf(d.Result())
	cx := vreg(tmpCx)
	m.emitSeq([]*instr{
		{kind: kindMovRR, rd: rd, rn: m.vregOf(x), size: w},
		{kind: kindMovRR, rd: cx, rn: m.vregOf(y), size: w},
		{kind: kindShiftCL, shiftOp: op, rd: rd, size: w},
	})
}

// lowerRotl negates the count (ROL by n == ROR by -n, mod the register
// width, same trick arm64 uses) and emits ROR by CL; the shiftRol form
// that shiftExt also encodes is not used here.
func (m *machine) lowerRotl(d *ir.InstructionData) {
	w := gprWidth(d.Type())
	x, y := d.Arg2()
	rd := m.vregOf(d.Result())
	cx := vreg(tmpCx)
	neg := m.compiler.AllocateVReg(d.Type())
	m.emitSeq([]*instr{
		{kind: kindMovRR, rd: rd, rn: m.vregOf(x), size: w},
		{kind: kindMovRR, rd: neg, rn: m.vregOf(y), size: w},
		{kind: kindNeg, rd: neg, size: w},
		{kind: kindMovRR, rd: cx, rn: neg, size: w},
		{kind: kindShiftCL, shiftOp: shiftRor, rd: rd, size: w},
	})
}

func (m *machine) lowerIcast(d *ir.InstructionData) {
	rd, rn := m.vregOf(d.Result()), m.vregOf(d.Arg())
	w := byte(d.Type().Bits())
	if d.Type().IsFloat() {
		m.emit(&instr{kind: kindMovToFpu, rd: rd, rn: rn, size: w})
	} else {
		m.emit(&instr{kind: kindMovFromFpu, rd: rd, rn: rn, size: w})
	}
}

func (m *machine) lowerFpuRRR(d *ir.InstructionData, op fpuOp) {
	x, y := d.Arg2()
	w := fpuWidth(d.Type())
	rd := m.vregOf(d.Result())
	m.emitSeq([]*instr{
		{kind: kindMovFpuRR, rd: rd, rn: m.vregOf(x), size: w},
		{kind: kindFpuRR, fpuOp: op, rd: rd, rm: m.vregOf(y), size: w},
	})
}

// lowerFneg bounces through the GPR file and flips the sign bit: x86's
// SSE2 has no dedicated negate, only ALU tricks on the raw bit pattern.
func (m *machine) lowerFneg(d *ir.InstructionData) {
	w := fpuWidth(d.Type())
	gw := byte(64)
	if w == 32 {
		gw = 32
	}
	signBit := int64(1) << 63
	if w == 32 {
		signBit = 1 << 31
	}
	gx := m.compiler.AllocateVReg(wordTypeFor(gw))
	mask := m.compiler.AllocateVReg(wordTypeFor(gw))
	rd := m.vregOf(d.Result())
	m.emitSeq([]*instr{
		{kind: kindMovFromFpu, rd: gx, rn: m.vregOf(d.Arg()), size: w},
		{kind: kindMovImm, rd: mask, imm: signBit, size: gw},
		{kind: kindALURR, aluOp: aluXor, rd: gx, rm: mask, size: gw},
		{kind: kindMovToFpu, rd: rd, rn: gx, size: w},
	})
}

// lowerFabs clears the sign bit the same way lowerFneg sets it.
func (m *machine) lowerFabs(d *ir.InstructionData) {
	w := fpuWidth(d.Type())
	gw := byte(64)
	if w == 32 {
		gw = 32
	}
	var invMask int64
	if w == 32 {
		invMask = int64(uint32(^uint32(1 << 31)))
	} else {
		invMask = int64(^uint64(1 << 63))
	}
	gx := m.compiler.AllocateVReg(wordTypeFor(gw))
	mask := m.compiler.AllocateVReg(wordTypeFor(gw))
	rd := m.vregOf(d.Result())
	m.emitSeq([]*instr{
		{kind: kindMovFromFpu, rd: gx, rn: m.vregOf(d.Arg()), size: w},
		{kind: kindMovImm, rd: mask, imm: invMask, size: gw},
		{kind: kindALURR, aluOp: aluAnd, rd: gx, rm: mask, size: gw},
		{kind: kindMovToFpu, rd: rd, rn: gx, size: w},
	})
}

// lowerFcopysign combines the magnitude of x with the sign bit of y,
// entirely in the GPR file, the same approach as arm64's lowerFcopysign
// but materializing each mask through a scratch register rather than an
// AND-immediate form (this encoder's ALURI only carries a 32-bit
// immediate, too narrow for float64's sign mask).
func (m *machine) lowerFcopysign(d *ir.InstructionData) {
	w := fpuWidth(d.Type())
	gw := byte(64)
	if w == 32 {
		gw = 32
	}
	var signBit, invSignBit int64
	if w == 32 {
		signBit = 1 << 31
		invSignBit = int64(uint32(^uint32(1 << 31)))
	} else {
		signBit = int64(uint64(1) << 63)
		invSignBit = int64(^uint64(1 << 63))
	}
	x, y := d.Arg2()
	gx := m.compiler.AllocateVReg(wordTypeFor(gw))
	gy := m.compiler.AllocateVReg(wordTypeFor(gw))
	signMask := m.compiler.AllocateVReg(wordTypeFor(gw))
	invMask := m.compiler.AllocateVReg(wordTypeFor(gw))
	rd := m.vregOf(d.Result())
	m.emitSeq([]*instr{
		{kind: kindMovFromFpu, rd: gx, rn: m.vregOf(x), size: w},
		{kind: kindMovFromFpu, rd: gy, rn: m.vregOf(y), size: w},
		{kind: kindMovImm, rd: signMask, imm: signBit, size: gw},
		{kind: kindMovImm, rd: invMask, imm: invSignBit, size: gw},
		{kind: kindALURR, aluOp: aluAnd, rd: gy, rm: signMask, size: gw},
		{kind: kindALURR, aluOp: aluAnd, rd: gx, rm: invMask, size: gw},
		{kind: kindALURR, aluOp: aluOr, rd: gx, rm: gy, size: gw},
		{kind: kindMovToFpu, rd: rd, rn: gx, size: w},
	})
}

func wordTypeFor(w byte) ir.Type {
	if w == 64 {
		return ir.TypeI64
	}
	return ir.TypeI32
}

// lowerCondition emits the compare for cond (fusing its producing Icmp/
// Fcmp when possible) and returns the cc meaning "cond is true".
func (m *machine) lowerCondition(cond ir.Value) cc {
	def := m.compiler.ValueDefinition(cond)
	if def.IsFromInstr() {
		if op := m.compiler.MatchInstrOneOf(def, []ir.Opcode{ir.OpcodeIcmp, ir.OpcodeIcmpImm, ir.OpcodeFcmp}); op != ir.OpcodeInvalid {
			d := m.compiler.Function().DFG().InstructionData(def.Instr)
			m.compiler.MarkLowered(def.Instr)
			switch op {
			case ir.OpcodeIcmp, ir.OpcodeIcmpImm:
				x, y := d.Arg2()
				m.emit(&instr{kind: kindCmpRR, rn: m.vregOf(x), rm: m.vregOf(y), size: gprWidth(d.Type())})
				return fromIntCC(d.IntCC())
			default: // OpcodeFcmp
				x, y := d.Arg2()
				m.emit(&instr{kind: kindFpuCmp, rn: m.vregOf(x), rm: m.vregOf(y), size: fpuWidth(x.Type())})
				return fromFloatCC(d.FloatCC())
			}
		}
	}
	zero := m.compiler.AllocateVReg(cond.Type())
	m.emitSeq([]*instr{
		{kind: kindMovImm, rd: zero, imm: 0, size: gprWidth(cond.Type())},
		{kind: kindCmpRR, rn: m.vregOf(cond), rm: zero, size: gprWidth(cond.Type())},
	})
	return ccNE
}

// lowerSelect lowers an integer Select branchlessly: mask = -cond (0 or
// all-ones, since cond is always exactly 0 or 1), result = ifFalse XOR
// ((ifTrue XOR ifFalse) AND mask). Float/vector Select is out of scope.
func (m *machine) lowerSelect(d *ir.InstructionData) {
	if d.Type().IsFloat() || d.Type().IsVector() {
		panic("amd64: select on float/vector values is not implemented by this backend")
	}
	w := gprWidth(d.Type())
	cond, ifTrue, ifFalse := d.Arg3()
	rd := m.vregOf(d.Result())
	mask := m.compiler.AllocateVReg(d.Type())
	diff := m.compiler.AllocateVReg(d.Type())
	m.emitSeq([]*instr{
		{kind: kindMovRR, rd: mask, rn: m.vregOf(cond), size: w},
		{kind: kindNeg, rd: mask, size: w},
		{kind: kindMovRR, rd: diff, rn: m.vregOf(ifTrue), size: w},
		{kind: kindALURR, aluOp: aluXor, rd: diff, rm: m.vregOf(ifFalse), size: w},
		{kind: kindALURR, aluOp: aluAnd, rd: diff, rm: mask, size: w},
		{kind: kindMovRR, rd: rd, rn: m.vregOf(ifFalse), size: w},
		{kind: kindALURR, aluOp: aluXor, rd: rd, rm: diff, size: w},
	})
}

// LowerSingleBranch lowers a block's unconditional terminator.
func (m *machine) LowerSingleBranch(term ir.Instruction) {
	fn := m.compiler.Function()
	d := fn.DFG().InstructionData(term)
	switch d.Opcode() {
	case ir.OpcodeJump:
		t0, _ := d.Targets()
		m.emit(&instr{kind: kindJmp, targetBlock: t0})
	case ir.OpcodeReturn:
		m.lowerReturnValues(fn.DFG().ValueList(term))
		m.InsertReturn()
	case ir.OpcodeTrap:
		m.emit(&instr{kind: kindUd2, imm: int64(d.TrapCode())})
	case ir.OpcodeReturnCall, ir.OpcodeReturnCallIndirect:
		panic("amd64: tail calls are not implemented by this backend")
	default:
		panic(fmt.Sprintf("amd64: unexpected block terminator %s", d.Opcode()))
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

	flag := m.lowerCondition(cd.Arg())
	if cd.Opcode() == ir.OpcodeBrz {
		flag = flag.invert()
	}
	m.emitSeq([]*instr{
		{kind: kindJcc, cc: flag, targetBlock: taken},
		{kind: kindJmp, targetBlock: fallthroughBlk},
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
	if typ.IsFloat() || typ.IsVector() {
		m.emit(&instr{kind: kindMovFpuRR, rd: dst, rn: src, size: byte(typ.Bits())})
		return
	}
	m.emit(&instr{kind: kindMovRR, rd: dst, rn: src, size: gprWidth(typ)})
}

// InsertLoadConstant emits the instruction(s) materializing inst's
// constant into vr.
func (m *machine) InsertLoadConstant(inst ir.Instruction, vr regalloc.VReg) {
	d := m.compiler.Function().DFG().InstructionData(inst)
	switch d.Opcode() {
	case ir.OpcodeIconst:
		w := gprWidth(d.Type())
		m.emit(&instr{kind: kindMovImm, rd: vr, imm: int64(d.ConstantVal()), size: w})
	case ir.OpcodeF32const:
		m.emit(&instr{kind: kindFpuLoadLit, rd: vr, size: 32, imm: int64(uint32(d.Float32()))})
	case ir.OpcodeF64const:
		m.emit(&instr{kind: kindFpuLoadLit, rd: vr, size: 64, imm: int64(d.Float64())})
	default:
		panic(fmt.Sprintf("amd64: %s is not a constant-producing instruction", d.Opcode()))
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
		bits, signed = byte(d.Type().Bits()), false
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
	isFloat := d.Type().IsFloat() && d.Opcode() == ir.OpcodeLoad
	m.emit(&instr{kind: kindLoad, rd: m.vregOf(d.Result()), rn: m.vregOf(base), imm: int64(d.Offset()),
		size: bits, signed: signed, indirect: isFloat})
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
	isFloat := value.Type().IsFloat() && d.Opcode() == ir.OpcodeStore
	m.emit(&instr{kind: kindStore, rn: m.vregOf(value), rm: m.vregOf(base), imm: int64(d.Offset()),
		size: bits, indirect: isFloat})
}

func (m *machine) lowerStackLoad(d *ir.InstructionData) {
	slot := d.StackSlotIdx()
	off := m.stackSlotFrameOffset(slot) + int64(d.Offset())
	m.emit(&instr{kind: kindLoad, rd: m.vregOf(d.Result()), rn: vreg(rsp),
		imm: off, size: byte(d.Type().Bits()), indirect: d.Type().IsFloat(), frameSlot: true})
}

func (m *machine) lowerStackStore(d *ir.InstructionData) {
	slot := d.StackSlotIdx()
	off := m.stackSlotFrameOffset(slot) + int64(d.Offset())
	value := d.Arg()
	m.emit(&instr{kind: kindStore, rn: m.vregOf(value), rm: vreg(rsp),
		imm: off, size: byte(value.Type().Bits()), indirect: value.Type().IsFloat(), frameSlot: true})
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

// stackSlotFrameOffset returns slot's rsp-relative byte offset, placed
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
