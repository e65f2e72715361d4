package legalize

import "github.com/joelreymont/machgen/ir"

// opLegalizer caches, per function, the FuncRef declared for each libcall
// symbol so repeated uses of the same helper (e.g. two f16 adds) share
// one callee declaration instead of redeclaring it.
type opLegalizer struct {
	f          *ir.Function
	target     Target
	libcallRef map[string]ir.FuncRef
}

// legalizeOps walks every instruction once and applies the target's
// per-(opcode, type) action: OpLegal is a no-op, OpExpand rewrites to a
// canonical equivalent sequence, OpLibcall replaces the instruction with
// a call to a named runtime helper, and OpCustom defers to the target's
// own rewrite. Grounded on canonical expansions
// (power-of-two division/remainder -> shift/mask; signed division ->
// add-bias-then-shift; remainder -> a - (a/b)*b). No float op has an
// OpExpand rule; a float op becomes a libcall only where the target's
// OpAction returns OpLibcall, whatever HasNativeFloat reports.
func legalizeOps(f *ir.Function, target Target) error {
	ol := &opLegalizer{f: f, target: target, libcallRef: map[string]ir.FuncRef{}}
	for blk := f.LayoutView().FirstBlock(); blk.Valid(); blk = f.LayoutView().NextBlock(blk) {
		var next ir.Instruction
		for inst := f.LayoutView().FirstInst(blk); inst.Valid(); inst = next {
			next = f.LayoutView().NextInst(inst)
			d := f.DFG().InstructionData(inst)
			action, libcallName := target.OpAction(d.Opcode(), d.Type())
			switch action {
			case OpLegal:
				continue
			case OpExpand:
				if err := ol.expand(inst); err != nil {
					return err
				}
			case OpLibcall:
				ol.toLibcall(inst, libcallName)
			case OpCustom:
				target.CustomExpand(f, inst)
			}
		}
	}
	return nil
}

// expand applies a canonical IR-to-IR rewrite for instructions the target
// cannot execute natively but that have a generic equivalent sequence.
func (ol *opLegalizer) expand(inst ir.Instruction) error {
	f := ol.f
	d := f.DFG().InstructionData(inst)
	switch d.Opcode() {
	case ir.OpcodeUdiv, ir.OpcodeUrem:
		x, y := d.Arg2()
		shift, ok := powerOfTwoShift(f, y)
		if !ok {
			return &LegalizationError{Opcode: d.Opcode(), Type: d.Type()}
		}
		shiftAmt := insertIconst(f, inst, d.Type(), ir.Imm64(shift))
		if d.Opcode() == ir.OpcodeUdiv {
			replace(f, inst, ir.MakeBinary(ir.OpcodeUshr, d.Type(), x, shiftAmt))
		} else {
			maskAmt := insertIconst(f, inst, d.Type(), ir.Imm64((int64(1)<<uint(shift))-1))
			replace(f, inst, ir.MakeBinary(ir.OpcodeBand, d.Type(), x, maskAmt))
		}
		return nil
	case ir.OpcodeSdiv, ir.OpcodeSrem:
		x, y := d.Arg2()
		shift, ok := powerOfTwoShift(f, y)
		if !ok {
			return &LegalizationError{Opcode: d.Opcode(), Type: d.Type()}
		}
		typ := d.Type()
		bits := int64(typ.Bits())
		// Classic bias trick: for x possibly negative, q = (x + ((x >>s (bits-1)) >>u (bits-shift))) >>s shift.
		signMask := insertShiftByConst(f, inst, ir.OpcodeSshr, typ, x, bits-1)
		bias := insertShiftByConst(f, inst, ir.OpcodeUshr, typ, signMask, bits-shift)
		biased := insertBinary(f, inst, ir.OpcodeIadd, typ, x, bias)
		if d.Opcode() == ir.OpcodeSdiv {
			shiftAmt := insertIconst(f, inst, typ, ir.Imm64(shift))
			replace(f, inst, ir.MakeBinary(ir.OpcodeSshr, typ, biased, shiftAmt))
			return nil
		}
		// remainder = x - q*divisor, divisor == 1<<shift.
		q := insertShiftByConst(f, inst, ir.OpcodeSshr, typ, biased, shift)
		shiftAmtQ := insertIconst(f, inst, typ, ir.Imm64(shift))
		scaled := insertBinary(f, inst, ir.OpcodeIshl, typ, q, shiftAmtQ)
		replace(f, inst, ir.MakeBinary(ir.OpcodeIsub, typ, x, scaled))
		return nil
	default:
		return &LegalizationError{Opcode: d.Opcode(), Type: d.Type()}
	}
}

// toLibcall replaces inst with a call to name, declaring the callee's
// FuncRef/Signature on first use and reusing it afterward.
func (ol *opLegalizer) toLibcall(inst ir.Instruction, name string) {
	f := ol.f
	d := f.DFG().InstructionData(inst)
	ref, ok := ol.libcallRef[name]
	if !ok {
		x, y := d.Arg2()
		var params []ir.Type
		if x.Valid() {
			params = append(params, d.Type())
		}
		if y.Valid() {
			params = append(params, d.Type())
		}
		sig := ir.Signature{Params: params, Results: []ir.Type{d.Type()}}
		sigRef := f.DFG().DeclareSignature(sig)
		ref = f.DFG().DeclareFuncRef(name, sigRef)
		ol.libcallRef[name] = ref
	}
	x, y := d.Arg2()
	var args []ir.Value
	if x.Valid() {
		args = append(args, x)
	}
	if y.Valid() {
		args = append(args, y)
	}
	vs := f.DFG().NewValueList(args)
	sig := f.DFG().FuncRefData(ref).Sig
	call := ir.MakeCall(ref, sig, vs)
	// ReplaceInstruction keeps inst's existing result identity, so every
	// prior use of the divide/remainder's result stays valid once the
	// call produces it instead.
	f.DFG().ReplaceInstruction(inst, call)
}

// insertIconst places a fresh integer-constant instruction immediately
// before at, returning its result value.
func insertIconst(f *ir.Function, at ir.Instruction, typ ir.Type, imm ir.Imm64) ir.Value {
	inst := f.DFG().NewInstruction(ir.MakeIconst(typ, imm))
	f.LayoutView().InsertInstructionBefore(at, inst)
	return f.DFG().AllocResult(inst, typ)
}

// insertBinary places a fresh binary instruction immediately before at,
// returning its result value.
func insertBinary(f *ir.Function, at ir.Instruction, op ir.Opcode, typ ir.Type, x, y ir.Value) ir.Value {
	inst := f.DFG().NewInstruction(ir.MakeBinary(op, typ, x, y))
	f.LayoutView().InsertInstructionBefore(at, inst)
	return f.DFG().AllocResult(inst, typ)
}

// insertShiftByConst synthesizes an iconst for amount and combines it with
// x via op, placing both immediately before at. op must be a binary shift
// opcode (Sshr/Ushr/Ishl); shift amounts are always inline operands, never
// unary immediates, matching how the optimizer's pass_nopelim.go already
// treats Ishl/Sshr/Ushr.
func insertShiftByConst(f *ir.Function, at ir.Instruction, op ir.Opcode, typ ir.Type, x ir.Value, amount int64) ir.Value {
	shiftAmt := insertIconst(f, at, typ, ir.Imm64(amount))
	return insertBinary(f, at, op, typ, x, shiftAmt)
}

// replace overwrites at's payload with d, keeping at's result identity so
// every existing use of it stays valid.
func replace(f *ir.Function, at ir.Instruction, d ir.InstructionData) {
	f.DFG().ReplaceInstruction(at, d)
}

// powerOfTwoShift reports whether divisor is a constant power of two and,
// if so, its log2.
func powerOfTwoShift(f *ir.Function, divisor ir.Value) (shift int64, ok bool) {
	prod, has := f.DFG().Producer(divisor)
	if !has {
		return 0, false
	}
	d := f.DFG().InstructionData(prod)
	if !d.IsConstant() {
		return 0, false
	}
	v := d.ConstantVal()
	if v == 0 || v&(v-1) != 0 {
		return 0, false
	}
	shift = 0
	for v > 1 {
		v >>= 1
		shift++
	}
	return shift, true
}
