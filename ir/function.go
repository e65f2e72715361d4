package ir

// Function is the top-level input to the compiler core: a signature, its
// data-flow graph, and the instruction/block layout, plus the entity
// arenas (stack slots, jump tables, constants, func/data refs) that the
// DFG's instruction payloads reference.
//
// A Function is built by Builder, mutated only by legalization and
// optimization passes until lowering begins, and is frozen thereafter —
// from that point on, backend.Compiler's VCode and mcode.Buffer are the
// only mutable surfaces.
type Function struct {
	Name      string
	Signature Signature

	dfg    *dataFlowGraph
	layout *Layout

	entry BasicBlockID

	// donePasses makes a second RunPasses call a no-op; nothing else
	// reads it.
	donePasses bool
}

// DFG exposes the function's data-flow graph to passes and the verifier.
// Named accessor (not an embedded field) so external packages see a
// narrow, stable surface instead of dataFlowGraph's internals.
func (f *Function) DFG() DFGView { return DFGView{f} }

// LayoutView exposes the function's instruction/block ordering.
func (f *Function) LayoutView() *Layout { return f.layout }

// EntryBlockID returns the function's entry block.
func (f *Function) EntryBlockID() BasicBlockID { return f.entry }

// DFGView is a narrow read/write accessor over a Function's data-flow
// graph, handed out instead of the unexported *dataFlowGraph so legalize,
// backend, and test code can all operate on a Function without reaching
// into package-private fields.
type DFGView struct{ f *Function }

// InstructionData returns the payload of inst.
func (v DFGView) InstructionData(inst Instruction) *InstructionData { return v.f.dfg.inst(inst) }

// ValueData returns the payload of id.
func (v DFGView) ValueData(id ValueID) *ValueData { return v.f.dfg.value(id) }

// ResolveValue resolves val's alias chain to its root.
func (v DFGView) ResolveValue(val Value) Value { return v.f.dfg.ResolveValue(val) }

// ValueList returns the out-of-line operand list referenced by an
// instruction's vs field.
func (v DFGView) ValueList(inst Instruction) []Value {
	return v.f.dfg.valueList(v.f.dfg.inst(inst).vs)
}

// BranchArgs returns the block-parameter arguments an instruction supplies
// to successor index (0 or 1; br_table's default case is successor 0).
func (v DFGView) BranchArgs(inst Instruction, successorIdx int) []Value {
	return v.f.dfg.valueList(v.f.dfg.inst(inst).argLists[successorIdx])
}

// JumpTableTargets returns the out-of-line successor list of a br_table
// instruction.
func (v DFGView) JumpTableTargets(inst Instruction) []BasicBlockID {
	d := v.f.dfg.inst(inst)
	if !d.jumpTbl.Valid() {
		return nil
	}
	return v.f.dfg.jumpTables[d.jumpTbl]
}

// StackSlot returns the declared size/alignment of a stack slot.
func (v DFGView) StackSlot(s StackSlot) StackSlotData { return v.f.dfg.stackSlots[s] }

// NumStackSlots returns how many stack slots this function has declared.
func (v DFGView) NumStackSlots() int { return len(v.f.dfg.stackSlots) }

// FuncRefData returns the callee info for a FuncRef.
func (v DFGView) FuncRefData(r FuncRef) FuncRefData { return v.f.dfg.funcRefs[r] }

// Signature returns the signature referenced by a SigRef.
func (v DFGView) Signature(s SigRef) *Signature { return &v.f.dfg.signatures[s] }

// Constant returns the pooled byte literal referenced by a Constant.
func (v DFGView) Constant(c Constant) []byte { return v.f.dfg.constants[c] }

// NumValues returns the number of Value ids ever allocated (including
// ones later aliased away); used to size per-value auxiliary arrays
// (refcounts, vreg maps) in one allocation.
func (v DFGView) NumValues() int { return len(v.f.dfg.values) }

// NumBlocks returns the number of BasicBlockID ids ever allocated.
func (v DFGView) NumBlocks() int { return len(v.f.dfg.blocks) }

// BlockData exposes the raw block payload (params/preds/succs) for passes
// internal to this module (legalize, backend) that need it; external
// callers should prefer Function's narrower Params/Preds/Succs accessors.
func (v DFGView) BlockData(blk BasicBlockID) *BasicBlockData { return v.f.dfg.block(blk) }

// Operands returns every Value inst reads: inline operands, out-of-line
// call/vconst arguments, and both successors' block-param argument lists.
// Exported for callers outside this package that need a uniform operand
// walk (virtual register reference counting, the differential
// interpreter) rather than special-casing each instruction family.
func (v DFGView) Operands(inst Instruction) []Value { return instOperands(v.f, v.f.dfg.inst(inst)) }

// Producer returns the instruction that produced val (after resolving its
// alias chain), or ok=false if val is a block parameter (no producing
// instruction) or invalid.
func (v DFGView) Producer(val Value) (inst Instruction, ok bool) {
	val = v.f.dfg.ResolveValue(val)
	if !val.Valid() {
		return InstructionInvalid, false
	}
	vd := v.f.dfg.value(val.ID())
	if vd.kind != valueDataInstResult {
		return InstructionInvalid, false
	}
	return vd.inst, true
}

// NewInstruction allocates inst in the arena without inserting it into
// Layout; the caller (legalize, backend lowering) places it explicitly
// via LayoutView().InsertInstructionBefore/AppendInstruction. Used to
// rewrite instructions the verifier already accepted into a target-legal
// equivalent sequence.
func (v DFGView) NewInstruction(d InstructionData) Instruction { return v.f.dfg.newInst(d) }

// AllocResult allocates a fresh result Value of type typ for inst,
// overwriting any result the instruction payload already carried.
func (v DFGView) AllocResult(inst Instruction, typ Type) Value {
	id := v.f.dfg.newValueID()
	val := valueWithType(id, typ)
	v.f.dfg.setValue(id, ValueData{kind: valueDataInstResult, inst: inst, idx: 0, typ: typ})
	v.f.dfg.inst(inst).r0 = val
	return val
}

// NewValueList interns vs as an out-of-line operand list, for building
// call/branch_table/vconst payloads outside of Builder.
func (v DFGView) NewValueList(vs []Value) valueListID { return v.f.dfg.newValueList(vs) }

// Alias makes from resolve to to from now on; used by legalize and
// optimization passes to redirect uses without rewriting every
// instruction that references the old value.
func (v DFGView) Alias(from, to Value) { v.f.dfg.makeAlias(from, to) }

// SetType overwrites inst's declared type in place (result type for most
// opcodes, operand type for stores), without disturbing its operands or
// result identity. Used by the type legalizer to promote a narrow-int
// producer's declared width.
func (v DFGView) SetType(inst Instruction, typ Type) {
	v.f.dfg.inst(inst).typ = typ
	d := v.f.dfg.inst(inst)
	if d.r0.Valid() {
		d.r0 = d.r0.withType(typ)
		v.f.dfg.value(d.r0.ID()).typ = typ
	}
}

// ReplaceInstruction overwrites inst's payload with d in place, keeping
// inst's existing result identity (every prior use of its result stays
// valid) so legalization can rewrite an instruction's opcode/operands
// without aliasing. d's own result fields are ignored.
func (v DFGView) ReplaceInstruction(inst Instruction, d InstructionData) {
	old := v.f.dfg.inst(inst)
	d.r0, d.rest = old.r0, old.rest
	*old = d
}

// NewStackSlot declares a new stack slot.
func (v DFGView) NewStackSlot(size, align uint32) StackSlot {
	id := StackSlot(len(v.f.dfg.stackSlots))
	v.f.dfg.stackSlots = append(v.f.dfg.stackSlots, StackSlotData{Size: size, Align: align})
	return id
}

// DeclareSignature interns a callee signature, returning its SigRef. Used
// by legalize to declare a libcall helper's signature outside of Builder.
func (v DFGView) DeclareSignature(sig Signature) SigRef {
	id := SigRef(len(v.f.dfg.signatures))
	sig.ID = id
	v.f.dfg.signatures = append(v.f.dfg.signatures, sig)
	return id
}

// DeclareFuncRef interns a named callee under the given signature.
func (v DFGView) DeclareFuncRef(name string, sig SigRef) FuncRef {
	id := FuncRef(len(v.f.dfg.funcRefs))
	v.f.dfg.funcRefs = append(v.f.dfg.funcRefs, FuncRefData{Name: name, Sig: sig})
	return id
}

// AllocResults assigns fresh result values of the given types to inst,
// for multi-result instructions (calls). The first becomes inst's r0;
// the rest are stored in its overflow result list.
func (v DFGView) AllocResults(inst Instruction, types []Type) []Value {
	if len(types) == 0 {
		return nil
	}
	vs := make([]Value, len(types))
	d := v.f.dfg.inst(inst)
	for i, t := range types {
		id := v.f.dfg.newValueID()
		val := valueWithType(id, t)
		v.f.dfg.setValue(id, ValueData{kind: valueDataInstResult, inst: inst, idx: i, typ: t})
		vs[i] = val
	}
	d.r0 = vs[0]
	if len(vs) > 1 {
		d.rest = vs[1:]
	}
	return vs
}
