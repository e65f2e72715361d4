package ir

import "fmt"

// Variable is a unique identifier for a source-level variable; a Variable
// may correspond to many Values over a function's lifetime (one per
// `local.set`-style assignment in the frontend's terms). Variable exists
// so the builder can implement the Braun et al. "Simple and Efficient
// Construction of Static Single Assignment Form" algorithm: FindValue
// looks up the current definition of a Variable, inserting block
// parameters (generalized PHIs) lazily as it crosses merge points.
type Variable uint32

// Builder incrementally constructs a Function's IR using the on-the-fly
// SSA construction algorithm: DeclareVariable once per source variable,
// DefineVariable at each assignment, FindValue at each use. Blocks must be
// Seal()ed once all of their predecessors are known; Seal resolves any
// placeholder block parameters FindValue inserted speculatively while the
// block's predecessor set was still open.
type Builder struct {
	f *Function

	currentBlock BasicBlockID

	variableTypes    []Type
	blockLastDefs    []map[Variable]Value
	blockUnknowns    []map[Variable]Value
	valueRefCounts   []int
}

// NewBuilder creates a Builder for a fresh Function with the given name
// and signature. The function starts with no blocks; call CreateBlock at
// least once before inserting instructions.
func NewBuilder(name string, sig Signature) *Builder {
	f := &Function{
		Name:      name,
		Signature: sig,
		dfg:       newDataFlowGraph(),
		layout:    newLayout(),
		entry:     BasicBlockID(idNone),
	}
	return &Builder{f: f, currentBlock: BasicBlockID(idNone)}
}

// Func returns the Function under construction.
func (b *Builder) Func() *Function { return b.f }

// CreateBlock allocates a new, unsealed, empty basic block and appends it
// to the layout. The first block created becomes the entry block.
func (b *Builder) CreateBlock() BasicBlockID {
	id := b.f.dfg.newBlock()
	b.f.layout.AppendBlock(id)
	if !b.f.entry.Valid() {
		b.f.entry = id
	}
	b.ensureBlockMaps(id)
	return id
}

func (b *Builder) ensureBlockMaps(id BasicBlockID) {
	for BasicBlockID(len(b.blockLastDefs)) <= id {
		b.blockLastDefs = append(b.blockLastDefs, nil)
		b.blockUnknowns = append(b.blockUnknowns, nil)
	}
	if b.blockLastDefs[id] == nil {
		b.blockLastDefs[id] = map[Variable]Value{}
		b.blockUnknowns[id] = map[Variable]Value{}
	}
}

// SetCurrentBlock directs subsequent InsertX calls to append to blk.
func (b *Builder) SetCurrentBlock(blk BasicBlockID) { b.currentBlock = blk }

// CurrentBlock returns the block InsertX calls currently target.
func (b *Builder) CurrentBlock() BasicBlockID { return b.currentBlock }

// AddBlockParam declares a new block parameter of type typ on blk.
func (b *Builder) AddBlockParam(blk BasicBlockID, typ Type) Value {
	return b.f.AddParam(blk, typ)
}

// DeclareVariable introduces a new source-level variable of type typ.
func (b *Builder) DeclareVariable(typ Type) Variable {
	v := Variable(len(b.variableTypes))
	b.variableTypes = append(b.variableTypes, typ)
	return v
}

// DefineVariable records value as variable's definition reaching the end
// of blk.
func (b *Builder) DefineVariable(variable Variable, value Value, blk BasicBlockID) {
	b.ensureBlockMaps(blk)
	b.blockLastDefs[blk][variable] = value
}

// DefineVariableInCurrentBlock is DefineVariable targeting CurrentBlock.
func (b *Builder) DefineVariableInCurrentBlock(variable Variable, value Value) {
	b.DefineVariable(variable, value, b.currentBlock)
}

// FindValue returns the Value reaching the current read point for
// variable, inserting block parameters across unsealed or
// multiple-predecessor merge points as needed (Braun et al., §2).
func (b *Builder) FindValue(variable Variable) Value {
	typ := b.variableTypes[variable]
	return b.findValue(typ, variable, b.currentBlock)
}

func (b *Builder) findValue(typ Type, variable Variable, blk BasicBlockID) Value {
	b.ensureBlockMaps(blk)
	if val, ok := b.blockLastDefs[blk][variable]; ok {
		return val
	}
	bd := b.f.dfg.block(blk)
	if !bd.sealed {
		// Incomplete CFG: this block may still gain predecessors. Emit a
		// placeholder value now and remember it as unresolved; Seal will
		// wire it up once the predecessor set is final.
		id := b.f.dfg.newValueID()
		val := valueWithType(id, typ)
		b.f.dfg.setValue(id, ValueData{kind: valueDataBlockParam, blk: blk, paramIdx: -1, typ: typ})
		b.blockLastDefs[blk][variable] = val
		b.blockUnknowns[blk][variable] = val
		return val
	}
	if len(bd.preds) == 1 {
		return b.findValue(typ, variable, bd.preds[0].block)
	}
	if len(bd.preds) == 0 {
		panic(fmt.Sprintf("BUG: %s used before definition with no predecessors to search", variable))
	}
	// Multiple predecessors: add (possibly redundant — cleaned up later by
	// the redundant-phi-elimination pass) a block parameter and propagate
	// the lookup to every predecessor's branch.
	param := b.f.AddParam(blk, typ)
	b.DefineVariable(variable, param, blk)
	for i := range bd.preds {
		pred := bd.preds[i]
		v := b.findValue(typ, variable, pred.block)
		b.addBranchArgument(pred.branch, blk, v)
	}
	return param
}

// Seal declares that blk's predecessor set is now final, resolving any
// placeholder parameters FindValue inserted while it was open.
func (b *Builder) Seal(blk BasicBlockID) {
	bd := b.f.dfg.block(blk)
	bd.sealed = true
	for variable, placeholder := range b.blockUnknowns[blk] {
		typ := b.variableTypes[variable]
		// Turn the placeholder into a real parameter now that preds are known.
		pd := b.f.dfg.value(placeholder.ID())
		pd.paramIdx = len(bd.params)
		bd.params = append(bd.params, blockParam{value: placeholder, typ: typ})
		for i := range bd.preds {
			pred := bd.preds[i]
			v := b.findValue(typ, variable, pred.block)
			b.addBranchArgument(pred.branch, blk, v)
		}
	}
	b.blockUnknowns[blk] = map[Variable]Value{}
}

// addBranchArgument appends v to the argument list branch supplies to
// target (used both by explicit Insert*Branch calls and by FindValue's
// retroactive PHI wiring).
func (b *Builder) addBranchArgument(branch Instruction, target BasicBlockID, v Value) {
	d := b.f.dfg.inst(branch)
	idx := 0
	if d.targets[0] != target && d.targets[1] == target {
		idx = 1
	}
	args := b.f.dfg.valueList(d.argLists[idx])
	args = append(args, v)
	if d.argLists[idx] == valueListIDNone {
		d.argLists[idx] = b.f.dfg.newValueList(args)
	} else {
		b.f.dfg.setValueList(d.argLists[idx], args)
	}
}

// allocResult allocates the single result Value of an instruction about to
// be inserted, of type typ.
func (b *Builder) allocResult(inst Instruction, typ Type) Value {
	id := b.f.dfg.newValueID()
	v := valueWithType(id, typ)
	b.f.dfg.setValue(id, ValueData{kind: valueDataInstResult, inst: inst, idx: 0, typ: typ})
	d := b.f.dfg.inst(inst)
	d.r0 = v
	return v
}

func (b *Builder) insert(d InstructionData) Instruction {
	inst := b.f.dfg.newInst(d)
	b.f.layout.AppendInstruction(b.currentBlock, inst)
	return inst
}

// --- instruction-building convenience API, grounded on the opcode table in instruction.go ---

// InsertIconst inserts an integer constant of type typ.
func (b *Builder) InsertIconst(typ Type, imm Imm64) Value {
	inst := b.insert(InstructionData{opcode: OpcodeIconst, u1: uint64(imm), typ: typ})
	return b.allocResult(inst, typ)
}

// InsertF32const inserts an f32 constant.
func (b *Builder) InsertF32const(v Ieee32) Value {
	inst := b.insert(InstructionData{opcode: OpcodeF32const, u1: uint64(v), typ: TypeF32})
	return b.allocResult(inst, TypeF32)
}

// InsertF64const inserts an f64 constant.
func (b *Builder) InsertF64const(v Ieee64) Value {
	inst := b.insert(InstructionData{opcode: OpcodeF64const, u1: uint64(v), typ: TypeF64})
	return b.allocResult(inst, TypeF64)
}

// InsertBinary inserts a binary arithmetic/comparison instruction
// producing resultType.
func (b *Builder) InsertBinary(op Opcode, x, y Value, resultType Type) Value {
	inst := b.insert(InstructionData{opcode: op, v: x, v2: y, typ: resultType})
	return b.allocResult(inst, resultType)
}

// InsertIcmp inserts an integer comparison with the given predicate,
// producing an iflags-typed result (materialize to i32 with a later
// select or legalizer rewrite, per target convention).
func (b *Builder) InsertIcmp(cc IntCC, x, y Value) Value {
	inst := b.insert(InstructionData{opcode: OpcodeIcmp, v: x, v2: y, u1: uint64(cc), typ: TypeIflags})
	return b.allocResult(inst, TypeIflags)
}

// InsertUnary inserts a unary instruction producing resultType.
func (b *Builder) InsertUnary(op Opcode, x Value, resultType Type) Value {
	inst := b.insert(InstructionData{opcode: op, v: x, typ: resultType})
	return b.allocResult(inst, resultType)
}

// InsertSelect inserts a branchless select(cond, ifTrue, ifFalse).
func (b *Builder) InsertSelect(cond, ifTrue, ifFalse Value) Value {
	typ := ifTrue.Type()
	inst := b.insert(InstructionData{opcode: OpcodeSelect, v: cond, v2: ifTrue, v3: ifFalse, typ: typ})
	return b.allocResult(inst, typ)
}

// InsertLoad inserts a typed load from base+offset.
func (b *Builder) InsertLoad(op Opcode, base Value, offset Offset32, typ Type) Value {
	inst := b.insert(InstructionData{opcode: op, v: base, u2: uint64(uint32(offset)), typ: typ})
	return b.allocResult(inst, typ)
}

// InsertStore inserts a store of value to base+offset.
func (b *Builder) InsertStore(op Opcode, value, base Value, offset Offset32) Instruction {
	return b.insert(InstructionData{opcode: op, v: value, v2: base, u2: uint64(uint32(offset)), typ: value.Type()})
}

// InsertStackLoad loads from a stack slot.
func (b *Builder) InsertStackLoad(slot StackSlot, offset Offset32, typ Type) Value {
	inst := b.insert(InstructionData{opcode: OpcodeStackLoad, u1: uint64(slot), u2: uint64(uint32(offset)), typ: typ})
	return b.allocResult(inst, typ)
}

// InsertStackStore stores value into a stack slot.
func (b *Builder) InsertStackStore(value Value, slot StackSlot, offset Offset32) Instruction {
	return b.insert(InstructionData{opcode: OpcodeStackStore, v: value, u1: uint64(slot), u2: uint64(uint32(offset))})
}

// CreateStackSlot declares a new stack slot.
func (b *Builder) CreateStackSlot(size, align uint32) StackSlot {
	id := StackSlot(len(b.f.dfg.stackSlots))
	b.f.dfg.stackSlots = append(b.f.dfg.stackSlots, StackSlotData{Size: size, Align: align})
	return id
}

// DeclareSignature interns a callee signature, returning its SigRef.
func (b *Builder) DeclareSignature(sig Signature) SigRef {
	id := SigRef(len(b.f.dfg.signatures))
	sig.ID = id
	b.f.dfg.signatures = append(b.f.dfg.signatures, sig)
	return id
}

// DeclareFuncRef interns a named callee under the given signature.
func (b *Builder) DeclareFuncRef(name string, sig SigRef) FuncRef {
	id := FuncRef(len(b.f.dfg.funcRefs))
	b.f.dfg.funcRefs = append(b.f.dfg.funcRefs, FuncRefData{Name: name, Sig: sig})
	return id
}

// InsertCall inserts a direct call.
func (b *Builder) InsertCall(callee FuncRef, sig SigRef, args []Value, resultTypes []Type) (Instruction, []Value) {
	inst := b.insert(InstructionData{opcode: OpcodeCall, funcRef: callee, sigRef: sig, vs: b.f.dfg.newValueList(args)})
	return inst, b.allocResults(inst, resultTypes)
}

// InsertCallIndirect inserts an indirect call through a computed address.
func (b *Builder) InsertCallIndirect(callee Value, sig SigRef, args []Value, resultTypes []Type) (Instruction, []Value) {
	inst := b.insert(InstructionData{opcode: OpcodeCallIndirect, v: callee, sigRef: sig, vs: b.f.dfg.newValueList(args)})
	return inst, b.allocResults(inst, resultTypes)
}

func (b *Builder) allocResults(inst Instruction, types []Type) []Value {
	if len(types) == 0 {
		return nil
	}
	vs := make([]Value, len(types))
	d := b.f.dfg.inst(inst)
	for i, t := range types {
		id := b.f.dfg.newValueID()
		v := valueWithType(id, t)
		b.f.dfg.setValue(id, ValueData{kind: valueDataInstResult, inst: inst, idx: i, typ: t})
		vs[i] = v
	}
	d.r0 = vs[0]
	if len(vs) > 1 {
		d.rest = vs[1:]
	}
	return vs
}

// InsertJump inserts an unconditional jump to target with the given
// block-parameter arguments.
func (b *Builder) InsertJump(target BasicBlockID, args []Value) Instruction {
	d := InstructionData{opcode: OpcodeJump, targets: [2]BasicBlockID{target, BasicBlockID(idNone)}}
	d.argLists[0] = b.f.dfg.newValueList(args)
	inst := b.insert(d)
	b.addEdge(inst, target)
	return inst
}

// InsertBrz inserts a branch to ifZero when cond == 0, falling through to
// ifNonZero otherwise. ifNonZero receives no block arguments here (use
// InsertJump from a following block if needed); this matches wazero's
// two-target conditional-branch-with-fallthrough shape.
func (b *Builder) InsertBrz(cond Value, ifZero BasicBlockID, zeroArgs []Value, ifNonZero BasicBlockID) Instruction {
	d := InstructionData{opcode: OpcodeBrz, v: cond, targets: [2]BasicBlockID{ifZero, ifNonZero}}
	d.argLists[0] = b.f.dfg.newValueList(zeroArgs)
	inst := b.insert(d)
	b.addEdge(inst, ifZero)
	b.addEdge(inst, ifNonZero)
	return inst
}

// InsertBrnz inserts a branch to ifNonZero when cond != 0, falling through
// to ifZero otherwise.
func (b *Builder) InsertBrnz(cond Value, ifNonZero BasicBlockID, nonZeroArgs []Value, ifZero BasicBlockID) Instruction {
	d := InstructionData{opcode: OpcodeBrnz, v: cond, targets: [2]BasicBlockID{ifNonZero, ifZero}}
	d.argLists[0] = b.f.dfg.newValueList(nonZeroArgs)
	inst := b.insert(d)
	b.addEdge(inst, ifNonZero)
	b.addEdge(inst, ifZero)
	return inst
}

// InsertBrTable inserts an indexed branch table with a default target.
func (b *Builder) InsertBrTable(index Value, def BasicBlockID, targets []BasicBlockID) Instruction {
	jt := JumpTable(len(b.f.dfg.jumpTables))
	b.f.dfg.jumpTables = append(b.f.dfg.jumpTables, append([]BasicBlockID{}, targets...))
	d := InstructionData{opcode: OpcodeBrTable, v: index, targets: [2]BasicBlockID{def, BasicBlockID(idNone)}, jumpTbl: jt}
	inst := b.insert(d)
	b.addEdge(inst, def)
	for _, t := range targets {
		b.addEdge(inst, t)
	}
	return inst
}

// InsertReturn inserts a function return with the given result values.
func (b *Builder) InsertReturn(values []Value) Instruction {
	d := InstructionData{opcode: OpcodeReturn, vs: b.f.dfg.newValueList(values)}
	return b.insert(d)
}

// InsertTrap inserts an unconditional trap.
func (b *Builder) InsertTrap(code uint64) Instruction {
	return b.insert(InstructionData{opcode: OpcodeTrap, u1: code})
}

func (b *Builder) addEdge(branch Instruction, target BasicBlockID) {
	b.ensureBlockMaps(target)
	bd := b.f.dfg.block(target)
	bd.preds = append(bd.preds, predecessorInfo{block: b.currentBlock, branch: branch})
	cur := b.f.dfg.block(b.currentBlock)
	cur.succs = append(cur.succs, target)
}

// Finish runs RunPasses over the constructed function and returns it. The
// Builder must not be used again afterward (the IR is considered frozen
// for lowering purposes once legalization begins).
func (b *Builder) Finish() (*Function, error) {
	if err := RunPasses(b.f); err != nil {
		return nil, err
	}
	return b.f, nil
}
