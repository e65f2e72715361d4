package backend

import (
	"fmt"

	"github.com/joelreymont/machgen/backend/regalloc"
	"github.com/joelreymont/machgen/ir"
	"github.com/joelreymont/machgen/mcode"
)

// Compiler is the lowering context that drives a Machine over one
// ir.Function: it assigns virtual registers, walks blocks in
// reverse-post-order lowering each instruction into the ISA's own
// instruction list, runs register allocation, and finally asks the
// Machine to encode. Grounded directly on the recovered vendored copy of
// backend/compiler.go (the richer version with MatchInstr/MatchInstrOneOf
// fusion and a Finalize/Encode split; the version also present in this
// pack's faddat fork is an earlier, simpler draft whose Machine interface
// doesn't even declare the methods its own compiler.go calls — this
// module follows the richer, internally consistent one).
type Compiler interface {
	// Bind attaches fn as the function to compile next. Must be called
	// after Reset and before Lower.
	Bind(fn *ir.Function)

	// Lower assigns virtual registers to every value and asks the Machine
	// to lower each block's instructions in reverse program order.
	Lower()
	// RegAlloc runs the Machine's chosen allocator over the lowered code.
	RegAlloc()
	// Finalize runs the Machine's post-regalloc pass (prologue/epilogue
	// insertion; no redundant-move elision) and encodes into buf.
	Finalize(buf *mcode.Buffer) error
	// Compile runs Lower, RegAlloc, and Finalize in sequence.
	Compile(buf *mcode.Buffer) error

	// Reset prepares the compiler (and its Machine) for the next function.
	Reset()
	// Format renders the Machine's current lowered/allocated state, for
	// debugging and golden-output tests.
	Format() string

	// Function returns the ir.Function currently being compiled.
	Function() *ir.Function

	// AllocateVReg allocates a fresh virtual register for a value of typ.
	AllocateVReg(typ ir.Type) regalloc.VReg
	// ValueDefinition returns where v was defined.
	ValueDefinition(v ir.Value) ValueDefinition
	// VRegOf returns the virtual register standing in for v.
	VRegOf(v ir.Value) regalloc.VReg
	// TypeOf returns the IR type a virtual register was allocated for.
	TypeOf(v regalloc.VReg) ir.Type

	// MatchInstr reports whether def is a single-use instruction result
	// with opcode produced in the current fusion group (no side-effecting
	// instruction between its definition and the current lowering point),
	// meaning it can be folded into the instruction currently being
	// lowered rather than forced into its own register.
	MatchInstr(def ValueDefinition, opcode ir.Opcode) bool
	// MatchInstrOneOf is MatchInstr generalized to a set of candidate
	// opcodes, returning the one that matched or ir.OpcodeInvalid.
	MatchInstrOneOf(def ValueDefinition, opcodes []ir.Opcode) ir.Opcode

	// MarkLowered records inst as already emitted (fused into an earlier
	// LowerInstr call) so the lowering loop skips it.
	MarkLowered(inst ir.Instruction)

	// FunctionABI returns the cached FunctionABI for sig, initializing it
	// against the Machine's ABIRegInfo on first use.
	FunctionABI(sig *ir.Signature) *FunctionABI[RegInfo]

	// AddRelocation records a relocation at the buffer's current offset
	// referencing a direct or indirect call target.
	AddRelocation(buf *mcode.Buffer, kind mcode.RelocationKind, funcRefName string, addend int64)
}

// compiler implements Compiler.
type compiler struct {
	mach Machine
	fn   *ir.Function

	currentGID int32
	groupID    map[ir.Instruction]int32

	nextVRegID      regalloc.VRegID
	valueToVReg     map[ir.ValueID]regalloc.VReg
	vregType        map[regalloc.VRegID]ir.Type
	valueRefCount   map[ir.ValueID]int
	valueDefInstr   map[ir.ValueID]ir.Instruction
	valueDefIndex   map[ir.ValueID]int
	returnVRegs     []regalloc.VReg
	alreadyLowered  map[ir.Instruction]struct{}
	rpo             []ir.BasicBlockID
	abis            map[ir.SigRef]*FunctionABI[RegInfo]
}

// NewCompiler returns a Compiler bound to mach, ready for Reset+Lower on
// successive functions. mach.SetCompiler is called once, here.
func NewCompiler(mach Machine) Compiler {
	c := &compiler{
		mach:           mach,
		groupID:        map[ir.Instruction]int32{},
		valueToVReg:    map[ir.ValueID]regalloc.VReg{},
		vregType:       map[regalloc.VRegID]ir.Type{},
		valueRefCount:  map[ir.ValueID]int{},
		valueDefInstr:  map[ir.ValueID]ir.Instruction{},
		valueDefIndex:  map[ir.ValueID]int{},
		alreadyLowered: map[ir.Instruction]struct{}{},
		abis:           map[ir.SigRef]*FunctionABI[RegInfo]{},
		nextVRegID:     regalloc.VRegIDNonReservedBegin,
	}
	mach.SetCompiler(c)
	return c
}

// Bind attaches fn as the function to compile next. Must be called after
// Reset and before Lower. Also hands the Machine fn's ABI so entry-block
// parameters and the return sequence can be lowered against the right
// argument/result registers.
func (c *compiler) Bind(fn *ir.Function) {
	c.fn = fn
	dt, err := ir.BuildDomTree(fn)
	if err != nil {
		panic(fmt.Sprintf("backend: %v", err))
	}
	c.rpo = dt.ReversePostOrder()
	c.mach.SetCurrentABI(c.FunctionABI(&fn.Signature))
}

func (c *compiler) Function() *ir.Function { return c.fn }

// Compile runs the full pipeline.
func (c *compiler) Compile(buf *mcode.Buffer) error {
	c.Lower()
	c.RegAlloc()
	return c.Finalize(buf)
}

// Lower assigns virtual registers then walks every block in reverse
// post order, lowering its instructions tail-to-head so a Machine can
// fuse a single-use producer directly into its one consumer.
func (c *compiler) Lower() {
	c.assignVirtualRegisters()
	c.computeGroupIDs()
	c.mach.StartFunction()
	for _, blk := range c.rpo {
		c.lowerBlock(blk)
	}
	c.mach.EndFunction()
}

func (c *compiler) lowerBlock(blk ir.BasicBlockID) {
	mach := c.mach
	mach.StartBlock(blk)

	layout := c.fn.LayoutView()
	cur := layout.LastInst(blk)

	var term, cond ir.Instruction = ir.InstructionInvalid, ir.InstructionInvalid
	if cur.Valid() {
		d := c.fn.DFG().InstructionData(cur)
		if d.Opcode().IsTerminator() {
			term = cur
			cur = layout.PrevInst(cur)
			if cur.Valid() {
				d2 := c.fn.DFG().InstructionData(cur)
				if d2.Opcode().IsConditionalBranch() {
					cond = cur
					cur = layout.PrevInst(cur)
				}
			}
		}
	}

	if cond.Valid() {
		c.currentGID = c.groupID[cond]
		mach.LowerConditionalBranch(cond, term)
	} else if term.Valid() {
		c.currentGID = c.groupID[term]
		mach.LowerSingleBranch(term)
	}

	for ; cur.Valid(); cur = layout.PrevInst(cur) {
		if _, ok := c.alreadyLowered[cur]; ok {
			continue
		}
		c.currentGID = c.groupID[cur]
		mach.LowerInstr(cur)
	}

	mach.EndBlock()
}

// computeGroupIDs assigns every instruction a fusion-group id: a forward
// walk over layout order that bumps the counter each time it crosses a
// side-effecting instruction. Two instructions in the same group have no
// side effect between them, so an operand defined in group G may still be
// folded into a consumer also in group G even though the lowering loop
// visits them tail-to-head.
func (c *compiler) computeGroupIDs() {
	for k := range c.groupID {
		delete(c.groupID, k)
	}
	var gid int32
	layout := c.fn.LayoutView()
	for blk := layout.FirstBlock(); blk.Valid(); blk = layout.NextBlock(blk) {
		for inst := layout.FirstInst(blk); inst.Valid(); inst = layout.NextInst(inst) {
			c.groupID[inst] = gid
			if c.fn.DFG().InstructionData(inst).Opcode().HasSideEffect() {
				gid++
			}
		}
	}
}

// assignVirtualRegisters allocates one VReg per block parameter and per
// instruction result reachable in fn, and records each result's refcount
// (how many instructions still use it) for MatchInstr's single-use check.
func (c *compiler) assignVirtualRegisters() {
	fn := c.fn
	layout := fn.LayoutView()

	for k := range c.valueToVReg {
		delete(c.valueToVReg, k)
	}
	for k := range c.valueRefCount {
		delete(c.valueRefCount, k)
	}
	for k := range c.valueDefInstr {
		delete(c.valueDefInstr, k)
	}
	for k := range c.valueDefIndex {
		delete(c.valueDefIndex, k)
	}
	c.returnVRegs = c.returnVRegs[:0]

	for blk := layout.FirstBlock(); blk.Valid(); blk = layout.NextBlock(blk) {
		for i, n := 0, fn.Params(blk); i < n; i++ {
			p := fn.Param(blk, i)
			c.valueToVReg[p.ID()] = c.AllocateVReg(p.Type())
		}
		for inst := layout.FirstInst(blk); inst.Valid(); inst = layout.NextInst(inst) {
			d := fn.DFG().InstructionData(inst)
			for i, r := range d.Results() {
				c.valueToVReg[r.ID()] = c.AllocateVReg(r.Type())
				c.valueDefInstr[r.ID()] = inst
				c.valueDefIndex[r.ID()] = i
			}
		}
	}

	// Count references: every instruction's inline and out-of-line operands.
	for blk := layout.FirstBlock(); blk.Valid(); blk = layout.NextBlock(blk) {
		for inst := layout.FirstInst(blk); inst.Valid(); inst = layout.NextInst(inst) {
			for _, v := range fn.DFG().Operands(inst) {
				c.valueRefCount[fn.DFG().ResolveValue(v).ID()]++
			}
		}
	}
}

func (c *compiler) AllocateVReg(typ ir.Type) regalloc.VReg {
	regType := regalloc.RegTypeOf(typ)
	r := regalloc.VReg(c.nextVRegID).SetRegType(regType)
	c.vregType[r.ID()] = typ
	c.nextVRegID++
	return r
}

func (c *compiler) ValueDefinition(v ir.Value) ValueDefinition {
	v = c.fn.DFG().ResolveValue(v)
	if inst, ok := c.valueDefInstr[v.ID()]; ok {
		return ValueDefinition{
			Instr:    inst,
			N:        c.valueDefIndex[v.ID()],
			RefCount: c.valueRefCount[v.ID()],
		}
	}
	return ValueDefinition{
		BlkParamVReg: c.valueToVReg[v.ID()],
		Instr:        ir.InstructionInvalid,
		RefCount:     c.valueRefCount[v.ID()],
	}
}

func (c *compiler) VRegOf(v ir.Value) regalloc.VReg {
	return c.valueToVReg[c.fn.DFG().ResolveValue(v).ID()]
}

func (c *compiler) TypeOf(v regalloc.VReg) ir.Type { return c.vregType[v.ID()] }

func (c *compiler) MatchInstr(def ValueDefinition, opcode ir.Opcode) bool {
	if !def.IsFromInstr() || def.RefCount >= 2 {
		return false
	}
	d := c.fn.DFG().InstructionData(def.Instr)
	return d.Opcode() == opcode && c.groupID[def.Instr] == c.currentGID
}

func (c *compiler) MatchInstrOneOf(def ValueDefinition, opcodes []ir.Opcode) ir.Opcode {
	if !def.IsFromInstr() || def.RefCount >= 2 || c.groupID[def.Instr] != c.currentGID {
		return ir.OpcodeInvalid
	}
	opcode := c.fn.DFG().InstructionData(def.Instr).Opcode()
	for _, op := range opcodes {
		if op == opcode {
			return opcode
		}
	}
	return ir.OpcodeInvalid
}

func (c *compiler) MarkLowered(inst ir.Instruction) { c.alreadyLowered[inst] = struct{}{} }

func (c *compiler) RegAlloc() { c.mach.RegAlloc() }

func (c *compiler) Finalize(buf *mcode.Buffer) error {
	c.mach.PostRegAlloc()
	return c.mach.Encode(buf)
}

func (c *compiler) Format() string { return c.mach.Format() }

func (c *compiler) Reset() {
	c.currentGID = 0
	c.nextVRegID = regalloc.VRegIDNonReservedBegin
	for k := range c.alreadyLowered {
		delete(c.alreadyLowered, k)
	}
	c.fn = nil
	c.mach.Reset()
}

func (c *compiler) FunctionABI(sig *ir.Signature) *FunctionABI[RegInfo] {
	if abi, ok := c.abis[sig.ID]; ok && abi.Initialized {
		return abi
	}
	abi := NewFunctionABI[RegInfo](c.mach.ABIRegInfo())
	abi.Init(sig)
	c.abis[sig.ID] = abi
	return abi
}

func (c *compiler) AddRelocation(buf *mcode.Buffer, kind mcode.RelocationKind, funcRefName string, addend int64) {
	buf.RecordRelocation(mcode.Relocation{
		Offset:      buf.CurrentOffset(),
		Kind:        kind,
		FuncRefName: funcRefName,
		Addend:      addend,
	})
}
