package ir

// blockParam is one parameter of a basic block: the SSA-values-with-
// block-arguments equivalent of a PHI. "Parameter/param" is the
// declaration site in the block header; "argument/arg" is the value an
// incoming branch supplies for it.
type blockParam struct {
	value Value
	typ   Type
}

// predecessorInfo records one predecessor edge: the block jumping in, and
// the specific branch instruction responsible (a block can be a
// predecessor via more than one branch only through a br_table with
// repeated targets, which is legal).
type predecessorInfo struct {
	block  BasicBlockID
	branch Instruction
}

// BasicBlockData is the DFG arena payload for a block: its parameters and
// the predecessor/successor edges discovered by the CFG pass. Instruction
// and block *order* is not stored here — see Layout.
type BasicBlockData struct {
	params  []blockParam
	preds   []predecessorInfo
	succs   []BasicBlockID
	sealed  bool
	invalid bool

	// loopHeader is set by the loop-detection subpass (ir/loopinfo.go): a
	// block is a loop header if some predecessor is dominated by it (a
	// back edge).
	loopHeader bool
	// loopNestingDepth counts how many loop headers dominate this block's
	// own header chain (0 if not in any loop).
	loopNestingDepth int

	// reversePostOrder is assigned by the dominator pass and used to
	// answer isDominatedBy / intersect queries in O(1) without walking.
	reversePostOrder int
}

// AddParam declares a new parameter of type typ on block blk and returns
// its Value. Builder is responsible for wiring lastDefinitions so that
// later variable lookups resolve to it.
func (f *Function) AddParam(blk BasicBlockID, typ Type) Value {
	bd := f.dfg.block(blk)
	id := f.dfg.newValueID()
	v := valueWithType(id, typ)
	bd.params = append(bd.params, blockParam{value: v, typ: typ})
	f.dfg.setValue(id, ValueData{kind: valueDataBlockParam, blk: blk, paramIdx: len(bd.params) - 1, typ: typ})
	return v
}

// Params returns the number of parameters declared on blk.
func (f *Function) Params(blk BasicBlockID) int { return len(f.dfg.block(blk).params) }

// Param returns the Value of blk's i-th parameter.
func (f *Function) Param(blk BasicBlockID, i int) Value { return f.dfg.block(blk).params[i].value }

// Preds returns the number of predecessor edges recorded for blk (valid
// only after RunPasses / the CFG pass has executed).
func (f *Function) Preds(blk BasicBlockID) int { return len(f.dfg.block(blk).preds) }

// PredBlock returns the i-th predecessor block of blk.
func (f *Function) PredBlock(blk BasicBlockID, i int) BasicBlockID {
	return f.dfg.block(blk).preds[i].block
}

// Succs returns the successor blocks of blk, in program order (i.e.
// matching the order encoded by its terminator).
func (f *Function) Succs(blk BasicBlockID) []BasicBlockID { return f.dfg.block(blk).succs }

// EntryBlock reports whether blk is the function's entry block.
func (f *Function) EntryBlock(blk BasicBlockID) bool { return blk == f.entry }

// Sealed reports whether all of blk's predecessors are known (Builder
// tracking only; meaningless once RunPasses has executed).
func (f *Function) Sealed(blk BasicBlockID) bool { return f.dfg.block(blk).sealed }
