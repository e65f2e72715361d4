package ir

// Layout is the explicit total order on blocks and, within each block, on
// instructions — separate from the DFG arena's allocation order. It is
// represented as doubly-linked lists keyed by id (parallel slices indexed
// by Instruction/BasicBlockID), giving O(1) insert/remove/append without
// ever moving arena payloads.
type Layout struct {
	instPrev, instNext []Instruction
	instBlock          []BasicBlockID

	blockHead, blockTail []Instruction
	blockPrev, blockNext []BasicBlockID

	firstBlock, lastBlock BasicBlockID
}

func newLayout() *Layout {
	return &Layout{firstBlock: BasicBlockID(idNone), lastBlock: BasicBlockID(idNone)}
}

func (l *Layout) ensureInst(id Instruction) {
	for Instruction(len(l.instPrev)) <= id {
		l.instPrev = append(l.instPrev, InstructionInvalid)
		l.instNext = append(l.instNext, InstructionInvalid)
		l.instBlock = append(l.instBlock, BasicBlockID(idNone))
	}
}

func (l *Layout) ensureBlock(id BasicBlockID) {
	for BasicBlockID(len(l.blockHead)) <= id {
		l.blockHead = append(l.blockHead, InstructionInvalid)
		l.blockTail = append(l.blockTail, InstructionInvalid)
		l.blockPrev = append(l.blockPrev, BasicBlockID(idNone))
		l.blockNext = append(l.blockNext, BasicBlockID(idNone))
	}
}

// AppendBlock appends blk to the end of the function's block order.
func (l *Layout) AppendBlock(blk BasicBlockID) {
	l.ensureBlock(blk)
	if !l.firstBlock.Valid() {
		l.firstBlock = blk
		l.lastBlock = blk
		return
	}
	l.blockNext[l.lastBlock] = blk
	l.blockPrev[blk] = l.lastBlock
	l.lastBlock = blk
}

// RemoveBlock unlinks blk from the block order (used by dead-block
// elimination). The block's payload in the DFG arena is left in place;
// only its position in Layout is removed.
func (l *Layout) RemoveBlock(blk BasicBlockID) {
	prev, next := l.blockPrev[blk], l.blockNext[blk]
	if prev.Valid() {
		l.blockNext[prev] = next
	} else {
		l.firstBlock = next
	}
	if next.Valid() {
		l.blockPrev[next] = prev
	} else {
		l.lastBlock = prev
	}
}

// FirstBlock returns the first block in layout order, or an invalid id if
// the function has no blocks.
func (l *Layout) FirstBlock() BasicBlockID { return l.firstBlock }

// NextBlock returns the block laid out after blk.
func (l *Layout) NextBlock(blk BasicBlockID) BasicBlockID { return l.blockNext[blk] }

// AppendInstruction appends inst to the tail of blk's instruction list.
func (l *Layout) AppendInstruction(blk BasicBlockID, inst Instruction) {
	l.ensureInst(inst)
	l.instBlock[inst] = blk
	tail := l.blockHead[blk]
	if !tail.Valid() {
		l.blockHead[blk] = inst
		l.blockTail[blk] = inst
		return
	}
	tail = l.blockTail[blk]
	l.instNext[tail] = inst
	l.instPrev[inst] = tail
	l.blockTail[blk] = inst
}

// InsertInstructionBefore inserts inst immediately before at, in at's
// block.
func (l *Layout) InsertInstructionBefore(at, inst Instruction) {
	l.ensureInst(inst)
	blk := l.instBlock[at]
	l.instBlock[inst] = blk
	prev := l.instPrev[at]
	l.instNext[inst] = at
	l.instPrev[at] = inst
	l.instPrev[inst] = prev
	if prev.Valid() {
		l.instNext[prev] = inst
	} else {
		l.blockHead[blk] = inst
	}
}

// RemoveInstruction unlinks inst from its block's instruction list.
func (l *Layout) RemoveInstruction(inst Instruction) {
	blk := l.instBlock[inst]
	prev, next := l.instPrev[inst], l.instNext[inst]
	if prev.Valid() {
		l.instNext[prev] = next
	} else {
		l.blockHead[blk] = next
	}
	if next.Valid() {
		l.instPrev[next] = prev
	} else {
		l.blockTail[blk] = prev
	}
}

// FirstInst returns the first instruction of blk, or an invalid id if the
// block is empty.
func (l *Layout) FirstInst(blk BasicBlockID) Instruction { return l.blockHead[blk] }

// LastInst returns the last instruction of blk (its terminator, once the
// function is well-formed).
func (l *Layout) LastInst(blk BasicBlockID) Instruction { return l.blockTail[blk] }

// NextInst returns the instruction laid out after inst, within its block.
func (l *Layout) NextInst(inst Instruction) Instruction { return l.instNext[inst] }

// PrevInst returns the instruction laid out before inst, within its block.
func (l *Layout) PrevInst(inst Instruction) Instruction { return l.instPrev[inst] }

// BlockOf returns the block that lays out inst.
func (l *Layout) BlockOf(inst Instruction) BasicBlockID { return l.instBlock[inst] }
