package arm64

import (
	"github.com/joelreymont/machgen/backend/regalloc"
	"github.com/joelreymont/machgen/ir"
)

// insertPrologueEpilogue finalizes the function's frame layout now that
// register allocation has fixed the spill area's size and the clobbered
// register set, then splices a prologue onto the very front of the
// function and an epilogue immediately before every return. Grounded on
// machine_pro_epi_logue.go's save-LR/FP, bump-SP, save-callee-saves,
// allocate-locals ordering; no pre/post-indexed stp/ldp since this
// backend's encoder only has the unsigned-immediate load/store form
// (instr_encoding.go's encodeLoadStoreImm), so each saved register gets
// its own str/ldr rather than a paired stp/ldp.
//
// Frame layout, SP-relative, low to high:
//
//	[0, calleeSavedSize)                      callee-saved register saves
//	[calleeSavedSize, +spillSlotSize)          register allocator spill slots
//	[..., +declared stack slots)               ir-declared stack slots
//	[frameSize-16, frameSize-8)                saved x29 (FP)
//	[frameSize-8, frameSize)                   saved x30 (LR)
//
// Spill code (machine_spill.go) and declared stack-slot accesses
// (lower.go's lowerStackLoad/lowerStackStore) are both emitted before
// this runs, with their imm fields relative to the start of their own
// region (0); this pass rebases them by the region's final base offset,
// which isn't known until the spill area's size and the clobbered set
// are both final.
func (m *machine) insertPrologueEpilogue() {
	spReg := regalloc.FromRealReg(xzrSp, regalloc.RegTypeInt)

	var toSave []regalloc.VReg
	for _, v := range m.clobbered {
		if m.regInfo.CalleeSavedRegisters[v.RealReg()] {
			toSave = append(toSave, v)
		}
	}
	calleeSavedSize := int64(8 * len(toSave))
	spillBase := calleeSavedSize
	stackSlotsBase := calleeSavedSize + m.spillSlotSize
	stackSlotsSize := m.stackSlotFrameOffset(ir.StackSlot(m.stackSlotCount()))
	frameSize := (calleeSavedSize + m.spillSlotSize + stackSlotsSize + 16 + 15) &^ 15
	fpOff := frameSize - 16
	lrOff := frameSize - 8
	m.frameSize = frameSize

	for i := m.head; i != nil; i = i.next {
		switch i.kind {
		case kindLoad:
			if i.rn == spReg {
				if i.frameSlot {
					i.imm += stackSlotsBase
				} else {
					i.imm += spillBase
				}
			}
		case kindStore:
			if i.rm == spReg {
				if i.frameSlot {
					i.imm += stackSlotsBase
				} else {
					i.imm += spillBase
				}
			}
		}
	}

	var rets []*instr
	for i := m.head; i != nil; i = i.next {
		if i.kind == kindRet {
			rets = append(rets, i)
		}
	}

	buildSaveRestore := func(load bool) []*instr {
		var seq []*instr
		for idx, v := range toSave {
			off := int64(idx) * 8
			isFloat := v.RegType() == regalloc.RegTypeFloat
			if load {
				seq = append(seq, &instr{kind: kindLoad, rd: v, rn: spReg, imm: off, size: 64, indirect: isFloat})
			} else {
				seq = append(seq, &instr{kind: kindStore, rn: v, rm: spReg, imm: off, size: 64, indirect: isFloat})
			}
		}
		return seq
	}

	x29r := regalloc.FromRealReg(x29, regalloc.RegTypeInt)
	x30r := regalloc.FromRealReg(x30, regalloc.RegTypeInt)

	for _, ret := range rets {
		var epilogue []*instr
		epilogue = append(epilogue, buildSaveRestore(true)...)
		epilogue = append(epilogue,
			&instr{kind: kindLoad, rd: x29r, rn: spReg, imm: fpOff, size: 64},
			&instr{kind: kindLoad, rd: x30r, rn: spReg, imm: lrOff, size: 64},
			&instr{kind: kindALURRI, aluOp: aluAdd, rd: spReg, rn: spReg, imm: frameSize, size: 64},
		)
		m.spliceBefore(epilogue, ret)
	}

	prologue := []*instr{
		{kind: kindALURRI, aluOp: aluSub, rd: spReg, rn: spReg, imm: frameSize, size: 64},
		{kind: kindStore, rn: x29r, rm: spReg, imm: fpOff, size: 64},
		{kind: kindStore, rn: x30r, rm: spReg, imm: lrOff, size: 64},
		{kind: kindALURRI, aluOp: aluAdd, rd: x29r, rn: spReg, imm: fpOff, size: 64},
	}
	prologue = append(prologue, buildSaveRestore(false)...)
	m.prependFunction(prologue)
}

// stackSlotCount returns how many stack slots the current function has
// declared, for sizing the frame's stack-slot region.
func (m *machine) stackSlotCount() int { return m.compiler.Function().DFG().NumStackSlots() }

// spliceBefore splices seq, a forward-ordered instruction group, into the
// function's whole instruction list immediately before at, rewriting
// m.head and whichever block's recorded head equals at (at may itself be
// the first instruction of its block, e.g. a block consisting solely of
// a return).
func (m *machine) spliceBefore(seq []*instr, at *instr) {
	if len(seq) == 0 {
		return
	}
	for j := 0; j < len(seq)-1; j++ {
		seq[j].next = seq[j+1]
		seq[j+1].prev = seq[j]
	}
	first, last := seq[0], seq[len(seq)-1]
	last.next = at
	first.prev = at.prev
	if at.prev != nil {
		at.prev.next = first
	} else if m.head == at {
		m.head = first
	}
	at.prev = last

	for blk, head := range m.blockHead {
		if head == at {
			m.blockHead[blk] = first
		}
	}
}

// prependFunction splices seq onto the very front of the function's whole
// instruction list, ahead of the entry block's recorded head. Left
// deliberately distinct from spliceBefore: the entry block's own
// blockHead must keep pointing at its first real instruction so encode
// binds that block's label right after the prologue, not at its start.
func (m *machine) prependFunction(seq []*instr) {
	if len(seq) == 0 {
		return
	}
	for j := 0; j < len(seq)-1; j++ {
		seq[j].next = seq[j+1]
		seq[j+1].prev = seq[j]
	}
	last := seq[len(seq)-1]
	last.next = m.head
	if m.head != nil {
		m.head.prev = last
	}
	m.head = seq[0]
	if m.tail == nil {
		m.tail = last
	}
}
