package amd64

import (
	"github.com/joelreymont/machgen/backend/regalloc"
	"github.com/joelreymont/machgen/ir"
)

// insertPrologueEpilogue finalizes the frame now that register allocation
// has fixed the spill area's size and the clobbered set, then splices a
// prologue onto the function's front and an epilogue before every ret.
// Simpler than arm64's: CALL/RET already push/pop the return address, so
// there is no link register to save, and no frame pointer chain is kept
// (rbp is treated as an ordinary callee-saved GPR, not a dedicated FP).
//
// Frame layout, rsp-relative, low to high:
//
//	[0, calleeSavedSize)                callee-saved register saves
//	[calleeSavedSize, +spillSlotSize)   register allocator spill slots
//	[..., frameSize)                    ir-declared stack slots
func (m *machine) insertPrologueEpilogue() {
	sp := vreg(rsp)

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
	frameSize := (calleeSavedSize + m.spillSlotSize + stackSlotsSize + 15) &^ 15
	m.frameSize = frameSize

	for i := m.head; i != nil; i = i.next {
		switch i.kind {
		case kindLoad:
			if i.rn == sp {
				if i.frameSlot {
					i.imm += stackSlotsBase
				} else {
					i.imm += spillBase
				}
			}
		case kindStore:
			if i.rm == sp {
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
			if load {
				seq = append(seq, &instr{kind: kindLoad, rd: v, rn: sp, imm: off, size: 64})
			} else {
				seq = append(seq, &instr{kind: kindStore, rn: v, rm: sp, imm: off, size: 64})
			}
		}
		return seq
	}

	for _, ret := range rets {
		var epilogue []*instr
		epilogue = append(epilogue, buildSaveRestore(true)...)
		if frameSize != 0 {
			epilogue = append(epilogue, &instr{kind: kindALURI, aluOp: aluAdd, rd: sp, rn: sp, imm: frameSize, size: 64})
		}
		m.spliceBefore(epilogue, ret)
	}

	var prologue []*instr
	if frameSize != 0 {
		prologue = append(prologue, &instr{kind: kindALURI, aluOp: aluSub, rd: sp, rn: sp, imm: frameSize, size: 64})
	}
	prologue = append(prologue, buildSaveRestore(false)...)
	m.prependFunction(prologue)
}

// stackSlotCount returns how many stack slots the current function has
// declared.
func (m *machine) stackSlotCount() int { return m.compiler.Function().DFG().NumStackSlots() }

// spliceBefore splices seq, a forward-ordered instruction group, into the
// function's whole instruction list immediately before at.
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
// instruction list, ahead of the entry block's recorded head.
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
