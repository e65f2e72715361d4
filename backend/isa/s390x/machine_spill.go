package s390x

import "github.com/joelreymont/machgen/backend/regalloc"

// spillSlotOffset returns v's byte offset within the spill area (sp-
// relative, positive, assigned on first spill). Every value class gets a
// uniform 8-byte slot: this backend's widest scalar is 64 bits and it
// never spills a vector value.
func (m *machine) spillSlotOffset(v regalloc.VReg) int64 {
	id := v.ID()
	if off, ok := m.spillSlots[id]; ok {
		return off
	}
	off := m.spillSlotSize
	m.spillSlotSize += 8
	m.spillSlots[id] = off
	return off
}

// insertSpillCode splices a spill store (store=true) or reload (store=
// false) of v immediately before or after at in the function's whole
// instruction list.
func (m *machine) insertSpillCode(v regalloc.VReg, at *instr, store, before bool) {
	off := m.spillSlotOffset(v)
	sp := vreg(rSP)

	var ins *instr
	if store {
		ins = &instr{kind: kindStore, rn: v, rm: sp, imm: off, size: 64}
	} else {
		ins = &instr{kind: kindLoad, rd: v, rn: sp, imm: off, size: 64}
	}

	if before {
		ins.prev = at.prev
		ins.next = at
		if at.prev != nil {
			at.prev.next = ins
		} else if m.head == at {
			m.head = ins
		}
		at.prev = ins
	} else {
		ins.next = at.next
		ins.prev = at
		if at.next != nil {
			at.next.prev = ins
		} else if m.tail == at {
			m.tail = ins
		}
		at.next = ins
	}

	for blk, head := range m.blockHead {
		if head == at && before {
			m.blockHead[blk] = ins
		}
	}
	for blk, tail := range m.blockTail {
		if tail == at && !before {
			m.blockTail[blk] = ins
		}
	}
}
