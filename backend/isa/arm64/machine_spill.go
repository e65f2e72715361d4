package arm64

import "github.com/joelreymont/machgen/backend/regalloc"

// spillSlotOffset returns v's byte offset within the spill area (SP-
// relative, positive, assigned the first time v is spilled), allocating a
// fresh 8-byte-aligned slot if this is v's first spill. Every class of
// value (GPR, FPR/vector) gets a uniform 8-byte slot: this backend never
// spills a 128-bit vector value, since none of its lowering rules keep a
// vector live across a call or other spill-inducing boundary.
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
	sp := regalloc.FromRealReg(xzrSp, regalloc.RegTypeInt)

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
