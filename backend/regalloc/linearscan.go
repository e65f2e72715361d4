package regalloc

import "sort"

// LinearScanAllocator implements the classic Poletto & Sarkar active-set
// linear-scan algorithm: intervals sorted by start, an active list capped
// at the number of allocatable registers, spill-the-interval-that-ends-
// latest when the active set is full. Not present in wazero, which
// ships only the backtracking allocator; both are useful to have, so
// this is built fresh sharing VReg/RealReg/RegisterInfo/Function with
// BacktrackingAllocator so both satisfy the one allocator contract used by
// backend.Compiler.
type LinearScanAllocator struct {
	regInfo *RegisterInfo
	tree    IntervalTree

	blockInfos map[int]*btBlockInfo
	nodeByID   map[VRegID]*LiveInterval
}

// NewLinearScanAllocator returns a linear-scan allocator.
func NewLinearScanAllocator(regInfo *RegisterInfo) *LinearScanAllocator {
	return &LinearScanAllocator{
		regInfo:    regInfo,
		blockInfos: map[int]*btBlockInfo{},
		nodeByID:   map[VRegID]*LiveInterval{},
	}
}

// Allocate performs register allocation on f using linear scan. Reuses the
// same liveness construction as BacktrackingAllocator (defs/lastUses/kills
// propagated across preds) since both allocators need identical live-range
// information; only the coloring strategy differs.
func (a *LinearScanAllocator) Allocate(f Function) {
	bt := &BacktrackingAllocator{
		regInfo:         a.regInfo,
		allocatableSet:  map[RealReg]struct{}{},
		allocatedRegSet: map[RealReg]struct{}{},
		vRegIDToNode:    map[VRegID]*btNode{},
		blockInfos:      a.blockInfos,
		degree:          map[*btNode]int{},
		aliveSet:        map[*btNode]struct{}{},
	}
	for _, regs := range a.regInfo.AllocatableRegisters {
		for _, r := range regs {
			bt.allocatableSet[r] = struct{}{}
		}
	}
	bt.livenessAnalysis(f)

	var intervals []*LiveInterval
	const maxPC = programCounter(1) << 62
	for _, bi := range a.blockInfos {
		for v := range bi.liveIns {
			begin, end := programCounter(0), bi.kills[v]
			if _, ok := bi.liveOuts[v]; ok {
				end = maxPC
			}
			intervals = append(intervals, a.mergeInterval(v, begin, end))
		}
		for v, defPos := range bi.defs {
			end := defPos
			if _, ok := bi.liveOuts[v]; ok {
				end = maxPC
			} else if k, ok := bi.kills[v]; ok {
				end = k
			}
			intervals = append(intervals, a.mergeInterval(v, defPos, end))
		}
	}

	byType := [NumRegType][]*LiveInterval{}
	for _, iv := range a.nodeByID {
		byType[iv.V.RegType()] = append(byType[iv.V.RegType()], iv)
	}
	var clobbered []VReg
	for rt := RegType(1); rt < NumRegType; rt++ {
		clobbered = append(clobbered, a.scan(byType[rt], a.regInfo.AllocatableRegisters[rt])...)
	}

	a.rewrite(f)
	f.ClobberedRegisters(clobbered)
	f.Done()
}

// mergeInterval widens v's recorded interval to cover [begin,end], creating
// it on first sight; a VReg spans multiple blocks so later merges extend
// rather than replace the stored range.
func (a *LinearScanAllocator) mergeInterval(v VReg, begin, end programCounter) *LiveInterval {
	iv, ok := a.nodeByID[v.ID()]
	if !ok {
		iv = &LiveInterval{V: v, Begin: begin, End: end, Assigned: RealRegInvalid}
		a.nodeByID[v.ID()] = iv
		return iv
	}
	if begin < iv.Begin {
		iv.Begin = begin
	}
	if end > iv.End {
		iv.End = end
	}
	return iv
}

// scan runs the active-set sweep for one register class, returning, once
// each, the pre-colored VReg of every callee-saved real register it
// assigned.
func (a *LinearScanAllocator) scan(intervals []*LiveInterval, allocatable []RealReg) []VReg {
	sort.Slice(intervals, func(i, j int) bool { return intervals[i].Begin < intervals[j].Begin })

	var active []*LiveInterval
	freeRegs := append([]RealReg(nil), allocatable...)
	var clobbered []VReg
	seen := map[RealReg]bool{}
	clobber := func(r RealReg) {
		if a.regInfo.isCalleeSaved(r) && !seen[r] {
			seen[r] = true
			clobbered = append(clobbered, a.regInfo.RealRegToVReg[r])
		}
	}

	for _, iv := range intervals {
		// Expire intervals that ended before iv begins, returning their
		// registers to the free list.
		kept := active[:0]
		for _, a2 := range active {
			if a2.End < iv.Begin {
				freeRegs = append(freeRegs, a2.Assigned)
			} else {
				kept = append(kept, a2)
			}
		}
		active = kept

		if len(freeRegs) == 0 {
			// Spill the active interval ending latest if it's worse than
			// iv; otherwise spill iv itself.
			sort.Slice(active, func(i, j int) bool { return active[i].End < active[j].End })
			longest := active[len(active)-1]
			if longest.End > iv.End {
				iv.Assigned = longest.Assigned
				longest.Assigned = RealRegInvalid
				longest.Spilled = true
				active[len(active)-1] = iv
				a.tree.Insert(iv)
				clobber(iv.Assigned)
				continue
			}
			iv.Spilled = true
			a.tree.Insert(iv)
			continue
		}

		iv.Assigned = freeRegs[len(freeRegs)-1]
		freeRegs = freeRegs[:len(freeRegs)-1]
		active = append(active, iv)
		a.tree.Insert(iv)
		clobber(iv.Assigned)
	}
	return clobbered
}

// rewrite walks the function a final time, substituting each use/def with
// its colored register or a spill load/store.
func (a *LinearScanAllocator) rewrite(f Function) {
	var pc programCounter
	for blk := f.ReversePostOrderBlockIteratorBegin(); blk != nil; blk = f.ReversePostOrderBlockIteratorNext() {
		for instr := blk.InstrIteratorBegin(); instr != nil; instr = blk.InstrIteratorNext() {
			uses := instr.Uses()
			newUses := make([]VReg, len(uses))
			for i, u := range uses {
				if u.IsRealReg() {
					newUses[i] = u
					continue
				}
				iv := a.nodeByID[u.ID()]
				if iv == nil || iv.Spilled {
					scratch := u.SetRealReg(a.regInfo.ScratchRegisters[u.RegType()])
					f.ReloadRegisterBefore(scratch, instr)
					newUses[i] = scratch
					continue
				}
				newUses[i] = u.SetRealReg(iv.Assigned)
			}
			instr.AssignUses(newUses)

			if defs := instr.Defs(); len(defs) == 1 && !defs[0].IsRealReg() {
				d := defs[0]
				iv := a.nodeByID[d.ID()]
				if iv != nil && !iv.Spilled {
					assigned := d.SetRealReg(iv.Assigned)
					instr.AssignDef(assigned)
				} else {
					scratch := d.SetRealReg(a.regInfo.ScratchRegisters[d.RegType()])
					instr.AssignDef(scratch)
					f.StoreRegisterAfter(scratch, instr)
				}
			}
			pc += pcStride
		}
	}
}
