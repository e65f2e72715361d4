package regalloc

import "fmt"

// VerifyError reports a register allocation that violates its own
// invariants: two live ranges colored into the same real register while
// their lifetimes overlap. Not present in wazero, which trusts its
// allocator's output unchecked; built fresh here as an explicit
// post-allocation checker so BacktrackingAllocator and LinearScanAllocator
// share one correctness gate instead of each trusting its own bookkeeping.
type VerifyError struct {
	Reg           RealReg
	First, Second VReg
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("regalloc: %s and %s both colored into %s with overlapping live ranges",
		e.First, e.Second, e.Reg)
}

// Verify walks f after allocation has rewritten every use/def to a real
// register and confirms no two values assigned the same register are ever
// simultaneously live. It rebuilds live ranges from the rewritten
// instruction stream itself, so it catches mistakes in either allocator
// rather than re-checking the allocator's own intermediate state.
func Verify(f Function) error {
	byReg := map[RealReg][]*LiveInterval{}
	open := map[VRegID]*LiveInterval{}

	var pc programCounter
	for blk := f.ReversePostOrderBlockIteratorBegin(); blk != nil; blk = f.ReversePostOrderBlockIteratorNext() {
		for instr := blk.InstrIteratorBegin(); instr != nil; instr = blk.InstrIteratorNext() {
			for _, u := range instr.Uses() {
				if !u.IsRealReg() {
					continue
				}
				iv, ok := open[u.ID()]
				if !ok {
					iv = &LiveInterval{V: u, Begin: pc + pcUseOffset, Assigned: u.RealReg()}
					open[u.ID()] = iv
					byReg[u.RealReg()] = append(byReg[u.RealReg()], iv)
				}
				iv.End = pc + pcUseOffset
			}
			if defs := instr.Defs(); len(defs) == 1 && defs[0].IsRealReg() {
				d := defs[0]
				iv := &LiveInterval{V: d, Begin: pc + pcDefOffset, End: pc + pcDefOffset, Assigned: d.RealReg()}
				open[d.ID()] = iv
				byReg[d.RealReg()] = append(byReg[d.RealReg()], iv)
			}
			pc += pcStride
		}
	}

	for reg, intervals := range byReg {
		tree := IntervalTree{}
		for _, iv := range intervals {
			var hits []*LiveInterval
			hits = tree.QueryPoint(iv.Begin, hits[:0])
			for _, o := range hits {
				if o.V.ID() != iv.V.ID() && o.overlaps(iv) {
					return &VerifyError{Reg: reg, First: o.V, Second: iv.V}
				}
			}
			tree.Insert(iv)
		}
	}
	return nil
}
