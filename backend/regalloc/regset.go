package regalloc

import "strings"

// RegSet is a small bitset of RealReg, used to report clobbered/allocatable
// register sets without allocating.
type RegSet uint64

// NewRegSet builds a RegSet containing regs.
func NewRegSet(regs ...RealReg) RegSet {
	var ret RegSet
	for _, r := range regs {
		ret = ret.add(r)
	}
	return ret
}

func (rs RegSet) has(r RealReg) bool { return rs&(1<<uint(r)) != 0 }

func (rs RegSet) add(r RealReg) RegSet {
	if r >= 64 {
		return rs
	}
	return rs | 1<<uint(r)
}

// Range calls f for every register present in rs, in ascending order.
func (rs RegSet) Range(f func(r RealReg)) {
	for i := 0; i < 64; i++ {
		if rs&(1<<uint(i)) != 0 {
			f(RealReg(i))
		}
	}
}

func (rs RegSet) format(info *RegisterInfo) string {
	var ret []string
	rs.Range(func(r RealReg) { ret = append(ret, info.RealRegName(r)) })
	return strings.Join(ret, ", ")
}

// RegisterInfo holds the statically-known ISA-specific register description
// both allocators need: which real registers are available to color into,
// and which of those the calling convention treats as callee- versus
// caller-saved.
type RegisterInfo struct {
	// AllocatableRegisters lists, per RegType, the real registers the
	// allocator may assign, most-preferred first.
	AllocatableRegisters [NumRegType][]RealReg
	CalleeSavedRegisters map[RealReg]bool
	CallerSavedRegisters map[RealReg]bool
	// RealRegToVReg maps a RealReg to the canonical pre-colored VReg that
	// names it, for use in ClobberedRegisters reports.
	RealRegToVReg []VReg
	// RealRegName names a RealReg for diagnostics.
	RealRegName func(r RealReg) string
	// ScratchRegisters holds, per RegType, a register reserved out of
	// AllocatableRegisters for LinearScanAllocator to materialize a
	// spilled value into at its use site (linear scan's single forward
	// pass has no backtracking room to evict a neighbor the way
	// BacktrackingAllocator's spill handler does).
	ScratchRegisters [NumRegType]RealReg
}

func (r *RegisterInfo) isCalleeSaved(reg RealReg) bool { return r.CalleeSavedRegisters[reg] }
func (r *RegisterInfo) isCallerSaved(reg RealReg) bool { return r.CallerSavedRegisters[reg] }
