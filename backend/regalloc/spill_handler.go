package regalloc

// spillHandler picks a free real register at a program point, or evicts an
// active one, when more values are simultaneously live than there are
// registers to hold them. Grounded directly on
// backend/regalloc/spill_handler.go, adapted to operate on *LiveInterval
// instead of wazero's *node.
type spillHandler struct {
	activeRegs   map[RealReg]spillHandlerRegState
	deleteTemp   []RealReg
	beingUsedNow map[RealReg]struct{}
}

type spillHandlerRegState struct {
	state    int
	interval *LiveInterval
}

const (
	spillHandlerRegStateUsed = iota
	spillHandlerRegStateEvictable
	spillHandlerRegStateEvicted
	spillHandlerRegStateBeingUsedNow
)

// init prepares the handler to serve requests at instr, given the set of
// intervals currently alive. Registers instr's own fixed-register uses are
// marked beingUsedNow so they're never picked as an eviction target for
// servicing instr's own spilled operands.
func (s *spillHandler) init(active []*LiveInterval, instr Instr) {
	if s.beingUsedNow == nil {
		s.beingUsedNow = make(map[RealReg]struct{})
	} else {
		s.deleteTemp = s.deleteTemp[:0]
		for r := range s.beingUsedNow {
			s.deleteTemp = append(s.deleteTemp, r)
		}
		for _, r := range s.deleteTemp {
			delete(s.beingUsedNow, r)
		}
	}
	for _, u := range instr.Uses() {
		if u.IsRealReg() {
			s.beingUsedNow[u.RealReg()] = struct{}{}
		}
	}

	if s.activeRegs == nil {
		s.activeRegs = make(map[RealReg]spillHandlerRegState)
	} else {
		s.deleteTemp = s.deleteTemp[:0]
		for r := range s.activeRegs {
			s.deleteTemp = append(s.deleteTemp, r)
		}
		for _, r := range s.deleteTemp {
			delete(s.activeRegs, r)
		}
	}
	for _, iv := range active {
		r := iv.Assigned
		if _, ok := s.beingUsedNow[r]; ok {
			s.activeRegs[r] = spillHandlerRegState{interval: iv, state: spillHandlerRegStateBeingUsedNow}
		} else {
			s.activeRegs[r] = spillHandlerRegState{interval: iv, state: spillHandlerRegStateEvictable}
		}
	}
}

// getUnusedOrEvictReg returns a free register of regType, or evicts an
// evictable active one if none is free.
func (s *spillHandler) getUnusedOrEvictReg(regType RegType, regInfo *RegisterInfo) (r RealReg, evicted *LiveInterval) {
	allocatable := regInfo.AllocatableRegisters[regType]
	for _, candidate := range allocatable {
		if _, ok := s.activeRegs[candidate]; !ok {
			r = candidate
			s.activeRegs[candidate] = spillHandlerRegState{state: spillHandlerRegStateUsed}
			return
		}
	}
	for _, candidate := range allocatable {
		state, ok := s.activeRegs[candidate]
		if !ok {
			continue
		}
		if state.state == spillHandlerRegStateEvictable {
			evicted = state.interval
			r = candidate
			s.activeRegs[candidate] = spillHandlerRegState{interval: state.interval, state: spillHandlerRegStateEvicted}
			return
		}
	}
	return
}
