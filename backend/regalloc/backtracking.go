package regalloc

// References:
// * https://en.wikipedia.org/wiki/Chaitin%27s_algorithm
// * https://pfalcon.github.io/ssabook/latest/book-full.pdf, chapter 9, for
//   the liveness analysis this is built on.
//
// BacktrackingAllocator is grounded directly on
// backend/regalloc/regalloc.go + coloring.go + assign.go: build per-block
// liveness by backward propagation through predecessors, turn live ranges
// into an interference graph, color it with Chaitin's degree-based
// simplify/spill/select algorithm, then walk the function again assigning
// the chosen colors and inserting spill code where coloring gave up.
//
// Differences from wazero: this module's Instr interface assigns all
// of an instruction's uses in one call (AssignUses) rather than by index,
// so the second pass builds a full replacement slice per instruction
// instead of patching individual operands; and node storage uses plain
// maps instead of a pool allocator, trading peak throughput for simpler,
// directly auditable code.
type BacktrackingAllocator struct {
	regInfo         *RegisterInfo
	allocatableSet  map[RealReg]struct{}
	allocatedRegSet map[RealReg]struct{}

	vRegIDToNode map[VRegID]*btNode
	blockInfos   map[int]*btBlockInfo

	spill spillHandler
	vs    []VReg

	// scratch buffers reused across coloring/assignment to avoid per-call
	// allocation.
	nodesByType []*btNode
	stack       []*btNode
	degree      map[*btNode]int
	aliveSet    map[*btNode]struct{}
}

// NewBacktrackingAllocator returns an allocator using Chaitin's algorithm.
func NewBacktrackingAllocator(regInfo *RegisterInfo) *BacktrackingAllocator {
	return &BacktrackingAllocator{
		regInfo:         regInfo,
		allocatableSet:  map[RealReg]struct{}{},
		allocatedRegSet: map[RealReg]struct{}{},
		vRegIDToNode:    map[VRegID]*btNode{},
		blockInfos:      map[int]*btBlockInfo{},
		degree:          map[*btNode]int{},
		aliveSet:        map[*btNode]struct{}{},
	}
}

type btNode struct {
	v         VReg
	ranges    []btLiveRange
	r         RealReg
	neighbors map[*btNode]struct{}

	copyFromReal, copyToReal RealReg
	copyFromVReg, copyToVReg *btNode
}

func (n *btNode) spilled() bool { return n.r == RealRegInvalid }

type btLiveRange struct {
	blockID    int
	begin, end programCounter
}

func (l btLiveRange) intersects(o btLiveRange) bool { return o.begin <= l.end && l.begin <= o.end }

type btLiveNodeInBlock struct {
	rangeIndex int
	n          *btNode
}

type btBlockInfo struct {
	liveIns, liveOuts               map[VReg]struct{}
	defs, lastUses, kills           map[VReg]programCounter
	realRegUses, realRegDefs        map[VReg][]programCounter
	liveNodes                       []btLiveNodeInBlock
}

func newBtBlockInfo() *btBlockInfo {
	return &btBlockInfo{
		liveIns:     map[VReg]struct{}{},
		liveOuts:    map[VReg]struct{}{},
		defs:        map[VReg]programCounter{},
		lastUses:    map[VReg]programCounter{},
		kills:       map[VReg]programCounter{},
		realRegUses: map[VReg][]programCounter{},
		realRegDefs: map[VReg][]programCounter{},
	}
}

func (i *btBlockInfo) addRealRegUsage(v VReg, pc programCounter) {
	if len(i.realRegDefs[v]) == 0 {
		i.realRegDefs[v] = append(i.realRegDefs[v], 0)
	}
	i.realRegUses[v] = append(i.realRegUses[v], pc)
}

// Allocate performs register allocation on f using Chaitin's algorithm.
func (a *BacktrackingAllocator) Allocate(f Function) {
	for k := range a.allocatableSet {
		delete(a.allocatableSet, k)
	}
	for _, regs := range a.regInfo.AllocatableRegisters {
		for _, r := range regs {
			a.allocatableSet[r] = struct{}{}
		}
	}
	a.livenessAnalysis(f)
	a.buildLiveRanges(f)
	a.buildNeighbors(f)
	a.coloring()
	a.determineCalleeSavedRealRegs(f)
	a.assignRegisters(f)
	f.Done()
}

func (a *BacktrackingAllocator) blockInfo(id int) *btBlockInfo {
	bi, ok := a.blockInfos[id]
	if !ok {
		bi = newBtBlockInfo()
		a.blockInfos[id] = bi
	}
	return bi
}

func (a *BacktrackingAllocator) getOrAllocateNode(v VReg) *btNode {
	if n, ok := a.vRegIDToNode[v.ID()]; ok {
		return n
	}
	n := &btNode{v: v, r: RealRegInvalid, neighbors: map[*btNode]struct{}{},
		copyFromReal: RealRegInvalid, copyToReal: RealRegInvalid}
	a.vRegIDToNode[v.ID()] = n
	return n
}

func (a *BacktrackingAllocator) recordCopyRelation(dst, src VReg) {
	sr, dr := src.IsRealReg(), dst.IsRealReg()
	switch {
	case sr && dr:
	case !sr && !dr:
		dstN, srcN := a.getOrAllocateNode(dst), a.getOrAllocateNode(src)
		dstN.copyFromVReg, srcN.copyToVReg = srcN, dstN
	case sr && !dr:
		a.getOrAllocateNode(dst).copyFromReal = src.RealReg()
	case !sr && dr:
		a.getOrAllocateNode(src).copyToReal = dst.RealReg()
	}
}

// livenessAnalysis builds each block's defs/lastUses/kills and propagates
// liveIns/liveOuts backward across predecessors (Algorithm 9.9/9.10 of the
// SSA book wazero cites).
func (a *BacktrackingAllocator) livenessAnalysis(f Function) {
	var vs []VReg
	for blk := f.PostOrderBlockIteratorBegin(); blk != nil; blk = f.PostOrderBlockIteratorNext() {
		info := a.blockInfo(blk.ID())
		var pc programCounter
		for instr := blk.InstrIteratorBegin(); instr != nil; instr = blk.InstrIteratorNext() {
			var srcVR, dstVR VReg
			for _, use := range instr.Uses() {
				srcVR = use
				pos := pc + pcUseOffset
				if use.IsRealReg() {
					info.addRealRegUsage(use, pos)
				} else {
					info.lastUses[use] = pos
				}
			}
			for _, def := range instr.Defs() {
				dstVR = def
				pos := pc + pcDefOffset
				if def.IsRealReg() {
					info.realRegDefs[def] = append(info.realRegDefs[def], pos)
				} else {
					if _, ok := info.defs[def]; !ok {
						info.defs[def] = pos
						vs = append(vs, def)
					}
				}
			}
			if instr.IsCopy() {
				a.recordCopyRelation(dstVR, srcVR)
			}
			pc += pcStride
		}
	}

	for _, v := range vs {
		for blk := f.PostOrderBlockIteratorBegin(); blk != nil; blk = f.PostOrderBlockIteratorNext() {
			info := a.blockInfo(blk.ID())
			if _, ok := info.lastUses[v]; !ok {
				continue
			}
			a.upAndMarkStack(blk, v)
		}
	}

	for blk := f.PostOrderBlockIteratorBegin(); blk != nil; blk = f.PostOrderBlockIteratorNext() {
		info := a.blockInfo(blk.ID())
		for use, pc := range info.lastUses {
			if _, ok := info.liveOuts[use]; !ok {
				info.kills[use] = pc
			}
		}
	}
}

func (a *BacktrackingAllocator) upAndMarkStack(b Block, v VReg) {
	info := a.blockInfo(b.ID())
	if _, ok := info.defs[v]; ok {
		return
	}
	if _, ok := info.liveIns[v]; ok {
		return
	}
	info.liveIns[v] = struct{}{}
	for _, pred := range b.Preds() {
		a.blockInfo(pred.ID()).liveOuts[v] = struct{}{}
		a.upAndMarkStack(pred, v)
	}
}

func (a *BacktrackingAllocator) buildLiveRanges(f Function) {
	for blk := f.PostOrderBlockIteratorBegin(); blk != nil; blk = f.PostOrderBlockIteratorNext() {
		blkID := blk.ID()
		info := a.blockInfo(blkID)
		a.buildLiveRangesForNonReals(blkID, info)
		a.buildLiveRangesForReals(blkID, info)
	}
}

func (a *BacktrackingAllocator) buildLiveRangesForNonReals(blkID int, info *btBlockInfo) {
	const maxPC = programCounter(1) << 62
	for v := range info.liveIns {
		var begin, end programCounter
		if _, ok := info.liveOuts[v]; ok {
			begin, end = 0, maxPC
		} else {
			begin, end = 0, info.kills[v]
		}
		n := a.getOrAllocateNode(v)
		idx := len(n.ranges)
		n.ranges = append(n.ranges, btLiveRange{blockID: blkID, begin: begin, end: end})
		info.liveNodes = append(info.liveNodes, btLiveNodeInBlock{idx, n})
	}
	for v, defPos := range info.defs {
		var end programCounter
		if _, ok := info.liveOuts[v]; ok {
			end = maxPC
		} else if killPos, ok := info.kills[v]; ok {
			end = killPos
		} else {
			end = defPos
		}
		n := a.getOrAllocateNode(v)
		idx := len(n.ranges)
		n.ranges = append(n.ranges, btLiveRange{blockID: blkID, begin: defPos, end: end})
		info.liveNodes = append(info.liveNodes, btLiveNodeInBlock{idx, n})
	}
}

func (a *BacktrackingAllocator) buildLiveRangesForReals(blkID int, info *btBlockInfo) {
	for v, uses := range info.realRegUses {
		if _, ok := a.allocatableSet[v.RealReg()]; !ok {
			continue
		}
		defs := info.realRegDefs[v]
		n := len(uses)
		if len(defs) < n {
			n = len(defs)
		}
		for i := 0; i < n; i++ {
			nd := &btNode{v: v, r: v.RealReg(), neighbors: map[*btNode]struct{}{},
				copyFromReal: RealRegInvalid, copyToReal: RealRegInvalid}
			nd.ranges = append(nd.ranges, btLiveRange{blockID: blkID, begin: defs[i], end: uses[i]})
			info.liveNodes = append(info.liveNodes, btLiveNodeInBlock{0, nd})
		}
	}
}

func (a *BacktrackingAllocator) buildNeighbors(f Function) {
	for blk := f.PostOrderBlockIteratorBegin(); blk != nil; blk = f.PostOrderBlockIteratorNext() {
		lives := a.blockInfo(blk.ID()).liveNodes
		for i, src := range lives {
			if i == len(lives)-1 {
				break
			}
			srcRange := src.n.ranges[src.rangeIndex]
			for _, dst := range lives[i+1:] {
				if dst.n == src.n {
					continue
				}
				dstRange := dst.n.ranges[dst.rangeIndex]
				if src.n.v.RegType() == dst.n.v.RegType() && srcRange.intersects(dstRange) {
					src.n.neighbors[dst.n] = struct{}{}
					dst.n.neighbors[src.n] = struct{}{}
				}
			}
		}
	}
}

// coloring runs Chaitin's simplify/spill/select algorithm once per
// RegType, since the two classes' interference graphs are disjoint.
func (a *BacktrackingAllocator) coloring() {
	a.colorForType(RegTypeInt)
	a.colorForType(RegTypeFloat)
}

func (a *BacktrackingAllocator) colorForType(rt RegType) {
	a.nodesByType = a.nodesByType[:0]
	for _, n := range a.vRegIDToNode {
		if n.v.RegType() == rt {
			a.nodesByType = append(a.nodesByType, n)
		}
	}
	allocatable := a.regInfo.AllocatableRegisters[rt]
	numAllocatable := len(allocatable)

	for k := range a.degree {
		delete(a.degree, k)
	}
	for _, n := range a.nodesByType {
		a.degree[n] = len(n.neighbors)
	}

	remaining := append([]*btNode(nil), a.nodesByType...)
	a.stack = a.stack[:0]
	for len(remaining) > 0 {
		popIdx := -1
		for i, n := range remaining {
			if a.degree[n] < numAllocatable {
				popIdx = i
				break
			}
		}
		if popIdx < 0 {
			popIdx = len(remaining) - 1
		}
		popped := remaining[popIdx]
		remaining[popIdx] = remaining[len(remaining)-1]
		remaining = remaining[:len(remaining)-1]
		a.stack = append(a.stack, popped)
		for neighbor := range popped.neighbors {
			a.degree[neighbor]--
		}
	}

	neighborColors := map[RealReg]struct{}{}
	for i := len(a.stack) - 1; i >= 0; i-- {
		n := a.stack[i]
		if n.r != RealRegInvalid {
			continue
		}
		for k := range neighborColors {
			delete(neighborColors, k)
		}
		for neighbor := range n.neighbors {
			if neighbor.r != RealRegInvalid {
				neighborColors[neighbor.r] = struct{}{}
			}
		}
		a.assignColor(n, neighborColors, allocatable)
	}
}

func (a *BacktrackingAllocator) assignColor(n *btNode, used map[RealReg]struct{}, allocatable []RealReg) {
	tryPreferred := func(r RealReg) bool {
		if r == RealRegInvalid {
			return false
		}
		if _, ok := a.allocatableSet[r]; !ok {
			return false
		}
		if _, ok := used[r]; ok {
			return false
		}
		n.r = r
		a.allocatedRegSet[r] = struct{}{}
		return true
	}
	if cfv := n.copyFromVReg; cfv != nil && tryPreferred(cfv.r) {
		return
	}
	if ctv := n.copyToVReg; ctv != nil && tryPreferred(ctv.r) {
		return
	}
	if tryPreferred(n.copyFromReal) {
		return
	}
	if tryPreferred(n.copyToReal) {
		return
	}
	for _, r := range allocatable {
		if _, ok := used[r]; !ok {
			n.r = r
			a.allocatedRegSet[r] = struct{}{}
			return
		}
	}
}

func (a *BacktrackingAllocator) determineCalleeSavedRealRegs(f Function) {
	var clobbered []VReg
	for r := range a.allocatedRegSet {
		if a.regInfo.isCalleeSaved(r) {
			clobbered = append(clobbered, a.regInfo.RealRegToVReg[r])
		}
	}
	f.ClobberedRegisters(clobbered)
}

func (a *BacktrackingAllocator) assignRegisters(f Function) {
	for blk := f.ReversePostOrderBlockIteratorBegin(); blk != nil; blk = f.ReversePostOrderBlockIteratorNext() {
		a.assignRegistersPerBlock(f, blk)
	}
}

func (a *BacktrackingAllocator) assignRegistersPerBlock(f Function, blk Block) {
	for k := range a.aliveSet {
		delete(a.aliveSet, k)
	}
	info := a.blockInfo(blk.ID())
	for v := range info.liveIns {
		a.aliveSet[a.getOrAllocateNode(v)] = struct{}{}
	}

	var pc programCounter
	for instr := blk.InstrIteratorBegin(); instr != nil; instr = blk.InstrIteratorNext() {
		a.assignRegistersPerInstr(f, info, pc, instr)
		pc += pcStride
	}
}

func (a *BacktrackingAllocator) activeIntervals(real bool) []*LiveInterval {
	var out []*LiveInterval
	for n := range a.aliveSet {
		if real {
			if n.r == RealRegInvalid {
				continue
			}
		} else if n.spilled() || n.v.IsRealReg() {
			continue
		}
		out = append(out, &LiveInterval{V: n.v, Assigned: n.r})
	}
	return out
}

func (a *BacktrackingAllocator) updateAliveByUse(info *btBlockInfo, pc programCounter, instr Instr) {
	for _, use := range instr.Uses() {
		if use.IsRealReg() {
			continue
		}
		n := a.getOrAllocateNode(use)
		if info.lastUses[use] == pc {
			if _, ok := info.liveOuts[use]; !ok {
				delete(a.aliveSet, n)
			}
		}
	}
}

func (a *BacktrackingAllocator) updateAliveByDef(info *btBlockInfo, instr Instr) {
	for _, def := range instr.Defs() {
		if def.IsRealReg() {
			continue
		}
		n := a.getOrAllocateNode(def)
		a.aliveSet[n] = struct{}{}
	}
}

func (a *BacktrackingAllocator) assignRegistersPerInstr(f Function, info *btBlockInfo, pc programCounter, instr Instr) {
	if instr.IsCall() || instr.IsIndirectCall() {
		for _, active := range a.activeIntervals(true) {
			if a.regInfo.isCallerSaved(active.Assigned) {
				v := active.V.SetRealReg(active.Assigned)
				f.StoreRegisterBefore(v, instr)
				f.ReloadRegisterAfter(v, instr)
			}
		}
		a.updateAliveByUse(info, pc, instr)
		a.updateAliveByDef(info, instr)
		if instr.IsIndirectCall() {
			a.assignIndirectCallTarget(f, instr)
		}
		return
	}
	if instr.IsReturn() {
		return
	}

	uses := instr.Uses()
	newUses := make([]VReg, len(uses))
	var spilledUses []VReg
	for i, u := range uses {
		if u.IsRealReg() {
			newUses[i] = u
			continue
		}
		n := a.getOrAllocateNode(u)
		if !n.spilled() {
			newUses[i] = u.SetRealReg(n.r)
		} else {
			spilledUses = append(spilledUses, u)
		}
	}

	defs := instr.Defs()
	var defSpill VReg
	var newDef VReg
	hasDef := false
	if len(defs) == 1 && !defs[0].IsRealReg() {
		hasDef = true
		n := a.getOrAllocateNode(defs[0])
		if !n.spilled() {
			newDef = defs[0].SetRealReg(n.r)
		} else {
			defSpill = defs[0]
		}
	}

	if len(spilledUses) == 0 && !defSpill.Valid() {
		instr.AssignUses(newUses)
		if hasDef {
			instr.AssignDef(newDef)
		}
		a.updateAliveByUse(info, pc, instr)
		a.updateAliveByDef(info, instr)
		return
	}

	a.updateAliveByUse(info, pc, instr)
	active := a.activeIntervals(true)
	a.spill.init(active, instr)

	for i, u := range spilledUses {
		r, evicted := a.spill.getUnusedOrEvictReg(u.RegType(), a.regInfo)
		if evicted != nil {
			ev := evicted.V.SetRealReg(evicted.Assigned)
			f.StoreRegisterBefore(ev, instr)
			f.ReloadRegisterAfter(ev, instr)
		}
		reloaded := u.SetRealReg(r)
		f.ReloadRegisterBefore(reloaded, instr)
		spilledUses[i] = reloaded
	}
	for i, u := range uses {
		if u.IsRealReg() {
			continue
		}
		for _, s := range spilledUses {
			if s.ID() == u.ID() {
				newUses[i] = s
			}
		}
	}
	instr.AssignUses(newUses)

	if defSpill.Valid() {
		a.updateAliveByDef(info, instr)
		active = a.activeIntervals(true)
		a.spill.init(active, instr)
		r, evicted := a.spill.getUnusedOrEvictReg(defSpill.RegType(), a.regInfo)
		if evicted != nil {
			ev := evicted.V.SetRealReg(evicted.Assigned)
			f.StoreRegisterBefore(ev, instr)
			f.ReloadRegisterAfter(ev, instr)
		}
		newDef = defSpill.SetRealReg(r)
		instr.AssignDef(newDef)
		f.StoreRegisterAfter(newDef, instr)
	} else if hasDef {
		instr.AssignDef(newDef)
		a.updateAliveByDef(info, instr)
	}
}

func (a *BacktrackingAllocator) assignIndirectCallTarget(f Function, instr Instr) {
	var v VReg
	for _, u := range instr.Uses() {
		if !u.IsRealReg() {
			v = u
			break
		}
	}
	if !v.Valid() {
		return
	}
	n := a.getOrAllocateNode(v)
	newUses := append([]VReg(nil), instr.Uses()...)
	if n.spilled() {
		for _, r := range a.regInfo.AllocatableRegisters[RegTypeInt] {
			if a.regInfo.isCallerSaved(r) {
				reloaded := v.SetRealReg(r)
				f.ReloadRegisterBefore(reloaded, instr)
				for i, u := range newUses {
					if u.ID() == v.ID() {
						newUses[i] = reloaded
					}
				}
				break
			}
		}
	} else {
		assigned := v.SetRealReg(n.r)
		for i, u := range newUses {
			if u.ID() == v.ID() {
				newUses[i] = assigned
			}
		}
	}
	instr.AssignUses(newUses)
}
