package ir

// AnalyzeLoops finds every back edge (an edge n -> h where h dominates n)
// and records, on each block's BasicBlockData, whether it is a loop
// header and how many such loops enclose it. Grounded on wazero's
// natural-loop back-edge detection (isDominatedBy over the computed dom
// tree), generalized from a single loopHeader bit to full nesting depth,
// exposed through LoopNestingDepth; no backend reads it.
//
// f must have an up-to-date CFG (RebuildCFG) and dt must be its dominator
// tree (BuildDomTree).
func AnalyzeLoops(f *Function, dt *DomTree) {
	for i := range f.dfg.blocks {
		f.dfg.blocks[i].loopHeader = false
		f.dfg.blocks[i].loopNestingDepth = 0
	}

	type backEdge struct{ from, to BasicBlockID }
	var edges []backEdge
	for _, blk := range dt.ReversePostOrder() {
		for _, succ := range f.Successors(blk) {
			if dt.Reachable(succ) && dt.Dominates(succ, blk) {
				edges = append(edges, backEdge{from: blk, to: succ})
			}
		}
	}

	members := make(map[BasicBlockID]map[BasicBlockID]bool, len(edges))
	for _, e := range edges {
		f.dfg.block(e.to).loopHeader = true
		set, ok := members[e.to]
		if !ok {
			set = map[BasicBlockID]bool{e.to: true}
			members[e.to] = set
		}
		if set[e.from] {
			continue
		}
		// Walk predecessors backward from e.from, collecting the natural
		// loop body until hitting the header or an already-collected block.
		stack := []BasicBlockID{e.from}
		for len(stack) > 0 {
			blk := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if set[blk] {
				continue
			}
			set[blk] = true
			for _, pred := range f.dfg.block(blk).preds {
				if !set[pred.block] {
					stack = append(stack, pred.block)
				}
			}
		}
	}

	for _, set := range members {
		for blk := range set {
			f.dfg.block(blk).loopNestingDepth++
		}
	}
}

// IsLoopHeader reports whether blk is the target of some back edge.
func (f *Function) IsLoopHeader(blk BasicBlockID) bool { return f.dfg.block(blk).loopHeader }

// LoopNestingDepth returns how many natural loops enclose blk (0 outside
// any loop).
func (f *Function) LoopNestingDepth(blk BasicBlockID) int { return f.dfg.block(blk).loopNestingDepth }
