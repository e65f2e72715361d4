package ir

// DomTree holds the immediate-dominator relation computed over a
// function's reachable blocks, plus the reverse-postorder numbering used
// to answer Dominates queries in O(path length) without re-walking.
//
// Algorithm: Cooper, Harvey & Kennedy, "A Simple, Fast Dominance
// Algorithm" (https://www.cs.rice.edu/~keith/EMBED/dom.pdf) — an iterative
// fixed-point alternative to Lengauer-Tarjan, chosen (as in wazero)
// for simplicity over asymptotic optimality; real-world CFGs converge in a
// small constant number of iterations.
type DomTree struct {
	f    *Function
	idom []BasicBlockID // indexed by BasicBlockID; idom[entry] == entry.
	rpo  []int          // indexed by BasicBlockID; reverse postorder number, or -1 if unreachable.
	order []BasicBlockID // reachable blocks in reverse postorder.
}

// ErrIrreducibleCFG is returned by BuildDomTree when the post-order
// traversal discovers a block reachable from two different "still being
// explored" (not yet fully visited) ancestors — i.e. an irreducible loop
// with more than one entry. this is left as an explicit open
// question ("implement either conversion ... or irreducible CFG
// detection"); this module detects and reports it rather than silently
// mis-computing dominance or panicking.
type ErrIrreducibleCFG struct{ At BasicBlockID }

func (e ErrIrreducibleCFG) Error() string {
	return "irreducible control flow graph detected at " + e.At.String()
}

// BuildDomTree computes the dominator tree of f, which must already have
// up-to-date predecessor/successor lists (see RebuildCFG).
func BuildDomTree(f *Function) (*DomTree, error) {
	entry := f.entry
	n := len(f.dfg.blocks)

	rpo := make([]int, n)
	for i := range rpo {
		rpo[i] = -1
	}

	const (
		unseen = 0
		seen   = 1
		done   = 2
	)
	state := make([]byte, n)
	var postorder []BasicBlockID
	stack := []BasicBlockID{entry}
	state[entry] = seen
	for len(stack) > 0 {
		blk := stack[len(stack)-1]
		switch state[blk] {
		case seen:
			state[blk] = done // tentatively; pushed again below if it has unvisited successors.
			pushed := false
			for _, succ := range f.dfg.block(blk).succs {
				if state[succ] == unseen {
					state[succ] = seen
					stack = append(stack, succ)
					pushed = true
				} else if state[succ] == seen {
					return nil, ErrIrreducibleCFG{At: succ}
				}
			}
			if pushed {
				state[blk] = seen // still on stack, not finished until successors are.
				continue
			}
			postorder = append(postorder, blk)
			stack = stack[:len(stack)-1]
		case done:
			postorder = append(postorder, blk)
			stack = stack[:len(stack)-1]
		default:
			stack = stack[:len(stack)-1]
		}
	}

	// Reverse postorder.
	order := make([]BasicBlockID, len(postorder))
	for i, blk := range postorder {
		order[len(postorder)-1-i] = blk
	}
	for i, blk := range order {
		rpo[blk] = i
	}

	idom := make([]BasicBlockID, n)
	for i := range idom {
		idom[i] = BasicBlockID(idNone)
	}
	idom[entry] = entry

	changed := true
	for changed {
		changed = false
		for _, blk := range order[1:] {
			var newIdom BasicBlockID = BasicBlockID(idNone)
			for _, pred := range f.dfg.block(blk).preds {
				if !idom[pred.block].Valid() {
					continue
				}
				if !newIdom.Valid() {
					newIdom = pred.block
					continue
				}
				newIdom = intersectDom(idom, rpo, newIdom, pred.block)
			}
			if idom[blk] != newIdom {
				idom[blk] = newIdom
				changed = true
			}
		}
	}

	return &DomTree{f: f, idom: idom, rpo: rpo, order: order}, nil
}

func intersectDom(idom []BasicBlockID, rpo []int, a, b BasicBlockID) BasicBlockID {
	for a != b {
		for rpo[a] > rpo[b] {
			a = idom[a]
		}
		for rpo[b] > rpo[a] {
			b = idom[b]
		}
	}
	return a
}

// Dominates reports whether d dominates n (every path from the entry to n
// passes through d). A block dominates itself.
func (t *DomTree) Dominates(d, n BasicBlockID) bool {
	if t.rpo[n] < 0 || t.rpo[d] < 0 {
		return false
	}
	for {
		if n == d {
			return true
		}
		if n == t.f.entry {
			return n == d
		}
		next := t.idom[n]
		if next == n {
			return n == d
		}
		n = next
	}
}

// IDom returns the immediate dominator of blk.
func (t *DomTree) IDom(blk BasicBlockID) BasicBlockID { return t.idom[blk] }

// ReversePostOrder returns the reachable blocks in reverse postorder, the
// order lowering walks blocks in (forward direction; lowering itself then
// processes each block's instructions bottom-up).
func (t *DomTree) ReversePostOrder() []BasicBlockID { return t.order }

// Reachable reports whether blk was reached from the entry block.
func (t *DomTree) Reachable(blk BasicBlockID) bool { return t.rpo[blk] >= 0 }
