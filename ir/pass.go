package ir

import "sort"

// RunPasses runs the standard analysis/optimization pipeline over f and
// marks it ready for legalization and lowering. Order matters: later
// passes depend on the CFG/dominator/refcount information earlier ones
// establish, same as wazero's RunPasses.
//
// Grounded on ssa/pass.go's RunPasses ordering (sort-successors,
// dead-block-elim, redundant-phi-elim, dominators, const-fold, nop-elim,
// DCE); GVN/SCCP/CSE are wazero's own "TODO: implement more
// optimization passes" list, built fresh here.
func RunPasses(f *Function) error {
	if f.donePasses {
		return nil
	}
	RebuildCFG(f)
	passSortSuccessors(f)
	if err := passDeadBlockElimination(f); err != nil {
		return err
	}
	passRedundantPhiElimination(f)

	RebuildCFG(f)
	dt, err := BuildDomTree(f)
	if err != nil {
		return err
	}
	AnalyzeLoops(f, dt)

	producer := collectValueIDToInstruction(f)
	passConstFolding(f, producer)
	passNopElimination(f, producer)

	producer = collectValueIDToInstruction(f)
	passGVN(f, producer)
	passSCCP(f, producer)
	passCSE(f, producer)

	// passDeadCodeElimination is the last SSA-level pass: after it the
	// function is ready for legalization.
	producer = collectValueIDToInstruction(f)
	passDeadCodeElimination(f, producer)

	f.donePasses = true
	return nil
}

// passSortSuccessors sorts each block's successor list into natural
// program order (the order their targets appear in layout), so later
// passes (and the backend's block emission) see a deterministic order
// independent of the order branches were built in.
func passSortSuccessors(f *Function) {
	pos := make(map[BasicBlockID]int)
	i := 0
	for b := f.layout.FirstBlock(); b.Valid(); b = f.layout.NextBlock(b) {
		pos[b] = i
		i++
	}
	for i := range f.dfg.blocks {
		bd := &f.dfg.blocks[i]
		if bd.invalid || len(bd.succs) < 2 {
			continue
		}
		sort.SliceStable(bd.succs, func(a, b int) bool {
			return pos[bd.succs[a]] < pos[bd.succs[b]]
		})
	}
}

// passDeadBlockElimination marks every block unreachable from the entry
// as invalid and removes it from Layout. Every reachable non-entry block
// must already be sealed (Builder.Seal was called on it) or the IR was
// built incorrectly.
func passDeadBlockElimination(f *Function) error {
	n := len(f.dfg.blocks)
	visited := make([]bool, n)
	stack := []BasicBlockID{f.entry}
	visited[f.entry] = true
	for len(stack) > 0 {
		blk := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !f.dfg.block(blk).sealed {
			return &VerifierError{Block: blk, Msg: "block is not sealed"}
		}
		for _, succ := range f.dfg.block(blk).succs {
			if !visited[succ] {
				visited[succ] = true
				stack = append(stack, succ)
			}
		}
	}

	for i := 0; i < n; i++ {
		blk := BasicBlockID(i)
		if !visited[blk] {
			f.dfg.blocks[i].invalid = true
			f.layout.RemoveBlock(blk)
		}
	}
	return nil
}

// passRedundantPhiElimination finds block parameters where every
// predecessor supplies the same (non-self-referencing) value and aliases
// the parameter away, removing it from both the block header and every
// predecessor's branch argument list.
func passRedundantPhiElimination(f *Function) {
	for blk := f.layout.FirstBlock(); blk.Valid(); blk = f.layout.NextBlock(blk) {
		if blk == f.entry {
			continue
		}
		bd := f.dfg.block(blk)
		if bd.invalid || len(bd.params) == 0 {
			continue
		}

		redundant := make(map[int]Value)
		for paramIdx, p := range bd.params {
			only := ValueInvalid
			isRedundant := true
			for _, pred := range bd.preds {
				d := f.dfg.inst(pred.branch)
				idx := branchArgIndex(d, blk)
				args := f.dfg.valueList(d.argLists[idx])
				if paramIdx >= len(args) {
					continue
				}
				arg := args[paramIdx]
				if arg == p.value {
					continue // self-referencing
				}
				if !only.Valid() {
					only = arg
					continue
				}
				if only != arg {
					isRedundant = false
					break
				}
			}
			if isRedundant && only.Valid() {
				redundant[paramIdx] = only
			}
		}
		if len(redundant) == 0 {
			continue
		}

		for _, pred := range bd.preds {
			d := f.dfg.inst(pred.branch)
			idx := branchArgIndex(d, blk)
			args := f.dfg.valueList(d.argLists[idx])
			cur := args[:0]
			for i, v := range args {
				if _, ok := redundant[i]; !ok {
					cur = append(cur, v)
				}
			}
			f.dfg.setValueList(d.argLists[idx], cur)
		}

		for paramIdx, only := range redundant {
			f.dfg.makeAlias(bd.params[paramIdx].value, only)
		}

		kept := bd.params[:0]
		for i, p := range bd.params {
			if _, ok := redundant[i]; !ok {
				kept = append(kept, p)
			}
		}
		bd.params = kept
	}
}

// branchArgIndex returns which of a terminator's two argument-list slots
// supplies target's block parameters (0 if target is the first listed
// target, 1 if it's the second), mirroring Builder.addBranchArgument.
func branchArgIndex(d *InstructionData, target BasicBlockID) int {
	if d.targets[0] != target && d.targets[1] == target {
		return 1
	}
	return 0
}

// collectValueIDToInstruction builds a dense ValueID -> producing
// Instruction map, used by const-folding/nop-elimination/GVN/SCCP/CSE to
// look up an operand's defining instruction without a linear scan.
func collectValueIDToInstruction(f *Function) []Instruction {
	out := make([]Instruction, len(f.dfg.values))
	for i := range out {
		out[i] = InstructionInvalid
	}
	for blk := f.layout.FirstBlock(); blk.Valid(); blk = f.layout.NextBlock(blk) {
		for inst := f.layout.FirstInst(blk); inst.Valid(); inst = f.layout.NextInst(inst) {
			d := f.dfg.inst(inst)
			if d.r0.Valid() {
				out[d.r0.ID()] = inst
			}
			for _, r := range d.rest {
				out[r.ID()] = inst
			}
		}
	}
	return out
}

func producerOf(f *Function, producer []Instruction, v Value) *InstructionData {
	v = f.dfg.ResolveValue(v)
	inst := producer[v.ID()]
	if !inst.Valid() {
		return nil
	}
	return f.dfg.inst(inst)
}

// passDeadCodeElimination computes each instruction's transitive liveness
// from side-effecting roots (stores, calls, branches, trapping
// instructions) and removes every instruction nothing live reaches. This
// is the last SSA-level pass; after it the function is ready for
// legalization and lowering.
func passDeadCodeElimination(f *Function, producer []Instruction) {
	n := len(f.dfg.insts)
	live := make([]bool, n)
	var stack []Instruction

	for blk := f.layout.FirstBlock(); blk.Valid(); blk = f.layout.NextBlock(blk) {
		for inst := f.layout.FirstInst(blk); inst.Valid(); inst = f.layout.NextInst(inst) {
			d := f.dfg.inst(inst)
			switch d.opcode.sideEffect() {
			case sideEffectStrict, sideEffectTraps:
				stack = append(stack, inst)
			}
		}
	}

	for len(stack) > 0 {
		inst := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if live[inst] {
			continue
		}
		live[inst] = true
		d := f.dfg.inst(inst)
		for _, v := range instOperands(f, d) {
			v = f.dfg.ResolveValue(v)
			if p := producer[v.ID()]; p.Valid() && !live[p] {
				stack = append(stack, p)
			}
		}
	}

	for blk := f.layout.FirstBlock(); blk.Valid(); blk = f.layout.NextBlock(blk) {
		var next Instruction
		for inst := f.layout.FirstInst(blk); inst.Valid(); inst = next {
			next = f.layout.NextInst(inst)
			if !live[inst] {
				f.layout.RemoveInstruction(inst)
			}
		}
	}
}

// instOperands returns every Value an instruction reads, inline and
// out-of-line, for use by liveness/DCE and the GVN/CSE value-numbering
// passes.
func instOperands(f *Function, d *InstructionData) []Value {
	var out []Value
	if d.v.Valid() {
		out = append(out, d.v)
	}
	if d.v2.Valid() {
		out = append(out, d.v2)
	}
	if d.v3.Valid() {
		out = append(out, d.v3)
	}
	out = append(out, f.dfg.valueList(d.vs)...)
	out = append(out, f.dfg.valueList(d.argLists[0])...)
	out = append(out, f.dfg.valueList(d.argLists[1])...)
	return out
}
