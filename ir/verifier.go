package ir

import "strconv"

// Verify walks f's layout once per checker and reports every invariant
// violation it finds, rather than aborting on the first. Nothing in the
// pipeline calls it except Compile under WithVerifyIR, once, before the
// passes and legalization.
//
// Checks: SSA dominance of operand defs (skipped when BuildDomTree fails;
// its error is reported instead), exactly-one-terminator-per-block
// placement, branch/block-param arity, alias-chain acyclicity, stack-slot
// alignment, and jump-table well-formedness. Operand and result types are
// not checked against each opcode, and call arguments are not checked
// against the callee's signature.
func Verify(f *Function) error {
	var diags []Diagnostic

	dt, err := BuildDomTree(f)
	if err != nil {
		diags = append(diags, Diagnostic{Severity: SeverityError, Message: err.Error()})
		dt = nil
	}

	for blk := f.layout.FirstBlock(); blk.Valid(); blk = f.layout.NextBlock(blk) {
		diags = append(diags, verifyTerminatorPlacement(f, blk)...)
		diags = append(diags, verifyBranchArity(f, blk)...)
		diags = append(diags, verifyStackSlotAlignment(f, blk)...)
		diags = append(diags, verifyJumpTables(f, blk)...)
		if dt != nil {
			diags = append(diags, verifyDominance(f, dt, blk)...)
		}
	}
	diags = append(diags, verifyAliasAcyclic(f)...)

	if len(diags) == 0 {
		return nil
	}
	return &VerifierError{Diagnostics: diags}
}

// verifyTerminatorPlacement checks that blk's instruction stream has
// exactly one terminator, and it is the last instruction.
func verifyTerminatorPlacement(f *Function, blk BasicBlockID) []Diagnostic {
	var diags []Diagnostic
	count := 0
	for inst := f.layout.FirstInst(blk); inst.Valid(); inst = f.layout.NextInst(inst) {
		d := f.dfg.inst(inst)
		if !d.opcode.isTerminator() {
			continue
		}
		count++
		if inst != f.layout.LastInst(blk) {
			diags = append(diags, Diagnostic{Severity: SeverityError, Block: blk, Inst: inst,
				Message: "terminator is not the last instruction in its block"})
		}
	}
	switch count {
	case 1:
	case 0:
		diags = append(diags, Diagnostic{Severity: SeverityError, Block: blk, Message: "block has no terminator"})
	default:
		diags = append(diags, Diagnostic{Severity: SeverityError, Block: blk,
			Message: "block has more than one terminator"})
	}
	return diags
}

// verifyBranchArity checks that every branch's per-target argument list
// matches the target block's declared parameter count.
func verifyBranchArity(f *Function, blk BasicBlockID) []Diagnostic {
	var diags []Diagnostic
	term := f.layout.LastInst(blk)
	if !term.Valid() {
		return nil
	}
	d := f.dfg.inst(term)
	check := func(target BasicBlockID, idx int) {
		if !target.Valid() {
			return
		}
		want := len(f.dfg.block(target).params)
		got := len(f.dfg.valueList(d.argLists[idx]))
		if want != got {
			diags = append(diags, Diagnostic{Severity: SeverityError, Block: blk, Inst: term,
				Message: "branch supplies " + strconv.Itoa(got) + " arguments to " + target.String() +
					" which declares " + strconv.Itoa(want) + " parameters"})
		}
	}
	switch d.opcode {
	case OpcodeJump:
		check(d.targets[0], 0)
	case OpcodeBrz, OpcodeBrnz:
		check(d.targets[0], 0)
		check(d.targets[1], 1)
	case OpcodeBrTable:
		check(d.targets[0], 0)
	}
	return diags
}

// verifyStackSlotAlignment checks that every stack_load/stack_store names
// a defined stack slot and that the slot's alignment is a power of two.
// The access offset is not checked against the slot's size.
func verifyStackSlotAlignment(f *Function, blk BasicBlockID) []Diagnostic {
	var diags []Diagnostic
	for inst := f.layout.FirstInst(blk); inst.Valid(); inst = f.layout.NextInst(inst) {
		d := f.dfg.inst(inst)
		if d.opcode != OpcodeStackLoad && d.opcode != OpcodeStackStore {
			continue
		}
		slot := StackSlot(d.u1)
		if int(slot) >= len(f.dfg.stackSlots) {
			diags = append(diags, Diagnostic{Severity: SeverityError, Block: blk, Inst: inst, Message: "undefined stack slot"})
			continue
		}
		sd := f.dfg.stackSlots[slot]
		if sd.Align == 0 || sd.Align&(sd.Align-1) != 0 {
			diags = append(diags, Diagnostic{Severity: SeverityError, Block: blk, Inst: inst,
				Message: "stack slot alignment is not a power of two"})
		}
	}
	return diags
}

// verifyJumpTables checks that every br_table target is a valid block id.
func verifyJumpTables(f *Function, blk BasicBlockID) []Diagnostic {
	var diags []Diagnostic
	term := f.layout.LastInst(blk)
	if !term.Valid() {
		return nil
	}
	d := f.dfg.inst(term)
	if d.opcode != OpcodeBrTable {
		return nil
	}
	if int(d.jumpTbl) >= len(f.dfg.jumpTables) {
		return []Diagnostic{{Severity: SeverityError, Block: blk, Inst: term, Message: "undefined jump table"}}
	}
	for _, t := range f.dfg.jumpTables[d.jumpTbl] {
		if !t.Valid() || int(t) >= len(f.dfg.blocks) || f.dfg.blocks[t].invalid {
			diags = append(diags, Diagnostic{Severity: SeverityError, Block: blk, Inst: term,
				Message: "jump table targets an invalid block"})
		}
	}
	return diags
}

// verifyDominance checks that every value blk's instructions use is
// defined by a block parameter or instruction result that dominates the
// use (same block and earlier in layout, or from a strictly dominating
// block).
func verifyDominance(f *Function, dt *DomTree, blk BasicBlockID) []Diagnostic {
	var diags []Diagnostic
	seenInBlock := make(map[ValueID]bool)
	for _, p := range f.dfg.block(blk).params {
		seenInBlock[p.value.ID()] = true
	}
	for inst := f.layout.FirstInst(blk); inst.Valid(); inst = f.layout.NextInst(inst) {
		d := f.dfg.inst(inst)
		for _, v := range instOperands(f, d) {
			v = f.dfg.ResolveValue(v)
			vd := f.dfg.value(v.ID())
			var defBlk BasicBlockID
			switch vd.kind {
			case valueDataBlockParam:
				defBlk = vd.blk
			case valueDataInstResult:
				defBlk = f.layout.BlockOf(vd.inst)
			default:
				continue
			}
			if defBlk == blk {
				if !seenInBlock[v.ID()] {
					diags = append(diags, Diagnostic{Severity: SeverityError, Block: blk, Inst: inst,
						Message: "value used before its definition in the same block"})
				}
				continue
			}
			if !dt.Dominates(defBlk, blk) {
				diags = append(diags, Diagnostic{Severity: SeverityError, Block: blk, Inst: inst,
					Message: "value's defining block does not dominate its use"})
			}
		}
		if d.r0.Valid() {
			seenInBlock[d.r0.ID()] = true
		}
		for _, r := range d.rest {
			seenInBlock[r.ID()] = true
		}
	}
	return diags
}

// verifyAliasAcyclic confirms every alias chain in the function converges
// within a bounded number of hops (ResolveValue panics on a true cycle;
// this check reports the same condition as a diagnostic instead, for
// callers that run the verifier before trusting ResolveValue).
func verifyAliasAcyclic(f *Function) []Diagnostic {
	var diags []Diagnostic
	for id := range f.dfg.values {
		v := f.dfg.values[id]
		if v.kind != valueDataAlias {
			continue
		}
		visited := map[ValueID]bool{ValueID(id): true}
		cur := v.aliasTo
		for {
			cd := f.dfg.value(cur.ID())
			if cd.kind != valueDataAlias {
				break
			}
			if visited[cur.ID()] {
				diags = append(diags, Diagnostic{Severity: SeverityError, Message: "alias cycle detected"})
				break
			}
			visited[cur.ID()] = true
			cur = cd.aliasTo
		}
	}
	return diags
}
