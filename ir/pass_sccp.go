package ir

// passSCCP is a simplified sparse conditional constant propagation: it
// folds select instructions with a constant condition to whichever arm is
// taken, and rewrites brz/brnz terminators whose condition resolves to a
// known constant into an unconditional jump to the taken target.
// RunPasses runs no dead-block elimination after this pass, so a block
// left unreachable stays in the layout. Not present in wazero
// (ssa/pass.go's RunPasses TODO list only names "Constant folding" and
// "Arithmetic simplifications" in the abstract); built fresh, grounded on
// the same mutate-in-place + alias idiom passConstFolding uses.
func passSCCP(f *Function, producer []Instruction) {
	changed := false
	for blk := f.layout.FirstBlock(); blk.Valid(); blk = f.layout.NextBlock(blk) {
		for inst := f.layout.FirstInst(blk); inst.Valid(); inst = f.layout.NextInst(inst) {
			d := f.dfg.inst(inst)
			switch d.opcode {
			case OpcodeSelect:
				condDef := producerOf(f, producer, d.v)
				if condDef == nil || !condDef.IsConstant() {
					continue
				}
				taken := d.v2
				if condDef.ConstantVal() == 0 {
					taken = d.v3
				}
				f.dfg.makeAlias(d.Result(), f.dfg.ResolveValue(taken))
			case OpcodeBrz, OpcodeBrnz:
				condDef := producerOf(f, producer, d.v)
				if condDef == nil || !condDef.IsConstant() {
					continue
				}
				zero := condDef.ConstantVal() == 0
				takesIfZero := d.opcode == OpcodeBrz
				takeTarget0 := zero == takesIfZero
				if !takeTarget0 {
					continue // falls through to target[1], which has no block args to rewire; leave as-is for the backend's fallthrough.
				}
				d.opcode = OpcodeJump
				d.v = ValueInvalid
				changed = true
			}
		}
	}
	if changed {
		RebuildCFG(f)
	}
}
