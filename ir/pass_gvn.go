package ir

import "fmt"

// passGVN is a global value-numbering pass: pure instructions (no side
// effects) whose opcode, resolved operands, and result type match an
// earlier instruction that dominates the current one are aliased to that
// earlier instruction's result instead of being recomputed. Not present
// in wazero, which only lists "Common subexpression elimination" as
// a TODO in ssa/pass.go's RunPasses; built fresh in the same
// alias-old-to-new shape wazero's other passes use, but made global
// (dominance-gated) rather than block-local — see pass_cse.go for the
// block-local sibling.
func passGVN(f *Function, producer []Instruction) {
	dt, err := BuildDomTree(f)
	if err != nil {
		return // irreducible CFG: GVN is skipped.
	}

	table := make(map[string]Instruction)
	for _, blk := range dt.ReversePostOrder() {
		for inst := f.layout.FirstInst(blk); inst.Valid(); inst = f.layout.NextInst(inst) {
			d := f.dfg.inst(inst)
			if d.opcode.sideEffect() != sideEffectNone || !d.r0.Valid() {
				continue
			}
			key := gvnKey(f, d)
			if key == "" {
				continue
			}
			if prior, ok := table[key]; ok {
				priorBlk := f.layout.BlockOf(prior)
				if dt.Dominates(priorBlk, blk) && prior != inst {
					f.dfg.makeAlias(d.Result(), f.dfg.inst(prior).Result())
					continue
				}
			}
			table[key] = inst
		}
	}
}

// gvnKey builds a canonical string key for value-numbering a pure
// instruction: its opcode, result type, and resolved operands. Returns ""
// for instruction shapes GVN does not attempt to number (multi-result,
// variable-arity).
func gvnKey(f *Function, d *InstructionData) string {
	if len(d.rest) > 0 {
		return ""
	}
	v1 := f.dfg.ResolveValue(d.v)
	v2 := f.dfg.ResolveValue(d.v2)
	v3 := f.dfg.ResolveValue(d.v3)
	switch d.opcode {
	case OpcodeIconst, OpcodeF32const, OpcodeF64const:
		return fmt.Sprintf("%s:%d:%d", d.opcode, d.typ, d.u1)
	case OpcodeIcmp:
		return fmt.Sprintf("%s:%d:%d:%d:%d", d.opcode, d.typ, d.u1, v1, v2)
	case OpcodeFcmp:
		return fmt.Sprintf("%s:%d:%d:%d:%d", d.opcode, d.typ, d.u1, v1, v2)
	default:
		if !v1.Valid() && !v2.Valid() && !v3.Valid() {
			return ""
		}
		return fmt.Sprintf("%s:%d:%d:%d:%d", d.opcode, d.typ, v1, v2, v3)
	}
}
