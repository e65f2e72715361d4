package ir

import "fmt"

// passCSE eliminates redundant loads within a single block: a load whose
// (base, offset, opcode) matches an earlier load in the same block, with
// no intervening store or call, is aliased to the earlier load's result
// instead of re-executing. GVN (pass_gvn.go) explicitly skips loads since
// they are classified sideEffectTraps, not sideEffectNone; this pass is
// the narrower, memory-aware complement wazero's RunPasses TODO list
// names separately ("Common subexpression elimination").
func passCSE(f *Function, producer []Instruction) {
	for blk := f.layout.FirstBlock(); blk.Valid(); blk = f.layout.NextBlock(blk) {
		available := make(map[string]Instruction)
		for inst := f.layout.FirstInst(blk); inst.Valid(); inst = f.layout.NextInst(inst) {
			d := f.dfg.inst(inst)
			switch d.opcode {
			case OpcodeStore, OpcodeIstore8, OpcodeIstore16, OpcodeIstore32, OpcodeStackStore,
				OpcodeCall, OpcodeCallIndirect:
				// Any store or call can alias memory; drop everything known safe so far.
				for k := range available {
					delete(available, k)
				}
				continue
			case OpcodeLoad, OpcodeUload8, OpcodeSload8, OpcodeUload16, OpcodeSload16, OpcodeUload32, OpcodeSload32:
				key := loadKey(f, d)
				if prior, ok := available[key]; ok {
					f.dfg.makeAlias(d.Result(), f.dfg.inst(prior).Result())
					continue
				}
				available[key] = inst
			}
		}
	}
}

func loadKey(f *Function, d *InstructionData) string {
	base := f.dfg.ResolveValue(d.v)
	return fmt.Sprintf("%s:%s:%d", d.opcode, base, d.u2)
}
