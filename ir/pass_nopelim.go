package ir

// passNopElimination aliases away arithmetic identities: shifts by an
// amount that reduces to zero modulo the operand width, add/or/xor/rotate
// with a zero operand, and multiply by one. Grounded directly on
// ssa/pass.go's passNopInstElimination.
func passNopElimination(f *Function, producer []Instruction) {
	for blk := f.layout.FirstBlock(); blk.Valid(); blk = f.layout.NextBlock(blk) {
		for inst := f.layout.FirstInst(blk); inst.Valid(); inst = f.layout.NextInst(inst) {
			d := f.dfg.inst(inst)
			switch d.opcode {
			case OpcodeIshl, OpcodeSshr, OpcodeUshr:
				amountDef := producerOf(f, producer, d.v2)
				if amountDef == nil || !amountDef.IsConstant() {
					continue
				}
				width := uint64(32)
				if d.Type().Bits() == 64 {
					width = 64
				}
				if amountDef.ConstantVal()%width == 0 {
					f.dfg.makeAlias(d.Result(), f.dfg.ResolveValue(d.v))
				}
			case OpcodeIadd, OpcodeBor, OpcodeBxor, OpcodeRotl, OpcodeRotr:
				x, y := d.v, d.v2
				yDef := producerOf(f, producer, y)
				if yDef == nil || !yDef.IsConstant() {
					yDef = producerOf(f, producer, x)
					if yDef == nil || !yDef.IsConstant() {
						continue
					}
					x = y
				}
				if yDef.ConstantVal() == 0 {
					f.dfg.makeAlias(d.Result(), f.dfg.ResolveValue(x))
				}
			case OpcodeImul:
				x, y := d.v, d.v2
				yDef := producerOf(f, producer, y)
				if yDef == nil || !yDef.IsConstant() {
					yDef = producerOf(f, producer, x)
					if yDef == nil || !yDef.IsConstant() {
						continue
					}
					x = y
				}
				if yDef.ConstantVal() == 1 {
					f.dfg.makeAlias(d.Result(), f.dfg.ResolveValue(x))
				}
			}
		}
	}
}
