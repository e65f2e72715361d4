package ir

import "math"

// passConstFolding scans every instruction for arithmetic over two
// constants and mutates it in place into an iconst/f32const/f64const
// carrying the folded result, in one sweep in layout order (an
// instruction folded earlier in that order is a constant operand to the
// ones after it).
// Grounded directly on ssa/pass.go's passConstFoldingOpt.
func passConstFolding(f *Function, producer []Instruction) {
	for blk := f.layout.FirstBlock(); blk.Valid(); blk = f.layout.NextBlock(blk) {
		for inst := f.layout.FirstInst(blk); inst.Valid(); inst = f.layout.NextInst(inst) {
			for {
				if !foldOnce(f, producer, inst) {
					break
				}
			}
		}
	}
}

func foldOnce(f *Function, producer []Instruction, inst Instruction) bool {
	d := f.dfg.inst(inst)
	switch d.opcode {
	case OpcodeIadd, OpcodeIsub, OpcodeImul, OpcodeBand, OpcodeBor, OpcodeBxor:
		xDef := producerOf(f, producer, d.v)
		yDef := producerOf(f, producer, d.v2)
		if xDef == nil || yDef == nil || !xDef.IsConstant() || !yDef.IsConstant() {
			return false
		}
		xc, yc := xDef.ConstantVal(), yDef.ConstantVal()
		folded := evalIntOp(xc, yc, d.opcode)
		d.opcode = OpcodeIconst
		d.v, d.v2 = ValueInvalid, ValueInvalid
		d.u1 = folded
		return false // single rewrite; not iterated further (result is already constant).
	case OpcodeFadd, OpcodeFsub, OpcodeFmul:
		xDef := producerOf(f, producer, d.v)
		yDef := producerOf(f, producer, d.v2)
		if xDef == nil || yDef == nil || !isFloatConst(xDef) || !isFloatConst(yDef) {
			return false
		}
		op := d.opcode
		wide := d.Type().Bits() == 64
		d.v, d.v2 = ValueInvalid, ValueInvalid
		if wide {
			d.opcode = OpcodeF64const
			xc, yc := math.Float64frombits(xDef.ConstantVal()), math.Float64frombits(yDef.ConstantVal())
			d.u1 = uint64(math.Float64bits(evalFloatOp(op, xc, yc)))
		} else {
			d.opcode = OpcodeF32const
			xc, yc := math.Float32frombits(uint32(xDef.ConstantVal())), math.Float32frombits(uint32(yDef.ConstantVal()))
			d.u1 = uint64(math.Float32bits(evalFloatOp32(op, xc, yc)))
		}
		return false
	default:
		return false
	}
}

func isFloatConst(d *InstructionData) bool {
	return d.opcode == OpcodeF32const || d.opcode == OpcodeF64const
}

func evalIntOp(xc, yc uint64, op Opcode) uint64 {
	switch op {
	case OpcodeIadd:
		return xc + yc
	case OpcodeIsub:
		return xc - yc
	case OpcodeImul:
		return xc * yc
	case OpcodeBand:
		return xc & yc
	case OpcodeBor:
		return xc | yc
	case OpcodeBxor:
		return xc ^ yc
	default:
		return 0
	}
}

func evalFloatOp(op Opcode, xc, yc float64) float64 {
	switch op {
	case OpcodeFadd:
		return xc + yc
	case OpcodeFsub:
		return xc - yc
	case OpcodeFmul:
		return xc * yc
	default:
		return 0
	}
}

func evalFloatOp32(op Opcode, xc, yc float32) float32 {
	switch op {
	case OpcodeFadd:
		return xc + yc
	case OpcodeFsub:
		return xc - yc
	case OpcodeFmul:
		return xc * yc
	default:
		return 0
	}
}
