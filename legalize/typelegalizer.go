package legalize

import "github.com/joelreymont/machgen/ir"

// legalizeTypes walks every instruction once, rewriting any value whose
// type the target marks TypePromote into the promoted type in place
// (iconst's immediate is sign-extended to the new width; every other
// producer just gets a wider declared type — its bit pattern is already
// correct modulo the extra high bits). The narrow-memory opcodes
// (uload8/istore8 and friends) already encode their natural width in the
// opcode itself, so loads/stores need no rewrite here.
//
// TypeExpand (i128 -> two i64 limbs) and the vector TypeSplitVector/
// TypeWidenVector actions are deliberately NOT rewritten at the IR level:
// the lowering context materializes wide values as multiple virtual
// registers directly (an i128 SSA value lowers to a pair of i64 vregs via
// the lowering context's vreg allocation), so splitting happens during
// lowering, not as an IR-to-IR rewrite.
func legalizeTypes(f *ir.Function, target Target) error {
	for blk := f.LayoutView().FirstBlock(); blk.Valid(); blk = f.LayoutView().NextBlock(blk) {
		for inst := f.LayoutView().FirstInst(blk); inst.Valid(); inst = f.LayoutView().NextInst(inst) {
			d := f.DFG().InstructionData(inst)
			action, to := target.TypeAction(d.Type())
			if action != TypePromote {
				continue
			}
			if d.Opcode() == ir.OpcodeIconst {
				f.DFG().ReplaceInstruction(inst, ir.MakeIconst(to, signExtendImm(d.Imm64(), d.Type(), to)))
				continue
			}
			f.DFG().SetType(inst, to)
		}
	}
	return nil
}

// signExtendImm re-signs an iconst's bit pattern from its original width
// to the promoted width.
func signExtendImm(imm ir.Imm64, from, to ir.Type) ir.Imm64 {
	bits := from.Bits()
	if bits >= 64 || bits == 0 {
		return imm
	}
	shift := 64 - bits
	return ir.Imm64(int64(imm) << shift >> shift)
}
