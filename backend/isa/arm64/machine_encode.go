package arm64

import (
	"fmt"

	"github.com/joelreymont/machgen/backend/regalloc"
	"github.com/joelreymont/machgen/ir"
	"github.com/joelreymont/machgen/mcode"
)

// encode walks the function's final, register-allocated instruction list
// (prologue and epilogues already spliced in by insertPrologueEpilogue)
// and emits each instr's machine code into buf. One mcode.Label is bound
// per block so that kindB/kindBCond/kindCall's forward and backward
// targets can be recorded as fixups before every block's final offset is
// known; mcode.Buffer's own fixup/veneer engine (mcode/veneer.go) resolves
// them once the whole function has been emitted, so this function never
// reasons about branch range itself. Grounded on machine_encode.go's
// single encode pass over a finished VCode list.
func (m *machine) encode(buf *mcode.Buffer) error {
	labels := make(map[ir.BasicBlockID]mcode.Label, len(m.blockOrder))
	for _, blk := range m.blockOrder {
		labels[blk] = buf.NewLabel()
	}
	headBlock := make(map[*instr]ir.BasicBlockID, len(m.blockHead))
	for blk, head := range m.blockHead {
		headBlock[head] = blk
	}
	isTail := make(map[*instr]bool, len(m.blockTail))
	for _, tail := range m.blockTail {
		isTail[tail] = true
	}

	for i := m.head; i != nil; i = i.next {
		if blk, ok := headBlock[i]; ok {
			buf.BindLabel(labels[blk])
		}
		if err := m.encodeInstr(buf, i, labels); err != nil {
			return err
		}
		if isTail[i] {
			buf.MarkBlockBoundary()
		}
	}

	if !buf.ConstPool().Empty() {
		buf.ConstPool().Flush(buf)
	}

	return buf.ResolveFixups()
}

// encodeInstr emits i's machine code, reading real registers out of its
// (by now allocated) VReg operands.
func (m *machine) encodeInstr(buf *mcode.Buffer, i *instr, labels map[ir.BasicBlockID]mcode.Label) error {
	rd, rn, rm, ra := i.rd.RealReg(), i.rn.RealReg(), i.rm.RealReg(), i.ra.RealReg()

	switch i.kind {
	case kindMovZ:
		encodeMoveImm(buf, rd, uint64(i.imm), i.size)
	case kindMovReg:
		// mov rd, rn is the orr rd, xzr, rn alias.
		encodeALURRR(buf, aluOrr, i.size, rd, xzrSp, rn)
	case kindFpuMov:
		if i.indirect {
			encodeFmovGeneral(buf, i.size, rd, rn, i.rd.RegType() == regalloc.RegTypeFloat)
		} else {
			encodeFpuMov(buf, i.size, rd, rn)
		}
	case kindALURRR:
		encodeALURRR(buf, i.aluOp, i.size, rd, rn, rm)
	case kindALURRI:
		encodeALURRI(buf, i.aluOp, i.size, rd, rn, uint64(i.imm))
	case kindShiftRR:
		encodeShiftRR(buf, i.shiftOp, i.size, rd, rn, rm)
	case kindMul:
		encodeMul(buf, i.size, rd, rn, rm)
	case kindDiv:
		encodeDiv(buf, i.size, rd, rn, rm, i.signed)
	case kindMsub:
		encodeMsub(buf, i.size, rd, rn, rm, ra, true)
	case kindClz:
		encodeClz(buf, i.size, rd, rn)
	case kindRbit:
		encodeRbit(buf, i.size, rd, rn)
	case kindExtend:
		encodeExtend(buf, i.size, byte(i.imm), rd, rn, i.signed)
	case kindFpuRR:
		if i.fpuRROp == fpuCvt32To64 {
			encodeFcvt(buf, 32, 64, rd, rn)
		} else if i.fpuRROp == fpuCvt64To32 {
			encodeFcvt(buf, 64, 32, rd, rn)
		} else {
			encodeFpuRR(buf, i.fpuRROp, i.size, rd, rn)
		}
	case kindFpuRRR:
		encodeFpuRRR(buf, i.fpuRRROp, i.size, rd, rn, rm)
	case kindFpuCmp:
		encodeFpuCmp(buf, i.size, rn, rm)
	case kindIntToFpu:
		if i.signed {
			encodeScvtf(buf, i.size, byte(i.imm), rd, rn)
		} else {
			encodeUcvtf(buf, i.size, byte(i.imm), rd, rn)
		}
	case kindFpuToInt:
		if i.signed {
			encodeFcvtzs(buf, i.size, byte(i.imm), rd, rn)
		} else {
			encodeFcvtzu(buf, i.size, byte(i.imm), rd, rn)
		}
	case kindCmpRR:
		encodeCmpRR(buf, i.size, rn, rm)
	case kindCSel:
		encodeCSel(buf, i.size, rd, rn, rm, i.cond)
	case kindCSet:
		encodeCSet(buf, i.size, rd, i.cond)
	case kindVecRRR:
		encodeVecRRR(buf, i.vecOp, int(i.size), rd, rn, rm)
	case kindDup:
		encodeDup(buf, int(i.size), rd, rn)

	case kindLoad:
		m.encodeLoadStore(buf, int(i.size), i.indirect, true, i.signed, rd, rn, i.imm)
	case kindStore:
		m.encodeLoadStore(buf, int(i.size), i.indirect, false, false, rn, rm, i.imm)

	case kindFpuLoadLit:
		data := constPoolBytes(i.size, i.imm)
		label := buf.ConstPool().Add(buf, data, int64(i.size)/8, ldrLitFixup{})
		encodeLdrLit(buf, i.size, rd, label)

	case kindLoadAcq:
		encodeLdaxr(buf, int(i.size), rd, rn)
	case kindStoreRel:
		// rd carries the store-status result, rn the data, rm the address.
		encodeStlxr(buf, int(i.size), rd, rn, rm)

	case kindAdr:
		encodeAdr(buf, rd, i.imm)
	case kindAdrp:
		encodeAdrp(buf, rd, i.imm)

	case kindB:
		encodeB(buf, labels[i.targetBlock])
	case kindBCond:
		encodeBCond(buf, labels[i.targetBlock], i.cond)
	case kindCall:
		// Emitted directly rather than through encodeBL: a direct call's
		// target is an external symbol resolved by a linker/loader reading
		// this relocation, not an in-function label the fixup engine can
		// bind and patch itself.
		m.compiler.AddRelocation(buf, mcode.RelocationCall26, i.funcRef, 0)
		buf.Emit4(uint32(0b100101) << 26)
	case kindCallR:
		encodeBLR(buf, rn)
	case kindRet:
		encodeRet(buf)

	case kindTrap:
		buf.RecordTrap(mcode.Trap{Offset: buf.CurrentOffset(), Code: mcode.TrapCode(i.imm)})
		encodeUdf(buf, 0)
	case kindNop:
		encodeNop(buf)

	default:
		return fmt.Errorf("arm64: encode: unhandled instruction kind %d", i.kind)
	}
	return nil
}

// encodeLoadStore emits a load or store, materializing the effective
// address into tmpReg2 first when imm falls outside encodeLoadStoreImm's
// single-instruction window (a non-negative multiple of the access size,
// 0-4095*size); this only ever triggers for large stack frames or
// far-offset struct fields, never for the common case.
func (m *machine) encodeLoadStore(buf *mcode.Buffer, bits int, isFloat, isLoad, signed bool, rt regalloc.RealReg, base regalloc.RealReg, imm int64) {
	scale := int64(bits / 8)
	if bits == 128 {
		scale = 16
	}
	if imm >= 0 && imm%scale == 0 && imm/scale <= 0xfff {
		encodeLoadStoreImm(buf, bits, isFloat, isLoad, signed, rt, base, imm)
		return
	}
	encodeMoveImm(buf, tmpReg2, uint64(imm), 64)
	encodeALURRR(buf, aluAdd, 64, tmpReg2, base, tmpReg2)
	encodeLoadStoreImm(buf, bits, isFloat, isLoad, signed, rt, tmpReg2, 0)
}

// constPoolBytes renders a kindFpuLoadLit's raw immediate bit pattern
// (stored in i.imm as the float's raw bits, zero-extended for a 32-bit
// float) back into the little-endian byte form the constant pool stores.
func constPoolBytes(widthBits byte, imm int64) []byte {
	if widthBits == 32 {
		v := uint32(imm)
		return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
	}
	v := uint64(imm)
	return []byte{
		byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24),
		byte(v >> 32), byte(v >> 40), byte(v >> 48), byte(v >> 56),
	}
}
