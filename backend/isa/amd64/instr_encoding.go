package amd64

import (
	"fmt"

	"github.com/joelreymont/machgen/backend"
	"github.com/joelreymont/machgen/backend/regalloc"
	"github.com/joelreymont/machgen/ir"
	"github.com/joelreymont/machgen/mcode"
)

// encode walks the function's final, register-allocated instruction list
// and emits each instr's machine code into buf, binding one mcode.Label
// per block exactly as arm64's encode does, so branch/call fixups can be
// recorded before every block's final address is known and resolved in
// one pass by mcode.Buffer once the whole function is laid out.
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

// rex builds a REX prefix byte. w selects the 64-bit operand size; r/x/b
// are the high (4th) bit of the ModRM.reg, SIB.index, and ModRM.rm/SIB.base
// fields respectively, set whenever the corresponding register is r8-r15
// (encNum >= 8).
func rex(w bool, r, x, b bool) byte {
	v := byte(0x40)
	if w {
		v |= 1 << 3
	}
	if r {
		v |= 1 << 2
	}
	if x {
		v |= 1 << 1
	}
	if b {
		v |= 1
	}
	return v
}

func hi(n byte) bool { return n >= 8 }

// emitModRMReg emits REX (if w or either operand needs it) +
// opcode byte(s) + a register-direct ModRM byte (mod=11) encoding reg and
// rm. force8 requests a REX prefix even when otherwise empty, needed for
// 8-bit operands on rsp/rbp/rsi/rdi to select spl/bpl/sil/dil over the
// legacy ah/ch/dh/bh encoding.
func emitModRMReg(buf *mcode.Buffer, w bool, force8 bool, reg, rm regalloc.RealReg, opcode ...byte) {
	rn, rmn := encNum(reg), encNum(rm)
	if w || hi(rn) || hi(rmn) || force8 {
		buf.Emit1(rex(w, hi(rn), false, hi(rmn)))
	}
	buf.EmitBytes(opcode)
	buf.Emit1(0xc0 | (rn&7)<<3 | (rmn & 7))
}

// emitModRMMem emits REX + opcode + a ModRM/SIB/disp32 addressing reg
// relative to [base+disp]. Always uses the disp32 form (mod=10) rather
// than the shorter disp8 encoding: simpler, and every offset this backend
// produces (spill slots, stack slots, struct fields) already fits disp32.
// A SIB byte is inserted whenever base's low 3 bits are 100 (rsp/r12),
// since ModRM.rm=100 in direct+disp form means "read a SIB byte" rather
// than naming rsp/r12 directly.
func emitModRMMem(buf *mcode.Buffer, w bool, reg, base regalloc.RealReg, disp int32, opcode ...byte) {
	rn, bn := encNum(reg), encNum(base)
	if w || hi(rn) || hi(bn) {
		buf.Emit1(rex(w, hi(rn), false, hi(bn)))
	}
	buf.EmitBytes(opcode)
	buf.Emit1(0x80 | (rn&7)<<3 | (bn & 7))
	if bn&7 == 4 {
		buf.Emit1(0x24) // SIB: scale=00, index=100 (none), base=100 (rsp/r12)
	}
	buf.Emit4(uint32(disp))
}

// emitModRMRipRel emits REX + opcode + a RIP-relative ModRM (mod=00,
// rm=101) followed by a disp32 placeholder, recording a rel32Fixup
// against it. Used only for float-literal loads out of the constant pool.
func emitModRMRipRel(buf *mcode.Buffer, w bool, reg regalloc.RealReg, opcode ...byte) int64 {
	rn := encNum(reg)
	if w || hi(rn) {
		buf.Emit1(rex(w, hi(rn), false, false))
	}
	buf.EmitBytes(opcode)
	buf.Emit1(0x00 | (rn&7)<<3 | 0x05)
	site := buf.CurrentOffset()
	buf.Emit4(0)
	return site
}

func encodeMovImm(buf *mcode.Buffer, rd regalloc.RealReg, imm uint64, bits byte) {
	n := encNum(rd)
	w := bits == 64
	buf.Emit1(rex(w, false, false, hi(n)))
	buf.Emit1(0xb8 | (n & 7))
	if w {
		buf.Emit8(imm)
	} else {
		buf.Emit4(uint32(imm))
	}
}

func encodeMovRR(buf *mcode.Buffer, w bool, rd, rn regalloc.RealReg) {
	// mov r/m, r: dest is the ModRM.rm (direct) operand, src is reg.
	emitModRMReg(buf, w, false, rn, rd, 0x89)
}

var aluRROpcode = [...]byte{aluAdd: 0x01, aluSub: 0x29, aluAnd: 0x21, aluOr: 0x09, aluXor: 0x31}
var aluImmExt = [...]byte{aluAdd: 0, aluSub: 5, aluAnd: 4, aluOr: 1, aluXor: 6}

// encodeALURR emits `rd (op)= rm` in place: ModRM.rm=rd (the destructive
// destination), reg=rm (the source), matching opcodes 0x01/0x29/... whose
// r/m operand is both read and written.
func encodeALURR(buf *mcode.Buffer, op aluOp, w bool, rd, rm regalloc.RealReg) {
	emitModRMReg(buf, w, false, rm, rd, aluRROpcode[op])
}

// encodeALURI emits `rd (op)= imm32` via the 0x81 /digit group, sign-
// extended to 64 bits when w.
func encodeALURI(buf *mcode.Buffer, op aluOp, w bool, rd regalloc.RealReg, imm int64) {
	n := encNum(rd)
	if w || hi(n) {
		buf.Emit1(rex(w, false, false, hi(n)))
	}
	buf.Emit1(0x81)
	buf.Emit1(0xc0 | aluImmExt[op]<<3 | (n & 7))
	buf.Emit4(uint32(imm))
}

func encodeNot(buf *mcode.Buffer, w bool, rd regalloc.RealReg) {
	n := encNum(rd)
	if w || hi(n) {
		buf.Emit1(rex(w, false, false, hi(n)))
	}
	buf.Emit1(0xf7)
	buf.Emit1(0xd0 | (n & 7)) // /2
}

func encodeNeg(buf *mcode.Buffer, w bool, rd regalloc.RealReg) {
	n := encNum(rd)
	if w || hi(n) {
		buf.Emit1(rex(w, false, false, hi(n)))
	}
	buf.Emit1(0xf7)
	buf.Emit1(0xd8 | (n & 7)) // /3
}

// encodeImulRR emits `rd *= rm` via the two-operand IMUL form (0F AF /r):
// dest is reg, src is r/m (direct), the mirror image of the ALU opcodes'
// operand order.
func encodeImulRR(buf *mcode.Buffer, w bool, rd, rm regalloc.RealReg) {
	emitModRMReg(buf, w, false, rd, rm, 0x0f, 0xaf)
}

var shiftExt = [...]byte{shiftShl: 4, shiftShr: 5, shiftSar: 7, shiftRol: 0, shiftRor: 1}

// encodeShiftCL emits `rd (shift)= cl` via the 0xD3 /digit group. The
// caller is responsible for having already moved the shift count into
// rcx (tmpCx); this only encodes the shift itself.
func encodeShiftCL(buf *mcode.Buffer, op shiftOp, w bool, rd regalloc.RealReg) {
	n := encNum(rd)
	if w || hi(n) {
		buf.Emit1(rex(w, false, false, hi(n)))
	}
	buf.Emit1(0xd3)
	buf.Emit1(0xc0 | shiftExt[op]<<3 | (n & 7))
}

// encodeMovzx/encodeMovsx zero/sign-extend rn's low srcBits into rd.
// srcBits == 32 has no movzx form (a plain 32-bit mov already zeroes the
// upper 32 bits of its 64-bit destination); movsxd (opcode 0x63) covers
// the sign-extending 32-to-64 case instead.
func encodeMovzx(buf *mcode.Buffer, rd, rn regalloc.RealReg, srcBits byte) {
	force8 := srcBits == 8
	switch srcBits {
	case 8:
		emitModRMReg(buf, true, force8, rd, rn, 0x0f, 0xb6)
	case 16:
		emitModRMReg(buf, true, false, rd, rn, 0x0f, 0xb7)
	default:
		emitModRMReg(buf, false, false, rn, rd, 0x89) // mov r32, r32 zero-extends.
	}
}

func encodeMovsx(buf *mcode.Buffer, rd, rn regalloc.RealReg, srcBits byte) {
	switch srcBits {
	case 8:
		emitModRMReg(buf, true, true, rd, rn, 0x0f, 0xbe)
	case 16:
		emitModRMReg(buf, true, false, rd, rn, 0x0f, 0xbf)
	default:
		emitModRMReg(buf, true, false, rd, rn, 0x63) // movsxd.
	}
}

func encodeCmpRR(buf *mcode.Buffer, w bool, rn, rm regalloc.RealReg) {
	// cmp r/m, r computes r/m - r: rn is the ModRM.rm operand so the
	// result is rn - rm, matching this backend's "compare rn against rm"
	// convention throughout lowerCondition.
	emitModRMReg(buf, w, false, rm, rn, 0x39)
}

var setccOpcode = [...]byte{
	ccE: 0x94, ccNE: 0x95, ccL: 0x9c, ccGE: 0x9d, ccG: 0x9f, ccLE: 0x9e,
	ccB: 0x92, ccAE: 0x93, ccA: 0x97, ccBE: 0x96, ccP: 0x9a, ccNP: 0x9b,
}

// encodeSetcc writes cc's boolean result into the low byte of rd, then
// movzx-extends it: SETcc leaves the destination's upper bits undefined,
// so a one-instruction SETcc is never sufficient on its own.
func encodeSetcc(buf *mcode.Buffer, cc0 cc, rd regalloc.RealReg) {
	n := encNum(rd)
	buf.Emit1(rex(false, false, false, hi(n)))
	buf.Emit1(0x0f)
	buf.Emit1(setccOpcode[cc0])
	buf.Emit1(0xc0 | (n & 7))
	encodeMovzx(buf, rd, rd, 8)
}

// --- SSE2 scalar float ---

func sseePrefix(buf *mcode.Buffer, is64 bool) {
	if is64 {
		buf.Emit1(0xf2) // REPNE -- scalar double.
	} else {
		buf.Emit1(0xf3) // REP -- scalar single.
	}
}

func encodeMovFpuRR(buf *mcode.Buffer, is64 bool, rd, rn regalloc.RealReg) {
	sseePrefix(buf, is64)
	emitModRMReg(buf, false, false, rd, rn, 0x0f, 0x10)
}

func encodeMovToFpu(buf *mcode.Buffer, is64 bool, rd, rn regalloc.RealReg) {
	// movq/movd xmm, gpr: 66 (REX.W?) 0F 6E /r.
	buf.Emit1(0x66)
	emitModRMReg(buf, is64, false, rd, rn, 0x0f, 0x6e)
}

func encodeMovFromFpu(buf *mcode.Buffer, is64 bool, rd, rn regalloc.RealReg) {
	// movq/movd gpr, xmm: 66 (REX.W?) 0F 7E /r.
	buf.Emit1(0x66)
	emitModRMReg(buf, is64, false, rn, rd, 0x0f, 0x7e)
}

var fpuRROpcode = [...]byte{fpuAdd: 0x58, fpuSub: 0x5c, fpuMul: 0x59, fpuDiv: 0x5e}

func encodeFpuRR(buf *mcode.Buffer, op fpuOp, is64 bool, rd, rm regalloc.RealReg) {
	sseePrefix(buf, is64)
	emitModRMReg(buf, false, false, rd, rm, 0x0f, fpuRROpcode[op])
}

// encodeFpuUnary emits sqrtsd/sqrtss (same width in and out) or
// cvtss2sd/cvtsd2ss (width-changing), all in the non-destructive
// prefix+0F+opcode+ModRM shape. is64 is the *source* width, used to pick
// the mandatory prefix; fpuUnaryCvt32To64/64To32 additionally fix the
// opcode regardless of is64 since a convert's direction already implies it.
func encodeFpuUnary(buf *mcode.Buffer, op fpuUnaryOp, is64 bool, rd, rn regalloc.RealReg) {
	switch op {
	case fpuUnarySqrt:
		sseePrefix(buf, is64)
		emitModRMReg(buf, false, false, rd, rn, 0x0f, 0x51)
	case fpuUnaryCvt32To64:
		buf.Emit1(0xf3)
		emitModRMReg(buf, false, false, rd, rn, 0x0f, 0x5a)
	case fpuUnaryCvt64To32:
		buf.Emit1(0xf2)
		emitModRMReg(buf, false, false, rd, rn, 0x0f, 0x5a)
	}
}

func encodeFpuCmp(buf *mcode.Buffer, is64 bool, rn, rm regalloc.RealReg) {
	if is64 {
		buf.Emit1(0x66)
	}
	emitModRMReg(buf, false, false, rn, rm, 0x0f, 0x2e) // (u)comisd/ss
}

// encodeCvtIntToFpu emits cvtsi2sd/cvtsi2ss rd(xmm), rn(gpr): intW64
// selects a 64- vs 32-bit integer source, floatIs64 selects the sd vs ss
// mnemonic (float64 vs float32 destination). Signed only: x86 has no
// unsigned integer-to-float convert, so FcvtFromUint is routed through a
// libcall instead of this path (see target.go).
func encodeCvtIntToFpu(buf *mcode.Buffer, intW64, floatIs64 bool, rd, rn regalloc.RealReg) {
	sseePrefix(buf, floatIs64)
	emitModRMReg(buf, intW64, false, rd, rn, 0x0f, 0x2a)
}

// encodeCvtFpuToInt emits cvttsd2si/cvttss2si rd(gpr), rn(xmm), truncating
// toward zero. Signed only, for the same reason as encodeCvtIntToFpu.
func encodeCvtFpuToInt(buf *mcode.Buffer, intW64, floatIs64 bool, rd, rn regalloc.RealReg) {
	sseePrefix(buf, floatIs64)
	emitModRMReg(buf, intW64, false, rd, rn, 0x0f, 0x2c)
}

// --- load/store ---

func encodeLoad(buf *mcode.Buffer, bits byte, isFloat bool, rd, base regalloc.RealReg, disp int32) {
	if isFloat {
		sseePrefix(buf, bits == 64)
		emitModRMMem(buf, false, rd, base, disp, 0x0f, 0x10)
		return
	}
	switch bits {
	case 64:
		emitModRMMem(buf, true, rd, base, disp, 0x8b)
	case 32:
		emitModRMMem(buf, false, rd, base, disp, 0x8b)
	case 16:
		buf.Emit1(0x66)
		emitModRMMem(buf, false, rd, base, disp, 0x0f, 0xb7)
	case 8:
		emitModRMMem(buf, false, rd, base, disp, 0x0f, 0xb6)
	}
}

func encodeLoadSigned(buf *mcode.Buffer, bits byte, rd, base regalloc.RealReg, disp int32) {
	switch bits {
	case 32:
		emitModRMMem(buf, true, rd, base, disp, 0x63) // movsxd
	case 16:
		buf.Emit1(0x66)
		emitModRMMem(buf, true, rd, base, disp, 0x0f, 0xbf)
	case 8:
		emitModRMMem(buf, true, rd, base, disp, 0x0f, 0xbe)
	}
}

func encodeStore(buf *mcode.Buffer, bits byte, isFloat bool, value, base regalloc.RealReg, disp int32) {
	if isFloat {
		sseePrefix(buf, bits == 64)
		emitModRMMem(buf, false, value, base, disp, 0x0f, 0x11)
		return
	}
	switch bits {
	case 64:
		emitModRMMem(buf, true, value, base, disp, 0x89)
	case 32:
		emitModRMMem(buf, false, value, base, disp, 0x89)
	case 16:
		buf.Emit1(0x66)
		emitModRMMem(buf, false, value, base, disp, 0x89)
	case 8:
		emitModRMMem(buf, false, value, base, disp, 0x88)
	}
}

// --- branches, calls, return ---

func encodeJmp(buf *mcode.Buffer, target mcode.Label) {
	buf.Emit1(0xe9)
	site := buf.CurrentOffset()
	buf.Emit4(0)
	buf.RecordFixup(site, rel32Fixup{}, target)
}

func encodeJcc(buf *mcode.Buffer, cc0 cc, target mcode.Label) {
	buf.Emit1(0x0f)
	buf.Emit1(0x80 | jccTttn[cc0])
	site := buf.CurrentOffset()
	buf.Emit4(0)
	buf.RecordFixup(site, rel32Fixup{}, target)
}

var jccTttn = [...]byte{
	ccE: 0x4, ccNE: 0x5, ccL: 0xc, ccGE: 0xd, ccG: 0xf, ccLE: 0xe,
	ccB: 0x2, ccAE: 0x3, ccA: 0x7, ccBE: 0x6, ccP: 0xa, ccNP: 0xb,
}

func encodeCallRel(buf *mcode.Buffer, c backend.Compiler, funcRef string) {
	buf.Emit1(0xe8)
	c.AddRelocation(buf, mcode.RelocationPLT32, funcRef, 0)
	buf.Emit4(0)
}

func encodeCallR(buf *mcode.Buffer, rn regalloc.RealReg) {
	n := encNum(rn)
	if hi(n) {
		buf.Emit1(rex(false, false, false, hi(n)))
	}
	buf.Emit1(0xff)
	buf.Emit1(0xd0 | (n & 7)) // /2
}

func encodeRet(buf *mcode.Buffer) { buf.Emit1(0xc3) }

func encodeUd2(buf *mcode.Buffer) { buf.Emit1(0x0f); buf.Emit1(0x0b) }

func encodeNop(buf *mcode.Buffer) { buf.Emit1(0x90) }

// constPoolBytes renders a float literal's raw bit pattern, little-endian.
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

// encodeInstr emits i's machine code, reading real registers out of its
// (by now allocated) VReg operands.
func (m *machine) encodeInstr(buf *mcode.Buffer, i *instr, labels map[ir.BasicBlockID]mcode.Label) error {
	rd, rn, rm := i.rd.RealReg(), i.rn.RealReg(), i.rm.RealReg()
	w := i.size == 64

	switch i.kind {
	case kindMovImm:
		encodeMovImm(buf, rd, uint64(i.imm), i.size)
	case kindMovRR:
		encodeMovRR(buf, w, rd, rn)
	case kindMovFpuRR:
		encodeMovFpuRR(buf, w, rd, rn)
	case kindMovToFpu:
		encodeMovToFpu(buf, w, rd, rn)
	case kindMovFromFpu:
		encodeMovFromFpu(buf, w, rd, rn)
	case kindALURR:
		encodeALURR(buf, i.aluOp, w, rd, rm)
	case kindALURI:
		encodeALURI(buf, i.aluOp, w, rd, i.imm)
	case kindNot:
		encodeNot(buf, w, rd)
	case kindNeg:
		encodeNeg(buf, w, rd)
	case kindImulRR:
		encodeImulRR(buf, w, rd, rm)
	case kindShiftCL:
		encodeShiftCL(buf, i.shiftOp, w, rd)
	case kindMovzx:
		encodeMovzx(buf, rd, rn, byte(i.imm))
	case kindMovsx:
		encodeMovsx(buf, rd, rn, byte(i.imm))
	case kindCmpRR:
		encodeCmpRR(buf, w, rn, rm)
	case kindSetcc:
		encodeSetcc(buf, i.cc, rd)
	case kindFpuRR:
		encodeFpuRR(buf, i.fpuOp, w, rd, rm)
	case kindFpuUnary:
		encodeFpuUnary(buf, i.fpuUnaryOp, w, rd, rn)
	case kindFpuCmp:
		encodeFpuCmp(buf, w, rn, rm)
	case kindCvtIntToFpu:
		encodeCvtIntToFpu(buf, i.size == 64, i.imm == 64, rd, rn)
	case kindCvtFpuToInt:
		encodeCvtFpuToInt(buf, i.size == 64, i.imm == 64, rd, rn)

	case kindLoad:
		if i.signed {
			encodeLoadSigned(buf, i.size, rd, rn, int32(i.imm))
		} else {
			encodeLoad(buf, i.size, i.indirect, rd, rn, int32(i.imm))
		}
	case kindStore:
		encodeStore(buf, i.size, i.indirect, rn, rm, int32(i.imm))

	case kindFpuLoadLit:
		data := constPoolBytes(i.size, i.imm)
		align := int64(i.size) / 8
		label := buf.ConstPool().Add(buf, data, align, rel32Fixup{})
		sseePrefix(buf, i.size == 64)
		site := emitModRMRipRel(buf, false, rd, 0x0f, 0x10)
		buf.RecordFixup(site, rel32Fixup{}, label)

	case kindLoadAddr:
		emitModRMMem(buf, true, rd, rn, int32(i.imm), 0x8d) // lea

	case kindJmp:
		encodeJmp(buf, labels[i.targetBlock])
	case kindJcc:
		encodeJcc(buf, i.cc, labels[i.targetBlock])
	case kindCall:
		encodeCallRel(buf, m.compiler, i.funcRef)
	case kindCallR:
		encodeCallR(buf, rn)
	case kindRet:
		encodeRet(buf)
	case kindUd2:
		buf.RecordTrap(mcode.Trap{Offset: buf.CurrentOffset(), Code: mcode.TrapCode(i.imm)})
		encodeUd2(buf)
	case kindNop:
		encodeNop(buf)

	default:
		return fmt.Errorf("amd64: encode: unhandled instruction kind %d", i.kind)
	}
	return nil
}
