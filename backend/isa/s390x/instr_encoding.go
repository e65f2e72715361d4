package s390x

import (
	"fmt"

	"github.com/joelreymont/machgen/backend"
	"github.com/joelreymont/machgen/backend/regalloc"
	"github.com/joelreymont/machgen/ir"
	"github.com/joelreymont/machgen/mcode"
)

// z/Architecture opcodes this backend emits, named the way the
// Principles of Operation names them. Every instruction here is
// big-endian, as mcode.NewBuffer's doc comment anticipates for this
// target specifically.
const (
	opAGR  = 0xb908 // RRE: add, 64-bit
	opSGR  = 0xb909 // RRE: subtract, 64-bit
	opNGR  = 0xb980 // RRE: and, 64-bit
	opOGR  = 0xb981 // RRE: or, 64-bit
	opXGR  = 0xb982 // RRE: xor, 64-bit
	opMSGR = 0xb90c // RRE: multiply single, 64-bit
	opLGR  = 0xb904 // RRE: load (register move), 64-bit
	opCGR  = 0xb920 // RRE: compare, 64-bit signed
	opCLGR = 0xb921 // RRE: compare logical, 64-bit unsigned

	opLGFI = 0xc001 // RIL-a: load immediate, sign-extended 32->64
	opAGFI = 0xc208 // RIL-a: add immediate, sign-extended 32->64
	opIIHF = 0xc008 // RIL-a: insert immediate, high fullword
	opIILF = 0xc009 // RIL-a: insert immediate, low fullword

	opSLLG = 0xeb0d // RSY-a: shift left logical, 64-bit
	opSRLG = 0xeb0c // RSY-a: shift right logical, 64-bit
	opSRAG = 0xeb0a // RSY-a: shift right arithmetic, 64-bit

	opLG   = 0xe304 // RXY-a: load, 64-bit
	opLGF  = 0xe314 // RXY-a: load, 32-bit sign-extended
	opLLGF = 0xe316 // RXY-a: load, 32-bit zero-extended
	opLGH  = 0xe315 // RXY-a: load, 16-bit sign-extended
	opLLGH = 0xe391 // RXY-a: load, 16-bit zero-extended
	opLGB  = 0xe377 // RXY-a: load, 8-bit sign-extended
	opLLGC = 0xe390 // RXY-a: load, 8-bit zero-extended
	opSTG  = 0xe324 // RXY-a: store, 64-bit
	opSTY  = 0xe350 // RXY-a: store, 32-bit
	opSTHY = 0xe370 // RXY-a: store, 16-bit
	opSTCY = 0xe372 // RXY-a: store, 8-bit

	opBRASL = 0xc005 // RIL-b: branch relative and save long (call)
	opBASR  = 0x0d   // RR: branch and save (indirect call)
	opBCR   = 0x07   // RR: branch on condition, register form (used for return)
	opBRC   = 0xa704 // RI-c: branch on condition, relative short
	opBRCL  = 0xc004 // RIL-c: branch on condition, relative long
)

// encode walks the function's final, register-allocated instruction list
// and emits each instr's machine code into buf, binding one mcode.Label
// per block, the same shape every backend in this module's encode uses.
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

	return buf.ResolveFixups()
}

// encodeRRE emits a 4-byte register-register instruction: a 16-bit
// opcode, a reserved zero byte, then R1/R2 in a single byte's nibbles.
func encodeRRE(buf *mcode.Buffer, op uint32, r1, r2 regalloc.RealReg) {
	buf.Emit2(uint16(op))
	buf.Emit1(0)
	buf.Emit1(byte(encNum(r1)<<4 | encNum(r2)))
}

// encodeRR emits a 2-byte register-register instruction (BASR, BCR):
// one opcode byte followed by one byte packing R1/R2 (or a mask/R2 pair
// for the condition-code forms).
func encodeRR(buf *mcode.Buffer, op byte, r1nibble, r2 uint32) {
	buf.Emit1(op)
	buf.Emit1(byte(r1nibble<<4 | r2))
}

// encodeRIL emits a 6-byte RIL-a/b instruction: an 8-bit opcode, a
// nibble pair (R1 and a 4-bit opcode extension), then a 32-bit
// immediate or relative-relative field.
func encodeRIL(buf *mcode.Buffer, op uint32, r1 uint32, i2 uint32) {
	buf.Emit1(byte(op >> 8))
	buf.Emit1(byte(r1<<4 | (op & 0xf)))
	buf.Emit4(i2)
}

// encodeRSY emits a 6-byte shift instruction: the shift amount is a
// base register (b2) plus a 20-bit displacement (d2), summed at run
// time to give the actual count; an immediate shift count is expressed
// with b2 = 0 (no base contributes) and d2 = the count, a variable
// (register) shift count with b2 = the count register and d2 = 0,
// exactly as the Principles of Operation specifies for SLLG/SRLG/SRAG.
func encodeRSY(buf *mcode.Buffer, op uint32, r1, r3, b2 regalloc.RealReg, d2 int64) {
	d := uint32(d2) & 0xfffff
	buf.Emit1(byte(op >> 8))
	buf.Emit1(byte(encNum(r1)<<4 | encNum(r3)))
	buf.Emit1(byte(encNum(b2)<<4 | d>>8&0xf))
	buf.Emit1(byte(d))
	buf.Emit1(byte(d >> 12))
	buf.Emit1(byte(op))
}

// encodeRXY emits a 6-byte load/store instruction with a 20-bit signed
// displacement split across DL2 (low 12 bits) and DH2 (high 8 bits).
func encodeRXY(buf *mcode.Buffer, op uint32, r1 regalloc.RealReg, x2 uint32, b2 regalloc.RealReg, disp int64) {
	d := uint32(disp) & 0xfffff
	buf.Emit1(byte(op >> 8))
	buf.Emit1(byte(encNum(r1)<<4 | x2))
	buf.Emit1(byte(encNum(b2)<<4 | d>>8&0xf))
	buf.Emit1(byte(d))
	buf.Emit1(byte(d >> 12))
	buf.Emit1(byte(op))
}

func encodeMov(buf *mcode.Buffer, rd, rn regalloc.RealReg) { encodeRRE(buf, opLGR, rd, rn) }

var aluRREOp = [...]uint32{aluAdd: opAGR, aluSub: opSGR, aluAnd: opNGR, aluOr: opOGR, aluXor: opXGR, aluMul: opMSGR}

func encodeALURRR(buf *mcode.Buffer, op aluOp, rd, rn, rm regalloc.RealReg) {
	// G-form arithmetic accumulates into its first operand; lower.go
	// guarantees rd == rn by inserting a kindMovReg ahead of any instr
	// where they'd otherwise differ, so rn is never consulted here.
	encodeRRE(buf, aluRREOp[op], rd, rm)
}

func shiftOpcode(op aluOp) uint32 {
	switch op {
	case aluSll:
		return opSLLG
	case aluSrl:
		return opSRLG
	case aluSra:
		return opSRAG
	default:
		panic("s390x: not a shift op")
	}
}

// encodeShiftImm emits a shift by a literal count: b2 = 0 so no base
// register contributes, leaving d2 as the count on its own.
func encodeShiftImm(buf *mcode.Buffer, op aluOp, rd, rn regalloc.RealReg, amount int64) {
	encodeRSY(buf, shiftOpcode(op), rd, rn, 0, amount)
}

// encodeShiftReg emits a shift by a runtime count held in countReg: b2 =
// countReg, d2 = 0, so the count is exactly that register's contents.
func encodeShiftReg(buf *mcode.Buffer, op aluOp, rd, rn, countReg regalloc.RealReg) {
	encodeRSY(buf, shiftOpcode(op), rd, rn, countReg, 0)
}

// encodeLoadImm64 materializes an arbitrary 64-bit constant with IIHF
// (high 32 bits) followed by IILF (low 32 bits); LGFI alone only reaches
// the sign-extended-32-bit subset.
func encodeLoadImm64(buf *mcode.Buffer, rd regalloc.RealReg, v uint64) {
	hi, lo := uint32(v>>32), uint32(v)
	if int64(v) == int64(int32(lo)) {
		encodeRIL(buf, opLGFI, encNum(rd), lo)
		return
	}
	encodeRIL(buf, opIIHF, encNum(rd), hi)
	encodeRIL(buf, opIILF, encNum(rd), lo)
}

var loadOp = [...]uint32{8: opLGB, 16: opLGH, 32: opLGF, 64: opLG}
var loadUOp = [...]uint32{8: opLLGC, 16: opLLGH, 32: opLLGF}

func encodeLoad(buf *mcode.Buffer, bits byte, signed bool, rd, base regalloc.RealReg, disp int64) {
	op := loadOp[bits]
	if !signed && bits != 64 {
		op = loadUOp[bits]
	}
	encodeRXY(buf, op, rd, 0, base, disp)
}

var storeOp = [...]uint32{8: opSTCY, 16: opSTHY, 32: opSTY, 64: opSTG}

func encodeStore(buf *mcode.Buffer, bits byte, value, base regalloc.RealReg, disp int64) {
	encodeRXY(buf, storeOp[bits], value, 0, base, disp)
}

// encodeBRC emits a short conditional branch with a zero placeholder
// displacement and records a brcFixup against label.
func encodeBRC(buf *mcode.Buffer, cond branchCond, label mcode.Label) {
	site := buf.CurrentOffset()
	buf.Emit1(byte(opBRC >> 8))
	buf.Emit1(byte(cond.mask()<<4 | (opBRC & 0xf)))
	buf.Emit2(0)
	buf.RecordFixup(site, brcFixup{}, label)
}

// encodeJ emits an unconditional branch (BRC with mask 15) and records a
// brcFixup against label.
func encodeJ(buf *mcode.Buffer, label mcode.Label) {
	site := buf.CurrentOffset()
	buf.Emit1(byte(opBRC >> 8))
	buf.Emit1(byte(0xf<<4 | (opBRC & 0xf)))
	buf.Emit2(0)
	buf.RecordFixup(site, brcFixup{}, label)
}

func encodeRet(buf *mcode.Buffer) {
	encodeRR(buf, opBCR, 0xf, encNum(rLR))
}

// encodeCall emits a BRASL with a zero placeholder displacement,
// recording a relocation against funcRef that is resolved at link time,
// the way every other backend's call site does. No in-module fixup is
// recorded, so the displacement is never patched here.
func encodeCall(buf *mcode.Buffer, c backend.Compiler, funcRef string) {
	c.AddRelocation(buf, mcode.RelocationPC32Dbl, funcRef, 0)
	buf.Emit1(byte(opBRASL >> 8))
	buf.Emit1(byte(encNum(rLR)<<4 | (opBRASL & 0xf)))
	buf.Emit4(0)
}

func encodeCallR(buf *mcode.Buffer, rn regalloc.RealReg) {
	encodeRR(buf, opBASR, encNum(rLR), encNum(rn))
}

// encodeTrap emits an illegal two-byte instruction word z/Architecture
// itself reserves as permanently undefined, the closest analogue to
// arm64's UDF/amd64's UD2/riscv64's ebreak on this ISA.
func encodeTrap(buf *mcode.Buffer) {
	buf.Emit2(0x0000)
}

func encodeNop(buf *mcode.Buffer) {
	// BCR 0, 0: branch on condition with an always-false mask, the
	// Principles of Operation's own canonical no-op encoding.
	encodeRR(buf, opBCR, 0, 0)
}

// encodeInstr emits i's machine code, reading real registers out of its
// (by now allocated) VReg operands.
func (m *machine) encodeInstr(buf *mcode.Buffer, i *instr, labels map[ir.BasicBlockID]mcode.Label) error {
	rd, rn, rm := i.rd.RealReg(), i.rn.RealReg(), i.rm.RealReg()

	switch i.kind {
	case kindLoadImm:
		encodeLoadImm64(buf, rd, uint64(i.imm))
	case kindMovReg:
		encodeMov(buf, rd, rn)
	case kindExtend:
		// Sign/zero-extend rn's low i.size bits into rd: SLLG rd,rn,64-n
		// shifts the value into the top of the register, then SRAG (signed)
		// or SRLG (unsigned) shifts it back down, replicating the sign bit
		// along the way for a signed extension -- this ISA's G-form has no
		// dedicated narrow-to-wide sign-extend instruction for arbitrary
		// bit widths the way LGFR/LGHR/LGBR cover only the fixed 32/16/8
		// cases.
		shift := int64(64) - int64(i.size)
		encodeRSY(buf, opSLLG, rd, rn, 0, shift)
		if i.signed {
			encodeRSY(buf, opSRAG, rd, rd, 0, shift)
		} else {
			encodeRSY(buf, opSRLG, rd, rd, 0, shift)
		}
	case kindALURRR:
		if i.aluOp == aluSll || i.aluOp == aluSrl || i.aluOp == aluSra {
			encodeShiftReg(buf, i.aluOp, rd, rn, rm)
			break
		}
		encodeALURRR(buf, i.aluOp, rd, rn, rm)
	case kindALURRI:
		switch i.aluOp {
		case aluSll, aluSrl, aluSra:
			encodeShiftImm(buf, i.aluOp, rd, rn, i.imm)
		case aluAdd, aluSub:
			// AGFI accumulates into its own register operand;
			// machine_pro_epi_logue.go always builds these with rd == rn
			// (sp, adjusting itself), so no preceding move is needed.
			imm := i.imm
			if i.aluOp == aluSub {
				imm = -imm
			}
			encodeRIL(buf, opAGFI, encNum(rd), uint32(imm))
		default:
			return fmt.Errorf("s390x: encode: no register-immediate form for alu op %d", i.aluOp)
		}

	case kindLoad:
		encodeLoad(buf, i.size, i.signed, rd, rn, i.imm)
	case kindStore:
		encodeStore(buf, i.size, rn, rm, i.imm)

	case kindCmp:
		if i.unsigned {
			encodeRRE(buf, opCLGR, rn, rm)
		} else {
			encodeRRE(buf, opCGR, rn, rm)
		}

	case kindJ:
		encodeJ(buf, labels[i.targetBlock])
	case kindBranch:
		encodeBRC(buf, i.cond, labels[i.targetBlock])
	case kindCall:
		encodeCall(buf, m.compiler, i.funcRef)
	case kindCallR:
		encodeCallR(buf, rn)
	case kindRet:
		encodeRet(buf)

	case kindTrap:
		buf.RecordTrap(mcode.Trap{Offset: buf.CurrentOffset(), Code: mcode.TrapCode(i.imm)})
		encodeTrap(buf)
	case kindNop:
		encodeNop(buf)

	default:
		return fmt.Errorf("s390x: encode: unhandled instruction kind %d", i.kind)
	}
	return nil
}
