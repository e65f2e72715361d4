package riscv64

import (
	"fmt"

	"github.com/joelreymont/machgen/backend"
	"github.com/joelreymont/machgen/backend/regalloc"
	"github.com/joelreymont/machgen/ir"
	"github.com/joelreymont/machgen/mcode"
)

// RV64 base opcodes (the low 7 bits of every instruction word).
const (
	opLoad    = 0x03
	opOpImm   = 0x13
	opAuipc   = 0x17
	opOpImm32 = 0x1b
	opStore   = 0x23
	opOp      = 0x33
	opLui     = 0x37
	opOp32    = 0x3b
	opBranch  = 0x63
	opJALR    = 0x67
	opJAL     = 0x6f
)

// encode walks the function's final, register-allocated instruction list
// and emits each instr's machine code into buf, binding one mcode.Label
// per block exactly as arm64/amd64's encode does.
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

func encodeRType(buf *mcode.Buffer, funct7 uint32, rs2, rs1 regalloc.RealReg, funct3 uint32, rd regalloc.RealReg, opcode uint32) {
	word := funct7<<25 | encNum(rs2)<<20 | encNum(rs1)<<15 | funct3<<12 | encNum(rd)<<7 | opcode
	buf.Emit4(word)
}

func encodeIType(buf *mcode.Buffer, imm12 int64, rs1 regalloc.RealReg, funct3 uint32, rd regalloc.RealReg, opcode uint32) {
	word := (uint32(imm12)&0xfff)<<20 | encNum(rs1)<<15 | funct3<<12 | encNum(rd)<<7 | opcode
	buf.Emit4(word)
}

func encodeSType(buf *mcode.Buffer, imm12 int64, rs2, rs1 regalloc.RealReg, funct3 uint32, opcode uint32) {
	u := uint32(imm12)
	word := (u>>5&0x7f)<<25 | encNum(rs2)<<20 | encNum(rs1)<<15 | funct3<<12 | (u&0x1f)<<7 | opcode
	buf.Emit4(word)
}

func encodeUType(buf *mcode.Buffer, imm20 int64, rd regalloc.RealReg, opcode uint32) {
	word := (uint32(imm20)&0xfffff)<<12 | encNum(rd)<<7 | opcode
	buf.Emit4(word)
}

// encodeShiftImm emits SLLI/SRLI/SRAI, whose 6-bit shamt and distinguishing
// funct6 (0 for a logical shift, 0b010000 for SRAI) occupy the bits an
// ordinary I-type instruction would use for its 12-bit immediate.
func encodeShiftImm(buf *mcode.Buffer, arithmetic bool, shamt int64, rs1 regalloc.RealReg, rd regalloc.RealReg, funct3 uint32, opcode uint32) {
	funct6 := uint32(0)
	if arithmetic {
		funct6 = 0b010000
	}
	word := funct6<<26 | (uint32(shamt)&0x3f)<<20 | encNum(rs1)<<15 | funct3<<12 | encNum(rd)<<7 | opcode
	buf.Emit4(word)
}

// aluRFunct3/aluRFunct7 give the R-type (register-register) encoding of
// every aluOp that has one; aluOps without a register-register encoding
// below this point (the boolean-producing slt/sltu still do) are handled
// by the ALURRI path instead.
var aluRFunct3 = [...]uint32{
	aluAdd: 0x0, aluSub: 0x0, aluAnd: 0x7, aluOr: 0x6, aluXor: 0x4,
	aluSll: 0x1, aluSrl: 0x5, aluSra: 0x5, aluSlt: 0x2, aluSltu: 0x3,
	aluMul: 0x0, aluMulh: 0x1, aluMulhu: 0x3, aluDiv: 0x4, aluDivu: 0x5, aluRem: 0x6, aluRemu: 0x7,
}

func aluRFunct7(op aluOp, w32 bool) uint32 {
	switch op {
	case aluSub, aluSra:
		return 0b0100000
	case aluMul, aluMulh, aluMulhu, aluDiv, aluDivu, aluRem, aluRemu:
		return 0b0000001
	default:
		return 0
	}
}

// encodeALURRR emits an R-type instruction. aluOp has no MULHSU entry
// (funct3 2 under the M-extension funct7), so a signed*unsigned high
// multiply is never encoded.
func encodeALURRR(buf *mcode.Buffer, op aluOp, w32 bool, rd, rn, rm regalloc.RealReg) {
	opcode := uint32(opOp)
	if w32 {
		opcode = opOp32
	}
	encodeRType(buf, aluRFunct7(op, w32), rm, rn, aluRFunct3[op], rd, opcode)
}

// aluIFunct3 gives OP-IMM's funct3 for every aluOp with an immediate
// form; shift ops are never dispatched through here (see encodeShiftImm).
var aluIFunct3 = [...]uint32{
	aluAdd: 0x0, aluAnd: 0x7, aluOr: 0x6, aluXor: 0x4, aluSlt: 0x2, aluSltu: 0x3,
}

func encodeALURRI(buf *mcode.Buffer, op aluOp, w32 bool, rd, rn regalloc.RealReg, imm int64) {
	opcode := uint32(opOpImm)
	if w32 {
		opcode = opOpImm32
	}
	encodeIType(buf, imm, rn, aluIFunct3[op], rd, opcode)
}

func encodeShift(buf *mcode.Buffer, op aluOp, w32 bool, rd, rn regalloc.RealReg, shamt int64) {
	opcode := uint32(opOpImm)
	if w32 {
		opcode = opOpImm32
	}
	funct3 := uint32(0x1) // slli
	if op != aluSll {
		funct3 = 0x5 // srli/srai
	}
	encodeShiftImm(buf, op == aluSra, shamt, rn, rd, funct3, opcode)
}

func encodeLui(buf *mcode.Buffer, rd regalloc.RealReg, imm20 int64) {
	encodeUType(buf, imm20, rd, opLui)
}

var loadFunct3 = [...]uint32{8: 0x0, 16: 0x1, 32: 0x2, 64: 0x3}
var loadUFunct3 = [...]uint32{8: 0x4, 16: 0x5, 32: 0x6}

func encodeLoad(buf *mcode.Buffer, bits byte, signed bool, rd, base regalloc.RealReg, imm int64) {
	f3 := loadFunct3[bits]
	if !signed && bits != 64 {
		f3 = loadUFunct3[bits]
	}
	encodeIType(buf, imm, base, f3, rd, opLoad)
}

var storeFunct3 = [...]uint32{8: 0x0, 16: 0x1, 32: 0x2, 64: 0x3}

func encodeStore(buf *mcode.Buffer, bits byte, value, base regalloc.RealReg, imm int64) {
	encodeSType(buf, imm, value, base, storeFunct3[bits], opStore)
}

func encodeJALR(buf *mcode.Buffer, rd, rn regalloc.RealReg, imm int64) {
	encodeIType(buf, imm, rn, 0, rd, opJALR)
}

var branchFunct3 = [...]uint32{condBeq: 0x0, condBne: 0x1, condBlt: 0x4, condBge: 0x5, condBltu: 0x6, condBgeu: 0x7}

// encodeBranch emits a conditional branch with a zero placeholder
// immediate and records a branchFixup against label, resolved once the
// label's final position is known.
func encodeBranch(buf *mcode.Buffer, cond branchCond, rn, rm regalloc.RealReg, label mcode.Label) {
	site := buf.CurrentOffset()
	word := branchFunct3[cond]<<12 | encNum(rm)<<20 | encNum(rn)<<15 | opBranch
	buf.Emit4(word)
	buf.RecordFixup(site, branchFixup{}, label)
}

// encodeJ emits an unconditional jump (jal x0, label) with a zero
// placeholder immediate and records a jalFixup against label.
func encodeJ(buf *mcode.Buffer, label mcode.Label) {
	site := buf.CurrentOffset()
	buf.Emit4(uint32(opJAL)) // rd = x0
	buf.RecordFixup(site, jalFixup{}, label)
}

func encodeRet(buf *mcode.Buffer) {
	// jalr x0, ra, 0
	encodeJALR(buf, xZero, xRa, 0)
}

// encodeCall emits the auipc/jalr pair RelocationCall patches as a unit:
// auipc ra, 0 followed by jalr ra, ra, 0, both immediates left zero for
// the linker/loader to fill in against funcRef's resolved address.
func encodeCall(buf *mcode.Buffer, c backend.Compiler, funcRef string) {
	c.AddRelocation(buf, mcode.RelocationCall, funcRef, 0)
	encodeUType(buf, 0, xRa, opAuipc)
	encodeJALR(buf, xRa, xRa, 0)
}

func encodeCallR(buf *mcode.Buffer, rn regalloc.RealReg) {
	encodeJALR(buf, xRa, rn, 0)
}

// encodeTrap emits an ebreak, the RV64 debugger-trap instruction, RV's
// closest analogue to arm64's UDF/amd64's UD2.
func encodeTrap(buf *mcode.Buffer) {
	buf.Emit4(0x00100073)
}

func encodeNop(buf *mcode.Buffer) {
	// addi x0, x0, 0
	encodeIType(buf, 0, regalloc.RealReg(xZero), 0, regalloc.RealReg(xZero), opOpImm)
}

// encodeInstr emits i's machine code, reading real registers out of its
// (by now allocated) VReg operands.
func (m *machine) encodeInstr(buf *mcode.Buffer, i *instr, labels map[ir.BasicBlockID]mcode.Label) error {
	rd, rn, rm := i.rd.RealReg(), i.rn.RealReg(), i.rm.RealReg()
	w32 := i.size == 32

	switch i.kind {
	case kindLui:
		encodeLui(buf, rd, i.imm)
	case kindMovReg:
		encodeALURRI(buf, aluAdd, false, rd, rn, 0)
	case kindALURRR:
		encodeALURRR(buf, i.aluOp, w32, rd, rn, rm)
	case kindALURRI:
		switch i.aluOp {
		case aluSll, aluSrl, aluSra:
			encodeShift(buf, i.aluOp, w32, rd, rn, i.imm)
		default:
			encodeALURRI(buf, i.aluOp, w32, rd, rn, i.imm)
		}
	case kindExtend:
		// Sign/zero-extend rn's low i.imm bits into rd via a left shift
		// into the sign position followed by a matching right shift:
		// SLLI rd,rn,64-n ; SRAI/SRLI rd,rd,64-n.
		shift := int64(64) - i.imm
		encodeShiftImm(buf, false, shift, rn, rd, 0x1, opOpImm)
		encodeShiftImm(buf, i.signed, shift, rd, rd, 0x5, opOpImm)

	case kindLoad:
		encodeLoad(buf, i.size, i.signed, rd, rn, i.imm)
	case kindStore:
		encodeStore(buf, i.size, rn, rm, i.imm)

	case kindJ:
		encodeJ(buf, labels[i.targetBlock])
	case kindBranch:
		encodeBranch(buf, i.cond, rn, rm, labels[i.targetBlock])
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
		return fmt.Errorf("riscv64: encode: unhandled instruction kind %d", i.kind)
	}
	return nil
}
