package arm64

import (
	"github.com/joelreymont/machgen/backend/regalloc"
	"github.com/joelreymont/machgen/mcode"
)

func sf(size byte) uint32 {
	if size == 64 {
		return 1
	}
	return 0
}

// encodeMoveImm appends the shortest MOVZ/MOVN + MOVK chain materializing
// value (truncated to width bits) into rd, choosing MOVN when most
// 16-bit chunks are already 0xffff (the "bitwise-inverted patterns" case
// worth noting) and MOVZ otherwise. Grounded on the move-immediate
// synthesis every ISA's constant lowering performs; wazero's arm64
// lowerConstant does the same chunk-counting choice.
func encodeMoveImm(b *mcode.Buffer, rd regalloc.RealReg, value uint64, width byte) {
	nChunks := 4
	if width == 32 {
		nChunks = 2
	}
	chunk := func(v uint64, i int) uint16 { return uint16(v >> uint(i*16)) }

	if value == 0 {
		emitMovWide(b, 0b10, width, 0, 0, rd)
		return
	}
	full := ^uint64(0)
	if width == 32 {
		full = 0xffffffff
	}
	if value == full {
		emitMovWide(b, 0b00, width, 0, 0, rd)
		return
	}

	nonZero, allOnes := 0, 0
	for i := 0; i < nChunks; i++ {
		c := chunk(value, i)
		if c != 0 {
			nonZero++
		}
		if c == 0xffff {
			allOnes++
		}
	}

	if nonZero <= nChunks-allOnes {
		first := true
		for i := 0; i < nChunks; i++ {
			c := chunk(value, i)
			if c == 0 && !(first && i == nChunks-1) {
				continue
			}
			if first {
				emitMovWide(b, 0b10, width, uint32(i), uint32(c), rd)
				first = false
			} else {
				emitMovWide(b, 0b11, width, uint32(i), uint32(c), rd)
			}
		}
		return
	}

	first := true
	for i := 0; i < nChunks; i++ {
		c := chunk(value, i)
		if c == 0xffff && !(first && i == nChunks-1) {
			continue
		}
		if first {
			emitMovWide(b, 0b00, width, uint32(i), uint32(^c), rd)
			first = false
		} else {
			emitMovWide(b, 0b11, width, uint32(i), uint32(c), rd)
		}
	}
}

// emitMovWide encodes one MOVZ(opc=10)/MOVN(opc=00)/MOVK(opc=11) instruction.
func emitMovWide(b *mcode.Buffer, opc uint32, width byte, hw, imm16 uint32, rd regalloc.RealReg) {
	word := sf(width)<<31 | opc<<29 | uint32(0b100101)<<23 | hw<<21 | (imm16&0xffff)<<5 | encNum(rd)
	b.Emit4(word)
}

// encodeALURRR emits an add/sub/and/orr/eor/orn (shifted register, shift
// amount fixed at 0) instruction.
func encodeALURRR(b *mcode.Buffer, op aluOp, width byte, rd, rn, rm regalloc.RealReg) {
	var word uint32
	switch op {
	case aluAdd, aluSub:
		opBit := uint32(0)
		if op == aluSub {
			opBit = 1
		}
		word = sf(width)<<31 | opBit<<30 | 0<<29 | uint32(0b01011)<<24 | encNum(rm)<<16 | encNum(rn)<<5 | encNum(rd)
	case aluAnd, aluOrr, aluEor, aluOrn:
		opc := map[aluOp]uint32{aluAnd: 0, aluOrr: 1, aluEor: 2}[op]
		n := uint32(0)
		if op == aluOrn {
			opc, n = 1, 1
		}
		word = sf(width)<<31 | opc<<29 | uint32(0b01010)<<24 | n<<21 | encNum(rm)<<16 | encNum(rn)<<5 | encNum(rd)
	}
	b.Emit4(word)
}

// encodeALURRI emits an add/sub (12-bit immediate, optionally LSL#12) or
// and/orr/eor (bitmask immediate) instruction. Callers must have already
// confirmed the immediate fits (encodeLogicalImm succeeded, or the value
// fits unsigned 12 bits) before calling this.
func encodeALURRI(b *mcode.Buffer, op aluOp, width byte, rd, rn regalloc.RealReg, imm uint64) {
	switch op {
	case aluAdd, aluSub:
		opBit := uint32(0)
		if op == aluSub {
			opBit = 1
		}
		shift := uint32(0)
		u := imm
		if u > 0xfff {
			shift, u = 1, u>>12
		}
		word := sf(width)<<31 | opBit<<30 | uint32(0b100010)<<23 | shift<<22 | uint32(u&0xfff)<<10 | encNum(rn)<<5 | encNum(rd)
		b.Emit4(word)
	case aluAnd, aluOrr, aluEor:
		opc := map[aluOp]uint32{aluAnd: 0, aluOrr: 1, aluEor: 2}[op]
		n, immr, imms, ok := encodeLogicalImm(imm, int(width))
		if !ok {
			panic("arm64: logical immediate not representable")
		}
		word := sf(width)<<31 | opc<<29 | uint32(0b100100)<<23 | n<<22 | immr<<16 | imms<<10 | encNum(rn)<<5 | encNum(rd)
		b.Emit4(word)
	}
}

func encodeShiftRR(b *mcode.Buffer, op shiftOp, width byte, rd, rn, rm regalloc.RealReg) {
	opc := map[shiftOp]uint32{shiftLsl: 0b1000, shiftLsr: 0b1001, shiftAsr: 0b1010, shiftRor: 0b1011}[op]
	word := sf(width)<<31 | 1<<30 | 0<<29 | uint32(0b11010110)<<21 | encNum(rm)<<16 | opc<<10 | encNum(rn)<<5 | encNum(rd)
	b.Emit4(word)
}

// encodeMul emits MADD rd, rn, rm, xzr (the MUL alias).
func encodeMul(b *mcode.Buffer, width byte, rd, rn, rm regalloc.RealReg) {
	encodeMsub(b, width, rd, rn, rm, xzrSp, false)
}

// encodeMsub emits MSUB (sub=true: rd = ra - rn*rm) or MADD (rd = ra + rn*rm).
func encodeMsub(b *mcode.Buffer, width byte, rd, rn, rm, ra regalloc.RealReg, sub bool) {
	o0 := uint32(0)
	if sub {
		o0 = 1
	}
	word := sf(width)<<31 | uint32(0b0011011000)<<21 | encNum(rm)<<16 | o0<<15 | encNum(ra)<<10 | encNum(rn)<<5 | encNum(rd)
	b.Emit4(word)
}

func encodeDiv(b *mcode.Buffer, width byte, rd, rn, rm regalloc.RealReg, signed bool) {
	o1 := uint32(1)
	if signed {
		o1 = 0
	}
	word := sf(width)<<31 | 1<<30 | uint32(0b11010110)<<21 | encNum(rm)<<16 | 0b00001<<11 | o1<<10 | encNum(rn)<<5 | encNum(rd)
	b.Emit4(word)
}

func encodeClz(b *mcode.Buffer, width byte, rd, rn regalloc.RealReg) {
	word := sf(width)<<31 | uint32(0b1_0_11010110_00000_000100)<<10 | encNum(rn)<<5 | encNum(rd)
	b.Emit4(word)
}

func encodeRbit(b *mcode.Buffer, width byte, rd, rn regalloc.RealReg) {
	word := sf(width)<<31 | uint32(0b1_0_11010110_00000_000000)<<10 | encNum(rn)<<5 | encNum(rd)
	b.Emit4(word)
}

// encodeExtend emits SBFM/UBFM sign/zero-extending rn's bottom srcBits
// into rd at destWidth, the SXTB/SXTH/SXTW/UXTB/UXTH/UXTW alias family
// generalized to one bitfield-move encoding. N must track sf (the 64-bit
// forms of these aliases always set N=1), not vary independently as it
// would for an arbitrary bitfield move.
func encodeExtend(b *mcode.Buffer, destWidth, srcBits byte, rd, rn regalloc.RealReg, signed bool) {
	opc := uint32(0b10)
	if signed {
		opc = 0b00
	}
	n := sf(destWidth)
	imms := uint32(srcBits) - 1
	word := sf(destWidth)<<31 | opc<<29 | uint32(0b100110)<<23 | n<<22 | imms<<10 | encNum(rn)<<5 | encNum(rd)
	b.Emit4(word)
}

// encodeCmpRR emits SUBS xzr, rn, rm (register compare, flags-only).
func encodeCmpRR(b *mcode.Buffer, width byte, rn, rm regalloc.RealReg) {
	word := sf(width)<<31 | 1<<30 | 1<<29 | uint32(0b01011)<<24 | encNum(rm)<<16 | encNum(rn)<<5 | encNum(xzrSp)
	b.Emit4(word)
}

func encodeCSel(b *mcode.Buffer, width byte, rd, rn, rm regalloc.RealReg, cond condFlag) {
	word := sf(width)<<31 | 1<<29 | uint32(0b11010100)<<21 | encNum(rm)<<16 | uint32(cond)<<12 | encNum(rn)<<5 | encNum(rd)
	b.Emit4(word)
}

// encodeCSet emits CSET rd, cond (the CSINC rd,xzr,xzr,invert(cond) alias).
func encodeCSet(b *mcode.Buffer, width byte, rd regalloc.RealReg, cond condFlag) {
	word := sf(width)<<31 | 1<<29 | uint32(0b11010100)<<21 | encNum(xzrSp)<<16 | uint32(cond.invert())<<12 | 1<<10 | encNum(xzrSp)<<5 | encNum(rd)
	b.Emit4(word)
}

// --- loads/stores ---
//
// size bits (31-30) select the access width: 00=8-bit,01=16-bit,10=32-bit,
// 11=64-bit. it matters that the 32- vs 64-bit distinction must be
// read from these bits, not from bit 31 alone (bit 31 is also set for the
// 8-bit and 16-bit unsigned-load opc variants on some forms).
func ldstSizeBits(bits int, isFloat bool) uint32 {
	switch bits {
	case 8:
		return 0b00
	case 16:
		return 0b01
	case 32:
		return 0b10
	case 64:
		return 0b11
	case 128:
		if isFloat {
			return 0b00 // 128-bit vector load/store uses size=00 with opc bit 2 set
		}
	}
	panic("arm64: unsupported load/store width")
}

// encodeLoadStoreImm emits LDR/STR (unsigned immediate) for integer or
// float/vector registers. imm is the byte offset (must be a non-negative
// multiple of the access size within a 0-4095*size window; callers larger
// than that must materialize the address into tmpReg2 first).
func encodeLoadStoreImm(b *mcode.Buffer, bitsWidth int, isFloat, isLoad, signed bool, rt, rn regalloc.RealReg, imm int64) {
	size := ldstSizeBits(bitsWidth, isFloat)
	scale := int64(bitsWidth / 8)
	imm12 := uint32((imm / scale) & 0xfff)

	var v, opc uint32
	if isFloat {
		v = 1
		if isLoad {
			opc = 0b01
		}
		if bitsWidth == 128 {
			opc |= 0b10
		}
	} else {
		if isLoad {
			opc = 0b01
			if signed {
				opc = 0b10
			}
		}
	}
	word := size<<30 | uint32(0b111_0_01)<<24 | v<<26 | opc<<22 | imm12<<10 | encNum(rn)<<5 | encNum(rt)
	b.Emit4(word)
}

// --- atomics: size-aware LDAXR/STLXR ---
//
// this needs size-aware acquire/release exclusive encoders that
// delegate to per-width forms rather than ever reaching a generic
// fallback; size occupies bits 31-30 exactly as with ordinary
// loads/stores (00=8,01=16,10=32,11=64), and there is no 8/16/32/64
// "shared" encoding path here: the caller always supplies bitsWidth and
// this function's size field is computed from it directly.
func encodeLdaxr(b *mcode.Buffer, bitsWidth int, rt, rn regalloc.RealReg) {
	size := ldstSizeBits(bitsWidth, false)
	word := size<<30 | uint32(0b001000)<<24 | 1<<22 | uint32(0b11111)<<16 | 1<<15 | uint32(0b11111)<<10 | encNum(rn)<<5 | encNum(rt)
	b.Emit4(word)
}

func encodeStlxr(b *mcode.Buffer, bitsWidth int, rs, rt, rn regalloc.RealReg) {
	size := ldstSizeBits(bitsWidth, false)
	word := size<<30 | uint32(0b001000)<<24 | encNum(rs)<<16 | 1<<15 | uint32(0b11111)<<10 | encNum(rn)<<5 | encNum(rt)
	b.Emit4(word)
}

// --- PC-relative ---
//
// ADR uses a 21-bit sign-extended byte offset; ADRP uses a 21-bit
// sign-extended *page* offset (the byte delta shifted right by 12),
// enforcing that its target is resolved to a 4 KiB page boundary.
// worth calling out explicitly: a prior implementation that reused
// ADR's byte-offset math for ADRP would corrupt every page computation.
func encodeAdr(b *mcode.Buffer, rd regalloc.RealReg, byteOffset int64) {
	immlo := uint32(byteOffset) & 0x3
	immhi := uint32(byteOffset>>2) & 0x7ffff
	word := uint32(0)<<31 | immlo<<29 | uint32(0b10000)<<24 | immhi<<5 | encNum(rd)
	b.Emit4(word)
}

// encodeAdrp encodes the ADRP instruction's 21-bit page-relative field
// from pageOffset, which the caller must already have computed as
// (targetPage - currentPage) i.e. the byte delta shifted right by 12 --
// never the raw byte delta ADR would use.
func encodeAdrp(b *mcode.Buffer, rd regalloc.RealReg, pageOffset int64) {
	immlo := uint32(pageOffset) & 0x3
	immhi := uint32(pageOffset>>2) & 0x7ffff
	word := uint32(1)<<31 | immlo<<29 | uint32(0b10000)<<24 | immhi<<5 | encNum(rd)
	b.Emit4(word)
}

// --- SIMD three-same ---
//
// the layout is: base bits 28-24 fixed, size in bits 23-22, a fixed bit at 21,
// U distinguishes add/sub-like families (e.g. ADD vs SUB, UADDL vs SADDL).
// encodeVecRRR lays these out explicitly rather than folding size/U into
// one opcode-lookup table, so the field positions this fix targets stay
// visible at the call site.
func encodeVecRRR(b *mcode.Buffer, op vecOp, laneBits int, rd, rn, rm regalloc.RealReg) {
	var u, opcode, size uint32
	switch laneBits {
	case 8:
		size = 0b00
	case 16:
		size = 0b01
	case 32:
		size = 0b10
	case 64:
		size = 0b11
	}
	switch op {
	case vecIadd:
		u, opcode = 0, 0b10000_1
	case vecIsub:
		u, opcode = 1, 0b10000_1
	case vecImul:
		u, opcode = 0, 0b10011_0
	case vecFadd:
		u, opcode = 0, 0b11010_1
	case vecFsub:
		u, opcode = 1, 0b11010_1
	case vecFmul:
		u, opcode = 1, 0b11011_0
	case vecFdiv:
		u, opcode = 1, 0b11111_1
	}
	word := 1<<30 | u<<29 | uint32(0b01110)<<24 | size<<22 | 1<<21 | encNum(rm)<<16 | opcode<<11 | 1<<10 | encNum(rn)<<5 | encNum(rd)
	b.Emit4(word)
}

// encodeDup emits DUP (general): broadcast a GPR into every lane of a
// vector register.
func encodeDup(b *mcode.Buffer, laneBits int, rd, rn regalloc.RealReg) {
	var imm5 uint32
	switch laneBits {
	case 8:
		imm5 = 0b00001
	case 16:
		imm5 = 0b00010
	case 32:
		imm5 = 0b00100
	case 64:
		imm5 = 0b01000
	}
	word := 1<<30 | uint32(0b001110000)<<21 | imm5<<16 | 0b000011<<10 | encNum(rn)<<5 | encNum(rd)
	b.Emit4(word)
}

// --- branches, calls, return ---

func encodeB(b *mcode.Buffer, target mcode.Label) {
	site := b.CurrentOffset()
	b.Emit4(uint32(0b000101) << 26)
	b.RecordFixup(site, branchFixup26{}, target)
}

func encodeBCond(b *mcode.Buffer, target mcode.Label, cond condFlag) {
	site := b.CurrentOffset()
	b.Emit4(uint32(0b01010100)<<24 | uint32(cond))
	b.RecordFixup(site, branchFixup19{}, target)
}

func encodeBL(b *mcode.Buffer, target mcode.Label) {
	site := b.CurrentOffset()
	b.Emit4(uint32(0b100101) << 26)
	b.RecordFixup(site, branchFixup26{}, target)
}

func encodeBLR(b *mcode.Buffer, rn regalloc.RealReg) {
	b.Emit4(0xd63f0000 | encNum(rn)<<5)
}

func encodeRet(b *mcode.Buffer) {
	b.Emit4(0xd65f0000 | encNum(x30)<<5)
}

func encodeUdf(b *mcode.Buffer, imm16 uint32) {
	b.Emit4(imm16 & 0xffff)
}

func encodeNop(b *mcode.Buffer) {
	b.Emit4(0xd503201f)
}

// --- floating point ---

func encodeFpuRRR(b *mcode.Buffer, op fpuRRROp, width byte, rd, rn, rm regalloc.RealReg) {
	ftype := uint32(0)
	if width == 64 {
		ftype = 1
	}
	opcode := map[fpuRRROp]uint32{fpuAdd: 0b0010, fpuSub: 0b0011, fpuMul: 0b0000, fpuDiv: 0b0001, fpuMax: 0b0101, fpuMin: 0b0110}[op]
	word := uint32(0b00011110)<<24 | ftype<<22 | 1<<21 | encNum(rm)<<16 | opcode<<12 | 1<<10 | encNum(rn)<<5 | encNum(rd)
	b.Emit4(word)
}

func encodeFpuRR(b *mcode.Buffer, op fpuRROp, width byte, rd, rn regalloc.RealReg) {
	ftype := uint32(0)
	if width == 64 {
		ftype = 1
	}
	opcode := map[fpuRROp]uint32{
		fpuNeg: 0b000010, fpuAbs: 0b000001, fpuSqrt: 0b000011,
		fpuCeil: 0b001001, fpuFloor: 0b001010, fpuTrunc: 0b001011, fpuNearest: 0b001000,
	}[op]
	word := uint32(0b00011110)<<24 | ftype<<22 | 1<<21 | opcode<<15 | 1<<10 | encNum(rn)<<5 | encNum(rd)
	b.Emit4(word)
}

func encodeFpuCmp(b *mcode.Buffer, width byte, rn, rm regalloc.RealReg) {
	ftype := uint32(0)
	if width == 64 {
		ftype = 1
	}
	word := uint32(0b00011110)<<24 | ftype<<22 | 1<<21 | encNum(rm)<<16 | 0b001000<<10 | encNum(rn)<<5
	b.Emit4(word)
}

// encodeFcvt emits the float-to-float precision conversion FCVT (fpromote
// 32->64 or fdemote 64->32).
func encodeFcvt(b *mcode.Buffer, from, to byte, rd, rn regalloc.RealReg) {
	ftype := uint32(0b00)
	if from == 64 {
		ftype = 0b01
	}
	opc := uint32(0b01)
	if to == 64 {
		opc = 0b11
	}
	word := uint32(0b00011110)<<24 | ftype<<22 | 1<<21 | opc<<15 | uint32(0b10000)<<10 | encNum(rn)<<5 | encNum(rd)
	b.Emit4(word)
}

func encodeScvtf(b *mcode.Buffer, intWidth, fpWidth byte, rd, rn regalloc.RealReg) {
	encodeIntFpuCvt(b, intWidth, fpWidth, rd, rn, true, true)
}
func encodeUcvtf(b *mcode.Buffer, intWidth, fpWidth byte, rd, rn regalloc.RealReg) {
	encodeIntFpuCvt(b, intWidth, fpWidth, rd, rn, true, false)
}
func encodeFcvtzs(b *mcode.Buffer, fpWidth, intWidth byte, rd, rn regalloc.RealReg) {
	encodeIntFpuCvt(b, intWidth, fpWidth, rd, rn, false, true)
}
func encodeFcvtzu(b *mcode.Buffer, fpWidth, intWidth byte, rd, rn regalloc.RealReg) {
	encodeIntFpuCvt(b, intWidth, fpWidth, rd, rn, false, false)
}

// encodeIntFpuCvt emits the integer<->float conversion family
// (SCVTF/UCVTF/FCVTZS/FCVTZU), all of which share this layout and differ
// only in the sf/ftype/rmode/opcode fields.
func encodeIntFpuCvt(b *mcode.Buffer, intWidth, fpWidth byte, rd, rn regalloc.RealReg, toFloat, signed bool) {
	ftype := uint32(0)
	if fpWidth == 64 {
		ftype = 1
	}
	var rmode, opcode uint32
	if toFloat {
		rmode = 0
		opcode = 0b010
		if !signed {
			opcode = 0b011
		}
	} else {
		rmode = 0b11
		opcode = 0b000
		if !signed {
			opcode = 0b001
		}
	}
	word := sf(intWidth)<<31 | uint32(0b0011110)<<24 | ftype<<22 | 1<<21 | rmode<<19 | opcode<<16 | encNum(rn)<<5 | encNum(rd)
	b.Emit4(word)
}

func encodeFpuMov(b *mcode.Buffer, width byte, rd, rn regalloc.RealReg) {
	ftype := uint32(0)
	if width == 64 {
		ftype = 1
	}
	word := uint32(0b00011110)<<24 | ftype<<22 | 1<<21 | 0b000000<<15 | 1<<10 | encNum(rn)<<5 | encNum(rd)
	b.Emit4(word)
}

// encodeFmovGeneral emits FMOV (general): a direct bit-pattern move
// between a GPR and its same-width FPR (Wd/Xd <-> Sn/Dn), distinct from
// encodeFpuMov's float-to-float register alias. toFloat picks the
// opcode field's two forms: 110 moves FPR bits into a GPR, 111 the
// reverse. Used for every integer<->float bitcast this backend lowers
// (icast, fcopysign's sign-bit extraction/recombination).
func encodeFmovGeneral(b *mcode.Buffer, width byte, rd, rn regalloc.RealReg, toFloat bool) {
	ftype := uint32(0)
	if width == 64 {
		ftype = 1
	}
	opcode := uint32(0b110)
	if toFloat {
		opcode = 0b111
	}
	word := sf(width)<<31 | uint32(0b0011110)<<24 | ftype<<22 | 1<<21 | opcode<<16 | encNum(rn)<<5 | encNum(rd)
	b.Emit4(word)
}

// encodeLdrLit emits LDR (literal, SIMD&FP): a PC-relative load of a
// 32- or 64-bit value out of this function's constant pool island into a
// float/vector register. target is bound to the island entry's address
// once ConstPool.Flush places it; the fixup recorded here is patched (or
// veneered, though that path is never taken -- see ldrLitFixup) by
// Buffer.ResolveFixups once every label in the function is bound.
func encodeLdrLit(b *mcode.Buffer, width byte, rd regalloc.RealReg, target mcode.Label) {
	opc := uint32(0)
	if width == 64 {
		opc = 1
	}
	site := b.CurrentOffset()
	word := opc<<30 | 1<<28 | 1<<27 | 1<<26 | encNum(rd)
	b.Emit4(word)
	b.RecordFixup(site, ldrLitFixup{}, target)
}
