// Package riscv64 implements the RV64GC integer subset target backend:
// instruction selection, register allocation glue, and machine code
// emission for the RV64I base plus the M extension's multiply/divide.
// No float: target.go marks every Fxxx opcode OpExpand with no generic
// expansion, so legalization rejects it and this backend never needs the
// F/D extension's register file or encodings.
package riscv64

import (
	"fmt"

	"github.com/joelreymont/machgen/backend"
	"github.com/joelreymont/machgen/backend/regalloc"
)

// RealReg numbering starts at 1 (0 is regalloc.RealRegInvalid) and runs
// x0-x31 in their hardware encoding order, so encNum is a trivial
// subtraction exactly like arm64/amd64's. There is no disjoint float
// register range: this backend never allocates a RegTypeFloat value.
const (
	xZero regalloc.RealReg = iota + 1 // hardwired zero
	xRa                               // return address
	xSp                               // stack pointer
	xGp                               // global pointer
	xTp                               // thread pointer
	xT0                               // temporary
	xT1
	xT2
	xS0 // saved / frame pointer (conventional, not architectural)
	xS1
	xA0 // argument/result
	xA1
	xA2
	xA3
	xA4
	xA5
	xA6
	xA7
	xS2 // saved
	xS3
	xS4
	xS5
	xS6
	xS7
	xS8
	xS9
	xS10
	xS11
	xT3 // temporary
	xT4
	xT5
	xT6
	numIntRegs
)

// tmpReg is withheld from the allocatable set and handed to the register
// allocator as its integer scratch register, the same way every other
// backend in this module reserves one. Load/store offsets and sp
// adjustments are encoded directly in their 12-bit signed field; no wider
// immediate is routed through tmpReg.
const tmpReg = xT0

var intRegNames = [...]string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2", "s0", "s1",
	"a0", "a1", "a2", "a3", "a4", "a5", "a6", "a7",
	"s2", "s3", "s4", "s5", "s6", "s7", "s8", "s9", "s10", "s11",
	"t3", "t4", "t5", "t6",
}

func regName(r regalloc.RealReg) string {
	if r >= xZero && r < numIntRegs {
		return intRegNames[r-xZero]
	}
	return fmt.Sprintf("r%d", r)
}

// encNum returns the 5-bit hardware register number every R/I/S/B/U/J
// format field encodes.
func encNum(r regalloc.RealReg) uint32 { return uint32(r - xZero) }

func vreg(r regalloc.RealReg) regalloc.VReg { return regalloc.FromRealReg(r, regalloc.RegTypeInt) }

// registerInfo builds the static register description this backend's
// allocators run against: callee-saved s0-s11 per the standard RV64
// calling convention, zero/sp/gp/tp/ra withheld entirely (none of them
// ever holds an SSA value), t0 withheld as scratch.
func registerInfo() *regalloc.RegisterInfo {
	var ints []regalloc.RealReg
	for r := xZero; r < numIntRegs; r++ {
		switch r {
		case xZero, xSp, xGp, xTp, xRa, tmpReg:
			continue
		}
		ints = append(ints, r)
	}

	calleeSaved := map[regalloc.RealReg]bool{xS0: true, xS1: true}
	for r := xS2; r <= xS11; r++ {
		calleeSaved[r] = true
	}

	callerSaved := map[regalloc.RealReg]bool{}
	for _, r := range ints {
		if !calleeSaved[r] {
			callerSaved[r] = true
		}
	}

	realRegToVReg := make([]regalloc.VReg, numIntRegs)
	for r := regalloc.RealReg(0); r < numIntRegs; r++ {
		realRegToVReg[r] = vreg(r)
	}

	return &regalloc.RegisterInfo{
		AllocatableRegisters: [regalloc.NumRegType][]regalloc.RealReg{
			regalloc.RegTypeInt: ints,
		},
		CalleeSavedRegisters: calleeSaved,
		CallerSavedRegisters: callerSaved,
		RealRegToVReg:        realRegToVReg,
		RealRegName:          regName,
		ScratchRegisters: [regalloc.NumRegType]regalloc.RealReg{
			regalloc.RegTypeInt: tmpReg,
		},
	}
}

// abiRegInfo implements backend.RegInfo for the standard RV64 integer
// calling convention: a0-a7 for arguments, a0-a1 for results. No float
// argument/result registers: this backend's ABI never binds a float
// value to a register, matching HasNativeFloat() == false in target.go.
type abiRegInfo struct{}

var _ backend.RegInfo = abiRegInfo{}

func (abiRegInfo) ArgsResultsRegs() (argInts, argFloats, resultInts, resultFloats []regalloc.RealReg) {
	argInts = []regalloc.RealReg{xA0, xA1, xA2, xA3, xA4, xA5, xA6, xA7}
	resultInts = []regalloc.RealReg{xA0, xA1}
	return
}
