// Package s390x implements the z/Architecture 64-bit general-register
// target backend: instruction selection, register allocation glue, and
// machine code emission for the integer subset of the z/Linux ELF ABI.
// No float: every float opcode is OpExpand in target.go and rejected by
// legalization, so this backend never needs the binary floating-point
// register file. Division and remainder are routed through OpLibcall,
// even though z/Architecture has native divide instructions
// (DSGR/DLGR): those require an even/odd general-register pair as their
// implicit operand, a register-pairing constraint this module's
// register allocator has no model for, so native division is left for a
// future backend revision rather than hand-rolling pair allocation here.
package s390x

import (
	"fmt"

	"github.com/joelreymont/machgen/backend"
	"github.com/joelreymont/machgen/backend/regalloc"
)

// RealReg numbering starts at 1 (0 is regalloc.RealRegInvalid) and runs
// r0-r15 in their hardware encoding order, so encNum is a trivial
// subtraction exactly like riscv64/arm64/amd64's. There is no disjoint
// float register range: this backend never allocates a RegTypeFloat
// value.
const (
	rZero regalloc.RealReg = iota + 1 // r0: not hardwired, just the conventional scratch/literal register
	rTmp                              // r1: scratch, matches the z/Linux ABI's own "volatile, no argument role" convention
	rArg0                             // r2: first argument / return value
	rArg1                             // r3
	rArg2                             // r4
	rArg3                             // r5
	rArg4                             // r6: last argument register; also the first callee-saved register
	r7
	r8
	r9
	r10
	r11
	r12
	r13
	rLR // r14: link register, set by BRASL/BASR, holds the return address
	rSP // r15: stack pointer
	numIntRegs
)

// tmpReg is withheld from the allocatable set and serves as the
// register allocator's scratch register for spilled values. The encoder
// does not use it: constants are built in rd itself (LGFI or IIHF+IILF)
// and displacements are written straight into the 20-bit field.
const tmpReg = rTmp

var intRegNames = [...]string{
	"r0", "r1", "r2", "r3", "r4", "r5", "r6", "r7",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

func regName(r regalloc.RealReg) string {
	if r >= rZero && r < numIntRegs {
		return intRegNames[r-rZero]
	}
	return fmt.Sprintf("r%d", r)
}

// encNum returns the 4-bit hardware register number every RR/RRE/RI/RIL/
// RX/RXY/RSY format field encodes.
func encNum(r regalloc.RealReg) uint32 { return uint32(r - rZero) }

func vreg(r regalloc.RealReg) regalloc.VReg { return regalloc.FromRealReg(r, regalloc.RegTypeInt) }

// registerInfo builds the static register description this backend's
// allocators run against: callee-saved r6-r13 (and r14/r15, always saved
// by the prologue/epilogue directly rather than through the allocator's
// clobber tracking) per the z/Linux ELF ABI, r0/r1/sp/lr withheld
// entirely.
func registerInfo() *regalloc.RegisterInfo {
	var ints []regalloc.RealReg
	for r := rZero; r < numIntRegs; r++ {
		switch r {
		case rZero, tmpReg, rLR, rSP:
			continue
		}
		ints = append(ints, r)
	}

	calleeSaved := map[regalloc.RealReg]bool{}
	for r := rArg4; r <= r13; r++ {
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

// abiRegInfo implements backend.RegInfo for the z/Linux integer calling
// convention: r2-r6 for arguments, r2-r3 for results. No float argument/
// result registers: this backend's ABI never binds a float value to a
// register, matching HasNativeFloat() == false in target.go.
type abiRegInfo struct{}

var _ backend.RegInfo = abiRegInfo{}

func (abiRegInfo) ArgsResultsRegs() (argInts, argFloats, resultInts, resultFloats []regalloc.RealReg) {
	argInts = []regalloc.RealReg{rArg0, rArg1, rArg2, rArg3, rArg4}
	resultInts = []regalloc.RealReg{rArg0, rArg1}
	return
}
