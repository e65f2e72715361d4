// Package arm64 implements the AArch64 target backend: instruction
// selection, register allocation glue, and machine code emission for the
// A64 instruction set.
package arm64

import (
	"fmt"

	"github.com/joelreymont/machgen/backend"
	"github.com/joelreymont/machgen/backend/regalloc"
)

// Real register numbering starts at 1, not 0: RealReg 0 is
// regalloc.RealRegInvalid, and x0 is a legitimate, frequently-used
// register (the first integer argument/result register), so it cannot
// share that encoding. Integer registers occupy 1-32 (x0-x30, xzr/sp at
// 32); float/vector registers occupy a disjoint range starting right
// after so RegisterInfo.AllocatableRegisters can index both classes
// without collision, matching wazero's RealRegister numbering scheme in
// its abi_go_call.go register list. encNum/regName subtract back out
// this +1 bias to recover the 5-bit hardware register number.
const (
	x0 regalloc.RealReg = iota + 1
	x1
	x2
	x3
	x4
	x5
	x6
	x7
	x8
	x9
	x10
	x11
	x12
	x13
	x14
	x15
	x16
	x17
	x18
	x19
	x20
	x21
	x22
	x23
	x24
	x25
	x26
	x27
	x28
	x29 // frame pointer (FP)
	x30 // link register (LR)
	xzrSp
	numIntRegs
)

const (
	v0 regalloc.RealReg = numIntRegs + iota
	v1
	v2
	v3
	v4
	v5
	v6
	v7
	v8
	v9
	v10
	v11
	v12
	v13
	v14
	v15
	v16
	v17
	v18
	v19
	v20
	v21
	v22
	v23
	v24
	v25
	v26
	v27
	v28
	v29
	v30
	v31
	numAllRegs
)

// tmpReg and tmpReg2 are reserved out of the allocatable set: the
// constant/address synthesizer and spill rewriter materialize into these
// rather than competing with the allocator for a value-holding register,
// mirroring wazero's tmpRegVReg.
const (
	tmpReg  = x16
	tmpReg2 = x17
	// tmpFpuReg is the float-class scratch register LinearScanAllocator
	// rewrites spilled float operands into.
	tmpFpuReg = v31
)

var intRegNames = [...]string{
	"x0", "x1", "x2", "x3", "x4", "x5", "x6", "x7", "x8", "x9", "x10", "x11", "x12", "x13", "x14",
	"x15", "x16", "x17", "x18", "x19", "x20", "x21", "x22", "x23", "x24", "x25", "x26", "x27", "x28",
	"fp", "lr", "sp",
}

var floatRegNames = [...]string{
	"v0", "v1", "v2", "v3", "v4", "v5", "v6", "v7", "v8", "v9", "v10", "v11", "v12", "v13", "v14",
	"v15", "v16", "v17", "v18", "v19", "v20", "v21", "v22", "v23", "v24", "v25", "v26", "v27", "v28",
	"v29", "v30", "v31",
}

func regName(r regalloc.RealReg) string {
	if r >= x0 && r < numIntRegs {
		return intRegNames[r-x0]
	}
	if r >= numIntRegs && r < numAllRegs {
		return floatRegNames[r-numIntRegs]
	}
	return fmt.Sprintf("r%d", r)
}

// encNum returns the 5-bit hardware encoding for r (x0-x30 or xzr/sp, or
// v0-v31), the same value whether r names a GPR or a vector register since
// the two files never share an instruction.
func encNum(r regalloc.RealReg) uint32 {
	if r < numIntRegs {
		return uint32(r - x0)
	}
	return uint32(r - numIntRegs)
}

func vreg(r regalloc.RealReg) regalloc.VReg {
	t := regalloc.RegTypeInt
	if r >= numIntRegs {
		t = regalloc.RegTypeFloat
	}
	return regalloc.FromRealReg(r, t)
}

// registerInfo builds the static register description this backend's
// allocators run against: callee-saved x19-x28/v8-v15 per AAPCS64, every
// other integer/float register caller-saved and allocatable, x16/x17/v31
// withheld as scratch for linear scan's single-pass spill rewrite.
func registerInfo() *regalloc.RegisterInfo {
	var ints, floats []regalloc.RealReg
	for r := x0; r < numIntRegs-1; r++ { // exclude xzr/sp
		if r == tmpReg || r == tmpReg2 || r == x29 || r == x30 {
			continue
		}
		ints = append(ints, r)
	}
	for r := v0; r < numAllRegs; r++ {
		if r == tmpFpuReg {
			continue
		}
		floats = append(floats, r)
	}

	calleeSaved := map[regalloc.RealReg]bool{}
	for r := x19; r <= x28; r++ {
		calleeSaved[r] = true
	}
	for r := v0 + 8; r <= v0+15; r++ {
		calleeSaved[r] = true
	}

	callerSaved := map[regalloc.RealReg]bool{}
	for _, r := range ints {
		if !calleeSaved[r] {
			callerSaved[r] = true
		}
	}
	for _, r := range floats {
		if !calleeSaved[r] {
			callerSaved[r] = true
		}
	}

	realRegToVReg := make([]regalloc.VReg, numAllRegs)
	for r := regalloc.RealReg(0); r < numAllRegs; r++ {
		realRegToVReg[r] = vreg(r)
	}

	return &regalloc.RegisterInfo{
		AllocatableRegisters: [regalloc.NumRegType][]regalloc.RealReg{
			regalloc.RegTypeInt:   ints,
			regalloc.RegTypeFloat: floats,
		},
		CalleeSavedRegisters: calleeSaved,
		CallerSavedRegisters: callerSaved,
		RealRegToVReg:        realRegToVReg,
		RealRegName:          regName,
		ScratchRegisters: [regalloc.NumRegType]regalloc.RealReg{
			regalloc.RegTypeInt:   tmpReg2,
			regalloc.RegTypeFloat: tmpFpuReg,
		},
	}
}

// abiRegInfo implements backend.RegInfo for the AAPCS64 calling
// convention: x0-x7 for integer/pointer args, v0-v7 for float/vector
// args, x0-x1 and v0-v1 for results (wider aggregates are handled by the
// caller splitting a multi-value ir.Signature before Init, matching the
// teacher's handling of multi-value Wasm returns).
type abiRegInfo struct{}

var _ backend.RegInfo = abiRegInfo{}

func (abiRegInfo) ArgsResultsRegs() (argInts, argFloats, resultInts, resultFloats []regalloc.RealReg) {
	argInts = []regalloc.RealReg{x0, x1, x2, x3, x4, x5, x6, x7}
	argFloats = []regalloc.RealReg{v0, v1, v2, v3, v4, v5, v6, v7}
	resultInts = []regalloc.RealReg{x0, x1}
	resultFloats = []regalloc.RealReg{v0, v1}
	return
}
