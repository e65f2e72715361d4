// Package amd64 implements a reduced x86-64 target backend: integer
// arithmetic/control flow plus scalar SSE2 floating point. Grounded on
// the teacher's isa/amd64 subtree (abi.go, instr.go, machine.go) for
// shape and naming, but not at that package's scope: no AVX, no general
// hardware integer divide (DIV/IDIV's fixed rdx:rax operand pair and
// divide-by-zero trap delivery are out of scope for this backend; see
// DESIGN.md), no vector/SIMD lowering (the only SIMD scenario this
// module is tested against is AArch64-specific).
package amd64

import (
	"fmt"

	"github.com/joelreymont/machgen/backend"
	"github.com/joelreymont/machgen/backend/regalloc"
)

// RealReg numbering starts at 1 (0 is regalloc.RealRegInvalid), GPRs
// first in their 4-bit hardware encoding order (so encNum is a trivial
// subtraction), then the 16 XMM registers.
const (
	rax regalloc.RealReg = iota + 1
	rcx
	rdx
	rbx
	rsp
	rbp
	rsi
	rdi
	r8
	r9
	r10
	r11
	r12
	r13
	r14
	r15
	numIntRegs
)

const (
	xmm0 regalloc.RealReg = numIntRegs + iota
	xmm1
	xmm2
	xmm3
	xmm4
	xmm5
	xmm6
	xmm7
	xmm8
	xmm9
	xmm10
	xmm11
	xmm12
	xmm13
	xmm14
	xmm15
	numAllRegs
)

// tmpReg materializes addresses/immediates too wide for a single
// instruction's encoding; tmpCx is withheld so shift/rotate lowering
// always has a dedicated register to move the shift count into ahead of
// SHL/SAR/ROL's CL-only variable-count form, without fighting the
// allocator for it. tmpFpuReg backs spill rewrites for float-class
// values, mirroring the allocator's single scratch-per-class contract.
const (
	tmpReg    = r11
	tmpCx     = rcx
	tmpFpuReg = xmm15
)

var intRegNames = [...]string{
	"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

var floatRegNames = [...]string{
	"xmm0", "xmm1", "xmm2", "xmm3", "xmm4", "xmm5", "xmm6", "xmm7",
	"xmm8", "xmm9", "xmm10", "xmm11", "xmm12", "xmm13", "xmm14", "xmm15",
}

func regName(r regalloc.RealReg) string {
	if r >= rax && r < numIntRegs {
		return intRegNames[r-rax]
	}
	if r >= numIntRegs && r < numAllRegs {
		return floatRegNames[r-numIntRegs]
	}
	return fmt.Sprintf("r%d", r)
}

// encNum returns the 4-bit hardware register number REX/ModRM encode,
// shared by GPRs and XMM registers since an instruction's operand type
// already fixes which file a given encNum refers to.
func encNum(r regalloc.RealReg) byte {
	if r < numIntRegs {
		return byte(r - rax)
	}
	return byte(r - numIntRegs)
}

func vreg(r regalloc.RealReg) regalloc.VReg {
	t := regalloc.RegTypeInt
	if r >= numIntRegs {
		t = regalloc.RegTypeFloat
	}
	return regalloc.FromRealReg(r, t)
}

// registerInfo builds the static register description: callee-saved
// rbx/rbp/r12-r15 per the System V AMD64 ABI, rsp reserved entirely (it
// never holds an SSA value, only addresses stack slots directly), rcx
// and r11 withheld as scratch.
func registerInfo() *regalloc.RegisterInfo {
	var ints, floats []regalloc.RealReg
	for r := rax; r < numIntRegs; r++ {
		if r == rsp || r == tmpReg || r == tmpCx {
			continue
		}
		ints = append(ints, r)
	}
	for r := xmm0; r < numAllRegs; r++ {
		if r == tmpFpuReg {
			continue
		}
		floats = append(floats, r)
	}

	calleeSaved := map[regalloc.RealReg]bool{rbx: true, rbp: true, r12: true, r13: true, r14: true, r15: true}

	callerSaved := map[regalloc.RealReg]bool{}
	for _, r := range ints {
		if !calleeSaved[r] {
			callerSaved[r] = true
		}
	}
	for _, r := range floats {
		callerSaved[r] = true
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
			regalloc.RegTypeInt:   tmpReg,
			regalloc.RegTypeFloat: tmpFpuReg,
		},
	}
}

// abiRegInfo implements backend.RegInfo for the System V AMD64 calling
// convention.
type abiRegInfo struct{}

var _ backend.RegInfo = abiRegInfo{}

func (abiRegInfo) ArgsResultsRegs() (argInts, argFloats, resultInts, resultFloats []regalloc.RealReg) {
	argInts = []regalloc.RealReg{rdi, rsi, rdx, rcx, r8, r9}
	argFloats = []regalloc.RealReg{xmm0, xmm1, xmm2, xmm3, xmm4, xmm5, xmm6, xmm7}
	resultInts = []regalloc.RealReg{rax, rdx}
	resultFloats = []regalloc.RealReg{xmm0, xmm1}
	return
}
