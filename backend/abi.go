package backend

import (
	"fmt"

	"github.com/joelreymont/machgen/backend/regalloc"
	"github.com/joelreymont/machgen/ir"
)

// RegInfo is implemented by a Machine's ABI glue to report which real
// registers the calling convention hands out for integer and floating
// point/vector arguments and results, most-preferred first.
type RegInfo interface {
	ArgsResultsRegs() (argInts, argFloats, resultInts, resultFloats []regalloc.RealReg)
}

// ABIArgKind is the location an ABIArg resolves to.
type ABIArgKind byte

const (
	// ABIArgKindReg is a value passed or returned in a register.
	ABIArgKindReg ABIArgKind = iota
	// ABIArgKindStack is a value passed or returned in the caller-allocated
	// argument/return stack area.
	ABIArgKindStack
)

// String implements fmt.Stringer.
func (k ABIArgKind) String() string {
	switch k {
	case ABIArgKindReg:
		return "reg"
	case ABIArgKindStack:
		return "stack"
	default:
		panic("backend: invalid ABIArgKind")
	}
}

// ABIArg is the concrete location (a real register or a stack offset) one
// parameter or result of a signature resolves to under a given ABI.
type ABIArg struct {
	Index int
	Kind  ABIArgKind
	// Reg is valid when Kind == ABIArgKindReg. Always backed by a RealReg.
	Reg regalloc.VReg
	// Offset is valid when Kind == ABIArgKindStack: the byte offset from
	// the start of the argument or result stack area.
	Offset int64
	Type   ir.Type
}

// String implements fmt.Stringer.
func (a *ABIArg) String() string { return fmt.Sprintf("args[%d]: %s", a.Index, a.Kind) }

// FunctionABI maps an ir.Signature's parameter/result types onto concrete
// locations (registers, then overflow stack slots) for one calling
// convention. R supplies the ISA-specific register assignment order;
// FunctionABI itself is ISA-agnostic, matching wazero's split between
// the generic abi.go and each ISA's abi_*.go register tables.
type FunctionABI[R RegInfo] struct {
	regs        R
	Initialized bool

	Args, Rets                 []ABIArg
	ArgStackSize, RetStackSize int64

	ArgRealRegs []regalloc.VReg
	RetRealRegs []regalloc.VReg
}

// NewFunctionABI returns an uninitialized FunctionABI bound to regs; call
// Init per signature before use.
func NewFunctionABI[R RegInfo](regs R) *FunctionABI[R] { return &FunctionABI[R]{regs: regs} }

// Init computes the argument and result layout for sig, reusing the
// receiver's backing slices across calls so compiling many functions with
// a stable ABI doesn't reallocate per function.
func (a *FunctionABI[R]) Init(sig *ir.Signature) {
	argInts, argFloats, resultInts, resultFloats := a.regs.ArgsResultsRegs()

	if len(a.Args) < len(sig.Params) {
		a.Args = make([]ABIArg, len(sig.Params))
	}
	a.Args = a.Args[:len(sig.Params)]
	a.ArgStackSize = a.setABIArgs(a.Args, sig.Params, argInts, argFloats)

	if len(a.Rets) < len(sig.Results) {
		a.Rets = make([]ABIArg, len(sig.Results))
	}
	a.Rets = a.Rets[:len(sig.Results)]
	a.RetStackSize = a.setABIArgs(a.Rets, sig.Results, resultInts, resultFloats)

	a.ArgRealRegs = a.ArgRealRegs[:0]
	for i := range a.Args {
		if arg := &a.Args[i]; arg.Kind == ABIArgKindReg {
			a.ArgRealRegs = append(a.ArgRealRegs, arg.Reg)
		}
	}
	a.RetRealRegs = a.RetRealRegs[:0]
	for i := range a.Rets {
		if ret := &a.Rets[i]; ret.Kind == ABIArgKindReg {
			a.RetRealRegs = append(a.RetRealRegs, ret.Reg)
		}
	}

	a.Initialized = true
}

// setABIArgs assigns each of types[i] a register from ints/floats while
// one remains, falling back to an 8-byte stack slot (16 bytes for 128-bit
// float/vector types) once that class is exhausted. Slots are packed in
// order at the running offset; a 16-byte slot is not padded to a 16-byte
// boundary.
func (a *FunctionABI[R]) setABIArgs(s []ABIArg, types []ir.Type, ints, floats []regalloc.RealReg) (stackSize int64) {
	intIdx, floatIdx := 0, 0
	var stackOffset int64
	for i, typ := range types {
		arg := &s[i]
		arg.Index, arg.Type = i, typ
		if typ.IsInt() || typ == ir.TypeRef {
			if intIdx >= len(ints) {
				arg.Kind, arg.Offset = ABIArgKindStack, stackOffset
				stackOffset += 8
				continue
			}
			arg.Kind = ABIArgKindReg
			arg.Reg = regalloc.FromRealReg(ints[intIdx], regalloc.RegTypeInt)
			intIdx++
			continue
		}
		if floatIdx >= len(floats) {
			slot := int64(8)
			if typ.Bits() == 128 {
				slot = 16
			}
			arg.Kind, arg.Offset = ABIArgKindStack, stackOffset
			stackOffset += slot
			continue
		}
		arg.Kind = ABIArgKindReg
		arg.Reg = regalloc.FromRealReg(floats[floatIdx], regalloc.RegTypeFloat)
		floatIdx++
	}
	return stackOffset
}

// AlignedArgResultStackSlotSize returns the combined argument+result stack
// area size, rounded up to a 16-byte boundary as every supported ISA's ABI
// requires for the outgoing stack pointer.
func (a *FunctionABI[R]) AlignedArgResultStackSlotSize() int64 {
	return (a.ArgStackSize + a.RetStackSize + 15) &^ 15
}
