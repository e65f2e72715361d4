// Package machgen compiles a verified, target-independent intermediate
// representation (package ir) into machine code for one of several
// instruction sets, by running the same pipeline the teacher this module
// is grounded on runs for every WebAssembly function it JITs: legalize,
// lower to a per-ISA virtual instruction list (backend), register-allocate
// (backend/regalloc), then encode (mcode, backend/isa/*).
//
// Compile is the single entry point; everything else in this package
// (TargetSpec, Options, Result, the error types) exists to describe its
// input and output.
package machgen

import (
	"encoding/binary"
	"fmt"

	"github.com/joelreymont/machgen/backend"
	"github.com/joelreymont/machgen/backend/isa/amd64"
	"github.com/joelreymont/machgen/backend/isa/arm64"
	"github.com/joelreymont/machgen/backend/isa/riscv64"
	"github.com/joelreymont/machgen/backend/isa/s390x"
	"github.com/joelreymont/machgen/ir"
	"github.com/joelreymont/machgen/legalize"
	"github.com/joelreymont/machgen/mcode"
)

// Function is the input to Compile: a verified, built ir.Function. Kept
// as an alias rather than a wrapper struct because ir.Function already
// exposes exactly the surface (Signature, DFG, LayoutView) spec.md's
// Function sketch names, through accessor methods instead of public
// fields.
type Function = ir.Function

// Result is everything Compile produces for one function: its code, the
// relocations and trap sites a caller's loader/runtime needs, and the
// final stack frame size.
type Result struct {
	Code        []byte
	Relocations []mcode.Relocation
	Traps       []mcode.Trap
	FrameSize   uint32
}

var (
	littleEndian = binary.LittleEndian
	bigEndian    = binary.BigEndian
)

// byteOrderForArch reports whether arch is big-endian: every ISA here is
// little-endian except s390x, which this module (like the reference
// System z ABI) treats as big-endian.
func byteOrderForArch(arch Arch) bool { return arch == ArchS390x }

func newMachineAndTarget(arch Arch) (backend.Machine, legalize.Target, error) {
	switch arch {
	case ArchArm64:
		return arm64.NewBackend(), arm64.Target{}, nil
	case ArchAmd64:
		return amd64.NewBackend(), amd64.Target{}, nil
	case ArchRiscv64:
		return riscv64.NewBackend(), riscv64.Target{}, nil
	case ArchS390x:
		return s390x.NewBackend(), s390x.Target{}, nil
	default:
		return nil, nil, ErrUnsupportedArch
	}
}

// Compile lowers f to machine code for target, honoring opts.
//
// The pipeline, in order: optional ir.Verify (WithVerifyIR), ir.RunPasses
// (always; it's idempotent and every pass it runs is a correctness-
// neutral cleanup, not an optional optimization a caller would want to
// skip), legalize.Run against the chosen ISA's legalize.Target,
// backend.NewCompiler bound to that ISA's backend.Machine, and finally
// Compiler.Compile into an mcode.Buffer.
func Compile(f *Function, target TargetSpec, opts Options) (Result, error) {
	if opts.VerifyIR {
		if err := ir.Verify(f); err != nil {
			if verr, ok := err.(*ir.VerifierError); ok {
				return Result{}, &VerificationError{Err: verr}
			}
			return Result{}, err
		}
	}
	if err := ir.RunPasses(f); err != nil {
		return Result{}, fmt.Errorf("machgen: optimization pass: %w", err)
	}

	mach, tgt, err := newMachineAndTarget(target.Arch)
	if err != nil {
		return Result{}, err
	}

	if err := legalize.Run(f, tgt); err != nil {
		if lerr, ok := err.(*legalize.LegalizationError); ok {
			return Result{}, &LegalizationError{Opcode: lerr.Opcode, Type: lerr.Type, err: lerr}
		}
		return Result{}, err
	}

	order := littleEndian
	if byteOrderForArch(target.Arch) {
		order = bigEndian
	}
	buf := mcode.NewBuffer(order)

	c := backend.NewCompiler(mach)
	mach.SetCompiler(c)
	c.Bind(f)

	if err := c.Compile(buf); err != nil {
		return Result{}, &EncodingError{Arch: target.Arch, err: err}
	}

	frameSize := mach.FrameSize()
	if opts.StackLimit != 0 && frameSize > int64(opts.StackLimit) {
		return Result{}, fmt.Errorf("machgen: function %q frame size %d exceeds stack limit %d",
			f.Name, frameSize, opts.StackLimit)
	}

	res := Result{
		Code:      buf.Code,
		FrameSize: uint32(frameSize),
	}
	if opts.EmitTraps {
		res.Traps = buf.Traps()
	}
	res.Relocations = buf.Relocations()
	return res, nil
}
