package machgen

import "github.com/joelreymont/machgen/features"

// Arch identifies the target instruction set.
type Arch byte

const (
	ArchInvalid Arch = iota
	ArchArm64
	ArchAmd64
	ArchRiscv64
	ArchS390x
)

func (a Arch) String() string {
	switch a {
	case ArchArm64:
		return "arm64"
	case ArchAmd64:
		return "amd64"
	case ArchRiscv64:
		return "riscv64"
	case ArchS390x:
		return "s390x"
	default:
		return "invalid"
	}
}

// OS identifies the target operating system, which only matters for
// calling-convention details a handful of platforms vary (arm64 Windows's
// stack-argument alignment, for instance); the backends in this module
// don't yet need to branch on it, but TargetSpec carries it so a future
// ABI variant has somewhere to live without another breaking signature
// change.
type OS byte

const (
	OSInvalid OS = iota
	OSLinux
	OSDarwin
	OSWindows
)

// CallConv selects a calling convention. SystemV and AAPCS64 are the only
// ones any backend in this module implements; the others are named so a
// TargetSpec can record intent even where lowering isn't there yet.
type CallConv byte

const (
	CallConvDefault CallConv = iota
	CallConvSystemV
	CallConvAAPCS64
	CallConvWindowsFastcall
)

// TargetSpec names the machine this compilation targets.
type TargetSpec struct {
	Arch     Arch
	OS       OS
	Features features.Set
	CallConv CallConv
}

// resolvedCallConv returns arch's native calling convention when CallConv
// is left at its zero value.
func (t TargetSpec) resolvedCallConv() CallConv {
	if t.CallConv != CallConvDefault {
		return t.CallConv
	}
	switch t.Arch {
	case ArchArm64:
		return CallConvAAPCS64
	default:
		return CallConvSystemV
	}
}
