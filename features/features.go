// Package features reports which optional instruction-set extensions the
// running CPU supports. No legalize.Target in this module reads the
// result: every Target picks its actions from opcode and type alone.
//
// Grounded on wazero's internal/platform CpuFeatureFlags (Has/HasExtra
// split across two feature-bit words, detection loaded once into a
// package var, a build-tag-selected implementation per arch): this
// module collapses that into a single Set bitset per TargetSpec, since
// a compiler built once and reused across many Compile calls needs the
// bits as plain comparable state, not a stateful interface value.
package features

import (
	"os"
	"strings"

	"golang.org/x/sys/cpu"
)

// Feature names one optional instruction-set extension. The bit
// positions are arch-specific: Feature values are only meaningful
// together with the Arch they were detected for.
type Feature uint

const (
	// amd64
	Amd64SSE3 Feature = iota
	Amd64SSE41
	Amd64SSE42
	Amd64AVX
	Amd64AVX2
	Amd64ABM

	// arm64
	Arm64Atomic
	Arm64FP
	Arm64ASIMD

	// riscv64
	Riscv64M
	Riscv64A
	Riscv64C

	// s390x
	S390xVX
)

// Set is a bitset of detected Feature values, carried on a TargetSpec.
// Compile does not pass it to any legalize.Target, so lowering does not
// change with the features a Set holds.
type Set uint64

// Has reports whether f is set.
func (s Set) Has(f Feature) bool { return s&(1<<f) != 0 }

// With returns s with f set.
func (s Set) With(f Feature) Set { return s | (1 << f) }

// DetectAmd64 probes the running CPU's amd64 feature bits via
// golang.org/x/sys/cpu, the same source the teacher's RATIONALE (see
// DESIGN.md) rules out hand-rolled CPUID assembly in favor of: x/sys/cpu
// is already vetted against every amd64 microarchitecture quirk this
// module has no way to test without the Go toolchain.
func DetectAmd64() Set {
	var s Set
	if cpu.X86.HasSSE3 {
		s = s.With(Amd64SSE3)
	}
	if cpu.X86.HasSSE41 {
		s = s.With(Amd64SSE41)
	}
	if cpu.X86.HasSSE42 {
		s = s.With(Amd64SSE42)
	}
	if cpu.X86.HasAVX {
		s = s.With(Amd64AVX)
	}
	if cpu.X86.HasAVX2 {
		s = s.With(Amd64AVX2)
	}
	if cpu.X86.HasPOPCNT && cpu.X86.HasBMI1 {
		s = s.With(Amd64ABM)
	}
	return s
}

// DetectArm64 probes the running CPU's arm64 feature bits via
// golang.org/x/sys/cpu.
func DetectArm64() Set {
	var s Set
	if cpu.ARM64.HasATOMICS {
		s = s.With(Arm64Atomic)
	}
	if cpu.ARM64.HasFP {
		s = s.With(Arm64FP)
	}
	if cpu.ARM64.HasASIMD {
		s = s.With(Arm64ASIMD)
	}
	return s
}

// DetectRiscv64 probes the running CPU's riscv64 extension letters.
// golang.org/x/sys/cpu carries no RISCV64 feature struct (the riscv64
// port only needs cache-line size from that package), so this parses
// the "isa" line of /proc/cpuinfo directly, the same textual-probe
// shape x/sys/cpu's own readLinuxProcCPUInfo (arm64) uses for the one
// field CPUID can't give it. A read failure (non-Linux, sandboxed
// /proc) leaves every bit clear, same as x/sys/cpu's convention when a
// probe can't run.
func DetectRiscv64() Set {
	isa, err := readProcCPUInfoField("/proc/cpuinfo", "isa")
	if err != nil {
		return 0
	}
	var s Set
	if strings.Contains(isa, "m") {
		s = s.With(Riscv64M)
	}
	if strings.Contains(isa, "a") {
		s = s.With(Riscv64A)
	}
	if strings.Contains(isa, "c") {
		s = s.With(Riscv64C)
	}
	return s
}

// readProcCPUInfoField reads the first value of field "<name>\t: " out
// of a /proc/cpuinfo-shaped file.
func readProcCPUInfoField(path, name string) (string, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	prefix := "\n" + name
	in := string(buf)
	i := strings.Index(in, prefix)
	if i == -1 {
		return "", os.ErrNotExist
	}
	in = in[i+len(prefix):]
	if j := strings.IndexByte(in, ':'); j != -1 {
		in = in[j+1:]
	}
	if j := strings.IndexByte(in, '\n'); j != -1 {
		in = in[:j]
	}
	return strings.TrimSpace(in), nil
}

// DetectS390x probes the running CPU's s390x facility bits via
// golang.org/x/sys/cpu, which reads the kernel's STFLE-derived facility
// list.
func DetectS390x() Set {
	var s Set
	if cpu.S390X.HasVX {
		s = s.With(S390xVX)
	}
	return s
}
