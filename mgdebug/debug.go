// Package mgdebug holds compile-time debug switches for the compiler core.
//
// Mirrors the shape of wazevoapi's debug constants: plain booleans checked
// with no logging library involved. No package in this module imports
// mgdebug, so setting any of these switches changes nothing.
package mgdebug

const (
	// SSAValidationEnabled names eager IR validation during pass
	// execution; ir.RunPasses does not read it.
	SSAValidationEnabled = false

	// DeterministicCompilationVerifierEnabled re-runs each compilation stage
	// twice and diffs the formatted output, to catch nondeterminism (map
	// iteration, etc.) creeping into the pipeline.
	DeterministicCompilationVerifierEnabled = false

	// PrintSSA prints the function's IR after RunPasses.
	PrintSSA = false
	// PrintLoweredVCode prints the VCode after lowering, before regalloc.
	PrintLoweredVCode = false
	// PrintRegisterAllocated prints the VCode after register allocation.
	PrintRegisterAllocated = false
	// PrintFinalizedMachineCode prints the VCode after PostRegAlloc/Encode.
	PrintFinalizedMachineCode = false
)
