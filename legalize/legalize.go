// Package legalize rewrites a verified ir.Function so that every value's
// type and every instruction's opcode+type pair is legal on a given
// target, running two independent passes in sequence: the type legalizer
// first, then the op legalizer, matching a legalize-then-lower component split.
//
// Neither pass exists in wazero (tetratelabs/wazero's wazevo
// subtree): its frontend only ever emits WebAssembly-legal IR, so there
// is nothing to legalize. Built fresh in the ir package's own pass idiom
// (rewrite in place, alias old result to new), generalized from the
// rewrite/alias style ir.RunPasses' optimization passes already use.
package legalize

import "github.com/joelreymont/machgen/ir"

// TypeAction is the type legalizer's per-type decision.
type TypeAction int

const (
	TypeLegal TypeAction = iota
	TypePromote
	TypeExpand
	TypeSplitVector
	TypeWidenVector
)

// OpAction is the op legalizer's per-(opcode,type) decision.
type OpAction int

const (
	OpLegal OpAction = iota
	OpExpand
	OpLibcall
	OpCustom
)

// Target describes, for one compilation target, which types and opcodes
// are directly legal and how illegal ones should be rewritten. Backend
// ISA packages provide a concrete Target; tests may supply a minimal one.
type Target interface {
	// TypeAction reports how t should be legalized, and the destination
	// type the action names (meaningless for TypeLegal).
	TypeAction(t ir.Type) (TypeAction, ir.Type)

	// OpAction reports how op at type t should be legalized. For
	// OpLibcall, name is the runtime helper's symbol; legalizeOps declares
	// a FuncRef and signature for it on first use.
	OpAction(op ir.Opcode, t ir.Type) (action OpAction, libcallName string)

	// CustomExpand performs an OpCustom rewrite the generic expander
	// cannot express generically (e.g. an ISA-specific addressing-mode
	// peephole). inst is already verified to need OpCustom treatment for
	// its opcode/type; CustomExpand must fully replace or alias it.
	CustomExpand(f *ir.Function, inst ir.Instruction)

	// NativeIntBits is the target's native integer width (32 or 64).
	// Neither legalizer reads it; TypeAction alone decides each type.
	NativeIntBits() int

	// HasNativeFloat reports whether the target has hardware float
	// support at all. Neither legalizer reads it; a float op becomes a
	// libcall only where OpAction returns OpLibcall for it.
	HasNativeFloat() bool
}

// Run legalizes f in place for target, running the type legalizer then
// the op legalizer. f must already have passed ir.Verify and
// ir.RunPasses. Returns a *LegalizationError describing the first
// (opcode, type) pair with no applicable rule.
func Run(f *ir.Function, target Target) error {
	if err := legalizeTypes(f, target); err != nil {
		return err
	}
	ir.RebuildCFG(f)
	if err := legalizeOps(f, target); err != nil {
		return err
	}
	ir.RebuildCFG(f)
	return nil
}

// LegalizationError reports that no type/op legalization rule maps an
// (opcode, type) pair for the chosen target — a fatal, non-recoverable
// condition.
type LegalizationError struct {
	Opcode ir.Opcode
	Type   ir.Type
}

func (e *LegalizationError) Error() string {
	return "legalize: no rule for " + e.Opcode.String() + " at type " + e.Type.String()
}
