package backend

import (
	"github.com/joelreymont/machgen/backend/regalloc"
	"github.com/joelreymont/machgen/ir"
)

// ValueDefinition records where one IR value came from: a block parameter
// or the N-th result of an instruction, plus how many uses still reference
// it. Grounded on the vdef.go shape backend/compiler.go actually consumes
// (BlkParamVReg/Instr/N/RefCount), not the newer two-field version seen
// elsewhere in the pack; compiler.go's own lowering loop needs N and
// RefCount to decide whether an operand can be folded into its consumer.
type ValueDefinition struct {
	// BlkParamVReg is valid when Instr is ir.InstructionInvalid: the value
	// is a block parameter already materialized into this virtual register.
	BlkParamVReg regalloc.VReg

	// Instr is the instruction that produced this value, or
	// ir.InstructionInvalid if this definition is a block parameter.
	Instr ir.Instruction
	// N is the index of this value among Instr's results.
	N int
	// RefCount is how many remaining instructions read this value. A
	// single-use definition (RefCount == 1) is a candidate for being folded
	// directly into its one consumer during lowering instead of forcing a
	// materialization.
	RefCount int
}

// IsFromInstr reports whether this definition comes from an instruction
// result rather than a block parameter.
func (d *ValueDefinition) IsFromInstr() bool { return d.Instr.Valid() }

// IsFromBlockParam reports whether this definition is a block parameter.
func (d *ValueDefinition) IsFromBlockParam() bool { return !d.Instr.Valid() }
