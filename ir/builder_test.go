package ir_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joelreymont/machgen/ir"
)

func TestBuilderStraightLineFunctionVerifies(t *testing.T) {
	b := ir.NewBuilder("add", ir.Signature{Params: []ir.Type{ir.TypeI32, ir.TypeI32}, Results: []ir.Type{ir.TypeI32}})
	entry := b.CreateBlock()
	b.SetCurrentBlock(entry)
	x := b.AddBlockParam(entry, ir.TypeI32)
	y := b.AddBlockParam(entry, ir.TypeI32)
	sum := b.InsertBinary(ir.OpcodeIadd, x, y, ir.TypeI32)
	b.InsertReturn([]ir.Value{sum})
	b.Seal(entry)

	fn, err := b.Finish()
	require.NoError(t, err)
	require.NoError(t, ir.Verify(fn))
}

func TestBuilderMergeBlockInsertsPhi(t *testing.T) {
	b := ir.NewBuilder("abs", ir.Signature{Params: []ir.Type{ir.TypeI64}, Results: []ir.Type{ir.TypeI64}})
	entry := b.CreateBlock()
	neg := b.CreateBlock()
	pos := b.CreateBlock()
	join := b.CreateBlock()

	variable := b.DeclareVariable(ir.TypeI64)

	b.SetCurrentBlock(entry)
	x := b.AddBlockParam(entry, ir.TypeI64)
	zero := b.InsertIconst(ir.TypeI64, 0)
	cond := b.InsertIcmp(ir.IntCCSignedLessThan, x, zero)
	b.InsertBrnz(cond, neg, nil, pos)
	b.Seal(entry)

	b.SetCurrentBlock(neg)
	negated := b.InsertUnary(ir.OpcodeIneg, x, ir.TypeI64)
	b.DefineVariableInCurrentBlock(variable, negated)
	b.InsertJump(join, nil)
	b.Seal(neg)

	b.SetCurrentBlock(pos)
	b.DefineVariableInCurrentBlock(variable, x)
	b.InsertJump(join, nil)
	b.Seal(pos)

	b.SetCurrentBlock(join)
	b.Seal(join)
	result := b.FindValue(variable)
	b.InsertReturn([]ir.Value{result})

	fn, err := b.Finish()
	require.NoError(t, err)
	require.NoError(t, ir.Verify(fn))
}

func TestVerifyRejectsBlockWithNoTerminator(t *testing.T) {
	b := ir.NewBuilder("broken", ir.Signature{})
	entry := b.CreateBlock()
	b.SetCurrentBlock(entry)
	b.InsertIconst(ir.TypeI32, 1)
	b.Seal(entry)

	fn := b.Func()
	err := ir.Verify(fn)
	require.Error(t, err)
	var verr *ir.VerifierError
	require.ErrorAs(t, err, &verr)
}
