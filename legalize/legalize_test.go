package legalize_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joelreymont/machgen/ir"
	"github.com/joelreymont/machgen/legalize"
)

// stubTarget is the minimal legalize.Target a test supplies, per the
// Target interface doc's own note that "tests may supply a minimal one".
type stubTarget struct {
	udivAction legalize.OpAction
}

func (s stubTarget) NativeIntBits() int   { return 64 }
func (s stubTarget) HasNativeFloat() bool { return false }

func (s stubTarget) TypeAction(t ir.Type) (legalize.TypeAction, ir.Type) {
	return legalize.TypeLegal, t
}

func (s stubTarget) OpAction(op ir.Opcode, t ir.Type) (legalize.OpAction, string) {
	switch op {
	case ir.OpcodeUdiv, ir.OpcodeSdiv, ir.OpcodeUrem, ir.OpcodeSrem:
		return s.udivAction, ""
	case ir.OpcodePopcnt:
		return legalize.OpLibcall, "machgen_popcnt_i32"
	default:
		return legalize.OpLegal, ""
	}
}

func (s stubTarget) CustomExpand(*ir.Function, ir.Instruction) {
	panic("stubTarget: no OpCustom rule registered")
}

func buildDivFunction(t *testing.T, divisor int64) *ir.Function {
	t.Helper()
	b := ir.NewBuilder("div", ir.Signature{Params: []ir.Type{ir.TypeI32}, Results: []ir.Type{ir.TypeI32}})
	entry := b.CreateBlock()
	b.SetCurrentBlock(entry)
	x := b.AddBlockParam(entry, ir.TypeI32)
	d := b.InsertIconst(ir.TypeI32, ir.Imm64(divisor))
	q := b.InsertBinary(ir.OpcodeUdiv, x, d, ir.TypeI32)
	b.InsertReturn([]ir.Value{q})
	b.Seal(entry)
	fn, err := b.Finish()
	require.NoError(t, err)
	return fn
}

func TestLegalizeExpandsPowerOfTwoDivision(t *testing.T) {
	fn := buildDivFunction(t, 4)
	require.NoError(t, legalize.Run(fn, stubTarget{udivAction: legalize.OpExpand}))
	require.NoError(t, ir.Verify(fn))
}

func TestLegalizeNonPowerOfTwoDivisionErrors(t *testing.T) {
	fn := buildDivFunction(t, 3)
	err := legalize.Run(fn, stubTarget{udivAction: legalize.OpExpand})
	require.Error(t, err)
	var lerr *legalize.LegalizationError
	require.ErrorAs(t, err, &lerr)
	require.Equal(t, ir.OpcodeUdiv, lerr.Opcode)
}

func TestLegalizeRoutesOpLibcallThroughACall(t *testing.T) {
	b := ir.NewBuilder("popcount", ir.Signature{Params: []ir.Type{ir.TypeI32}, Results: []ir.Type{ir.TypeI32}})
	entry := b.CreateBlock()
	b.SetCurrentBlock(entry)
	x := b.AddBlockParam(entry, ir.TypeI32)
	p := b.InsertUnary(ir.OpcodePopcnt, x, ir.TypeI32)
	b.InsertReturn([]ir.Value{p})
	b.Seal(entry)
	fn, err := b.Finish()
	require.NoError(t, err)

	require.NoError(t, legalize.Run(fn, stubTarget{udivAction: legalize.OpLegal}))
	require.NoError(t, ir.Verify(fn))
}
