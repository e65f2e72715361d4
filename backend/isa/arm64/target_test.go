package arm64_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joelreymont/machgen/backend/isa/arm64"
	"github.com/joelreymont/machgen/ir"
	"github.com/joelreymont/machgen/legalize"
)

func TestTargetEveryOpcodeIsLegal(t *testing.T) {
	tgt := arm64.Target{}
	require.Equal(t, 64, tgt.NativeIntBits())
	require.True(t, tgt.HasNativeFloat())

	for _, op := range []ir.Opcode{ir.OpcodeIadd, ir.OpcodeSdiv, ir.OpcodeFadd, ir.OpcodeClz} {
		action, helper := tgt.OpAction(op, ir.TypeI64)
		require.Equal(t, legalize.OpLegal, action)
		require.Empty(t, helper)
	}
}

func TestTargetTypeActionExpandsWiderThan64Bits(t *testing.T) {
	tgt := arm64.Target{}
	action, _ := tgt.TypeAction(ir.TypeI64)
	require.Equal(t, legalize.TypeLegal, action)

	action, _ = tgt.TypeAction(ir.TypeI128)
	require.Equal(t, legalize.TypeExpand, action)
}
