package amd64_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joelreymont/machgen/backend/isa/amd64"
	"github.com/joelreymont/machgen/ir"
	"github.com/joelreymont/machgen/legalize"
)

func TestTargetNativeArithmeticIsLegal(t *testing.T) {
	tgt := amd64.Target{}
	require.True(t, tgt.HasNativeFloat())

	action, helper := tgt.OpAction(ir.OpcodeIadd, ir.TypeI64)
	require.Equal(t, legalize.OpLegal, action)
	require.Empty(t, helper)
}

func TestTargetDivisionExpandsRatherThanLibcall(t *testing.T) {
	tgt := amd64.Target{}
	action, _ := tgt.OpAction(ir.OpcodeSdiv, ir.TypeI32)
	require.Equal(t, legalize.OpExpand, action)
}

func TestTargetPopcountRoutesToLibcall(t *testing.T) {
	tgt := amd64.Target{}
	action, helper := tgt.OpAction(ir.OpcodePopcnt, ir.TypeI32)
	require.Equal(t, legalize.OpLibcall, action)
	require.NotEmpty(t, helper)
}
