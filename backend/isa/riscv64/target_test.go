package riscv64_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joelreymont/machgen/backend/isa/riscv64"
	"github.com/joelreymont/machgen/ir"
	"github.com/joelreymont/machgen/legalize"
)

func TestTargetHasNoNativeFloat(t *testing.T) {
	tgt := riscv64.Target{}
	require.False(t, tgt.HasNativeFloat())
	require.Equal(t, 64, tgt.NativeIntBits())
}

func TestTargetDivisionIsNativeViaRV64M(t *testing.T) {
	tgt := riscv64.Target{}
	action, _ := tgt.OpAction(ir.OpcodeSdiv, ir.TypeI64)
	require.Equal(t, legalize.OpLegal, action)
}

func TestTargetFloatOpcodeExpandsNotLibcall(t *testing.T) {
	tgt := riscv64.Target{}
	action, _ := tgt.OpAction(ir.OpcodeFadd, ir.TypeF64)
	require.Equal(t, legalize.OpExpand, action)
}
