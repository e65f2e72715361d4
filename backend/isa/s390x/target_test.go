package s390x_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joelreymont/machgen/backend/isa/s390x"
	"github.com/joelreymont/machgen/ir"
	"github.com/joelreymont/machgen/legalize"
)

func TestTargetHasNoNativeFloat(t *testing.T) {
	tgt := s390x.Target{}
	require.False(t, tgt.HasNativeFloat())
	require.Equal(t, 64, tgt.NativeIntBits())
}

func TestTargetDivisionRoutesToLibcallUnlikeRiscv64(t *testing.T) {
	tgt := s390x.Target{}
	action, helper := tgt.OpAction(ir.OpcodeSdiv, ir.TypeI64)
	require.Equal(t, legalize.OpLibcall, action)
	require.NotEmpty(t, helper)
}

func TestTargetCoreIntegerOpsAreLegal(t *testing.T) {
	tgt := s390x.Target{}
	action, _ := tgt.OpAction(ir.OpcodeIadd, ir.TypeI64)
	require.Equal(t, legalize.OpLegal, action)
}

func TestTargetFloatOpcodeExpands(t *testing.T) {
	tgt := s390x.Target{}
	action, _ := tgt.OpAction(ir.OpcodeFadd, ir.TypeF64)
	require.Equal(t, legalize.OpExpand, action)
}
