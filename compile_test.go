package machgen_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joelreymont/machgen"
	"github.com/joelreymont/machgen/ir"
)

func buildAddFunction(t *testing.T) *ir.Function {
	t.Helper()
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
	return fn
}

func buildBranchyFunction(t *testing.T) *ir.Function {
	t.Helper()
	b := ir.NewBuilder("max", ir.Signature{Params: []ir.Type{ir.TypeI64, ir.TypeI64}, Results: []ir.Type{ir.TypeI64}})
	entry := b.CreateBlock()
	thenBlk := b.CreateBlock()
	elseBlk := b.CreateBlock()

	b.SetCurrentBlock(entry)
	x := b.AddBlockParam(entry, ir.TypeI64)
	y := b.AddBlockParam(entry, ir.TypeI64)
	cond := b.InsertIcmp(ir.IntCCSignedGreaterThan, x, y)
	b.InsertBrnz(cond, thenBlk, nil, elseBlk)
	b.Seal(entry)

	b.SetCurrentBlock(thenBlk)
	b.InsertReturn([]ir.Value{x})
	b.Seal(thenBlk)

	b.SetCurrentBlock(elseBlk)
	b.InsertReturn([]ir.Value{y})
	b.Seal(elseBlk)

	fn, err := b.Finish()
	require.NoError(t, err)
	return fn
}

// TestCompileEveryArch exercises the full pipeline (verify, legalize,
// lower, register-allocate, encode) for every backend this module
// registers, the same set newMachineAndTarget's switch names.
func TestCompileEveryArch(t *testing.T) {
	archs := []machgen.Arch{machgen.ArchArm64, machgen.ArchAmd64, machgen.ArchRiscv64, machgen.ArchS390x}

	for _, arch := range archs {
		arch := arch
		t.Run(arch.String(), func(t *testing.T) {
			fn := buildAddFunction(t)
			res, err := machgen.Compile(fn, machgen.TargetSpec{Arch: arch}, machgen.NewOptions(machgen.WithVerifyIR(true)))
			require.NoError(t, err)
			require.NotEmpty(t, res.Code)
		})
	}
}

func TestCompileBranchyEveryArch(t *testing.T) {
	archs := []machgen.Arch{machgen.ArchArm64, machgen.ArchAmd64, machgen.ArchRiscv64, machgen.ArchS390x}

	for _, arch := range archs {
		arch := arch
		t.Run(arch.String(), func(t *testing.T) {
			fn := buildBranchyFunction(t)
			res, err := machgen.Compile(fn, machgen.TargetSpec{Arch: arch}, machgen.NewOptions(machgen.WithVerifyIR(true)))
			require.NoError(t, err)
			require.NotEmpty(t, res.Code)
		})
	}
}

func TestCompileUnsupportedArch(t *testing.T) {
	fn := buildAddFunction(t)
	_, err := machgen.Compile(fn, machgen.TargetSpec{Arch: machgen.ArchInvalid}, machgen.Options{})
	require.ErrorIs(t, err, machgen.ErrUnsupportedArch)
}

func TestCompileStackLimitRejectsOversizedFrame(t *testing.T) {
	fn := buildAddFunction(t)
	_, err := machgen.Compile(fn, machgen.TargetSpec{Arch: machgen.ArchAmd64}, machgen.NewOptions(machgen.WithStackLimit(1)))
	require.Error(t, err)
}

func TestCompileTrapsRecordedWhenRequested(t *testing.T) {
	b := ir.NewBuilder("unreachable", ir.Signature{})
	entry := b.CreateBlock()
	b.SetCurrentBlock(entry)
	b.InsertTrap(0)
	b.Seal(entry)
	fn, err := b.Finish()
	require.NoError(t, err)

	res, err := machgen.Compile(fn, machgen.TargetSpec{Arch: machgen.ArchAmd64}, machgen.NewOptions(machgen.WithTraps(true)))
	require.NoError(t, err)
	require.NotEmpty(t, res.Traps)
}
