package interp_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joelreymont/machgen/interp"
	"github.com/joelreymont/machgen/ir"
)

func buildAdd(t *testing.T) *ir.Function {
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

func TestRunAdd(t *testing.T) {
	fn := buildAdd(t)
	it := interp.New(fn, nil)
	out, err := it.Run([]uint64{40, 2})
	require.NoError(t, err)
	require.Equal(t, []uint64{42}, out)
}

func buildBranch(t *testing.T) *ir.Function {
	t.Helper()
	b := ir.NewBuilder("max", ir.Signature{Params: []ir.Type{ir.TypeI32, ir.TypeI32}, Results: []ir.Type{ir.TypeI32}})
	entry := b.CreateBlock()
	thenBlk := b.CreateBlock()
	elseBlk := b.CreateBlock()

	b.SetCurrentBlock(entry)
	x := b.AddBlockParam(entry, ir.TypeI32)
	y := b.AddBlockParam(entry, ir.TypeI32)
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

func TestRunBranch(t *testing.T) {
	fn := buildBranch(t)

	out, err := interp.New(fn, nil).Run([]uint64{7, 3})
	require.NoError(t, err)
	require.Equal(t, []uint64{7}, out)

	out, err = interp.New(fn, nil).Run([]uint64{3, 7})
	require.NoError(t, err)
	require.Equal(t, []uint64{7}, out)
}

func TestRunDivideByZeroTraps(t *testing.T) {
	b := ir.NewBuilder("divz", ir.Signature{Params: []ir.Type{ir.TypeI32, ir.TypeI32}, Results: []ir.Type{ir.TypeI32}})
	entry := b.CreateBlock()
	b.SetCurrentBlock(entry)
	x := b.AddBlockParam(entry, ir.TypeI32)
	y := b.AddBlockParam(entry, ir.TypeI32)
	q := b.InsertBinary(ir.OpcodeSdiv, x, y, ir.TypeI32)
	b.InsertReturn([]ir.Value{q})
	b.Seal(entry)
	fn, err := b.Finish()
	require.NoError(t, err)

	_, err = interp.New(fn, nil).Run([]uint64{10, 0})
	require.Error(t, err)
	var trapErr *interp.TrapError
	require.ErrorAs(t, err, &trapErr)
}

func TestMemoryLoadStoreRoundTrip(t *testing.T) {
	b := ir.NewBuilder("roundtrip", ir.Signature{Params: []ir.Type{ir.TypeI64, ir.TypeI32}, Results: []ir.Type{ir.TypeI32}})
	entry := b.CreateBlock()
	b.SetCurrentBlock(entry)
	addr := b.AddBlockParam(entry, ir.TypeI64)
	v := b.AddBlockParam(entry, ir.TypeI32)
	b.InsertStore(ir.OpcodeStore, v, addr, 0)
	loaded := b.InsertLoad(ir.OpcodeLoad, addr, 0, ir.TypeI32)
	b.InsertReturn([]ir.Value{loaded})
	b.Seal(entry)
	fn, err := b.Finish()
	require.NoError(t, err)

	mem := &interp.Memory{Bytes: make([]byte, 16)}
	out, err := interp.New(fn, mem).Run([]uint64{0, 0xdeadbeef})
	require.NoError(t, err)
	require.Equal(t, []uint64{0xdeadbeef}, out)
}

func TestOutOfBoundsLoadTraps(t *testing.T) {
	b := ir.NewBuilder("oob", ir.Signature{Params: []ir.Type{ir.TypeI64}, Results: []ir.Type{ir.TypeI32}})
	entry := b.CreateBlock()
	b.SetCurrentBlock(entry)
	addr := b.AddBlockParam(entry, ir.TypeI64)
	loaded := b.InsertLoad(ir.OpcodeLoad, addr, 0, ir.TypeI32)
	b.InsertReturn([]ir.Value{loaded})
	b.Seal(entry)
	fn, err := b.Finish()
	require.NoError(t, err)

	mem := &interp.Memory{Bytes: make([]byte, 2)}
	_, err = interp.New(fn, mem).Run([]uint64{0})
	require.Error(t, err)
	var trapErr *interp.TrapError
	require.ErrorAs(t, err, &trapErr)
}

func TestUnsupportedOpcodeErrors(t *testing.T) {
	b := ir.NewBuilder("fsqrt", ir.Signature{Params: []ir.Type{ir.TypeF64}, Results: []ir.Type{ir.TypeF64}})
	entry := b.CreateBlock()
	b.SetCurrentBlock(entry)
	x := b.AddBlockParam(entry, ir.TypeF64)
	r := b.InsertUnary(ir.OpcodeSqrt, x, ir.TypeF64)
	b.InsertReturn([]ir.Value{r})
	b.Seal(entry)
	fn, err := b.Finish()
	require.NoError(t, err)

	_, err = interp.New(fn, nil).Run([]uint64{0})
	require.Error(t, err)
	var unsupported *interp.UnsupportedOpError
	require.ErrorAs(t, err, &unsupported)
}
