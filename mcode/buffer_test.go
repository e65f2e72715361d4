package mcode_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joelreymont/machgen/mcode"
)

func TestBufferEmitRespectsByteOrder(t *testing.T) {
	le := mcode.NewBuffer(binary.LittleEndian)
	le.Emit2(0x1234)
	le.Emit4(0x89abcdef)
	require.Equal(t, []byte{0x34, 0x12, 0xef, 0xcd, 0xab, 0x89}, le.Code)

	be := mcode.NewBuffer(binary.BigEndian)
	be.Emit2(0x1234)
	be.Emit4(0x89abcdef)
	require.Equal(t, []byte{0x12, 0x34, 0x89, 0xab, 0xcd, 0xef}, be.Code)
}

func TestBufferEmit1And8AndBytes(t *testing.T) {
	buf := mcode.NewBuffer(binary.LittleEndian)
	buf.Emit1(0xff)
	buf.Emit8(0x0102030405060708)
	buf.EmitBytes([]byte{0xaa, 0xbb})
	require.Equal(t, int64(11), buf.CurrentOffset())
	require.Equal(t, byte(0xff), buf.Code[0])
	require.Equal(t, []byte{0xaa, 0xbb}, buf.Code[9:11])
}

func TestBufferLabelBindAndOffset(t *testing.T) {
	buf := mcode.NewBuffer(binary.LittleEndian)
	l := buf.NewLabel()
	require.Equal(t, int64(-1), buf.LabelOffset(l))
	buf.Emit4(0)
	buf.BindLabel(l)
	require.Equal(t, int64(4), buf.LabelOffset(l))
}

func TestBufferBindLabelTwicePanics(t *testing.T) {
	buf := mcode.NewBuffer(binary.LittleEndian)
	l := buf.NewLabel()
	buf.BindLabel(l)
	require.Panics(t, func() { buf.BindLabel(l) })
}

func TestBufferReset(t *testing.T) {
	buf := mcode.NewBuffer(binary.LittleEndian)
	buf.Emit4(1)
	l := buf.NewLabel()
	buf.BindLabel(l)
	buf.RecordTrap(mcode.Trap{Offset: 0})
	buf.RecordRelocation(mcode.Relocation{Offset: 0})
	buf.Reset()
	require.Empty(t, buf.Code)
	require.Empty(t, buf.Traps())
	require.Empty(t, buf.Relocations())
}

// fixedWidthFixup is a minimal FixupKind used only to exercise Buffer's
// fixup/veneer resolution loop independent of any ISA's real encoding.
type fixedWidthFixup struct {
	inRange func(delta int64) bool
}

func (f fixedWidthFixup) Name() string   { return "test" }
func (f fixedWidthFixup) BitWidth() uint { return 8 }
func (f fixedWidthFixup) Scale() int64   { return 1 }
func (f fixedWidthFixup) InRange(delta int64) bool {
	if f.inRange != nil {
		return f.inRange(delta)
	}
	return delta >= -128 && delta <= 127
}
func (f fixedWidthFixup) Patch(code []byte, site int64, delta int64) {
	code[site] = byte(delta)
}
func (f fixedWidthFixup) VeneerSize() int { return 2 }
func (f fixedWidthFixup) EncodeVeneer(code []byte, at int64, target int64) {
	code[at] = 0xee
	code[at+1] = byte(target)
}

func TestResolveFixupsPatchesInRangeForwardReference(t *testing.T) {
	buf := mcode.NewBuffer(binary.LittleEndian)
	l := buf.NewLabel()
	site := buf.CurrentOffset()
	buf.Emit1(0) // placeholder for the patched delta
	buf.RecordFixup(site, fixedWidthFixup{}, l)
	buf.Emit1(0)
	buf.Emit1(0)
	buf.BindLabel(l)

	require.NoError(t, buf.ResolveFixups())
	require.Equal(t, byte(3), buf.Code[site])
}

func TestResolveFixupsUnboundLabelErrors(t *testing.T) {
	buf := mcode.NewBuffer(binary.LittleEndian)
	l := buf.NewLabel()
	buf.RecordFixup(buf.CurrentOffset(), fixedWidthFixup{}, l)
	buf.Emit1(0)

	err := buf.ResolveFixups()
	require.Error(t, err)
	var unbound *mcode.UnboundLabelError
	require.ErrorAs(t, err, &unbound)
}

func TestResolveFixupsInsertsVeneerWhenOutOfRange(t *testing.T) {
	buf := mcode.NewBuffer(binary.LittleEndian)
	l := buf.NewLabel()
	site := buf.CurrentOffset()
	buf.Emit1(0)
	buf.RecordFixup(site, fixedWidthFixup{inRange: func(delta int64) bool { return delta == 1 }}, l)
	buf.MarkBlockBoundary()
	buf.Emit1(0)
	buf.BindLabel(l)

	require.NoError(t, buf.ResolveFixups())
	// The veneer lands at the recorded block boundary, one byte past site,
	// and the fixup now points one byte forward to it (delta == 1).
	require.Equal(t, byte(1), buf.Code[site])
	require.Equal(t, byte(0xee), buf.Code[site+1])
}

func TestResolveFixupsOutOfRangeEvenWithVeneerErrors(t *testing.T) {
	buf := mcode.NewBuffer(binary.LittleEndian)
	l := buf.NewLabel()
	site := buf.CurrentOffset()
	buf.Emit1(0)
	buf.RecordFixup(site, fixedWidthFixup{inRange: func(int64) bool { return false }}, l)
	buf.BindLabel(l)

	err := buf.ResolveFixups()
	require.Error(t, err)
	var oor *mcode.OutOfRangeError
	require.ErrorAs(t, err, &oor)
}
