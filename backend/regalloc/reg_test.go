package regalloc_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joelreymont/machgen/backend/regalloc"
)

func TestVRegPackingRoundTrip(t *testing.T) {
	v := regalloc.VReg(regalloc.VRegID(42)).SetRegType(regalloc.RegTypeInt)
	require.Equal(t, regalloc.VRegID(42), v.ID())
	require.Equal(t, regalloc.RegTypeInt, v.RegType())
	require.False(t, v.IsRealReg())
	require.True(t, v.Valid())

	v = v.SetRealReg(regalloc.RealReg(5))
	require.True(t, v.IsRealReg())
	require.Equal(t, regalloc.RealReg(5), v.RealReg())
	// Setting RealReg must not disturb the previously set ID/RegType.
	require.Equal(t, regalloc.VRegID(42), v.ID())
	require.Equal(t, regalloc.RegTypeInt, v.RegType())
}

func TestFromRealReg(t *testing.T) {
	v := regalloc.FromRealReg(regalloc.RealReg(3), regalloc.RegTypeFloat)
	require.True(t, v.IsRealReg())
	require.Equal(t, regalloc.RealReg(3), v.RealReg())
	require.Equal(t, regalloc.RegTypeFloat, v.RegType())
}

func TestFromRealRegPanicsOnOutOfRangeReal(t *testing.T) {
	require.Panics(t, func() {
		regalloc.FromRealReg(regalloc.RealReg(200), regalloc.RegTypeInt)
	})
}

func TestVRegInvalidIsNotValid(t *testing.T) {
	require.False(t, regalloc.VRegInvalid.Valid())
}

func TestVRegSetInsertAndContains(t *testing.T) {
	var s regalloc.VRegSet
	a := regalloc.VReg(regalloc.VRegID(10)).SetRegType(regalloc.RegTypeInt)
	b := regalloc.VReg(regalloc.VRegID(11)).SetRegType(regalloc.RegTypeFloat)

	s.Insert(a)
	require.True(t, s.Contains(a))
	require.False(t, s.Contains(b))

	s.Insert(b)
	require.True(t, s.Contains(b))

	var seen []regalloc.VReg
	s.Range(func(v regalloc.VReg) { seen = append(seen, v) })
	require.Len(t, seen, 2)
}

func TestVRegSetInsertRealRegPanics(t *testing.T) {
	var s regalloc.VRegSet
	real := regalloc.FromRealReg(regalloc.RealReg(1), regalloc.RegTypeInt)
	require.Panics(t, func() { s.Insert(real) })
}

func TestVRegSetReset(t *testing.T) {
	var s regalloc.VRegSet
	v := regalloc.VReg(regalloc.VRegID(7)).SetRegType(regalloc.RegTypeInt)
	s.Insert(v)
	s.Reset()
	require.False(t, s.Contains(v))
}
