package features

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetHasWith(t *testing.T) {
	var s Set
	require.False(t, s.Has(Amd64AVX2))

	s = s.With(Amd64AVX2)
	require.True(t, s.Has(Amd64AVX2))
	require.False(t, s.Has(Amd64SSE3))

	s = s.With(Arm64Atomic)
	require.True(t, s.Has(Amd64AVX2))
	require.True(t, s.Has(Arm64Atomic))
}

func TestReadProcCPUInfoField(t *testing.T) {
	path := writeTempCPUInfo(t, "processor\t: 0\nisa\t: rv64imafdc\nmmu\t: sv48\n")

	v, err := readProcCPUInfoField(path, "isa")
	require.NoError(t, err)
	require.Equal(t, "rv64imafdc", v)

	_, err = readProcCPUInfoField(path, "nonesuch")
	require.Error(t, err)
}

func writeTempCPUInfo(t *testing.T, contents string) string {
	t.Helper()
	path := t.TempDir() + "/cpuinfo"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}
