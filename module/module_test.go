package module

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFunctionByFindexResolvesSparseIndices(t *testing.T) {
	mod := &Module{
		Functions: []*Function{
			{Findex: 10, Name: "a"},
			{Findex: 3, Name: "b"},
		},
	}
	mod.Finalize()

	fn, ok := mod.FunctionByFindex(3)
	require.True(t, ok)
	require.Equal(t, "b", fn.Name)

	_, ok = mod.FunctionByFindex(99)
	require.False(t, ok)
}

func TestNativeByFindexResolves(t *testing.T) {
	mod := &Module{
		Natives: []*NativeFunc{
			{Findex: 5, Name: "puts", Addr: 0x1000},
		},
	}
	mod.Finalize()

	nf, ok := mod.NativeByFindex(5)
	require.True(t, ok)
	require.Equal(t, uintptr(0x1000), nf.Addr)

	_, ok = mod.NativeByFindex(6)
	require.False(t, ok)
}

func TestNewModuleStartsEmptyAndFinalized(t *testing.T) {
	mod := NewModule()
	_, ok := mod.FunctionByFindex(0)
	require.False(t, ok)
}
