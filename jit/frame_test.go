package jit

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/arch/arm64/arm64asm"

	"gvmjit/module"
)

func i64t() *module.Type { return &module.Type{Kind: module.HI64} }
func f64t() *module.Type { return &module.Type{Kind: module.HF64} }

func TestComputeFrameLayoutAssignsArgLocations(t *testing.T) {
	fn := &module.Function{
		Type: &module.FuncType{Args: []*module.Type{i64t(), f64t(), i64t()}, Ret: i64t()},
		Regs: []*module.Type{i64t(), f64t(), i64t()},
	}
	layout := computeFrameLayout(fn)

	require.True(t, layout.args[0].inRegister)
	require.Equal(t, RegCPU, layout.args[0].regClass)
	require.Equal(t, uint8(0), layout.args[0].regIndex)

	require.True(t, layout.args[1].inRegister)
	require.Equal(t, RegFPU, layout.args[1].regClass)
	require.Equal(t, uint8(0), layout.args[1].regIndex)

	require.True(t, layout.args[2].inRegister)
	require.Equal(t, RegCPU, layout.args[2].regClass)
	require.Equal(t, uint8(1), layout.args[2].regIndex)
}

func TestComputeFrameLayoutOverflowsToStack(t *testing.T) {
	var argTypes []*module.Type
	for i := 0; i < 9; i++ {
		argTypes = append(argTypes, i64t())
	}
	fn := &module.Function{
		Type: &module.FuncType{Args: argTypes, Ret: i64t()},
		Regs: argTypes,
	}
	layout := computeFrameLayout(fn)

	for i := 0; i < 8; i++ {
		require.True(t, layout.args[i].inRegister)
	}
	require.False(t, layout.args[8].inRegister)
	require.Equal(t, 0, layout.args[8].stackSlot)
}

func TestFrameSizeIs16ByteAligned(t *testing.T) {
	fn := &module.Function{
		Type: &module.FuncType{Args: nil, Ret: i64t()},
		Regs: []*module.Type{i64t(), {Kind: module.HBool}, i64t()},
	}
	layout := computeFrameLayout(fn)
	require.Zero(t, layout.frameSize%16, "frame size must be 16-byte aligned per AAPCS64")
}

func TestPrologueEpilogueDecodeCleanly(t *testing.T) {
	cb := NewCodeBuffer()
	emitPrologue(cb, 32)
	emitEpilogue(cb, 32)

	for off := 0; off+4 <= cb.Len(); off += 4 {
		_, err := arm64asm.Decode(cb.Bytes()[off : off+4])
		require.NoError(t, err)
	}
}

func TestPrologueOmitsFrameAdjustWhenSizeIsZero(t *testing.T) {
	withFrame := NewCodeBuffer()
	emitPrologue(withFrame, 0)
	// SUB sp,sp,#16; STUR x30; STUR x29; MOV x29,sp — 4 words, no extra
	// SUB when frameSize is 0.
	require.Equal(t, 16, withFrame.Len())
}

func TestStackArgOffsetStartsAfterSavedPair(t *testing.T) {
	require.Equal(t, 16, stackArgOffset(0))
	require.Equal(t, 24, stackArgOffset(1))
}
