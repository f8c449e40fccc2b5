package jit

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/arch/arm64/arm64asm"
)

// decodeOne asserts that cb holds exactly one instruction word and
// that arm64asm — an independent decoder from this encoder — agrees
// it's a well-formed instruction, per spec.md §8 property 6.
func decodeOne(t *testing.T, cb *CodeBuffer) arm64asm.Inst {
	t.Helper()
	require.Equal(t, 4, cb.Len())
	inst, err := arm64asm.Decode(cb.Bytes())
	require.NoError(t, err)
	return inst
}

func TestEmitAddSubImm(t *testing.T) {
	cb := NewCodeBuffer()
	emitAddSubImm(cb, true, OpADD, X(0), X(1), 42, false)
	inst := decodeOne(t, cb)
	require.Equal(t, arm64asm.ADD, inst.Op)
}

func TestEmitAddSubShifted(t *testing.T) {
	cb := NewCodeBuffer()
	emitAddSubShifted(cb, true, OpSUBS, ShiftLSL, RegZR, X(2), X(3), 0)
	inst := decodeOne(t, cb)
	// SUBS with a zero-register destination decodes as its CMP alias.
	require.Equal(t, arm64asm.CMP, inst.Op)
}

func TestEmitMovWideCascade(t *testing.T) {
	cb := NewCodeBuffer()
	materializeConst64(cb, X(4), 0x1122334455667788)
	require.Equal(t, 16, cb.Len()) // 4 non-zero halfwords -> MOVZ + 3x MOVK
	for off := 0; off < cb.Len(); off += 4 {
		_, err := arm64asm.Decode(cb.Bytes()[off : off+4])
		require.NoError(t, err)
	}
}

func TestEmitMovWideZero(t *testing.T) {
	cb := NewCodeBuffer()
	materializeConst64(cb, X(5), 0)
	inst := decodeOne(t, cb)
	// A lone MOVZ at lane 0 decodes as its MOV (immediate) alias.
	require.Equal(t, arm64asm.MOV, inst.Op)
}

func TestEmitLogicalShifted(t *testing.T) {
	cb := NewCodeBuffer()
	emitLogicalShifted(cb, true, OpORR, false, ShiftLSL, X(0), X(1), X(2), 0)
	inst := decodeOne(t, cb)
	require.Equal(t, arm64asm.ORR, inst.Op)
}

func TestEmitMADD(t *testing.T) {
	cb := NewCodeBuffer()
	emitMADD(cb, true, X(0), X(1), X(2), RegZR)
	inst := decodeOne(t, cb)
	// MADD with the zero register as accumulator decodes as its MUL alias.
	require.Equal(t, arm64asm.MUL, inst.Op)
}

func TestEmitDP2SourceDivAndShift(t *testing.T) {
	for _, op := range []DP2Op{OpSDIV, OpUDIV, OpLSLV, OpASRV, OpLSRV, OpRORV} {
		cb := NewCodeBuffer()
		emitDP2Source(cb, true, op, X(0), X(1), X(2))
		decodeOne(t, cb)
	}
}

func TestEmitLoadStoreScaled(t *testing.T) {
	cb := NewCodeBuffer()
	emitLoadStoreScaled(cb, 8, true, X(0), RegSP, 16)
	inst := decodeOne(t, cb)
	require.Equal(t, arm64asm.LDR, inst.Op)
}

func TestEmitBranchImmRoundTrip(t *testing.T) {
	cb := NewCodeBuffer()
	emitBL(cb, 4)
	inst := decodeOne(t, cb)
	require.Equal(t, arm64asm.BL, inst.Op)
}

func TestEmitCondBranch(t *testing.T) {
	cb := NewCodeBuffer()
	emitCondBranch(cb, CondEQ, 8)
	inst := decodeOne(t, cb)
	// arm64asm decodes B.cond as op B with the condition as first argument.
	require.Equal(t, arm64asm.B, inst.Op)
	require.Equal(t, arm64asm.Cond{Value: uint8(CondEQ)}, inst.Args[0])
}

func TestEmitBRK(t *testing.T) {
	cb := NewCodeBuffer()
	emitBRK(cb, 7)
	inst := decodeOne(t, cb)
	require.Equal(t, arm64asm.BRK, inst.Op)
}

func TestAssertRangePanicsOnOversizedImmediate(t *testing.T) {
	cb := NewCodeBuffer()
	require.Panics(t, func() {
		emitAddSubImm(cb, true, OpADD, X(0), X(1), 1<<13, false)
	})
}

func TestEmitFPDataProc2(t *testing.T) {
	cb := NewCodeBuffer()
	emitFPDataProc2(cb, true, OpFADD, V(0), V(1), V(2))
	inst := decodeOne(t, cb)
	require.Equal(t, arm64asm.FADD, inst.Op)
}

func TestEmitMemBarrier(t *testing.T) {
	cb := NewCodeBuffer()
	emitMemBarrier(cb, OpDSB, BarrierSY)
	inst := decodeOne(t, cb)
	require.Equal(t, arm64asm.DSB, inst.Op)
}
