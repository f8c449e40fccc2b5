//go:build arm64

package jit

import (
	"testing"

	"github.com/stretchr/testify/require"

	"gvmjit/module"
)

// buildAddModule constructs a single function: add(a, b int64) = a+b.
func buildAddModule() *module.Module {
	i64 := &module.Type{Kind: module.HI64}
	fn := &module.Function{
		Findex: 0,
		Name:   "add",
		Type:   &module.FuncType{Args: []*module.Type{i64, i64}, Ret: i64},
		Regs:   []*module.Type{i64, i64, i64},
		Ops: []module.Opcode{
			{Tag: module.OAdd, P1: 2, P2: 0, P3: 1},
			{Tag: module.ORet, P1: 2},
		},
	}
	mod := &module.Module{Functions: []*module.Function{fn}}
	mod.Finalize()
	return mod
}

func TestEndToEndAdd(t *testing.T) {
	mod := buildAddModule()
	ctx := NewContext()
	require.NoError(t, ctx.Init(mod))

	off, err := ctx.CompileFunction(mod, mod.Functions[0])
	require.NoError(t, err)
	require.Equal(t, 16, off) // after Init's four guard NOPs (no float literal pool)

	exe, debugInfos, err := ctx.Finalize(mod, nil)
	require.NoError(t, err)
	require.Len(t, debugInfos, 1)

	entry, ok := exe.Offset(0)
	require.True(t, ok)
	require.Equal(t, uint64(7), exe.CallEntry(entry, 3, 4))
	require.Equal(t, uint64(0), exe.CallEntry(entry, 5, ^uint64(4)))
}

// buildCrossCallModule mirrors cmd/gvmjit's demo: sumOfSquares(a, b)
// calls square(x) twice, forcing a forward-referenced deferred call
// that Finalize must relocate.
func buildCrossCallModule() *module.Module {
	i64 := &module.Type{Kind: module.HI64}
	square := &module.Function{
		Findex: 1,
		Name:   "square",
		Type:   &module.FuncType{Args: []*module.Type{i64}, Ret: i64},
		Regs:   []*module.Type{i64, i64},
		Ops: []module.Opcode{
			{Tag: module.OMul, P1: 1, P2: 0, P3: 0},
			{Tag: module.ORet, P1: 1},
		},
	}
	sumOfSquares := &module.Function{
		Findex: 0,
		Name:   "sumOfSquares",
		Type:   &module.FuncType{Args: []*module.Type{i64, i64}, Ret: i64},
		Regs:   []*module.Type{i64, i64, i64, i64},
		Ops: []module.Opcode{
			{Tag: module.OCall1, P1: 2, P2: 1, Extra: []int32{0}},
			{Tag: module.OCall1, P1: 3, P2: 1, Extra: []int32{1}},
			{Tag: module.OAdd, P1: 2, P2: 2, P3: 3},
			{Tag: module.ORet, P1: 2},
		},
	}
	mod := &module.Module{Functions: []*module.Function{sumOfSquares, square}}
	mod.Finalize()
	return mod
}

func TestEndToEndCrossFunctionCall(t *testing.T) {
	mod := buildCrossCallModule()
	ctx := NewContext()
	require.NoError(t, ctx.Init(mod))

	for _, fn := range mod.Functions {
		_, err := ctx.CompileFunction(mod, fn)
		require.NoError(t, err)
	}

	exe, _, err := ctx.Finalize(mod, nil)
	require.NoError(t, err)

	off, ok := exe.Offset(0)
	require.True(t, ok)
	require.Equal(t, uint64(3*3+4*4), exe.CallEntry(off, 3, 4))
}

// buildIdentityModule constructs identity(x int64) = x, spec.md §8
// scenario #1.
func buildIdentityModule() *module.Module {
	i64 := &module.Type{Kind: module.HI64}
	fn := &module.Function{
		Findex: 0,
		Name:   "identity",
		Type:   &module.FuncType{Args: []*module.Type{i64}, Ret: i64},
		Regs:   []*module.Type{i64},
		Ops: []module.Opcode{
			{Tag: module.ORet, P1: 0},
		},
	}
	mod := &module.Module{Functions: []*module.Function{fn}}
	mod.Finalize()
	return mod
}

func TestEndToEndIdentity(t *testing.T) {
	mod := buildIdentityModule()
	ctx := NewContext()
	require.NoError(t, ctx.Init(mod))
	_, err := ctx.CompileFunction(mod, mod.Functions[0])
	require.NoError(t, err)

	exe, _, err := ctx.Finalize(mod, nil)
	require.NoError(t, err)

	off, ok := exe.Offset(0)
	require.True(t, ok)
	require.Equal(t, uint64(7), exe.CallEntry(off, 7))
	require.Equal(t, uint64(0), exe.CallEntry(off, 0))
}

// buildMaxModule constructs max(a, b int64) = a > b ? a : b, spec.md
// §8 scenario #3: a compare-and-jump over the b-returning arm.
func buildMaxModule() *module.Module {
	i64 := &module.Type{Kind: module.HI64}
	fn := &module.Function{
		Findex: 0,
		Name:   "max",
		Type:   &module.FuncType{Args: []*module.Type{i64, i64}, Ret: i64},
		Regs:   []*module.Type{i64, i64},
		Ops: []module.Opcode{
			{Tag: module.OJSGt, P1: 0, P2: 1, P3: 1}, // idx0: a>b -> jump to idx2
			{Tag: module.ORet, P1: 1},                // idx1: return b
			{Tag: module.ORet, P1: 0},                // idx2: return a
		},
	}
	mod := &module.Module{Functions: []*module.Function{fn}}
	mod.Finalize()
	return mod
}

func TestEndToEndConditionalBranch(t *testing.T) {
	mod := buildMaxModule()
	ctx := NewContext()
	require.NoError(t, ctx.Init(mod))
	_, err := ctx.CompileFunction(mod, mod.Functions[0])
	require.NoError(t, err)

	exe, _, err := ctx.Finalize(mod, nil)
	require.NoError(t, err)

	off, ok := exe.Offset(0)
	require.True(t, ok)
	require.Equal(t, uint64(5), exe.CallEntry(off, 5, 3))
	require.Equal(t, uint64(9), exe.CallEntry(off, 2, 9))
}

// buildFactorialModule constructs a self-recursive
// fact(n int64) = n <= 1 ? 1 : n * fact(n-1), spec.md §8 scenario #4:
// OCall1 targeting this function's own (already-known) findex.
func buildFactorialModule() *module.Module {
	i64 := &module.Type{Kind: module.HI64}
	fn := &module.Function{
		Findex: 0,
		Name:   "fact",
		Type:   &module.FuncType{Args: []*module.Type{i64}, Ret: i64},
		Regs:   []*module.Type{i64, i64, i64, i64}, // n, one, nm1, result
		Ops: []module.Opcode{
			{Tag: module.OInt, P1: 1, P2: 0},                      // idx0: one = Ints[0] (1)
			{Tag: module.OJSGt, P1: 0, P2: 1, P3: 1},              // idx1: n>one -> jump to idx3
			{Tag: module.ORet, P1: 1},                             // idx2: return one
			{Tag: module.OSub, P1: 2, P2: 0, P3: 1},                // idx3: nm1 = n-one
			{Tag: module.OCall1, P1: 3, P2: 0, Extra: []int32{2}}, // idx4: result = fact(nm1)
			{Tag: module.OMul, P1: 3, P2: 0, P3: 3},               // idx5: result = n*result
			{Tag: module.ORet, P1: 3},                             // idx6: return result
		},
	}
	mod := &module.Module{Functions: []*module.Function{fn}, Ints: []int32{1}}
	mod.Finalize()
	return mod
}

func TestEndToEndSelfRecursiveFactorial(t *testing.T) {
	mod := buildFactorialModule()
	ctx := NewContext()
	require.NoError(t, ctx.Init(mod))
	_, err := ctx.CompileFunction(mod, mod.Functions[0])
	require.NoError(t, err)

	exe, _, err := ctx.Finalize(mod, nil)
	require.NoError(t, err)

	off, ok := exe.Offset(0)
	require.True(t, ok)
	require.Equal(t, uint64(1), exe.CallEntry(off, 1))
	require.Equal(t, uint64(120), exe.CallEntry(off, 5))
}

// buildObjFieldModule constructs objRoundTrip(v int64) = { o := new
// HObj; o.x = v; return o.x }, spec.md §8 scenario #5's plain HObj
// field path: a compile-time-known offset, no runtime dispatch.
func buildObjFieldModule() *module.Module {
	i64 := &module.Type{Kind: module.HI64}
	objType := &module.Type{
		Kind:   module.HObj,
		Fields: []module.FieldOffset{{Name: "x", Offset: 8, Type: i64}},
	}
	fn := &module.Function{
		Findex: 0,
		Name:   "objRoundTrip",
		Type:   &module.FuncType{Args: []*module.Type{i64}, Ret: i64},
		Regs:   []*module.Type{i64, objType, i64}, // v, o, result
		Ops: []module.Opcode{
			{Tag: module.ONew, P1: 1, P2: 0},
			{Tag: module.OSetField, P1: 0, P2: 1, P3: 0},
			{Tag: module.OField, P1: 2, P2: 1, P3: 0},
			{Tag: module.ORet, P1: 2},
		},
	}
	mod := &module.Module{Functions: []*module.Function{fn}, Types: []*module.Type{objType}}
	mod.Finalize()
	return mod
}

func TestEndToEndObjectFieldRoundTrip(t *testing.T) {
	mod := buildObjFieldModule()
	ctx := NewContext()
	require.NoError(t, ctx.Init(mod))
	_, err := ctx.CompileFunction(mod, mod.Functions[0])
	require.NoError(t, err)

	exe, _, err := ctx.Finalize(mod, nil)
	require.NoError(t, err)

	off, ok := exe.Offset(0)
	require.True(t, ok)
	require.Equal(t, uint64(42), exe.CallEntry(off, 42))
}

// buildVirtualFieldModule constructs the HVirtual counterpart of
// buildObjFieldModule: the same v-in/x-out round trip, but against an
// HVirtual object whose per-field pointer slot is never bound to a
// concrete object's storage, so both the OSetField and the OField
// access take genVirtualField's null-slot arm and go through the
// hl_dyn_set/get bridge. The field's storage offset is placed well
// past the slot row so the two don't alias within the zeroed
// allocation.
func buildVirtualFieldModule() *module.Module {
	i64 := &module.Type{Kind: module.HI64}
	virtType := &module.Type{
		Kind:   module.HVirtual,
		Fields: []module.FieldOffset{{Name: "x", Offset: 64, Type: i64}},
	}
	fn := &module.Function{
		Findex: 0,
		Name:   "virtualFieldRoundTrip",
		Type:   &module.FuncType{Args: []*module.Type{i64}, Ret: i64},
		Regs:   []*module.Type{i64, virtType, i64}, // v, o, result
		Ops: []module.Opcode{
			{Tag: module.ONew, P1: 1, P2: 0},
			{Tag: module.OSetField, P1: 0, P2: 1, P3: 0},
			{Tag: module.OField, P1: 2, P2: 1, P3: 0},
			{Tag: module.ORet, P1: 2},
		},
	}
	mod := &module.Module{Functions: []*module.Function{fn}, Types: []*module.Type{virtType}}
	mod.Finalize()
	return mod
}

func TestEndToEndVirtualFieldRoundTrip(t *testing.T) {
	mod := buildVirtualFieldModule()
	ctx := NewContext()
	require.NoError(t, ctx.Init(mod))
	_, err := ctx.CompileFunction(mod, mod.Functions[0])
	require.NoError(t, err)

	exe, _, err := ctx.Finalize(mod, nil)
	require.NoError(t, err)

	off, ok := exe.Offset(0)
	require.True(t, ok)
	require.Equal(t, uint64(99), exe.CallEntry(off, 99))
}

// buildFloatDivideModule constructs divAndTruncate() = int(10.0/4.0),
// spec.md §8 scenario #6. CallEntry only places integer/pointer
// arguments (call_arm64.s loads x0-x7, not v0-v7), so the float inputs
// are literal-pool constants and the result is narrowed back to an
// integer via OToInt rather than round-tripped through the call ABI.
func buildFloatDivideModule() *module.Module {
	i64 := &module.Type{Kind: module.HI64}
	f64 := &module.Type{Kind: module.HF64}
	fn := &module.Function{
		Findex: 0,
		Name:   "divAndTruncate",
		Type:   &module.FuncType{Ret: i64},
		Regs:   []*module.Type{f64, f64, f64, i64}, // a, b, q, result
		Ops: []module.Opcode{
			{Tag: module.OFloat, P1: 0, P2: 0},
			{Tag: module.OFloat, P1: 1, P2: 1},
			{Tag: module.OFDiv, P1: 2, P2: 0, P3: 1},
			{Tag: module.OToInt, P1: 3, P2: 2},
			{Tag: module.ORet, P1: 3},
		},
	}
	mod := &module.Module{Functions: []*module.Function{fn}, Floats: []float64{10.0, 4.0}}
	mod.Finalize()
	return mod
}

func TestEndToEndFloatDivide(t *testing.T) {
	mod := buildFloatDivideModule()
	ctx := NewContext()
	require.NoError(t, ctx.Init(mod))
	_, err := ctx.CompileFunction(mod, mod.Functions[0])
	require.NoError(t, err)

	exe, _, err := ctx.Finalize(mod, nil)
	require.NoError(t, err)

	off, ok := exe.Offset(0)
	require.True(t, ok)
	require.Equal(t, uint64(2), exe.CallEntry(off))
}

func TestMissingFindexDuringFinalizeIsReported(t *testing.T) {
	i64 := &module.Type{Kind: module.HI64}
	fn := &module.Function{
		Findex: 0,
		Name:   "callsNowhere",
		Type:   &module.FuncType{Args: []*module.Type{i64}, Ret: i64},
		Regs:   []*module.Type{i64, i64},
		Ops: []module.Opcode{
			{Tag: module.OCall1, P1: 1, P2: 99, Extra: []int32{0}},
			{Tag: module.ORet, P1: 1},
		},
	}
	mod := &module.Module{Functions: []*module.Function{fn}}
	mod.Finalize()

	ctx := NewContext()
	require.NoError(t, ctx.Init(mod))
	_, err := ctx.CompileFunction(mod, fn)
	require.NoError(t, err)

	_, _, err = ctx.Finalize(mod, nil)
	require.ErrorIs(t, err, ErrMissingFindex)
}
