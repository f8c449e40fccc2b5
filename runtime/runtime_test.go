package runtime

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"gvmjit/module"
)

func TestAllocObjWritesTypeHeader(t *testing.T) {
	objType := &module.Type{
		Kind: module.HObj,
		Fields: []module.FieldOffset{
			{Name: "x", Offset: HeaderSize, Type: &module.Type{Kind: module.HI64}},
		},
	}
	addr := AllocObj(objType)
	require.NotZero(t, addr)

	header := *(*uintptr)(unsafe.Pointer(addr))
	require.Equal(t, uintptr(unsafe.Pointer(objType)), header)
}

func TestAllocEnumWritesCtorTag(t *testing.T) {
	enumType := &module.Type{
		Kind: module.HEnum,
		EnumConstructors: [][]*module.Type{
			{},
			{{Kind: module.HI64}},
		},
	}
	addr := AllocEnum(enumType, 1)
	tag := *(*int64)(unsafe.Pointer(addr + HeaderSize))
	require.Equal(t, int64(1), tag)
}

func TestDynSetGetRoundTrip(t *testing.T) {
	i64 := &module.Type{Kind: module.HI64}
	objType := &module.Type{
		Kind:   module.HObj,
		Fields: []module.FieldOffset{{Name: "count", Offset: HeaderSize, Type: i64}},
	}
	addr := AllocObj(objType)
	hash := HashUTF8("count")

	DynSetI(addr, hash, i64, 42)
	require.Equal(t, int64(42), DynGetI(addr, hash, i64))
}

func TestDynCastINarrowsAndWidens(t *testing.T) {
	var v int32 = -7
	require.Equal(t, int64(-7), DynCastI(uintptr(unsafe.Pointer(&v)), &module.Type{Kind: module.HI32}, &module.Type{Kind: module.HI64}))
	var w int64 = 0x1_0000_0005
	require.Equal(t, int64(5), DynCastI(uintptr(unsafe.Pointer(&w)), &module.Type{Kind: module.HI64}, &module.Type{Kind: module.HI32}))
}

func TestPadSizeAlignsToType(t *testing.T) {
	i64 := &module.Type{Kind: module.HI64}
	require.Equal(t, 0, PadSize(16, i64))
	require.Equal(t, 4, PadSize(12, i64))
}

func TestAllocDynBoolReturnsStableHandles(t *testing.T) {
	trueA := AllocDynBool(true)
	trueB := AllocDynBool(true)
	falseA := AllocDynBool(false)
	require.Equal(t, trueA, trueB)
	require.NotEqual(t, trueA, falseA)
}
