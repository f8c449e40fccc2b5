package runtime

import (
	"fmt"
	"hash/fnv"
	"unsafe"

	"gvmjit/module"
)

// NullAccess implements hl_null_access: a no-return trap. Emitted code
// branches past the call on the non-null fast path (spec.md §4.3); if
// it is ever actually reached, the VM embedding is expected to treat
// this as fatal, same as the BRK traps for unsupported opcodes.
func NullAccess() {
	panic("null access")
}

// ToVirtual implements hl_to_virtual: coerce object to a virtual view
// of destType. In this stand-in, objects and virtuals share the same
// memory shape, so this is the identity function over the pointer.
func ToVirtual(destType *module.Type, object uintptr) uintptr {
	_ = destType
	return object
}

// HashUTF8 implements hl_hash_utf8: a stable hash of a field/method
// name used to key dynamic dispatch. FNV-1a, same as the teacher's use
// of stdlib-only hashing for its own checksum needs.
func HashUTF8(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}

func fieldByHash(t *module.Type, hash uint32) (module.FieldOffset, bool) {
	for _, f := range t.Fields {
		if HashUTF8(f.Name) == hash {
			return f, true
		}
	}
	return module.FieldOffset{}, false
}

// DynGetI implements hl_dyn_geti: read an integer-kinded field off a
// dynamic/virtual object by hashed field name.
func DynGetI(obj uintptr, hash uint32, destType *module.Type) int64 {
	f, ok := fieldByHash(typeOf(obj), hash)
	if !ok {
		return 0
	}
	p := unsafe.Pointer(obj + uintptr(f.Offset))
	switch destType.Size() {
	case 1:
		return int64(*(*int8)(p))
	case 2:
		return int64(*(*int16)(p))
	case 4:
		return int64(*(*int32)(p))
	default:
		return *(*int64)(p)
	}
}

// DynGetF implements hl_dyn_getf (32-bit float).
func DynGetF(obj uintptr, hash uint32) float32 {
	f, ok := fieldByHash(typeOf(obj), hash)
	if !ok {
		return 0
	}
	return *(*float32)(unsafe.Pointer(obj + uintptr(f.Offset)))
}

// DynGetD implements hl_dyn_getd (64-bit float).
func DynGetD(obj uintptr, hash uint32) float64 {
	f, ok := fieldByHash(typeOf(obj), hash)
	if !ok {
		return 0
	}
	return *(*float64)(unsafe.Pointer(obj + uintptr(f.Offset)))
}

// DynGetP implements hl_dyn_getp (pointer-shaped field).
func DynGetP(obj uintptr, hash uint32) uintptr {
	f, ok := fieldByHash(typeOf(obj), hash)
	if !ok {
		return 0
	}
	return *(*uintptr)(unsafe.Pointer(obj + uintptr(f.Offset)))
}

// DynSetI/F/D/P implement hl_dyn_set{i,f,d,p}: write a field by hashed
// name, growing nothing — the stand-in dyn-object arena is fixed size
// (see AllocDynObj).
func DynSetI(obj uintptr, hash uint32, t *module.Type, v int64) {
	f, ok := fieldByHash(typeOf(obj), hash)
	if !ok {
		return
	}
	p := unsafe.Pointer(obj + uintptr(f.Offset))
	switch t.Size() {
	case 1:
		*(*int8)(p) = int8(v)
	case 2:
		*(*int16)(p) = int16(v)
	case 4:
		*(*int32)(p) = int32(v)
	default:
		*(*int64)(p) = v
	}
}

func DynSetF(obj uintptr, hash uint32, v float32) {
	if f, ok := fieldByHash(typeOf(obj), hash); ok {
		*(*float32)(unsafe.Pointer(obj + uintptr(f.Offset))) = v
	}
}

func DynSetD(obj uintptr, hash uint32, v float64) {
	if f, ok := fieldByHash(typeOf(obj), hash); ok {
		*(*float64)(unsafe.Pointer(obj + uintptr(f.Offset))) = v
	}
}

func DynSetP(obj uintptr, hash uint32, v uintptr) {
	if f, ok := fieldByHash(typeOf(obj), hash); ok {
		*(*uintptr)(unsafe.Pointer(obj + uintptr(f.Offset))) = v
	}
}

func typeOf(obj uintptr) *module.Type {
	return (*module.Type)(unsafe.Pointer(*(*uintptr)(unsafe.Pointer(obj))))
}

// castError describes a failed dynamic cast. Nothing in this package
// returns it: the DynCast* functions report failure only through their
// result (null from DynCastP), which is all JIT'd code observes.
type castError struct {
	from, to module.Kind
}

func (e castError) Error() string {
	return fmt.Sprintf("cannot cast %s to %s", e.from, e.to)
}

// DynCastI/F/D/P implement hl_dyn_cast{i,f,d,p}: coerce the scalar at
// sourceAddr (typed sourceType) to destType, returning the converted
// bit pattern. Numeric widening/narrowing and int<->float conversions
// are supported; incompatible pointer casts return 0 (null).
func DynCastI(sourceAddr uintptr, sourceType, destType *module.Type) int64 {
	v := readScalarAsInt64(sourceAddr, sourceType)
	switch TypeSize(destType) {
	case 1:
		return int64(int8(v))
	case 2:
		return int64(int16(v))
	case 4:
		return int64(int32(v))
	}
	return v
}

func DynCastF(sourceAddr uintptr, sourceType, destType *module.Type) float32 {
	return float32(readScalarAsFloat64(sourceAddr, sourceType))
}

func DynCastD(sourceAddr uintptr, sourceType, destType *module.Type) float64 {
	return readScalarAsFloat64(sourceAddr, sourceType)
}

// DynCastP implements hl_dyn_castp. Real dyn_cast walks the type
// hierarchy to check assignability; this stand-in runtime doesn't
// model inheritance, so any pointer-to-pointer cast is accepted and
// only a null source propagates as null.
func DynCastP(sourceAddr uintptr, sourceType, destType *module.Type) uintptr {
	if !sourceType.IsPointer() || !destType.IsPointer() {
		return 0
	}
	return *(*uintptr)(unsafe.Pointer(sourceAddr))
}

func readScalarAsInt64(addr uintptr, t *module.Type) int64 {
	p := unsafe.Pointer(addr)
	switch t.Kind {
	case module.HI8:
		return int64(*(*int8)(p))
	case module.HI16:
		return int64(*(*int16)(p))
	case module.HI32:
		return int64(*(*int32)(p))
	case module.HI64:
		return *(*int64)(p)
	case module.HF32:
		return int64(*(*float32)(p))
	case module.HF64:
		return int64(*(*float64)(p))
	case module.HBool:
		if *(*byte)(p) != 0 {
			return 1
		}
		return 0
	default:
		return 0
	}
}

func readScalarAsFloat64(addr uintptr, t *module.Type) float64 {
	p := unsafe.Pointer(addr)
	switch t.Kind {
	case module.HI8:
		return float64(*(*int8)(p))
	case module.HI16:
		return float64(*(*int16)(p))
	case module.HI32:
		return float64(*(*int32)(p))
	case module.HI64:
		return float64(*(*int64)(p))
	case module.HF32:
		return float64(*(*float32)(p))
	case module.HF64:
		return *(*float64)(p)
	default:
		return 0
	}
}
