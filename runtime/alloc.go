// Package runtime stands in for the VM runtime the JIT core calls
// into: allocation, dynamic dispatch, and the type-system helpers
// named in spec.md §6. It is deliberately small — just enough of a
// real implementation that the end-to-end scenarios in spec.md §8 are
// runnable against actual machine code, not merely specified.
//
// This is not a garbage collector. Allocations are kept alive for the
// lifetime of the process by pinning them in a package-level registry;
// Go's collector never moves heap memory, so the uintptr handed to
// JIT'd code stays valid as long as the registry holds the backing
// slice.
package runtime

import (
	"sync"
	"unsafe"

	"gvmjit/module"
)

// HeaderSize is the fixed size, in bytes, of the type-pointer header
// every GC-managed allocation carries at offset 0. module.FieldOffset
// values are absolute offsets from the object base and therefore
// already account for it.
const HeaderSize = 8

var (
	pinMu sync.Mutex
	pins  = map[uintptr][]byte{}
)

func pin(buf []byte) uintptr {
	addr := uintptr(unsafe.Pointer(&buf[0]))
	pinMu.Lock()
	pins[addr] = buf
	pinMu.Unlock()
	return addr
}

func objSize(t *module.Type) int {
	size := HeaderSize
	for _, f := range t.Fields {
		end := f.Offset + f.Type.Size()
		if end > size {
			size = end
		}
	}
	return size
}

func typeHandle(t *module.Type) uintptr {
	// Type pointers are opaque to emitted code: it only ever copies
	// them around or compares them. A stable per-Type address is all
	// that's needed, so we key off the Type's own address.
	return uintptr(unsafe.Pointer(t))
}

func writeHeader(buf []byte, t *module.Type) {
	*(*uintptr)(unsafe.Pointer(&buf[0])) = typeHandle(t)
}

// AllocObj implements hl_alloc_obj: allocate a zeroed instance of an
// HObj/HStruct type, with its header already pointing at t.
func AllocObj(t *module.Type) uintptr {
	buf := make([]byte, objSize(t))
	writeHeader(buf, t)
	return pin(buf)
}

// AllocDynObj implements hl_alloc_dynobj: a dynamic object with no
// statically known field set, represented as a zeroed header word plus
// a fixed-size inline slot area of eight slots; nothing grows it.
func AllocDynObj() uintptr {
	const dynObjInitialSlots = 8
	buf := make([]byte, HeaderSize+dynObjInitialSlots*8)
	return pin(buf)
}

// AllocVirtual implements hl_alloc_virtual.
func AllocVirtual(t *module.Type) uintptr {
	return AllocObj(t)
}

// AllocEnum implements hl_alloc_enum: allocate a value for
// constructor ctor of enum type t, header plus a tag word plus the
// constructor's field slots.
func AllocEnum(t *module.Type, ctor int) uintptr {
	fields := t.EnumConstructors[ctor]
	size := HeaderSize + 8 // header + tag word
	off := size
	for _, f := range fields {
		off += pad(off, f)
		off += f.Size()
	}
	buf := make([]byte, off)
	writeHeader(buf, t)
	*(*int64)(unsafe.Pointer(&buf[HeaderSize])) = int64(ctor)
	return pin(buf)
}

// AllocDynamic implements hl_alloc_dynamic: box a scalar of type t
// into a GC value with a payload slot at offset HeaderSize.
func AllocDynamic(t *module.Type) uintptr {
	buf := make([]byte, HeaderSize+8)
	writeHeader(buf, t)
	return pin(buf)
}

// AllocDynBool implements hl_alloc_dynbool: the two canonical boxed
// booleans, allocated once and reused.
var (
	dynBoolOnce          sync.Once
	dynTrueHandle        uintptr
	dynFalseHandle       uintptr
	dynBoolType          = &module.Type{Kind: module.HBool}
)

func AllocDynBool(v bool) uintptr {
	dynBoolOnce.Do(func() {
		dynTrueHandle = AllocDynamic(dynBoolType)
		dynFalseHandle = AllocDynamic(dynBoolType)
		pinMu.Lock()
		*(*int64)(unsafe.Pointer(uintptr(unsafe.Pointer(&pins[dynTrueHandle][0])) + HeaderSize)) = 1
		pinMu.Unlock()
	})
	if v {
		return dynTrueHandle
	}
	return dynFalseHandle
}

func pad(offset int, t *module.Type) int {
	return PadSize(offset, t)
}

// PadSize implements hl_pad_size: the number of alignment bytes
// needed before a value of type t starting at offset.
func PadSize(offset int, t *module.Type) int {
	a := t.Align()
	if a <= 1 {
		return 0
	}
	rem := offset % a
	if rem == 0 {
		return 0
	}
	return a - rem
}

// TypeSize implements hl_type_size.
func TypeSize(t *module.Type) int { return t.Size() }

// IsPtr implements hl_is_ptr.
func IsPtr(t *module.Type) bool { return t.IsPointer() }

// GetObjRT implements hl_get_obj_rt: resolves the live field table for
// an object type. In this stand-in the table is simply t.Fields.
func GetObjRT(t *module.Type) []module.FieldOffset { return t.Fields }

// ObjFieldFetch implements hl_obj_field_fetch: the field-offset table
// entry for field index idx of object type t.
func ObjFieldFetch(t *module.Type, idx int) module.FieldOffset {
	return t.Fields[idx]
}
