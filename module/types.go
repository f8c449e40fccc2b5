// Package module holds the VM-facing data model this JIT backend
// compiles against: types, functions, opcodes and the module they
// belong to. It mirrors the "consumed" half of the data model — the
// backend reads these structures, it doesn't construct them from a
// wire format (that loader is an external collaborator).
package module

import "fmt"

// Kind is the closed type-kind enumeration the code generator
// switches on to pick register class, size and GC-pointer-ness.
type Kind uint8

const (
	HI8 Kind = iota
	HI16
	HI32
	HI64
	HF32
	HF64
	HBool
	HBytes  // raw byte pointer, not GC-tracked
	HRef    // pointer to a value of some other type (ORef/OUnref)
	HObj    // object instance, GC-tracked
	HStruct // value-embedded object, GC-tracked fields
	HVirtual
	HEnum
	HDyn // boxed dynamic value
	HArray
	HClosure
	HFun // function type, used only as FuncType payload
	HNull
	HVoid
)

func (k Kind) String() string {
	switch k {
	case HI8:
		return "i8"
	case HI16:
		return "i16"
	case HI32:
		return "i32"
	case HI64:
		return "i64"
	case HF32:
		return "f32"
	case HF64:
		return "f64"
	case HBool:
		return "bool"
	case HBytes:
		return "bytes"
	case HRef:
		return "ref"
	case HObj:
		return "obj"
	case HStruct:
		return "struct"
	case HVirtual:
		return "virtual"
	case HEnum:
		return "enum"
	case HDyn:
		return "dyn"
	case HArray:
		return "array"
	case HClosure:
		return "closure"
	case HFun:
		return "fun"
	case HNull:
		return "null"
	case HVoid:
		return "void"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// IsFloat reports whether values of this kind live in the FPU
// register file instead of the general-purpose one.
func (k Kind) IsFloat() bool {
	return k == HF32 || k == HF64
}

// IsPointer reports whether the value is GC-managed and must be
// reported to the collector — a byte-pointer (HBytes) is not.
func (k Kind) IsPointer() bool {
	switch k {
	case HObj, HStruct, HVirtual, HEnum, HDyn, HArray, HClosure, HRef:
		return true
	default:
		return false
	}
}

// Size is the in-register / in-memory size in bytes. Pointer-shaped
// kinds are always 8 bytes (this backend targets LP64 AAPCS64).
func (k Kind) Size() int {
	switch k {
	case HI8, HBool:
		return 1
	case HI16:
		return 2
	case HI32, HF32:
		return 4
	case HVoid:
		return 0
	default:
		return 8
	}
}

// Align is the natural alignment of the kind, used when laying out
// vreg stack slots in the frame.
func (k Kind) Align() int {
	a := k.Size()
	if a == 0 {
		return 1
	}
	return a
}

// FieldOffset describes one HOBJ/HSTRUCT field: its byte offset from
// the object base and its type, as the runtime's obj-field table would
// report it (see ObjFieldFetch in package runtime).
type FieldOffset struct {
	Name   string
	Offset int
	Type   *Type
}

// Type is one entry of the module's type table.
type Type struct {
	Kind Kind

	// Populated for HObj/HStruct/HVirtual.
	Fields []FieldOffset

	// Populated for HFun: argument types and the return type.
	Args []*Type
	Ret  *Type

	// Populated for HEnum: per-constructor field type lists, indexed
	// by constructor tag.
	EnumConstructors [][]*Type

	// Populated for HArray/HRef: the element/pointee type, when known
	// statically; nil otherwise, in which case array element access
	// uses an 8-byte element size.
	Elem *Type
}

func (t *Type) String() string {
	if t == nil {
		return "<nil type>"
	}
	return t.Kind.String()
}

// IsFloat, IsPointer, Size and Align forward to the Kind accessors of
// the same name, so callers holding a *Type (the common case: vreg and
// argument types) don't need to unwrap .Kind themselves.
func (t *Type) IsFloat() bool   { return t.Kind.IsFloat() }
func (t *Type) IsPointer() bool { return t.Kind.IsPointer() }
func (t *Type) Size() int       { return t.Kind.Size() }
func (t *Type) Align() int      { return t.Kind.Align() }
