package module

// Tag is the closed set of VM opcodes this backend's code generator
// dispatches on. Operand semantics (p1/p2/p3, Extra) are tag-dependent
// and documented beside each constant below.
type Tag uint8

const (
	ONop Tag = iota

	// Constants.
	OInt    // p1=dst vreg, p2=index into Module.Ints
	OFloat  // p1=dst vreg, p2=index into Module.Floats
	OBool   // p1=dst vreg, p2=0 or 1
	OBytes  // p1=dst vreg, p2=byte offset into Module.Bytes (byte-pool pointer)
	OString // p1=dst vreg, p2=index into Module.Strings
	ONull   // p1=dst vreg

	// Arithmetic / logic, p1=dst, p2=lhs, p3=rhs unless noted.
	OAdd
	OSub
	OMul
	OSDiv
	OUDiv
	OSMod
	OUMod
	OShl
	OSShr
	OUShr
	OAnd
	OOr
	OXor
	ONeg   // p1=dst, p2=src
	ONot   // p1=dst, p2=src
	OIncr  // p1=dst (in place, +1)
	ODecr  // p1=dst (in place, -1)
	OFAdd
	OFSub
	OFMul
	OFDiv

	// Register moves.
	OMov // p1=dst, p2=src

	// Control flow. Conditional jumps: p1=lhs, p2=rhs, p3=relative
	// opcode delta. JAlways: p1=relative opcode delta. JNull/JNotNull:
	// p1=vreg to test, p2=relative opcode delta.
	OJSLt
	OJSLte
	OJSGt
	OJSGte
	OJSEq
	OJSNeq
	OJULt
	OJULte
	OJUGt
	OJUGte
	OJNull
	OJNotNull
	OJAlways

	// Calls. p1=dst (HVoid means no bind), p2=findex, Extra=arg vregs.
	OCall0
	OCall1
	OCall2
	OCall3
	OCall4
	OCallN
	// OCallClosure: p1=dst, p2=closure vreg, Extra=arg vregs.
	OCallClosure
	// OCallMethod: p1=dst, p2=receiver vreg (HObj), p3=vtable slot, Extra=arg vregs.
	OCallMethod

	ORet // p1=src vreg, or HVoid-typed vreg for void returns

	// Globals. p1=dst/src vreg, p2=global index.
	OGetGlobal
	OSetGlobal

	// Object/struct field access. p1=dst/src, p2=object vreg, p3=field index.
	OField
	OSetField

	// Array element access. p1=dst/src, p2=array vreg, p3=index vreg.
	OGetArray
	OSetArray

	// Raw memory access through a byte-pointer vreg, p3=byte offset.
	OGetI8
	OGetI16
	OGetMem

	// Allocation. p1=dst, p2=type index (ONew) or (type index, ctor) for OEnumAlloc.
	ONew
	OEnumAlloc

	// References.
	ORef   // p1=dst (HRef), p2=referenced vreg
	OUnref // p1=dst, p2=ref vreg

	// Dynamic casts / boxing.
	OSafeCast // p1=dst, p2=src, p3=dest type index
	OToDyn    // p1=dst (HDyn), p2=src

	// Type introspection.
	OGetType // p1=dst (type pointer), p2=src (HDyn/HVirtual)
	OGetTID  // p1=dst (i32 hashed type id), p2=src

	// Enum access. p1=dst/src, p2=enum value vreg, p3=field index
	// within the value's constructor-relative layout.
	OEnumIndex
	OEnumField
	OSetEnumField

	// OMakeEnum: p1=dst, p2=type index, p3=constructor tag, Extra=arg vregs.
	OMakeEnum

	// Conversions.
	OToSFloat
	OToUFloat
	OToInt

	// Null check: p1=vreg to test, traps via hl_null_access if null.
	ONullCheck

	// Stubs documented as open in spec.md §9 — emit BRK at the site.
	OThrow
	OSwitch
	OTrap
	OEndTrap

	numTags
)

// Opcode is one instruction of a function body.
type Opcode struct {
	Tag   Tag
	P1    int32
	P2    int32
	P3    int32
	Extra []int32
}

// IsOpen reports whether this tag has no code-generator support and
// must be realized as a fatal BRK trap (spec.md §9).
func (t Tag) IsOpen() bool {
	switch t {
	case OThrow, OSwitch, OTrap, OEndTrap:
		return true
	default:
		return false
	}
}
