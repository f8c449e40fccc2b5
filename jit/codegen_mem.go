package jit

import (
	"unsafe"

	"gvmjit/module"
	"gvmjit/runtime"
)

const arrayDataOffset = 16 // header(8) + length(8), ahead of element 0

// genGlobal implements OGetGlobal/OSetGlobal against the Context-owned
// globals region (see Context.Init): materialize its base address,
// then a plain scaled load/store at the global's precomputed offset.
func (fc *funcCompiler) genGlobal(op module.Opcode) {
	v := fc.vreg(op.P1)
	offset := fc.ctx.globalOffsets[op.P2]

	var base uintptr
	if len(fc.ctx.globalsBuf) > 0 {
		base = uintptr(unsafe.Pointer(&fc.ctx.globalsBuf[0]))
	}
	addrReg := RegIP0
	materializeConst64(fc.cb, addrReg, uint64(base))

	if op.Tag == module.OGetGlobal {
		p := fc.alloc.fetch(v, false)
		emitLoadStoreScaled(fc.cb, v.size, true, p.reg, addrReg, offset)
		fc.alloc.scratch(p, false)
	} else {
		p := fc.alloc.fetch(v, true)
		emitLoadStoreScaled(fc.cb, v.size, false, p.reg, addrReg, offset)
	}
}

// genField implements OField/OSetField. HObj/HStruct address the field
// offset known at compile time from the object vreg's static type, no
// runtime dispatch needed. HVirtual goes through genVirtualField
// instead, per spec.md §4.3.
func (fc *funcCompiler) genField(op module.Opcode) {
	obj := fc.vreg(op.P2)
	if obj.typ != nil && obj.typ.Kind == module.HVirtual {
		fc.genVirtualField(op, obj)
		return
	}

	offset := 0
	if obj.typ != nil && int(op.P3) < len(obj.typ.Fields) {
		offset = obj.typ.Fields[op.P3].Offset
	}
	objp := fc.alloc.fetch(obj, true)

	if op.Tag == module.OField {
		dst := fc.vreg(op.P1)
		p := fc.alloc.fetch(dst, false)
		emitLoadStoreScaled(fc.cb, dst.size, true, p.reg, objp.reg, offset)
		fc.alloc.scratch(p, false)
	} else {
		src := fc.vreg(op.P1)
		p := fc.alloc.fetch(src, true)
		emitLoadStoreScaled(fc.cb, src.size, false, p.reg, objp.reg, offset)
	}
}

// virtualFieldSlotOffset is the byte offset of field idx's precomputed
// field-pointer slot within a virtual value: one 8-byte slot per
// declared field, directly after the type header. A null slot means
// the concrete object behind this virtual doesn't back the field with
// a direct storage pointer, and the access must go through the
// hl_dyn_get/set bridge instead (spec.md §4.3's HVirtual path).
func virtualFieldSlotOffset(idx int) int { return 8 + idx*8 }

// genVirtualField implements OField/OSetField on HVirtual: load the
// field's precomputed pointer slot, branch on whether it's null, and
// either dereference it directly or fall back to the hashed-name
// hl_dyn_get{i,f,d,p}/hl_dyn_set{i,f,d,p} helpers. Both arms are
// bracketed by saveRegs/restoreRegs, the same dual-arm discipline
// genCallClosure uses, so the allocator's bookkeeping is identical
// regardless of which arm actually ran.
func (fc *funcCompiler) genVirtualField(op module.Opcode, obj *vregInfo) {
	var field module.FieldOffset
	if int(op.P3) < len(obj.typ.Fields) {
		field = obj.typ.Fields[op.P3]
	}
	hash := runtime.HashUTF8(field.Name)
	fieldSize := 8
	if field.Type != nil {
		fieldSize = field.Type.Size()
	}

	objp := fc.alloc.fetch(obj, true)
	slotReg := RegIP0
	emitLoadStoreScaled(fc.cb, 8, true, slotReg, objp.reg, virtualFieldSlotOffset(int(op.P3)))
	emitAddSubImm(fc.cb, true, OpSUBS, RegZR, slotReg, 0, false)
	toDynSite := fc.cb.Len()
	emitCondBranch(fc.cb, CondEQ, 0)

	saved := fc.alloc.saveRegs()

	if op.Tag == module.OField {
		dst := fc.vreg(op.P1)
		p := fc.alloc.fetch(dst, false)
		emitLoadStoreScaled(fc.cb, fieldSize, true, p.reg, slotReg, 0)
		fc.alloc.scratch(p, false)
	} else {
		src := fc.vreg(op.P1)
		sp := fc.alloc.fetch(src, true)
		emitLoadStoreScaled(fc.cb, fieldSize, false, sp.reg, slotReg, 0)
	}

	toMergeSite := fc.cb.Len()
	emitB(fc.cb, 0)

	dynArmStart := fc.cb.Len()
	fc.patchCondBranch(toDynSite, dynArmStart)
	fc.alloc.restoreRegs(saved)

	fc.genVirtualFieldDynFallback(op, objp, hash, field.Type)

	mergeStart := fc.cb.Len()
	fc.patchUncondBranch(toMergeSite, mergeStart)
	fc.alloc.restoreRegs(saved)
}

// genVirtualFieldDynFallback wires the hl_dyn_get/set bridge for the
// null-slot arm of genVirtualField. DynGetF/D/P and DynSetF/D/P take
// no destType argument (only DynGetI/DynSetI narrow by size), so the
// argument count/position differs per variant and is matched exactly
// against runtime/dyncast.go's real signatures rather than padded to a
// uniform shape.
func (fc *funcCompiler) genVirtualFieldDynFallback(op module.Opcode, objp *pregInfo, hash uint32, fieldType *module.Type) {
	if op.Tag == module.OField {
		dst := fc.vreg(op.P1)
		fc.beginHelperCall()
		fc.setIntArgReg(0, objp.reg)
		fc.setIntArg(1, uint64(hash))
		switch {
		case fieldType != nil && fieldType.Kind.IsFloat() && fieldType.Size() == 4:
			fc.invokeHelper(addrDynGetF)
		case fieldType != nil && fieldType.Kind.IsFloat():
			fc.invokeHelper(addrDynGetD)
		case fieldType != nil && fieldType.IsPointer():
			fc.invokeHelper(addrDynGetP)
		default:
			fc.setIntArg(2, uint64(uintptr(unsafe.Pointer(fieldType))))
			fc.invokeHelper(addrDynGetI)
		}
		fc.bindCallResult(dst)
		return
	}

	src := fc.vreg(op.P1)
	fc.beginHelperCall()
	fc.setIntArgReg(0, objp.reg)
	fc.setIntArg(1, uint64(hash))
	switch {
	case fieldType != nil && fieldType.Kind.IsFloat() && fieldType.Size() == 4:
		fc.setIntArgFromBits(2, src)
		fc.invokeHelper(addrDynSetF)
	case fieldType != nil && fieldType.Kind.IsFloat():
		fc.setIntArgFromBits(2, src)
		fc.invokeHelper(addrDynSetD)
	case fieldType != nil && fieldType.IsPointer():
		fc.setIntArgFromBits(2, src)
		fc.invokeHelper(addrDynSetP)
	default:
		fc.setIntArg(2, uint64(uintptr(unsafe.Pointer(fieldType))))
		fc.setIntArgFromBits(3, src)
		fc.invokeHelper(addrDynSetI)
	}
}

// genArray implements OGetArray/OSetArray: the register-offset
// load/store forms only support base+index*scale, not a third
// constant term, so the data-area base (past the array header) is
// materialized into a scratch register first.
func (fc *funcCompiler) genArray(op module.Opcode) {
	arr := fc.vreg(op.P2)
	idx := fc.vreg(op.P3)
	ap := fc.alloc.fetch(arr, true)
	ip := fc.alloc.fetch(idx, true)

	elemSize := 8
	if arr.typ != nil && arr.typ.Elem != nil {
		elemSize = arr.typ.Elem.Size()
	}

	baseReg := RegIP0
	emitAddSubImm(fc.cb, true, OpADD, baseReg, ap.reg, arrayDataOffset, false)

	if op.Tag == module.OGetArray {
		dst := fc.vreg(op.P1)
		p := fc.alloc.fetch(dst, false)
		emitLoadStoreRegOffset(fc.cb, elemSize, true, p.reg, baseReg, ip.reg, true)
		fc.alloc.scratch(p, false)
	} else {
		src := fc.vreg(op.P1)
		p := fc.alloc.fetch(src, true)
		emitLoadStoreRegOffset(fc.cb, elemSize, false, p.reg, baseReg, ip.reg, true)
	}
}

// genRawMem implements OGetI8/OGetI16/OGetMem: an unscaled load
// through a raw byte-pointer vreg at an immediate byte offset.
func (fc *funcCompiler) genRawMem(op module.Opcode) {
	ptr := fc.vreg(op.P2)
	pp := fc.alloc.fetch(ptr, true)

	dst := fc.vreg(op.P1)
	size := dst.size
	switch op.Tag {
	case module.OGetI8:
		size = 1
	case module.OGetI16:
		size = 2
	}

	p := fc.alloc.fetch(dst, false)
	emitLoadStoreUnscaled(fc.cb, size, true, p.reg, pp.reg, int(op.P3))
	fc.alloc.scratch(p, false)
}

// allocAddrFor picks ONew's allocation helper by destination kind, per
// spec.md §4.3: hl_alloc_virtual for HVirtual, hl_alloc_dynobj for the
// boxed-anonymous-object shape this data model represents as HDyn, and
// hl_alloc_obj otherwise (HObj/HStruct and any kind without a more
// specific allocator).
func allocAddrFor(t *module.Type) uintptr {
	if t == nil {
		return addrAllocObj
	}
	switch t.Kind {
	case module.HVirtual:
		return addrAllocVirtual
	case module.HDyn:
		return addrAllocDynObj
	default:
		return addrAllocObj
	}
}

// genAlloc implements ONew/OEnumAlloc/OMakeEnum via the runtime
// allocation helpers (package runtime), called the same way a native
// findex would be: spill caller-saved state, place arguments, BLR.
func (fc *funcCompiler) genAlloc(op module.Opcode) {
	dst := fc.vreg(op.P1)

	switch op.Tag {
	case module.ONew:
		t := fc.mod.Types[op.P2]
		fc.beginHelperCall()
		fc.setIntArg(0, uint64(uintptr(unsafe.Pointer(t))))
		fc.invokeHelper(allocAddrFor(t))
		fc.bindCallResult(dst)

	case module.OEnumAlloc:
		t := fc.mod.Types[op.P2]
		fc.beginHelperCall()
		fc.setIntArg(0, uint64(uintptr(unsafe.Pointer(t))))
		fc.setIntArg(1, uint64(op.P3))
		fc.invokeHelper(addrAllocEnum)
		fc.bindCallResult(dst)

	case module.OMakeEnum:
		t := fc.mod.Types[op.P2]
		ctor := int(op.P3)
		fc.beginHelperCall()
		fc.setIntArg(0, uint64(uintptr(unsafe.Pointer(t))))
		fc.setIntArg(1, uint64(ctor))
		fc.invokeHelper(addrAllocEnum)
		fc.bindCallResult(dst)
		fc.storeEnumArgs(dst, t, ctor, op.Extra)
	}
}

// storeEnumArgs writes each constructor argument into the
// newly-allocated enum value's payload slots, following
// AllocEnum's own header(8)+tag(8) layout.
func (fc *funcCompiler) storeEnumArgs(dst *vregInfo, t *module.Type, ctor int, args []int32) {
	if ctor >= len(t.EnumConstructors) {
		return
	}
	fields := t.EnumConstructors[ctor]
	dp := fc.alloc.fetch(dst, true)
	offset := 16
	for i, vi := range args {
		if i >= len(fields) {
			break
		}
		ft := fields[i]
		if a := ft.Align(); a > 1 && offset%a != 0 {
			offset += a - offset%a
		}
		v := fc.vreg(vi)
		p := fc.alloc.fetch(v, true)
		emitLoadStoreUnscaled(fc.cb, ft.Size(), false, p.reg, dp.reg, offset)
		offset += ft.Size()
	}
}

// genRef implements ORef as spec.md §4.3 literally specifies it:
// "ADD xDst, sp, #stackPos" — the referenced vreg's own stack slot
// address, after first spilling it so the slot is authoritative.
func (fc *funcCompiler) genRef(op module.Opcode) {
	dst := fc.vreg(op.P1)
	ref := fc.vreg(op.P2)
	if ref.current != nil {
		fc.alloc.scratch(ref.current, false)
	}
	p := fc.alloc.fetch(dst, false)
	emitAddSubImm(fc.cb, true, OpADD, p.reg, RegSP, uint32(ref.offset), false)
	fc.alloc.scratch(p, false)
}

// genUnref implements OUnref: a plain dereference of the ref pointer.
func (fc *funcCompiler) genUnref(op module.Opcode) {
	dst := fc.vreg(op.P1)
	ref := fc.vreg(op.P2)
	rp := fc.alloc.fetch(ref, true)
	p := fc.alloc.fetch(dst, false)
	emitLoadStoreScaled(fc.cb, dst.size, true, p.reg, rp.reg, 0)
	fc.alloc.scratch(p, false)
}

// genSafeCast implements OSafeCast over a boxed (HDyn) source value:
// the payload lives past the box's 8-byte type header, which is the
// "sourceAddr" DynCast{I,F,D,P} expect.
func (fc *funcCompiler) genSafeCast(op module.Opcode) {
	dst := fc.vreg(op.P1)
	src := fc.vreg(op.P2)
	destType := fc.mod.Types[op.P3]

	sp := fc.alloc.fetch(src, true)
	payloadReg := RegIP0
	emitAddSubImm(fc.cb, true, OpADD, payloadReg, sp.reg, 8, false)

	fc.beginHelperCall()
	fc.setIntArgReg(0, payloadReg)
	fc.setIntArg(1, uint64(uintptr(unsafe.Pointer(src.typ))))
	fc.setIntArg(2, uint64(uintptr(unsafe.Pointer(destType))))

	var addr uintptr
	switch {
	case destType.Kind.IsFloat() && destType.Size() == 4:
		addr = addrDynCastF
	case destType.Kind.IsFloat():
		addr = addrDynCastD
	case destType.IsPointer():
		addr = addrDynCastP
	default:
		addr = addrDynCastI
	}
	fc.invokeHelper(addr)
	fc.bindCallResult(dst)
}

// genToDyn implements OToDyn: box src's scalar value into a fresh
// HDyn allocation.
func (fc *funcCompiler) genToDyn(op module.Opcode) {
	dst := fc.vreg(op.P1)
	src := fc.vreg(op.P2)

	fc.beginHelperCall()
	fc.setIntArg(0, uint64(uintptr(unsafe.Pointer(src.typ))))
	fc.invokeHelper(addrAllocDynamic)
	fc.bindCallResult(dst)

	dp := fc.alloc.fetch(dst, true)
	sp := fc.alloc.fetch(src, true)
	emitLoadStoreScaled(fc.cb, src.size, false, sp.reg, dp.reg, 8)
}

// genGetTypeOrTID implements OGetType (load the header's type
// pointer) and OGetTID (a hashed type id). The hash only ever depends
// on the vreg's static type, so it's computed once at compile time and
// materialized as a plain constant — no runtime helper needed.
func (fc *funcCompiler) genGetTypeOrTID(op module.Opcode) {
	dst := fc.vreg(op.P1)
	src := fc.vreg(op.P2)

	if op.Tag == module.OGetType {
		sp := fc.alloc.fetch(src, true)
		p := fc.alloc.fetch(dst, false)
		emitLoadStoreScaled(fc.cb, 8, true, p.reg, sp.reg, 0)
		fc.alloc.scratch(p, false)
		return
	}

	var tid uint32
	if src.typ != nil {
		tid = runtime.HashUTF8(src.typ.String())
	}
	p := fc.alloc.fetch(dst, false)
	materializeConst32(fc.cb, p.reg, tid)
	fc.alloc.scratch(p, false)
}

// genEnumField implements OEnumIndex/OEnumField/OSetEnumField.
//
// module.Opcode carries no constructor tag alongside the field index,
// so OEnumField/OSetEnumField address fields as though the value were
// built from its type's zeroth constructor (enumFieldOffset); enums
// whose constructors disagree on layout need a richer opcode encoding
// this core's data model doesn't carry, and are out of scope here.
func (fc *funcCompiler) genEnumField(op module.Opcode) {
	enumV := fc.vreg(op.P2)
	ep := fc.alloc.fetch(enumV, true)

	if op.Tag == module.OEnumIndex {
		dst := fc.vreg(op.P1)
		p := fc.alloc.fetch(dst, false)
		emitLoadStoreScaled(fc.cb, 8, true, p.reg, ep.reg, 8)
		fc.alloc.scratch(p, false)
		return
	}

	offset, fieldType := fc.enumFieldOffset(enumV.typ, int(op.P3))

	if op.Tag == module.OEnumField {
		dst := fc.vreg(op.P1)
		size := 8
		if fieldType != nil {
			size = fieldType.Size()
		}
		p := fc.alloc.fetch(dst, false)
		emitLoadStoreUnscaled(fc.cb, size, true, p.reg, ep.reg, offset)
		fc.alloc.scratch(p, false)
	} else {
		src := fc.vreg(op.P1)
		p := fc.alloc.fetch(src, true)
		emitLoadStoreUnscaled(fc.cb, src.size, false, p.reg, ep.reg, offset)
	}
}

func (fc *funcCompiler) enumFieldOffset(t *module.Type, idx int) (int, *module.Type) {
	if t == nil || len(t.EnumConstructors) == 0 {
		return 16, nil
	}
	fields := t.EnumConstructors[0]
	offset := 16
	for i, f := range fields {
		if a := f.Align(); a > 1 && offset%a != 0 {
			offset += a - offset%a
		}
		if i == idx {
			return offset, f
		}
		offset += f.Size()
	}
	return offset, nil
}

// genConvert implements OToSFloat/OToUFloat/OToInt via the FP<->int
// conversion encoder family.
func (fc *funcCompiler) genConvert(op module.Opcode) {
	dst := fc.vreg(op.P1)
	src := fc.vreg(op.P2)
	sp := fc.alloc.fetch(src, true)
	p := fc.alloc.fetch(dst, false)

	switch op.Tag {
	case module.OToSFloat:
		emitFPIntConvert(fc.cb, src.size == 8, OpSCVTF, dst.size == 8, p.reg, sp.reg)
	case module.OToUFloat:
		emitFPIntConvert(fc.cb, src.size == 8, OpUCVTF, dst.size == 8, p.reg, sp.reg)
	case module.OToInt:
		emitFPIntConvert(fc.cb, dst.size == 8, OpFCVTZS, src.size == 8, p.reg, sp.reg)
	}
	fc.alloc.scratch(p, false)
}

// genNullCheck implements ONullCheck: compare to zero, and only call
// into the fatal NullAccess trap on the null path, keeping the
// non-null fast path branch-free apart from the compare itself.
func (fc *funcCompiler) genNullCheck(op module.Opcode) {
	v := fc.vreg(op.P1)
	p := fc.alloc.fetch(v, true)
	emitAddSubImm(fc.cb, true, OpSUBS, RegZR, p.reg, 0, false)

	skipSite := fc.cb.Len()
	emitCondBranch(fc.cb, CondNE, 0)
	fc.beginHelperCall()
	fc.invokeHelper(addrNullAccess)
	fc.patchCondBranch(skipSite, fc.cb.Len())
}
