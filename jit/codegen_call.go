package jit

import "gvmjit/module"

// --- shared call-argument plumbing, used by OCallN/OCallClosure/OCallMethod
// and by the fixed-runtime-helper calls in codegen_mem.go ---

// loadCallArgs classifies each argument vreg by AAPCS64 register class
// and loads the first eight of each class starting at intStart/
// floatStart; anything beyond that spills to the caller's outgoing
// stack area (spec.md §4.4's REDESIGN-FLAG resolution), returning how
// many bytes of SP adjustment the caller must undo after the call.
func (fc *funcCompiler) loadCallArgs(argVregs []int32, intStart, floatStart uint8) int {
	a := fc.alloc
	nextInt, nextFloat := intStart, floatStart
	var stackArgs []*vregInfo

	for _, vi := range argVregs {
		v := fc.vreg(vi)
		if v.isFloat() {
			if nextFloat < 8 {
				a.load(v, a.fpu[nextFloat])
				nextFloat++
			} else {
				stackArgs = append(stackArgs, v)
				nextFloat++
			}
		} else {
			if nextInt < 8 {
				a.load(v, a.cpu[nextInt])
				nextInt++
			} else {
				stackArgs = append(stackArgs, v)
				nextInt++
			}
		}
	}
	if len(stackArgs) == 0 {
		return 0
	}

	pregs := make([]*pregInfo, len(stackArgs))
	for i, v := range stackArgs {
		pregs[i] = a.fetch(v, true)
	}
	stackBytes := roundUp16(len(stackArgs) * 8)
	emitAddSubImm(fc.cb, true, OpSUB, RegSP, RegSP, uint32(stackBytes), false)
	for i, p := range pregs {
		emitLoadStoreScaled(fc.cb, stackArgs[i].size, false, p.reg, RegSP, i*8)
	}
	return stackBytes
}

// beginHelperCall/setIntArg/setIntArgReg/invokeHelper are the fixed-
// address call primitives: spill caller-saved state, place arguments,
// BLR to an absolute address materialized into x17, restore the
// "not calling" allocator state. They back the runtime-helper bridge
// in codegen_mem.go; OCallN's native-findex path in emitCallByFindex
// emits the same x17+BLR shape inline rather than calling them.
func (fc *funcCompiler) beginHelperCall() { fc.alloc.startCall() }

func (fc *funcCompiler) setIntArg(i uint8, value uint64) {
	materializeConst64(fc.cb, fc.alloc.cpu[i].reg, value)
}

func (fc *funcCompiler) setIntArgReg(i uint8, r Reg) {
	emitRegMove(fc.cb, fc.alloc.cpu[i].reg, r, false)
}

// setIntArgFromBits places v's raw value bits into integer call-arg
// register i by routing through v's stack slot, rather than a
// cross-register-file move: the dyn_set bridge treats its argument as
// an opaque bit pattern regardless of whether v is an int, float or
// pointer vreg, so reinterpreting the spilled bytes as an integer load
// is sufficient and avoids a dedicated GPR<->FPR transfer instruction.
func (fc *funcCompiler) setIntArgFromBits(i uint8, v *vregInfo) {
	p := fc.alloc.fetch(v, true)
	fc.alloc.scratch(p, false)
	emitLoadStoreScaled(fc.cb, v.size, true, fc.alloc.cpu[i].reg, RegSP, v.offset)
}

func (fc *funcCompiler) invokeHelper(addr uintptr) {
	materializeConst64(fc.cb, RegIP1, uint64(addr))
	emitBranchReg(fc.cb, OpBLR, RegIP1)
	fc.alloc.endCall()
}

// bindCallResult binds X0/V0 (AAPCS64's return-value registers) to dst
// and spills immediately, unless the callee is void.
func (fc *funcCompiler) bindCallResult(dst *vregInfo) {
	if dst == nil || dst.typ.Kind == module.HVoid {
		return
	}
	a := fc.alloc
	var p *pregInfo
	if dst.isFloat() {
		p = a.fpu[0]
	} else {
		p = a.cpu[0]
	}
	a.bind(dst, p)
	a.scratch(p, false)
}

// emitCallByFindex realizes OCallN's dispatch: a native function calls
// through its known absolute address; a self-recursive call branches
// back to this function's own (already-known) start; a call to an
// earlier-compiled bytecode function branches directly; anything else
// is a forward reference, deferred to Context.Finalize's relocation
// pass (spec.md §4.5/§9).
func (fc *funcCompiler) emitCallByFindex(findex int, argVregs []int32, dst *vregInfo) {
	fc.alloc.startCall()
	stackBytes := fc.loadCallArgs(argVregs, 0, 0)

	if nf, ok := fc.mod.NativeByFindex(findex); ok {
		materializeConst64(fc.cb, RegIP1, uint64(nf.Addr))
		emitBranchReg(fc.cb, OpBLR, RegIP1)
	} else if findex == fc.fn.Findex {
		site := fc.cb.Len()
		emitBL(fc.cb, int32((fc.funcStart-site)/4))
	} else if target, ok := fc.ctx.funcOffsets[findex]; ok {
		site := fc.cb.Len()
		emitBL(fc.cb, int32((target-site)/4))
	} else {
		site := fc.cb.Len()
		emitBL(fc.cb, 0)
		fc.deferredCalls = append(fc.deferredCalls, deferredCall{site: site, targetFindex: findex})
	}

	fc.alloc.endCall()
	if stackBytes > 0 {
		emitAddSubImm(fc.cb, true, OpADD, RegSP, RegSP, uint32(stackBytes), false)
	}
	fc.bindCallResult(dst)
}

func (fc *funcCompiler) genCall(op module.Opcode) {
	fc.emitCallByFindex(int(op.P2), op.Extra, fc.vreg(op.P1))
}

// Closure value layout (this core's own convention, since module.Type
// carries no closure-specific shape): [0]=type header, [8]=function
// address, [16]=hasValue flag, [24]=bound value/context.
const (
	closureFuncOffset     = 8
	closureHasValueOffset = 16
	closureValueOffset    = 24
)

// genCallClosure implements the dual-arm closure call of spec.md §4.2:
// one arm for a closure with a bound value (the value is prepended as
// an implicit first argument), one for a bare function pointer: both
// arms bracketed by saveRegs/restoreRegs so the allocator's view of
// the world is identical however control reached the merge point.
func (fc *funcCompiler) genCallClosure(op module.Opcode) {
	a := fc.alloc
	closureV := fc.vreg(op.P2)
	dst := fc.vreg(op.P1)

	cp := a.fetch(closureV, true)
	hv := RegIP0
	emitLoadStoreScaled(fc.cb, 8, true, hv, cp.reg, closureHasValueOffset)
	emitAddSubImm(fc.cb, true, OpSUBS, RegZR, hv, 0, false)
	toPlainArm := fc.cb.Len()
	emitCondBranch(fc.cb, CondEQ, 0)

	saved := a.saveRegs()

	// Bound-value arm.
	cp2 := a.fetch(closureV, true)
	ctxReg := RegIP0
	emitLoadStoreScaled(fc.cb, 8, true, ctxReg, cp2.reg, closureValueOffset)
	a.startCall()
	emitRegMove(fc.cb, a.cpu[0].reg, ctxReg, false)
	stackBytes := fc.loadCallArgs(op.Extra, 1, 0)
	cp3 := a.fetch(closureV, true)
	funcReg := RegIP1
	emitLoadStoreScaled(fc.cb, 8, true, funcReg, cp3.reg, closureFuncOffset)
	emitBranchReg(fc.cb, OpBLR, funcReg)
	a.endCall()
	if stackBytes > 0 {
		emitAddSubImm(fc.cb, true, OpADD, RegSP, RegSP, uint32(stackBytes), false)
	}
	fc.bindCallResult(dst)

	toMerge := fc.cb.Len()
	emitB(fc.cb, 0)

	plainArmStart := fc.cb.Len()
	fc.patchCondBranch(toPlainArm, plainArmStart)

	a.restoreRegs(saved)

	// Plain-function arm.
	cp4 := a.fetch(closureV, true)
	a.startCall()
	stackBytes2 := fc.loadCallArgs(op.Extra, 0, 0)
	funcReg2 := RegIP1
	emitLoadStoreScaled(fc.cb, 8, true, funcReg2, cp4.reg, closureFuncOffset)
	emitBranchReg(fc.cb, OpBLR, funcReg2)
	a.endCall()
	if stackBytes2 > 0 {
		emitAddSubImm(fc.cb, true, OpADD, RegSP, RegSP, uint32(stackBytes2), false)
	}
	fc.bindCallResult(dst)

	mergeStart := fc.cb.Len()
	fc.patchUncondBranch(toMerge, mergeStart)

	a.restoreRegs(saved)
}

func (fc *funcCompiler) patchCondBranch(site, target int) {
	rel := int32((target - site) / 4)
	fc.cb.PatchWord(site, (uint32(rel)&0x7FFFF)<<5)
}

func (fc *funcCompiler) patchUncondBranch(site, target int) {
	rel := int32((target - site) / 4)
	fc.cb.PatchWord(site, uint32(rel)&0x3FFFFFF)
}

// genCallMethod implements virtual dispatch: the receiver's type
// header doubles as a method table base in this core's convention (no
// separate vtable structure is modeled in package module), so the
// target address is [[receiver] + 8 + slot*8].
func (fc *funcCompiler) genCallMethod(op module.Opcode) {
	a := fc.alloc
	recv := fc.vreg(op.P2)
	dst := fc.vreg(op.P1)

	rp := a.fetch(recv, true)
	typeReg := RegIP0
	emitLoadStoreScaled(fc.cb, 8, true, typeReg, rp.reg, 0)
	funcReg := RegIP1
	emitLoadStoreScaled(fc.cb, 8, true, funcReg, typeReg, 8+int(op.P3)*8)

	a.startCall()
	emitRegMove(fc.cb, a.cpu[0].reg, rp.reg, false)
	stackBytes := fc.loadCallArgs(op.Extra, 1, 0)
	emitBranchReg(fc.cb, OpBLR, funcReg)
	a.endCall()
	if stackBytes > 0 {
		emitAddSubImm(fc.cb, true, OpADD, RegSP, RegSP, uint32(stackBytes), false)
	}
	fc.bindCallResult(dst)
}

// genRet moves the return value (if any) into x0/v0 ahead of the
// standard epilogue.
func (fc *funcCompiler) genRet(op module.Opcode) {
	v := fc.vreg(op.P1)
	if v.typ.Kind != module.HVoid {
		p := fc.alloc.fetch(v, true)
		if v.isFloat() {
			emitRegMove(fc.cb, V(0), p.reg, true)
		} else {
			emitRegMove(fc.cb, X(0), p.reg, false)
		}
	}
	emitEpilogue(fc.cb, fc.layout.frameSize)
}
