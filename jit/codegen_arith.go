package jit

import (
	"unsafe"

	"gvmjit/module"
)

// genConst implements the constant-load opcode family: materialize the
// value into dst's preg (freshly allocated, never reloaded) and spill
// it to the stack slot immediately so both copies start consistent.
func (fc *funcCompiler) genConst(op module.Opcode) {
	dst := fc.vreg(op.P1)
	p := fc.alloc.fetch(dst, false)

	switch op.Tag {
	case module.OInt:
		v := fc.mod.Ints[op.P2]
		if dst.size == 8 {
			materializeConst64(fc.cb, p.reg, uint64(int64(v)))
		} else {
			materializeConst32(fc.cb, p.reg, uint32(v))
		}
	case module.OFloat:
		fc.loadFloatLiteral(p.reg, int(op.P2), dst.size == 8)
	case module.OBool:
		materializeConst32(fc.cb, p.reg, uint32(op.P2))
	case module.OString:
		materializeConst64(fc.cb, p.reg, uint64(fc.stringAddr(int(op.P2))))
	case module.OBytes:
		materializeConst64(fc.cb, p.reg, uint64(fc.bytesAddr(int(op.P2))))
	case module.ONull:
		materializeConst64(fc.cb, p.reg, 0)
	}

	fc.alloc.scratch(p, false)
}

// loadFloatLiteral addresses the per-module literal pool Context.Init
// laid down ahead of the first function's code: ADR the pool entry's
// address into a scratch GPR, then LDR the 8 bytes it holds (every
// pool entry is a float64), narrowing to single precision if dst is
// HF32.
func (fc *funcCompiler) loadFloatLiteral(rd Reg, idx int, dstIs64 bool) {
	addrReg := RegIP0
	litByte := fc.ctx.literalPoolOffset + idx*8
	adrSite := fc.cb.Len()
	emitADR(fc.cb, addrReg, int32(litByte-adrSite))
	emitLoadStoreScaled(fc.cb, 8, true, rd, addrReg, 0)
	if !dstIs64 {
		emitFPDataProc1(fc.cb, true, OpFCVTtoSingle, rd, rd)
	}
}

// stringAddr/bytesAddr hand back the address of already-resident Go
// constant-pool data. Go's collector never moves heap memory, so these
// addresses stay valid for the Context's lifetime without a pin.
func (fc *funcCompiler) stringAddr(idx int) uintptr {
	s := fc.mod.Strings[idx]
	if len(s) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(unsafe.StringData(s)))
}

func (fc *funcCompiler) bytesAddr(offset int) uintptr {
	if len(fc.mod.Bytes) == 0 || offset >= len(fc.mod.Bytes) {
		return 0
	}
	return uintptr(unsafe.Pointer(&fc.mod.Bytes[0])) + uintptr(offset)
}

// genArith implements every integer and float arithmetic/logic opcode
// named in spec.md §4.3. Two-operand ops fetch lhs/rhs live, then fetch
// dst without a reload (it's about to be overwritten wholesale) —
// fetch is safe to call with dst aliasing lhs, since a vreg already
// bound to a preg just returns that preg unchanged.
func (fc *funcCompiler) genArith(op module.Opcode) {
	a := fc.alloc

	switch op.Tag {
	case module.ONeg:
		dst, src := fc.vreg(op.P1), fc.vreg(op.P2)
		sp := a.fetch(src, true)
		dp := a.fetch(dst, false)
		emitAddSubShifted(fc.cb, dst.size == 8, OpSUB, ShiftLSL, dp.reg, RegZR, sp.reg, 0)
		a.scratch(dp, false)
		return
	case module.ONot:
		dst, src := fc.vreg(op.P1), fc.vreg(op.P2)
		sp := a.fetch(src, true)
		dp := a.fetch(dst, false)
		emitLogicalShifted(fc.cb, dst.size == 8, OpORR, true, ShiftLSL, dp.reg, RegZR, sp.reg, 0)
		a.scratch(dp, false)
		return
	case module.OIncr, module.ODecr:
		dst := fc.vreg(op.P1)
		dp := a.fetch(dst, true)
		addOp := OpADD
		if op.Tag == module.ODecr {
			addOp = OpSUB
		}
		emitAddSubImm(fc.cb, dst.size == 8, addOp, dp.reg, dp.reg, 1, false)
		a.scratch(dp, false)
		return
	}

	dst, lhs, rhs := fc.vreg(op.P1), fc.vreg(op.P2), fc.vreg(op.P3)
	lp := a.fetch(lhs, true)
	rp := a.fetch(rhs, true)
	is64 := lhs.size == 8

	if lhs.isFloat() {
		dp := a.fetch(dst, false)
		var fop FP2Op
		switch op.Tag {
		case module.OFAdd:
			fop = OpFADD
		case module.OFSub:
			fop = OpFSUB
		case module.OFMul:
			fop = OpFMUL
		case module.OFDiv:
			fop = OpFDIV
		}
		emitFPDataProc2(fc.cb, is64, fop, dp.reg, lp.reg, rp.reg)
		a.scratch(dp, false)
		return
	}

	dp := a.fetch(dst, false)
	switch op.Tag {
	case module.OAdd:
		emitAddSubShifted(fc.cb, is64, OpADD, ShiftLSL, dp.reg, lp.reg, rp.reg, 0)
	case module.OSub:
		emitAddSubShifted(fc.cb, is64, OpSUB, ShiftLSL, dp.reg, lp.reg, rp.reg, 0)
	case module.OMul:
		emitMADD(fc.cb, is64, dp.reg, lp.reg, rp.reg, RegZR)
	case module.OSDiv:
		emitDP2Source(fc.cb, is64, OpSDIV, dp.reg, lp.reg, rp.reg)
	case module.OUDiv:
		emitDP2Source(fc.cb, is64, OpUDIV, dp.reg, lp.reg, rp.reg)
	case module.OSMod, module.OUMod:
		divOp := OpSDIV
		if op.Tag == module.OUMod {
			divOp = OpUDIV
		}
		tmp := a.alloc(RegCPU)
		emitDP2Source(fc.cb, is64, divOp, tmp.reg, lp.reg, rp.reg)
		emitMSUB(fc.cb, is64, dp.reg, tmp.reg, rp.reg, lp.reg)
		a.scratch(tmp, true)
	case module.OShl:
		emitDP2Source(fc.cb, is64, OpLSLV, dp.reg, lp.reg, rp.reg)
	case module.OSShr:
		emitDP2Source(fc.cb, is64, OpASRV, dp.reg, lp.reg, rp.reg)
	case module.OUShr:
		emitDP2Source(fc.cb, is64, OpLSRV, dp.reg, lp.reg, rp.reg)
	case module.OAnd:
		emitLogicalShifted(fc.cb, is64, OpAND, false, ShiftLSL, dp.reg, lp.reg, rp.reg, 0)
	case module.OOr:
		emitLogicalShifted(fc.cb, is64, OpORR, false, ShiftLSL, dp.reg, lp.reg, rp.reg, 0)
	case module.OXor:
		emitLogicalShifted(fc.cb, is64, OpEOR, false, ShiftLSL, dp.reg, lp.reg, rp.reg, 0)
	}
	a.scratch(dp, false)
}

func compareJumpCond(tag module.Tag) CondCode {
	switch tag {
	case module.OJSLt:
		return CondLT
	case module.OJSLte:
		return CondLE
	case module.OJSGt:
		return CondGT
	case module.OJSGte:
		return CondGE
	case module.OJSEq:
		return CondEQ
	case module.OJSNeq:
		return CondNE
	case module.OJULt:
		return CondCC
	case module.OJULte:
		return CondLS
	case module.OJUGt:
		return CondHI
	case module.OJUGte:
		return CondCS
	default:
		return CondAL
	}
}

// genCompareJump implements the compare-and-jump family: p1=lhs,
// p2=rhs, p3=opcode-index delta relative to the instruction *after*
// this one (matching typical bytecode jump conventions). The branch
// offset is unknown until the whole function's opcodes are laid out,
// so it's recorded as a deferred jump and patched in
// funcCompiler.resolveDeferredJumps.
func (fc *funcCompiler) genCompareJump(idx int, op module.Opcode) {
	lhs, rhs := fc.vreg(op.P1), fc.vreg(op.P2)
	lp := fc.alloc.fetch(lhs, true)
	rp := fc.alloc.fetch(rhs, true)
	is64 := lhs.size == 8

	if lhs.isFloat() {
		emitFPCompare(fc.cb, is64, lp.reg, rp.reg)
	} else {
		emitAddSubShifted(fc.cb, is64, OpSUBS, ShiftLSL, RegZR, lp.reg, rp.reg, 0)
	}

	cond := compareJumpCond(op.Tag)
	site := fc.cb.Len()
	emitCondBranch(fc.cb, cond, 0)
	fc.deferredJumps = append(fc.deferredJumps, deferredJump{
		wordOffset:  site,
		kind:        branchBcond,
		targetOpIdx: idx + 1 + int(op.P3),
		cond:        cond,
	})
}

// genNullJump implements JNull/JNotNull: p1=vreg to test, p2=delta.
func (fc *funcCompiler) genNullJump(idx int, op module.Opcode) {
	v := fc.vreg(op.P1)
	p := fc.alloc.fetch(v, true)
	emitAddSubImm(fc.cb, true, OpSUBS, RegZR, p.reg, 0, false)

	cond := CondEQ
	if op.Tag == module.OJNotNull {
		cond = CondNE
	}
	site := fc.cb.Len()
	emitCondBranch(fc.cb, cond, 0)
	fc.deferredJumps = append(fc.deferredJumps, deferredJump{
		wordOffset:  site,
		kind:        branchBcond,
		targetOpIdx: idx + 1 + int(op.P2),
		cond:        cond,
	})
}

// genJAlways implements the unconditional jump: p1=delta.
func (fc *funcCompiler) genJAlways(idx int, op module.Opcode) {
	site := fc.cb.Len()
	emitB(fc.cb, 0)
	fc.deferredJumps = append(fc.deferredJumps, deferredJump{
		wordOffset:  site,
		kind:        branchB,
		targetOpIdx: idx + 1 + int(op.P1),
	})
}
