package jit

import (
	"fmt"

	"gvmjit/module"
)

// branchKind distinguishes the two patchable branch encodings this
// core emits for in-function control flow.
type branchKind uint8

const (
	branchB     branchKind = iota // 26-bit imm, unconditional
	branchBcond                   // 19-bit imm, B.cond
)

// deferredJump is an in-function branch whose target opcode has not
// yet been emitted (spec.md §3).
type deferredJump struct {
	wordOffset   int
	kind         branchKind
	targetOpIdx  int
	cond         CondCode
}

// funcCompiler drives the translation of one function body: it walks
// the opcode stream, consults the allocator to place operands and the
// vreg's type to pick encodings, emits instructions via package-level
// emit* helpers, and records deferred branch/call patch sites.
type funcCompiler struct {
	ctx *Context
	mod *module.Module
	fn  *module.Function
	cb  *CodeBuffer

	alloc  *Allocator
	layout *frameLayout

	funcStart int
	opsPos    []int // opcode index -> byte offset, length len(fn.Ops)+1

	deferredJumps []deferredJump
	deferredCalls []deferredCall

	debugInfo *funcDebugInfo
}

func newFuncCompiler(ctx *Context, mod *module.Module, fn *module.Function) *funcCompiler {
	return &funcCompiler{
		ctx: ctx,
		mod: mod,
		fn:  fn,
		cb:  ctx.cb,
	}
}

func (fc *funcCompiler) vreg(i int32) *vregInfo { return fc.layout.vregs[i] }

// compile implements the per-function half of jit_function: lay out
// the frame, emit the prologue, bind incoming arguments, translate
// every opcode, and resolve all in-function deferred jumps.
func (fc *funcCompiler) compile() (int, error) {
	fc.funcStart = fc.cb.Len()
	fc.layout = computeFrameLayout(fc.fn)
	fc.alloc = NewAllocator(fc.cb)
	fc.opsPos = make([]int, len(fc.fn.Ops)+1)

	emitPrologue(fc.cb, fc.layout.frameSize)
	fc.bindIncomingArgs()

	for i, op := range fc.fn.Ops {
		fc.cb.EnsureRoom()
		fc.alloc.SetOpIndex(i)
		fc.opsPos[i] = fc.cb.Len()
		fc.genOpcode(i, op)
	}
	fc.opsPos[len(fc.fn.Ops)] = fc.cb.Len()

	fc.resolveDeferredJumps()
	fc.buildDebugInfo()

	return fc.funcStart, nil
}

// bindIncomingArgs binds each register-passed argument to its AAPCS64
// register and immediately spills it to the vreg's stack slot, and
// copies each stack-passed argument straight from the caller's
// outgoing area into its local slot.
func (fc *funcCompiler) bindIncomingArgs() {
	for i, loc := range fc.layout.args {
		v := fc.vreg(int32(i))
		if loc.inRegister {
			var p *pregInfo
			if loc.regClass == RegFPU {
				p = fc.alloc.fpu[loc.regIndex]
			} else {
				p = fc.alloc.cpu[loc.regIndex]
			}
			fc.alloc.bind(v, p)
			fc.alloc.scratch(p, false)
			continue
		}
		if v.isFloat() {
			tmp := V(31)
			emitLoadStoreScaled(fc.cb, v.size, true, tmp, RegFP, stackArgOffset(loc.stackSlot))
			emitLoadStoreScaled(fc.cb, v.size, false, tmp, RegSP, v.offset)
		} else {
			tmp := RegIP0
			emitLoadStoreScaled(fc.cb, v.size, true, tmp, RegFP, stackArgOffset(loc.stackSlot))
			emitLoadStoreScaled(fc.cb, v.size, false, tmp, RegSP, v.offset)
		}
	}
}

// resolveDeferredJumps implements spec.md §3/§8: every forward branch
// whose offset field was left zero at emission time is patched once
// the target opcode's byte position is known.
func (fc *funcCompiler) resolveDeferredJumps() {
	for _, dj := range fc.deferredJumps {
		targetByte := fc.opsPos[dj.targetOpIdx]
		rel := int32((targetByte - dj.wordOffset) / 4)
		switch dj.kind {
		case branchB:
			extra := uint32(rel) & 0x3FFFFFF
			fc.cb.PatchWord(dj.wordOffset, extra)
		case branchBcond:
			extra := (uint32(rel) & 0x7FFFF) << 5
			fc.cb.PatchWord(dj.wordOffset, extra)
		}
	}
}

func (fc *funcCompiler) buildDebugInfo() {
	codeLen := fc.opsPos[len(fc.opsPos)-1] - fc.funcStart
	d := &funcDebugInfo{Findex: fc.fn.Findex}
	if codeLen > 0xFF00 {
		d.Wide = true
		d.Offsets = make([]uint32, len(fc.fn.Ops))
		for i, pos := range fc.opsPos[:len(fc.fn.Ops)] {
			d.Offsets[i] = uint32(pos - fc.funcStart)
		}
	} else {
		d.Narrow = make([]uint16, len(fc.fn.Ops))
		for i, pos := range fc.opsPos[:len(fc.fn.Ops)] {
			d.Narrow[i] = uint16(pos - fc.funcStart)
		}
	}
	fc.debugInfo = d
}

// emitBrkForOpcode realizes the "unsupported opcode" error taxonomy
// entry (spec.md §7): a fatal trap visible in debuggers, carrying the
// opcode tag as the BRK immediate, rather than silently corrupting
// state or miscompiling.
func (fc *funcCompiler) emitBrkForOpcode(tag module.Tag) {
	emitBRK(fc.cb, uint32(tag))
}

// genOpcode is the per-opcode dispatch named in spec.md §4.3. It is
// split across this file and codegen_arith.go/codegen_mem.go/
// codegen_call.go by opcode family; every case satisfies the
// vreg<->preg invariant of spec.md §3 on entry and exit.
func (fc *funcCompiler) genOpcode(idx int, op module.Opcode) {
	if op.Tag.IsOpen() {
		fc.emitBrkForOpcode(op.Tag)
		return
	}

	switch op.Tag {
	case module.ONop:
		// no-op at the VM level; nothing to emit

	case module.OInt, module.OFloat, module.OBool, module.OBytes, module.OString, module.ONull:
		fc.genConst(op)

	case module.OAdd, module.OSub, module.OMul, module.OSDiv, module.OUDiv,
		module.OSMod, module.OUMod, module.OShl, module.OSShr, module.OUShr,
		module.OAnd, module.OOr, module.OXor, module.ONeg, module.ONot,
		module.OIncr, module.ODecr, module.OFAdd, module.OFSub, module.OFMul, module.OFDiv:
		fc.genArith(op)

	case module.OMov:
		fc.alloc.mov(fc.vreg(op.P2), fc.vreg(op.P1))

	case module.OJSLt, module.OJSLte, module.OJSGt, module.OJSGte, module.OJSEq, module.OJSNeq,
		module.OJULt, module.OJULte, module.OJUGt, module.OJUGte:
		fc.genCompareJump(idx, op)

	case module.OJNull, module.OJNotNull:
		fc.genNullJump(idx, op)

	case module.OJAlways:
		fc.genJAlways(idx, op)

	case module.OCall0, module.OCall1, module.OCall2, module.OCall3, module.OCall4, module.OCallN:
		fc.genCall(op)

	case module.OCallClosure:
		fc.genCallClosure(op)

	case module.OCallMethod:
		fc.genCallMethod(op)

	case module.ORet:
		fc.genRet(op)

	case module.OGetGlobal, module.OSetGlobal:
		fc.genGlobal(op)

	case module.OField, module.OSetField:
		fc.genField(op)

	case module.OGetArray, module.OSetArray:
		fc.genArray(op)

	case module.OGetI8, module.OGetI16, module.OGetMem:
		fc.genRawMem(op)

	case module.ONew, module.OEnumAlloc, module.OMakeEnum:
		fc.genAlloc(op)

	case module.ORef:
		fc.genRef(op)
	case module.OUnref:
		fc.genUnref(op)

	case module.OSafeCast:
		fc.genSafeCast(op)
	case module.OToDyn:
		fc.genToDyn(op)

	case module.OGetType, module.OGetTID:
		fc.genGetTypeOrTID(op)

	case module.OEnumIndex, module.OEnumField, module.OSetEnumField:
		fc.genEnumField(op)

	case module.OToSFloat, module.OToUFloat, module.OToInt:
		fc.genConvert(op)

	case module.ONullCheck:
		fc.genNullCheck(op)

	default:
		panic(fmt.Sprintf("jit codegen: opcode %d has no dispatch entry", op.Tag))
	}
}
