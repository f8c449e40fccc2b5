package jit

import "gvmjit/module"

// argLoc describes how one incoming argument reaches the callee: in a
// register (CPU or FPU, numbered within its own class) or already on
// the caller's outgoing stack area.
type argLoc struct {
	inRegister bool
	regClass   RegKind
	regIndex   uint8 // index within X0-7 / V0-7 when inRegister
	stackSlot  int   // 0-based slot among stack-passed args otherwise
}

// frameLayout is the result of computing a function's prologue frame:
// every vreg's stack slot offset (SP-relative, per spec.md §4.3's
// ORef), the rounded-up-to-16 total frame size, and each argument's
// passing location.
type frameLayout struct {
	vregs     []*vregInfo
	frameSize int
	args      []argLoc
}

// computeFrameLayout implements spec.md §4.4: argument slots for the
// first eight register-passed args of each class each claim a local
// slot like any other vreg (so they can be spilled uniformly);
// additional args are classified as stack-passed, numbered in argument
// order across both classes (the order loadCallArgs stores them in),
// and are copied from the caller's outgoing stack area into their own
// local slot on entry (bindIncomingArgs). All vregs are then assigned
// contiguous slots respecting
// natural alignment, and the total is rounded up to 16.
func computeFrameLayout(fn *module.Function) *frameLayout {
	nArgs := len(fn.Type.Args)
	args := make([]argLoc, nArgs)

	var nextInt, nextFloat uint8
	nextStack := 0
	for i, t := range fn.Type.Args {
		if t.IsFloat() {
			if nextFloat < 8 {
				args[i] = argLoc{inRegister: true, regClass: RegFPU, regIndex: nextFloat}
				nextFloat++
			} else {
				args[i] = argLoc{stackSlot: nextStack}
				nextStack++
				nextFloat++
			}
		} else {
			if nextInt < 8 {
				args[i] = argLoc{inRegister: true, regClass: RegCPU, regIndex: nextInt}
				nextInt++
			} else {
				args[i] = argLoc{stackSlot: nextStack}
				nextStack++
				nextInt++
			}
		}
	}

	vregs := make([]*vregInfo, len(fn.Regs))
	offset := 0
	for i, t := range fn.Regs {
		size := t.Size()
		align := t.Align()
		if align > 1 && offset%align != 0 {
			offset += align - offset%align
		}
		vregs[i] = &vregInfo{typ: t, size: size, offset: offset}
		offset += size
	}

	frameSize := roundUp16(offset)
	return &frameLayout{vregs: vregs, frameSize: frameSize, args: args}
}

func roundUp16(n int) int {
	if n%16 == 0 {
		return n
	}
	return n + (16 - n%16)
}

// emitPrologue implements spec.md §4.4's exact instruction sequence:
//
//	SUB sp, sp, #16; STUR x30,[sp,#8]; STUR x29,[sp,#0]
//	MOV x29, sp; SUB sp, sp, #frameSize
func emitPrologue(cb *CodeBuffer, frameSize int) {
	assertRange(frameSize < 4096, "frame size %d exceeds a single SUB immediate; veneer-style frame setup is not implemented", frameSize)
	emitAddSubImm(cb, true, OpSUB, RegSP, RegSP, 16, false)
	emitLoadStoreUnscaled(cb, 8, false, RegLR, RegSP, 8)
	emitLoadStoreUnscaled(cb, 8, false, RegFP, RegSP, 0)
	emitAddSubImm(cb, true, OpADD, RegFP, RegSP, 0, false) // MOV x29, sp
	if frameSize > 0 {
		emitAddSubImm(cb, true, OpSUB, RegSP, RegSP, uint32(frameSize), false)
	}
}

// emitEpilogue implements spec.md §4.4's return sequence:
//
//	ADD sp, sp, #frameSize; LDUR x29,[sp,#0]; LDUR x30,[sp,#8]
//	ADD sp, sp, #16; RET x30
func emitEpilogue(cb *CodeBuffer, frameSize int) {
	if frameSize > 0 {
		emitAddSubImm(cb, true, OpADD, RegSP, RegSP, uint32(frameSize), false)
	}
	emitLoadStoreUnscaled(cb, 8, true, RegFP, RegSP, 0)
	emitLoadStoreUnscaled(cb, 8, true, RegLR, RegSP, 8)
	emitAddSubImm(cb, true, OpADD, RegSP, RegSP, 16, false)
	emitBranchReg(cb, OpRET, RegLR)
}

// stackArgOffset is the SP-relative... actually FP-relative offset
// (from x29) at which a stack-passed incoming argument's slot lives in
// the caller's outgoing area: immediately above the saved [x29,x30]
// pair this function's own prologue pushed, 8 bytes per slot per
// AAPCS64's minimum stack-argument alignment.
func stackArgOffset(slot int) int {
	return 16 + slot*8
}
