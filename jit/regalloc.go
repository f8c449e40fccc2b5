package jit

import "gvmjit/module"

// vregInfo is one VM virtual register of the function being compiled.
type vregInfo struct {
	typ     *module.Type
	size    int
	offset  int // stack slot offset from the frame base, set once by frame layout
	current *pregInfo
}

func (v *vregInfo) isFloat() bool { return v.typ.IsFloat() }

// pregInfo is one physical AArch64 register. lock is the opcode index
// at which it was last touched; it is monotonic non-decreasing within
// a function (spec.md §3 invariant 3).
type pregInfo struct {
	reg   Reg
	lock  int
	holds *vregInfo
}

// Allocator implements spec.md §4.2: on-the-fly, opcode-by-opcode
// register assignment with no liveness analysis. It conflates the
// four-state preg contract down to FREE vs HOLDING and always spills
// on eviction, which the spec explicitly allows as a valid
// implementation.
type Allocator struct {
	cb  *CodeBuffer
	cpu [numCPURegs + 1]*pregInfo // indexed by register id 0..30 (31 unused: SP/ZR)
	fpu [numFPURegs]*pregInfo

	opIndex int // current opcode index, advanced by the codegen driver

	calling      bool // true between startCall/endCall
	callArgUsed  [numCPURegs + 1]bool
	callArgUsedF [numFPURegs]bool
}

func NewAllocator(cb *CodeBuffer) *Allocator {
	a := &Allocator{cb: cb}
	for i := range a.cpu {
		a.cpu[i] = &pregInfo{reg: X(uint8(i)), lock: -1}
	}
	for i := range a.fpu {
		a.fpu[i] = &pregInfo{reg: V(uint8(i)), lock: -1}
	}
	return a
}

// SetOpIndex advances the allocator's notion of "now" — called once
// per opcode by the codegen driver before any alloc/fetch/bind calls
// for that opcode.
func (a *Allocator) SetOpIndex(i int) { a.opIndex = i }

func (a *Allocator) pool(kind RegKind) []*pregInfo {
	if kind == RegFPU {
		return a.fpu[:]
	}
	return a.cpu[:numCPURegs] // exclude preg 31 (SP/ZR sentinel)
}

func (a *Allocator) excludedAsArg(kind RegKind, id uint8) bool {
	if !a.calling {
		return false
	}
	if kind == RegCPU {
		return id <= 7
	}
	return id <= 7
}

// alloc picks a preg of the requested kind: a free one first, else the
// oldest (smallest lock) evictable one. Never picks a reserved CPU
// register, and never picks an argument register (X0-X7/V0-V7) while
// a call is in progress.
func (a *Allocator) alloc(kind RegKind) *pregInfo {
	pool := a.pool(kind)

	var best *pregInfo
	for _, p := range pool {
		if kind == RegCPU && reservedCPU(p.reg.ID) {
			continue
		}
		if a.excludedAsArg(kind, p.reg.ID) {
			continue
		}
		if p.lock == a.opIndex && p.holds != nil {
			// locked this opcode: never evictable (invariant 3)
			continue
		}
		if p.holds == nil {
			best = p
			break
		}
		if best == nil || p.lock < best.lock {
			best = p
		}
	}
	assertRange(best != nil, "register allocator: no evictable %v register available", kind)

	if best.holds != nil {
		a.spill(best)
		a.unbind(best)
	}
	best.lock = a.opIndex
	return best
}

// spill writes a preg's cached vreg back to its stack slot.
func (a *Allocator) spill(p *pregInfo) {
	v := p.holds
	if v == nil {
		return
	}
	emitStoreToSlot(a.cb, p.reg, v)
}

func (a *Allocator) unbind(p *pregInfo) {
	if p.holds != nil {
		p.holds.current = nil
		p.holds = nil
	}
}

// bind makes p hold v, clearing any previous tenant on either side in
// one atomic mutation point (spec.md §5's memory-safety discipline).
func (a *Allocator) bind(v *vregInfo, p *pregInfo) {
	if v.current == p && p.holds == v {
		p.lock = a.opIndex
		return
	}
	if v.current != nil {
		a.unbind(v.current)
	}
	a.unbind(p)
	p.holds = v
	v.current = p
	p.lock = a.opIndex
}

// scratch spills p's contents (if any); if release, also drops the
// binding so p is immediately free for reuse.
func (a *Allocator) scratch(p *pregInfo, release bool) {
	if p.holds == nil {
		return
	}
	a.spill(p)
	if release {
		a.unbind(p)
	}
}

// fetch returns the preg currently holding v, allocating one and
// loading from the stack slot if necessary. load=false means the
// caller is about to overwrite the register wholesale and the stack
// copy need not be reloaded first.
func (a *Allocator) fetch(v *vregInfo, load bool) *pregInfo {
	if v.current != nil {
		v.current.lock = a.opIndex
		return v.current
	}
	kind := RegCPU
	if v.isFloat() {
		kind = RegFPU
	}
	p := a.alloc(kind)
	a.bind(v, p)
	if load {
		emitLoadFromSlot(a.cb, p.reg, v)
	}
	return p
}

// load guarantees v's current value is in preg p specifically, by a
// register move if v is already cached elsewhere, or a stack reload
// otherwise. Does not change bindings.
func (a *Allocator) load(v *vregInfo, p *pregInfo) {
	if v.current == p {
		return
	}
	if v.current != nil {
		emitRegMove(a.cb, p.reg, v.current.reg, v.isFloat())
		return
	}
	emitLoadFromSlot(a.cb, p.reg, v)
}

// mov is a semantic vreg-to-vreg copy: fetch src, then either move
// into dst's preg (if it has one) or store straight to dst's slot.
func (a *Allocator) mov(src, dst *vregInfo) {
	sp := a.fetch(src, true)
	if dst.current != nil {
		emitRegMove(a.cb, dst.current.reg, sp.reg, dst.isFloat())
		dst.current.lock = a.opIndex
		return
	}
	emitStoreToSlot(a.cb, sp.reg, dst)
}

// startCall spills every caller-saved preg holding a live vreg
// (X0-X17, V0-V7, V16-V31) and marks the allocator as "calling" so
// subsequent argument loads don't recycle argument registers.
func (a *Allocator) startCall() {
	for id := 0; id <= 17; id++ {
		a.scratch(a.cpu[id], true)
	}
	for id := 0; id <= 7; id++ {
		a.scratch(a.fpu[id], true)
	}
	for id := 16; id < numFPURegs; id++ {
		a.scratch(a.fpu[id], true)
	}
	a.calling = true
}

// endCall clears the calling flag. Stack-argument SP adjustment is
// handled by the call sites in codegen_call.go, which know how many
// bytes of outgoing stack arguments loadCallArgs pushed.
func (a *Allocator) endCall() {
	a.calling = false
}

// savedRegs is a point-in-time snapshot of the vreg<->preg map, used
// by save_regs/restore_regs to keep both arms of a closure call
// consistent (spec.md §4.2).
type savedRegs struct {
	cpu [numCPURegs + 1]*vregInfo
	fpu [numFPURegs]*vregInfo
}

func (a *Allocator) saveRegs() *savedRegs {
	s := &savedRegs{}
	for i, p := range a.cpu {
		s.cpu[i] = p.holds
	}
	for i, p := range a.fpu {
		s.fpu[i] = p.holds
	}
	return s
}

// restoreRegs spills whatever the allocator currently holds (so the
// other arm's writes are observable in memory) and then rebinds to
// match the snapshot, without re-emitting loads: both arms are
// expected to have left their vregs' stack slots authoritative.
func (a *Allocator) restoreRegs(s *savedRegs) {
	for i, p := range a.cpu {
		a.scratch(p, true)
		if v := s.cpu[i]; v != nil {
			a.unbind(p)
			p.holds = v
			v.current = p
		}
	}
	for i, p := range a.fpu {
		a.scratch(p, true)
		if v := s.fpu[i]; v != nil {
			a.unbind(p)
			p.holds = v
			v.current = p
		}
	}
}

// --- spill/reload codegen helpers shared by the allocator primitives ---

// vreg stack slots are SP-relative (spec.md §4.3's ORef uses
// "ADD xDst, sp, #stackPos" directly), using the scaled LDR/STR form
// so slots up to 4095*size bytes from SP are reachable without a
// second address-materializing instruction.
func emitLoadFromSlot(cb *CodeBuffer, dst Reg, v *vregInfo) {
	emitLoadStoreScaled(cb, v.size, true, dst, RegSP, v.offset)
}

func emitStoreToSlot(cb *CodeBuffer, src Reg, v *vregInfo) {
	emitLoadStoreScaled(cb, v.size, false, src, RegSP, v.offset)
}

func emitRegMove(cb *CodeBuffer, dst, src Reg, isFloat bool) {
	if dst == src {
		return
	}
	if isFloat {
		emitFPDataProc1(cb, true, OpFMOV, dst, src)
		return
	}
	// ORR xd, xzr, xm — the standard register-move idiom (MOV is an
	// ORR-with-ZR alias) so the allocator never needs a distinct
	// "MOV register" encoder entry.
	emitLogicalShifted(cb, true, OpORR, false, ShiftLSL, dst, RegZR, src, 0)
}
