package jit

import (
	"unsafe"

	"gvmjit/module"
	"gvmjit/runtime"
)

// resolveCallTarget finds a findex's absolute address, in the order
// spec.md §4.5 describes: a function compiled into this Context's own
// buffer, a native in the current module, or — for hot-reload, a
// findex the new module dropped — a native still declared in the
// previous module. A bytecode function that existed only in a
// previous compilation round has no recoverable address here (its
// code lived in a previous Executable this Context no longer owns),
// so that case falls through to ErrMissingFindex same as the spec's
// "absent from both" case.
func (c *Context) resolveCallTarget(findex int, base uintptr, mod, previous *module.Module) (uintptr, bool) {
	if off, ok := c.funcOffsets[findex]; ok {
		return base + uintptr(off), true
	}
	if nf, ok := mod.NativeByFindex(findex); ok {
		return nf.Addr, true
	}
	if previous != nil {
		if nf, ok := previous.NativeByFindex(findex); ok {
			return nf.Addr, true
		}
	}
	return 0, false
}

// emitVeneer appends an indirect-branch thunk — materialize the
// absolute target into x16, BR x16 — and returns its byte offset. Used
// when a direct BL's offset exceeds the encodable +/-128MiB range.
func emitVeneer(cb *CodeBuffer, target uintptr) int {
	off := cb.Len()
	materializeAbsPointer(cb, RegIP0, target)
	emitBranchReg(cb, OpBR, RegIP0)
	return off
}

// Finalize implements jit_code: copy the accumulated code buffer into
// freshly mapped executable memory, resolve every deferred
// cross-function call against its final absolute address (synthesizing
// an out-of-line veneer when the direct BL offset doesn't fit), and
// invalidate the instruction cache over the written range so the
// result is immediately safe to branch into.
func (c *Context) Finalize(mod, previous *module.Module) (Executable, []DebugInfo, error) {
	// Size the mapping up front for the worst case where every deferred
	// call needs a veneer (materializeAbsPointer's 4-instruction MOVZ/
	// MOVK cascade plus one BR), so the relocation pass below never has
	// to grow past a region whose base address it has already baked
	// absolute veneer targets against.
	const maxVeneerBytes = 5 * 4
	size := c.cb.Len() + len(c.deferredCalls)*maxVeneerBytes
	mem, err := runtime.AllocExecutableMemory(size)
	if err != nil {
		return Executable{}, nil, ErrOutOfMemory
	}
	base := uintptr(unsafe.Pointer(&mem[0]))

	// Deferred calls patch the in-memory CodeBuffer (still ordinary RW
	// heap memory at this point), so veneers appended here still land
	// before the final copy below, at offsets within the slack this
	// mapping was sized to cover.
	for _, dc := range c.deferredCalls {
		target, ok := c.resolveCallTarget(dc.targetFindex, base, mod, previous)
		if !ok {
			mem.Unmap()
			return Executable{}, nil, ErrMissingFindex
		}

		site := base + uintptr(dc.site)
		rel := (int64(target) - int64(site)) / 4
		if rel < -(1<<25) || rel >= (1<<25) {
			veneerOff := emitVeneer(c.cb, target)
			target = base + uintptr(veneerOff)
			rel = (int64(target) - int64(site)) / 4
			if rel < -(1<<25) || rel >= (1<<25) {
				mem.Unmap()
				return Executable{}, nil, ErrRelocationOutOfRange
			}
		}
		c.cb.PatchWord(dc.site, uint32(rel)&0x3FFFFFF)
	}

	beginCodeWrite()
	copy(mem, c.cb.Bytes())
	endCodeWrite()

	flushInstructionCache(unsafe.Pointer(&mem[0]), c.cb.Len())

	debugInfos := make([]DebugInfo, 0, len(c.debugInfos))
	for _, d := range c.debugInfos {
		var offs []uint32
		if d.Wide {
			offs = append(offs, d.Offsets...)
		} else {
			offs = make([]uint32, len(d.Narrow))
			for i, v := range d.Narrow {
				offs[i] = uint32(v)
			}
		}
		debugInfos = append(debugInfos, DebugInfo{Findex: d.Findex, Offsets: offs})
	}

	funcOffsets := make(map[int]int, len(c.funcOffsets))
	for k, v := range c.funcOffsets {
		funcOffsets[k] = v
	}

	return Executable{mem: mem, funcOffsets: funcOffsets}, debugInfos, nil
}
