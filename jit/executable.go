package jit

import mmap "github.com/edsrzf/mmap-go"

// Executable is jit_code's result: a finalized, RW|EXEC-mapped code
// region plus the byte offset each compiled function landed at.
// Callers look up an entry point by findex and invoke it through
// CallEntry.
type Executable struct {
	mem         mmap.MMap
	funcOffsets map[int]int
}

// Offset returns the byte offset of findex's entry point within the
// executable region, and whether it was found at all. Only functions
// compiled into this Context are listed; nothing is carried over from
// a previous module.
func (e *Executable) Offset(findex int) (int, bool) {
	off, ok := e.funcOffsets[findex]
	return off, ok
}

// Base is the mapped region's first byte, exposed for tests that want
// to disassemble it with golang.org/x/arch/arm64/arm64asm.
func (e *Executable) Base() []byte { return e.mem }

// Release unmaps the executable region. Safe to call once; a second
// call is a caller bug, same as any other double-free.
func (e *Executable) Release() error {
	return e.mem.Unmap()
}
