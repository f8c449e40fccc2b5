//go:build arm64

package jit

import "unsafe"

// callEntryAsm is implemented in call_arm64.s.
func callEntryAsm(entry uintptr, args *uint64) uint64

// CallEntry invokes the function at the given byte offset within the
// executable region, AAPCS64-style, with up to eight integer/pointer
// arguments. It's built on a raw function-address (reflect/unsafe
// function-value synthesis proper isn't sound here: casting a uintptr
// to a Go func value would invoke it under Go's own internal calling
// convention, not AAPCS64) backed by the small hand-written trampoline
// in call_arm64.s, used the same way CallEntry's callers — the CLI's
// run subcommand and the end-to-end tests — invoke a compiled entry
// point.
func (e *Executable) CallEntry(offset int, args ...uint64) uint64 {
	if offset < 0 || offset >= len(e.mem) {
		panic("jit: CallEntry offset out of range")
	}
	var padded [8]uint64
	copy(padded[:], args)
	entry := uintptr(unsafe.Pointer(&e.mem[0])) + uintptr(offset)
	return callEntryAsm(entry, &padded[0])
}
