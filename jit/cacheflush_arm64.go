//go:build arm64

package jit

import "unsafe"

// flushInstructionCacheAsm is implemented in cacheflush_arm64.s.
func flushInstructionCacheAsm(addr, size uintptr)

// flushInstructionCache makes freshly written code visible to the
// fetch unit. Required on every AArch64 target: the data and
// instruction caches are not kept coherent by hardware the way x86's
// are, so skipping this step risks executing stale (or torn) bytes
// after Finalize copies the code buffer into its executable mapping.
func flushInstructionCache(p unsafe.Pointer, size int) {
	if size == 0 {
		return
	}
	flushInstructionCacheAsm(uintptr(p), uintptr(size))
}
