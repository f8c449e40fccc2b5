//go:build !arm64

package jit

import "unsafe"

// flushInstructionCache is a no-op off arm64: this core only ever
// generates AArch64 code, but the package still builds on other hosts
// (for the non-CallEntry parts of the test suite) so CI laptops and
// non-arm64 dev boxes can at least compile and vet it.
func flushInstructionCache(p unsafe.Pointer, size int) {}
