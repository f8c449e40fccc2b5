package runtime

import (
	mmap "github.com/edsrzf/mmap-go"
)

// AllocExecutableMemory implements hl_alloc_executable_memory: an
// anonymous RW|EXEC mapping via mmap-go. jit.Context.Finalize calls
// this directly for its final code region; the platform-specific half
// of W^X handling (toggling write-protection on Apple Silicon before
// the code copy) lives in jit/memmap_darwin.go / jit/memmap_other.go,
// since it's specific to the JIT's own write-then-execute sequence
// rather than something other runtime call sites need.
func AllocExecutableMemory(size int) (mmap.MMap, error) {
	return mmap.MapRegion(nil, size, mmap.RDWR|mmap.EXEC, mmap.ANON, 0)
}
