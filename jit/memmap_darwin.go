//go:build darwin

package jit

import "github.com/ebitengine/purego"

// Apple Silicon enforces W^X on its own JIT-entitled pages: a RW|EXEC
// mapping can only be written while the calling thread has toggled
// itself into the "write" half of that pair, via
// pthread_jit_write_protect_np. purego resolves and calls it directly
// against libSystem, no cgo required.
var pthreadJitWriteProtectNp func(enabled int32)

func init() {
	lib, err := purego.Dlopen("libSystem.B.dylib", purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return
	}
	purego.RegisterLibFunc(&pthreadJitWriteProtectNp, lib, "pthread_jit_write_protect_np")
}

// beginCodeWrite toggles the calling thread into the writable half of
// the W^X pair. No-op if the symbol failed to resolve (non-JIT-
// entitled process, or an older macOS).
func beginCodeWrite() {
	if pthreadJitWriteProtectNp != nil {
		pthreadJitWriteProtectNp(0)
	}
}

// endCodeWrite toggles back to the executable half, after which the
// instruction cache must still be invalidated (cacheflush_arm64.go)
// before the new code is safe to branch into.
func endCodeWrite() {
	if pthreadJitWriteProtectNp != nil {
		pthreadJitWriteProtectNp(1)
	}
}
