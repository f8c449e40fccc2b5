package jit

import (
	"reflect"

	"gvmjit/runtime"
)

// funcAddr resolves a Go function's entry address, the same mechanism
// a loader would use to populate module.NativeFunc.Addr for a
// bytecode-declared native. Applied here to the fixed set of runtime
// helpers the code generator itself needs regardless of which module
// is loaded (allocation, dynamic field access, casts, the null-access
// trap) — so these go through exactly the same BLR-to-absolute-address
// call shape as OCallN's native-findex path.
//
// This relies on the callee being invoked on the same goroutine stack
// that called into the JIT (true for every CallEntry path in this
// core) and on the helper's signature being simple enough that Go's
// internal register ABI happens to line up with the AAPCS64 argument
// placement this encoder uses; it is not a general FFI bridge.
func funcAddr(fn any) uintptr {
	return reflect.ValueOf(fn).Pointer()
}

var (
	addrAllocObj     = funcAddr(runtime.AllocObj)
	addrAllocDynObj  = funcAddr(runtime.AllocDynObj)
	addrAllocVirtual = funcAddr(runtime.AllocVirtual)
	addrAllocEnum    = funcAddr(runtime.AllocEnum)
	addrAllocDynamic = funcAddr(runtime.AllocDynamic)
	addrNullAccess   = funcAddr(runtime.NullAccess)

	addrDynGetI = funcAddr(runtime.DynGetI)
	addrDynGetF = funcAddr(runtime.DynGetF)
	addrDynGetD = funcAddr(runtime.DynGetD)
	addrDynGetP = funcAddr(runtime.DynGetP)
	addrDynSetI = funcAddr(runtime.DynSetI)
	addrDynSetF = funcAddr(runtime.DynSetF)
	addrDynSetD = funcAddr(runtime.DynSetD)
	addrDynSetP = funcAddr(runtime.DynSetP)

	addrDynCastI = funcAddr(runtime.DynCastI)
	addrDynCastF = funcAddr(runtime.DynCastF)
	addrDynCastD = funcAddr(runtime.DynCastD)
	addrDynCastP = funcAddr(runtime.DynCastP)

	addrToVirtual = funcAddr(runtime.ToVirtual)
)
