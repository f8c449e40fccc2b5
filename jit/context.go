package jit

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gvmjit/module"
)

// Errors returned by the exposed interface. Encoder-precondition
// violations remain panics (spec.md §7); these are the taxonomy's
// recoverable-by-caller half.
var (
	ErrRelocationOutOfRange = errors.New("jit: cross-function call offset exceeds +/-128MiB")
	ErrMissingFindex        = errors.New("jit: callee findex missing from both current and previous module")
	ErrOutOfMemory          = errors.New("jit: failed to allocate executable memory")

	// ErrCompilePanic reports an encoder-precondition violation (the
	// assertRange/assertAligned panics spec.md §7 calls programmer
	// errors) caught at the compile boundary instead of taking down the
	// whole process, the same recover-and-report shape as the teacher's
	// getDefaultRecoverFuncForVM.
	ErrCompilePanic = errors.New("jit: internal compiler error (recovered panic)")
)

// deferredCall is a cross-function BL whose target function's
// absolute address is not yet known at emission time (spec.md §3).
type deferredCall struct {
	site         int // byte offset of the BL instruction word
	targetFindex int
}

// funcDebugInfo is the per-function opcode-index -> byte-offset table
// (spec.md §3), widened from 16-bit to 32-bit entries once the
// function's code exceeds 0xFF00 bytes.
type funcDebugInfo struct {
	Findex  int
	Wide    bool
	Narrow  []uint16
	Offsets []uint32
}

func (d *funcDebugInfo) at(i int) uint32 {
	if d.Wide {
		return d.Offsets[i]
	}
	return uint32(d.Narrow[i])
}

// DebugInfo is the public, read-only view of funcDebugInfo handed back
// from Finalize.
type DebugInfo struct {
	Findex  int
	Offsets []uint32
}

// Context is jit_alloc's result: the one long-lived structure all JIT
// state belongs to (spec.md §9's "no process globals"). One Context
// compiles one module at a time, one function at a time — strictly
// single-threaded per spec.md §5.
type Context struct {
	cb *CodeBuffer

	mod *module.Module

	literalPoolOffset int // byte offset of module.Floats[0] in cb, or -1 if empty
	codeStart         int // byte offset where function code begins, after the pool

	funcOffsets map[int]int // findex -> byte offset of that function's code
	debugInfos  []*funcDebugInfo

	deferredCalls []deferredCall

	// globalsBuf backs OGetGlobal/OSetGlobal: the module's global slots
	// have no storage of their own in module.Module, so the Context
	// that compiles it owns one contiguous, pinned region sized from
	// mod.Globals' types (spec.md §4.3's global access, concretized).
	globalsBuf    []byte
	globalOffsets []int

	trace *strings.Builder // optional verbose diagnostics, mirrors the teacher's debugOut field
}

// NewContext implements jit_alloc.
func NewContext() *Context {
	return &Context{
		cb:          NewCodeBuffer(),
		funcOffsets: make(map[int]int),
	}
}

// EnableTrace turns on the diagnostic trace sink; Trace() returns its
// contents. Off by default, same as the teacher's debug-mode opt-in.
func (c *Context) EnableTrace() { c.trace = &strings.Builder{} }

func (c *Context) Trace() string {
	if c.trace == nil {
		return ""
	}
	return c.trace.String()
}

func (c *Context) logf(format string, args ...any) {
	if c.trace != nil {
		fmt.Fprintf(c.trace, format+"\n", args...)
	}
}

// Init implements jit_init: bind a module and emit the per-module
// float literal pool plus guard NOPs ahead of the first function's
// code, so control falling through a mis-jump lands on a trap-free
// but clearly non-code region instead of undefined instruction bytes.
func (c *Context) Init(mod *module.Module) error {
	c.mod = mod
	if len(mod.Floats) == 0 {
		c.literalPoolOffset = -1
	} else {
		c.literalPoolOffset = c.cb.Len()
		for _, f := range mod.Floats {
			var bits [8]byte
			putFloat64(bits[:], f)
			c.cb.EmitBytes(bits[:])
		}
	}
	const guardNops = 4
	for i := 0; i < guardNops; i++ {
		emitNOP(c.cb)
	}
	c.codeStart = c.cb.Len()

	c.globalOffsets = make([]int, len(mod.Globals))
	off := 0
	for i, t := range mod.Globals {
		if a := t.Align(); a > 1 && off%a != 0 {
			off += a - off%a
		}
		c.globalOffsets[i] = off
		off += t.Size()
	}
	c.globalsBuf = make([]byte, off)

	c.logf("jit_init: literal pool at %d, code starts at %d", c.literalPoolOffset, c.codeStart)
	return nil
}

// Reset implements jit_reset: reinitialize for a new module without
// reallocating the Context shell.
func (c *Context) Reset(mod *module.Module) {
	c.cb = NewCodeBuffer()
	c.funcOffsets = make(map[int]int)
	c.debugInfos = nil
	c.deferredCalls = nil
	c.globalsBuf = nil
	c.globalOffsets = nil
	_ = c.Init(mod)
}

// Close implements jit_free. canReset=true keeps the Context shell
// (and its trace sink) for a subsequent Reset.
func (c *Context) Close(canReset bool) {
	c.cb = nil
	c.mod = nil
	c.funcOffsets = nil
	c.debugInfos = nil
	c.deferredCalls = nil
	if !canReset {
		c.trace = nil
	}
}

// CompileFunction implements jit_function: compile one function body
// and return its byte offset within the growing buffer. Idempotent on
// retry via Reset, since each call starts a fresh funcCompiler over
// the shared buffer and simply records wherever the buffer currently
// ends.
func (c *Context) CompileFunction(mod *module.Module, fn *module.Function) (offset int, err error) {
	defer func() {
		if r := recover(); r != nil {
			offset, err = 0, fmt.Errorf("%w: %v", ErrCompilePanic, r)
		}
	}()

	fc := newFuncCompiler(c, mod, fn)
	offset, err = fc.compile()
	if err != nil {
		return 0, err
	}
	c.funcOffsets[fn.Findex] = offset
	c.debugInfos = append(c.debugInfos, fc.debugInfo)
	c.deferredCalls = append(c.deferredCalls, fc.deferredCalls...)
	return offset, nil
}

func putFloat64(dst []byte, f float64) {
	bits := math.Float64bits(f)
	for i := 0; i < 8; i++ {
		dst[i] = byte(bits >> (8 * uint(i)))
	}
}
