package module

import "errors"

var (
	// ErrUnknownFindex is returned when a call opcode references a
	// function index outside both the bytecode function table and the
	// native-function table.
	ErrUnknownFindex = errors.New("module: unknown function index")
)

// FuncType is the calling-convention-relevant part of a function's
// signature: argument types in AAPCS64 order and the return type.
type FuncType struct {
	Args []*Type
	Ret  *Type
}

// Function is one bytecode function body: its opcode stream and the
// type of every virtual register referenced by it (vreg 0..len(Regs)-1,
// with the first len(Type.Args) vregs pre-bound to the incoming
// arguments).
type Function struct {
	Findex int
	Type   *FuncType
	Regs   []*Type
	Ops    []Opcode

	// Name is purely diagnostic (debug info, BRK messages).
	Name string
}

// NativeFunc is a host function reachable from JIT'd code by findex,
// outside the bytecode function table. Addr is the absolute entry
// point the code generator materializes into X17 before BLR.
type NativeFunc struct {
	Findex int
	Name   string
	Addr   uintptr
	Type   *FuncType
}

// Module is the ordered table of functions/types/constant pools a
// module.Function's opcodes index into.
type Module struct {
	Functions []*Function
	Types     []*Type
	Ints      []int32
	Floats    []float64
	Strings   []string
	Bytes     []byte
	Globals   []*Type

	Natives []*NativeFunc

	// findex -> index into Functions, populated by Finalize/NewModule.
	funcByFindex   map[int]int
	nativeByFindex map[int]int
}

// Finalize builds the findex lookup tables. Must be called (or done
// implicitly by NewModule) before the module is handed to the JIT.
func (m *Module) Finalize() {
	m.funcByFindex = make(map[int]int, len(m.Functions))
	for i, f := range m.Functions {
		m.funcByFindex[f.Findex] = i
	}
	m.nativeByFindex = make(map[int]int, len(m.Natives))
	for i, n := range m.Natives {
		m.nativeByFindex[n.Findex] = i
	}
}

// NewModule constructs a Module and finalizes its findex tables.
func NewModule() *Module {
	m := &Module{}
	m.Finalize()
	return m
}

// FunctionByFindex resolves a findex to a bytecode function.
func (m *Module) FunctionByFindex(findex int) (*Function, bool) {
	i, ok := m.funcByFindex[findex]
	if !ok {
		return nil, false
	}
	return m.Functions[i], true
}

// NativeByFindex resolves a findex to a native host function.
func (m *Module) NativeByFindex(findex int) (*NativeFunc, bool) {
	i, ok := m.nativeByFindex[findex]
	if !ok {
		return nil, false
	}
	return m.Natives[i], true
}
