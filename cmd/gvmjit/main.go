// Command gvmjit drives the AArch64 JIT core standalone: compile a
// small built-in demonstration module, optionally run it, or
// disassemble what came out.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/arch/arm64/arm64asm"

	"gvmjit/jit"
	"gvmjit/module"
)

func main() {
	// Top-level recover boundary, the same shape as the teacher's
	// main.go: anything that escapes as a panic (rather than a
	// returned error) gets reported and turned into a clean exit
	// instead of a crash dump.
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintln(os.Stderr, "gvmjit: internal error:", r)
			os.Exit(1)
		}
	}()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gvmjit",
		Short: "AArch64 JIT backend driver",
	}
	root.AddCommand(newCompileCmd(), newRunCmd(), newDisasmCmd())
	return root
}

// demoModule builds a small, self-contained module exercising a
// handful of opcode families (arithmetic, a cross-function call,
// control flow) since this core has no bytecode-file loader of its
// own — that's the VM's job, out of scope here (spec.md §1).
func demoModule() *module.Module {
	i64 := &module.Type{Kind: module.HI64}

	// square(x) = x*x, findex 1.
	square := &module.Function{
		Findex: 1,
		Name:   "square",
		Type:   &module.FuncType{Args: []*module.Type{i64}, Ret: i64},
		Regs:   []*module.Type{i64, i64},
		Ops: []module.Opcode{
			{Tag: module.OMul, P1: 1, P2: 0, P3: 0},
			{Tag: module.ORet, P1: 1},
		},
	}

	// sumOfSquares(a, b) = square(a) + square(b), findex 0.
	sumOfSquares := &module.Function{
		Findex: 0,
		Name:   "sumOfSquares",
		Type:   &module.FuncType{Args: []*module.Type{i64, i64}, Ret: i64},
		Regs:   []*module.Type{i64, i64, i64, i64},
		Ops: []module.Opcode{
			{Tag: module.OCall1, P1: 2, P2: 1, Extra: []int32{0}},
			{Tag: module.OCall1, P1: 3, P2: 1, Extra: []int32{1}},
			{Tag: module.OAdd, P1: 2, P2: 2, P3: 3},
			{Tag: module.ORet, P1: 2},
		},
	}

	mod := &module.Module{Functions: []*module.Function{sumOfSquares, square}}
	mod.Finalize()
	return mod
}

func compileDemo() (*jit.Context, jit.Executable, []jit.DebugInfo, error) {
	mod := demoModule()
	ctx := jit.NewContext()
	if err := ctx.Init(mod); err != nil {
		return nil, jit.Executable{}, nil, err
	}
	for _, fn := range mod.Functions {
		if _, err := ctx.CompileFunction(mod, fn); err != nil {
			return nil, jit.Executable{}, nil, fmt.Errorf("compiling %s: %w", fn.Name, err)
		}
	}
	exe, debugInfos, err := ctx.Finalize(mod, nil)
	return ctx, exe, debugInfos, err
}

func newCompileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compile",
		Short: "Compile the built-in demo module and report function offsets",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, exe, debugInfos, err := compileDemo()
			if err != nil {
				return err
			}
			for _, d := range debugInfos {
				off, _ := exe.Offset(d.Findex)
				fmt.Fprintf(cmd.OutOrStdout(), "findex %d: offset %d, %d opcodes tracked\n", d.Findex, off, len(d.Offsets))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "code region: %d bytes\n", len(exe.Base()))
			return nil
		},
	}
}

func newRunCmd() *cobra.Command {
	var findex int
	var arg0, arg1 uint64
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Compile the demo module and call one of its functions",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, exe, _, err := compileDemo()
			if err != nil {
				return err
			}
			off, ok := exe.Offset(findex)
			if !ok {
				return fmt.Errorf("gvmjit: no function with findex %d", findex)
			}
			result := exe.CallEntry(off, arg0, arg1)
			fmt.Fprintf(cmd.OutOrStdout(), "findex %d returned %d\n", findex, result)
			return nil
		},
	}
	cmd.Flags().IntVar(&findex, "findex", 0, "function index to call")
	cmd.Flags().Uint64Var(&arg0, "a", 0, "first integer argument")
	cmd.Flags().Uint64Var(&arg1, "b", 0, "second integer argument")
	return cmd
}

func newDisasmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disasm",
		Short: "Compile the demo module and disassemble the emitted code",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, exe, _, err := compileDemo()
			if err != nil {
				return err
			}
			code := exe.Base()
			for off := 0; off+4 <= len(code); off += 4 {
				inst, derr := arm64asm.Decode(code[off : off+4])
				if derr != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%06x: <invalid>\n", off)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%06x: %s\n", off, inst.String())
			}
			return nil
		},
	}
}
