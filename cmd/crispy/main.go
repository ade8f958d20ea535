// Command crispy is Crispy's file-mode and interactive-shell entry
// point (§6). With no arguments it opens a line-edited `>>> ` shell over
// a persistent VM and Compiler; given a single file argument it compiles
// and runs that file once. Exit codes follow §6 exactly: 0 on success,
// 42 for a runtime error or a fatal condition, 43 for a compile error,
// 44 for anything else escaping compilation or execution, and a
// negative code for an I/O failure reading the source file.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/peterh/liner"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/crispy-lang/crispy/internal/compiler"
	"github.com/crispy-lang/crispy/internal/disasm"
	"github.com/crispy-lang/crispy/internal/object"
	"github.com/crispy-lang/crispy/internal/stdlib"
	"github.com/crispy-lang/crispy/internal/vm"
)

const (
	exitSuccess      = 0
	exitRuntimeError = 42
	exitCompileError = 43
	exitUnhandled    = 44
	exitIOFailure    = -1
)

func main() {
	app := cli.NewApp()
	app.Name = "crispy"
	app.Usage = "the Crispy scripting language"
	app.ArgsUsage = "[file]"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "disasm",
			Usage: "print bytecode disassembly before running",
		},
		cli.IntFlag{
			Name:  "gc-threshold",
			Value: object.InitialGCThreshold,
			Usage: "GC trigger threshold, in bytes allocated",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString(err.Error()))
		os.Exit(exitUnhandled)
	}
}

func run(ctx *cli.Context) error {
	if ctx.NArg() > 1 {
		fmt.Fprintln(os.Stderr, "usage: crispy [--disasm] [--gc-threshold N] [file]")
		os.Exit(exitIOFailure)
	}

	machine := vm.New(ctx.Int("gc-threshold"))
	globalFrame := object.NewFrame()
	interactive := ctx.NArg() == 0
	comp := compiler.New(globalFrame, machine.Interns(), interactive, stdlib.Names)
	stdlib.Register(machine, globalFrame)

	if interactive {
		runShell(ctx, machine, comp)
		return nil
	}

	runFile(ctx, machine, comp, ctx.Args().First())
	return nil
}

func runFile(ctx *cli.Context, machine *vm.VM, comp *compiler.Compiler, path string) {
	src, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("crispy: %s", err))
		os.Exit(exitIOFailure)
	}

	exitCode, unhandled := compileAndRun(ctx, machine, comp, string(src))
	if unhandled != nil {
		fmt.Fprintln(os.Stderr, color.RedString("crispy: internal error: %s", unhandled))
		os.Exit(exitUnhandled)
	}
	os.Exit(exitCode)
}

// compileAndRun compiles and executes src, returning the exit code §6
// assigns to the outcome. unhandled is non-nil only for a panic that
// escaped both the compiler's and the VM's own recover (a genuine bug,
// not a modeled failure), which the caller reports as exit 44.
func compileAndRun(ctx *cli.Context, machine *vm.VM, comp *compiler.Compiler, src string) (code int, unhandled error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				unhandled = e
				return
			}
			unhandled = fmt.Errorf("%v", r)
		}
	}()

	if err := comp.Compile(src); err != nil {
		var compileErr *compiler.CompileError
		if errors.As(err, &compileErr) {
			fmt.Fprintln(os.Stderr, color.YellowString(compileErr.Error()))
			return exitCompileError, nil
		}
		return 0, err
	}

	if ctx.Bool("disasm") {
		disasm.Frame(os.Stdout, "main", comp.GlobalFrame())
	}

	_, err := machine.Run(comp.GlobalFrame())
	return exitForRunError(err)
}

// exitForRunError maps a Run error to its §6 exit code. A nil error is
// success; an *vm.ExitError calls through to os.Exit directly since it
// already carries the exact code the script asked for.
func exitForRunError(err error) (int, error) {
	if err == nil {
		return exitSuccess, nil
	}
	var exitErr *vm.ExitError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.Code)
	}
	var runtimeErr *vm.RuntimeError
	if errors.As(err, &runtimeErr) {
		fmt.Fprintln(os.Stderr, color.RedString(runtimeErr.Error()))
		return exitRuntimeError, nil
	}
	var fatalErr *vm.FatalError
	if errors.As(err, &fatalErr) {
		fmt.Fprintln(os.Stderr, color.RedString("fatal: %s", fatalErr.Error()))
		return exitRuntimeError, nil
	}
	return 0, err
}

// runShell implements the interactive `>>> ` prompt loop (§6): one line
// of input compiles and runs immediately against the same Compiler and
// VM every prior line used, so declarations and GC state both persist
// for the life of the session. A compile or runtime error aborts only
// the offending line; a FatalError or exit/1 call ends the whole
// process, the same way they would in file mode.
func runShell(ctx *cli.Context, machine *vm.VM, comp *compiler.Compiler) {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		input, err := line.Prompt(">>> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				return
			}
			fmt.Fprintln(os.Stderr, color.RedString("crispy: %s", err))
			return
		}
		line.AppendHistory(input)

		if err := comp.CompileLine(input); err != nil {
			var compileErr *compiler.CompileError
			if errors.As(err, &compileErr) {
				fmt.Fprintln(os.Stderr, color.YellowString(compileErr.Error()))
				continue
			}
			fmt.Fprintln(os.Stderr, color.RedString("crispy: %s", err))
			continue
		}

		if ctx.Bool("disasm") {
			disasm.Frame(os.Stdout, "line", comp.GlobalFrame())
		}

		_, runErr := machine.Run(comp.GlobalFrame())
		if runErr == nil {
			continue
		}
		var exitErr *vm.ExitError
		if errors.As(runErr, &exitErr) {
			os.Exit(exitErr.Code)
		}
		var fatalErr *vm.FatalError
		if errors.As(runErr, &fatalErr) {
			fmt.Fprintln(os.Stderr, color.RedString("fatal: %s", fatalErr.Error()))
			os.Exit(exitRuntimeError)
		}
		var runtimeErr *vm.RuntimeError
		if errors.As(runErr, &runtimeErr) {
			fmt.Fprintln(os.Stderr, color.RedString(runtimeErr.Error()))
			continue
		}
		fmt.Fprintln(os.Stderr, color.RedString("crispy: %s", runErr))
	}
}
