package maincmd

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/mna/mainer"

	"github.com/mna/aster/lang/compiler"
	"github.com/mna/aster/lang/heap"
	"github.com/mna/aster/lang/machine"
)

// Run compiles and executes one script, or starts a line-at-a-time REPL
// when no path is given, per spec.md §6's "no script / one script" CLI
// contract.
func (c *Cmd) Run(ctx context.Context, stdio mainer.Stdio, args []string) error {
	rt, err := runtimeConfig(c.ConfigPath)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		return repl(ctx, stdio, rt)
	}
	return runFile(ctx, stdio, rt, args[0])
}

func newVM(stdio mainer.Stdio, rt runtimeCfg) (*heap.Heap, *machine.VM) {
	h := heap.New(heap.Config{
		GrowthFactor: rt.GCGrowthFactor,
		StressGC:     rt.GCStress,
		LogGC:        rt.GCLog,
		Log:          stdio.Stderr,
	}, "init")
	vm := machine.New(h, stdio.Stdout, stdio.Stderr, rt.FramesMax)
	return h, vm
}

func runFile(ctx context.Context, stdio mainer.Stdio, rt runtimeCfg, path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	h, vm := newVM(stdio, rt)
	defer h.Teardown()

	res := compiler.Compile(string(src), h)
	if len(res.Errors) > 0 {
		for _, e := range res.Errors {
			fmt.Fprintln(stdio.Stderr, e)
		}
		return &compileError{msg: fmt.Sprintf("%d compile error(s)", len(res.Errors))}
	}

	closure := h.NewClosure(res.Function)
	if err := vm.Run(ctx, closure); err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return &scriptRuntimeError{msg: err.Error()}
	}
	return nil
}

// repl reads one line at a time from stdio.Stdin, compiling and running
// each as its own top-level script against a single long-lived heap and VM
// so globals and interned strings persist across lines.
func repl(ctx context.Context, stdio mainer.Stdio, rt runtimeCfg) error {
	h, vm := newVM(stdio, rt)
	defer h.Teardown()

	sc := bufio.NewScanner(stdio.Stdin)
	for {
		fmt.Fprint(stdio.Stdout, "> ")
		if !sc.Scan() {
			return sc.Err()
		}
		line := sc.Text()
		if line == "" {
			continue
		}

		res := compiler.Compile(line, h)
		if len(res.Errors) > 0 {
			for _, e := range res.Errors {
				fmt.Fprintln(stdio.Stderr, e)
			}
			continue
		}

		closure := h.NewClosure(res.Function)
		if err := vm.Run(ctx, closure); err != nil {
			fmt.Fprintln(stdio.Stderr, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}
