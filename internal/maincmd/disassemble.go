package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mna/mainer"

	"github.com/mna/aster/lang/compiler"
	"github.com/mna/aster/lang/debug"
	"github.com/mna/aster/lang/heap"
)

// Disassemble compiles each file (no execution) and prints its bytecode
// listing, grounded on spec.md §6.3's debug collaborator.
func (c *Cmd) Disassemble(_ context.Context, stdio mainer.Stdio, args []string) error {
	rt, err := runtimeConfig(c.ConfigPath)
	if err != nil {
		return err
	}

	var failed bool
	for _, path := range args {
		if err := disassembleFile(stdio, rt, path); err != nil {
			fmt.Fprintf(stdio.Stderr, "%s: %s\n", path, err)
			failed = true
		}
	}
	if failed {
		return &compileError{}
	}
	return nil
}

func disassembleFile(stdio mainer.Stdio, rt runtimeCfg, path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	h := heap.New(heap.Config{GrowthFactor: rt.GCGrowthFactor, StressGC: rt.GCStress}, "init")
	defer h.Teardown()

	res := compiler.Compile(string(src), h)
	if len(res.Errors) > 0 {
		for _, e := range res.Errors {
			fmt.Fprintln(stdio.Stderr, e)
		}
		return fmt.Errorf("%d compile error(s)", len(res.Errors))
	}

	name := path
	debug.Disassemble(stdio.Stdout, res.Function.Chunk, name)
	return nil
}
