package maincmd_test

import (
	"bytes"
	"context"
	"flag"
	"path/filepath"
	"testing"

	"github.com/mna/mainer"
	"github.com/stretchr/testify/require"

	"github.com/mna/aster/internal/filetest"
	"github.com/mna/aster/internal/maincmd"
)

var testUpdateMaincmdTests = flag.Bool("test.update-maincmd-tests", false, "If set, replace expected maincmd test results with actual results.")

// TestTokenize exercises the `tokenize` command end-to-end (source file on
// disk in, token dump on stdout out), checked against testdata/tokenize's
// golden files.
func TestTokenize(t *testing.T) {
	srcDir, resultDir := filepath.Join("testdata", "tokenize", "in"), filepath.Join("testdata", "tokenize", "out")

	for _, fi := range filetest.SourceFiles(t, srcDir, ".as") {
		t.Run(fi.Name(), func(t *testing.T) {
			var out, eout bytes.Buffer
			stdio := mainer.Stdio{Stdout: &out, Stderr: &eout}

			c := &maincmd.Cmd{}
			err := c.Tokenize(context.Background(), stdio, []string{filepath.Join(srcDir, fi.Name())})
			require.NoError(t, err)

			filetest.DiffOutput(t, fi, out.String(), resultDir, testUpdateMaincmdTests)
		})
	}
}

// TestDisassemble exercises the `disassemble` command, checking the printed
// bytecode listing against testdata/disassemble's `.disasm` golden files.
func TestDisassemble(t *testing.T) {
	srcDir, resultDir := filepath.Join("testdata", "disassemble", "in"), filepath.Join("testdata", "disassemble", "out")

	for _, fi := range filetest.SourceFiles(t, srcDir, ".as") {
		t.Run(fi.Name(), func(t *testing.T) {
			var out, eout bytes.Buffer
			stdio := mainer.Stdio{Stdout: &out, Stderr: &eout}

			c := &maincmd.Cmd{}
			path := filepath.Join(srcDir, fi.Name())
			err := c.Disassemble(context.Background(), stdio, []string{path})
			require.NoError(t, err)

			filetest.DiffDisassembly(t, fi, out.String(), resultDir, testUpdateMaincmdTests)
		})
	}
}

// TestRun exercises the `run` command's end-to-end script execution,
// checking printed stdout against testdata/run's golden files.
func TestRun(t *testing.T) {
	srcDir, resultDir := filepath.Join("testdata", "run", "in"), filepath.Join("testdata", "run", "out")

	for _, fi := range filetest.SourceFiles(t, srcDir, ".as") {
		t.Run(fi.Name(), func(t *testing.T) {
			var out, eout bytes.Buffer
			stdio := mainer.Stdio{Stdout: &out, Stderr: &eout}

			c := &maincmd.Cmd{}
			err := c.Run(context.Background(), stdio, []string{filepath.Join(srcDir, fi.Name())})
			require.NoError(t, err)

			filetest.DiffOutput(t, fi, out.String(), resultDir, testUpdateMaincmdTests)
		})
	}
}
