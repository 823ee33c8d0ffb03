package debug_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mna/aster/lang/compiler"
	"github.com/mna/aster/lang/debug"
	"github.com/mna/aster/lang/heap"
)

func TestDisassembleLabelsOpcodes(t *testing.T) {
	h := heap.New(heap.Config{}, "init")
	defer h.Teardown()

	res := compiler.Compile(`
var x = 1 + 2;
print x;
`, h)
	require.Empty(t, res.Errors)

	var out strings.Builder
	debug.Disassemble(&out, res.Function.Chunk, "test chunk")

	got := out.String()
	assert.True(t, strings.HasPrefix(got, "== test chunk ==\n"))
	for _, want := range []string{"OP_CONSTANT", "OP_ADD", "OP_DEFINE_GLOBAL", "OP_GET_GLOBAL", "OP_PRINT", "OP_RETURN"} {
		assert.Contains(t, got, want, "expected %s in disassembly:\n%s", want, got)
	}
}

func TestDisassembleJumpTargets(t *testing.T) {
	h := heap.New(heap.Config{}, "init")
	defer h.Teardown()

	res := compiler.Compile(`
var x = 1;
if (x == 1) then print "a"; else print "b";
`, h)
	require.Empty(t, res.Errors)

	var out strings.Builder
	debug.Disassemble(&out, res.Function.Chunk, "branch")
	got := out.String()
	assert.Contains(t, got, "OP_JUMP_IF_FALSE")
	assert.Contains(t, got, "OP_JUMP ")
	assert.Contains(t, got, "->")
}
