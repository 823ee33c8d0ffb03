package heap_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mna/aster/lang/compiler"
	"github.com/mna/aster/lang/heap"
	"github.com/mna/aster/lang/machine"
)

// TestStressGCKeepsRootsAlive compiles and runs a script that allocates
// strings, closures, and instances with GC stress mode on (collect on every
// allocation), exercising every MarkRoots implementation: the compiler chain
// while the script compiles on the stressed heap, then the VM's stack,
// frames, and open upvalues while it runs.
func TestStressGCKeepsRootsAlive(t *testing.T) {
	h := heap.New(heap.Config{StressGC: true}, "init")
	defer h.Teardown()

	src := `
class Box {
  init(v) {
    this.v = v;
  }
  get() {
    return this.v;
  }
}

fun makeAdder(n) {
  fun add(x) {
    return x + n;
  }
  return add;
}

var total = 0;
var i = 0;
while (i < 50) do {
  var b = Box("item" + "s");
  var add5 = makeAdder(i);
  total = total + add5(1);
  i = i + 1;
}
print total;
`
	res := compiler.Compile(src, h)
	require.Empty(t, res.Errors, "compile errors: %v", res.Errors)

	var stdout bytes.Buffer
	vm := machine.New(h, &stdout, &stdout, 0)
	closure := h.NewClosure(res.Function)
	err := vm.Run(context.Background(), closure)
	require.NoError(t, err)

	// sum_{i=0..49} (i+1) = 50 + sum_{i=0..49} i = 50 + 1225 = 1275
	assert.Equal(t, "1275\n", stdout.String())
}

func TestStringInterningIdentity(t *testing.T) {
	h := heap.New(heap.Config{}, "init")
	defer h.Teardown()

	a := h.CopyString([]byte("shared"))
	b := h.CopyString([]byte("shared"))
	assert.Same(t, a, b, "equal string contents must intern to the same object")

	c := h.CopyString([]byte("different"))
	assert.NotSame(t, a, c)
}

func TestCollectReclaimsUnreachableObjects(t *testing.T) {
	h := heap.New(heap.Config{}, "init")
	defer h.Teardown()

	h.CopyString([]byte("garbage"))
	before := h.BytesAllocated()
	h.Collect()
	after := h.BytesAllocated()
	assert.Less(t, after, before, "an unrooted string must be swept")
}
