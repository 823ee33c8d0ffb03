package machine_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mna/aster/lang/compiler"
	"github.com/mna/aster/lang/heap"
	"github.com/mna/aster/lang/machine"
)

// run compiles and executes src against a fresh heap/VM pair, returning
// stdout. It fails the test on any compile or runtime error.
func run(t *testing.T, src string) string {
	t.Helper()

	h := heap.New(heap.Config{}, "init")
	defer h.Teardown()

	res := compiler.Compile(src, h)
	require.Empty(t, res.Errors, "compile errors: %v", res.Errors)

	var stdout bytes.Buffer
	vm := machine.New(h, &stdout, &stdout, 0)

	closure := h.NewClosure(res.Function)
	err := vm.Run(context.Background(), closure)
	require.NoError(t, err)
	return stdout.String()
}

// runErr compiles and executes src, returning the runtime error (nil if
// none).
func runErr(t *testing.T, src string) error {
	t.Helper()

	h := heap.New(heap.Config{}, "init")
	defer h.Teardown()

	res := compiler.Compile(src, h)
	require.Empty(t, res.Errors)

	var stdout bytes.Buffer
	vm := machine.New(h, &stdout, &stdout, 0)
	closure := h.NewClosure(res.Function)
	return vm.Run(context.Background(), closure)
}

func TestArithmeticAndPrint(t *testing.T) {
	out := run(t, `print 1 + 2 * 3;`)
	assert.Equal(t, "7\n", out)
}

func TestStringConcatenation(t *testing.T) {
	out := run(t, `print "hello" + " " + "world";`)
	assert.Equal(t, "hello world\n", out)
}

func TestGlobalsAndLocals(t *testing.T) {
	out := run(t, `
var x = 10;
{
  var y = 20;
  print x + y;
}
print x;
`)
	assert.Equal(t, "30\n10\n", out)
}

func TestIfElfElse(t *testing.T) {
	out := run(t, `
fun classify(n) {
  if (n == 0) then print "zero";
  elf (n < 0) then print "negative";
  else print "positive";
}
classify(0);
classify(-1);
classify(5);
`)
	assert.Equal(t, "zero\nnegative\npositive\n", out)
}

func TestWhileLoop(t *testing.T) {
	out := run(t, `
var i = 0;
while (i < 3) do {
  print i;
  i = i + 1;
}
`)
	assert.Equal(t, "0\n1\n2\n", out)
}

func TestRepeatUntilRunsAtLeastOnce(t *testing.T) {
	out := run(t, `
var i = 0;
repeat {
  print i;
  i = i + 1;
} until (i >= 1);
`)
	assert.Equal(t, "0\n", out)
}

func TestForLoopBreakContinue(t *testing.T) {
	out := run(t, `
for (var i = 0; i < 5; i = i + 1) {
  if (i == 1) then continue;
  if (i == 3) then break;
  print i;
}
`)
	assert.Equal(t, "0\n2\n", out)
}

func TestSwitch(t *testing.T) {
	out := run(t, `
fun name(n) {
  switch (n):
    case 1: print "one";
    case 2: print "two";
    default: print "other";
}
name(1);
name(2);
name(99);
`)
	assert.Equal(t, "one\ntwo\nother\n", out)
}

func TestClosureCapturesUpvalue(t *testing.T) {
	out := run(t, `
fun makeCounter() {
  var count = 0;
  fun increment() {
    count = count + 1;
    print count;
  }
  return increment;
}
var counter = makeCounter();
counter();
counter();
counter();
`)
	assert.Equal(t, "1\n2\n3\n", out)
}

func TestClassesInheritanceAndSuper(t *testing.T) {
	out := run(t, `
class Animal {
  init(name) {
    this.name = name;
  }
  speak() {
    print this.name + " makes a sound";
  }
}
class Dog < Animal {
  speak() {
    super.speak();
    print this.name + " barks";
  }
}
var d = Dog("Rex");
d.speak();
`)
	assert.Equal(t, "Rex makes a sound\nRex barks\n", out)
}

func TestWordFormSynonyms(t *testing.T) {
	out := run(t, `
var x assigned 5;
if (x equals 5) then print "yes";
`)
	assert.Equal(t, "yes\n", out)
}

func TestRuntimeErrorOnUndefinedGlobal(t *testing.T) {
	err := runErr(t, `print undefined_thing;`)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "Undefined") || strings.Contains(err.Error(), "undefined"))
}

func TestRuntimeErrorTypeMismatch(t *testing.T) {
	err := runErr(t, `print 1 + "x";`)
	require.Error(t, err)
}

func TestNativeClock(t *testing.T) {
	out := run(t, `print clock() >= 0;`)
	assert.Equal(t, "true\n", out)
}
