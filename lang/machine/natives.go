package machine

import (
	"time"

	"github.com/mna/aster/lang/value"
)

// processStart anchors the clock() native (spec.md §6: "clock() returns
// seconds since process start as a number").
var processStart = time.Now()

// defineNatives installs every host-provided native function. spec.md §1
// names exactly one: clock.
func (vm *VM) defineNatives() {
	vm.defineNative("clock", func(_ []value.Value) (value.Value, error) {
		return value.Number_(time.Since(processStart).Seconds()), nil
	})
}

// defineNative registers fn both as a global binding (so script code calls
// it like any other function) and in the native-function registry. The
// registry is what keeps natives reachable through a GC cycle even if a
// script reassigns or deletes the global of the same name — clox anchors
// natives only via vm.globals, but this design's swiss.Map registry (see
// SPEC_FULL.md §6.6) doubles as that permanent root.
func (vm *VM) defineNative(name string, fn value.NativeFn) {
	n := vm.h.NewNative(name, fn)
	vm.natives.Put(name, n)
	vm.globals.Set(vm.h.CopyString([]byte(name)), value.Obj_(n))
}
