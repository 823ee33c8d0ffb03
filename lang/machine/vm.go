// Package machine implements the stack-based virtual machine of spec.md
// §4.3: call frames, the value stack, globals, open upvalues, and the
// opcode dispatch loop that drives the heap's allocator and collector.
// Structurally it follows the teacher's own lang/machine — a Thread-like
// driver holding a call-frame stack and running a single dispatch loop that
// reports errors rather than panicking — adapted from the teacher's
// register-ish Starlark machine to spec.md's clox-derived call-frame model.
package machine

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/dolthub/swiss"

	"github.com/mna/aster/lang/compiler"
	"github.com/mna/aster/lang/heap"
	"github.com/mna/aster/lang/table"
	"github.com/mna/aster/lang/value"
)

// defaultFramesMax is used when New is given a non-positive capacity.
const defaultFramesMax = 64

const stackSlotsPerFrame = 256

// callFrame is spec.md §3's CallFrame: a reference to the executing
// closure, an instruction pointer into its chunk, and the value-stack index
// of slot 0 for this call.
type callFrame struct {
	closure *value.Closure
	ip      int
	base    int
}

// VM is the virtual machine: a fixed-capacity value stack and call-frame
// stack (preallocated so that pointers handed out by captureUpvalue into
// the stack array never move), the globals table, the open-upvalue list
// (head of a singly-linked list ordered by descending stack slot), and the
// heap it allocates from.
type VM struct {
	h      *heap.Heap
	stdout io.Writer
	stderr io.Writer

	stack    []value.Value
	stackTop int

	frames     []callFrame
	frameCount int

	framesMax int

	globals    *table.Table
	openUpvals *value.Upvalue

	// natives is the native-function registry (SPEC_FULL.md §6.6): a fast
	// general-purpose map with none of the intern table's identity
	// invariants, so unlike the core string/global/method/field tables it is
	// free to be a library map rather than hand-rolled.
	natives *swiss.Map[string, *value.Native]

	ctx       context.Context
	cancelled atomic.Bool
}

var _ heap.RootSource = (*VM)(nil)

// New creates a VM bound to h, with room for framesMax nested calls
// (internal/config's Runtime.FramesMax; a non-positive value falls back to
// defaultFramesMax). print writes to stdout; runtime diagnostics are
// returned as errors (the caller decides where to print them, e.g. the
// CLI's stderr). Either writer may be nil, in which case output is
// discarded. The value stack and frame array are preallocated to their
// final capacity so pointers captureUpvalue hands out into the stack never
// go stale on growth.
func New(h *heap.Heap, stdout, stderr io.Writer, framesMax int) *VM {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	if framesMax <= 0 {
		framesMax = defaultFramesMax
	}
	vm := &VM{
		h:         h,
		stdout:    stdout,
		stderr:    stderr,
		framesMax: framesMax,
		stack:     make([]value.Value, framesMax*stackSlotsPerFrame),
		frames:    make([]callFrame, framesMax),
		globals:   table.New(),
		natives:   swiss.NewMap[string, *value.Native](8),
	}
	h.SetVMRoots(vm)
	vm.defineNatives()
	return vm
}

// MarkRoots marks every value reachable directly from VM-owned state, per
// spec.md §4.5 step 1: the live portion of the value stack, every call
// frame's closure, every open upvalue, and all keys/values in globals.
func (vm *VM) MarkRoots(h *heap.Heap) {
	for i := 0; i < vm.stackTop; i++ {
		h.MarkValue(vm.stack[i])
	}
	for i := 0; i < vm.frameCount; i++ {
		h.MarkObject(vm.frames[i].closure)
	}
	for u := vm.openUpvals; u != nil; u = u.NextOpen {
		h.MarkObject(u)
	}
	vm.globals.Mark(h.MarkValue, h.MarkObject)
	vm.natives.Iter(func(_ string, n *value.Native) bool {
		h.MarkObject(n)
		return true
	})
}

// --- stack primitives ----------------------------------------------------

func (vm *VM) push(v value.Value) {
	vm.stack[vm.stackTop] = v
	vm.stackTop++
}

func (vm *VM) pop() value.Value {
	vm.stackTop--
	return vm.stack[vm.stackTop]
}

func (vm *VM) peek(distance int) value.Value {
	return vm.stack[vm.stackTop-1-distance]
}

func (vm *VM) resetStack() {
	vm.stackTop = 0
	vm.frameCount = 0
	vm.openUpvals = nil
}

// --- entry point -----------------------------------------------------------

// Run interprets closure — normally the top-level script wrapped in a
// Closure by the caller once compilation succeeds — as a fresh program: the
// value stack, call frames, and open upvalues are reset first while globals
// are kept, so a single VM may be reused across REPL lines.
// ctx bounds execution: spec.md §5 exposes no suspension points to the
// program itself, but the ambient CLI layer (SPEC_FULL.md §6.1) wires
// mainer.CancelOnSignal's context here so Ctrl-C aborts a runaway script.
func (vm *VM) Run(ctx context.Context, closure *value.Closure) error {
	if ctx == nil {
		ctx = context.Background()
	}
	vm.resetStack()
	vm.cancelled.Store(false)
	vm.ctx = ctx

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			vm.cancelled.Store(true)
		case <-done:
		}
	}()
	defer close(done)

	vm.push(value.Obj_(closure))
	if err := vm.call(closure, 0); err != nil {
		return err
	}
	return vm.run()
}

// run is the single dispatch loop spec.md §4.3 describes: one opcode read
// from the current frame's ip per iteration. The frame pointer is
// re-fetched at the top of every iteration rather than cached across
// CALL/RETURN, since those opcodes change which frame is current; the
// frames array itself never reallocates (preallocated to framesMax) so
// pointers into it stay valid for the lifetime of the run.
func (vm *VM) run() error {
	for {
		if vm.cancelled.Load() {
			return vm.runtimeErr("execution cancelled")
		}

		frame := &vm.frames[vm.frameCount-1]
		chunk := frame.closure.Function.Chunk
		code := chunk.CodeBytes()
		constants := chunk.Constants()

		op := compiler.OpCode(code[frame.ip])
		frame.ip++

		switch op {
		case compiler.OpConstant:
			idx := code[frame.ip]
			frame.ip++
			vm.push(constants[idx])

		case compiler.OpNull:
			vm.push(value.Null_())
		case compiler.OpTrue:
			vm.push(value.Bool_(true))
		case compiler.OpFalse:
			vm.push(value.Bool_(false))

		case compiler.OpPop:
			vm.pop()

		case compiler.OpGetLocal:
			slot := code[frame.ip]
			frame.ip++
			vm.push(vm.stack[frame.base+int(slot)])

		case compiler.OpSetLocal:
			slot := code[frame.ip]
			frame.ip++
			vm.stack[frame.base+int(slot)] = vm.peek(0)

		case compiler.OpGetGlobal:
			idx := code[frame.ip]
			frame.ip++
			name := constants[idx].AsString()
			v, ok := vm.globals.Get(name)
			if !ok {
				return vm.runtimeErr("Undefined variable '%s'.", name.Bytes)
			}
			vm.push(v)

		case compiler.OpDefineGlobal:
			idx := code[frame.ip]
			frame.ip++
			name := constants[idx].AsString()
			vm.globals.Set(name, vm.peek(0))
			vm.pop()

		case compiler.OpSetGlobal:
			idx := code[frame.ip]
			frame.ip++
			name := constants[idx].AsString()
			if vm.globals.Set(name, vm.peek(0)) {
				// the key was not already present: undo the insert, it is not a
				// definition.
				vm.globals.Delete(name)
				return vm.runtimeErr("Undefined variable '%s'.", name.Bytes)
			}

		case compiler.OpGetUpvalue:
			idx := code[frame.ip]
			frame.ip++
			vm.push(frame.closure.Upvalues[idx].Get())

		case compiler.OpSetUpvalue:
			idx := code[frame.ip]
			frame.ip++
			frame.closure.Upvalues[idx].Set(vm.peek(0))

		case compiler.OpGetProperty:
			idx := code[frame.ip]
			frame.ip++
			name := constants[idx].AsString()
			recv := vm.peek(0)
			inst, ok := asInstance(recv)
			if !ok {
				return vm.runtimeErr("Only instances have properties.")
			}
			if v, ok := inst.Fields.GetField(name); ok {
				vm.pop()
				vm.push(v)
			} else if err := vm.bindMethod(inst.Class, name); err != nil {
				return err
			}

		case compiler.OpSetProperty:
			idx := code[frame.ip]
			frame.ip++
			name := constants[idx].AsString()
			recv := vm.peek(1)
			inst, ok := asInstance(recv)
			if !ok {
				return vm.runtimeErr("Only instances have fields.")
			}
			inst.Fields.SetField(name, vm.peek(0))
			v := vm.pop()
			vm.pop()
			vm.push(v)

		case compiler.OpCloseUpvalue:
			vm.closeUpvalues(vm.stackTop - 1)
			vm.pop()

		case compiler.OpEqual:
			b := vm.pop()
			a := vm.pop()
			vm.push(value.Bool_(value.Equal(a, b)))

		case compiler.OpSwitchEqual:
			b := vm.pop()
			a := vm.peek(0)
			vm.push(value.Bool_(value.Equal(a, b)))

		case compiler.OpGreater:
			if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
				return vm.runtimeErr("Operands must be numbers.")
			}
			b := vm.pop().AsNumber()
			a := vm.pop().AsNumber()
			vm.push(value.Bool_(a > b))

		case compiler.OpLess:
			if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
				return vm.runtimeErr("Operands must be numbers.")
			}
			b := vm.pop().AsNumber()
			a := vm.pop().AsNumber()
			vm.push(value.Bool_(a < b))

		case compiler.OpAdd:
			a, b := vm.peek(1), vm.peek(0)
			switch {
			case a.IsNumber() && b.IsNumber():
				vm.pop()
				vm.pop()
				vm.push(value.Number_(a.AsNumber() + b.AsNumber()))
			case a.IsString() && b.IsString():
				// a and b stay on the stack (peeked, not popped) until the
				// concatenated string is built and pushed, so they remain
				// GC-reachable across TakeString's own allocation.
				as, bs := a.AsString(), b.AsString()
				buf := make([]byte, 0, len(as.Bytes)+len(bs.Bytes))
				buf = append(buf, as.Bytes...)
				buf = append(buf, bs.Bytes...)
				result := vm.h.TakeString(buf)
				vm.pop()
				vm.pop()
				vm.push(value.Obj_(result))
			default:
				return vm.runtimeErr("Operands must be two numbers or two strings.")
			}

		case compiler.OpSubtract:
			if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
				return vm.runtimeErr("Operands must be numbers.")
			}
			b := vm.pop().AsNumber()
			a := vm.pop().AsNumber()
			vm.push(value.Number_(a - b))

		case compiler.OpMultiply:
			if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
				return vm.runtimeErr("Operands must be numbers.")
			}
			b := vm.pop().AsNumber()
			a := vm.pop().AsNumber()
			vm.push(value.Number_(a * b))

		case compiler.OpDivide:
			if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
				return vm.runtimeErr("Operands must be numbers.")
			}
			b := vm.pop().AsNumber()
			a := vm.pop().AsNumber()
			vm.push(value.Number_(a / b))

		case compiler.OpModulo:
			if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
				return vm.runtimeErr("Operands must be numbers.")
			}
			b := int64(vm.pop().AsNumber())
			a := int64(vm.pop().AsNumber())
			if b == 0 {
				return vm.runtimeErr("Modulo by zero.")
			}
			vm.push(value.Number_(float64(a % b)))

		case compiler.OpNot:
			vm.push(value.Bool_(vm.pop().IsFalsey()))

		case compiler.OpNegate:
			if !vm.peek(0).IsNumber() {
				return vm.runtimeErr("Operand must be a number.")
			}
			vm.push(value.Number_(-vm.pop().AsNumber()))

		case compiler.OpPrint:
			fmt.Fprintln(vm.stdout, vm.pop().String())

		case compiler.OpJump:
			hi, lo := code[frame.ip], code[frame.ip+1]
			frame.ip += 2
			frame.ip += int(hi)<<8 | int(lo)

		case compiler.OpJumpIfFalse:
			hi, lo := code[frame.ip], code[frame.ip+1]
			frame.ip += 2
			if vm.peek(0).IsFalsey() {
				frame.ip += int(hi)<<8 | int(lo)
			}

		case compiler.OpLoop:
			hi, lo := code[frame.ip], code[frame.ip+1]
			frame.ip += 2
			frame.ip -= int(hi)<<8 | int(lo)

		case compiler.OpLoopIfFalse:
			hi, lo := code[frame.ip], code[frame.ip+1]
			frame.ip += 2
			if vm.peek(0).IsFalsey() {
				frame.ip -= int(hi)<<8 | int(lo)
			}
			vm.pop()

		case compiler.OpLoopIfTrue:
			hi, lo := code[frame.ip], code[frame.ip+1]
			frame.ip += 2
			if !vm.peek(0).IsFalsey() {
				frame.ip -= int(hi)<<8 | int(lo)
			}
			vm.pop()

		case compiler.OpCall:
			argc := int(code[frame.ip])
			frame.ip++
			if err := vm.callValue(vm.peek(argc), argc); err != nil {
				return err
			}

		case compiler.OpInvoke:
			idx := code[frame.ip]
			frame.ip++
			argc := int(code[frame.ip])
			frame.ip++
			name := constants[idx].AsString()
			if err := vm.invoke(name, argc); err != nil {
				return err
			}

		case compiler.OpSuperInvoke:
			idx := code[frame.ip]
			frame.ip++
			argc := int(code[frame.ip])
			frame.ip++
			name := constants[idx].AsString()
			superclass, ok := vm.pop().AsObj().(*value.Class)
			if !ok {
				return vm.runtimeErr("Superclass must be a class.")
			}
			if err := vm.invokeFromClass(superclass, name, argc); err != nil {
				return err
			}

		case compiler.OpClosure:
			idx := code[frame.ip]
			frame.ip++
			fn := constants[idx].AsObj().(*value.Function)
			closure := vm.h.NewClosure(fn)
			for i := 0; i < fn.UpvalueCount; i++ {
				isLocal := code[frame.ip]
				frame.ip++
				index := code[frame.ip]
				frame.ip++
				if isLocal != 0 {
					closure.Upvalues[i] = vm.captureUpvalue(frame.base + int(index))
				} else {
					closure.Upvalues[i] = frame.closure.Upvalues[index]
				}
			}
			vm.push(value.Obj_(closure))

		case compiler.OpReturn:
			result := vm.pop()
			vm.closeUpvalues(frame.base)
			vm.frameCount--
			if vm.frameCount == 0 {
				vm.pop() // the script's own closure
				return nil
			}
			vm.stackTop = frame.base
			vm.push(result)

		case compiler.OpClass:
			idx := code[frame.ip]
			frame.ip++
			name := constants[idx].AsString()
			vm.push(value.Obj_(vm.h.NewClass(name)))

		case compiler.OpInherit:
			superVal := vm.peek(1)
			superclass, ok := asClass(superVal)
			if !ok {
				return vm.runtimeErr("Superclass must be a class.")
			}
			subclass := vm.peek(0).AsObj().(*value.Class)
			subclass.Methods.CopyMethodsFrom(superclass.Methods)
			vm.pop() // the subclass; endScope() pops the "super" local separately

		case compiler.OpMethod:
			idx := code[frame.ip]
			frame.ip++
			name := constants[idx].AsString()
			method := vm.peek(0).AsObj().(*value.Closure)
			class := vm.peek(1).AsObj().(*value.Class)
			class.Methods.SetMethod(name, method)
			vm.pop()

		case compiler.OpGetSuper:
			idx := code[frame.ip]
			frame.ip++
			name := constants[idx].AsString()
			superclass, ok := vm.pop().AsObj().(*value.Class)
			if !ok {
				return vm.runtimeErr("Superclass must be a class.")
			}
			if err := vm.bindMethod(superclass, name); err != nil {
				return err
			}

		default:
			panic(fmt.Sprintf("unimplemented opcode: %s", op))
		}
	}
}

func asInstance(v value.Value) (*value.Instance, bool) {
	if !v.IsObj() {
		return nil, false
	}
	i, ok := v.AsObj().(*value.Instance)
	return i, ok
}

func asClass(v value.Value) (*value.Class, bool) {
	if !v.IsObj() {
		return nil, false
	}
	c, ok := v.AsObj().(*value.Class)
	return c, ok
}

// --- calls -----------------------------------------------------------------

// callValue is spec.md §4.3's callValue: dispatch on the callee's runtime
// kind. Every path either returns nil (call established or completed
// in-place) or a *RuntimeError — there is no silent fallthrough for
// non-callable values (spec.md §9's open question about callValue falling
// through without returning false does not apply to this Go rendition,
// since every branch here ends in an explicit return).
func (vm *VM) callValue(callee value.Value, argc int) error {
	if callee.IsObj() {
		switch c := callee.AsObj().(type) {
		case *value.Closure:
			return vm.call(c, argc)
		case *value.Native:
			args := vm.stack[vm.stackTop-argc : vm.stackTop]
			result, err := c.Fn(args)
			if err != nil {
				return vm.runtimeErr("%s", err.Error())
			}
			vm.stackTop -= argc + 1
			vm.push(result)
			return nil
		case *value.Class:
			inst := vm.h.NewInstance(c)
			vm.stack[vm.stackTop-argc-1] = value.Obj_(inst)
			if init, ok := c.Methods.GetMethod(vm.h.InitString()); ok {
				return vm.call(init, argc)
			} else if argc != 0 {
				return vm.runtimeErr("Expected 0 arguments but got %d.", argc)
			}
			return nil
		case *value.BoundMethod:
			vm.stack[vm.stackTop-argc-1] = c.Receiver
			return vm.call(c.Method, argc)
		}
	}
	return vm.runtimeErr("Can only call functions and classes.")
}

func (vm *VM) call(closure *value.Closure, argc int) error {
	if argc != closure.Function.Arity {
		return vm.runtimeErr("Expected %d arguments but got %d.", closure.Function.Arity, argc)
	}
	if vm.frameCount >= vm.framesMax {
		return vm.runtimeErr("Stack overflow.")
	}
	vm.frames[vm.frameCount] = callFrame{closure: closure, base: vm.stackTop - argc - 1}
	vm.frameCount++
	return nil
}

func (vm *VM) invoke(name *value.String, argc int) error {
	receiver := vm.peek(argc)
	inst, ok := asInstance(receiver)
	if !ok {
		return vm.runtimeErr("Only instances have methods.")
	}
	if v, ok := inst.Fields.GetField(name); ok {
		vm.stack[vm.stackTop-argc-1] = v
		return vm.callValue(v, argc)
	}
	return vm.invokeFromClass(inst.Class, name, argc)
}

func (vm *VM) invokeFromClass(class *value.Class, name *value.String, argc int) error {
	method, ok := class.Methods.GetMethod(name)
	if !ok {
		return vm.runtimeErr("Undefined property '%s'.", name.Bytes)
	}
	return vm.call(method, argc)
}

func (vm *VM) bindMethod(class *value.Class, name *value.String) error {
	method, ok := class.Methods.GetMethod(name)
	if !ok {
		return vm.runtimeErr("Undefined property '%s'.", name.Bytes)
	}
	bound := vm.h.NewBoundMethod(vm.peek(0), method)
	vm.pop()
	vm.push(value.Obj_(bound))
	return nil
}

// --- upvalues ----------------------------------------------------------

// captureUpvalue is spec.md §4.3's captureUpvalue: the open-upvalue list is
// kept sorted by descending stack slot so a linear scan finds either an
// existing upvalue for this slot or the correct splice point for a new one.
func (vm *VM) captureUpvalue(slot int) *value.Upvalue {
	var prev *value.Upvalue
	up := vm.openUpvals
	for up != nil && up.Slot > slot {
		prev = up
		up = up.NextOpen
	}
	if up != nil && up.Slot == slot {
		return up
	}

	created := vm.h.NewUpvalue(slot, &vm.stack[slot])
	created.NextOpen = up
	if prev == nil {
		vm.openUpvals = created
	} else {
		prev.NextOpen = created
	}
	return created
}

// closeUpvalues closes every open upvalue at or above stack index from,
// copying the live stack value into the upvalue's own cell before it goes
// out of scope or the frame returns.
func (vm *VM) closeUpvalues(from int) {
	for vm.openUpvals != nil && vm.openUpvals.Slot >= from {
		u := vm.openUpvals
		u.Close()
		vm.openUpvals = u.NextOpen
	}
}

// --- errors --------------------------------------------------------------

// runtimeErr builds a *RuntimeError with a stack trace walked from the
// innermost frame outward (spec.md §7), then resets the VM's stacks so it
// is ready for a fresh Run call.
func (vm *VM) runtimeErr(format string, args ...any) *RuntimeError {
	msg := fmt.Sprintf(format, args...)
	trace := make([]string, 0, vm.frameCount)
	for i := vm.frameCount - 1; i >= 0; i-- {
		fr := &vm.frames[i]
		fn := fr.closure.Function
		line := fn.Chunk.LineFor(fr.ip - 1)
		name := "script"
		if fn.Name != nil {
			name = fmt.Sprintf("%s(%d)", string(fn.Name.Bytes), fn.Arity)
		}
		trace = append(trace, fmt.Sprintf("[line %d] in %s", line, name))
	}
	vm.resetStack()
	return &RuntimeError{Message: msg, Trace: trace}
}
