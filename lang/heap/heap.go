// Package heap is the allocator, string interner, and tracing mark-sweep
// garbage collector: the heap manager of spec.md §4.5. It is the single
// mutator of the object list, the intern table, and the byte-allocation
// counters that drive collection.
package heap

import (
	"fmt"
	"io"

	"github.com/mna/aster/lang/table"
	"github.com/mna/aster/lang/value"
)

// fnv-1a constants, matching spec.md §4.5 exactly.
const (
	fnvOffset = 2166136261
	fnvPrime  = 16777619
)

func hashBytes(b []byte) uint32 {
	h := uint32(fnvOffset)
	for _, c := range b {
		h ^= uint32(c)
		h *= fnvPrime
	}
	return h
}

// RootSource is implemented by whatever currently holds live references into
// the heap — the VM while running, the active compiler chain while
// compiling — and invoked during the mark phase of a collection.
type RootSource interface {
	MarkRoots(h *Heap)
}

// Config holds the GC tunables sourced from internal/config.
type Config struct {
	GrowthFactor int  // nextGC = bytesAllocated * GrowthFactor, default 2
	StressGC     bool // collect on every allocation, for root-marking tests
	LogGC        bool
	Log          io.Writer
}

// Heap owns every allocated object, the string intern table, and GC
// bookkeeping.
type Heap struct {
	objects value.Obj // head of the intrusive "every live object" list
	strings *table.Table
	initStr *value.String

	bytesAllocated int64
	nextGC         int64
	growthFactor   int
	stressGC       bool
	logGC          bool
	log            io.Writer

	gray []value.Obj

	vmRoots       RootSource
	compilerRoots RootSource

	// temp holds values that are momentarily live only because an allocation
	// routine is still assembling them (e.g. interning a freshly concatenated
	// string): spec.md §4.5 and §9 require these to stay reachable across any
	// GC a nested allocation might trigger, since they are not yet reachable
	// from any VM/compiler root.
	temp []value.Value
}

// PushTemp/PopTemp bracket an allocation sequence that must survive a GC
// triggered partway through it. The caller (the heap's own interning path)
// pushes a partially-built value before making further allocations and pops
// it once it has been stored in the intern table.
func (h *Heap) PushTemp(v value.Value) { h.temp = append(h.temp, v) }
func (h *Heap) PopTemp()               { h.temp = h.temp[:len(h.temp)-1] }

const defaultNextGC = 1024 * 1024

// New creates an empty heap. initStringName is interned immediately so the
// sentinel used for constructor lookup (spec.md §3, "initString sentinel")
// is always available.
func New(cfg Config, initStringName string) *Heap {
	h := &Heap{
		strings:      table.New(),
		nextGC:       defaultNextGC,
		growthFactor: cfg.GrowthFactor,
		stressGC:     cfg.StressGC,
		logGC:        cfg.LogGC,
		log:          cfg.Log,
	}
	if h.growthFactor <= 0 {
		h.growthFactor = 2
	}
	h.initStr = h.CopyString([]byte(initStringName))
	return h
}

// InitString returns the reserved constructor-name sentinel.
func (h *Heap) InitString() *value.String { return h.initStr }

// SetVMRoots/SetCompilerRoots register the current root sources. Either may
// be nil (e.g. no compiler is active once compilation finishes).
func (h *Heap) SetVMRoots(rs RootSource)       { h.vmRoots = rs }
func (h *Heap) SetCompilerRoots(rs RootSource) { h.compilerRoots = rs }

func (h *Heap) track(o value.Obj) {
	value.SetNext(o, h.objects)
	h.objects = o
}

func (h *Heap) account(size int64) {
	h.bytesAllocated += size
	if h.stressGC || h.bytesAllocated > h.nextGC {
		h.Collect()
	}
}

// CopyString interns a byte slice: bytes are copied, and an existing
// interned string is reused if one already matches.
func (h *Heap) CopyString(b []byte) *value.String {
	hash := hashBytes(b)
	if s, ok := h.strings.FindString(b, hash); ok {
		return s
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return h.internNew(cp, hash)
}

// TakeString interns an already-allocated byte slice, taking ownership: if
// an interned copy already exists, the caller's slice is discarded (left to
// the Go GC) rather than copied again.
func (h *Heap) TakeString(b []byte) *value.String {
	hash := hashBytes(b)
	if s, ok := h.strings.FindString(b, hash); ok {
		return s
	}
	return h.internNew(b, hash)
}

func (h *Heap) internNew(b []byte, hash uint32) *value.String {
	s := &value.String{Bytes: b, Hash: hash}
	h.track(s)
	// s is reachable from no root yet (the intern table is weak, not a root),
	// so account's stress-GC check could sweep it out from under us before
	// strings.Set ever runs. Hold it on the temp-root stack for the duration,
	// mirroring clox's push(OBJ_VAL(string)) / tableSet / pop() sequence.
	h.PushTemp(value.Obj_(s))
	h.account(int64(len(b)) + 32)
	h.strings.Set(s, value.Null_())
	h.PopTemp()
	return s
}

// NewFunction allocates an uninitialized Function object; the compiler fills
// in Arity/UpvalueCount/Chunk/Name once compilation of that function body
// completes.
func (h *Heap) NewFunction() *value.Function {
	f := &value.Function{}
	h.track(f)
	h.account(64)
	return f
}

// NewNative wraps a host callable.
func (h *Heap) NewNative(name string, fn value.NativeFn) *value.Native {
	n := &value.Native{Name: name, Fn: fn}
	h.track(n)
	h.account(32)
	return n
}

// NewClosure allocates a closure over fn with fn.UpvalueCount empty upvalue
// slots.
func (h *Heap) NewClosure(fn *value.Function) *value.Closure {
	c := &value.Closure{Function: fn, Upvalues: make([]*value.Upvalue, fn.UpvalueCount)}
	h.track(c)
	h.account(int64(24 + 8*fn.UpvalueCount))
	return c
}

// NewUpvalue allocates an open upvalue pointing at slot/location.
func (h *Heap) NewUpvalue(slot int, location *value.Value) *value.Upvalue {
	u := &value.Upvalue{Slot: slot, Location: location}
	h.track(u)
	h.account(24)
	return u
}

// NewClass allocates a class named by name, with an empty method table.
func (h *Heap) NewClass(name *value.String) *value.Class {
	c := &value.Class{Name: name, Methods: &methodTable{t: table.New()}}
	h.track(c)
	h.account(48)
	return c
}

// NewInstance allocates an instance of class, with an empty field table.
func (h *Heap) NewInstance(class *value.Class) *value.Instance {
	i := &value.Instance{Class: class, Fields: &fieldTable{t: table.New()}}
	h.track(i)
	h.account(48)
	return i
}

// NewBoundMethod allocates a bound method pairing receiver with method.
func (h *Heap) NewBoundMethod(receiver value.Value, method *value.Closure) *value.BoundMethod {
	b := &value.BoundMethod{Receiver: receiver, Method: method}
	h.track(b)
	h.account(32)
	return b
}

// methodTable and fieldTable adapt *table.Table to value.MethodTable and
// value.FieldTable; they exist purely to break the import cycle noted in
// value/object.go (package value cannot import package table, since table
// must import value for Value/String).
type methodTable struct{ t *table.Table }

func (m *methodTable) GetMethod(name *value.String) (*value.Closure, bool) {
	v, ok := m.t.Get(name)
	if !ok {
		return nil, false
	}
	return v.AsObj().(*value.Closure), true
}
func (m *methodTable) SetMethod(name *value.String, c *value.Closure) {
	m.t.Set(name, value.Obj_(c))
}
func (m *methodTable) CopyMethodsFrom(src value.MethodTable) {
	if s, ok := src.(*methodTable); ok {
		m.t.AddAll(s.t)
	}
}

type fieldTable struct{ t *table.Table }

func (f *fieldTable) GetField(name *value.String) (value.Value, bool) { return f.t.Get(name) }
func (f *fieldTable) SetField(name *value.String, v value.Value)      { f.t.Set(name, v) }

// Collect runs one full mark-sweep cycle: mark roots, trace the gray
// worklist to a fixed point, drop weak intern-table references to
// about-to-be-freed strings, sweep unmarked objects, and grow the
// threshold.
func (h *Heap) Collect() {
	before := h.bytesAllocated
	if h.logGC && h.log != nil {
		fmt.Fprintln(h.log, "-- gc begin")
	}

	if h.vmRoots != nil {
		h.vmRoots.MarkRoots(h)
	}
	if h.compilerRoots != nil {
		h.compilerRoots.MarkRoots(h)
	}
	for _, v := range h.temp {
		h.MarkValue(v)
	}
	value.SetMarked(h.initStr, true)

	h.trace()
	h.strings.RemoveWhite()
	h.sweep()

	h.nextGC = h.bytesAllocated * int64(h.growthFactor)
	if h.nextGC < defaultNextGC {
		h.nextGC = defaultNextGC
	}

	if h.logGC && h.log != nil {
		fmt.Fprintf(h.log, "-- gc end: collected %d bytes (from %d to %d) next at %d\n",
			before-h.bytesAllocated, before, h.bytesAllocated, h.nextGC)
	}
}

// MarkValue marks v if it holds a heap reference.
func (h *Heap) MarkValue(v value.Value) {
	if v.IsObj() {
		h.MarkObject(v.AsObj())
	}
}

// MarkObject grays o if it isn't already marked.
func (h *Heap) MarkObject(o value.Obj) {
	if o == nil || value.Marked(o) {
		return
	}
	value.SetMarked(o, true)
	h.gray = append(h.gray, o)
}

func (h *Heap) trace() {
	for len(h.gray) > 0 {
		o := h.gray[len(h.gray)-1]
		h.gray = h.gray[:len(h.gray)-1]
		h.blacken(o)
	}
}

// blacken marks every object directly reachable from o. Strings and natives
// have no outgoing references.
func (h *Heap) blacken(o value.Obj) {
	switch v := o.(type) {
	case *value.Function:
		if v.Name != nil {
			h.MarkObject(v.Name)
		}
		for _, c := range v.Chunk.Constants() {
			h.MarkValue(c)
		}
	case *value.Closure:
		h.MarkObject(v.Function)
		for _, uv := range v.Upvalues {
			if uv != nil {
				h.MarkObject(uv)
			}
		}
	case *value.Upvalue:
		if v.Closed {
			h.MarkValue(v.Value)
		}
	case *value.Class:
		h.MarkObject(v.Name)
		if mt, ok := v.Methods.(*methodTable); ok {
			mt.t.Mark(h.MarkValue, h.MarkObject)
		}
	case *value.Instance:
		h.MarkObject(v.Class)
		if ft, ok := v.Fields.(*fieldTable); ok {
			ft.t.Mark(h.MarkValue, h.MarkObject)
		}
	case *value.BoundMethod:
		h.MarkValue(v.Receiver)
		h.MarkObject(v.Method)
	}
}

func (h *Heap) sweep() {
	var prev value.Obj
	obj := h.objects
	for obj != nil {
		if value.Marked(obj) {
			value.SetMarked(obj, false)
			prev = obj
			obj = value.Next(obj)
			continue
		}
		unreached := obj
		obj = value.Next(obj)
		if prev != nil {
			value.SetNext(prev, obj)
		} else {
			h.objects = obj
		}
		h.free(unreached)
	}
}

func (h *Heap) free(o value.Obj) {
	switch v := o.(type) {
	case *value.String:
		h.bytesAllocated -= int64(len(v.Bytes)) + 32
	default:
		h.bytesAllocated -= 32
	}
}

// Teardown frees every remaining object, for final interpreter shutdown.
func (h *Heap) Teardown() {
	obj := h.objects
	for obj != nil {
		next := value.Next(obj)
		h.free(obj)
		obj = next
	}
	h.objects = nil
}

// BytesAllocated exposes the running total, for diagnostics/tests.
func (h *Heap) BytesAllocated() int64 { return h.bytesAllocated }
