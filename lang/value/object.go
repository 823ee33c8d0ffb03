package value

// ObjKind tags the concrete variant behind an Obj reference.
type ObjKind uint8

const (
	KindString ObjKind = iota + 1
	KindFunction
	KindNative
	KindClosure
	KindUpvalue
	KindClass
	KindInstance
	KindBoundMethod
)

func (k ObjKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindFunction:
		return "function"
	case KindNative:
		return "native"
	case KindClosure:
		return "closure"
	case KindUpvalue:
		return "upvalue"
	case KindClass:
		return "class"
	case KindInstance:
		return "instance"
	case KindBoundMethod:
		return "bound method"
	}
	return "unknown"
}

// Obj is implemented by every heap-allocated object variant. ObjKind
// reports the variant's tag; the heap's free and blacken steps switch on the
// concrete Go type, and printing goes through String. Beyond that the
// interface only carries the header fields the heap manager needs to thread
// every live object into its intrusive list and mark bit.
type Obj interface {
	ObjKind() ObjKind
	String() string

	marked() bool
	setMarked(bool)
	next() Obj
	setNext(Obj)
}

// header is embedded by every concrete Obj implementation. It carries the
// GC mark bit and the intrusive "next" link threading every live object into
// the heap's global object list, exactly as spec.md §3 describes.
type header struct {
	mark     bool
	nextLink Obj
}

func (h *header) marked() bool    { return h.mark }
func (h *header) setMarked(b bool) { h.mark = b }
func (h *header) next() Obj        { return h.nextLink }
func (h *header) setNext(o Obj)     { h.nextLink = o }

// Next exposes the intrusive list link for the heap's sweep/teardown walk.
func Next(o Obj) Obj { return o.next() }

// SetNext is used only by the heap manager when linking newly allocated
// objects into the object list.
func SetNext(o Obj, n Obj) { o.setNext(n) }

// Marked/SetMarked expose the GC mark bit to the heap manager's mark-sweep
// pass; ordinary code never touches these directly.
func Marked(o Obj) bool        { return o.marked() }
func SetMarked(o Obj, b bool)  { o.setMarked(b) }

// String is the interned byte-string heap object.
type String struct {
	header
	Bytes []byte
	Hash  uint32
}

func (s *String) ObjKind() ObjKind { return KindString }
func (s *String) String() string   { return string(s.Bytes) }

// Chunk is defined in package compiler; Function embeds a *compiler.Chunk by
// interface to avoid an import cycle (compiler needs value.Value for its
// constant pool, so value cannot import compiler). FunctionChunk is the
// narrow interface Function needs from a compiled chunk.
type FunctionChunk interface {
	// CodeBytes returns the raw instruction stream.
	CodeBytes() []byte
	// LineFor returns the source line for the instruction at byte offset ip.
	LineFor(ip int) int
	// Constants returns the chunk's constant pool, walked by the GC tracer
	// and indexed by OP_CONSTANT/OP_CLOSURE/etc. operands.
	Constants() []Value
}

// Function is a compiled function: arity, upvalue count, its chunk of
// bytecode, and an optional name (null for the top-level script).
type Function struct {
	header
	Arity        int
	UpvalueCount int
	Chunk        FunctionChunk
	Name         *String // nil for the top-level script
}

func (f *Function) ObjKind() ObjKind { return KindFunction }
func (f *Function) String() string {
	if f.Name == nil {
		return "<script>"
	}
	return "<fn " + string(f.Name.Bytes) + ">"
}

// NativeFn is the signature of a host-provided native function.
type NativeFn func(args []Value) (Value, error)

// Native wraps a host callable exposed to script code.
type Native struct {
	header
	Name string
	Fn   NativeFn
}

func (n *Native) ObjKind() ObjKind { return KindNative }
func (n *Native) String() string   { return "<native fn " + n.Name + ">" }

// Upvalue is either open (Location points into a live VM stack slot) or
// closed (Closed owns the value after the slot goes out of scope). Slot
// records the absolute stack index it was opened at and is the key by which
// the VM's open-upvalue list stays sorted in descending order.
type Upvalue struct {
	header
	Slot     int
	Closed   bool
	Location *Value // points into the VM stack while open
	Value    Value  // owned cell once closed
	NextOpen *Upvalue
}

func (u *Upvalue) ObjKind() ObjKind { return KindUpvalue }
func (u *Upvalue) String() string   { return "upvalue" }

// Get returns the current value of the upvalue, open or closed.
func (u *Upvalue) Get() Value {
	if u.Closed {
		return u.Value
	}
	return *u.Location
}

// Set writes through to the live stack slot (open) or the owned cell
// (closed).
func (u *Upvalue) Set(v Value) {
	if u.Closed {
		u.Value = v
		return
	}
	*u.Location = v
}

// Close copies the current stack value into the owned cell and severs the
// link to the stack.
func (u *Upvalue) Close() {
	u.Value = *u.Location
	u.Closed = true
	u.Location = nil
}

// Closure combines a Function with the array of Upvalues it captured at
// OP_CLOSURE time.
type Closure struct {
	header
	Function *Function
	Upvalues []*Upvalue
}

func (c *Closure) ObjKind() ObjKind { return KindClosure }
func (c *Closure) String() string   { return c.Function.String() }

// MethodTable and FieldTable are defined narrowly here (rather than directly
// embedding *table.Table) to avoid an import cycle: package table's Value
// keys/values are this package's Value, so table necessarily imports value,
// and value cannot import table back. The heap package, which depends on
// both, is responsible for constructing the concrete *table.Table each Class
// and Instance holds and assigning it through these interfaces.
type MethodTable interface {
	GetMethod(name *String) (*Closure, bool)
	SetMethod(name *String, c *Closure)
	CopyMethodsFrom(src MethodTable)
}

type FieldTable interface {
	GetField(name *String) (Value, bool)
	SetField(name *String, v Value)
}

// Class is a class: its name and its method table (String -> Closure).
type Class struct {
	header
	Name    *String
	Methods MethodTable
}

func (c *Class) ObjKind() ObjKind { return KindClass }
func (c *Class) String() string   { return string(c.Name.Bytes) }

// Instance is an instance of a Class with its own field table.
type Instance struct {
	header
	Class  *Class
	Fields FieldTable
}

func (i *Instance) ObjKind() ObjKind { return KindInstance }
func (i *Instance) String() string   { return string(i.Class.Name.Bytes) + " instance" }

// BoundMethod pairs a receiver instance with the closure implementing the
// method looked up on it, produced by OP_GET_PROPERTY / OP_GET_SUPER when the
// looked-up name resolves to a method rather than a field.
type BoundMethod struct {
	header
	Receiver Value
	Method   *Closure
}

func (b *BoundMethod) ObjKind() ObjKind { return KindBoundMethod }
func (b *BoundMethod) String() string   { return b.Method.String() }
