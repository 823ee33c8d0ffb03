// Package value implements the tagged Value variant and the heap object
// model shared by the compiler and the virtual machine: booleans, null,
// doubles, and references to heap-allocated Obj variants (strings,
// functions, closures, upvalues, classes, instances, bound methods, and
// native callables).
package value

import (
	"fmt"
	"math"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	Bool Kind = iota
	Null
	Number
	ObjRef
)

// A Value is a small tagged union: a type tag plus either a numeric payload
// or a heap object reference. It is passed by value throughout the VM, as
// the teacher's own Value interface is passed by reference — but spec.md
// requires an explicit tagged variant (mirroring the original C
// implementation's Value, widened here from "double only" to a tagged
// union), so this type intentionally does not implement the teacher's
// value.Value interface.
type Value struct {
	kind Kind
	num  float64
	obj  Obj
}

func Bool_(b bool) Value {
	if b {
		return Value{kind: Bool, num: 1}
	}
	return Value{kind: Bool}
}

func Null_() Value { return Value{kind: Null} }

func Number_(n float64) Value { return Value{kind: Number, num: n} }

func Obj_(o Obj) Value { return Value{kind: ObjRef, obj: o} }

func (v Value) IsBool() bool   { return v.kind == Bool }
func (v Value) IsNull() bool   { return v.kind == Null }
func (v Value) IsNumber() bool { return v.kind == Number }
func (v Value) IsObj() bool    { return v.kind == ObjRef }

func (v Value) AsBool() bool     { return v.num != 0 }
func (v Value) AsNumber() float64 { return v.num }
func (v Value) AsObj() Obj        { return v.obj }

func (v Value) IsString() bool { return v.kind == ObjRef && v.obj.ObjKind() == KindString }
func (v Value) AsString() *String {
	return v.obj.(*String)
}

func (v Value) ObjKindOrZero() ObjKind {
	if v.kind != ObjRef {
		return 0
	}
	return v.obj.ObjKind()
}

// IsFalsey implements spec.md's falsey rule: null or boolean false.
func (v Value) IsFalsey() bool {
	return v.kind == Null || (v.kind == Bool && v.num == 0)
}

// Equal implements valuesEqual: same type tag, then payload equality. String
// equality is pointer (identity) equality, relying on the interning
// invariant maintained by the heap manager.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case Bool:
		return a.num == b.num
	case Null:
		return true
	case Number:
		return a.num == b.num
	case ObjRef:
		return a.obj == b.obj
	}
	return false
}

func (v Value) String() string {
	switch v.kind {
	case Bool:
		return fmt.Sprintf("%t", v.AsBool())
	case Null:
		return "null"
	case Number:
		return formatNumber(v.num)
	case ObjRef:
		return v.obj.String()
	}
	return "<invalid>"
}

func formatNumber(n float64) string {
	if math.IsNaN(n) {
		return "nan"
	}
	if math.IsInf(n, 1) {
		return "inf"
	}
	if math.IsInf(n, -1) {
		return "-inf"
	}
	if n == math.Trunc(n) && math.Abs(n) < 1e15 {
		return fmt.Sprintf("%d", int64(n))
	}
	return fmt.Sprintf("%g", n)
}
