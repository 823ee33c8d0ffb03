package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFalsey(t *testing.T) {
	assert.True(t, Null_().IsFalsey())
	assert.True(t, Bool_(false).IsFalsey())
	assert.False(t, Bool_(true).IsFalsey())
	assert.False(t, Number_(0).IsFalsey(), "zero is truthy, unlike falsey booleans/null")
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(Number_(1), Number_(1)))
	assert.False(t, Equal(Number_(1), Number_(2)))
	assert.False(t, Equal(Number_(1), Bool_(true)), "different kinds are never equal")
	assert.True(t, Equal(Null_(), Null_()))

	s1 := &String{Bytes: []byte("a")}
	s2 := &String{Bytes: []byte("a")}
	assert.True(t, Equal(Obj_(s1), Obj_(s1)), "same pointer")
	assert.False(t, Equal(Obj_(s1), Obj_(s2)), "equal contents but distinct objects are not equal without interning")
}

func TestStringFormatting(t *testing.T) {
	assert.Equal(t, "null", Null_().String())
	assert.Equal(t, "true", Bool_(true).String())
	assert.Equal(t, "3", Number_(3).String())
	assert.Equal(t, "3.5", Number_(3.5).String())
}

func TestIsString(t *testing.T) {
	s := &String{Bytes: []byte("hi")}
	v := Obj_(s)
	assert.True(t, v.IsString())
	assert.Same(t, s, v.AsString())
	assert.False(t, Number_(1).IsString())
}
