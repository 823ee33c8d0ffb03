package compiler

import "github.com/mna/aster/lang/value"

// Chunk is the bytecode container for a single compiled function: parallel
// code/line arrays plus a constant pool, per spec.md §3. The invariant
// len(Code) == len(Lines) is maintained by construction — every append to
// Code goes through writeByte, which appends to both.
type Chunk struct {
	Code      []byte
	Lines     []int
	constants []value.Value
}

var _ value.FunctionChunk = (*Chunk)(nil)

func NewChunk() *Chunk { return &Chunk{} }

func (c *Chunk) writeByte(b byte, line int) {
	c.Code = append(c.Code, b)
	c.Lines = append(c.Lines, line)
}

// AddConstant appends v to the constant pool and returns its index. Callers
// must check against maxConstants (256, so indices 0-255 fit the one-byte
// operand) before emitting an OpConstant that references it.
func (c *Chunk) AddConstant(v value.Value) int {
	c.constants = append(c.constants, v)
	return len(c.constants) - 1
}

// Constants returns the constant pool, walked by the GC tracer and by the
// disassembler.
func (c *Chunk) Constants() []value.Value { return c.constants }

// CodeBytes returns the raw instruction stream.
func (c *Chunk) CodeBytes() []byte { return c.Code }

// LineFor returns the source line the instruction at byte offset ip started
// on.
func (c *Chunk) LineFor(ip int) int {
	if ip < 0 || ip >= len(c.Lines) {
		if len(c.Lines) == 0 {
			return 0
		}
		return c.Lines[len(c.Lines)-1]
	}
	return c.Lines[ip]
}
