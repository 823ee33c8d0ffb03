// Package debug implements the bytecode disassembler: an inspection tool
// only, an external collaborator per spec.md §1, never consulted by the
// compiler or VM themselves.
package debug

import (
	"fmt"
	"io"

	"github.com/mna/aster/lang/compiler"
	"github.com/mna/aster/lang/value"
)

// Disassemble prints every instruction in chunk to w, labeled name.
func Disassemble(w io.Writer, chunk value.FunctionChunk, name string) {
	fmt.Fprintf(w, "== %s ==\n", name)
	code := chunk.CodeBytes()
	for offset := 0; offset < len(code); {
		offset = Instruction(w, chunk, offset)
	}
}

// Instruction prints the single instruction at offset and returns the
// offset of the next one.
func Instruction(w io.Writer, chunk value.FunctionChunk, offset int) int {
	code := chunk.CodeBytes()
	fmt.Fprintf(w, "%04d ", offset)
	line := chunk.LineFor(offset)
	if offset > 0 && line == chunk.LineFor(offset-1) {
		fmt.Fprint(w, "   | ")
	} else {
		fmt.Fprintf(w, "%4d ", line)
	}

	op := compiler.OpCode(code[offset])
	switch op {
	case compiler.OpConstant, compiler.OpGetGlobal, compiler.OpDefineGlobal,
		compiler.OpSetGlobal, compiler.OpGetProperty, compiler.OpSetProperty,
		compiler.OpClass, compiler.OpMethod, compiler.OpGetSuper:
		return constantInstruction(w, op, chunk, offset)
	case compiler.OpGetLocal, compiler.OpSetLocal, compiler.OpGetUpvalue,
		compiler.OpSetUpvalue, compiler.OpCall:
		return byteInstruction(w, op, code, offset)
	case compiler.OpInvoke, compiler.OpSuperInvoke:
		return invokeInstruction(w, op, chunk, offset)
	case compiler.OpJump, compiler.OpJumpIfFalse:
		return jumpInstruction(w, op, code, offset, 1)
	case compiler.OpLoop, compiler.OpLoopIfFalse, compiler.OpLoopIfTrue:
		return jumpInstruction(w, op, code, offset, -1)
	case compiler.OpClosure:
		return closureInstruction(w, chunk, offset)
	default:
		fmt.Fprintln(w, op.String())
		return offset + 1
	}
}

func constantInstruction(w io.Writer, op compiler.OpCode, chunk value.FunctionChunk, offset int) int {
	code := chunk.CodeBytes()
	idx := code[offset+1]
	fmt.Fprintf(w, "%-18s %4d '%s'\n", op.String(), idx, chunk.Constants()[idx].String())
	return offset + 2
}

func byteInstruction(w io.Writer, op compiler.OpCode, code []byte, offset int) int {
	slot := code[offset+1]
	fmt.Fprintf(w, "%-18s %4d\n", op.String(), slot)
	return offset + 2
}

func invokeInstruction(w io.Writer, op compiler.OpCode, chunk value.FunctionChunk, offset int) int {
	code := chunk.CodeBytes()
	idx := code[offset+1]
	argc := code[offset+2]
	fmt.Fprintf(w, "%-18s (%d args) %4d '%s'\n", op.String(), argc, idx, chunk.Constants()[idx].String())
	return offset + 3
}

func jumpInstruction(w io.Writer, op compiler.OpCode, code []byte, offset, sign int) int {
	jump := int(code[offset+1])<<8 | int(code[offset+2])
	fmt.Fprintf(w, "%-18s %4d -> %d\n", op.String(), offset, offset+3+sign*jump)
	return offset + 3
}

func closureInstruction(w io.Writer, chunk value.FunctionChunk, offset int) int {
	code := chunk.CodeBytes()
	offset++
	idx := code[offset]
	offset++
	fn := chunk.Constants()[idx].AsObj().(*value.Function)
	fmt.Fprintf(w, "%-18s %4d '%s'\n", "OP_CLOSURE", idx, fn.String())
	for j := 0; j < fn.UpvalueCount; j++ {
		isLocal := code[offset]
		offset++
		index := code[offset]
		offset++
		kind := "upvalue"
		if isLocal != 0 {
			kind = "local"
		}
		fmt.Fprintf(w, "%04d      |                     %s %d\n", offset-2, kind, index)
	}
	return offset
}
