package bytecode

import (
	"fmt"
	"io"
)

// Disassemble writes a readable dump of fn's chunk, followed by the chunks
// of any function constants it holds, so one call renders a whole compiled
// program.
func Disassemble(w io.Writer, fn *Function) {
	fmt.Fprintf(w, "== %s ==\n", fn)
	chunk := fn.Chunk
	for offset := 0; offset < len(chunk.Code); {
		offset = DisassembleInstruction(w, chunk, offset)
	}
	for _, c := range chunk.Constants {
		if nested, ok := c.(*Function); ok {
			fmt.Fprintln(w)
			Disassemble(w, nested)
		}
	}
}

// DisassembleInstruction renders the instruction at offset and returns the
// offset of the next one.
func DisassembleInstruction(w io.Writer, chunk *Chunk, offset int) int {
	fmt.Fprintf(w, "%04d ", offset)
	if offset > 0 && chunk.Line(offset) == chunk.Line(offset-1) {
		fmt.Fprint(w, "   | ")
	} else {
		fmt.Fprintf(w, "%4d ", chunk.Line(offset))
	}

	op := OpCode(chunk.Code[offset])
	switch op {
	case OpConstant, OpGetGlobal, OpDefineGlobal, OpSetGlobal:
		return constantInstruction(w, op, chunk, offset)
	case OpGetLocal, OpSetLocal, OpGetUpvalue, OpSetUpvalue, OpCall:
		return byteInstruction(w, op, chunk, offset)
	case OpJump, OpJumpIfFalse:
		return jumpInstruction(w, op, 1, chunk, offset)
	case OpLoop:
		return jumpInstruction(w, op, -1, chunk, offset)
	case OpClosure:
		return closureInstruction(w, chunk, offset)
	default:
		fmt.Fprintf(w, "%s\n", op)
		return offset + 1
	}
}

func constantInstruction(w io.Writer, op OpCode, chunk *Chunk, offset int) int {
	index := chunk.Code[offset+1]
	fmt.Fprintf(w, "%-16s %4d '%v'\n", op, index, chunk.Constants[index])
	return offset + 2
}

func byteInstruction(w io.Writer, op OpCode, chunk *Chunk, offset int) int {
	fmt.Fprintf(w, "%-16s %4d\n", op, chunk.Code[offset+1])
	return offset + 2
}

func jumpInstruction(w io.Writer, op OpCode, sign int, chunk *Chunk, offset int) int {
	jump := int(chunk.Code[offset+1])<<8 | int(chunk.Code[offset+2])
	fmt.Fprintf(w, "%-16s %4d -> %d\n", op, offset, offset+3+sign*jump)
	return offset + 3
}

func closureInstruction(w io.Writer, chunk *Chunk, offset int) int {
	index := chunk.Code[offset+1]
	fn := chunk.Constants[index].(*Function)
	fmt.Fprintf(w, "%-16s %4d %v\n", OpClosure, index, fn)
	offset += 2
	for range fn.Upvalues {
		kind := "upvalue"
		if chunk.Code[offset] == 1 {
			kind = "local"
		}
		fmt.Fprintf(w, "%04d    |                     %s %d\n", offset, kind, chunk.Code[offset+1])
		offset += 2
	}
	return offset
}
