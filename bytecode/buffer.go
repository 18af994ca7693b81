package bytecode

import (
	"github.com/kjpearse/lumen/cerr"
	"github.com/kjpearse/lumen/source"
)

// MaxLength bounds a single function's instruction stream; exceeding it is
// a compile-time BytecodeTooLarge error. Matches the ceiling implied by
// FunctionPrototype's offset fields fitting comfortably in an int.
const MaxLength = 1 << 20

// Buffer is an appendable, in-place-patchable byte stream of instructions,
// grounded on original_source/vm/bytecode.py's Bytecode class. Two widths:
// 4 bytes without an immediate, 8 with one, exactly per spec.md §4.3.
type Buffer struct {
	bytes []byte
}

// Instruction is one decoded instruction, as returned by Buffer.Decode.
type Instruction struct {
	Offset                           int
	Op                               Opcode
	Operand1, Operand2, Operand3     uint8
	Operand4                         int32
	HasOperand4                      bool
}

// NextOffset reports where the next appended instruction would land.
func (b *Buffer) NextOffset() int { return len(b.bytes) }

// Len returns the number of bytes currently in the buffer.
func (b *Buffer) Len() int { return len(b.bytes) }

// Add appends a new instruction and returns its offset. operand4 is
// optional; pass hasOperand4=false to omit it and use the 4-byte form.
func (b *Buffer) Add(op Opcode, operand1, operand2, operand3 uint8, operand4 int32, hasOperand4 bool, span source.Span) (int, error) {
	offset := len(b.bytes)
	b.bytes = append(b.bytes, operand1, operand2, operand3)

	if !hasOperand4 {
		b.bytes = append(b.bytes, byte(op))
	} else {
		b.bytes = append(b.bytes, byte(op)|HasImmediateFlag)
		b.bytes = appendInt32LE(b.bytes, operand4)
	}

	if len(b.bytes) > MaxLength {
		b.bytes = b.bytes[:offset]
		return 0, cerr.BytecodeTooLarge(span)
	}
	return offset, nil
}

// SetOperand patches operand1/2/3 (which = 0, 1 or 2) of an
// already-emitted instruction. Jump targets are patched with SetOperand4.
func (b *Buffer) SetOperand(offset int, which int, value uint8) {
	b.bytes[offset+which] = value
}

// SetOperand4 patches the 32-bit immediate of an instruction that was
// originally emitted with hasOperand4=true (jump targets, NEW_CLOSURE's
// prototype id, LOAD_INTEGER's value, LOAD_CONSTANT's constant id).
func (b *Buffer) SetOperand4(offset int, value int32) {
	if b.bytes[offset+3]&HasImmediateFlag == 0 {
		panic("bytecode: SetOperand4 on instruction without an immediate")
	}
	copy(b.bytes[offset+4:offset+8], int32ToLE(value))
}

// Decode walks the buffer from a given offset to its end and returns
// every instruction found there, in order, in a single slice.
func (b *Buffer) Decode(from int) []Instruction {
	var out []Instruction
	for from < len(b.bytes) {
		inst := Instruction{
			Offset:   from,
			Operand1: b.bytes[from],
			Operand2: b.bytes[from+1],
			Operand3: b.bytes[from+2],
		}
		tag := b.bytes[from+3]
		if tag&HasImmediateFlag == 0 {
			inst.Op = Opcode(tag)
			from += 4
		} else {
			inst.Op = Opcode(tag &^ HasImmediateFlag)
			inst.Operand4 = int32FromLE(b.bytes[from+4 : from+8])
			inst.HasOperand4 = true
			from += 8
		}
		out = append(out, inst)
	}
	return out
}

func appendInt32LE(dst []byte, v int32) []byte {
	u := uint32(v)
	return append(dst, byte(u), byte(u>>8), byte(u>>16), byte(u>>24))
}

func int32ToLE(v int32) []byte {
	u := uint32(v)
	return []byte{byte(u), byte(u >> 8), byte(u >> 16), byte(u >> 24)}
}

func int32FromLE(b []byte) int32 {
	u := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	return int32(u)
}
