// Package bytecode implements the register-machine instruction encoding
// spec.md §4.3 describes: 4-byte instructions (three 8-bit operands plus
// an opcode byte) or 8-byte instructions (the same, plus a signed 32-bit
// little-endian immediate), with the high bit of the opcode byte flagging
// the immediate's presence. Grounded on original_source/vm/bytecode.py's
// exact Opcode ordering and add_instruction/get_instructions encoding,
// restructured into Go types in the spirit of the teacher's
// backend/{instructions,opcodes,disassembly}.go.
package bytecode

// Opcode identifies an instruction. The zero value (Invalid) never
// appears in emitted bytecode.
type Opcode uint8

const (
	Invalid Opcode = iota

	LoadVoid
	LoadNull
	LoadBoolean
	LoadInteger
	LoadConstant
	LoadBuiltinFunction

	Move
	Convert

	GetCapture
	SetCapture
	GetSlot
	SetSlot
	ClearSlot

	Negate
	Add
	Subtract
	Multiply
	Divide
	Modulo

	LogicalNot

	BitwiseAnd
	BitwiseOr
	BitwiseXor
	BitwiseNot
	ShiftLeft
	ShiftRight

	Equal
	NotEqual
	Less
	NotLess
	Greater
	NotGreater

	Jump
	JumpIfTrue
	JumpIfFalse

	NewArray
	NewStructure

	NewClosure
	KillOriginalCaptures
	Call
	Return

	NewIterator
	Iterate
)

// HasImmediateFlag marks the high bit of the fourth byte (the opcode byte)
// of an instruction, signalling that a 32-bit signed immediate follows.
const HasImmediateFlag = 0x80

var opcodeNames = map[Opcode]string{
	LoadVoid: "LOAD_VOID", LoadNull: "LOAD_NULL", LoadBoolean: "LOAD_BOOLEAN",
	LoadInteger: "LOAD_INTEGER", LoadConstant: "LOAD_CONSTANT",
	LoadBuiltinFunction: "LOAD_BUILTIN_FUNCTION",
	Move:                "MOVE", Convert: "CONVERT",
	GetCapture: "GET_CAPTURE", SetCapture: "SET_CAPTURE",
	GetSlot: "GET_SLOT", SetSlot: "SET_SLOT", ClearSlot: "CLEAR_SLOT",
	Negate: "NEGATE", Add: "ADD", Subtract: "SUBTRACT", Multiply: "MULTIPLY",
	Divide: "DIVIDE", Modulo: "MODULO",
	LogicalNot: "LOGICAL_NOT",
	BitwiseAnd: "BITWISE_AND", BitwiseOr: "BITWISE_OR", BitwiseXor: "BITWISE_XOR",
	BitwiseNot: "BITWISE_NOT", ShiftLeft: "BITWISE_SHIFT_LEFT", ShiftRight: "BITWISE_SHIFT_RIGHT",
	Equal: "EQUAL", NotEqual: "NOT_EQUAL", Less: "LESS", NotLess: "NOT_LESS",
	Greater: "GREATER", NotGreater: "NOT_GREATER",
	Jump: "JUMP", JumpIfTrue: "JUMP_IF_TRUE", JumpIfFalse: "JUMP_IF_FALSE",
	NewArray: "NEW_ARRAY", NewStructure: "NEW_STRUCTURE",
	NewClosure: "NEW_CLOSURE", KillOriginalCaptures: "KILL_ORIGINAL_CAPTURES",
	Call: "CALL", Return: "RETURN",
	NewIterator: "NEW_ITERATOR", Iterate: "ITERATE",
}

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return "UNKNOWN"
}

// BuiltinFunctionID identifies a host built-in function, referenced by
// LOAD_BUILTIN_FUNCTION's operand1.
type BuiltinFunctionID uint8

const (
	BuiltinTrace BuiltinFunctionID = iota
	BuiltinRequire
)

// ConversionID identifies a CONVERT instruction's target conversion.
type ConversionID uint8

const (
	ConvertBool ConversionID = iota
	ConvertInt
	ConvertFloat
	ConvertStr
	ConvertSizeof
	ConvertTypeof
)
