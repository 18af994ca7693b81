package bytecode

import (
	"fmt"
	"io"
)

// Disassemble writes a human-readable dump of every prototype's bytecode
// to w, matching spec.md §6's `-d` format: one instruction per line —
// offset, opcode name, three 8-bit operands, optional signed 32-bit
// immediate, and a trailing comment with the interned constant for
// LOAD_CONSTANT. Grounded on the teacher's backend/disassembly.go
// line-printing style.
func Disassemble(w io.Writer, exe *Executable) {
	for id, proto := range exe.Prototypes {
		fmt.Fprintf(w, "function #%d (regs=%d, params=%d+%d%s)\n",
			id, proto.Registers, proto.NumRegularParams, proto.NumDefaultParams,
			variadicSuffix(proto.Variadic))

		for _, inst := range proto.Code.Decode(0) {
			line := fmt.Sprintf("  %6d  %-24s r%d, r%d, r%d",
				inst.Offset, inst.Op, inst.Operand1, inst.Operand2, inst.Operand3)
			if inst.HasOperand4 {
				line += fmt.Sprintf(", %d", inst.Operand4)
			}
			if inst.Op == LoadConstant {
				line += fmt.Sprintf("  // %s", constantComment(exe, int(inst.Operand4)))
			}
			fmt.Fprintln(w, line)
		}
		fmt.Fprintln(w)
	}
}

func variadicSuffix(variadic bool) string {
	if variadic {
		return ", variadic"
	}
	return ""
}

func constantComment(exe *Executable, id int) string {
	c := exe.Constant(id)
	switch c.Kind {
	case ConstInt:
		return fmt.Sprintf("%d", c.IntValue)
	case ConstFloat:
		return fmt.Sprintf("%g", c.FloatValue)
	default:
		return fmt.Sprintf("%q", c.StringValue)
	}
}
