// Package cerr defines the compile-time error taxonomy shared by the
// scanner, parser and compiler packages, grounded on
// original_source/compiler/error.py's flat Error hierarchy.
package cerr

import (
	"fmt"

	"github.com/kjpearse/lumen/source"
)

// Error is a compile-time diagnostic pinned to a source location.
type Error struct {
	Span        source.Span
	Description string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Span, e.Description)
}

func New(span source.Span, format string, args ...interface{}) *Error {
	return &Error{Span: span, Description: fmt.Sprintf(format, args...)}
}

func UnexpectedChar(span source.Span, r rune) *Error {
	return New(span, "unexpected char %q", r)
}

func UnexpectedToken(span source.Span, got string, expect ...string) *Error {
	if len(expect) == 0 {
		return New(span, "unexpected token %q", got)
	}
	return New(span, "unexpected token %q, expect %s", got, joinOr(expect))
}

func EndOfFile(span source.Span) *Error {
	return New(span, "end of file")
}

func LocalVariableExists(span source.Span, name string) *Error {
	return New(span, "local variable `%s` exists", name)
}

func VariableNotFound(span source.Span, name string) *Error {
	return New(span, "variable `%s` not found", name)
}

func StackTooDeep(span source.Span) *Error {
	return New(span, "stack too deep")
}

func CaptureTableTooLarge(span source.Span) *Error {
	return New(span, "capture table too large")
}

func ConstantTableTooLarge(span source.Span) *Error {
	return New(span, "constant table too large")
}

func BytecodeTooLarge(span source.Span) *Error {
	return New(span, "bytecode too large")
}

func LvalueRequired(span source.Span) *Error {
	return New(span, "lvalue required")
}

func joinOr(items []string) string {
	out := ""
	for i, it := range items {
		if i > 0 {
			out += " or "
		}
		out += it
	}
	return out
}
