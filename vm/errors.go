package vm

import (
	"fmt"
	"strings"

	"github.com/kjpearse/lumen/source"
)

// Error is a runtime diagnostic pinned to a source location, grounded
// on original_source/vm/error.py's flat Error hierarchy (restructured
// as one Go type plus constructors, matching the cerr package's shape).
type Error struct {
	Span        source.Span
	Description string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Span, e.Description)
}

func newError(span source.Span, format string, args ...interface{}) *Error {
	return &Error{Span: span, Description: fmt.Sprintf(format, args...)}
}

func StackOverflow(span source.Span) *Error {
	return newError(span, "stack overflow")
}

func MissingArgument(span source.Span) *Error {
	return newError(span, "missing argument")
}

func TooManyArguments(span source.Span) *Error {
	return newError(span, "too many arguments")
}

func IncompatibleOperandTypes(span source.Span, kinds ...Kind) *Error {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return newError(span, "incompatible operand type(s): %s", strings.Join(names, ", "))
}

func IndexOutOfRange(span source.Span) *Error {
	return newError(span, "index out of range")
}

func DivideByZero(span source.Span) *Error {
	return newError(span, "divide by zero")
}
