package vm

import (
	"github.com/kjpearse/lumen/bytecode"
	"github.com/kjpearse/lumen/source"
)

// Capture is a shared cell binding a closure's free variable, grounded
// on original_source/vm/value.py's Capture. While ptr is non-nil the
// cell aliases a live register in the producing frame's stack slice
// (so writes from either side are visible to the other, matching
// spec.md §3.2's live-reference semantics); Detach snapshots the
// current value and severs the alias, which the interpreter calls
// when the producing frame returns.
type Capture struct {
	ptr      *Value
	detached Value
}

func newOriginalCapture(slot *Value) *Capture { return &Capture{ptr: slot} }

func (c *Capture) Get() Value {
	if c.ptr != nil {
		return *c.ptr
	}
	return c.detached
}

func (c *Capture) Set(v Value) {
	if c.ptr != nil {
		*c.ptr = v
		return
	}
	c.detached = v
}

// Detach closes the capture over its current value, so it survives
// the producing frame's stack slots being reused.
func (c *Capture) Detach() {
	if c.ptr != nil {
		c.detached = *c.ptr
		c.ptr = nil
	}
}

// Closure is a CLOSURE value: a prototype reference plus its realized
// default arguments and captures, grounded on
// original_source/vm/value.py's Closure NamedTuple.
type Closure struct {
	Executable  *bytecode.Executable
	PrototypeID int
	Defaults    []Value
	Captures    []*Capture
}

func (c *Closure) Prototype() *bytecode.Prototype {
	return c.Executable.Prototype(c.PrototypeID)
}

// BuiltinFunc is a host-provided function exposed to scripts via
// LOAD_BUILTIN_FUNCTION, invoked by CALL the same way a CLOSURE is.
// stackBase is the register range CALL reserved for this invocation's
// arguments, passed through so require() can reuse it for the required
// module's own top-level frame (see DESIGN.md Open Question 4).
type BuiltinFunc func(interp *Interpreter, span source.Span, stackBase int, args []Value) (Value, error)
