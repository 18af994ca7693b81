package compiler

import (
	"github.com/kjpearse/lumen/cerr"
	"github.com/kjpearse/lumen/source"
)

// Resolution tells a caller how a resolved name must be addressed.
type Resolution struct {
	Local   bool // register id in RegisterPool, else capture id in CaptureTable
	ID      int
}

// FunctionScope is one function's name-resolution context: its own
// register pool, target stack and capture table, chained to its
// lexically enclosing function's scope. Grounded on
// original_source/compiler/function_scope.py's FunctionScope, whose
// get_variable/find_variable pair walks the parent chain marking
// originals at the deepest owning ancestor and adding one capture-table
// entry per function level along the way.
type FunctionScope struct {
	parent   *FunctionScope
	Pool     *RegisterPool
	Targets  *RegisterStack
	Captures *CaptureTable
}

func NewFunctionScope(parent *FunctionScope) *FunctionScope {
	pool := NewRegisterPool()
	return &FunctionScope{
		parent:   parent,
		Pool:     pool,
		Targets:  NewRegisterStack(pool),
		Captures: NewCaptureTable(),
	}
}

// CreateLocal declares a new named local in this function's current
// sub-scope.
func (s *FunctionScope) CreateLocal(name string, span source.Span) (int, error) {
	return s.Pool.AllocateNamed(name, span)
}

// Resolve finds name starting from this function scope, returning
// whether it resolved to a local register or a capture, and the id to
// use either directly as a register operand or as the capture index of
// GET_CAPTURE/SET_CAPTURE. It recurses
// into enclosing scopes and, for each function boundary crossed, either
// marks the owning register as an Original capture (at the function that
// actually owns it) or chains an Inherited capture through the
// intervening functions.
func (s *FunctionScope) Resolve(name string, span source.Span) (Resolution, error) {
	if id, ok := s.Pool.Find(name); ok {
		return Resolution{Local: true, ID: id}, nil
	}
	if id, ok := s.Captures.Find(name); ok {
		return Resolution{Local: false, ID: id}, nil
	}
	if s.parent == nil {
		return Resolution{}, cerr.VariableNotFound(span, name)
	}

	parentRes, err := s.parent.resolveForChild(name, span)
	if err != nil {
		return Resolution{}, err
	}

	var id int
	if parentRes.local {
		id, err = s.Captures.AddOriginal(name, parentRes.id, span)
	} else {
		id, err = s.Captures.AddInherited(name, parentRes.id, span)
	}
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Local: false, ID: id}, nil
}

// childResolution is Resolve's internal view of a parent's answer: local
// means "a register in the parent, not yet captured by the parent
// itself" (the parent must mark it), non-local means "already a capture
// of the parent, reuse by index".
type childResolution struct {
	local bool
	id    int
}

// resolveForChild is the recursive step: resolve name in s (possibly
// recursing further into s.parent), and if it bottoms out as a register
// owned by s, mark that register so s emits KILL_ORIGINAL_CAPTURES
// correctly when its scope exits.
func (s *FunctionScope) resolveForChild(name string, span source.Span) (childResolution, error) {
	if id, ok := s.Pool.Find(name); ok {
		s.Pool.Mark(id)
		return childResolution{local: true, id: id}, nil
	}
	if id, ok := s.Captures.Find(name); ok {
		return childResolution{local: false, id: id}, nil
	}
	if s.parent == nil {
		return childResolution{}, cerr.VariableNotFound(span, name)
	}

	parentRes, err := s.parent.resolveForChild(name, span)
	if err != nil {
		return childResolution{}, err
	}

	var id int
	if parentRes.local {
		id, err = s.Captures.AddOriginal(name, parentRes.id, span)
	} else {
		id, err = s.Captures.AddInherited(name, parentRes.id, span)
	}
	if err != nil {
		return childResolution{}, err
	}
	return childResolution{local: false, id: id}, nil
}
