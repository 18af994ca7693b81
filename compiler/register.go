// Package compiler implements the single-pass AST-walking bytecode
// generator: register allocation, closure/capture resolution, and the
// statement/expression lowering rules of spec.md §4. Grounded in
// semantics on original_source/compiler/{register,capture,function_scope,
// bytecode_generator}.py, and in Go structuring on the teacher's
// backend/compiler.go per-function assembly-state idiom.
package compiler

import (
	"github.com/kjpearse/lumen/cerr"
	"github.com/kjpearse/lumen/source"
	"golang.org/x/exp/slices"
)

// MaxRegisters is the fixed register-file size, per spec.md §4.1.
const MaxRegisters = 256

// allocRecord is one slot of a sub-scope: either a named local
// (anonymous == false) or an expression temporary.
type allocRecord struct {
	name      string
	anonymous bool
}

// poolScope is one lexical sub-scope: the register count at entry, plus
// the allocations made since, and a reverse name→register map local to
// this sub-scope.
type poolScope struct {
	base    int
	records []allocRecord
	byName  map[string]int
}

// RegisterPool is the compiler's register allocator: a layered stack of
// sub-scopes over a fixed-size register file, with named (local) and
// anonymous (temporary) allocation modes, and captured-register marking
// for KILL_ORIGINAL_CAPTURES. Grounded on
// original_source/compiler/register.py's RegisterPool/_RegisterPoolDelta.
type RegisterPool struct {
	scopes        []*poolScope
	maxRegisterID int
	marked        map[int]bool
}

func NewRegisterPool() *RegisterPool {
	p := &RegisterPool{marked: make(map[int]bool)}
	p.scopes = []*poolScope{{base: 0, byName: make(map[string]int)}}
	return p
}

func (p *RegisterPool) top() *poolScope { return p.scopes[len(p.scopes)-1] }

// Size is the number of registers allocated in the innermost scope's
// reachable chain (i.e. the next register id to be handed out).
func (p *RegisterPool) Size() int {
	t := p.top()
	return t.base + len(t.records)
}

// MaxRegisterID is the high-water mark across the whole function.
func (p *RegisterPool) MaxRegisterID() int { return p.maxRegisterID }

// EnterScope pushes a new lexical sub-scope starting at the current
// allocation count (Size), not at MaxRegisterID.
func (p *RegisterPool) EnterScope() {
	p.scopes = append(p.scopes, &poolScope{base: p.Size(), byName: make(map[string]int)})
}

// ExitScope pops the innermost sub-scope, freeing its registers, and
// reports whether any register in that scope was ever marked captured
// (the generator uses this to decide whether to emit
// KILL_ORIGINAL_CAPTURES) along with the first register id of the scope.
func (p *RegisterPool) ExitScope() (firstRegister int, hadMarkedRegisters bool) {
	t := p.scopes[len(p.scopes)-1]
	p.scopes = p.scopes[:len(p.scopes)-1]

	hadMarkedRegisters = registersMarkedIn(p, t.base, t.base+len(t.records))
	return t.base, hadMarkedRegisters
}

// AllocateNamed reserves the next register and binds name to it within
// the innermost sub-scope. A duplicate name in the same sub-scope is a
// compile error.
func (p *RegisterPool) AllocateNamed(name string, span source.Span) (int, error) {
	t := p.top()
	if _, exists := t.byName[name]; exists {
		return 0, cerr.LocalVariableExists(span, name)
	}
	id, err := p.allocate(span)
	if err != nil {
		return 0, err
	}
	t.records[len(t.records)-1].name = name
	t.byName[name] = id
	return id, nil
}

// AllocateAnonymous reserves a register for an expression temporary.
func (p *RegisterPool) AllocateAnonymous(span source.Span) (int, error) {
	return p.allocate(span)
}

func (p *RegisterPool) allocate(span source.Span) (int, error) {
	t := p.top()
	id := t.base + len(t.records)
	if id >= MaxRegisters {
		return 0, cerr.StackTooDeep(span)
	}
	t.records = append(t.records, allocRecord{anonymous: true})
	if id > p.maxRegisterID {
		p.maxRegisterID = id
	}
	return id, nil
}

// FreeAnonymous releases the most recently allocated temporary. Callers
// must free in LIFO order, matching the target-stack discipline of
// spec.md §4.1.
func (p *RegisterPool) FreeAnonymous() {
	t := p.top()
	t.records = t.records[:len(t.records)-1]
}

// Find resolves name within the current sub-scope chain of this
// function only (it never crosses a function boundary — that's
// FunctionScope's job).
func (p *RegisterPool) Find(name string) (int, bool) {
	for i := len(p.scopes) - 1; i >= 0; i-- {
		if id, ok := p.scopes[i].byName[name]; ok {
			return id, true
		}
	}
	return 0, false
}

// Mark flags a register as captured by a nested closure.
func (p *RegisterPool) Mark(id int) { p.marked[id] = true }

func (p *RegisterPool) isMarked(id int) bool { return p.marked[id] }

// targetEntry is one entry of the RegisterStack: which register holds
// the in-progress value, and whether it must be freed on pop.
type targetEntry struct {
	reg       int
	anonymous bool
}

// RegisterStack is the compiler's "target stack": it records, for each
// pending expression evaluation, the register holding its value. Every
// expression visitor pushes exactly one entry; every statement visitor
// leaves the stack untouched across its own evaluation.
type RegisterStack struct {
	pool    *RegisterPool
	entries []targetEntry
}

func NewRegisterStack(pool *RegisterPool) *RegisterStack {
	return &RegisterStack{pool: pool}
}

// PushExisting records that an already-allocated (named) register now
// holds the top of the target stack, without allocating or freeing it.
func (s *RegisterStack) PushExisting(reg int) {
	s.entries = append(s.entries, targetEntry{reg: reg, anonymous: false})
}

// PushNew allocates a fresh anonymous temporary and pushes it.
func (s *RegisterStack) PushNew(span source.Span) (int, error) {
	id, err := s.pool.AllocateAnonymous(span)
	if err != nil {
		return 0, err
	}
	s.entries = append(s.entries, targetEntry{reg: id, anonymous: true})
	return id, nil
}

// Pop removes and returns the top entry's register, freeing it if it was
// an anonymous temporary.
func (s *RegisterStack) Pop() int {
	top := s.entries[len(s.entries)-1]
	s.entries = s.entries[:len(s.entries)-1]
	if top.anonymous {
		s.pool.FreeAnonymous()
	}
	return top.reg
}

// Peek returns the top entry's register without popping it.
func (s *RegisterStack) Peek() int {
	return s.entries[len(s.entries)-1].reg
}

// Depth reports how many entries are currently on the stack; callers
// record it and pop back down to it after a run of pushes.
func (s *RegisterStack) Depth() int { return len(s.entries) }

// registersMarkedIn reports whether any register id in [from, to) has
// been marked, used by ExitScope to decide whether the generator must
// emit KILL_ORIGINAL_CAPTURES for the scope just popped.
func registersMarkedIn(p *RegisterPool, from, to int) bool {
	ids := make([]int, 0, to-from)
	for id := from; id < to; id++ {
		ids = append(ids, id)
	}
	return slices.ContainsFunc(ids, p.isMarked)
}
