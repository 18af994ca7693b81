package compiler

import (
	"github.com/kjpearse/lumen/bytecode"
	"github.com/kjpearse/lumen/cerr"
	"github.com/kjpearse/lumen/source"
)

// MaxCaptures bounds one function's capture list, per spec.md §4.1.
const MaxCaptures = 256

// CaptureTable is a per-function ordered, deduplicated list of free
// variables the function closes over, grounded on
// original_source/compiler/capture.py's CaptureTable.
type CaptureTable struct {
	descriptors []bytecode.CaptureDescriptor
	byName      map[string]int
}

func NewCaptureTable() *CaptureTable {
	return &CaptureTable{byName: make(map[string]int)}
}

// AddOriginal records a capture of a register local to the immediately
// enclosing function, returning its capture index. Repeated captures of
// the same name reuse the existing entry.
func (t *CaptureTable) AddOriginal(name string, registerID int, span source.Span) (int, error) {
	return t.add(name, bytecode.CaptureDescriptor{Kind: bytecode.Original, ID: registerID}, span)
}

// AddInherited records a capture that the enclosing function has already
// itself captured, reusing the enclosing closure's capture index.
func (t *CaptureTable) AddInherited(name string, enclosingCaptureID int, span source.Span) (int, error) {
	return t.add(name, bytecode.CaptureDescriptor{Kind: bytecode.Inherited, ID: enclosingCaptureID}, span)
}

func (t *CaptureTable) add(name string, d bytecode.CaptureDescriptor, span source.Span) (int, error) {
	if id, ok := t.byName[name]; ok {
		return id, nil
	}
	if len(t.descriptors) >= MaxCaptures {
		return 0, cerr.CaptureTableTooLarge(span)
	}
	id := len(t.descriptors)
	t.descriptors = append(t.descriptors, d)
	t.byName[name] = id
	return id, nil
}

// Find reports the capture index already assigned to name, if any.
func (t *CaptureTable) Find(name string) (int, bool) {
	id, ok := t.byName[name]
	return id, ok
}

func (t *CaptureTable) Descriptors() []bytecode.CaptureDescriptor { return t.descriptors }
