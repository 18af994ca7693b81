package bytecode

import "github.com/kjpearse/lumen/source"

// CaptureKind distinguishes the two capture-descriptor shapes spec.md
// §3.2 describes.
type CaptureKind uint8

const (
	// Original captures a register local to the enclosing function.
	Original CaptureKind = iota
	// Inherited reuses the enclosing closure's capture at an index.
	Inherited
)

// CaptureDescriptor is one entry of a FunctionPrototype's capture list.
type CaptureDescriptor struct {
	Kind CaptureKind
	ID   int // register id (Original) or capture index (Inherited)
}

// Prototype is a compiled function body: spec.md §3.3.
type Prototype struct {
	NumRegularParams int
	NumDefaultParams int
	Variadic         bool

	Code      Buffer
	Captures  []CaptureDescriptor
	Registers int // high-water mark, set once compilation of the body finishes

	// locations maps an instruction offset to the source span that
	// produced it, for stack traces.
	locations map[int]source.Span
}

func NewPrototype() *Prototype {
	return &Prototype{locations: make(map[int]source.Span)}
}

func (p *Prototype) RecordLocation(offset int, span source.Span) {
	p.locations[offset] = span
}

func (p *Prototype) Location(offset int) source.Span {
	return p.locations[offset]
}
