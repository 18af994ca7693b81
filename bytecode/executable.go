package bytecode

import "github.com/kjpearse/lumen/cerr"
import "github.com/kjpearse/lumen/source"

// MaxConstants bounds the constant pool; exceeding it is a compile-time
// ConstantTableTooLarge error. Grounded on
// original_source/vm/constant.py's ConstantTable, which shares one id
// space across all three constant kinds.
const MaxConstants = 1 << 16

// ConstantKind tags a pooled constant's payload type.
type ConstantKind uint8

const (
	ConstInt ConstantKind = iota
	ConstFloat
	ConstString
)

// Constant is one entry of the shared constant pool.
type Constant struct {
	Kind        ConstantKind
	IntValue    int64
	FloatValue  float64
	StringValue string
}

// Executable owns every compiled FunctionPrototype plus the interned
// constant pool, per spec.md §3.4: identical integer/float/string
// literals across the whole program share one id, within their kind.
type Executable struct {
	Prototypes []*Prototype

	constants   []Constant
	intIndex    map[int64]int
	floatIndex  map[float64]int
	stringIndex map[string]int
}

func NewExecutable() *Executable {
	return &Executable{
		intIndex:    make(map[int64]int),
		floatIndex:  make(map[float64]int),
		stringIndex: make(map[string]int),
	}
}

// AddPrototype registers a new prototype, returning its stable id.
func (e *Executable) AddPrototype(p *Prototype) int {
	e.Prototypes = append(e.Prototypes, p)
	return len(e.Prototypes) - 1
}

func (e *Executable) Prototype(id int) *Prototype { return e.Prototypes[id] }

func (e *Executable) InternInt(v int64, span source.Span) (int, error) {
	if id, ok := e.intIndex[v]; ok {
		return id, nil
	}
	id, err := e.add(Constant{Kind: ConstInt, IntValue: v}, span)
	if err != nil {
		return 0, err
	}
	e.intIndex[v] = id
	return id, nil
}

func (e *Executable) InternFloat(v float64, span source.Span) (int, error) {
	if id, ok := e.floatIndex[v]; ok {
		return id, nil
	}
	id, err := e.add(Constant{Kind: ConstFloat, FloatValue: v}, span)
	if err != nil {
		return 0, err
	}
	e.floatIndex[v] = id
	return id, nil
}

func (e *Executable) InternString(v string, span source.Span) (int, error) {
	if id, ok := e.stringIndex[v]; ok {
		return id, nil
	}
	id, err := e.add(Constant{Kind: ConstString, StringValue: v}, span)
	if err != nil {
		return 0, err
	}
	e.stringIndex[v] = id
	return id, nil
}

func (e *Executable) add(c Constant, span source.Span) (int, error) {
	if len(e.constants) >= MaxConstants {
		return 0, cerr.ConstantTableTooLarge(span)
	}
	id := len(e.constants)
	e.constants = append(e.constants, c)
	return id, nil
}

func (e *Executable) Constant(id int) Constant { return e.constants[id] }
