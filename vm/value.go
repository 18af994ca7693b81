// Package vm implements the register-machine interpreter spec.md §4.6
// describes: a grow-only stack of boxed registers, a call-frame chain,
// and the CALL/RETURN protocol, closure captures and value semantics
// grounded on original_source/vm/{interpreter,value}.py, structured in
// the style of the teacher's backend/{interpreter,stackFrame,functions}.go
// (a pointer-per-register stack frame, rather than the Python original's
// reference-counted list slots).
package vm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dolthub/swiss"
)

// Kind tags a Value's payload, matching spec.md §3.1's eleven value kinds.
type Kind uint8

const (
	KindVoid Kind = iota
	KindNull
	KindBool
	KindInt
	KindFloat
	KindString
	KindArray
	KindStruct
	KindClosure
	KindBuiltin
	KindIterator
)

var kindNames = map[Kind]string{
	KindVoid: "void", KindNull: "null", KindBool: "bool", KindInt: "int",
	KindFloat: "float", KindString: "str", KindArray: "array", KindStruct: "struct",
	KindClosure: "closure", KindBuiltin: "builtin-function", KindIterator: "iterator",
}

func (k Kind) String() string { return kindNames[k] }

// Value is a tagged union over the scalar payload fields (cheap,
// inline) and Ref for the four reference kinds (ARRAY, STRUCTURE,
// CLOSURE, ITERATOR) plus BUILTIN_FUNCTION.
type Value struct {
	Kind     Kind
	BoolVal  bool
	IntVal   int64
	FloatVal float64
	StrVal   string
	Ref      any // *Array, *Structure, *Closure, BuiltinFunc, *Iterator
}

func Void() Value                 { return Value{Kind: KindVoid} }
func Null() Value                 { return Value{Kind: KindNull} }
func NewBool(b bool) Value        { return Value{Kind: KindBool, BoolVal: b} }
func NewInt(i int64) Value        { return Value{Kind: KindInt, IntVal: i} }
func NewFloat(f float64) Value    { return Value{Kind: KindFloat, FloatVal: f} }
func NewString(s string) Value    { return Value{Kind: KindString, StrVal: s} }
func NewArrayValue(a *Array) Value       { return Value{Kind: KindArray, Ref: a} }
func NewStructValue(s *Structure) Value  { return Value{Kind: KindStruct, Ref: s} }
func NewClosureValue(c *Closure) Value   { return Value{Kind: KindClosure, Ref: c} }
func NewBuiltinValue(b BuiltinFunc) Value { return Value{Kind: KindBuiltin, Ref: b} }
func NewIteratorValue(it *Iterator) Value { return Value{Kind: KindIterator, Ref: it} }

func (v Value) AsArray() *Array         { return v.Ref.(*Array) }
func (v Value) AsStruct() *Structure    { return v.Ref.(*Structure) }
func (v Value) AsClosure() *Closure     { return v.Ref.(*Closure) }
func (v Value) AsBuiltin() BuiltinFunc  { return v.Ref.(BuiltinFunc) }
func (v Value) AsIterator() *Iterator   { return v.Ref.(*Iterator) }

func (v Value) IsNumeric() bool { return v.Kind == KindInt || v.Kind == KindFloat }

// Truthy implements spec.md §3.1's truthiness rules. Callers must not
// call this on VOID (the interpreter rejects VOID operands before
// reaching a truthiness test).
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindNull:
		return false
	case KindBool:
		return v.BoolVal
	case KindInt:
		return v.IntVal != 0
	case KindFloat:
		return v.FloatVal != 0
	case KindString:
		return len(v.StrVal) > 0
	case KindArray:
		return v.AsArray().Len() > 0
	case KindStruct:
		return v.AsStruct().Len() > 0
	case KindIterator:
		return v.AsIterator().peek()
	default:
		return true
	}
}

// String renders a value in textual form: scalars plain, strings quoted,
// containers bracketed with cycle-guarding against self-reference.
// `trace` prints a top-level STRING unquoted (see traceString).
func (v Value) String() string {
	return v.toString(map[any]bool{})
}

func (v Value) toString(seen map[any]bool) string {
	switch v.Kind {
	case KindVoid:
		return ""
	case KindNull:
		return "null"
	case KindBool:
		if v.BoolVal {
			return "true"
		}
		return "false"
	case KindInt:
		return strconv.FormatInt(v.IntVal, 10)
	case KindFloat:
		return strconv.FormatFloat(v.FloatVal, 'g', -1, 64)
	case KindString:
		return "\"" + v.StrVal + "\""
	case KindArray:
		a := v.AsArray()
		if seen[a] {
			return "..."
		}
		seen[a] = true
		parts := make([]string, len(a.Elements))
		for i, el := range a.Elements {
			parts[i] = el.toString(seen)
		}
		delete(seen, a)
		return fmt.Sprintf("[] {%s}", strings.Join(parts, ", "))
	case KindStruct:
		s := v.AsStruct()
		if seen[s] {
			return "..."
		}
		seen[s] = true
		parts := make([]string, len(s.entries))
		for i, e := range s.entries {
			parts[i] = fmt.Sprintf("[%s] = %s", e.Key.toString(seen), e.Val.toString(seen))
		}
		delete(seen, s)
		return fmt.Sprintf("struct {%s}", strings.Join(parts, ", "))
	default:
		return "<" + v.Kind.String() + ">"
	}
}

// Equal implements spec.md §4.6's equality rule: NULL==NULL is true,
// numeric cross-kind compares by value, same-kind scalars compare by
// value, and everything else (including two references to the very
// same container) compares false.
func Equal(a, b Value) bool {
	if a.Kind == KindNull && b.Kind == KindNull {
		return true
	}
	if a.IsNumeric() && b.IsNumeric() {
		return numericValue(a) == numericValue(b)
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindBool:
		return a.BoolVal == b.BoolVal
	case KindString:
		return a.StrVal == b.StrVal
	default:
		return false
	}
}

func numericValue(v Value) float64 {
	if v.Kind == KindInt {
		return float64(v.IntVal)
	}
	return v.FloatVal
}

// Array is the backing store for an ARRAY value.
type Array struct {
	Elements []Value
}

func NewArray() *Array { return &Array{} }

func (a *Array) Len() int { return len(a.Elements) }

// structKey is Structure's comparable map key, covering every scalar
// kind a STRUCTURE may use (NULL, BOOLEAN, INTEGER, FLOATING_POINT,
// STRING) per spec.md §4.6's SET_SLOT key-kind rule.
type structKey struct {
	kind Kind
	i    int64
	f    float64
	s    string
	b    bool
}

func keyOf(v Value) structKey {
	switch v.Kind {
	case KindBool:
		return structKey{kind: KindBool, b: v.BoolVal}
	case KindInt:
		return structKey{kind: KindInt, i: v.IntVal}
	case KindFloat:
		return structKey{kind: KindFloat, f: v.FloatVal}
	case KindString:
		return structKey{kind: KindString, s: v.StrVal}
	default:
		return structKey{kind: v.Kind}
	}
}

type structureEntry struct {
	Key Value
	Val Value
}

// Structure is the backing store for a STRUCTURE value: an
// insertion-ordered field list with a swiss-table index from scalar
// key to slot, grounded on _examples/mna-nenuphar/lang/machine/map.go's
// use of github.com/dolthub/swiss, paired with an ordered slice since
// the swiss table itself does not preserve insertion order and
// NEW_ITERATOR/ITERATE must.
type Structure struct {
	index   *swiss.Map[structKey, int]
	entries []structureEntry
}

func NewStructure() *Structure {
	return &Structure{index: swiss.NewMap[structKey, int](0)}
}

func (s *Structure) Get(key Value) (Value, bool) {
	i, ok := s.index.Get(keyOf(key))
	if !ok {
		return Value{}, false
	}
	return s.entries[i].Val, true
}

func (s *Structure) Set(key, val Value) {
	k := keyOf(key)
	if i, ok := s.index.Get(k); ok {
		s.entries[i].Val = val
		return
	}
	s.index.Put(k, len(s.entries))
	s.entries = append(s.entries, structureEntry{Key: key, Val: val})
}

func (s *Structure) Delete(key Value) {
	k := keyOf(key)
	i, ok := s.index.Get(k)
	if !ok {
		return
	}
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	s.index.Delete(k)
	for j := i; j < len(s.entries); j++ {
		s.index.Put(keyOf(s.entries[j].Key), j)
	}
}

func (s *Structure) Len() int { return len(s.entries) }

func (s *Structure) Entries() []structureEntry { return s.entries }
