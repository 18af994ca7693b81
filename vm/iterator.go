package vm

// Iterator backs an ITERATOR value, grounded on
// original_source/vm/value.py's Iterator: __bool__ pre-fetches one
// step and buffers it so that JUMP_IF_FALSE's truthiness test and the
// following ITERATE instruction see the same pair, matching spec.md
// §4.6's "truthiness-test-then-advance" protocol.
type Iterator struct {
	pairs   []iterPair
	pos     int
	hasNext bool
	nextKey Value
	nextVal Value
}

type iterPair struct {
	key Value
	val Value
}

func newArrayIterator(a *Array) *Iterator {
	pairs := make([]iterPair, len(a.Elements))
	for i, el := range a.Elements {
		pairs[i] = iterPair{key: NewInt(int64(i)), val: el}
	}
	return &Iterator{pairs: pairs}
}

func newStructIterator(s *Structure) *Iterator {
	entries := s.Entries()
	pairs := make([]iterPair, len(entries))
	for i, e := range entries {
		pairs[i] = iterPair{key: e.Key, val: e.Val}
	}
	return &Iterator{pairs: pairs}
}

// peek pre-fetches the next pair if one hasn't already been buffered,
// returning whether the iterator has more elements.
func (it *Iterator) peek() bool {
	if it.hasNext {
		return true
	}
	if it.pos >= len(it.pairs) {
		return false
	}
	it.nextKey = it.pairs[it.pos].key
	it.nextVal = it.pairs[it.pos].val
	it.pos++
	it.hasNext = true
	return true
}

// advance consumes the buffered pair primed by the preceding peek.
// Callers must only call this after a peek that returned true.
func (it *Iterator) advance() (Value, Value) {
	it.hasNext = false
	return it.nextKey, it.nextVal
}
