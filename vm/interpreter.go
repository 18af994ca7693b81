package vm

import (
	"strconv"
	"strings"

	"github.com/kjpearse/lumen/bytecode"
	"github.com/kjpearse/lumen/source"
)

// RequireFunc implements the host side of the require() builtin: given
// the path argument and every argument after it, it compiles and runs
// the named module and returns its result. stackBase is forwarded from
// CALL so the host can reuse it per DESIGN.md's Open Question 4.
type RequireFunc func(interp *Interpreter, span source.Span, stackBase int, args []Value) (Value, error)

// CallFrame is one live activation, grounded on
// original_source/vm/interpreter.py's CallFrame namedtuple. Originals
// holds the Original captures this frame has handed out so far, keyed
// by register id, so repeated NEW_CLOSUREs over the same free variable
// share one Capture and KILL_ORIGINAL_CAPTURES can detach them in bulk.
type CallFrame struct {
	Parent    *CallFrame
	Span      source.Span
	Closure   *Closure
	StackBase int
	Originals map[int]*Capture
}

// Interpreter runs compiled lumen bytecode against a grow-only register
// stack, grounded on original_source/vm/interpreter.py's Interpreter and
// structured in the style of the teacher's backend/interpreter.go
// dispatch loop.
type Interpreter struct {
	MaxStackDepth int
	Stack         []*Value
	Frame         *CallFrame
	ReturnValue   Value

	Require RequireFunc
	Trace   func(string)
}

func NewInterpreter(maxStackDepth int, require RequireFunc, trace func(string)) *Interpreter {
	return &Interpreter{MaxStackDepth: maxStackDepth, Require: require, Trace: trace}
}

// Run compiles nothing itself; it realizes the executable's top-level
// prototype (id 0) as a closure with no captures, seeds the arguments
// into the stack at stackBase, and calls it.
func (in *Interpreter) Run(span source.Span, exe *bytecode.Executable, stackBase int, args []Value) (Value, error) {
	closure := &Closure{Executable: exe, PrototypeID: 0}
	if err := in.reserveStack(span, stackBase, len(args)); err != nil {
		return Value{}, err
	}
	for i, a := range args {
		*in.Stack[stackBase+i] = a
	}
	return in.callClosure(span, closure, stackBase, len(args))
}

// StackTrace walks the call-frame chain and returns each frame's call-site
// span, outermost frame first and innermost frame last.
func (in *Interpreter) StackTrace() []source.Span {
	var spans []source.Span
	for f := in.Frame; f != nil; f = f.Parent {
		spans = append(spans, f.Span)
	}
	for i, j := 0, len(spans)-1; i < j; i, j = i+1, j-1 {
		spans[i], spans[j] = spans[j], spans[i]
	}
	return spans
}

func (in *Interpreter) reserveStack(span source.Span, stackBase, relativeDepth int) error {
	depth := stackBase + relativeDepth
	if depth > in.MaxStackDepth {
		return StackOverflow(span)
	}
	for len(in.Stack) < depth {
		v := Void()
		in.Stack = append(in.Stack, &v)
	}
	return nil
}

func (in *Interpreter) freeStack(stackBase, relativeDepth int) {
	for i := stackBase; i < stackBase+relativeDepth; i++ {
		*in.Stack[i] = Void()
	}
}

// makeClosure realizes a prototype's capture descriptors against the
// currently executing frame: an Original capture aliases a live stack
// slot (memoized per register id so later NEW_CLOSUREs over the same
// free variable reuse the cell), an Inherited capture is copied by
// index from the enclosing closure's own capture list.
func (in *Interpreter) makeClosure(exe *bytecode.Executable, prototypeID int, defaults []Value) *Closure {
	proto := exe.Prototype(prototypeID)
	frame := in.Frame
	captures := make([]*Capture, len(proto.Captures))

	for i, d := range proto.Captures {
		if d.Kind == bytecode.Original {
			cap, ok := frame.Originals[d.ID]
			if !ok {
				cap = newOriginalCapture(in.Stack[frame.StackBase+d.ID])
				frame.Originals[d.ID] = cap
			}
			captures[i] = cap
		} else {
			captures[i] = frame.Closure.Captures[d.ID]
		}
	}

	return &Closure{Executable: exe, PrototypeID: prototypeID, Defaults: defaults, Captures: captures}
}

// callClosure implements the CALL/RETURN protocol of spec.md §4.6: a
// regular-argument-count check, then (unless variadic) a too-many-args
// check, stack reservation, default-argument copying, variadic
// bundling, frame push/execute/pop, and Original-capture detachment.
func (in *Interpreter) callClosure(span source.Span, closure *Closure, stackBase, numArgs int) (Value, error) {
	proto := closure.Prototype()

	if numArgs < proto.NumRegularParams {
		return Value{}, MissingArgument(span)
	}
	numParams := proto.NumRegularParams + proto.NumDefaultParams
	if !proto.Variadic && numArgs > numParams {
		return Value{}, TooManyArguments(span)
	}

	if err := in.reserveStack(span, stackBase, proto.Registers); err != nil {
		return Value{}, err
	}

	for i := numArgs; i < numParams; i++ {
		*in.Stack[stackBase+i] = closure.Defaults[i-proto.NumRegularParams]
	}

	if proto.Variadic {
		rest := NewArray()
		for i := numParams; i < numArgs; i++ {
			rest.Elements = append(rest.Elements, *in.Stack[stackBase+i])
		}
		*in.Stack[stackBase+numParams] = NewArrayValue(rest)
	}

	frame := &CallFrame{Parent: in.Frame, Span: span, Closure: closure, StackBase: stackBase, Originals: make(map[int]*Capture)}
	in.Frame = frame

	if err := in.execute(proto); err != nil {
		in.Frame = frame.Parent
		return Value{}, err
	}

	in.Frame = frame.Parent
	result := in.ReturnValue

	for _, cap := range frame.Originals {
		cap.Detach()
	}

	in.freeStack(stackBase, proto.Registers)
	return result, nil
}

// execute runs proto's instruction stream to completion on the current
// (already-pushed) frame, matching original_source/vm/interpreter.py's
// _execute_instructions but structured as one Go switch per opcode.
func (in *Interpreter) execute(proto *bytecode.Prototype) error {
	offset := 0
	for {
		insts := proto.Code.Decode(offset)
		if len(insts) == 0 {
			return nil
		}
		jumped := false
		for _, inst := range insts {
			next, err := in.step(proto, inst)
			if err != nil {
				return err
			}
			if next >= 0 {
				offset = next
				jumped = true
				break
			}
		}
		if !jumped {
			return nil
		}
	}
}

func (in *Interpreter) reg(i uint8) *Value { return in.Stack[in.Frame.StackBase+int(i)] }

func (in *Interpreter) span(proto *bytecode.Prototype, offset int) source.Span {
	return proto.Location(offset)
}

// step executes one instruction and returns the next instruction offset
// to resume from, or -1 to continue sequentially (RETURN uses the
// prototype's end offset; JUMP family return their target).
func (in *Interpreter) step(proto *bytecode.Prototype, inst bytecode.Instruction) (int, error) {
	sp := in.span(proto, inst.Offset)

	switch inst.Op {
	case bytecode.LoadVoid:
		*in.reg(inst.Operand1) = Void()
	case bytecode.LoadNull:
		*in.reg(inst.Operand1) = Null()
	case bytecode.LoadBoolean:
		*in.reg(inst.Operand1) = NewBool(inst.Operand2 != 0)
	case bytecode.LoadInteger:
		*in.reg(inst.Operand1) = NewInt(int64(inst.Operand4))
	case bytecode.LoadConstant:
		c := in.Frame.Closure.Executable.Constant(int(inst.Operand4))
		switch c.Kind {
		case bytecode.ConstInt:
			*in.reg(inst.Operand1) = NewInt(c.IntValue)
		case bytecode.ConstFloat:
			*in.reg(inst.Operand1) = NewFloat(c.FloatValue)
		default:
			*in.reg(inst.Operand1) = NewString(c.StringValue)
		}
	case bytecode.LoadBuiltinFunction:
		switch bytecode.BuiltinFunctionID(inst.Operand2) {
		case bytecode.BuiltinTrace:
			*in.reg(inst.Operand1) = NewBuiltinValue(in.builtinTrace)
		default:
			*in.reg(inst.Operand1) = NewBuiltinValue(in.builtinRequire)
		}

	case bytecode.Move:
		src := in.reg(inst.Operand2)
		if src.Kind == KindVoid {
			return 0, IncompatibleOperandTypes(sp, src.Kind)
		}
		*in.reg(inst.Operand1) = *src
	case bytecode.Convert:
		return 0, in.execConvert(sp, inst)

	case bytecode.GetCapture:
		cap := in.Frame.Closure.Captures[int(inst.Operand2)]
		v := cap.Get()
		if v.Kind == KindVoid {
			return 0, IncompatibleOperandTypes(sp, v.Kind)
		}
		*in.reg(inst.Operand1) = v
	case bytecode.SetCapture:
		v := *in.reg(inst.Operand2)
		if v.Kind == KindVoid {
			return 0, IncompatibleOperandTypes(sp, v.Kind)
		}
		in.Frame.Closure.Captures[int(inst.Operand1)].Set(v)

	case bytecode.GetSlot:
		if err := in.execGetSlot(sp, inst); err != nil {
			return 0, err
		}
	case bytecode.SetSlot:
		if err := in.execSetSlot(sp, inst); err != nil {
			return 0, err
		}
	case bytecode.ClearSlot:
		if err := in.execClearSlot(sp, inst); err != nil {
			return 0, err
		}

	case bytecode.Negate:
		v := in.reg(inst.Operand2)
		if !v.IsNumeric() {
			return 0, IncompatibleOperandTypes(sp, v.Kind)
		}
		if v.Kind == KindInt {
			*in.reg(inst.Operand1) = NewInt(-v.IntVal)
		} else {
			*in.reg(inst.Operand1) = NewFloat(-v.FloatVal)
		}

	case bytecode.Add:
		if err := in.execAdd(sp, inst); err != nil {
			return 0, err
		}
	case bytecode.Subtract:
		if err := in.execArith(sp, inst, func(x, y float64) float64 { return x - y }, func(x, y int64) int64 { return x - y }); err != nil {
			return 0, err
		}
	case bytecode.Multiply:
		if err := in.execArith(sp, inst, func(x, y float64) float64 { return x * y }, func(x, y int64) int64 { return x * y }); err != nil {
			return 0, err
		}
	case bytecode.Divide:
		if err := in.execDivide(sp, inst); err != nil {
			return 0, err
		}
	case bytecode.Modulo:
		if err := in.execModulo(sp, inst); err != nil {
			return 0, err
		}

	case bytecode.LogicalNot:
		v := in.reg(inst.Operand2)
		if v.Kind == KindVoid {
			return 0, IncompatibleOperandTypes(sp, v.Kind)
		}
		*in.reg(inst.Operand1) = NewBool(!v.Truthy())

	case bytecode.BitwiseAnd:
		if err := in.execBitwise(sp, inst, func(x, y int64) int64 { return x & y }); err != nil {
			return 0, err
		}
	case bytecode.BitwiseOr:
		if err := in.execBitwise(sp, inst, func(x, y int64) int64 { return x | y }); err != nil {
			return 0, err
		}
	case bytecode.BitwiseXor:
		if err := in.execBitwise(sp, inst, func(x, y int64) int64 { return x ^ y }); err != nil {
			return 0, err
		}
	case bytecode.BitwiseNot:
		v := in.reg(inst.Operand2)
		if v.Kind != KindInt {
			return 0, IncompatibleOperandTypes(sp, v.Kind)
		}
		*in.reg(inst.Operand1) = NewInt(^v.IntVal)
	case bytecode.ShiftLeft:
		if err := in.execBitwise(sp, inst, func(x, y int64) int64 { return x << uint(y) }); err != nil {
			return 0, err
		}
	case bytecode.ShiftRight:
		if err := in.execBitwise(sp, inst, func(x, y int64) int64 { return x >> uint(y) }); err != nil {
			return 0, err
		}

	case bytecode.Equal:
		if err := in.execEquality(sp, inst, false); err != nil {
			return 0, err
		}
	case bytecode.NotEqual:
		if err := in.execEquality(sp, inst, true); err != nil {
			return 0, err
		}
	case bytecode.Less:
		if err := in.execOrdering(sp, inst, func(c int) bool { return c < 0 }); err != nil {
			return 0, err
		}
	case bytecode.NotLess:
		if err := in.execOrdering(sp, inst, func(c int) bool { return c >= 0 }); err != nil {
			return 0, err
		}
	case bytecode.Greater:
		if err := in.execOrdering(sp, inst, func(c int) bool { return c > 0 }); err != nil {
			return 0, err
		}
	case bytecode.NotGreater:
		if err := in.execOrdering(sp, inst, func(c int) bool { return c <= 0 }); err != nil {
			return 0, err
		}

	case bytecode.Jump:
		return int(inst.Operand4), nil
	case bytecode.JumpIfTrue:
		v := in.reg(inst.Operand1)
		if v.Kind == KindVoid {
			return 0, IncompatibleOperandTypes(sp, v.Kind)
		}
		if v.Truthy() {
			return int(inst.Operand4), nil
		}
	case bytecode.JumpIfFalse:
		v := in.reg(inst.Operand1)
		if v.Kind == KindVoid {
			return 0, IncompatibleOperandTypes(sp, v.Kind)
		}
		if !v.Truthy() {
			return int(inst.Operand4), nil
		}

	case bytecode.NewArray:
		*in.reg(inst.Operand1) = NewArrayValue(NewArray())
	case bytecode.NewStructure:
		*in.reg(inst.Operand1) = NewStructValue(NewStructure())

	case bytecode.NewClosure:
		if err := in.execNewClosure(sp, inst); err != nil {
			return 0, err
		}
	case bytecode.KillOriginalCaptures:
		first := int(inst.Operand1)
		for id, cap := range in.Frame.Originals {
			if id >= first {
				cap.Detach()
				delete(in.Frame.Originals, id)
			}
		}
	case bytecode.Call:
		if err := in.execCall(sp, inst); err != nil {
			return 0, err
		}
	case bytecode.Return:
		in.ReturnValue = *in.reg(inst.Operand1)
		return proto.Code.Len(), nil

	case bytecode.NewIterator:
		if err := in.execNewIterator(sp, inst); err != nil {
			return 0, err
		}
	case bytecode.Iterate:
		if err := in.execIterate(sp, inst); err != nil {
			return 0, err
		}

	default:
		return 0, newError(sp, "unimplemented opcode %s", inst.Op)
	}

	return -1, nil
}

func (in *Interpreter) execGetSlot(sp source.Span, inst bytecode.Instruction) error {
	dst := in.reg(inst.Operand1)
	container := in.reg(inst.Operand2)
	key := in.reg(inst.Operand3)

	switch container.Kind {
	case KindString:
		if key.Kind != KindInt {
			return IncompatibleOperandTypes(sp, key.Kind)
		}
		i := key.IntVal
		if i >= 0 && i < int64(len(container.StrVal)) {
			*dst = NewString(string(container.StrVal[i]))
		} else {
			*dst = Void()
		}
	case KindArray:
		if key.Kind != KindInt {
			return IncompatibleOperandTypes(sp, key.Kind)
		}
		a := container.AsArray()
		i := key.IntVal
		if i >= 0 && i < int64(len(a.Elements)) {
			*dst = a.Elements[i]
		} else {
			*dst = Void()
		}
	case KindStruct:
		if key.Kind == KindVoid {
			return IncompatibleOperandTypes(sp, key.Kind)
		}
		if v, ok := container.AsStruct().Get(*key); ok {
			*dst = v
		} else {
			*dst = Void()
		}
	default:
		return IncompatibleOperandTypes(sp, container.Kind)
	}
	return nil
}

func (in *Interpreter) execSetSlot(sp source.Span, inst bytecode.Instruction) error {
	container := in.reg(inst.Operand1)
	key := in.reg(inst.Operand2)
	value := *in.reg(inst.Operand3)

	switch container.Kind {
	case KindArray:
		if key.Kind != KindInt {
			return IncompatibleOperandTypes(sp, key.Kind)
		}
		if value.Kind == KindVoid {
			return IncompatibleOperandTypes(sp, value.Kind)
		}
		a := container.AsArray()
		i := key.IntVal
		if i < 0 || i > int64(len(a.Elements)) {
			return IndexOutOfRange(sp)
		}
		if i == int64(len(a.Elements)) {
			a.Elements = append(a.Elements, value)
		} else {
			a.Elements[i] = value
		}
	case KindStruct:
		if key.Kind == KindVoid || key.Kind > KindString {
			return IncompatibleOperandTypes(sp, key.Kind)
		}
		if value.Kind == KindVoid {
			return IncompatibleOperandTypes(sp, value.Kind)
		}
		container.AsStruct().Set(*key, value)
	default:
		return IncompatibleOperandTypes(sp, container.Kind)
	}
	return nil
}

func (in *Interpreter) execClearSlot(sp source.Span, inst bytecode.Instruction) error {
	container := in.reg(inst.Operand1)
	key := in.reg(inst.Operand2)

	switch container.Kind {
	case KindArray:
		if key.Kind != KindInt {
			return IncompatibleOperandTypes(sp, key.Kind)
		}
		a := container.AsArray()
		i := key.IntVal
		if i < 0 || i > int64(len(a.Elements)) {
			return IndexOutOfRange(sp)
		}
		a.Elements = a.Elements[:i]
	case KindStruct:
		if key.Kind == KindVoid {
			return IncompatibleOperandTypes(sp, key.Kind)
		}
		container.AsStruct().Delete(*key)
	default:
		return IncompatibleOperandTypes(sp, container.Kind)
	}
	return nil
}

// execAdd implements spec.md §4.6's ADD rule: STRING+STRING concatenates,
// numeric operands add with INTEGER+INTEGER staying INTEGER and any
// mixed pairing promoting to FLOATING_POINT.
func (in *Interpreter) execAdd(sp source.Span, inst bytecode.Instruction) error {
	dst := in.reg(inst.Operand1)
	a := in.reg(inst.Operand2)
	b := in.reg(inst.Operand3)

	if a.Kind == KindString {
		if b.Kind != KindString {
			return IncompatibleOperandTypes(sp, a.Kind, b.Kind)
		}
		*dst = NewString(a.StrVal + b.StrVal)
		return nil
	}
	if !a.IsNumeric() || !b.IsNumeric() {
		return IncompatibleOperandTypes(sp, a.Kind, b.Kind)
	}
	if a.Kind == KindInt && b.Kind == KindInt {
		*dst = NewInt(a.IntVal + b.IntVal)
	} else {
		*dst = NewFloat(numericValue(*a) + numericValue(*b))
	}
	return nil
}

func (in *Interpreter) execArith(sp source.Span, inst bytecode.Instruction, ffn func(x, y float64) float64, ifn func(x, y int64) int64) error {
	dst := in.reg(inst.Operand1)
	a := in.reg(inst.Operand2)
	b := in.reg(inst.Operand3)
	if !a.IsNumeric() || !b.IsNumeric() {
		return IncompatibleOperandTypes(sp, a.Kind, b.Kind)
	}
	if a.Kind == KindInt && b.Kind == KindInt {
		*dst = NewInt(ifn(a.IntVal, b.IntVal))
	} else {
		*dst = NewFloat(ffn(numericValue(*a), numericValue(*b)))
	}
	return nil
}

func (in *Interpreter) execDivide(sp source.Span, inst bytecode.Instruction) error {
	dst := in.reg(inst.Operand1)
	a := in.reg(inst.Operand2)
	b := in.reg(inst.Operand3)
	if !a.IsNumeric() || !b.IsNumeric() {
		return IncompatibleOperandTypes(sp, a.Kind, b.Kind)
	}
	if a.Kind == KindInt && b.Kind == KindInt {
		if b.IntVal == 0 {
			return DivideByZero(sp)
		}
		*dst = NewInt(floorDivInt(a.IntVal, b.IntVal))
		return nil
	}
	y := numericValue(*b)
	if y == 0 {
		return DivideByZero(sp)
	}
	*dst = NewFloat(numericValue(*a) / y)
	return nil
}

func floorDivInt(x, y int64) int64 {
	q := x / y
	if (x%y != 0) && ((x < 0) != (y < 0)) {
		q--
	}
	return q
}

func (in *Interpreter) execModulo(sp source.Span, inst bytecode.Instruction) error {
	dst := in.reg(inst.Operand1)
	a := in.reg(inst.Operand2)
	b := in.reg(inst.Operand3)
	if !a.IsNumeric() || !b.IsNumeric() {
		return IncompatibleOperandTypes(sp, a.Kind, b.Kind)
	}
	if a.Kind == KindInt && b.Kind == KindInt {
		if b.IntVal == 0 {
			return DivideByZero(sp)
		}
		m := a.IntVal % b.IntVal
		if m != 0 && ((m < 0) != (b.IntVal < 0)) {
			m += b.IntVal
		}
		*dst = NewInt(m)
		return nil
	}
	x, y := numericValue(*a), numericValue(*b)
	if y == 0 {
		return DivideByZero(sp)
	}
	m := pyMod(x, y)
	*dst = NewFloat(m)
	return nil
}

func pyMod(x, y float64) float64 {
	m := x - y*float64(int64(x/y))
	if m != 0 && (m < 0) != (y < 0) {
		m += y
	}
	return m
}

func (in *Interpreter) execBitwise(sp source.Span, inst bytecode.Instruction, fn func(x, y int64) int64) error {
	dst := in.reg(inst.Operand1)
	a := in.reg(inst.Operand2)
	b := in.reg(inst.Operand3)
	if a.Kind != KindInt || b.Kind != KindInt {
		return IncompatibleOperandTypes(sp, a.Kind, b.Kind)
	}
	*dst = NewInt(fn(a.IntVal, b.IntVal))
	return nil
}

func (in *Interpreter) execEquality(sp source.Span, inst bytecode.Instruction, negate bool) error {
	dst := in.reg(inst.Operand1)
	a := in.reg(inst.Operand2)
	b := in.reg(inst.Operand3)
	if a.Kind == KindVoid || b.Kind == KindVoid {
		return IncompatibleOperandTypes(sp, a.Kind, b.Kind)
	}
	eq := Equal(*a, *b)
	if negate {
		eq = !eq
	}
	*dst = NewBool(eq)
	return nil
}

func (in *Interpreter) execOrdering(sp source.Span, inst bytecode.Instruction, pred func(cmp int) bool) error {
	dst := in.reg(inst.Operand1)
	a := in.reg(inst.Operand2)
	b := in.reg(inst.Operand3)

	if a.Kind == KindString {
		if b.Kind != KindString {
			return IncompatibleOperandTypes(sp, a.Kind, b.Kind)
		}
		*dst = NewBool(pred(stringsCompare(a.StrVal, b.StrVal)))
		return nil
	}
	if !a.IsNumeric() || !b.IsNumeric() {
		return IncompatibleOperandTypes(sp, a.Kind, b.Kind)
	}
	x, y := numericValue(*a), numericValue(*b)
	switch {
	case x < y:
		*dst = NewBool(pred(-1))
	case x > y:
		*dst = NewBool(pred(1))
	default:
		*dst = NewBool(pred(0))
	}
	return nil
}

func stringsCompare(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (in *Interpreter) execNewClosure(sp source.Span, inst bytecode.Instruction) error {
	base := in.Frame.StackBase
	var defaults []Value
	for i := int(inst.Operand2); i < int(inst.Operand3); i++ {
		v := *in.Stack[base+i]
		if v.Kind == KindVoid {
			return IncompatibleOperandTypes(sp, v.Kind)
		}
		defaults = append(defaults, v)
	}
	closure := in.makeClosure(in.Frame.Closure.Executable, int(inst.Operand4), defaults)
	*in.reg(inst.Operand1) = NewClosureValue(closure)
	return nil
}

func (in *Interpreter) execCall(sp source.Span, inst bytecode.Instruction) error {
	dst := in.reg(inst.Operand1)
	stackBase := in.Frame.StackBase + int(inst.Operand2) + 1
	callee := *in.Stack[stackBase-1]
	end := in.Frame.StackBase + int(inst.Operand3)

	for i := stackBase; i < end; i++ {
		if in.Stack[i].Kind == KindVoid {
			return IncompatibleOperandTypes(sp, KindVoid)
		}
	}
	numArgs := end - stackBase

	switch callee.Kind {
	case KindClosure:
		result, err := in.callClosure(sp, callee.AsClosure(), stackBase, numArgs)
		if err != nil {
			return err
		}
		*dst = result
	case KindBuiltin:
		args := make([]Value, numArgs)
		for i := 0; i < numArgs; i++ {
			args[i] = *in.Stack[stackBase+i]
		}
		result, err := callee.AsBuiltin()(in, sp, stackBase, args)
		if err != nil {
			return err
		}
		*dst = result
	default:
		return IncompatibleOperandTypes(sp, callee.Kind)
	}
	return nil
}

func (in *Interpreter) execNewIterator(sp source.Span, inst bytecode.Instruction) error {
	dst := in.reg(inst.Operand1)
	src := in.reg(inst.Operand2)

	switch src.Kind {
	case KindArray:
		*dst = NewIteratorValue(newArrayIterator(src.AsArray()))
	case KindStruct:
		*dst = NewIteratorValue(newStructIterator(src.AsStruct()))
	default:
		return IncompatibleOperandTypes(sp, src.Kind)
	}
	return nil
}

func (in *Interpreter) execIterate(sp source.Span, inst bytecode.Instruction) error {
	keyDst := in.reg(inst.Operand1)
	valDst := in.reg(inst.Operand2)
	it := in.reg(inst.Operand3)
	if it.Kind != KindIterator {
		return IncompatibleOperandTypes(sp, it.Kind)
	}
	k, v := it.AsIterator().advance()
	*keyDst = k
	*valDst = v
	return nil
}

func (in *Interpreter) execConvert(sp source.Span, inst bytecode.Instruction) error {
	dst := in.reg(inst.Operand1)
	src := *in.reg(inst.Operand2)

	switch bytecode.ConversionID(inst.Operand3) {
	case bytecode.ConvertBool:
		if src.Kind == KindVoid {
			return IncompatibleOperandTypes(sp, src.Kind)
		}
		*dst = NewBool(src.Truthy())
	case bytecode.ConvertInt:
		switch src.Kind {
		case KindInt:
			*dst = src
		case KindFloat:
			*dst = NewInt(int64(src.FloatVal))
		case KindString:
			if n, ok := parseIntString(src.StrVal); ok {
				*dst = NewInt(n)
			} else {
				*dst = Void()
			}
		default:
			return IncompatibleOperandTypes(sp, src.Kind)
		}
	case bytecode.ConvertFloat:
		switch src.Kind {
		case KindFloat:
			*dst = src
		case KindInt:
			*dst = NewFloat(float64(src.IntVal))
		case KindString:
			if f, err := strconv.ParseFloat(src.StrVal, 64); err == nil {
				*dst = NewFloat(f)
			} else {
				*dst = Void()
			}
		default:
			return IncompatibleOperandTypes(sp, src.Kind)
		}
	case bytecode.ConvertStr:
		switch src.Kind {
		case KindString:
			*dst = src
		case KindInt, KindFloat:
			*dst = NewString(src.String())
		default:
			return IncompatibleOperandTypes(sp, src.Kind)
		}
	case bytecode.ConvertSizeof:
		switch src.Kind {
		case KindString:
			*dst = NewInt(int64(len(src.StrVal)))
		case KindArray:
			*dst = NewInt(int64(src.AsArray().Len()))
		case KindStruct:
			*dst = NewInt(int64(src.AsStruct().Len()))
		default:
			return IncompatibleOperandTypes(sp, src.Kind)
		}
	case bytecode.ConvertTypeof:
		*dst = NewString(src.Kind.String())
	}
	return nil
}

// parseIntString implements int()'s string-conversion rule from
// spec.md §4.6: decimal, or hex via a 0x/0X prefix, mirroring the
// scanner's own hex-literal handling (scanner/scanner.go's
// scanNumber).
func parseIntString(s string) (int64, bool) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		n, err := strconv.ParseUint(s[2:], 16, 64)
		if err != nil {
			return 0, false
		}
		return int64(n), true
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (in *Interpreter) builtinTrace(interp *Interpreter, span source.Span, stackBase int, args []Value) (Value, error) {
	line := ""
	for i, a := range args {
		if i > 0 {
			line += " "
		}
		line += traceString(a)
	}
	if in.Trace != nil {
		in.Trace(line)
	}
	return Void(), nil
}

// traceString renders trace()'s arguments unquoted, unlike Value.String
// which quotes STRING for use inside containers.
func traceString(v Value) string {
	if v.Kind == KindString {
		return v.StrVal
	}
	return v.String()
}

func (in *Interpreter) builtinRequire(interp *Interpreter, span source.Span, stackBase int, args []Value) (Value, error) {
	if in.Require == nil {
		return Value{}, newError(span, "require() is not available in this host")
	}
	if len(args) == 0 {
		return Value{}, MissingArgument(span)
	}
	return in.Require(in, span, stackBase, args)
}
