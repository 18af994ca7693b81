package compiler

import (
	"math"

	"github.com/kjpearse/lumen/ast"
	"github.com/kjpearse/lumen/bytecode"
	"github.com/kjpearse/lumen/cerr"
	"github.com/kjpearse/lumen/source"
	"github.com/kjpearse/lumen/token"
)

// Generator walks the tagged-union AST and emits bytecode, grounded on
// original_source/compiler/bytecode_generator.py's single-pass
// AST-walking BytecodeGenerator — reimplemented so every visitor
// RETURNS the register it produced (Design Note "evaluation-order
// sensitivity") instead of mutating a shared target stack as a side
// channel, while preserving the same push-exactly-one-per-expression,
// zero-net-per-statement discipline via RegisterStack.
type Generator struct {
	exe *bytecode.Executable
}

// Compile compiles the whole-script top-level function literal (see
// parser.ParseProgram) as prototype 0.
func Compile(program *ast.FuncLit) (*bytecode.Executable, error) {
	g := &Generator{exe: bytecode.NewExecutable()}
	if _, err := g.compileFunctionLiteral(program, nil); err != nil {
		return nil, err
	}
	return g.exe, nil
}

type ctxKind int

const (
	ctxLoop ctxKind = iota
	ctxSwitch
)

// genContext tracks the break/continue patch lists for one loop or
// switch nesting level.
type genContext struct {
	kind            ctxKind
	breakPatches    []int
	continuePatches []int
}

// funcState is the live compilation state for one function body.
type funcState struct {
	gen   *Generator
	proto *bytecode.Prototype
	scope *FunctionScope
	ctxs  []*genContext
}

func (fs *funcState) pushLoop() *genContext {
	c := &genContext{kind: ctxLoop}
	fs.ctxs = append(fs.ctxs, c)
	return c
}

func (fs *funcState) pushSwitch() *genContext {
	c := &genContext{kind: ctxSwitch}
	fs.ctxs = append(fs.ctxs, c)
	return c
}

func (fs *funcState) popCtx() { fs.ctxs = fs.ctxs[:len(fs.ctxs)-1] }

func (fs *funcState) breakCtx() *genContext {
	if len(fs.ctxs) == 0 {
		return nil
	}
	return fs.ctxs[len(fs.ctxs)-1]
}

func (fs *funcState) continueCtx() *genContext {
	for i := len(fs.ctxs) - 1; i >= 0; i-- {
		if fs.ctxs[i].kind == ctxLoop {
			return fs.ctxs[i]
		}
	}
	return nil
}

func (fs *funcState) buf() *bytecode.Buffer { return &fs.proto.Code }

func (fs *funcState) emit(op bytecode.Opcode, o1, o2, o3 uint8, span source.Span) (int, error) {
	off, err := fs.buf().Add(op, o1, o2, o3, 0, false, span)
	if err != nil {
		return 0, err
	}
	fs.proto.RecordLocation(off, span)
	return off, nil
}

func (fs *funcState) emitImm(op bytecode.Opcode, o1, o2, o3 uint8, imm int32, span source.Span) (int, error) {
	off, err := fs.buf().Add(op, o1, o2, o3, imm, true, span)
	if err != nil {
		return 0, err
	}
	fs.proto.RecordLocation(off, span)
	return off, nil
}

func (fs *funcState) patch(offset, target int) { fs.buf().SetOperand4(offset, int32(target)) }

func reg(id int) uint8 { return uint8(id) }

// compileFunctionLiteral compiles lit as a new prototype chained to
// parentScope (nil for the top-level program), returning its id in the
// executable's prototype table.
func (g *Generator) compileFunctionLiteral(lit *ast.FuncLit, parentScope *FunctionScope) (int, error) {
	scope := NewFunctionScope(parentScope)
	proto := bytecode.NewPrototype()
	// Registering before the body is compiled gives an enclosing function a
	// lower id than the functions nested in it, so the program is id 0.
	id := g.exe.AddPrototype(proto)
	fs := &funcState{gen: g, proto: proto, scope: scope}

	for _, p := range lit.Params {
		if p.Default == nil {
			proto.NumRegularParams++
		} else {
			proto.NumDefaultParams++
		}
		if _, err := scope.CreateLocal(p.Name, lit.Span()); err != nil {
			return 0, err
		}
	}
	if lit.HasRest {
		proto.Variadic = true
		if _, err := scope.CreateLocal(lit.Rest, lit.Span()); err != nil {
			return 0, err
		}
	}

	if err := fs.compileStmt(lit.Body); err != nil {
		return 0, err
	}

	voidReg, err := scope.Targets.PushNew(lit.Span())
	if err != nil {
		return 0, err
	}
	if _, err := fs.emit(bytecode.LoadVoid, reg(voidReg), 0, 0, lit.Span()); err != nil {
		return 0, err
	}
	if _, err := fs.emit(bytecode.Return, reg(voidReg), 0, 0, lit.Span()); err != nil {
		return 0, err
	}
	scope.Targets.Pop()

	proto.Registers = scope.Pool.MaxRegisterID() + 1
	return id, nil
}

// ---- expressions ----

func (fs *funcState) compileExpr(e ast.Expr) (int, error) {
	switch n := e.(type) {
	case *ast.NullExpr:
		return fs.pushOp0(bytecode.LoadNull, n.Span())
	case *ast.BoolExpr:
		var v uint8
		if n.Value {
			v = 1
		}
		return fs.pushOp1(bytecode.LoadBoolean, v, n.Span())
	case *ast.IntExpr:
		return fs.compileIntLiteral(n)
	case *ast.FloatExpr:
		return fs.compileFloatLiteral(n)
	case *ast.StringExpr:
		return fs.compileStringLiteral(n)
	case *ast.IdentExpr:
		return fs.compileIdent(n)
	case *ast.BuiltinExpr:
		return fs.compileBuiltin(n)
	case *ast.ArrayLit:
		return fs.compileArrayLit(n)
	case *ast.StructLit:
		return fs.compileStructLit(n)
	case *ast.FuncLit:
		return fs.compileFuncLitExpr(n)
	case *ast.ConvertExpr:
		return fs.compileConvert(n)
	case *ast.PrefixExpr:
		return fs.compilePrefix(n)
	case *ast.PostfixExpr:
		return fs.compilePostfix(n)
	case *ast.BinaryExpr:
		return fs.compileBinary(n)
	case *ast.MemberExpr:
		return fs.compileMemberRead(n)
	case *ast.TernaryExpr:
		return fs.compileTernary(n)
	case *ast.CallExpr:
		return fs.compileCall(n)
	default:
		return 0, cerr.New(e.Span(), "internal: unhandled expression type %T", e)
	}
}

func (fs *funcState) pushOp0(op bytecode.Opcode, span source.Span) (int, error) {
	r, err := fs.scope.Targets.PushNew(span)
	if err != nil {
		return 0, err
	}
	if _, err := fs.emit(op, reg(r), 0, 0, span); err != nil {
		return 0, err
	}
	return r, nil
}

func (fs *funcState) pushOp1(op bytecode.Opcode, operand2 uint8, span source.Span) (int, error) {
	r, err := fs.scope.Targets.PushNew(span)
	if err != nil {
		return 0, err
	}
	if _, err := fs.emit(op, reg(r), operand2, 0, span); err != nil {
		return 0, err
	}
	return r, nil
}

func (fs *funcState) compileIntLiteral(n *ast.IntExpr) (int, error) {
	r, err := fs.scope.Targets.PushNew(n.Span())
	if err != nil {
		return 0, err
	}
	if n.Value >= math.MinInt32 && n.Value <= math.MaxInt32 {
		if _, err := fs.emitImm(bytecode.LoadInteger, reg(r), 0, 0, int32(n.Value), n.Span()); err != nil {
			return 0, err
		}
		return r, nil
	}
	id, err := fs.gen.exe.InternInt(n.Value, n.Span())
	if err != nil {
		return 0, err
	}
	if _, err := fs.emitImm(bytecode.LoadConstant, reg(r), 0, 0, int32(id), n.Span()); err != nil {
		return 0, err
	}
	return r, nil
}

func (fs *funcState) compileFloatLiteral(n *ast.FloatExpr) (int, error) {
	r, err := fs.scope.Targets.PushNew(n.Span())
	if err != nil {
		return 0, err
	}
	id, err := fs.gen.exe.InternFloat(n.Value, n.Span())
	if err != nil {
		return 0, err
	}
	if _, err := fs.emitImm(bytecode.LoadConstant, reg(r), 0, 0, int32(id), n.Span()); err != nil {
		return 0, err
	}
	return r, nil
}

func (fs *funcState) compileStringLiteral(n *ast.StringExpr) (int, error) {
	r, err := fs.scope.Targets.PushNew(n.Span())
	if err != nil {
		return 0, err
	}
	id, err := fs.gen.exe.InternString(n.Value, n.Span())
	if err != nil {
		return 0, err
	}
	if _, err := fs.emitImm(bytecode.LoadConstant, reg(r), 0, 0, int32(id), n.Span()); err != nil {
		return 0, err
	}
	return r, nil
}

func (fs *funcState) compileIdent(n *ast.IdentExpr) (int, error) {
	res, err := fs.scope.Resolve(n.Name, n.Span())
	if err != nil {
		return 0, err
	}
	if res.Local {
		fs.scope.Targets.PushExisting(res.ID)
		return res.ID, nil
	}
	r, err := fs.scope.Targets.PushNew(n.Span())
	if err != nil {
		return 0, err
	}
	if _, err := fs.emit(bytecode.GetCapture, reg(r), reg(res.ID), 0, n.Span()); err != nil {
		return 0, err
	}
	return r, nil
}

func (fs *funcState) compileBuiltin(n *ast.BuiltinExpr) (int, error) {
	var id bytecode.BuiltinFunctionID
	switch token.Kind(n.Name) {
	case token.Trace:
		id = bytecode.BuiltinTrace
	case token.Require:
		id = bytecode.BuiltinRequire
	default:
		return 0, cerr.New(n.Span(), "internal: unknown builtin %q", n.Name)
	}
	return fs.pushOp1(bytecode.LoadBuiltinFunction, uint8(id), n.Span())
}

func (fs *funcState) compileArrayLit(n *ast.ArrayLit) (int, error) {
	dst, err := fs.scope.Targets.PushNew(n.Span())
	if err != nil {
		return 0, err
	}
	if _, err := fs.emit(bytecode.NewArray, reg(dst), 0, 0, n.Span()); err != nil {
		return 0, err
	}

	counter := int64(0)
	for _, el := range n.Elements {
		var idxReg int
		if el.Index != nil {
			idxReg, err = fs.compileExpr(el.Index)
			if err != nil {
				return 0, err
			}
			if lit, ok := el.Index.(*ast.IntExpr); ok {
				counter = lit.Value + 1
			}
		} else {
			idxReg, err = fs.scope.Targets.PushNew(el.Value.Span())
			if err != nil {
				return 0, err
			}
			if counter < math.MinInt32 || counter > math.MaxInt32 {
				return 0, cerr.New(el.Value.Span(), "array index too large")
			}
			if _, err := fs.emitImm(bytecode.LoadInteger, reg(idxReg), 0, 0, int32(counter), el.Value.Span()); err != nil {
				return 0, err
			}
			counter++
		}
		valReg, err := fs.compileExpr(el.Value)
		if err != nil {
			return 0, err
		}
		if _, err := fs.emit(bytecode.SetSlot, reg(dst), reg(idxReg), reg(valReg), el.Value.Span()); err != nil {
			return 0, err
		}
		fs.scope.Targets.Pop()
		fs.scope.Targets.Pop()
	}
	return dst, nil
}

func (fs *funcState) compileStructLit(n *ast.StructLit) (int, error) {
	dst, err := fs.scope.Targets.PushNew(n.Span())
	if err != nil {
		return 0, err
	}
	if _, err := fs.emit(bytecode.NewStructure, reg(dst), 0, 0, n.Span()); err != nil {
		return 0, err
	}
	for _, f := range n.Fields {
		keyReg, err := fs.compileExpr(f.Key)
		if err != nil {
			return 0, err
		}
		valReg, err := fs.compileExpr(f.Value)
		if err != nil {
			return 0, err
		}
		if _, err := fs.emit(bytecode.SetSlot, reg(dst), reg(keyReg), reg(valReg), f.Value.Span()); err != nil {
			return 0, err
		}
		fs.scope.Targets.Pop()
		fs.scope.Targets.Pop()
	}
	return dst, nil
}

// compileFuncLitExpr evaluates default-argument expressions into a
// contiguous register range in the ENCLOSING function, recursively
// compiles the nested prototype, and emits NEW_CLOSURE. The destination
// register is allocated before the defaults so it can't alias them;
// the defaults are freed (their values already consumed by NEW_CLOSURE)
// immediately after emission.
func (fs *funcState) compileFuncLitExpr(n *ast.FuncLit) (int, error) {
	dst, err := fs.scope.Targets.PushNew(n.Span())
	if err != nil {
		return 0, err
	}

	depth := fs.scope.Targets.Depth()
	var defaultRegs []int
	for _, p := range n.Params {
		if p.Default == nil {
			continue
		}
		r, err := fs.compileExpr(p.Default)
		if err != nil {
			return 0, err
		}
		if r != fs.scope.Pool.Size()-1 {
			t, err := fs.scope.Targets.PushNew(p.Default.Span())
			if err != nil {
				return 0, err
			}
			if _, err := fs.emit(bytecode.Move, reg(t), reg(r), 0, p.Default.Span()); err != nil {
				return 0, err
			}
			r = t
		}
		defaultRegs = append(defaultRegs, r)
	}

	protoID, err := fs.gen.compileFunctionLiteral(n, fs.scope)
	if err != nil {
		return 0, err
	}

	bDefaults, eDefaults := 0, 0
	if len(defaultRegs) > 0 {
		bDefaults = defaultRegs[0]
		eDefaults = defaultRegs[len(defaultRegs)-1] + 1
	}
	if _, err := fs.emitImm(bytecode.NewClosure, reg(dst), reg(bDefaults), reg(eDefaults), int32(protoID), n.Span()); err != nil {
		return 0, err
	}

	for fs.scope.Targets.Depth() > depth {
		fs.scope.Targets.Pop()
	}
	return dst, nil
}

var conversionIDs = map[token.Kind]bytecode.ConversionID{
	token.Bool:   bytecode.ConvertBool,
	token.Int:    bytecode.ConvertInt,
	token.Float_: bytecode.ConvertFloat,
	token.Str:    bytecode.ConvertStr,
	token.Sizeof: bytecode.ConvertSizeof,
	token.Typeof: bytecode.ConvertTypeof,
}

func (fs *funcState) compileConvert(n *ast.ConvertExpr) (int, error) {
	id, ok := conversionIDs[n.Op]
	if !ok {
		return 0, cerr.New(n.Span(), "internal: unknown conversion %q", n.Op)
	}
	dst, err := fs.scope.Targets.PushNew(n.Span())
	if err != nil {
		return 0, err
	}
	operandReg, err := fs.compileExpr(n.Operand)
	if err != nil {
		return 0, err
	}
	if _, err := fs.emit(bytecode.Convert, reg(dst), reg(operandReg), uint8(id), n.Span()); err != nil {
		return 0, err
	}
	fs.scope.Targets.Pop()
	return dst, nil
}

func isLValueAST(e ast.Expr) bool {
	switch e.(type) {
	case *ast.IdentExpr, *ast.MemberExpr:
		return true
	default:
		return false
	}
}

func foldNegate(e ast.Expr) (ast.Expr, bool) {
	switch lit := e.(type) {
	case *ast.IntExpr:
		return ast.NewInt(lit.Span(), -lit.Value), true
	case *ast.FloatExpr:
		return ast.NewFloat(lit.Span(), -lit.Value), true
	default:
		return nil, false
	}
}

func (fs *funcState) compilePrefix(n *ast.PrefixExpr) (int, error) {
	switch n.Op {
	case token.Inc, token.Dec:
		return fs.compilePreIncDec(n)
	case token.Plus:
		return fs.compileExpr(n.Operand)
	case token.Minus:
		if folded, ok := foldNegate(n.Operand); ok {
			return fs.compileExpr(folded)
		}
		return fs.compileUnaryOp(bytecode.Negate, n.Operand, n.Span())
	case token.LogicalNot:
		return fs.compileUnaryOp(bytecode.LogicalNot, n.Operand, n.Span())
	case token.BitNot:
		return fs.compileUnaryOp(bytecode.BitwiseNot, n.Operand, n.Span())
	default:
		return 0, cerr.New(n.Span(), "internal: unhandled prefix operator %q", n.Op)
	}
}

func (fs *funcState) compileUnaryOp(op bytecode.Opcode, operand ast.Expr, span source.Span) (int, error) {
	dst, err := fs.scope.Targets.PushNew(span)
	if err != nil {
		return 0, err
	}
	operandReg, err := fs.compileExpr(operand)
	if err != nil {
		return 0, err
	}
	if _, err := fs.emit(op, reg(dst), reg(operandReg), 0, span); err != nil {
		return 0, err
	}
	fs.scope.Targets.Pop()
	return dst, nil
}

func incDecOp(op token.Kind) bytecode.Opcode {
	if op == token.Dec {
		return bytecode.Subtract
	}
	return bytecode.Add
}

func (fs *funcState) compilePreIncDec(n *ast.PrefixExpr) (int, error) {
	if !isLValueAST(n.Operand) {
		return 0, cerr.LvalueRequired(n.Operand.Span())
	}
	opReg, err := fs.compileExpr(n.Operand)
	if err != nil {
		return 0, err
	}
	one, err := fs.scope.Targets.PushNew(n.Span())
	if err != nil {
		return 0, err
	}
	if _, err := fs.emitImm(bytecode.LoadInteger, reg(one), 0, 0, 1, n.Span()); err != nil {
		return 0, err
	}
	if _, err := fs.emit(incDecOp(n.Op), reg(opReg), reg(opReg), reg(one), n.Span()); err != nil {
		return 0, err
	}
	fs.scope.Targets.Pop()
	if err := fs.compileLValueWrite(n.Operand, opReg); err != nil {
		return 0, err
	}
	return opReg, nil
}

func (fs *funcState) compilePostfix(n *ast.PostfixExpr) (int, error) {
	if !isLValueAST(n.Operand) {
		return 0, cerr.LvalueRequired(n.Operand.Span())
	}
	pre, err := fs.scope.Targets.PushNew(n.Span())
	if err != nil {
		return 0, err
	}
	opReg, err := fs.compileExpr(n.Operand)
	if err != nil {
		return 0, err
	}
	if _, err := fs.emit(bytecode.Move, reg(pre), reg(opReg), 0, n.Span()); err != nil {
		return 0, err
	}
	one, err := fs.scope.Targets.PushNew(n.Span())
	if err != nil {
		return 0, err
	}
	if _, err := fs.emitImm(bytecode.LoadInteger, reg(one), 0, 0, 1, n.Span()); err != nil {
		return 0, err
	}
	if _, err := fs.emit(incDecOp(n.Op), reg(opReg), reg(opReg), reg(one), n.Span()); err != nil {
		return 0, err
	}
	fs.scope.Targets.Pop()
	if err := fs.compileLValueWrite(n.Operand, opReg); err != nil {
		return 0, err
	}
	fs.scope.Targets.Pop()
	return pre, nil
}

func (fs *funcState) compileLValueWrite(target ast.Expr, valueReg int) error {
	switch t := target.(type) {
	case *ast.IdentExpr:
		res, err := fs.scope.Resolve(t.Name, t.Span())
		if err != nil {
			return err
		}
		if res.Local {
			if res.ID != valueReg {
				if _, err := fs.emit(bytecode.Move, reg(res.ID), reg(valueReg), 0, t.Span()); err != nil {
					return err
				}
			}
			return nil
		}
		_, err = fs.emit(bytecode.SetCapture, reg(res.ID), reg(valueReg), 0, t.Span())
		return err
	case *ast.MemberExpr:
		objReg, err := fs.compileExpr(t.Object)
		if err != nil {
			return err
		}
		keyReg, err := fs.compileExpr(t.Key)
		if err != nil {
			return err
		}
		if _, err := fs.emit(bytecode.SetSlot, reg(objReg), reg(keyReg), reg(valueReg), t.Span()); err != nil {
			return err
		}
		fs.scope.Targets.Pop()
		fs.scope.Targets.Pop()
		return nil
	default:
		return cerr.LvalueRequired(target.Span())
	}
}

var binaryOpcodes = map[token.Kind]bytecode.Opcode{
	token.Plus:    bytecode.Add,
	token.Minus:   bytecode.Subtract,
	token.Star:    bytecode.Multiply,
	token.Slash:   bytecode.Divide,
	token.Percent: bytecode.Modulo,
	token.BitAnd:  bytecode.BitwiseAnd,
	token.BitOr:   bytecode.BitwiseOr,
	token.BitXor:  bytecode.BitwiseXor,
	token.Shl:     bytecode.ShiftLeft,
	token.Shr:     bytecode.ShiftRight,
	token.Eq:      bytecode.Equal,
	token.Ne:      bytecode.NotEqual,
	token.Lt:      bytecode.Less,
	token.Le:      bytecode.NotGreater,
	token.Gt:      bytecode.Greater,
	token.Ge:      bytecode.NotLess,
}

var compoundOpcodes = map[token.Kind]bytecode.Opcode{
	token.PlusAssign:    bytecode.Add,
	token.MinusAssign:   bytecode.Subtract,
	token.StarAssign:    bytecode.Multiply,
	token.SlashAssign:   bytecode.Divide,
	token.PercentAssign: bytecode.Modulo,
	token.ShlAssign:     bytecode.ShiftLeft,
	token.ShrAssign:     bytecode.ShiftRight,
	token.AndAssign:     bytecode.BitwiseAnd,
	token.OrAssign:      bytecode.BitwiseOr,
	token.XorAssign:     bytecode.BitwiseXor,
}

func (fs *funcState) compileBinary(n *ast.BinaryExpr) (int, error) {
	switch n.Op {
	case token.Comma:
		_, err := fs.compileExpr(n.Left)
		if err != nil {
			return 0, err
		}
		fs.scope.Targets.Pop()
		return fs.compileExpr(n.Right)
	case token.Assign:
		return fs.compileAssign(n)
	case token.LogicalAnd, token.LogicalOr:
		return fs.compileShortCircuit(n)
	}
	if op, ok := compoundOpcodes[n.Op]; ok {
		return fs.compileCompoundAssign(n, op)
	}
	if op, ok := binaryOpcodes[n.Op]; ok {
		return fs.compilePlainBinary(n, op)
	}
	return 0, cerr.New(n.Span(), "internal: unhandled binary operator %q", n.Op)
}

func (fs *funcState) compileAssign(n *ast.BinaryExpr) (int, error) {
	if !isLValueAST(n.Left) {
		return 0, cerr.LvalueRequired(n.Left.Span())
	}
	valReg, err := fs.compileExpr(n.Right)
	if err != nil {
		return 0, err
	}
	if err := fs.compileLValueWrite(n.Left, valReg); err != nil {
		return 0, err
	}
	return valReg, nil
}

func (fs *funcState) compileShortCircuit(n *ast.BinaryExpr) (int, error) {
	t, err := fs.scope.Targets.PushNew(n.Span())
	if err != nil {
		return 0, err
	}
	lReg, err := fs.compileExpr(n.Left)
	if err != nil {
		return 0, err
	}
	if _, err := fs.emit(bytecode.Move, reg(t), reg(lReg), 0, n.Span()); err != nil {
		return 0, err
	}
	fs.scope.Targets.Pop()

	op := bytecode.JumpIfFalse
	if n.Op == token.LogicalOr {
		op = bytecode.JumpIfTrue
	}
	jumpOffset, err := fs.emitImm(op, reg(t), 0, 0, 0, n.Span())
	if err != nil {
		return 0, err
	}

	rReg, err := fs.compileExpr(n.Right)
	if err != nil {
		return 0, err
	}
	if rReg != t {
		if _, err := fs.emit(bytecode.Move, reg(t), reg(rReg), 0, n.Span()); err != nil {
			return 0, err
		}
	}
	fs.scope.Targets.Pop()

	fs.patch(jumpOffset, fs.buf().NextOffset())
	return t, nil
}

func (fs *funcState) compilePlainBinary(n *ast.BinaryExpr, op bytecode.Opcode) (int, error) {
	dst, err := fs.scope.Targets.PushNew(n.Span())
	if err != nil {
		return 0, err
	}
	lReg, err := fs.compileExpr(n.Left)
	if err != nil {
		return 0, err
	}
	rReg, err := fs.compileExpr(n.Right)
	if err != nil {
		return 0, err
	}
	if _, err := fs.emit(op, reg(dst), reg(lReg), reg(rReg), n.Span()); err != nil {
		return 0, err
	}
	fs.scope.Targets.Pop()
	fs.scope.Targets.Pop()
	return dst, nil
}

func (fs *funcState) compileCompoundAssign(n *ast.BinaryExpr, op bytecode.Opcode) (int, error) {
	if !isLValueAST(n.Left) {
		return 0, cerr.LvalueRequired(n.Left.Span())
	}
	result, err := fs.scope.Targets.PushNew(n.Span())
	if err != nil {
		return 0, err
	}
	lReg, err := fs.compileExpr(n.Left)
	if err != nil {
		return 0, err
	}
	rReg, err := fs.compileExpr(n.Right)
	if err != nil {
		return 0, err
	}
	if _, err := fs.emit(op, reg(result), reg(lReg), reg(rReg), n.Span()); err != nil {
		return 0, err
	}
	fs.scope.Targets.Pop()
	fs.scope.Targets.Pop()
	if err := fs.compileLValueWrite(n.Left, result); err != nil {
		return 0, err
	}
	return result, nil
}

func (fs *funcState) compileMemberRead(n *ast.MemberExpr) (int, error) {
	dst, err := fs.scope.Targets.PushNew(n.Span())
	if err != nil {
		return 0, err
	}
	objReg, err := fs.compileExpr(n.Object)
	if err != nil {
		return 0, err
	}
	keyReg, err := fs.compileExpr(n.Key)
	if err != nil {
		return 0, err
	}
	if _, err := fs.emit(bytecode.GetSlot, reg(dst), reg(objReg), reg(keyReg), n.Span()); err != nil {
		return 0, err
	}
	fs.scope.Targets.Pop()
	fs.scope.Targets.Pop()
	return dst, nil
}

func (fs *funcState) compileTernary(n *ast.TernaryExpr) (int, error) {
	condReg, err := fs.compileExpr(n.Cond)
	if err != nil {
		return 0, err
	}
	jumpIfFalseOffset, err := fs.emitImm(bytecode.JumpIfFalse, reg(condReg), 0, 0, 0, n.Span())
	if err != nil {
		return 0, err
	}
	fs.scope.Targets.Pop()

	t, err := fs.scope.Targets.PushNew(n.Span())
	if err != nil {
		return 0, err
	}
	thenReg, err := fs.compileExpr(n.Then)
	if err != nil {
		return 0, err
	}
	if thenReg != t {
		if _, err := fs.emit(bytecode.Move, reg(t), reg(thenReg), 0, n.Then.Span()); err != nil {
			return 0, err
		}
	}
	fs.scope.Targets.Pop()

	jumpPastElseOffset, err := fs.emitImm(bytecode.Jump, 0, 0, 0, 0, n.Span())
	if err != nil {
		return 0, err
	}
	fs.patch(jumpIfFalseOffset, fs.buf().NextOffset())

	elseReg, err := fs.compileExpr(n.Else)
	if err != nil {
		return 0, err
	}
	if elseReg != t {
		if _, err := fs.emit(bytecode.Move, reg(t), reg(elseReg), 0, n.Else.Span()); err != nil {
			return 0, err
		}
	}
	fs.scope.Targets.Pop()

	fs.patch(jumpPastElseOffset, fs.buf().NextOffset())
	return t, nil
}

func (fs *funcState) compileCall(n *ast.CallExpr) (int, error) {
	dst, err := fs.scope.Targets.PushNew(n.Span())
	if err != nil {
		return 0, err
	}
	depth := fs.scope.Targets.Depth()
	// Callee and arguments must sit in consecutive registers, so a named
	// local is copied into a fresh temporary rather than used in place.
	operand := func(e ast.Expr) (int, error) {
		r, err := fs.compileExpr(e)
		if err != nil || r == fs.scope.Pool.Size()-1 {
			return r, err
		}
		t, err := fs.scope.Targets.PushNew(e.Span())
		if err != nil {
			return 0, err
		}
		_, err = fs.emit(bytecode.Move, reg(t), reg(r), 0, e.Span())
		return t, err
	}
	calleeReg, err := operand(n.Callee)
	if err != nil {
		return 0, err
	}
	argRegs := make([]int, 0, len(n.Args))
	for _, a := range n.Args {
		r, err := operand(a)
		if err != nil {
			return 0, err
		}
		argRegs = append(argRegs, r)
	}
	end := calleeReg + 1 + len(argRegs)
	if end > MaxRegisters-1 {
		return 0, cerr.StackTooDeep(n.Span())
	}
	if _, err := fs.emit(bytecode.Call, reg(dst), reg(calleeReg), reg(end), n.Span()); err != nil {
		return 0, err
	}
	for fs.scope.Targets.Depth() > depth {
		fs.scope.Targets.Pop()
	}
	return dst, nil
}

// ---- statements ----

func (fs *funcState) compileStmt(s ast.Stmt) error {
	switch n := s.(type) {
	case *ast.NullStmt:
		return nil
	case *ast.BlockStmt:
		return fs.compileBlock(n)
	case *ast.AutoStmt:
		return fs.compileAuto(n)
	case *ast.ReturnStmt:
		return fs.compileReturn(n)
	case *ast.DeleteStmt:
		return fs.compileDelete(n)
	case *ast.BreakStmt:
		return fs.compileBreak(n)
	case *ast.ContinueStmt:
		return fs.compileContinue(n)
	case *ast.IfStmt:
		return fs.compileIf(n)
	case *ast.SwitchStmt:
		return fs.compileSwitch(n)
	case *ast.WhileStmt:
		return fs.compileWhile(n)
	case *ast.DoWhileStmt:
		return fs.compileDoWhile(n)
	case *ast.ForStmt:
		return fs.compileFor(n)
	case *ast.ForeachStmt:
		return fs.compileForeach(n)
	case *ast.ExprStmt:
		return fs.compileExprStmt(n)
	default:
		return cerr.New(s.Span(), "internal: unhandled statement type %T", s)
	}
}

func (fs *funcState) compileBlock(n *ast.BlockStmt) error {
	fs.scope.Pool.EnterScope()
	for _, stmt := range n.Stmts {
		if err := fs.compileStmt(stmt); err != nil {
			return err
		}
	}
	first, hadMarked := fs.scope.Pool.ExitScope()
	if hadMarked {
		if _, err := fs.emit(bytecode.KillOriginalCaptures, reg(first), 0, 0, n.Span()); err != nil {
			return err
		}
	}
	return nil
}

func (fs *funcState) compileAuto(n *ast.AutoStmt) error {
	for _, d := range n.Decls {
		local, err := fs.scope.CreateLocal(d.Name, n.Span())
		if err != nil {
			return err
		}
		if d.Init == nil {
			if _, err := fs.emit(bytecode.LoadVoid, reg(local), 0, 0, n.Span()); err != nil {
				return err
			}
			continue
		}
		tmp, err := fs.compileExpr(d.Init)
		if err != nil {
			return err
		}
		if tmp != local {
			if _, err := fs.emit(bytecode.Move, reg(local), reg(tmp), 0, d.Init.Span()); err != nil {
				return err
			}
		}
		fs.scope.Targets.Pop()
	}
	return nil
}

func (fs *funcState) compileReturn(n *ast.ReturnStmt) error {
	var r int
	var err error
	if n.Value == nil {
		r, err = fs.scope.Targets.PushNew(n.Span())
		if err != nil {
			return err
		}
		if _, err := fs.emit(bytecode.LoadVoid, reg(r), 0, 0, n.Span()); err != nil {
			return err
		}
	} else {
		r, err = fs.compileExpr(n.Value)
		if err != nil {
			return err
		}
	}
	if _, err := fs.emit(bytecode.Return, reg(r), 0, 0, n.Span()); err != nil {
		return err
	}
	fs.scope.Targets.Pop()
	return nil
}

func (fs *funcState) compileDelete(n *ast.DeleteStmt) error {
	objReg, err := fs.compileExpr(n.Object)
	if err != nil {
		return err
	}
	keyReg, err := fs.compileExpr(n.Key)
	if err != nil {
		return err
	}
	if _, err := fs.emit(bytecode.ClearSlot, reg(objReg), reg(keyReg), 0, n.Span()); err != nil {
		return err
	}
	fs.scope.Targets.Pop()
	fs.scope.Targets.Pop()
	return nil
}

func (fs *funcState) compileBreak(n *ast.BreakStmt) error {
	ctx := fs.breakCtx()
	if ctx == nil {
		return cerr.New(n.Span(), "break outside loop or switch")
	}
	off, err := fs.emitImm(bytecode.Jump, 0, 0, 0, 0, n.Span())
	if err != nil {
		return err
	}
	ctx.breakPatches = append(ctx.breakPatches, off)
	return nil
}

func (fs *funcState) compileContinue(n *ast.ContinueStmt) error {
	ctx := fs.continueCtx()
	if ctx == nil {
		return cerr.New(n.Span(), "continue outside loop")
	}
	off, err := fs.emitImm(bytecode.Jump, 0, 0, 0, 0, n.Span())
	if err != nil {
		return err
	}
	ctx.continuePatches = append(ctx.continuePatches, off)
	return nil
}

func (fs *funcState) compileIf(n *ast.IfStmt) error {
	opened := n.Init != nil
	if opened {
		fs.scope.Pool.EnterScope()
		if err := fs.compileStmt(n.Init); err != nil {
			return err
		}
	}

	condReg, err := fs.compileExpr(n.Cond)
	if err != nil {
		return err
	}
	jumpIfFalseOffset, err := fs.emitImm(bytecode.JumpIfFalse, reg(condReg), 0, 0, 0, n.Span())
	if err != nil {
		return err
	}
	fs.scope.Targets.Pop()

	if err := fs.compileStmt(n.Then); err != nil {
		return err
	}

	if n.Else != nil {
		jumpPastElseOffset, err := fs.emitImm(bytecode.Jump, 0, 0, 0, 0, n.Span())
		if err != nil {
			return err
		}
		fs.patch(jumpIfFalseOffset, fs.buf().NextOffset())
		if err := fs.compileStmt(n.Else); err != nil {
			return err
		}
		fs.patch(jumpPastElseOffset, fs.buf().NextOffset())
	} else {
		fs.patch(jumpIfFalseOffset, fs.buf().NextOffset())
	}

	if opened {
		first, hadMarked := fs.scope.Pool.ExitScope()
		if hadMarked {
			if _, err := fs.emit(bytecode.KillOriginalCaptures, reg(first), 0, 0, n.Span()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (fs *funcState) compileSwitch(n *ast.SwitchStmt) error {
	opened := n.Init != nil
	if opened {
		fs.scope.Pool.EnterScope()
		if err := fs.compileStmt(n.Init); err != nil {
			return err
		}
	}

	discReg, err := fs.compileExpr(n.Expr)
	if err != nil {
		return err
	}

	ctx := fs.pushSwitch()

	type clauseInfo struct {
		testStart, bodyStart int
		hasLabel              bool
		testJump, fallJump    int
	}
	infos := make([]clauseInfo, len(n.Clauses))

	for i, clause := range n.Clauses {
		info := clauseInfo{testJump: -1}
		info.testStart = fs.buf().NextOffset()
		if clause.Label != nil {
			info.hasLabel = true
			labelReg, err := fs.compileExpr(clause.Label)
			if err != nil {
				return err
			}
			cmpReg, err := fs.scope.Targets.PushNew(clause.Label.Span())
			if err != nil {
				return err
			}
			if _, err := fs.emit(bytecode.Equal, reg(cmpReg), reg(discReg), reg(labelReg), clause.Label.Span()); err != nil {
				return err
			}
			off, err := fs.emitImm(bytecode.JumpIfFalse, reg(cmpReg), 0, 0, 0, clause.Label.Span())
			if err != nil {
				return err
			}
			info.testJump = off
			fs.scope.Targets.Pop()
			fs.scope.Targets.Pop()
		}
		info.bodyStart = fs.buf().NextOffset()
		for _, stmt := range clause.Stmts {
			if err := fs.compileStmt(stmt); err != nil {
				return err
			}
		}
		fallOff, err := fs.emitImm(bytecode.Jump, 0, 0, 0, 0, n.Span())
		if err != nil {
			return err
		}
		info.fallJump = fallOff
		infos[i] = info
	}

	fs.popCtx()
	exit := fs.buf().NextOffset()

	for i, info := range infos {
		if info.testJump != -1 {
			var target int
			if i+1 < len(infos) {
				if infos[i+1].hasLabel {
					target = infos[i+1].testStart
				} else {
					target = infos[i+1].bodyStart
				}
			} else {
				target = exit
			}
			fs.patch(info.testJump, target)
		}
		var fallTarget int
		if i+1 < len(infos) {
			fallTarget = infos[i+1].bodyStart
		} else {
			fallTarget = exit
		}
		fs.patch(info.fallJump, fallTarget)
	}
	for _, off := range ctx.breakPatches {
		fs.patch(off, exit)
	}

	fs.scope.Targets.Pop()

	if opened {
		first, hadMarked := fs.scope.Pool.ExitScope()
		if hadMarked {
			if _, err := fs.emit(bytecode.KillOriginalCaptures, reg(first), 0, 0, n.Span()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (fs *funcState) compileWhile(n *ast.WhileStmt) error {
	l1 := fs.buf().NextOffset()
	condReg, err := fs.compileExpr(n.Cond)
	if err != nil {
		return err
	}
	ctx := fs.pushLoop()
	exitOffset, err := fs.emitImm(bytecode.JumpIfFalse, reg(condReg), 0, 0, 0, n.Span())
	if err != nil {
		return err
	}
	fs.scope.Targets.Pop()
	ctx.breakPatches = append(ctx.breakPatches, exitOffset)

	if err := fs.compileStmt(n.Body); err != nil {
		return err
	}
	if _, err := fs.emitImm(bytecode.Jump, 0, 0, 0, int32(l1), n.Span()); err != nil {
		return err
	}

	fs.popCtx()
	for _, off := range ctx.continuePatches {
		fs.patch(off, l1)
	}
	exit := fs.buf().NextOffset()
	for _, off := range ctx.breakPatches {
		fs.patch(off, exit)
	}
	return nil
}

func (fs *funcState) compileDoWhile(n *ast.DoWhileStmt) error {
	l1 := fs.buf().NextOffset()
	ctx := fs.pushLoop()
	if err := fs.compileStmt(n.Body); err != nil {
		return err
	}
	l2 := fs.buf().NextOffset()
	condReg, err := fs.compileExpr(n.Cond)
	if err != nil {
		return err
	}
	exitOffset, err := fs.emitImm(bytecode.JumpIfFalse, reg(condReg), 0, 0, 0, n.Span())
	if err != nil {
		return err
	}
	fs.scope.Targets.Pop()
	ctx.breakPatches = append(ctx.breakPatches, exitOffset)
	if _, err := fs.emitImm(bytecode.Jump, 0, 0, 0, int32(l1), n.Span()); err != nil {
		return err
	}

	fs.popCtx()
	for _, off := range ctx.continuePatches {
		fs.patch(off, l2)
	}
	exit := fs.buf().NextOffset()
	for _, off := range ctx.breakPatches {
		fs.patch(off, exit)
	}
	return nil
}

func (fs *funcState) compileFor(n *ast.ForStmt) error {
	opened := n.Init != nil
	if opened {
		fs.scope.Pool.EnterScope()
		if err := fs.compileStmt(n.Init); err != nil {
			return err
		}
	}

	l1 := fs.buf().NextOffset()
	ctx := fs.pushLoop()
	if n.Cond != nil {
		condReg, err := fs.compileExpr(n.Cond)
		if err != nil {
			return err
		}
		off, err := fs.emitImm(bytecode.JumpIfFalse, reg(condReg), 0, 0, 0, n.Span())
		if err != nil {
			return err
		}
		fs.scope.Targets.Pop()
		ctx.breakPatches = append(ctx.breakPatches, off)
	}

	if err := fs.compileStmt(n.Body); err != nil {
		return err
	}

	postLabel := fs.buf().NextOffset()
	if n.Post != nil {
		_, err := fs.compileExpr(n.Post)
		if err != nil {
			return err
		}
		fs.scope.Targets.Pop()
	}
	if _, err := fs.emitImm(bytecode.Jump, 0, 0, 0, int32(l1), n.Span()); err != nil {
		return err
	}

	fs.popCtx()
	for _, off := range ctx.continuePatches {
		fs.patch(off, postLabel)
	}
	exit := fs.buf().NextOffset()
	for _, off := range ctx.breakPatches {
		fs.patch(off, exit)
	}

	if opened {
		first, hadMarked := fs.scope.Pool.ExitScope()
		if hadMarked {
			if _, err := fs.emit(bytecode.KillOriginalCaptures, reg(first), 0, 0, n.Span()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (fs *funcState) compileForeach(n *ast.ForeachStmt) error {
	fs.scope.Pool.EnterScope()
	keyReg, err := fs.scope.CreateLocal(n.KeyName, n.Span())
	if err != nil {
		return err
	}
	valReg, err := fs.scope.CreateLocal(n.ValueName, n.Span())
	if err != nil {
		return err
	}
	iterReg, err := fs.scope.Pool.AllocateAnonymous(n.Span())
	if err != nil {
		return err
	}

	containerReg, err := fs.compileExpr(n.Container)
	if err != nil {
		return err
	}
	if _, err := fs.emit(bytecode.NewIterator, reg(iterReg), reg(containerReg), 0, n.Span()); err != nil {
		return err
	}
	fs.scope.Targets.Pop()

	l1 := fs.buf().NextOffset()
	ctx := fs.pushLoop()
	exitOffset, err := fs.emitImm(bytecode.JumpIfFalse, reg(iterReg), 0, 0, 0, n.Span())
	if err != nil {
		return err
	}
	ctx.breakPatches = append(ctx.breakPatches, exitOffset)

	if _, err := fs.emit(bytecode.Iterate, reg(keyReg), reg(valReg), reg(iterReg), n.Span()); err != nil {
		return err
	}

	if err := fs.compileStmt(n.Body); err != nil {
		return err
	}
	if _, err := fs.emitImm(bytecode.Jump, 0, 0, 0, int32(l1), n.Span()); err != nil {
		return err
	}

	fs.popCtx()
	for _, off := range ctx.continuePatches {
		fs.patch(off, l1)
	}
	exit := fs.buf().NextOffset()
	for _, off := range ctx.breakPatches {
		fs.patch(off, exit)
	}

	first, hadMarked := fs.scope.Pool.ExitScope()
	if hadMarked {
		if _, err := fs.emit(bytecode.KillOriginalCaptures, reg(first), 0, 0, n.Span()); err != nil {
			return err
		}
	}
	return nil
}

func (fs *funcState) compileExprStmt(n *ast.ExprStmt) error {
	if _, err := fs.compileExpr(n.Expr); err != nil {
		return err
	}
	fs.scope.Targets.Pop()
	return nil
}
