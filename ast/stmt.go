package ast

import "github.com/kjpearse/lumen/source"

// Stmt is any statement node. See the comment on Expr for why this is a
// closed interface rather than a class hierarchy with virtual dispatch.
type Stmt interface {
	Span() source.Span
	stmtNode()
}

type baseStmt struct{ span source.Span }

func (b baseStmt) Span() source.Span { return b.span }
func (baseStmt) stmtNode()           {}

type NullStmt struct{ baseStmt }

type BlockStmt struct {
	baseStmt
	Stmts []Stmt
}

// AutoDecl is one `name` or `name = init` inside an `auto` statement.
type AutoDecl struct {
	Name string
	Init Expr // nil if no initializer
}

type AutoStmt struct {
	baseStmt
	Decls []AutoDecl
}

type ReturnStmt struct {
	baseStmt
	Value Expr // nil means implicit void
}

type DeleteStmt struct {
	baseStmt
	Object Expr
	Key    Expr
}

type BreakStmt struct{ baseStmt }
type ContinueStmt struct{ baseStmt }

type IfStmt struct {
	baseStmt
	Init Stmt // *AutoStmt or nil
	Cond Expr
	Then Stmt
	Else Stmt // nil if no else branch
}

// SwitchClause is one `case label:` or `default:` clause. Label is nil
// for the default clause.
type SwitchClause struct {
	Label Expr
	Stmts []Stmt
}

type SwitchStmt struct {
	baseStmt
	Init    Stmt
	Expr    Expr
	Clauses []SwitchClause
}

type WhileStmt struct {
	baseStmt
	Cond Expr
	Body Stmt
}

type DoWhileStmt struct {
	baseStmt
	Body Stmt
	Cond Expr
}

// ForStmt's Init is an *AutoStmt, an *ExprStmt, or nil.
type ForStmt struct {
	baseStmt
	Init Stmt
	Cond Expr // nil means always-true
	Post Expr // nil means no post-expression
	Body Stmt
}

type ForeachStmt struct {
	baseStmt
	KeyName   string
	ValueName string
	Container Expr
	Body      Stmt
}

type ExprStmt struct {
	baseStmt
	Expr Expr
}

func NewBlock(span source.Span, stmts []Stmt) *BlockStmt {
	return &BlockStmt{baseStmt{span}, stmts}
}

func NewNullStmt(span source.Span) *NullStmt { return &NullStmt{baseStmt{span}} }

func NewAuto(span source.Span, decls []AutoDecl) *AutoStmt {
	return &AutoStmt{baseStmt{span}, decls}
}

func NewReturn(span source.Span, value Expr) *ReturnStmt {
	return &ReturnStmt{baseStmt{span}, value}
}

func NewDelete(span source.Span, object, key Expr) *DeleteStmt {
	return &DeleteStmt{baseStmt{span}, object, key}
}

func NewBreak(span source.Span) *BreakStmt       { return &BreakStmt{baseStmt{span}} }
func NewContinue(span source.Span) *ContinueStmt { return &ContinueStmt{baseStmt{span}} }

func NewIf(span source.Span, init Stmt, cond Expr, then, els Stmt) *IfStmt {
	return &IfStmt{baseStmt{span}, init, cond, then, els}
}

func NewSwitch(span source.Span, init Stmt, expr Expr, clauses []SwitchClause) *SwitchStmt {
	return &SwitchStmt{baseStmt{span}, init, expr, clauses}
}

func NewWhile(span source.Span, cond Expr, body Stmt) *WhileStmt {
	return &WhileStmt{baseStmt{span}, cond, body}
}

func NewDoWhile(span source.Span, body Stmt, cond Expr) *DoWhileStmt {
	return &DoWhileStmt{baseStmt{span}, body, cond}
}

func NewFor(span source.Span, init Stmt, cond, post Expr, body Stmt) *ForStmt {
	return &ForStmt{baseStmt{span}, init, cond, post, body}
}

func NewForeach(span source.Span, keyName, valueName string, container Expr, body Stmt) *ForeachStmt {
	return &ForeachStmt{baseStmt{span}, keyName, valueName, container, body}
}

func NewExprStmt(span source.Span, expr Expr) *ExprStmt {
	return &ExprStmt{baseStmt{span}, expr}
}
