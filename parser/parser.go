// Package parser is a recursive-descent parser with a Pratt-style
// precedence table for expressions, structured after the teacher's
// frontend.Parser (parselet tables keyed by token kind, with matching
// precedence levels) but emitting this module's own ast package instead
// of Plaid's AST, and with dedicated methods (rather than parselets) for
// the richer C-like statement grammar spec.md §6 describes.
package parser

import (
	"strconv"
	"strings"

	"github.com/kjpearse/lumen/ast"
	"github.com/kjpearse/lumen/cerr"
	"github.com/kjpearse/lumen/scanner"
	"github.com/kjpearse/lumen/source"
	"github.com/kjpearse/lumen/token"
)

// Precedence levels, lowest to highest, per spec.md §6:
// || , && , | , ^ , & , == != , < <= > >= , << >> , + - , * / %
const (
	precNone = iota
	precComma
	precAssign
	precTernary
	precLogicalOr
	precLogicalAnd
	precBitOr
	precBitXor
	precBitAnd
	precEquality
	precRelational
	precShift
	precAdditive
	precMultiplicative
	precUnary
	precPostfix
	precCall
)

var binaryPrecedence = map[token.Kind]int{
	token.Comma:      precComma,
	token.LogicalOr:  precLogicalOr,
	token.LogicalAnd: precLogicalAnd,
	token.BitOr:      precBitOr,
	token.BitXor:     precBitXor,
	token.BitAnd:     precBitAnd,
	token.Eq:         precEquality,
	token.Ne:         precEquality,
	token.Lt:         precRelational,
	token.Le:         precRelational,
	token.Gt:         precRelational,
	token.Ge:         precRelational,
	token.Shl:        precShift,
	token.Shr:        precShift,
	token.Plus:       precAdditive,
	token.Minus:      precAdditive,
	token.Star:       precMultiplicative,
	token.Slash:      precMultiplicative,
	token.Percent:    precMultiplicative,
	token.LParen:     precCall,
	token.LBracket:   precCall,
	token.Dot:        precCall,
	token.Inc:        precPostfix,
	token.Dec:        precPostfix,
}

var assignOps = map[token.Kind]bool{
	token.Assign: true, token.PlusAssign: true, token.MinusAssign: true,
	token.StarAssign: true, token.SlashAssign: true, token.PercentAssign: true,
	token.ShlAssign: true, token.ShrAssign: true, token.AndAssign: true,
	token.OrAssign: true, token.XorAssign: true,
}

// Parser walks a token stream (via a two-token lookahead buffer) and
// builds ast nodes.
type Parser struct {
	sc        *scanner.Scanner
	file      *source.File
	cur, next token.Token
}

func New(file *source.File) (*Parser, error) {
	p := &Parser{sc: scanner.New(file), file: file}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Parser) advance() error {
	p.cur = p.next
	tok, err := p.sc.Next()
	if err != nil {
		return err
	}
	p.next = tok
	return nil
}

func (p *Parser) at(k token.Kind) bool { return p.cur.Kind == k }

func (p *Parser) expect(k token.Kind) (token.Token, error) {
	if !p.at(k) {
		return token.Token{}, cerr.UnexpectedToken(p.cur.Span, string(p.cur.Kind), string(k))
	}
	tok := p.cur
	if err := p.advance(); err != nil {
		return token.Token{}, err
	}
	return tok, nil
}

func (p *Parser) accept(k token.Kind) (bool, error) {
	if !p.at(k) {
		return false, nil
	}
	return true, p.advance()
}

// ParseProgram parses an entire script as an implicit top-level function
// literal, the way original_source's parser wraps the whole file in a
// FunctionLiteral so the bytecode generator can compile it through the
// same _create_function_prototype path as any nested function. The
// top-level literal takes no regular/default parameters and a rest
// parameter named "arguments", bound to the host's argument vector
// (minus the script path) on the initial call or a require() call.
func (p *Parser) ParseProgram() (*ast.FuncLit, error) {
	start := p.cur.Span
	var stmts []ast.Stmt
	for !p.at(token.EOF) {
		stmt, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	body := ast.NewBlock(source.Join(start, p.cur.Span), stmts)
	return ast.NewFuncLit(body.Span(), nil, "arguments", true, body), nil
}

// ---- statements ----

func (p *Parser) parseStmt() (ast.Stmt, error) {
	switch p.cur.Kind {
	case token.Semicolon:
		span := p.cur.Span
		if err := p.advance(); err != nil {
			return nil, err
		}
		return ast.NewNullStmt(span), nil
	case token.LBrace:
		return p.parseBlock()
	case token.Auto:
		return p.parseAutoStmt(true)
	case token.Return:
		return p.parseReturn()
	case token.Delete:
		return p.parseDelete()
	case token.Break:
		span := p.cur.Span
		if err := p.advance(); err != nil {
			return nil, err
		}
		end, err := p.expect(token.Semicolon)
		return ast.NewBreak(source.Join(span, end.Span)), err
	case token.Continue:
		span := p.cur.Span
		if err := p.advance(); err != nil {
			return nil, err
		}
		end, err := p.expect(token.Semicolon)
		return ast.NewContinue(source.Join(span, end.Span)), err
	case token.If:
		return p.parseIf()
	case token.Switch:
		return p.parseSwitch()
	case token.While:
		return p.parseWhile()
	case token.Do:
		return p.parseDoWhile()
	case token.For:
		return p.parseFor()
	case token.Foreach:
		return p.parseForeach()
	default:
		return p.parseExprStmt()
	}
}

func (p *Parser) parseBlock() (*ast.BlockStmt, error) {
	start := p.cur.Span
	if _, err := p.expect(token.LBrace); err != nil {
		return nil, err
	}
	var stmts []ast.Stmt
	for !p.at(token.RBrace) {
		stmt, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	end, err := p.expect(token.RBrace)
	if err != nil {
		return nil, err
	}
	return ast.NewBlock(source.Join(start, end.Span), stmts), nil
}

func (p *Parser) parseAutoStmt(consumeSemicolon bool) (*ast.AutoStmt, error) {
	start := p.cur.Span
	if _, err := p.expect(token.Auto); err != nil {
		return nil, err
	}
	var decls []ast.AutoDecl
	for {
		name, err := p.expect(token.Ident)
		if err != nil {
			return nil, err
		}
		decl := ast.AutoDecl{Name: name.Lexeme}
		if ok, err := p.accept(token.Assign); err != nil {
			return nil, err
		} else if ok {
			init, err := p.parseExpr(precTernary)
			if err != nil {
				return nil, err
			}
			decl.Init = init
		}
		decls = append(decls, decl)
		if ok, err := p.accept(token.Comma); err != nil {
			return nil, err
		} else if !ok {
			break
		}
	}
	end := p.cur.Span
	if consumeSemicolon {
		tok, err := p.expect(token.Semicolon)
		if err != nil {
			return nil, err
		}
		end = tok.Span
	}
	return ast.NewAuto(source.Join(start, end), decls), nil
}

func (p *Parser) parseReturn() (ast.Stmt, error) {
	start := p.cur.Span
	if err := p.advance(); err != nil {
		return nil, err
	}
	if ok, err := p.accept(token.Semicolon); err != nil {
		return nil, err
	} else if ok {
		return ast.NewReturn(start, nil), nil
	}
	val, err := p.parseExpr(precComma + 1)
	if err != nil {
		return nil, err
	}
	end, err := p.expect(token.Semicolon)
	if err != nil {
		return nil, err
	}
	return ast.NewReturn(source.Join(start, end.Span), val), nil
}

func (p *Parser) parseDelete() (ast.Stmt, error) {
	start := p.cur.Span
	if err := p.advance(); err != nil {
		return nil, err
	}
	target, err := p.parseExpr(precTernary)
	if err != nil {
		return nil, err
	}
	member, ok := target.(*ast.MemberExpr)
	if !ok {
		return nil, cerr.LvalueRequired(target.Span())
	}
	end, err := p.expect(token.Semicolon)
	if err != nil {
		return nil, err
	}
	return ast.NewDelete(source.Join(start, end.Span), member.Object, member.Key), nil
}

func (p *Parser) parseIf() (ast.Stmt, error) {
	start := p.cur.Span
	if err := p.advance(); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LParen); err != nil {
		return nil, err
	}
	var init ast.Stmt
	if p.at(token.Auto) {
		a, err := p.parseAutoStmt(true)
		if err != nil {
			return nil, err
		}
		init = a
	}
	cond, err := p.parseExpr(precComma + 1)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RParen); err != nil {
		return nil, err
	}
	then, err := p.parseStmt()
	if err != nil {
		return nil, err
	}
	var elseBody ast.Stmt
	if ok, err := p.accept(token.Else); err != nil {
		return nil, err
	} else if ok {
		elseBody, err = p.parseStmt()
		if err != nil {
			return nil, err
		}
	}
	return ast.NewIf(source.Join(start, p.cur.Span), init, cond, then, elseBody), nil
}

func (p *Parser) parseSwitch() (ast.Stmt, error) {
	start := p.cur.Span
	if err := p.advance(); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LParen); err != nil {
		return nil, err
	}
	var init ast.Stmt
	if p.at(token.Auto) {
		a, err := p.parseAutoStmt(true)
		if err != nil {
			return nil, err
		}
		init = a
	}
	disc, err := p.parseExpr(precComma + 1)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RParen); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LBrace); err != nil {
		return nil, err
	}

	var clauses []ast.SwitchClause
	for !p.at(token.RBrace) {
		var clause ast.SwitchClause
		if ok, err := p.accept(token.Default); err != nil {
			return nil, err
		} else if ok {
			if _, err := p.expect(token.Colon); err != nil {
				return nil, err
			}
		} else {
			if _, err := p.expect(token.Case); err != nil {
				return nil, err
			}
			label, err := p.parseExpr(precTernary)
			if err != nil {
				return nil, err
			}
			clause.Label = label
			if _, err := p.expect(token.Colon); err != nil {
				return nil, err
			}
		}
		for !p.at(token.Case) && !p.at(token.Default) && !p.at(token.RBrace) {
			stmt, err := p.parseStmt()
			if err != nil {
				return nil, err
			}
			clause.Stmts = append(clause.Stmts, stmt)
		}
		clauses = append(clauses, clause)
	}
	end, err := p.expect(token.RBrace)
	if err != nil {
		return nil, err
	}
	return ast.NewSwitch(source.Join(start, end.Span), init, disc, clauses), nil
}

func (p *Parser) parseWhile() (ast.Stmt, error) {
	start := p.cur.Span
	if err := p.advance(); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LParen); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr(precComma + 1)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RParen); err != nil {
		return nil, err
	}
	body, err := p.parseStmt()
	if err != nil {
		return nil, err
	}
	return ast.NewWhile(source.Join(start, body.Span()), cond, body), nil
}

func (p *Parser) parseDoWhile() (ast.Stmt, error) {
	start := p.cur.Span
	if err := p.advance(); err != nil {
		return nil, err
	}
	body, err := p.parseStmt()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.While); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LParen); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr(precComma + 1)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RParen); err != nil {
		return nil, err
	}
	end, err := p.expect(token.Semicolon)
	if err != nil {
		return nil, err
	}
	return ast.NewDoWhile(source.Join(start, end.Span), body, cond), nil
}

func (p *Parser) parseFor() (ast.Stmt, error) {
	start := p.cur.Span
	if err := p.advance(); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LParen); err != nil {
		return nil, err
	}

	var init ast.Stmt
	if p.at(token.Auto) {
		a, err := p.parseAutoStmt(true)
		if err != nil {
			return nil, err
		}
		init = a
	} else if !p.at(token.Semicolon) {
		e, err := p.parseExpr(precComma + 1)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.Semicolon); err != nil {
			return nil, err
		}
		init = ast.NewExprStmt(e.Span(), e)
	} else {
		if _, err := p.expect(token.Semicolon); err != nil {
			return nil, err
		}
	}

	var cond ast.Expr
	if !p.at(token.Semicolon) {
		c, err := p.parseExpr(precComma + 1)
		if err != nil {
			return nil, err
		}
		cond = c
	}
	if _, err := p.expect(token.Semicolon); err != nil {
		return nil, err
	}

	var post ast.Expr
	if !p.at(token.RParen) {
		e, err := p.parseExpr(precComma + 1)
		if err != nil {
			return nil, err
		}
		post = e
	}
	if _, err := p.expect(token.RParen); err != nil {
		return nil, err
	}

	body, err := p.parseStmt()
	if err != nil {
		return nil, err
	}
	return ast.NewFor(source.Join(start, body.Span()), init, cond, post, body), nil
}

func (p *Parser) parseForeach() (ast.Stmt, error) {
	start := p.cur.Span
	if err := p.advance(); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LParen); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.Auto); err != nil {
		return nil, err
	}
	key, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.Comma); err != nil {
		return nil, err
	}
	val, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.Colon); err != nil {
		return nil, err
	}
	container, err := p.parseExpr(precComma + 1)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RParen); err != nil {
		return nil, err
	}
	body, err := p.parseStmt()
	if err != nil {
		return nil, err
	}
	return ast.NewForeach(source.Join(start, body.Span()), key.Lexeme, val.Lexeme, container, body), nil
}

func (p *Parser) parseExprStmt() (ast.Stmt, error) {
	e, err := p.parseExpr(precComma)
	if err != nil {
		return nil, err
	}
	end, err := p.expect(token.Semicolon)
	if err != nil {
		return nil, err
	}
	return ast.NewExprStmt(source.Join(e.Span(), end.Span), e), nil
}

// ---- expressions (Pratt core) ----

func (p *Parser) parseExpr(minPrec int) (ast.Expr, error) {
	left, err := p.parsePrefix()
	if err != nil {
		return nil, err
	}

	for {
		prec, isBinary := binaryPrecedence[p.cur.Kind]
		isTernary := p.cur.Kind == token.Question
		isAssign := assignOps[p.cur.Kind]

		switch {
		case isAssign:
			if precAssign < minPrec {
				return left, nil
			}
			left, err = p.parseAssign(left)
		case isTernary:
			if precTernary < minPrec {
				return left, nil
			}
			left, err = p.parseTernary(left)
		case isBinary:
			if prec < minPrec {
				return left, nil
			}
			left, err = p.parseBinaryTail(left, prec)
		default:
			return left, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func isAssignOrTernary(k token.Kind) bool {
	return assignOps[k] || k == token.Question
}

func (p *Parser) parseAssign(left ast.Expr) (ast.Expr, error) {
	if !isLvalue(left) {
		return nil, cerr.LvalueRequired(left.Span())
	}
	op := p.cur.Kind
	if err := p.advance(); err != nil {
		return nil, err
	}
	right, err := p.parseExpr(precAssign)
	if err != nil {
		return nil, err
	}
	return ast.NewBinary(source.Join(left.Span(), right.Span()), op, left, right), nil
}

func (p *Parser) parseTernary(cond ast.Expr) (ast.Expr, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	then, err := p.parseExpr(precAssign)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.Colon); err != nil {
		return nil, err
	}
	elseExpr, err := p.parseExpr(precAssign)
	if err != nil {
		return nil, err
	}
	return ast.NewTernary(source.Join(cond.Span(), elseExpr.Span()), cond, then, elseExpr), nil
}

func (p *Parser) parseBinaryTail(left ast.Expr, prec int) (ast.Expr, error) {
	op := p.cur.Kind

	switch op {
	case token.LParen:
		return p.parseCallTail(left)
	case token.LBracket:
		return p.parseIndexTail(left)
	case token.Dot:
		return p.parseDotTail(left)
	case token.Inc, token.Dec:
		tok := p.cur
		if err := p.advance(); err != nil {
			return nil, err
		}
		return ast.NewPostfix(source.Join(left.Span(), tok.Span), op, left), nil
	}

	if err := p.advance(); err != nil {
		return nil, err
	}
	right, err := p.parseExpr(prec + 1)
	if err != nil {
		return nil, err
	}
	return ast.NewBinary(source.Join(left.Span(), right.Span()), op, left, right), nil
}

func isLvalue(e ast.Expr) bool {
	switch e.(type) {
	case *ast.IdentExpr, *ast.MemberExpr:
		return true
	default:
		return false
	}
}

func (p *Parser) parseCallTail(callee ast.Expr) (ast.Expr, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	var args []ast.Expr
	for !p.at(token.RParen) {
		arg, err := p.parseExpr(precAssign)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if ok, err := p.accept(token.Comma); err != nil {
			return nil, err
		} else if !ok {
			break
		}
	}
	end, err := p.expect(token.RParen)
	if err != nil {
		return nil, err
	}
	return ast.NewCall(source.Join(callee.Span(), end.Span), callee, args), nil
}

func (p *Parser) parseIndexTail(obj ast.Expr) (ast.Expr, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	key, err := p.parseExpr(precComma + 1)
	if err != nil {
		return nil, err
	}
	end, err := p.expect(token.RBracket)
	if err != nil {
		return nil, err
	}
	return ast.NewMember(source.Join(obj.Span(), end.Span), obj, key, true), nil
}

func (p *Parser) parseDotTail(obj ast.Expr) (ast.Expr, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	name, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	key := ast.NewString(name.Span, name.Lexeme)
	return ast.NewMember(source.Join(obj.Span(), name.Span), obj, key, false), nil
}

var conversions = map[token.Kind]bool{
	token.Bool: true, token.Int: true, token.Float_: true, token.Str: true,
	token.Sizeof: true, token.Typeof: true,
}

func (p *Parser) parsePrefix() (ast.Expr, error) {
	tok := p.cur

	switch tok.Kind {
	case token.Null:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return ast.NewNull(tok.Span), nil
	case token.True, token.False:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return ast.NewBool(tok.Span, tok.Kind == token.True), nil
	case token.Integer:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return parseIntLiteral(tok)
	case token.Float:
		if err := p.advance(); err != nil {
			return nil, err
		}
		v, err := strconv.ParseFloat(tok.Lexeme, 64)
		if err != nil {
			return nil, cerr.New(tok.Span, "invalid float literal %q", tok.Lexeme)
		}
		return ast.NewFloat(tok.Span, v), nil
	case token.String:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return ast.NewString(tok.Span, tok.Lexeme), nil
	case token.Ident:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return ast.NewIdent(tok.Span, tok.Lexeme), nil
	case token.Trace, token.Require:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return ast.NewBuiltin(tok.Span, string(tok.Kind)), nil
	case token.LParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseExpr(precComma + 1)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RParen); err != nil {
			return nil, err
		}
		return inner, nil
	case token.LBracket:
		return p.parseArrayLit()
	case token.Struct:
		return p.parseStructLit()
	case token.Auto:
		return p.parseFuncLit()
	case token.Inc, token.Dec, token.Plus, token.Minus, token.LogicalNot, token.BitNot:
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseExpr(precUnary)
		if err != nil {
			return nil, err
		}
		return ast.NewPrefix(source.Join(tok.Span, operand.Span()), tok.Kind, operand), nil
	default:
		if conversions[tok.Kind] {
			return p.parseConversion()
		}
		return nil, cerr.UnexpectedToken(tok.Span, string(tok.Kind))
	}
}

func parseIntLiteral(tok token.Token) (ast.Expr, error) {
	var v int64
	var err error
	if strings.HasPrefix(tok.Lexeme, "0x") || strings.HasPrefix(tok.Lexeme, "0X") {
		parsed, perr := strconv.ParseUint(tok.Lexeme[2:], 16, 64)
		v, err = int64(parsed), perr
	} else {
		v, err = strconv.ParseInt(tok.Lexeme, 10, 64)
	}
	if err != nil {
		return nil, cerr.New(tok.Span, "invalid integer literal %q", tok.Lexeme)
	}
	return ast.NewInt(tok.Span, v), nil
}

func (p *Parser) parseConversion() (ast.Expr, error) {
	tok := p.cur
	if err := p.advance(); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LParen); err != nil {
		return nil, err
	}
	operand, err := p.parseExpr(precComma + 1)
	if err != nil {
		return nil, err
	}
	end, err := p.expect(token.RParen)
	if err != nil {
		return nil, err
	}
	return ast.NewConvert(source.Join(tok.Span, end.Span), tok.Kind, operand), nil
}

func (p *Parser) parseArrayLit() (ast.Expr, error) {
	start := p.cur.Span
	if err := p.advance(); err != nil {
		return nil, err
	}
	var elems []ast.ArrayElement
	for !p.at(token.RBracket) {
		var el ast.ArrayElement
		if ok, err := p.accept(token.LBracket); err != nil {
			return nil, err
		} else if ok {
			idx, err := p.parseExpr(precAssign)
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(token.RBracket); err != nil {
				return nil, err
			}
			if _, err := p.expect(token.Assign); err != nil {
				return nil, err
			}
			el.Index = idx
		}
		val, err := p.parseExpr(precAssign)
		if err != nil {
			return nil, err
		}
		el.Value = val
		elems = append(elems, el)
		if ok, err := p.accept(token.Comma); err != nil {
			return nil, err
		} else if !ok {
			break
		}
	}
	end, err := p.expect(token.RBracket)
	if err != nil {
		return nil, err
	}
	return ast.NewArrayLit(source.Join(start, end.Span), elems), nil
}

func (p *Parser) parseStructLit() (ast.Expr, error) {
	start := p.cur.Span
	if err := p.advance(); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LBrace); err != nil {
		return nil, err
	}
	var fields []ast.StructField
	for !p.at(token.RBrace) {
		if _, err := p.expect(token.Dot); err != nil {
			return nil, err
		}
		name, err := p.expect(token.Ident)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.Assign); err != nil {
			return nil, err
		}
		val, err := p.parseExpr(precAssign)
		if err != nil {
			return nil, err
		}
		fields = append(fields, ast.StructField{Key: ast.NewString(name.Span, name.Lexeme), Value: val})
		if ok, err := p.accept(token.Comma); err != nil {
			return nil, err
		} else if !ok {
			break
		}
	}
	end, err := p.expect(token.RBrace)
	if err != nil {
		return nil, err
	}
	return ast.NewStructLit(source.Join(start, end.Span), fields), nil
}

func (p *Parser) parseFuncLit() (ast.Expr, error) {
	start := p.cur.Span
	if err := p.advance(); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LParen); err != nil {
		return nil, err
	}
	var params []ast.Param
	rest := ""
	hasRest := false
	for !p.at(token.RParen) {
		if ok, err := p.accept(token.Ellipsis); err != nil {
			return nil, err
		} else if ok {
			name, err := p.expect(token.Ident)
			if err != nil {
				return nil, err
			}
			rest = name.Lexeme
			hasRest = true
			break
		}
		name, err := p.expect(token.Ident)
		if err != nil {
			return nil, err
		}
		param := ast.Param{Name: name.Lexeme}
		if ok, err := p.accept(token.Assign); err != nil {
			return nil, err
		} else if ok {
			def, err := p.parseExpr(precAssign)
			if err != nil {
				return nil, err
			}
			param.Default = def
		}
		params = append(params, param)
		if ok, err := p.accept(token.Comma); err != nil {
			return nil, err
		} else if !ok {
			break
		}
	}
	if _, err := p.expect(token.RParen); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return ast.NewFuncLit(source.Join(start, body.Span()), params, rest, hasRest, body), nil
}
