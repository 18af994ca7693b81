// Package scanner turns source text into a stream of tokens, following the
// lexical rules spec.md §6 lays out for the external-collaborator scanner:
// decimal/hex integers, fractional/exponent floats, backslash-escaped
// strings with octal/hex escapes, `//` and `/* */` comments, and the fixed
// keyword/operator set.
package scanner

import (
	"strings"

	"github.com/kjpearse/lumen/cerr"
	"github.com/kjpearse/lumen/source"
	"github.com/kjpearse/lumen/token"
)

// Scanner produces one token.Token at a time from a *source.File.
type Scanner struct {
	file *source.File
	r    *reader
}

func New(file *source.File) *Scanner {
	return &Scanner{file: file, r: newReader(file)}
}

func (s *Scanner) span(start source.Pos) source.Span {
	return source.Span{File: s.file, Start: start, End: s.r.pos()}
}

// Next returns the next significant token, skipping whitespace and comments.
func (s *Scanner) Next() (token.Token, error) {
	for {
		r, pos, ok := s.r.peek()
		if !ok {
			return token.Token{Kind: token.EOF, Span: s.span(pos)}, nil
		}

		switch {
		case isWhitespace(r):
			s.r.next()
			continue
		case r == '/' && s.peekIs2('/'):
			s.skipLineComment()
			continue
		case r == '/' && s.peekIs2('*'):
			if err := s.skipBlockComment(pos); err != nil {
				return token.Token{}, err
			}
			continue
		case isDigit(r):
			return s.scanNumber()
		case r == '"':
			return s.scanString()
		case r == '_' || isAlpha(r):
			return s.scanIdentOrKeyword()
		default:
			return s.scanOperator()
		}
	}
}

func (s *Scanner) peekIs2(r rune) bool {
	next, ok := s.r.peek2()
	return ok && next == r
}

func (s *Scanner) skipLineComment() {
	for {
		r, _, ok := s.r.peek()
		if !ok || r == '\n' {
			return
		}
		s.r.next()
	}
}

func (s *Scanner) skipBlockComment(start source.Pos) error {
	s.r.next() // '/'
	s.r.next() // '*'
	for {
		r, _, ok := s.r.peek()
		if !ok {
			return cerr.EndOfFile(s.span(start))
		}
		s.r.next()
		if r == '*' {
			if n, _, ok := s.r.peek(); ok && n == '/' {
				s.r.next()
				return nil
			}
		}
	}
}

func isWhitespace(r rune) bool { return r == ' ' || r == '\t' || r == '\r' || r == '\n' }
func isDigit(r rune) bool      { return r >= '0' && r <= '9' }
func isHexDigit(r rune) bool {
	return isDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}
func isAlpha(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
func isAlnum(r rune) bool { return isAlpha(r) || isDigit(r) || r == '_' }

func (s *Scanner) scanIdentOrKeyword() (token.Token, error) {
	start := s.r.pos()
	var sb strings.Builder
	for {
		r, _, ok := s.r.peek()
		if !ok || !isAlnum(r) {
			break
		}
		s.r.next()
		sb.WriteRune(r)
	}
	text := sb.String()
	kind := token.Ident
	if kw, isKeyword := token.Keywords[text]; isKeyword {
		kind = kw
	} else if text == "true" || text == "false" {
		kind = token.Kind(text)
	}
	return token.Token{Kind: kind, Lexeme: text, Span: s.span(start)}, nil
}

func (s *Scanner) scanNumber() (token.Token, error) {
	start := s.r.pos()
	var sb strings.Builder

	r1, _, _ := s.r.peek()
	r2, hasR2 := s.r.peek2()
	if r1 == '0' && hasR2 && (r2 == 'x' || r2 == 'X') {
		s.r.next()
		s.r.next()
		sb.WriteString("0x")
		for {
			r, _, ok := s.r.peek()
			if !ok || !isHexDigit(r) {
				break
			}
			s.r.next()
			sb.WriteRune(r)
		}
		return token.Token{Kind: token.Integer, Lexeme: sb.String(), Span: s.span(start)}, nil
	}

	kind := token.Integer
	for {
		r, _, ok := s.r.peek()
		if !ok || !isDigit(r) {
			break
		}
		s.r.next()
		sb.WriteRune(r)
	}

	if r, _, ok := s.r.peek(); ok && r == '.' {
		kind = token.Float
		s.r.next()
		sb.WriteByte('.')
		for {
			r, _, ok := s.r.peek()
			if !ok || !isDigit(r) {
				break
			}
			s.r.next()
			sb.WriteRune(r)
		}
	}

	if r, _, ok := s.r.peek(); ok && (r == 'e' || r == 'E') {
		kind = token.Float
		s.r.next()
		sb.WriteRune(r)
		if r, _, ok := s.r.peek(); ok && (r == '+' || r == '-') {
			s.r.next()
			sb.WriteRune(r)
		}
		for {
			r, _, ok := s.r.peek()
			if !ok || !isDigit(r) {
				break
			}
			s.r.next()
			sb.WriteRune(r)
		}
	}

	return token.Token{Kind: kind, Lexeme: sb.String(), Span: s.span(start)}, nil
}

func (s *Scanner) scanString() (token.Token, error) {
	start := s.r.pos()
	s.r.next() // opening quote
	var sb strings.Builder

	for {
		r, pos, ok := s.r.peek()
		if !ok {
			return token.Token{}, cerr.EndOfFile(s.span(start))
		}
		if r == '"' {
			s.r.next()
			break
		}
		if r == '\\' {
			s.r.next()
			decoded, err := s.scanEscape(pos)
			if err != nil {
				return token.Token{}, err
			}
			sb.WriteString(decoded)
			continue
		}
		s.r.next()
		sb.WriteRune(r)
	}

	// Adjacent string-literal concatenation: "a" "b" == "ab".
	for {
		r, _, ok := s.r.peek()
		if !ok || isWhitespace(r) {
			if ok {
				s.r.next()
				continue
			}
			break
		}
		if r != '"' {
			break
		}
		s.r.next()
		for {
			r2, pos2, ok2 := s.r.peek()
			if !ok2 {
				return token.Token{}, cerr.EndOfFile(s.span(start))
			}
			if r2 == '"' {
				s.r.next()
				break
			}
			if r2 == '\\' {
				s.r.next()
				decoded, err := s.scanEscape(pos2)
				if err != nil {
					return token.Token{}, err
				}
				sb.WriteString(decoded)
				continue
			}
			s.r.next()
			sb.WriteRune(r2)
		}
	}

	return token.Token{Kind: token.String, Lexeme: sb.String(), Span: s.span(start)}, nil
}

// scanEscape decodes the escape sequences spec.md §6 names: \a \b \f \n \r
// \t \v \\ \' \" \? plus \NNN (three octal digits) and \xHH/\XHH (two hex
// digits).
func (s *Scanner) scanEscape(pos source.Pos) (string, error) {
	r, _, ok := s.r.peek()
	if !ok {
		return "", cerr.EndOfFile(s.span(pos))
	}

	switch r {
	case 'a':
		s.r.next()
		return "\a", nil
	case 'b':
		s.r.next()
		return "\b", nil
	case 'f':
		s.r.next()
		return "\f", nil
	case 'n':
		s.r.next()
		return "\n", nil
	case 'r':
		s.r.next()
		return "\r", nil
	case 't':
		s.r.next()
		return "\t", nil
	case 'v':
		s.r.next()
		return "\v", nil
	case '\\':
		s.r.next()
		return "\\", nil
	case '\'':
		s.r.next()
		return "'", nil
	case '"':
		s.r.next()
		return "\"", nil
	case '?':
		s.r.next()
		return "?", nil
	case 'x', 'X':
		s.r.next()
		var v int
		for i := 0; i < 2; i++ {
			hr, _, hok := s.r.peek()
			if !hok || !isHexDigit(hr) {
				return "", cerr.UnexpectedChar(s.span(pos), hr)
			}
			s.r.next()
			v = v*16 + hexVal(hr)
		}
		return string(rune(v)), nil
	default:
		if r >= '0' && r <= '7' {
			var v int
			for i := 0; i < 3; i++ {
				dr, _, dok := s.r.peek()
				if !dok || dr < '0' || dr > '7' {
					break
				}
				s.r.next()
				v = v*8 + int(dr-'0')
			}
			return string(rune(v)), nil
		}
		return "", cerr.UnexpectedChar(s.span(pos), r)
	}
}

func hexVal(r rune) int {
	switch {
	case r >= '0' && r <= '9':
		return int(r - '0')
	case r >= 'a' && r <= 'f':
		return int(r-'a') + 10
	default:
		return int(r-'A') + 10
	}
}

// operator/punctuation table, longest match first.
var operators = []token.Kind{
	token.Ellipsis,
	token.ShlAssign, token.ShrAssign,
	token.PlusAssign, token.MinusAssign, token.StarAssign, token.SlashAssign,
	token.PercentAssign, token.AndAssign, token.OrAssign, token.XorAssign,
	token.LogicalAnd, token.LogicalOr, token.Eq, token.Ne, token.Le, token.Ge,
	token.Shl, token.Shr, token.Inc, token.Dec,
	token.LBrace, token.RBrace, token.LBracket, token.RBracket,
	token.LParen, token.RParen, token.Comma, token.Colon, token.Semicolon,
	token.Dot, token.Question, token.Assign, token.Plus, token.Minus,
	token.Star, token.Slash, token.Percent, token.LogicalNot,
	token.BitAnd, token.BitOr, token.BitXor, token.BitNot, token.Lt, token.Gt,
}

func (s *Scanner) scanOperator() (token.Token, error) {
	start := s.r.pos()
	r, _, ok := s.r.peek()
	if !ok {
		return token.Token{}, cerr.EndOfFile(s.span(start))
	}

	for _, op := range operators {
		text := string(op)
		if s.matches(text) {
			for range text {
				s.r.next()
			}
			return token.Token{Kind: op, Lexeme: text, Span: s.span(start)}, nil
		}
	}

	s.r.next()
	return token.Token{}, cerr.UnexpectedChar(s.span(start), r)
}

// matches reports whether the upcoming runes spell out text exactly,
// without consuming input.
func (s *Scanner) matches(text string) bool {
	saved := *s.r
	defer func() { *s.r = saved }()

	for _, want := range text {
		r, _, ok := s.r.peek()
		if !ok || r != want {
			return false
		}
		s.r.next()
	}
	return true
}
