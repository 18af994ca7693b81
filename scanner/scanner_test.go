package scanner_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjpearse/lumen/scanner"
	"github.com/kjpearse/lumen/source"
	"github.com/kjpearse/lumen/token"
)

func scanAll(t *testing.T, src string) []token.Token {
	t.Helper()
	sc := scanner.New(source.FromString("<test>", src))
	var toks []token.Token
	for {
		tok, err := sc.Next()
		require.NoError(t, err)
		toks = append(toks, tok)
		if tok.Kind == token.EOF {
			return toks
		}
	}
}

func kinds(toks []token.Token) []token.Kind {
	ks := make([]token.Kind, len(toks))
	for i, tok := range toks {
		ks[i] = tok.Kind
	}
	return ks
}

func TestScansKeywordsAndIdentifiers(t *testing.T) {
	toks := scanAll(t, "auto x = 1;")
	assert.Equal(t, []token.Kind{token.Auto, token.Ident, token.Assign, token.Integer, token.Semicolon, token.EOF}, kinds(toks))
	assert.Equal(t, "x", toks[1].Lexeme)
}

func TestScansStringEscapes(t *testing.T) {
	toks := scanAll(t, `"a\nb"`)
	require.Len(t, toks, 2)
	assert.Equal(t, "a\nb", toks[0].Lexeme)
}

func TestScansHexIntegerLiteral(t *testing.T) {
	toks := scanAll(t, "0xFF")
	require.Len(t, toks, 2)
	assert.Equal(t, token.Integer, toks[0].Kind)
	assert.Equal(t, "0xFF", toks[0].Lexeme)
}

func TestSkipsLineAndBlockComments(t *testing.T) {
	toks := scanAll(t, "// comment\n/* block */ 42")
	require.Len(t, toks, 2)
	assert.Equal(t, token.Integer, toks[0].Kind)
	assert.Equal(t, "42", toks[0].Lexeme)
}

func TestScansMultiCharOperators(t *testing.T) {
	toks := scanAll(t, "a == b && c != d")
	assert.Equal(t, []token.Kind{
		token.Ident, token.Eq, token.Ident, token.LogicalAnd,
		token.Ident, token.Ne, token.Ident, token.EOF,
	}, kinds(toks))
}
