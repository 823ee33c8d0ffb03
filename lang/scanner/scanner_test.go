package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mna/aster/lang/token"
)

func scanAll(t *testing.T, src string) []token.Token {
	t.Helper()
	sc := New(src)
	var toks []token.Token
	for {
		tok := sc.Scan()
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

func TestPunctuationAndOperators(t *testing.T) {
	toks := scanAll(t, "(){};:,.+-*/% ! != = == < <= > >=")
	require.Equal(t, []token.Kind{
		token.LPAREN, token.RPAREN, token.LBRACE, token.RBRACE, token.SEMICOLON,
		token.COLON, token.COMMA, token.DOT, token.PLUS, token.MINUS, token.STAR,
		token.SLASH, token.PERCENT, token.BANG, token.BANG_EQUAL, token.EQUAL,
		token.EQUAL_EQUAL, token.LESS, token.LESS_EQUAL, token.GREATER,
		token.GREATER_EQUAL, token.EOF,
	}, kinds(toks))
}

func TestNumbers(t *testing.T) {
	toks := scanAll(t, "123 45.67")
	require.Len(t, toks, 3)
	assert.Equal(t, "123", toks[0].Lexeme)
	assert.Equal(t, "45.67", toks[1].Lexeme)
}

func TestStrings(t *testing.T) {
	toks := scanAll(t, `"hello world"`)
	require.Len(t, toks, 2)
	assert.Equal(t, token.STRING, toks[0].Kind)
	assert.Equal(t, `"hello world"`, toks[0].Lexeme)
}

func TestUnterminatedString(t *testing.T) {
	toks := scanAll(t, `"oops`)
	require.Len(t, toks, 2)
	assert.True(t, toks[0].IsError())
}

func TestWordFormKeywordSynonyms(t *testing.T) {
	toks := scanAll(t, "x assigned 1; y equals 2; z is 3;")
	ks := kinds(toks)
	assert.Contains(t, ks, token.ASSIGNED)
	assert.Contains(t, ks, token.EQUALS)
	assert.Contains(t, ks, token.IS)
}

func TestLineComments(t *testing.T) {
	toks := scanAll(t, "1 // a comment\n2")
	require.Len(t, toks, 3)
	assert.Equal(t, "1", toks[0].Lexeme)
	assert.Equal(t, "2", toks[1].Lexeme)
	assert.Equal(t, 2, toks[1].Line)
}

func TestKeywordsAndIdentifiers(t *testing.T) {
	toks := scanAll(t, "class fun function var if then elf else while do repeat until for switch case default break continue return print true false null this super and or notAKeyword")
	ks := kinds(toks)
	assert.Equal(t, token.IDENT, ks[len(ks)-2])
}
