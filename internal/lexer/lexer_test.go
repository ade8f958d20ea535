package lexer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crispy-lang/crispy/internal/token"
)

func TestNextToken_BasicTokens(t *testing.T) {
	input := `( ) { } [ ] , . : ;`

	tests := []struct {
		kind    token.Kind
		literal string
	}{
		{token.LPAREN, "("},
		{token.RPAREN, ")"},
		{token.LBRACE, "{"},
		{token.RBRACE, "}"},
		{token.LBRACKET, "["},
		{token.RBRACKET, "]"},
		{token.COMMA, ","},
		{token.DOT, "."},
		{token.COLON, ":"},
		{token.SEMICOLON, ";"},
		{token.EOF, ""},
	}

	l := New(input)
	for i, tt := range tests {
		tok := l.NextToken()
		require.Equal(t, tt.kind, tok.Kind, "tests[%d]", i)
		require.Equal(t, tt.literal, tok.Literal, "tests[%d]", i)
	}
}

func TestNextToken_Operators(t *testing.T) {
	input := `+ - * / % ** == != ! < <= > >= = ++ -- ->`

	tests := []token.Kind{
		token.PLUS, token.MINUS, token.STAR, token.SLASH, token.PERCENT,
		token.STARSTAR, token.EQ, token.NEQ, token.BANG, token.LT, token.LE,
		token.GT, token.GE, token.ASSIGN, token.INC, token.DEC, token.ARROW,
	}

	l := New(input)
	for i, want := range tests {
		tok := l.NextToken()
		require.Equal(t, want, tok.Kind, "tests[%d]: literal=%q", i, tok.Literal)
	}
}

func TestNextToken_KeywordsAndIdentifiers(t *testing.T) {
	input := `var val while if else fun return true false nil or and foo_bar Baz1`

	tests := []struct {
		kind    token.Kind
		literal string
	}{
		{token.VAR, "var"},
		{token.VAL, "val"},
		{token.WHILE, "while"},
		{token.IF, "if"},
		{token.ELSE, "else"},
		{token.FUN, "fun"},
		{token.RETURN, "return"},
		{token.TRUE, "true"},
		{token.FALSE, "false"},
		{token.NIL, "nil"},
		{token.OR, "or"},
		{token.AND, "and"},
		{token.IDENTIFIER, "foo_bar"},
		{token.IDENTIFIER, "Baz1"},
	}

	l := New(input)
	for i, tt := range tests {
		tok := l.NextToken()
		require.Equal(t, tt.kind, tok.Kind, "tests[%d]", i)
		require.Equal(t, tt.literal, tok.Literal, "tests[%d]", i)
	}
}

func TestNextToken_Numbers(t *testing.T) {
	input := `1 42 3.14 0.5`
	want := []string{"1", "42", "3.14", "0.5"}

	l := New(input)
	for i, lit := range want {
		tok := l.NextToken()
		require.Equal(t, token.NUMBER, tok.Kind, "tests[%d]", i)
		require.Equal(t, lit, tok.Literal, "tests[%d]", i)
	}
}

func TestNextToken_String(t *testing.T) {
	l := New(`"hello world"`)
	tok := l.NextToken()
	require.Equal(t, token.STRING, tok.Kind)
	require.Equal(t, `"hello world"`, tok.Literal)
}

func TestNextToken_UnterminatedString(t *testing.T) {
	l := New(`"hello`)
	tok := l.NextToken()
	require.Equal(t, token.ERROR, tok.Kind)
	require.Equal(t, "Unterminated String", tok.Literal)
}

func TestNextToken_LineComment(t *testing.T) {
	l := New("1 // this is a comment\n2")
	first := l.NextToken()
	second := l.NextToken()
	require.Equal(t, "1", first.Literal)
	require.Equal(t, 1, first.Line)
	require.Equal(t, "2", second.Literal)
	require.Equal(t, 2, second.Line)
}

func TestNextToken_AutomaticSemicolonAfterReturn(t *testing.T) {
	l := New("return\nx")
	ret := l.NextToken()
	semi := l.NextToken()
	ident := l.NextToken()

	require.Equal(t, token.RETURN, ret.Kind)
	require.Equal(t, token.SEMICOLON, semi.Kind)
	require.Equal(t, token.IDENTIFIER, ident.Kind)
}

func TestNextToken_NoAutomaticSemicolonWithoutReturn(t *testing.T) {
	l := New("x\ny")
	first := l.NextToken()
	second := l.NextToken()

	require.Equal(t, token.IDENTIFIER, first.Kind)
	require.Equal(t, token.IDENTIFIER, second.Kind)
}

func TestNextToken_ReturnWithExplicitSemicolonNoDouble(t *testing.T) {
	l := New("return;")
	ret := l.NextToken()
	semi := l.NextToken()
	eof := l.NextToken()

	require.Equal(t, token.RETURN, ret.Kind)
	require.Equal(t, token.SEMICOLON, semi.Kind)
	require.Equal(t, token.EOF, eof.Kind)
}

func TestNextToken_LineTracking(t *testing.T) {
	l := New("1\n2\n3")
	for i, want := range []int{1, 2, 3} {
		tok := l.NextToken()
		require.Equal(t, want, tok.Line, "tests[%d]", i)
	}
}
