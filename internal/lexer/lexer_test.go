package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/patex/internal/diag"
	"github.com/roach88/patex/internal/token"
)

type tok struct {
	kind token.Kind
	text string
}

func kinds(toks []token.Token) []tok {
	out := make([]tok, len(toks))
	for i, t := range toks {
		out[i] = tok{t.Kind, t.Text}
	}
	return out
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []tok
	}{
		{
			name: "bare compare",
			src:  ">3",
			want: []tok{{token.Operator, ">"}, {token.Integer, "3"}},
		},
		{
			name: "maximal munch",
			src:  ">= <= == != -> && || << >> += -= *= /= %=",
			want: []tok{
				{token.Operator, ">="}, {token.Operator, "<="}, {token.Operator, "=="},
				{token.Operator, "!="}, {token.Operator, "->"}, {token.Operator, "&&"},
				{token.Operator, "||"}, {token.Operator, "<<"}, {token.Operator, ">>"},
				{token.Operator, "+="}, {token.Operator, "-="}, {token.Operator, "*="},
				{token.Operator, "/="}, {token.Operator, "%="},
			},
		},
		{
			name: "arrow sequence",
			src:  "{==3}->{==5}",
			want: []tok{
				{token.Bracket, "{"}, {token.Operator, "=="}, {token.Integer, "3"}, {token.Bracket, "}"},
				{token.Operator, "->"},
				{token.Bracket, "{"}, {token.Operator, "=="}, {token.Integer, "5"}, {token.Bracket, "}"},
			},
		},
		{
			name: "range with float",
			src:  "[0, 2.5)",
			want: []tok{
				{token.Bracket, "["}, {token.Integer, "0"}, {token.Operator, ","},
				{token.Float, "2.5"}, {token.Bracket, ")"},
			},
		},
		{
			name: "sign folds at start",
			src:  "-5",
			want: []tok{{token.Integer, "-5"}},
		},
		{
			name: "sign folds after operator",
			src:  ">-2.5",
			want: []tok{{token.Operator, ">"}, {token.Float, "-2.5"}},
		},
		{
			name: "sign folds after comma",
			src:  "(-1,+1)",
			want: []tok{
				{token.Bracket, "("}, {token.Integer, "-1"}, {token.Operator, ","},
				{token.Integer, "+1"}, {token.Bracket, ")"},
			},
		},
		{
			name: "no fold after value",
			src:  "x-1",
			want: []tok{{token.Identifier, "x"}, {token.Operator, "-"}, {token.Integer, "1"}},
		},
		{
			name: "no fold after closing paren",
			src:  "(a)-1",
			want: []tok{
				{token.Bracket, "("}, {token.Identifier, "a"}, {token.Bracket, ")"},
				{token.Operator, "-"}, {token.Integer, "1"},
			},
		},
		{
			name: "no fold after range closer",
			src:  "[1,2]-1",
			want: []tok{
				{token.Bracket, "["}, {token.Integer, "1"}, {token.Operator, ","},
				{token.Integer, "2"}, {token.Bracket, "]"},
				{token.Operator, "-"}, {token.Integer, "1"},
			},
		},
		{
			name: "sign folds after empty call",
			src:  "f()-1",
			want: []tok{
				{token.Identifier, "f"}, {token.Bracket, "("}, {token.Bracket, ")"},
				{token.Integer, "-1"},
			},
		},
		{
			name: "chain",
			src:  "filter(>3).sum().meet(>=10)",
			want: []tok{
				{token.Identifier, "filter"}, {token.Bracket, "("}, {token.Operator, ">"},
				{token.Integer, "3"}, {token.Bracket, ")"}, {token.Operator, "."},
				{token.Identifier, "sum"}, {token.Bracket, "("}, {token.Bracket, ")"},
				{token.Operator, "."}, {token.Identifier, "meet"}, {token.Bracket, "("},
				{token.Operator, ">="}, {token.Integer, "10"}, {token.Bracket, ")"},
			},
		},
		{
			name: "strict count",
			src:  "count!(>4,3)",
			want: []tok{
				{token.Identifier, "count"}, {token.Operator, "!"}, {token.Bracket, "("},
				{token.Operator, ">"}, {token.Integer, "4"}, {token.Operator, ","},
				{token.Integer, "3"}, {token.Bracket, ")"},
			},
		},
		{
			name: "keywords and booleans",
			src:  "let ok = true; if else while break func return for false",
			want: []tok{
				{token.Keyword, "let"}, {token.Identifier, "ok"}, {token.Operator, "="},
				{token.Boolean, "true"}, {token.Operator, ";"}, {token.Keyword, "if"},
				{token.Keyword, "else"}, {token.Keyword, "while"}, {token.Keyword, "break"},
				{token.Keyword, "func"}, {token.Keyword, "return"}, {token.Keyword, "for"},
				{token.Boolean, "false"},
			},
		},
		{
			name: "identifier characters",
			src:  "a_b$1 zone2",
			want: []tok{{token.Identifier, "a_b$1"}, {token.Identifier, "zone2"}},
		},
		{
			name: "strings strip quotes",
			src:  `=="on" != 'off'`,
			want: []tok{
				{token.Operator, "=="}, {token.String, "on"},
				{token.Operator, "!="}, {token.String, "off"},
			},
		},
		{
			name: "duration",
			src:  "keep(>3, 5s)",
			want: []tok{
				{token.Identifier, "keep"}, {token.Bracket, "("}, {token.Operator, ">"},
				{token.Integer, "3"}, {token.Operator, ","}, {token.Integer, "5"},
				{token.Identifier, "s"}, {token.Bracket, ")"},
			},
		},
		{
			name: "comments",
			src:  "// leading\n>3 /* block\n comment */ && <9",
			want: []tok{
				{token.Operator, ">"}, {token.Integer, "3"},
				{token.Operator, "&&"}, {token.Operator, "<"}, {token.Integer, "9"},
			},
		},
		{
			name: "zero",
			src:  "==0",
			want: []tok{{token.Operator, "=="}, {token.Integer, "0"}},
		},
		{
			name: "empty",
			src:  "  \n\t",
			want: []tok{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toks, err := Tokenize(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, kinds(toks))
		})
	}
}

func TestTokenize_Positions(t *testing.T) {
	toks, err := Tokenize("{==3}\n  ->{'x'}")
	require.NoError(t, err)
	require.Len(t, toks, 8)

	arrow := toks[4]
	assert.Equal(t, "->", arrow.Text)
	assert.Equal(t, 8, arrow.Offset)
	assert.Equal(t, 2, arrow.Line)
	assert.Equal(t, 3, arrow.Column)

	str := toks[6]
	assert.Equal(t, token.String, str.Kind)
	assert.Equal(t, 11, str.Offset)
	assert.Equal(t, 14, str.End())
	assert.Equal(t, 6, str.Column)
}

func TestTokenize_Errors(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		code   string
		line   int
		column int
	}{
		{"bad character", ">3 # 4", diag.CodeBadChar, 1, 4},
		{"bad unicode character", "==☃", diag.CodeBadChar, 1, 3},
		{"unterminated comment", ">3 /* open", diag.CodeUnterminatedComment, 1, 4},
		{"trailing dot", ">1.", diag.CodeBadNumber, 1, 2},
		{"trailing dot before paren", "(1.,2)", diag.CodeBadNumber, 1, 2},
		{"leading zero", "==012", diag.CodeLeadingZero, 1, 3},
		{"unterminated string", "=='abc", diag.CodeUnterminatedString, 1, 3},
		{"underscore first", "_x", diag.CodeBadChar, 1, 1},
		{"error on second line", ">1\n  @", diag.CodeBadChar, 2, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Tokenize(tt.src)
			require.Error(t, err)

			de, ok := diag.As(err)
			require.True(t, ok, "expected *diag.Error, got %T", err)
			assert.Equal(t, diag.PhaseLexical, de.Phase)
			assert.Equal(t, tt.code, de.Code)
			assert.Equal(t, tt.line, de.Pos.Line)
			assert.Equal(t, tt.column, de.Pos.Column)
		})
	}
}

func TestTokenize_NormalizesNFC(t *testing.T) {
	toks, err := Tokenize("==\"e\u0301\"")
	require.NoError(t, err)
	require.Len(t, toks, 2)
	assert.Equal(t, "\u00e9", toks[1].Text)
}

func TestTokenize_UnicodeIdentifier(t *testing.T) {
	toks, err := Tokenize("température")
	require.NoError(t, err)
	require.Len(t, toks, 1)
	assert.Equal(t, token.Identifier, toks[0].Kind)
	assert.Equal(t, "température", toks[0].Text)
}
