// Package lexer turns pattern-expression source text into tokens.
//
// The lexer is a set of small state machines (numbers, strings, identifiers,
// operators) driven by a single character loop. Every token records its
// byte offset, line and column for diagnostics.
package lexer

import (
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/patex/internal/diag"
	"github.com/roach88/patex/internal/token"
)

// twoCharOps are resolved by maximal munch before single-character operators.
var twoCharOps = map[string]bool{
	"->": true,
	">=": true,
	"<=": true,
	"==": true,
	"!=": true,
	"&&": true,
	"||": true,
	"<<": true,
	">>": true,
	"+=": true,
	"-=": true,
	"*=": true,
	"/=": true,
	"%=": true,
}

const singleCharOps = "+-*/%=!<>&|^,.;:?"

// Lexer holds the scanning state for one source string.
type Lexer struct {
	input  string
	pos    int // current byte offset
	line   int
	column int
	tokens []token.Token
}

// Tokenize scans src into tokens. The source is NFC-normalised first so
// that visually identical identifiers and strings compare equal; offsets
// refer to the normalised text.
func Tokenize(src string) ([]token.Token, error) {
	_, toks, err := Scan(src)
	return toks, err
}

// Scan is Tokenize that also returns the normalised source the token
// offsets refer to.
func Scan(src string) (string, []token.Token, error) {
	if !norm.NFC.IsNormalString(src) {
		src = norm.NFC.String(src)
	}
	l := &Lexer{input: src, line: 1, column: 1}
	if err := l.run(); err != nil {
		return src, nil, err
	}
	return src, l.tokens, nil
}

func (l *Lexer) run() error {
	for {
		if err := l.skipSpaceAndComments(); err != nil {
			return err
		}
		if l.pos >= len(l.input) {
			return nil
		}

		ch := l.input[l.pos]
		switch {
		case ch == '{' || ch == '}' || ch == '(' || ch == ')' || ch == '[' || ch == ']':
			l.emit(token.Bracket, string(ch), l.pos, l.line, l.column)
			l.advance()
		case ch == '"' || ch == '\'':
			if err := l.readString(ch); err != nil {
				return err
			}
		case isDigit(ch):
			if err := l.readNumber(false); err != nil {
				return err
			}
		case (ch == '-' || ch == '+') && isDigit(l.peekByte(1)) && l.signFolds():
			if err := l.readNumber(true); err != nil {
				return err
			}
		case ch < utf8.RuneSelf && isASCIILetter(ch):
			l.readIdentifier()
		case ch >= utf8.RuneSelf:
			r, _ := utf8.DecodeRuneInString(l.input[l.pos:])
			if !unicode.IsLetter(r) {
				return l.errorf(diag.CodeBadChar, string(r), "unexpected character %q", r)
			}
			l.readIdentifier()
		default:
			if err := l.readOperator(); err != nil {
				return err
			}
		}
	}
}

// signFolds reports whether a '+' or '-' at the current position belongs to
// a numeric literal. It does unless a value precedes it, or a closing
// bracket that itself directly follows a value.
func (l *Lexer) signFolds() bool {
	n := len(l.tokens)
	if n == 0 {
		return true
	}
	prev := l.tokens[n-1]
	if prev.IsValue() {
		return false
	}
	if (prev.IsBracket(")") || prev.IsBracket("]")) && n >= 2 && l.tokens[n-2].IsValue() {
		return false
	}
	return true
}

func (l *Lexer) skipSpaceAndComments() error {
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			l.advance()
		case ch == '/' && l.peekByte(1) == '/':
			for l.pos < len(l.input) && l.input[l.pos] != '\n' {
				l.advance()
			}
		case ch == '/' && l.peekByte(1) == '*':
			start, line, col := l.pos, l.line, l.column
			l.advance()
			l.advance()
			closed := false
			for l.pos < len(l.input) {
				if l.input[l.pos] == '*' && l.peekByte(1) == '/' {
					l.advance()
					l.advance()
					closed = true
					break
				}
				l.advance()
			}
			if !closed {
				return diag.New(diag.PhaseLexical, diag.CodeUnterminatedComment,
					diag.Pos{Offset: start, Line: line, Column: col},
					"unterminated block comment").WithToken("/*")
			}
		default:
			return nil
		}
	}
	return nil
}

// readNumber implements the number state machine:
//
//	start --'0'--> zero --'.'--> fraction
//	start --[1-9]--> digits --'.'--> fraction
//	fraction --[0-9]+--> float
//
// A '.' that is not followed by a digit, or a '0' followed by a digit, is
// rejected.
func (l *Lexer) readNumber(signed bool) error {
	start, line, col := l.pos, l.line, l.column
	if signed {
		l.advance()
	}

	kind := token.Integer
	if l.input[l.pos] == '0' {
		l.advance()
		if isDigit(l.peekByte(0)) {
			return diag.New(diag.PhaseLexical, diag.CodeLeadingZero,
				diag.Pos{Offset: start, Line: line, Column: col},
				"number %q has a leading zero", l.input[start:l.pos+1]).WithToken(l.input[start : l.pos+1])
		}
	} else {
		for isDigit(l.peekByte(0)) {
			l.advance()
		}
	}

	if l.peekByte(0) == '.' {
		if !isDigit(l.peekByte(1)) {
			return diag.New(diag.PhaseLexical, diag.CodeBadNumber,
				diag.Pos{Offset: start, Line: line, Column: col},
				"number %q ends with '.'", l.input[start:l.pos+1]).WithToken(l.input[start : l.pos+1])
		}
		kind = token.Float
		l.advance()
		for isDigit(l.peekByte(0)) {
			l.advance()
		}
	}

	l.emit(kind, l.input[start:l.pos], start, line, col)
	return nil
}

// readString consumes a quoted string. Content is taken literally up to the
// matching quote; there is no escape processing.
func (l *Lexer) readString(quote byte) error {
	start, line, col := l.pos, l.line, l.column
	l.advance()
	contentStart := l.pos
	for l.pos < len(l.input) && l.input[l.pos] != quote {
		l.advance()
	}
	if l.pos >= len(l.input) {
		return diag.New(diag.PhaseLexical, diag.CodeUnterminatedString,
			diag.Pos{Offset: start, Line: line, Column: col},
			"unterminated string").WithToken(string(quote))
	}
	text := l.input[contentStart:l.pos]
	l.advance() // closing quote
	l.emit(token.String, text, start, line, col)
	return nil
}

func (l *Lexer) readIdentifier() {
	start, line, col := l.pos, l.line, l.column
	for l.pos < len(l.input) {
		r, size := utf8.DecodeRuneInString(l.input[l.pos:])
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '$') {
			break
		}
		for i := 0; i < size; i++ {
			l.advance()
		}
	}

	text := l.input[start:l.pos]
	kind := token.Identifier
	switch {
	case token.Keywords[text]:
		kind = token.Keyword
	case text == "true" || text == "false":
		kind = token.Boolean
	}
	l.emit(kind, text, start, line, col)
}

func (l *Lexer) readOperator() error {
	start, line, col := l.pos, l.line, l.column
	if l.pos+2 <= len(l.input) && twoCharOps[l.input[l.pos:l.pos+2]] {
		l.advance()
		l.advance()
		l.emit(token.Operator, l.input[start:l.pos], start, line, col)
		return nil
	}

	ch := l.input[l.pos]
	for i := 0; i < len(singleCharOps); i++ {
		if singleCharOps[i] == ch {
			l.advance()
			l.emit(token.Operator, string(ch), start, line, col)
			return nil
		}
	}
	return l.errorf(diag.CodeBadChar, string(ch), "unexpected character %q", ch)
}

func (l *Lexer) emit(kind token.Kind, text string, offset, line, col int) {
	l.tokens = append(l.tokens, token.Token{
		Kind:   kind,
		Text:   text,
		Offset: offset,
		Line:   line,
		Column: col,
	})
}

// advance moves one byte forward, tracking line and column.
func (l *Lexer) advance() {
	if l.pos >= len(l.input) {
		return
	}
	if l.input[l.pos] == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	l.pos++
}

func (l *Lexer) peekByte(n int) byte {
	if l.pos+n >= len(l.input) {
		return 0
	}
	return l.input[l.pos+n]
}

func (l *Lexer) errorf(code, tok, format string, args ...any) error {
	return diag.New(diag.PhaseLexical, code,
		diag.Pos{Offset: l.pos, Line: l.line, Column: l.column},
		format, args...).WithToken(tok)
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}

func isASCIILetter(ch byte) bool {
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z'
}
