// Package token defines lexical tokens and the rewindable Cursor the parser
// uses for speculative parsing.
package token

import (
	"fmt"

	"github.com/roach88/patex/internal/diag"
)

// Kind classifies a token.
type Kind int

const (
	// Special tokens
	EOF Kind = iota

	Keyword    // let if else for while break func return
	Identifier // names, stage names, units
	Operator   // + -> >= , . ; ...
	Bracket    // { } ( ) [ ]
	String     // 'abc' or "abc" (quotes stripped)
	Integer    // 0, 42, -7
	Float      // 1.5, -0.25
	Boolean    // true false
)

var kindNames = map[Kind]string{
	EOF:        "EOF",
	Keyword:    "Keyword",
	Identifier: "Identifier",
	Operator:   "Operator",
	Bracket:    "Bracket",
	String:     "String",
	Integer:    "Integer",
	Float:      "Float",
	Boolean:    "Boolean",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Keywords are the reserved words of the language.
var Keywords = map[string]bool{
	"let":    true,
	"if":     true,
	"else":   true,
	"for":    true,
	"while":  true,
	"break":  true,
	"func":   true,
	"return": true,
}

// Token is an immutable lexical unit with its source position.
type Token struct {
	Kind   Kind
	Text   string
	Offset int // 0-based byte offset
	Line   int // 1-based
	Column int // 1-based
}

// Pos returns the token position for diagnostics.
func (t Token) Pos() diag.Pos {
	return diag.Pos{Offset: t.Offset, Line: t.Line, Column: t.Column}
}

// End returns the byte offset just past the token text. String tokens
// account for their quotes.
func (t Token) End() int {
	if t.Kind == String {
		return t.Offset + len(t.Text) + 2
	}
	return t.Offset + len(t.Text)
}

// Is reports whether the token has the given kind and text.
func (t Token) Is(kind Kind, text string) bool {
	return t.Kind == kind && t.Text == text
}

// IsOp reports whether the token is the operator text.
func (t Token) IsOp(text string) bool {
	return t.Is(Operator, text)
}

// IsBracket reports whether the token is the bracket text.
func (t Token) IsBracket(text string) bool {
	return t.Is(Bracket, text)
}

// IsValue reports whether the token is an identifier or a literal.
func (t Token) IsValue() bool {
	switch t.Kind {
	case Identifier, String, Integer, Float, Boolean:
		return true
	}
	return false
}

// IsLiteral reports whether the token is a scalar literal.
func (t Token) IsLiteral() bool {
	switch t.Kind {
	case String, Integer, Float, Boolean:
		return true
	}
	return false
}

func (t Token) String() string {
	if t.Kind == EOF {
		return "EOF"
	}
	if t.Kind == String {
		return fmt.Sprintf("%q", t.Text)
	}
	return t.Text
}
