// Package ast defines the syntax tree produced by the parser.
//
// Every node carries the token it originated from so later phases can
// attribute errors to a source position. Nodes own their children; the tree
// has no sharing and no cycles.
package ast

import (
	"time"

	"github.com/roach88/patex/internal/scalar"
	"github.com/roach88/patex/internal/token"
)

// Node is implemented by every syntax tree node.
type Node interface {
	Tok() token.Token
}

// Expr is a node that produces a value or a match result.
type Expr interface {
	Node
	exprNode()
}

// Stmt is a node in statement position.
type Stmt interface {
	Node
	stmtNode()
}

// Program is the root of a parsed source.
type Program struct {
	Stmts  []Stmt
	Source string // normalised text token offsets refer to; empty from ParseTokens
}

// Tok returns the first statement's token, or an EOF token for an empty
// program.
func (p *Program) Tok() token.Token {
	if len(p.Stmts) == 0 {
		return token.Token{Kind: token.EOF, Line: 1, Column: 1}
	}
	return p.Stmts[0].Tok()
}

// Scalar is a literal value.
type Scalar struct {
	Token token.Token
	Value scalar.Value
}

// Variable is a reference to a named value.
type Variable struct {
	Token token.Token
	Name  string
}

// Compare is a bare comparison against the current event value, e.g. ">3".
type Compare struct {
	Token   token.Token
	Op      string
	Operand Expr
}

// Range is an interval test, e.g. "[1,2)".
type Range struct {
	Token          token.Token
	Lower          Expr
	Upper          Expr
	LowerInclusive bool
	UpperInclusive bool
}

// Brackets renders the interval's bracket pair, e.g. "[)".
func (r *Range) Brackets() string {
	lo, hi := "(", ")"
	if r.LowerInclusive {
		lo = "["
	}
	if r.UpperInclusive {
		hi = "]"
	}
	return lo + hi
}

// Arrow is an ordered sequence of stages that successive events must
// satisfy. Mutation sequences ("<1,2,3>") are parsed directly into an Arrow
// of equality comparisons.
type Arrow struct {
	Token  token.Token
	Stages []Expr
}

// Call is a function application, "name(args)" or strict "name!(args)".
type Call struct {
	Token  token.Token
	Name   string
	Strict bool
	Args   []Expr
}

// FullName returns the name with the strict marker, e.g. "count!".
func (c *Call) FullName() string {
	if c.Strict {
		return c.Name + "!"
	}
	return c.Name
}

// Pipe links one chain stage to the rest of the chain. Pipes nest to the
// right so "a().b().c()" is Pipe(a, Pipe(b, c)).
type Pipe struct {
	Token token.Token
	Stage *Call
	Next  Expr // *Call or *Pipe
}

// Duration is a number immediately followed by a time unit, e.g. "250ms".
type Duration struct {
	Token token.Token
	Text  string
	Value time.Duration
}

// Binary is an infix operation.
type Binary struct {
	Token token.Token
	Op    string
	Left  Expr
	Right Expr
}

// Unary is a prefix operation ("!" or "-").
type Unary struct {
	Token   token.Token
	Op      string
	Operand Expr
}

func (n *Scalar) Tok() token.Token   { return n.Token }
func (n *Variable) Tok() token.Token { return n.Token }
func (n *Compare) Tok() token.Token  { return n.Token }
func (n *Range) Tok() token.Token    { return n.Token }
func (n *Arrow) Tok() token.Token    { return n.Token }
func (n *Call) Tok() token.Token     { return n.Token }
func (n *Pipe) Tok() token.Token     { return n.Token }
func (n *Duration) Tok() token.Token { return n.Token }
func (n *Binary) Tok() token.Token   { return n.Token }
func (n *Unary) Tok() token.Token    { return n.Token }

func (*Scalar) exprNode()   {}
func (*Variable) exprNode() {}
func (*Compare) exprNode()  {}
func (*Range) exprNode()    {}
func (*Arrow) exprNode()    {}
func (*Call) exprNode()     {}
func (*Pipe) exprNode()     {}
func (*Duration) exprNode() {}
func (*Binary) exprNode()   {}
func (*Unary) exprNode()    {}

// Block is a braced statement list.
type Block struct {
	Token token.Token
	Stmts []Stmt
}

// Let declares a name.
type Let struct {
	Token token.Token
	Name  string
	Value Expr
}

// Assign is "name = value" or a compound form such as "name += value".
type Assign struct {
	Token token.Token
	Name  string
	Op    string
	Value Expr
}

// If is a conditional. Else is nil, a *Block or another *If.
type If struct {
	Token token.Token
	Cond  Expr
	Then  *Block
	Else  Stmt
}

// Func is a function definition.
type Func struct {
	Token  token.Token
	Name   string
	Params []string
	Body   *Block
}

// Return exits a function. Value may be nil.
type Return struct {
	Token token.Token
	Value Expr
}

// While is a conditional loop.
type While struct {
	Token token.Token
	Cond  Expr
	Body  *Block
}

// Break exits the innermost loop.
type Break struct {
	Token token.Token
}

// ExprStmt is an expression in statement position.
type ExprStmt struct {
	X Expr
}

func (n *Block) Tok() token.Token    { return n.Token }
func (n *Let) Tok() token.Token      { return n.Token }
func (n *Assign) Tok() token.Token   { return n.Token }
func (n *If) Tok() token.Token       { return n.Token }
func (n *Func) Tok() token.Token     { return n.Token }
func (n *Return) Tok() token.Token   { return n.Token }
func (n *While) Tok() token.Token    { return n.Token }
func (n *Break) Tok() token.Token    { return n.Token }
func (n *ExprStmt) Tok() token.Token { return n.X.Tok() }

func (*Block) stmtNode()    {}
func (*Let) stmtNode()      {}
func (*Assign) stmtNode()   {}
func (*If) stmtNode()       {}
func (*Func) stmtNode()     {}
func (*Return) stmtNode()   {}
func (*While) stmtNode()    {}
func (*Break) stmtNode()    {}
func (*ExprStmt) stmtNode() {}

// Stages flattens a chain into its calls in source order. A lone call is a
// one-stage chain.
func Stages(e Expr) []*Call {
	var out []*Call
	for {
		switch n := e.(type) {
		case *Pipe:
			out = append(out, n.Stage)
			e = n.Next
		case *Call:
			return append(out, n)
		default:
			return out
		}
	}
}
