package ast

import (
	"strconv"
	"strings"

	"github.com/roach88/patex/internal/scalar"
)

// Dump renders a node as a stable s-expression. Programs render one
// statement per line.
func Dump(n Node) string {
	var b strings.Builder
	dump(&b, n)
	return b.String()
}

func dump(b *strings.Builder, n Node) {
	switch n := n.(type) {
	case *Program:
		for i, s := range n.Stmts {
			if i > 0 {
				b.WriteByte('\n')
			}
			dump(b, s)
		}
	case *Scalar:
		if s, ok := n.Value.(scalar.String); ok {
			b.WriteString(strconv.Quote(string(s)))
			return
		}
		b.WriteString(n.Value.String())
	case *Variable:
		b.WriteString(n.Name)
	case *Duration:
		b.WriteString(n.Text)
	case *Compare:
		list(b, n.Op, n.Operand)
	case *Range:
		list(b, "range "+n.Brackets(), n.Lower, n.Upper)
	case *Arrow:
		list(b, "->", n.Stages...)
	case *Call:
		list(b, "call "+n.FullName(), n.Args...)
	case *Pipe:
		list[Node](b, "pipe", n.Stage, n.Next)
	case *Binary:
		list(b, n.Op, n.Left, n.Right)
	case *Unary:
		list(b, n.Op, n.Operand)
	case *Block:
		b.WriteString("(block")
		for _, s := range n.Stmts {
			b.WriteByte(' ')
			dump(b, s)
		}
		b.WriteByte(')')
	case *Let:
		list(b, "let "+n.Name, n.Value)
	case *Assign:
		list(b, n.Op+" "+n.Name, n.Value)
	case *If:
		b.WriteString("(if ")
		dump(b, n.Cond)
		b.WriteByte(' ')
		dump(b, n.Then)
		if n.Else != nil {
			b.WriteByte(' ')
			dump(b, n.Else)
		}
		b.WriteByte(')')
	case *Func:
		b.WriteString("(func " + n.Name + " (" + strings.Join(n.Params, " ") + ") ")
		dump(b, n.Body)
		b.WriteByte(')')
	case *Return:
		if n.Value == nil {
			b.WriteString("(return)")
			return
		}
		list(b, "return", n.Value)
	case *While:
		b.WriteString("(while ")
		dump(b, n.Cond)
		b.WriteByte(' ')
		dump(b, n.Body)
		b.WriteByte(')')
	case *Break:
		b.WriteString("(break)")
	case *ExprStmt:
		dump(b, n.X)
	case nil:
		b.WriteString("<nil>")
	default:
		b.WriteString("<?>")
	}
}

func list[T Node](b *strings.Builder, head string, items ...T) {
	b.WriteByte('(')
	b.WriteString(head)
	for _, it := range items {
		b.WriteByte(' ')
		dump(b, it)
	}
	b.WriteByte(')')
}
