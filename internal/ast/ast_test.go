package ast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/patex/internal/scalar"
)

func num(n int64) *Scalar { return &Scalar{Value: scalar.Int(n)} }

func TestStages(t *testing.T) {
	filter := &Call{Name: "filter", Args: []Expr{&Compare{Op: ">", Operand: num(3)}}}
	sum := &Call{Name: "sum"}
	meet := &Call{Name: "meet", Args: []Expr{&Compare{Op: ">=", Operand: num(10)}}}

	chain := &Pipe{Stage: filter, Next: &Pipe{Stage: sum, Next: meet}}
	assert.Equal(t, []*Call{filter, sum, meet}, Stages(chain))
	assert.Equal(t, []*Call{sum}, Stages(sum))
	assert.Nil(t, Stages(num(1)))
}

func TestRangeBrackets(t *testing.T) {
	assert.Equal(t, "[]", (&Range{LowerInclusive: true, UpperInclusive: true}).Brackets())
	assert.Equal(t, "()", (&Range{}).Brackets())
	assert.Equal(t, "[)", (&Range{LowerInclusive: true}).Brackets())
	assert.Equal(t, "(]", (&Range{UpperInclusive: true}).Brackets())
}

func TestDump(t *testing.T) {
	tests := []struct {
		name string
		node Node
		want string
	}{
		{
			name: "compare",
			node: &Compare{Op: ">", Operand: num(3)},
			want: "(> 3)",
		},
		{
			name: "string scalar is quoted",
			node: &Compare{Op: "==", Operand: &Scalar{Value: scalar.String("on")}},
			want: `(== "on")`,
		},
		{
			name: "float keeps fraction",
			node: &Scalar{Value: scalar.Float(2)},
			want: "2.0",
		},
		{
			name: "range",
			node: &Range{Lower: num(1), Upper: num(2), LowerInclusive: true},
			want: "(range [) 1 2)",
		},
		{
			name: "arrow",
			node: &Arrow{Stages: []Expr{
				&Compare{Op: "==", Operand: num(3)},
				&Compare{Op: "==", Operand: num(5)},
			}},
			want: "(-> (== 3) (== 5))",
		},
		{
			name: "strict call with duration",
			node: &Call{Name: "count", Strict: true, Args: []Expr{
				&Compare{Op: ">", Operand: num(4)},
				&Duration{Text: "5s", Value: 5 * time.Second},
			}},
			want: "(call count! (> 4) 5s)",
		},
		{
			name: "pipe",
			node: &Pipe{Stage: &Call{Name: "sum"}, Next: &Call{Name: "meet", Args: []Expr{num(1)}}},
			want: "(pipe (call sum) (call meet 1))",
		},
		{
			name: "statements",
			node: &Program{Stmts: []Stmt{
				&Let{Name: "x", Value: num(1)},
				&If{
					Cond: &Variable{Name: "x"},
					Then: &Block{Stmts: []Stmt{&Return{Value: num(2)}}},
					Else: &Block{Stmts: []Stmt{&Return{}}},
				},
				&ExprStmt{X: &Unary{Op: "!", Operand: &Variable{Name: "x"}}},
			}},
			want: "(let x 1)\n(if x (block (return 2)) (block (return)))\n(! x)",
		},
		{
			name: "func and loop",
			node: &Func{Name: "f", Params: []string{"a", "b"}, Body: &Block{Stmts: []Stmt{
				&While{Cond: &Variable{Name: "a"}, Body: &Block{Stmts: []Stmt{&Break{}}}},
				&Assign{Name: "b", Op: "+=", Value: num(1)},
			}}},
			want: "(func f (a b) (block (while a (block (break))) (+= b 1)))",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Dump(tt.node))
		})
	}
}
