package parser

import (
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/patex/internal/ast"
	"github.com/roach88/patex/internal/diag"
)

func TestParse_Golden(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"compare", ">3"},
		{"compare_float", ">=2.0"},
		{"range_closed", "[1,2]"},
		{"range_half_open", "[0, 2.5)"},
		{"range_negative", "(-5, -1]"},
		{"ranges_or", "((1,1)||(1,2))"},
		{"arrow", "{==3}->{==5}"},
		{"mutation", "<1,2,3>"},
		{"strict_count", "count!(>4, 3)"},
		{"chain", "filter(>3).sum().meet(>=10)"},
		{"chain_window", "collect().window(5s).avg().meet([2,4])"},
		{"logical", ">3 && <9 || ==0"},
		{"precedence", "value + 2 * 3 << 1"},
		{"unary_not", "!(>3)"},
		{"slope", "slope(>1.5, 1m)"},
		{"keep", "keep([20, 30], 10s)"},
		{"strings", "=='on' || ==\"off\""},
		{"let", "let limit = 10; >limit"},
		{"compound_assign", "x += 2"},
		{"func", "func f(a, b) { if (a > b) { return a } else { return b } }"},
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog, err := Parse(tt.src)
			require.NoError(t, err)
			g.Assert(t, tt.name, []byte(ast.Dump(prog)+"\n"))
		})
	}
}

func TestParse_MutationEqualsArrow(t *testing.T) {
	mutation, err := Parse("<1,2,3>")
	require.NoError(t, err)
	arrow, err := Parse("{==1}->{==2}->{==3}")
	require.NoError(t, err)

	assert.Equal(t, ast.Dump(arrow), ast.Dump(mutation))
}

func TestParse_LessThanIsNotMutation(t *testing.T) {
	prog, err := Parse("<3")
	require.NoError(t, err)
	assert.Equal(t, "(< 3)", ast.Dump(prog))

	prog, err = Parse("<3 && >1")
	require.NoError(t, err)
	assert.Equal(t, "(&& (< 3) (> 1))", ast.Dump(prog))
}

func TestParse_ChainNodes(t *testing.T) {
	prog, err := Parse("filter(>3).take(2).sum().meet(>5)")
	require.NoError(t, err)
	require.Len(t, prog.Stmts, 1)

	stmt, ok := prog.Stmts[0].(*ast.ExprStmt)
	require.True(t, ok)
	pipe, ok := stmt.X.(*ast.Pipe)
	require.True(t, ok)
	assert.Equal(t, "filter", pipe.Stage.Name)

	var names []string
	for _, c := range ast.Stages(pipe) {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"filter", "take", "sum", "meet"}, names)
}

func TestParse_Duration(t *testing.T) {
	prog, err := Parse("delay(==1, 250ms)")
	require.NoError(t, err)

	call := prog.Stmts[0].(*ast.ExprStmt).X.(*ast.Call)
	require.Len(t, call.Args, 2)
	d, ok := call.Args[1].(*ast.Duration)
	require.True(t, ok)
	assert.Equal(t, "250ms", d.Text)
	assert.Equal(t, int64(250), d.Value.Milliseconds())
}

func TestParse_SpacedUnitIsNotDuration(t *testing.T) {
	prog, err := Parse("f(5 s)")
	require.Error(t, err)
	assert.Nil(t, prog)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		code   string
		column int
	}{
		{"dangling compare", ">", diag.CodeUnexpectedEOF, 2},
		{"dangling arrow", "{==3}->", diag.CodeUnexpectedEOF, 8},
		{"unclosed range", "[1,2", diag.CodeUnexpectedEOF, 5},
		{"unclosed paren range", "(1,2", diag.CodeUnexpectedEOF, 5},
		{"unclosed group", "(>1", diag.CodeUnexpectedEOF, 4},
		{"paren without separator", "(1 2)", diag.CodeExpectedToken, 4},
		{"for loop", "for (x) {}", diag.CodeUnsupported, 1},
		{"dangling dot", "filter(>3).", diag.CodeUnexpectedEOF, 12},
		{"stage without call", "filter(>3).sum + 1", diag.CodeExpectedToken, 16},
		{"bad unit", ">5xyz", diag.CodeBadLiteral, 3},
		{"stray closer", ">3 )", diag.CodeUnexpectedToken, 4},
		{"let without name", "let = 3", diag.CodeExpectedToken, 5},
		{"unclosed block", "if (x) { >3", diag.CodeUnexpectedEOF, 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src)
			require.Error(t, err)

			de, ok := diag.As(err)
			require.True(t, ok, "expected *diag.Error, got %T", err)
			assert.Equal(t, diag.PhaseSyntax, de.Phase)
			assert.Equal(t, tt.code, de.Code, de.Error())
			assert.Equal(t, tt.column, de.Pos.Column, de.Error())
		})
	}
}

func TestParse_LexicalErrorPassesThrough(t *testing.T) {
	_, err := Parse(">3 # 4")
	require.Error(t, err)
	assert.True(t, diag.IsPhase(err, diag.PhaseLexical))
}

func TestParse_EmptyProgram(t *testing.T) {
	prog, err := Parse("  // nothing\n")
	require.NoError(t, err)
	assert.Empty(t, prog.Stmts)
}

func TestParse_DeepParenNestingIsLinear(t *testing.T) {
	const depth = 40
	src := strings.Repeat("(", depth) + ">1" + strings.Repeat(")", depth)

	start := time.Now()
	prog, err := Parse(src)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "(> 1)", ast.Dump(prog))
	assert.Less(t, elapsed, time.Second, "nested groups must not re-parse their contents")
}

func TestParse_DeepNestingAroundRange(t *testing.T) {
	const depth = 40
	src := strings.Repeat("(", depth) + "(1,2)" + strings.Repeat(")", depth)

	start := time.Now()
	prog, err := Parse(src)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Contains(t, ast.Dump(prog), "range")
	assert.Less(t, elapsed, time.Second)
}

func TestParse_KeepsNormalizedSource(t *testing.T) {
	prog, err := Parse("== \"e\u0301\"")
	require.NoError(t, err)
	assert.Equal(t, "== \"\u00e9\"", prog.Source)
}
