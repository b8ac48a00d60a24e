// Package translator lowers a parsed program into an evaluation node tree
// and the environment that node tree runs against.
package translator

import (
	"fmt"
	"time"

	"github.com/roach88/patex/internal/ast"
	"github.com/roach88/patex/internal/diag"
	"github.com/roach88/patex/internal/env"
	"github.com/roach88/patex/internal/eval"
	"github.com/roach88/patex/internal/scalar"
)

// DefaultSlopeUnit is the time unit of slope() when none is given.
const DefaultSlopeUnit = time.Second

// Options configure lowering.
type Options struct {
	Registry  *eval.Registry // custom pipeline functions, may be nil
	Strict    bool           // arrow sequences restart on any miss
	MaxBuffer int            // cap for unbounded pipeline buffers, 0 for the default
	SlopeUnit time.Duration  // 0 for DefaultSlopeUnit
}

type lowerer struct {
	opts    Options
	env     *env.Env
	consts  map[string]scalar.Value
	owners  map[string]int
	inArrow int
}

// Lower translates prog. The last statement must be an expression: it is
// the rule's predicate. Preceding statements may only declare constants.
func Lower(prog *ast.Program, opts Options) (eval.Node, *env.Env, error) {
	if opts.SlopeUnit <= 0 {
		opts.SlopeUnit = DefaultSlopeUnit
	}
	l := &lowerer{
		opts:   opts,
		env:    env.New(),
		consts: make(map[string]scalar.Value),
		owners: make(map[string]int),
	}
	l.env.SetMaxBuffer(opts.MaxBuffer)

	var pred eval.Node
	for i, stmt := range prog.Stmts {
		last := i == len(prog.Stmts)-1
		switch s := stmt.(type) {
		case *ast.Let:
			if err := l.declare(s); err != nil {
				return nil, nil, err
			}
		case *ast.ExprStmt:
			if !last {
				return nil, nil, l.errorf(s, diag.CodeUnsupportedStmt, "expression result is unused; only the last expression is the predicate")
			}
			node, err := l.predicate(s.X)
			if err != nil {
				return nil, nil, err
			}
			pred = node
		default:
			return nil, nil, l.errorf(s, diag.CodeUnsupportedStmt, "%s statements are not supported in rules", stmtName(s))
		}
	}
	if pred == nil {
		return nil, nil, diag.New(diag.PhaseTranslation, diag.CodeMissingPredicate, prog.Tok().Pos(),
			"rule has no predicate expression")
	}
	return pred, l.env, nil
}

func stmtName(s ast.Stmt) string {
	switch s.(type) {
	case *ast.Assign:
		return "assignment"
	case *ast.If:
		return "if"
	case *ast.Func:
		return "func"
	case *ast.Return:
		return "return"
	case *ast.While:
		return "while"
	case *ast.Break:
		return "break"
	case *ast.Block:
		return "block"
	default:
		return fmt.Sprintf("%T", s)
	}
}

func (l *lowerer) declare(s *ast.Let) error {
	if isEventName(s.Name) {
		return l.errorf(s, diag.CodeUnsupportedStmt, "%q is reserved for the event value", s.Name)
	}
	if _, dup := l.consts[s.Name]; dup {
		return l.errorf(s, diag.CodeUnsupportedStmt, "%q is already declared", s.Name)
	}
	v, ok, err := l.fold(s.Value)
	if err != nil {
		return err
	}
	if !ok {
		return l.errorf(s.Value, diag.CodeArgumentType, "initialiser of %q must be a constant", s.Name)
	}
	l.consts[s.Name] = v
	return nil
}

func isEventName(name string) bool {
	return name == "value" || name == "it"
}

// owner returns a fresh, deterministic owner name such as "count2".
func (l *lowerer) owner(kind string) string {
	l.owners[kind]++
	return fmt.Sprintf("%s%d", kind, l.owners[kind])
}

// cell declares a cell for owner. Owner names are unique so this cannot
// collide.
func (l *lowerer) cell(owner, slot string, kind env.Kind) env.Key {
	key := env.MakeKey(owner, slot)
	if err := l.env.Declare(key, kind, owner, nil); err != nil {
		panic(err)
	}
	return key
}

// predicate lowers an expression used as a match condition.
func (l *lowerer) predicate(x ast.Expr) (eval.Node, error) {
	switch n := x.(type) {
	case *ast.Compare, *ast.Range:
		cond, err := l.condition(n)
		if err != nil {
			return nil, err
		}
		return &eval.Test{Cond: cond}, nil
	case *ast.Arrow:
		return l.arrow(n)
	case *ast.Call:
		return l.call(n)
	case *ast.Pipe:
		return l.pipeline(n)
	case *ast.Binary:
		switch {
		case n.Op == "&&" || n.Op == "||":
			left, err := l.predicate(n.Left)
			if err != nil {
				return nil, err
			}
			right, err := l.predicate(n.Right)
			if err != nil {
				return nil, err
			}
			return &eval.Logic{Op: n.Op, Left: left, Right: right}, nil
		case isComparison(n.Op):
			return l.relation(n)
		}
	case *ast.Unary:
		if n.Op == "!" {
			inner, err := l.predicate(n.Operand)
			if err != nil {
				return nil, err
			}
			return &eval.Not{N: inner}, nil
		}
	case *ast.Duration:
		return nil, l.errorf(n, diag.CodeArgumentType, "a duration is not a predicate")
	}

	v, err := l.value(x)
	if err != nil {
		return nil, err
	}
	return &eval.Truthy{X: v}, nil
}

func isComparison(op string) bool {
	switch op {
	case "==", "!=", "<", ">", "<=", ">=":
		return true
	}
	return false
}

func isOrdering(op string) bool {
	return op == "<" || op == ">" || op == "<=" || op == ">="
}

func (l *lowerer) relation(n *ast.Binary) (eval.Node, error) {
	left, err := l.value(n.Left)
	if err != nil {
		return nil, err
	}
	right, err := l.value(n.Right)
	if err != nil {
		return nil, err
	}
	if isOrdering(n.Op) {
		if err := l.checkOrdered(n.Left, left); err != nil {
			return nil, err
		}
		if err := l.checkOrdered(n.Right, right); err != nil {
			return nil, err
		}
	}
	return &eval.Relation{Op: n.Op, Left: left, Right: right}, nil
}

// checkOrdered rejects ordering against a constant that is not a number.
func (l *lowerer) checkOrdered(x ast.Expr, v eval.Expr) error {
	c, ok := v.(eval.Const)
	if !ok || scalar.IsNumeric(c.V) {
		return nil
	}
	return l.errorf(x, diag.CodeNonNumericOrdering, "cannot order against %s %s", c.V.Kind(), describeConst(c.V))
}

func describeConst(v scalar.Value) string {
	if s, ok := v.(scalar.String); ok {
		return fmt.Sprintf("%q", string(s))
	}
	return v.String()
}

// condition lowers comparisons, ranges and their logical combinations into a
// test against a subject value.
func (l *lowerer) condition(x ast.Expr) (eval.Condition, error) {
	switch n := x.(type) {
	case *ast.Compare:
		operand, err := l.value(n.Operand)
		if err != nil {
			return nil, err
		}
		if isOrdering(n.Op) {
			if err := l.checkOrdered(n.Operand, operand); err != nil {
				return nil, err
			}
		}
		return &eval.Compare{Op: n.Op, Operand: operand}, nil
	case *ast.Range:
		lower, err := l.value(n.Lower)
		if err != nil {
			return nil, err
		}
		upper, err := l.value(n.Upper)
		if err != nil {
			return nil, err
		}
		if err := l.checkOrdered(n.Lower, lower); err != nil {
			return nil, err
		}
		if err := l.checkOrdered(n.Upper, upper); err != nil {
			return nil, err
		}
		return &eval.Range{
			Lower:          lower,
			Upper:          upper,
			LowerInclusive: n.LowerInclusive,
			UpperInclusive: n.UpperInclusive,
		}, nil
	case *ast.Binary:
		if n.Op == "&&" || n.Op == "||" {
			left, err := l.condition(n.Left)
			if err != nil {
				return nil, err
			}
			right, err := l.condition(n.Right)
			if err != nil {
				return nil, err
			}
			if n.Op == "&&" {
				return &eval.AllOf{Left: left, Right: right}, nil
			}
			return &eval.AnyOf{Left: left, Right: right}, nil
		}
	case *ast.Unary:
		if n.Op == "!" {
			inner, err := l.condition(n.Operand)
			if err != nil {
				return nil, err
			}
			return &eval.NoneOf{C: inner}, nil
		}
	}
	return nil, l.errorf(x, diag.CodeArgumentType, "expected a comparison or range, got %s", ast.Dump(x))
}

// value lowers an expression that produces a scalar. Constant
// subexpressions are folded.
func (l *lowerer) value(x ast.Expr) (eval.Expr, error) {
	if v, ok, err := l.fold(x); err != nil {
		return nil, err
	} else if ok {
		return eval.Const{V: v}, nil
	}

	switch n := x.(type) {
	case *ast.Variable:
		if isEventName(n.Name) {
			return eval.EventValue{}, nil
		}
		return nil, l.errorf(n, diag.CodeUndefinedVariable, "undefined variable %q", n.Name)
	case *ast.Binary:
		if !isArithmetic(n.Op) {
			break
		}
		left, err := l.value(n.Left)
		if err != nil {
			return nil, err
		}
		right, err := l.value(n.Right)
		if err != nil {
			return nil, err
		}
		return &eval.Arith{Op: n.Op, Left: left, Right: right, Pos: n.Token.Pos()}, nil
	case *ast.Unary:
		if n.Op != "-" {
			break
		}
		inner, err := l.value(n.Operand)
		if err != nil {
			return nil, err
		}
		return &eval.Neg{X: inner, Pos: n.Token.Pos()}, nil
	}
	return nil, l.errorf(x, diag.CodeArgumentType, "expected a value, got %s", ast.Dump(x))
}

func isArithmetic(op string) bool {
	switch op {
	case "+", "-", "*", "/", "%", "<<", ">>", "&", "|", "^":
		return true
	}
	return false
}

// fold evaluates constant expressions at compile time. ok is false when x
// depends on the event.
func (l *lowerer) fold(x ast.Expr) (v scalar.Value, ok bool, err error) {
	switch n := x.(type) {
	case *ast.Scalar:
		return n.Value, true, nil
	case *ast.Variable:
		v, ok := l.consts[n.Name]
		return v, ok, nil
	case *ast.Unary:
		if n.Op != "-" {
			return nil, false, nil
		}
		inner, ok, err := l.fold(n.Operand)
		if !ok || err != nil {
			return nil, ok, err
		}
		out, err := scalar.Negate(inner)
		if err != nil {
			return nil, false, diag.Wrap(diag.PhaseCompute, diag.CodeArithmetic, n.Token.Pos(), err, "constant expression")
		}
		return out, true, nil
	case *ast.Binary:
		if !isArithmetic(n.Op) {
			return nil, false, nil
		}
		left, lok, err := l.fold(n.Left)
		if err != nil {
			return nil, false, err
		}
		right, rok, err := l.fold(n.Right)
		if err != nil || !lok || !rok {
			return nil, false, err
		}
		out, err := scalar.Arith(n.Op, left, right)
		if err != nil {
			return nil, false, diag.Wrap(diag.PhaseCompute, diag.CodeArithmetic, n.Token.Pos(), err, "constant expression")
		}
		return out, true, nil
	}
	return nil, false, nil
}

func (l *lowerer) arrow(n *ast.Arrow) (eval.Node, error) {
	if l.inArrow > 0 {
		return nil, l.errorf(n, diag.CodeNestedArrow, "arrow sequences cannot be nested inside an arrow stage")
	}
	l.inArrow++
	defer func() { l.inArrow-- }()

	owner := l.owner("arrow")
	node := &eval.Arrow{
		Index:  l.cell(owner, "index", env.KindCounter),
		Strict: l.opts.Strict,
	}
	for _, stage := range n.Stages {
		s, err := l.predicate(stage)
		if err != nil {
			return nil, err
		}
		node.Stages = append(node.Stages, s)
	}
	return node, nil
}

func (l *lowerer) errorf(n ast.Node, code, format string, args ...any) error {
	tok := n.Tok()
	return diag.New(diag.PhaseTranslation, code, tok.Pos(), format, args...).WithToken(tok.Text)
}
