package eval

import (
	"errors"

	"github.com/roach88/patex/internal/diag"
	"github.com/roach88/patex/internal/env"
	"github.com/roach88/patex/internal/scalar"
)

// Node is an executable predicate.
type Node interface {
	// Eval processes one event. On error the caller rolls back the
	// environment.
	Eval(ev Event, e *env.Env) (Outcome, error)
	// Cells returns the environment keys owned by this node and its
	// children.
	Cells() []env.Key
}

// Expr computes a scalar from the current event.
type Expr interface {
	Value(ev Event, e *env.Env) (scalar.Value, error)
}

// Condition tests a subject value, which is the event value for bare
// comparisons and the aggregate or slope for meet and slope.
type Condition interface {
	Test(subject scalar.Value, ev Event, e *env.Env) (bool, error)
}

// Const is a literal or folded constant.
type Const struct {
	V scalar.Value
}

func (c Const) Value(Event, *env.Env) (scalar.Value, error) { return c.V, nil }

// EventValue is the current event's value.
type EventValue struct{}

func (EventValue) Value(ev Event, _ *env.Env) (scalar.Value, error) { return ev.Value, nil }

// Arith applies an arithmetic or bitwise operator.
type Arith struct {
	Op          string
	Left, Right Expr
	Pos         diag.Pos
}

func (a *Arith) Value(ev Event, e *env.Env) (scalar.Value, error) {
	l, err := a.Left.Value(ev, e)
	if err != nil {
		return nil, err
	}
	r, err := a.Right.Value(ev, e)
	if err != nil {
		return nil, err
	}
	v, err := scalar.Arith(a.Op, l, r)
	if err != nil {
		return nil, diag.Wrap(diag.PhaseCompute, diag.CodeArithmetic, a.Pos, err, "%s %s %s", l, a.Op, r)
	}
	return v, nil
}

// Neg negates a numeric expression.
type Neg struct {
	X   Expr
	Pos diag.Pos
}

func (n *Neg) Value(ev Event, e *env.Env) (scalar.Value, error) {
	v, err := n.X.Value(ev, e)
	if err != nil {
		return nil, err
	}
	out, err := scalar.Negate(v)
	if err != nil {
		return nil, diag.Wrap(diag.PhaseCompute, diag.CodeArithmetic, n.Pos, err, "negate %s", v)
	}
	return out, nil
}

// compareValues applies a comparison operator. Ordering a non-numeric value
// is not a match rather than an error: a string is never greater than 3.
func compareValues(op string, l, r scalar.Value) (bool, error) {
	switch op {
	case "==":
		return scalar.Equal(l, r), nil
	case "!=":
		return !scalar.Equal(l, r), nil
	}

	c, err := scalar.Compare(l, r)
	if errors.Is(err, scalar.ErrNotComparable) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	switch op {
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	case ">=":
		return c >= 0, nil
	}
	return false, errors.New("unknown comparison " + op)
}

// Compare is a bare comparison such as ">3".
type Compare struct {
	Op      string
	Operand Expr
}

func (c *Compare) Test(subject scalar.Value, ev Event, e *env.Env) (bool, error) {
	v, err := c.Operand.Value(ev, e)
	if err != nil {
		return false, err
	}
	return compareValues(c.Op, subject, v)
}

// Range is an interval test.
type Range struct {
	Lower, Upper                   Expr
	LowerInclusive, UpperInclusive bool
}

func (r *Range) Test(subject scalar.Value, ev Event, e *env.Env) (bool, error) {
	lo, err := r.Lower.Value(ev, e)
	if err != nil {
		return false, err
	}
	hi, err := r.Upper.Value(ev, e)
	if err != nil {
		return false, err
	}

	lowOp, highOp := ">", "<"
	if r.LowerInclusive {
		lowOp = ">="
	}
	if r.UpperInclusive {
		highOp = "<="
	}
	aboveLow, err := compareValues(lowOp, subject, lo)
	if err != nil || !aboveLow {
		return false, err
	}
	return compareValues(highOp, subject, hi)
}

// AllOf and AnyOf combine conditions; both sides are always tested.
type AllOf struct{ Left, Right Condition }
type AnyOf struct{ Left, Right Condition }

// NoneOf negates a condition.
type NoneOf struct{ C Condition }

func (c *AllOf) Test(subject scalar.Value, ev Event, e *env.Env) (bool, error) {
	l, err := c.Left.Test(subject, ev, e)
	if err != nil {
		return false, err
	}
	r, err := c.Right.Test(subject, ev, e)
	if err != nil {
		return false, err
	}
	return l && r, nil
}

func (c *AnyOf) Test(subject scalar.Value, ev Event, e *env.Env) (bool, error) {
	l, err := c.Left.Test(subject, ev, e)
	if err != nil {
		return false, err
	}
	r, err := c.Right.Test(subject, ev, e)
	if err != nil {
		return false, err
	}
	return l || r, nil
}

func (c *NoneOf) Test(subject scalar.Value, ev Event, e *env.Env) (bool, error) {
	ok, err := c.C.Test(subject, ev, e)
	return !ok, err
}

// Test applies a condition to the event value.
type Test struct {
	Cond Condition
}

func (t *Test) Eval(ev Event, e *env.Env) (Outcome, error) {
	ok, err := t.Cond.Test(ev.Value, ev, e)
	if err != nil {
		return noMatch, err
	}
	return outcomeOf(ok), nil
}

func (t *Test) Cells() []env.Key { return nil }

// Relation compares two expressions, e.g. "value % 2 == 0".
type Relation struct {
	Op          string
	Left, Right Expr
}

func (r *Relation) Eval(ev Event, e *env.Env) (Outcome, error) {
	l, err := r.Left.Value(ev, e)
	if err != nil {
		return noMatch, err
	}
	rv, err := r.Right.Value(ev, e)
	if err != nil {
		return noMatch, err
	}
	ok, err := compareValues(r.Op, l, rv)
	if err != nil {
		return noMatch, err
	}
	return outcomeOf(ok), nil
}

func (r *Relation) Cells() []env.Key { return nil }

// Truthy matches when an expression is truthy, e.g. a boolean event.
type Truthy struct {
	X Expr
}

func (t *Truthy) Eval(ev Event, e *env.Env) (Outcome, error) {
	v, err := t.X.Value(ev, e)
	if err != nil {
		return noMatch, err
	}
	return outcomeOf(scalar.Truthy(v)), nil
}

func (t *Truthy) Cells() []env.Key { return nil }

// Logic combines two predicates with "&&" or "||". Both operands are
// evaluated on every event so stateful operands see the whole stream.
type Logic struct {
	Op          string
	Left, Right Node
}

func (l *Logic) Eval(ev Event, e *env.Env) (Outcome, error) {
	lo, err := l.Left.Eval(ev, e)
	if err != nil {
		return noMatch, err
	}
	ro, err := l.Right.Eval(ev, e)
	if err != nil {
		return noMatch, err
	}
	if l.Op == "&&" {
		return outcomeOf(lo.Matched() && ro.Matched()), nil
	}
	return outcomeOf(lo.Matched() || ro.Matched()), nil
}

func (l *Logic) Cells() []env.Key {
	return concatCells(l.Left, l.Right)
}

// Not inverts a predicate.
type Not struct {
	N Node
}

func (n *Not) Eval(ev Event, e *env.Env) (Outcome, error) {
	o, err := n.N.Eval(ev, e)
	if err != nil {
		return noMatch, err
	}
	return outcomeOf(!o.Matched()), nil
}

func (n *Not) Cells() []env.Key { return n.N.Cells() }

func concatCells(nodes ...Node) []env.Key {
	var out []env.Key
	for _, n := range nodes {
		out = append(out, n.Cells()...)
	}
	return out
}
