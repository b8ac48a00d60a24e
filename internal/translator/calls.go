package translator

import (
	"time"

	"github.com/roach88/patex/internal/ast"
	"github.com/roach88/patex/internal/chain"
	"github.com/roach88/patex/internal/diag"
	"github.com/roach88/patex/internal/env"
	"github.com/roach88/patex/internal/eval"
	"github.com/roach88/patex/internal/scalar"
)

// call lowers a stand-alone function call. Stateful operators are handled
// here; anything else is a one-stage pipeline.
func (l *lowerer) call(c *ast.Call) (eval.Node, error) {
	switch {
	case c.Name == "count" && (c.Strict || len(c.Args) > 0):
		return l.count(c)
	case c.Strict:
		return nil, l.errorf(c, diag.CodeUnknownFunction, "unknown function %s", c.FullName())
	case c.Name == "keep":
		return l.keep(c)
	case c.Name == "delay":
		return l.delay(c)
	case c.Name == "slope":
		return l.slope(c)
	}
	if chain.IsBuiltin(c.Name) {
		return l.pipeline(c)
	}
	if _, ok := l.opts.Registry.Roles()[c.Name]; ok {
		return l.pipeline(c)
	}
	return nil, l.errorf(c, diag.CodeUnknownFunction, "unknown function %s", c.Name)
}

func (l *lowerer) arity(c *ast.Call, lo, hi int) error {
	n := len(c.Args)
	if n >= lo && n <= hi {
		return nil
	}
	if lo == hi {
		return l.errorf(c, diag.CodeArity, "%s takes %d argument(s), got %d", c.FullName(), lo, n)
	}
	return l.errorf(c, diag.CodeArity, "%s takes %d to %d arguments, got %d", c.FullName(), lo, hi, n)
}

// positiveInt requires a constant integer >= 1.
func (l *lowerer) positiveInt(c *ast.Call, x ast.Expr) (int64, error) {
	v, ok, err := l.fold(x)
	if err != nil {
		return 0, err
	}
	n, isInt := v.(scalar.Int)
	if !ok || !isInt || n < 1 {
		return 0, l.errorf(x, diag.CodeArgumentType, "%s expects a positive integer constant, got %s", c.FullName(), ast.Dump(x))
	}
	return int64(n), nil
}

// duration requires a non-negative duration literal.
func (l *lowerer) duration(c *ast.Call, x ast.Expr) (time.Duration, error) {
	d, ok := x.(*ast.Duration)
	if !ok || d.Value < 0 {
		return 0, l.errorf(x, diag.CodeArgumentType, "%s expects a duration such as 5s, got %s", c.FullName(), ast.Dump(x))
	}
	return d.Value, nil
}

// constArgs folds custom function arguments to scalars.
func (l *lowerer) constArgs(c *ast.Call) ([]scalar.Value, error) {
	var out []scalar.Value
	for _, arg := range c.Args {
		v, ok, err := l.fold(arg)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, l.errorf(arg, diag.CodeArgumentType, "arguments to %s must be constants", c.Name)
		}
		out = append(out, v)
	}
	return out, nil
}

func (l *lowerer) count(c *ast.Call) (eval.Node, error) {
	if err := l.arity(c, 2, 2); err != nil {
		return nil, err
	}
	pred, err := l.predicate(c.Args[0])
	if err != nil {
		return nil, err
	}
	n, err := l.positiveInt(c, c.Args[1])
	if err != nil {
		return nil, err
	}
	owner := l.owner("count")
	return &eval.Count{
		Pred:    pred,
		N:       n,
		Strict:  c.Strict,
		Counter: l.cell(owner, "n", env.KindCounter),
	}, nil
}

func (l *lowerer) keep(c *ast.Call) (eval.Node, error) {
	if err := l.arity(c, 2, 2); err != nil {
		return nil, err
	}
	pred, err := l.predicate(c.Args[0])
	if err != nil {
		return nil, err
	}

	node := &eval.Keep{Pred: pred}
	if _, isDur := c.Args[1].(*ast.Duration); isDur {
		if node.Duration, err = l.duration(c, c.Args[1]); err != nil {
			return nil, err
		}
	} else if node.Events, err = l.positiveInt(c, c.Args[1]); err != nil {
		return nil, err
	}

	owner := l.owner("keep")
	node.Since = l.cell(owner, "since", env.KindTime)
	node.Run = l.cell(owner, "run", env.KindCounter)
	return node, nil
}

func (l *lowerer) delay(c *ast.Call) (eval.Node, error) {
	if err := l.arity(c, 2, 2); err != nil {
		return nil, err
	}
	pred, err := l.predicate(c.Args[0])
	if err != nil {
		return nil, err
	}
	d, err := l.duration(c, c.Args[1])
	if err != nil {
		return nil, err
	}
	owner := l.owner("delay")
	return &eval.Delay{Pred: pred, Duration: d, Start: l.cell(owner, "start", env.KindTime)}, nil
}

func (l *lowerer) slope(c *ast.Call) (eval.Node, error) {
	if err := l.arity(c, 1, 2); err != nil {
		return nil, err
	}
	cond, err := l.condition(c.Args[0])
	if err != nil {
		return nil, err
	}
	unit := l.opts.SlopeUnit
	if len(c.Args) == 2 {
		if unit, err = l.duration(c, c.Args[1]); err != nil {
			return nil, err
		}
		if unit == 0 {
			return nil, l.errorf(c.Args[1], diag.CodeArgumentType, "slope unit must be greater than zero")
		}
	}
	owner := l.owner("slope")
	return &eval.Slope{
		Cond:     cond,
		Unit:     unit,
		Last:     l.cell(owner, "last", env.KindScalar),
		LastTime: l.cell(owner, "time", env.KindTime),
		Pos:      c.Token.Pos(),
	}, nil
}

// pipeline validates the stage order and lowers each stage.
func (l *lowerer) pipeline(x ast.Expr) (eval.Node, error) {
	calls := ast.Stages(x)
	names := make([]string, len(calls))
	for i, c := range calls {
		if c.Strict {
			return nil, l.errorf(c, diag.CodeUnknownFunction, "unknown stage %s", c.FullName())
		}
		names[i] = c.Name
	}

	effective, err := chain.Validate(names, l.opts.Registry.Roles())
	if err != nil {
		return nil, l.chainError(calls, err)
	}
	if len(effective) > len(calls) {
		// implicit filter()
		calls = append([]*ast.Call{nil}, calls...)
	}

	owner := l.owner("pipe")
	p := &eval.Pipeline{}
	for i, c := range calls {
		var err error
		switch {
		case i == 0:
			p.Source, err = l.source(c)
		case c.Name == chain.Window:
			p.Bound, err = l.window(c)
		case c.Name == chain.Limit:
			p.Bound, err = l.limit(c)
		case c.Name == chain.Take:
			p.Take, err = l.take(c)
		case i == len(calls)-1:
			p.Meet, err = l.meet(c)
		default:
			p.Agg, err = l.aggregate(c)
		}
		if err != nil {
			return nil, err
		}
	}
	p.Buffer = l.cell(owner, "buf", env.KindQueue)
	return p, nil
}

func (l *lowerer) chainError(calls []*ast.Call, err error) error {
	ce, ok := chain.AsError(err)
	if !ok {
		return err
	}
	tok := calls[0].Token
	if ce.Index >= 0 && ce.Index < len(calls) {
		tok = calls[ce.Index].Token
	}
	return diag.Wrap(diag.PhaseChain, ce.Code, tok.Pos(), err, "invalid pipeline").WithToken(tok.Text)
}

func (l *lowerer) source(c *ast.Call) (eval.Source, error) {
	if c == nil {
		return eval.PassSource{}, nil
	}
	switch c.Name {
	case chain.Filter:
		if err := l.arity(c, 0, 1); err != nil {
			return nil, err
		}
		if len(c.Args) == 0 {
			return eval.PassSource{}, nil
		}
		pred, err := l.predicate(c.Args[0])
		if err != nil {
			return nil, err
		}
		return &eval.FilterSource{Pred: pred}, nil
	case chain.Collect:
		if err := l.arity(c, 0, 0); err != nil {
			return nil, err
		}
		return eval.PassSource{}, nil
	}

	args, err := l.constArgs(c)
	if err != nil {
		return nil, err
	}
	src, _ := l.opts.Registry.NewSource(c.Name, args)
	return src, nil
}

func (l *lowerer) window(c *ast.Call) (eval.Bound, error) {
	if err := l.arity(c, 1, 1); err != nil {
		return eval.Bound{}, err
	}
	if _, isDur := c.Args[0].(*ast.Duration); isDur {
		d, err := l.duration(c, c.Args[0])
		if err != nil {
			return eval.Bound{}, err
		}
		return eval.Bound{Kind: eval.WindowTime, Duration: d}, nil
	}
	n, err := l.positiveInt(c, c.Args[0])
	if err != nil {
		return eval.Bound{}, err
	}
	return eval.Bound{Kind: eval.WindowCount, N: int(n)}, nil
}

func (l *lowerer) limit(c *ast.Call) (eval.Bound, error) {
	if err := l.arity(c, 1, 1); err != nil {
		return eval.Bound{}, err
	}
	n, err := l.positiveInt(c, c.Args[0])
	if err != nil {
		return eval.Bound{}, err
	}
	return eval.Bound{Kind: eval.LimitHits, N: int(n)}, nil
}

func (l *lowerer) take(c *ast.Call) (int, error) {
	if err := l.arity(c, 1, 1); err != nil {
		return 0, err
	}
	n, err := l.positiveInt(c, c.Args[0])
	return int(n), err
}

func (l *lowerer) aggregate(c *ast.Call) (eval.Aggregate, error) {
	if agg, ok := eval.AggregateFor(c.Name, c.Token.Pos()); ok {
		if err := l.arity(c, 0, 0); err != nil {
			return nil, err
		}
		return agg, nil
	}
	args, err := l.constArgs(c)
	if err != nil {
		return nil, err
	}
	agg, _ := l.opts.Registry.NewAggregate(c.Name, args, c.Token.Pos())
	return agg, nil
}

func (l *lowerer) meet(c *ast.Call) (eval.Meet, error) {
	if c.Name == chain.Meet {
		if err := l.arity(c, 1, 1); err != nil {
			return nil, err
		}
		cond, err := l.condition(c.Args[0])
		if err != nil {
			return nil, err
		}
		return &eval.CondMeet{Cond: cond}, nil
	}
	args, err := l.constArgs(c)
	if err != nil {
		return nil, err
	}
	m, _ := l.opts.Registry.NewMeet(c.Name, args)
	return m, nil
}
