package eval

import (
	"github.com/roach88/patex/internal/env"
)

// Arrow matches when its stages are satisfied by successive events.
//
// The stage index only moves forward. When the current stage does not match,
// stage 0 is re-checked against the same event so a sequence can restart
// without losing that event: the index becomes 1 if stage 0 matches and is
// otherwise left alone. Strict arrows drop back to 0 before the re-check.
type Arrow struct {
	Stages []Node
	Index  env.Key
	Strict bool
}

func (a *Arrow) Eval(ev Event, e *env.Env) (Outcome, error) {
	i := int(e.Counter(a.Index))
	out, err := a.Stages[i].Eval(ev, e)
	if err != nil {
		return noMatch, err
	}

	if out.Matched() {
		if i == len(a.Stages)-1 {
			e.Clear(a.Cells()...)
			return matched, nil
		}
		e.SetCounter(a.Index, int64(i+1))
		return noMatch, nil
	}

	if i == 0 {
		return noMatch, nil
	}
	if a.Strict {
		e.SetCounter(a.Index, 0)
	}
	first, err := a.Stages[0].Eval(ev, e)
	if err != nil {
		return noMatch, err
	}
	if first.Matched() {
		e.SetCounter(a.Index, 1)
	}
	return noMatch, nil
}

func (a *Arrow) Cells() []env.Key {
	return append([]env.Key{a.Index}, concatCells(a.Stages...)...)
}

// Count matches when Pred has matched N times. Strict counts need N
// consecutive matches; any miss resets them.
type Count struct {
	Pred    Node
	N       int64
	Strict  bool
	Counter env.Key
}

func (c *Count) Eval(ev Event, e *env.Env) (Outcome, error) {
	out, err := c.Pred.Eval(ev, e)
	if err != nil {
		return noMatch, err
	}

	if !out.Matched() {
		if c.Strict {
			e.SetCounter(c.Counter, 0)
		}
		return noMatch, nil
	}

	n := e.Counter(c.Counter) + 1
	if n >= c.N {
		e.Clear(c.Cells()...)
		return matched, nil
	}
	e.SetCounter(c.Counter, n)
	return noMatch, nil
}

func (c *Count) Cells() []env.Key {
	return append([]env.Key{c.Counter}, c.Pred.Cells()...)
}
