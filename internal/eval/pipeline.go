package eval

import (
	"errors"
	"time"

	"github.com/roach88/patex/internal/env"
	"github.com/roach88/patex/internal/scalar"
)

// Source is the first stage of a pipeline. It decides whether the event is a
// hit; every event is buffered either way.
type Source interface {
	Accept(ev Event, e *env.Env) (bool, error)
	Cells() []env.Key
}

// FilterSource is filter(pred).
type FilterSource struct {
	Pred Node
}

func (s *FilterSource) Accept(ev Event, e *env.Env) (bool, error) {
	out, err := s.Pred.Eval(ev, e)
	return out.Matched(), err
}

func (s *FilterSource) Cells() []env.Key { return s.Pred.Cells() }

// PassSource is filter() or collect(): every event is a hit.
type PassSource struct{}

func (PassSource) Accept(Event, *env.Env) (bool, error) { return true, nil }
func (PassSource) Cells() []env.Key                     { return nil }

// BoundKind selects how a pipeline buffer is trimmed.
type BoundKind int

const (
	Unbounded   BoundKind = iota
	WindowTime            // window(d): drop entries older than d
	WindowCount           // window(n): keep the last n entries
	LimitHits             // limit(n): keep the last n hits
)

// Bound trims the buffer after each event.
type Bound struct {
	Kind     BoundKind
	Duration time.Duration
	N        int
}

func (b Bound) apply(q []env.Entry, now time.Time) []env.Entry {
	switch b.Kind {
	case WindowTime:
		i := 0
		for i < len(q) && now.Sub(q[i].Time) > b.Duration {
			i++
		}
		return q[i:]
	case WindowCount:
		if len(q) > b.N {
			return q[len(q)-b.N:]
		}
	case LimitHits:
		hits := 0
		for i := len(q) - 1; i >= 0; i-- {
			if !q[i].Hit {
				continue
			}
			hits++
			if hits == b.N {
				return q[i:]
			}
		}
	}
	return q
}

// Meet is the terminal stage of a pipeline.
type Meet interface {
	Meets(v scalar.Value, ev Event, e *env.Env) (bool, error)
}

// CondMeet is meet(cond).
type CondMeet struct {
	Cond Condition
}

func (m *CondMeet) Meets(v scalar.Value, ev Event, e *env.Env) (bool, error) {
	return m.Cond.Test(v, ev, e)
}

// Pipeline is a validated chain: a source, an optional bound, an optional
// take batch, an aggregate and a meet. It owns one buffer cell.
type Pipeline struct {
	Source Source
	Bound  Bound
	Take   int // 0 when there is no take stage
	Agg    Aggregate
	Meet   Meet
	Buffer env.Key
}

func (p *Pipeline) Eval(ev Event, e *env.Env) (Outcome, error) {
	hit, err := p.Source.Accept(ev, e)
	if err != nil {
		return noMatch, err
	}

	e.Push(p.Buffer, env.Entry{Value: ev.Value, Time: ev.Time, Hit: hit})
	q := e.Queue(p.Buffer)
	if trimmed := p.Bound.apply(q, ev.Time); len(trimmed) != len(q) {
		q = trimmed
		e.SetQueue(p.Buffer, q)
	}

	if p.Take > 0 {
		if countHits(q) < p.Take {
			return noMatch, nil
		}
		// Tumbling batch: evaluate once, then start over.
		e.SetQueue(p.Buffer, nil)
	}

	v, err := p.Agg.Reduce(q)
	if err != nil {
		var nr errNotReady
		if errors.As(err, &nr) {
			return noMatch, nil
		}
		return noMatch, err
	}

	ok, err := p.Meet.Meets(v, ev, e)
	if err != nil || !ok {
		return noMatch, err
	}
	e.Clear(p.Cells()...)
	return Outcome{Status: MatchWithValue, Value: v}, nil
}

func (p *Pipeline) Cells() []env.Key {
	return append([]env.Key{p.Buffer}, p.Source.Cells()...)
}

func countHits(q []env.Entry) int {
	n := 0
	for _, en := range q {
		if en.Hit {
			n++
		}
	}
	return n
}
