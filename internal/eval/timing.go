package eval

import (
	"time"

	"github.com/roach88/patex/internal/diag"
	"github.com/roach88/patex/internal/env"
	"github.com/roach88/patex/internal/scalar"
)

// Keep matches while Pred has held continuously for at least Duration, or
// for at least Events consecutive events when Events is non-zero. A miss
// restarts the run.
type Keep struct {
	Pred     Node
	Duration time.Duration
	Events   int64
	Since    env.Key // time the current run started
	Run      env.Key // events in the current run
}

func (k *Keep) Eval(ev Event, e *env.Env) (Outcome, error) {
	out, err := k.Pred.Eval(ev, e)
	if err != nil {
		return noMatch, err
	}
	if !out.Matched() {
		e.ClearTime(k.Since)
		e.SetCounter(k.Run, 0)
		return noMatch, nil
	}

	since, ok := e.Time(k.Since)
	if !ok {
		since = ev.Time
		e.SetTime(k.Since, since)
	}
	run := e.Counter(k.Run) + 1
	e.SetCounter(k.Run, run)

	if k.Events > 0 {
		return outcomeOf(run >= k.Events), nil
	}
	return outcomeOf(ev.Time.Sub(since) >= k.Duration), nil
}

func (k *Keep) Cells() []env.Key {
	return append([]env.Key{k.Since, k.Run}, k.Pred.Cells()...)
}

// Delay matches when Pred holds and at least Duration has passed since Pred
// first matched. Misses do not restart the clock; a match does.
type Delay struct {
	Pred     Node
	Duration time.Duration
	Start    env.Key
}

func (d *Delay) Eval(ev Event, e *env.Env) (Outcome, error) {
	out, err := d.Pred.Eval(ev, e)
	if err != nil {
		return noMatch, err
	}
	if !out.Matched() {
		return noMatch, nil
	}

	start, ok := e.Time(d.Start)
	if !ok {
		e.SetTime(d.Start, ev.Time)
		start = ev.Time
	}
	if ev.Time.Sub(start) < d.Duration {
		return noMatch, nil
	}
	e.ClearTime(d.Start)
	return matched, nil
}

func (d *Delay) Cells() []env.Key {
	return append([]env.Key{d.Start}, d.Pred.Cells()...)
}

// Slope tests the rate of change between consecutive events, in value per
// Unit of time. The first event and events with no elapsed time never
// match.
type Slope struct {
	Cond     Condition
	Unit     time.Duration
	Last     env.Key
	LastTime env.Key
	Pos      diag.Pos
}

func (s *Slope) Eval(ev Event, e *env.Env) (Outcome, error) {
	cur, ok := scalar.ToFloat(ev.Value)
	if !ok {
		return noMatch, computeError(s.Pos, diag.CodeNonNumericBuffer,
			"slope needs numeric values, got %s", ev.Value.Kind())
	}

	last := e.Scalar(s.Last)
	lastTime, seen := e.Time(s.LastTime)
	e.SetScalar(s.Last, scalar.Float(cur))
	e.SetTime(s.LastTime, ev.Time)
	if last == nil || !seen {
		return noMatch, nil
	}

	elapsed := ev.Time.Sub(lastTime)
	if elapsed <= 0 {
		return noMatch, nil
	}
	prev, _ := scalar.ToFloat(last)
	slope := (cur - prev) / (float64(elapsed) / float64(s.Unit))

	hit, err := s.Cond.Test(scalar.Float(slope), ev, e)
	if err != nil {
		return noMatch, err
	}
	return outcomeOf(hit), nil
}

func (s *Slope) Cells() []env.Key {
	return []env.Key{s.Last, s.LastTime}
}
