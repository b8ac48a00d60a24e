// Package eval contains the executable form of a compiled rule: a tree of
// evaluation nodes that is fed one event at a time and keeps its state in
// an env.Env.
package eval

import (
	"time"

	"github.com/roach88/patex/internal/diag"
	"github.com/roach88/patex/internal/scalar"
)

// Event is one input to a rule.
type Event struct {
	Value scalar.Value
	Type  scalar.Kind // declared type; KindNull means "as given"
	Time  time.Time
	Seq   int64
}

// NormalizeEvent coerces the event value to its declared type, e.g. the
// string "12.5" declared as float becomes Float(12.5). It fails with a
// runtime error when the value cannot be represented in that type.
func NormalizeEvent(ev Event) (Event, error) {
	if ev.Value == nil {
		return ev, diag.New(diag.PhaseRuntime, diag.CodeBadEvent, diag.Pos{},
			"event %d has no value", ev.Seq)
	}
	if ev.Type == scalar.KindNull {
		ev.Type = ev.Value.Kind()
		return ev, nil
	}
	v, err := scalar.Coerce(ev.Value, ev.Type)
	if err != nil {
		return ev, diag.Wrap(diag.PhaseRuntime, diag.CodeBadEvent, diag.Pos{}, err,
			"event %d: value %q is not a valid %s", ev.Seq, ev.Value.String(), ev.Type)
	}
	ev.Value = v
	return ev, nil
}

// Status is the result kind of an evaluation.
type Status int

const (
	NoMatch Status = iota
	Match
	MatchWithValue
)

func (s Status) String() string {
	switch s {
	case Match:
		return "match"
	case MatchWithValue:
		return "match-with-value"
	default:
		return "no-match"
	}
}

// Outcome is what a node reports for one event.
type Outcome struct {
	Status Status
	Value  scalar.Value // set for MatchWithValue
}

// Matched reports whether the outcome is a match of either kind.
func (o Outcome) Matched() bool {
	return o.Status != NoMatch
}

var (
	noMatch = Outcome{Status: NoMatch}
	matched = Outcome{Status: Match}
)

func outcomeOf(ok bool) Outcome {
	if ok {
		return matched
	}
	return noMatch
}

func computeError(pos diag.Pos, code string, format string, args ...any) error {
	return diag.New(diag.PhaseCompute, code, pos, format, args...)
}
