package store

import (
	"time"

	"github.com/roach88/patex/internal/eval"
	"github.com/roach88/patex/internal/scalar"
)

// Event is a logged event.
type Event struct {
	Seq      int64
	Time     time.Time
	Value    scalar.Value
	Declared scalar.Kind // declared type; KindNull for as-given
}

// EventFrom converts an engine event to its log record.
func EventFrom(ev eval.Event) Event {
	return Event{Seq: ev.Seq, Time: ev.Time, Value: ev.Value, Declared: ev.Type}
}

// EvalEvent converts the record back to the event the engine saw.
func (e Event) EvalEvent() eval.Event {
	return eval.Event{Seq: e.Seq, Time: e.Time, Value: e.Value, Type: e.Declared}
}

// Evaluation is the result of one rule evaluating one event.
type Evaluation struct {
	Seq      int64
	RuleID   string
	RuleName string
	Matched  bool
	Value    scalar.Value // pipeline result on a match, nil otherwise
	Error    string       // empty unless the evaluation failed
}

// RuleStat summarizes the evaluations logged for one rule.
type RuleStat struct {
	RuleID       string
	RuleName     string
	Evaluations  int64
	Matches      int64
	Errors       int64
	LastMatchSeq int64 // 0 if the rule never matched
}
