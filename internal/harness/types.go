package harness

import (
	"time"

	"github.com/roach88/patex/internal/engine"
	"github.com/roach88/patex/internal/scalar"
)

// RuleResult is one rule's verdict on one trace event.
type RuleResult struct {
	Rule    string       `json:"rule"`
	Matched bool         `json:"matched"`
	Value   scalar.Value `json:"value,omitempty"`
	Code    string       `json:"code,omitempty"`  // diag code of a failed evaluation
	Error   string       `json:"error,omitempty"` // full error text
}

// TraceEvent is one processed event with every rule's result.
type TraceEvent struct {
	Index   int          `json:"index"`
	Seq     int64        `json:"seq"`
	Time    time.Time    `json:"time"`
	Value   scalar.Value `json:"value"`
	Type    scalar.Kind  `json:"type"` // declared type; KindNull when none
	Results []RuleResult `json:"results"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	Pass bool `json:"pass"`

	// Rules lists the registered rules in evaluation order.
	Rules []engine.RuleInfo `json:"rules"`

	// Trace contains every event in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Rules:  []engine.RuleInfo{},
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// MatchIndices returns the indices of the events the named rule matched.
// Never nil.
func (r *Result) MatchIndices(rule string) []int {
	out := []int{}
	for _, ev := range r.Trace {
		if res, ok := ev.resultFor(rule); ok && res.Matched {
			out = append(out, ev.Index)
		}
	}
	return out
}

// ResultAt returns the named rule's result for event index.
func (r *Result) ResultAt(index int, rule string) (RuleResult, bool) {
	if index < 0 || index >= len(r.Trace) {
		return RuleResult{}, false
	}
	return r.Trace[index].resultFor(rule)
}

func (ev TraceEvent) resultFor(rule string) (RuleResult, bool) {
	for _, res := range ev.Results {
		if res.Rule == rule {
			return res, true
		}
	}
	return RuleResult{}, false
}
