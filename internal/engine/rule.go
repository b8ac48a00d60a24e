package engine

import (
	"sync"
	"time"

	"github.com/roach88/patex/internal/env"
	"github.com/roach88/patex/internal/eval"
	"github.com/roach88/patex/internal/parser"
	"github.com/roach88/patex/internal/translator"
)

// Option configures compilation.
type Option func(*compileOptions)

type compileOptions struct {
	registry  *eval.Registry
	strict    bool
	maxBuffer int
	slopeUnit time.Duration
}

// WithRegistry makes custom filter, aggregate and meet functions available
// as pipeline stages.
func WithRegistry(r *eval.Registry) Option {
	return func(o *compileOptions) {
		o.registry = r
	}
}

// WithStrictSequences restarts arrow sequences at their first stage on any
// non-matching event.
func WithStrictSequences() Option {
	return func(o *compileOptions) {
		o.strict = true
	}
}

// WithMaxBuffer caps unbounded pipeline buffers at n entries.
// The oldest entries are evicted first.
func WithMaxBuffer(n int) Option {
	return func(o *compileOptions) {
		o.maxBuffer = n
	}
}

// WithDefaultSlopeUnit sets the time unit slope() uses when none is given.
func WithDefaultSlopeUnit(d time.Duration) Option {
	return func(o *compileOptions) {
		o.slopeUnit = d
	}
}

// CompiledRule is an executable rule together with its state.
//
// A CompiledRule must not be evaluated from more than one goroutine at a
// time. See LockedRule.
type CompiledRule struct {
	source string
	node   eval.Node
	env    *env.Env
}

// Compile lexes, parses, validates and lowers src.
//
// The lexer NFC normalizes the source; positions in returned errors refer
// to the normalized text, which Source() returns.
func Compile(src string, opts ...Option) (*CompiledRule, error) {
	var o compileOptions
	for _, opt := range opts {
		opt(&o)
	}

	prog, err := parser.Parse(src)
	if err != nil {
		return nil, err
	}

	node, e, err := translator.Lower(prog, translator.Options{
		Registry:  o.registry,
		Strict:    o.strict,
		MaxBuffer: o.maxBuffer,
		SlopeUnit: o.slopeUnit,
	})
	if err != nil {
		return nil, err
	}

	return &CompiledRule{source: prog.Source, node: node, env: e}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(src string, opts ...Option) *CompiledRule {
	r, err := Compile(src, opts...)
	if err != nil {
		panic(err)
	}
	return r
}

// Source returns the normalized source text.
func (r *CompiledRule) Source() string {
	return r.source
}

// Evaluate feeds one event to the rule and reports whether it matched.
//
// A malformed event or a compute fault returns an error and leaves the
// rule's state exactly as it was before the call.
func (r *CompiledRule) Evaluate(ev eval.Event) (bool, error) {
	out, err := r.EvaluateOutcome(ev)
	if err != nil {
		return false, err
	}
	return out.Matched(), nil
}

// EvaluateOutcome is Evaluate returning the full outcome, including the
// aggregate value of a matching pipeline.
func (r *CompiledRule) EvaluateOutcome(ev eval.Event) (eval.Outcome, error) {
	ev, err := eval.NormalizeEvent(ev)
	if err != nil {
		return eval.Outcome{}, err
	}

	r.env.Begin()
	out, err := r.node.Eval(ev, r.env)
	if err != nil {
		r.env.Rollback()
		return eval.Outcome{}, err
	}
	r.env.Commit()
	return out, nil
}

// EvaluateMany feeds events in order and returns the result for the last
// one. After every match the rule is reset, so a scenario can contain
// several complete matching sequences back to back.
func (r *CompiledRule) EvaluateMany(events []eval.Event) (bool, error) {
	var last bool
	for _, ev := range events {
		ok, err := r.Evaluate(ev)
		if err != nil {
			return false, err
		}
		if ok {
			r.Reset()
		}
		last = ok
	}
	return last, nil
}

// Reset restores every cell to its value right after compilation.
// Buffers come back empty.
func (r *CompiledRule) Reset() {
	r.env.Reset()
}

// Cells returns a snapshot of the rule's state cells in declaration order.
func (r *CompiledRule) Cells() []env.CellState {
	return r.env.Snapshot()
}

// LockedRule serializes access to a CompiledRule shared across goroutines.
type LockedRule struct {
	mu   sync.Mutex
	rule *CompiledRule
}

// NewLockedRule wraps r.
func NewLockedRule(r *CompiledRule) *LockedRule {
	return &LockedRule{rule: r}
}

// Evaluate calls CompiledRule.Evaluate under the lock.
func (l *LockedRule) Evaluate(ev eval.Event) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rule.Evaluate(ev)
}

// EvaluateMany calls CompiledRule.EvaluateMany under the lock.
func (l *LockedRule) EvaluateMany(events []eval.Event) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rule.EvaluateMany(events)
}

// Reset calls CompiledRule.Reset under the lock.
func (l *LockedRule) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rule.Reset()
}

// Cells calls CompiledRule.Cells under the lock.
func (l *LockedRule) Cells() []env.CellState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rule.Cells()
}
