package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/araddon/dateparse"

	"github.com/roach88/patex/internal/diag"
	"github.com/roach88/patex/internal/engine"
	"github.com/roach88/patex/internal/eval"
	"github.com/roach88/patex/internal/scalar"
	"github.com/roach88/patex/internal/store"
	"github.com/roach88/patex/internal/testutil"
)

// Harness holds the per-run state of one scenario.
type Harness struct {
	scenario *Scenario
	store    *store.Store
	engine   *engine.Engine
	clock    *testutil.StepClock
	logger   *slog.Logger
	start    time.Time
}

// Run executes a scenario with deterministic ids and times.
//
// Execution flow:
// 1. Compile every rule (or check the expected compile error)
// 2. Register the rules on an engine logging to a fresh in-memory store
// 3. Feed the events in order, building the trace
// 4. Check expect, matches and assertions
// 5. Replay the store against freshly compiled rules and require the
// same matches
//
// The returned error is an execution failure; failed expectations are
// reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	result := NewResult()

	if scenario.CompileError != nil {
		checkCompileError(scenario, result)
		return result, nil
	}

	rules, err := compileRules(scenario)
	if err != nil {
		return nil, err
	}

	start, step, err := scenario.timeBase()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &Harness{
		scenario: scenario,
		store:    st,
		clock:    testutil.NewStepClock(start, step),
		logger:   logger,
		start:    start,
	}
	h.engine = engine.New(
		engine.WithRecorder(st),
		engine.WithIDGenerator(testutil.NewSequentialIDs("rule")),
		engine.WithLogger(logger),
	)
	for _, nr := range rules {
		h.engine.Register(nr.Name, nr.Rule)
	}
	result.Rules = h.engine.Rules()

	if err := h.executeEvents(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to execute events: %w", err)
	}

	checkExpect(scenario, result)
	checkMatches(scenario, result)
	for _, errMsg := range EvaluateAssertions(scenario, result) {
		result.AddError(errMsg)
	}

	if !scenario.ResetOnMatch {
		if err := h.verifyReplay(ctx); err != nil {
			result.AddError(err.Error())
		}
	}

	return result, nil
}

// compileRules compiles every rule of s in registration order.
func compileRules(s *Scenario) ([]engine.NamedRule, error) {
	opts := compileOptions(s)
	rules := make([]engine.NamedRule, 0, len(s.RuleNames()))
	for _, name := range s.RuleNames() {
		src := s.RuleSource(name)
		cr, err := engine.Compile(src, opts...)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %s", name, diag.Render(src, err))
		}
		rules = append(rules, engine.NamedRule{Name: name, Rule: cr})
	}
	return rules, nil
}

func compileOptions(s *Scenario) []engine.Option {
	var opts []engine.Option
	if s.Strict {
		opts = append(opts, engine.WithStrictSequences())
	}
	if s.MaxBuffer > 0 {
		opts = append(opts, engine.WithMaxBuffer(s.MaxBuffer))
	}
	if s.SlopeUnit != "" {
		// Validated on load.
		d, _ := time.ParseDuration(s.SlopeUnit)
		opts = append(opts, engine.WithDefaultSlopeUnit(d))
	}
	return opts
}

// executeEvents feeds every event to the engine and records the trace.
func (h *Harness) executeEvents(ctx context.Context, result *Result) error {
	for i, step := range h.scenario.Events {
		ev, err := h.buildEvent(step)
		if err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}

		results, err := h.engine.Process(ctx, ev)
		if err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}

		te := TraceEvent{
			Index:   i,
			Seq:     h.engine.Clock().Current(),
			Time:    ev.Time,
			Value:   ev.Value,
			Type:    ev.Type,
			Results: make([]RuleResult, 0, len(results)),
		}
		for _, res := range results {
			rr := RuleResult{Rule: res.RuleName, Matched: res.Matched, Value: res.Value}
			if res.Err != nil {
				rr.Error = res.Err.Error()
				if de, ok := diag.As(res.Err); ok {
					rr.Code = de.Code
				}
			}
			te.Results = append(te.Results, rr)

			if res.Matched && h.scenario.ResetOnMatch {
				if err := h.engine.Reset(res.RuleID); err != nil {
					return err
				}
			}
		}
		result.Trace = append(result.Trace, te)

		h.logger.Info("event processed", "index", i, "seq", te.Seq, "value", ev.Value.String())
	}
	return nil
}

// buildEvent converts a scenario step to an engine event. Steps without a
// time take the next reading of the step clock; steps with one move the
// clock so the following unstamped step comes one step later.
func (h *Harness) buildEvent(step EventStep) (eval.Event, error) {
	v, err := scalar.FromAny(step.Value)
	if err != nil {
		return eval.Event{}, err
	}
	kind, err := scalar.ParseKind(step.Type)
	if err != nil {
		return eval.Event{}, err
	}

	var at time.Time
	switch {
	case step.Time != "":
		t, err := dateparse.ParseIn(step.Time, time.UTC)
		if err != nil {
			return eval.Event{}, fmt.Errorf("time: %w", err)
		}
		at = t.UTC()
	case step.At != "":
		d, err := time.ParseDuration(step.At)
		if err != nil {
			return eval.Event{}, fmt.Errorf("at: %w", err)
		}
		at = h.start.Add(d)
	}

	if at.IsZero() {
		at = h.clock.Now()
	} else {
		h.clock.Set(at.Add(h.clock.Step()))
	}

	return eval.Event{Value: v, Type: kind, Time: at}, nil
}

// verifyReplay replays the recorded log against freshly compiled rules.
func (h *Harness) verifyReplay(ctx context.Context) error {
	rules, err := compileRules(h.scenario)
	if err != nil {
		return err
	}
	err = engine.VerifyReplay(ctx, h.store, rules,
		engine.WithLogger(h.logger),
		engine.WithIDGenerator(testutil.NewSequentialIDs("replay")),
	)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	return nil
}

func checkCompileError(s *Scenario, result *Result) {
	ce := s.CompileError
	name := s.resolveRule(ce.Rule)
	_, err := engine.Compile(s.RuleSource(name), compileOptions(s)...)
	if err == nil {
		result.AddError(fmt.Sprintf("rule %q: expected compile error %s, compiled cleanly", name, ce.Code))
		return
	}

	de, ok := diag.As(err)
	if !ok {
		result.AddError(fmt.Sprintf("rule %q: expected compile error %s, got %v", name, ce.Code, err))
		return
	}
	if de.Code != ce.Code {
		result.AddError(fmt.Sprintf("rule %q: expected compile error %s, got %s (%s)", name, ce.Code, de.Code, de.Message))
	}
	if ce.Phase != "" && string(de.Phase) != ce.Phase {
		result.AddError(fmt.Sprintf("rule %q: expected %s error, got %s error", name, ce.Phase, de.Phase))
	}
}

func checkExpect(s *Scenario, result *Result) {
	for i, want := range s.Expect {
		res, ok := result.ResultAt(i, DefaultRuleName)
		if !ok {
			result.AddError(fmt.Sprintf("event %d: no result", i))
			continue
		}
		if res.Matched != want {
			msg := fmt.Sprintf("event %d (%s): expected matched=%t, got %t", i, result.Trace[i].Value, want, res.Matched)
			if res.Error != "" {
				msg += ": " + res.Error
			}
			result.AddError(msg)
		}
	}
}

func checkMatches(s *Scenario, result *Result) {
	for _, rule := range s.RuleNames() {
		want, ok := s.Matches[rule]
		if !ok {
			continue
		}
		if want == nil {
			want = []int{}
		}
		got := result.MatchIndices(rule)
		if !slices.Equal(want, got) {
			result.AddError(fmt.Sprintf("rule %q: expected matches at %v, got %v", rule, want, got))
		}
	}
}
