package harness

import (
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/patex/internal/engine"
	"github.com/roach88/patex/internal/scalar"
)

// TraceSnapshot captures the complete trace for a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string
	Rules        []engine.RuleInfo
	Trace        []TraceEvent
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical
// JSON serialization.
//
// Errors appear as their diag code only, so rewording a message does not
// invalidate golden files.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	rules := make([]any, len(s.Rules))
	for i, r := range s.Rules {
		rules[i] = map[string]any{
			"id":     r.ID,
			"name":   r.Name,
			"source": r.Source,
		}
	}

	trace := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		results := make([]any, len(ev.Results))
		for j, res := range ev.Results {
			m := map[string]any{
				"rule":    res.Rule,
				"matched": res.Matched,
			}
			if res.Value != nil {
				m["value"] = res.Value
			}
			if res.Error != "" {
				m["error"] = res.Code
			}
			results[j] = m
		}

		em := map[string]any{
			"index":   ev.Index,
			"seq":     ev.Seq,
			"time":    ev.Time.UTC().Format(time.RFC3339Nano),
			"value":   ev.Value,
			"kind":    ev.Value.Kind().String(),
			"results": results,
		}
		if ev.Type != scalar.KindNull {
			em["type"] = ev.Type.String()
		}
		trace[i] = em
	}

	return map[string]any{
		"scenario": s.ScenarioName,
		"rules":    rules,
		"trace":    trace,
	}
}

// MarshalTrace renders a result's trace as canonical JSON.
func MarshalTrace(name string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: name,
		Rules:        result.Rules,
		Trace:        result.Trace,
	}
	return scalar.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can check Pass as well.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalTrace(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)

	return nil
}
