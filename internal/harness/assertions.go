package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/patex/internal/scalar"
)

// AssertionError is returned when an assertion fails.
// It includes the rule's trace to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Rule     string       // Rule the assertion is about
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s", e.Type)
	if e.Rule != "" {
		fmt.Fprintf(&buf, " (rule %s)", e.Rule)
	}
	buf.WriteByte('\n')
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, ev := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] seq=%d %s", ev.Index, ev.Seq, ev.Value)
		for _, res := range ev.Results {
			if e.Rule != "" && res.Rule != e.Rule {
				continue
			}
			fmt.Fprintf(&buf, " %s=%s", res.Rule, verdict(res))
		}
		buf.WriteByte('\n')
	}

	return buf.String()
}

func verdict(res RuleResult) string {
	switch {
	case res.Code != "":
		return "error:" + res.Code
	case res.Error != "":
		return "error"
	case res.Matched && res.Value != nil:
		return "match:" + res.Value.String()
	case res.Matched:
		return "match"
	default:
		return "-"
	}
}

// EvaluateAssertions runs every assertion of s against result and returns
// the failure messages.
func EvaluateAssertions(s *Scenario, result *Result) []string {
	var errs []string
	for _, a := range s.Assertions {
		if err := evaluateAssertion(s, result, a); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func evaluateAssertion(s *Scenario, result *Result, a Assertion) error {
	rule := s.resolveRule(a.Rule)
	switch a.Type {
	case AssertMatchCount:
		return assertMatchCount(result, rule, *a.Count)
	case AssertValueAt:
		want, err := scalar.FromAny(a.Value)
		if err != nil {
			return err
		}
		return assertValueAt(result, rule, *a.Index, want)
	case AssertErrorAt:
		return assertErrorAt(result, rule, *a.Index, a.Code)
	case AssertNoErrors:
		return assertNoErrors(result, rule)
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

// assertMatchCount checks that rule matched exactly count events.
func assertMatchCount(result *Result, rule string, count int) error {
	got := result.MatchIndices(rule)
	if len(got) == count {
		return nil
	}
	return &AssertionError{
		Type:     AssertMatchCount,
		Rule:     rule,
		Expected: fmt.Sprintf("%d matches", count),
		Actual:   fmt.Sprintf("%d matches at %v", len(got), got),
		Trace:    result.Trace,
	}
}

// assertValueAt checks that rule matched event index with value want.
// Int and Float compare numerically, so 9 matches Float(9).
func assertValueAt(result *Result, rule string, index int, want scalar.Value) error {
	res, ok := result.ResultAt(index, rule)
	switch {
	case !ok:
		return &AssertionError{
			Type:     AssertValueAt,
			Rule:     rule,
			Expected: fmt.Sprintf("match with value %s at event %d", want, index),
			Actual:   "no result",
			Trace:    result.Trace,
		}
	case !res.Matched || res.Value == nil:
		return &AssertionError{
			Type:     AssertValueAt,
			Rule:     rule,
			Expected: fmt.Sprintf("match with value %s at event %d", want, index),
			Actual:   verdict(res),
			Trace:    result.Trace,
		}
	case !scalar.Equal(res.Value, want):
		return &AssertionError{
			Type:     AssertValueAt,
			Rule:     rule,
			Expected: fmt.Sprintf("value %s at event %d", want, index),
			Actual:   fmt.Sprintf("value %s", res.Value),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertErrorAt checks that rule failed on event index with the given code.
func assertErrorAt(result *Result, rule string, index int, code string) error {
	res, ok := result.ResultAt(index, rule)
	if ok && res.Code == code {
		return nil
	}
	actual := "no result"
	if ok {
		actual = verdict(res)
	}
	return &AssertionError{
		Type:     AssertErrorAt,
		Rule:     rule,
		Expected: fmt.Sprintf("error %s at event %d", code, index),
		Actual:   actual,
		Trace:    result.Trace,
	}
}

// assertNoErrors checks that rule (every rule when empty) never failed.
func assertNoErrors(result *Result, rule string) error {
	var failed []string
	for _, ev := range result.Trace {
		for _, res := range ev.Results {
			if rule != "" && res.Rule != rule {
				continue
			}
			if res.Error != "" {
				failed = append(failed, fmt.Sprintf("event %d %s: %s", ev.Index, res.Rule, res.Error))
			}
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertNoErrors,
		Rule:     rule,
		Expected: "no evaluation errors",
		Actual:   strings.Join(failed, "; "),
		Trace:    result.Trace,
	}
}
