package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"gopkg.in/yaml.v3"

	"github.com/roach88/patex/internal/diag"
	"github.com/roach88/patex/internal/scalar"
)

// DefaultRuleName names the rule of a single-rule scenario.
const DefaultRuleName = "rule"

// DefaultStart is the time of the first unstamped event when a scenario
// does not set start.
var DefaultStart = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// DefaultStep is the spacing of unstamped events when a scenario does not
// set step.
const DefaultStep = time.Second

// Scenario defines a rule test scenario.
// Scenarios feed a fixed event sequence to one or more rules and assert on
// which events matched.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Rule is the source of a single rule, registered as "rule".
	// Exactly one of Rule and Rules must be set.
	Rule string `yaml:"rule,omitempty"`

	// Rules maps rule names to sources. Rules are registered in name order.
	Rules map[string]string `yaml:"rules,omitempty"`

	// Compile options applied to every rule.
	Strict    bool   `yaml:"strict,omitempty"`
	MaxBuffer int    `yaml:"max_buffer,omitempty"`
	SlopeUnit string `yaml:"slope_unit,omitempty"`

	// ResetOnMatch resets a rule after each of its matches, so several
	// complete sequences can run back to back.
	ResetOnMatch bool `yaml:"reset_on_match,omitempty"`

	// Start and Step set the time base: events without at/time are Step
	// apart, the first at Start. Start is parsed with dateparse.
	Start string `yaml:"start,omitempty"`
	Step  string `yaml:"step,omitempty"`

	// Events is the input sequence.
	Events []EventStep `yaml:"events"`

	// Expect lists the expected match result per event (single rule only).
	Expect []bool `yaml:"expect,omitempty"`

	// Matches lists, per rule, the indices of the events expected to match.
	Matches MatchSpec `yaml:"matches,omitempty"`

	// CompileError makes the scenario expect compilation to fail.
	CompileError *CompileErrorClause `yaml:"compile_error,omitempty"`

	// Assertions validate the trace.
	// Supported types: match_count, value_at, error_at, no_errors
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// EventStep is one input event.
type EventStep struct {
	// Value is the event value; YAML scalars map to int, float, string,
	// bool and null.
	Value any `yaml:"value"`

	// Type is the declared type ("int", "float", ...). Empty means the
	// value is taken as given.
	Type string `yaml:"type,omitempty"`

	// At is an offset from the scenario start ("90s", "2m").
	At string `yaml:"at,omitempty"`

	// Time is an absolute time in any format dateparse understands.
	Time string `yaml:"time,omitempty"`
}

// MatchSpec maps rule names to expected match indices.
//
// A plain list is accepted for single-rule scenarios:
//
//	matches: [2, 5]
type MatchSpec map[string][]int

// UnmarshalYAML accepts either a sequence or a mapping.
func (m *MatchSpec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var indices []int
		if err := node.Decode(&indices); err != nil {
			return err
		}
		*m = MatchSpec{"": indices}
		return nil
	case yaml.MappingNode:
		var byRule map[string][]int
		if err := node.Decode(&byRule); err != nil {
			return err
		}
		*m = MatchSpec(byRule)
		return nil
	default:
		return fmt.Errorf("line %d: matches must be a list or a mapping", node.Line)
	}
}

// CompileErrorClause describes the expected compilation failure.
type CompileErrorClause struct {
	// Rule is the failing rule (default: the only rule).
	Rule string `yaml:"rule,omitempty"`

	// Phase is the expected diag phase ("syntax", "chain", ...).
	Phase string `yaml:"phase,omitempty"`

	// Code is the expected diag code ("C303").
	Code string `yaml:"code"`
}

// Assertion validates the trace.
type Assertion struct {
	// Type specifies the assertion type:
	// - "match_count": Rule matched exactly Count times
	// - "value_at": Rule matched event Index with value Value
	// - "error_at": Rule failed on event Index with diag code Code
	// - "no_errors": Rule (or every rule) evaluated without errors
	Type string `yaml:"type"`

	// Rule names the rule. May be omitted in single-rule scenarios.
	Rule string `yaml:"rule,omitempty"`

	// Index is the event index (value_at, error_at).
	Index *int `yaml:"index,omitempty"`

	// Count is the expected number of matches (match_count).
	Count *int `yaml:"count,omitempty"`

	// Code is the expected diag code (error_at).
	Code string `yaml:"code,omitempty"`

	// Value is the expected match value (value_at).
	Value any `yaml:"value,omitempty"`
}

// Assertion type constants.
const (
	AssertMatchCount = "match_count"
	AssertValueAt    = "value_at"
	AssertErrorAt    = "error_at"
	AssertNoErrors   = "no_errors"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "event:" vs "events:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// LoadScenarios loads every .yaml and .yml file in dir, in file name order.
func LoadScenarios(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario directory: %w", err)
	}

	var scenarios []*Scenario
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		s, err := LoadScenario(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", entry.Name(), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// RuleNames returns the scenario's rule names in registration order.
func (s *Scenario) RuleNames() []string {
	if s.Rules == nil {
		return []string{DefaultRuleName}
	}
	names := make([]string, 0, len(s.Rules))
	for name := range s.Rules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RuleSource returns the source of the named rule.
func (s *Scenario) RuleSource(name string) string {
	if s.Rules == nil {
		return s.Rule
	}
	return s.Rules[name]
}

// resolveRule maps an omitted rule name to the only rule.
func (s *Scenario) resolveRule(name string) string {
	if name == "" && s.Rules == nil {
		return DefaultRuleName
	}
	return name
}

func (s *Scenario) hasRule(name string) bool {
	if s.Rules == nil {
		return name == DefaultRuleName
	}
	_, ok := s.Rules[name]
	return ok
}

// timeBase returns the parsed start and step.
func (s *Scenario) timeBase() (time.Time, time.Duration, error) {
	start, step := DefaultStart, DefaultStep
	if s.Start != "" {
		t, err := dateparse.ParseIn(s.Start, time.UTC)
		if err != nil {
			return time.Time{}, 0, fmt.Errorf("start: %w", err)
		}
		start = t.UTC()
	}
	if s.Step != "" {
		d, err := time.ParseDuration(s.Step)
		if err != nil {
			return time.Time{}, 0, fmt.Errorf("step: %w", err)
		}
		if d < 0 {
			return time.Time{}, 0, fmt.Errorf("step must not be negative")
		}
		step = d
	}
	return start, step, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch {
	case s.Rule != "" && s.Rules != nil:
		return fmt.Errorf("rule and rules are mutually exclusive")
	case s.Rule == "" && len(s.Rules) == 0:
		return fmt.Errorf("rule or rules is required")
	}
	for name, src := range s.Rules {
		if name == "" {
			return fmt.Errorf("rules: empty rule name")
		}
		if strings.TrimSpace(src) == "" {
			return fmt.Errorf("rules.%s: source is required", name)
		}
	}

	if s.SlopeUnit != "" {
		if d, err := time.ParseDuration(s.SlopeUnit); err != nil || d <= 0 {
			return fmt.Errorf("slope_unit %q is not a positive duration", s.SlopeUnit)
		}
	}
	if s.MaxBuffer < 0 {
		return fmt.Errorf("max_buffer must not be negative")
	}
	if _, _, err := s.timeBase(); err != nil {
		return err
	}

	if s.CompileError != nil {
		return validateCompileError(s)
	}

	if len(s.Events) == 0 {
		return fmt.Errorf("events list is required and must be non-empty")
	}
	for i, ev := range s.Events {
		if err := validateEvent(ev); err != nil {
			return fmt.Errorf("events[%d]: %w", i, err)
		}
	}

	if s.Expect != nil {
		if s.Rules != nil {
			return fmt.Errorf("expect is only valid with a single rule; use matches")
		}
		if len(s.Expect) != len(s.Events) {
			return fmt.Errorf("expect has %d entries for %d events", len(s.Expect), len(s.Events))
		}
	}

	if err := validateMatches(s); err != nil {
		return err
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(s, a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}

	return nil
}

func validateCompileError(s *Scenario) error {
	ce := s.CompileError
	if ce.Code == "" {
		return fmt.Errorf("compile_error: code is required")
	}
	if ce.Rule == "" && s.Rules != nil {
		return fmt.Errorf("compile_error: rule is required with several rules")
	}
	if rule := s.resolveRule(ce.Rule); !s.hasRule(rule) {
		return fmt.Errorf("compile_error: unknown rule %q", ce.Rule)
	}
	if ce.Phase != "" && !validPhase(diag.Phase(ce.Phase)) {
		return fmt.Errorf("compile_error: unknown phase %q", ce.Phase)
	}
	if len(s.Events) > 0 || s.Expect != nil || s.Matches != nil || len(s.Assertions) > 0 {
		return fmt.Errorf("compile_error scenarios take no events or expectations")
	}
	return nil
}

func validPhase(p diag.Phase) bool {
	switch p {
	case diag.PhaseLexical, diag.PhaseSyntax, diag.PhaseChain, diag.PhaseTranslation, diag.PhaseCompute:
		return true
	}
	return false
}

func validateEvent(ev EventStep) error {
	if _, err := scalar.FromAny(ev.Value); err != nil {
		return fmt.Errorf("value: %w", err)
	}
	if _, err := scalar.ParseKind(ev.Type); err != nil {
		return err
	}
	if ev.At != "" && ev.Time != "" {
		return fmt.Errorf("at and time are mutually exclusive")
	}
	if ev.At != "" {
		if _, err := time.ParseDuration(ev.At); err != nil {
			return fmt.Errorf("at: %w", err)
		}
	}
	if ev.Time != "" {
		if _, err := dateparse.ParseIn(ev.Time, time.UTC); err != nil {
			return fmt.Errorf("time: %w", err)
		}
	}
	return nil
}

func validateMatches(s *Scenario) error {
	if indices, ok := s.Matches[""]; ok {
		if s.Rules != nil {
			return fmt.Errorf("matches: a plain list is only valid with a single rule")
		}
		delete(s.Matches, "")
		s.Matches[DefaultRuleName] = indices
	}
	for rule, indices := range s.Matches {
		if !s.hasRule(rule) {
			return fmt.Errorf("matches: unknown rule %q", rule)
		}
		for _, idx := range indices {
			if idx < 0 || idx >= len(s.Events) {
				return fmt.Errorf("matches.%s: index %d out of range", rule, idx)
			}
		}
	}
	return nil
}

// validateAssertion checks that an assertion has required fields for its type.
func validateAssertion(s *Scenario, a Assertion) error {
	rule := s.resolveRule(a.Rule)
	if a.Type != AssertNoErrors || a.Rule != "" {
		if rule == "" {
			return fmt.Errorf("%s requires 'rule' field", a.Type)
		}
		if !s.hasRule(rule) {
			return fmt.Errorf("unknown rule %q", a.Rule)
		}
	}

	switch a.Type {
	case AssertMatchCount:
		if a.Count == nil {
			return fmt.Errorf("match_count requires 'count' field")
		}
		if *a.Count < 0 {
			return fmt.Errorf("match_count 'count' must not be negative")
		}
	case AssertValueAt:
		if err := validateIndex(s, a); err != nil {
			return err
		}
		if _, err := scalar.FromAny(a.Value); err != nil {
			return fmt.Errorf("value_at 'value': %w", err)
		}
	case AssertErrorAt:
		if err := validateIndex(s, a); err != nil {
			return err
		}
		if a.Code == "" {
			return fmt.Errorf("error_at requires 'code' field")
		}
	case AssertNoErrors:
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

func validateIndex(s *Scenario, a Assertion) error {
	if a.Index == nil {
		return fmt.Errorf("%s requires 'index' field", a.Type)
	}
	if *a.Index < 0 || *a.Index >= len(s.Events) {
		return fmt.Errorf("%s 'index' %d out of range", a.Type, *a.Index)
	}
	return nil
}
