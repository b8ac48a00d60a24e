package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/patex/internal/scalar"
	"github.com/roach88/patex/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database    string
	Rule        string // optional - filter to one rule name
	From        int64  // first seq to show
	MatchesOnly bool
}

// TraceEvaluation is one rule's logged verdict on an event.
type TraceEvaluation struct {
	RuleID   string `json:"rule_id"`
	RuleName string `json:"rule"`
	Matched  bool   `json:"matched"`
	Value    any    `json:"value,omitempty"`
	Error    string `json:"error,omitempty"`
}

// TraceEvent represents a single event in the trace timeline.
type TraceEvent struct {
	Seq         int64             `json:"seq"`
	Time        string            `json:"time"`
	Value       any               `json:"value"`
	Kind        string            `json:"kind"`
	Declared    string            `json:"declared,omitempty"`
	Evaluations []TraceEvaluation `json:"evaluations"`

	value scalar.Value
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Timeline []TraceEvent     `json:"timeline"`
	Rules    []store.RuleStat `json:"rules"`
	Stats    TraceStats       `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Events      int `json:"events"`
	Evaluations int `json:"evaluations"`
	Matches     int `json:"matches"`
	Errors      int `json:"errors"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the event log",
		Long: `Show the logged events with every rule's verdict on each of them.

The output includes:
- Timeline: events in seq order with their evaluations
- Rules: per-rule evaluation, match and error counts
- Stats: totals for the shown timeline

Examples:
  patex trace --db ./patex.db
  patex trace --db ./patex.db --rule high_temp --matches-only
  patex trace --db ./patex.db --from 120 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Rule, "rule", "", "show only this rule's evaluations")
	cmd.Flags().Int64Var(&opts.From, "from", 1, "first seq to show")
	cmd.Flags().BoolVar(&opts.MatchesOnly, "matches-only", false, "show only events some rule matched")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := openExistingStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	events, err := st.ReadEvents(ctx, opts.From)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}
	evals, err := st.ReadEvaluations(ctx, "")
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read evaluations", err)
	}
	stats, err := st.RuleStats(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read rule stats", err)
	}

	result := buildTrace(events, evals, opts)
	for _, rs := range stats {
		if opts.Rule == "" || rs.RuleName == opts.Rule {
			result.Rules = append(result.Rules, rs)
		}
	}

	if opts.Format == "json" {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(CLIResponse{Status: "ok", Data: result})
	}
	outputTraceText(cmd, result)
	return nil
}

// openExistingStore opens the log at path, refusing to create a new one.
func openExistingStore(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// buildTrace joins events with their evaluations, both in seq order.
func buildTrace(events []store.Event, evals []store.Evaluation, opts *TraceOptions) TraceResult {
	bySeq := make(map[int64][]TraceEvaluation)
	for _, e := range evals {
		if opts.Rule != "" && e.RuleName != opts.Rule {
			continue
		}
		te := TraceEvaluation{RuleID: e.RuleID, RuleName: e.RuleName, Matched: e.Matched, Error: e.Error}
		if e.Value != nil {
			te.Value = nativeValue(e.Value)
		}
		bySeq[e.Seq] = append(bySeq[e.Seq], te)
	}

	result := TraceResult{Timeline: []TraceEvent{}, Rules: []store.RuleStat{}}
	for _, ev := range events {
		te := TraceEvent{
			Seq:         ev.Seq,
			Time:        ev.Time.UTC().Format(time.RFC3339Nano),
			Value:       nativeValue(ev.Value),
			Kind:        ev.Value.Kind().String(),
			Evaluations: bySeq[ev.Seq],
			value:       ev.Value,
		}
		if ev.Declared != scalar.KindNull {
			te.Declared = ev.Declared.String()
		}
		if te.Evaluations == nil {
			te.Evaluations = []TraceEvaluation{}
		}

		matched := false
		for _, e := range te.Evaluations {
			result.Stats.Evaluations++
			if e.Matched {
				matched = true
				result.Stats.Matches++
			}
			if e.Error != "" {
				result.Stats.Errors++
			}
		}
		if opts.MatchesOnly && !matched {
			continue
		}
		result.Timeline = append(result.Timeline, te)
	}
	result.Stats.Events = len(result.Timeline)
	return result
}

func outputTraceText(cmd *cobra.Command, result TraceResult) {
	w := cmd.OutOrStdout()

	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "No events found.")
	} else {
		fmt.Fprintln(w, "Timeline:")
		for _, ev := range result.Timeline {
			fmt.Fprintf(w, "  [%d] %s %s", ev.Seq, ev.Time, valueText(ev.value))
			if ev.Declared != "" {
				fmt.Fprintf(w, " (%s)", ev.Declared)
			}
			fmt.Fprintln(w)
			for _, e := range ev.Evaluations {
				switch {
				case e.Error != "":
					fmt.Fprintf(w, "      ✗ %s: %s\n", e.RuleName, e.Error)
				case e.Matched && e.Value != nil:
					fmt.Fprintf(w, "      ✓ %s = %v\n", e.RuleName, e.Value)
				case e.Matched:
					fmt.Fprintf(w, "      ✓ %s\n", e.RuleName)
				}
			}
		}
	}

	if len(result.Rules) > 0 {
		fmt.Fprintln(w, "\nRules:")
		for _, rs := range result.Rules {
			fmt.Fprintf(w, "  %s: %d evaluation(s), %d match(es), %d error(s)", rs.RuleName, rs.Evaluations, rs.Matches, rs.Errors)
			if rs.LastMatchSeq > 0 {
				fmt.Fprintf(w, ", last match at seq %d", rs.LastMatchSeq)
			}
			fmt.Fprintln(w)
		}
	}

	fmt.Fprintf(w, "\nEvents: %d, Matches: %d, Errors: %d\n", result.Stats.Events, result.Stats.Matches, result.Stats.Errors)
}
