package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/patex/internal/engine"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
}

// ReplayRuleResult holds the replay result for a single rule.
type ReplayRuleResult struct {
	Rule          string  `json:"rule"`
	Logged        []int64 `json:"logged"`
	Replayed      []int64 `json:"replayed"`
	Deterministic bool    `json:"deterministic"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Events           int                `json:"events"`
	Rules            []ReplayRuleResult `json:"rules"`
	Unknown          []string           `json:"unknown,omitempty"` // logged rules not in the rule set
	AllDeterministic bool               `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <rules-dir>",
		Short: "Replay the event log and verify determinism",
		Long: `Re-feed every logged event, in seq order, to freshly compiled rules
and compare each rule's matches against the matches in the log.

Rules are matched to the log by name.

Exit codes:
  0 - Every rule reproduced its logged matches
  1 - Determinism verification failed (differences detected)
  2 - Command error (database not found, etc.)

Examples:
  patex replay --db ./patex.db ./rules
  patex replay --db ./patex.db ./rules --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runReplay(opts *ReplayOptions, rulesDir string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	rules, err := loadRules(rulesDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load rules", err)
	}

	st, err := openExistingStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	events, err := st.ReadEvents(ctx, 0)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}
	logged, err := st.ReadMatchLog(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read match log", err)
	}

	replayed, err := engine.Replay(ctx, st, rules,
		engine.WithLogger(newLogger(cmd.ErrOrStderr(), opts.Verbose)),
	)
	if err != nil {
		return WrapExitError(ExitFailure, "replay failed", err)
	}

	result := ReplayResult{Events: len(events), Rules: []ReplayRuleResult{}, AllDeterministic: true}
	known := make(map[string]bool, len(rules))
	for _, nr := range rules {
		known[nr.Name] = true
		rr := ReplayRuleResult{
			Rule:     nr.Name,
			Logged:   nonNil(logged[nr.Name]),
			Replayed: nonNil(replayed[nr.Name]),
		}
		rr.Deterministic = slices.Equal(rr.Logged, rr.Replayed)
		if !rr.Deterministic {
			result.AllDeterministic = false
		}
		result.Rules = append(result.Rules, rr)
	}
	for name := range logged {
		if !known[name] {
			result.Unknown = append(result.Unknown, name)
		}
	}
	sort.Strings(result.Unknown)

	if opts.Format == "json" {
		return outputReplayJSON(cmd, result)
	}
	return outputReplayText(cmd.OutOrStdout(), result)
}

func nonNil(seqs []int64) []int64 {
	if seqs == nil {
		return []int64{}
	}
	return seqs
}

func outputReplayJSON(cmd *cobra.Command, result ReplayResult) error {
	response := CLIResponse{Status: "ok", Data: result}
	if !result.AllDeterministic {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    string(engine.ErrCodeReplayDiverged),
			Message: "replay diverged from the log",
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if !result.AllDeterministic {
		return NewExitError(ExitFailure, "replay diverged from the log")
	}
	return nil
}

func outputReplayText(w io.Writer, result ReplayResult) error {
	fmt.Fprintf(w, "Replayed %d event(s)\n\n", result.Events)
	for _, rr := range result.Rules {
		if rr.Deterministic {
			fmt.Fprintf(w, "✓ %s: %d match(es)\n", rr.Rule, len(rr.Replayed))
			continue
		}
		fmt.Fprintf(w, "✗ %s: log has %v, replay gave %v\n", rr.Rule, rr.Logged, rr.Replayed)
	}
	for _, name := range result.Unknown {
		fmt.Fprintf(w, "? %s: in the log but not in the rule set\n", name)
	}

	if !result.AllDeterministic {
		return NewExitError(ExitFailure, "replay diverged from the log")
	}
	fmt.Fprintln(w, "\n✓ Replay matches the log")
	return nil
}
