package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/roach88/patex/internal/diag"
	"github.com/roach88/patex/internal/engine"
	"github.com/roach88/patex/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Events   string
	Metrics  bool

	// IDGenerator overrides the rule id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDGenerator engine.IDGenerator
}

// RunMatch is one match or failed evaluation reported by run.
type RunMatch struct {
	Seq   int64  `json:"seq"`
	Rule  string `json:"rule"`
	Value any    `json:"value,omitempty"`
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

// RunSummary is the result of a run.
type RunSummary struct {
	Events   int        `json:"events"`
	FirstSeq int64      `json:"first_seq"`
	LastSeq  int64      `json:"last_seq"`
	Matches  []RunMatch `json:"matches"`
	Errors   []RunMatch `json:"errors,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <rules-dir>",
		Short: "Feed events through a rule set",
		Long: `Load and compile a rule set, then feed an events file through the
single-writer engine loop. Every event and evaluation is appended to a
SQLite log, continuing the sequence numbers already in it.

The events file is a YAML list of {value, type, time} entries; "-"
reads it from stdin.

Example:
  patex run --db ./patex.db --events events.yaml ./rules
  cat events.yaml | patex run --db ./patex.db --events - ./rules --metrics`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Events, "events", "", "YAML events file, or - for stdin (required)")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "print engine metrics after the run")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("events")

	return cmd
}

func runEngine(opts *RunOptions, rulesDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	logger.Debug("loading rules", "dir", rulesDir)
	rules, err := loadRules(rulesDir)
	if err != nil {
		le := toLoadError(err)
		_ = formatter.Error(le.Code, le.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load rules", err)
	}
	logger.Debug("rules loaded", "count", len(rules))

	events, err := readEvents(opts.Events, cmd.InOrStdin())
	if err != nil {
		_ = formatter.Error(ErrCodeEventsFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	lastSeq, err := st.LastSeq(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read database", err)
	}

	reg := prometheus.NewRegistry()
	metrics, err := engine.NewMetrics(reg)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to register metrics", err)
	}

	idGen := opts.IDGenerator
	if idGen == nil {
		idGen = engine.UUIDv7Generator{}
	}

	summary := RunSummary{Events: len(events), FirstSeq: lastSeq + 1, LastSeq: lastSeq, Matches: []RunMatch{}}
	eng := engine.New(
		engine.WithRecorder(st),
		engine.WithMetrics(metrics),
		engine.WithClock(engine.NewClockAt(lastSeq)),
		engine.WithIDGenerator(idGen),
		engine.WithLogger(logger),
		// Called on the Run goroutine only; summary is read after Run returns.
		engine.WithResultHandler(func(res engine.Result) {
			summary.LastSeq = res.Seq
			switch {
			case res.Err != nil:
				m := RunMatch{Seq: res.Seq, Rule: res.RuleName, Error: res.Err.Error()}
				if de, ok := diag.As(res.Err); ok {
					m.Code = de.Code
				}
				summary.Errors = append(summary.Errors, m)
			case res.Matched:
				summary.Matches = append(summary.Matches, RunMatch{Seq: res.Seq, Rule: res.RuleName, Value: nativeValue(res.Value)})
			}
		}),
	)
	for _, nr := range rules {
		id := eng.Register(nr.Name, nr.Rule)
		logger.Debug("rule registered", "rule", nr.Name, "id", id)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	done := make(chan error, 1)
	go func() {
		done <- eng.Run(ctx)
	}()

	for _, ev := range events {
		if !eng.Enqueue(ev) {
			break
		}
	}
	eng.Stop()

	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "engine error", err)
	}
	logger.Debug("engine stopped", "last_seq", summary.LastSeq)

	if formatter.JSON() {
		if err := formatter.Success(summary); err != nil {
			return err
		}
	} else {
		outputRunText(formatter, summary)
	}

	if opts.Metrics {
		if err := writeMetrics(formatter, reg); err != nil {
			return WrapExitError(ExitFailure, "failed to write metrics", err)
		}
	}
	return nil
}

func outputRunText(formatter *OutputFormatter, summary RunSummary) {
	w := formatter.Writer
	for _, m := range summary.Matches {
		if m.Value != nil {
			fmt.Fprintf(w, "✓ seq=%d %s value=%v\n", m.Seq, m.Rule, m.Value)
		} else {
			fmt.Fprintf(w, "✓ seq=%d %s\n", m.Seq, m.Rule)
		}
	}
	for _, m := range summary.Errors {
		fmt.Fprintf(w, "✗ seq=%d %s: %s\n", m.Seq, m.Rule, m.Error)
	}
	fmt.Fprintf(w, "\nProcessed %d event(s): %d match(es), %d error(s)\n",
		summary.Events, len(summary.Matches), len(summary.Errors))
}

// writeMetrics prints the registry in the Prometheus text format to the
// diagnostic writer, keeping JSON output parseable.
func writeMetrics(formatter *OutputFormatter, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	w := formatter.GetErrWriter()
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
