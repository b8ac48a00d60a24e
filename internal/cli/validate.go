package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/patex/internal/engine"
	"github.com/roach88/patex/internal/ruleset"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Files  int               `json:"files"`
	Rules  []string          `json:"rules,omitempty"`
	Errors []ValidationIssue `json:"errors,omitempty"`
}

// ValidationIssue is one rule set error with its CUE position.
type ValidationIssue struct {
	Code    string `json:"code"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <rules-dir>",
		Short: "Validate a rule set",
		Long: `Load every .cue file in a directory, check each rule against the
rule schema and compile its source.

All errors are reported, each located at the rule's CUE position.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, rulesDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	set, loadErrs := ruleset.Load(rulesDir, ruleset.LoadModeCollectAll)
	if set == nil {
		le := toLoadError(loadErrs[0])
		_ = formatter.Error(le.Code, le.Message, nil)
		// Unreadable rule sets are command-level errors (exit code 2)
		return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", le.Code, le.Message))
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", set.FileCount, rulesDir)

	errs := loadErrs
	rules, compileErrs := set.Compile(nil, ruleset.LoadModeCollectAll)
	errs = append(errs, compileErrs...)

	result := ValidationResult{Valid: len(errs) == 0, Files: set.FileCount}
	for _, nr := range rules {
		result.Rules = append(result.Rules, nr.Name)
	}
	for _, err := range errs {
		result.Errors = append(result.Errors, toIssue(err))
	}

	if result.Valid {
		if formatter.JSON() {
			return formatter.Success(result)
		}
		fmt.Fprintf(formatter.Writer, "✓ %d rule(s) valid\n", len(result.Rules))
		return nil
	}
	return outputValidationErrors(formatter, result)
}

// outputValidationErrors outputs every validation error.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	errs := result.Errors
	if formatter.JSON() {
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, issue := range errs {
		if issue.File != "" {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n", issue.File, issue.Line, issue.Column)
		}
		if issue.Rule != "" {
			fmt.Fprintf(formatter.Writer, "  %s: rule %s: %s\n\n", issue.Code, issue.Rule, issue.Message)
		} else {
			fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", issue.Code, issue.Message)
		}
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}

func toLoadError(err error) *ruleset.LoadError {
	var le *ruleset.LoadError
	if errors.As(err, &le) {
		return le
	}
	return &ruleset.LoadError{Code: ruleset.ErrCodeGeneric, Message: err.Error(), Err: err}
}

func toIssue(err error) ValidationIssue {
	le := toLoadError(err)
	issue := ValidationIssue{Code: le.Code, Rule: le.Rule, Message: le.Message}
	if le.Pos.IsValid() {
		issue.File = le.Pos.Filename()
		issue.Line = le.Pos.Line()
		issue.Column = le.Pos.Column()
	}
	return issue
}

// loadRules loads and compiles the rule set in dir, failing on the first
// error. Used by commands that need a runnable set.
func loadRules(dir string) ([]engine.NamedRule, error) {
	set, errs := ruleset.Load(dir, ruleset.LoadModeFailFast)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	rules, errs := set.Compile(nil, ruleset.LoadModeFailFast)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	return rules, nil
}
