package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/patex/internal/ast"
	"github.com/roach88/patex/internal/diag"
	"github.com/roach88/patex/internal/engine"
	"github.com/roach88/patex/internal/env"
	"github.com/roach88/patex/internal/parser"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	File      string        // read the rule from this file
	AST       bool          // include the AST dump
	Strict    bool          // strict arrow sequences
	MaxBuffer int           // pipeline buffer cap
	SlopeUnit time.Duration // default slope unit
}

// CompilationResult describes a compiled rule.
type CompilationResult struct {
	Source string          `json:"source"`
	Cells  []env.CellState `json:"cells"`
	AST    string          `json:"ast,omitempty"`
}

// DiagnosticDetails locates a compile error in the source.
type DiagnosticDetails struct {
	Phase  string `json:"phase"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
	Token  string `json:"token,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile [source]",
		Short: "Compile a rule and report errors",
		Long: `Compile a single rule through every phase (lexer, parser, chain
validator, translator) and report the first error with its position.

On success the rule's state cells are listed; --ast adds the parse tree.

Examples:
  patex compile 'count!(>4, 3)'
  patex compile -f rule.px --ast
  patex compile 'filter(>3).sum()' --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "read the rule from a file")
	cmd.Flags().BoolVar(&opts.AST, "ast", false, "print the parse tree")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "restart arrow sequences on any miss")
	cmd.Flags().IntVar(&opts.MaxBuffer, "max-buffer", 0, "cap for unbounded pipeline buffers (0 = default)")
	cmd.Flags().DurationVar(&opts.SlopeUnit, "slope-unit", 0, "default slope time unit (0 = 1s)")

	return cmd
}

func runCompile(opts *CompileOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	src, err := compileSource(opts, args)
	if err != nil {
		_ = formatter.Error(ErrCodeReadFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read rule", err)
	}

	var copts []engine.Option
	if opts.Strict {
		copts = append(copts, engine.WithStrictSequences())
	}
	if opts.MaxBuffer > 0 {
		copts = append(copts, engine.WithMaxBuffer(opts.MaxBuffer))
	}
	if opts.SlopeUnit > 0 {
		copts = append(copts, engine.WithDefaultSlopeUnit(opts.SlopeUnit))
	}

	rule, err := engine.Compile(src, copts...)
	if err != nil {
		return outputCompileError(formatter, src, err)
	}
	formatter.VerboseLog("Compiled %d byte(s)", len(rule.Source()))

	result := CompilationResult{Source: rule.Source(), Cells: rule.Cells()}
	if opts.AST {
		// Compile succeeded, so the normalized source parses.
		prog, err := parser.Parse(rule.Source())
		if err != nil {
			return WrapExitError(ExitFailure, "parse failed", err)
		}
		result.AST = ast.Dump(prog)
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled: %s\n", result.Source)
	if len(result.Cells) > 0 {
		fmt.Fprintln(w, "\nState cells:")
		for _, c := range result.Cells {
			fmt.Fprintf(w, "  %s (%s) = %v\n", c.Key, c.Kind, c.Value)
		}
	}
	if result.AST != "" {
		fmt.Fprintln(w, "\nAST:")
		for _, line := range strings.Split(result.AST, "\n") {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
	return nil
}

// compileSource returns the rule text from the argument or --file.
func compileSource(opts *CompileOptions, args []string) (string, error) {
	switch {
	case opts.File != "" && len(args) > 0:
		return "", fmt.Errorf("give either a source argument or --file, not both")
	case opts.File != "":
		data, err := os.ReadFile(opts.File)
		if err != nil {
			return "", err
		}
		return strings.TrimRight(string(data), "\n"), nil
	case len(args) == 1:
		return args[0], nil
	default:
		return "", fmt.Errorf("no rule given: pass a source argument or --file")
	}
}

// outputCompileError reports a compile failure with its source position.
func outputCompileError(formatter *OutputFormatter, src string, err error) error {
	de, ok := diag.As(err)
	if !ok {
		_ = formatter.Error(ErrCodeCompile, err.Error(), nil)
		return WrapExitError(ExitFailure, "compilation failed", err)
	}

	if formatter.JSON() {
		_ = formatter.Error(de.Code, de.Message, DiagnosticDetails{
			Phase:  string(de.Phase),
			Line:   de.Pos.Line,
			Column: de.Pos.Column,
			Token:  de.Token,
		})
	} else {
		fmt.Fprintf(formatter.Writer, "✗ %s\n", diag.Render(src, err))
	}
	return WrapExitError(ExitFailure, "compilation failed", err)
}
