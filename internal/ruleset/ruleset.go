// Package ruleset loads named rule definitions from CUE files.
//
// A rule set is any number of .cue files in one directory declaring
//
//	rule: high_temp: {
//		source:      ">80"
//		description: "temperature above 80"
//	}
//
// Each rule is checked against the #Rule schema embedded in this package
// and its source is compiled with engine.Compile. Errors point at the CUE
// file and line of the offending rule.
package ruleset

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/patex/internal/diag"
	"github.com/roach88/patex/internal/engine"
	"github.com/roach88/patex/internal/eval"
)

//go:embed schema.cue
var schemaCUE string

// LoadMode controls how errors are handled during loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// Rule is one rule definition.
type Rule struct {
	Name        string
	Description string
	Source      string
	Strict      bool
	MaxBuffer   int           // 0 for the engine default
	SlopeUnit   time.Duration // 0 for the engine default

	// Pos is the position of the source field, used to locate compile
	// errors in the CUE file.
	Pos token.Pos
}

// Set is a loaded rule set, sorted by rule name.
type Set struct {
	Rules     []Rule
	FileCount int
}

// Load reads every .cue file in dir.
func Load(dir string, mode LoadMode) (*Set, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("rules directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing rules directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(files) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{formatCUEError(ErrCodeLoadFailed, inst.Err)}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{formatCUEError(ErrCodeBuildFailed, err)}
	}

	set, errs := extract(ctx, value, mode)
	if set != nil {
		set.FileCount = len(files)
	}
	return set, errs
}

// LoadString parses a single CUE document. filename only labels positions.
func LoadString(filename, src string, mode LoadMode) (*Set, []error) {
	ctx := cuecontext.New()
	value := ctx.CompileString(src, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, []error{formatCUEError(ErrCodeBuildFailed, err)}
	}
	set, errs := extract(ctx, value, mode)
	if set != nil {
		set.FileCount = 1
	}
	return set, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func extract(ctx *cue.Context, value cue.Value, mode LoadMode) (*Set, []error) {
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, []error{formatCUEError(ErrCodeGeneric, err)}
	}

	set := &Set{}
	var errs []error
	fail := func(err error) bool {
		errs = append(errs, err)
		return mode == LoadModeFailFast
	}

	rulesVal := value.LookupPath(cue.ParsePath("rule"))
	if !rulesVal.Exists() {
		return set, []error{&LoadError{Code: ErrCodeNoRules, Message: "no rules found", Pos: value.Pos()}}
	}

	iter, err := rulesVal.Fields()
	if err != nil {
		return set, []error{formatCUEError(ErrCodeSchema, err)}
	}

	def := schema.LookupPath(cue.ParsePath("#Rule"))
	for iter.Next() {
		name := iter.Selector().Unquoted()
		rv := def.Unify(iter.Value())
		if err := rv.Validate(cue.Concrete(true)); err != nil {
			le := formatCUEError(ErrCodeSchema, err)
			le.Rule = name
			if fail(le) {
				return set, errs
			}
			continue
		}

		r, err := decodeRule(name, rv, iter.Value())
		if err != nil {
			if fail(err) {
				return set, errs
			}
			continue
		}
		set.Rules = append(set.Rules, r)
	}

	if len(set.Rules) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeNoRules, Message: "no rules found", Pos: rulesVal.Pos()})
	}

	sort.Slice(set.Rules, func(i, j int) bool { return set.Rules[i].Name < set.Rules[j].Name })
	return set, errs
}

// decodeRule reads a rule value already validated against #Rule.
// Positions are taken from orig, the value as written.
func decodeRule(name string, v, orig cue.Value) (Rule, error) {
	var fields struct {
		Source      string `json:"source"`
		Description string `json:"description"`
		Strict      bool   `json:"strict"`
		MaxBuffer   int    `json:"max_buffer"`
		SlopeUnit   string `json:"slope_unit"`
	}
	if err := v.Decode(&fields); err != nil {
		le := formatCUEError(ErrCodeSchema, err)
		le.Rule = name
		return Rule{}, le
	}

	r := Rule{
		Name:        name,
		Description: fields.Description,
		Source:      fields.Source,
		Strict:      fields.Strict,
		MaxBuffer:   fields.MaxBuffer,
		Pos:         orig.LookupPath(cue.ParsePath("source")).Pos(),
	}

	if fields.SlopeUnit != "" {
		d, err := time.ParseDuration(fields.SlopeUnit)
		if err != nil || d <= 0 {
			return Rule{}, &LoadError{
				Code:    ErrCodeBadOption,
				Rule:    name,
				Message: fmt.Sprintf("slope_unit %q is not a positive duration", fields.SlopeUnit),
				Pos:     orig.LookupPath(cue.ParsePath("slope_unit")).Pos(),
			}
		}
		r.SlopeUnit = d
	}

	return r, nil
}

// Options returns the compile options this rule asks for.
func (r Rule) Options(reg *eval.Registry) []engine.Option {
	var opts []engine.Option
	if reg != nil {
		opts = append(opts, engine.WithRegistry(reg))
	}
	if r.Strict {
		opts = append(opts, engine.WithStrictSequences())
	}
	if r.MaxBuffer > 0 {
		opts = append(opts, engine.WithMaxBuffer(r.MaxBuffer))
	}
	if r.SlopeUnit > 0 {
		opts = append(opts, engine.WithDefaultSlopeUnit(r.SlopeUnit))
	}
	return opts
}

// Compile compiles the rule's source. A failure is a *LoadError located at
// the rule's source field that wraps the *diag.Error.
func (r Rule) Compile(reg *eval.Registry) (*engine.CompiledRule, error) {
	cr, err := engine.Compile(r.Source, r.Options(reg)...)
	if err != nil {
		msg := err.Error()
		if de, ok := diag.As(err); ok {
			msg = fmt.Sprintf("%s error at %s: %s", de.Phase, de.Pos, de.Message)
		}
		return nil, &LoadError{Code: ErrCodeCompile, Rule: r.Name, Message: msg, Pos: r.Pos, Err: err}
	}
	return cr, nil
}

// Compile compiles every rule in the set, in name order.
func (s *Set) Compile(reg *eval.Registry, mode LoadMode) ([]engine.NamedRule, []error) {
	var (
		rules []engine.NamedRule
		errs  []error
	)
	for _, r := range s.Rules {
		cr, err := r.Compile(reg)
		if err != nil {
			errs = append(errs, err)
			if mode == LoadModeFailFast {
				return rules, errs
			}
			continue
		}
		rules = append(rules, engine.NamedRule{Name: r.Name, Rule: cr})
	}
	return rules, errs
}

// Lookup returns the rule with the given name.
func (s *Set) Lookup(name string) (Rule, bool) {
	for _, r := range s.Rules {
		if r.Name == name {
			return r, true
		}
	}
	return Rule{}, false
}
