package ruleset

import (
	"fmt"

	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// Error codes for rule set loading.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed

	ErrCodeSchema    = "E201" // Rule does not match #Rule
	ErrCodeNoRules   = "E202" // No rule.<name> entries
	ErrCodeBadOption = "E203" // Option value out of range (e.g. slope_unit)
	ErrCodeCompile   = "E204" // Rule source failed to compile
)

// LoadError is a rule set error located in a CUE file.
type LoadError struct {
	Code    string
	Rule    string // rule name, if the error belongs to one rule
	Message string
	Pos     token.Pos // CUE position if available
	Err     error     // underlying cause, e.g. a *diag.Error
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.Rule != "" {
		msg = fmt.Sprintf("rule %s: %s", e.Rule, msg)
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, msg)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// formatCUEError turns the first CUE error into a LoadError with position
// info.
func formatCUEError(code string, err error) *LoadError {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Code: code, Message: err.Error(), Err: err}
	}

	first := errs[0]
	le := &LoadError{Code: code, Message: first.Error(), Err: err}
	if positions := errors.Positions(first); len(positions) > 0 {
		le.Pos = positions[0]
	}
	return le
}
