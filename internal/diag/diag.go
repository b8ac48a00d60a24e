// Package diag defines the structured error reported by every compile phase
// and by the runtime, together with a source-context renderer.
package diag

import (
	"errors"
	"fmt"
	"strings"
)

// Phase names the pipeline stage that produced an error.
type Phase string

const (
	PhaseLexical     Phase = "lexical"
	PhaseSyntax      Phase = "syntax"
	PhaseChain       Phase = "chain"
	PhaseTranslation Phase = "translation"
	PhaseCompute     Phase = "compute"
	PhaseRuntime     Phase = "runtime"
)

// Error codes. The leading letter mirrors the phase.
const (
	// Lexical errors (L101-L199)
	CodeBadChar             = "L101" // character outside the language
	CodeUnterminatedComment = "L102" // /* without */
	CodeBadNumber           = "L103" // trailing '.' without digits
	CodeLeadingZero         = "L104" // 0 followed by digits
	CodeUnterminatedString  = "L105" // missing closing quote

	// Syntax errors (P201-P299)
	CodeUnexpectedToken = "P201" // token not valid here
	CodeExpectedToken   = "P202" // expected X got Y
	CodeUnexpectedEOF   = "P203" // input ended early
	CodeBadLiteral      = "P204" // literal could not be decoded
	CodeUnsupported     = "P205" // construct recognised but rejected

	// Chain grammar errors (C301-C399)
	CodeUnknownStage    = "C301" // stage name not in table or registry
	CodeBadFirstStage   = "C302" // first stage outside the start set
	CodeBadLastStage    = "C303" // last stage outside the end set
	CodeBadTransition   = "C304" // adjacent pair not in the transition table
	CodeExclusiveStages = "C305" // limit and window in one pipeline
	CodeEmptyPipeline   = "C306" // no stages

	// Translation errors (T401-T499)
	CodeNestedArrow        = "T401" // arrow sequence inside an arrow stage
	CodeArity              = "T402" // wrong argument count
	CodeArgumentType       = "T403" // wrong argument type
	CodeUnknownFunction    = "T404" // function or stage not known
	CodeUnsupportedStmt    = "T405" // statement kind not lowered
	CodeMissingPredicate   = "T406" // program without a final expression
	CodeNonNumericOrdering = "T407" // < > <= >= against non-numeric literal
	CodeUndefinedVariable  = "T408" // identifier not declared

	// Compute errors (X501-X599)
	CodeInsufficientSamples = "X501" // stddev with fewer than two values
	CodeNonNumericBuffer    = "X502" // aggregation over non-numeric values
	CodeArithmetic          = "X503" // arithmetic failure (division by zero, ...)

	// Runtime errors (R601-R699)
	CodeBadEvent = "R601" // event value does not match its declared type
)

// Pos is a source position. Offset is 0-based in bytes; Line and Column are 1-based.
type Pos struct {
	Offset int `json:"offset"`
	Line   int `json:"line"`
	Column int `json:"column"`
}

// IsValid reports whether the position refers to a real location.
func (p Pos) IsValid() bool {
	return p.Line > 0
}

func (p Pos) String() string {
	if !p.IsValid() {
		return "-"
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Error is the structured error carried out of compilation and evaluation.
type Error struct {
	Phase   Phase  `json:"phase"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Pos     Pos    `json:"pos"`
	// Token is the offending token text, if any.
	Token string `json:"token,omitempty"`
	// Err is an underlying cause (optional).
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Pos.IsValid() {
		fmt.Fprintf(&b, "%d:%d: ", e.Pos.Line, e.Pos.Column)
	}
	fmt.Fprintf(&b, "%s error [%s]: %s", e.Phase, e.Code, e.Message)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error.
func New(phase Phase, code string, pos Pos, format string, args ...any) *Error {
	return &Error{
		Phase:   phase,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Pos:     pos,
	}
}

// Wrap creates an Error around an underlying cause.
func Wrap(phase Phase, code string, pos Pos, err error, format string, args ...any) *Error {
	e := New(phase, code, pos, format, args...)
	e.Err = err
	return e
}

// WithToken returns e with the offending token text attached.
func (e *Error) WithToken(text string) *Error {
	e.Token = text
	return e
}

// As extracts a *Error from an error chain.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// IsPhase reports whether err carries a diag.Error of the given phase.
// Uses errors.As to handle wrapped errors.
func IsPhase(err error, phase Phase) bool {
	de, ok := As(err)
	return ok && de.Phase == phase
}

// HasCode reports whether err carries a diag.Error with the given code.
func HasCode(err error, code string) bool {
	de, ok := As(err)
	return ok && de.Code == code
}
