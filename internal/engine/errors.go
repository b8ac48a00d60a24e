package engine

import (
	"errors"
	"fmt"
)

// RuntimeError is an error raised by the Engine itself, as opposed to a
// *diag.Error raised while compiling or evaluating one rule.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// RuleID identifies the affected rule, if any.
	RuleID string

	// Seq is the event sequence number, if any.
	Seq int64

	// Err is the underlying cause.
	Err error
}

// RuntimeErrorCode categorizes engine errors.
type RuntimeErrorCode string

const (
	// ErrCodeUnknownRule indicates a rule id that is not registered.
	ErrCodeUnknownRule RuntimeErrorCode = "UNKNOWN_RULE"

	// ErrCodeRecordFailed indicates the Recorder rejected a write.
	ErrCodeRecordFailed RuntimeErrorCode = "RECORD_FAILED"

	// ErrCodeReplayDiverged indicates a replay produced different matches
	// than the log holds.
	ErrCodeReplayDiverged RuntimeErrorCode = "REPLAY_DIVERGED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.RuleID != "" {
		msg += fmt.Sprintf(" (rule=%s)", e.RuleID)
	}
	if e.Seq != 0 {
		msg += fmt.Sprintf(" (seq=%d)", e.Seq)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsUnknownRule reports whether err is an unknown rule error.
// Uses errors.As to handle wrapped errors.
func IsUnknownRule(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeUnknownRule
	}
	return false
}

// IsRecordError reports whether err came from the Recorder.
func IsRecordError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeRecordFailed
	}
	return false
}

// IsReplayDiverged reports whether err is a replay divergence.
func IsReplayDiverged(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeReplayDiverged
	}
	return false
}

func newUnknownRuleError(id string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeUnknownRule,
		Message: "rule is not registered",
		RuleID:  id,
	}
}

func newRecordError(seq int64, ruleID string, err error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeRecordFailed,
		Message: "recorder write failed",
		RuleID:  ruleID,
		Seq:     seq,
		Err:     err,
	}
}
