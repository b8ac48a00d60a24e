// Package chain validates the stage order of pipeline expressions such as
// filter(>3).window(5s).avg().meet(>10).
package chain

import (
	"errors"
	"fmt"

	"github.com/roach88/patex/internal/diag"
)

// Built-in stage names.
const (
	Filter  = "filter"
	Collect = "collect"
	Window  = "window"
	Limit   = "limit"
	Take    = "take"
	Sum     = "sum"
	Avg     = "avg"
	Count   = "count"
	Stddev  = "stddev"
	HitRate = "hitRate"
	Meet    = "meet"
)

// Role is the part a custom function plays in a pipeline.
type Role int

const (
	RoleNone Role = iota
	RoleFilter
	RoleAggregate
	RoleMeet
)

func (r Role) String() string {
	switch r {
	case RoleFilter:
		return "filter"
	case RoleAggregate:
		return "aggregate"
	case RoleMeet:
		return "meet"
	default:
		return "none"
	}
}

// Roles maps custom function names to their pipeline role.
type Roles map[string]Role

// transitions lists the stages allowed to follow each built-in stage.
var transitions = map[string][]string{
	Filter:  {Take, Sum, HitRate, Count, Avg, Stddev, Window, Limit},
	Collect: {Take, Sum, HitRate, Count, Avg, Stddev, Window, Limit},
	Window:  {Sum, HitRate, Count, Avg, Stddev, Take},
	Limit:   {Sum, HitRate, Count, Avg, Stddev, Take},
	Take:    {Sum, HitRate, Count, Avg, Stddev},
	Sum:     {Meet},
	Avg:     {Meet},
	Count:   {Meet},
	Stddev:  {Meet},
	HitRate: {Meet},
	Meet:    nil,
}

// IsBuiltin reports whether name is a built-in stage.
func IsBuiltin(name string) bool {
	_, ok := transitions[name]
	return ok
}

// IsAggregator reports whether name is a built-in aggregation stage.
func IsAggregator(name string) bool {
	switch name {
	case Sum, Avg, Count, Stddev, HitRate:
		return true
	}
	return false
}

// Error describes a rejected pipeline.
type Error struct {
	Code   string
	Stage  string
	Index  int // index into the stages as written, -1 for the whole pipeline
	Reason string
}

func (e *Error) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("chain [%s]: %s", e.Code, e.Reason)
	}
	return fmt.Sprintf("chain [%s] at stage %q: %s", e.Code, e.Stage, e.Reason)
}

// AsError extracts a chain Error from err.
func AsError(err error) (*Error, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// canonical maps a stage to the built-in stage whose transitions it shares.
func canonical(name string, custom Roles) (string, bool) {
	if IsBuiltin(name) {
		return name, true
	}
	switch custom[name] {
	case RoleFilter:
		return Filter, true
	case RoleAggregate:
		return Sum, true
	case RoleMeet:
		return Meet, true
	}
	return "", false
}

// Validate checks a pipeline and returns the effective stage list. When the
// first stage is not a source but may follow one, an implicit filter is
// prepended, so "sum().meet(>3)" runs as "filter().sum().meet(>3)".
func Validate(stages []string, custom Roles) ([]string, error) {
	if len(stages) == 0 {
		return nil, &Error{Code: diag.CodeEmptyPipeline, Index: -1, Reason: "pipeline has no stages"}
	}

	roles := make([]string, len(stages))
	var hasLimit, hasWindow bool
	for i, name := range stages {
		c, ok := canonical(name, custom)
		if !ok {
			return nil, &Error{Code: diag.CodeUnknownStage, Stage: name, Index: i, Reason: "unknown stage"}
		}
		roles[i] = c
		hasLimit = hasLimit || c == Limit
		hasWindow = hasWindow || c == Window
	}
	if hasLimit && hasWindow {
		return nil, &Error{
			Code:   diag.CodeExclusiveStages,
			Stage:  Limit,
			Index:  indexOf(roles, Limit),
			Reason: "limit and window cannot be combined in one pipeline",
		}
	}

	effective := stages
	offset := 0
	if first := roles[0]; first != Filter && first != Collect {
		if !allowed(Filter, first) {
			return nil, &Error{
				Code:   diag.CodeBadFirstStage,
				Stage:  stages[0],
				Index:  0,
				Reason: "pipeline must start with filter, collect or a custom filter",
			}
		}
		effective = append([]string{Filter}, stages...)
		roles = append([]string{Filter}, roles...)
		offset = 1
	}

	last := len(roles) - 1
	if roles[last] != Meet {
		return nil, &Error{
			Code:   diag.CodeBadLastStage,
			Stage:  effective[last],
			Index:  last - offset,
			Reason: "pipeline must end with meet or a custom meet",
		}
	}

	for i := 0; i < last; i++ {
		if !allowed(roles[i], roles[i+1]) {
			return nil, &Error{
				Code:   diag.CodeBadTransition,
				Stage:  effective[i+1],
				Index:  i + 1 - offset,
				Reason: fmt.Sprintf("%s cannot follow %s", effective[i+1], effective[i]),
			}
		}
	}
	return effective, nil
}

func allowed(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func indexOf(names []string, want string) int {
	for i, n := range names {
		if n == want {
			return i
		}
	}
	return -1
}
