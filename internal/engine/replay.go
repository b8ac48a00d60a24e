package engine

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/patex/internal/store"
)

// Replay re-feeds a logged event stream to freshly compiled rules.
//
// Replay is not a special mode: events go through the same process path
// as in Run, only without re-stamping and without recording. Logged
// events keep their seq and time, so a rule set whose rules are all
// deterministic reproduces the logged matches exactly. Rules that depend
// on wall-clock defaults (events logged without a time) may not.

// EventSource is the read side of an event log.
type EventSource interface {
	ReadEvents(ctx context.Context, from int64) ([]store.Event, error)
}

// MatchSource is an event log that also holds the matches recorded for it.
type MatchSource interface {
	EventSource
	ReadMatchLog(ctx context.Context) (store.MatchLog, error)
}

// NamedRule pairs a compiled rule with the name it is logged under.
type NamedRule struct {
	Name string
	Rule *CompiledRule
}

// Replay feeds every logged event to rules, in seq order, and returns the
// seqs at which each rule matched, keyed by rule name.
//
// The rules are consumed: they end in whatever state the log leaves them.
func Replay(ctx context.Context, src EventSource, rules []NamedRule, opts ...EngineOption) (store.MatchLog, error) {
	events, err := src.ReadEvents(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}

	log := store.MatchLog{}
	opts = append(opts, WithRecorder(nil), WithResultHandler(func(r Result) {
		if r.Matched {
			log[r.RuleName] = append(log[r.RuleName], r.Seq)
		}
	}))
	eng := New(opts...)
	for _, nr := range rules {
		eng.Register(nr.Name, nr.Rule)
	}

	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := eng.process(ctx, ev.EvalEvent(), false); err != nil {
			return nil, fmt.Errorf("replay seq %d: %w", ev.Seq, err)
		}
	}

	return log, nil
}

// VerifyReplay replays src and compares the matches of every rule in
// rules against the matches src recorded for the same rule name.
// Returns a REPLAY_DIVERGED RuntimeError naming the first rule that
// disagrees.
func VerifyReplay(ctx context.Context, src MatchSource, rules []NamedRule, opts ...EngineOption) error {
	logged, err := src.ReadMatchLog(ctx)
	if err != nil {
		return fmt.Errorf("verify replay: %w", err)
	}

	replayed, err := Replay(ctx, src, rules, opts...)
	if err != nil {
		return err
	}

	for _, nr := range rules {
		want, got := logged[nr.Name], replayed[nr.Name]
		if !slices.Equal(want, got) {
			return &RuntimeError{
				Code:    ErrCodeReplayDiverged,
				Message: fmt.Sprintf("rule %q matched at %v, log has %v", nr.Name, got, want),
			}
		}
	}
	return nil
}
