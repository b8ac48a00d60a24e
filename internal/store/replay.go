package store

import (
	"context"
	"fmt"
)

// MatchLog maps rule name to the seqs at which that rule matched.
//
// Replays key by rule name rather than id: ids are minted per engine run,
// names come from the rule set and survive a restart.
type MatchLog map[string][]int64

// ReadMatchLog returns the logged matches grouped by rule name, each in
// seq order.
func (s *Store) ReadMatchLog(ctx context.Context) (MatchLog, error) {
	matches, err := s.ReadMatches(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("read match log: %w", err)
	}

	log := MatchLog{}
	for _, m := range matches {
		log[m.RuleName] = append(log[m.RuleName], m.Seq)
	}
	return log, nil
}
