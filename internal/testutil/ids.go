package testutil

import (
	"fmt"
	"sync/atomic"
)

// SequentialIDs generates "prefix-1", "prefix-2", ... without limit.
//
// Unlike engine.FixedGenerator, which hands out a fixed list, this suits
// scenarios whose rule count is only known at run time. The same scenario
// always gets the same ids, so golden traces stay byte-identical.
//
// Thread-safety: SequentialIDs is safe for concurrent use.
type SequentialIDs struct {
	prefix string
	n      atomic.Int64
}

// NewSequentialIDs creates a generator. An empty prefix means "rule".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "rule"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next id. Implements engine.IDGenerator.
func (g *SequentialIDs) Generate() string {
	return fmt.Sprintf("%s-%d", g.prefix, g.n.Add(1))
}
