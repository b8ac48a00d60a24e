package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/patex/internal/scalar"
)

// createTestStore opens a fresh store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var baseTime = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func testEvent(seq int64, v scalar.Value) Event {
	return Event{Seq: seq, Time: baseTime.Add(time.Duration(seq) * time.Second), Value: v}
}
