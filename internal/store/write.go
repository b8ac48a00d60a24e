package store

import (
	"context"
	"database/sql"
	"fmt"
)

// WriteEvent appends an event to the log.
// Uses ON CONFLICT(seq) DO NOTHING for idempotency: writing the same seq
// twice keeps the first record.
func (s *Store) WriteEvent(ctx context.Context, ev Event) error {
	valueJSON, kind, err := marshalValue(ev.Value)
	if err != nil {
		return fmt.Errorf("write event %d: %w", ev.Seq, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (seq, time, value, kind, declared)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(seq) DO NOTHING
	`,
		ev.Seq,
		unixNanos(ev.Time),
		valueJSON,
		kind,
		ev.Declared.String(),
	)
	if err != nil {
		return fmt.Errorf("write event %d: %w", ev.Seq, err)
	}

	return nil
}

// WriteEvaluation records one rule's result for a logged event.
// Uses ON CONFLICT(seq, rule_id) DO NOTHING for idempotency.
//
// Note: The event referenced by Seq must exist (foreign key constraint).
func (s *Store) WriteEvaluation(ctx context.Context, e Evaluation) error {
	var value, valueKind, errText sql.NullString
	if e.Value != nil {
		v, k, err := marshalValue(e.Value)
		if err != nil {
			return fmt.Errorf("write evaluation %d/%s: %w", e.Seq, e.RuleID, err)
		}
		value = sql.NullString{String: v, Valid: true}
		valueKind = sql.NullString{String: k, Valid: true}
	}
	if e.Error != "" {
		errText = sql.NullString{String: e.Error, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO evaluations (seq, rule_id, rule_name, matched, value, value_kind, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(seq, rule_id) DO NOTHING
	`,
		e.Seq,
		e.RuleID,
		e.RuleName,
		e.Matched,
		value,
		valueKind,
		errText,
	)
	if err != nil {
		return fmt.Errorf("write evaluation %d/%s: %w", e.Seq, e.RuleID, err)
	}

	return nil
}
