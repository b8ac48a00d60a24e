package store

import (
	"context"
	"database/sql"
	"fmt"
)

// ReadEvents returns logged events with seq >= from, ordered by seq.
// Returns an empty slice (not nil) if there are none.
func (s *Store) ReadEvents(ctx context.Context, from int64) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, time, value, kind, declared
		FROM events
		WHERE seq >= ?
		ORDER BY seq ASC
	`, from)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return events, nil
}

// ReadEvaluations returns every evaluation logged for ruleID, or for all
// rules when ruleID is empty.
func (s *Store) ReadEvaluations(ctx context.Context, ruleID string) ([]Evaluation, error) {
	return s.readEvaluations(ctx, ruleID, false)
}

// ReadMatches returns the matching evaluations for ruleID, or for all
// rules when ruleID is empty.
func (s *Store) ReadMatches(ctx context.Context, ruleID string) ([]Evaluation, error) {
	return s.readEvaluations(ctx, ruleID, true)
}

func (s *Store) readEvaluations(ctx context.Context, ruleID string, onlyMatches bool) ([]Evaluation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, rule_id, rule_name, matched, value, value_kind, error
		FROM evaluations
		WHERE (? = '' OR rule_id = ?)
		  AND (? = 0 OR matched = 1)
		ORDER BY seq ASC, rule_id COLLATE BINARY ASC
	`, ruleID, ruleID, onlyMatches)
	if err != nil {
		return nil, fmt.Errorf("query evaluations: %w", err)
	}
	defer rows.Close()

	evals := []Evaluation{}
	for rows.Next() {
		e, err := scanEvaluation(rows)
		if err != nil {
			return nil, err
		}
		evals = append(evals, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evaluations: %w", err)
	}

	return evals, nil
}

// RuleStats summarizes the log per rule, ordered by rule id.
func (s *Store) RuleStats(ctx context.Context) ([]RuleStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rule_id,
		       MAX(rule_name),
		       COUNT(*),
		       COALESCE(SUM(matched), 0),
		       COALESCE(SUM(CASE WHEN error IS NOT NULL THEN 1 ELSE 0 END), 0),
		       COALESCE(MAX(CASE WHEN matched = 1 THEN seq END), 0)
		FROM evaluations
		GROUP BY rule_id
		ORDER BY rule_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query rule stats: %w", err)
	}
	defer rows.Close()

	stats := []RuleStat{}
	for rows.Next() {
		var st RuleStat
		if err := rows.Scan(&st.RuleID, &st.RuleName, &st.Evaluations, &st.Matches, &st.Errors, &st.LastMatchSeq); err != nil {
			return nil, fmt.Errorf("scan rule stat: %w", err)
		}
		stats = append(stats, st)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rule stats: %w", err)
	}

	return stats, nil
}

func scanEvent(rows *sql.Rows) (Event, error) {
	var (
		ev       Event
		nanos    int64
		value    string
		kind     string
		declared string
	)
	if err := rows.Scan(&ev.Seq, &nanos, &value, &kind, &declared); err != nil {
		return Event{}, fmt.Errorf("scan event: %w", err)
	}

	v, err := unmarshalValue(value, kind)
	if err != nil {
		return Event{}, fmt.Errorf("event %d: %w", ev.Seq, err)
	}
	ev.Value = v
	ev.Time = fromUnixNanos(nanos)

	// A declared type that no longer parses is a corrupt row.
	ev.Declared, err = scalarKind(declared)
	if err != nil {
		return Event{}, fmt.Errorf("event %d: %w", ev.Seq, err)
	}

	return ev, nil
}

func scanEvaluation(rows *sql.Rows) (Evaluation, error) {
	var (
		e         Evaluation
		value     sql.NullString
		valueKind sql.NullString
		errText   sql.NullString
	)
	if err := rows.Scan(&e.Seq, &e.RuleID, &e.RuleName, &e.Matched, &value, &valueKind, &errText); err != nil {
		return Evaluation{}, fmt.Errorf("scan evaluation: %w", err)
	}

	if value.Valid {
		v, err := unmarshalValue(value.String, valueKind.String)
		if err != nil {
			return Evaluation{}, fmt.Errorf("evaluation %d/%s: %w", e.Seq, e.RuleID, err)
		}
		e.Value = v
	}
	e.Error = errText.String

	return e, nil
}
