package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/araddon/dateparse"
	"gopkg.in/yaml.v3"

	"github.com/roach88/patex/internal/eval"
	"github.com/roach88/patex/internal/scalar"
)

// eventRecord is one entry of an events file, for example
//
//	{value: 81.5, type: float, time: "2025-06-01 12:00"}
//
// Type and time are optional.
type eventRecord struct {
	Value any    `yaml:"value"`
	Type  string `yaml:"type,omitempty"`
	Time  string `yaml:"time,omitempty"`
}

// readEvents reads an events file, or stdin when path is "-".
func readEvents(path string, stdin io.Reader) ([]eval.Event, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	return decodeEvents(data)
}

// decodeEvents parses a YAML sequence of event records. Times without a
// zone are UTC; events without a time are stamped by the engine.
func decodeEvents(data []byte) ([]eval.Event, error) {
	var records []eventRecord
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&records); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode events: %w", err)
	}

	events := make([]eval.Event, 0, len(records))
	for i, rec := range records {
		v, err := scalar.FromAny(rec.Value)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		kind, err := scalar.ParseKind(rec.Type)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		ev := eval.Event{Value: v, Type: kind}
		if rec.Time != "" {
			t, err := dateparse.ParseIn(rec.Time, time.UTC)
			if err != nil {
				return nil, fmt.Errorf("event %d: time: %w", i, err)
			}
			ev.Time = t.UTC()
		}
		events = append(events, ev)
	}
	return events, nil
}
