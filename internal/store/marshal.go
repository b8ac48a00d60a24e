package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/roach88/patex/internal/scalar"
)

// marshalValue converts a scalar to canonical JSON TEXT plus its kind name.
// A nil value is stored as JSON null.
func marshalValue(v scalar.Value) (string, string, error) {
	if v == nil {
		v = scalar.Null{}
	}
	data, err := scalar.MarshalCanonical(v)
	if err != nil {
		return "", "", fmt.Errorf("marshal value: %w", err)
	}
	return string(data), v.Kind().String(), nil
}

// unmarshalValue parses canonical JSON TEXT back to a scalar of the stored
// kind. Numbers are decoded via json.Number so integers above 2^53 keep
// their precision.
func unmarshalValue(data, kindName string) (scalar.Value, error) {
	kind, err := scalar.ParseKind(kindName)
	if err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}

	switch val := raw.(type) {
	case nil:
		return scalar.Null{}, nil
	case json.Number:
		switch kind {
		case scalar.KindInt:
			n, err := strconv.ParseInt(val.String(), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("unmarshal int %s: %w", val, err)
			}
			return scalar.Int(n), nil
		case scalar.KindFloat:
			f, err := strconv.ParseFloat(val.String(), 64)
			if err != nil {
				return nil, fmt.Errorf("unmarshal float %s: %w", val, err)
			}
			return scalar.Float(f), nil
		default:
			return nil, fmt.Errorf("unmarshal value: number %s stored as %s", val, kind)
		}
	case string:
		return scalar.String(val), nil
	case bool:
		return scalar.Bool(val), nil
	default:
		return nil, fmt.Errorf("unmarshal value: unsupported JSON %T", raw)
	}
}

// unixNanos stores the zero time as 0.
func unixNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func scalarKind(name string) (scalar.Kind, error) {
	k, err := scalar.ParseKind(name)
	if err != nil {
		return scalar.KindNull, fmt.Errorf("declared type: %w", err)
	}
	return k, nil
}
