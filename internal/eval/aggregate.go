package eval

import (
	"math"

	"github.com/roach88/patex/internal/diag"
	"github.com/roach88/patex/internal/env"
	"github.com/roach88/patex/internal/scalar"
)

// errNotReady marks an aggregate that cannot produce a value yet, such as
// the average of an empty buffer. The pipeline treats it as no match.
type errNotReady struct{ cause error }

func (e errNotReady) Error() string {
	if e.cause == nil {
		return "aggregate not ready"
	}
	return e.cause.Error()
}

func (e errNotReady) Unwrap() error { return e.cause }

// Aggregate reduces the buffered entries of a pipeline to one value.
type Aggregate interface {
	Reduce(entries []env.Entry) (scalar.Value, error)
}

// AggregateFor returns the built-in aggregate for a stage name.
func AggregateFor(name string, pos diag.Pos) (Aggregate, bool) {
	switch name {
	case "sum":
		return sumAgg{pos}, true
	case "avg":
		return avgAgg{pos}, true
	case "count":
		return countAgg{}, true
	case "stddev":
		return stddevAgg{pos}, true
	case "hitRate":
		return hitRateAgg{}, true
	}
	return nil, false
}

func hitValues(entries []env.Entry) []scalar.Value {
	var out []scalar.Value
	for _, en := range entries {
		if en.Hit {
			out = append(out, en.Value)
		}
	}
	return out
}

// numbers converts hit values to floats, reporting whether all were Int.
func numbers(pos diag.Pos, stage string, vals []scalar.Value) ([]float64, bool, error) {
	out := make([]float64, len(vals))
	allInt := true
	for i, v := range vals {
		f, ok := scalar.ToFloat(v)
		if !ok {
			return nil, false, computeError(pos, diag.CodeNonNumericBuffer,
				"%s over non-numeric value %q (%s)", stage, v.String(), v.Kind())
		}
		if v.Kind() != scalar.KindInt {
			allInt = false
		}
		out[i] = f
	}
	return out, allInt, nil
}

type sumAgg struct{ pos diag.Pos }

// Reduce sums the hit values. The result is an Int when every value is an
// Int and a Float otherwise.
func (a sumAgg) Reduce(entries []env.Entry) (scalar.Value, error) {
	vals := hitValues(entries)
	fs, allInt, err := numbers(a.pos, "sum", vals)
	if err != nil {
		return nil, err
	}
	if allInt {
		var total int64
		for _, v := range vals {
			total += int64(v.(scalar.Int))
		}
		return scalar.Int(total), nil
	}
	var total float64
	for _, f := range fs {
		total += f
	}
	return scalar.Float(total), nil
}

type avgAgg struct{ pos diag.Pos }

func (a avgAgg) Reduce(entries []env.Entry) (scalar.Value, error) {
	fs, _, err := numbers(a.pos, "avg", hitValues(entries))
	if err != nil {
		return nil, err
	}
	if len(fs) == 0 {
		return nil, errNotReady{cause: computeError(a.pos, diag.CodeInsufficientSamples, "avg of no values")}
	}
	return scalar.Float(mean(fs)), nil
}

type countAgg struct{}

func (countAgg) Reduce(entries []env.Entry) (scalar.Value, error) {
	var n int64
	for _, en := range entries {
		if en.Hit {
			n++
		}
	}
	return scalar.Int(n), nil
}

type stddevAgg struct{ pos diag.Pos }

// Reduce computes the sample standard deviation. Fewer than two values is
// an insufficient-samples compute error.
func (a stddevAgg) Reduce(entries []env.Entry) (scalar.Value, error) {
	fs, _, err := numbers(a.pos, "stddev", hitValues(entries))
	if err != nil {
		return nil, err
	}
	if len(fs) < 2 {
		return nil, errNotReady{cause: computeError(a.pos, diag.CodeInsufficientSamples,
			"stddev needs at least 2 values, have %d", len(fs))}
	}
	m := mean(fs)
	var sq float64
	for _, f := range fs {
		sq += (f - m) * (f - m)
	}
	return scalar.Float(math.Sqrt(sq / float64(len(fs)-1))), nil
}

type hitRateAgg struct{}

func (hitRateAgg) Reduce(entries []env.Entry) (scalar.Value, error) {
	if len(entries) == 0 {
		return nil, errNotReady{}
	}
	var hits int
	for _, en := range entries {
		if en.Hit {
			hits++
		}
	}
	return scalar.Float(float64(hits) / float64(len(entries))), nil
}

// customAgg adapts a registered Aggregator.
type customAgg struct {
	name string
	agg  Aggregator
	args []scalar.Value
	pos  diag.Pos
}

func (a customAgg) Reduce(entries []env.Entry) (scalar.Value, error) {
	v, err := a.agg.Aggregate(hitValues(entries), a.args)
	if err != nil {
		return nil, diag.Wrap(diag.PhaseCompute, diag.CodeArithmetic, a.pos, err, "aggregate %s", a.name)
	}
	if v == nil {
		return nil, errNotReady{}
	}
	return v, nil
}

func mean(fs []float64) float64 {
	var total float64
	for _, f := range fs {
		total += f
	}
	return total / float64(len(fs))
}
