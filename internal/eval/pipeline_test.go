package eval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/patex/internal/diag"
	"github.com/roach88/patex/internal/env"
	"github.com/roach88/patex/internal/scalar"
)

func entries(vals ...scalar.Value) []env.Entry {
	out := make([]env.Entry, len(vals))
	for i, v := range vals {
		out[i] = env.Entry{Value: v, Hit: true}
	}
	return out
}

func TestAggregates_NumericPromotion(t *testing.T) {
	sum, _ := AggregateFor("sum", diag.Pos{})
	avg, _ := AggregateFor("avg", diag.Pos{})

	v, err := sum.Reduce(entries(scalar.Int(10), scalar.Int(7), scalar.Int(10)))
	require.NoError(t, err)
	assert.Equal(t, scalar.Int(27), v)

	v, err = sum.Reduce(entries(scalar.Int(10), scalar.Float(7.5), scalar.Int(10)))
	require.NoError(t, err)
	assert.Equal(t, scalar.Float(27.5), v)

	v, err = avg.Reduce(entries(scalar.Int(10), scalar.Int(7), scalar.Int(10)))
	require.NoError(t, err)
	assert.Equal(t, scalar.Float(9), v)
	assert.Equal(t, "9.0", v.String())
}

func TestAggregates_Others(t *testing.T) {
	buf := []env.Entry{
		{Value: scalar.Int(2), Hit: true},
		{Value: scalar.Int(100), Hit: false},
		{Value: scalar.Int(4), Hit: true},
		{Value: scalar.Int(4), Hit: true},
		{Value: scalar.Int(5), Hit: true},
	}

	count, _ := AggregateFor("count", diag.Pos{})
	v, err := count.Reduce(buf)
	require.NoError(t, err)
	assert.Equal(t, scalar.Int(4), v)

	rate, _ := AggregateFor("hitRate", diag.Pos{})
	v, err = rate.Reduce(buf)
	require.NoError(t, err)
	assert.Equal(t, scalar.Float(0.8), v)

	stddev, _ := AggregateFor("stddev", diag.Pos{})
	v, err = stddev.Reduce(entries(scalar.Int(2), scalar.Int(4), scalar.Int(4), scalar.Int(4),
		scalar.Int(5), scalar.Int(5), scalar.Int(7), scalar.Int(9)))
	require.NoError(t, err)
	f, _ := scalar.ToFloat(v)
	assert.InDelta(t, 2.138, f, 0.001)

	_, ok := AggregateFor("median", diag.Pos{})
	assert.False(t, ok)
}

func TestAggregates_Errors(t *testing.T) {
	stddev, _ := AggregateFor("stddev", diag.Pos{})
	_, err := stddev.Reduce(entries(scalar.Int(1)))
	require.Error(t, err)
	assert.True(t, diag.HasCode(err, diag.CodeInsufficientSamples))

	sum, _ := AggregateFor("sum", diag.Pos{})
	_, err = sum.Reduce(entries(scalar.Int(1), scalar.String("x")))
	require.Error(t, err)
	assert.True(t, diag.HasCode(err, diag.CodeNonNumericBuffer))
	assert.True(t, diag.IsPhase(err, diag.PhaseCompute))
}

func newPipeline(t *testing.T, e *env.Env, p *Pipeline) *Pipeline {
	t.Helper()
	p.Buffer = declare(t, e, "pipe1.buf", env.KindQueue)
	return p
}

func TestPipeline_FilterSumMeet(t *testing.T) {
	e := env.New()
	sum, _ := AggregateFor("sum", diag.Pos{})
	p := newPipeline(t, e, &Pipeline{
		Source: &FilterSource{Pred: test(">", 3)},
		Agg:    sum,
		Meet:   &CondMeet{Cond: cmp(">=", scalar.Int(10))},
	})

	got := feed(t, p, e, ints(5, 1, 4, 2, 6))
	assert.Equal(t, []bool{false, false, false, false, true}, got)
	assert.Empty(t, e.Queue(p.Buffer), "match clears the buffer")

	o, err := p.Eval(ev(scalar.Int(10), 0), e)
	require.NoError(t, err)
	assert.Equal(t, MatchWithValue, o.Status)
	assert.Equal(t, scalar.Int(10), o.Value)
}

func TestPipeline_WindowByTime(t *testing.T) {
	e := env.New()
	count, _ := AggregateFor("count", diag.Pos{})
	p := newPipeline(t, e, &Pipeline{
		Source: &FilterSource{Pred: test(">", 3)},
		Bound:  Bound{Kind: WindowTime, Duration: 2 * time.Second},
		Agg:    count,
		Meet:   &CondMeet{Cond: cmp(">=", scalar.Int(3))},
	})

	// hits at t=0 and t=1 age out before the third arrives at t=4
	got := feed(t, p, e, ints(5, 5, 0, 0, 5, 5, 5))
	assert.Equal(t, []bool{false, false, false, false, false, false, true}, got)
}

func TestPipeline_WindowByCount(t *testing.T) {
	e := env.New()
	avg, _ := AggregateFor("avg", diag.Pos{})
	p := newPipeline(t, e, &Pipeline{
		Source: PassSource{},
		Bound:  Bound{Kind: WindowCount, N: 2},
		Agg:    avg,
		Meet:   &CondMeet{Cond: cmp(">", scalar.Int(5))},
	})
	got := feed(t, p, e, ints(9, 1, 1, 9, 3))
	assert.Equal(t, []bool{true, false, false, false, true}, got)
}

func TestPipeline_LimitKeepsLastHits(t *testing.T) {
	e := env.New()
	rate, _ := AggregateFor("hitRate", diag.Pos{})
	p := newPipeline(t, e, &Pipeline{
		Source: &FilterSource{Pred: test(">", 3)},
		Bound:  Bound{Kind: LimitHits, N: 2},
		Agg:    rate,
		Meet:   &CondMeet{Cond: cmp("==", scalar.Int(1))},
	})
	// [5] rate 1 -> match and clear; then [0] 0; [0 5] .5; [0 5 5] -> trimmed to [5 5] = 1
	got := feed(t, p, e, ints(5, 0, 5, 5))
	assert.Equal(t, []bool{true, false, false, true}, got)
}

func TestPipeline_TakeIsTumbling(t *testing.T) {
	e := env.New()
	sum, _ := AggregateFor("sum", diag.Pos{})
	p := newPipeline(t, e, &Pipeline{
		Source: &FilterSource{Pred: test(">", 0)},
		Take:   2,
		Agg:    sum,
		Meet:   &CondMeet{Cond: cmp(">", scalar.Int(10))},
	})
	// batches: [1 2]=3, [20 0 1]=21
	got := feed(t, p, e, ints(1, 2, 20, 0, 1))
	assert.Equal(t, []bool{false, false, false, false, true}, got)
}

func TestPipeline_StddevNotReadyIsNoMatch(t *testing.T) {
	e := env.New()
	stddev, _ := AggregateFor("stddev", diag.Pos{})
	p := newPipeline(t, e, &Pipeline{
		Source: PassSource{},
		Agg:    stddev,
		Meet:   &CondMeet{Cond: cmp(">", scalar.Int(1))},
	})
	got := feed(t, p, e, ints(1, 5))
	assert.Equal(t, []bool{false, true}, got)
}

func TestPipeline_NonNumericPropagates(t *testing.T) {
	e := env.New()
	sum, _ := AggregateFor("sum", diag.Pos{})
	p := newPipeline(t, e, &Pipeline{
		Source: PassSource{},
		Agg:    sum,
		Meet:   &CondMeet{Cond: cmp(">", scalar.Int(1))},
	})
	_, err := p.Eval(ev(scalar.String("x"), 0), e)
	assert.True(t, diag.HasCode(err, diag.CodeNonNumericBuffer))
}
