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

var base = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

func ev(v scalar.Value, at time.Duration) Event {
	return Event{Value: v, Type: v.Kind(), Time: base.Add(at)}
}

func ints(vals ...int64) []Event {
	out := make([]Event, len(vals))
	for i, v := range vals {
		out[i] = ev(scalar.Int(v), time.Duration(i)*time.Second)
	}
	return out
}

// feed evaluates events in order and returns the match flag per event.
func feed(t *testing.T, n Node, e *env.Env, events []Event) []bool {
	t.Helper()
	out := make([]bool, len(events))
	for i, event := range events {
		o, err := n.Eval(event, e)
		require.NoError(t, err, "event %d", i)
		out[i] = o.Matched()
	}
	return out
}

func cmp(op string, v scalar.Value) *Compare {
	return &Compare{Op: op, Operand: Const{V: v}}
}

func test(op string, n int64) Node {
	return &Test{Cond: cmp(op, scalar.Int(n))}
}

func declare(t *testing.T, e *env.Env, key env.Key, kind env.Kind) env.Key {
	t.Helper()
	require.NoError(t, e.Declare(key, kind, string(key), nil))
	return key
}

func TestNormalizeEvent(t *testing.T) {
	got, err := NormalizeEvent(Event{Value: scalar.String("12.5"), Type: scalar.KindFloat})
	require.NoError(t, err)
	assert.Equal(t, scalar.Float(12.5), got.Value)

	got, err = NormalizeEvent(Event{Value: scalar.Int(3)})
	require.NoError(t, err)
	assert.Equal(t, scalar.KindInt, got.Type)

	_, err = NormalizeEvent(Event{Value: scalar.String("warm"), Type: scalar.KindInt, Seq: 4})
	require.Error(t, err)
	assert.True(t, diag.HasCode(err, diag.CodeBadEvent))
	assert.True(t, diag.IsPhase(err, diag.PhaseRuntime))

	_, err = NormalizeEvent(Event{})
	assert.True(t, diag.HasCode(err, diag.CodeBadEvent))
}

func TestCompareAndRange(t *testing.T) {
	e := env.New()
	tests := []struct {
		name  string
		cond  Condition
		value scalar.Value
		want  bool
	}{
		{"gt int", cmp(">", scalar.Int(3)), scalar.Int(4), true},
		{"gt promotes", cmp(">", scalar.Int(3)), scalar.Float(3.5), true},
		{"eq promotes", cmp("==", scalar.Float(2)), scalar.Int(2), true},
		{"ne string", cmp("!=", scalar.String("on")), scalar.String("off"), true},
		{"ordering a string is no match", cmp(">", scalar.Int(3)), scalar.String("9"), false},
		{"closed lower", &Range{Lower: Const{scalar.Int(1)}, Upper: Const{scalar.Int(2)}, LowerInclusive: true, UpperInclusive: true}, scalar.Int(1), true},
		{"closed upper", &Range{Lower: Const{scalar.Int(1)}, Upper: Const{scalar.Int(2)}, LowerInclusive: true, UpperInclusive: true}, scalar.Int(2), true},
		{"open lower", &Range{Lower: Const{scalar.Int(1)}, Upper: Const{scalar.Int(2)}}, scalar.Int(1), false},
		{"open upper", &Range{Lower: Const{scalar.Int(1)}, Upper: Const{scalar.Int(2)}}, scalar.Int(2), false},
		{"half open inside", &Range{Lower: Const{scalar.Int(1)}, Upper: Const{scalar.Int(2)}, LowerInclusive: true}, scalar.Float(1.5), true},
		{"all of", &AllOf{cmp(">", scalar.Int(3)), cmp("<", scalar.Int(9))}, scalar.Int(5), true},
		{"any of", &AnyOf{cmp("<", scalar.Int(3)), cmp(">", scalar.Int(9))}, scalar.Int(5), false},
		{"none of", &NoneOf{cmp("==", scalar.Int(5))}, scalar.Int(5), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cond.Test(tt.value, Event{}, e)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestArithAndRelation(t *testing.T) {
	e := env.New()
	even := &Relation{
		Op:    "==",
		Left:  &Arith{Op: "%", Left: EventValue{}, Right: Const{scalar.Int(2)}},
		Right: Const{scalar.Int(0)},
	}
	assert.Equal(t, []bool{false, true, false, true}, feed(t, even, e, ints(1, 2, 3, 4)))

	div := &Relation{
		Op:    ">",
		Left:  &Arith{Op: "/", Left: Const{scalar.Int(10)}, Right: EventValue{}},
		Right: Const{scalar.Int(1)},
	}
	_, err := div.Eval(ev(scalar.Int(0), 0), e)
	require.Error(t, err)
	assert.True(t, diag.HasCode(err, diag.CodeArithmetic))

	neg := &Relation{Op: "<", Left: &Neg{X: EventValue{}}, Right: Const{scalar.Int(0)}}
	assert.Equal(t, []bool{true}, feed(t, neg, e, ints(1)))
}

func TestLogic_EvaluatesBothSides(t *testing.T) {
	e := env.New()
	counter := declare(t, e, "count1.n", env.KindCounter)
	count := &Count{Pred: test(">", 0), N: 3, Counter: counter}
	or := &Logic{Op: "||", Left: test(">", 100), Right: count}
	and := &Logic{Op: "&&", Left: &Not{N: test("<", 0)}, Right: or}

	assert.Equal(t, []bool{false, false, true}, feed(t, and, e, ints(1, 2, 3)))
	assert.Equal(t, []env.Key{"count1.n"}, and.Cells())
}

func TestTruthy(t *testing.T) {
	e := env.New()
	n := &Truthy{X: EventValue{}}
	o, err := n.Eval(ev(scalar.Bool(true), 0), e)
	require.NoError(t, err)
	assert.True(t, o.Matched())
	o, err = n.Eval(ev(scalar.Bool(false), 0), e)
	require.NoError(t, err)
	assert.False(t, o.Matched())
}

func newArrow(t *testing.T, e *env.Env, strict bool, vals ...int64) *Arrow {
	t.Helper()
	a := &Arrow{Index: declare(t, e, "arrow1.index", env.KindCounter), Strict: strict}
	for _, v := range vals {
		a.Stages = append(a.Stages, test("==", v))
	}
	return a
}

func TestArrow_OrderDependence(t *testing.T) {
	tests := []struct {
		name   string
		events []Event
		want   []bool
	}{
		{"in order", ints(3, 5), []bool{false, true}},
		{"reversed", ints(5, 3), []bool{false, false}},
		{"repeated first", ints(3, 3), []bool{false, false}},
		{"resync keeps the event", ints(3, 3, 5), []bool{false, false, true}},
		{"noise between stages", ints(3, 7, 5), []bool{false, false, true}},
		{"restarts after match", ints(3, 5, 3, 5), []bool{false, true, false, true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := env.New()
			a := newArrow(t, e, false, 3, 5)
			assert.Equal(t, tt.want, feed(t, a, e, tt.events))
		})
	}
}

func TestArrow_Strict(t *testing.T) {
	e := env.New()
	a := newArrow(t, e, true, 1, 2, 3)
	assert.Equal(t, []bool{false, false, false, false, false, false},
		feed(t, a, e, ints(1, 2, 9, 3, 2, 3)))
	assert.Equal(t, int64(0), e.Counter(a.Index))

	e = env.New()
	a = newArrow(t, e, false, 1, 2, 3)
	assert.Equal(t, []bool{false, false, false, true},
		feed(t, a, e, ints(1, 2, 9, 3)))
}

func TestCount_StrictVersusTotal(t *testing.T) {
	events := ints(5, 2, 6, 1, 7, 8, 9)

	e := env.New()
	strict := &Count{Pred: test(">", 4), N: 3, Strict: true, Counter: declare(t, e, "count1.n", env.KindCounter)}
	assert.Equal(t, []bool{false, false, false, false, false, false, true}, feed(t, strict, e, events))

	e = env.New()
	total := &Count{Pred: test(">", 4), N: 3, Counter: declare(t, e, "count1.n", env.KindCounter)}
	assert.Equal(t, []bool{false, false, false, false, true, false, false}, feed(t, total, e, events))
}

func TestKeep_Duration(t *testing.T) {
	e := env.New()
	k := &Keep{
		Pred:     test(">", 10),
		Duration: 3 * time.Second,
		Since:    declare(t, e, "keep1.since", env.KindTime),
		Run:      declare(t, e, "keep1.run", env.KindCounter),
	}
	// one event per second
	got := feed(t, k, e, ints(11, 12, 13, 14, 15, 1, 11, 12))
	assert.Equal(t, []bool{false, false, false, true, true, false, false, false}, got)
}

func TestKeep_Events(t *testing.T) {
	e := env.New()
	k := &Keep{
		Pred:   test(">", 10),
		Events: 2,
		Since:  declare(t, e, "keep1.since", env.KindTime),
		Run:    declare(t, e, "keep1.run", env.KindCounter),
	}
	assert.Equal(t, []bool{false, true, true, false, false}, feed(t, k, e, ints(11, 12, 13, 0, 11)))
}

func TestDelay(t *testing.T) {
	e := env.New()
	d := &Delay{Pred: test("==", 1), Duration: 2 * time.Second, Start: declare(t, e, "delay1.start", env.KindTime)}
	// t=0 starts the clock, misses do not restart it, t=2 matches and clears.
	got := feed(t, d, e, ints(1, 0, 1, 1, 1, 1))
	assert.Equal(t, []bool{false, false, true, false, false, true}, got)
}

func TestSlope(t *testing.T) {
	e := env.New()
	s := &Slope{
		Cond:     cmp(">", scalar.Int(1)),
		Unit:     time.Second,
		Last:     declare(t, e, "slope1.last", env.KindScalar),
		LastTime: declare(t, e, "slope1.time", env.KindTime),
	}
	events := []Event{
		ev(scalar.Int(0), 0),
		ev(scalar.Int(1), time.Second),      // slope 1
		ev(scalar.Int(5), 2*time.Second),    // slope 4
		ev(scalar.Int(9), 2*time.Second),    // no elapsed time
		ev(scalar.Float(10), 4*time.Second), // slope 0.5
	}
	assert.Equal(t, []bool{false, false, true, false, false}, feed(t, s, e, events))

	_, err := s.Eval(ev(scalar.String("x"), 5*time.Second), e)
	assert.True(t, diag.HasCode(err, diag.CodeNonNumericBuffer))
}

func TestSlope_Unit(t *testing.T) {
	e := env.New()
	s := &Slope{
		Cond:     cmp(">=", scalar.Int(60)),
		Unit:     time.Minute,
		Last:     declare(t, e, "slope1.last", env.KindScalar),
		LastTime: declare(t, e, "slope1.time", env.KindTime),
	}
	assert.Equal(t, []bool{false, true}, feed(t, s, e, ints(0, 2)))
}
