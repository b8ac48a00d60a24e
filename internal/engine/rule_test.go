package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/patex/internal/diag"
	"github.com/roach88/patex/internal/eval"
	"github.com/roach88/patex/internal/scalar"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func seqOf(vals ...scalar.Value) []eval.Event {
	out := make([]eval.Event, len(vals))
	for i, v := range vals {
		out[i] = eval.Event{Value: v, Time: t0.Add(time.Duration(i) * time.Second)}
	}
	return out
}

func intSeq(vals ...int64) []eval.Event {
	sv := make([]scalar.Value, len(vals))
	for i, v := range vals {
		sv[i] = scalar.Int(v)
	}
	return seqOf(sv...)
}

func feed(t *testing.T, r *CompiledRule, evs []eval.Event) []bool {
	t.Helper()
	out := make([]bool, len(evs))
	for i, ev := range evs {
		ok, err := r.Evaluate(ev)
		require.NoError(t, err, "event %d", i)
		out[i] = ok
	}
	return out
}

func TestCompile_RangeClosedness(t *testing.T) {
	tests := []struct {
		src      string
		lo, hi   bool
		interior bool
	}{
		{"[1,2]", true, true, true},
		{"(1,2)", false, false, true},
		{"[1,2)", true, false, true},
		{"(1,2]", false, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			r := MustCompile(tt.src)
			got := feed(t, r, seqOf(scalar.Int(1), scalar.Int(2), scalar.Float(1.5)))
			assert.Equal(t, []bool{tt.lo, tt.hi, tt.interior}, got)
		})
	}
}

func TestCompile_ArrowOrder(t *testing.T) {
	tests := []struct {
		seq  []int64
		want bool
	}{
		{[]int64{3, 5}, true},
		{[]int64{5, 3}, false},
		{[]int64{3, 3}, false},
	}
	for _, tt := range tests {
		r := MustCompile("{==3}->{==5}")
		got, err := r.EvaluateMany(intSeq(tt.seq...))
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "sequence %v", tt.seq)
	}
}

func TestCompile_MutationEquivalentToArrow(t *testing.T) {
	sequences := [][]int64{
		{1, 2, 3},
		{1, 3, 2},
		{1, 1, 2, 3},
		{1, 2, 4, 1, 2, 3},
		{3, 2, 1},
	}
	for _, seq := range sequences {
		m := MustCompile("<1,2,3>")
		a := MustCompile("{==1}->{==2}->{==3}")
		assert.Equal(t, feed(t, a, intSeq(seq...)), feed(t, m, intSeq(seq...)), "sequence %v", seq)
	}
}

func TestCompile_StrictVersusLooseCounting(t *testing.T) {
	seq := intSeq(5, 2, 6, 1, 7, 8, 9)

	strict := feed(t, MustCompile("count!(>4,3)"), seq)
	assert.Equal(t, []bool{false, false, false, false, false, false, true}, strict)

	loose := feed(t, MustCompile("count(>4,3)"), seq)
	assert.Equal(t, []bool{false, false, false, false, true, false, false}, loose)
}

func TestCompile_ChainGrammarRejection(t *testing.T) {
	tests := []struct {
		src  string
		code string
	}{
		{"filter(>3).sum()", diag.CodeBadLastStage},
		{"filter(>3).limit(2).window(5s).sum().meet(>1)", diag.CodeExclusiveStages},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			_, err := Compile(tt.src)
			require.Error(t, err)
			assert.True(t, diag.IsPhase(err, diag.PhaseChain))
			assert.True(t, diag.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestCompile_ErrorPhases(t *testing.T) {
	tests := []struct {
		src   string
		phase diag.Phase
	}{
		{"> 3 #", diag.PhaseLexical},
		{"> )", diag.PhaseSyntax},
		{"{{==1}->{==2}}->{==3}", diag.PhaseTranslation},
		{"let x = 1/0; >x", diag.PhaseCompute},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			_, err := Compile(tt.src)
			require.Error(t, err)
			de, ok := diag.As(err)
			require.True(t, ok, "want *diag.Error, got %T", err)
			assert.Equal(t, tt.phase, de.Phase)
			assert.True(t, de.Pos.IsValid(), "error should carry a position")
		})
	}
}

func TestCompile_MustCompilePanics(t *testing.T) {
	assert.Panics(t, func() { MustCompile("filter(") })
}

func TestCompile_NormalizesSource(t *testing.T) {
	r := MustCompile("== \"e\u0301\"")
	assert.Equal(t, "== \"\u00e9\"", r.Source())

	ok, err := r.Evaluate(eval.Event{Value: scalar.String("\u00e9")})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluateMany_ResetOnMatch(t *testing.T) {
	r := MustCompile("{==3}->{==5}")

	got, err := r.EvaluateMany(intSeq(3, 5))
	require.NoError(t, err)
	assert.True(t, got)

	got, err = r.EvaluateMany(intSeq(3, 5))
	require.NoError(t, err)
	assert.True(t, got, "second run starts from the post-compile state")

	// Auto reset inside one call.
	got, err = r.EvaluateMany(intSeq(3, 5, 3, 5))
	require.NoError(t, err)
	assert.True(t, got)
}

func TestReset_RestoresBaseline(t *testing.T) {
	r := MustCompile("filter(>0).take(3).sum().meet(>100)")
	baseline := r.Cells()

	feed(t, r, intSeq(1, 2))
	assert.NotEqual(t, baseline, r.Cells())

	r.Reset()
	assert.Equal(t, baseline, r.Cells())
}

func TestEvaluate_NumericPromotion(t *testing.T) {
	r := MustCompile("filter(>0).take(3).sum().meet(>0)")

	var out eval.Outcome
	for _, ev := range intSeq(10, 7, 10) {
		var err error
		out, err = r.EvaluateOutcome(ev)
		require.NoError(t, err)
	}
	require.Equal(t, eval.MatchWithValue, out.Status)
	assert.Equal(t, scalar.Int(27), out.Value)

	r = MustCompile("filter(>0).take(3).avg().meet(>0)")
	for _, ev := range intSeq(10, 7, 10) {
		var err error
		out, err = r.EvaluateOutcome(ev)
		require.NoError(t, err)
	}
	assert.Equal(t, scalar.Float(9), out.Value)
}

func TestEvaluate_MalformedEventLeavesStateUnchanged(t *testing.T) {
	r := MustCompile("count(>0, 3)")
	feed(t, r, intSeq(1))
	before := r.Cells()

	_, err := r.Evaluate(eval.Event{Value: scalar.String("abc"), Type: scalar.KindInt})
	require.Error(t, err)
	assert.True(t, diag.HasCode(err, diag.CodeBadEvent))
	assert.Equal(t, before, r.Cells())

	// The caller can retry with a corrected event.
	got := feed(t, r, intSeq(2, 3))
	assert.Equal(t, []bool{false, true}, got)
}

func TestEvaluate_DeclaredTypeCoercion(t *testing.T) {
	r := MustCompile(">12")
	ok, err := r.Evaluate(eval.Event{Value: scalar.String("12.5"), Type: scalar.KindFloat})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluate_ComputeFaultRollsBack(t *testing.T) {
	r := MustCompile(`count(=="x", 5) && slope(>1)`)
	before := r.Cells()

	_, err := r.Evaluate(eval.Event{Value: scalar.String("x"), Time: t0})
	require.Error(t, err)
	assert.True(t, diag.IsPhase(err, diag.PhaseCompute))
	assert.Equal(t, before, r.Cells(), "count written before the fault must be rolled back")
}

func TestCompileOptions(t *testing.T) {
	loose := MustCompile("{==1}->{==2}")
	strict := MustCompile("{==1}->{==2}", WithStrictSequences())
	seq := intSeq(1, 7, 2)
	assert.Equal(t, []bool{false, false, true}, feed(t, loose, seq))
	assert.Equal(t, []bool{false, false, false}, feed(t, strict, seq))

	// Unbounded buffer capped at two entries keeps only the latest values.
	capped := MustCompile("filter(>0).sum().meet(>=9)", WithMaxBuffer(2))
	assert.Equal(t, []bool{false, false, false, true}, feed(t, capped, intSeq(1, 1, 4, 5)))

	perMinute := MustCompile("slope(>=120)", WithDefaultSlopeUnit(time.Minute))
	assert.Equal(t, []bool{false, true}, feed(t, perMinute, intSeq(0, 2)))

	reg := eval.NewRegistry()
	require.NoError(t, reg.RegisterFilter("even", eval.FilterFunc(func(ev eval.Event, _ []scalar.Value) (bool, error) {
		n, ok := ev.Value.(scalar.Int)
		return ok && n%2 == 0, nil
	})))
	custom := MustCompile("even().count().meet(>=2)", WithRegistry(reg))
	assert.Equal(t, []bool{false, false, false, true}, feed(t, custom, intSeq(2, 3, 5, 4)))
}

func TestLockedRule_Concurrent(t *testing.T) {
	l := NewLockedRule(MustCompile("count(>0, 1000000)"))

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_, err := l.Evaluate(eval.Event{Value: scalar.Int(1)})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	cells := l.Cells()
	require.Len(t, cells, 1)
	assert.Equal(t, int64(800), cells[0].Value)

	l.Reset()
	assert.Equal(t, int64(0), l.Cells()[0].Value)

	ok, err := l.EvaluateMany([]eval.Event{{Value: scalar.Int(1)}})
	require.NoError(t, err)
	assert.False(t, ok)
}
