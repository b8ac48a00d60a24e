package ruleset

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/patex/internal/diag"
	"github.com/roach88/patex/internal/eval"
	"github.com/roach88/patex/internal/scalar"
)

func writeCUE(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func loadErrorCode(t *testing.T, err error) string {
	t.Helper()
	le, ok := err.(*LoadError)
	require.True(t, ok, "want *LoadError, got %T: %v", err, err)
	return le.Code
}

func TestLoad_Directory(t *testing.T) {
	dir := t.TempDir()
	writeCUE(t, dir, "temps.cue", `
rule: high_temp: {
	source:      ">80"
	description: "temperature above 80"
}
`)
	writeCUE(t, dir, "bursts.cue", `
rule: burst: {
	source:     "filter(>50).window(10s).count().meet(>=3)"
	strict:     true
	max_buffer: 100
	slope_unit: "1m"
}
`)

	set, errs := Load(dir, LoadModeCollectAll)
	require.Empty(t, errs)
	require.NotNil(t, set)
	assert.Equal(t, 2, set.FileCount)
	require.Len(t, set.Rules, 2)

	// Sorted by name.
	assert.Equal(t, "burst", set.Rules[0].Name)
	assert.True(t, set.Rules[0].Strict)
	assert.Equal(t, 100, set.Rules[0].MaxBuffer)
	assert.Equal(t, time.Minute, set.Rules[0].SlopeUnit)

	high, ok := set.Lookup("high_temp")
	require.True(t, ok)
	assert.Equal(t, ">80", high.Source)
	assert.Equal(t, "temperature above 80", high.Description)
	assert.True(t, high.Pos.IsValid())

	_, ok = set.Lookup("missing")
	assert.False(t, ok)
}

func TestLoad_DirectoryErrors(t *testing.T) {
	_, errs := Load(filepath.Join(t.TempDir(), "nope"), LoadModeFailFast)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrCodeNotFound, loadErrorCode(t, errs[0]))

	empty := t.TempDir()
	_, errs = Load(empty, LoadModeFailFast)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrCodeNoFiles, loadErrorCode(t, errs[0]))

	file := filepath.Join(empty, "x.cue")
	writeCUE(t, empty, "x.cue", `rule: a: source: ">1"`)
	_, errs = Load(file, LoadModeFailFast)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrCodeNotFound, loadErrorCode(t, errs[0]))
}

func TestLoadString_SchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code string
	}{
		{"missing source", `rule: a: description: "x"`, ErrCodeSchema},
		{"empty source", `rule: a: source: ""`, ErrCodeSchema},
		{"unknown field", `rule: a: { source: ">1", sorce: ">2" }`, ErrCodeSchema},
		{"wrong type", `rule: a: { source: ">1", strict: "yes" }`, ErrCodeSchema},
		{"bad max buffer", `rule: a: { source: ">1", max_buffer: 0 }`, ErrCodeSchema},
		{"bad slope unit", `rule: a: { source: ">1", slope_unit: "fast" }`, ErrCodeBadOption},
		{"no rules", `other: 1`, ErrCodeNoRules},
		{"empty rules", `rule: {}`, ErrCodeNoRules},
		{"invalid cue", `rule: a: {`, ErrCodeBuildFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errs := LoadString("rules.cue", tt.src, LoadModeCollectAll)
			require.NotEmpty(t, errs)
			assert.Equal(t, tt.code, loadErrorCode(t, errs[0]), "%v", errs[0])
		})
	}
}

func TestLoadString_CollectAllVersusFailFast(t *testing.T) {
	src := `
rule: a: description: "no source"
rule: b: { source: ">1", slope_unit: "nope" }
rule: c: source: ">2"
`
	set, errs := LoadString("rules.cue", src, LoadModeCollectAll)
	assert.Len(t, errs, 2)
	require.Len(t, set.Rules, 1)
	assert.Equal(t, "c", set.Rules[0].Name)

	_, errs = LoadString("rules.cue", src, LoadModeFailFast)
	assert.Len(t, errs, 1)
}

func TestRuleCompile_ErrorCarriesBothPositions(t *testing.T) {
	set, errs := LoadString("rules.cue", "rule: bad: source: \"filter(>3).sum()\"\n", LoadModeFailFast)
	require.Empty(t, errs)

	_, err := set.Rules[0].Compile(nil)
	require.Error(t, err)

	le, ok := err.(*LoadError)
	require.True(t, ok)
	assert.Equal(t, ErrCodeCompile, le.Code)
	assert.Equal(t, "bad", le.Rule)
	assert.Equal(t, 1, le.Pos.Line())
	assert.Contains(t, le.Error(), "rules.cue:1:")
	assert.Contains(t, le.Error(), "chain error at 1:12")

	// The diag error stays reachable.
	assert.True(t, diag.IsPhase(err, diag.PhaseChain))
}

func TestSetCompile(t *testing.T) {
	src := `
rule: pair: source: "<1,2>"
rule: strict_pair: { source: "{==1}->{==2}", strict: true }
rule: broken: source: "count(>1)"
`
	set, errs := LoadString("rules.cue", src, LoadModeCollectAll)
	require.Empty(t, errs)

	rules, errs := set.Compile(nil, LoadModeCollectAll)
	require.Len(t, errs, 1)
	assert.True(t, diag.HasCode(errs[0], diag.CodeArity))
	require.Len(t, rules, 2)
	assert.Equal(t, "pair", rules[0].Name)
	assert.Equal(t, "strict_pair", rules[1].Name)

	seq := []int64{1, 7, 2}
	var loose, strict bool
	for _, v := range seq {
		ev := eval.Event{Value: scalar.Int(v)}
		var err error
		loose, err = rules[0].Rule.Evaluate(ev)
		require.NoError(t, err)
		strict, err = rules[1].Rule.Evaluate(ev)
		require.NoError(t, err)
	}
	assert.True(t, loose)
	assert.False(t, strict, "strict option from CUE must reach the compiler")

	_, errs = set.Compile(nil, LoadModeFailFast)
	assert.Len(t, errs, 1)
}

func TestRuleOptions_Registry(t *testing.T) {
	reg := eval.NewRegistry()
	require.NoError(t, reg.RegisterAggregate("maxOf", eval.AggregateFunc(func(values, _ []scalar.Value) (scalar.Value, error) {
		var best scalar.Value = scalar.Int(0)
		for _, v := range values {
			if c, err := scalar.Compare(v, best); err == nil && c > 0 {
				best = v
			}
		}
		return best, nil
	})))

	set, errs := LoadString("rules.cue", `rule: peak: source: "filter(>0).maxOf().meet(>=10)"`, LoadModeFailFast)
	require.Empty(t, errs)

	_, err := set.Rules[0].Compile(nil)
	require.Error(t, err, "custom aggregate is unknown without the registry")

	r, err := set.Rules[0].Compile(reg)
	require.NoError(t, err)
	ok, err := r.Evaluate(eval.Event{Value: scalar.Int(12)})
	require.NoError(t, err)
	assert.True(t, ok)
}
