package scalar

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_SortsKeys(t *testing.T) {
	out, err := MarshalCanonical(map[string]any{
		"zebra": Int(1),
		"apple": String("a"),
		"Apple": true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"Apple":true,"apple":"a","zebra":1}`, string(out))
}

func TestMarshalCanonical_Floats(t *testing.T) {
	out, err := MarshalCanonical([]any{Float(9), Float(2.5), 0.125})
	require.NoError(t, err)
	assert.Equal(t, `[9,2.5,0.125]`, string(out))

	_, err = MarshalCanonical(Float(math.NaN()))
	assert.Error(t, err)
}

func TestMarshalCanonical_NoHTMLEscape(t *testing.T) {
	out, err := MarshalCanonical(String("<a & b>"))
	require.NoError(t, err)
	assert.Equal(t, `"<a & b>"`, string(out))
}

func TestMarshalCanonical_NFC(t *testing.T) {
	// "e" + combining acute accent normalizes to U+00E9
	out, err := MarshalCanonical("e\u0301")
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(out))
}

func TestMarshalCanonical_Nested(t *testing.T) {
	out, err := MarshalCanonical(map[string]any{
		"values": []Value{Int(1), Null{}, Bool(false)},
		"flags":  []bool{true, false},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"flags":[true,false],"values":[1,null,false]}`, string(out))
}

func TestMarshalCanonical_Unsupported(t *testing.T) {
	_, err := MarshalCanonical(struct{}{})
	assert.Error(t, err)
}

func TestCompareKeysRFC8785(t *testing.T) {
	assert.Equal(t, -1, compareKeysRFC8785("A", "a"))
	assert.Equal(t, -1, compareKeysRFC8785("a", "aa"))
	assert.Equal(t, 0, compareKeysRFC8785("x", "x"))
}
