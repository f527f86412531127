package features

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitWidth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		in    []float64
		width int
		want  []float64
	}{
		{name: "pads trailing zeros", in: []float64{1, 2}, width: 4, want: []float64{1, 2, 0, 0}},
		{name: "truncates tail", in: []float64{1, 2, 3, 4}, width: 2, want: []float64{1, 2}},
		{name: "exact", in: []float64{1, 2}, width: 2, want: []float64{1, 2}},
		{name: "empty", in: nil, width: 3, want: []float64{0, 0, 0}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, FitWidth(tt.in, tt.width))
		})
	}
}

func TestFitWidthDoesNotAlias(t *testing.T) {
	t.Parallel()
	in := []float64{1, 2, 3}
	out := FitWidth(in, 3)
	out[0] = 9
	assert.Equal(t, 1.0, in[0])
}

func TestVectorFromMapNarrowAndWide(t *testing.T) {
	t.Parallel()

	narrow := map[string]float64{"b": 2, "a": 1, "c": 3}
	got := VectorFromMap(narrow, nil, DefaultExpectedWidth)
	require.Len(t, got, DefaultExpectedWidth)
	assert.Equal(t, []float64{1, 2, 3}, got[:3])
	for _, v := range got[3:] {
		assert.Zero(t, v)
	}

	wide := make(map[string]float64, 150)
	names := make([]string, 150)
	for i := range names {
		names[i] = PositionalName(i)
		wide[names[i]] = float64(i + 1)
	}
	got = VectorFromMap(wide, names, DefaultExpectedWidth)
	require.Len(t, got, DefaultExpectedWidth)
	for i, v := range got {
		assert.Equal(t, float64(i+1), v)
	}
}

func TestVectorFromMapUsesNameOrderAndZeroFills(t *testing.T) {
	t.Parallel()

	m := map[string]float64{"rsi": 55, "atr": 1.5}
	got := VectorFromMap(m, []string{"atr", "volume", "rsi"}, 4)
	assert.Equal(t, []float64{1.5, 0, 55, 0}, got)
}

func TestFitNames(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"a", "b", "feature_2"}, FitNames([]string{"a", "b"}, 3))
	assert.Equal(t, []string{"a"}, FitNames([]string{"a", "b"}, 1))
}

func TestInputDecodesBothShapes(t *testing.T) {
	t.Parallel()

	var in Input
	require.NoError(t, json.Unmarshal([]byte(`{"rsi": 40, "atr": 2}`), &in))
	assert.Equal(t, map[string]float64{"rsi": 40, "atr": 2}, in.Named)
	assert.Equal(t, []float64{2, 40, 0}, Vector(in, nil, 3))

	require.NoError(t, json.Unmarshal([]byte(`[3, 4]`), &in))
	assert.Nil(t, in.Named)
	assert.Equal(t, []float64{3, 4, 0}, Vector(in, []string{"ignored"}, 3))
	assert.Equal(t, map[string]float64{"feature_0": 3, "feature_1": 4}, in.Map())

	require.NoError(t, json.Unmarshal([]byte(`null`), &in))
	assert.True(t, in.IsEmpty())

	assert.Error(t, json.Unmarshal([]byte(`"x"`), &in))

	b, err := json.Marshal(FromValues([]float64{1}))
	require.NoError(t, err)
	assert.JSONEq(t, `[1]`, string(b))
}
