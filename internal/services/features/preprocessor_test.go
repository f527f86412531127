package features

import (
	"encoding/json"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomMatrix(rows, cols int, seed int64) [][]float64 {
	rng := rand.New(rand.NewSource(seed))
	X := make([][]float64, rows)
	for i := range X {
		X[i] = make([]float64, cols)
		for j := range X[i] {
			X[i][j] = rng.NormFloat64() * float64(j+1)
		}
	}
	return X
}

func TestFitPreprocessorDropsConstantColumns(t *testing.T) {
	t.Parallel()

	X := randomMatrix(30, 6, 1)
	for _, row := range X {
		row[1] = 7
		row[4] = 0
	}

	p, out, err := FitPreprocessor(X, DefaultVarianceThreshold)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true, true, false, true}, p.Selector.Mask)
	assert.Equal(t, []int{1, 4}, p.RemovedIndices())
	assert.Equal(t, 6, p.InputWidth())
	assert.Equal(t, 4, p.OutputWidth())
	for _, row := range out {
		assert.Len(t, row, 4)
	}
	require.NoError(t, p.Validate())
}

func TestTransformWidthMatchesFit(t *testing.T) {
	t.Parallel()

	X := randomMatrix(40, DefaultExpectedWidth, 2)
	for _, row := range X {
		for j := 60; j < DefaultExpectedWidth; j++ {
			row[j] = 0
		}
	}
	p, out, err := FitPreprocessor(X, DefaultVarianceThreshold)
	require.NoError(t, err)

	for seed := int64(10); seed < 20; seed++ {
		probe := randomMatrix(1, DefaultExpectedWidth, seed)[0]
		got, err := p.Transform(probe)
		require.NoError(t, err)
		assert.Len(t, got, len(out[0]))
	}

	// Transforming a training row reproduces the fit-mode output.
	got, err := p.Transform(X[3])
	require.NoError(t, err)
	assert.InDeltaSlice(t, out[3], got, 1e-12)
}

func TestTransformRejectsWrongWidth(t *testing.T) {
	t.Parallel()

	p, _, err := FitPreprocessor(randomMatrix(10, 5, 3), DefaultVarianceThreshold)
	require.NoError(t, err)

	_, err = p.Transform(make([]float64, 4))
	assert.ErrorIs(t, err, ErrFeatureWidthMismatch)
	assert.Contains(t, err.Error(), "feature width mismatch")

	_, err = p.TransformAll([][]float64{make([]float64, 5), make([]float64, 6)})
	assert.ErrorIs(t, err, ErrFeatureWidthMismatch)
}

func TestRobustScalerMedianAndIQR(t *testing.T) {
	t.Parallel()

	X := [][]float64{{1, 5}, {2, 5}, {3, 5}, {4, 5}, {100, 6}}
	p, out, err := FitPreprocessor(X, DefaultVarianceThreshold)
	require.NoError(t, err)

	// column 0: median 3, q1 2, q3 4
	assert.InDelta(t, 3.0, p.Scaler.Center[0], 1e-12)
	assert.InDelta(t, 2.0, p.Scaler.Scale[0], 1e-12)
	assert.InDelta(t, -1.0, out[0][0], 1e-12)
	assert.InDelta(t, 48.5, out[4][0], 1e-12)

	// column 1: q1 == q3 so the scale falls back to 1
	assert.InDelta(t, 5.0, p.Scaler.Center[1], 1e-12)
	assert.Equal(t, 1.0, p.Scaler.Scale[1])
}

func TestRobustScalerFlatQuartiles(t *testing.T) {
	t.Parallel()

	X := [][]float64{{0.1}, {0.1}, {0.1}, {0.1}, {0.1}, {0.1}, {0.1}, {9.3}}
	p, out, err := FitPreprocessor(X, DefaultVarianceThreshold)
	require.NoError(t, err)
	require.Equal(t, 1, p.OutputWidth())

	assert.Equal(t, 1.0, p.Scaler.Scale[0])
	assert.InDelta(t, 0.0, out[0][0], 1e-12)
	assert.InDelta(t, 9.2, out[7][0], 1e-12)
}

func TestQuantileInterpolates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		sorted []float64
		q      float64
		want   float64
	}{
		{name: "lower quartile", sorted: []float64{1, 2, 3, 4}, q: 0.25, want: 1.75},
		{name: "median even", sorted: []float64{1, 2, 3, 4}, q: 0.5, want: 2.5},
		{name: "upper quartile", sorted: []float64{1, 2, 3, 4}, q: 0.75, want: 3.25},
		{name: "median odd", sorted: []float64{1, 2, 3, 4, 100}, q: 0.5, want: 3},
		{name: "exact rank", sorted: []float64{1, 2, 3, 4, 100}, q: 0.25, want: 2},
		{name: "minimum", sorted: []float64{-3, 7, 9}, q: 0, want: -3},
		{name: "maximum", sorted: []float64{-3, 7, 9}, q: 1, want: 9},
		{name: "single value", sorted: []float64{42}, q: 0.75, want: 42},
		{name: "uneven gaps", sorted: []float64{0, 10, 11, 50, 51, 52, 90}, q: 0.3, want: 10.8},
		{name: "empty", sorted: nil, q: 0.5, want: 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, quantile(tt.sorted, tt.q), 1e-12)
		})
	}
}

func TestFitPreprocessorAllConstant(t *testing.T) {
	t.Parallel()

	X := [][]float64{{1, 2}, {1, 2}, {1, 2}}
	p, out, err := FitPreprocessor(X, DefaultVarianceThreshold)
	require.NoError(t, err)
	assert.Zero(t, p.OutputWidth())
	for _, row := range out {
		assert.Empty(t, row)
	}
	got, err := p.Transform([]float64{9, 9})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFitPreprocessorErrors(t *testing.T) {
	t.Parallel()

	_, _, err := FitPreprocessor(nil, DefaultVarianceThreshold)
	assert.ErrorIs(t, err, ErrEmptyMatrix)

	_, _, err = FitPreprocessor([][]float64{{1, 2}, {3}}, DefaultVarianceThreshold)
	assert.ErrorIs(t, err, ErrRaggedMatrix)
}

func TestPreprocessorJSONRoundTrip(t *testing.T) {
	t.Parallel()

	p, _, err := FitPreprocessor(randomMatrix(20, 8, 4), DefaultVarianceThreshold)
	require.NoError(t, err)

	b, err := json.Marshal(p)
	require.NoError(t, err)
	var decoded Preprocessor
	require.NoError(t, json.Unmarshal(b, &decoded))

	assert.Equal(t, p.Selector.Mask, decoded.Selector.Mask)
	assert.Equal(t, p.Scaler, decoded.Scaler)
	require.NoError(t, decoded.Validate())

	decoded.Scaler.Center = decoded.Scaler.Center[:1]
	assert.ErrorIs(t, decoded.Validate(), ErrFeatureWidthMismatch)
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	s := Summarize([]float64{0, 0.005, 2, 4})
	assert.Equal(t, 4, s.Count)
	assert.Equal(t, 4, s.Unique)
	assert.Equal(t, 2, s.NearZero)
	assert.Equal(t, 4.0, s.Range())
	assert.InDelta(t, 1.50125, s.Mean, 1e-9)

	assert.True(t, AllFinite([]float64{1, 2}))
	assert.False(t, AllFinite([]float64{1, math.NaN()}))
}
