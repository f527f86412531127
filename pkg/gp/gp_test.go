package gp

import (
	"encoding/json"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sineData(n int, seed int64) ([][]float64, []float64) {
	rng := rand.New(rand.NewSource(seed))
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := range X {
		x := rng.Float64() * 6
		X[i] = []float64{x}
		y[i] = 10 * math.Sin(x)
	}
	return X, y
}

func TestGaussianProcessInterpolates(t *testing.T) {
	t.Parallel()

	for _, kernel := range []KernelKind{RBF, Matern32} {
		kernel := kernel
		t.Run(string(kernel), func(t *testing.T) {
			t.Parallel()

			X, y := sineData(60, 1)
			p := DefaultParams()
			p.Kernel = kernel
			p.LengthScale = 1
			p.Noise = 1e-4

			g := New(p)
			require.NoError(t, g.Fit(X, y))

			mean, std, err := g.Predict([][]float64{{1.5}, {3}})
			require.NoError(t, err)
			assert.InDelta(t, 10*math.Sin(1.5), mean[0], 0.5)
			assert.InDelta(t, 10*math.Sin(3), mean[1], 0.5)
			for _, s := range std {
				assert.GreaterOrEqual(t, s, 0.0)
			}
		})
	}
}

func TestGaussianProcessUncertaintyGrowsAwayFromData(t *testing.T) {
	t.Parallel()

	X, y := sineData(40, 2)
	g := New(DefaultParams())
	require.NoError(t, g.Fit(X, y))

	_, std, err := g.Predict([][]float64{{3}, {50}})
	require.NoError(t, err)
	assert.Less(t, std[0], std[1])
}

func TestGaussianProcessConstantTarget(t *testing.T) {
	t.Parallel()

	X := [][]float64{{0}, {1}, {2}, {3}}
	y := []float64{5, 5, 5, 5}
	g := New(DefaultParams())
	require.NoError(t, g.Fit(X, y))

	mean, _, err := g.Predict([][]float64{{1.5}})
	require.NoError(t, err)
	assert.InDelta(t, 5, mean[0], 1e-9)
}

func TestGaussianProcessZeroWidthInput(t *testing.T) {
	t.Parallel()

	// Every feature column may be removed by variance selection.
	X := [][]float64{{}, {}, {}}
	y := []float64{1, 2, 3}
	g := New(DefaultParams())
	require.NoError(t, g.Fit(X, y))

	mean, std, err := g.Predict([][]float64{{}})
	require.NoError(t, err)
	assert.InDelta(t, 2, mean[0], 0.2)
	assert.False(t, math.IsNaN(std[0]))
}

func TestGaussianProcessErrors(t *testing.T) {
	t.Parallel()

	_, _, err := New(DefaultParams()).Predict([][]float64{{1}})
	assert.ErrorIs(t, err, ErrNotFitted)

	assert.ErrorIs(t, New(DefaultParams()).Fit(nil, nil), ErrEmptyTrainingSet)
	assert.ErrorIs(t, New(DefaultParams()).Fit([][]float64{{1}, {2}}, []float64{1}), ErrDimensionMismatch)
	assert.ErrorIs(t, New(DefaultParams()).Fit([][]float64{{1}, {2, 3}}, []float64{1, 2}), ErrDimensionMismatch)

	bad := DefaultParams()
	bad.Kernel = "linear"
	assert.Error(t, New(bad).Fit([][]float64{{1}}, []float64{1}))

	g := New(DefaultParams())
	require.NoError(t, g.Fit([][]float64{{1, 2}, {2, 3}}, []float64{1, 2}))
	_, _, err = g.Predict([][]float64{{1}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestMedianPairwiseDistance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		X    [][]float64
		want float64
	}{
		{name: "single row", X: [][]float64{{1}}, want: 1},
		{name: "identical rows", X: [][]float64{{2, 2}, {2, 2}}, want: 1},
		{name: "three points", X: [][]float64{{0}, {1}, {3}}, want: 2},
		{name: "four points even count", X: [][]float64{{0}, {1}, {2}, {10}}, want: 5},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, MedianPairwiseDistance(tt.X), 1e-12)
		})
	}
}

func TestMultiOutputMatchesIndependentFits(t *testing.T) {
	t.Parallel()

	X, y := sineData(30, 3)
	Y := make([][]float64, len(y))
	for i, v := range y {
		Y[i] = []float64{v, -2 * v, 7}
	}

	m := NewMultiOutput(DefaultParams(), 2)
	require.NoError(t, m.Fit(X, Y))
	assert.Equal(t, 3, m.Outputs())

	probe := [][]float64{{0.5}, {4}}
	got, err := m.Predict(probe)
	require.NoError(t, err)
	require.Len(t, got, 2)

	p := DefaultParams()
	p.LengthScale = MedianPairwiseDistance(X)
	single := New(p)
	require.NoError(t, single.Fit(X, y))
	want, _, err := single.Predict(probe)
	require.NoError(t, err)

	for i := range probe {
		assert.InDelta(t, want[i], got[i][0], 1e-9)
		assert.InDelta(t, -2*want[i], got[i][1], 1e-6)
		assert.InDelta(t, 7, got[i][2], 1e-9)
	}
}

func TestMultiOutputRejectsRaggedTargets(t *testing.T) {
	t.Parallel()

	m := NewMultiOutput(DefaultParams(), 1)
	err := m.Fit([][]float64{{1}, {2}}, [][]float64{{1, 2}, {3}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = m.Predict([][]float64{{1}})
	assert.ErrorIs(t, err, ErrNotFitted)
}

func TestStateRoundTrip(t *testing.T) {
	t.Parallel()

	X, y := sineData(25, 4)
	g := New(DefaultParams())
	require.NoError(t, g.Fit(X, y))

	s, err := g.State()
	require.NoError(t, err)
	b, err := json.Marshal(s)
	require.NoError(t, err)

	var decoded State
	require.NoError(t, json.Unmarshal(b, &decoded))
	restored, err := Restore(decoded)
	require.NoError(t, err)
	assert.Equal(t, g.LengthScale(), restored.LengthScale())

	probe := [][]float64{{1}, {2.5}}
	m1, s1, err := g.Predict(probe)
	require.NoError(t, err)
	m2, s2, err := restored.Predict(probe)
	require.NoError(t, err)
	assert.InDeltaSlice(t, m1, m2, 1e-9)
	assert.InDeltaSlice(t, s1, s2, 1e-9)
}

func TestMultiStateRoundTrip(t *testing.T) {
	t.Parallel()

	X, y := sineData(20, 5)
	Y := make([][]float64, len(y))
	for i, v := range y {
		Y[i] = []float64{v, v + 1}
	}
	m := NewMultiOutput(DefaultParams(), 2)
	require.NoError(t, m.Fit(X, Y))

	s, err := m.State()
	require.NoError(t, err)
	restored, err := RestoreMulti(s, 2)
	require.NoError(t, err)

	probe := [][]float64{{2}}
	a, err := m.Predict(probe)
	require.NoError(t, err)
	b, err := restored.Predict(probe)
	require.NoError(t, err)
	assert.InDeltaSlice(t, a[0], b[0], 1e-9)

	_, err = Restore(State{Params: DefaultParams()})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}
