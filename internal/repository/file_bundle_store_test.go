package repository

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"TradeGP/internal/domain/models"
	"TradeGP/internal/services/features"
	"TradeGP/pkg/gp"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sampleMatrix returns n rows of width 6. Column 3 is constant so the
// selector drops it.
func sampleMatrix(n int) ([][]float64, []float64) {
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		f := float64(i)
		X[i] = []float64{math.Sin(f / 3), f / float64(n), math.Cos(f / 5), 7, float64(i % 4), f * f / 100}
		y[i] = 20*math.Sin(f/3) + f/2 - 5
	}
	return X, y
}

func testBundle(t *testing.T, key models.ModelKey) *models.Bundle {
	t.Helper()
	X, y := sampleMatrix(30)
	pre, Xt, err := features.FitPreprocessor(X, features.DefaultVarianceThreshold)
	require.NoError(t, err)

	pnl := gp.New(gp.DefaultParams())
	require.NoError(t, pnl.Fit(Xt, y))

	risk := gp.NewMultiOutput(gp.DefaultParams(), 2)
	Y := make([][]float64, len(y))
	for i := range Y {
		Y[i] = []float64{10 + float64(i%3), 18 - float64(i%2)}
	}
	require.NoError(t, risk.Fit(Xt, Y))

	names := []string{"a", "b", "c", "d", "e", "f"}
	return &models.Bundle{
		Key:               key,
		PnL:               pnl,
		Risk:              risk,
		Preprocessor:      pre,
		InputFeatureNames: names,
		FeatureNames:      []string{"a", "b", "c", "e", "f"},
		RemovedFeatures:   pre.RemovedIndices(),
		TrainedAt:         time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		SampleCount:       len(y),
		Metrics:           models.TrainingMetrics{TestMSE: 1.5, HoldoutSize: 6},
		Info:              models.TrainingInfo{NSamples: len(y), NFeaturesOriginal: 6, NFeaturesUsed: 5},
	}
}

func TestFileBundleStoreRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewFileBundleStore(t.TempDir(), 2, nil)
	key, err := models.NewModelKey("MGC", "long")
	require.NoError(t, err)
	orig := testBundle(t, key)

	require.NoError(t, store.Save(ctx, orig))

	got, err := store.Load(ctx, key)
	require.NoError(t, err)

	assert.Equal(t, key, got.Key)
	assert.Equal(t, orig.Preprocessor.Selector.Mask, got.Preprocessor.Selector.Mask)
	assert.Equal(t, orig.Preprocessor.Scaler, got.Preprocessor.Scaler)
	assert.Equal(t, 30, got.SampleCount)
	assert.Equal(t, []int{3}, got.RemovedFeatures)
	assert.Equal(t, orig.InputFeatureNames, got.InputFeatureNames)
	assert.True(t, orig.TrainedAt.Equal(got.TrainedAt))
	assert.Equal(t, orig.Metrics, got.Metrics)
	assert.Nil(t, got.Trajectory)
	require.NotNil(t, got.Risk)

	X, _ := sampleMatrix(30)
	probe, err := orig.Preprocessor.TransformAll(X[:5])
	require.NoError(t, err)
	wantMean, wantStd, err := orig.PnL.Predict(probe)
	require.NoError(t, err)
	gotMean, gotStd, err := got.PnL.Predict(probe)
	require.NoError(t, err)
	assert.InDeltaSlice(t, wantMean, gotMean, 1e-9)
	assert.InDeltaSlice(t, wantStd, gotStd, 1e-9)

	scaler, err := store.LoadScaler(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, orig.Preprocessor.Scaler, scaler.Scaler)

	keys, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.ModelKey{key}, keys)

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 2, "only the models and scaler files remain")
}

func TestFileBundleStoreLoadMissing(t *testing.T) {
	t.Parallel()

	store := NewFileBundleStore(filepath.Join(t.TempDir(), "absent"), 1, nil)
	key, _ := models.NewModelKey("ES", "short")

	_, err := store.Load(context.Background(), key)
	assert.ErrorIs(t, err, models.ErrBundleNotFound)

	keys, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestFileBundleStoreSaveFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	store := NewFileBundleStore(filepath.Join(blocker, "models"), 1, nil)

	key, _ := models.NewModelKey("MGC", "long")
	err := store.Save(context.Background(), testBundle(t, key))
	assert.ErrorIs(t, err, models.ErrPersistence)
}

func TestKeyFromModelsFile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		file string
		want string
		ok   bool
	}{
		{name: "plain", file: "MGC_long_models.json", want: "MGC_long", ok: true},
		{name: "underscored instrument", file: "/m/NQ_MINI_short_models.json", want: "NQ_MINI_short", ok: true},
		{name: "scaler", file: "MGC_long_scaler.json"},
		{name: "temp file", file: ".MGC_long_models.json.123.tmp"},
		{name: "bad direction", file: "MGC_up_models.json"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			key, ok := KeyFromModelsFile(tt.file)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, key.String())
			}
		})
	}
}

func TestDecodeLegacyTrainerBundle(t *testing.T) {
	t.Parallel()

	key, _ := models.NewModelKey("MGC", "long")
	b := testBundle(t, key)
	pnlState, err := b.PnL.(*gp.GaussianProcess).State()
	require.NoError(t, err)
	riskState, err := b.Risk.(*gp.MultiOutput).State()
	require.NoError(t, err)

	legacy := map[string]interface{}{
		"pnl_gp":           pnlState,
		"trajectory_gp":    nil,
		"risk_gp":          riskState,
		"feature_selector": b.Preprocessor.Selector,
		"scaler":           b.Preprocessor.Scaler,
		"feature_names":    b.FeatureNames,
		"training_info":    b.Info,
		"timestamp":        "2025-11-02T08:30:00",
	}
	raw, err := json.Marshal(legacy)
	require.NoError(t, err)

	got, err := decodeBundle(raw, key, 1)
	require.NoError(t, err)
	assert.Equal(t, key, got.Key)
	assert.Equal(t, 30, got.SampleCount)
	assert.Equal(t, []int{3}, got.RemovedFeatures)
	assert.Equal(t, b.Preprocessor.Selector.Mask, got.Preprocessor.Selector.Mask)
	assert.True(t, time.Date(2025, 11, 2, 8, 30, 0, 0, time.UTC).Equal(got.TrainedAt))
	assert.Nil(t, got.Trajectory)
	assert.NotNil(t, got.Risk)
	// Legacy bundles only know the retained names.
	assert.Equal(t, b.FeatureNames, got.NameOrder())
}

func TestDecodeServiceSnapshot(t *testing.T) {
	t.Parallel()

	key, _ := models.NewModelKey("MGC", "short")

	t.Run("untrained", func(t *testing.T) {
		t.Parallel()
		store := NewFileBundleStore(t.TempDir(), 1, nil)
		require.NoError(t, os.WriteFile(store.ModelsPath(key), []byte(`{"trained":false,"models":{}}`), 0o644))
		_, err := store.Load(context.Background(), key)
		assert.ErrorIs(t, err, models.ErrBundleNotFound)
	})

	t.Run("trained", func(t *testing.T) {
		t.Parallel()
		b := testBundle(t, key)
		pnlState, err := b.PnL.(*gp.GaussianProcess).State()
		require.NoError(t, err)
		doc := map[string]interface{}{
			"trained":       true,
			"models":        map[string]interface{}{"pnl": pnlState},
			"selector":      b.Preprocessor.Selector,
			"scaler":        b.Preprocessor.Scaler,
			"feature_names": b.FeatureNames,
			"sample_count":  42,
			"last_updated":  "2026-01-05T10:00:00Z",
		}
		raw, err := json.Marshal(doc)
		require.NoError(t, err)

		got, err := decodeBundle(raw, key, 1)
		require.NoError(t, err)
		assert.Equal(t, 42, got.SampleCount)
		assert.Equal(t, 5, got.Info.NFeaturesUsed)
		assert.Equal(t, 6, got.Info.NFeaturesOriginal)
		assert.Nil(t, got.Risk)
	})
}

func TestDecodeRejectsNewerSchema(t *testing.T) {
	t.Parallel()

	_, err := decodeBundle([]byte(`{"schema_version": 9}`), models.ModelKey{}, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer than supported")
}
