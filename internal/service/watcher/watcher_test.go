package watcher

import (
	"context"
	"os"
	"testing"
	"time"

	"TradeGP/internal/domain/models"
	"TradeGP/internal/repository"
	"TradeGP/internal/service/registry"
	"TradeGP/internal/services/features"
	"TradeGP/pkg/gp"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fittedBundle(t *testing.T, key models.ModelKey, samples int) *models.Bundle {
	t.Helper()
	X := make([][]float64, samples)
	y := make([]float64, samples)
	for i := range X {
		X[i] = []float64{float64(i), float64(i * i % 7)}
		y[i] = float64(i%5) - 2
	}
	pre, Xt, err := features.FitPreprocessor(X, features.DefaultVarianceThreshold)
	require.NoError(t, err)
	pnl := gp.New(gp.DefaultParams())
	require.NoError(t, pnl.Fit(Xt, y))
	return &models.Bundle{
		Key:          key,
		PnL:          pnl,
		Preprocessor: pre,
		FeatureNames: []string{"a", "b"},
		TrainedAt:    time.Now().UTC(),
		SampleCount:  samples,
	}
}

func TestModelWatcherReloadsChangedBundles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := repository.NewFileBundleStore(dir, 1, nil)
	reg := registry.New()
	w := New(dir, store, reg, 20*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	key, err := models.NewModelKey("MGC", "long")
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, fittedBundle(t, key, 12)))

	require.Eventually(t, func() bool {
		b, ok := reg.Get(key)
		return ok && b.SampleCount == 12
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, store.Save(ctx, fittedBundle(t, key, 15)))
	require.Eventually(t, func() bool {
		b, ok := reg.Get(key)
		return ok && b.SampleCount == 15
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.Remove(store.ModelsPath(key)))
	require.Eventually(t, func() bool {
		_, ok := reg.Get(key)
		return !ok
	}, 5*time.Second, 20*time.Millisecond)
}

func TestReloadKeepsServedBundleOnCorruptFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := repository.NewFileBundleStore(dir, 1, nil)
	reg := registry.New()
	w := New(dir, store, reg, time.Millisecond, nil)

	key, _ := models.NewModelKey("ES", "short")
	served := fittedBundle(t, key, 10)
	reg.Put(served)

	require.NoError(t, os.WriteFile(store.ModelsPath(key), []byte("{not json"), 0o644))
	w.Reload(context.Background(), key)

	got, ok := reg.Get(key)
	require.True(t, ok)
	assert.Same(t, served, got)
}
