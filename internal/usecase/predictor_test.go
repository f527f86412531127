package usecase

import (
	"context"
	"math"
	"testing"
	"time"

	"TradeGP/internal/domain/models"
	"TradeGP/internal/service/cache"
	"TradeGP/internal/service/registry"
	"TradeGP/internal/services/features"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trainedRegistry(t *testing.T, n int, withTrajectory, withRisk bool) (*registry.Registry, *models.TrainingDataset) {
	t.Helper()
	cfg := testTrainerConfig()
	cfg.HoldoutFraction = 0
	reg := registry.New()
	ds := synthDataset(mustKey(t, "MGC", "long"), n, 21, withTrajectory, withRisk)
	res := NewTrainer(cfg, newMemStore(), reg, nil, nil).Train(context.Background(), ds)
	require.NoError(t, res.Err)
	return reg, ds
}

func namedRow(ds *models.TrainingDataset, i int) features.Input {
	m := make(map[string]float64, len(ds.FeatureNames))
	for j, name := range ds.FeatureNames {
		m[name] = ds.Features[i][j]
	}
	return features.FromMap(m)
}

func TestPredictEndToEnd(t *testing.T) {
	t.Parallel()

	reg, ds := trainedRegistry(t, 500, false, true)
	p := NewPredictor(DefaultPredictorConfig(), reg, nil, nil, nil, nil)

	pred, err := p.Predict(context.Background(), &models.PredictRequest{
		Instrument: "MGC AUG25",
		Direction:  "Long",
		Features:   namedRow(ds, 17),
	})
	require.NoError(t, err)

	assert.Equal(t, "MGC_long", pred.Key.String())
	assert.Equal(t, 500, pred.SampleCount)
	assert.InDelta(t, pred.PnLMean-1.96*pred.PnLStd, pred.CILow, 1e-9)
	assert.InDelta(t, pred.PnLMean+1.96*pred.PnLStd, pred.CIHigh, 1e-9)
	assert.InDelta(t, Confidence(pred.PnLMean, pred.PnLStd, 500, false), pred.Confidence, 0.01)
	assert.InDelta(t, ds.PnL[17], pred.PnLMean, 3, "a training point is reproduced closely")

	assert.Equal(t, models.SubAbsent, pred.Trajectory.Status)
	require.Equal(t, models.SubOK, pred.Risk.Status)
	assert.InDelta(t, ds.Risk[17][0], pred.Risk.Value.StopLoss, 1.5)
	assert.InDelta(t, ds.Risk[17][1], pred.Risk.Value.TakeProfit, 1.5)
}

func TestPredictPositionalAndNamedAgree(t *testing.T) {
	t.Parallel()

	reg, ds := trainedRegistry(t, 40, true, false)
	p := NewPredictor(DefaultPredictorConfig(), reg, nil, nil, nil, nil)
	ctx := context.Background()

	named, err := p.Predict(ctx, &models.PredictRequest{Instrument: "MGC", Direction: "long", Features: namedRow(ds, 3)})
	require.NoError(t, err)
	positional, err := p.Predict(ctx, &models.PredictRequest{Instrument: "MGC", Direction: "long", Features: features.FromValues(ds.Features[3])})
	require.NoError(t, err)

	assert.InDelta(t, named.PnLMean, positional.PnLMean, 1e-9)
	require.Equal(t, models.SubOK, named.Trajectory.Status)
	require.Len(t, named.Trajectory.Value.Mean, 5)
	for _, s := range named.Trajectory.Value.Std {
		assert.InDelta(t, 0.5*named.PnLStd, s, 1e-12)
	}
}

func TestPredictErrors(t *testing.T) {
	t.Parallel()

	reg, ds := trainedRegistry(t, 30, false, false)
	ctx := context.Background()

	p := NewPredictor(DefaultPredictorConfig(), reg, nil, nil, nil, nil)
	_, err := p.Predict(ctx, &models.PredictRequest{Instrument: "ES", Direction: "long", Features: namedRow(ds, 0)})
	assert.ErrorIs(t, err, models.ErrModelNotTrained)

	_, err = p.Predict(ctx, &models.PredictRequest{Instrument: "MGC", Direction: "flat"})
	assert.ErrorIs(t, err, models.ErrDataValidation)

	narrow := DefaultPredictorConfig()
	narrow.ExpectedWidth = 50
	_, err = NewPredictor(narrow, reg, nil, nil, nil, nil).
		Predict(ctx, &models.PredictRequest{Instrument: "MGC", Direction: "long", Features: namedRow(ds, 0)})
	assert.ErrorIs(t, err, models.ErrFeatureWidthMismatch)
}

func TestPredictSecondaryFailureIsIsolated(t *testing.T) {
	t.Parallel()

	reg, ds := trainedRegistry(t, 30, true, true)
	key := mustKey(t, "MGC", "long")
	b, _ := reg.Get(key)
	broken := *b
	broken.Risk = brokenMulti{}
	reg.Put(&broken)

	p := NewPredictor(DefaultPredictorConfig(), reg, nil, nil, nil, nil)
	pred, err := p.Predict(context.Background(), &models.PredictRequest{Instrument: "MGC", Direction: "long", Features: namedRow(ds, 1)})
	require.NoError(t, err)

	assert.Equal(t, models.SubOK, pred.Trajectory.Status)
	assert.Equal(t, models.SubFailed, pred.Risk.Status)
	assert.ErrorIs(t, pred.Risk.Err, models.ErrSecondaryModel)
	assert.False(t, math.IsNaN(pred.Confidence))
}

func TestPredictUsesCache(t *testing.T) {
	t.Parallel()

	reg, ds := trainedRegistry(t, 30, true, true)
	c := cache.NewTTLCache(16)
	cfg := DefaultPredictorConfig()
	cfg.CacheTTL = time.Minute
	p := NewPredictor(cfg, reg, nil, c, nil, nil)
	req := &models.PredictRequest{Instrument: "MGC", Direction: "long", Features: namedRow(ds, 2)}

	first, err := p.Predict(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())

	second, err := p.Predict(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, first.PnLMean, second.PnLMean)
	assert.Equal(t, first.Confidence, second.Confidence)
	assert.Equal(t, first.Risk.Value, second.Risk.Value)
	assert.Equal(t, first.Trajectory.Value, second.Trajectory.Value)
	assert.True(t, first.TrainedAt.Equal(second.TrainedAt))

	// A retrain changes trained_at, so the old entry is not served.
	b, _ := reg.Get(first.Key)
	retrained := *b
	retrained.TrainedAt = b.TrainedAt.Add(1)
	reg.Put(&retrained)
	_, err = p.Predict(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())
}

func TestUpdate(t *testing.T) {
	t.Parallel()

	reg, ds := trainedRegistry(t, 30, false, false)
	ctx := context.Background()
	outcome := 42.5

	sink := &recordingSink{}
	p := NewPredictor(DefaultPredictorConfig(), reg, sink, nil, nil, nil)

	ok, err := p.Update(ctx, &models.UpdateRequest{Instrument: "ES", Direction: "long", ActualOutcome: &outcome})
	require.NoError(t, err)
	assert.False(t, ok, "untrained key")
	assert.Empty(t, sink.obs)

	before, _ := reg.Get(mustKey(t, "MGC", "long"))
	ok, err = p.Update(ctx, &models.UpdateRequest{Instrument: "MGC MAR25", Direction: "long", Features: namedRow(ds, 0), ActualOutcome: &outcome})
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, sink.obs, 1)
	assert.Equal(t, "MGC", sink.obs[0].Instrument)
	assert.Equal(t, 42.5, sink.obs[0].Outcome)
	assert.NotEmpty(t, sink.obs[0].ID)

	after, _ := reg.Get(mustKey(t, "MGC", "long"))
	assert.Same(t, before, after, "served model is not mutated")

	sink.err = errBoom
	ok, err = p.Update(ctx, &models.UpdateRequest{Instrument: "MGC", Direction: "long", ActualOutcome: &outcome})
	assert.ErrorIs(t, err, errBoom)
	assert.False(t, ok)

	nan := math.NaN()
	_, err = p.Update(ctx, &models.UpdateRequest{Instrument: "MGC", Direction: "long", ActualOutcome: &nan})
	assert.ErrorIs(t, err, models.ErrDataValidation)
}

func TestStatus(t *testing.T) {
	t.Parallel()

	empty := NewPredictor(DefaultPredictorConfig(), registry.New(), nil, nil, nil, nil).Status()
	assert.Empty(t, empty.Models)
	assert.False(t, empty.Summary.Ready)

	reg, _ := trainedRegistry(t, 30, true, false)
	p := NewPredictor(DefaultPredictorConfig(), reg, nil, nil, nil, nil)
	st := p.Status()

	require.Contains(t, st.Models, "MGC_long")
	m := st.Models["MGC_long"]
	assert.True(t, m.Trained)
	assert.True(t, m.HasPnLGP)
	assert.True(t, m.HasTrajectoryGP)
	assert.False(t, m.HasRiskGP)
	assert.Equal(t, 30, m.SampleCount)
	assert.NotNil(t, m.LastUpdated)
	assert.Equal(t, models.StatusSummary{TotalModels: 1, TrainedModels: 1, TotalSamples: 30, Ready: true}, st.Summary)
	assert.Equal(t, 1, p.ModelsLoaded())
}
