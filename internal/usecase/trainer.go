package usecase

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"TradeGP/internal/domain/models"
	domrepo "TradeGP/internal/domain/repository"
	"TradeGP/internal/services/features"
	"TradeGP/pkg/gp"
	applogger "TradeGP/pkg/logger"
)

// TrainerConfig fixes the data checks and model settings of every job.
type TrainerConfig struct {
	ExpectedWidth        int
	VarianceThreshold    float64
	MinSamples           int
	MinPnLVariance       float64
	HoldoutFraction      float64 // 0 disables the hold-out evaluation
	MaxTrajectorySamples int
	Seed                 int64

	PnL        gp.Params
	Trajectory gp.Params
	Risk       gp.Params
	Workers    int
}

// DefaultTrainerConfig mirrors the configuration defaults.
func DefaultTrainerConfig() TrainerConfig {
	traj := gp.DefaultParams()
	traj.Kernel = gp.Matern32
	return TrainerConfig{
		ExpectedWidth:        features.DefaultExpectedWidth,
		VarianceThreshold:    features.DefaultVarianceThreshold,
		MinSamples:           20,
		MinPnLVariance:       1e-6,
		HoldoutFraction:      0.2,
		MaxTrajectorySamples: 500,
		Seed:                 42,
		PnL:                  gp.DefaultParams(),
		Trajectory:           traj,
		Risk:                 gp.DefaultParams(),
		Workers:              4,
	}
}

type TrainerOption func(*Trainer)

// WithRegressors replaces the GP constructors, mainly for tests.
func WithRegressors(single func(gp.Params) gp.Regressor, multi func(gp.Params, int) gp.MultiRegressor) TrainerOption {
	return func(t *Trainer) {
		if single != nil {
			t.newSingle = single
		}
		if multi != nil {
			t.newMulti = multi
		}
	}
}

// WithClock sets the source of TrainedAt.
func WithClock(now func() time.Time) TrainerOption {
	return func(t *Trainer) { t.now = now }
}

// Trainer runs one training job per key. A job walks
// loaded → validated → preprocessed → pnl_fit → trajectory_fit → risk_fit
// → persisted and stops at failed on the first error; nothing is persisted
// or published unless every stage succeeds.
type Trainer struct {
	cfg      TrainerConfig
	store    domrepo.BundleStore
	registry domrepo.ModelRegistry
	metrics  domrepo.Metrics
	l        *applogger.Logger

	newSingle func(gp.Params) gp.Regressor
	newMulti  func(gp.Params, int) gp.MultiRegressor
	now       func() time.Time
}

// NewTrainer builds a trainer. registry may be nil when trained bundles
// should only be persisted.
func NewTrainer(cfg TrainerConfig, store domrepo.BundleStore, registry domrepo.ModelRegistry, metrics domrepo.Metrics, l *applogger.Logger, opts ...TrainerOption) *Trainer {
	if l == nil {
		l = applogger.Nop()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	t := &Trainer{
		cfg:       cfg,
		store:     store,
		registry:  registry,
		metrics:   metrics,
		l:         l.Component("trainer"),
		newSingle: func(p gp.Params) gp.Regressor { return gp.New(p) },
		newMulti:  func(p gp.Params, workers int) gp.MultiRegressor { return gp.NewMultiOutput(p, workers) },
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Trainer) Config() TrainerConfig { return t.cfg }

// Train runs the job for ds.Key. The returned result is never nil; a failed
// job carries the error and the last state it reached.
func (t *Trainer) Train(ctx context.Context, ds *models.TrainingDataset) *models.JobResult {
	start := time.Now()
	res := &models.JobResult{Key: ds.Key, State: models.StateLoaded, SampleCount: ds.Len()}
	l := t.l.With(applogger.String("key", ds.Key.String()))

	fail := func(err error) *models.JobResult {
		res.FailedAt = res.State
		res.State = models.StateFailed
		res.Err = err
		res.Duration = time.Since(start)
		t.metrics.RecordTrainingJob(ds.Key.String(), res.FailedAt, models.OutcomeFailed, res.Duration.Seconds())
		l.Error("training failed",
			applogger.String("failed_at", string(res.FailedAt)),
			applogger.Duration("duration_ms", res.Duration),
			applogger.Error(err),
		)
		return res
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	if err := t.validate(ds); err != nil {
		return fail(err)
	}
	res.State = models.StateValidated

	rows := make([][]float64, ds.Len())
	for i, r := range ds.Features {
		rows[i] = features.FitWidth(r, t.cfg.ExpectedWidth)
	}
	pre, X, err := features.FitPreprocessor(rows, t.cfg.VarianceThreshold)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", models.ErrDataValidation, err))
	}
	res.State = models.StatePreprocessed
	t.logDiagnostics(l, ds, pre)

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	metrics, err := t.evaluatePnL(X, ds.PnL)
	if err != nil {
		return fail(fmt.Errorf("pnl hold-out fit: %w", err))
	}
	res.Metrics = metrics
	pnl := t.newSingle(t.cfg.PnL)
	if err := pnl.Fit(X, ds.PnL); err != nil {
		return fail(fmt.Errorf("pnl fit: %w", err))
	}
	res.State = models.StatePnLFit

	var trajectory gp.MultiRegressor
	if len(ds.Trajectory) > 0 {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		idx := subsample(ds.Len(), t.cfg.MaxTrajectorySamples, t.cfg.Seed)
		trajectory = t.newMulti(t.cfg.Trajectory, t.cfg.Workers)
		if err := trajectory.Fit(pick(X, idx), pick(ds.Trajectory, idx)); err != nil {
			return fail(fmt.Errorf("trajectory fit: %w", err))
		}
		if len(idx) < ds.Len() {
			l.Info("trajectory model subsampled", applogger.Int("rows", len(idx)), applogger.Int("of", ds.Len()))
		}
	}
	res.State = models.StateTrajectoryFit

	var risk gp.MultiRegressor
	if len(ds.Risk) > 0 {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		risk = t.newMulti(t.cfg.Risk, t.cfg.Workers)
		if err := risk.Fit(X, ds.Risk); err != nil {
			return fail(fmt.Errorf("risk fit: %w", err))
		}
	}
	res.State = models.StateRiskFit

	b := t.bundle(ds, pre, pnl, trajectory, risk, metrics)
	if err := t.store.Save(ctx, b); err != nil {
		return fail(err)
	}
	res.State = models.StatePersisted
	res.Bundle = b
	res.Duration = time.Since(start)
	if t.registry != nil {
		t.registry.Put(b)
	}

	t.metrics.RecordTrainingJob(ds.Key.String(), res.State, models.OutcomeSuccess, res.Duration.Seconds())
	l.Info("training complete",
		applogger.Int("samples", ds.Len()),
		applogger.Int("features_used", pre.OutputWidth()),
		applogger.Bool("trajectory", trajectory != nil),
		applogger.Bool("risk", risk != nil),
		applogger.Float64("test_r2", metrics.TestR2),
		applogger.Duration("duration_ms", res.Duration),
	)
	return res
}

func (t *Trainer) validate(ds *models.TrainingDataset) error {
	n := ds.Len()
	invalid := func(format string, a ...interface{}) error {
		return fmt.Errorf("%w: %s", models.ErrDataValidation, fmt.Sprintf(format, a...))
	}

	if n < t.cfg.MinSamples {
		return invalid("insufficient training data: %d samples, need at least %d", n, t.cfg.MinSamples)
	}
	if len(ds.PnL) != n {
		return invalid("pnl_targets has %d values for %d samples", len(ds.PnL), n)
	}
	for i, row := range ds.Features {
		if !features.AllFinite(row) {
			return invalid("features row %d contains NaN or Inf", i)
		}
	}
	if !features.AllFinite(ds.PnL) {
		return invalid("pnl_targets contain NaN or Inf")
	}
	if s := features.Summarize(ds.PnL); s.Variance < t.cfg.MinPnLVariance {
		return invalid("pnl variance %.3g is below %.3g", s.Variance, t.cfg.MinPnLVariance)
	}
	if len(ds.Trajectory) > 0 {
		if err := checkTargets("trajectory_targets", ds.Trajectory, n, 0); err != nil {
			return invalid("%v", err)
		}
	}
	if len(ds.Risk) > 0 {
		if err := checkTargets("risk_targets", ds.Risk, n, 2); err != nil {
			return invalid("%v", err)
		}
	}
	return nil
}

// checkTargets requires n finite rows of equal width, and exactly width
// columns when width > 0.
func checkTargets(name string, Y [][]float64, n, width int) error {
	if len(Y) != n {
		return fmt.Errorf("%s has %d rows for %d samples", name, len(Y), n)
	}
	w := len(Y[0])
	if width > 0 && w != width {
		return fmt.Errorf("%s must have %d columns, got %d", name, width, w)
	}
	if w == 0 {
		return fmt.Errorf("%s rows are empty", name)
	}
	for i, row := range Y {
		if len(row) != w {
			return fmt.Errorf("%s row %d has %d columns, want %d", name, i, len(row), w)
		}
		if !features.AllFinite(row) {
			return fmt.Errorf("%s row %d contains NaN or Inf", name, i)
		}
	}
	return nil
}

func (t *Trainer) logDiagnostics(l *applogger.Logger, ds *models.TrainingDataset, pre *features.Preprocessor) {
	removed := pre.RemovedIndices()
	pnl := features.Summarize(ds.PnL)
	l.Info("training data",
		applogger.Int("samples", ds.Len()),
		applogger.Int("features_original", pre.InputWidth()),
		applogger.Int("features_used", pre.OutputWidth()),
		applogger.Int("zero_variance_features", len(removed)),
		applogger.Float64("pnl_variance", pnl.Variance),
		applogger.Int("pnl_unique", pnl.Unique),
		applogger.Float64("pnl_min", pnl.Min),
		applogger.Float64("pnl_max", pnl.Max),
	)
	if pre.OutputWidth() == 0 {
		l.Warn("no feature varies; the model will predict the mean")
	}
	if pnl.NearZero*2 > pnl.Count {
		l.Warn("most pnl targets are near zero",
			applogger.Int("near_zero", pnl.NearZero),
			applogger.Int("samples", pnl.Count),
		)
	}
	if len(ds.Risk) > 0 {
		sl := features.Summarize(features.Column(ds.Risk, 0))
		tp := features.Summarize(features.Column(ds.Risk, 1))
		l.Info("risk targets",
			applogger.Float64("sl_min", sl.Min),
			applogger.Float64("sl_max", sl.Max),
			applogger.Float64("tp_min", tp.Min),
			applogger.Float64("tp_max", tp.Max),
		)
	}
}

// evaluatePnL fits a throwaway model on a seeded split and scores it on the
// held-out rows. It returns zero metrics when the split is disabled or too
// small to be meaningful.
func (t *Trainer) evaluatePnL(X [][]float64, y []float64) (models.TrainingMetrics, error) {
	n := len(y)
	nTest := int(math.Ceil(float64(n) * t.cfg.HoldoutFraction))
	if t.cfg.HoldoutFraction <= 0 || nTest < 1 || n-nTest < 2 {
		return models.TrainingMetrics{}, nil
	}
	perm := rand.New(rand.NewSource(t.cfg.Seed)).Perm(n)
	testIdx, trainIdx := perm[:nTest], perm[nTest:]

	m := t.newSingle(t.cfg.PnL)
	if err := m.Fit(pick(X, trainIdx), pick(y, trainIdx)); err != nil {
		return models.TrainingMetrics{}, err
	}
	pred, _, err := m.Predict(pick(X, testIdx))
	if err != nil {
		return models.TrainingMetrics{}, err
	}
	return score(pick(y, testIdx), pred), nil
}

func score(actual, pred []float64) models.TrainingMetrics {
	n := float64(len(actual))
	var mean float64
	for _, a := range actual {
		mean += a
	}
	mean /= n

	var sse, sae, sst float64
	for i, a := range actual {
		d := a - pred[i]
		sse += d * d
		sae += math.Abs(d)
		sst += (a - mean) * (a - mean)
	}
	m := models.TrainingMetrics{
		TestMSE:     sse / n,
		TestMAE:     sae / n,
		HoldoutSize: len(actual),
	}
	if sst > 0 {
		m.TestR2 = 1 - sse/sst
	}
	return m
}

func (t *Trainer) bundle(ds *models.TrainingDataset, pre *features.Preprocessor, pnl gp.Regressor, trajectory, risk gp.MultiRegressor, metrics models.TrainingMetrics) *models.Bundle {
	b := &models.Bundle{
		Key:             ds.Key,
		PnL:             pnl,
		Trajectory:      trajectory,
		Risk:            risk,
		Preprocessor:    pre,
		RemovedFeatures: pre.RemovedIndices(),
		TrainedAt:       t.now().UTC(),
		SampleCount:     ds.Len(),
		Metrics:         metrics,
		Info: models.TrainingInfo{
			NSamples:          ds.Len(),
			NFeaturesOriginal: pre.InputWidth(),
			NFeaturesUsed:     pre.OutputWidth(),
		},
	}
	// Without names, requests with named features fall back to sorted key
	// order, so no name order is recorded.
	if len(ds.FeatureNames) > 0 {
		b.InputFeatureNames = features.FitNames(ds.FeatureNames, t.cfg.ExpectedWidth)
		for j, keep := range pre.Selector.Mask {
			if keep {
				b.FeatureNames = append(b.FeatureNames, b.InputFeatureNames[j])
			}
		}
	}
	return b
}

// subsample returns at most max row indices, in ascending order, chosen
// with a fixed seed. All rows are kept when max <= 0 or n <= max.
func subsample(n, max int, seed int64) []int {
	if max <= 0 || n <= max {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	idx := rand.New(rand.NewSource(seed)).Perm(n)[:max]
	sort.Ints(idx)
	return idx
}

func pick[T any](rows []T, idx []int) []T {
	out := make([]T, len(idx))
	for i, j := range idx {
		out[i] = rows[j]
	}
	return out
}

type nopMetrics struct{}

func (nopMetrics) RecordPrediction(string, string, float64, float64)          {}
func (nopMetrics) RecordSecondaryFailure(string, string)                      {}
func (nopMetrics) RecordTrainingJob(string, models.JobState, string, float64) {}
func (nopMetrics) SetModelsLoaded(int)                                        {}
func (nopMetrics) RecordError(string)                                         {}
