package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"TradeGP/internal/domain/models"
	domrepo "TradeGP/internal/domain/repository"
	"TradeGP/internal/services/features"
	"TradeGP/pkg/id"
	applogger "TradeGP/pkg/logger"
)

const ciZ = 1.96

type PredictorConfig struct {
	ExpectedWidth    int
	ConfidenceJitter bool
	CacheTTL         time.Duration // 0 disables caching
}

func DefaultPredictorConfig() PredictorConfig {
	return PredictorConfig{
		ExpectedWidth:    features.DefaultExpectedWidth,
		ConfidenceJitter: true,
	}
}

// Predictor serves predictions from the bundles in a registry and records
// realized outcomes. It never mutates a bundle.
type Predictor struct {
	cfg      PredictorConfig
	registry domrepo.ModelRegistry
	sink     domrepo.ObservationSink
	cache    domrepo.PredictionCache
	metrics  domrepo.Metrics
	l        *applogger.Logger
	now      func() time.Time
}

// NewPredictor builds a predictor. sink, cache and metrics may be nil.
func NewPredictor(cfg PredictorConfig, registry domrepo.ModelRegistry, sink domrepo.ObservationSink, cache domrepo.PredictionCache, metrics domrepo.Metrics, l *applogger.Logger) *Predictor {
	if l == nil {
		l = applogger.Nop()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if cfg.CacheTTL <= 0 {
		cache = nil
	}
	return &Predictor{
		cfg:      cfg,
		registry: registry,
		sink:     sink,
		cache:    cache,
		metrics:  metrics,
		l:        l.Component("predictor"),
		now:      time.Now,
	}
}

func (p *Predictor) ModelsLoaded() int { return p.registry.Len() }

// Predict answers one request. Key, preprocessing and PnL failures fail
// the request; trajectory and risk failures only blank their own fields.
func (p *Predictor) Predict(ctx context.Context, req *models.PredictRequest) (*models.Prediction, error) {
	start := time.Now()
	key, err := models.NewModelKey(req.Instrument, req.Direction)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrDataValidation, err)
	}
	keyStr := key.String()

	b, ok := p.registry.Get(key)
	if !ok {
		p.metrics.RecordPrediction(keyStr, "not_trained", time.Since(start).Seconds(), 0)
		return nil, fmt.Errorf("%w: %s", models.ErrModelNotTrained, keyStr)
	}

	raw := features.Vector(req.Features, b.NameOrder(), p.cfg.ExpectedWidth)
	cacheKey := ""
	if p.cache != nil {
		cacheKey = predictionCacheKey(b, raw)
		if pred, ok := p.cached(ctx, cacheKey); ok {
			p.metrics.RecordPrediction(keyStr, "cached", time.Since(start).Seconds(), pred.Confidence)
			return pred, nil
		}
	}

	pred, err := p.predict(b, raw)
	if err != nil {
		outcome := "error"
		if errors.Is(err, models.ErrFeatureWidthMismatch) {
			outcome = "width_mismatch"
		}
		p.metrics.RecordPrediction(keyStr, outcome, time.Since(start).Seconds(), 0)
		p.metrics.RecordError("prediction")
		return nil, err
	}

	if pred.Trajectory.Status == models.SubFailed {
		p.metrics.RecordSecondaryFailure(keyStr, "trajectory")
		p.l.Warn("trajectory prediction failed", applogger.String("key", keyStr), applogger.Error(pred.Trajectory.Err))
	}
	if pred.Risk.Status == models.SubFailed {
		p.metrics.RecordSecondaryFailure(keyStr, "risk")
		p.l.Warn("risk prediction failed", applogger.String("key", keyStr), applogger.Error(pred.Risk.Err))
	}
	if cacheKey != "" {
		p.store(ctx, cacheKey, pred)
	}
	p.metrics.RecordPrediction(keyStr, models.OutcomeSuccess, time.Since(start).Seconds(), pred.Confidence)
	return pred, nil
}

func (p *Predictor) predict(b *models.Bundle, raw []float64) (*models.Prediction, error) {
	x, err := b.Preprocessor.Transform(raw)
	if err != nil {
		return nil, err
	}
	X := [][]float64{x}

	means, stds, err := b.PnL.Predict(X)
	if err != nil {
		return nil, fmt.Errorf("pnl prediction: %w", err)
	}
	mean, std := means[0], stds[0]

	pred := &models.Prediction{
		Key:         b.Key,
		PnLMean:     mean,
		PnLStd:      std,
		CILow:       mean - ciZ*std,
		CIHigh:      mean + ciZ*std,
		Confidence:  Confidence(mean, std, b.SampleCount, p.cfg.ConfidenceJitter),
		SampleCount: b.SampleCount,
		TrainedAt:   b.TrainedAt,
		Trajectory:  models.Absent[models.Trajectory](),
		Risk:        models.Absent[models.Risk](),
	}

	if b.Trajectory != nil {
		pred.Trajectory = trajectoryOf(b, X, std)
	}
	if b.Risk != nil {
		pred.Risk = riskOf(b, X)
	}
	return pred, nil
}

// trajectoryOf reports half the PnL std at every bar; the per-output GPs
// carry no std of their own.
func trajectoryOf(b *models.Bundle, X [][]float64, pnlStd float64) models.SubResult[models.Trajectory] {
	out, err := b.Trajectory.Predict(X)
	if err != nil {
		return models.Failed[models.Trajectory](fmt.Errorf("%w: trajectory: %v", models.ErrSecondaryModel, err))
	}
	mean := out[0]
	std := make([]float64, len(mean))
	for i := range std {
		std[i] = 0.5 * pnlStd
	}
	return models.OK(models.Trajectory{Mean: mean, Std: std})
}

func riskOf(b *models.Bundle, X [][]float64) models.SubResult[models.Risk] {
	out, err := b.Risk.Predict(X)
	if err != nil {
		return models.Failed[models.Risk](fmt.Errorf("%w: risk: %v", models.ErrSecondaryModel, err))
	}
	if len(out[0]) < 2 {
		return models.Failed[models.Risk](fmt.Errorf("%w: risk model has %d outputs", models.ErrSecondaryModel, len(out[0])))
	}
	return models.OK(models.Risk{StopLoss: out[0][0], TakeProfit: out[0][1]})
}

// predictionCacheKey changes whenever the bundle is retrained or the
// normalized input changes.
func predictionCacheKey(b *models.Bundle, raw []float64) string {
	h := sha256.New()
	h.Write([]byte(b.Key.String()))
	h.Write([]byte(b.TrainedAt.UTC().Format(time.RFC3339Nano)))
	for _, v := range raw {
		h.Write(strconv.AppendFloat(nil, v, 'g', -1, 64))
		h.Write([]byte{','})
	}
	return "predict:" + b.Key.String() + ":" + hex.EncodeToString(h.Sum(nil))[:32]
}

// cachedPrediction keeps only successful secondary values; a cache entry
// is never written for a failed sub-result.
type cachedPrediction struct {
	Key         string             `json:"key"`
	PnLMean     float64            `json:"pnl_mean"`
	PnLStd      float64            `json:"pnl_std"`
	CILow       float64            `json:"ci_low"`
	CIHigh      float64            `json:"ci_high"`
	Trajectory  *models.Trajectory `json:"trajectory,omitempty"`
	Risk        *models.Risk       `json:"risk,omitempty"`
	Confidence  float64            `json:"confidence"`
	SampleCount int                `json:"sample_count"`
	TrainedAt   time.Time          `json:"trained_at"`
}

func (p *Predictor) cached(ctx context.Context, key string) (*models.Prediction, bool) {
	raw, ok := p.cache.GetBytes(ctx, key)
	if !ok {
		return nil, false
	}
	var c cachedPrediction
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, false
	}
	mk, err := models.ParseModelKey(c.Key)
	if err != nil {
		return nil, false
	}
	pred := &models.Prediction{
		Key:         mk,
		PnLMean:     c.PnLMean,
		PnLStd:      c.PnLStd,
		CILow:       c.CILow,
		CIHigh:      c.CIHigh,
		Confidence:  c.Confidence,
		SampleCount: c.SampleCount,
		TrainedAt:   c.TrainedAt,
		Trajectory:  models.Absent[models.Trajectory](),
		Risk:        models.Absent[models.Risk](),
	}
	if c.Trajectory != nil {
		pred.Trajectory = models.OK(*c.Trajectory)
	}
	if c.Risk != nil {
		pred.Risk = models.OK(*c.Risk)
	}
	return pred, true
}

func (p *Predictor) store(ctx context.Context, key string, pred *models.Prediction) {
	if pred.Trajectory.Status == models.SubFailed || pred.Risk.Status == models.SubFailed {
		return
	}
	c := cachedPrediction{
		Key:         pred.Key.String(),
		PnLMean:     pred.PnLMean,
		PnLStd:      pred.PnLStd,
		CILow:       pred.CILow,
		CIHigh:      pred.CIHigh,
		Confidence:  pred.Confidence,
		SampleCount: pred.SampleCount,
		TrainedAt:   pred.TrainedAt,
	}
	if pred.Trajectory.Status == models.SubOK {
		t := pred.Trajectory.Value
		c.Trajectory = &t
	}
	if pred.Risk.Status == models.SubOK {
		r := pred.Risk.Value
		c.Risk = &r
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return
	}
	p.cache.SetBytes(ctx, key, raw, p.cfg.CacheTTL)
}

// Update records a realized outcome for the next retrain. It reports false
// without error when no model is trained for the key. Served models are
// never changed.
func (p *Predictor) Update(ctx context.Context, req *models.UpdateRequest) (bool, error) {
	key, err := models.NewModelKey(req.Instrument, req.Direction)
	if err != nil {
		return false, fmt.Errorf("%w: %v", models.ErrDataValidation, err)
	}
	if _, ok := p.registry.Get(key); !ok {
		return false, nil
	}
	if req.ActualOutcome == nil || math.IsNaN(*req.ActualOutcome) || math.IsInf(*req.ActualOutcome, 0) {
		return false, fmt.Errorf("%w: actual_outcome must be a finite number", models.ErrDataValidation)
	}
	if p.sink == nil {
		return true, nil
	}

	o := &models.Observation{
		ID:         id.ObservationID(),
		Instrument: key.Instrument,
		Direction:  string(key.Direction),
		Features:   req.Features.Map(),
		Outcome:    *req.ActualOutcome,
		RecordedAt: p.now().UTC(),
	}
	if err := p.sink.Record(ctx, o); err != nil {
		p.metrics.RecordError("observation")
		p.l.Error("record observation failed", applogger.String("key", key.String()), applogger.Error(err))
		return false, err
	}
	p.l.Debug("observation recorded", applogger.String("key", key.String()), applogger.String("id", o.ID))
	return true, nil
}

// Status describes every loaded model.
func (p *Predictor) Status() *models.StatusReport {
	snap := p.registry.Snapshot()
	keys := make([]models.ModelKey, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	report := &models.StatusReport{Models: make(map[string]models.ModelStatus, len(keys))}
	for _, k := range keys {
		b := snap[k]
		st := models.ModelStatus{
			Trained:         b.PnL != nil,
			SampleCount:     b.SampleCount,
			HasPnLGP:        b.PnL != nil,
			HasTrajectoryGP: b.Trajectory != nil,
			HasRiskGP:       b.Risk != nil,
		}
		if !b.TrainedAt.IsZero() {
			t := b.TrainedAt
			st.LastUpdated = &t
		}
		report.Models[k.String()] = st
		if st.Trained {
			report.Summary.TrainedModels++
		}
		report.Summary.TotalSamples += b.SampleCount
	}
	report.Summary.TotalModels = len(keys)
	report.Summary.Ready = report.Summary.TrainedModels > 0
	return report
}
