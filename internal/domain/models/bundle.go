package models

import (
	"time"

	"TradeGP/internal/services/features"
	"TradeGP/pkg/gp"
)

// Bundle is everything needed to serve one model key. A bundle is never
// mutated after the trainer builds it; a retrain replaces it whole.
type Bundle struct {
	Key          ModelKey
	PnL          gp.Regressor
	Trajectory   gp.MultiRegressor // nil when trained without trajectory targets
	Risk         gp.MultiRegressor // nil when trained without risk targets
	Preprocessor *features.Preprocessor

	// InputFeatureNames is the canonical name order at expected width,
	// before selection. FeatureNames lists the retained columns.
	InputFeatureNames []string
	FeatureNames      []string
	RemovedFeatures   []int

	TrainedAt   time.Time
	SampleCount int
	Metrics     TrainingMetrics
	Info        TrainingInfo
}

type TrainingInfo struct {
	NSamples          int `json:"n_samples"`
	NFeaturesOriginal int `json:"n_features_original"`
	NFeaturesUsed     int `json:"n_features_used"`
}

// TrainingMetrics are hold-out scores of the PnL model. Zero when the
// hold-out split was disabled.
type TrainingMetrics struct {
	TestMSE     float64 `json:"test_mse"`
	TestMAE     float64 `json:"test_mae"`
	TestR2      float64 `json:"test_r2"`
	HoldoutSize int     `json:"holdout_size"`
}

// NameOrder is the order a request's named features are laid out in.
// Bundles written before InputFeatureNames existed fall back to the
// post-selection names.
func (b *Bundle) NameOrder() []string {
	if len(b.InputFeatureNames) > 0 {
		return b.InputFeatureNames
	}
	return b.FeatureNames
}
