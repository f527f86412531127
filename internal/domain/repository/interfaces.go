package repository

import (
	"context"
	"time"

	"TradeGP/internal/domain/models"
)

// BundleStore persists trained bundles. Save replaces any previous bundle
// for the key without exposing a partially written one.
type BundleStore interface {
	Save(ctx context.Context, b *models.Bundle) error
	Load(ctx context.Context, key models.ModelKey) (*models.Bundle, error) // models.ErrBundleNotFound
	List(ctx context.Context) ([]models.ModelKey, error)
}

// ModelRegistry is the in-process set of servable bundles.
type ModelRegistry interface {
	Get(key models.ModelKey) (*models.Bundle, bool)
	Put(b *models.Bundle)
	Snapshot() map[models.ModelKey]*models.Bundle
	Len() int
}

// ObservationSink records realized outcomes for later retraining.
type ObservationSink interface {
	Record(ctx context.Context, o *models.Observation) error
}

// EventPublisher announces training summaries to other services.
type EventPublisher interface {
	PublishTrainingSummary(ctx context.Context, s *models.TrainingSummary) error
}

// RecordSource supplies raw historical trades for training.
type RecordSource interface {
	FetchVectors(ctx context.Context) ([]models.TradeVector, error)
}

// PredictionCache stores encoded predictions for a short TTL.
type PredictionCache interface {
	GetBytes(ctx context.Context, key string) ([]byte, bool)
	SetBytes(ctx context.Context, key string, val []byte, ttl time.Duration)
}

type Metrics interface {
	RecordPrediction(key, outcome string, seconds, confidence float64)
	RecordSecondaryFailure(key, model string)
	RecordTrainingJob(key string, state models.JobState, outcome string, seconds float64)
	SetModelsLoaded(n int)
	RecordError(kind string)
}
