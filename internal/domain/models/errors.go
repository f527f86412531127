package models

import (
	"errors"

	"TradeGP/internal/services/features"
)

var (
	// ErrDataValidation rejects a training dataset before any fit.
	ErrDataValidation = errors.New("data validation failed")
	// ErrModelNotTrained means no bundle is loaded for the key.
	ErrModelNotTrained = errors.New("model not trained")
	// ErrFeatureWidthMismatch is raised by the preprocessor.
	ErrFeatureWidthMismatch = features.ErrFeatureWidthMismatch
	// ErrSecondaryModel marks a trajectory or risk prediction failure.
	ErrSecondaryModel = errors.New("secondary model failure")
	// ErrPersistence wraps bundle write failures.
	ErrPersistence = errors.New("persistence failure")
	// ErrBundleNotFound is returned by stores for unknown keys.
	ErrBundleNotFound = errors.New("bundle not found")
)
