package models

import "TradeGP/internal/services/features"

// Requests for the prediction HTTP and websocket endpoints.

type PredictRequest struct {
	Instrument string         `json:"instrument" validate:"required"`
	Direction  string         `json:"direction" validate:"required,oneofci=long short"`
	Features   features.Input `json:"features"`
}

type TrainRequest struct {
	Instrument        string      `json:"instrument" validate:"required"`
	Direction         string      `json:"direction" validate:"required,oneofci=long short"`
	Features          [][]float64 `json:"features" validate:"required,min=1"`
	FeatureNames      []string    `json:"feature_names"`
	PnLTargets        []float64   `json:"pnl_targets" validate:"required,min=1"`
	TrajectoryTargets [][]float64 `json:"trajectory_targets"`
	RiskTargets       [][]float64 `json:"risk_targets"`
}

type UpdateRequest struct {
	Instrument    string         `json:"instrument" validate:"required"`
	Direction     string         `json:"direction" validate:"required,oneofci=long short"`
	Features      features.Input `json:"features"`
	ActualOutcome *float64       `json:"actual_outcome" validate:"required"`
}

type TrainAllRequest struct {
	// Instruments restricts training to these normalized instruments.
	Instruments []string `json:"instruments"`
}
