package models

import (
	"encoding/json"
	"time"
)

// SubStatus distinguishes a missing secondary model from a failing one.
type SubStatus string

const (
	SubOK     SubStatus = "ok"
	SubAbsent SubStatus = "absent"
	SubFailed SubStatus = "failed"
)

// SubResult is the outcome of one secondary-model query.
type SubResult[T any] struct {
	Value  T
	Status SubStatus
	Err    error
}

func OK[T any](v T) SubResult[T] { return SubResult[T]{Value: v, Status: SubOK} }

func Absent[T any]() SubResult[T] { return SubResult[T]{Status: SubAbsent} }

func Failed[T any](err error) SubResult[T] { return SubResult[T]{Status: SubFailed, Err: err} }

type Trajectory struct {
	Mean []float64
	Std  []float64
}

type Risk struct {
	StopLoss   float64
	TakeProfit float64
}

// Prediction is the full answer for one request. The JSON form renders
// absent or failed secondary results as nulls.
type Prediction struct {
	Key         ModelKey
	PnLMean     float64
	PnLStd      float64
	CILow       float64
	CIHigh      float64
	Trajectory  SubResult[Trajectory]
	Risk        SubResult[Risk]
	Confidence  float64
	SampleCount int
	TrainedAt   time.Time
}

type predictionJSON struct {
	PnL struct {
		Mean               float64    `json:"mean"`
		Std                float64    `json:"std"`
		ConfidenceInterval [2]float64 `json:"confidence_interval"`
	} `json:"pnl"`
	Trajectory struct {
		Mean []float64 `json:"mean"`
		Std  []float64 `json:"std"`
	} `json:"trajectory"`
	Risk struct {
		SuggestedSL *float64 `json:"suggested_sl"`
		SuggestedTP *float64 `json:"suggested_tp"`
	} `json:"risk"`
	Confidence float64 `json:"confidence"`
	ModelInfo  struct {
		Instrument  string     `json:"instrument"`
		Direction   string     `json:"direction"`
		SampleCount int        `json:"sample_count"`
		LastUpdated *time.Time `json:"last_updated"`
	} `json:"model_info"`
}

func (p Prediction) MarshalJSON() ([]byte, error) {
	var out predictionJSON
	out.PnL.Mean = p.PnLMean
	out.PnL.Std = p.PnLStd
	out.PnL.ConfidenceInterval = [2]float64{p.CILow, p.CIHigh}
	if p.Trajectory.Status == SubOK {
		out.Trajectory.Mean = p.Trajectory.Value.Mean
		out.Trajectory.Std = p.Trajectory.Value.Std
	}
	if p.Risk.Status == SubOK {
		sl, tp := p.Risk.Value.StopLoss, p.Risk.Value.TakeProfit
		out.Risk.SuggestedSL = &sl
		out.Risk.SuggestedTP = &tp
	}
	out.Confidence = p.Confidence
	out.ModelInfo.Instrument = p.Key.Instrument
	out.ModelInfo.Direction = string(p.Key.Direction)
	out.ModelInfo.SampleCount = p.SampleCount
	if !p.TrainedAt.IsZero() {
		t := p.TrainedAt
		out.ModelInfo.LastUpdated = &t
	}
	return json.Marshal(out)
}

// ModelStatus is one entry of the models status report.
type ModelStatus struct {
	Trained         bool       `json:"trained"`
	SampleCount     int        `json:"sample_count"`
	LastUpdated     *time.Time `json:"last_updated"`
	HasPnLGP        bool       `json:"has_pnl_gp"`
	HasTrajectoryGP bool       `json:"has_trajectory_gp"`
	HasRiskGP       bool       `json:"has_risk_gp"`
}

type StatusSummary struct {
	TotalModels   int  `json:"total_models"`
	TrainedModels int  `json:"trained_models"`
	TotalSamples  int  `json:"total_samples"`
	Ready         bool `json:"ready"`
}

type StatusReport struct {
	Models  map[string]ModelStatus `json:"models"`
	Summary StatusSummary          `json:"summary"`
}
