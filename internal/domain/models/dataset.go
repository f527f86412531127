package models

import (
	"encoding/json"
	"strconv"

	"TradeGP/internal/services/features"
)

// TrainingDataset is the in-memory form of one key's training data.
// Trajectory and Risk are optional.
type TrainingDataset struct {
	Key          ModelKey
	Features     [][]float64
	FeatureNames []string
	PnL          []float64
	Trajectory   [][]float64
	Risk         [][]float64
}

func (d *TrainingDataset) Len() int { return len(d.Features) }

// TrainingFile is the on-disk export consumed by the batch trainer.
type TrainingFile struct {
	Instrument string           `json:"instrument"`
	Direction  string           `json:"direction"`
	Data       TrainingFileData `json:"data"`
}

type TrainingFileData struct {
	Features          [][]float64 `json:"features"`
	PnLTargets        []float64   `json:"pnl_targets"`
	TrajectoryTargets [][]float64 `json:"trajectory_targets,omitempty"`
	RiskTargets       [][]float64 `json:"risk_targets,omitempty"`
	FeatureNames      []string    `json:"feature_names,omitempty"`
}

func (f *TrainingFile) Dataset(key ModelKey) *TrainingDataset {
	return &TrainingDataset{
		Key:          key,
		Features:     f.Data.Features,
		FeatureNames: f.Data.FeatureNames,
		PnL:          f.Data.PnLTargets,
		Trajectory:   f.Data.TrajectoryTargets,
		Risk:         f.Data.RiskTargets,
	}
}

func NewTrainingFile(ds *TrainingDataset) *TrainingFile {
	return &TrainingFile{
		Instrument: ds.Key.Instrument,
		Direction:  string(ds.Key.Direction),
		Data: TrainingFileData{
			Features:          ds.Features,
			PnLTargets:        ds.PnL,
			TrajectoryTargets: ds.Trajectory,
			RiskTargets:       ds.Risk,
			FeatureNames:      ds.FeatureNames,
		},
	}
}

// TradeVector is one historical trade as served by the storage agent. The
// agent has stored features in three shapes over time: a map, a JSON string
// in featuresJson, or a positional array with featureNames.
type TradeVector struct {
	ID              string         `json:"id,omitempty"`
	Instrument      string         `json:"instrument"`
	Direction       string         `json:"direction"`
	Features        features.Input `json:"features"`
	FeaturesJSON    string         `json:"featuresJson,omitempty"`
	FeatureNames    []string       `json:"featureNames,omitempty"`
	PnL             float64        `json:"pnl"`
	ProfitByBar     []float64      `json:"profitByBar,omitempty"`
	ProfitByBarJSON string         `json:"profitByBarJson,omitempty"`
	StopLoss        *float64       `json:"stopLoss,omitempty"`
	TakeProfit      *float64       `json:"takeProfit,omitempty"`
	EntryTime       string         `json:"entryTime,omitempty"`
}

// FeatureMap resolves the stored features to a named map. ok is false when
// no shape yields at least one feature.
func (v *TradeVector) FeatureMap() (map[string]float64, bool) {
	if len(v.Features.Named) > 0 {
		return v.Features.Named, true
	}
	if v.FeaturesJSON != "" {
		var m map[string]float64
		if err := json.Unmarshal([]byte(v.FeaturesJSON), &m); err == nil && len(m) > 0 {
			return m, true
		}
	}
	if len(v.FeatureNames) > 0 && len(v.Features.Values) > 0 {
		m := make(map[string]float64, len(v.FeatureNames))
		for i, name := range v.FeatureNames {
			if i < len(v.Features.Values) {
				m[name] = v.Features.Values[i]
			}
		}
		return m, len(m) > 0
	}
	return nil, false
}

// TrajectoryOf returns exactly length bar profits, zero-filled. The JSON
// form is a map from bar index to profit.
func (v *TradeVector) TrajectoryOf(length int) []float64 {
	out := make([]float64, length)
	if v.ProfitByBarJSON != "" {
		var bars map[string]float64
		if err := json.Unmarshal([]byte(v.ProfitByBarJSON), &bars); err == nil {
			for i := range out {
				out[i] = bars[strconv.Itoa(i)]
			}
			return out
		}
	}
	copy(out, v.ProfitByBar)
	return out
}

// RiskOf returns [stop loss, take profit] with the supplied defaults.
func (v *TradeVector) RiskOf(defaultSL, defaultTP float64) []float64 {
	sl, tp := defaultSL, defaultTP
	if v.StopLoss != nil {
		sl = *v.StopLoss
	}
	if v.TakeProfit != nil {
		tp = *v.TakeProfit
	}
	return []float64{sl, tp}
}
