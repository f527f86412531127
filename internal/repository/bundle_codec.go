package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"TradeGP/internal/domain/models"
	"TradeGP/internal/services/features"
	"TradeGP/pkg/gp"
	"TradeGP/pkg/util"
)

// CurrentSchemaVersion is written by every Save.
//
// History:
//
//	0  trainer export: top-level pnl_gp / trajectory_gp / risk_gp,
//	   feature_selector, scaler, training_info, timestamp
//	1  service snapshot: trained flag, models{pnl,trajectory,risk},
//	   selector, scaler, sample_count, last_updated
//	2  current: explicit schema_version, key, preprocessor, metrics
const CurrentSchemaVersion = 2

type bundleV0 struct {
	PnLGP           json.RawMessage     `json:"pnl_gp"`
	TrajectoryGP    json.RawMessage     `json:"trajectory_gp"`
	RiskGP          json.RawMessage     `json:"risk_gp"`
	FeatureSelector json.RawMessage     `json:"feature_selector"`
	Scaler          json.RawMessage     `json:"scaler"`
	FeatureNames    []string            `json:"feature_names"`
	TrainingInfo    models.TrainingInfo `json:"training_info"`
	Timestamp       string              `json:"timestamp"`
}

type bundleV1 struct {
	SchemaVersion int  `json:"schema_version"`
	Trained       bool `json:"trained"`
	Models        struct {
		PnL        json.RawMessage `json:"pnl"`
		Trajectory json.RawMessage `json:"trajectory"`
		Risk       json.RawMessage `json:"risk"`
	} `json:"models"`
	Selector     json.RawMessage      `json:"selector"`
	Scaler       json.RawMessage      `json:"scaler"`
	FeatureNames []string             `json:"feature_names"`
	SampleCount  int                  `json:"sample_count"`
	LastUpdated  string               `json:"last_updated"`
	TrainingInfo *models.TrainingInfo `json:"training_info,omitempty"`
}

type bundleV2 struct {
	SchemaVersion     int                    `json:"schema_version"`
	Instrument        string                 `json:"instrument"`
	Direction         string                 `json:"direction"`
	TrainedAt         time.Time              `json:"trained_at"`
	SampleCount       int                    `json:"sample_count"`
	InputFeatureNames []string               `json:"input_feature_names,omitempty"`
	FeatureNames      []string               `json:"feature_names"`
	RemovedFeatures   []int                  `json:"removed_features"`
	Preprocessor      features.Preprocessor  `json:"preprocessor"`
	PnLGP             gp.State               `json:"pnl_gp"`
	TrajectoryGP      *gp.MultiState         `json:"trajectory_gp"`
	RiskGP            *gp.MultiState         `json:"risk_gp"`
	Metrics           models.TrainingMetrics `json:"metrics"`
	TrainingInfo      models.TrainingInfo    `json:"training_info"`
}

// scalerFile is the standalone preprocessing artifact.
type scalerFile struct {
	SchemaVersion int                   `json:"schema_version"`
	Key           string                `json:"key"`
	Preprocessor  features.Preprocessor `json:"preprocessor"`
}

// migrations[v] upgrades a version v document to version v+1.
var migrations = map[int]func(raw []byte) ([]byte, error){
	0: migrateV0,
	1: migrateV1,
}

func schemaVersion(raw []byte) (int, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return 0, fmt.Errorf("decode bundle: %w", err)
	}
	if v, ok := probe["schema_version"]; ok {
		var n int
		if err := json.Unmarshal(v, &n); err != nil {
			return 0, fmt.Errorf("decode schema_version: %w", err)
		}
		return n, nil
	}
	if _, ok := probe["trained"]; ok {
		return 1, nil
	}
	return 0, nil
}

func migrateV0(raw []byte) ([]byte, error) {
	var in bundleV0
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("decode v0 bundle: %w", err)
	}
	if len(in.PnLGP) == 0 {
		return nil, fmt.Errorf("v0 bundle has no pnl_gp")
	}
	var out bundleV1
	out.SchemaVersion = 1
	out.Trained = true
	out.Models.PnL = in.PnLGP
	out.Models.Trajectory = in.TrajectoryGP
	out.Models.Risk = in.RiskGP
	out.Selector = in.FeatureSelector
	out.Scaler = in.Scaler
	out.FeatureNames = in.FeatureNames
	out.SampleCount = in.TrainingInfo.NSamples
	out.LastUpdated = in.Timestamp
	info := in.TrainingInfo
	out.TrainingInfo = &info
	return json.Marshal(out)
}

func migrateV1(raw []byte) ([]byte, error) {
	var in bundleV1
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("decode v1 bundle: %w", err)
	}
	if !in.Trained || len(in.Models.PnL) == 0 || string(in.Models.PnL) == "null" {
		return nil, models.ErrModelNotTrained
	}

	var out bundleV2
	out.SchemaVersion = 2
	if err := json.Unmarshal(in.Models.PnL, &out.PnLGP); err != nil {
		return nil, fmt.Errorf("decode v1 pnl model: %w", err)
	}
	var err error
	if out.TrajectoryGP, err = optionalMultiState(in.Models.Trajectory); err != nil {
		return nil, fmt.Errorf("decode v1 trajectory model: %w", err)
	}
	if out.RiskGP, err = optionalMultiState(in.Models.Risk); err != nil {
		return nil, fmt.Errorf("decode v1 risk model: %w", err)
	}
	if len(in.Selector) > 0 {
		if err := json.Unmarshal(in.Selector, &out.Preprocessor.Selector); err != nil {
			return nil, fmt.Errorf("decode v1 selector: %w", err)
		}
	}
	if len(in.Scaler) > 0 {
		if err := json.Unmarshal(in.Scaler, &out.Preprocessor.Scaler); err != nil {
			return nil, fmt.Errorf("decode v1 scaler: %w", err)
		}
	}
	out.FeatureNames = in.FeatureNames
	out.SampleCount = in.SampleCount
	out.TrainedAt, _ = util.ParseTime(in.LastUpdated)
	for j, keep := range out.Preprocessor.Selector.Mask {
		if !keep {
			out.RemovedFeatures = append(out.RemovedFeatures, j)
		}
	}
	if in.TrainingInfo != nil {
		out.TrainingInfo = *in.TrainingInfo
	} else {
		out.TrainingInfo = models.TrainingInfo{
			NSamples:          in.SampleCount,
			NFeaturesOriginal: len(out.Preprocessor.Selector.Mask),
			NFeaturesUsed:     len(out.Preprocessor.Scaler.Center),
		}
	}
	return json.Marshal(out)
}

func optionalMultiState(raw json.RawMessage) (*gp.MultiState, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var s gp.MultiState
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// upgrade runs the migration chain until raw is at CurrentSchemaVersion.
func upgrade(raw []byte) ([]byte, error) {
	v, err := schemaVersion(raw)
	if err != nil {
		return nil, err
	}
	if v > CurrentSchemaVersion {
		return nil, fmt.Errorf("bundle schema version %d is newer than supported %d", v, CurrentSchemaVersion)
	}
	for ; v < CurrentSchemaVersion; v++ {
		migrate, ok := migrations[v]
		if !ok {
			return nil, fmt.Errorf("no migration from schema version %d", v)
		}
		if raw, err = migrate(raw); err != nil {
			return nil, err
		}
	}
	return raw, nil
}

func encodeBundle(b *models.Bundle) ([]byte, error) {
	pnl, ok := b.PnL.(*gp.GaussianProcess)
	if !ok {
		return nil, fmt.Errorf("cannot persist pnl model of type %T", b.PnL)
	}
	pnlState, err := pnl.State()
	if err != nil {
		return nil, fmt.Errorf("pnl model: %w", err)
	}
	traj, err := multiState(b.Trajectory)
	if err != nil {
		return nil, fmt.Errorf("trajectory model: %w", err)
	}
	risk, err := multiState(b.Risk)
	if err != nil {
		return nil, fmt.Errorf("risk model: %w", err)
	}
	if b.Preprocessor == nil {
		return nil, fmt.Errorf("bundle has no preprocessor")
	}

	doc := bundleV2{
		SchemaVersion:     CurrentSchemaVersion,
		Instrument:        b.Key.Instrument,
		Direction:         string(b.Key.Direction),
		TrainedAt:         b.TrainedAt.UTC(),
		SampleCount:       b.SampleCount,
		InputFeatureNames: b.InputFeatureNames,
		FeatureNames:      b.FeatureNames,
		RemovedFeatures:   b.RemovedFeatures,
		Preprocessor:      *b.Preprocessor,
		PnLGP:             pnlState,
		TrajectoryGP:      traj,
		RiskGP:            risk,
		Metrics:           b.Metrics,
		TrainingInfo:      b.Info,
	}
	return json.Marshal(doc)
}

func multiState(m gp.MultiRegressor) (*gp.MultiState, error) {
	if m == nil {
		return nil, nil
	}
	mo, ok := m.(*gp.MultiOutput)
	if !ok {
		return nil, fmt.Errorf("cannot persist model of type %T", m)
	}
	s, err := mo.State()
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// decodeBundle upgrades raw to the current schema and rebuilds the fitted
// models. fallback supplies the key for documents that predate it.
func decodeBundle(raw []byte, fallback models.ModelKey, workers int) (*models.Bundle, error) {
	raw, err := upgrade(raw)
	if err != nil {
		return nil, err
	}
	var doc bundleV2
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}

	key := fallback
	if doc.Instrument != "" && doc.Direction != "" {
		if key, err = models.NewModelKey(doc.Instrument, doc.Direction); err != nil {
			return nil, err
		}
	}

	pre := doc.Preprocessor
	if err := pre.Validate(); err != nil {
		return nil, err
	}

	b := &models.Bundle{
		Key:               key,
		Preprocessor:      &pre,
		InputFeatureNames: doc.InputFeatureNames,
		FeatureNames:      doc.FeatureNames,
		RemovedFeatures:   doc.RemovedFeatures,
		TrainedAt:         doc.TrainedAt,
		SampleCount:       doc.SampleCount,
		Metrics:           doc.Metrics,
		Info:              doc.TrainingInfo,
	}
	if b.PnL, err = gp.Restore(doc.PnLGP); err != nil {
		return nil, fmt.Errorf("restore pnl model: %w", err)
	}
	if doc.TrajectoryGP != nil {
		if b.Trajectory, err = gp.RestoreMulti(*doc.TrajectoryGP, workers); err != nil {
			return nil, fmt.Errorf("restore trajectory model: %w", err)
		}
	}
	if doc.RiskGP != nil {
		if b.Risk, err = gp.RestoreMulti(*doc.RiskGP, workers); err != nil {
			return nil, fmt.Errorf("restore risk model: %w", err)
		}
	}
	return b, nil
}

func encodeScaler(b *models.Bundle) ([]byte, error) {
	if b.Preprocessor == nil {
		return nil, fmt.Errorf("bundle has no preprocessor")
	}
	return json.Marshal(scalerFile{
		SchemaVersion: CurrentSchemaVersion,
		Key:           b.Key.String(),
		Preprocessor:  *b.Preprocessor,
	})
}

func decodeScaler(raw []byte) (*features.Preprocessor, error) {
	var f scalerFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode scaler: %w", err)
	}
	if err := f.Preprocessor.Validate(); err != nil {
		return nil, err
	}
	return &f.Preprocessor, nil
}
