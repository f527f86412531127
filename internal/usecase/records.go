package usecase

import (
	"sort"
	"strings"

	"TradeGP/internal/domain/models"
	"TradeGP/internal/services/features"
)

// GroupConfig controls how raw trade vectors become per-key datasets.
type GroupConfig struct {
	TrajectoryLength  int
	DefaultStopLoss   float64
	DefaultTakeProfit float64
	MinGroupSamples   int
}

// VectorGroups is the result of GroupVectors.
type VectorGroups struct {
	Datasets []*models.TrainingDataset // sorted by key
	// Skipped counts vectors per key for groups below MinGroupSamples.
	Skipped map[string]int
	// Dropped counts vectors with no usable key or features.
	Dropped int
}

type vectorRow struct {
	features map[string]float64
	pnl      float64
	traj     []float64
	risk     []float64
}

// GroupVectors groups vectors by normalized (instrument, direction), skips
// schema marker rows and rows without features, and lays every group out on
// the sorted union of its feature names.
func GroupVectors(vectors []models.TradeVector, cfg GroupConfig) VectorGroups {
	out := VectorGroups{Skipped: make(map[string]int)}
	groups := make(map[models.ModelKey][]vectorRow)

	for i := range vectors {
		v := &vectors[i]
		if strings.EqualFold(v.Instrument, "SCHEMA") {
			continue
		}
		key, err := models.NewModelKey(v.Instrument, v.Direction)
		if err != nil {
			out.Dropped++
			continue
		}
		fm, ok := v.FeatureMap()
		if !ok {
			out.Dropped++
			continue
		}
		groups[key] = append(groups[key], vectorRow{
			features: fm,
			pnl:      v.PnL,
			traj:     v.TrajectoryOf(cfg.TrajectoryLength),
			risk:     v.RiskOf(cfg.DefaultStopLoss, cfg.DefaultTakeProfit),
		})
	}

	for key, rows := range groups {
		if len(rows) < cfg.MinGroupSamples {
			out.Skipped[key.String()] = len(rows)
			continue
		}
		out.Datasets = append(out.Datasets, buildDataset(key, rows, cfg.TrajectoryLength > 0))
	}
	sort.Slice(out.Datasets, func(i, j int) bool {
		return out.Datasets[i].Key.String() < out.Datasets[j].Key.String()
	})
	return out
}

func buildDataset(key models.ModelKey, rows []vectorRow, withTrajectory bool) *models.TrainingDataset {
	union := make(map[string]float64)
	for _, r := range rows {
		for name := range r.features {
			union[name] = 0
		}
	}
	names := features.SortedNames(union)

	ds := &models.TrainingDataset{
		Key:          key,
		FeatureNames: names,
		Features:     make([][]float64, len(rows)),
		PnL:          make([]float64, len(rows)),
		Risk:         make([][]float64, len(rows)),
	}
	if withTrajectory {
		ds.Trajectory = make([][]float64, len(rows))
	}
	for i, r := range rows {
		row := make([]float64, len(names))
		for j, name := range names {
			row[j] = r.features[name]
		}
		ds.Features[i] = row
		ds.PnL[i] = r.pnl
		ds.Risk[i] = r.risk
		if withTrajectory {
			ds.Trajectory[i] = r.traj
		}
	}
	return ds
}
