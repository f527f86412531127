package usecase

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"TradeGP/internal/domain/models"
	"TradeGP/pkg/util"
)

// TrainingFileName is the per-key export name the batch trainer discovers.
func TrainingFileName(key models.ModelKey) string {
	return key.String() + trainingFileSuffix
}

// WriteTrainingFiles writes one {key}_training.json per dataset into dir
// and returns the written paths in dataset order.
func WriteTrainingFiles(dir string, datasets []*models.TrainingDataset) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	paths := make([]string, 0, len(datasets))
	for _, ds := range datasets {
		raw, err := json.Marshal(models.NewTrainingFile(ds))
		if err != nil {
			return paths, fmt.Errorf("encode %s: %w", ds.Key, err)
		}
		path := filepath.Join(dir, TrainingFileName(ds.Key))
		if err := util.WriteFileAtomic(path, raw, 0o644); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// WriteRawExport keeps the fetched records as export_{timestamp}.json next
// to the per-key files. Discovery skips the export prefix.
func WriteRawExport(dir string, vectors []models.TradeVector, at time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	raw, err := json.Marshal(struct {
		ExportedAt time.Time            `json:"exported_at"`
		Vectors    []models.TradeVector `json:"vectors"`
	}{at.UTC(), vectors})
	if err != nil {
		return "", fmt.Errorf("encode export: %w", err)
	}
	path := filepath.Join(dir, "export_"+at.UTC().Format("20060102T150405Z")+".json")
	if err := util.WriteFileAtomic(path, raw, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
