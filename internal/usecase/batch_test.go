package usecase

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"TradeGP/internal/domain/models"
	"TradeGP/internal/service/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTrainingFile(t *testing.T, dir, name string, ds *models.TrainingDataset) {
	t.Helper()
	raw, err := json.Marshal(models.NewTrainingFile(ds))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), raw, 0o644))
}

type staticSource struct {
	vectors []models.TradeVector
	err     error
}

func (s staticSource) FetchVectors(context.Context) ([]models.TradeVector, error) {
	return s.vectors, s.err
}

func newTestBatch(t *testing.T, summaryDir string) (*BatchTrainer, *memStore, *recordingPublisher) {
	t.Helper()
	store := newMemStore()
	events := &recordingPublisher{}
	tr := NewTrainer(testTrainerConfig(), store, registry.New(), nil, nil)
	b := NewBatchTrainer(tr, events, testGroupConfig(), summaryDir, nil)
	b.now = func() time.Time { return time.Date(2024, 5, 2, 9, 30, 0, 0, time.UTC) }
	return b, store, events
}

func TestDiscoverTrainingFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{
		"MGC_long_training.json",
		"ES_short_training.json",
		"export_all_training.json",
		"MGC_sideways_training.json",
		"notes.txt",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "NQ_long_training.json"), 0o755))

	b, _, _ := newTestBatch(t, "")
	refs, err := b.DiscoverTrainingFiles(dir)
	require.NoError(t, err)

	require.Len(t, refs, 2)
	assert.Equal(t, "ES_short", refs[0].Key.String())
	assert.Equal(t, "MGC_long", refs[1].Key.String())
	assert.Equal(t, filepath.Join(dir, "MGC_long_training.json"), refs[1].Path)
}

func TestBatchRunDirIsolatesFailures(t *testing.T) {
	t.Parallel()

	dataDir, modelsDir := t.TempDir(), t.TempDir()
	writeTrainingFile(t, dataDir, "MGC_long_training.json", synthDataset(mustKey(t, "MGC", "long"), 40, 11, true, true))
	writeTrainingFile(t, dataDir, "ES_short_training.json", synthDataset(mustKey(t, "ES", "short"), 12, 12, false, false))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "CL_long_training.json"), []byte("{not json"), 0o644))

	b, store, events := newTestBatch(t, modelsDir)
	summary, results, err := b.RunDir(context.Background(), dataDir)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, 1, summary.TotalModels)
	assert.Equal(t, 2, summary.Failed)
	assert.Equal(t, map[string]string{
		"CL_long":  models.OutcomeFailed,
		"ES_short": models.OutcomeFailed,
		"MGC_long": models.OutcomeSuccess,
	}, summary.Models)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 1, store.Len())

	raw, err := os.ReadFile(filepath.Join(modelsDir, "training_summary.json"))
	require.NoError(t, err)
	var onDisk models.TrainingSummary
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.Equal(t, summary.RunID, onDisk.RunID)
	assert.Equal(t, summary.Models, onDisk.Models)

	require.Len(t, events.summaries, 1)
	assert.Same(t, summary, events.summaries[0])
}

func TestBatchTrainFromSource(t *testing.T) {
	t.Parallel()

	ds := synthDataset(mustKey(t, "NQ", "short"), 30, 4, false, false)
	var vectors []models.TradeVector
	for i, row := range ds.Features {
		m := make(map[string]float64, len(row))
		for j, v := range row {
			m[ds.FeatureNames[j]] = v
		}
		vectors = append(vectors, models.TradeVector{Instrument: "NQ DEC24", Direction: "SHORT", PnL: ds.PnL[i]})
		vectors[i].Features.Named = m
	}
	vectors = append(vectors, vectorsFor("CL", "long", 3, map[string]float64{"a": 1})...)

	b, store, _ := newTestBatch(t, "")
	summary, results, err := b.TrainFromSource(context.Background(), staticSource{vectors: vectors}, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Equal(t, 1, summary.TotalModels)
	assert.Equal(t, 1, store.Len())

	bundle := results[0].Bundle
	assert.Equal(t, []string{"atr", "ema_gap", "rsi", "session", "spread", "volume"}, bundle.InputFeatureNames[:6])
	require.NotNil(t, bundle.Trajectory, "records always carry a trajectory")
	require.NotNil(t, bundle.Risk)
}

func TestBatchTrainFromSourceFiltersInstruments(t *testing.T) {
	t.Parallel()

	var vectors []models.TradeVector
	vectors = append(vectors, vectorsFor("CL", "long", 10, map[string]float64{"a": 1, "b": 3})...)
	vectors = append(vectors, vectorsFor("ES", "long", 10, map[string]float64{"a": 1, "b": 3})...)

	b, _, _ := newTestBatch(t, "")
	_, results, err := b.TrainFromSource(context.Background(), staticSource{vectors: vectors}, []string{"ES 2025"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "ES_long", results[0].Key.String())
}

func TestBatchTrainFromSourceError(t *testing.T) {
	t.Parallel()

	b, _, events := newTestBatch(t, "")
	_, _, err := b.TrainFromSource(context.Background(), staticSource{err: errBoom}, nil)
	assert.ErrorIs(t, err, errBoom)
	assert.Empty(t, events.summaries)
}
