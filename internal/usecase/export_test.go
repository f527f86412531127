package usecase

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"TradeGP/internal/domain/models"
	"TradeGP/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteTrainingFilesRoundTrip(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "data")
	datasets := []*models.TrainingDataset{
		synthDataset(mustKey(t, "MGC", "long"), 25, 3, true, true),
		synthDataset(mustKey(t, "ES", "short"), 25, 4, false, false),
	}
	paths, err := WriteTrainingFiles(dir, datasets)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "MGC_long_training.json"),
		filepath.Join(dir, "ES_short_training.json"),
	}, paths)

	at := time.Date(2024, 5, 2, 9, 30, 0, 0, time.UTC)
	vectors := []models.TradeVector{{Instrument: "MGC", Direction: "long", PnL: 2}}
	rawPath, err := WriteRawExport(dir, vectors, at)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "export_20240502T093000Z.json"), rawPath)

	b, _, _ := newTestBatch(t, "")
	refs, err := b.DiscoverTrainingFiles(dir)
	require.NoError(t, err)
	require.Len(t, refs, 2, "raw export is not a training file")

	ds, err := LoadTrainingFile(refs[1])
	require.NoError(t, err)
	assert.Equal(t, "MGC_long", ds.Key.String())
	assert.Equal(t, datasets[0].PnL, ds.PnL)
	assert.Equal(t, datasets[0].Features, ds.Features)
	assert.Equal(t, datasets[0].Trajectory, ds.Trajectory)

	back, err := repository.NewFileRecordSource(rawPath).FetchVectors(context.Background())
	require.NoError(t, err)
	assert.Equal(t, vectors, back)
}
