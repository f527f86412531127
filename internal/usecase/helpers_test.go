package usecase

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"

	"TradeGP/internal/domain/models"
	"TradeGP/pkg/gp"

	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func mustKey(t *testing.T, inst, dir string) models.ModelKey {
	t.Helper()
	k, err := models.NewModelKey(inst, dir)
	require.NoError(t, err)
	return k
}

var synthNames = []string{"atr", "ema_gap", "rsi", "spread", "volume", "session"}

// synthDataset draws n rows of six named features; the last one is
// constant. PnL depends on the first two features.
func synthDataset(key models.ModelKey, n int, seed int64, withTrajectory, withRisk bool) *models.TrainingDataset {
	rng := rand.New(rand.NewSource(seed))
	ds := &models.TrainingDataset{
		Key:          key,
		FeatureNames: append([]string(nil), synthNames...),
		Features:     make([][]float64, n),
		PnL:          make([]float64, n),
	}
	for i := 0; i < n; i++ {
		row := make([]float64, len(synthNames))
		for j := 0; j < len(row)-1; j++ {
			row[j] = rng.NormFloat64()
		}
		row[len(row)-1] = 1
		ds.Features[i] = row
		ds.PnL[i] = 15*row[0] - 8*row[1] + 0.5*rng.NormFloat64()

		if withTrajectory {
			traj := make([]float64, 5)
			for k := range traj {
				traj[k] = ds.PnL[i] * float64(k+1) / 5
			}
			ds.Trajectory = append(ds.Trajectory, traj)
		}
		if withRisk {
			ds.Risk = append(ds.Risk, []float64{10 + math.Abs(row[2]), 18 + math.Abs(row[3])})
		}
	}
	return ds
}

type memStore struct {
	mu      sync.Mutex
	saved   map[models.ModelKey]*models.Bundle
	saveErr error
}

func newMemStore() *memStore {
	return &memStore{saved: make(map[models.ModelKey]*models.Bundle)}
}

func (s *memStore) Save(_ context.Context, b *models.Bundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved[b.Key] = b
	return nil
}

func (s *memStore) Load(_ context.Context, key models.ModelKey) (*models.Bundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.saved[key]
	if !ok {
		return nil, models.ErrBundleNotFound
	}
	return b, nil
}

func (s *memStore) List(context.Context) ([]models.ModelKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]models.ModelKey, 0, len(s.saved))
	for k := range s.saved {
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *memStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

var _ gp.MultiRegressor = brokenMulti{}

// brokenMulti fails either on Fit or on Predict.
type brokenMulti struct{ failFit bool }

func (m brokenMulti) Fit(X, Y [][]float64) error {
	if m.failFit {
		return errBoom
	}
	return nil
}

func (m brokenMulti) Predict(X [][]float64) ([][]float64, error) { return nil, errBoom }

func (m brokenMulti) Outputs() int { return 2 }

type recordingSink struct {
	mu  sync.Mutex
	obs []*models.Observation
	err error
}

func (s *recordingSink) Record(_ context.Context, o *models.Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.obs = append(s.obs, o)
	return nil
}

type recordingPublisher struct {
	mu        sync.Mutex
	summaries []*models.TrainingSummary
}

func (p *recordingPublisher) PublishTrainingSummary(_ context.Context, s *models.TrainingSummary) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.summaries = append(p.summaries, s)
	return nil
}

func testTrainerConfig() TrainerConfig {
	cfg := DefaultTrainerConfig()
	cfg.Workers = 2
	return cfg
}
