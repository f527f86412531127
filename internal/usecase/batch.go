package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"TradeGP/internal/domain/models"
	domrepo "TradeGP/internal/domain/repository"
	"TradeGP/pkg/id"
	applogger "TradeGP/pkg/logger"
	"TradeGP/pkg/util"
)

const (
	trainingFileSuffix = "_training.json"
	summaryFileName    = "training_summary.json"
)

// TrainingFileRef is one discovered training export.
type TrainingFileRef struct {
	Path string
	Key  models.ModelKey
}

// BatchTrainer drives the per-key trainer over many datasets, isolates
// failures per key and records an advisory summary of the run.
type BatchTrainer struct {
	trainer    *Trainer
	events     domrepo.EventPublisher
	group      GroupConfig
	summaryDir string
	l          *applogger.Logger
	now        func() time.Time
}

// NewBatchTrainer writes summaries to summaryDir; an empty summaryDir only
// publishes them. events may be nil.
func NewBatchTrainer(trainer *Trainer, events domrepo.EventPublisher, group GroupConfig, summaryDir string, l *applogger.Logger) *BatchTrainer {
	if l == nil {
		l = applogger.Nop()
	}
	return &BatchTrainer{
		trainer:    trainer,
		events:     events,
		group:      group,
		summaryDir: summaryDir,
		l:          l.Component("batch_trainer"),
		now:        time.Now,
	}
}

// DiscoverTrainingFiles lists {instrument}_{direction}_training.json files
// in dir, skipping aggregate exports whose names start with "export". Files
// whose name does not yield a key are logged and skipped.
func (b *BatchTrainer) DiscoverTrainingFiles(dir string) ([]TrainingFileRef, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}
	var refs []TrainingFileRef
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, trainingFileSuffix) || strings.HasPrefix(name, "export") {
			continue
		}
		key, err := models.ParseModelKey(strings.TrimSuffix(name, trainingFileSuffix))
		if err != nil {
			b.l.Warn("skipping training file", applogger.String("file", name), applogger.Error(err))
			continue
		}
		refs = append(refs, TrainingFileRef{Path: filepath.Join(dir, name), Key: key})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Path < refs[j].Path })
	return refs, nil
}

// LoadTrainingFile reads one export. The key comes from the file name; the
// instrument and direction inside the file are informational.
func LoadTrainingFile(ref TrainingFileRef) (*models.TrainingDataset, error) {
	raw, err := os.ReadFile(ref.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ref.Path, err)
	}
	var f models.TrainingFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", models.ErrDataValidation, filepath.Base(ref.Path), err)
	}
	return f.Dataset(ref.Key), nil
}

// RunDir trains every training file in dir, one key at a time.
func (b *BatchTrainer) RunDir(ctx context.Context, dir string) (*models.TrainingSummary, []*models.JobResult, error) {
	refs, err := b.DiscoverTrainingFiles(dir)
	if err != nil {
		return nil, nil, err
	}
	b.l.Info("training files found", applogger.Int("count", len(refs)), applogger.String("dir", dir))

	results := make([]*models.JobResult, 0, len(refs))
	for i, ref := range refs {
		if err := ctx.Err(); err != nil {
			return nil, results, err
		}
		b.l.Info("training model",
			applogger.String("key", ref.Key.String()),
			applogger.Int("n", i+1),
			applogger.Int("of", len(refs)),
		)
		ds, err := LoadTrainingFile(ref)
		if err != nil {
			results = append(results, &models.JobResult{
				Key:      ref.Key,
				State:    models.StateFailed,
				FailedAt: models.StateLoaded,
				Err:      err,
			})
			b.l.Error("load training file failed", applogger.String("file", ref.Path), applogger.Error(err))
			continue
		}
		results = append(results, b.trainer.Train(ctx, ds))
	}
	summary, err := b.finish(ctx, results)
	return summary, results, err
}

// RunDatasets trains prepared datasets, one key at a time.
func (b *BatchTrainer) RunDatasets(ctx context.Context, datasets []*models.TrainingDataset) (*models.TrainingSummary, []*models.JobResult, error) {
	results := make([]*models.JobResult, 0, len(datasets))
	for _, ds := range datasets {
		if err := ctx.Err(); err != nil {
			return nil, results, err
		}
		results = append(results, b.trainer.Train(ctx, ds))
	}
	summary, err := b.finish(ctx, results)
	return summary, results, err
}

// TrainFromSource fetches vectors, groups them and trains every group large
// enough. instruments, when not empty, restricts training to those
// normalized instruments.
func (b *BatchTrainer) TrainFromSource(ctx context.Context, source domrepo.RecordSource, instruments []string) (*models.TrainingSummary, []*models.JobResult, error) {
	vectors, err := source.FetchVectors(ctx)
	if err != nil {
		return nil, nil, err
	}
	groups := GroupVectors(vectors, b.group)
	for key, n := range groups.Skipped {
		b.l.Warn("skipping key with too few samples",
			applogger.String("key", key),
			applogger.Int("samples", n),
			applogger.Int("need", b.group.MinGroupSamples),
		)
	}

	datasets := FilterInstruments(groups.Datasets, instruments)
	b.l.Info("training from records",
		applogger.Int("vectors", len(vectors)),
		applogger.Int("dropped", groups.Dropped),
		applogger.Int("models", len(datasets)),
	)
	return b.RunDatasets(ctx, datasets)
}

// FilterInstruments keeps the datasets of the given instruments; an empty
// list keeps all.
func FilterInstruments(datasets []*models.TrainingDataset, instruments []string) []*models.TrainingDataset {
	if len(instruments) == 0 {
		return datasets
	}
	want := make(map[string]bool, len(instruments))
	for _, inst := range instruments {
		want[models.NormalizeInstrument(inst)] = true
	}
	var out []*models.TrainingDataset
	for _, ds := range datasets {
		if want[ds.Key.Instrument] {
			out = append(out, ds)
		}
	}
	return out
}

// finish builds the run summary, writes it and publishes it. Writing and
// publishing are advisory: failures are logged, the summary is returned.
func (b *BatchTrainer) finish(ctx context.Context, results []*models.JobResult) (*models.TrainingSummary, error) {
	now := b.now().UTC()
	s := &models.TrainingSummary{
		RunID:     id.RunIDAt(now),
		Models:    make(map[string]string, len(results)),
		Timestamp: now,
	}
	for _, r := range results {
		if r.Succeeded() {
			s.TotalModels++
			s.Models[r.Key.String()] = models.OutcomeSuccess
		} else {
			s.Failed++
			s.Models[r.Key.String()] = models.OutcomeFailed
		}
	}
	b.l.Info("training run complete",
		applogger.String("run_id", s.RunID),
		applogger.Int("succeeded", s.TotalModels),
		applogger.Int("failed", s.Failed),
	)

	if b.summaryDir != "" {
		raw, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return s, err
		}
		if err := util.WriteFileAtomic(filepath.Join(b.summaryDir, summaryFileName), raw, 0o644); err != nil {
			b.l.Warn("write training summary failed", applogger.Error(err))
		}
	}
	if b.events != nil {
		if err := b.events.PublishTrainingSummary(ctx, s); err != nil {
			b.l.Warn("publish training summary failed", applogger.Error(err))
		}
	}
	return s, nil
}
