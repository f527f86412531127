package di

import (
	"errors"
	"io"

	domrepo "TradeGP/internal/domain/repository"
	internalrepo "TradeGP/internal/repository"
	"TradeGP/internal/usecase"
	pkgch "TradeGP/pkg/clickhouse"
	"TradeGP/pkg/config"
	pkgkafka "TradeGP/pkg/kafka"
	applogger "TradeGP/pkg/logger"
	"TradeGP/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

// Toolkit is the offline training stack behind cmd/trainer: no HTTP
// server, no watcher, no prediction cache.
type Toolkit struct {
	Config       *config.Config
	Logger       *applogger.Logger
	Prometheus   *prometheus.Registry
	Metrics      *metrics.Recorder
	Store        *internalrepo.FileBundleStore
	Trainer      *usecase.Trainer
	Batch        *usecase.BatchTrainer
	Source       domrepo.RecordSource // nil for storage.source none
	Observations *internalrepo.CHObservationStore

	closers []io.Closer
}

func ProvideToolkit(
	cfg *config.Config,
	l *applogger.Logger,
	reg *prometheus.Registry,
	m *metrics.Recorder,
	store *internalrepo.FileBundleStore,
	trainer *usecase.Trainer,
	batch *usecase.BatchTrainer,
	source domrepo.RecordSource,
	observations *internalrepo.CHObservationStore,
	chClient *pkgch.Client,
	producer *pkgkafka.Producer,
) *Toolkit {
	t := &Toolkit{
		Config:       cfg,
		Logger:       l,
		Prometheus:   reg,
		Metrics:      m,
		Store:        store,
		Trainer:      trainer,
		Batch:        batch,
		Source:       source,
		Observations: observations,
	}
	if chClient != nil {
		t.closers = append(t.closers, chClient)
	}
	if producer != nil {
		t.closers = append(t.closers, collectorCloser{l}, producer)
	}
	return t
}

// Close releases the infrastructure clients.
func (t *Toolkit) Close() error {
	var errs []error
	for _, c := range t.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
