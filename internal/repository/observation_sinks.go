package repository

import (
	"context"
	"errors"

	"TradeGP/internal/domain/models"
	domrepo "TradeGP/internal/domain/repository"
	applogger "TradeGP/pkg/logger"
)

// LogObservationSink only logs. It is the sink when neither Kafka nor
// ClickHouse is configured.
type LogObservationSink struct {
	l *applogger.Logger
}

func NewLogObservationSink(l *applogger.Logger) *LogObservationSink {
	if l == nil {
		l = applogger.Nop()
	}
	return &LogObservationSink{l: l.Component("observations")}
}

func (s *LogObservationSink) Record(_ context.Context, o *models.Observation) error {
	s.l.Info("observation recorded",
		applogger.String("id", o.ID),
		applogger.String("instrument", o.Instrument),
		applogger.String("direction", o.Direction),
		applogger.Float64("actual_outcome", o.Outcome),
		applogger.Int("features", len(o.Features)),
	)
	return nil
}

// LogEventPublisher logs training summaries instead of publishing them.
type LogEventPublisher struct {
	l *applogger.Logger
}

func NewLogEventPublisher(l *applogger.Logger) *LogEventPublisher {
	if l == nil {
		l = applogger.Nop()
	}
	return &LogEventPublisher{l: l.Component("events")}
}

func (p *LogEventPublisher) PublishTrainingSummary(_ context.Context, s *models.TrainingSummary) error {
	p.l.Info("training summary",
		applogger.String("run_id", s.RunID),
		applogger.Int("total_models", s.TotalModels),
		applogger.Int("failed", s.Failed),
	)
	return nil
}

// FanoutSink records to every sink and joins their errors.
type FanoutSink []domrepo.ObservationSink

func (f FanoutSink) Record(ctx context.Context, o *models.Observation) error {
	var errs []error
	for _, s := range f {
		if err := s.Record(ctx, o); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
