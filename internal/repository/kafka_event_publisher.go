package repository

import (
	"context"
	"fmt"

	"TradeGP/internal/domain/models"
	domrepo "TradeGP/internal/domain/repository"
	applogger "TradeGP/pkg/logger"
)

// KeyedPublisher is the subset of the Kafka producer the publisher needs.
type KeyedPublisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

// KafkaEventPublisher emits observations and training summaries as JSON
// events. Observations are keyed by model key so one key's outcomes stay
// ordered within a partition.
type KafkaEventPublisher struct {
	pub               KeyedPublisher
	observationsTopic string
	summariesTopic    string
	l                 *applogger.Logger
}

var (
	_ domrepo.ObservationSink = (*KafkaEventPublisher)(nil)
	_ domrepo.EventPublisher  = (*KafkaEventPublisher)(nil)
)

func NewKafkaEventPublisher(pub KeyedPublisher, observationsTopic, summariesTopic string, l *applogger.Logger) *KafkaEventPublisher {
	if l == nil {
		l = applogger.Nop()
	}
	return &KafkaEventPublisher{
		pub:               pub,
		observationsTopic: observationsTopic,
		summariesTopic:    summariesTopic,
		l:                 l.Component("kafka_events"),
	}
}

func (p *KafkaEventPublisher) Record(ctx context.Context, o *models.Observation) error {
	key, err := models.NewModelKey(o.Instrument, o.Direction)
	if err != nil {
		return err
	}
	if err := p.pub.Publish(ctx, p.observationsTopic, []byte(key.String()), o); err != nil {
		p.l.Error("publish observation failed",
			applogger.String("key", key.String()),
			applogger.String("topic", p.observationsTopic),
			applogger.Error(err),
		)
		return fmt.Errorf("publish observation %s: %w", o.ID, err)
	}
	return nil
}

func (p *KafkaEventPublisher) PublishTrainingSummary(ctx context.Context, s *models.TrainingSummary) error {
	if err := p.pub.Publish(ctx, p.summariesTopic, []byte(s.RunID), s); err != nil {
		p.l.Error("publish training summary failed",
			applogger.String("run_id", s.RunID),
			applogger.Error(err),
		)
		return fmt.Errorf("publish training summary %s: %w", s.RunID, err)
	}
	return nil
}
