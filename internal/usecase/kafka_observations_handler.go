package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"TradeGP/internal/domain/models"
	domrepo "TradeGP/internal/domain/repository"
	pkgkafka "TradeGP/pkg/kafka"
)

// KafkaObservationsHandler consumes observation events and writes them to
// the observation journal.
type KafkaObservationsHandler struct {
	topic   string
	sink    domrepo.ObservationSink
	metrics domrepo.Metrics
}

func NewKafkaObservationsHandler(topic string, sink domrepo.ObservationSink, metrics domrepo.Metrics) *KafkaObservationsHandler {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &KafkaObservationsHandler{topic: topic, sink: sink, metrics: metrics}
}

func (h *KafkaObservationsHandler) Topic() string { return h.topic }

// incoming message schema: models.Observation
func (h *KafkaObservationsHandler) Handle(ctx context.Context, b []byte) error {
	var o models.Observation
	if err := json.Unmarshal(b, &o); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	key, err := models.NewModelKey(o.Instrument, o.Direction)
	if err != nil {
		h.metrics.RecordError("consumer_key")
		return fmt.Errorf("observation %s: %w", o.ID, err)
	}
	o.Instrument, o.Direction = key.Instrument, string(key.Direction)
	if o.RecordedAt.IsZero() {
		o.RecordedAt = time.Now().UTC()
	}

	if err := h.sink.Record(ctx, &o); err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaObservationsHandler)(nil)
