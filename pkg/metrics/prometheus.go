package metrics

import (
	"TradeGP/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	predictions       *prometheus.CounterVec
	predictLatency    *prometheus.HistogramVec
	confidence        *prometheus.HistogramVec
	secondaryFailures *prometheus.CounterVec
	trainingJobs      *prometheus.CounterVec
	trainingDuration  *prometheus.HistogramVec
	modelsLoaded      prometheus.Gauge
	errorsTotal       *prometheus.CounterVec
}

// New registers the recorder's collectors on reg. A nil reg uses the
// default registry.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		predictions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gp_predictions_total",
				Help: "Predictions served, by model key and outcome",
			},
			[]string{"key", "outcome"},
		),
		predictLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gp_prediction_duration_seconds",
				Help:    "Prediction latency in seconds",
				Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"key"},
		),
		confidence: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gp_prediction_confidence",
				Help:    "Confidence score of served predictions",
				Buckets: prometheus.LinearBuckets(0.1, 0.05, 18),
			},
			[]string{"key"},
		),
		secondaryFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gp_secondary_model_failures_total",
				Help: "Trajectory and risk prediction failures",
			},
			[]string{"key", "model"},
		),
		trainingJobs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gp_training_jobs_total",
				Help: "Training jobs by outcome and the stage they ended in",
			},
			[]string{"key", "state", "outcome"},
		),
		trainingDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gp_training_duration_seconds",
				Help:    "Wall time of one training job",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"outcome"},
		),
		modelsLoaded: f.NewGauge(prometheus.GaugeOpts{
			Name: "gp_models_loaded",
			Help: "Bundles currently servable",
		}),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gp_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
	}
}

// RecordPrediction records one served prediction. confidence is ignored
// for failed predictions.
func (r *Recorder) RecordPrediction(key, outcome string, seconds, confidence float64) {
	r.predictions.WithLabelValues(key, outcome).Inc()
	r.predictLatency.WithLabelValues(key).Observe(seconds)
	if outcome == models.OutcomeSuccess {
		r.confidence.WithLabelValues(key).Observe(confidence)
	}
}

func (r *Recorder) RecordSecondaryFailure(key, model string) {
	r.secondaryFailures.WithLabelValues(key, model).Inc()
}

func (r *Recorder) RecordTrainingJob(key string, state models.JobState, outcome string, seconds float64) {
	r.trainingJobs.WithLabelValues(key, string(state), outcome).Inc()
	r.trainingDuration.WithLabelValues(outcome).Observe(seconds)
}

func (r *Recorder) SetModelsLoaded(n int) {
	r.modelsLoaded.Set(float64(n))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}
