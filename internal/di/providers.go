package di

import (
	"context"
	"fmt"
	"time"

	domrepo "TradeGP/internal/domain/repository"
	"TradeGP/internal/handler/api"
	internalrepo "TradeGP/internal/repository"
	"TradeGP/internal/service/cache"
	"TradeGP/internal/service/ratelimit"
	"TradeGP/internal/service/registry"
	"TradeGP/internal/service/watcher"
	"TradeGP/internal/usecase"
	pkgch "TradeGP/pkg/clickhouse"
	"TradeGP/pkg/config"
	"TradeGP/pkg/gp"
	xhttp "TradeGP/pkg/http"
	"TradeGP/pkg/http/middleware"
	pkgkafka "TradeGP/pkg/kafka"
	applogger "TradeGP/pkg/logger"
	"TradeGP/pkg/metrics"
	"TradeGP/pkg/server"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// ProvideLogger builds the process logger from the logging section. With
// logging.collect set and a producer, aggregated error logs are shipped to
// the logs topic; the collector must be attached before any child logger
// is derived.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Logging.Collect && producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval: cfg.Logging.CollectInterval,
			Topic:        cfg.Kafka.Topics.Logs,
			Publisher:    producer,
		})
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// collectorCloser flushes the log collector on shutdown.
type collectorCloser struct{ l *applogger.Logger }

func (c collectorCloser) Close() error {
	c.l.RemoveCollector()
	return nil
}

// ProvidePrometheusRegistry creates the registry served on the metrics path.
func ProvidePrometheusRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) *metrics.Recorder {
	return metrics.New(reg)
}

func ProvideHTTPMetrics(reg *prometheus.Registry) *middleware.HTTPMetrics {
	return middleware.NewHTTPMetrics(reg)
}

// ProvideClickHouseClient creates a ClickHouse client and the observation
// table. Returns nil when ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, internalrepo.ObservationSchema(cfg.ClickHouse.Table)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideObservationStore journals observations in ClickHouse. Returns nil
// without a client.
func ProvideObservationStore(client *pkgch.Client, cfg *config.Config, l *applogger.Logger) *internalrepo.CHObservationStore {
	if client == nil {
		return nil
	}
	return internalrepo.NewCHObservationStore(client, cfg.ClickHouse.Table, l)
}

// ProvideKafkaProducer creates a Kafka producer. Returns nil when Kafka is
// disabled.
func ProvideKafkaProducer(cfg *config.Config, reg *prometheus.Registry) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithProducerMetrics(reg),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	return producer, nil
}

// ProvideKafkaEventPublisher returns nil without a producer.
func ProvideKafkaEventPublisher(producer *pkgkafka.Producer, cfg *config.Config, l *applogger.Logger) *internalrepo.KafkaEventPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.Topics.Observations, cfg.Kafka.Topics.Summaries, l)
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML.
func ProvideKafkaConsumer(cfg *config.Config, reg *prometheus.Registry, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
		pkgkafka.WithConsumerMetrics(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// InProcessConsumer is the observations consumer run inside the server.
// Both fields are nil unless kafka.consumer.in_process is set.
type InProcessConsumer struct {
	Consumer *pkgkafka.Consumer
	Handler  *usecase.KafkaObservationsHandler
}

func ProvideInProcessConsumer(cfg *config.Config, reg *prometheus.Registry, store *internalrepo.CHObservationStore, m *metrics.Recorder, l *applogger.Logger) (InProcessConsumer, error) {
	if !cfg.Kafka.Consumer.InProcess || store == nil {
		return InProcessConsumer{}, nil
	}
	consumer, err := ProvideKafkaConsumer(cfg, reg, l)
	if err != nil {
		return InProcessConsumer{}, err
	}
	return InProcessConsumer{
		Consumer: consumer,
		Handler:  ProvideKafkaObservationsHandler(cfg, store, m),
	}, nil
}

// ProvideKafkaObservationsHandler writes consumed observations to ClickHouse.
func ProvideKafkaObservationsHandler(cfg *config.Config, store *internalrepo.CHObservationStore, m *metrics.Recorder) *usecase.KafkaObservationsHandler {
	return usecase.NewKafkaObservationsHandler(cfg.Kafka.Topics.Observations, store, m)
}

// ProvideObservationSink logs every observation and forwards it to Kafka
// when enabled, otherwise straight to ClickHouse. With both enabled the
// Kafka consumer owns the ClickHouse write.
func ProvideObservationSink(l *applogger.Logger, store *internalrepo.CHObservationStore, events *internalrepo.KafkaEventPublisher) domrepo.ObservationSink {
	sinks := internalrepo.FanoutSink{internalrepo.NewLogObservationSink(l)}
	switch {
	case events != nil:
		sinks = append(sinks, events)
	case store != nil:
		sinks = append(sinks, store)
	}
	return sinks
}

func ProvideEventPublisher(l *applogger.Logger, events *internalrepo.KafkaEventPublisher) domrepo.EventPublisher {
	if events != nil {
		return events
	}
	return internalrepo.NewLogEventPublisher(l)
}

// ProvideRecordSource picks the trade record source for train-all and
// export. Returns nil for storage.source none.
func ProvideRecordSource(cfg *config.Config, store *internalrepo.CHObservationStore, l *applogger.Logger) domrepo.RecordSource {
	switch cfg.Storage.Source {
	case "http":
		return internalrepo.NewHTTPRecordSource(cfg.Storage.URL, cfg.Storage.Timeout, l)
	case "clickhouse":
		if store != nil {
			return store
		}
	}
	return nil
}

// ProvideRedisCache returns nil unless the prediction cache uses Redis.
func ProvideRedisCache(cfg *config.Config, l *applogger.Logger) *cache.RedisCache {
	pc := cfg.Prediction.Cache
	if !pc.Enabled || pc.Backend == "memory" {
		return nil
	}
	return cache.NewRedisCache(cache.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Prefix:   cfg.Redis.Prefix,
	}, l)
}

// ProvidePredictionCache returns nil when caching is disabled.
func ProvidePredictionCache(cfg *config.Config, rc *cache.RedisCache) domrepo.PredictionCache {
	pc := cfg.Prediction.Cache
	if !pc.Enabled {
		return nil
	}
	switch pc.Backend {
	case "redis":
		return rc
	case "layered":
		return cache.NewLayered(cache.NewTTLCache(pc.MaxEntries), rc, pc.TTL)
	default:
		return cache.NewTTLCache(pc.MaxEntries)
	}
}

func gpParams(p config.GPParams) gp.Params {
	return gp.Params{
		Kernel:      gp.KernelKind(p.Kernel),
		Amplitude:   p.Amplitude,
		LengthScale: p.LengthScale,
		Noise:       p.Noise,
		Alpha:       p.Alpha,
		NormalizeY:  p.NormalizeY,
	}
}

// ProvideTrainerConfig maps the features, gp and training sections.
func ProvideTrainerConfig(cfg *config.Config) usecase.TrainerConfig {
	return usecase.TrainerConfig{
		ExpectedWidth:        cfg.Features.ExpectedWidth,
		VarianceThreshold:    cfg.Features.VarianceThreshold,
		MinSamples:           cfg.Training.MinSamples,
		MinPnLVariance:       cfg.Training.MinPnLVariance,
		HoldoutFraction:      cfg.Training.HoldoutFraction,
		MaxTrajectorySamples: cfg.Training.MaxTrajectorySamples,
		Seed:                 cfg.Training.Seed,
		PnL:                  gpParams(cfg.GP.PnL),
		Trajectory:           gpParams(cfg.GP.Trajectory),
		Risk:                 gpParams(cfg.GP.Risk),
		Workers:              cfg.GP.Workers,
	}
}

func ProvideGroupConfig(cfg *config.Config) usecase.GroupConfig {
	return usecase.GroupConfig{
		TrajectoryLength:  cfg.Training.TrajectoryLength,
		DefaultStopLoss:   cfg.Training.DefaultStopLoss,
		DefaultTakeProfit: cfg.Training.DefaultTakeProfit,
		MinGroupSamples:   cfg.Training.MinGroupSamples,
	}
}

func ProvideBundleStore(cfg *config.Config, l *applogger.Logger) *internalrepo.FileBundleStore {
	return internalrepo.NewFileBundleStore(cfg.Models.Dir, cfg.GP.Workers, l)
}

// ProvideRegistry keeps the models-loaded gauge in step with the registry.
func ProvideRegistry(m *metrics.Recorder) *registry.Registry {
	r := registry.New()
	r.OnChange(m.SetModelsLoaded)
	return r
}

// ProvideWatcher returns nil when models.watch is off.
func ProvideWatcher(cfg *config.Config, store *internalrepo.FileBundleStore, reg *registry.Registry, l *applogger.Logger) *watcher.ModelWatcher {
	if !cfg.Models.Watch {
		return nil
	}
	return watcher.New(cfg.Models.Dir, store, reg, cfg.Models.Debounce, l)
}

func ProvideTrainer(tc usecase.TrainerConfig, store *internalrepo.FileBundleStore, reg *registry.Registry, m *metrics.Recorder, l *applogger.Logger) *usecase.Trainer {
	return usecase.NewTrainer(tc, store, reg, m, l)
}

// ProvideBatchTrainer writes run summaries next to the bundles.
func ProvideBatchTrainer(cfg *config.Config, t *usecase.Trainer, events domrepo.EventPublisher, group usecase.GroupConfig, l *applogger.Logger) *usecase.BatchTrainer {
	return usecase.NewBatchTrainer(t, events, group, cfg.Models.Dir, l)
}

func ProvidePredictor(cfg *config.Config, reg *registry.Registry, sink domrepo.ObservationSink, pc domrepo.PredictionCache, m *metrics.Recorder, l *applogger.Logger) *usecase.Predictor {
	var ttl time.Duration
	if pc != nil {
		ttl = cfg.Prediction.Cache.TTL
	}
	return usecase.NewPredictor(usecase.PredictorConfig{
		ExpectedWidth:    cfg.Features.ExpectedWidth,
		ConfidenceJitter: cfg.Prediction.ConfidenceJitter,
		CacheTTL:         ttl,
	}, reg, sink, pc, m, l)
}

// ProvideLimiter returns nil when rate limiting is disabled.
func ProvideLimiter(cfg *config.Config) *ratelimit.Limiter {
	if !cfg.RateLimit.Enabled {
		return nil
	}
	return ratelimit.New(cfg.RateLimit.Capacity, cfg.RateLimit.Refill)
}

func ProvideModelHandler(l *applogger.Logger, p *usecase.Predictor, t *usecase.Trainer, b *usecase.BatchTrainer, source domrepo.RecordSource, limiter *ratelimit.Limiter) *api.ModelHandler {
	var mw []echo.MiddlewareFunc
	if limiter != nil {
		mw = append(mw, limiter.Middleware())
	}
	return api.NewModelHandler(l, p, t, b, source, mw...)
}

func ProvideStreamHandler(cfg *config.Config, l *applogger.Logger, p *usecase.Predictor) *api.StreamHandler {
	return api.NewStreamHandler(l, p, cfg.Server.WSPingInterval)
}

// ProvideHTTPServer assembles the echo server with every route handler.
func ProvideHTTPServer(cfg *config.Config, l *applogger.Logger, reg *prometheus.Registry, hm *middleware.HTTPMetrics, mh *api.ModelHandler, sh *api.StreamHandler) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORS),
		xhttp.WithLogger(l),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(hm, reg, cfg.Metrics.Path))
	}
	return xhttp.NewServer([]xhttp.Handler{mh, sh}, opts...)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	reg *registry.Registry,
	store *internalrepo.FileBundleStore,
	w *watcher.ModelWatcher,
	ipc InProcessConsumer,
	batch *usecase.BatchTrainer,
	source domrepo.RecordSource,
	chClient *pkgch.Client,
	producer *pkgkafka.Producer,
	rc *cache.RedisCache,
) *server.App {
	var opts []server.Option
	if w != nil {
		opts = append(opts, server.WithWatcher(w))
	}
	if ipc.Consumer != nil {
		opts = append(opts, server.WithConsumer(ipc.Consumer, ipc.Handler))
	}
	if cfg.Training.AutoTrain && source != nil {
		opts = append(opts, server.WithAutoTrain(batch, source))
	}
	// Producer last: in-flight events from the closers above still flush.
	if rc != nil {
		opts = append(opts, server.WithClosers(rc))
	}
	if chClient != nil {
		opts = append(opts, server.WithClosers(chClient))
	}
	if producer != nil {
		opts = append(opts, server.WithClosers(collectorCloser{l}, producer))
	}
	return server.New(cfg, l, srv, reg, store, opts...)
}
