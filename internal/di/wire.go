//go:build wireinject
// +build wireinject

package di

import (
	"TradeGP/pkg/config"
	"TradeGP/pkg/server"

	"github.com/google/wire"
)

var infraSet = wire.NewSet(
	ProvidePrometheusRegistry,
	ProvideKafkaProducer,
	ProvideLogger,
	ProvideMetrics,
	ProvideClickHouseClient,
	ProvideObservationStore,
	ProvideKafkaEventPublisher,
	ProvideEventPublisher,
	ProvideRecordSource,
)

var trainingSet = wire.NewSet(
	ProvideTrainerConfig,
	ProvideGroupConfig,
	ProvideBundleStore,
	ProvideRegistry,
	ProvideTrainer,
	ProvideBatchTrainer,
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		infraSet,
		trainingSet,

		// Serving
		ProvideHTTPMetrics,
		ProvideObservationSink,
		ProvideRedisCache,
		ProvidePredictionCache,
		ProvideWatcher,
		ProvidePredictor,
		ProvideLimiter,
		ProvideModelHandler,
		ProvideStreamHandler,
		ProvideHTTPServer,
		ProvideInProcessConsumer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}

// InitializeToolkit wires the offline training stack for the trainer CLI.
func InitializeToolkit(cfg *config.Config) (*Toolkit, error) {
	wire.Build(
		infraSet,
		trainingSet,
		ProvideToolkit,
	)
	return &Toolkit{}, nil
}
