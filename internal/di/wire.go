//go:build wireinject
// +build wireinject

package di

import (
	"CorrPull/pkg/config"
	"CorrPull/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire generates the implementation in wire_gen.go.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideRecorder,
		ProvideMetrics,
		ProvideClickHouseClient,
		ProvideSeriesCache,
		ProvideProviderLimiter,

		// Repositories
		ProvideSeriesProvider,
		ProvideSeriesStore,
		ProvideSeriesSource,
		ProvideResultStore,
		ProvideResultPublisher,

		// Use cases
		ProvideEntityFactory,
		ProvideCorrelationEngine,
		ProvideTopCorrelations,
		ProvideCorrelationJob,
		ProvideRankingsUseCase,
		ProvideJobHandler,
		ProvideJobQueue,
		ProvideJobSubmitter,

		// Transport and application server
		ProvideHTTPServer,
		ProvideKafkaConsumer,
		ProvideApp,
	)
	return nil, nil, nil
}
