//go:build wireinject
// +build wireinject

package di

import (
	"ListingRadar/pkg/config"
	"ListingRadar/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideRedisClient,
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvideStore,
		ProvideTradeArchive,
		ProvideEventPublisher,

		// External collaborators
		ProvideInference,
		ProvideExecution,
		ProvidePriceFeed,
		ProvideSignalStream,

		// Engine core
		ProvideBus,
		ProvideReliabilityTable,
		ProvideScorer,
		ProvideRegistry,
		ProvideRiskManager,
		ProvideCoordinator,
		ProvidePerformanceTracker,
		ProvideExitScheduler,
		ProvideEngine,

		// Use cases and handlers
		ProvideSignalCollector,
		ProvideKafkaSignalsHandler,
		ProvideOpsHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
