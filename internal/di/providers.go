package di

import (
	"context"
	"fmt"
	"time"

	"ListingRadar/internal/bus"
	"ListingRadar/internal/domain/models"
	drepo "ListingRadar/internal/domain/repository"
	domsvc "ListingRadar/internal/domain/service"
	"ListingRadar/internal/execution"
	"ListingRadar/internal/handler/api"
	"ListingRadar/internal/registry"
	internalrepo "ListingRadar/internal/repository"
	"ListingRadar/internal/risk"
	"ListingRadar/internal/scoring"
	"ListingRadar/internal/service/broker"
	"ListingRadar/internal/service/feeds"
	"ListingRadar/internal/service/inference"
	"ListingRadar/internal/service/pricefeed"
	"ListingRadar/internal/usecase"
	pkgch "ListingRadar/pkg/clickhouse"
	"ListingRadar/pkg/config"
	pkghttp "ListingRadar/pkg/http"
	pkgkafka "ListingRadar/pkg/kafka"
	"ListingRadar/pkg/logger"
	"ListingRadar/pkg/metrics"
	"ListingRadar/pkg/server"

	"github.com/redis/go-redis/v9"
)

// closedRecordTTL bounds how long terminal records linger in Redis; the
// ClickHouse archive is the durable history.
const closedRecordTTL = 7 * 24 * time.Hour

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() drepo.Metrics {
	return metrics.New()
}

// ProvideRedisClient creates the Redis connection behind the Store.
func ProvideRedisClient(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// ProvideStore creates the Redis-backed state store.
func ProvideStore(client *redis.Client) drepo.Store {
	return internalrepo.NewRedisStore(client, closedRecordTTL)
}

// ProvideClickHouseClient creates the archive database client, nil when the
// archive is disabled.
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
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	stmts := append(
		[]string{fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", cfg.ClickHouse.Database)},
		internalrepo.ArchiveSchema(cfg.ClickHouse.Database+".closed_trades")...,
	)
	if err := client.InitSchema(ctx, stmts); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideTradeArchive creates the closed-trade archive, nil when ClickHouse
// is disabled.
func ProvideTradeArchive(chClient *pkgch.Client, cfg *config.Config) drepo.TradeArchive {
	if chClient == nil {
		return nil
	}
	return internalrepo.NewClickHouseArchive(chClient.DB(), cfg.ClickHouse.Database+".closed_trades")
}

// ProvideKafkaProducer creates the producer behind the event publisher.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
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
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideEventPublisher creates the lifecycle event publisher.
func ProvideEventPublisher(producer *pkgkafka.Producer, cfg *config.Config) drepo.EventPublisher {
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.EventsTopic)
}

// ProvideKafkaConsumer creates the raw-signal consumer.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideInference creates the model service client.
func ProvideInference(cfg *config.Config) domsvc.Inference {
	return inference.New(cfg.Inference.BaseURL, pkghttp.NewClient(pkghttp.WithTimeout(cfg.Inference.Timeout)))
}

// ProvideExecution creates the execution venue client.
func ProvideExecution(cfg *config.Config) domsvc.Execution {
	return broker.New(cfg.Execution.BaseURL, pkghttp.NewClient(pkghttp.WithTimeout(cfg.Execution.Timeout)))
}

// ProvidePriceFeed creates the spot price client.
func ProvidePriceFeed(cfg *config.Config) domsvc.PriceFeed {
	return pricefeed.New(cfg.PriceFeed.BaseURL, cfg.PriceFeed.CacheTTL, pkghttp.NewClient(pkghttp.WithTimeout(cfg.PriceFeed.Timeout)))
}

// ProvideSignalStream creates the aggregator WebSocket stream.
func ProvideSignalStream(cfg *config.Config, log *logger.Logger) drepo.SignalStream {
	return feeds.New(
		cfg.Feed.APIKey,
		cfg.Feed.WebSocketURL,
		cfg.Engine.MonitorSources,
		cfg.Feed.ReconnectDelay,
		cfg.Feed.PingInterval,
		log,
	)
}

// ProvideBus creates the signal bus.
func ProvideBus(cfg *config.Config, m drepo.Metrics, events drepo.EventPublisher, log *logger.Logger) *bus.Bus {
	return bus.New(
		cfg.Engine.DedupBucket,
		cfg.Engine.SourceRatePerMin,
		cfg.Engine.MonitorSources,
		m, events, log,
	)
}

// ProvideReliabilityTable creates the per-source reliability table.
func ProvideReliabilityTable(cfg *config.Config, store drepo.Store) *scoring.ReliabilityTable {
	return scoring.NewReliabilityTable(cfg.Engine.ReliabilityAlpha, store)
}

// ProvideScorer creates the confidence scorer.
func ProvideScorer(cfg *config.Config, inf domsvc.Inference, rel *scoring.ReliabilityTable, m drepo.Metrics, log *logger.Logger) *scoring.Scorer {
	return scoring.NewScorer(inf, rel, scoring.Weights{
		Model:         cfg.Engine.Weights.Model,
		Corroboration: cfg.Engine.Weights.Corroboration,
		Reliability:   cfg.Engine.Weights.Reliability,
	}, cfg.Engine.ReliabilityFloor, cfg.Inference.Timeout, m, log)
}

// ProvideRegistry creates the opportunity registry.
func ProvideRegistry(cfg *config.Config, scorer *scoring.Scorer, store drepo.Store, events drepo.EventPublisher, m drepo.Metrics, log *logger.Logger) *registry.Registry {
	ttlFor := func(stage models.Stage) time.Duration { return cfg.StageFor(stage).TTL }
	return registry.New(ttlFor, cfg.Engine.ConfidenceThreshold, scorer, store, events, m, log)
}

// ProvideRiskManager creates the risk manager.
func ProvideRiskManager(cfg *config.Config, m drepo.Metrics, events drepo.EventPublisher, log *logger.Logger) *risk.Manager {
	ceilings := make(map[models.Stage]float64, len(cfg.Engine.Stages))
	for stage, sc := range cfg.Engine.Stages {
		ceilings[stage] = sc.MaxAmount
	}
	return risk.NewManager(risk.Config{
		Equity:                 cfg.Risk.Equity,
		MaxDailyLossPct:        cfg.Risk.MaxDailyLossPct,
		MaxConcurrentPositions: cfg.Risk.MaxConcurrentPositions,
		MaxExposurePct:         cfg.Risk.MaxExposurePct,
		CorrelationLimit:       cfg.Risk.CorrelationLimit,
		MinTradeAmount:         cfg.Risk.MinTradeAmount,
		ConfidenceThreshold:    cfg.Engine.ConfidenceThreshold,
		StageCeilings:          ceilings,
	}, risk.NewState(time.Now()), m, events, log)
}

// ProvideCoordinator creates the execution coordinator.
func ProvideCoordinator(cfg *config.Config, exec domsvc.Execution, m drepo.Metrics, log *logger.Logger) *execution.Coordinator {
	return execution.NewCoordinator(
		exec,
		cfg.Execution.Timeout,
		cfg.Execution.MaxAttempts,
		cfg.Execution.BackoffMin,
		cfg.Execution.BackoffMax,
		m, log,
	)
}

// ProvidePerformanceTracker creates the performance tracker.
func ProvidePerformanceTracker(rel *scoring.ReliabilityTable, archive drepo.TradeArchive, m drepo.Metrics, log *logger.Logger) *usecase.PerformanceTracker {
	return usecase.NewPerformanceTracker(rel, archive, m, log)
}

// ProvideExitScheduler creates the exit scheduler; the engine binds itself
// as closer afterwards.
func ProvideExitScheduler(cfg *config.Config, prices domsvc.PriceFeed, m drepo.Metrics, log *logger.Logger) *usecase.ExitScheduler {
	return usecase.NewExitScheduler(prices, nil, cfg.Engine.TickInterval, cfg.PriceFeed.Timeout, m, log)
}

// ProvideEngine creates the pipeline engine and closes the exit loop.
func ProvideEngine(
	cfg *config.Config,
	b *bus.Bus,
	reg *registry.Registry,
	riskMgr *risk.Manager,
	coord *execution.Coordinator,
	exits *usecase.ExitScheduler,
	perf *usecase.PerformanceTracker,
	store drepo.Store,
	events drepo.EventPublisher,
	m drepo.Metrics,
	log *logger.Logger,
) *usecase.Engine {
	rules := models.ExitRules{
		TakeProfit: cfg.ExitStrategy.TakeProfit,
		StopLoss:   cfg.ExitStrategy.StopLoss,
		MaxHold:    cfg.ExitStrategy.TimeBasedExit,
	}
	engine := usecase.NewEngine(b, reg, riskMgr, coord, exits, perf, store, events, m, log,
		rules, cfg.Kafka.Consumer.Workers)
	exits.Bind(engine)
	return engine
}

// ProvideSignalCollector creates the feed-to-bus pump.
func ProvideSignalCollector(stream drepo.SignalStream, b *bus.Bus, m drepo.Metrics) *usecase.SignalCollector {
	return usecase.NewSignalCollector(stream, b, m)
}

// ProvideKafkaSignalsHandler registers the raw-signal topic handler.
func ProvideKafkaSignalsHandler(cfg *config.Config, b *bus.Bus, m drepo.Metrics) *usecase.KafkaSignalsHandler {
	return usecase.NewKafkaSignalsHandler(cfg.Kafka.SignalsTopic, b, m)
}

// ProvideOpsHandler creates the HTTP inspection surface.
func ProvideOpsHandler(
	log *logger.Logger,
	b *bus.Bus,
	reg *registry.Registry,
	riskMgr *risk.Manager,
	exits *usecase.ExitScheduler,
	perf *usecase.PerformanceTracker,
	collector *usecase.SignalCollector,
	store drepo.Store,
	archive drepo.TradeArchive,
) *api.OpsHandler {
	return api.NewOpsHandler(log, b, reg, riskMgr, exits, perf, collector, store, archive)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	engine *usecase.Engine,
	collector *usecase.SignalCollector,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaSignalsHandler,
	rel *scoring.ReliabilityTable,
	ops *api.OpsHandler,
	b *bus.Bus,
	events drepo.EventPublisher,
	store drepo.Store,
	chClient *pkgch.Client,
) *server.App {
	if consumer != nil {
		consumer.WithConsumerHook(pkgkafka.NoopHook{})
	}
	return server.New(cfg, log, engine, collector, consumer, kh, rel, ops, b, events, store, chClient)
}
