package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"ListingRadar/internal/bus"
	drepo "ListingRadar/internal/domain/repository"
	"ListingRadar/internal/handler/api"
	"ListingRadar/internal/scoring"
	"ListingRadar/internal/usecase"
	pkgch "ListingRadar/pkg/clickhouse"
	"ListingRadar/pkg/config"
	xhttp "ListingRadar/pkg/http"
	pkgkafka "ListingRadar/pkg/kafka"
	applogger "ListingRadar/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	engine     *usecase.Engine
	collector  *usecase.SignalCollector
	consumer   *pkgkafka.Consumer
	kh         pkgkafka.MessageHandler
	rel        *scoring.ReliabilityTable
	ops        *api.OpsHandler
	bus        *bus.Bus
	events     drepo.EventPublisher
	store      drepo.Store
	chClient   *pkgch.Client
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	engine *usecase.Engine,
	collector *usecase.SignalCollector,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	rel *scoring.ReliabilityTable,
	ops *api.OpsHandler,
	b *bus.Bus,
	events drepo.EventPublisher,
	store drepo.Store,
	chClient *pkgch.Client,
) *App {
	return &App{
		cfg:       cfg,
		log:       log,
		engine:    engine,
		collector: collector,
		consumer:  consumer,
		kh:        kh,
		rel:       rel,
		ops:       ops,
		bus:       b,
		events:    events,
		store:     store,
		chClient:  chClient,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Restore persisted state before anything produces new state.
	if err := a.rel.Load(ctx); err != nil {
		a.log.Warn("reliability restore failed", applogger.Error(err))
	}
	if err := a.engine.Restore(ctx); err != nil {
		a.log.Warn("position restore failed", applogger.Error(err))
	}

	a.engine.Start(ctx)

	// Source feed over WebSocket, when configured.
	if a.cfg.Feed.WebSocketURL != "" {
		go func() {
			if err := a.collector.Start(ctx); err != nil {
				a.log.Error("collector error", applogger.Error(err))
			}
		}()
		a.log.Info("collector started", applogger.Strings("sources", a.cfg.Engine.MonitorSources))
	}

	// Raw signals over Kafka.
	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.log.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.log.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	a.httpServer = xhttp.NewServer(a.ops,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)
	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	cancel()
	return a.shutdown(context.Background())
}

// shutdown gracefully stops all services. Positions stay open; they are
// re-tracked from the store on the next start.
func (a *App) shutdown(ctx context.Context) error {
	if a.cfg.Feed.WebSocketURL != "" {
		if err := a.collector.Stop(); err != nil {
			a.log.Warn("collector stop error", applogger.Error(err))
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	a.bus.Close()
	a.engine.Wait()

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}

	if a.events != nil {
		if err := a.events.Close(); err != nil {
			a.log.Warn("event publisher close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("store close error", applogger.Error(err))
	}

	a.log.Info("shutdown complete")
	return nil
}
