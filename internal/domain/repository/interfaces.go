package repository

import (
	"context"
	"time"

	"ListingRadar/internal/domain/models"
)

// SignalStream is a connected source feed producing normalized signals.
type SignalStream interface {
	Connect(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Signal, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Store is the synchronous save/load boundary crossed at state transitions.
type Store interface {
	SaveOpportunity(ctx context.Context, o *models.Opportunity) error
	SavePosition(ctx context.Context, p *models.Position) error
	SaveReliability(ctx context.Context, s *models.ReliabilitySample) error
	LoadReliability(ctx context.Context) ([]*models.ReliabilitySample, error)
	LoadOpenPositions(ctx context.Context) ([]*models.Position, error)
	Health(ctx context.Context) error
	Close() error
}

// EventPublisher emits lifecycle events; losing a consumer is never an error
// for the engine.
type EventPublisher interface {
	Publish(ctx context.Context, e *models.Event) error
	Close() error
}

// TradeArchive is the append-only record of closed trades used for
// attribution queries.
type TradeArchive interface {
	ArchiveClosed(ctx context.Context, p *models.Position) error
	QueryClosed(ctx context.Context, stage models.Stage, from, to time.Time, limit int) ([]*models.Position, error)
	Health(ctx context.Context) error
}

// Metrics records operational measurements.
type Metrics interface {
	RecordSignal(source string, accepted bool)
	RecordRateLimited(source string)
	RecordTransition(stage string, status string)
	RecordOpenPositions(n int)
	RecordRealizedPnL(stage string, pnl float64)
	RecordCircuitBreaker(tripped bool)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
