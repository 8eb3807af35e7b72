package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ListingRadar/internal/bus"
	"ListingRadar/internal/domain/models"
	drepo "ListingRadar/internal/domain/repository"
	"ListingRadar/internal/execution"
	"ListingRadar/internal/registry"
	"ListingRadar/internal/risk"
	"ListingRadar/pkg/logger"
)

// Engine drives the opportunity pipeline: signals from the bus feed the
// registry, validated opportunities pass through risk evaluation, approved
// entries become positions, and triggered exits settle back through here.
type Engine struct {
	bus      *bus.Bus
	registry *registry.Registry
	riskMgr  *risk.Manager
	coord    *execution.Coordinator
	exits    *ExitScheduler
	perf     *PerformanceTracker
	store    drepo.Store
	events   drepo.EventPublisher
	metrics  drepo.Metrics
	log      *logger.Logger

	exitRules models.ExitRules
	workers   int

	wg sync.WaitGroup
}

func NewEngine(
	b *bus.Bus,
	reg *registry.Registry,
	riskMgr *risk.Manager,
	coord *execution.Coordinator,
	exits *ExitScheduler,
	perf *PerformanceTracker,
	store drepo.Store,
	events drepo.EventPublisher,
	metrics drepo.Metrics,
	log *logger.Logger,
	exitRules models.ExitRules,
	workers int,
) *Engine {
	if workers <= 0 {
		workers = 4
	}
	return &Engine{
		bus:       b,
		registry:  reg,
		riskMgr:   riskMgr,
		coord:     coord,
		exits:     exits,
		perf:      perf,
		store:     store,
		events:    events,
		metrics:   metrics,
		log:       log.With("engine"),
		exitRules: exitRules,
		workers:   workers,
	}
}

// Start launches the signal workers and the daily risk reset loop.
func (e *Engine) Start(ctx context.Context) {
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.consume(ctx)
		}()
	}
	go e.riskMgr.RunDailyReset(ctx)
	e.log.Info("engine started", logger.Int("workers", e.workers))
}

// Wait blocks until all signal workers have drained.
func (e *Engine) Wait() { e.wg.Wait() }

func (e *Engine) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-e.bus.Out():
			if !ok {
				return
			}
			e.handleSignal(ctx, sig)
		}
	}
}

// handleSignal folds a signal into its opportunity; when the signal tips the
// opportunity over the confidence threshold the entry path runs inline.
// Per-key serialization lives in the registry, so workers stay independent.
func (e *Engine) handleSignal(ctx context.Context, sig *models.Signal) {
	opp, validated := e.registry.Apply(ctx, sig)
	if !validated {
		return
	}
	e.enter(ctx, opp)
}

func (e *Engine) enter(ctx context.Context, opp *models.Opportunity) {
	decision := e.riskMgr.Evaluate(ctx, opp, opp.Confidence)
	if !decision.Approved {
		e.registry.Reject(ctx, opp.Key, string(decision.Reason))
		return
	}

	if err := e.registry.MarkSized(ctx, opp.Key); err != nil {
		e.riskMgr.Release(opp.ID)
		e.log.Warn("sizing transition lost", logger.String("key", opp.Key.String()), logger.Error(err))
		return
	}

	fill, err := e.coord.Open(ctx, opp, decision.Size)
	if err != nil {
		e.metrics.RecordError("entry")
		e.failEntry(ctx, opp, decision.Size, err)
		return
	}

	size := decision.Size
	if fill.Partial && fill.FilledSize > 0 {
		size = fill.FilledSize
	}

	p := &models.Position{
		ID:            "pos-" + opp.ID,
		OpportunityID: opp.ID,
		Key:           opp.Key,
		EntryPrice:    fill.Price,
		Size:          size,
		OpenedAt:      time.Now().UTC(),
		Rules:         e.exitRules,
		Status:        models.PositionOpen,
		Sources:       opp.Sources(),
	}

	if err := e.registry.MarkEntered(ctx, opp.Key); err != nil {
		e.log.Warn("entered transition lost", logger.String("key", opp.Key.String()), logger.Error(err))
	}
	e.riskMgr.RecordOpen(p)
	e.savePosition(ctx, p)
	e.publish(ctx, models.EventPositionOpened, p.Key, map[string]any{
		"position": p.ID,
		"price":    p.EntryPrice,
		"size":     p.Size,
	})
	e.exits.Track(ctx, p)

	e.log.Info("position opened",
		logger.String("position", p.ID),
		logger.Float64("price", p.EntryPrice),
		logger.Float64("size", p.Size))
}

// failEntry records the compensating transitions after entry submission
// exhausted its retries: the exposure reservation goes back to the pool and
// the opportunity terminates.
func (e *Engine) failEntry(ctx context.Context, opp *models.Opportunity, size float64, cause error) {
	e.riskMgr.Release(opp.ID)
	p := &models.Position{
		ID:            "pos-" + opp.ID,
		OpportunityID: opp.ID,
		Key:           opp.Key,
		Size:          size,
		Status:        models.PositionFailed,
	}
	e.savePosition(ctx, p)
	e.registry.Reject(ctx, opp.Key, "execution_failed")
	e.publish(ctx, models.EventPositionFailed, opp.Key, map[string]any{
		"position": p.ID,
		"error":    cause.Error(),
	})
	e.log.Error("entry failed after retries",
		logger.String("key", opp.Key.String()),
		logger.Error(cause))
}

// ClosePosition settles a triggered exit: submit the close intent, reconcile
// the fill into the position, then fan the outcome out to risk, performance
// and the event stream.
func (e *Engine) ClosePosition(ctx context.Context, p models.Position, reason models.ExitReason) models.Position {
	fill, err := e.coord.Close(ctx, &p)
	if err != nil {
		p.Status = models.PositionFailed
		p.Reason = reason
		e.savePosition(ctx, &p)
		e.publish(ctx, models.EventPositionFailed, p.Key, map[string]any{
			"position": p.ID,
			"error":    err.Error(),
		})
		e.log.Error("close failed after retries, manual reconciliation required",
			logger.String("position", p.ID),
			logger.Error(err))
		return p
	}

	p.ExitPrice = fill.Price
	p.ExitedAt = time.Now().UTC()
	p.Reason = reason
	p.RealizedPnL = p.PnLAt(fill.Price)
	p.Status = models.PositionClosed

	e.savePosition(ctx, &p)
	e.riskMgr.RecordClose(ctx, &p)
	e.perf.RecordClosure(ctx, &p)
	e.registry.MarkClosed(ctx, p.Key)
	e.coord.Forget(p.Key, p.OpportunityID)
	e.publish(ctx, models.EventPositionClosed, p.Key, map[string]any{
		"position": p.ID,
		"price":    p.ExitPrice,
		"pnl":      p.RealizedPnL,
		"reason":   string(reason),
	})
	return p
}

func (e *Engine) savePosition(ctx context.Context, p *models.Position) {
	if e.store == nil {
		return
	}
	if err := e.store.SavePosition(ctx, p); err != nil {
		e.metrics.RecordError("store_position")
		e.log.Warn("position save failed", logger.Error(err))
	}
}

func (e *Engine) publish(ctx context.Context, t models.EventType, key models.OpportunityKey, fields map[string]any) {
	if e.events == nil {
		return
	}
	if err := e.events.Publish(ctx, models.NewEvent(t, key, fields)); err != nil {
		e.metrics.RecordError("publish_event")
	}
}

var _ PositionCloser = (*Engine)(nil)

// Restore re-tracks open positions loaded from the store after a restart.
func (e *Engine) Restore(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	positions, err := e.store.LoadOpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("load open positions: %w", err)
	}
	for _, p := range positions {
		e.riskMgr.RecordOpen(p)
		e.exits.Track(ctx, p)
	}
	if len(positions) > 0 {
		e.log.Info("restored open positions", logger.Int("count", len(positions)))
	}
	return nil
}
