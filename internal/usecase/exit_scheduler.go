package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ListingRadar/internal/domain/models"
	drepo "ListingRadar/internal/domain/repository"
	domsvc "ListingRadar/internal/domain/service"
	"ListingRadar/pkg/logger"
)

// PositionCloser reconciles a triggered exit. It receives a value snapshot
// and returns the settled position; the scheduler owns the canonical record.
type PositionCloser interface {
	ClosePosition(ctx context.Context, p models.Position, reason models.ExitReason) models.Position
}

type trackedPosition struct {
	pos      *models.Position
	closeReq chan models.ExitReason
}

// ExitScheduler evaluates every open position against its exit rules on a
// periodic tick. Each position gets its own evaluation loop that cancels
// itself once the position leaves Open; no tick is scheduled for settled
// positions.
type ExitScheduler struct {
	prices       domsvc.PriceFeed
	closer       PositionCloser
	interval     time.Duration
	priceTimeout time.Duration
	metrics      drepo.Metrics
	log          *logger.Logger

	mu      sync.Mutex
	tracked map[string]*trackedPosition
}

func NewExitScheduler(prices domsvc.PriceFeed, closer PositionCloser, interval, priceTimeout time.Duration, metrics drepo.Metrics, log *logger.Logger) *ExitScheduler {
	return &ExitScheduler{
		prices:       prices,
		closer:       closer,
		interval:     interval,
		priceTimeout: priceTimeout,
		metrics:      metrics,
		log:          log.With("exits"),
		tracked:      make(map[string]*trackedPosition),
	}
}

// Bind attaches the closer after construction; the scheduler and the engine
// reference each other, so one side has to be wired late.
func (s *ExitScheduler) Bind(c PositionCloser) { s.closer = c }

// Track starts the evaluation loop for a newly opened position.
func (s *ExitScheduler) Track(ctx context.Context, p *models.Position) {
	tp := &trackedPosition{pos: p, closeReq: make(chan models.ExitReason, 1)}
	s.mu.Lock()
	s.tracked[p.ID] = tp
	s.mu.Unlock()

	go s.watch(ctx, tp)
}

func (s *ExitScheduler) watch(ctx context.Context, tp *trackedPosition) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer s.untrack(tp.pos.ID)

	for {
		select {
		case <-ctx.Done():
			return
		case reason := <-tp.closeReq:
			if s.settle(ctx, tp, reason) {
				return
			}
		case <-ticker.C:
			reason, ok := s.evaluate(ctx, s.snapshot(tp))
			if !ok {
				continue
			}
			if s.settle(ctx, tp, reason) {
				return
			}
		}
	}
}

// settle moves the position to Closing, hands it to the closer, and writes
// the settled result back. Returns true once the position is terminal.
func (s *ExitScheduler) settle(ctx context.Context, tp *trackedPosition, reason models.ExitReason) bool {
	s.mu.Lock()
	if tp.pos.Status != models.PositionOpen {
		terminal := tp.pos.Status != models.PositionClosing
		s.mu.Unlock()
		return terminal
	}
	tp.pos.Status = models.PositionClosing
	snapshot := *tp.pos
	s.mu.Unlock()

	settled := s.closer.ClosePosition(ctx, snapshot, reason)

	s.mu.Lock()
	*tp.pos = settled
	terminal := settled.Status != models.PositionOpen && settled.Status != models.PositionClosing
	s.mu.Unlock()
	return terminal
}

// evaluate checks the exit rules against the current price. When several
// conditions hold at once, stop-loss beats take-profit and both beat the
// time-based exit: capital preservation first.
func (s *ExitScheduler) evaluate(ctx context.Context, p models.Position) (models.ExitReason, bool) {
	if p.Status != models.PositionOpen {
		return "", false
	}

	cctx, cancel := context.WithTimeout(ctx, s.priceTimeout)
	price, _, err := s.prices.CurrentPrice(cctx, p.Key.Symbol)
	cancel()
	if err != nil {
		// Transient; the next tick retries.
		s.metrics.RecordError("price_feed")
		return "", false
	}

	switch {
	case price <= p.Rules.StopLossPrice(p.EntryPrice):
		return models.ExitStopLoss, true
	case price >= p.Rules.TakeProfitPrice(p.EntryPrice):
		return models.ExitTakeProfit, true
	case time.Since(p.OpenedAt) >= p.Rules.MaxHold:
		return models.ExitMaxHold, true
	}
	return "", false
}

// CloseNow requests a manual exit for a tracked open position.
func (s *ExitScheduler) CloseNow(positionID string) error {
	s.mu.Lock()
	tp, ok := s.tracked[positionID]
	var status models.PositionStatus
	if ok {
		status = tp.pos.Status
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("position %s not tracked", positionID)
	}
	if status != models.PositionOpen {
		return fmt.Errorf("position %s is %s", positionID, status)
	}
	select {
	case tp.closeReq <- models.ExitManual:
	default:
		// A close is already queued.
	}
	return nil
}

// Open snapshots currently tracked positions for the ops surface.
func (s *ExitScheduler) Open() []*models.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Position, 0, len(s.tracked))
	for _, tp := range s.tracked {
		cp := *tp.pos
		out = append(out, &cp)
	}
	return out
}

func (s *ExitScheduler) snapshot(tp *trackedPosition) models.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *tp.pos
}

func (s *ExitScheduler) untrack(id string) {
	s.mu.Lock()
	delete(s.tracked, id)
	s.mu.Unlock()
}
