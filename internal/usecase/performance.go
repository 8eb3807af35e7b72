package usecase

import (
	"context"
	"sync"
	"time"

	"ListingRadar/internal/domain/models"
	drepo "ListingRadar/internal/domain/repository"
	"ListingRadar/internal/scoring"
	"ListingRadar/pkg/logger"
)

// PerformanceTracker aggregates closed-trade outcomes per stage and feeds
// realized results back into source reliability. It writes reliability; the
// scoring engine only ever reads it.
type PerformanceTracker struct {
	rel     *scoring.ReliabilityTable
	archive drepo.TradeArchive
	metrics drepo.Metrics
	log     *logger.Logger

	mu      sync.Mutex
	records map[models.Stage]*models.PerformanceRecord
}

func NewPerformanceTracker(rel *scoring.ReliabilityTable, archive drepo.TradeArchive, metrics drepo.Metrics, log *logger.Logger) *PerformanceTracker {
	return &PerformanceTracker{
		rel:     rel,
		archive: archive,
		metrics: metrics,
		log:     log.With("performance"),
		records: make(map[models.Stage]*models.PerformanceRecord),
	}
}

// RecordClosure folds one closed position into the stage record, updates the
// reliability of every contributing source, and archives the trade.
func (t *PerformanceTracker) RecordClosure(ctx context.Context, p *models.Position) {
	won := p.Won()

	t.mu.Lock()
	rec, ok := t.records[p.Key.Stage]
	if !ok {
		rec = &models.PerformanceRecord{Stage: p.Key.Stage}
		t.records[p.Key.Stage] = rec
	}
	rec.Trades++
	if won {
		rec.Wins++
	}
	rec.RealizedPnL += p.RealizedPnL
	if rec.BestTrade == "" || p.RealizedPnL > rec.BestPnL {
		rec.BestTrade, rec.BestPnL = p.ID, p.RealizedPnL
	}
	if rec.WorstTrade == "" || p.RealizedPnL < rec.WorstPnL {
		rec.WorstTrade, rec.WorstPnL = p.ID, p.RealizedPnL
	}
	rec.UpdatedAt = time.Now().UTC()
	t.mu.Unlock()

	t.metrics.RecordRealizedPnL(string(p.Key.Stage), p.RealizedPnL)

	for _, source := range p.Sources {
		if err := t.rel.RecordOutcome(ctx, source, won); err != nil {
			t.metrics.RecordError("reliability_update")
			t.log.Warn("reliability update failed",
				logger.String("source", source),
				logger.Error(err))
		}
	}

	if t.archive != nil {
		if err := t.archive.ArchiveClosed(ctx, p); err != nil {
			t.metrics.RecordError("archive")
			t.log.Warn("trade archive failed",
				logger.String("position", p.ID),
				logger.Error(err))
		}
	}

	t.log.Info("position closed",
		logger.String("position", p.ID),
		logger.String("stage", string(p.Key.Stage)),
		logger.String("reason", string(p.Reason)),
		logger.Float64("pnl", p.RealizedPnL),
		logger.Bool("won", won))
}

// Snapshot returns a copy of every stage record.
func (t *PerformanceTracker) Snapshot() []*models.PerformanceRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*models.PerformanceRecord, 0, len(t.records))
	for _, rec := range t.records {
		cp := *rec
		out = append(out, &cp)
	}
	return out
}

// BestSources lists the top sources by reliability for the audit surface.
func (t *PerformanceTracker) BestSources(limit int) []*models.ReliabilitySample {
	samples := t.rel.Snapshot()
	if limit > 0 && len(samples) > limit {
		samples = samples[:limit]
	}
	return samples
}
