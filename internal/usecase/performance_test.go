package usecase

import (
	"context"
	"math"
	"testing"
	"time"

	"ListingRadar/internal/domain/models"
	"ListingRadar/internal/scoring"
	"ListingRadar/pkg/logger"
)

func closedPosition(id string, stage models.Stage, pnl float64, sources ...string) *models.Position {
	return &models.Position{
		ID:          id,
		Key:         models.OpportunityKey{Symbol: "ABC/USDT", Stage: stage},
		Size:        1000,
		Status:      models.PositionClosed,
		Reason:      models.ExitTakeProfit,
		RealizedPnL: pnl,
		ExitedAt:    time.Now().UTC(),
		Sources:     sources,
	}
}

func TestRecordClosureAggregatesPerStage(t *testing.T) {
	rel := scoring.NewReliabilityTable(0.2, nil)
	tracker := NewPerformanceTracker(rel, nil, nopMetrics{}, logger.Nop())
	ctx := context.Background()

	tracker.RecordClosure(ctx, closedPosition("p1", models.StageCex, 500))
	tracker.RecordClosure(ctx, closedPosition("p2", models.StageCex, -200))
	tracker.RecordClosure(ctx, closedPosition("p3", models.StageDex, 100))

	var cex, dex *models.PerformanceRecord
	for _, rec := range tracker.Snapshot() {
		switch rec.Stage {
		case models.StageCex:
			cex = rec
		case models.StageDex:
			dex = rec
		}
	}
	if cex == nil || dex == nil {
		t.Fatal("missing stage records")
	}
	if cex.Trades != 2 || cex.Wins != 1 {
		t.Fatalf("cex = %d trades / %d wins", cex.Trades, cex.Wins)
	}
	if math.Abs(cex.RealizedPnL-300) > 1e-9 {
		t.Fatalf("cex pnl = %v, want 300", cex.RealizedPnL)
	}
	if cex.BestTrade != "p1" || cex.WorstTrade != "p2" {
		t.Fatalf("best/worst = %s/%s", cex.BestTrade, cex.WorstTrade)
	}
	if dex.Trades != 1 || dex.Wins != 1 {
		t.Fatalf("dex = %d trades / %d wins", dex.Trades, dex.Wins)
	}
}

func TestRecordClosureUpdatesSourceReliability(t *testing.T) {
	rel := scoring.NewReliabilityTable(0.2, nil)
	tracker := NewPerformanceTracker(rel, nil, nopMetrics{}, logger.Nop())
	ctx := context.Background()

	// A win nudges every contributing source up from the 0.5 prior.
	tracker.RecordClosure(ctx, closedPosition("p1", models.StageCex, 500, "binance_announcements", "twitter_monitor"))

	want := 0.2*1 + 0.8*0.5
	for _, src := range []string{"binance_announcements", "twitter_monitor"} {
		if got := rel.Score(src); math.Abs(got-want) > 1e-9 {
			t.Fatalf("%s score = %v, want %v", src, got, want)
		}
	}

	// A loss only touches its own sources.
	tracker.RecordClosure(ctx, closedPosition("p2", models.StageCex, -100, "twitter_monitor"))
	if got := rel.Score("binance_announcements"); math.Abs(got-want) > 1e-9 {
		t.Fatalf("untouched source moved to %v", got)
	}
	if got := rel.Score("twitter_monitor"); got >= want {
		t.Fatalf("losing source did not drop: %v", got)
	}
}

func TestRecordClosureArchivesTrade(t *testing.T) {
	rel := scoring.NewReliabilityTable(0.2, nil)
	archive := &fakeArchive{}
	tracker := NewPerformanceTracker(rel, archive, nopMetrics{}, logger.Nop())

	p := closedPosition("p1", models.StageCex, 500, "binance_announcements")
	tracker.RecordClosure(context.Background(), p)

	archive.mu.Lock()
	defer archive.mu.Unlock()
	if len(archive.archived) != 1 || archive.archived[0].ID != "p1" {
		t.Fatalf("archived = %+v", archive.archived)
	}
}

func TestBestSourcesOrderedAndLimited(t *testing.T) {
	rel := scoring.NewReliabilityTable(0.2, nil)
	tracker := NewPerformanceTracker(rel, nil, nopMetrics{}, logger.Nop())
	ctx := context.Background()

	tracker.RecordClosure(ctx, closedPosition("p1", models.StageCex, 500, "good_source"))
	tracker.RecordClosure(ctx, closedPosition("p2", models.StageCex, -100, "bad_source"))
	tracker.RecordClosure(ctx, closedPosition("p3", models.StageCex, -100, "bad_source"))

	best := tracker.BestSources(1)
	if len(best) != 1 || best[0].Source != "good_source" {
		t.Fatalf("best = %+v", best)
	}
	all := tracker.BestSources(0)
	if len(all) != 2 || all[0].Source != "good_source" || all[1].Source != "bad_source" {
		t.Fatalf("all = %+v", all)
	}
}
