package scoring

import (
	"context"
	"math"
	"testing"

	internalrepo "ListingRadar/internal/repository"
)

func TestRecordOutcomeEMA(t *testing.T) {
	store := internalrepo.NewMemoryStore()
	rel := NewReliabilityTable(0.2, store)
	ctx := context.Background()

	if got := rel.Score("fresh"); got != 0.5 {
		t.Fatalf("unseen source score = %v, want 0.5", got)
	}

	// One loss nudges the estimate down, it does not crater it.
	if err := rel.RecordOutcome(ctx, "fresh", false); err != nil {
		t.Fatalf("record loss: %v", err)
	}
	if got := rel.Score("fresh"); math.Abs(got-0.4) > 1e-9 {
		t.Fatalf("after one loss = %v, want 0.4", got)
	}

	if err := rel.RecordOutcome(ctx, "fresh", true); err != nil {
		t.Fatalf("record win: %v", err)
	}
	if got := rel.Score("fresh"); math.Abs(got-0.52) > 1e-9 {
		t.Fatalf("after loss then win = %v, want 0.52", got)
	}
}

func TestRecordOutcomePersists(t *testing.T) {
	store := internalrepo.NewMemoryStore()
	rel := NewReliabilityTable(0.2, store)
	ctx := context.Background()

	if err := rel.RecordOutcome(ctx, "src_a", true); err != nil {
		t.Fatalf("record: %v", err)
	}

	// A fresh table restores the persisted estimate.
	rel2 := NewReliabilityTable(0.2, store)
	if err := rel2.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got, want := rel2.Score("src_a"), rel.Score("src_a"); got != want {
		t.Fatalf("restored score = %v, want %v", got, want)
	}
}

func TestSnapshotSortedBestFirst(t *testing.T) {
	rel := NewReliabilityTable(0.5, nil)
	ctx := context.Background()

	_ = rel.RecordOutcome(ctx, "winner", true)
	_ = rel.RecordOutcome(ctx, "loser", false)

	snap := rel.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot len = %d", len(snap))
	}
	if snap[0].Source != "winner" || snap[1].Source != "loser" {
		t.Fatalf("snapshot order wrong: %s, %s", snap[0].Source, snap[1].Source)
	}
}
