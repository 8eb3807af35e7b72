package bus

import (
	"context"
	"fmt"
	"testing"
	"time"

	"ListingRadar/internal/domain/models"
	"ListingRadar/pkg/logger"
)

type nopMetrics struct{}

func (nopMetrics) RecordSignal(string, bool)       {}
func (nopMetrics) RecordRateLimited(string)        {}
func (nopMetrics) RecordTransition(string, string) {}
func (nopMetrics) RecordOpenPositions(int)         {}
func (nopMetrics) RecordRealizedPnL(string, float64) {}
func (nopMetrics) RecordCircuitBreaker(bool)       {}
func (nopMetrics) RecordError(string)              {}
func (nopMetrics) RecordLatency(string, float64)   {}

func testSignal(source, symbol string, kind models.SignalKind, ts time.Time) *models.Signal {
	return &models.Signal{
		Source:    source,
		Symbol:    symbol,
		Stage:     models.StageCex,
		Kind:      kind,
		Strength:  0.8,
		Timestamp: ts,
	}
}

func newTestBus(ratePerMin int, sources ...string) *Bus {
	return New(60*time.Second, ratePerMin, sources, nopMetrics{}, nil, logger.Nop())
}

func TestIngestDedupWithinBucket(t *testing.T) {
	b := newTestBus(600, "binance_announcements")
	ctx := context.Background()
	ts := time.Now()

	if got := b.Ingest(ctx, testSignal("binance_announcements", "ABC/USDT", models.KindAnnouncement, ts)); got != Accepted {
		t.Fatalf("first ingest = %v, want %v", got, Accepted)
	}
	if got := b.Ingest(ctx, testSignal("binance_announcements", "ABC/USDT", models.KindAnnouncement, ts.Add(5*time.Second))); got != Duplicate {
		t.Fatalf("repeat in bucket = %v, want %v", got, Duplicate)
	}
	// Different kind is a different fact about the same symbol.
	if got := b.Ingest(ctx, testSignal("binance_announcements", "ABC/USDT", models.KindListingConfirmed, ts)); got != Accepted {
		t.Fatalf("different kind = %v, want %v", got, Accepted)
	}
}

func TestIngestDedupExpiresAcrossBuckets(t *testing.T) {
	b := newTestBus(600, "dexscreener")
	ctx := context.Background()
	ts := time.Now()

	if got := b.Ingest(ctx, testSignal("dexscreener", "ABC/USDT", models.KindPairCreated, ts)); got != Accepted {
		t.Fatalf("first ingest = %v", got)
	}
	if got := b.Ingest(ctx, testSignal("dexscreener", "ABC/USDT", models.KindPairCreated, ts.Add(3*time.Minute))); got != Accepted {
		t.Fatalf("next bucket = %v, want %v", got, Accepted)
	}
}

func TestIngestUnmonitoredSource(t *testing.T) {
	b := newTestBus(600, "binance_announcements")
	got := b.Ingest(context.Background(), testSignal("random_blog", "ABC/USDT", models.KindAnnouncement, time.Now()))
	if got != Unmonitored {
		t.Fatalf("unmonitored source = %v, want %v", got, Unmonitored)
	}
}

func TestRateCeilingDropsLowPriorityFirst(t *testing.T) {
	// Capacity of one token per minute. Confirmed listings cost 0.2 tokens,
	// social mentions a full token, so the same budget admits five times as
	// many confirmations.
	b := newTestBus(1, "confirmations", "gossip")
	ctx := context.Background()
	ts := time.Now()

	accepted := 0
	for i := 0; i < 5; i++ {
		sym := fmt.Sprintf("C%d/USDT", i)
		if b.Ingest(ctx, testSignal("confirmations", sym, models.KindListingConfirmed, ts)) == Accepted {
			accepted++
		}
	}
	if accepted != 5 {
		t.Fatalf("confirmed listings accepted = %d, want 5", accepted)
	}

	accepted = 0
	for i := 0; i < 5; i++ {
		sym := fmt.Sprintf("S%d/USDT", i)
		if b.Ingest(ctx, testSignal("gossip", sym, models.KindSocialMention, ts)) == Accepted {
			accepted++
		}
	}
	if accepted != 1 {
		t.Fatalf("social mentions accepted = %d, want 1", accepted)
	}
}

func TestOutDeliversAccepted(t *testing.T) {
	b := newTestBus(600, "binance_announcements")
	sig := testSignal("binance_announcements", "ABC/USDT", models.KindAnnouncement, time.Now())
	if got := b.Ingest(context.Background(), sig); got != Accepted {
		t.Fatalf("ingest = %v", got)
	}

	select {
	case got := <-b.Out():
		if got != sig {
			t.Fatalf("delivered %+v, want the ingested signal", got)
		}
	case <-time.After(time.Second):
		t.Fatal("no signal delivered")
	}
}

func TestIngestInvalidSignal(t *testing.T) {
	b := newTestBus(600, "binance_announcements")
	if got := b.Ingest(context.Background(), &models.Signal{Source: "binance_announcements"}); got != Invalid {
		t.Fatalf("result = %s, want %s", got, Invalid)
	}
}
