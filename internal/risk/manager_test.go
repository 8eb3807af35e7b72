package risk

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"ListingRadar/internal/domain/models"
	"ListingRadar/pkg/logger"
)

type nopMetrics struct{}

func (nopMetrics) RecordSignal(string, bool)         {}
func (nopMetrics) RecordRateLimited(string)          {}
func (nopMetrics) RecordTransition(string, string)   {}
func (nopMetrics) RecordOpenPositions(int)           {}
func (nopMetrics) RecordRealizedPnL(string, float64) {}
func (nopMetrics) RecordCircuitBreaker(bool)         {}
func (nopMetrics) RecordError(string)                {}
func (nopMetrics) RecordLatency(string, float64)     {}

func testConfig() Config {
	return Config{
		Equity:                 100000,
		MaxDailyLossPct:        0.05,
		MaxConcurrentPositions: 10,
		MaxExposurePct:         0.25,
		CorrelationLimit:       0.7,
		MinTradeAmount:         50,
		ConfidenceThreshold:    0.7,
		StageCeilings: map[models.Stage]float64{
			models.StagePresale: 1000,
			models.StageDex:     2500,
			models.StageCex:     5000,
			models.StageSocial:  500,
		},
	}
}

func newTestManager(cfg Config) *Manager {
	return NewManager(cfg, NewState(time.Now()), nopMetrics{}, nil, logger.Nop())
}

func opp(symbol string, stage models.Stage) *models.Opportunity {
	return &models.Opportunity{
		ID:     "opp-" + symbol,
		Key:    models.OpportunityKey{Symbol: symbol, Stage: stage},
		Status: models.OpportunityValidated,
	}
}

func pos(id, symbol string, size float64) *models.Position {
	return &models.Position{
		ID:   id,
		Key:  models.OpportunityKey{Symbol: symbol, Stage: models.StageCex},
		Size: size,
	}
}

func TestSizingScalesWithConfidence(t *testing.T) {
	m := newTestManager(testConfig())

	// Confidence halfway between threshold and certainty gets half the
	// stage ceiling.
	d := m.Evaluate(context.Background(), opp("ABC/USDT", models.StageCex), 0.85)
	if !d.Approved {
		t.Fatalf("rejected: %s", d.Reason)
	}
	if math.Abs(d.Size-2500) > 1e-9 {
		t.Fatalf("size = %v, want 2500", d.Size)
	}

	d = m.Evaluate(context.Background(), opp("XYZ/USDT", models.StageCex), 1.0)
	if math.Abs(d.Size-5000) > 1e-9 {
		t.Fatalf("full-confidence size = %v, want 5000", d.Size)
	}
}

func TestSizingScalesDownCorrelatedExposure(t *testing.T) {
	m := newTestManager(testConfig())
	m.RecordOpen(pos("p1", "ABC/USDT", 1000))

	// Same base asset on another venue pair counts as correlated.
	d := m.Evaluate(context.Background(), opp("ABC-PERP", models.StageCex), 1.0)
	if !d.Approved {
		t.Fatalf("rejected: %s", d.Reason)
	}
	want := 5000 * (1 - 0.7)
	if math.Abs(d.Size-want) > 1e-9 {
		t.Fatalf("correlated size = %v, want %v", d.Size, want)
	}
}

func TestRejectBelowMinTradeSize(t *testing.T) {
	m := newTestManager(testConfig())

	// Just above threshold the multiplier is near zero.
	d := m.Evaluate(context.Background(), opp("ABC/USDT", models.StageCex), 0.701)
	if d.Approved {
		t.Fatalf("approved size %v below minimum", d.Size)
	}
	if d.Reason != ReasonBelowMinimum {
		t.Fatalf("reason = %s, want %s", d.Reason, ReasonBelowMinimum)
	}
}

func TestRejectMaxConcurrentPositions(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrentPositions = 2
	m := newTestManager(cfg)
	m.RecordOpen(pos("p1", "AAA/USDT", 100))
	m.RecordOpen(pos("p2", "BBB/USDT", 100))

	d := m.Evaluate(context.Background(), opp("CCC/USDT", models.StageCex), 1.0)
	if d.Approved || d.Reason != ReasonMaxPositions {
		t.Fatalf("decision = %+v, want %s", d, ReasonMaxPositions)
	}
}

func TestRejectExposureCeiling(t *testing.T) {
	cfg := testConfig()
	cfg.Equity = 20000 // ceiling 5000
	m := newTestManager(cfg)
	m.RecordOpen(pos("p1", "AAA/USDT", 4000))

	d := m.Evaluate(context.Background(), opp("BBB/USDT", models.StageCex), 1.0)
	if d.Approved || d.Reason != ReasonExposure {
		t.Fatalf("decision = %+v, want %s", d, ReasonExposure)
	}
}

func TestCircuitBreakerTripsAndGatesFirst(t *testing.T) {
	m := newTestManager(testConfig())
	ctx := context.Background()

	m.RecordOpen(pos("p1", "AAA/USDT", 5000))
	losing := pos("p1", "AAA/USDT", 5000)
	losing.RealizedPnL = -5000 // 5% of equity
	m.RecordClose(ctx, losing)

	if !m.Snapshot().BreakerTripped {
		t.Fatal("breaker should be tripped at the daily loss limit")
	}

	// The breaker gates before every other check, even a full book.
	d := m.Evaluate(ctx, opp("BBB/USDT", models.StageCex), 1.0)
	if d.Approved || d.Reason != ReasonCircuitBreaker {
		t.Fatalf("decision = %+v, want %s", d, ReasonCircuitBreaker)
	}

	// A winning close later the same day does not re-arm it.
	m.RecordOpen(pos("p2", "CCC/USDT", 100))
	winning := pos("p2", "CCC/USDT", 100)
	winning.RealizedPnL = 10000
	m.RecordClose(ctx, winning)
	if d := m.Evaluate(ctx, opp("DDD/USDT", models.StageCex), 1.0); d.Approved {
		t.Fatal("breaker cleared before the daily boundary")
	}

	// Only the daily reset re-arms it.
	m.ResetDaily(time.Now().Add(24 * time.Hour))
	if d := m.Evaluate(ctx, opp("DDD/USDT", models.StageCex), 1.0); !d.Approved {
		t.Fatalf("post-reset entry rejected: %s", d.Reason)
	}
	if m.DailyPnL() != 0 {
		t.Fatalf("daily PnL after reset = %v", m.DailyPnL())
	}
}

func TestApprovalReservesExposure(t *testing.T) {
	cfg := testConfig()
	cfg.Equity = 20000 // exposure ceiling 5000
	m := newTestManager(cfg)
	ctx := context.Background()

	first := opp("AAA/USDT", models.StageCex)
	d := m.Evaluate(ctx, first, 1.0)
	if !d.Approved || d.Size != 5000 {
		t.Fatalf("first decision = %+v", d)
	}

	// The fill has not confirmed yet, but the approved size already counts
	// against the ceiling.
	second := m.Evaluate(ctx, opp("BBB/USDT", models.StageCex), 1.0)
	if second.Approved || second.Reason != ReasonExposure {
		t.Fatalf("second decision = %+v, want %s", second, ReasonExposure)
	}

	// Confirming the fill must not double-count reservation plus position.
	m.RecordOpen(&models.Position{ID: "pos-" + first.ID, OpportunityID: first.ID, Key: first.Key, Size: d.Size})
	if got := m.Snapshot().TotalExposure; got != 5000 {
		t.Fatalf("exposure after confirm = %v, want 5000", got)
	}
}

func TestReleaseReturnsReservation(t *testing.T) {
	cfg := testConfig()
	cfg.Equity = 20000
	m := newTestManager(cfg)
	ctx := context.Background()

	first := opp("AAA/USDT", models.StageCex)
	if d := m.Evaluate(ctx, first, 1.0); !d.Approved {
		t.Fatalf("rejected: %s", d.Reason)
	}
	m.Release(first.ID)

	if got := m.Snapshot().TotalExposure; got != 0 {
		t.Fatalf("exposure after release = %v, want 0", got)
	}
	if d := m.Evaluate(ctx, opp("BBB/USDT", models.StageCex), 1.0); !d.Approved {
		t.Fatalf("post-release entry rejected: %s", d.Reason)
	}
}

func TestApprovalReservesPositionSlot(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrentPositions = 1
	m := newTestManager(cfg)
	ctx := context.Background()

	if d := m.Evaluate(ctx, opp("AAA/USDT", models.StageCex), 1.0); !d.Approved {
		t.Fatalf("rejected: %s", d.Reason)
	}
	d := m.Evaluate(ctx, opp("BBB/USDT", models.StageCex), 1.0)
	if d.Approved || d.Reason != ReasonMaxPositions {
		t.Fatalf("decision = %+v, want %s", d, ReasonMaxPositions)
	}
}

func TestConcurrentEvaluationsRespectCeiling(t *testing.T) {
	cfg := testConfig()
	cfg.Equity = 20000 // exposure ceiling 5000
	m := newTestManager(cfg)
	ctx := context.Background()

	// No fills confirm during the race; the reservations alone must keep
	// the jointly approved exposure at or under the ceiling.
	var wg sync.WaitGroup
	sizes := make(chan float64, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if d := m.Evaluate(ctx, opp(fmt.Sprintf("S%d/USDT", i), models.StageCex), 1.0); d.Approved {
				sizes <- d.Size
			}
		}(i)
	}
	wg.Wait()
	close(sizes)

	var total float64
	for size := range sizes {
		total += size
	}
	if total > 5000 {
		t.Fatalf("jointly approved exposure %v exceeds ceiling", total)
	}
	if got := m.Snapshot().TotalExposure; got > 5000 {
		t.Fatalf("reserved exposure %v exceeds ceiling", got)
	}
}
