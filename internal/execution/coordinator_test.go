package execution

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"ListingRadar/internal/domain/models"
	domsvc "ListingRadar/internal/domain/service"
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

// fakeExecution fails the first failUntil submissions, then fills.
type fakeExecution struct {
	mu        sync.Mutex
	calls     int
	failUntil int
	fill      domsvc.Fill
}

func (f *fakeExecution) Submit(context.Context, domsvc.OrderIntent) (domsvc.Fill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failUntil {
		return domsvc.Fill{}, errors.New("venue unavailable")
	}
	return f.fill, nil
}

func (f *fakeExecution) Cancel(context.Context, string) error { return nil }

func (f *fakeExecution) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestCoordinator(exec domsvc.Execution, maxAttempts int) *Coordinator {
	return NewCoordinator(exec, time.Second, maxAttempts, time.Millisecond, 4*time.Millisecond, nopMetrics{}, logger.Nop())
}

func testOpp() *models.Opportunity {
	return &models.Opportunity{
		ID:  "opp-1",
		Key: models.OpportunityKey{Symbol: "ABC/USDT", Stage: models.StageCex},
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	exec := &fakeExecution{fill: domsvc.Fill{OrderID: "ord-1", Price: 1.5, FilledSize: 2500}}
	c := newTestCoordinator(exec, 3)
	ctx := context.Background()
	opp := testOpp()

	first, err := c.Open(ctx, opp, 2500)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	second, err := c.Open(ctx, opp, 2500)
	if err != nil {
		t.Fatalf("retried open: %v", err)
	}
	if second != first {
		t.Fatalf("retried open returned a different fill: %+v vs %+v", second, first)
	}
	if exec.callCount() != 1 {
		t.Fatalf("Submit called %d times, want 1", exec.callCount())
	}
}

func TestOpenRetriesThenSucceeds(t *testing.T) {
	exec := &fakeExecution{failUntil: 2, fill: domsvc.Fill{OrderID: "ord-1", Price: 1.5, FilledSize: 2500}}
	c := newTestCoordinator(exec, 3)

	fill, err := c.Open(context.Background(), testOpp(), 2500)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if fill.OrderID != "ord-1" {
		t.Fatalf("fill = %+v", fill)
	}
	if exec.callCount() != 3 {
		t.Fatalf("Submit called %d times, want 3", exec.callCount())
	}
}

func TestOpenExhaustsAttempts(t *testing.T) {
	exec := &fakeExecution{failUntil: 100}
	c := newTestCoordinator(exec, 3)

	_, err := c.Open(context.Background(), testOpp(), 2500)
	if err == nil {
		t.Fatal("expected error after exhausted attempts")
	}
	if !strings.Contains(err.Error(), "exhausted 3 attempts") {
		t.Fatalf("error = %v", err)
	}
	if exec.callCount() != 3 {
		t.Fatalf("Submit called %d times, want 3", exec.callCount())
	}

	// A failed intent is not cached; a later retry submits again.
	exec.mu.Lock()
	exec.failUntil = 0
	exec.calls = 0
	exec.fill = domsvc.Fill{OrderID: "ord-2", Price: 1.0, FilledSize: 2500}
	exec.mu.Unlock()
	fill, err := c.Open(context.Background(), testOpp(), 2500)
	if err != nil || fill.OrderID != "ord-2" {
		t.Fatalf("recovered open = %+v, %v", fill, err)
	}
}

func TestPartialFillAccepted(t *testing.T) {
	exec := &fakeExecution{fill: domsvc.Fill{OrderID: "ord-1", Price: 1.5, FilledSize: 1000, Partial: true}}
	c := newTestCoordinator(exec, 3)

	fill, err := c.Open(context.Background(), testOpp(), 2500)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !fill.Partial || fill.FilledSize != 1000 {
		t.Fatalf("fill = %+v", fill)
	}
}

func TestForgetFreesIdempotencyKey(t *testing.T) {
	exec := &fakeExecution{fill: domsvc.Fill{OrderID: "ord-1", Price: 1.5, FilledSize: 2500}}
	c := newTestCoordinator(exec, 3)
	ctx := context.Background()
	opp := testOpp()

	if _, err := c.Open(ctx, opp, 2500); err != nil {
		t.Fatalf("open: %v", err)
	}
	c.Forget(opp.Key, opp.ID)

	if _, err := c.Open(ctx, opp, 2500); err != nil {
		t.Fatalf("open after forget: %v", err)
	}
	if exec.callCount() != 2 {
		t.Fatalf("Submit called %d times, want 2", exec.callCount())
	}
}

func TestCloseCachedIndependentlyOfOpen(t *testing.T) {
	exec := &fakeExecution{fill: domsvc.Fill{OrderID: "ord-1", Price: 2.0, FilledSize: 2500}}
	c := newTestCoordinator(exec, 3)
	ctx := context.Background()
	opp := testOpp()

	if _, err := c.Open(ctx, opp, 2500); err != nil {
		t.Fatalf("open: %v", err)
	}

	p := &models.Position{
		ID:            "pos-opp-1",
		OpportunityID: opp.ID,
		Key:           opp.Key,
		Size:          2500,
	}
	if _, err := c.Close(ctx, p); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := c.Close(ctx, p); err != nil {
		t.Fatalf("retried close: %v", err)
	}
	if exec.callCount() != 2 {
		t.Fatalf("Submit called %d times, want 2 (one open, one close)", exec.callCount())
	}
}
