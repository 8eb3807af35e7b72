package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ListingRadar/internal/domain/models"
	"ListingRadar/pkg/logger"
)

// fakeCloser settles every handed-off position as Closed and records the
// reason it was given.
type fakeCloser struct {
	mu      sync.Mutex
	reasons []models.ExitReason
}

func (f *fakeCloser) ClosePosition(_ context.Context, p models.Position, reason models.ExitReason) models.Position {
	f.mu.Lock()
	f.reasons = append(f.reasons, reason)
	f.mu.Unlock()
	p.Status = models.PositionClosed
	p.Reason = reason
	return p
}

func (f *fakeCloser) closed() []models.ExitReason {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ExitReason(nil), f.reasons...)
}

func openPosition(entry float64) models.Position {
	return models.Position{
		ID:         "pos-1",
		Key:        models.OpportunityKey{Symbol: "ABC/USDT", Stage: models.StageCex},
		EntryPrice: entry,
		Size:       1000,
		OpenedAt:   time.Now().UTC(),
		Status:     models.PositionOpen,
		Rules:      models.ExitRules{TakeProfit: 2.0, StopLoss: 0.5, MaxHold: 72 * time.Hour},
	}
}

func TestEvaluateExitPrecedence(t *testing.T) {
	feed := &fakePriceFeed{}
	s := NewExitScheduler(feed, nil, time.Hour, time.Second, nopMetrics{}, logger.Nop())
	ctx := context.Background()

	tests := []struct {
		name   string
		price  float64
		mutate func(*models.Position)
		want   models.ExitReason
		fires  bool
	}{
		{name: "between thresholds holds", price: 120, fires: false},
		{name: "stop loss", price: 40, want: models.ExitStopLoss, fires: true},
		{name: "take profit", price: 350, want: models.ExitTakeProfit, fires: true},
		{
			name:  "max hold elapsed",
			price: 120,
			mutate: func(p *models.Position) {
				p.OpenedAt = time.Now().Add(-100 * time.Hour)
			},
			want:  models.ExitMaxHold,
			fires: true,
		},
		{
			// Degenerate rules put both triggers at the same price; the
			// stop loss wins.
			name:  "stop loss beats take profit",
			price: 50,
			mutate: func(p *models.Position) {
				p.Rules = models.ExitRules{TakeProfit: -0.5, StopLoss: 0.5, MaxHold: 72 * time.Hour}
			},
			want:  models.ExitStopLoss,
			fires: true,
		},
		{
			name:  "stop loss beats max hold",
			price: 40,
			mutate: func(p *models.Position) {
				p.OpenedAt = time.Now().Add(-100 * time.Hour)
			},
			want:  models.ExitStopLoss,
			fires: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := openPosition(100)
			if tt.mutate != nil {
				tt.mutate(&p)
			}
			feed.set(tt.price, nil)
			reason, ok := s.evaluate(ctx, p)
			if ok != tt.fires {
				t.Fatalf("fires = %v, want %v", ok, tt.fires)
			}
			if ok && reason != tt.want {
				t.Fatalf("reason = %s, want %s", reason, tt.want)
			}
		})
	}
}

func TestEvaluateSkipsOnPriceError(t *testing.T) {
	feed := &fakePriceFeed{}
	feed.set(0, errors.New("feed down"))
	s := NewExitScheduler(feed, nil, time.Hour, time.Second, nopMetrics{}, logger.Nop())

	if _, ok := s.evaluate(context.Background(), openPosition(100)); ok {
		t.Fatal("exit fired without a price")
	}
}

func TestEvaluateIgnoresNonOpenPositions(t *testing.T) {
	feed := &fakePriceFeed{}
	feed.set(40, nil)
	s := NewExitScheduler(feed, nil, time.Hour, time.Second, nopMetrics{}, logger.Nop())

	p := openPosition(100)
	p.Status = models.PositionClosing
	if _, ok := s.evaluate(context.Background(), p); ok {
		t.Fatal("exit fired for a closing position")
	}
}

func TestTickTriggersStopLoss(t *testing.T) {
	feed := &fakePriceFeed{}
	feed.set(40, nil)
	closer := &fakeCloser{}
	s := NewExitScheduler(feed, closer, 5*time.Millisecond, time.Second, nopMetrics{}, logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := openPosition(100)
	s.Track(ctx, &p)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if reasons := closer.closed(); len(reasons) == 1 {
			if reasons[0] != models.ExitStopLoss {
				t.Fatalf("reason = %s, want %s", reasons[0], models.ExitStopLoss)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("stop loss never fired")
}

func TestCloseNowSettlesManually(t *testing.T) {
	feed := &fakePriceFeed{}
	feed.set(120, nil) // between thresholds, ticks never fire
	closer := &fakeCloser{}
	s := NewExitScheduler(feed, closer, time.Hour, time.Second, nopMetrics{}, logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := openPosition(100)
	s.Track(ctx, &p)

	if err := s.CloseNow("pos-1"); err != nil {
		t.Fatalf("close now: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if reasons := closer.closed(); len(reasons) == 1 {
			if reasons[0] != models.ExitManual {
				t.Fatalf("reason = %s, want %s", reasons[0], models.ExitManual)
			}
			// The settled position leaves the tracked set.
			if err := s.CloseNow("pos-1"); err == nil {
				t.Fatal("settled position still accepts close requests")
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("manual close never settled")
}

func TestCloseNowUnknownPosition(t *testing.T) {
	s := NewExitScheduler(&fakePriceFeed{}, &fakeCloser{}, time.Hour, time.Second, nopMetrics{}, logger.Nop())
	if err := s.CloseNow("nope"); err == nil {
		t.Fatal("expected error for untracked position")
	}
}
