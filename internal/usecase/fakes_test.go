package usecase

import (
	"context"
	"sync"
	"time"

	"ListingRadar/internal/domain/models"
	domsvc "ListingRadar/internal/domain/service"
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

type fakePriceFeed struct {
	mu    sync.Mutex
	price float64
	err   error
}

func (f *fakePriceFeed) set(price float64, err error) {
	f.mu.Lock()
	f.price, f.err = price, err
	f.mu.Unlock()
}

func (f *fakePriceFeed) CurrentPrice(context.Context, string) (float64, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.price, time.Now(), f.err
}

type fakeExecution struct {
	mu   sync.Mutex
	fill domsvc.Fill
	err  error
}

func (f *fakeExecution) Submit(context.Context, domsvc.OrderIntent) (domsvc.Fill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fill, f.err
}

func (f *fakeExecution) Cancel(context.Context, string) error { return nil }

type fakeInference struct {
	prob float64
	err  error
}

func (f *fakeInference) Infer(context.Context, map[string]float64) (domsvc.InferenceResult, error) {
	if f.err != nil {
		return domsvc.InferenceResult{}, f.err
	}
	return domsvc.InferenceResult{Probability: f.prob, Confidence: 1}, nil
}

type fakeArchive struct {
	mu       sync.Mutex
	archived []models.Position
}

func (f *fakeArchive) ArchiveClosed(_ context.Context, p *models.Position) error {
	f.mu.Lock()
	f.archived = append(f.archived, *p)
	f.mu.Unlock()
	return nil
}

func (f *fakeArchive) QueryClosed(context.Context, models.Stage, time.Time, time.Time, int) ([]*models.Position, error) {
	return nil, nil
}

func (f *fakeArchive) Health(context.Context) error { return nil }

type capturingEvents struct {
	mu     sync.Mutex
	events []*models.Event
}

func (c *capturingEvents) Publish(_ context.Context, e *models.Event) error {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
	return nil
}

func (c *capturingEvents) Close() error { return nil }

func (c *capturingEvents) types() []models.EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.EventType, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.Type)
	}
	return out
}
