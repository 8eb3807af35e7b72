package repository

import (
	"context"
	"sync"

	"ListingRadar/internal/domain/models"
	drepo "ListingRadar/internal/domain/repository"
)

// MemoryStore is a Store for development and tests. Values are deep-copied
// through the interface boundary via struct copies.
type MemoryStore struct {
	mu            sync.RWMutex
	opportunities map[string]models.Opportunity
	positions     map[string]models.Position
	reliability   map[string]models.ReliabilitySample
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		opportunities: make(map[string]models.Opportunity),
		positions:     make(map[string]models.Position),
		reliability:   make(map[string]models.ReliabilitySample),
	}
}

func (s *MemoryStore) SaveOpportunity(_ context.Context, o *models.Opportunity) error {
	s.mu.Lock()
	s.opportunities[o.ID] = *o
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) SavePosition(_ context.Context, p *models.Position) error {
	s.mu.Lock()
	s.positions[p.ID] = *p
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) SaveReliability(_ context.Context, sample *models.ReliabilitySample) error {
	s.mu.Lock()
	s.reliability[sample.Source] = *sample
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) LoadReliability(context.Context) ([]*models.ReliabilitySample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.ReliabilitySample, 0, len(s.reliability))
	for _, sample := range s.reliability {
		cp := sample
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) LoadOpenPositions(context.Context) ([]*models.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Position
	for _, p := range s.positions {
		if p.Status == models.PositionOpen || p.Status == models.PositionClosing {
			cp := p
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Opportunity returns the last saved state of an opportunity, for tests.
func (s *MemoryStore) Opportunity(id string) (models.Opportunity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.opportunities[id]
	return o, ok
}

// Position returns the last saved state of a position, for tests.
func (s *MemoryStore) Position(id string) (models.Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[id]
	return p, ok
}

func (s *MemoryStore) Health(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

var _ drepo.Store = (*MemoryStore)(nil)
