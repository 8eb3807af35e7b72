package scoring

import (
	"context"
	"sort"
	"sync"
	"time"

	"ListingRadar/internal/domain/models"
	drepo "ListingRadar/internal/domain/repository"
)

// defaultReliability is the prior for a source with no closed trades yet.
const defaultReliability = 0.5

// ReliabilityTable tracks a rolling trust score per source. Scoring reads a
// snapshot; only closed-trade outcomes write. The EMA is over a win/loss
// indicator, not PnL, so one large trade cannot dominate a source's score.
type ReliabilityTable struct {
	alpha float64
	store drepo.Store

	mu      sync.RWMutex
	samples map[string]*models.ReliabilitySample
}

func NewReliabilityTable(alpha float64, store drepo.Store) *ReliabilityTable {
	return &ReliabilityTable{
		alpha:   alpha,
		store:   store,
		samples: make(map[string]*models.ReliabilitySample),
	}
}

// Load restores persisted samples, typically at startup.
func (t *ReliabilityTable) Load(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	samples, err := t.store.LoadReliability(ctx)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range samples {
		t.samples[s.Source] = s
	}
	return nil
}

// Score returns the current trust estimate for a source.
func (t *ReliabilityTable) Score(source string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s, ok := t.samples[source]; ok {
		return s.Score
	}
	return defaultReliability
}

// RecordOutcome folds one closed-trade outcome into the source's EMA and
// persists the sample.
func (t *ReliabilityTable) RecordOutcome(ctx context.Context, source string, win bool) error {
	indicator := 0.0
	if win {
		indicator = 1.0
	}

	t.mu.Lock()
	s, ok := t.samples[source]
	if !ok {
		s = &models.ReliabilitySample{Source: source, Score: defaultReliability}
		t.samples[source] = s
	}
	s.Score = t.alpha*indicator + (1-t.alpha)*s.Score
	s.Samples++
	s.UpdatedAt = time.Now().UTC()
	saved := *s
	t.mu.Unlock()

	if t.store == nil {
		return nil
	}
	return t.store.SaveReliability(ctx, &saved)
}

// Snapshot lists all samples sorted by score, best first.
func (t *ReliabilityTable) Snapshot() []*models.ReliabilitySample {
	t.mu.RLock()
	out := make([]*models.ReliabilitySample, 0, len(t.samples))
	for _, s := range t.samples {
		cp := *s
		out = append(out, &cp)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
