package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ListingRadar/internal/domain/models"
	drepo "ListingRadar/internal/domain/repository"
	"ListingRadar/internal/scoring"
	"ListingRadar/pkg/logger"
)

// entry wraps one non-terminal opportunity with its per-key lock and expiry
// timer. All transitions for a key happen under e.mu.
type entry struct {
	mu    sync.Mutex
	opp   *models.Opportunity
	timer *time.Timer
}

// Registry owns the opportunity lifecycle. Exactly one non-terminal
// opportunity exists per (symbol, stage) key; transitions on a key are
// serialized while different keys progress in parallel.
type Registry struct {
	ttlFor    func(models.Stage) time.Duration
	threshold float64
	scorer    *scoring.Scorer
	store     drepo.Store
	events    drepo.EventPublisher
	metrics   drepo.Metrics
	log       *logger.Logger

	mu     sync.Mutex
	active map[models.OpportunityKey]*entry
	seq    int64
}

func New(ttlFor func(models.Stage) time.Duration, threshold float64, scorer *scoring.Scorer, store drepo.Store, events drepo.EventPublisher, metrics drepo.Metrics, log *logger.Logger) *Registry {
	return &Registry{
		ttlFor:    ttlFor,
		threshold: threshold,
		scorer:    scorer,
		store:     store,
		events:    events,
		metrics:   metrics,
		log:       log.With("registry"),
		active:    make(map[models.OpportunityKey]*entry),
	}
}

// Apply folds one accepted signal into the opportunity for its key, creating
// the opportunity on first contact. It returns a snapshot and whether this
// signal moved the opportunity into Validated.
func (r *Registry) Apply(ctx context.Context, sig *models.Signal) (*models.Opportunity, bool) {
	e := r.getOrCreate(sig.Key())

	e.mu.Lock()
	if e.opp.Status.Terminal() {
		// Raced with expiry; the next signal for this key starts fresh.
		e.mu.Unlock()
		return nil, false
	}
	e.opp.Signals = append(e.opp.Signals, sig)
	if e.opp.Status == models.OpportunityNew {
		r.transitionLocked(e.opp, models.OpportunityScoring)
	}
	snapshot := *e.opp
	e.mu.Unlock()

	// Score outside the lock; inference is an external call.
	res := r.scorer.Score(ctx, &snapshot)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.opp.Status != models.OpportunityScoring {
		return r.snapshotLocked(e), false
	}

	// A corroborating signal never lowers confidence; only a contradicting
	// one (negative strength) may.
	if res.Confidence > e.opp.Confidence || sig.Strength < 0 {
		e.opp.Confidence = res.Confidence
	}
	e.opp.UnscoredByModel = res.UnscoredByModel

	if e.opp.Confidence >= r.threshold {
		r.transitionLocked(e.opp, models.OpportunityValidated)
		if e.timer != nil {
			e.timer.Stop()
		}
		r.save(ctx, e.opp)
		r.publish(ctx, models.EventOpportunityValidated, e.opp.Key, map[string]any{
			"id":         e.opp.ID,
			"confidence": e.opp.Confidence,
			"sources":    e.opp.DistinctSources(),
			"unscored":   e.opp.UnscoredByModel,
		})
		return r.snapshotLocked(e), true
	}

	r.save(ctx, e.opp)
	return r.snapshotLocked(e), false
}

func (r *Registry) getOrCreate(key models.OpportunityKey) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.active[key]; ok {
		return e
	}

	r.seq++
	now := time.Now().UTC()
	ttl := r.ttlFor(key.Stage)
	opp := &models.Opportunity{
		ID:        fmt.Sprintf("opp-%s-%s-%d", key.Symbol, key.Stage, r.seq),
		Key:       key,
		Status:    models.OpportunityNew,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	e := &entry{opp: opp}
	e.timer = time.AfterFunc(ttl, func() { r.expire(key) })
	r.active[key] = e

	r.metrics.RecordTransition(string(key.Stage), string(models.OpportunityNew))
	r.log.Debug("opportunity created",
		logger.String("key", key.String()),
		logger.Duration("ttl", ttl))
	return e
}

// expire moves a still-unvalidated opportunity to its terminal Expired state
// when the validity window elapses.
func (r *Registry) expire(key models.OpportunityKey) {
	ctx := context.Background()

	r.mu.Lock()
	e, ok := r.active[key]
	r.mu.Unlock()
	if !ok {
		return
	}

	e.mu.Lock()
	switch e.opp.Status {
	case models.OpportunityNew, models.OpportunityScoring:
	default:
		e.mu.Unlock()
		return
	}
	r.transitionLocked(e.opp, models.OpportunityExpired)
	r.save(ctx, e.opp)
	e.mu.Unlock()

	r.remove(key)
	r.publish(ctx, models.EventOpportunityExpired, key, nil)
}

// MarkSized records risk approval for a validated opportunity.
func (r *Registry) MarkSized(ctx context.Context, key models.OpportunityKey) error {
	return r.advance(ctx, key, models.OpportunityValidated, models.OpportunitySized)
}

// MarkEntered records a confirmed fill.
func (r *Registry) MarkEntered(ctx context.Context, key models.OpportunityKey) error {
	return r.advance(ctx, key, models.OpportunitySized, models.OpportunityEntered)
}

// Reject terminally rejects the opportunity with an auditable reason.
func (r *Registry) Reject(ctx context.Context, key models.OpportunityKey, reason string) {
	r.mu.Lock()
	e, ok := r.active[key]
	r.mu.Unlock()
	if !ok {
		return
	}

	e.mu.Lock()
	if e.opp.Status.Terminal() {
		e.mu.Unlock()
		return
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	e.opp.RejectReason = reason
	r.transitionLocked(e.opp, models.OpportunityRejected)
	r.save(ctx, e.opp)
	e.mu.Unlock()

	r.remove(key)
	r.publish(ctx, models.EventOpportunityRejected, key, map[string]any{"reason": reason})
}

// MarkClosed closes the opportunity once its position has closed.
func (r *Registry) MarkClosed(ctx context.Context, key models.OpportunityKey) {
	r.mu.Lock()
	e, ok := r.active[key]
	r.mu.Unlock()
	if !ok {
		return
	}

	e.mu.Lock()
	if e.timer != nil {
		e.timer.Stop()
	}
	r.transitionLocked(e.opp, models.OpportunityClosed)
	r.save(ctx, e.opp)
	e.mu.Unlock()

	r.remove(key)
}

func (r *Registry) advance(ctx context.Context, key models.OpportunityKey, from, to models.OpportunityStatus) error {
	r.mu.Lock()
	e, ok := r.active[key]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("no active opportunity for %s", key)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.opp.Status != from {
		return fmt.Errorf("opportunity %s is %s, want %s", key, e.opp.Status, from)
	}
	r.transitionLocked(e.opp, to)
	r.save(ctx, e.opp)
	return nil
}

// Get returns a snapshot of the active opportunity for key, if any.
func (r *Registry) Get(key models.OpportunityKey) (*models.Opportunity, bool) {
	r.mu.Lock()
	e, ok := r.active[key]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return r.snapshotLocked(e), true
}

// ListActive snapshots every non-terminal opportunity for the ops surface.
func (r *Registry) ListActive() []*models.Opportunity {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.active))
	for _, e := range r.active {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	out := make([]*models.Opportunity, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, r.snapshotLocked(e))
		e.mu.Unlock()
	}
	return out
}

func (r *Registry) transitionLocked(o *models.Opportunity, to models.OpportunityStatus) {
	o.Status = to
	r.metrics.RecordTransition(string(o.Key.Stage), string(to))
}

func (r *Registry) snapshotLocked(e *entry) *models.Opportunity {
	cp := *e.opp
	cp.Signals = append([]*models.Signal(nil), e.opp.Signals...)
	return &cp
}

func (r *Registry) remove(key models.OpportunityKey) {
	r.mu.Lock()
	delete(r.active, key)
	r.mu.Unlock()
}

func (r *Registry) save(ctx context.Context, o *models.Opportunity) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveOpportunity(ctx, o); err != nil {
		r.metrics.RecordError("store_opportunity")
		r.log.Warn("opportunity save failed", logger.Error(err))
	}
}

func (r *Registry) publish(ctx context.Context, t models.EventType, key models.OpportunityKey, fields map[string]any) {
	if r.events == nil {
		return
	}
	if err := r.events.Publish(ctx, models.NewEvent(t, key, fields)); err != nil {
		r.metrics.RecordError("publish_event")
	}
}
