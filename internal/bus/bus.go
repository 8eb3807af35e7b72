package bus

import (
	"context"
	"sync"
	"time"

	"ListingRadar/internal/domain/models"
	drepo "ListingRadar/internal/domain/repository"
	"ListingRadar/internal/service/ratelimit"
	"ListingRadar/pkg/logger"
)

// Result is the bus's answer to one inbound signal.
type Result string

const (
	Accepted    Result = "accepted"
	Duplicate   Result = "duplicate"
	RateLimited Result = "rate_limited"
	Unmonitored Result = "unmonitored"
	Invalid     Result = "invalid"
)

type dedupKey struct {
	source string
	symbol string
	stage  models.Stage
	kind   models.SignalKind
	bucket int64
}

// Bus deduplicates and fans in signals from concurrent feeds into a single
// ordered stream. Ingest is the one serialization point; producers never
// block each other and never block on a slow consumer.
type Bus struct {
	bucketWidth time.Duration
	ratePerMin  int
	monitored   map[string]struct{}

	limiter *ratelimit.Limiter
	metrics drepo.Metrics
	events  drepo.EventPublisher
	log     *logger.Logger

	mu        sync.Mutex
	seen      map[dedupKey]struct{}
	lastPrune int64 // bucket index of the last prune pass
	dropped   map[string]int

	out chan *models.Signal
}

type Option func(*Bus)

// WithBufferSize sets the fan-in channel capacity.
func WithBufferSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.out = make(chan *models.Signal, n)
		}
	}
}

func New(bucketWidth time.Duration, ratePerMin int, monitorSources []string, metrics drepo.Metrics, events drepo.EventPublisher, log *logger.Logger, opts ...Option) *Bus {
	b := &Bus{
		bucketWidth: bucketWidth,
		ratePerMin:  ratePerMin,
		monitored:   make(map[string]struct{}, len(monitorSources)),
		limiter:     ratelimit.New(),
		metrics:     metrics,
		events:      events,
		log:         log.With("bus"),
		seen:        make(map[dedupKey]struct{}),
		dropped:     make(map[string]int),
		out:         make(chan *models.Signal, 1024),
	}
	for _, s := range monitorSources {
		b.monitored[s] = struct{}{}
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Out is the ordered stream consumed by the opportunity registry.
func (b *Bus) Out() <-chan *models.Signal { return b.out }

// Close stops the stream. Ingest must not be called afterwards.
func (b *Bus) Close() { close(b.out) }

// Ingest accepts or drops one signal. Duplicates within the same time bucket
// are dropped silently; sources exceeding their rate ceiling lose their
// lowest-priority kinds first.
func (b *Bus) Ingest(ctx context.Context, s *models.Signal) Result {
	if s == nil || s.Symbol == "" || !s.Stage.Valid() {
		b.metrics.RecordError("bus_invalid_signal")
		return Invalid
	}
	if len(b.monitored) > 0 {
		if _, ok := b.monitored[s.Source]; !ok {
			return Unmonitored
		}
	}

	if !b.allowRate(s) {
		b.metrics.RecordRateLimited(s.Source)
		b.noteDrop(ctx, s)
		return RateLimited
	}

	key := b.dedup(s)
	b.mu.Lock()
	if _, dup := b.seen[key]; dup {
		b.mu.Unlock()
		b.metrics.RecordSignal(s.Source, false)
		return Duplicate
	}
	b.seen[key] = struct{}{}
	b.pruneLocked(key.bucket)
	b.mu.Unlock()

	b.metrics.RecordSignal(s.Source, true)

	select {
	case b.out <- s:
	default:
		// Consumer stalled; dropping beats blocking the producing feed.
		b.metrics.RecordError("bus_backpressure_drop")
	}
	return Accepted
}

func (b *Bus) dedup(s *models.Signal) dedupKey {
	w := int64(b.bucketWidth / time.Second)
	if w <= 0 {
		w = 60
	}
	return dedupKey{
		source: s.Source,
		symbol: s.Symbol,
		stage:  s.Stage,
		kind:   s.Kind,
		bucket: s.Timestamp.Unix() / w,
	}
}

// allowRate applies the per-source ceiling. Higher-priority kinds spend less
// of the budget, so when a source floods, social mentions run out first and
// confirmed listings keep flowing.
func (b *Bus) allowRate(s *models.Signal) bool {
	capacity := float64(b.ratePerMin)
	refill := capacity / 60.0
	cost := 1.0
	switch s.Kind.Priority() {
	case 3:
		cost = 0.2
	case 2:
		cost = 0.5
	}
	return b.limiter.AllowN(s.Source, capacity, refill, cost)
}

func (b *Bus) noteDrop(ctx context.Context, s *models.Signal) {
	b.mu.Lock()
	b.dropped[s.Source]++
	n := b.dropped[s.Source]
	b.mu.Unlock()

	// One event per ceiling crossing burst, not per dropped signal.
	if n%100 != 1 {
		return
	}
	b.log.Warn("source over rate ceiling",
		logger.String("source", s.Source),
		logger.Int("dropped", n))
	if b.events != nil {
		_ = b.events.Publish(ctx, models.NewEvent(models.EventSourceRateLimited, s.Key(), map[string]any{
			"source":  s.Source,
			"dropped": n,
		}))
	}
}

// pruneLocked discards dedup entries older than two buckets so the set does
// not grow without bound. Caller holds b.mu.
func (b *Bus) pruneLocked(current int64) {
	if current <= b.lastPrune {
		return
	}
	b.lastPrune = current
	for k := range b.seen {
		if k.bucket < current-1 {
			delete(b.seen, k)
		}
	}
}
