package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ListingRadar/internal/domain/models"
	drepo "ListingRadar/internal/domain/repository"
	domsvc "ListingRadar/internal/domain/service"
	"ListingRadar/pkg/logger"
)

// Coordinator turns approved entries and exits into idempotent order intents
// and reconciles fills. It never originates sizing decisions.
type Coordinator struct {
	exec        domsvc.Execution
	timeout     time.Duration
	maxAttempts int
	backoffMin  time.Duration
	backoffMax  time.Duration
	metrics     drepo.Metrics
	log         *logger.Logger

	mu        sync.Mutex
	completed map[string]domsvc.Fill // idempotency: settled intents by key
	inflight  map[string]struct{}
}

func NewCoordinator(exec domsvc.Execution, timeout time.Duration, maxAttempts int, backoffMin, backoffMax time.Duration, metrics drepo.Metrics, log *logger.Logger) *Coordinator {
	return &Coordinator{
		exec:        exec,
		timeout:     timeout,
		maxAttempts: maxAttempts,
		backoffMin:  backoffMin,
		backoffMax:  backoffMax,
		metrics:     metrics,
		log:         log.With("execution"),
		completed:   make(map[string]domsvc.Fill),
		inflight:    make(map[string]struct{}),
	}
}

// Open submits the entry for an approved opportunity. Retried calls with the
// same opportunity return the original fill instead of double-entering.
func (c *Coordinator) Open(ctx context.Context, o *models.Opportunity, size float64) (domsvc.Fill, error) {
	key := intentKey(o.Key, o.ID, "open")
	return c.submit(ctx, domsvc.OrderIntent{
		IdempotencyKey: key,
		Symbol:         o.Key.Symbol,
		Stage:          o.Key.Stage,
		Side:           "buy",
		Size:           size,
	})
}

// Close submits the exit for an open position, idempotent per position.
func (c *Coordinator) Close(ctx context.Context, p *models.Position) (domsvc.Fill, error) {
	key := intentKey(p.Key, p.OpportunityID, "close")
	return c.submit(ctx, domsvc.OrderIntent{
		IdempotencyKey: key,
		Symbol:         p.Key.Symbol,
		Stage:          p.Key.Stage,
		Side:           "sell",
		Size:           p.Size,
	})
}

func (c *Coordinator) submit(ctx context.Context, intent domsvc.OrderIntent) (domsvc.Fill, error) {
	key := intent.IdempotencyKey

	c.mu.Lock()
	if fill, ok := c.completed[key]; ok {
		c.mu.Unlock()
		return fill, nil
	}
	if _, busy := c.inflight[key]; busy {
		c.mu.Unlock()
		return domsvc.Fill{}, fmt.Errorf("intent %s already in flight", key)
	}
	c.inflight[key] = struct{}{}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inflight, key)
		c.mu.Unlock()
	}()

	var lastErr error
	backoff := c.backoffMin
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		start := time.Now()
		cctx, cancel := context.WithTimeout(ctx, c.timeout)
		fill, err := c.exec.Submit(cctx, intent)
		cancel()
		c.metrics.RecordLatency("order_submit", time.Since(start).Seconds())

		if err == nil {
			if fill.Partial {
				// Accept the filled size; the remainder is not chased.
				c.log.Warn("partial fill accepted",
					logger.String("intent", key),
					logger.Float64("filled", fill.FilledSize),
					logger.Float64("requested", intent.Size))
			}
			c.mu.Lock()
			c.completed[key] = fill
			c.mu.Unlock()
			return fill, nil
		}

		lastErr = err
		c.metrics.RecordError("order_submit")
		c.log.Warn("order submit failed",
			logger.String("intent", key),
			logger.Int("attempt", attempt),
			logger.Error(err))

		if attempt == c.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return domsvc.Fill{}, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.backoffMax {
			backoff = c.backoffMax
		}
	}

	return domsvc.Fill{}, fmt.Errorf("submit %s exhausted %d attempts: %w", key, c.maxAttempts, lastErr)
}

// Forget drops the idempotency record for an opportunity, freeing the key
// once its position has fully settled.
func (c *Coordinator) Forget(key models.OpportunityKey, opportunityID string) {
	c.mu.Lock()
	delete(c.completed, intentKey(key, opportunityID, "open"))
	delete(c.completed, intentKey(key, opportunityID, "close"))
	c.mu.Unlock()
}

func intentKey(key models.OpportunityKey, opportunityID, side string) string {
	return fmt.Sprintf("%s:%s:%s:%s", key.Symbol, key.Stage, opportunityID, side)
}
