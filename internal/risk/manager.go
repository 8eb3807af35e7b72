package risk

import (
	"context"
	"sync"
	"time"

	"ListingRadar/internal/domain/models"
	drepo "ListingRadar/internal/domain/repository"
	"ListingRadar/pkg/logger"
)

// Reason codes for rejected entries. Terminal for the opportunity, never
// retried.
type Reason string

const (
	ReasonCircuitBreaker Reason = "circuit_breaker_tripped"
	ReasonMaxPositions   Reason = "max_concurrent_positions"
	ReasonExposure       Reason = "exposure_ceiling"
	ReasonBelowMinimum   Reason = "below_min_trade_size"
)

// Decision is the answer to one entry evaluation.
type Decision struct {
	Approved bool
	Size     float64
	Reason   Reason
}

// Config holds the portfolio-level limits.
type Config struct {
	Equity                 float64
	MaxDailyLossPct        float64
	MaxConcurrentPositions int
	MaxExposurePct         float64
	CorrelationLimit       float64
	MinTradeAmount         float64
	ConfidenceThreshold    float64
	StageCeilings          map[models.Stage]float64
}

// Manager gates and sizes entries against portfolio exposure, concurrency
// and loss limits, and owns the circuit breaker. Evaluation and state
// mutation share one lock so two concurrent entries can never jointly exceed
// the exposure ceiling.
type Manager struct {
	cfg     Config
	metrics drepo.Metrics
	events  drepo.EventPublisher
	log     *logger.Logger

	mu    sync.Mutex
	state *State
}

func NewManager(cfg Config, state *State, metrics drepo.Metrics, events drepo.EventPublisher, log *logger.Logger) *Manager {
	return &Manager{
		cfg:     cfg,
		state:   state,
		metrics: metrics,
		events:  events,
		log:     log.With("risk"),
	}
}

// Evaluate runs the hard gates in order and, when all pass, reserves the
// approved size and a position slot before returning. The reservation counts
// against later evaluations until RecordOpen confirms the fill or Release
// hands it back, so concurrent entries observe each other's approved
// exposure, not just settled fills.
func (m *Manager) Evaluate(ctx context.Context, o *models.Opportunity, confidence float64) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.breakerTripped {
		return m.reject(o, ReasonCircuitBreaker)
	}
	if m.state.openCount() >= m.cfg.MaxConcurrentPositions {
		return m.reject(o, ReasonMaxPositions)
	}

	size := m.sizeLocked(o, confidence)

	ceiling := m.cfg.MaxExposurePct * m.cfg.Equity
	if m.state.totalExposure()+size > ceiling {
		return m.reject(o, ReasonExposure)
	}
	if size < m.cfg.MinTradeAmount {
		return m.reject(o, ReasonBelowMinimum)
	}

	m.state.pending[o.ID] = exposure{symbol: o.Key.Symbol, size: size}
	return Decision{Approved: true, Size: size}
}

// sizeLocked computes the entry size: stage ceiling, scaled down for
// correlated exposure, scaled by the confidence multiplier, never above the
// ceiling.
func (m *Manager) sizeLocked(o *models.Opportunity, confidence float64) float64 {
	ceiling := m.cfg.StageCeilings[o.Key.Stage]
	if ceiling <= 0 {
		return 0
	}

	size := ceiling
	if m.state.correlated(o.Key.Symbol) {
		size *= 1 - m.cfg.CorrelationLimit
	}
	size *= m.confidenceMultiplier(confidence)

	if size > ceiling {
		size = ceiling
	}
	return size
}

// confidenceMultiplier maps confidence linearly from the validation
// threshold up to the full ceiling at confidence 1.0.
func (m *Manager) confidenceMultiplier(confidence float64) float64 {
	span := 1 - m.cfg.ConfidenceThreshold
	if span <= 0 {
		return 1
	}
	mult := (confidence - m.cfg.ConfidenceThreshold) / span
	if mult < 0 {
		return 0
	}
	if mult > 1 {
		return 1
	}
	return mult
}

func (m *Manager) reject(o *models.Opportunity, reason Reason) Decision {
	m.log.Info("entry rejected",
		logger.String("key", o.Key.String()),
		logger.String("reason", string(reason)))
	m.metrics.RecordTransition(string(o.Key.Stage), string(models.OpportunityRejected))
	return Decision{Reason: reason}
}

// RecordOpen confirms a filled entry: the reservation made at evaluation
// time is replaced by the actual filled exposure, which may be smaller on a
// partial fill. Positions restored after a restart have no reservation; the
// delete is a no-op for them.
func (m *Manager) RecordOpen(p *models.Position) {
	m.mu.Lock()
	delete(m.state.pending, p.OpportunityID)
	m.state.open[p.ID] = exposure{symbol: p.Key.Symbol, size: p.Size}
	n := m.state.openCount()
	m.mu.Unlock()
	m.metrics.RecordOpenPositions(n)
}

// Release hands back the reservation for an approved entry that never
// filled.
func (m *Manager) Release(opportunityID string) {
	m.mu.Lock()
	delete(m.state.pending, opportunityID)
	n := m.state.openCount()
	m.mu.Unlock()
	m.metrics.RecordOpenPositions(n)
}

// RecordClose removes the position's exposure, folds its realized PnL into
// the daily tally, and trips the circuit breaker when today's realized loss
// reaches the configured share of equity.
func (m *Manager) RecordClose(ctx context.Context, p *models.Position) {
	m.mu.Lock()
	delete(m.state.open, p.ID)
	m.state.realizedPnL += p.RealizedPnL
	n := m.state.openCount()

	tripped := false
	lossLimit := m.cfg.MaxDailyLossPct * m.cfg.Equity
	if !m.state.breakerTripped && -m.state.realizedPnL >= lossLimit {
		m.state.breakerTripped = true
		m.state.breakerSince = time.Now().UTC()
		tripped = true
	}
	m.mu.Unlock()

	m.metrics.RecordOpenPositions(n)
	if tripped {
		m.metrics.RecordCircuitBreaker(true)
		m.log.Error("circuit breaker tripped, blocking new entries until daily reset",
			logger.Float64("daily_pnl", m.DailyPnL()),
			logger.Float64("loss_limit", lossLimit))
		if m.events != nil {
			_ = m.events.Publish(ctx, models.NewEvent(models.EventCircuitBreaker, p.Key, map[string]any{
				"daily_pnl":  m.DailyPnL(),
				"loss_limit": lossLimit,
			}))
		}
	}
}

// ResetDaily clears the day's realized PnL and re-arms the breaker. Called
// at the UTC midnight boundary, never mid-day.
func (m *Manager) ResetDaily(now time.Time) {
	m.mu.Lock()
	m.state.dayStart = dayStartUTC(now)
	m.state.realizedPnL = 0
	wasTripped := m.state.breakerTripped
	m.state.breakerTripped = false
	m.state.breakerSince = time.Time{}
	m.mu.Unlock()

	m.metrics.RecordCircuitBreaker(false)
	if wasTripped {
		m.log.Info("daily reset, circuit breaker re-armed")
	}
}

// RunDailyReset blocks until ctx is done, resetting state at each UTC
// midnight.
func (m *Manager) RunDailyReset(ctx context.Context) {
	for {
		now := time.Now().UTC()
		next := dayStartUTC(now).Add(24 * time.Hour)
		select {
		case <-ctx.Done():
			return
		case <-time.After(next.Sub(now)):
			m.ResetDaily(time.Now())
		}
	}
}

// DailyPnL returns today's realized PnL.
func (m *Manager) DailyPnL() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.realizedPnL
}

// Snapshot returns the current risk metrics view.
func (m *Manager) Snapshot() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Metrics{
		OpenPositions:  m.state.openCount(),
		TotalExposure:  m.state.totalExposure(),
		DailyPnL:       m.state.realizedPnL,
		BreakerTripped: m.state.breakerTripped,
		BreakerSince:   m.state.breakerSince,
		DayStart:       m.state.dayStart,
	}
}
