package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	signals        *prometheus.CounterVec
	rateLimited    *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	openPositions  prometheus.Gauge
	realizedPnL    *prometheus.CounterVec
	circuitBreaker prometheus.Gauge
	errorsTotal    *prometheus.CounterVec
	latency        *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		signals: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listingradar_signals_total",
				Help: "Signals seen by the bus, by source and accept decision",
			},
			[]string{"source", "decision"},
		),
		rateLimited: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listingradar_signals_rate_limited_total",
				Help: "Signals dropped because a source exceeded its rate ceiling",
			},
			[]string{"source"},
		),
		transitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listingradar_opportunity_transitions_total",
				Help: "Opportunity state transitions, by stage and target status",
			},
			[]string{"stage", "status"},
		),
		openPositions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "listingradar_open_positions",
				Help: "Number of currently open positions",
			},
		),
		realizedPnL: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listingradar_realized_pnl_total",
				Help: "Cumulative realized PnL in quote currency, by stage",
			},
			[]string{"stage"},
		),
		circuitBreaker: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "listingradar_circuit_breaker_tripped",
				Help: "1 while the circuit breaker blocks new entries",
			},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listingradar_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "listingradar_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordSignal(source string, accepted bool) {
	decision := "accepted"
	if !accepted {
		decision = "duplicate"
	}
	r.signals.WithLabelValues(source, decision).Inc()
}

func (r *Recorder) RecordRateLimited(source string) {
	r.rateLimited.WithLabelValues(source).Inc()
}

func (r *Recorder) RecordTransition(stage, status string) {
	r.transitions.WithLabelValues(stage, status).Inc()
}

func (r *Recorder) RecordOpenPositions(n int) {
	r.openPositions.Set(float64(n))
}

func (r *Recorder) RecordRealizedPnL(stage string, pnl float64) {
	r.realizedPnL.WithLabelValues(stage).Add(pnl)
}

func (r *Recorder) RecordCircuitBreaker(tripped bool) {
	if tripped {
		r.circuitBreaker.Set(1)
	} else {
		r.circuitBreaker.Set(0)
	}
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
