package usecase

import (
	"context"
	"encoding/json"
	"time"

	"ListingRadar/internal/bus"
	"ListingRadar/internal/domain/models"
	drepo "ListingRadar/internal/domain/repository"
	pkgkafka "ListingRadar/pkg/kafka"
)

// KafkaSignalsHandler consumes raw listing signals from Kafka and feeds the
// signal bus. Unknown stages and kinds are counted and dropped rather than
// failing the batch.
type KafkaSignalsHandler struct {
	topic   string
	bus     *bus.Bus
	metrics drepo.Metrics
}

func NewKafkaSignalsHandler(topic string, b *bus.Bus, metrics drepo.Metrics) *KafkaSignalsHandler {
	return &KafkaSignalsHandler{topic: topic, bus: b, metrics: metrics}
}

func (h *KafkaSignalsHandler) Topic() string { return h.topic }

// incoming message schema: {source, symbol, stage, kind, strength, ts, payload_ref}
func (h *KafkaSignalsHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Source     string  `json:"source"`
		Symbol     string  `json:"symbol"`
		Stage      string  `json:"stage"`
		Kind       string  `json:"kind"`
		Strength   float64 `json:"strength"`
		Ts         int64   `json:"ts"`
		PayloadRef string  `json:"payload_ref"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if m.Ts > 1e11 { // ms
		m.Ts = m.Ts / 1000
	}

	sig := &models.Signal{
		Source:     m.Source,
		Symbol:     m.Symbol,
		Stage:      models.Stage(m.Stage),
		Kind:       models.SignalKind(m.Kind),
		Strength:   m.Strength,
		Timestamp:  time.Unix(m.Ts, 0).UTC(),
		PayloadRef: m.PayloadRef,
	}
	if sig.Timestamp.IsZero() || m.Ts == 0 {
		sig.Timestamp = time.Now().UTC()
	}
	if !sig.Stage.Valid() || sig.Kind.Priority() == 0 {
		h.metrics.RecordError("consumer_unknown_signal")
		return nil
	}

	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(sig.Timestamp).Seconds())
	h.bus.Ingest(ctx, sig)
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaSignalsHandler)(nil)
