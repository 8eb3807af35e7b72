package repository

import (
	"context"

	"ListingRadar/internal/domain/models"
	drepo "ListingRadar/internal/domain/repository"
	pkgkafka "ListingRadar/pkg/kafka"
)

// KafkaPublisher emits lifecycle events, keyed by opportunity so consumers
// see each opportunity's history in order.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) drepo.EventPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e *models.Event) error {
	return p.producer.Publish(ctx, p.topic, []byte(e.Key.String()), e)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
