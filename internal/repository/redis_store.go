package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ListingRadar/internal/domain/models"
	drepo "ListingRadar/internal/domain/repository"

	"github.com/redis/go-redis/v9"
)

const (
	opportunityPrefix = "lr:opp:"
	positionPrefix    = "lr:pos:"
	reliabilityKey    = "lr:reliability"
	openPositionsKey  = "lr:open_positions"
)

// RedisStore implements Store on Redis. Opportunities and positions are
// JSON blobs; the open-position set is a hash so restart recovery is one
// HGETALL instead of a key scan.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed Store. Terminal records expire after
// ttl; zero ttl keeps them forever.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) SaveOpportunity(ctx context.Context, o *models.Opportunity) error {
	b, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal opportunity: %w", err)
	}
	var exp time.Duration
	if o.Status.Terminal() {
		exp = s.ttl
	}
	if err := s.client.Set(ctx, opportunityPrefix+o.ID, b, exp).Err(); err != nil {
		return fmt.Errorf("save opportunity: %w", err)
	}
	return nil
}

func (s *RedisStore) SavePosition(ctx context.Context, p *models.Position) error {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal position: %w", err)
	}
	pipe := s.client.TxPipeline()
	var exp time.Duration
	if p.Status == models.PositionClosed {
		exp = s.ttl
	}
	pipe.Set(ctx, positionPrefix+p.ID, b, exp)
	switch p.Status {
	case models.PositionOpen, models.PositionClosing:
		pipe.HSet(ctx, openPositionsKey, p.ID, b)
	default:
		pipe.HDel(ctx, openPositionsKey, p.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save position: %w", err)
	}
	return nil
}

func (s *RedisStore) SaveReliability(ctx context.Context, sample *models.ReliabilitySample) error {
	b, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("marshal reliability: %w", err)
	}
	if err := s.client.HSet(ctx, reliabilityKey, sample.Source, b).Err(); err != nil {
		return fmt.Errorf("save reliability: %w", err)
	}
	return nil
}

func (s *RedisStore) LoadReliability(ctx context.Context) ([]*models.ReliabilitySample, error) {
	m, err := s.client.HGetAll(ctx, reliabilityKey).Result()
	if err != nil {
		return nil, fmt.Errorf("load reliability: %w", err)
	}
	samples := make([]*models.ReliabilitySample, 0, len(m))
	for source, raw := range m {
		var sample models.ReliabilitySample
		if err := json.Unmarshal([]byte(raw), &sample); err != nil {
			return nil, fmt.Errorf("unmarshal reliability %s: %w", source, err)
		}
		samples = append(samples, &sample)
	}
	return samples, nil
}

func (s *RedisStore) LoadOpenPositions(ctx context.Context) ([]*models.Position, error) {
	m, err := s.client.HGetAll(ctx, openPositionsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("load open positions: %w", err)
	}
	positions := make([]*models.Position, 0, len(m))
	for id, raw := range m {
		var p models.Position
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("unmarshal position %s: %w", id, err)
		}
		positions = append(positions, &p)
	}
	return positions, nil
}

func (s *RedisStore) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ drepo.Store = (*RedisStore)(nil)
