package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore claims keys with SETNX and a TTL so the uniqueness guarantee
// survives process restarts without growing without bound.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

const redisKeyPrefix = "idempotency:"

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) MarkUsed(ctx context.Context, key string) (bool, error) {
	if s.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}

	claimed, err := s.client.SetNX(ctx, redisKeyPrefix+key, "1", s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim key in redis: %w", err)
	}
	return claimed, nil
}
