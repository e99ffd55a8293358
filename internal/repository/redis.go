package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"studiobook/internal/config"
	"studiobook/internal/models"

	"github.com/redis/go-redis/v9"
)

// Fixed diagnostic keys. Support tooling reads these directly.
const (
	keyLastCompleted = "studiobook:last_completed"
	keyLastReceipt   = "studiobook:last_receipt"
)

type RedisStateRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient builds a Redis client from configuration.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

// NewRedisStateRepository stores saga snapshots with a TTL; the fixed
// diagnostic keys are kept without expiry.
func NewRedisStateRepository(client *redis.Client, ttl time.Duration) *RedisStateRepository {
	return &RedisStateRepository{
		client: client,
		ttl:    ttl,
	}
}

func sagaKey(sagaID string) string {
	return fmt.Sprintf("saga_state:%s", sagaID)
}

func (r *RedisStateRepository) GetSaga(ctx context.Context, sagaID string) (*models.SagaRecord, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, sagaKey(sagaID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get saga record from redis: %w", err)
	}

	var rec models.SagaRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal saga record: %w", err)
	}

	return &rec, nil
}

func (r *RedisStateRepository) SaveSaga(ctx context.Context, rec *models.SagaRecord) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal saga record: %w", err)
	}

	if err := r.client.Set(ctx, sagaKey(rec.SagaID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set saga record in redis: %w", err)
	}

	return nil
}

func (r *RedisStateRepository) ClearSaga(ctx context.Context, sagaID string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, sagaKey(sagaID)).Err(); err != nil {
		return fmt.Errorf("failed to delete saga record from redis: %w", err)
	}
	return nil
}

func (r *RedisStateRepository) SetLastCompleted(ctx context.Context, rec *models.AuditRecord) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}
	if err := r.client.Set(ctx, keyLastCompleted, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set last completed bundle: %w", err)
	}
	return nil
}

func (r *RedisStateRepository) GetLastCompleted(ctx context.Context) (*models.AuditRecord, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, keyLastCompleted).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last completed bundle: %w", err)
	}

	var rec models.AuditRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal audit record: %w", err)
	}
	return &rec, nil
}

func (r *RedisStateRepository) SetLastReceipt(ctx context.Context, url string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Set(ctx, keyLastReceipt, url, 0).Err(); err != nil {
		return fmt.Errorf("failed to set last receipt: %w", err)
	}
	return nil
}

func (r *RedisStateRepository) GetLastReceipt(ctx context.Context) (string, error) {
	if r.client == nil {
		return "", fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, keyLastReceipt).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get last receipt: %w", err)
	}
	return val, nil
}

// Ping checks the Redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
