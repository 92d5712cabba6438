package convstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yomakenya/smsbridge/internal/models"
)

// redisKeyPrefix namespaces conversation keys in a shared Redis instance.
const redisKeyPrefix = "conv:"

// RedisStore is a Redis-backed conversation store. It gives conversations
// durability across restarts; idle expiry is delegated to Redis key TTLs,
// refreshed on every Put, so SweepExpired has nothing to do.
//
// Per-phone serialization remains in-process (KeyedMutex), so a Redis-backed
// deployment must run a single bridge instance, or shard inbound webhooks by
// phone number so each number is handled by exactly one instance.
type RedisStore struct {
	client  *redis.Client
	maxIdle time.Duration
}

// NewRedisStore connects to Redis using the given URL
// (e.g. redis://localhost:6379/0) and verifies the connection.
func NewRedisStore(ctx context.Context, url string, maxIdle time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	if maxIdle <= 0 {
		maxIdle = DefaultMaxIdle
	}
	slog.Debug("Redis conversation store connected", "max_idle", maxIdle)
	return &RedisStore{client: client, maxIdle: maxIdle}, nil
}

// Get returns the conversation for phone, or nil if none exists.
func (s *RedisStore) Get(ctx context.Context, phoneNumber string) (*models.Conversation, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+phoneNumber).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	var conv models.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("failed to decode stored conversation: %w", err)
	}
	return &conv, nil
}

// Put stores the conversation and refreshes its idle TTL.
func (s *RedisStore) Put(ctx context.Context, conv *models.Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("failed to encode conversation: %w", err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+conv.Phone, data, s.maxIdle).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete removes the conversation for phone.
func (s *RedisStore) Delete(ctx context.Context, phoneNumber string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+phoneNumber).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// SweepExpired is a no-op: Redis evicts idle conversations via key TTLs.
func (s *RedisStore) SweepExpired(ctx context.Context, maxIdle time.Duration) (int, error) {
	return 0, nil
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
