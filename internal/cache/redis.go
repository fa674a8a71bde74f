package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cam3ron2/devboard/internal/report"
	"github.com/redis/go-redis/v9"
)

type redisCommander interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Keys(ctx context.Context, pattern string) *redis.StringSliceCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStoreConfig configures the Redis-backed snapshot store.
type RedisStoreConfig struct {
	Namespace string
	// Expiry bounds how long Redis retains a snapshot. Freshness within
	// that bound is still decided from the embedded generatedAt field.
	Expiry time.Duration
}

// RedisStore persists snapshots in Redis for deployments that share them
// between replicas.
type RedisStore struct {
	client    redisCommander
	closeFn   func() error
	namespace string
	expiry    time.Duration
}

// NewRedisStore creates a Redis-backed snapshot store.
func NewRedisStore(client redis.UniversalClient, cfg RedisStoreConfig) *RedisStore {
	closeFn := func() error { return nil }
	if client != nil {
		closeFn = client.Close
	}
	return newRedisStoreFromCommander(client, closeFn, cfg)
}

func newRedisStoreFromCommander(client redisCommander, closeFn func() error, cfg RedisStoreConfig) *RedisStore {
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "devboard"
	}
	expiry := cfg.Expiry
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	if closeFn == nil {
		closeFn = func() error { return nil }
	}
	return &RedisStore{
		client:    client,
		closeFn:   closeFn,
		namespace: namespace,
		expiry:    expiry,
	}
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	if s == nil || s.closeFn == nil {
		return nil
	}
	return s.closeFn()
}

// Load reads one snapshot. A missing key is not an error.
func (s *RedisStore) Load(ctx context.Context, key Key) (*report.AggregatedReport, bool, error) {
	data, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read snapshot from redis: %w", err)
	}

	var rep report.AggregatedReport
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return &rep, true, nil
}

// Save writes one snapshot with the configured retention bound.
func (s *RedisStore) Save(ctx context.Context, key Key, rep *report.AggregatedReport) error {
	data, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.redisKey(key), data, s.expiry).Err(); err != nil {
		return fmt.Errorf("write snapshot to redis: %w", err)
	}
	return nil
}

// Clear deletes every snapshot in the namespace.
func (s *RedisStore) Clear(ctx context.Context) (int, error) {
	keys, err := s.client.Keys(ctx, s.namespace+":snapshot:*").Result()
	if err != nil {
		return 0, fmt.Errorf("list snapshots in redis: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	removed, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return int(removed), fmt.Errorf("clear snapshots in redis: %w", err)
	}
	return int(removed), nil
}

func (s *RedisStore) redisKey(key Key) string {
	return s.namespace + ":snapshot:" + key.String()
}
