package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/authgate/internal/metrics"
)

const scanBatch = 100

// Store is a short-lived key/value store with per-key expiry. Values are
// JSON encoded.
type Store interface {
	// Put writes value with ttl. Errors are returned to the caller.
	Put(ctx context.Context, key string, value any, ttl time.Duration) error

	// PutKeepTTL overwrites value and keeps the key's remaining ttl.
	PutKeepTTL(ctx context.Context, key string, value any) error

	// Get decodes the value at key into dest. Store faults and malformed
	// payloads are reported as a miss.
	Get(ctx context.Context, key string, dest any) (bool, error)

	// Delete removes exact keys.
	Delete(ctx context.Context, keys ...string) error

	// DeleteMatching removes one key or every key matching a glob pattern
	// and reports whether anything was removed.
	DeleteMatching(ctx context.Context, keyOrPattern string) (bool, error)
}

// RedisStore implements Store on a redis client.
type RedisStore struct {
	client    redis.UniversalClient
	opTimeout time.Duration
	logger    *slog.Logger
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a store. Every redis call is bounded by opTimeout
// when it is positive.
func NewRedisStore(client redis.UniversalClient, opTimeout time.Duration, logger *slog.Logger) *RedisStore {
	return &RedisStore{client: client, opTimeout: opTimeout, logger: logger}
}

func (s *RedisStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	opCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.client.Set(opCtx, key, data, ttl).Err(); err != nil {
		metrics.CacheOperation("put", metrics.ResultError)
		return fmt.Errorf("redis set: %w", err)
	}
	metrics.CacheOperation("put", metrics.ResultOK)
	return nil
}

// PutKeepTTL implements Store.
func (s *RedisStore) PutKeepTTL(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	opCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.client.Set(opCtx, key, data, redis.KeepTTL).Err(); err != nil {
		metrics.CacheOperation("put", metrics.ResultError)
		return fmt.Errorf("redis set keepttl: %w", err)
	}
	metrics.CacheOperation("put", metrics.ResultOK)
	return nil
}

// Get implements Store. The only error it returns is the caller's own
// context error; redis faults and timeouts degrade to a miss.
func (s *RedisStore) Get(ctx context.Context, key string, dest any) (bool, error) {
	opCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	data, err := s.client.Get(opCtx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		metrics.CacheOperation("get", metrics.ResultMiss)
		return false, nil
	case err != nil:
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		metrics.CacheOperation("get", metrics.ResultError)
		s.logger.WarnContext(ctx, "cache read failed, treating as miss",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return false, nil
	}

	if err := json.Unmarshal(data, dest); err != nil {
		metrics.CacheOperation("get", metrics.ResultError)
		s.logger.WarnContext(ctx, "malformed cache value, treating as miss",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return false, nil
	}
	metrics.CacheOperation("get", metrics.ResultHit)
	return true, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	opCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.client.Del(opCtx, keys...).Err(); err != nil {
		metrics.CacheOperation("delete", metrics.ResultError)
		return fmt.Errorf("redis del: %w", err)
	}
	metrics.CacheOperation("delete", metrics.ResultOK)
	return nil
}

// DeleteMatching implements Store. Patterns are resolved with SCAN, never
// KEYS, so large keyspaces are not blocked.
func (s *RedisStore) DeleteMatching(ctx context.Context, keyOrPattern string) (bool, error) {
	if !isPattern(keyOrPattern) {
		opCtx, cancel := s.withTimeout(ctx)
		defer cancel()
		n, err := s.client.Del(opCtx, keyOrPattern).Result()
		if err != nil {
			return false, fmt.Errorf("redis del: %w", err)
		}
		return n > 0, nil
	}

	var (
		cursor  uint64
		deleted int64
	)
	for {
		opCtx, cancel := s.withTimeout(ctx)
		keys, next, err := s.client.Scan(opCtx, cursor, keyOrPattern, scanBatch).Result()
		if err != nil {
			cancel()
			return deleted > 0, fmt.Errorf("redis scan %q: %w", keyOrPattern, err)
		}
		if len(keys) > 0 {
			n, err := s.client.Del(opCtx, keys...).Result()
			if err != nil {
				cancel()
				return deleted > 0, fmt.Errorf("redis del: %w", err)
			}
			deleted += n
		}
		cancel()

		cursor = next
		if cursor == 0 {
			break
		}
	}
	return deleted > 0, nil
}
