// internal/engine/contextstore/redis.go
package contextstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"crm-assistant/internal/common/logger"
)

const defaultMaxRetries = 5

// RedisStore keeps conversation records in Redis. Updates use WATCH/MULTI
// so a write based on a stale read is retried instead of applied.
type RedisStore struct {
	client     *redis.Client
	maxRetries int
	logger     logger.Logger
}

// NewRedisStore wraps an existing client. maxRetries <= 0 uses the default.
func NewRedisStore(client *redis.Client, maxRetries int, log logger.Logger) *RedisStore {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return &RedisStore{
		client:     client,
		maxRetries: maxRetries,
		logger:     log.With(map[string]interface{}{"component": "context-store"}),
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: get %s: %v", ErrUnavailable, key, err)
	}
	return val, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: delete %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

func (s *RedisStore) Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) ([]byte, error) {
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		var (
			result []byte
			fnErr  error
		)

		txf := func(tx *redis.Tx) error {
			current, err := tx.Get(ctx, key).Bytes()
			exists := true
			if errors.Is(err, redis.Nil) {
				current, exists = nil, false
			} else if err != nil {
				return err
			}

			next, err := fn(current, exists)
			if errors.Is(err, ErrNoChange) {
				result = current
				return nil
			}
			if err != nil {
				fnErr = err
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, next, ttl)
				return nil
			})
			if err == nil {
				result = next
			}
			return err
		}

		err := s.client.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return result, nil
		case fnErr != nil:
			return nil, fnErr
		case errors.Is(err, redis.TxFailedErr):
			s.logger.Debug("optimistic update lost race, retrying", map[string]interface{}{
				"key":     key,
				"attempt": attempt,
			})
			continue
		default:
			return nil, fmt.Errorf("%w: update %s: %v", ErrUnavailable, key, err)
		}
	}

	s.logger.Warn("optimistic update exhausted retries", map[string]interface{}{
		"key":        key,
		"maxRetries": s.maxRetries,
	})
	return nil, fmt.Errorf("%w: %s after %d attempts", ErrConflict, key, s.maxRetries)
}

func (s *RedisStore) Name() string { return "context-store" }

// Ping checks connectivity for readiness probes.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping: %v", ErrUnavailable, err)
	}
	return nil
}
