package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
)

// ErrNoRecord is returned by Store.Load when nothing is stored under a key.
var ErrNoRecord = errors.New("session: no record")

// Store is durable storage for serialized session records.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// RedisStoreOptions tunes a RedisStore.
type RedisStoreOptions struct {
	// Retention keeps records this long past their session TTL so an expired
	// record can still be observed and reported as expired.
	Retention time.Duration
	// RetryAttempts bounds retries of failed reads. Zero disables retrying.
	RetryAttempts uint64
	// RetryBase is the first exponential backoff step.
	RetryBase time.Duration
}

// RedisStore keeps session records in Redis.
type RedisStore struct {
	client redis.Cmdable
	opts   RedisStoreOptions
}

// NewRedisStore constructs a RedisStore.
func NewRedisStore(client redis.Cmdable, opts RedisStoreOptions) *RedisStore {
	if opts.RetryBase <= 0 {
		opts.RetryBase = 50 * time.Millisecond
	}
	return &RedisStore{client: client, opts: opts}
}

// Load fetches the record stored under key, retrying transient failures.
func (s *RedisStore) Load(ctx context.Context, key string) ([]byte, error) {
	var payload []byte
	backoff := retry.WithMaxRetries(s.opts.RetryAttempts, retry.NewExponential(s.opts.RetryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		data, err := s.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNoRecord
		}
		if err != nil {
			return retry.RetryableError(err)
		}
		payload = data
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNoRecord) {
			return nil, ErrNoRecord
		}
		return nil, fmt.Errorf("session: load %s: %w", key, err)
	}
	return payload, nil
}

// Save writes data under key. The Redis key outlives ttl by the configured
// retention.
func (s *RedisStore) Save(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	expiration := time.Duration(0)
	if ttl > 0 {
		expiration = ttl + s.opts.Retention
	}
	if err := s.client.Set(ctx, key, data, expiration).Err(); err != nil {
		return fmt.Errorf("session: save %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("session: delete %s: %w", key, err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
