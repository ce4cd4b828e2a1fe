package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrDisabled is returned by Noop for operations that need a real backend.
var ErrDisabled = errors.New("cache disabled")

// Cache is the caching interface. All cache operations go through here.
// Implementations must be safe for concurrent use.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	DeleteMatching(ctx context.Context, pattern string) (int, error)
	Ping(ctx context.Context) error
	SetJobStatus(ctx context.Context, subjectID string, status string, ttl time.Duration) error
	GetJobStatus(ctx context.Context, subjectID string) (string, bool, error)
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
}

// RedisCache implements the Cache interface using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// DeleteMatching removes every key matching the glob pattern and reports how
// many were deleted. SCAN is not atomic: keys written during the walk may survive.
func (c *RedisCache) DeleteMatching(ctx context.Context, pattern string) (int, error) {
	const batchSize = 100
	deleted := 0
	batch := make([]string, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := c.client.Del(ctx, batch...).Result()
		deleted += int(n)
		batch = batch[:0]
		return err
	}

	iter := c.client.Scan(ctx, 0, pattern, batchSize).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return deleted, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, err
	}
	return deleted, flush()
}

func (c *RedisCache) SetJobStatus(ctx context.Context, subjectID string, status string, ttl time.Duration) error {
	return c.client.Set(ctx, JobStatusKey(subjectID), status, ttl).Err()
}

func (c *RedisCache) GetJobStatus(ctx context.Context, subjectID string) (string, bool, error) {
	val, err := c.client.Get(ctx, JobStatusKey(subjectID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// Noop is used when no Redis URL is configured. Reads miss, writes are
// dropped, and counters report ErrDisabled so rate limiting fails open.
type Noop struct{}

func (Noop) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (Noop) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (Noop) Delete(context.Context, string) error                     { return nil }
func (Noop) DeleteMatching(context.Context, string) (int, error)      { return 0, nil }
func (Noop) Ping(context.Context) error                               { return nil }
func (Noop) SetJobStatus(context.Context, string, string, time.Duration) error {
	return nil
}
func (Noop) GetJobStatus(context.Context, string) (string, bool, error) { return "", false, nil }
func (Noop) IncrWithExpiry(context.Context, string, time.Duration) (int64, error) {
	return 0, ErrDisabled
}

var (
	_ Cache = (*RedisCache)(nil)
	_ Cache = Noop{}
)
