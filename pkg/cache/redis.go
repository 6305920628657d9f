package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient wraps the Redis connection used for response caching and rate
// limiting. Every caller must tolerate a nil client or a failed IsReady: the
// analyzer serves fine without Redis, just without the shortcuts.
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient connects to the given URL. An empty URL is reported as an
// error so the caller can log the degradation once and move on.
func NewRedisClient(url string) (*RedisClient, error) {
	if url == "" {
		return nil, errors.New("REDIS_URL not configured")
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisClient{client: client}, nil
}

// IsReady reports whether the connection currently answers.
func (c *RedisClient) IsReady() bool {
	if c == nil || c.client == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return c.client.Ping(ctx).Err() == nil
}

func (c *RedisClient) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Get reads a cached value. The second return is false on a miss.
func (c *RedisClient) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read cache key %s: %w", key, err)
	}
	return value, true, nil
}

func (c *RedisClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache key %s: %w", key, err)
	}
	return nil
}

func (c *RedisClient) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete cache keys: %w", err)
	}
	return nil
}

// RateLimitResult is the outcome of one rate limit check.
type RateLimitResult struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// CheckAPIRateLimit counts the request against a fixed window per key and
// reports whether it fits under the limit.
func (c *RedisClient) CheckAPIRateLimit(ctx context.Context, key string, limit int64, window time.Duration) (*RateLimitResult, error) {
	redisKey := "ratelimit:" + key

	pipe := c.client.TxPipeline()
	count := pipe.Incr(ctx, redisKey)
	pipe.ExpireNX(ctx, redisKey, window)
	ttl := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to check rate limit: %w", err)
	}

	current := count.Val()
	remaining := limit - current
	if remaining < 0 {
		remaining = 0
	}
	reset := ttl.Val()
	if reset < 0 {
		reset = window
	}

	result := &RateLimitResult{
		Allowed:   current <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   time.Now().Add(reset),
	}
	if !result.Allowed {
		result.RetryAfter = reset
	}
	return result, nil
}
