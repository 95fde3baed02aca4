package utils

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable is returned by every method of a nil *RedisClient so
// callers can treat "no Redis configured" like a cache miss.
var ErrRedisUnavailable = errors.New("redis not configured")

// RedisClient is a thin wrapper over the Redis client.
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient wraps client; a nil client yields a nil wrapper.
func NewRedisClient(client *redis.Client) *RedisClient {
	if client == nil {
		return nil
	}
	return &RedisClient{client: client}
}

// Set stores value with a TTL; non-string values are stored as JSON.
func (r *RedisClient) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if r == nil {
		return ErrRedisUnavailable
	}
	var data string
	switch v := value.(type) {
	case string:
		data = v
	default:
		jsonData, err := json.Marshal(value)
		if err != nil {
			return err
		}
		data = string(jsonData)
	}
	return r.client.Set(ctx, key, data, ttl).Err()
}

// Get returns the value; a missing key yields redis.Nil.
func (r *RedisClient) Get(ctx context.Context, key string) (string, error) {
	if r == nil {
		return "", ErrRedisUnavailable
	}
	return r.client.Get(ctx, key).Result()
}

// Delete removes keys.
func (r *RedisClient) Delete(ctx context.Context, keys ...string) error {
	if r == nil {
		return ErrRedisUnavailable
	}
	return r.client.Del(ctx, keys...).Err()
}

// IncrementWindow increments a counter and starts its expiry on first use.
// Used for fixed-window rate limiting.
func (r *RedisClient) IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	if r == nil {
		return 0, ErrRedisUnavailable
	}
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := r.client.Expire(ctx, key, window).Err(); err != nil {
			return count, err
		}
	}
	return count, nil
}

// IsMiss reports whether err means "key not present" (or no Redis at all).
func IsMiss(err error) bool {
	return errors.Is(err, redis.Nil) || errors.Is(err, ErrRedisUnavailable)
}
