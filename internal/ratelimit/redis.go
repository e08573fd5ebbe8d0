package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "debai:ratelimit:"

// incrementScript opens the window on the first hit and returns the count
// with the remaining window in milliseconds
var incrementScript = redis.NewScript(`
local current = redis.call('INCR', KEYS[1])
if current == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
return {current, ttl}
`)

// RedisStore keeps counters in Redis so every instance sees the same window
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an established client. Close does not close the client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get returns the live count for key
func (s *RedisStore) Get(ctx context.Context, key string) (int64, time.Time, error) {
	k := redisKeyPrefix + key

	pipe := s.client.Pipeline()
	getCmd := pipe.Get(ctx, k)
	ttlCmd := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return 0, time.Time{}, fmt.Errorf("redis get %s: %w", key, err)
	}

	raw, err := getCmd.Result()
	if err == redis.Nil {
		return 0, time.Time{}, nil
	}
	if err != nil {
		return 0, time.Time{}, err
	}

	count, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("corrupt counter for %s: %w", key, err)
	}
	return count, time.Now().Add(ttlCmd.Val()), nil
}

// Increment counts one hit for key atomically
func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	vals, err := incrementScript.Run(ctx, s.client, []string{redisKeyPrefix + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis increment %s: %w", key, err)
	}
	if len(vals) != 2 {
		return 0, time.Time{}, fmt.Errorf("redis increment %s: unexpected reply %v", key, vals)
	}

	ttl := time.Duration(vals[1]) * time.Millisecond
	if ttl < 0 {
		ttl = window
	}
	return vals[0], time.Now().Add(ttl), nil
}

// Reset forgets key
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, redisKeyPrefix+key).Err()
}

// Close is a no-op; the client belongs to the caller
func (s *RedisStore) Close() error {
	return nil
}
