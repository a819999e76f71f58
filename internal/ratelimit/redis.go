package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/allisson/guardrail/internal/errors"
)

// takeScript performs the fixed-window check-and-increment atomically on the
// server. A request over the limit is rejected without touching the counter,
// so count <= limit holds even under concurrent increments from multiple
// application instances.
//
// KEYS[1] = bucket key, ARGV[1] = limit, ARGV[2] = window in milliseconds.
// Returns {allowed, count, pttl_ms}.
var takeScript = redis.NewScript(`
local limit = tonumber(ARGV[1])
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current >= limit then
  return {0, current, redis.call('PTTL', KEYS[1])}
end
current = redis.call('INCR', KEYS[1])
if current == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return {1, current, redis.call('PTTL', KEYS[1])}
`)

// RedisStore implements Store on a shared Redis instance, making counters
// safe across multiple server instances.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore creates a Redis-backed rate limit store.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Take runs the atomic check-and-increment script for one request.
func (s *RedisStore) Take(ctx context.Context, key string, cfg Config) (Decision, error) {
	res, err := takeScript.Run(
		ctx,
		s.client,
		[]string{key},
		cfg.Limit,
		cfg.Window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{}, apperrors.Wrap(err, "failed to run rate limit script")
	}
	if len(res) != 3 {
		return Decision{}, apperrors.New("unexpected rate limit script reply")
	}

	allowed := res[0] == 1
	count := int(res[1])
	pttl := res[2]

	reset := time.Now().Add(cfg.Window)
	if pttl > 0 {
		reset = time.Now().Add(time.Duration(pttl) * time.Millisecond)
	}

	remaining := cfg.Limit - count
	if remaining < 0 {
		remaining = 0
	}

	return Decision{Allowed: allowed, Remaining: remaining, Reset: reset}, nil
}
