package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KEYS[1] window key, ARGV[1] max, ARGV[2] window in ms.
// Returns {count, ttl_ms, allowed}.
var fixedWindowScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if (not current) or ttl < 0 then
  redis.call('SET', KEYS[1], 1, 'PX', ARGV[2])
  return {1, tonumber(ARGV[2]), 1}
end
local count = tonumber(current)
if count >= tonumber(ARGV[1]) then
  return {count, ttl, 0}
end
count = redis.call('INCR', KEYS[1])
return {count, ttl, 1}
`)

// RedisStore shares windows across replicas through one Lua script per hit
type RedisStore struct {
	client redis.Scripter
}

func NewRedisStore(client redis.Scripter) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Hit(ctx context.Context, key string, max int, win time.Duration) (int, time.Duration, bool, error) {
	res, err := fixedWindowScript.Run(ctx, s.client, []string{key}, max, win.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, false, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 3 {
		return 0, 0, false, fmt.Errorf("rate limit script: unexpected reply %v", res)
	}
	return int(res[0]), time.Duration(res[1]) * time.Millisecond, res[2] == 1, nil
}
