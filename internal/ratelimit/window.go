package ratelimit

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// fixedWindowScript increments the window counter and arms its expiry on
// first touch. Returns the counter value after the increment.
const fixedWindowScript = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`

// Counter is the keyed counting store behind the limiter. Implementations
// must expire keys after the supplied TTL.
type Counter interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

type redisCounter struct {
	client *redis.Client
	script *redis.Script
}

// NewRedisCounter wraps a redis client as a window counter.
func NewRedisCounter(client *redis.Client) Counter {
	return &redisCounter{
		client: client,
		script: redis.NewScript(fixedWindowScript),
	}
}

func (c *redisCounter) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	res, err := c.script.Run(ctx, c.client, []string{key}, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, err
	}
	return res, nil
}
