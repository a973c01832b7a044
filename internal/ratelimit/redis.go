package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// Redis is a fixed-window limiter shared by every bot instance pointing at
// the same Redis. One message per window per client.
type Redis struct {
	rdb    redis.Scripter
	window time.Duration
	prefix string
}

// NewRedis creates a Redis limiter. Empty prefix defaults to "throttle".
func NewRedis(rdb redis.Scripter, window time.Duration, prefix string) *Redis {
	if window <= 0 {
		window = 3 * time.Second
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "throttle"
	}
	return &Redis{rdb: rdb, window: window, prefix: prefix}
}

// Allow returns an error when Redis is unreachable; callers decide whether to fail open.
func (r *Redis) Allow(ctx context.Context, clientID int64) (bool, error) {
	key := r.prefix + ":" + strconv.FormatInt(clientID, 10)
	res, err := fixedWindowScript.Run(ctx, r.rdb, []string{key}, r.window.Milliseconds()).Result()
	if err != nil {
		return false, fmt.Errorf("throttle script: %w", err)
	}
	var count int64
	switch v := res.(type) {
	case int64:
		count = v
	case string:
		count, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return false, fmt.Errorf("throttle script result: %w", err)
		}
	default:
		return false, fmt.Errorf("unexpected throttle script result type %T", res)
	}
	return count <= 1, nil
}
