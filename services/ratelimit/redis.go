// Package ratelimit counts requests per key in fixed Redis windows.
package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const windowScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
if current > tonumber(ARGV[2]) then
  return 0
end
return 1
`

// Limiter allows at most Limit calls per key within Window.
// A nil Limiter, or one whose Redis is unreachable, allows everything.
type Limiter struct {
	client *redis.Client
	script *redis.Script
	Limit  int
	Window time.Duration
}

func NewLimiter(client *redis.Client, limit int, window time.Duration) *Limiter {
	if client == nil {
		return nil
	}
	return &Limiter{
		client: client,
		script: redis.NewScript(windowScript),
		Limit:  limit,
		Window: window,
	}
}

func (l *Limiter) Allow(ctx context.Context, key string) bool {
	if l == nil || key == "" || l.Limit <= 0 || l.Window <= 0 {
		return true
	}
	ttl := l.Window.Milliseconds()
	if ttl <= 0 {
		ttl = 1
	}
	ctx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
	defer cancel()
	allowed, err := l.script.Run(ctx, l.client, []string{"ratelimit:" + key}, ttl, l.Limit).Int64()
	if err != nil {
		return true
	}
	return allowed == 1
}
