package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	EndpointLogin     = "login"
	EndpointVerify2FA = "verify-2fa"
	EndpointSetup     = "setup"
)

// allowScript runs the whole check-and-increment on the server. A missing
// key opens a new window; a full window reports its remaining TTL in ms.
var allowScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if not current then
  redis.call("SET", KEYS[1], 1, "PX", ARGV[1])
  return {1, 0}
end
current = tonumber(current)
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
if current >= tonumber(ARGV[2]) then
  return {current, ttl}
end
redis.call("INCR", KEYS[1])
return {current + 1, 0}
`)

type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter is a fixed window counter keyed by client address and endpoint.
type Limiter struct {
	client      redis.Scripter
	window      time.Duration
	maxAttempts int
}

func NewLimiter(client redis.Scripter, window time.Duration, maxAttempts int) *Limiter {
	return &Limiter{
		client:      client,
		window:      window,
		maxAttempts: maxAttempts,
	}
}

func Key(clientIP, endpoint string) string {
	return fmt.Sprintf("rate:%s:%s", clientIP, endpoint)
}

func (l *Limiter) Allow(ctx context.Context, clientIP, endpoint string) (Decision, error) {
	res, err := allowScript.Run(ctx, l.client,
		[]string{Key(clientIP, endpoint)},
		l.window.Milliseconds(),
		l.maxAttempts,
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit %s: %w", endpoint, err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("rate limit %s: unexpected reply %v", endpoint, res)
	}

	count, ttlMillis := int(res[0]), res[1]
	if ttlMillis > 0 {
		return Decision{
			Allowed:    false,
			RetryAfter: roundUpSeconds(time.Duration(ttlMillis) * time.Millisecond),
		}, nil
	}

	remaining := l.maxAttempts - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: true, Remaining: remaining}, nil
}

func roundUpSeconds(d time.Duration) time.Duration {
	if d < time.Second {
		return time.Second
	}
	rounded := d.Truncate(time.Second)
	if rounded < d {
		rounded += time.Second
	}
	return rounded
}
