package middleware

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindow trims the window, then records the request only if it fits.
// It returns {1, ""} when allowed and {0, oldestScore} when rejected.
var slidingWindow = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[2])
if redis.call('ZCARD', KEYS[1]) < tonumber(ARGV[3]) then
  redis.call('ZADD', KEYS[1], ARGV[1], ARGV[4])
  redis.call('PEXPIRE', KEYS[1], ARGV[5])
  return {1, ''}
end
local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
return {0, oldest[2] or ''}
`)

// RateLimiter is a per-client sliding window over Redis sorted sets. Only
// admitted requests occupy the window. Limiters with different scopes count
// independently.
type RateLimiter struct {
	client  redis.Scripter
	scope   string
	maxReqs int
	window  time.Duration
}

// NewRateLimiter creates a rate limiter that admits maxReqs per window.
func NewRateLimiter(client redis.Scripter, scope string, maxReqs int, window time.Duration) *RateLimiter {
	if window < time.Second {
		window = time.Second
	}
	return &RateLimiter{client: client, scope: scope, maxReqs: maxReqs, window: window}
}

// Middleware enforces the limit. Redis errors fail open.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)

		retry, allowed, err := rl.allow(r.Context(), "ratelimit:"+rl.scope+":"+ip, time.Now())
		if err != nil {
			slog.Warn("rate limiter: redis error, failing open", "error", err, "scope", rl.scope, "ip", ip)
			next.ServeHTTP(w, r)
			return
		}

		if !allowed {
			slog.Debug("rate limited", "scope", rl.scope, "ip", ip, "retry_after", retry)
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"too many requests"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// allow reports whether the request fits and, if not, how long until the
// oldest admitted request leaves the window.
func (rl *RateLimiter) allow(ctx context.Context, key string, now time.Time) (time.Duration, bool, error) {
	nowMs := now.UnixMilli()
	res, err := slidingWindow.Run(ctx, rl.client, []string{key},
		strconv.FormatInt(nowMs, 10),
		strconv.FormatInt(nowMs-rl.window.Milliseconds(), 10),
		rl.maxReqs,
		uuid.NewString(),
		strconv.FormatInt(rl.window.Milliseconds()+1000, 10),
	).Slice()
	if err != nil {
		return 0, false, err
	}

	if n, _ := res[0].(int64); n == 1 {
		return 0, true, nil
	}

	retry := rl.window
	if s, _ := res[1].(string); s != "" {
		if oldest, err := strconv.ParseFloat(s, 64); err == nil {
			retry = time.Duration(int64(oldest)+rl.window.Milliseconds()-nowMs) * time.Millisecond
		}
	}
	if retry < time.Second {
		retry = time.Second
	}
	return retry, false, nil
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// socket peer.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
