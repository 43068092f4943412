package middlewares

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sbilibin2017/user-service/internal/logger"
)

const rateLimitWindow = time.Minute

// Counter is the subset of the redis client used by RateLimitMiddleware.
type Counter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RateLimitMiddleware allows at most limit requests per client address in
// each fixed one minute window. When redis fails the request is let through.
func RateLimitMiddleware(rdb Counter, limit int) func(http.Handler) http.Handler {
	return rateLimit(rdb, limit, time.Now)
}

func rateLimit(rdb Counter, limit int, now func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t := now()
			window := t.Truncate(rateLimitWindow)
			key := fmt.Sprintf("ratelimit:%s:%d", clientAddr(r), window.Unix())

			count, err := rdb.Incr(r.Context(), key).Result()
			if err != nil {
				logger.Log.Warnw("rate limiter unavailable", "key", key, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if count == 1 {
				if err := rdb.Expire(r.Context(), key, rateLimitWindow).Err(); err != nil {
					logger.Log.Warnw("failed to set rate limit expiry", "key", key, "error", err)
				}
			}

			if count > int64(limit) {
				retry := window.Add(rateLimitWindow).Sub(t)
				w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())+1))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"detail":"Too many requests"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
