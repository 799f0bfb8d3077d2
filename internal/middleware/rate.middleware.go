package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dispatch-service/pkg/response"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimiter is a fixed-window limiter backed by redis INCR. A client that
// exceeds limit requests per window is blocked for blockFor. Redis being
// unreachable never blocks traffic.
func RateLimiter(rdb *redis.Client, logger *zap.Logger, limit int, window, blockFor time.Duration, keyPrefix string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.Background()

			key := keyPrefix + ":" + clientKey(r)
			blockKey := key + ":blocked"

			if blocked, _ := rdb.Get(ctx, blockKey).Result(); blocked == "1" {
				ttl, _ := rdb.TTL(ctx, blockKey).Result()
				w.Header().Set("Retry-After", strconv.Itoa(int(ttl.Seconds())))
				response.Error(w, http.StatusTooManyRequests, "Too many requests, retry in "+ttl.String())
				return
			}

			count, err := rdb.Incr(ctx, key).Result()
			if err != nil {
				logger.Warn("rate limiter unavailable, letting request through",
					zap.String("key", key), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if count == 1 {
				rdb.Expire(ctx, key, window)
			}

			if count > int64(limit) {
				rdb.Set(ctx, blockKey, "1", blockFor)
				logger.Info("client rate limited",
					zap.String("key", key),
					zap.Int64("count", count),
					zap.Duration("blocked_for", blockFor))
				w.Header().Set("Retry-After", strconv.Itoa(int(blockFor.Seconds())))
				response.Error(w, http.StatusTooManyRequests, "Too many requests, blocked for "+blockFor.String())
				return
			}

			ttl, _ := rdb.TTL(ctx, key).Result()
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(limit-int(count)))
			w.Header().Set("X-RateLimit-Reset", strconv.Itoa(int(ttl.Seconds())))

			next.ServeHTTP(w, r)
		})
	}
}

// clientKey prefers the authenticated user id so mobile clients behind a
// shared NAT are not throttled together; anonymous traffic falls back to IP.
func clientKey(r *http.Request) string {
	if uid, ok := GetUserID(r.Context()); ok && uid != "" {
		return "uid:" + uid
	}
	ip := r.Header.Get("X-Forwarded-For")
	if ip == "" {
		ip = r.RemoteAddr
	}
	return "ip:" + strings.TrimSpace(strings.Split(ip, ",")[0])
}
