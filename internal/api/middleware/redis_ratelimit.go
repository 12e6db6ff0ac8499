package middleware

import (
	"fmt"
	"loan-simulator/internal/config"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiterMiddleware is a fixed-window limiter shared by every
// replica through Redis. When Redis errors the request is let through.
type RedisRateLimiterMiddleware struct {
	redisClient redis.Cmdable
	cfg         config.RateLimitConfig
	logger      *slog.Logger
	window      time.Duration
}

func NewRedisRateLimiterMiddleware(cfg config.RateLimitConfig, redisClient redis.Cmdable, logger *slog.Logger) *RedisRateLimiterMiddleware {
	logger = logger.With("component", "RedisRateLimiter")

	if !cfg.Enabled {
		logger.Info("Rate limiting is disabled via configuration.")
	} else if redisClient == nil {
		logger.Warn("Rate limiting enabled but no Redis client provided; disabling.")
		cfg.Enabled = false
	} else {
		logger.Info("Rate limiter middleware configured", "rps", cfg.RPS, "window", time.Second)
	}

	return &RedisRateLimiterMiddleware{
		redisClient: redisClient,
		cfg:         cfg,
		logger:      logger,
		window:      time.Second,
	}
}

func (rl *RedisRateLimiterMiddleware) IsEnabled() bool {
	return rl.cfg.Enabled && rl.redisClient != nil
}

// limit is the number of requests allowed per window, burst included.
func (rl *RedisRateLimiterMiddleware) limit() int64 {
	n := int64(rl.cfg.RPS*rl.window.Seconds()) + int64(rl.cfg.Burst)
	if n < 1 {
		n = 1
	}
	return n
}

func (rl *RedisRateLimiterMiddleware) Middleware(next http.Handler) http.Handler {
	if !rl.IsEnabled() {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if ip == "" {
			rl.logger.Error("Blocking request due to unknown client IP for rate limiting", "remoteAddr", r.RemoteAddr)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		ctx := r.Context()
		key := fmt.Sprintf("loan-simulator:ratelimit:%s", ip)

		pipe := rl.redisClient.TxPipeline()
		incrCmd := pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, rl.window)
		if _, err := pipe.Exec(ctx); err != nil {
			rl.logger.Error("Redis pipeline failed during rate limiting check", "error", err, "ip", ip)
			next.ServeHTTP(w, r)
			return
		}

		count := incrCmd.Val()
		if count > rl.limit() {
			rl.logger.Warn("Rate limit exceeded", "ip", ip, "count", count, "limit", rl.limit())
			writeRateLimited(w, fmt.Sprintf("Rate limit exceeded. Limit is %d requests per %v.", rl.limit(), rl.window), rl.window)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func formatSeconds(d time.Duration) string {
	s := int(d.Seconds())
	if s < 1 {
		s = 1
	}
	return strconv.Itoa(s)
}
