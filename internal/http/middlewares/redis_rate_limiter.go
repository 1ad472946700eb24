package middlewares

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Fixed-window limiter on redis, shared across API replicas. INCR plus
// a TTL set on the first hit in the window; on redis failure the
// request is allowed through (the in-process limiter still guards the
// route when configured).
type RedisRateLimiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
	prefix string

	// incremented when a request is rejected; optional
	OnThrottled func()
}

func NewRedisRateLimiter(rdb *redis.Client, limit int, window time.Duration, prefix string) *RedisRateLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}

	return &RedisRateLimiter{
		rdb:    rdb,
		limit:  limit,
		window: window,
		prefix: prefix,
	}
}

func (rl *RedisRateLimiter) RateLimiterMiddleware(keyFn func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFn(c)

		if key == "" {
			key = clientIP(c)
		}

		redisKey := rl.prefix + ":" + key

		ctx := c.Request.Context()

		count, err := rl.rdb.Incr(ctx, redisKey).Result()

		if err != nil {
			// fail open: a broken limiter must not take logins down
			c.Next()
			return
		}

		if count == 1 {
			_ = rl.rdb.Expire(ctx, redisKey, rl.window).Err()
		}

		if count > int64(rl.limit) {
			ttl, _ := rl.rdb.TTL(ctx, redisKey).Result()

			retryAfter := int(ttl.Seconds())

			if retryAfter < 0 {
				retryAfter = int(rl.window.Seconds())
			}

			if rl.OnThrottled != nil {
				rl.OnThrottled()
			}

			c.Header("Retry-After", strconv.Itoa(retryAfter))

			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"code":    "rate_limited",
					"message": "Too many requests. Please try again shortly.",
				},
			})

			return
		}

		c.Next()
	}
}
