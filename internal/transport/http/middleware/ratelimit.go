package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"docchat/internal/logger"
	"docchat/internal/transport/http/response"
)

type RateLimit struct {
	Name     string
	Requests int
	Window   time.Duration
	Message  string
}

// RateLimiter counts requests per client IP and route in a fixed Redis window.
// When Redis is unreachable requests pass through.
func RateLimiter(rdb redis.UniversalClient, limit RateLimit) gin.HandlerFunc {
	if rdb == nil || limit.Requests <= 0 || limit.Window <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if limit.Message == "" {
		limit.Message = "Too many requests. Please try again later."
	}
	window := int64(limit.Window / time.Second)

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		key := "ratelimit:" + limit.Name + ":" + c.ClientIP() + ":" + c.FullPath()

		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			logger.Warn("rate limit check failed", "limit", limit.Name, "error", err)
			c.Next()
			return
		}
		if count == 1 {
			if err := rdb.Expire(ctx, key, limit.Window).Err(); err != nil {
				logger.Warn("rate limit expire failed", "limit", limit.Name, "error", err)
			}
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
		if count > int64(limit.Requests) {
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", strconv.FormatInt(window, 10))
			logger.Info("rate limit exceeded", "limit", limit.Name, "ip", c.ClientIP())
			response.ErrorWithData(c, http.StatusTooManyRequests, response.CodeRateLimited, limit.Message, gin.H{
				"retryAfter": window,
				"limit":      limit.Requests,
			})
			c.Abort()
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(int64(limit.Requests)-count, 10))
		c.Next()
	}
}
