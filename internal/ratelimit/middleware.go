// Package ratelimit throttles requests per client IP with a fixed window
// counter kept in Redis.
package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"identity-audit/pkg/logger"
	"identity-audit/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ratelimit:"

type Limiter struct {
	rdb     redis.Scripter
	scope   string
	limit   int
	window  time.Duration
	timeout time.Duration
}

// New builds a limiter allowing limit requests per window for each client IP
// within scope.
func New(rdb redis.Scripter, scope string, limit int, window, timeout time.Duration) *Limiter {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Limiter{rdb: rdb, scope: scope, limit: limit, window: window, timeout: timeout}
}

// Middleware rejects with 429 once the window is exhausted. When Redis is
// unreachable the request is let through and the failure logged.
func (l *Limiter) Middleware() gin.HandlerFunc {
	limitHeader := strconv.Itoa(l.limit)
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), l.timeout)
		res, err := utils.HitFixedWindow(ctx, l.rdb, keyPrefix+l.scope+":"+c.ClientIP(), l.limit, l.window)
		cancel()
		if err != nil {
			logger.FromGin(c).Warn("rate limiter unavailable, allowing request", "scope", l.scope, "error", err)
			c.Next()
			return
		}

		remaining := int64(l.limit) - res.Count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", limitHeader)
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if !res.Allowed {
			secs := int64(res.ResetIn / time.Second)
			if res.ResetIn%time.Second != 0 {
				secs++
			}
			c.Header("Retry-After", strconv.FormatInt(secs, 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"message": "Too many requests from this IP, please try again later."})
			return
		}
		c.Next()
	}
}
