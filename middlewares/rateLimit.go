package middlewares

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/payroll_bridge/config"
	"github.com/mmdatafocus/payroll_bridge/utils"
	"github.com/redis/go-redis/v9"
)

// rateLimitKey buckets authenticated callers by tenant and anonymous ones by client IP.
func rateLimitKey(c *gin.Context) string {
	if tenantId, ok := utils.GetTenantIdFromContext(c.Request.Context()); ok && tenantId != "" {
		return "RateLimit:tenant:" + tenantId
	}
	return "RateLimit:ip:" + c.ClientIP()
}

// RateLimit is a fixed-window counter in the shared Redis. It fails open: without Redis, or
// when Redis errors, requests pass.
func RateLimit(settings config.RateLimitSettings) gin.HandlerFunc {
	limit := strconv.FormatInt(settings.MaxRequests, 10)
	return func(c *gin.Context) {
		rdb := config.GetRedisDB()
		if !settings.Enabled || rdb == nil {
			c.Next()
			return
		}
		key := rateLimitKey(c)
		var incr *redis.IntCmd
		_, err := rdb.TxPipelined(c.Request.Context(), func(p redis.Pipeliner) error {
			incr = p.Incr(c.Request.Context(), key)
			p.ExpireNX(c.Request.Context(), key, settings.Window)
			return nil
		})
		if err != nil {
			c.Next()
			return
		}
		count := incr.Val()
		remaining := settings.MaxRequests - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", limit)
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		if count > settings.MaxRequests {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": fmt.Sprintf("rate limit exceeded; retry in %d seconds", int(settings.Window.Seconds())),
			})
			return
		}
		c.Next()
	}
}
