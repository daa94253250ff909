package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Lejs5034/LegionOfBrothers-sub000/utils/ratelimit"
)

// KeyFunc picks the rate limit bucket of a request.
type KeyFunc func(c *gin.Context) string

// ByClientIP buckets requests per remote address.
func ByClientIP(c *gin.Context) string { return c.ClientIP() }

// RateLimitMiddleware 限流中间件
// 基于 redis 固定窗口计数，所有节点共享同一份计数
func RateLimitMiddleware(limiter *ratelimit.Limiter, key KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := limiter.Allow(c.Request.Context(), key(c))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "rate limiter unavailable, please try again later",
			})
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "too many requests, please try again later",
			})
			return
		}
		c.Next()
	}
}

// MaxConcurrencyMiddleware 最大并发控制中间件
// 限制同时处理的请求数量，防止 Goroutine 数量无限增长导致 OOM
func MaxConcurrencyMiddleware(maxConcurrent int) gin.HandlerFunc {
	if maxConcurrent <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	// 使用带缓冲的 channel 作为信号量
	sem := make(chan struct{}, maxConcurrent)

	return func(c *gin.Context) {
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
			c.Next()
		default:
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "server is busy, too many concurrent requests",
			})
		}
	}
}
