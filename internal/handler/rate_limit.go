package handler

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/wearable-sync/internal/dto"
	"github.com/prperemyshlev/wearable-sync/internal/service"
	"go.uber.org/zap"
)

// RateLimiter records a request against a key's budget
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (service.RateLimitStatus, error)
}

// RateLimitMiddleware creates a rate limiting middleware.
// Limiter backend errors let the request through and are logged.
func RateLimitMiddleware(limiter RateLimiter, limit int, window time.Duration, keyFunc func(*gin.Context) string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, err := limiter.Allow(c.Request.Context(), keyFunc(c), limit, window)
		if err != nil {
			if errors.Is(err, service.ErrRateLimited) {
				retryAfter := int(math.Ceil(status.RetryAfter.Seconds()))
				c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
				c.Header("X-RateLimit-Remaining", "0")
				c.Header("Retry-After", strconv.Itoa(retryAfter))

				c.JSON(http.StatusTooManyRequests, dto.ErrorResponse{
					Error:   "Too Many Requests",
					Message: "Rate limit exceeded, try again in " + (time.Duration(retryAfter) * time.Second).String(),
				})
				c.Abort()
				return
			}

			logger.Warn("Rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(status.Remaining))

		c.Next()
	}
}

// IPBasedKey extracts rate limit key from client IP
func IPBasedKey(c *gin.Context) string {
	// Try to get IP from X-Forwarded-For header (for proxies)
	ip := c.GetHeader("X-Forwarded-For")
	if ip != "" {
		// X-Forwarded-For can contain multiple IPs, take the first one
		first, _, _ := strings.Cut(ip, ",")
		return "ip:" + strings.TrimSpace(first)
	}
	return "ip:" + c.ClientIP()
}

// DeviceKey limits requests per device id path parameter
func DeviceKey(c *gin.Context) string {
	return "device:" + c.Param("id")
}
