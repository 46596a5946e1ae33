package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jason-c-dev/harmonia-memory/internal/ratelimit"
)

// publicPaths never require an API key, even when one is configured.
var publicPaths = map[string]bool{
	"/api/v1/health":        true,
	"/api/v1/health/simple": true,
}

// APIKeyAuthMiddleware returns middleware that checks the request against
// a configured set of valid API keys via X-API-Key or
// Authorization: Bearer <key>. A no-op if keys is empty.
func APIKeyAuthMiddleware(keys []string) gin.HandlerFunc {
	valid := make(map[string]bool, len(keys))
	for _, k := range keys {
		if k != "" {
			valid[k] = true
		}
	}

	return func(c *gin.Context) {
		if len(valid) == 0 || publicPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		if key := c.GetHeader("X-API-Key"); key != "" && valid[key] {
			c.Next()
			return
		}

		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") && valid[parts[1]] {
				c.Next()
				return
			}
		}

		Unauthorized(c, "missing or invalid API key")
		c.Abort()
	}
}

// routeToToolCategory maps a request to a rate-limiter tool category so
// store/search/export can carry independent limits.
func routeToToolCategory(path, method string) string {
	switch {
	case strings.HasSuffix(path, "/memory/store") && method == http.MethodPost:
		return "store"
	case strings.HasSuffix(path, "/memory/search"):
		return "search"
	case strings.HasSuffix(path, "/memory/export"):
		return "export"
	case strings.HasSuffix(path, "/memory/list"):
		return "list"
	default:
		return "default"
	}
}

// RateLimitMiddleware rate-limits requests using limiter, advertising
// X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset
// (seconds until the governing bucket is full again) headers and a
// Retry-After on 429.
func RateLimitMiddleware(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		category := routeToToolCategory(c.Request.URL.Path, c.Request.Method)
		result := limiter.Allow(category)

		bucket := limiter.GetToolBucket(category)
		if bucket == nil || result.LimitType == "global" {
			bucket = limiter.GetGlobalBucket()
		}
		c.Header("X-RateLimit-Limit", fmt.Sprintf("%.0f", bucket.Capacity()))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%.0f", result.Remaining))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%.0f", bucket.TimeToWait(bucket.Capacity()).Seconds()))

		if !result.Allowed {
			retryAfter := int(result.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
			TooManyRequests(c, fmt.Sprintf("rate limit exceeded for %s, retry after %ds", result.LimitType, retryAfter))
			c.Abort()
			return
		}

		c.Next()
	}
}

// MaxBodySizeMiddleware rejects requests whose declared Content-Length
// exceeds maxBytes and caps actual reads at the same limit.
func MaxBodySizeMiddleware(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			PayloadTooLarge(c, fmt.Sprintf("request body too large, maximum %d bytes", maxBytes))
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// DefaultBodyLimit bounds an ordinary JSON request.
const DefaultBodyLimit = 1 * 1024 * 1024

// clampLimit keeps a page size request within sane bounds.
func clampLimit(limit int) int {
	const (
		defaultLimit = 20
		maxLimit     = 1000
	)
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
