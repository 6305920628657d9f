package middleware

import (
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"apache-log-sentinel/pkg/cache"
)

const (
	maxTrackedVisitors  = 10000
	visitorIdleEviction = 10 * time.Minute
)

func rateLimitDisabled() bool {
	return os.Getenv("RATE_LIMIT_DISABLED") == "true"
}

// APIRateLimitConfig defines the configuration for API rate limiting
type APIRateLimitConfig struct {
	// Requests per window
	Limit int64
	// Time window
	Window time.Duration
	// Key generator function
	KeyGenerator func(c echo.Context) string
	// Skip function (optional)
	Skipper func(c echo.Context) bool
}

// DefaultAPIRateLimitConfig returns default rate limit config
func DefaultAPIRateLimitConfig() APIRateLimitConfig {
	return APIRateLimitConfig{
		Limit:  100,
		Window: time.Minute,
		KeyGenerator: func(c echo.Context) string {
			// Default: rate limit by IP
			return c.RealIP()
		},
		Skipper: func(c echo.Context) bool {
			if rateLimitDisabled() {
				return true
			}
			path := c.Path()
			return path == "/health" || path == "/metrics"
		},
	}
}

// visitor tracks one key in the in-process fallback limiter.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// memoryLimiter is the fallback when Redis is absent or unreachable. Token
// bucket per key, sized to admit the configured requests per window.
type memoryLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
}

func newMemoryLimiter(limit int64, window time.Duration) *memoryLimiter {
	return &memoryLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(float64(limit) / window.Seconds()),
		burst:    int(limit),
	}
}

func (m *memoryLimiter) allow(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if len(m.visitors) > maxTrackedVisitors {
		for k, v := range m.visitors {
			if now.Sub(v.lastSeen) > visitorIdleEviction {
				delete(m.visitors, k)
			}
		}
	}

	v := m.visitors[key]
	if v == nil {
		v = &visitor{limiter: rate.NewLimiter(m.limit, m.burst)}
		m.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.Allow()
}

// APIRateLimit returns a rate limiting middleware. With Redis available the
// window is shared across instances; otherwise a per-process limiter takes
// over.
func APIRateLimit(redisCache *cache.RedisClient, config APIRateLimitConfig) echo.MiddlewareFunc {
	fallback := newMemoryLimiter(config.Limit, config.Window)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// Skip if skipper returns true
			if config.Skipper != nil && config.Skipper(c) {
				return next(c)
			}

			// Generate key
			key := config.KeyGenerator(c)
			if key == "" {
				return next(c)
			}

			if redisCache == nil || !redisCache.IsReady() {
				if !fallback.allow(key) {
					c.Response().Header().Set("Retry-After", strconv.FormatInt(int64(config.Window.Seconds()), 10))
					return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
						"error":       "Rate limit exceeded",
						"retry_after": int64(config.Window.Seconds()),
					})
				}
				return next(c)
			}

			// Check rate limit
			result, err := redisCache.CheckAPIRateLimit(c.Request().Context(), key, config.Limit, config.Window)
			if err != nil {
				// On error, allow the request
				return next(c)
			}

			// Set rate limit headers
			c.Response().Header().Set("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
			c.Response().Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			// If not allowed, return 429 Too Many Requests
			if !result.Allowed {
				c.Response().Header().Set("Retry-After", strconv.FormatInt(int64(result.RetryAfter.Seconds()), 10))
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"error":       "Rate limit exceeded",
					"retry_after": int64(result.RetryAfter.Seconds()),
				})
			}

			return next(c)
		}
	}
}
