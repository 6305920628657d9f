package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

func requestWithIP(t *testing.T, e *echo.Echo, handler echo.HandlerFunc, path, ip string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = ip + ":12345"
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath(path)
	if err := handler(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return rec
}

func TestMemoryFallbackRateLimit(t *testing.T) {
	e := echo.New()
	cfg := APIRateLimitConfig{
		Limit:  2,
		Window: time.Minute,
		KeyGenerator: func(c echo.Context) string {
			return c.RealIP()
		},
	}
	handler := APIRateLimit(nil, cfg)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	for i := 0; i < 2; i++ {
		if rec := requestWithIP(t, e, handler, "/api/anomalies", "203.0.113.5"); rec.Code != http.StatusOK {
			t.Fatalf("request %d should pass, got %d", i+1, rec.Code)
		}
	}

	rec := requestWithIP(t, e, handler, "/api/anomalies", "203.0.113.5")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 over the limit, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected a Retry-After header on rejection")
	}
	if !strings.Contains(rec.Body.String(), "Rate limit exceeded") {
		t.Errorf("expected rejection body, got %s", rec.Body.String())
	}

	// A different source keeps its own budget.
	if rec := requestWithIP(t, e, handler, "/api/anomalies", "203.0.113.6"); rec.Code != http.StatusOK {
		t.Errorf("expected an unrelated IP admitted, got %d", rec.Code)
	}
	t.Log("✓ In-process limiter keyed per IP")
}

func TestRateLimitSkipper(t *testing.T) {
	e := echo.New()
	cfg := DefaultAPIRateLimitConfig()
	cfg.Limit = 1
	handler := APIRateLimit(nil, cfg)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	for i := 0; i < 5; i++ {
		if rec := requestWithIP(t, e, handler, "/health", "203.0.113.9"); rec.Code != http.StatusOK {
			t.Fatalf("health probe %d should never be limited, got %d", i+1, rec.Code)
		}
	}
	for i := 0; i < 5; i++ {
		if rec := requestWithIP(t, e, handler, "/metrics", "203.0.113.9"); rec.Code != http.StatusOK {
			t.Fatalf("metrics scrape %d should never be limited, got %d", i+1, rec.Code)
		}
	}
	t.Log("✓ Probes exempt from limiting")
}

func TestRateLimitDisabledByEnv(t *testing.T) {
	t.Setenv("RATE_LIMIT_DISABLED", "true")

	e := echo.New()
	cfg := DefaultAPIRateLimitConfig()
	cfg.Limit = 1
	handler := APIRateLimit(nil, cfg)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	for i := 0; i < 5; i++ {
		if rec := requestWithIP(t, e, handler, "/api/records", "203.0.113.9"); rec.Code != http.StatusOK {
			t.Fatalf("request %d should pass with limiting disabled, got %d", i+1, rec.Code)
		}
	}
	t.Log("✓ Environment switch bypasses limiting")
}

func TestMemoryLimiterEviction(t *testing.T) {
	limiter := newMemoryLimiter(1, time.Minute)

	limiter.allow("stale-key")
	limiter.mu.Lock()
	limiter.visitors["stale-key"].lastSeen = time.Now().Add(-2 * visitorIdleEviction)
	shared := rate.NewLimiter(rate.Inf, 1)
	for i := 0; i < maxTrackedVisitors+1; i++ {
		limiter.visitors[fmt.Sprintf("visitor-%d", i)] = &visitor{
			limiter:  shared,
			lastSeen: time.Now(),
		}
	}
	limiter.mu.Unlock()

	limiter.allow("fresh-key")

	limiter.mu.Lock()
	_, staleKept := limiter.visitors["stale-key"]
	limiter.mu.Unlock()
	if staleKept {
		t.Error("expected the idle visitor evicted once the map overflows")
	}
	t.Log("✓ Idle visitors evicted under pressure")
}
