package handler

import (
	"net/http"
	"testing"

	"apache-log-sentinel/internal/config"
	"apache-log-sentinel/internal/service"
)

func TestHealthEndpoint(t *testing.T) {
	fix := newAnalysisFixture(t)
	h := NewHealthHandler(config.StoreBackendMemory, fix.analysis, service.NewSystemStatsService(), nil)

	c, rec := newRequest(t, http.MethodGet, "/health", "")
	if err := h.Health(c); err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp HealthResponse
	decodeBody(t, rec, &resp)

	if resp.Status != config.StatusHealthy {
		t.Errorf("expected status %q, got %q", config.StatusHealthy, resp.Status)
	}
	if resp.Version != config.AppVersion {
		t.Errorf("expected version %q, got %q", config.AppVersion, resp.Version)
	}
	if resp.StoreBackend != config.StoreBackendMemory {
		t.Errorf("expected backend %q, got %q", config.StoreBackendMemory, resp.StoreBackend)
	}
	if resp.Records != 60 {
		t.Errorf("expected 60 records, got %d", resp.Records)
	}
	if resp.Timestamp == "" {
		t.Error("expected a timestamp")
	}
	if resp.Redis != "" {
		t.Errorf("redis status should be omitted without a client, got %q", resp.Redis)
	}
	t.Log("✓ Health reports serving state")
}
