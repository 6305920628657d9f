package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"apache-log-sentinel/internal/config"
	"apache-log-sentinel/internal/service"
	"apache-log-sentinel/pkg/cache"
)

type HealthResponse struct {
	Status        string `json:"status"`
	Timestamp     string `json:"timestamp"`
	Version       string `json:"version"`
	StoreBackend  string `json:"store_backend"`
	Records       int    `json:"records"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Redis         string `json:"redis,omitempty"`
}

// HealthHandler reports liveness and the serving state of the analyzer.
type HealthHandler struct {
	backend  string
	analysis *service.AnalysisService
	stats    *service.SystemStatsService
	redis    *cache.RedisClient
}

func NewHealthHandler(backend string, analysis *service.AnalysisService, stats *service.SystemStatsService, redis *cache.RedisClient) *HealthHandler {
	return &HealthHandler{
		backend:  backend,
		analysis: analysis,
		stats:    stats,
		redis:    redis,
	}
}

func (h *HealthHandler) Health(c echo.Context) error {
	response := HealthResponse{
		Status:        config.StatusHealthy,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       config.AppVersion,
		StoreBackend:  h.backend,
		Records:       h.analysis.RecordCount(),
		UptimeSeconds: int64(h.stats.Uptime().Seconds()),
	}

	if h.redis != nil {
		if h.redis.IsReady() {
			response.Redis = config.StatusOK
		} else {
			response.Redis = config.StatusError
		}
	}

	return c.JSON(http.StatusOK, response)
}
