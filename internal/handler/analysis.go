package handler

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/singleflight"

	"apache-log-sentinel/internal/config"
	"apache-log-sentinel/internal/model"
	"apache-log-sentinel/internal/service"
	"apache-log-sentinel/pkg/cache"
)

// AnalysisHandler serves detection results and drives on-demand passes.
type AnalysisHandler struct {
	analysis   *service.AnalysisService
	anomaly    *service.AnomalyService
	geoip      *service.GeoIPService
	redisCache *cache.RedisClient
	logFiles   []string

	// summaryGroup collapses concurrent recomputations on a cache miss into
	// one detection pass.
	summaryGroup singleflight.Group
	cacheWarn    sync.Once
}

func NewAnalysisHandler(analysis *service.AnalysisService, anomaly *service.AnomalyService, geoip *service.GeoIPService, redisCache *cache.RedisClient, logFiles []string) *AnalysisHandler {
	return &AnalysisHandler{
		analysis:   analysis,
		anomaly:    anomaly,
		geoip:      geoip,
		redisCache: redisCache,
		logFiles:   logFiles,
	}
}

// GetAbusePatterns returns the last run's findings grouped by rule.
func (h *AnalysisHandler) GetAbusePatterns(c echo.Context) error {
	return c.JSON(http.StatusOK, h.analysis.AbuseReport())
}

// GetTopThreats returns the strongest findings across all rules, strongest
// first.
func (h *AnalysisHandler) GetTopThreats(c echo.Context) error {
	limit := parseLimit(c, config.TopThreatsDefaultLimit, config.MaxPageSize)
	return c.JSON(http.StatusOK, h.analysis.TopThreats(limit))
}

// GetAnomalies runs the store-driven rules, optionally restricted to a time
// window, and returns the alerts together with any degraded rules.
func (h *AnalysisHandler) GetAnomalies(c echo.Context) error {
	window, err := parseTimeWindow(c)
	if err != nil {
		return badRequestError(c, err.Error())
	}

	report := h.anomaly.DetectAll(c.Request().Context(), window)
	if h.geoip != nil {
		h.geoip.AnnotateAlerts(report.Alerts)
	}
	return c.JSON(http.StatusOK, report)
}

// GetSecuritySummary serves the condensed dashboard view, cached in Redis for
// a short TTL. Without Redis every request computes the summary directly.
func (h *AnalysisHandler) GetSecuritySummary(c echo.Context) error {
	ctx := c.Request().Context()

	if h.redisCache != nil {
		cached, hit, err := h.redisCache.Get(ctx, config.SummaryCacheKey)
		if err != nil {
			h.warnCacheDegraded(err)
		} else if hit {
			var summary model.SecuritySummary
			if err := json.Unmarshal([]byte(cached), &summary); err == nil {
				return c.JSON(http.StatusOK, summary)
			}
		}
	}

	value, _, _ := h.summaryGroup.Do(config.SummaryCacheKey, func() (interface{}, error) {
		summary := h.anomaly.SecuritySummary(ctx, nil)
		if h.geoip != nil {
			h.geoip.AnnotateAlerts(summary.TopAlerts)
		}

		if h.redisCache != nil {
			if payload, err := json.Marshal(summary); err == nil {
				if err := h.redisCache.Set(ctx, config.SummaryCacheKey, string(payload), config.SummaryCacheTTL); err != nil {
					h.warnCacheDegraded(err)
				}
			}
		}
		return summary, nil
	})

	return c.JSON(http.StatusOK, value.(*model.SecuritySummary))
}

// GetRuns returns the recorded analysis passes, most recent first.
func (h *AnalysisHandler) GetRuns(c echo.Context) error {
	return c.JSON(http.StatusOK, h.analysis.Runs())
}

type reloadResponse struct {
	Message string             `json:"message"`
	Run     *model.AnalysisRun `json:"run"`
}

// Reload re-ingests the configured file set, swaps the store, and invalidates
// the cached summary.
func (h *AnalysisHandler) Reload(c echo.Context) error {
	if len(h.logFiles) == 0 {
		return badRequestError(c, "no log files configured")
	}

	ctx := c.Request().Context()
	run, err := h.analysis.Run(ctx, h.logFiles, model.RunTriggerAPI)
	if err != nil {
		return internalError(c, "reload analysis", err)
	}

	if h.redisCache != nil {
		if err := h.redisCache.Delete(ctx, config.SummaryCacheKey); err != nil {
			h.warnCacheDegraded(err)
		}
	}

	return c.JSON(http.StatusOK, reloadResponse{Message: "Reload completed", Run: run})
}

func (h *AnalysisHandler) warnCacheDegraded(err error) {
	h.cacheWarn.Do(func() {
		log.Printf("[Summary] Cache unavailable, serving uncached summaries: %v", err)
	})
}
