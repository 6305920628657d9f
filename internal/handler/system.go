package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"apache-log-sentinel/internal/service"
)

// SystemHandler serves live host resource readings.
type SystemHandler struct {
	stats *service.SystemStatsService
}

func NewSystemHandler(stats *service.SystemStatsService) *SystemHandler {
	return &SystemHandler{stats: stats}
}

func (h *SystemHandler) GetSystem(c echo.Context) error {
	return c.JSON(http.StatusOK, h.stats.Snapshot())
}
