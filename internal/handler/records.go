package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"apache-log-sentinel/internal/model"
	"apache-log-sentinel/internal/service"
)

// RecordsHandler serves the parsed record set for browsing.
type RecordsHandler struct {
	analysis *service.AnalysisService
}

func NewRecordsHandler(analysis *service.AnalysisService) *RecordsHandler {
	return &RecordsHandler{analysis: analysis}
}

// GetRecords browses the current record set. Optional filters: host (exact),
// status (exact), path (substring).
func (h *RecordsHandler) GetRecords(c echo.Context) error {
	host := c.QueryParam("host")
	pathContains := c.QueryParam("path")

	statusFilter := -1
	if raw := c.QueryParam("status"); raw != "" {
		status, err := strconv.Atoi(raw)
		if err != nil {
			return badRequestError(c, "status must be an integer")
		}
		statusFilter = status
	}

	matched := filterRecords(h.analysis.Records(), host, statusFilter, pathContains)

	page, perPage := ParsePaginationParams(c)
	start := (page - 1) * perPage
	if start > len(matched) {
		start = len(matched)
	}
	end := start + perPage
	if end > len(matched) {
		end = len(matched)
	}

	return c.JSON(http.StatusOK, model.RecordListResponse{
		Data:       matched[start:end],
		Total:      len(matched),
		Page:       page,
		PerPage:    perPage,
		TotalPages: (len(matched) + perPage - 1) / perPage,
	})
}

func filterRecords(records []model.LogRecord, host string, status int, pathContains string) []model.LogRecord {
	matched := make([]model.LogRecord, 0, len(records))
	for i := range records {
		r := &records[i]
		if host != "" && r.RemoteHost != host {
			continue
		}
		if status >= 0 && r.StatusCode != status {
			continue
		}
		if pathContains != "" && !strings.Contains(r.Path, pathContains) {
			continue
		}
		matched = append(matched, *r)
	}
	return matched
}
