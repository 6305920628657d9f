package handler

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"apache-log-sentinel/internal/config"
	"apache-log-sentinel/internal/model"
	"apache-log-sentinel/internal/service"
	"apache-log-sentinel/internal/store"
)

// ColumnsHandler serves the column exploration views.
type ColumnsHandler struct {
	profile *service.ProfileService
}

func NewColumnsHandler(profile *service.ProfileService) *ColumnsHandler {
	return &ColumnsHandler{profile: profile}
}

type columnsResponse struct {
	Columns   map[string]model.ColumnMetadata `json:"columns"`
	TimeRange model.DatasetTimeRange          `json:"time_range"`
}

func (h *ColumnsHandler) GetColumns(c echo.Context) error {
	ctx := c.Request().Context()
	return c.JSON(http.StatusOK, columnsResponse{
		Columns:   h.profile.AnalyzeAllColumns(ctx),
		TimeRange: h.profile.TimeSpan(ctx),
	})
}

func (h *ColumnsHandler) GetColumn(c echo.Context) error {
	profile, err := h.profile.AnalyzeColumn(c.Request().Context(), c.Param("name"))
	if err != nil {
		return notFoundError(c, "column")
	}
	return c.JSON(http.StatusOK, profile)
}

type columnGroupRequest struct {
	Columns []string `json:"columns"`
	Start   string   `json:"start"`
	End     string   `json:"end"`
	Limit   int      `json:"limit"`
}

// AnalyzeColumnGroup serves joint value-tuple frequencies for a small set of
// columns, optionally bounded to a time window.
func (h *ColumnsHandler) AnalyzeColumnGroup(c echo.Context) error {
	var req columnGroupRequest
	if err := c.Bind(&req); err != nil {
		return badRequestError(c, "Invalid request body")
	}

	if len(req.Columns) == 0 {
		return badRequestError(c, "columns is required")
	}
	if len(req.Columns) > config.ProfileGroupMaxColumns {
		return badRequestError(c, fmt.Sprintf("at most %d columns per group", config.ProfileGroupMaxColumns))
	}
	for _, column := range req.Columns {
		if !store.ValidColumn(column) {
			return badRequestError(c, fmt.Sprintf("unknown column %q", column))
		}
	}

	var window *store.TimeRange
	if req.Start != "" || req.End != "" {
		if req.Start != "" {
			if _, err := store.ParseTimeBound(req.Start); err != nil {
				return badRequestError(c, err.Error())
			}
		}
		if req.End != "" {
			if _, err := store.ParseTimeBound(req.End); err != nil {
				return badRequestError(c, err.Error())
			}
		}
		window = &store.TimeRange{Start: req.Start, End: req.End}
	}

	result, err := h.profile.AnalyzeColumnGroup(c.Request().Context(), req.Columns, window, req.Limit)
	if err != nil {
		return internalError(c, "analyze column group", err)
	}
	return c.JSON(http.StatusOK, result)
}
