package handler

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"apache-log-sentinel/internal/config"
	"apache-log-sentinel/internal/store"
)

// ParsePaginationParams extracts and validates pagination parameters from request
func ParsePaginationParams(c echo.Context) (page, perPage int) {
	page, _ = strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}

	perPage, _ = strconv.Atoi(c.QueryParam("per_page"))
	if perPage < 1 || perPage > config.MaxPageSize {
		perPage = config.DefaultPageSize
	}

	return page, perPage
}

// parseLimit reads an optional limit query parameter within bounds.
func parseLimit(c echo.Context, fallback, max int) int {
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit < 1 {
		return fallback
	}
	if limit > max {
		return max
	}
	return limit
}

// parseTimeWindow reads the optional start/end query parameters. Both bounds
// are validated here so stores never see a malformed window.
func parseTimeWindow(c echo.Context) (*store.TimeRange, error) {
	start := strings.TrimSpace(c.QueryParam("start"))
	end := strings.TrimSpace(c.QueryParam("end"))
	if start == "" && end == "" {
		return nil, nil
	}

	if start != "" {
		if _, err := store.ParseTimeBound(start); err != nil {
			return nil, err
		}
	}
	if end != "" {
		if _, err := store.ParseTimeBound(end); err != nil {
			return nil, err
		}
	}
	return &store.TimeRange{Start: start, End: end}, nil
}
