package handler

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Common error messages for clients (no internal details)
const (
	ErrMsgInternalError = "An internal error occurred"
	ErrMsgBadRequest    = "Invalid request"
	ErrMsgNotFound      = "Resource not found"
)

// ErrorResponse is the standard error response structure
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// internalError logs the actual error and returns a generic message to the client
func internalError(c echo.Context, operation string, err error) error {
	log.Printf("[ERROR] %s: %v", operation, err)
	return c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   ErrMsgInternalError,
		Details: err.Error(),
	})
}

// badRequestError returns a bad request error with a safe message
func badRequestError(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{
		"error": message,
	})
}

// notFoundError returns a not found error
func notFoundError(c echo.Context, resource string) error {
	return c.JSON(http.StatusNotFound, map[string]string{
		"error": resource + " not found",
	})
}
