package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
)

// RequireAPIToken guards mutating endpoints with the configured token. A
// bcrypt hash takes precedence over the plain token when both are set; with
// neither set the endpoint stays closed.
func RequireAPIToken(plainToken, tokenHash string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if plainToken == "" && tokenHash == "" {
				return c.JSON(http.StatusForbidden, map[string]string{
					"error": "endpoint disabled: no API token configured",
				})
			}

			authHeader := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error": "missing API token",
				})
			}
			token := strings.TrimPrefix(authHeader, "Bearer ")

			if tokenHash != "" {
				if bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(token)) != nil {
					return c.JSON(http.StatusUnauthorized, map[string]string{
						"error": "invalid API token",
					})
				}
			} else if subtle.ConstantTimeCompare([]byte(plainToken), []byte(token)) != 1 {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error": "invalid API token",
				})
			}

			return next(c)
		}
	}
}
