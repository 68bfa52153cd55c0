package middleware

import (
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"
)

var corsAllowHeaders = strings.Join([]string{
	"authorization", "x-client-info", "apikey", "content-type", "x-api-key", "idempotency-key",
}, ", ")

// CORS allows every origin. Pre-flight requests are answered with an empty
// 200 before routing, so they never reach auth or rate limiting.
func CORS() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set(echo.HeaderAccessControlAllowOrigin, "*")
			h.Set(echo.HeaderAccessControlAllowHeaders, corsAllowHeaders)
			h.Set(echo.HeaderAccessControlAllowMethods, "GET, POST, OPTIONS")

			if c.Request().Method == http.MethodOptions {
				return c.NoContent(http.StatusOK)
			}
			return next(c)
		}
	}
}
