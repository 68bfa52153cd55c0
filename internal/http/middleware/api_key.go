package middleware

import (
	"net/http"
	"strings"

	"github.com/jmehdipour/compliance-gateway/internal/repository"
	"github.com/jmehdipour/compliance-gateway/internal/util"
	echo "github.com/labstack/echo/v4"
)

const (
	ctxClientID = "client_id"
	ctxAPIKeyID = "api_key_id"
)

// ClientIDFromCtx extracts the tenant set by APIKeyMiddleware.
func ClientIDFromCtx(c echo.Context) (string, bool) {
	id, ok := c.Get(ctxClientID).(string)
	return id, ok && id != ""
}

// APIKeyMiddleware authenticates requests using the X-API-Key header.
// Only the hash of the key is looked up; on success client_id is stored in
// context. last_used_at is left to the ingestion endpoint.
func APIKeyMiddleware(keys repository.APIKeysRepository) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := strings.TrimSpace(c.Request().Header.Get("X-API-Key"))
			if raw == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing api key"})
			}

			k, err := keys.FindActiveByHash(c.Request().Context(), util.HashAPIKey(raw))
			if err != nil {
				c.Logger().Errorf("api key lookup failed: %v", err)
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "auth error"})
			}
			if k == nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid API key"})
			}

			c.Set(ctxClientID, k.ClientID)
			c.Set(ctxAPIKeyID, k.ID)
			return next(c)
		}
	}
}
