package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/jmehdipour/compliance-gateway/internal/service/ingest"
	"github.com/labstack/echo/v4"
)

func ingestHandler(svc Ingester) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req ingest.Request
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request", "details": bindDetails(err)})
		}
		if req.RequestID == "" {
			req.RequestID = strings.TrimSpace(c.Request().Header.Get("Idempotency-Key"))
		}

		res, err := svc.Ingest(c.Request().Context(), req)
		switch {
		case err == nil:
			return c.JSON(http.StatusOK, res)
		case errors.Is(err, ingest.ErrAuthentication):
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid API key"})
		case ingest.IsClientError(err):
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request", "details": err.Error()})
		default:
			c.Logger().Errorf("ingest failed: %v", err)
			return internalError(c, err)
		}
	}
}

func internalError(c echo.Context, err error) error {
	return c.JSON(http.StatusInternalServerError, map[string]string{
		"error":   "Internal server error",
		"details": err.Error(),
	})
}

func bindDetails(err error) string {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if msg, ok := he.Message.(string); ok {
			return msg
		}
	}
	return err.Error()
}
