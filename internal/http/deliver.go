package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// deliverHandler runs one delivery batch for an external scheduler.
func deliverHandler(runner DeliveryRunner) echo.HandlerFunc {
	return func(c echo.Context) error {
		res, err := runner.RunOnce(c.Request().Context())
		if err != nil {
			c.Logger().Errorf("delivery run failed: %v", err)
			return internalError(c, err)
		}
		return c.JSON(http.StatusOK, res)
	}
}
