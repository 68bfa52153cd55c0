package http

import (
	"net/http"
	"strings"

	"github.com/jmehdipour/compliance-gateway/internal/http/middleware"
	"github.com/jmehdipour/compliance-gateway/internal/model"
	"github.com/jmehdipour/compliance-gateway/internal/repository"
	echo "github.com/labstack/echo/v4"
)

type listQuery struct {
	Limit  int    `query:"limit"  json:"limit"  validate:"min=0,max=1000"`
	Offset int    `query:"offset" json:"offset" validate:"min=0"`
	Status string `query:"status" json:"status"`
}

func bindList(c echo.Context) (listQuery, error) {
	q := listQuery{Limit: 50}
	if err := c.Bind(&q); err != nil {
		return q, err
	}
	if err := c.Validate(&q); err != nil {
		return q, err
	}
	if q.Limit == 0 {
		q.Limit = 50
	}
	q.Status = strings.TrimSpace(q.Status)
	return q, nil
}

func badRequest(c echo.Context, err error) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request", "details": bindDetails(err)})
}

func page(c echo.Context, q listQuery, count int, results any) error {
	return c.JSON(http.StatusOK, map[string]any{
		"limit":   q.Limit,
		"offset":  q.Offset,
		"count":   count,
		"results": results,
	})
}

func listIngestionsHandler(logs repository.IngestionLogsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		clientID, ok := middleware.ClientIDFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}
		q, err := bindList(c)
		if err != nil {
			return badRequest(c, err)
		}

		rows, err := logs.ListByClient(c.Request().Context(), clientID, q.Limit, q.Offset)
		if err != nil {
			c.Logger().Errorf("list ingestion logs failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}
		return page(c, q, len(rows), rows)
	}
}

var attemptStatuses = map[string]bool{"delivered": true, "retry": true, "failed": true}

func listDeliveriesHandler(chRepo repository.CHDeliveryAttemptsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		clientID, ok := middleware.ClientIDFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}
		q, err := bindList(c)
		if err != nil {
			return badRequest(c, err)
		}
		if q.Status != "" && !attemptStatuses[q.Status] {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid status"})
		}

		rows, err := chRepo.ListByClient(c.Request().Context(), clientID, q.Status, q.Limit, q.Offset)
		if err != nil {
			c.Logger().Errorf("clickhouse list failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}
		return page(c, q, len(rows), rows)
	}
}

// listNotificationsHandler is the queue view; status=failed lists dead letters.
func listNotificationsHandler(notifications repository.NotificationsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		clientID, ok := middleware.ClientIDFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}
		q, err := bindList(c)
		if err != nil {
			return badRequest(c, err)
		}

		st := model.NotificationStatus(q.Status)
		if st != "" && (!st.Valid() || st == model.NotificationInFlight) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid status"})
		}

		rows, err := notifications.ListByClient(c.Request().Context(), clientID, st, q.Limit, q.Offset)
		if err != nil {
			c.Logger().Errorf("list notifications failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}
		return page(c, q, len(rows), rows)
	}
}
