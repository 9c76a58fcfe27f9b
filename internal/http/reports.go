package http

import (
	"net/http"
	"time"

	"github.com/jmehdipour/notify-gateway/internal/repository"
	echo "github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type webhookLogsQuery struct {
	ConfigID string `query:"config_id" validate:"omitempty,max=64"`
	Limit    int    `query:"limit"     validate:"omitempty,min=1,max=1000"`
	Offset   int    `query:"offset"    validate:"omitempty,min=0"`
	Success  string `query:"success"   validate:"omitempty,oneof=true false"`
	Since    string `query:"since"     validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

func bindLogsQuery(c echo.Context) (webhookLogsQuery, error) {
	q := webhookLogsQuery{Limit: 50}
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &q); err != nil {
		return q, err
	}
	if q.Limit == 0 {
		q.Limit = 50
	}
	return q, c.Validate(&q)
}

// listWebhookLogsHandler reads the most recent delivery attempts from MySQL.
func listWebhookLogsHandler(logs repository.WebhookLogsRepository, logger *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		q, err := bindLogsQuery(c)
		if err != nil {
			return errorJSON(c, http.StatusBadRequest, "bad query")
		}

		rows, err := logs.ListRecent(c.Request().Context(), q.ConfigID, q.Limit)
		if err != nil {
			logger.Error("list webhook logs failed", zap.Error(err))
			return errorJSON(c, http.StatusInternalServerError, "query failed")
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   q.Limit,
			"count":   len(rows),
			"results": rows,
		})
	}
}

// reportWebhookLogsHandler queries the ClickHouse reporting replica.
func reportWebhookLogsHandler(chRepo repository.CHWebhookLogsRepository, logger *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if chRepo == nil {
			return errorJSON(c, http.StatusServiceUnavailable, "reports not configured")
		}

		q, err := bindLogsQuery(c)
		if err != nil {
			return errorJSON(c, http.StatusBadRequest, "bad query")
		}

		f := repository.WebhookLogFilter{ConfigID: q.ConfigID, Limit: q.Limit, Offset: q.Offset}
		if q.Success != "" {
			ok := q.Success == "true"
			f.Success = &ok
		}
		if q.Since != "" {
			f.Since, _ = time.Parse(time.RFC3339, q.Since)
		}

		rows, err := chRepo.List(c.Request().Context(), f)
		if err != nil {
			logger.Error("clickhouse list failed", zap.Error(err))
			return errorJSON(c, http.StatusInternalServerError, "query failed")
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   q.Limit,
			"offset":  q.Offset,
			"count":   len(rows),
			"results": rows,
		})
	}
}
