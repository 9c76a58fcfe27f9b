package http

import (
	"errors"
	"net/http"

	"github.com/jmehdipour/notify-gateway/internal/http/middleware"
	"github.com/jmehdipour/notify-gateway/internal/metrics"
	"github.com/jmehdipour/notify-gateway/internal/model"
	"github.com/jmehdipour/notify-gateway/internal/service/queue"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

func enqueueHandler(q NotificationQueue, logger *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req model.NotificationRequest
		if err := c.Bind(&req); err != nil {
			return errorJSON(c, http.StatusBadRequest, "bad request")
		}
		req.SourceKey = c.Request().Header.Get("Idempotency-Key")

		id, err := q.Enqueue(c.Request().Context(), req)
		if err != nil {
			if errors.Is(err, queue.ErrInvalidRequest) {
				return errorJSON(c, http.StatusBadRequest, err.Error())
			}
			logger.Error("enqueue failed", zap.Error(err))
			return errorJSON(c, http.StatusInternalServerError, "db error")
		}

		metrics.NotificationsTotal.WithLabelValues("queued").Inc()
		op, _ := middleware.OperatorFromCtx(c)
		return c.JSON(http.StatusAccepted, map[string]any{
			"enqueued": true,
			"id":       id,
			"operator": op,
		})
	}
}

func statusHandler(q NotificationQueue, logger *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		st, err := q.Status(c.Request().Context())
		if err != nil {
			logger.Error("queue status failed", zap.Error(err))
			return errorJSON(c, http.StatusInternalServerError, "db error")
		}
		return c.JSON(http.StatusOK, st)
	}
}

func getNotificationHandler(q NotificationQueue, logger *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		n, err := q.Get(c.Request().Context(), c.Param("id"))
		if err != nil {
			logger.Error("get notification failed", zap.String("id", c.Param("id")), zap.Error(err))
			return errorJSON(c, http.StatusInternalServerError, "db error")
		}
		if n == nil {
			return errorJSON(c, http.StatusNotFound, "notification not found")
		}
		return c.JSON(http.StatusOK, n)
	}
}
