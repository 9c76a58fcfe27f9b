package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/jmehdipour/notify-gateway/internal/http/middleware"
	"github.com/jmehdipour/notify-gateway/internal/worker"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type dispatchWebhooksQuery struct {
	ConfigID string `query:"config_id" validate:"omitempty,max=64"`
	Force    bool   `query:"force"`
}

func dispatchEmailHandler(p EmailProcessor, logger *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		op, _ := middleware.OperatorFromCtx(c)

		sum, err := p.ProcessQueue(c.Request().Context())
		if err != nil {
			logger.Error("manual email dispatch failed", zap.String("operator", op), zap.Error(err))
			return errorJSON(c, http.StatusInternalServerError, "dispatch failed")
		}

		logger.Info("manual email dispatch",
			zap.String("operator", op), zap.Int("processed", sum.Processed), zap.Int("failed", sum.Failed))
		return c.JSON(http.StatusOK, sum)
	}
}

func dispatchWebhooksHandler(p WebhookProcessor, now func() time.Time, logger *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var q dispatchWebhooksQuery
		if err := (&echo.DefaultBinder{}).BindQueryParams(c, &q); err != nil {
			return errorJSON(c, http.StatusBadRequest, "bad query")
		}
		if err := c.Validate(&q); err != nil {
			return errorJSON(c, http.StatusBadRequest, err.Error())
		}
		op, _ := middleware.OperatorFromCtx(c)

		sum, err := p.ProcessWebhooks(c.Request().Context(), now(), worker.RunOptions{ConfigID: q.ConfigID, Force: q.Force})
		if err != nil {
			if errors.Is(err, worker.ErrForceWithoutConfig) {
				return errorJSON(c, http.StatusBadRequest, "force requires config_id")
			}
			if errors.Is(err, worker.ErrConfigNotFound) {
				return errorJSON(c, http.StatusNotFound, "channel config not found")
			}
			logger.Error("manual webhook dispatch failed", zap.String("operator", op), zap.Error(err))
			return errorJSON(c, http.StatusInternalServerError, "dispatch failed")
		}

		logger.Info("manual webhook dispatch",
			zap.String("operator", op),
			zap.String("config_id", q.ConfigID),
			zap.Bool("force", q.Force),
			zap.Int("processed", sum.Processed),
			zap.Int("failed", sum.Failed))
		return c.JSON(http.StatusOK, sum)
	}
}
