package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/jmehdipour/notify-gateway/internal/service/channels"
	echo "github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

func createChannelConfigHandler(svc ChannelConfigs, logger *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req channels.Request
		if err := c.Bind(&req); err != nil {
			return errorJSON(c, http.StatusBadRequest, "bad request")
		}

		cfg, err := svc.Create(c.Request().Context(), req)
		if err != nil {
			if errors.Is(err, channels.ErrInvalidConfig) {
				return errorJSON(c, http.StatusBadRequest, err.Error())
			}
			logger.Error("create channel config failed", zap.Error(err))
			return errorJSON(c, http.StatusInternalServerError, "db error")
		}
		return c.JSON(http.StatusCreated, cfg)
	}
}

func listChannelConfigsHandler(svc ChannelConfigs, logger *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit := 50
		offset := 0
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}
		if v := c.QueryParam("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				offset = n
			}
		}

		cfgs, err := svc.List(c.Request().Context(), limit, offset)
		if err != nil {
			logger.Error("list channel configs failed", zap.Error(err))
			return errorJSON(c, http.StatusInternalServerError, "query failed")
		}
		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"offset":  offset,
			"count":   len(cfgs),
			"results": cfgs,
		})
	}
}
