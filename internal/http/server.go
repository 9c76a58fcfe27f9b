package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmehdipour/notify-gateway/internal/config"
	"github.com/jmehdipour/notify-gateway/internal/http/middleware"
	"github.com/jmehdipour/notify-gateway/internal/metrics"
	"github.com/jmehdipour/notify-gateway/internal/model"
	"github.com/jmehdipour/notify-gateway/internal/repository"
	"github.com/jmehdipour/notify-gateway/internal/service/channels"
	"github.com/jmehdipour/notify-gateway/internal/worker"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NotificationQueue is the producer side of the outbox (see queue.Service).
type NotificationQueue interface {
	Enqueue(ctx context.Context, req model.NotificationRequest) (string, error)
	Status(ctx context.Context) (model.QueueStatus, error)
	Get(ctx context.Context, id string) (*model.NotificationView, error)
}

type EmailProcessor interface {
	ProcessQueue(ctx context.Context) (model.TickSummary, error)
}

type WebhookProcessor interface {
	ProcessWebhooks(ctx context.Context, now time.Time, opts worker.RunOptions) (model.TickSummary, error)
}

type ChannelConfigs interface {
	Create(ctx context.Context, req channels.Request) (model.ChannelConfig, error)
	List(ctx context.Context, limit, offset int) ([]model.ChannelConfig, error)
}

// Deps are the services behind the API. Reports may be nil when ClickHouse
// is not configured.
type Deps struct {
	Queue       NotificationQueue
	Email       EmailProcessor
	Webhooks    WebhookProcessor
	Channels    ChannelConfigs
	WebhookLogs repository.WebhookLogsRepository
	Reports     repository.CHWebhookLogsRepository
	Redis       *redis.Client
	Now         func() time.Time
}

type Server struct {
	e   *echo.Echo
	log *zap.Logger
}

// requestValidator adapts go-playground/validator to echo.Validator.
type requestValidator struct{ v *validator.Validate }

func (rv *requestValidator) Validate(i any) error { return rv.v.Struct(i) }

func NewServer(cfg config.Config, deps Deps, logger *zap.Logger) *Server {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// echo
	e := echo.New()
	e.HideBanner = true
	e.Validator = &requestValidator{v: validator.New()}
	e.Logger.SetLevel(echoLogLevel(cfg.Log.Level))
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	authMW := middleware.APIKeyMiddleware(cfg.Auth.APIKeys)
	limit := cfg.RateLimit.RPS
	if cfg.RateLimit.Burst > limit {
		limit = cfg.RateLimit.Burst
	}
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          deps.Redis,
		Limit:          limit,
		KeyPrefix:      "rl:op:",
		Window:         time.Second,
		RetryAfterHint: true,
	})

	// routes
	v1 := e.Group("/v1", authMW)
	v1.POST("/notifications", enqueueHandler(deps.Queue, logger))
	v1.GET("/notifications/status", statusHandler(deps.Queue, logger))
	v1.GET("/notifications/:id", getNotificationHandler(deps.Queue, logger))
	v1.GET("/webhooks/logs", listWebhookLogsHandler(deps.WebhookLogs, logger))
	v1.GET("/reports/webhook-logs", reportWebhookLogsHandler(deps.Reports, logger))
	v1.POST("/channel-configs", createChannelConfigHandler(deps.Channels, logger))
	v1.GET("/channel-configs", listChannelConfigsHandler(deps.Channels, logger))

	dispatch := v1.Group("/dispatch", rlMW)
	dispatch.POST("/email", dispatchEmailHandler(deps.Email, logger))
	dispatch.POST("/webhooks", dispatchWebhooksHandler(deps.Webhooks, deps.Now, logger))

	return &Server{e: e, log: logger}
}

func echoLogLevel(level string) log.Lvl {
	switch level {
	case "debug":
		return log.DEBUG
	case "warn":
		return log.WARN
	case "error":
		return log.ERROR
	default:
		return log.INFO
	}
}

// ServeHTTP exposes the router for tests and embedding.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.e.ServeHTTP(w, r) }

func (s *Server) Start(addr string) error {
	s.log.Info("http: listening", zap.String("addr", addr))
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }

func errorJSON(c echo.Context, code int, msg string) error {
	return c.JSON(code, map[string]string{"error": msg})
}
