package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmehdipour/notify-gateway/internal/app"
	"github.com/jmehdipour/notify-gateway/internal/db"
	httpSrv "github.com/jmehdipour/notify-gateway/internal/http"
	"github.com/jmehdipour/notify-gateway/internal/repository"
	"github.com/jmehdipour/notify-gateway/internal/service/channels"
	"github.com/jmehdipour/notify-gateway/internal/service/queue"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		mysqlDB, err := db.NewMySQLConnection(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer mysqlDB.Close()

		redisClient, err := db.NewRedisClient(cfg.Redis)
		if err != nil {
			// manual triggers run unlimited without redis
			log.Warn("redis unavailable, rate limiting disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer func() { _ = redisClient.Close() }()
		}

		deps := httpSrv.Deps{
			Queue:       queue.New(repository.NewNotificationsRepository(mysqlDB), cfg.Dispatcher.MaxAttempts),
			Email:       app.NewEmailQueue(cfg, mysqlDB, log),
			Webhooks:    app.NewWebhookRunner(cfg, mysqlDB, log),
			Channels:    channels.New(repository.NewChannelConfigsRepository(mysqlDB)),
			WebhookLogs: repository.NewWebhookLogsRepository(mysqlDB),
			Redis:       redisClient,
		}

		if cfg.ClickHouse.DSN != "" {
			chDB, err := db.NewClickHouseConnection(cfg.ClickHouse)
			if err != nil {
				log.Warn("clickhouse unavailable, reports disabled", zap.Error(err))
			} else {
				defer func() { _ = chDB.Close() }()
				deps.Reports = repository.NewCHWebhookLogsRepository(chDB)
			}
		}

		server := httpSrv.NewServer(cfg, deps, log.Named("http"))

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start(cfg.HTTP.Addr)
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			log.Info("signal received, shutting down", zap.String("signal", sig.String()))
		case err := <-errCh:
			if err != nil {
				log.Error("http server exited", zap.Error(err))
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)

		return nil
	},
}
