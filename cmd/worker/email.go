package worker

import (
	"context"

	"github.com/jmehdipour/notify-gateway/internal/app"
	"github.com/jmehdipour/notify-gateway/internal/worker"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var emailCmd = &cobra.Command{
	Use:   "email",
	Short: "Drain the email outbox every scheduler.email_interval",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd, "email-worker")
		if err != nil {
			return err
		}
		defer e.close()

		q := app.NewEmailQueue(e.cfg, e.db, e.log)

		ctx, stop := signalContext()
		defer stop()

		e.log.Info("email worker started",
			zap.Duration("interval", e.cfg.Scheduler.EmailInterval),
			zap.Int("batch_size", q.BatchSize),
			zap.Int("max_attempts", q.MaxAttempts),
			zap.Duration("send_delay", q.SendDelay))

		worker.RunEvery(ctx, e.cfg.Scheduler.EmailInterval, func(ctx context.Context) {
			if _, err := q.ProcessQueue(ctx); err != nil {
				e.log.Error("email tick failed", zap.Error(err))
			}
		})

		e.log.Info("email worker stopped")
		return nil
	},
}
