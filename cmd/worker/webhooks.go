package worker

import (
	"context"
	"time"

	"github.com/jmehdipour/notify-gateway/internal/app"
	"github.com/jmehdipour/notify-gateway/internal/worker"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var webhooksCmd = &cobra.Command{
	Use:   "webhooks",
	Short: "Call channel config webhooks at the top of every hour",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd, "webhook-worker")
		if err != nil {
			return err
		}
		defer e.close()

		runner := app.NewWebhookRunner(e.cfg, e.db, e.log)

		ctx, stop := signalContext()
		defer stop()

		e.log.Info("webhook worker started", zap.String("timezone", runner.Location.String()))

		worker.RunHourly(ctx, runner.Location, func(ctx context.Context, now time.Time) {
			if _, err := runner.ProcessWebhooks(ctx, now, worker.RunOptions{}); err != nil {
				e.log.Error("webhook tick failed", zap.Error(err))
			}
		})

		e.log.Info("webhook worker stopped")
		return nil
	},
}
