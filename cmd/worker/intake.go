package worker

import (
	"github.com/jmehdipour/notify-gateway/internal/kafka"
	"github.com/jmehdipour/notify-gateway/internal/repository"
	"github.com/jmehdipour/notify-gateway/internal/service/queue"
	"github.com/jmehdipour/notify-gateway/internal/worker"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var intakeCmd = &cobra.Command{
	Use:   "intake",
	Short: "Consume notification requests from Kafka into the outbox",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd, "intake")
		if err != nil {
			return err
		}
		defer e.close()

		consumer := kafka.NewConsumerFromConfig(kafka.FromAppConfig(e.cfg.Kafka))
		defer consumer.Close()

		svc := queue.New(repository.NewNotificationsRepository(e.db), e.cfg.Dispatcher.MaxAttempts)
		w := worker.NewIntake(consumer, svc, e.log)

		ctx, stop := signalContext()
		defer stop()

		e.log.Info("intake started",
			zap.Strings("brokers", e.cfg.Kafka.Brokers),
			zap.String("topic", e.cfg.Kafka.Topic),
			zap.String("group", e.cfg.Kafka.GroupID))

		return w.Run(ctx)
	},
}
