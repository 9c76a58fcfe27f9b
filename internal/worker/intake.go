package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmehdipour/notify-gateway/internal/kafka"
	"github.com/jmehdipour/notify-gateway/internal/metrics"
	"github.com/jmehdipour/notify-gateway/internal/model"
	"github.com/jmehdipour/notify-gateway/internal/service/queue"
	"go.uber.org/zap"
)

// MessageSource is the Kafka side of the intake (see kafka.Consumer).
type MessageSource interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, m kafka.Message) error
}

// Enqueuer writes a producer request into the outbox (see queue.Service).
type Enqueuer interface {
	Enqueue(ctx context.Context, req model.NotificationRequest) (string, error)
}

// Intake moves notification requests from Kafka into the outbox.
// A message is committed only after it is stored or found to be unusable.
type Intake struct {
	Source     MessageSource
	Queue      Enqueuer
	Log        *zap.Logger
	RetryDelay time.Duration
}

func NewIntake(src MessageSource, q Enqueuer, log *zap.Logger) *Intake {
	return &Intake{Source: src, Queue: q, Log: log, RetryDelay: time.Second}
}

// Run blocks until ctx is cancelled.
func (w *Intake) Run(ctx context.Context) error {
	if w.Log == nil {
		w.Log = zap.NewNop()
	}
	for {
		m, err := w.Source.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.Log.Warn("kafka fetch", zap.Error(err))
			if !sleepCtx(ctx, 200*time.Millisecond) {
				return nil
			}
			continue
		}

		if !w.handle(ctx, m) {
			return nil
		}
		if err := w.Source.Commit(ctx, m); err != nil && ctx.Err() == nil {
			w.Log.Warn("kafka commit", zap.Error(err), zap.Int64("offset", m.Offset))
		}
	}
}

// handle returns false only when ctx ended before the message was settled.
func (w *Intake) handle(ctx context.Context, m kafka.Message) bool {
	log := w.Log.With(zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset))

	var env model.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		log.Warn("bad envelope json, skipping", zap.Error(err))
		return true
	}
	log = log.With(zap.String("envelope_id", env.ID))
	// a redelivered envelope maps onto the row it already produced
	env.Notification.SourceKey = env.ID

	for {
		id, err := w.Queue.Enqueue(ctx, env.Notification)
		if err == nil {
			metrics.NotificationsTotal.WithLabelValues("queued").Inc()
			log.Debug("notification queued", zap.String("notification_id", id))
			return true
		}
		if errors.Is(err, queue.ErrInvalidRequest) {
			log.Warn("invalid notification request, skipping", zap.Error(err))
			return true
		}

		log.Error("enqueue notification, retrying", zap.Error(err))
		if !sleepCtx(ctx, w.RetryDelay) {
			return false
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
