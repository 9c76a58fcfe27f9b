package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmehdipour/notify-gateway/internal/dispatcher"
	"github.com/jmehdipour/notify-gateway/internal/metrics"
	"github.com/jmehdipour/notify-gateway/internal/model"
	"github.com/jmehdipour/notify-gateway/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// EmailSender is the email channel (see dispatcher.Dispatcher).
type EmailSender interface {
	Send(ctx context.Context, email model.Email) error
}

// AttachmentFetcher resolves an attachment reference into its content.
type AttachmentFetcher interface {
	Fetch(ctx context.Context, ref model.AttachmentRef) (model.ResolvedAttachment, error)
}

// EmailQueue drains the notifications outbox:
// - selects pending rows oldest first, bounded by BatchSize,
// - sends them one at a time, paced by SendDelay,
// - records delivered / attempts+1 with conditional updates.
type EmailQueue struct {
	// Dependencies
	Notifications repository.NotificationsRepository
	Sender        EmailSender
	Attachments   AttachmentFetcher
	Log           *zap.Logger

	// Behavior
	BatchSize   int           // max rows per tick
	MaxAttempts int           // retry budget per row
	SendDelay   time.Duration // pause between consecutive sends
	SendTimeout time.Duration // bound on one provider submission
	ClaimLease  time.Duration // per-row work is cut short before it expires
}

// NewEmailQueue builds a queue processor with default knobs.
func NewEmailQueue(
	notifications repository.NotificationsRepository,
	sender EmailSender,
	attachments AttachmentFetcher,
	log *zap.Logger,
) *EmailQueue {
	return &EmailQueue{
		Notifications: notifications,
		Sender:        sender,
		Attachments:   attachments,
		Log:           log,
		BatchSize:     10,
		MaxAttempts:   model.MaxDeliveryAttempts,
		SendDelay:     time.Second,
		SendTimeout:   15 * time.Second,
		ClaimLease:    2 * time.Minute,
	}
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeFailed
	outcomeSkipped
	outcomeUnavailable
	outcomeAborted
)

// ProcessQueue runs one tick. Only a failure to read the outbox is returned
// as an error; per-row failures are recorded on the row and counted.
func (q *EmailQueue) ProcessQueue(ctx context.Context) (model.TickSummary, error) {
	q.defaults()

	start := time.Now()
	defer func() {
		metrics.TickDuration.WithLabelValues("email").Observe(time.Since(start).Seconds())
	}()

	rows, err := q.Notifications.ListEligible(ctx, q.MaxAttempts, q.BatchSize)
	if err != nil {
		return model.TickSummary{}, fmt.Errorf("list eligible notifications: %w", err)
	}

	limit := rate.Inf
	if q.SendDelay > 0 {
		limit = rate.Every(q.SendDelay)
	}
	pacer := rate.NewLimiter(limit, 1)

	var sum model.TickSummary
	for i, n := range rows {
		switch q.processOne(ctx, pacer, n) {
		case outcomeSent:
			sum.Processed++
			sum.Succeeded++
		case outcomeFailed:
			sum.Processed++
			sum.Failed++
		case outcomeSkipped:
			sum.Skipped++
		case outcomeUnavailable, outcomeAborted:
			sum.Skipped += len(rows) - i
			q.Log.Info("email tick stopped early",
				zap.Int("remaining", len(rows)-i), zap.Error(ctx.Err()))
			return sum, nil
		}
	}

	if len(rows) > 0 {
		q.Log.Info("email tick done",
			zap.Int("processed", sum.Processed),
			zap.Int("succeeded", sum.Succeeded),
			zap.Int("failed", sum.Failed),
			zap.Int("skipped", sum.Skipped),
			zap.Duration("took", time.Since(start)))
	}
	return sum, nil
}

func (q *EmailQueue) defaults() {
	if q.BatchSize <= 0 {
		q.BatchSize = 10
	}
	if q.MaxAttempts <= 0 {
		q.MaxAttempts = model.MaxDeliveryAttempts
	}
	if q.SendTimeout <= 0 {
		q.SendTimeout = 15 * time.Second
	}
	if q.ClaimLease <= 0 {
		q.ClaimLease = 2 * time.Minute
	}
	if q.Log == nil {
		q.Log = zap.NewNop()
	}
}

// rowBudget bounds all work on one claimed row so it finishes before the
// lease expires and another tick may claim the row again.
func (q *EmailQueue) rowBudget() time.Duration {
	margin := q.ClaimLease / 10
	if margin < 50*time.Millisecond {
		margin = q.ClaimLease / 2
	}
	return q.ClaimLease - margin
}

// attachmentBudget leaves room in the row budget for pacing and the send.
func (q *EmailQueue) attachmentBudget() time.Duration {
	b := q.rowBudget() - q.SendTimeout - q.SendDelay
	if b <= 0 {
		b = q.rowBudget() / 2
	}
	return b
}

func (q *EmailQueue) processOne(ctx context.Context, pacer *rate.Limiter, n model.Notification) outcome {
	log := q.Log.With(zap.String("notification_id", n.ID), zap.Int("attempts", n.Attempts))

	if ctx.Err() != nil {
		return outcomeAborted
	}

	// outcome writes must land even if the tick is being cancelled
	wctx := context.WithoutCancel(ctx)

	claimed, err := q.Notifications.Claim(ctx, n.ID, n.Attempts, q.ClaimLease)
	if err != nil {
		log.Error("claim notification", zap.Error(err))
		return outcomeSkipped
	}
	if !claimed {
		log.Debug("notification owned by another tick")
		metrics.NotificationsTotal.WithLabelValues("skipped").Inc()
		return outcomeSkipped
	}

	rowCtx, cancelRow := context.WithTimeout(ctx, q.rowBudget())
	defer cancelRow()

	attachCtx, cancelAttach := context.WithTimeout(rowCtx, q.attachmentBudget())
	email := model.Email{
		To:          n.Recipients,
		Subject:     n.Subject,
		HTML:        n.Body,
		Attachments: q.resolveAttachments(attachCtx, log, n.Attachments),
	}
	cancelAttach()

	if err := pacer.Wait(rowCtx); err != nil {
		q.release(wctx, log, n)
		if ctx.Err() != nil {
			return outcomeAborted
		}
		log.Warn("lease budget spent before send, leaving notification pending")
		return outcomeSkipped
	}

	sendCtx, cancel := context.WithTimeout(rowCtx, q.SendTimeout)
	err = q.Sender.Send(sendCtx, email)
	cancel()

	if err != nil && ctx.Err() != nil {
		// shutdown interrupted the send; not the message's fault
		log.Warn("send interrupted by shutdown, leaving notification pending", zap.Error(err))
		q.release(wctx, log, n)
		return outcomeAborted
	}

	if errors.Is(err, dispatcher.ErrChannelUnavailable) {
		// the channel is down, not the message; keep its retry budget
		log.Warn("email channel unavailable, leaving notification pending", zap.Error(err))
		q.release(wctx, log, n)
		return outcomeUnavailable
	}

	if err == nil {
		ok, uerr := q.Notifications.MarkDelivered(wctx, n.ID, n.Attempts)
		switch {
		case uerr != nil:
			log.Error("notification sent but not marked delivered", zap.Error(uerr))
		case !ok:
			log.Warn("notification outcome already recorded elsewhere")
		}
		metrics.NotificationsTotal.WithLabelValues("sent").Inc()
		log.Debug("notification delivered")
		return outcomeSent
	}

	ok, uerr := q.Notifications.RecordFailure(wctx, n.ID, n.Attempts, err.Error())
	switch {
	case uerr != nil:
		log.Error("record notification failure", zap.Error(uerr), zap.NamedError("send_error", err))
	case !ok:
		log.Warn("notification outcome already recorded elsewhere", zap.NamedError("send_error", err))
	case n.Attempts+1 >= q.MaxAttempts:
		metrics.NotificationsTotal.WithLabelValues("exhausted").Inc()
		log.Warn("notification exhausted retry budget", zap.Error(err))
	default:
		log.Info("notification send failed, will retry", zap.Error(err))
	}
	metrics.NotificationsTotal.WithLabelValues("failed").Inc()
	return outcomeFailed
}

func (q *EmailQueue) release(ctx context.Context, log *zap.Logger, n model.Notification) {
	if err := q.Notifications.Release(ctx, n.ID, n.Attempts); err != nil {
		log.Error("release notification lease", zap.Error(err))
	}
}

// resolveAttachments fetches what it can; an unreachable attachment is
// dropped and the email still goes out.
func (q *EmailQueue) resolveAttachments(ctx context.Context, log *zap.Logger, refs model.Attachments) []model.ResolvedAttachment {
	if len(refs) == 0 || q.Attachments == nil {
		return nil
	}
	out := make([]model.ResolvedAttachment, 0, len(refs))
	for _, ref := range refs {
		a, err := q.Attachments.Fetch(ctx, ref)
		if err != nil {
			metrics.AttachmentFailuresTotal.Inc()
			log.Warn("attachment skipped",
				zap.String("url", ref.URL), zap.String("filename", ref.Filename), zap.Error(err))
			continue
		}
		out = append(out, a)
	}
	return out
}
