package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmehdipour/notify-gateway/internal/dispatcher"
	"github.com/jmehdipour/notify-gateway/internal/metrics"
	"github.com/jmehdipour/notify-gateway/internal/model"
	"github.com/jmehdipour/notify-gateway/internal/repository"
	"go.uber.org/zap"
)

var ErrConfigNotFound = errors.New("channel config not found or has no active webhook")

// ErrForceWithoutConfig rejects a forced run over every config at once.
var ErrForceWithoutConfig = errors.New("force requires a config id")

// WebhookPoster is the webhook channel (see dispatcher.WebhookClient).
type WebhookPoster interface {
	Post(ctx context.Context, url string, body []byte) (*dispatcher.WebhookResult, error)
}

// RunOptions narrows a webhook tick. Force skips the schedule match and the
// slot dedupe; it only applies together with ConfigID.
type RunOptions struct {
	ConfigID string
	Force    bool
}

// WebhookRunner pushes scheduled channel configs to their webhooks. Each
// attempt appends exactly one webhook log row; nothing is retried.
type WebhookRunner struct {
	Configs  repository.ChannelConfigsRepository
	Logs     repository.WebhookLogsRepository
	Client   WebhookPoster
	Log      *zap.Logger
	Location *time.Location
}

func NewWebhookRunner(
	configs repository.ChannelConfigsRepository,
	logs repository.WebhookLogsRepository,
	client WebhookPoster,
	loc *time.Location,
	log *zap.Logger,
) *WebhookRunner {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &WebhookRunner{Configs: configs, Logs: logs, Client: client, Location: loc, Log: log}
}

// ProcessWebhooks evaluates every dispatchable config against now.
func (r *WebhookRunner) ProcessWebhooks(ctx context.Context, now time.Time, opts RunOptions) (model.TickSummary, error) {
	start := time.Now()
	defer func() {
		metrics.TickDuration.WithLabelValues("webhook").Observe(time.Since(start).Seconds())
	}()

	if opts.Force && opts.ConfigID == "" {
		return model.TickSummary{}, ErrForceWithoutConfig
	}

	configs, err := r.selectConfigs(ctx, opts.ConfigID)
	if err != nil {
		return model.TickSummary{}, err
	}

	local := now.In(r.Location)
	slot := slotStart(local)

	var sum model.TickSummary
	for _, cfg := range configs {
		if ctx.Err() != nil {
			break
		}
		log := r.Log.With(zap.String("config_id", cfg.ID))

		if !opts.Force {
			due, err := Due(cfg, local)
			if err != nil {
				log.Warn("channel config has an invalid schedule", zap.Error(err))
				continue
			}
			if !due {
				continue
			}

			sent, err := r.Logs.ExistsSince(ctx, cfg.ID, slot)
			if err != nil {
				log.Error("check webhook slot", zap.Error(err))
				sum.Processed++
				sum.Failed++
				continue
			}
			if sent {
				log.Debug("webhook already attempted in this slot", zap.Time("slot", slot))
				sum.Skipped++
				continue
			}
		}

		sum.Processed++
		if r.deliver(ctx, log, cfg, now) {
			sum.Succeeded++
		} else {
			sum.Failed++
		}
	}

	if sum.Processed > 0 {
		r.Log.Info("webhook tick done",
			zap.Time("slot", slot),
			zap.Int("processed", sum.Processed),
			zap.Int("succeeded", sum.Succeeded),
			zap.Int("failed", sum.Failed))
	}
	return sum, nil
}

func (r *WebhookRunner) selectConfigs(ctx context.Context, id string) ([]model.ChannelConfig, error) {
	if id == "" {
		configs, err := r.Configs.ListDispatchable(ctx)
		if err != nil {
			return nil, fmt.Errorf("list channel configs: %w", err)
		}
		return configs, nil
	}

	cfg, err := r.Configs.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get channel config %s: %w", id, err)
	}
	if cfg == nil || !cfg.HasWebhook() {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, id)
	}
	return []model.ChannelConfig{*cfg}, nil
}

func (r *WebhookRunner) deliver(ctx context.Context, log *zap.Logger, cfg model.ChannelConfig, now time.Time) bool {
	payload := model.NewWebhookPayload(cfg, now)
	entry := model.WebhookLog{
		ID:         uuid.NewString(),
		ConfigID:   cfg.ID,
		WebhookURL: *cfg.WebhookURL,
		Payload:    payload,
		CreatedAt:  now.UTC(),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		entry.ErrorMessage = strPtr(fmt.Sprintf("marshal payload: %v", err))
	} else {
		res, perr := r.Client.Post(ctx, entry.WebhookURL, body)
		switch {
		case perr != nil:
			entry.ErrorMessage = strPtr(perr.Error())
		default:
			code := res.StatusCode
			resBody := res.Body
			entry.StatusCode = &code
			entry.ResponseBody = &resBody
			entry.Success = res.OK()
			if !entry.Success {
				entry.ErrorMessage = strPtr(fmt.Sprintf("webhook responded with status %d", code))
			}
		}
	}

	if err := r.Logs.Append(context.WithoutCancel(ctx), entry); err != nil {
		log.Error("append webhook log", zap.Error(err), zap.Bool("success", entry.Success))
		entry.Success = false
	}

	if entry.Success {
		metrics.WebhookDeliveriesTotal.WithLabelValues("success").Inc()
		log.Info("webhook delivered", zap.Intp("status", entry.StatusCode))
	} else {
		metrics.WebhookDeliveriesTotal.WithLabelValues("failure").Inc()
		log.Warn("webhook delivery failed", zap.Intp("status", entry.StatusCode), zap.Stringp("error", entry.ErrorMessage))
	}
	return entry.Success
}

func strPtr(s string) *string { return &s }
