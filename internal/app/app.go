// Package app wires config, storage and channels into the dispatchers.
package app

import (
	"strings"

	"github.com/jmehdipour/notify-gateway/internal/config"
	"github.com/jmehdipour/notify-gateway/internal/dispatcher"
	"github.com/jmehdipour/notify-gateway/internal/repository"
	"github.com/jmehdipour/notify-gateway/internal/worker"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// NewMailer builds the email channel from the enabled providers. A mailer
// without providers is valid; every send reports the channel unavailable.
func NewMailer(cfg config.EmailConfig, log *zap.Logger) *dispatcher.Dispatcher {
	var provs []dispatcher.Provider
	for _, pc := range cfg.Providers {
		if !pc.Enabled || strings.TrimSpace(pc.BaseURL) == "" {
			continue
		}
		if strings.TrimSpace(pc.APIKey) == "" {
			log.Warn("email provider has no api key, it will be skipped", zap.String("provider", pc.Name))
		}
		p := dispatcher.NewHTTPProvider(pc)
		log.Debug("email provider enabled", zap.String("provider", p.Name()))
		provs = append(provs, p)
	}
	if len(provs) == 0 {
		log.Warn("no email providers enabled, email dispatch will leave notifications pending")
	}
	return dispatcher.NewDispatcher(provs, cfg.From)
}

// NewEmailQueue builds the outbox processor on MySQL.
func NewEmailQueue(cfg config.Config, dbx *sqlx.DB, log *zap.Logger) *worker.EmailQueue {
	d := cfg.Dispatcher
	q := worker.NewEmailQueue(
		repository.NewNotificationsRepository(dbx),
		NewMailer(cfg.Email, log),
		dispatcher.NewAttachmentFetcher(d.AttachmentTimeout, d.AttachmentMaxSize),
		log.Named("email"),
	)
	if d.BatchSize > 0 {
		q.BatchSize = d.BatchSize
	}
	if d.MaxAttempts > 0 {
		q.MaxAttempts = d.MaxAttempts
	}
	if d.SendDelay >= 0 {
		q.SendDelay = d.SendDelay
	}
	if d.SendTimeout > 0 {
		q.SendTimeout = d.SendTimeout
	}
	if d.ClaimLease > 0 {
		q.ClaimLease = d.ClaimLease
	}
	if q.SendTimeout+q.SendDelay >= q.ClaimLease/2 {
		log.Warn("claim lease leaves little room for attachments, raise dispatcher.claim_lease",
			zap.Duration("claim_lease", q.ClaimLease),
			zap.Duration("send_timeout", q.SendTimeout),
			zap.Duration("send_delay", q.SendDelay))
	}
	return q
}

// NewWebhookRunner builds the scheduled webhook dispatcher on MySQL.
func NewWebhookRunner(cfg config.Config, dbx *sqlx.DB, log *zap.Logger) *worker.WebhookRunner {
	return worker.NewWebhookRunner(
		repository.NewChannelConfigsRepository(dbx),
		repository.NewWebhookLogsRepository(dbx),
		dispatcher.NewWebhookClient(cfg.Webhooks.Timeout, cfg.Webhooks.MaxResponseBytes),
		cfg.Scheduler.Location(),
		log.Named("webhooks"),
	)
}
