package repository

import (
	"context"
	"time"

	"github.com/jmehdipour/notify-gateway/internal/model"
	"github.com/jmoiron/sqlx"
)

// WebhookLogsRepository is append-only: there is no update or delete.
type WebhookLogsRepository interface {
	Append(ctx context.Context, l model.WebhookLog) error
	// ExistsSince reports whether any attempt was logged for configID at or after since.
	ExistsSince(ctx context.Context, configID string, since time.Time) (bool, error)
	ListRecent(ctx context.Context, configID string, limit int) ([]model.WebhookLog, error)
}

type WebhookLogsRepositoryImpl struct {
	db *sqlx.DB
}

func NewWebhookLogsRepository(db *sqlx.DB) *WebhookLogsRepositoryImpl {
	return &WebhookLogsRepositoryImpl{db: db}
}

var _ WebhookLogsRepository = (*WebhookLogsRepositoryImpl)(nil)

func (r *WebhookLogsRepositoryImpl) Append(ctx context.Context, l model.WebhookLog) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO webhook_logs
		    (id, config_id, webhook_url, payload, status_code, response_body, success, error_message, created_at)
		VALUES
		    (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, l.ID, l.ConfigID, l.WebhookURL, l.Payload, l.StatusCode, l.ResponseBody, l.Success, l.ErrorMessage, l.CreatedAt.UTC())
	return err
}

func (r *WebhookLogsRepositoryImpl) ExistsSince(ctx context.Context, configID string, since time.Time) (bool, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM webhook_logs WHERE config_id = ? AND created_at >= ?
	`, configID, since.UTC())
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *WebhookLogsRepositoryImpl) ListRecent(ctx context.Context, configID string, limit int) ([]model.WebhookLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	q := `
		SELECT id, config_id, webhook_url, payload, status_code, response_body, success, error_message, created_at
		  FROM webhook_logs
	`
	args := []any{}
	if configID != "" {
		q += " WHERE config_id = ?"
		args = append(args, configID)
	}
	q += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	var rows []model.WebhookLog
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
