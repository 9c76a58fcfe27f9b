package repository

import (
	"context"
	"time"

	"github.com/jmehdipour/notify-gateway/internal/model"
	"github.com/jmoiron/sqlx"
)

// CHWebhookLogsRepository reads webhook delivery history from the ClickHouse replica.
type CHWebhookLogsRepository interface {
	List(ctx context.Context, f WebhookLogFilter) ([]model.WebhookLog, error)
}

type WebhookLogFilter struct {
	ConfigID string
	Success  *bool
	Since    time.Time
	Limit    int
	Offset   int
}

type chWebhookLogsRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewCHWebhookLogsRepository(ch *sqlx.DB) CHWebhookLogsRepository {
	return &chWebhookLogsRepository{ch: ch}
}

// chWebhookLog mirrors the ClickHouse column types.
type chWebhookLog struct {
	ID           string               `db:"id"`
	ConfigID     string               `db:"config_id"`
	WebhookURL   string               `db:"webhook_url"`
	Payload      model.WebhookPayload `db:"payload"`
	StatusCode   *int32               `db:"status_code"`
	ResponseBody *string              `db:"response_body"`
	Success      bool                 `db:"success"`
	ErrorMessage *string              `db:"error_message"`
	CreatedAt    time.Time            `db:"created_at"`
}

func (r *chWebhookLogsRepository) List(ctx context.Context, f WebhookLogFilter) ([]model.WebhookLog, error) {
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	q := `
		SELECT id, config_id, webhook_url, payload, status_code, response_body, success, error_message, created_at
		FROM notifygw.webhook_logs FINAL
		WHERE 1 = 1
	`
	args := []any{}

	if f.ConfigID != "" {
		q += " AND config_id = ?"
		args = append(args, f.ConfigID)
	}
	if f.Success != nil {
		q += " AND success = ?"
		args = append(args, *f.Success)
	}
	if !f.Since.IsZero() {
		q += " AND created_at >= ?"
		args = append(args, f.Since.UTC())
	}

	q += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)

	var rows []chWebhookLog
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}

	out := make([]model.WebhookLog, 0, len(rows))
	for _, row := range rows {
		l := model.WebhookLog{
			ID:           row.ID,
			ConfigID:     row.ConfigID,
			WebhookURL:   row.WebhookURL,
			Payload:      row.Payload,
			ResponseBody: row.ResponseBody,
			Success:      row.Success,
			ErrorMessage: row.ErrorMessage,
			CreatedAt:    row.CreatedAt,
		}
		if row.StatusCode != nil {
			code := int(*row.StatusCode)
			l.StatusCode = &code
		}
		out = append(out, l)
	}
	return out, nil
}
