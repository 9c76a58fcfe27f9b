package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmehdipour/notify-gateway/internal/model"
	"github.com/jmoiron/sqlx"
)

type ChannelConfigsRepository interface {
	Insert(ctx context.Context, tx *sqlx.Tx, c model.ChannelConfig) error
	GetByID(ctx context.Context, id string) (*model.ChannelConfig, error)
	// ListDispatchable returns active configs that carry a webhook URL.
	ListDispatchable(ctx context.Context) ([]model.ChannelConfig, error)
	List(ctx context.Context, limit, offset int) ([]model.ChannelConfig, error)
}

type ChannelConfigsRepositoryImpl struct {
	db *sqlx.DB
}

func NewChannelConfigsRepository(db *sqlx.DB) *ChannelConfigsRepositoryImpl {
	return &ChannelConfigsRepositoryImpl{db: db}
}

var _ ChannelConfigsRepository = (*ChannelConfigsRepositoryImpl)(nil)

const channelConfigColumns = `id, subject, recipients, message, periodicity, weekday, send_hour, active,
		       webhook_url, report_type, period_days, attachment_url, cca_id, created_at, updated_at`

func (r *ChannelConfigsRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, c model.ChannelConfig) error {
	const q = `
		INSERT INTO channel_configs
		    (id, subject, recipients, message, periodicity, weekday, send_hour, active,
		     webhook_url, report_type, period_days, attachment_url, cca_id, created_at, updated_at)
		VALUES
		    (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	created := c.CreatedAt.UTC()
	if c.CreatedAt.IsZero() {
		created = time.Now().UTC()
	}
	return withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q,
			c.ID, c.Subject, c.Recipients, c.Message, c.Periodicity.String(), c.Weekday, c.SendHour, c.Active,
			c.WebhookURL, c.ReportType, c.PeriodDays, c.AttachmentURL, c.CCAID, created, created,
		)
		return err
	})
}

func (r *ChannelConfigsRepositoryImpl) GetByID(ctx context.Context, id string) (*model.ChannelConfig, error) {
	var c model.ChannelConfig
	err := r.db.GetContext(ctx, &c, `
		SELECT `+channelConfigColumns+`
		  FROM channel_configs
		 WHERE id = ? LIMIT 1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ChannelConfigsRepositoryImpl) ListDispatchable(ctx context.Context) ([]model.ChannelConfig, error) {
	var rows []model.ChannelConfig
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+channelConfigColumns+`
		  FROM channel_configs
		 WHERE active = 1
		   AND webhook_url IS NOT NULL
		   AND webhook_url <> ''
		 ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ChannelConfigsRepositoryImpl) List(ctx context.Context, limit, offset int) ([]model.ChannelConfig, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var rows []model.ChannelConfig
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+channelConfigColumns+`
		  FROM channel_configs
		 ORDER BY created_at DESC
		 LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
