package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmehdipour/notify-gateway/internal/model"
	"github.com/jmehdipour/notify-gateway/internal/util"
	"github.com/jmoiron/sqlx"
)

// ErrDuplicateSourceKey means a notification with the same source key is
// already in the outbox.
var ErrDuplicateSourceKey = errors.New("notification source key already queued")

const (
	maxLastError      = 2000
	mysqlDuplicateKey = 1062
)

// NotificationsRepository persists the notifications outbox. Every state
// write is conditional on the row still holding the attempts value the
// caller observed, so two racing dispatch ticks cannot both record an outcome.
type NotificationsRepository interface {
	// Insert writes a pending notification. If tx is nil, it will open/commit
	// an internal transaction; otherwise it uses the given tx.
	// A repeated SourceKey yields ErrDuplicateSourceKey.
	Insert(ctx context.Context, tx *sqlx.Tx, n model.Notification) error
	GetByID(ctx context.Context, id string) (*model.Notification, error)
	GetBySourceKey(ctx context.Context, key string) (*model.Notification, error)
	// ListEligible returns unleased pending rows, oldest first.
	ListEligible(ctx context.Context, maxAttempts, limit int) ([]model.Notification, error)
	// Claim leases a row for one send. false means another tick owns it or
	// it is no longer pending at the observed attempts.
	Claim(ctx context.Context, id string, attempts int, lease time.Duration) (bool, error)
	// Release drops a lease without recording an outcome.
	Release(ctx context.Context, id string, attempts int) error
	MarkDelivered(ctx context.Context, id string, attempts int) (bool, error)
	RecordFailure(ctx context.Context, id string, attempts int, reason string) (bool, error)
	Status(ctx context.Context, maxAttempts int) (model.QueueStatus, error)
}

type NotificationsRepositoryImpl struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewNotificationsRepository(db *sqlx.DB) *NotificationsRepositoryImpl {
	return &NotificationsRepositoryImpl{db: db, now: func() time.Time { return time.Now().UTC() }}
}

var _ NotificationsRepository = (*NotificationsRepositoryImpl)(nil)

const notificationColumns = `id, source_key, recipients, subject, body, attachments, delivered,
		       attempts, last_error, claimed_until, created_at, updated_at`

func (r *NotificationsRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, n model.Notification) error {
	const q = `
		INSERT INTO notifications
		    (id, source_key, recipients, subject, body, attachments, delivered, attempts, created_at, updated_at)
		VALUES
		    (?,  ?,          ?,          ?,       ?,    ?,           0,         0,        ?,          ?)
	`
	now := r.now()
	err := withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q, n.ID, n.SourceKey, n.Recipients, n.Subject, n.Body, n.Attachments, now, now)
		return err
	})
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateKey && n.SourceKey != nil {
		return ErrDuplicateSourceKey
	}
	return err
}

func (r *NotificationsRepositoryImpl) GetBySourceKey(ctx context.Context, key string) (*model.Notification, error) {
	var n model.Notification
	err := r.db.GetContext(ctx, &n, `
		SELECT `+notificationColumns+`
		  FROM notifications
		 WHERE source_key = ? LIMIT 1
	`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *NotificationsRepositoryImpl) GetByID(ctx context.Context, id string) (*model.Notification, error) {
	var n model.Notification
	err := r.db.GetContext(ctx, &n, `
		SELECT `+notificationColumns+`
		  FROM notifications
		 WHERE id = ? LIMIT 1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *NotificationsRepositoryImpl) ListEligible(ctx context.Context, maxAttempts, limit int) ([]model.Notification, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows []model.Notification
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+notificationColumns+`
		  FROM notifications
		 WHERE delivered = 0
		   AND attempts < ?
		   AND (claimed_until IS NULL OR claimed_until < ?)
		 ORDER BY created_at ASC, id ASC
		 LIMIT ?
	`, maxAttempts, r.now(), limit)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *NotificationsRepositoryImpl) Claim(ctx context.Context, id string, attempts int, lease time.Duration) (bool, error) {
	now := r.now()
	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications
		   SET claimed_until = ?
		 WHERE id = ?
		   AND delivered = 0
		   AND attempts = ?
		   AND (claimed_until IS NULL OR claimed_until < ?)
	`, now.Add(lease), id, attempts, now)
	return affectedOne(res, err)
}

func (r *NotificationsRepositoryImpl) Release(ctx context.Context, id string, attempts int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE notifications
		   SET claimed_until = NULL
		 WHERE id = ? AND delivered = 0 AND attempts = ?
	`, id, attempts)
	return err
}

func (r *NotificationsRepositoryImpl) MarkDelivered(ctx context.Context, id string, attempts int) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications
		   SET delivered = 1, claimed_until = NULL, updated_at = ?
		 WHERE id = ? AND delivered = 0 AND attempts = ?
	`, r.now(), id, attempts)
	return affectedOne(res, err)
}

func (r *NotificationsRepositoryImpl) RecordFailure(ctx context.Context, id string, attempts int, reason string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications
		   SET attempts = attempts + 1, last_error = ?, claimed_until = NULL, updated_at = ?
		 WHERE id = ? AND delivered = 0 AND attempts = ?
	`, util.TruncateUTF8(reason, maxLastError), r.now(), id, attempts)
	return affectedOne(res, err)
}

func (r *NotificationsRepositoryImpl) Status(ctx context.Context, maxAttempts int) (model.QueueStatus, error) {
	var st model.QueueStatus
	err := r.db.GetContext(ctx, &st, `
		SELECT COUNT(*) AS total,
		       COALESCE(SUM(CASE WHEN delivered = 1 THEN 1 ELSE 0 END), 0)                     AS sent,
		       COALESCE(SUM(CASE WHEN delivered = 0 AND attempts < ? THEN 1 ELSE 0 END), 0)  AS pending,
		       COALESCE(SUM(CASE WHEN delivered = 0 AND attempts >= ? THEN 1 ELSE 0 END), 0) AS failed
		  FROM notifications
	`, maxAttempts, maxAttempts)
	return st, err
}

func affectedOne(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

