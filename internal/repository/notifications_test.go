package repository

import (
	"context"
	"database/sql/driver"
	"regexp"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/jmehdipour/notify-gateway/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })
	return sqlx.NewDb(raw, "mysql"), mock
}

func fixedNow() time.Time { return time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC) }

func TestNotificationsInsertOpensTx(t *testing.T) {
	db, mock := newMock(t)
	repo := NewNotificationsRepository(db)
	repo.now = fixedNow

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notifications")).
		WithArgs("01J0000000000000000000000A", nil, `["ops@example.com"]`, "Test", "<p>hi</p>", "null", fixedNow(), fixedNow()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Insert(context.Background(), nil, model.Notification{
		ID:         "01J0000000000000000000000A",
		Recipients: model.Recipients{"ops@example.com"},
		Subject:    "Test",
		Body:       "<p>hi</p>",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationsInsertDuplicateSourceKey(t *testing.T) {
	db, mock := newMock(t)
	repo := NewNotificationsRepository(db)
	repo.now = fixedNow
	key := "evt-42"

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notifications")).
		WithArgs("01J0000000000000000000000B", key, `["ops@example.com"]`, "Test", "<p>hi</p>", "null", fixedNow(), fixedNow()).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'evt-42' for key 'uk_notifications_source_key'"})
	mock.ExpectRollback()

	err := repo.Insert(context.Background(), nil, model.Notification{
		ID:         "01J0000000000000000000000B",
		SourceKey:  &key,
		Recipients: model.Recipients{"ops@example.com"},
		Subject:    "Test",
		Body:       "<p>hi</p>",
	})
	assert.ErrorIs(t, err, ErrDuplicateSourceKey)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationsGetBySourceKey(t *testing.T) {
	db, mock := newMock(t)
	repo := NewNotificationsRepository(db)

	mock.ExpectQuery(`WHERE source_key = \? LIMIT 1`).
		WithArgs("evt-42").
		WillReturnRows(sqlmock.NewRows([]string{"id", "source_key", "delivered", "attempts"}).
			AddRow("01J0000000000000000000000B", "evt-42", false, 0))

	n, err := repo.GetBySourceKey(context.Background(), "evt-42")
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, "01J0000000000000000000000B", n.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationsListEligibleFiltersAndOrders(t *testing.T) {
	db, mock := newMock(t)
	repo := NewNotificationsRepository(db)
	repo.now = fixedNow

	cols := []string{"id", "recipients", "subject", "body", "attachments", "delivered", "attempts",
		"last_error", "claimed_until", "created_at", "updated_at"}
	rows := sqlmock.NewRows(cols).
		AddRow("a", []byte(`["a@example.com"]`), "s1", "b1", []byte(`[{"url":"https://x/y.pdf","filename":"y.pdf"}]`), false, 0, nil, nil, fixedNow(), fixedNow()).
		AddRow("b", []byte(`["b@example.com"]`), "s2", "b2", nil, false, 2, "boom", nil, fixedNow(), fixedNow())

	mock.ExpectQuery(`WHERE delivered = 0\s+AND attempts < \?\s+AND \(claimed_until IS NULL OR claimed_until < \?\)\s+ORDER BY created_at ASC, id ASC\s+LIMIT \?`).
		WithArgs(3, fixedNow(), 10).
		WillReturnRows(rows)

	got, err := repo.ListEligible(context.Background(), 3, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.Recipients{"a@example.com"}, got[0].Recipients)
	require.Len(t, got[0].Attachments, 1)
	assert.Equal(t, "y.pdf", got[0].Attachments[0].Filename)
	assert.Equal(t, 2, got[1].Attempts)
	require.NotNil(t, got[1].LastError)
	assert.Equal(t, "boom", *got[1].LastError)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationsConditionalWrites(t *testing.T) {
	db, mock := newMock(t)
	repo := NewNotificationsRepository(db)
	repo.now = fixedNow

	mock.ExpectExec(`SET claimed_until = \?\s+WHERE id = \?\s+AND delivered = 0\s+AND attempts = \?`).
		WithArgs(fixedNow().Add(time.Minute), "a", 1, fixedNow()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`SET delivered = 1, claimed_until = NULL, updated_at = \?\s+WHERE id = \? AND delivered = 0 AND attempts = \?`).
		WithArgs(fixedNow(), "a", 1).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`SET attempts = attempts \+ 1, last_error = \?`).
		WithArgs("smtp down", fixedNow(), "b", 2).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := context.Background()

	ok, err := repo.Claim(ctx, "a", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// lost the race: someone else already recorded an outcome
	ok, err = repo.MarkDelivered(ctx, "a", 1)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.RecordFailure(ctx, "b", 2, "smtp down")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, mock.ExpectationsWereMet())
}

// validUTF8Arg matches a string argument that is valid UTF-8 and fits max bytes.
type validUTF8Arg struct{ max int }

func (a validUTF8Arg) Match(v driver.Value) bool {
	s, ok := v.(string)
	return ok && utf8.ValidString(s) && len(s) <= a.max && len(s) > a.max-2
}

func TestNotificationsRecordFailureKeepsLastErrorValidUTF8(t *testing.T) {
	db, mock := newMock(t)
	repo := NewNotificationsRepository(db)
	repo.now = fixedNow

	// 1 + 2*1500 bytes; a plain byte cut at 2000 splits a rune
	reason := "a" + strings.Repeat("ç", 1500)
	mock.ExpectExec(`SET attempts = attempts \+ 1, last_error = \?`).
		WithArgs(validUTF8Arg{max: 2000}, fixedNow(), "c", 0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.RecordFailure(context.Background(), "c", 0, reason)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationsStatus(t *testing.T) {
	db, mock := newMock(t)
	repo := NewNotificationsRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) AS total")).
		WithArgs(3, 3).
		WillReturnRows(sqlmock.NewRows([]string{"total", "sent", "pending", "failed"}).AddRow(6, 3, 2, 1))

	st, err := repo.Status(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatus{Total: 6, Sent: 3, Pending: 2, Failed: 1}, st)
	assert.Equal(t, st.Total, st.Sent+st.Pending+st.Failed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationsGetByIDMissing(t *testing.T) {
	db, mock := newMock(t)
	repo := NewNotificationsRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM notifications")).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	n, err := repo.GetByID(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, n)
}
