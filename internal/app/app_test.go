package app

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmehdipour/notify-gateway/internal/config"
	"github.com/jmehdipour/notify-gateway/internal/dispatcher"
	"github.com/jmehdipour/notify-gateway/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMailerWithoutProvidersIsUnavailable(t *testing.T) {
	m := NewMailer(config.EmailConfig{
		From: "no-reply@example.com",
		Providers: []config.ProviderConfig{
			{Name: "resend", Enabled: false, BaseURL: "https://api.resend.com"},
			{Name: "blank", Enabled: true},
		},
	}, zap.NewNop())

	err := m.Send(context.Background(), model.Email{To: []string{"a@example.com"}})
	assert.ErrorIs(t, err, dispatcher.ErrChannelUnavailable)
}

func TestEmailQueueTakesDispatcherKnobs(t *testing.T) {
	raw, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Dispatcher.BatchSize = 25
	cfg.Dispatcher.SendDelay = 0

	q := NewEmailQueue(cfg, sqlx.NewDb(raw, "mysql"), zap.NewNop())
	assert.Equal(t, 25, q.BatchSize)
	assert.Equal(t, 3, q.MaxAttempts)
	assert.Equal(t, time.Duration(0), q.SendDelay)
	assert.Equal(t, 2*time.Minute, q.ClaimLease)
}

func TestEmailQueueWarnsOnTightLease(t *testing.T) {
	raw, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Dispatcher.ClaimLease = 20 * time.Second
	cfg.Dispatcher.SendTimeout = 15 * time.Second

	core, logs := observer.New(zap.WarnLevel)
	q := NewEmailQueue(cfg, sqlx.NewDb(raw, "mysql"), zap.New(core))
	assert.Equal(t, 20*time.Second, q.ClaimLease)
	assert.Equal(t, 1, logs.FilterMessageSnippet("claim lease").Len())
}
