package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 10, cfg.Dispatcher.BatchSize)
	assert.Equal(t, 3, cfg.Dispatcher.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Dispatcher.SendDelay)
	assert.Equal(t, 2*time.Minute, cfg.Dispatcher.ClaimLease)
	require.Len(t, cfg.Email.Providers, 1)
	assert.Equal(t, "resend", cfg.Email.Providers[0].Name)
	assert.Equal(t, "notifications.requested", cfg.Kafka.Topic)
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dispatcher:\n  batch_size: 25\nhttp:\n  addr: \":9090\"\n"), 0o600))

	t.Setenv("NOTIFYGW_HTTP_ADDR", ":7070")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Dispatcher.BatchSize)
	assert.Equal(t, ":7070", cfg.HTTP.Addr)
	// untouched defaults survive the merge
	assert.Equal(t, 3, cfg.Dispatcher.MaxAttempts)
}

func TestSchedulerLocationFallsBackToUTC(t *testing.T) {
	assert.Equal(t, time.UTC, SchedulerConfig{}.Location())
	assert.Equal(t, time.UTC, SchedulerConfig{Timezone: "Nowhere/Invalid"}.Location())
}
