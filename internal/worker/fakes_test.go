package worker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jmehdipour/notify-gateway/internal/model"
	"github.com/jmehdipour/notify-gateway/internal/repository"
	"github.com/jmoiron/sqlx"
)

// memNotifications mirrors the conditional-write semantics of the MySQL repository.
type memNotifications struct {
	mu        sync.Mutex
	rows      map[string]*model.Notification
	now       func() time.Time
	stealOnce map[string]bool // Claim loses the race once for these ids
}

var _ repository.NotificationsRepository = (*memNotifications)(nil)

func newMemNotifications() *memNotifications {
	return &memNotifications{
		rows:      map[string]*model.Notification{},
		now:       time.Now,
		stealOnce: map[string]bool{},
	}
}

func (m *memNotifications) Insert(_ context.Context, _ *sqlx.Tx, n model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.SourceKey != nil {
		for _, r := range m.rows {
			if r.SourceKey != nil && *r.SourceKey == *n.SourceKey {
				return repository.ErrDuplicateSourceKey
			}
		}
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = m.now()
	}
	m.rows[n.ID] = &n
	return nil
}

func (m *memNotifications) GetBySourceKey(_ context.Context, key string) (*model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.rows {
		if n.SourceKey != nil && *n.SourceKey == key {
			cp := *n
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memNotifications) GetByID(_ context.Context, id string) (*model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *n
	return &cp, nil
}

func (m *memNotifications) ListEligible(_ context.Context, maxAttempts, limit int) ([]model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	var out []model.Notification
	for _, n := range m.rows {
		if n.Delivered || n.Attempts >= maxAttempts {
			continue
		}
		if n.ClaimedUntil != nil && !n.ClaimedUntil.Before(now) {
			continue
		}
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memNotifications) Claim(_ context.Context, id string, attempts int, lease time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stealOnce[id] {
		delete(m.stealOnce, id)
		return false, nil
	}
	n, ok := m.rows[id]
	now := m.now()
	if !ok || n.Delivered || n.Attempts != attempts || (n.ClaimedUntil != nil && !n.ClaimedUntil.Before(now)) {
		return false, nil
	}
	until := now.Add(lease)
	n.ClaimedUntil = &until
	return true, nil
}

func (m *memNotifications) Release(_ context.Context, id string, attempts int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.rows[id]; ok && n.Attempts == attempts {
		n.ClaimedUntil = nil
	}
	return nil
}

func (m *memNotifications) MarkDelivered(_ context.Context, id string, attempts int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.rows[id]
	if !ok || n.Delivered || n.Attempts != attempts {
		return false, nil
	}
	n.Delivered = true
	n.ClaimedUntil = nil
	n.LastError = nil
	return true, nil
}

func (m *memNotifications) RecordFailure(_ context.Context, id string, attempts int, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.rows[id]
	if !ok || n.Delivered || n.Attempts != attempts {
		return false, nil
	}
	n.Attempts++
	n.LastError = &reason
	n.ClaimedUntil = nil
	return true, nil
}

func (m *memNotifications) Status(_ context.Context, maxAttempts int) (model.QueueStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var st model.QueueStatus
	for _, n := range m.rows {
		st.Total++
		switch n.State(maxAttempts) {
		case model.StateSent:
			st.Sent++
		case model.StateFailed:
			st.Failed++
		default:
			st.Pending++
		}
	}
	return st, nil
}

type memConfigs struct {
	configs []model.ChannelConfig
}

var _ repository.ChannelConfigsRepository = (*memConfigs)(nil)

func (m *memConfigs) Insert(_ context.Context, _ *sqlx.Tx, c model.ChannelConfig) error {
	m.configs = append(m.configs, c)
	return nil
}

func (m *memConfigs) GetByID(_ context.Context, id string) (*model.ChannelConfig, error) {
	for _, c := range m.configs {
		if c.ID == id {
			cp := c
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memConfigs) ListDispatchable(context.Context) ([]model.ChannelConfig, error) {
	var out []model.ChannelConfig
	for _, c := range m.configs {
		if c.HasWebhook() {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memConfigs) List(_ context.Context, limit, offset int) ([]model.ChannelConfig, error) {
	if offset >= len(m.configs) {
		return nil, nil
	}
	end := offset + limit
	if end > len(m.configs) {
		end = len(m.configs)
	}
	return m.configs[offset:end], nil
}

type memWebhookLogs struct {
	mu   sync.Mutex
	logs []model.WebhookLog
}

var _ repository.WebhookLogsRepository = (*memWebhookLogs)(nil)

func (m *memWebhookLogs) Append(_ context.Context, l model.WebhookLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, l)
	return nil
}

func (m *memWebhookLogs) ExistsSince(_ context.Context, configID string, since time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.logs {
		if l.ConfigID == configID && !l.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memWebhookLogs) ListRecent(_ context.Context, configID string, limit int) ([]model.WebhookLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.WebhookLog
	for i := len(m.logs) - 1; i >= 0 && len(out) < limit; i-- {
		if configID == "" || m.logs[i].ConfigID == configID {
			out = append(out, m.logs[i])
		}
	}
	return out, nil
}

func (m *memWebhookLogs) all() []model.WebhookLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.WebhookLog(nil), m.logs...)
}
