package worker

import (
	"testing"
	"time"

	"github.com/jmehdipour/notify-gateway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDue(t *testing.T) {
	brt := time.FixedZone("BRT", -3*3600)
	at := func(day, hour int) time.Time { return time.Date(2026, time.March, day, hour, 5, 0, 0, brt) }
	wd := func(s string) *string { return &s }

	// 2026-03-02 is a Monday
	tests := []struct {
		name string
		cfg  model.ChannelConfig
		now  time.Time
		want bool
	}{
		{"daily at hour", model.ChannelConfig{Periodicity: model.PeriodicityDaily, SendHour: "09:00"}, at(7, 9), true},
		{"daily other hour", model.ChannelConfig{Periodicity: model.PeriodicityDaily, SendHour: "09:00"}, at(7, 10), false},
		{"weekly on weekday", model.ChannelConfig{Periodicity: model.PeriodicityWeekly, Weekday: wd("segunda-feira"), SendHour: "08:30"}, at(2, 8), true},
		{"weekly other day", model.ChannelConfig{Periodicity: model.PeriodicityWeekly, Weekday: wd("segunda"), SendHour: "08:00"}, at(3, 8), false},
		{"biweekly 1st", model.ChannelConfig{Periodicity: model.PeriodicityBiweekly, SendHour: "07:00"}, at(1, 7), true},
		{"biweekly 15th", model.ChannelConfig{Periodicity: model.PeriodicityBiweekly, SendHour: "07:00"}, at(15, 7), true},
		{"biweekly 16th", model.ChannelConfig{Periodicity: model.PeriodicityBiweekly, SendHour: "07:00"}, at(16, 7), false},
		{"monthly 1st", model.ChannelConfig{Periodicity: model.PeriodicityMonthly, SendHour: "09:00"}, at(1, 9), true},
		{"monthly 2nd", model.ChannelConfig{Periodicity: model.PeriodicityMonthly, SendHour: "09:00"}, at(2, 9), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Due(tt.cfg, tt.now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDueRejectsBrokenSchedules(t *testing.T) {
	now := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

	_, err := Due(model.ChannelConfig{Periodicity: model.PeriodicityDaily, SendHour: "nine"}, now)
	assert.Error(t, err)

	_, err = Due(model.ChannelConfig{Periodicity: "anual", SendHour: "09:00"}, now)
	assert.Error(t, err)

	_, err = Due(model.ChannelConfig{Periodicity: model.PeriodicityWeekly, SendHour: "09:00"}, now)
	assert.Error(t, err)
}

func TestSlotStart(t *testing.T) {
	brt := time.FixedZone("BRT", -3*3600)
	got := slotStart(time.Date(2026, 3, 1, 9, 47, 12, 5, brt))
	assert.Equal(t, time.Date(2026, 3, 1, 9, 0, 0, 0, brt), got)
}
