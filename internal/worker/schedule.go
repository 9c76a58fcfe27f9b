package worker

import (
	"fmt"
	"time"

	"github.com/jmehdipour/notify-gateway/internal/model"
)

// Due reports whether cfg is scheduled for the hourly slot containing local.
// local must already be in the scheduler's time zone.
func Due(cfg model.ChannelConfig, local time.Time) (bool, error) {
	hour, err := model.ParseSendHour(cfg.SendHour)
	if err != nil {
		return false, err
	}
	if local.Hour() != hour {
		return false, nil
	}

	p, ok := model.ParsePeriodicity(cfg.Periodicity.String())
	if !ok {
		return false, fmt.Errorf("unknown periodicity %q", cfg.Periodicity)
	}

	switch p {
	case model.PeriodicityDaily:
		return true, nil
	case model.PeriodicityWeekly:
		if cfg.Weekday == nil {
			return false, fmt.Errorf("weekly schedule without weekday")
		}
		wd, ok := model.ParseWeekday(*cfg.Weekday)
		if !ok {
			return false, fmt.Errorf("unknown weekday %q", *cfg.Weekday)
		}
		return local.Weekday() == wd, nil
	case model.PeriodicityBiweekly:
		return local.Day() == 1 || local.Day() == 15, nil
	case model.PeriodicityMonthly:
		return local.Day() == 1, nil
	}
	return false, nil
}

// slotStart is the beginning of the wall-clock hour containing local.
func slotStart(local time.Time) time.Time {
	return time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, local.Location())
}
