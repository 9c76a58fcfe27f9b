package worker

import (
	"context"
	"time"
)

// RunEvery calls fn immediately and then every interval until ctx is done.
// Ticks never overlap: a slow tick delays the next one.
func RunEvery(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	if interval <= 0 {
		interval = time.Minute
	}

	tick := time.NewTicker(interval)
	defer tick.Stop()

	fn(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			fn(ctx)
		}
	}
}

// RunHourly calls fn at the top of every wall-clock hour in loc until ctx is done.
func RunHourly(ctx context.Context, loc *time.Location, fn func(ctx context.Context, now time.Time)) {
	if loc == nil {
		loc = time.UTC
	}
	for {
		now := time.Now().In(loc)
		next := slotStart(now).Add(time.Hour)

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			fn(ctx, time.Now().In(loc))
		}
	}
}
