package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
)

// AlignedSchedule fires on multiples of Every counted from local midnight:
// a 30m heartbeat ticks at :00 and :30, a 15m one at :00, :15, :30 and :45.
// Intervals that do not divide a day restart their alignment at midnight.
type AlignedSchedule struct {
	Every time.Duration
}

var _ cron.Schedule = AlignedSchedule{}

// Next returns the first boundary strictly after t.
func (s AlignedSchedule) Next(t time.Time) time.Time {
	if s.Every <= 0 {
		return t
	}
	midnight := startOfDay(t)
	n := t.Sub(midnight)/s.Every + 1
	next := midnight.Add(n * s.Every)
	if tomorrow := midnight.AddDate(0, 0, 1); next.After(tomorrow) {
		return tomorrow
	}
	return next
}

// UntilNextTick is how long the daemon sleeps from now to the next aligned
// boundary. It is zero when now is exactly on a boundary.
func UntilNextTick(now time.Time, every time.Duration) time.Duration {
	if every <= 0 {
		return 0
	}
	rem := now.Sub(startOfDay(now)) % every
	if rem == 0 {
		return 0
	}
	return every - rem
}
