package scheduler

import (
	"time"

	"heartbeat/internal/task"
)

// IsDue reports whether t should run at now given its most recent run.
//
// lastRun is nil when the task has never run. heartbeat is the global tick
// interval, used by Interval schedules that carry no interval of their own.
// Calendar comparisons use now's location.
func IsDue(t task.Task, lastRun *task.HistoryEntry, now time.Time, heartbeat time.Duration) bool {
	s := t.Schedule
	switch s.Kind {
	case task.EveryBeat:
		return true

	case task.Interval:
		if lastRun == nil {
			return true
		}
		every := s.Every
		if every <= 0 {
			every = heartbeat
		}
		return now.Sub(lastRun.StartedAt) >= every

	case task.Daily:
		if lastRun == nil {
			return true
		}
		return !sameDay(now, lastRun.StartedAt.In(now.Location()))

	case task.DailyAt:
		target := targetOn(now, s)
		if now.Before(target) {
			return false
		}
		if lastRun != nil {
			last := lastRun.StartedAt.In(now.Location())
			if sameDay(now, last) && !last.Before(target) {
				return false
			}
		}
		return true
	}
	return false
}

// DueTasks filters tasks down to those due at now, preserving input order.
// lastRuns maps task name to that task's most recent entry.
func DueTasks(tasks []task.Task, lastRuns map[string]task.HistoryEntry, now time.Time, heartbeat time.Duration) []task.Task {
	due := make([]task.Task, 0, len(tasks))
	for _, t := range tasks {
		if !t.Enabled {
			continue
		}
		var last *task.HistoryEntry
		if e, ok := lastRuns[t.Name]; ok {
			last = &e
		}
		if IsDue(t, last, now, heartbeat) {
			due = append(due, t)
		}
	}
	return due
}

// NextDue returns the earliest instant at or after now at which t is due.
// For EveryBeat tasks that is always now (the next tick decides).
func NextDue(t task.Task, lastRun *task.HistoryEntry, now time.Time, heartbeat time.Duration) time.Time {
	if IsDue(t, lastRun, now, heartbeat) {
		return now
	}
	s := t.Schedule
	switch s.Kind {
	case task.Interval:
		every := s.Every
		if every <= 0 {
			every = heartbeat
		}
		return lastRun.StartedAt.Add(every).In(now.Location())
	case task.Daily:
		return startOfDay(now).AddDate(0, 0, 1)
	case task.DailyAt:
		target := targetOn(now, s)
		if now.Before(target) {
			return target
		}
		return targetOn(startOfDay(now).AddDate(0, 0, 1), s)
	}
	return now
}

func targetOn(day time.Time, s task.Schedule) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), s.Hour, s.Minute, 0, 0, day.Location())
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
