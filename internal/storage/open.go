package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"heartbeat/internal/task"
	logx "heartbeat/pkg/logx"
)

// Store is the history API used by the tick coordinator and the CLI.
type Store interface {
	// Append persists e. It returns only after the entry is durable.
	// StartedAt and FinishedAt are stored in UTC, so Query returns the same
	// instants with a UTC location.
	Append(ctx context.Context, e task.HistoryEntry) error
	// Query returns matching entries newest-first. Unreadable records are
	// skipped.
	Query(ctx context.Context, f Filter) ([]task.HistoryEntry, error)
	// LastRuns maps each task name to its most recent entry.
	LastRuns(ctx context.Context) (map[string]task.HistoryEntry, error)
	// Evict removes entries that started more than olderThan ago and
	// reports how many were removed. olderThan <= 0 removes nothing.
	Evict(ctx context.Context, olderThan time.Duration) (int, error)
	Close() error
}

// Open initializes the configured store. An empty driver means "file".
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}
}

// lastRunsFrom keeps the first entry seen per task. Fed with a Query result,
// that is the newest one, so LastRuns can never disagree with Query ordering.
func lastRunsFrom(entries []task.HistoryEntry) map[string]task.HistoryEntry {
	out := make(map[string]task.HistoryEntry)
	for _, e := range entries {
		if _, ok := out[e.TaskName]; !ok {
			out[e.TaskName] = e
		}
	}
	return out
}

func utcEntry(e task.HistoryEntry) task.HistoryEntry {
	e.StartedAt = e.StartedAt.UTC()
	e.FinishedAt = e.FinishedAt.UTC()
	return e
}

func validateEntry(e task.HistoryEntry) error {
	name := strings.TrimSpace(e.TaskName)
	if name == "" {
		return fmt.Errorf("%w: empty task name", ErrInvalidEntry)
	}
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: task name %q contains a path separator", ErrInvalidEntry, name)
	}
	if e.StartedAt.IsZero() {
		return fmt.Errorf("%w: %s: missing start time", ErrInvalidEntry, name)
	}
	return nil
}
