package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"heartbeat/internal/task"
	logx "heartbeat/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// sqliteStore keeps the full entry as JSON next to the columns it is
// queried by. The AUTOINCREMENT seq is the insertion order tie-break.
type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
	now func() time.Time
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	// Append must be durable on return.
	_, _ = db.Exec("PRAGMA synchronous = FULL")

	st := &sqliteStore{db: db, log: log, now: time.Now}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Append(ctx context.Context, e task.HistoryEntry) error {
	if err := validateEntry(e); err != nil {
		return err
	}
	e = utcEntry(e)
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs(id, task, started_ms, status, entry) VALUES(?,?,?,?,?)`,
		e.ID, e.TaskName, e.StartedAt.UnixMilli(), string(e.Status), string(b),
	)
	return s.wrap(err)
}

func (s *sqliteStore) Query(ctx context.Context, f Filter) ([]task.HistoryEntry, error) {
	q := `SELECT seq, entry FROM runs`
	var args []any
	if f.Task != "" {
		q += ` WHERE task = ?`
		args = append(args, f.Task)
	}
	q += ` ORDER BY started_ms DESC, seq ASC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, s.wrap(err)
	}
	defer rows.Close()

	var out []task.HistoryEntry
	for rows.Next() {
		var (
			seq int64
			raw string
		)
		if err := rows.Scan(&seq, &raw); err != nil {
			return nil, err
		}
		var e task.HistoryEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			s.log.Debug("history.skip_corrupt", logx.Int64("seq", seq), logx.Err(err))
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, s.wrap(rows.Err())
}

func (s *sqliteStore) LastRuns(ctx context.Context) (map[string]task.HistoryEntry, error) {
	all, err := s.Query(ctx, Filter{})
	if err != nil {
		return nil, err
	}
	return lastRunsFrom(all), nil
}

func (s *sqliteStore) Evict(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-olderThan).UnixMilli()
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE started_ms < ?`, cutoff)
	if err != nil {
		return 0, s.wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *sqliteStore) wrap(err error) error {
	if err != nil && errors.Is(err, sql.ErrConnDone) {
		return ErrStoreClosed
	}
	if err != nil && strings.Contains(err.Error(), "database is closed") {
		return ErrStoreClosed
	}
	return err
}
