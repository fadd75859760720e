package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"heartbeat/internal/storage"
	"heartbeat/internal/task"
)

type fixture struct {
	dir    string
	script string
	app    *App
}

// newFixture builds a heartbeat directory whose claude.command is a shell
// script with the given body. extra is appended to config.md's frontmatter.
func newFixture(t *testing.T, body, extra string) *fixture {
	t.Helper()
	dir := t.TempDir()
	script := filepath.Join(t.TempDir(), "agent.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	cfg := fmt.Sprintf("---\nheartbeat: 30m\nconcurrency: 2\nclaude:\n  command: %s\nlog:\n  level: error\n%s---\n", script, extra)
	writeFile(t, filepath.Join(dir, "config.md"), cfg)

	a, err := New(Options{Dir: dir, LogLevel: "error"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return &fixture{dir: dir, script: script, app: a}
}

func (f *fixture) addTask(t *testing.T, name, front string) {
	t.Helper()
	body := fmt.Sprintf("---\ntimeout: 10s\ndir: %s\n%s---\nprompt for %s\n", t.TempDir(), front, name)
	writeFile(t, filepath.Join(f.dir, name+".md"), body)
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func history(t *testing.T, a *App) []task.HistoryEntry {
	t.Helper()
	got, err := a.Store().Query(context.Background(), storage.Filter{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	return got
}

func TestTick_RunsDueTasksAndReleasesLock(t *testing.T) {
	t.Parallel()

	f := newFixture(t, `echo ran`, "")
	f.addTask(t, "alpha", "schedule: every beat\n")
	f.addTask(t, "beta", "schedule: every beat\n")

	rep, err := f.app.Runner().Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if rep.Skipped || rep.Loaded != 2 || len(rep.Results) != 2 {
		t.Fatalf("report=%+v", rep)
	}
	for _, e := range rep.Results {
		if !e.Succeeded() {
			t.Fatalf("%s: status=%s stderr=%q", e.TaskName, e.Status, e.Stderr)
		}
	}
	if got := history(t, f.app); len(got) != 2 {
		t.Fatalf("history=%d want 2", len(got))
	}
	if _, err := os.Stat(f.app.Paths().Lock()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("lock file left behind: %v", err)
	}
}

func TestTick_IntervalTaskNotRerun(t *testing.T) {
	t.Parallel()

	f := newFixture(t, `true`, "")
	f.addTask(t, "hourly", "schedule: every 2 hours\n")
	f.addTask(t, "always", "schedule: every beat\n")

	if _, err := f.app.Runner().Tick(context.Background()); err != nil {
		t.Fatalf("first tick: %v", err)
	}
	rep, err := f.app.Runner().Tick(context.Background())
	if err != nil {
		t.Fatalf("second tick: %v", err)
	}
	if len(rep.Due) != 1 || rep.Due[0] != "always" {
		t.Fatalf("due=%v want [always]", rep.Due)
	}
}

func TestTick_SkipsWhenLockHeld(t *testing.T) {
	t.Parallel()

	f := newFixture(t, `true`, "")
	f.addTask(t, "alpha", "")
	writeFile(t, f.app.Paths().Lock(), `{"pid":1,"acquired_at":"2026-01-01T00:00:00Z"}`)

	rep, err := f.app.Runner().Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if !rep.Skipped || len(rep.Results) != 0 {
		t.Fatalf("report=%+v", rep)
	}
	if got := history(t, f.app); len(got) != 0 {
		t.Fatalf("history=%d want 0", len(got))
	}
	if _, err := os.Stat(f.app.Paths().Lock()); err != nil {
		t.Fatalf("foreign lock removed: %v", err)
	}
}

func TestTick_TakesOverStaleLock(t *testing.T) {
	t.Parallel()

	f := newFixture(t, `true`, "")
	f.addTask(t, "alpha", "")
	lockPath := f.app.Paths().Lock()
	writeFile(t, lockPath, `{"pid":1,"acquired_at":"2026-01-01T00:00:00Z"}`)
	old := time.Now().Add(-40 * time.Minute)
	if err := os.Chtimes(lockPath, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	rep, err := f.app.Runner().Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if rep.Skipped || len(rep.Results) != 1 {
		t.Fatalf("report=%+v", rep)
	}
}

func TestTick_MalformedTaskFailsAndReleasesLock(t *testing.T) {
	t.Parallel()

	f := newFixture(t, `true`, "")
	f.addTask(t, "good", "")
	f.addTask(t, "bad", "schedule: whenever\n")

	if _, err := f.app.Runner().Tick(context.Background()); err == nil {
		t.Fatalf("expected load error")
	}
	if _, err := os.Stat(f.app.Paths().Lock()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("lock not released: %v", err)
	}
	if got := history(t, f.app); len(got) != 0 {
		t.Fatalf("history=%d want 0", len(got))
	}
}

func TestTick_NotifyPolicy(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "notified")

	// The agent fails for prompts mentioning "broken".
	body := `case "$2" in *broken*) echo boom >&2; exit 1;; esac; exit 0`
	f := newFixture(t, body, "")
	notify := fmt.Sprintf("notify:\n  on: error\n  command: 'echo \"$TASK_NAME $TASK_STATUS $(ls %s | wc -l | tr -d \" \")\" >> %s'\n",
		f.app.Paths().History(), out)
	// The hook records how many history files exist when it fires.
	cfg := fmt.Sprintf("---\nheartbeat: 30m\nclaude:\n  command: %s\nlog:\n  level: error\n%s---\n", f.script, notify)
	writeFile(t, filepath.Join(f.dir, "config.md"), cfg)
	f.addTask(t, "broken", "")
	f.addTask(t, "fine", "")

	rep, err := f.app.Runner().Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(rep.Results) != 2 {
		t.Fatalf("results=%d", len(rep.Results))
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("notification not written: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 1 {
		t.Fatalf("notifications=%q want one", lines)
	}
	fields := strings.Fields(lines[0])
	if len(fields) != 3 || fields[0] != "broken" || fields[1] != "error" {
		t.Fatalf("notification=%q", lines[0])
	}
	if fields[2] == "0" {
		t.Fatalf("notification fired before the entry was persisted")
	}
}

func TestRunTask_DisabledAndUnknown(t *testing.T) {
	t.Parallel()

	f := newFixture(t, `echo manual`, "")
	f.addTask(t, "paused", "enabled: false\n")

	e, err := f.app.Runner().RunTask(context.Background(), "paused")
	if err != nil {
		t.Fatalf("RunTask: %v", err)
	}
	if !e.Succeeded() || !strings.Contains(e.Stdout, "manual") {
		t.Fatalf("entry=%+v", e)
	}
	if got := history(t, f.app); len(got) != 1 || got[0].TaskName != "paused" {
		t.Fatalf("history=%+v", got)
	}

	if _, err := f.app.Runner().RunTask(context.Background(), "missing"); !errors.Is(err, task.ErrNotFound) {
		t.Fatalf("err=%v want ErrNotFound", err)
	}

	// Disabled tasks never run on a tick.
	rep, err := f.app.Runner().Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if rep.Loaded != 0 || len(rep.Results) != 0 {
		t.Fatalf("report=%+v", rep)
	}
}

func TestTick_EvictsOldHistory(t *testing.T) {
	t.Parallel()

	f := newFixture(t, `true`, "history_retention: 1d\n")
	f.addTask(t, "alpha", "")

	old := time.Now().Add(-72 * time.Hour).UTC().Truncate(time.Millisecond)
	stale := task.HistoryEntry{
		ID:         "old",
		TaskName:   "ancient",
		StartedAt:  old,
		FinishedAt: old.Add(time.Second),
		Status:     task.StatusSuccess,
		DurationMs: 1000,
	}
	if err := f.app.Store().Append(context.Background(), stale); err != nil {
		t.Fatalf("append: %v", err)
	}

	rep, err := f.app.Runner().Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if rep.Evicted != 1 {
		t.Fatalf("evicted=%d want 1", rep.Evicted)
	}
	got := history(t, f.app)
	if len(got) != 1 || got[0].TaskName != "alpha" {
		t.Fatalf("history=%+v", got)
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()

	f := newFixture(t, `true`, "")
	f.addTask(t, "beat", "")
	f.addTask(t, "off", "enabled: false\n")
	f.addTask(t, "slow", "schedule: every 3 hours\n")

	if _, err := f.app.Runner().RunTask(context.Background(), "slow"); err != nil {
		t.Fatalf("RunTask: %v", err)
	}

	rows, err := f.app.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows=%d want 3", len(rows))
	}
	byName := map[string]TaskStatus{}
	for _, r := range rows {
		byName[r.Task.Name] = r
	}
	if r := byName["off"]; !r.NextDue.IsZero() || r.LastRun != nil {
		t.Fatalf("disabled row=%+v", r)
	}
	if r := byName["beat"]; r.LastRun != nil || r.NextDue.IsZero() {
		t.Fatalf("beat row=%+v", r)
	}
	r := byName["slow"]
	if r.LastRun == nil {
		t.Fatalf("slow has no last run")
	}
	if want := r.LastRun.StartedAt.Add(3 * time.Hour); !r.NextDue.Equal(want) {
		t.Fatalf("slow next=%s want %s", r.NextDue, want)
	}
}
