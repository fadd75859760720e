package task

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestSplitFrontmatter(t *testing.T) {
	t.Parallel()
	front, body, err := SplitFrontmatter([]byte("---\nschedule: daily\n---\n\nDo the thing.\n"))
	if err != nil {
		t.Fatalf("SplitFrontmatter error: %v", err)
	}
	if strings.TrimSpace(string(front)) != "schedule: daily" {
		t.Fatalf("front = %q", front)
	}
	if body != "Do the thing." {
		t.Fatalf("body = %q", body)
	}

	_, body, err = SplitFrontmatter([]byte("just a prompt\n"))
	if err != nil || body != "just a prompt" {
		t.Fatalf("no frontmatter: body=%q err=%v", body, err)
	}

	if _, _, err := SplitFrontmatter([]byte("---\nschedule: daily\n")); err == nil {
		t.Fatal("expected unterminated frontmatter error")
	}
}

func TestLoaderParsesTaskFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	home := t.TempDir()
	writeFile(t, dir, "report.md", `---
schedule: every 4 hours
timeout: 5m
dir: ~/projects/app
claude:
  command: /usr/local/bin/claude
  args: ["--model", "sonnet"]
  max_turns: 3
  acknowledge_risks: true
env:
  API_TOKEN: env:MY_TOKEN
---

Write the weekly report.
`)

	l := &Loader{Dir: dir, Home: home}
	tasks, err := l.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	got := tasks[0]
	if got.Name != "report" {
		t.Fatalf("Name = %q", got.Name)
	}
	if got.Schedule.Kind != Interval || got.Schedule.Every != 4*time.Hour {
		t.Fatalf("Schedule = %+v", got.Schedule)
	}
	if got.Timeout != 5*time.Minute || got.TimeoutRaw != "5m" {
		t.Fatalf("Timeout = %v (%q)", got.Timeout, got.TimeoutRaw)
	}
	if want := filepath.Join(home, "projects/app"); got.Dir != want {
		t.Fatalf("Dir = %q, want %q", got.Dir, want)
	}
	if got.Prompt != "Write the weekly report." {
		t.Fatalf("Prompt = %q", got.Prompt)
	}
	o := got.Overrides
	if o.Command == nil || *o.Command != "/usr/local/bin/claude" {
		t.Fatalf("Overrides.Command = %v", o.Command)
	}
	if len(o.Args) != 2 || o.MaxTurns == nil || *o.MaxTurns != 3 || o.AcknowledgeRisks == nil || !*o.AcknowledgeRisks {
		t.Fatalf("Overrides = %+v", o)
	}
	if got.Env["API_TOKEN"] != "env:MY_TOKEN" {
		t.Fatalf("Env = %v", got.Env)
	}
}

func TestLoaderDefaultsAndFiltering(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	home := t.TempDir()
	writeFile(t, dir, "config.md", "---\nheartbeat: 30m\n---\n")
	writeFile(t, dir, ".hidden.md", "hidden")
	writeFile(t, dir, "notes.txt", "not a task")
	writeFile(t, dir, "plain.md", "Just a prompt.")
	writeFile(t, dir, "off.md", "---\nenabled: false\n---\nDisabled.")

	l := &Loader{Dir: dir, Home: home}
	tasks, err := l.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Name != "plain" {
		t.Fatalf("unexpected tasks: %+v", tasks)
	}
	p := tasks[0]
	if p.Schedule.Kind != EveryBeat {
		t.Fatalf("default schedule = %v", p.Schedule.Kind)
	}
	if p.Timeout != 10*time.Minute {
		t.Fatalf("default timeout = %v", p.Timeout)
	}
	if p.Dir != home {
		t.Fatalf("default dir = %q, want %q", p.Dir, home)
	}

	all, err := l.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("LoadAll returned %d tasks, want 2", len(all))
	}

	off, err := l.Find("off")
	if err != nil {
		t.Fatalf("Find(off) error: %v", err)
	}
	if off.Enabled {
		t.Fatal("expected disabled task")
	}
	if _, err := l.Find("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Find(missing) err = %v, want ErrNotFound", err)
	}
	if _, err := l.Find("../etc/passwd"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Find(traversal) err = %v, want ErrNotFound", err)
	}
}

func TestLoaderRejectsMalformedValues(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"bad-schedule": "---\nschedule: whenever\n---\nx",
		"bad-timeout":  "---\ntimeout: forever\n---\nx",
		"zero-timeout": "---\ntimeout: 0m\n---\nx",
		"bad-yaml":     "---\nschedule: [daily\n---\nx",
	}
	for name, content := range tests {
		name, content := name, content
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			writeFile(t, dir, name+".md", content)
			l := &Loader{Dir: dir, Home: t.TempDir()}
			if _, err := l.Load(); err == nil {
				t.Fatal("expected load error")
			}
		})
	}
}

func TestCreateTaskFileAvoidsOverwrite(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	spec := NewTaskSpec{Prompt: "Check the CI dashboard!", Schedule: "every 2 hours", Timeout: "15m", Dir: "~/work"}

	p1, err := CreateTaskFile(dir, spec)
	if err != nil {
		t.Fatalf("CreateTaskFile error: %v", err)
	}
	p2, err := CreateTaskFile(dir, spec)
	if err != nil {
		t.Fatalf("CreateTaskFile (2nd) error: %v", err)
	}
	if filepath.Base(p1) != "check-the-ci-dashboard.md" || filepath.Base(p2) != "check-the-ci-dashboard-2.md" {
		t.Fatalf("unexpected paths: %s, %s", p1, p2)
	}

	home := t.TempDir()
	l := &Loader{Dir: dir, Home: home}
	got, err := l.Find("check-the-ci-dashboard")
	if err != nil {
		t.Fatalf("Find error: %v", err)
	}
	if got.Schedule.Every != 2*time.Hour || got.Timeout != 15*time.Minute || got.Prompt != spec.Prompt {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
	if got.Dir != filepath.Join(home, "work") {
		t.Fatalf("Dir = %q", got.Dir)
	}

	if _, err := RenderTaskFile(NewTaskSpec{Prompt: "x", Schedule: "hourly-ish"}); err == nil {
		t.Fatal("expected invalid schedule error")
	}
}
