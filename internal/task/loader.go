package task

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ConfigFile is the global configuration document; it is never a task.
const ConfigFile = "config.md"

const (
	defaultSchedule = "every beat"
	defaultTimeout  = "10m"
)

var ErrNotFound = errors.New("task not found")

// frontmatter keys of a task file.
type taskFront struct {
	Schedule *string           `yaml:"schedule"`
	Timeout  *string           `yaml:"timeout"`
	Enabled  *bool             `yaml:"enabled"`
	Dir      *string           `yaml:"dir"`
	Claude   Overrides         `yaml:"claude"`
	Env      map[string]string `yaml:"env"`
}

// Loader reads task definitions from a heartbeat directory.
type Loader struct {
	Dir string
	// Home is used to resolve "~" and as the default working directory.
	// Empty means os.UserHomeDir().
	Home string
}

func NewLoader(dir string) *Loader { return &Loader{Dir: dir} }

// Load returns all enabled tasks, sorted by name.
func (l *Loader) Load() ([]Task, error) {
	all, err := l.LoadAll()
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, t := range all {
		if t.Enabled {
			out = append(out, t)
		}
	}
	return out, nil
}

// LoadAll returns every task, including disabled ones, sorted by name.
// A malformed task file fails the whole load.
func (l *Loader) LoadAll() ([]Task, error) {
	entries, err := os.ReadDir(l.Dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !isTaskFile(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	tasks := make([]Task, 0, len(names))
	for _, n := range names {
		t, err := l.ParseFile(filepath.Join(l.Dir, n))
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// Find returns the task with the given name, enabled or not.
func (l *Loader) Find(name string) (Task, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, `/\`) {
		return Task{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	path := filepath.Join(l.Dir, name+".md")
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Task{}, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return Task{}, err
	}
	return l.ParseFile(path)
}

func isTaskFile(name string) bool {
	return strings.HasSuffix(name, ".md") && name != ConfigFile && !strings.HasPrefix(name, ".")
}

// ParseFile parses one task file. The task name is the file's basename.
func (l *Loader) ParseFile(path string) (Task, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Task{}, err
	}
	var fm taskFront
	body, err := DecodeFrontmatter(raw, &fm)
	if err != nil {
		return Task{}, fmt.Errorf("%s: %w", path, err)
	}

	t := Task{
		Name:      strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		FilePath:  path,
		Enabled:   true,
		Prompt:    body,
		Overrides: fm.Claude,
		Env:       fm.Env,
	}

	sched := defaultSchedule
	if fm.Schedule != nil {
		sched = *fm.Schedule
	}
	if t.Schedule, err = ParseSchedule(sched); err != nil {
		return Task{}, fmt.Errorf("%s: schedule: %w", path, err)
	}

	t.TimeoutRaw = defaultTimeout
	if fm.Timeout != nil {
		t.TimeoutRaw = strings.TrimSpace(*fm.Timeout)
	}
	if t.Timeout, err = ParseDurationField("timeout", t.TimeoutRaw); err != nil {
		return Task{}, fmt.Errorf("%s: %w", path, err)
	}
	if t.Timeout <= 0 {
		return Task{}, fmt.Errorf("%s: timeout must be > 0", path)
	}

	if fm.Enabled != nil {
		t.Enabled = *fm.Enabled
	}

	home, err := l.home()
	if err != nil {
		return Task{}, err
	}
	dir := ""
	if fm.Dir != nil {
		dir = *fm.Dir
	}
	t.Dir = ResolveDir(dir, home)

	return t, nil
}

func (l *Loader) home() (string, error) {
	if l.Home != "" {
		return l.Home, nil
	}
	return os.UserHomeDir()
}

// ResolveDir expands "~" against home and makes raw absolute.
// An empty raw resolves to home.
func ResolveDir(raw, home string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return home
	}
	if raw == "~" {
		return home
	}
	if strings.HasPrefix(raw, "~/") {
		return filepath.Join(home, raw[2:])
	}
	abs, err := filepath.Abs(raw)
	if err != nil {
		return filepath.Clean(raw)
	}
	return abs
}
