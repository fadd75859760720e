package task

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// NewTaskSpec describes a task file created by "heartbeat add".
type NewTaskSpec struct {
	Prompt   string
	Schedule string
	Timeout  string
	Dir      string
}

type newTaskFront struct {
	Schedule string `yaml:"schedule"`
	Timeout  string `yaml:"timeout"`
	Dir      string `yaml:"dir"`
	Enabled  bool   `yaml:"enabled"`
}

var reSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives a file-safe task name from free text (max 50 chars).
func Slugify(text string) string {
	s := reSlug.ReplaceAllString(strings.ToLower(text), "-")
	s = strings.Trim(s, "-")
	if len(s) > 50 {
		s = strings.TrimRight(s[:50], "-")
	}
	return s
}

// RenderTaskFile renders the markdown document for spec.
// Schedule and timeout are validated so "add" cannot write a file that the
// loader would reject.
func RenderTaskFile(spec NewTaskSpec) ([]byte, error) {
	if strings.TrimSpace(spec.Prompt) == "" {
		return nil, errors.New("prompt required")
	}
	if spec.Schedule == "" {
		spec.Schedule = defaultSchedule
	}
	if spec.Timeout == "" {
		spec.Timeout = defaultTimeout
	}
	if spec.Dir == "" {
		spec.Dir = "~"
	}
	if _, err := ParseSchedule(spec.Schedule); err != nil {
		return nil, err
	}
	if _, err := ParseDuration(spec.Timeout); err != nil {
		return nil, err
	}

	front, err := yaml.Marshal(newTaskFront{
		Schedule: spec.Schedule,
		Timeout:  spec.Timeout,
		Dir:      spec.Dir,
		Enabled:  true,
	})
	if err != nil {
		return nil, err
	}

	var b bytes.Buffer
	b.WriteString("---\n")
	b.Write(front)
	b.WriteString("---\n\n")
	b.WriteString(strings.TrimSpace(spec.Prompt))
	b.WriteString("\n")
	return b.Bytes(), nil
}

// CreateTaskFile writes a new task into dir without overwriting an existing
// one: "<slug>.md", then "<slug>-2.md", "<slug>-3.md", ...
// It returns the created path.
func CreateTaskFile(dir string, spec NewTaskSpec) (string, error) {
	content, err := RenderTaskFile(spec)
	if err != nil {
		return "", err
	}
	slug := Slugify(spec.Prompt)
	if slug == "" {
		slug = "task"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	for n := 1; n < 1000; n++ {
		name := slug
		if n > 1 {
			name = slug + "-" + strconv.Itoa(n)
		}
		path := filepath.Join(dir, name+".md")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		if _, err := f.Write(content); err != nil {
			_ = f.Close()
			return "", err
		}
		return path, f.Close()
	}
	return "", fmt.Errorf("too many tasks named %q", slug)
}

// ConfigTemplate is the config.md written by "heartbeat init".
const ConfigTemplate = `---
heartbeat: 30m
concurrency: 3
history_retention: 7d
notify:
  command: ""
  on: error
claude:
  command: claude
  args: []
  max_turns: 10
  acknowledge_risks: false
storage:
  driver: file
log:
  level: info
debug:
  pprof_addr: ""
---

# Heartbeat Configuration

- **heartbeat**: how often the daemon ticks ("30m", "1h")
- **concurrency**: maximum number of tasks running in parallel
- **history_retention**: how long to keep history entries ("7d", "30d")
- **notify.command**: shell command run after a task (receives TASK_NAME, TASK_STATUS, ...)
- **notify.on**: error | always | never
- **claude.command**: the CLI invoked for every task
- **claude.args**: default args passed to every invocation
- **claude.max_turns**: default max agentic turns per task (0 = no cap)
- **claude.acknowledge_risks**: allow --dangerously-skip-permissions
- **storage.driver**: file | sqlite
- **debug.pprof_addr**: serve net/http/pprof from the daemon (e.g. "127.0.0.1:6060")
`

// ExampleTaskTemplate is the starter task written by "heartbeat init".
const ExampleTaskTemplate = `---
schedule: daily at 09:00
timeout: 10m
dir: ~
enabled: false
---

Summarize what changed in my git repositories since yesterday.
`
