package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"heartbeat/internal/secrets"
	"heartbeat/internal/task"
	logx "heartbeat/pkg/logx"
)

// DefaultTimeout applies when a task reaches the engine without a parsed
// timeout (tasks built in code rather than loaded from a file).
const DefaultTimeout = 10 * time.Minute

// Engine runs tasks as external processes and turns every outcome into a
// HistoryEntry. Failures never escape as Go errors.
type Engine struct {
	cfg     Config
	log     logx.Logger
	secrets *secrets.Resolver

	now     func() time.Time
	newID   func() string
	environ func() []string
}

func New(cfg Config, log logx.Logger, res *secrets.Resolver) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	if res == nil {
		res = secrets.New()
	}
	return &Engine{
		cfg:     cfg.withDefaults(),
		log:     log,
		secrets: res,
		now:     time.Now,
		newID:   uuid.NewString,
		environ: os.Environ,
	}
}

func (e *Engine) Config() Config { return e.cfg }

// Run executes t once and blocks until the process exits, the task timeout
// fires, or ctx is cancelled.
func (e *Engine) Run(ctx context.Context, t task.Task) task.HistoryEntry {
	entry := task.HistoryEntry{
		ID:        e.newID(),
		TaskName:  t.Name,
		StartedAt: e.stamp(),
	}
	log := e.log.With(logx.String("task", t.Name), logx.String("run_id", entry.ID))

	env, err := e.secrets.Resolve(t.Env)
	if err != nil {
		log.Warn("task.preflight_failed", logx.Err(err))
		return e.fail(entry, "", "", err.Error())
	}

	inv := BuildInvocation(e.cfg, t)
	if len(inv.Stripped) > 0 {
		log.Warn("dangerous flags stripped; set acknowledge_risks to allow them",
			logx.Strings("flags", inv.Stripped))
	}
	if inv.Command == "" {
		return e.fail(entry, "", "", ErrNoCommand.Error())
	}
	if t.Dir != "" {
		if st, err := os.Stat(t.Dir); err != nil || !st.IsDir() {
			return e.fail(entry, "", "", fmt.Sprintf("%s: %s", ErrNoDir, t.Dir))
		}
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stdout := newTailBuffer(e.cfg.OutputLimit)
	stderr := newTailBuffer(e.cfg.OutputLimit)

	cmd := exec.Command(inv.Command, inv.Args...)
	cmd.Dir = t.Dir
	cmd.Env = buildEnv(e.environ(), env)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = e.cfg.KillGrace
	setProcessGroup(cmd)

	log.Debug("task.started", logx.String("command", inv.Command), logx.Duration("timeout", timeout))
	if err := cmd.Start(); err != nil {
		log.Warn("task.spawn_failed", logx.Err(err))
		return e.fail(entry, "", "", err.Error())
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var (
		waitErr   error
		timedOut  bool
		cancelled bool
	)
	select {
	case waitErr = <-done:
	case <-runCtx.Done():
		killProcessGroup(cmd)
		if ctx.Err() != nil {
			cancelled = true
		} else {
			timedOut = true
		}
		select {
		case waitErr = <-done:
		case <-time.After(e.cfg.KillGrace):
			log.Warn("task.kill_unconfirmed", logx.Duration("grace", e.cfg.KillGrace))
		}
	}

	out, errOut := stdout.String(), stderr.String()
	entry.TurnsUsed, entry.MaxTurnsReached = ExtractMetadata(out, errOut)

	switch {
	case timedOut:
		raw := t.TimeoutRaw
		if raw == "" {
			raw = task.FormatDuration(timeout)
		}
		entry = e.finish(entry, task.StatusTimeout, nil, out, appendLine(errOut, "Task timed out after "+raw))

	case cancelled:
		entry = e.finish(entry, task.StatusError, nil, out, appendLine(errOut, "Task cancelled"))

	case waitErr == nil:
		code := 0
		entry = e.finish(entry, task.StatusSuccess, &code, out, errOut)

	default:
		var ee *exec.ExitError
		if errors.As(waitErr, &ee) && ee.ExitCode() >= 0 {
			code := ee.ExitCode()
			entry = e.finish(entry, task.StatusError, &code, out, errOut)
		} else {
			// Killed by a signal or the wait itself failed.
			entry = e.finish(entry, task.StatusError, nil, out, appendLine(errOut, waitErr.Error()))
		}
	}

	fields := []logx.Field{
		logx.String("status", string(entry.Status)),
		logx.Int64("duration_ms", entry.DurationMs),
	}
	if entry.ExitCode != nil {
		fields = append(fields, logx.Int("exit_code", *entry.ExitCode))
	}
	if entry.Succeeded() {
		log.Info("task.completed", fields...)
	} else {
		log.Warn("task.failed", fields...)
	}
	return entry
}

// RunMany runs every task with at most limit processes at once and returns
// one entry per input task, in input order. A limit < 1 is treated as 1.
func (e *Engine) RunMany(ctx context.Context, tasks []task.Task, limit int) []task.HistoryEntry {
	out := make([]task.HistoryEntry, len(tasks))
	if len(tasks) == 0 {
		return out
	}
	if limit < 1 {
		limit = 1
	}

	// The group context is never cancelled by a member: every Go func
	// returns nil so one failure cannot cut short its siblings.
	var g errgroup.Group
	g.SetLimit(limit)
	for i, t := range tasks {
		g.Go(func() error {
			out[i] = e.runSafe(ctx, t)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (e *Engine) runSafe(ctx context.Context, t task.Task) (entry task.HistoryEntry) {
	started := e.stamp()
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("task.panic", logx.String("task", t.Name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			entry = task.HistoryEntry{ID: e.newID(), TaskName: t.Name, StartedAt: started}
			entry = e.fail(entry, "", "", fmt.Sprintf("panic: %v", r))
		}
	}()
	return e.Run(ctx, t)
}

func (e *Engine) fail(entry task.HistoryEntry, stdout, stderr, reason string) task.HistoryEntry {
	e.log.Debug("task.error", logx.String("task", entry.TaskName), logx.String("reason", reason))
	return e.finish(entry, task.StatusError, nil, stdout, appendLine(stderr, reason))
}

func (e *Engine) finish(entry task.HistoryEntry, status task.Status, code *int, stdout, stderr string) task.HistoryEntry {
	entry.FinishedAt = e.stamp()
	if entry.FinishedAt.Before(entry.StartedAt) {
		entry.FinishedAt = entry.StartedAt
	}
	entry.DurationMs = entry.FinishedAt.Sub(entry.StartedAt).Milliseconds()
	entry.Status = status
	entry.ExitCode = code
	entry.Stdout = task.TruncateTail(stdout, e.cfg.OutputLimit)
	entry.Stderr = task.TruncateTail(stderr, e.cfg.OutputLimit)
	return entry
}

// stamp returns the current time in UTC at millisecond precision, the
// resolution history entries are stored with.
func (e *Engine) stamp() time.Time {
	return e.now().UTC().Truncate(time.Millisecond)
}

func appendLine(s, line string) string {
	if s == "" {
		return line
	}
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	return s + line
}
