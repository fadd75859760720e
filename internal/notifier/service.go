package notifier

import (
	"context"
	"math/rand"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"heartbeat/internal/task"
	logx "heartbeat/pkg/logx"
)

// Sink receives every persisted run. Implementations decide whether to
// deliver and swallow their own failures.
type Sink interface {
	Notify(ctx context.Context, e task.HistoryEntry)
}

// CommandSink runs the configured shell command for each notifiable run.
type CommandSink struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
	log     logx.Logger

	shell   string
	environ func() []string
}

func New(cfg Config, log logx.Logger) *CommandSink {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &CommandSink{log: log, shell: "/bin/sh", environ: os.Environ}
	s.Apply(cfg)
	return s
}

// Apply swaps the configuration. It is safe to call concurrently with Notify.
func (s *CommandSink) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

func (s *CommandSink) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.TrimSpace(s.cfg.Command) != "" && s.cfg.On != PolicyNever
}

// Notify delivers e if the policy allows it and blocks until the command
// finishes, times out or exhausts its retries.
func (s *CommandSink) Notify(ctx context.Context, e task.HistoryEntry) {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	s.mu.Unlock()

	if !ShouldNotify(cfg.On, cfg.Command, e.Status) {
		return
	}
	log := s.log.With(logx.String("task", e.TaskName), logx.String("status", string(e.Status)))
	log.Info("notify.sending")

	env := append(s.environ(), Env(e)...)
	maxAttempts := 1 + cfg.RetryMax

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			log.Warn("notify.dropped", logx.Err(err))
			return
		}

		callCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		cmd := exec.CommandContext(callCtx, s.shell, "-c", cfg.Command)
		cmd.Env = env
		cmd.WaitDelay = time.Second
		out, err := cmd.CombinedOutput()
		cancel()
		if err == nil {
			return
		}
		lastErr = err
		log.Debug("notify.attempt_failed", logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", maxAttempts), logx.String("output", task.TruncateTail(string(out), 500)))

		if attempt >= maxAttempts {
			break
		}
		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			log.Warn("notify.failed", logx.Err(ctx.Err()))
			return
		}
	}
	log.Error("notify.failed", logx.Err(lastErr), logx.Int("attempts", maxAttempts))
}

// Env describes e as TASK_* variables.
func Env(e task.HistoryEntry) []string {
	code := ""
	if e.ExitCode != nil {
		code = strconv.Itoa(*e.ExitCode)
	}
	return []string{
		"TASK_NAME=" + e.TaskName,
		"TASK_STATUS=" + string(e.Status),
		"TASK_STARTED_AT=" + task.FormatTimestamp(e.StartedAt),
		"TASK_FINISHED_AT=" + task.FormatTimestamp(e.FinishedAt),
		"TASK_DURATION_MS=" + strconv.FormatInt(e.DurationMs, 10),
		"TASK_EXIT_CODE=" + code,
		"TASK_RUN_ID=" + e.ID,
	}
}

func retryDelay(cfg Config, attempt int) time.Duration {
	// attempt starts at 1 (first attempt), delay is for the NEXT attempt.
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	// Jitter 0.7..1.3
	j := 0.7 + rand.Float64()*0.6
	d = time.Duration(float64(d) * j)
	if d < 0 {
		return 0
	}
	if d > cfg.RetryMaxDelay {
		d = cfg.RetryMaxDelay
	}
	return d
}
