package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"heartbeat/internal/config"
	"heartbeat/internal/lock"
	"heartbeat/internal/notifier"
	"heartbeat/internal/secrets"
	"heartbeat/internal/storage"
	"heartbeat/internal/task"
	"heartbeat/internal/task/engine"
	"heartbeat/internal/task/scheduler"
	logx "heartbeat/pkg/logx"
)

// Executor runs tasks; *engine.Engine is the production implementation.
type Executor interface {
	Run(ctx context.Context, t task.Task) task.HistoryEntry
	RunMany(ctx context.Context, tasks []task.Task, limit int) []task.HistoryEntry
}

// TickReport describes one tick.
type TickReport struct {
	// Skipped is set when another tick held the lock.
	Skipped bool
	Loaded  int
	Due     []string
	Results []task.HistoryEntry
	Evicted int
}

// Runner coordinates ticks and manual runs for one heartbeat directory.
//
// Config and tasks are re-read on every tick so edits take effect without a
// restart. The store is opened once by the caller.
type Runner struct {
	paths  config.Paths
	log    logx.Logger
	locker lock.Locker
	store  storage.Store
	loader *task.Loader

	loadConfig  func() (*config.Config, error)
	newExecutor func(cfg *config.Config) Executor
	newSink     func(cfg *config.Config) notifier.Sink
	now         func() time.Time
}

func NewRunner(paths config.Paths, store storage.Store, log logx.Logger) *Runner {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Runner{
		paths:      paths,
		log:        log,
		locker:     lock.NewFileLock(paths.Lock(), lock.DefaultStaleAfter, log.With(logx.String("comp", "lock"))),
		store:      store,
		loader:     task.NewLoader(paths.Dir),
		loadConfig: func() (*config.Config, error) { return config.Load(paths.Dir) },
		now:        time.Now,
	}
	r.newExecutor = func(cfg *config.Config) Executor {
		return engine.New(mapEngineConfig(cfg), r.log.With(logx.String("comp", "engine")), secrets.New())
	}
	r.newSink = func(cfg *config.Config) notifier.Sink {
		return notifier.New(mapNotifierConfig(cfg), r.log.With(logx.String("comp", "notifier")))
	}
	return r
}

func (r *Runner) Loader() *task.Loader { return r.loader }

// Tick runs one cycle:
//  1. acquire the lock (contention skips the tick)
//  2. load config, enabled tasks and last runs
//  3. compute the due set
//  4. run it under the concurrency cap
//  5. persist each entry, then notify
//  6. evict old history
//  7. release the lock on every path
func (r *Runner) Tick(ctx context.Context) (rep TickReport, err error) {
	ok, err := r.locker.TryAcquire(ctx)
	if err != nil {
		return rep, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		r.log.Info("tick.skipped", logx.String("reason", "lock held"))
		rep.Skipped = true
		return rep, nil
	}
	defer func() {
		if rerr := r.locker.Release(); rerr != nil {
			r.log.Warn("lock.release_failed", logx.Err(rerr))
			err = errors.Join(err, fmt.Errorf("release lock: %w", rerr))
		}
	}()

	cfg, err := r.loadConfig()
	if err != nil {
		return rep, err
	}
	tasks, err := r.loader.Load()
	if err != nil {
		return rep, fmt.Errorf("load tasks: %w", err)
	}
	rep.Loaded = len(tasks)
	if len(tasks) == 0 {
		r.log.Debug("tick.idle", logx.String("reason", "no enabled tasks"))
		return rep, nil
	}

	last, err := r.store.LastRuns(ctx)
	if err != nil {
		return rep, fmt.Errorf("read history: %w", err)
	}
	due := scheduler.DueTasks(tasks, last, r.now(), cfg.Heartbeat)
	for _, t := range due {
		rep.Due = append(rep.Due, t.Name)
	}
	if len(due) == 0 {
		r.log.Debug("tick.idle", logx.String("reason", "nothing due"), logx.Int("tasks", len(tasks)))
		return rep, nil
	}
	r.log.Info("tick.dispatch", logx.Strings("due", rep.Due), logx.Int("concurrency", cfg.Concurrency))

	rep.Results = r.newExecutor(cfg).RunMany(ctx, due, cfg.Concurrency)

	// Results are recorded even when ctx was cancelled mid-run.
	persistCtx := context.WithoutCancel(ctx)
	sink := r.newSink(cfg)
	var errs []error
	for _, e := range rep.Results {
		if perr := r.store.Append(persistCtx, e); perr != nil {
			r.log.Error("history.append_failed", logx.String("task", e.TaskName), logx.Err(perr))
			errs = append(errs, fmt.Errorf("persist %s: %w", e.TaskName, perr))
		}
		sink.Notify(persistCtx, e)
	}

	n, eerr := r.store.Evict(persistCtx, cfg.HistoryRetention)
	if eerr != nil {
		r.log.Warn("history.evict_failed", logx.Err(eerr))
		errs = append(errs, fmt.Errorf("evict history: %w", eerr))
	}
	rep.Evicted = n
	if n > 0 {
		r.log.Debug("history.evicted", logx.Int("count", n))
	}
	return rep, errors.Join(errs...)
}

// RunTask runs one task by name immediately: no lock, no schedule check.
// Disabled tasks can be run this way.
func (r *Runner) RunTask(ctx context.Context, name string) (task.HistoryEntry, error) {
	cfg, err := r.loadConfig()
	if err != nil {
		return task.HistoryEntry{}, err
	}
	t, err := r.loader.Find(name)
	if err != nil {
		return task.HistoryEntry{}, err
	}

	e := r.newExecutor(cfg).Run(ctx, t)
	persistCtx := context.WithoutCancel(ctx)
	if err := r.store.Append(persistCtx, e); err != nil {
		return e, fmt.Errorf("persist %s: %w", e.TaskName, err)
	}
	r.newSink(cfg).Notify(persistCtx, e)
	return e, nil
}
