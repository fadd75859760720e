package app

import (
	"context"
	"errors"
	"time"

	"heartbeat/internal/config"
	"heartbeat/internal/storage"
	"heartbeat/internal/task"
	"heartbeat/internal/task/scheduler"
	logx "heartbeat/pkg/logx"
)

// Options configures New.
type Options struct {
	Dir string
	// LogLevel overrides config.md's log.level when set.
	LogLevel string
	// FileLog enables the JSON log under .logs/ (daemon only).
	FileLog bool
}

// App wires config, logging, storage and the runner for one heartbeat
// directory. CLI commands build one per invocation.
type App struct {
	paths config.Paths
	cfgm  *config.Manager

	log   logx.Logger
	logs  *logx.Service
	store storage.Store

	runner *Runner
	opts   Options
}

func New(opts Options) (*App, error) {
	paths := config.NewPaths(opts.Dir)

	bootLog := logx.NewConsole(opts.LogLevel).With(logx.String("comp", "config"))
	cfgm := config.NewManager(paths, bootLog)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(paths, cfg, opts.LogLevel, opts.FileLog))

	store, err := storage.Open(mapStorageConfig(paths, cfg), log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	a := &App{
		paths: paths,
		cfgm:  cfgm,
		log:   log.With(logx.String("comp", "app")),
		logs:  logSvc,
		store: store,
		opts:  opts,
	}
	a.runner = NewRunner(paths, store, log.With(logx.String("comp", "runner")))
	return a, nil
}

func (a *App) Paths() config.Paths    { return a.paths }
func (a *App) Config() *config.Config { return a.cfgm.Get() }
func (a *App) Store() storage.Store   { return a.store }
func (a *App) Runner() *Runner        { return a.runner }
func (a *App) Logger() logx.Logger    { return a.log }

func (a *App) Close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.logs != nil {
		errs = append(errs, a.logs.Close())
	}
	return errors.Join(errs...)
}

// TaskStatus is one row of `heartbeat status` / `heartbeat list`.
type TaskStatus struct {
	Task    task.Task
	LastRun *task.HistoryEntry
	NextDue time.Time
}

// Status reports every task (disabled included) with its last run and the
// next time it becomes due.
func (a *App) Status(ctx context.Context) ([]TaskStatus, error) {
	tasks, err := a.runner.Loader().LoadAll()
	if err != nil {
		return nil, err
	}
	last, err := a.store.LastRuns(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	hb := a.Config().Heartbeat

	out := make([]TaskStatus, 0, len(tasks))
	for _, t := range tasks {
		st := TaskStatus{Task: t}
		if e, ok := last[t.Name]; ok {
			st.LastRun = &e
		}
		if t.Enabled {
			st.NextDue = scheduler.NextDue(t, st.LastRun, now, hb)
		}
		out = append(out, st)
	}
	return out, nil
}
