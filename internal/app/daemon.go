package app

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	sddaemon "github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"heartbeat/internal/config"
	"heartbeat/internal/observability/pprof"
	"heartbeat/internal/runtime/supervisor"
	"heartbeat/internal/task/scheduler"
	logx "heartbeat/pkg/logx"
)

// shutdownGrace bounds how long Run waits for an in-flight tick after its
// context is cancelled. Cancelled tasks are killed, so this is mostly the
// time to record their entries.
const shutdownGrace = 30 * time.Second

// Daemon ticks on clock-aligned heartbeat boundaries until its context is
// cancelled. It owns .daemon.json for its lifetime.
type Daemon struct {
	app *App
	log logx.Logger

	pid      int
	now      func() time.Time
	sdNotify func(state string)
	pprof    *pprof.Server

	mu    sync.Mutex
	cron  *cron.Cron
	entry cron.EntryID
	every time.Duration
	job   cron.Job

	ticks atomic.Int64
}

func (a *App) Daemon() *Daemon {
	d := &Daemon{
		app: a,
		log: a.log.With(logx.String("comp", "daemon")),
		pid: os.Getpid(),
		now: time.Now,
	}
	d.pprof = pprof.New(d.log.With(logx.String("comp", "pprof")))
	d.sdNotify = func(state string) {
		sent, err := sddaemon.SdNotify(false, state)
		if err != nil {
			d.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
			return
		}
		if sent {
			d.log.Debug("sd_notify sent", logx.String("state", state))
		}
	}
	return d
}

// Ticks is the number of ticks started so far.
func (d *Daemon) Ticks() int64 { return d.ticks.Load() }

func (d *Daemon) Run(ctx context.Context) error {
	statePath := d.app.paths.Daemon()
	if st, ok := RunningDaemon(statePath); ok && st.PID != d.pid {
		return fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, st.PID)
	}
	if err := WriteState(statePath, State{PID: d.pid, StartedAt: d.now().UTC().Truncate(time.Millisecond)}); err != nil {
		return fmt.Errorf("write daemon state: %w", err)
	}
	defer func() {
		if st, ok := ReadState(statePath); ok && st.PID == d.pid {
			if err := ClearState(statePath); err != nil {
				d.log.Warn("daemon state cleanup failed", logx.Err(err))
			}
		}
	}()

	sup := supervisor.New(ctx, supervisor.WithLogger(d.log))
	runCtx := sup.Context()

	cl := cronLogger{log: d.log}
	d.job = cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).
		Then(cron.FuncJob(func() { d.tick(runCtx) }))
	d.cron = cron.New(cron.WithLocation(time.Local), cron.WithLogger(cl))

	cfg := d.app.Config()
	d.reschedule(cfg.Heartbeat)
	d.cron.Start()
	d.pprof.Apply(runCtx, mapPprofConfig(cfg))

	sub := d.app.cfgm.Subscribe(4)
	sup.GoRestart("config.watch", supervisor.RestartPolicy{}, d.app.cfgm.Watch)
	current := cfg
	sup.Go("config.apply", func(ctx context.Context) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case next, ok := <-sub:
				if !ok {
					return nil
				}
				d.apply(current, next)
				current = next
			}
		}
	})
	// The first tick runs right away; later ones follow the aligned schedule.
	sup.Go("tick.initial", func(ctx context.Context) error {
		d.job.Run()
		return nil
	})

	d.sdNotify(sddaemon.SdNotifyReady)
	d.log.Info("daemon.started",
		logx.Int("pid", d.pid),
		logx.String("heartbeat", cfg.HeartbeatRaw),
		logx.Time("next_tick", d.nextTick()),
	)

	<-runCtx.Done()
	d.sdNotify(sddaemon.SdNotifyStopping)
	d.log.Info("daemon.stopping")

	stopped := d.cron.Stop()
	select {
	case <-stopped.Done():
	case <-time.After(shutdownGrace):
		d.log.Warn("daemon.stop_timeout", logx.Duration("grace", shutdownGrace))
	}
	waitCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := sup.Stop(waitCtx); err != nil {
		d.log.Warn("daemon.supervisor_stop", logx.Err(err))
	}
	d.app.cfgm.Unsubscribe(sub)
	d.pprof.Stop(context.Background())
	d.log.Info("daemon.stopped", logx.Int64("ticks", d.ticks.Load()))
	return nil
}

func (d *Daemon) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	d.ticks.Add(1)
	start := time.Now()
	rep, err := d.app.runner.Tick(ctx)
	if err != nil {
		d.log.Error("tick.failed", logx.Err(err), logx.Duration("dur", time.Since(start)))
		return
	}
	if rep.Skipped || len(rep.Results) == 0 {
		return
	}
	failed := 0
	for _, e := range rep.Results {
		if !e.Succeeded() {
			failed++
		}
	}
	d.log.Info("tick.completed",
		logx.Int("ran", len(rep.Results)),
		logx.Int("failed", failed),
		logx.Int("evicted", rep.Evicted),
		logx.Duration("dur", time.Since(start)),
		logx.Time("next_tick", d.nextTick()),
	)
}

// apply reacts to a reloaded config.md. Storage changes need a restart; the
// rest of config is re-read by every tick anyway.
func (d *Daemon) apply(prev, next *config.Config) {
	if next.Heartbeat != prev.Heartbeat {
		d.reschedule(next.Heartbeat)
		d.log.Info("daemon.rescheduled", logx.String("heartbeat", next.HeartbeatRaw), logx.Time("next_tick", d.nextTick()))
	}
	if next.Log != prev.Log {
		d.app.logs.Apply(mapLogConfig(d.app.paths, next, d.app.opts.LogLevel, d.app.opts.FileLog))
	}
	if next.Debug != prev.Debug {
		d.pprof.Apply(context.Background(), mapPprofConfig(next))
	}
	sections, _ := config.SummarizeChange(prev, next)
	if slices.Contains(sections, "storage") {
		d.log.Warn("storage config changed; restart required for changes to take effect")
	}
}

func (d *Daemon) reschedule(every time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.entry != 0 {
		d.cron.Remove(d.entry)
	}
	d.every = every
	d.entry = d.cron.Schedule(scheduler.AlignedSchedule{Every: every}, d.job)
}

func (d *Daemon) nextTick() time.Time {
	d.mu.Lock()
	every := d.every
	d.mu.Unlock()
	return scheduler.AlignedSchedule{Every: every}.Next(d.now())
}

// cronLogger routes robfig/cron's logging into logx.
type cronLogger struct {
	log logx.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, logx.Any("kv", keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, logx.Err(err), logx.Any("kv", keysAndValues))
}
