package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestState_RoundTripAndLiveness(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), ".daemon.json")
	if _, ok := ReadState(path); ok {
		t.Fatalf("missing state reported as present")
	}

	started := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	if err := WriteState(path, State{PID: os.Getpid(), StartedAt: started}); err != nil {
		t.Fatalf("WriteState: %v", err)
	}
	st, ok := RunningDaemon(path)
	if !ok || st.PID != os.Getpid() || !st.StartedAt.Equal(started) {
		t.Fatalf("RunningDaemon=%+v ok=%v", st, ok)
	}

	// A pid that cannot exist is treated as a leftover file.
	if err := WriteState(path, State{PID: 1 << 30, StartedAt: started}); err != nil {
		t.Fatalf("WriteState: %v", err)
	}
	if _, ok := RunningDaemon(path); ok {
		t.Fatalf("dead pid reported as running")
	}

	if err := ClearState(path); err != nil {
		t.Fatalf("ClearState: %v", err)
	}
	if err := ClearState(path); err != nil {
		t.Fatalf("ClearState twice: %v", err)
	}
}

func TestState_CorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), ".daemon.json")
	writeFile(t, path, "{not json")
	if _, ok := ReadState(path); ok {
		t.Fatalf("corrupt state reported as present")
	}
}

func TestDaemon_TicksImmediatelyAndCleansUp(t *testing.T) {
	t.Parallel()

	f := newFixture(t, `echo tick`, "")
	f.addTask(t, "alpha", "")

	d := f.app.Daemon()
	d.sdNotify = func(string) {}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	deadline := time.Now().Add(10 * time.Second)
	for len(history(t, f.app)) == 0 {
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("no tick recorded")
		}
		time.Sleep(20 * time.Millisecond)
	}
	if st, ok := ReadState(f.app.Paths().Daemon()); !ok || st.PID != os.Getpid() {
		t.Fatalf("daemon state=%+v ok=%v", st, ok)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatalf("daemon did not stop")
	}
	if d.Ticks() < 1 {
		t.Fatalf("ticks=%d", d.Ticks())
	}
	if _, err := os.Stat(f.app.Paths().Daemon()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("daemon state left behind: %v", err)
	}
}

func TestDaemon_RefusesSecondInstance(t *testing.T) {
	t.Parallel()

	f := newFixture(t, `true`, "")
	ppid := os.Getppid()
	if !ProcessRunning(ppid) {
		t.Skip("parent process not visible")
	}
	if err := WriteState(f.app.Paths().Daemon(), State{PID: ppid, StartedAt: time.Now()}); err != nil {
		t.Fatalf("WriteState: %v", err)
	}

	d := f.app.Daemon()
	d.sdNotify = func(string) {}
	if err := d.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("err=%v want ErrAlreadyRunning", err)
	}
	if st, ok := ReadState(f.app.Paths().Daemon()); !ok || st.PID != ppid {
		t.Fatalf("foreign state overwritten: %+v", st)
	}
}
