package app

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"heartbeat/internal/config"
	"heartbeat/internal/task/engine"
)

// Spawned describes a detached child started by Spawn.
type Spawned struct {
	PID     int
	LogPath string
}

// Spawn re-executes the current binary with args in its own session,
// appending its output to .logs/<logName>_<stamp>.log. The child gets the
// cleaned task environment and the heartbeat directory as --dir.
func Spawn(paths config.Paths, logName string, args ...string) (Spawned, error) {
	self, err := os.Executable()
	if err != nil {
		return Spawned{}, fmt.Errorf("locate executable: %w", err)
	}
	if err := os.MkdirAll(paths.Logs(), 0o755); err != nil {
		return Spawned{}, err
	}
	logPath := filepath.Join(paths.Logs(), fmt.Sprintf("%s_%s.log", logName, time.Now().UTC().Format("20060102T150405Z")))
	out, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return Spawned{}, err
	}
	defer out.Close()

	cmd := exec.Command(self, append([]string{"--dir", paths.Dir}, args...)...)
	cmd.Dir = paths.Dir
	cmd.Env = engine.CleanEnv(os.Environ())
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.SysProcAttr = detachAttr()
	if err := cmd.Start(); err != nil {
		return Spawned{}, fmt.Errorf("spawn %s: %w", filepath.Base(self), err)
	}
	pid := cmd.Process.Pid
	_ = cmd.Process.Release()
	return Spawned{PID: pid, LogPath: logPath}, nil
}
