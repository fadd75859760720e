package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

var ErrAlreadyRunning = errors.New("daemon already running")

// State is the .daemon.json body of a running daemon.
type State struct {
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"startedAt"`
}

// ReadState returns the recorded daemon state. ok is false when no state is
// recorded or the file is unreadable.
func ReadState(path string) (State, bool) {
	b, err := os.ReadFile(path)
	if err != nil {
		return State{}, false
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil || st.PID <= 0 {
		return State{}, false
	}
	return st, true
}

func WriteState(path string, st State) error {
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := fmt.Sprintf("%s.%d.tmp", path, os.Getpid())
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func ClearState(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// RunningDaemon returns the recorded daemon state if its process is alive.
// A state file left by a dead process is reported as not running.
func RunningDaemon(path string) (State, bool) {
	st, ok := ReadState(path)
	if !ok || !ProcessRunning(st.PID) {
		return State{}, false
	}
	return st, true
}
