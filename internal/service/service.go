// Package service installs the heartbeat daemon under the host's user
// service manager: a systemd user unit on Linux, a launchd agent on macOS.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	logx "heartbeat/pkg/logx"
)

const (
	UnitName     = "heartbeat.service"
	LaunchdLabel = "com.heartbeat.daemon"
)

var ErrUnsupported = errors.New("service install not supported on this platform")

// Spec describes the daemon to install.
type Spec struct {
	// Binary is the absolute path of the heartbeat executable.
	Binary string
	// Dir is the heartbeat directory passed as --dir.
	Dir string
	// LogDir receives launchd's stdout/stderr files.
	LogDir string
	// Home is the user's home directory; empty means os.UserHomeDir().
	Home string
}

func (s Spec) args() []string {
	return []string{s.Binary, "--dir", s.Dir, "start"}
}

func (s Spec) validate() error {
	if !filepath.IsAbs(s.Binary) {
		return fmt.Errorf("binary path must be absolute: %q", s.Binary)
	}
	if !filepath.IsAbs(s.Dir) {
		return fmt.Errorf("heartbeat dir must be absolute: %q", s.Dir)
	}
	return nil
}

func (s Spec) home() (string, error) {
	if s.Home != "" {
		return s.Home, nil
	}
	return os.UserHomeDir()
}

// Status is the supervisor's view of the installed daemon.
type Status struct {
	Installed bool
	Active    string
	Detail    string
	Path      string
}

// Manager installs, removes and inspects the daemon service.
type Manager interface {
	Install(ctx context.Context, spec Spec) (path string, err error)
	Uninstall(ctx context.Context, spec Spec) error
	Status(ctx context.Context, spec Spec) (Status, error)
}

// New returns the Manager for the running OS.
func New(log logx.Logger) (Manager, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch runtime.GOOS {
	case "linux":
		return &systemdUser{log: log}, nil
	case "darwin":
		return &launchd{log: log, run: runCommand}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, runtime.GOOS)
	}
}

// quoteArg quotes a command-line word for unit files and logs when it
// contains whitespace or quotes.
func quoteArg(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\"'\\") {
		return s
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

func writeFileAtomic(path string, b []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
