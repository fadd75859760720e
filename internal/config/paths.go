package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	ConfigFile = "config.md"
	HistoryDir = ".history"
	LockFile   = ".lock"
	DaemonFile = ".daemon.json"
	LogsDir    = ".logs"
	SQLiteFile = "history.db"

	// EnvDir overrides the default heartbeat directory.
	EnvDir = "HEARTBEAT_DIR"
)

// Paths locates everything inside one heartbeat directory.
type Paths struct {
	Dir string
}

// ResolveDir picks the heartbeat directory: explicit flag, then
// $HEARTBEAT_DIR, then ~/.heartbeat.
func ResolveDir(flag string) (string, error) {
	dir := strings.TrimSpace(flag)
	if dir == "" {
		dir = strings.TrimSpace(os.Getenv(EnvDir))
	}
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".heartbeat"), nil
	}
	if dir == "~" || strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, strings.TrimPrefix(dir[1:], "/"))
	}
	return filepath.Abs(dir)
}

func NewPaths(dir string) Paths { return Paths{Dir: dir} }

func (p Paths) Config() string  { return filepath.Join(p.Dir, ConfigFile) }
func (p Paths) History() string { return filepath.Join(p.Dir, HistoryDir) }
func (p Paths) Lock() string    { return filepath.Join(p.Dir, LockFile) }
func (p Paths) Daemon() string  { return filepath.Join(p.Dir, DaemonFile) }
func (p Paths) Logs() string    { return filepath.Join(p.Dir, LogsDir) }

// LogFile is the daemon's JSON log.
func (p Paths) LogFile() string { return filepath.Join(p.Logs(), "heartbeat.log") }

// StorePath returns the storage location for cfg: the history directory for
// the file driver, the database file for sqlite.
func (p Paths) StorePath(cfg StorageConfig) string {
	if path := strings.TrimSpace(cfg.Path); path != "" {
		if filepath.IsAbs(path) {
			return path
		}
		return filepath.Join(p.Dir, path)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "sqlite", "sqlite3":
		return filepath.Join(p.Dir, SQLiteFile)
	}
	return p.History()
}
