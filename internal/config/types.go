package config

import (
	"time"

	"heartbeat/internal/notifier"
)

// Config is the resolved content of config.md plus HEARTBEAT_* overrides.
type Config struct {
	Heartbeat    time.Duration
	HeartbeatRaw string

	Concurrency int

	HistoryRetention    time.Duration
	HistoryRetentionRaw string

	Notify  NotifyConfig
	Claude  ClaudeConfig
	Storage StorageConfig
	Log     LogConfig
	Debug   DebugConfig
}

type NotifyConfig struct {
	Command string
	On      notifier.Policy
}

// ClaudeConfig holds the process defaults every task inherits.
type ClaudeConfig struct {
	Command          string
	Args             []string
	MaxTurns         int
	AcknowledgeRisks bool
}

type StorageConfig struct {
	Driver string // file or sqlite
	Path   string // optional; relative paths are resolved against the heartbeat dir
}

type LogConfig struct {
	Level string
	// File enables the JSON log file under .logs/ for the daemon.
	File bool
}

// DebugConfig controls the daemon's pprof listener. An empty PprofAddr
// keeps it off.
type DebugConfig struct {
	PprofAddr            string
	BlockProfileRate     int
	MutexProfileFraction int
}

// Defaults mirror the config.md template written by init.
const (
	DefaultHeartbeat        = "30m"
	DefaultConcurrency      = 3
	DefaultHistoryRetention = "7d"
	DefaultNotifyOn         = "error"
	DefaultClaudeCommand    = "claude"
	DefaultMaxTurns         = 10
	DefaultStorageDriver    = "file"
	DefaultLogLevel         = "info"
)
