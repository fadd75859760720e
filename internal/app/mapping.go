package app

import (
	"heartbeat/internal/config"
	"heartbeat/internal/notifier"
	"heartbeat/internal/observability/pprof"
	"heartbeat/internal/storage"
	"heartbeat/internal/task/engine"
	logx "heartbeat/pkg/logx"
)

func mapStorageConfig(p config.Paths, cfg *config.Config) storage.Config {
	return storage.Config{Driver: cfg.Storage.Driver, Path: p.StorePath(cfg.Storage)}
}

func mapEngineConfig(cfg *config.Config) engine.Config {
	return engine.Config{
		Command:          cfg.Claude.Command,
		Args:             append([]string(nil), cfg.Claude.Args...),
		MaxTurns:         cfg.Claude.MaxTurns,
		AcknowledgeRisks: cfg.Claude.AcknowledgeRisks,
	}
}

func mapNotifierConfig(cfg *config.Config) notifier.Config {
	return notifier.Config{Command: cfg.Notify.Command, On: cfg.Notify.On}
}

// mapLogConfig builds the logging config. A non-empty levelOverride (the
// --log-level flag) wins over config.md.
func mapLogConfig(p config.Paths, cfg *config.Config, levelOverride string, file bool) logx.Config {
	level := cfg.Log.Level
	if levelOverride != "" {
		level = levelOverride
	}
	return logx.Config{
		Level:   level,
		Console: true,
		File: logx.FileConfig{
			Enabled: file && cfg.Log.File,
			Path:    p.LogFile(),
		},
	}
}

func mapPprofConfig(cfg *config.Config) pprof.Config {
	return pprof.Config{
		Addr:                 cfg.Debug.PprofAddr,
		BlockProfileRate:     cfg.Debug.BlockProfileRate,
		MutexProfileFraction: cfg.Debug.MutexProfileFraction,
	}
}
