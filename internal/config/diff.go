package config

import (
	"reflect"

	logx "heartbeat/pkg/logx"
)

// SummarizeChange returns the changed config sections and safe structured
// attrs for logging. The notify command is never logged since it may embed
// credentials.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 12)

	if oldCfg.Heartbeat != newCfg.Heartbeat {
		changed = append(changed, "heartbeat")
		attrs = append(attrs, logx.String("heartbeat", newCfg.HeartbeatRaw))
	}
	if oldCfg.Concurrency != newCfg.Concurrency {
		changed = append(changed, "concurrency")
		attrs = append(attrs, logx.Int("concurrency", newCfg.Concurrency))
	}
	if oldCfg.HistoryRetention != newCfg.HistoryRetention {
		changed = append(changed, "history_retention")
		attrs = append(attrs, logx.String("history_retention", newCfg.HistoryRetentionRaw))
	}
	if oldCfg.Notify != newCfg.Notify {
		changed = append(changed, "notify")
		attrs = append(attrs,
			logx.Bool("notify.command_set", newCfg.Notify.Command != ""),
			logx.String("notify.on", string(newCfg.Notify.On)),
		)
	}
	if !reflect.DeepEqual(oldCfg.Claude, newCfg.Claude) {
		changed = append(changed, "claude")
		attrs = append(attrs,
			logx.String("claude.command", newCfg.Claude.Command),
			logx.Int("claude.args", len(newCfg.Claude.Args)),
			logx.Int("claude.max_turns", newCfg.Claude.MaxTurns),
			logx.Bool("claude.acknowledge_risks", newCfg.Claude.AcknowledgeRisks),
		)
	}
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.String("storage.driver", newCfg.Storage.Driver))
	}
	if oldCfg.Log != newCfg.Log {
		changed = append(changed, "log")
		attrs = append(attrs, logx.String("log.level", newCfg.Log.Level), logx.Bool("log.file", newCfg.Log.File))
	}
	if oldCfg.Debug != newCfg.Debug {
		changed = append(changed, "debug")
		attrs = append(attrs, logx.String("debug.pprof_addr", newCfg.Debug.PprofAddr))
	}
	return changed, attrs
}
