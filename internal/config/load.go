package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
	yaml "go.yaml.in/yaml/v3"

	"heartbeat/internal/notifier"
	"heartbeat/internal/task"
)

// EnvPrefix scopes environment overrides: HEARTBEAT_CONCURRENCY,
// HEARTBEAT_CLAUDE_COMMAND, HEARTBEAT_NOTIFY_ON, ...
const EnvPrefix = "HEARTBEAT"

// Load reads config.md in dir. A missing file yields the defaults.
// Present but malformed values are errors, never silently defaulted.
func Load(dir string) (*Config, error) {
	return LoadFile(NewPaths(dir).Config())
}

func LoadFile(path string) (*Config, error) {
	v := newViper()

	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		front, _, err := task.SplitFrontmatter(b)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		var raw map[string]any
		if err := yaml.Unmarshal(front, &raw); err != nil {
			return nil, fmt.Errorf("%s: yaml: %w", path, err)
		}
		if m, ok := normalizeYAML(raw).(map[string]any); ok && len(m) > 0 {
			if err := v.MergeConfigMap(m); err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("heartbeat", DefaultHeartbeat)
	v.SetDefault("concurrency", DefaultConcurrency)
	v.SetDefault("history_retention", DefaultHistoryRetention)
	v.SetDefault("notify.command", "")
	v.SetDefault("notify.on", DefaultNotifyOn)
	v.SetDefault("claude.command", DefaultClaudeCommand)
	v.SetDefault("claude.args", []string{})
	v.SetDefault("claude.max_turns", DefaultMaxTurns)
	v.SetDefault("claude.acknowledge_risks", false)
	v.SetDefault("storage.driver", DefaultStorageDriver)
	v.SetDefault("storage.path", "")
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.file", true)
	v.SetDefault("debug.pprof_addr", "")
	v.SetDefault("debug.block_profile_rate", 0)
	v.SetDefault("debug.mutex_profile_fraction", 0)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var (
		cfg Config
		err error
	)

	cfg.HeartbeatRaw = strings.TrimSpace(v.GetString("heartbeat"))
	if cfg.Heartbeat, err = task.ParseDurationField("heartbeat", cfg.HeartbeatRaw); err != nil {
		return nil, err
	}
	if cfg.Heartbeat <= 0 {
		return nil, fmt.Errorf("heartbeat: must be > 0")
	}

	cfg.HistoryRetentionRaw = strings.TrimSpace(v.GetString("history_retention"))
	if cfg.HistoryRetention, err = task.ParseDurationField("history_retention", cfg.HistoryRetentionRaw); err != nil {
		return nil, err
	}

	if cfg.Concurrency, err = intField(v, "concurrency"); err != nil {
		return nil, err
	}
	if cfg.Concurrency < 1 {
		return nil, fmt.Errorf("concurrency: must be >= 1, got %d", cfg.Concurrency)
	}

	cfg.Notify.Command = strings.TrimSpace(v.GetString("notify.command"))
	if cfg.Notify.On, err = notifier.ParsePolicy(v.GetString("notify.on")); err != nil {
		return nil, err
	}

	cfg.Claude.Command = strings.TrimSpace(v.GetString("claude.command"))
	if cfg.Claude.Command == "" {
		return nil, fmt.Errorf("claude.command: must not be empty")
	}
	if cfg.Claude.Args, err = cast.ToStringSliceE(v.Get("claude.args")); err != nil {
		return nil, fmt.Errorf("claude.args: %w", err)
	}
	if cfg.Claude.MaxTurns, err = intField(v, "claude.max_turns"); err != nil {
		return nil, err
	}
	if cfg.Claude.AcknowledgeRisks, err = cast.ToBoolE(v.Get("claude.acknowledge_risks")); err != nil {
		return nil, fmt.Errorf("claude.acknowledge_risks: %w", err)
	}

	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(v.GetString("storage.driver")))
	switch cfg.Storage.Driver {
	case "file", "sqlite", "sqlite3":
	default:
		return nil, fmt.Errorf("storage.driver: unknown driver %q (want file or sqlite)", cfg.Storage.Driver)
	}
	cfg.Storage.Path = strings.TrimSpace(v.GetString("storage.path"))

	cfg.Log.Level = strings.TrimSpace(v.GetString("log.level"))
	if cfg.Log.File, err = cast.ToBoolE(v.Get("log.file")); err != nil {
		return nil, fmt.Errorf("log.file: %w", err)
	}

	cfg.Debug.PprofAddr = strings.TrimSpace(v.GetString("debug.pprof_addr"))
	if cfg.Debug.BlockProfileRate, err = intField(v, "debug.block_profile_rate"); err != nil {
		return nil, err
	}
	if cfg.Debug.MutexProfileFraction, err = intField(v, "debug.mutex_profile_fraction"); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// intField reads a whole number. cast alone would truncate 2.5 to 2 and
// turn true into 1; both are malformed here.
func intField(v *viper.Viper, key string) (int, error) {
	raw := v.Get(key)
	invalid := fmt.Errorf("%s: invalid integer %v", key, raw)
	switch x := raw.(type) {
	case string:
		raw = strings.TrimSpace(x)
	case bool:
		return 0, invalid
	case float32:
		if float64(x) != math.Trunc(float64(x)) {
			return 0, invalid
		}
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) {
			return 0, invalid
		}
	}
	n, err := cast.ToIntE(raw)
	if err != nil {
		return 0, invalid
	}
	return n, nil
}

// normalizeYAML ensures all map keys are strings so viper can merge the map.
func normalizeYAML(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = normalizeYAML(v)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[k] = normalizeYAML(v)
		}
		return m
	case []any:
		for i := range x {
			x[i] = normalizeYAML(x[i])
		}
		return x
	default:
		return in
	}
}
