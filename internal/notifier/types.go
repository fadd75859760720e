package notifier

import (
	"fmt"
	"strings"
	"time"

	"heartbeat/internal/task"
)

type Policy string

const (
	PolicyError  Policy = "error"
	PolicyAlways Policy = "always"
	PolicyNever  Policy = "never"
)

// ParsePolicy accepts the config.md notify.on values. Empty means error.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyError, nil
	case PolicyError, PolicyAlways, PolicyNever:
		return p, nil
	default:
		return "", fmt.Errorf("notify.on: invalid policy %q (want error, always or never)", s)
	}
}

// ShouldNotify reports whether a run with the given status is delivered.
func ShouldNotify(p Policy, command string, status task.Status) bool {
	if strings.TrimSpace(command) == "" {
		return false
	}
	switch p {
	case PolicyAlways:
		return true
	case PolicyError:
		return status != task.StatusSuccess
	default:
		return false
	}
}

// Config controls the command sink.
type Config struct {
	Command string
	On      Policy

	Timeout       time.Duration // per attempt; 0 means 30s
	RatePerSec    int           // 0 means 3
	RetryMax      int           // extra attempts after the first
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
}

const (
	defaultTimeout    = 30 * time.Second
	defaultRatePerSec = 3
)

func (c Config) withDefaults() Config {
	if c.On == "" {
		c.On = PolicyError
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = defaultRatePerSec
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 10 * time.Second
	}
	return c
}
