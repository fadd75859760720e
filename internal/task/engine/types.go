package engine

import "time"

// Config controls how tasks are turned into processes.
//
// The app layer maps config.md's claude block into this struct; per-task
// overrides are applied on top at run time.
type Config struct {
	Command          string
	Args             []string
	MaxTurns         int
	AcknowledgeRisks bool

	// PromptFlag precedes the task prompt on the command line.
	// Empty means "-p".
	PromptFlag string

	// OutputLimit is the number of trailing characters kept per stream.
	// 0 means DefaultOutputLimit.
	OutputLimit int

	// KillGrace bounds how long Run waits for a killed process to be reaped
	// before giving up on it. 0 means 5s.
	KillGrace time.Duration
}

const (
	DefaultOutputLimit = 10_000
	defaultKillGrace   = 5 * time.Second
	defaultPromptFlag  = "-p"
)

func (c Config) withDefaults() Config {
	if c.OutputLimit <= 0 {
		c.OutputLimit = DefaultOutputLimit
	}
	if c.KillGrace <= 0 {
		c.KillGrace = defaultKillGrace
	}
	if c.PromptFlag == "" {
		c.PromptFlag = defaultPromptFlag
	}
	return c
}

// Invocation is a fully resolved process command line for one task.
type Invocation struct {
	Command  string
	Args     []string
	MaxTurns int
	// Stripped lists deny-listed flags removed by the safety filter.
	Stripped []string
}
