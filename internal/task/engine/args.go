package engine

import (
	"strconv"
	"strings"

	"heartbeat/internal/task"
)

// DangerousFlags are stripped from the argument list unless risks are
// acknowledged in config.md or the task file.
var DangerousFlags = []string{
	"--dangerously-skip-permissions",
}

// SanitizeArgs removes deny-listed flags (both "--flag" and "--flag=value"
// forms) unless acknowledgeRisks is set. It returns the kept args and the
// removed ones.
func SanitizeArgs(args []string, acknowledgeRisks bool) (kept, stripped []string) {
	if acknowledgeRisks {
		return append([]string(nil), args...), nil
	}
	kept = make([]string, 0, len(args))
	for _, a := range args {
		if isDangerous(a) {
			stripped = append(stripped, a)
			continue
		}
		kept = append(kept, a)
	}
	return kept, stripped
}

func isDangerous(arg string) bool {
	for _, f := range DangerousFlags {
		if arg == f || strings.HasPrefix(arg, f+"=") {
			return true
		}
	}
	return false
}

// BuildInvocation merges the global defaults with t's overrides.
//
// Layout: <command> <prompt-flag> <prompt> [--max-turns N] <global args> <task args>.
// A MaxTurns <= 0 passes no turn limit.
func BuildInvocation(cfg Config, t task.Task) Invocation {
	cfg = cfg.withDefaults()
	o := t.Overrides

	inv := Invocation{Command: cfg.Command, MaxTurns: cfg.MaxTurns}
	if o.Command != nil && strings.TrimSpace(*o.Command) != "" {
		inv.Command = strings.TrimSpace(*o.Command)
	}
	if o.MaxTurns != nil {
		inv.MaxTurns = *o.MaxTurns
	}
	ack := cfg.AcknowledgeRisks
	if o.AcknowledgeRisks != nil {
		ack = *o.AcknowledgeRisks
	}

	merged := make([]string, 0, len(cfg.Args)+len(o.Args))
	merged = append(merged, cfg.Args...)
	merged = append(merged, o.Args...)
	extra, stripped := SanitizeArgs(merged, ack)
	inv.Stripped = stripped

	args := make([]string, 0, len(extra)+4)
	if t.Prompt != "" {
		args = append(args, cfg.PromptFlag, t.Prompt)
	}
	if inv.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(inv.MaxTurns))
	}
	inv.Args = append(args, extra...)
	return inv
}
