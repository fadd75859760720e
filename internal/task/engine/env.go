package engine

import (
	"sort"
	"strings"
)

// nestedPrefixes are host variables that make the invoked CLI believe it runs
// inside another session. They are never inherited by spawned tasks.
var nestedPrefixes = []string{"CLAUDE_", "MCP_", "ANTHROPIC_"}

// buildEnv returns host minus nested-session variables, with extra layered on
// top (extra wins).
func buildEnv(host []string, extra map[string]string) []string {
	out := make([]string, 0, len(host)+len(extra))
	for _, kv := range host {
		k, _, _ := strings.Cut(kv, "=")
		if hasNestedPrefix(k) {
			continue
		}
		if _, override := extra[k]; override {
			continue
		}
		out = append(out, kv)
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+extra[k])
	}
	return out
}

func hasNestedPrefix(k string) bool {
	for _, p := range nestedPrefixes {
		if strings.HasPrefix(k, p) {
			return true
		}
	}
	return false
}

// CleanEnv returns host without nested-session variables.
func CleanEnv(host []string) []string { return buildEnv(host, nil) }
