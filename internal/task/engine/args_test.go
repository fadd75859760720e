package engine

import (
	"reflect"
	"testing"

	"heartbeat/internal/task"
	logx "heartbeat/pkg/logx"
)

func testLogger() logx.Logger { return logx.Nop() }

func ptr[T any](v T) *T { return &v }

func TestBuildInvocation(t *testing.T) {
	t.Parallel()

	base := Config{
		Command:  "claude",
		Args:     []string{"--verbose", "--dangerously-skip-permissions"},
		MaxTurns: 10,
	}

	tests := []struct {
		name         string
		cfg          Config
		overrides    task.Overrides
		wantCmd      string
		wantArgs     []string
		wantStripped []string
	}{
		{
			name:         "defaults strip dangerous flag",
			cfg:          base,
			wantCmd:      "claude",
			wantArgs:     []string{"-p", "hi", "--max-turns", "10", "--verbose"},
			wantStripped: []string{"--dangerously-skip-permissions"},
		},
		{
			name:      "task acknowledges risks",
			cfg:       base,
			overrides: task.Overrides{AcknowledgeRisks: ptr(true)},
			wantCmd:   "claude",
			wantArgs:  []string{"-p", "hi", "--max-turns", "10", "--verbose", "--dangerously-skip-permissions"},
		},
		{
			name:      "task args appended and turn cap disabled",
			cfg:       Config{Command: "claude", Args: []string{"--a"}, MaxTurns: 10},
			overrides: task.Overrides{Args: []string{"--b"}, MaxTurns: ptr(0), Command: ptr("other")},
			wantCmd:   "other",
			wantArgs:  []string{"-p", "hi", "--a", "--b"},
		},
		{
			name:         "equals form is stripped",
			cfg:          Config{Command: "claude", Args: []string{"--dangerously-skip-permissions=true"}},
			wantCmd:      "claude",
			wantArgs:     []string{"-p", "hi"},
			wantStripped: []string{"--dangerously-skip-permissions=true"},
		},
		{
			name:         "global acknowledge can be revoked per task",
			cfg:          Config{Command: "claude", Args: []string{"--dangerously-skip-permissions"}, AcknowledgeRisks: true},
			overrides:    task.Overrides{AcknowledgeRisks: ptr(false)},
			wantCmd:      "claude",
			wantArgs:     []string{"-p", "hi"},
			wantStripped: []string{"--dangerously-skip-permissions"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			inv := BuildInvocation(tt.cfg, task.Task{Name: "x", Prompt: "hi", Overrides: tt.overrides})
			if inv.Command != tt.wantCmd {
				t.Fatalf("command=%q want %q", inv.Command, tt.wantCmd)
			}
			if !reflect.DeepEqual(inv.Args, tt.wantArgs) {
				t.Fatalf("args=%q want %q", inv.Args, tt.wantArgs)
			}
			if !reflect.DeepEqual(inv.Stripped, tt.wantStripped) {
				t.Fatalf("stripped=%q want %q", inv.Stripped, tt.wantStripped)
			}
		})
	}
}

func TestExtractMetadata(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		stdout    string
		stderr    string
		wantTurns int
		wantHit   bool
	}{
		{name: "absent", stdout: "all good"},
		{name: "stdout", stdout: "Error: Reached max turns (12)", wantTurns: 12, wantHit: true},
		{name: "stderr fallback", stderr: "Reached max turns (3)\n", wantTurns: 3, wantHit: true},
		{name: "last marker wins", stdout: "Reached max turns (1) ... Reached max turns (2)", wantTurns: 2, wantHit: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			turns, hit := ExtractMetadata(tt.stdout, tt.stderr)
			if hit != tt.wantHit {
				t.Fatalf("hit=%v want %v", hit, tt.wantHit)
			}
			if !tt.wantHit {
				if turns != nil {
					t.Fatalf("turns=%d want nil", *turns)
				}
				return
			}
			if turns == nil || *turns != tt.wantTurns {
				t.Fatalf("turns=%v want %d", turns, tt.wantTurns)
			}
		})
	}
}

func TestTailBuffer(t *testing.T) {
	t.Parallel()

	b := newTailBuffer(4)
	for _, s := range []string{"abc", "defgh", "ijklmnopqrstuvwxyz"} {
		_, _ = b.Write([]byte(s))
	}
	if got := task.TruncateTail(b.String(), 4); got != "wxyz" {
		t.Fatalf("tail=%q", got)
	}
	if got := task.TruncateTail("héllo", 4); got != "éllo" {
		t.Fatalf("rune tail=%q", got)
	}
	if got := task.TruncateTail("ab", 10); got != "ab" {
		t.Fatalf("short=%q", got)
	}
}

func TestBuildEnv(t *testing.T) {
	t.Parallel()

	got := buildEnv(
		[]string{"PATH=/bin", "CLAUDE_X=1", "MCP_Y=2", "ANTHROPIC_API_KEY=k", "FOO=old"},
		map[string]string{"FOO": "new", "BAR": "b"},
	)
	want := []string{"PATH=/bin", "BAR=b", "FOO=new"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("env=%q want %q", got, want)
	}
}
