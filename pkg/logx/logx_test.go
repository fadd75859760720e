package logx

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	var out []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		out = append(out, m)
	}
	return out
}

func TestZeroValueIsNoop(t *testing.T) {
	t.Parallel()

	var l Logger
	if !l.IsZero() {
		t.Fatalf("zero Logger not IsZero")
	}
	l.Info("dropped", String("k", "v"))
	l.With(Int("n", 1)).Error("dropped too")
	if Nop().IsZero() {
		t.Fatalf("Nop() should not be IsZero")
	}
}

func TestFileSinkFieldsAndLevel(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "hb.log")
	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}})
	defer svc.Close()

	comp := log.With(String("comp", "runner"))
	comp.Debug("hidden")
	comp.Info("tick.completed", Int("ran", 2), Err(errors.New("boom")), Err(nil))

	lines := readLines(t, path)
	if len(lines) != 1 {
		t.Fatalf("lines=%d want 1: %v", len(lines), lines)
	}
	got := lines[0]
	if got["message"] != "tick.completed" || got["comp"] != "runner" || got["err"] != "boom" {
		t.Fatalf("event=%v", got)
	}
	if n, _ := got["ran"].(float64); n != 2 {
		t.Fatalf("ran=%v", got["ran"])
	}
	if c, _ := got["caller"].(string); !strings.HasPrefix(c, "logx_test.go:") {
		t.Fatalf("caller=%v", got["caller"])
	}

	// Apply switches the level for loggers derived earlier.
	svc.Apply(Config{Level: "debug", File: FileConfig{Enabled: true, Path: path}})
	comp.Debug("now visible")
	if lines := readLines(t, path); len(lines) != 2 {
		t.Fatalf("lines after Apply=%d want 2", len(lines))
	}
}

func TestRotatingFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "r.log")
	r, err := openRotating(path, 100, 2)
	if err != nil {
		t.Fatalf("openRotating: %v", err)
	}
	defer r.Close()

	line := []byte(strings.Repeat("x", 59) + "\n")
	for i := 0; i < 5; i++ {
		if _, err := r.Write(line); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	// 60-byte lines with a 100-byte cap: one line per file.
	for _, name := range []string{path, path + ".1", path + ".2"} {
		st, err := os.Stat(name)
		if err != nil {
			t.Fatalf("stat %s: %v", name, err)
		}
		if st.Size() != 60 {
			t.Fatalf("%s size=%d want 60", name, st.Size())
		}
	}
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Fatalf("backup beyond limit kept: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":        "info",
		"DEBUG":   "debug",
		" warn ":  "warn",
		"warning": "warn",
		"error":   "error",
		"bogus":   "info",
	}
	for in, want := range cases {
		if got := ParseLevel(in).String(); got != want {
			t.Fatalf("ParseLevel(%q)=%s want %s", in, got, want)
		}
	}
}
