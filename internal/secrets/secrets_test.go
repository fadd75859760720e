package secrets

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestResolveReferences(t *testing.T) {
	t.Parallel()
	home := t.TempDir()
	if err := os.WriteFile(filepath.Join(home, "token"), []byte("  s3cret\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	r := &Resolver{
		LookupEnv: func(k string) (string, bool) {
			if k == "HOST_VAR" {
				return "from-host", true
			}
			return "", false
		},
		Home: home,
	}

	got, err := r.Resolve(map[string]string{
		"LITERAL": "plain",
		"FROM":    "env:HOST_VAR",
		"TOKEN":   "file:~/token",
		"ESCAPED": `\env:HOST_VAR`,
	})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	want := map[string]string{"LITERAL": "plain", "FROM": "from-host", "TOKEN": "s3cret", "ESCAPED": "env:HOST_VAR"}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("%s = %q, want %q", k, got[k], v)
		}
	}
}

func TestResolveFailureNamesVariable(t *testing.T) {
	t.Parallel()
	r := &Resolver{LookupEnv: func(string) (string, bool) { return "", false }}
	_, err := r.Resolve(map[string]string{"OK": "x", "MISSING": "env:NOPE"})
	if !errors.Is(err, ErrUnresolved) {
		t.Fatalf("err = %v, want ErrUnresolved", err)
	}
	if !strings.Contains(err.Error(), "MISSING") || !strings.Contains(err.Error(), "NOPE") {
		t.Fatalf("error %q should name the variable and reference", err)
	}

	_, err = r.Resolve(map[string]string{"F": "file:/definitely/not/here"})
	if !errors.Is(err, ErrUnresolved) {
		t.Fatalf("missing file err = %v", err)
	}
}

func TestResolveEmpty(t *testing.T) {
	t.Parallel()
	got, err := New().Resolve(nil)
	if err != nil || got != nil {
		t.Fatalf("Resolve(nil) = %v, %v", got, err)
	}
}
