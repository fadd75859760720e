// Package secrets resolves task environment values.
//
// A value is either a literal or a reference:
//   - "env:NAME"  the host environment variable NAME (must be set)
//   - "file:PATH" the trimmed content of PATH ("~/" is expanded)
//
// A leading backslash escapes the scheme: `\env:x` is the literal "env:x".
package secrets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var ErrUnresolved = errors.New("unresolved secret")

// Resolver turns declared values into concrete ones.
// LookupEnv and ReadFile default to the os package.
type Resolver struct {
	LookupEnv func(string) (string, bool)
	ReadFile  func(string) ([]byte, error)
	Home      string
}

func New() *Resolver { return &Resolver{} }

// Resolve resolves every value in env. Keys are processed in sorted order so
// the reported failure is deterministic; the first failure aborts.
func (r *Resolver) Resolve(env map[string]string) (map[string]string, error) {
	if len(env) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]string, len(env))
	for _, k := range keys {
		v, err := r.resolveOne(env[k])
		if err != nil {
			return nil, fmt.Errorf("env %s: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

func (r *Resolver) resolveOne(raw string) (string, error) {
	switch {
	case strings.HasPrefix(raw, `\`):
		return raw[1:], nil

	case strings.HasPrefix(raw, "env:"):
		name := strings.TrimSpace(raw[len("env:"):])
		if name == "" {
			return "", fmt.Errorf("%w: empty env reference", ErrUnresolved)
		}
		lookup := r.LookupEnv
		if lookup == nil {
			lookup = os.LookupEnv
		}
		v, ok := lookup(name)
		if !ok {
			return "", fmt.Errorf("%w: environment variable %s is not set", ErrUnresolved, name)
		}
		return v, nil

	case strings.HasPrefix(raw, "file:"):
		path := strings.TrimSpace(raw[len("file:"):])
		if path == "" {
			return "", fmt.Errorf("%w: empty file reference", ErrUnresolved)
		}
		path = r.expand(path)
		read := r.ReadFile
		if read == nil {
			read = os.ReadFile
		}
		b, err := read(path)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnresolved, err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	return raw, nil
}

func (r *Resolver) expand(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home := r.Home
	if home == "" {
		h, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		home = h
	}
	return filepath.Join(home, path[2:])
}
