package service

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"

	logx "heartbeat/pkg/logx"
)

// PlistPath is where the launchd agent lives.
func PlistPath(home string) string {
	return filepath.Join(home, "Library", "LaunchAgents", LaunchdLabel+".plist")
}

var plistTmpl = template.Must(template.New("plist").Funcs(template.FuncMap{"x": xmlEscape}).Parse(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>{{x .Label}}</string>
	<key>ProgramArguments</key>
	<array>
{{- range .Args}}
		<string>{{x .}}</string>
{{- end}}
	</array>
	<key>WorkingDirectory</key>
	<string>{{x .Dir}}</string>
	<key>RunAtLoad</key>
	<true/>
	<key>KeepAlive</key>
	<dict>
		<key>SuccessfulExit</key>
		<false/>
	</dict>
	<key>StandardOutPath</key>
	<string>{{x .Stdout}}</string>
	<key>StandardErrorPath</key>
	<string>{{x .Stderr}}</string>
</dict>
</plist>
`))

func xmlEscape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

// RenderPlist renders the launchd agent definition.
func RenderPlist(spec Spec) ([]byte, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}
	logDir := spec.LogDir
	if logDir == "" {
		logDir = filepath.Join(spec.Dir, ".logs")
	}
	var buf bytes.Buffer
	err := plistTmpl.Execute(&buf, map[string]any{
		"Label":  LaunchdLabel,
		"Args":   spec.args(),
		"Dir":    spec.Dir,
		"Stdout": filepath.Join(logDir, "launchd.out.log"),
		"Stderr": filepath.Join(logDir, "launchd.err.log"),
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type launchd struct {
	log logx.Logger
	run func(ctx context.Context, name string, args ...string) (string, error)
}

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

func (l *launchd) Install(ctx context.Context, spec Spec) (string, error) {
	home, err := spec.home()
	if err != nil {
		return "", err
	}
	b, err := RenderPlist(spec)
	if err != nil {
		return "", err
	}
	path := PlistPath(home)
	// Reinstalling replaces a loaded agent.
	if _, err := os.Stat(path); err == nil {
		_, _ = l.run(ctx, "launchctl", "unload", path)
	}
	if err := writeFileAtomic(path, b); err != nil {
		return "", err
	}
	if out, err := l.run(ctx, "launchctl", "load", "-w", path); err != nil {
		return path, fmt.Errorf("launchctl load: %w: %s", err, out)
	}
	l.log.Info("service.installed", logx.String("path", path))
	return path, nil
}

func (l *launchd) Uninstall(ctx context.Context, spec Spec) error {
	home, err := spec.home()
	if err != nil {
		return err
	}
	path := PlistPath(home)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if out, err := l.run(ctx, "launchctl", "unload", "-w", path); err != nil {
		l.log.Warn("launchctl unload failed", logx.String("out", out), logx.Err(err))
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	l.log.Info("service.uninstalled", logx.String("path", path))
	return nil
}

func (l *launchd) Status(ctx context.Context, spec Spec) (Status, error) {
	home, err := spec.home()
	if err != nil {
		return Status{}, err
	}
	st := Status{Path: PlistPath(home)}
	if _, err := os.Stat(st.Path); err != nil {
		st.Active = "not-installed"
		return st, nil
	}
	st.Installed = true
	out, err := l.run(ctx, "launchctl", "list", LaunchdLabel)
	if err != nil {
		st.Active = "inactive"
		return st, nil
	}
	st.Active = "loaded"
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, `"PID"`) {
			st.Active = "running"
			st.Detail = strings.TrimSuffix(strings.TrimSpace(strings.TrimPrefix(line, `"PID" =`)), ";")
		}
	}
	return st, nil
}
