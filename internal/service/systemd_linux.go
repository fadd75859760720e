//go:build linux

package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/coreos/go-systemd/v22/dbus"

	logx "heartbeat/pkg/logx"
)

const jobTimeout = 30 * time.Second

type systemdUser struct {
	log logx.Logger
}

func (s *systemdUser) connect(ctx context.Context) (*dbus.Conn, error) {
	conn, err := dbus.NewUserConnectionContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect to systemd user manager: %w", err)
	}
	return conn, nil
}

func (s *systemdUser) Install(ctx context.Context, spec Spec) (string, error) {
	home, err := spec.home()
	if err != nil {
		return "", err
	}
	b, err := RenderUnit(spec)
	if err != nil {
		return "", err
	}
	path := UnitPath(home)
	if err := writeFileAtomic(path, b); err != nil {
		return "", err
	}

	conn, err := s.connect(ctx)
	if err != nil {
		return path, err
	}
	defer conn.Close()

	if err := conn.ReloadContext(ctx); err != nil {
		return path, fmt.Errorf("daemon-reload: %w", err)
	}
	if _, _, err := conn.EnableUnitFilesContext(ctx, []string{UnitName}, false, true); err != nil {
		return path, fmt.Errorf("enable %s: %w", UnitName, err)
	}
	if err := waitJob(ctx, func(ch chan<- string) (int, error) {
		return conn.RestartUnitContext(ctx, UnitName, "replace", ch)
	}); err != nil {
		return path, fmt.Errorf("start %s: %w", UnitName, err)
	}
	s.log.Info("service.installed", logx.String("unit", UnitName), logx.String("path", path))
	return path, nil
}

func (s *systemdUser) Uninstall(ctx context.Context, spec Spec) error {
	home, err := spec.home()
	if err != nil {
		return err
	}
	path := UnitPath(home)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	conn, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := waitJob(ctx, func(ch chan<- string) (int, error) {
		return conn.StopUnitContext(ctx, UnitName, "replace", ch)
	}); err != nil {
		s.log.Warn("stop unit failed", logx.String("unit", UnitName), logx.Err(err))
	}
	if _, err := conn.DisableUnitFilesContext(ctx, []string{UnitName}, false); err != nil {
		s.log.Warn("disable unit failed", logx.String("unit", UnitName), logx.Err(err))
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := conn.ReloadContext(ctx); err != nil {
		return fmt.Errorf("daemon-reload: %w", err)
	}
	s.log.Info("service.uninstalled", logx.String("unit", UnitName))
	return nil
}

func (s *systemdUser) Status(ctx context.Context, spec Spec) (Status, error) {
	home, err := spec.home()
	if err != nil {
		return Status{}, err
	}
	st := Status{Path: UnitPath(home)}
	if _, err := os.Stat(st.Path); err != nil {
		st.Active = "not-installed"
		return st, nil
	}
	st.Installed = true

	conn, err := s.connect(ctx)
	if err != nil {
		return st, err
	}
	defer conn.Close()

	props, err := conn.GetUnitPropertiesContext(ctx, UnitName)
	if err != nil {
		return st, fmt.Errorf("status %s: %w", UnitName, err)
	}
	st.Active, _ = props["ActiveState"].(string)
	st.Detail, _ = props["SubState"].(string)
	return st, nil
}

// waitJob submits a systemd job and waits for its result.
func waitJob(ctx context.Context, submit func(ch chan<- string) (int, error)) error {
	ch := make(chan string, 1)
	if _, err := submit(ch); err != nil {
		return err
	}
	timer := time.NewTimer(jobTimeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		if res != "done" {
			return fmt.Errorf("job finished with %q", res)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("job did not finish within %s", jobTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
