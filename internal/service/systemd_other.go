//go:build !linux

package service

import (
	"context"

	logx "heartbeat/pkg/logx"
)

type systemdUser struct {
	log logx.Logger
}

func (s *systemdUser) Install(context.Context, Spec) (string, error) { return "", ErrUnsupported }
func (s *systemdUser) Uninstall(context.Context, Spec) error         { return ErrUnsupported }
func (s *systemdUser) Status(context.Context, Spec) (Status, error) {
	return Status{}, ErrUnsupported
}
