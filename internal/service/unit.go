package service

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/coreos/go-systemd/v22/unit"
)

// UnitPath is where the systemd user unit lives.
func UnitPath(home string) string {
	return filepath.Join(home, ".config", "systemd", "user", UnitName)
}

// RenderUnit renders the systemd user unit. The daemon reports readiness
// through sd_notify, so the unit is Type=notify.
func RenderUnit(spec Spec) ([]byte, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}
	words := spec.args()
	for i, w := range words {
		words[i] = quoteArg(w)
	}
	opts := []*unit.UnitOption{
		unit.NewUnitOption("Unit", "Description", "heartbeat recurring task runner"),
		unit.NewUnitOption("Unit", "After", "network-online.target"),
		unit.NewUnitOption("Service", "Type", "notify"),
		unit.NewUnitOption("Service", "ExecStart", strings.Join(words, " ")),
		unit.NewUnitOption("Service", "Restart", "on-failure"),
		unit.NewUnitOption("Service", "RestartSec", "10"),
		unit.NewUnitOption("Service", "KillMode", "mixed"),
		unit.NewUnitOption("Service", "TimeoutStopSec", "60"),
		unit.NewUnitOption("Install", "WantedBy", "default.target"),
	}
	return io.ReadAll(unit.Serialize(opts))
}
