package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"heartbeat/internal/service"
	logx "heartbeat/pkg/logx"
)

func serviceSpec(g *globals) (service.Spec, error) {
	p, err := g.paths()
	if err != nil {
		return service.Spec{}, err
	}
	bin, err := os.Executable()
	if err != nil {
		return service.Spec{}, err
	}
	if resolved, err := filepath.EvalSymlinks(bin); err == nil {
		bin = resolved
	}
	return service.Spec{Binary: bin, Dir: p.Dir, LogDir: p.Logs()}, nil
}

func newInstallServiceCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "install-service",
		Short: "Install and start the daemon as a user service (systemd or launchd)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			spec, err := serviceSpec(g)
			if err != nil {
				return err
			}
			mgr, err := service.New(logx.NewConsole(g.logLevel))
			if err != nil {
				return err
			}
			path, err := mgr.Install(cmd.Context(), spec)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", okStyle.Render("installed"), path)
			return nil
		},
	}
}

func newUninstallServiceCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall-service",
		Short: "Stop and remove the daemon user service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			spec, err := serviceSpec(g)
			if err != nil {
				return err
			}
			mgr, err := service.New(logx.NewConsole(g.logLevel))
			if err != nil {
				return err
			}
			if err := mgr.Uninstall(cmd.Context(), spec); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "service removed")
			return nil
		},
	}
}
