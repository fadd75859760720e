// Package cli implements the heartbeat command line.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"heartbeat/internal/app"
	"heartbeat/internal/config"
)

type globals struct {
	dir      string
	logLevel string
}

func (g *globals) paths() (config.Paths, error) {
	dir, err := config.ResolveDir(g.dir)
	if err != nil {
		return config.Paths{}, fmt.Errorf("resolve heartbeat dir: %w", err)
	}
	return config.NewPaths(dir), nil
}

// open builds an App for one command. The caller closes it.
func (g *globals) open(fileLog bool) (*app.App, error) {
	p, err := g.paths()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(p.Dir); err != nil {
		return nil, fmt.Errorf("heartbeat dir %s not found (run `heartbeat init`): %w", p.Dir, err)
	}
	return app.New(app.Options{Dir: p.Dir, LogLevel: g.logLevel, FileLog: fileLog})
}

// NewRootCommand builds the full command tree.
func NewRootCommand(version string) *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "heartbeat",
		Short: "Run recurring Claude tasks on a heartbeat",
		Long: `heartbeat runs prompt-driven tasks on a schedule.

Tasks are markdown files in the heartbeat directory; config.md holds the
global settings. A daemon ticks on every heartbeat and runs the tasks that
are due, recording each run in the history store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}
	root.PersistentFlags().StringVar(&g.dir, "dir", "", "heartbeat directory (default $"+config.EnvDir+" or ~/.heartbeat)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level override (trace|debug|info|warn|error)")

	root.AddCommand(
		newInitCmd(g),
		newStartCmd(g),
		newStopCmd(g),
		newStatusCmd(g),
		newTickCmd(g),
		newAddCmd(g),
		newListCmd(g),
		newHistoryCmd(g),
		newRunCmd(g),
		newTriggerCmd(g),
		newInstallServiceCmd(g),
		newUninstallServiceCmd(g),
	)
	return root
}

// Execute runs the CLI with ctx as the root context.
func Execute(ctx context.Context, version string, args []string) error {
	root := NewRootCommand(version)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		return err
	}
	return nil
}
