package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"heartbeat/internal/app"
)

func newStartCmd(g *globals) *cobra.Command {
	var background bool
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run the daemon (foreground unless --background)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := g.paths()
			if err != nil {
				return err
			}
			if st, ok := app.RunningDaemon(p.Daemon()); ok {
				return fmt.Errorf("%w (pid %d)", app.ErrAlreadyRunning, st.PID)
			}
			if background {
				args := []string{"start"}
				if g.logLevel != "" {
					args = append(args, "--log-level", g.logLevel)
				}
				sp, err := app.Spawn(p, "daemon", args...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "daemon started (pid %d), output in %s\n", sp.PID, sp.LogPath)
				return nil
			}

			a, err := g.open(true)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Daemon().Run(cmd.Context())
		},
	}
	cmd.Flags().BoolVarP(&background, "background", "b", false, "detach and run the daemon in the background")
	return cmd
}

func newStopCmd(g *globals) *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := g.paths()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			st, ok := app.RunningDaemon(p.Daemon())
			if !ok {
				// A leftover file from a crashed daemon.
				_ = app.ClearState(p.Daemon())
				fmt.Fprintln(out, "daemon is not running")
				return nil
			}
			if err := app.Terminate(st.PID); err != nil {
				return fmt.Errorf("signal pid %d: %w", st.PID, err)
			}
			deadline := time.Now().Add(wait)
			for app.ProcessRunning(st.PID) {
				if time.Now().After(deadline) {
					return fmt.Errorf("daemon (pid %d) still running after %s", st.PID, wait)
				}
				select {
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				case <-time.After(100 * time.Millisecond):
				}
			}
			fmt.Fprintf(out, "daemon stopped (pid %d)\n", st.PID)
			return nil
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 45*time.Second, "how long to wait for the daemon to exit")
	return cmd
}

func newTickCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Run one tick now: every due task, under the tick lock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.open(false)
			if err != nil {
				return err
			}
			defer a.Close()

			rep, err := a.Runner().Tick(cmd.Context())
			out := cmd.OutOrStdout()
			switch {
			case rep.Skipped:
				fmt.Fprintln(out, "another tick is in progress; skipped")
			case len(rep.Results) == 0 && err == nil:
				fmt.Fprintf(out, "nothing due (%d enabled tasks)\n", rep.Loaded)
			}
			for _, e := range rep.Results {
				fmt.Fprintf(out, "%s  %s  %s\n", statusBadge(e.Status), e.TaskName, mutedStyle.Render(formatDuration(e.DurationMs)))
			}
			if rep.Evicted > 0 {
				fmt.Fprintf(out, "%s\n", mutedStyle.Render(fmt.Sprintf("evicted %d old history entries", rep.Evicted)))
			}
			return err
		},
	}
}
