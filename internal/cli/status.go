package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"heartbeat/internal/app"
	"heartbeat/internal/service"
)

func newStatusCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the daemon state and every task's last and next run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.open(false)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			printDaemon(out, a)
			printService(cmd.Context(), out, a)
			fmt.Fprintln(out)

			rows, err := a.Status(cmd.Context())
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Fprintln(out, "no tasks (add one with `heartbeat add`)")
				return nil
			}
			t := &table{header: []string{"TASK", "SCHEDULE", "LAST", "LAST RUN", "NEXT"}}
			for _, r := range rows {
				last, when := mutedStyle.Render("never"), mutedStyle.Render("-")
				if r.LastRun != nil {
					last = statusBadge(r.LastRun.Status)
					when = formatWhen(r.LastRun.StartedAt)
				}
				next := formatWhen(r.NextDue)
				switch {
				case !r.Task.Enabled:
					next = mutedStyle.Render("disabled")
				case !r.NextDue.After(time.Now()):
					next = okStyle.Render("due")
				}
				t.add(r.Task.Name, r.Task.Schedule.String(), last, when, next)
			}
			t.render(out)
			return nil
		},
	}
}

func printDaemon(out io.Writer, a *app.App) {
	cfg := a.Config()
	if st, ok := app.RunningDaemon(a.Paths().Daemon()); ok {
		fmt.Fprintf(out, "daemon    %s pid %d since %s, heartbeat %s\n",
			okStyle.Render("running"), st.PID, formatWhen(st.StartedAt), cfg.HeartbeatRaw)
		return
	}
	fmt.Fprintf(out, "daemon    %s\n", mutedStyle.Render("stopped"))
}

func printService(ctx context.Context, out io.Writer, a *app.App) {
	mgr, err := service.New(a.Logger())
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	st, err := mgr.Status(ctx, service.Spec{Dir: a.Paths().Dir})
	if err != nil || !st.Installed {
		return
	}
	fmt.Fprintf(out, "service   %s %s\n", st.Active, mutedStyle.Render(st.Path))
}
