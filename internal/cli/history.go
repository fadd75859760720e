package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"heartbeat/internal/storage"
)

func newHistoryCmd(g *globals) *cobra.Command {
	var f storage.Filter
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.open(false)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.Store().Query(cmd.Context(), f)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "no history")
				return nil
			}
			t := &table{header: []string{"STARTED", "TASK", "STATUS", "DURATION", "EXIT", "TURNS"}}
			for _, e := range entries {
				turns := mutedStyle.Render("-")
				if e.TurnsUsed != nil {
					turns = fmt.Sprint(*e.TurnsUsed)
					if e.MaxTurnsReached {
						turns += warnStyle.Render(" max")
					}
				}
				t.add(formatWhen(e.StartedAt), e.TaskName, statusBadge(e.Status), formatDuration(e.DurationMs), formatExit(e.ExitCode), turns)
			}
			t.render(out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&f.Task, "task", "t", "", "only show runs of this task")
	cmd.Flags().IntVarP(&f.Limit, "limit", "n", 20, "maximum number of runs (0 = all)")
	return cmd
}
