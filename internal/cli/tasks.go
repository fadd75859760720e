package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"heartbeat/internal/app"
	"heartbeat/internal/task"
)

var errTaskFailed = errors.New("task did not succeed")

func newAddCmd(g *globals) *cobra.Command {
	var spec task.NewTaskSpec
	cmd := &cobra.Command{
		Use:   "add <prompt>",
		Short: "Create a task file from a prompt",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := g.paths()
			if err != nil {
				return err
			}
			spec.Prompt = strings.Join(args, " ")
			path, err := task.CreateTaskFile(p.Dir, spec)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", okStyle.Render("created"), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&spec.Schedule, "schedule", "", `schedule ("every beat", "every 2 hours", "daily", "daily at 09:00")`)
	cmd.Flags().StringVar(&spec.Timeout, "timeout", "", `per-run timeout ("10m", "1h")`)
	cmd.Flags().StringVar(&spec.Dir, "task-dir", "", "working directory for the task (default ~)")
	return cmd
}

func newListCmd(g *globals) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := g.paths()
			if err != nil {
				return err
			}
			loader := task.NewLoader(p.Dir)
			load := loader.Load
			if all {
				load = loader.LoadAll
			}
			tasks, err := load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(tasks) == 0 {
				fmt.Fprintln(out, "no tasks")
				return nil
			}
			t := &table{header: []string{"TASK", "SCHEDULE", "TIMEOUT", "DIR"}}
			for _, tk := range tasks {
				name := tk.Name
				if !tk.Enabled {
					name += " " + mutedStyle.Render("(disabled)")
				}
				t.add(name, tk.Schedule.String(), tk.TimeoutRaw, tk.Dir)
			}
			t.render(out)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include disabled tasks")
	return cmd
}

func newRunCmd(g *globals) *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "run <task>",
		Short: "Run one task now in the foreground and record it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(false)
			if err != nil {
				return err
			}
			defer a.Close()

			e, err := a.Runner().RunTask(cmd.Context(), args[0])
			if errors.Is(err, task.ErrNotFound) {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s  %s  %s  exit %s\n", statusBadge(e.Status), e.TaskName,
				mutedStyle.Render(formatDuration(e.DurationMs)), formatExit(e.ExitCode))
			if !quiet {
				if s := strings.TrimSpace(e.Stdout); s != "" {
					fmt.Fprintln(out, s)
				}
				if s := strings.TrimSpace(e.Stderr); s != "" && !e.Succeeded() {
					fmt.Fprintln(out, errStyle.Render(s))
				}
			}
			if err != nil {
				return err
			}
			if !e.Succeeded() {
				return fmt.Errorf("%w: %s finished with %s", errTaskFailed, e.TaskName, e.Status)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print the task output")
	return cmd
}

func newTriggerCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "trigger <task>",
		Short: "Run one task now in the background",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := g.paths()
			if err != nil {
				return err
			}
			t, err := task.NewLoader(p.Dir).Find(args[0])
			if err != nil {
				return err
			}
			sp, err := app.Spawn(p, t.Name, "run", "--quiet", t.Name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "triggered %s (pid %d), output in %s\n", t.Name, sp.PID, sp.LogPath)
			return nil
		},
	}
}
