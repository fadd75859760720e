package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"heartbeat/internal/task"
)

func newInitCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the heartbeat directory with a starter config and task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := g.paths()
			if err != nil {
				return err
			}
			for _, dir := range []string{p.Dir, p.History(), p.Logs()} {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return err
				}
			}
			out := cmd.OutOrStdout()
			files := []struct {
				path string
				body string
			}{
				{p.Config(), task.ConfigTemplate},
				{filepath.Join(p.Dir, "example.md"), task.ExampleTaskTemplate},
			}
			for _, f := range files {
				created, err := writeIfMissing(f.path, f.body)
				if err != nil {
					return err
				}
				if created {
					fmt.Fprintf(out, "%s %s\n", okStyle.Render("created"), f.path)
				} else {
					fmt.Fprintf(out, "%s %s\n", mutedStyle.Render("exists "), f.path)
				}
			}
			fmt.Fprintf(out, "\nheartbeat directory ready at %s\n", p.Dir)
			return nil
		},
	}
}

func writeIfMissing(path, body string) (bool, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if _, err := f.WriteString(body); err != nil {
		_ = f.Close()
		return false, err
	}
	return true, f.Close()
}
