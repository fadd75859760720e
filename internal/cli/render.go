package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"heartbeat/internal/task"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	okStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#16a34a"))
	errStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#dc2626"))
	warnStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#d97706"))
)

func statusBadge(s task.Status) string {
	switch s {
	case task.StatusSuccess:
		return okStyle.Render("✓ " + string(s))
	case task.StatusTimeout:
		return warnStyle.Render("⏱ " + string(s))
	case task.StatusError:
		return errStyle.Render("✗ " + string(s))
	}
	return mutedStyle.Render("-")
}

// table renders rows with columns padded to their widest cell. Cells may
// already carry ANSI styling; widths are measured with lipgloss.Width.
type table struct {
	header []string
	rows   [][]string
}

func (t *table) add(cells ...string) { t.rows = append(t.rows, cells) }

func (t *table) render(w io.Writer) {
	widths := make([]int, len(t.header))
	for i, h := range t.header {
		widths[i] = lipgloss.Width(h)
	}
	for _, r := range t.rows {
		for i, c := range r {
			if i < len(widths) && lipgloss.Width(c) > widths[i] {
				widths[i] = lipgloss.Width(c)
			}
		}
	}
	line := func(cells []string, style *lipgloss.Style) {
		parts := make([]string, len(cells))
		for i, c := range cells {
			if style != nil {
				c = style.Render(c)
			}
			if i < len(cells)-1 {
				c += strings.Repeat(" ", widths[i]-lipgloss.Width(c))
			}
			parts[i] = c
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
	}
	line(t.header, &headerStyle)
	for _, r := range t.rows {
		line(r, nil)
	}
}

func formatWhen(ts time.Time) string {
	if ts.IsZero() {
		return mutedStyle.Render("-")
	}
	return ts.Local().Format("2006-01-02 15:04")
}

func formatDuration(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", ms)
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return d.Truncate(time.Second).String()
}

func formatExit(code *int) string {
	if code == nil {
		return mutedStyle.Render("-")
	}
	return fmt.Sprint(*code)
}
