package task

import "time"

// Status classifies the outcome of one execution attempt.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusTimeout Status = "timeout"
)

// Overrides are per-task replacements for the global process defaults.
// Nil fields fall back to the global value; Args are appended, not replaced.
type Overrides struct {
	Command          *string  `yaml:"command,omitempty"`
	Args             []string `yaml:"args,omitempty"`
	MaxTurns         *int     `yaml:"max_turns,omitempty"`
	AcknowledgeRisks *bool    `yaml:"acknowledge_risks,omitempty"`
}

// Task is one declared recurring job, loaded from <name>.md.
// It is immutable for the duration of a tick.
type Task struct {
	Name     string
	FilePath string
	Schedule Schedule

	// TimeoutRaw is the string from the task file (e.g. "10m"), kept for display.
	TimeoutRaw string
	Timeout    time.Duration

	Enabled bool
	Prompt  string
	Dir     string

	Overrides Overrides

	// Env values are literals or secret references (see internal/secrets).
	Env map[string]string
}

// HistoryEntry is the durable record of one execution attempt.
//
// Entries are immutable once written. JSON field names are the on-disk format
// of the history directory.
type HistoryEntry struct {
	ID              string    `json:"id,omitempty"`
	TaskName        string    `json:"taskName"`
	StartedAt       time.Time `json:"startedAt"`
	FinishedAt      time.Time `json:"finishedAt"`
	DurationMs      int64     `json:"durationMs"`
	Status          Status    `json:"status"`
	ExitCode        *int      `json:"exitCode"`
	Stdout          string    `json:"stdout"`
	Stderr          string    `json:"stderr"`
	TurnsUsed       *int      `json:"turnsUsed,omitempty"`
	MaxTurnsReached bool      `json:"maxTurnsReached,omitempty"`
}

// Succeeded reports whether the entry finished with StatusSuccess.
func (e HistoryEntry) Succeeded() bool { return e.Status == StatusSuccess }

// Duration returns DurationMs as a time.Duration.
func (e HistoryEntry) Duration() time.Duration {
	return time.Duration(e.DurationMs) * time.Millisecond
}

// TimestampLayout is the wire form of run timestamps: UTC, millisecond
// precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimestampLayout)
}

// TruncateTail returns the last n characters of s.
func TruncateTail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
