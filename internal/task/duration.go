package task

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var reDuration = regexp.MustCompile(`^(\d+)\s*(ms|s|m|h|d)$`)

var durationUnits = map[string]time.Duration{
	"ms": time.Millisecond,
	"s":  time.Second,
	"m":  time.Minute,
	"h":  time.Hour,
	"d":  24 * time.Hour,
}

// ParseDuration parses the runner's duration grammar: an integer followed by
// one of ms, s, m, h or d ("30m", "4h", "7d").
//
// Go duration strings with mixed units ("1h30m") are rejected on purpose so
// task files stay readable by the other tooling around ~/.heartbeat.
func ParseDuration(raw string) (time.Duration, error) {
	m := reDuration.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return 0, fmt.Errorf("invalid duration %q (expected format like \"30m\", \"4h\", \"7d\")", raw)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	unit := durationUnits[m[2]]
	if n > int64(1<<62)/int64(unit) {
		return 0, fmt.Errorf("invalid duration %q: out of range", raw)
	}
	return time.Duration(n) * unit, nil
}

// ParseDurationField is ParseDuration with the config path in the error,
// e.g. "config.md: heartbeat: invalid duration ...".
func ParseDurationField(path, raw string) (time.Duration, error) {
	d, err := ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// FormatDuration renders d in the largest unit that represents it exactly.
func FormatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "0s"
	case d%(24*time.Hour) == 0:
		return strconv.FormatInt(int64(d/(24*time.Hour)), 10) + "d"
	case d%time.Hour == 0:
		return strconv.FormatInt(int64(d/time.Hour), 10) + "h"
	case d%time.Minute == 0:
		return strconv.FormatInt(int64(d/time.Minute), 10) + "m"
	case d%time.Second == 0:
		return strconv.FormatInt(int64(d/time.Second), 10) + "s"
	default:
		return strconv.FormatInt(d.Milliseconds(), 10) + "ms"
	}
}
