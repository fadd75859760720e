package task

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ScheduleKind is the closed set of schedule variants.
type ScheduleKind int

const (
	EveryBeat ScheduleKind = iota
	Interval
	Daily
	DailyAt
)

func (k ScheduleKind) String() string {
	switch k {
	case EveryBeat:
		return "every-beat"
	case Interval:
		return "interval"
	case Daily:
		return "daily"
	case DailyAt:
		return "daily-at"
	default:
		return "unknown"
	}
}

// Schedule is a parsed schedule expression.
//
// Every is only meaningful for Interval; zero means "use the global heartbeat".
// Hour/Minute are only meaningful for DailyAt.
type Schedule struct {
	Kind   ScheduleKind
	Every  time.Duration
	Hour   int
	Minute int
}

// AtTime returns the DailyAt target as "HH:MM".
func (s Schedule) AtTime() string {
	return fmt.Sprintf("%02d:%02d", s.Hour, s.Minute)
}

// String renders the schedule in the same grammar ParseSchedule accepts.
func (s Schedule) String() string {
	switch s.Kind {
	case EveryBeat:
		return "every beat"
	case Interval:
		if s.Every <= 0 {
			return "every heartbeat interval"
		}
		if s.Every%time.Hour == 0 {
			return plural(int(s.Every/time.Hour), "hour")
		}
		return plural(int(s.Every/time.Minute), "minute")
	case Daily:
		return "daily"
	case DailyAt:
		return "daily at " + s.AtTime()
	default:
		return "unknown"
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "every 1 " + unit
	}
	return "every " + strconv.Itoa(n) + " " + unit + "s"
}

var (
	reEveryN   = regexp.MustCompile(`^every\s+(\d+)\s+(minutes?|hours?)$`)
	reDailyAt  = regexp.MustCompile(`^(?:every\s+day|daily)\s+at\s+(\d{1,2}):(\d{2})$`)
	reSpaceRun = regexp.MustCompile(`\s+`)
)

// ParseSchedule parses a human schedule expression.
//
// Supported forms (case-insensitive):
//   - "every beat", "every heartbeat"
//   - "every N minutes", "every N hours" (singular accepted)
//   - "daily", "every day"
//   - "daily at HH:MM", "every day at H:MM"
func ParseSchedule(raw string) (Schedule, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = reSpaceRun.ReplaceAllString(s, " ")
	if s == "" {
		return Schedule{}, fmt.Errorf("schedule required")
	}

	if s == "every beat" || s == "every heartbeat" {
		return Schedule{Kind: EveryBeat}, nil
	}

	if m := reEveryN.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			return Schedule{}, fmt.Errorf("invalid schedule %q: interval must be > 0", raw)
		}
		unit := time.Minute
		if strings.HasPrefix(m[2], "hour") {
			unit = time.Hour
		}
		return Schedule{Kind: Interval, Every: time.Duration(n) * unit}, nil
	}

	if m := reDailyAt.FindStringSubmatch(s); m != nil {
		h, m2, err := parseHHMM(m[1], m[2])
		if err != nil {
			return Schedule{}, fmt.Errorf("invalid time in schedule %q: %w", raw, err)
		}
		return Schedule{Kind: DailyAt, Hour: h, Minute: m2}, nil
	}

	if s == "daily" || s == "every day" {
		return Schedule{Kind: Daily}, nil
	}

	return Schedule{}, fmt.Errorf(
		"invalid schedule %q (use \"every beat\", \"every N hours\", \"daily\", or \"daily at HH:MM\")",
		raw,
	)
}

func parseHHMM(hh, mm string) (int, int, error) {
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, 0, err
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, 0, err
	}
	if h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("hour %d out of range", h)
	}
	if m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("minute %d out of range", m)
	}
	return h, m, nil
}
