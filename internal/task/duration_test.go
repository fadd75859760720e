package task

import (
	"strings"
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want time.Duration
	}{
		{raw: "500ms", want: 500 * time.Millisecond},
		{raw: "45s", want: 45 * time.Second},
		{raw: "30m", want: 30 * time.Minute},
		{raw: "4h", want: 4 * time.Hour},
		{raw: "7d", want: 7 * 24 * time.Hour},
		{raw: "  10 m ", want: 10 * time.Minute},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			got, err := ParseDuration(tt.raw)
			if err != nil {
				t.Fatalf("ParseDuration(%q) error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("ParseDuration(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseDurationInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "abc", "10", "1h30m", "-5m", "5w", "m"} {
		if _, err := ParseDuration(raw); err == nil {
			t.Fatalf("ParseDuration(%q): expected error", raw)
		}
	}
}

func TestParseDurationFieldNamesPath(t *testing.T) {
	t.Parallel()
	_, err := ParseDurationField("heartbeat", "soon")
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); !strings.HasPrefix(got, "heartbeat:") {
		t.Fatalf("error %q does not start with field path", got)
	}
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()
	tests := map[time.Duration]string{
		7 * 24 * time.Hour:      "7d",
		2 * time.Hour:           "2h",
		90 * time.Minute:        "90m",
		3 * time.Second:         "3s",
		1500 * time.Millisecond: "1500ms",
		0:                       "0s",
	}
	for d, want := range tests {
		if got := FormatDuration(d); got != want {
			t.Fatalf("FormatDuration(%v) = %q, want %q", d, got, want)
		}
		if d > 0 {
			back, err := ParseDuration(FormatDuration(d))
			if err != nil || back != d {
				t.Fatalf("FormatDuration(%v) does not parse back: %v, %v", d, back, err)
			}
		}
	}
}
