package engine

import (
	"regexp"
	"strconv"
)

var reMaxTurns = regexp.MustCompile(`Reached max turns \((\d+)\)`)

// ExtractMetadata scans captured output for the invoked CLI's own
// "Reached max turns (N)" report. It is best-effort text matching: a missing
// marker yields (nil, false).
func ExtractMetadata(outputs ...string) (turnsUsed *int, maxTurnsReached bool) {
	for _, out := range outputs {
		m := reMaxTurns.FindAllStringSubmatch(out, -1)
		if len(m) == 0 {
			continue
		}
		last := m[len(m)-1]
		n, err := strconv.Atoi(last[1])
		if err != nil {
			continue
		}
		return &n, true
	}
	return nil, false
}
