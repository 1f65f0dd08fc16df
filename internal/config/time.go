package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseTimestamp resolves a --begin/--end flag value to a UTC timestamp.
// Accepted forms: "2006-01-02", "2006-01-02 15:04:05", and short
// look-back durations relative to now such as "30d", "12h", or "45m".
// An empty value resolves to the zero time (meaning "unset").
func ParseTimestamp(value string, now time.Time) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}

	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return ts, nil
		}
	}

	if d, err := parseLookBack(value); err == nil {
		return now.UTC().Add(-d), nil
	}

	return time.Time{}, fmt.Errorf("unrecognized timestamp %q: use YYYY-MM-DD, \"YYYY-MM-DD HH:MM:SS\", or a duration like 30d or 12h", value)
}

// parseLookBack handles the "Nd" day shorthand the standard library's
// duration parser does not, delegating everything else to it.
func parseLookBack(value string) (time.Duration, error) {
	if strings.HasSuffix(value, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(value, "d"))
		if err != nil || days < 0 {
			return 0, fmt.Errorf("invalid day count %q", value)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid duration %q", value)
	}
	return d, nil
}
