// Package timeparsing parses the time expressions accepted by CLI flags
// such as --since. Input is tried against several layers in order:
// compact durations (+6h, -1d, 2w), date-only and RFC3339 timestamps,
// and finally English natural language ("yesterday", "3 days ago").
package timeparsing

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// compactDurationRe matches [+-]?(\d+)([hdwmy]), e.g. +6h, -1d, 2w.
var compactDurationRe = regexp.MustCompile(`^([+-]?)(\d+)([hdwmy])$`)

// ParseCompactDuration parses compact duration syntax and returns now
// shifted by that amount. Units are h (hours), d (days), w (weeks),
// m (months), y (years). A missing sign means forward: "3m" is three
// months from now, "-1d" is yesterday. Day and larger units go through
// AddDate so month arithmetic follows Go's normalization rules.
func ParseCompactDuration(s string, now time.Time) (time.Time, error) {
	matches := compactDurationRe.FindStringSubmatch(s)
	if matches == nil {
		return time.Time{}, fmt.Errorf("not a compact duration: %q", s)
	}

	amount, err := strconv.Atoi(matches[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid duration amount: %q", matches[2])
	}
	if matches[1] == "-" {
		amount = -amount
	}

	return applyDuration(now, amount, matches[3]), nil
}

// IsCompactDuration reports whether s matches compact duration syntax.
func IsCompactDuration(s string) bool {
	return compactDurationRe.MatchString(s)
}

// ParseSince parses the cutoff of a --since style flag. Compact
// durations without an explicit sign read as durations into the past,
// so "7d" and "-7d" both mean seven days ago. Everything else goes
// through ParseRelativeTime unchanged.
func ParseSince(s string, now time.Time) (time.Time, error) {
	if m := compactDurationRe.FindStringSubmatch(s); m != nil && m[1] != "+" {
		amount, err := strconv.Atoi(m[2])
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid duration amount: %q", m[2])
		}
		return applyDuration(now, -amount, m[3]), nil
	}
	return ParseRelativeTime(s, now)
}

func applyDuration(base time.Time, amount int, unit string) time.Time {
	switch unit {
	case "h":
		return base.Add(time.Duration(amount) * time.Hour)
	case "d":
		return base.AddDate(0, 0, amount)
	case "w":
		return base.AddDate(0, 0, amount*7)
	case "m":
		return base.AddDate(0, amount, 0)
	case "y":
		return base.AddDate(amount, 0, 0)
	default:
		return base
	}
}
