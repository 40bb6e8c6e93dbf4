package action

import (
	"regexp"
	"strconv"
	"strings"
)

// DefaultDurationMillis applies when a duration is missing or unreadable
const DefaultDurationMillis int64 = 1000

var durationPattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(milliseconds|millisecond|ms|seconds|second|secs|sec|s)?`)

// ParseDurationMillis converts a duration field to milliseconds.
// Numbers are already milliseconds. Strings carry an optional unit, and a
// string without a unit is read as seconds.
func ParseDurationMillis(v Value, present bool) int64 {
	if !present {
		return DefaultDurationMillis
	}
	switch v.Kind() {
	case KindNumber:
		f, _ := v.AsFloat()
		return floorZero(int64(f))
	case KindString:
		m := durationPattern.FindStringSubmatch(v.str)
		if m == nil {
			return DefaultDurationMillis
		}
		n, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return DefaultDurationMillis
		}
		switch strings.ToLower(m[2]) {
		case "ms", "millisecond", "milliseconds":
		default:
			n *= 1000
		}
		return floorZero(int64(n))
	}
	return DefaultDurationMillis
}

func floorZero(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}
