package logger

import (
	"strconv"
	"strings"
	"time"
)

// Took is the time since start rounded to milliseconds.
func Took(start time.Time) time.Duration {
	return RoundMS(time.Since(start))
}

// RoundMS rounds d to whole milliseconds; negative values become zero.
func RoundMS(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d.Round(time.Millisecond)
}

// Preview joins at most limit values and appends "+N more" for the rest.
func Preview(values []string, limit int) string {
	limit = max(limit, 0)
	if len(values) <= limit {
		return strings.Join(values, ", ")
	}
	rest := "+" + strconv.Itoa(len(values)-limit) + " more"
	if limit == 0 {
		return rest
	}
	return strings.Join(values[:limit], ", ") + " " + rest
}
