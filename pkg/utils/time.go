package utils

import "time"

// Now returns the current time in UTC timezone
func Now() time.Time {
	return time.Now().UTC()
}

// ElapsedDays returns the fractional number of days between since and now.
// Wait-state preconditions compare this against whole-day thresholds.
func ElapsedDays(since, now time.Time) float64 {
	return now.Sub(since).Hours() / 24.0
}

// FormatISO8601 formats a time.Time to ISO8601 format in UTC
func FormatISO8601(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
