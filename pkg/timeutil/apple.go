package timeutil

import (
	"fmt"
	"time"
)

// appleEpochOffset is the Unix timestamp of 2001-01-01 00:00:00 UTC, the
// zero point of Apple Core Data timestamps.
const appleEpochOffset = 978307200

// FromAppleNanos converts an Apple message timestamp (nanoseconds since
// 2001-01-01 UTC) into a time.Time. Zero timestamps mean "not set" in the
// archive and report ok=false.
func FromAppleNanos(ts int64) (time.Time, bool) {
	if ts == 0 {
		return time.Time{}, false
	}
	sec := ts/1e9 + appleEpochOffset
	nsec := ts % 1e9
	return time.Unix(sec, nsec), true
}

// LocalISO renders t as an ISO-8601 string in the local zone.
func LocalISO(t time.Time) string {
	return t.In(time.Local).Format(time.RFC3339)
}

// AppleNanosToISO combines FromAppleNanos and LocalISO. The second return
// is false when the timestamp is absent.
func AppleNanosToISO(ts int64) (string, bool) {
	t, ok := FromAppleNanos(ts)
	if !ok {
		return "", false
	}
	return LocalISO(t), true
}

// MonthDayKey formats a calendar day as the zero-padded MM-DD key used to
// match messages across years.
func MonthDayKey(month, day int) string {
	return fmt.Sprintf("%02d-%02d", month, day)
}
