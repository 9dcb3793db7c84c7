package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// daysInMonth allows Feb 29 so leap-day archives stay reachable.
var daysInMonth = [13]int{0, 31, 29, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// parseMonthDay reads the month/day query parameters. Both default to
// today's local date when absent.
func parseMonthDay(r *http.Request) (int, int, error) {
	now := time.Now()
	month := int(now.Month())
	day := now.Day()

	q := r.URL.Query()
	if v := q.Get("month"); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			return 0, 0, fmt.Errorf("invalid month %q", v)
		}
		month = m
	}
	if v := q.Get("day"); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil || d < 1 {
			return 0, 0, fmt.Errorf("invalid day %q", v)
		}
		day = d
	}
	if day > daysInMonth[month] {
		return 0, 0, fmt.Errorf("day %d out of range for month %d", day, month)
	}
	return month, day, nil
}

// pathID reads a numeric path variable.
func pathID(vars map[string]string, name string) (int64, error) {
	raw := vars[name]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return id, nil
}
