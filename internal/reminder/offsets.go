package reminder

import (
	"strconv"
	"strings"
	"time"
)

// DefaultOffsets spans three days before through two days after the due date.
func DefaultOffsets() []int {
	return []int{-3, -2, -1, 0, 1, 2}
}

// ParseOffsets parses a CSV offset list ("-3,-1,0"). A blank or malformed
// list falls back to the defaults rather than silencing reminders for the
// property.
func ParseOffsets(csv string) []int {
	csv = strings.TrimSpace(csv)
	if csv == "" {
		return DefaultOffsets()
	}

	var offsets []int
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return DefaultOffsets()
		}
		offsets = append(offsets, n)
	}
	if len(offsets) == 0 {
		return DefaultOffsets()
	}
	return offsets
}

// ParseSendTime parses an "HH:MM" send time, falling back to 08:00.
func ParseSendTime(s string) (hour, minute int) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 8, 0
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 8, 0
	}
	return h, m
}

// DayOffset returns today − dueDate in whole days. Negative means the due
// date is still ahead, zero is the due day, positive means overdue.
func DayOffset(dueDate, today time.Time) int {
	due := dateOnly(dueDate)
	now := dateOnly(today)
	return int(now.Sub(due).Hours() / 24)
}

func containsOffset(offsets []int, offset int) bool {
	for _, o := range offsets {
		if o == offset {
			return true
		}
	}
	return false
}

// dateOnly normalizes to midnight UTC so day arithmetic ignores both clock
// time and zone.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// dayWindow returns the inclusive [00:00:00, 23:59:59] bounds of t's calendar
// day in t's location. This is the daily dedup window.
func dayWindow(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	end := time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
	return start, end
}

// at anchors a clock time onto t's calendar day, in the given location. The
// day is read from t's own wall clock, so a DATE column scanned as UTC
// midnight keeps its date when anchored into the business zone.
func at(t time.Time, hour, minute int, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), hour, minute, 0, 0, loc)
}
