package metricsql

import (
	"fmt"
	"strings"
	"time"
)

// WindowPreset is a named relative time range resolved against "now".
type WindowPreset string

const (
	WindowLast7Days   WindowPreset = "last_7_days"
	WindowLast30Days  WindowPreset = "last_30_days"
	WindowLast90Days  WindowPreset = "last_90_days"
	WindowMonthToDate WindowPreset = "month_to_date"
	WindowYearToDate  WindowPreset = "year_to_date"
	WindowAllTime     WindowPreset = "all_time"
)

// ResolveWindow turns a preset into a concrete [start, end) range relative to
// now. All-time returns a nil start. End is always now.
func ResolveWindow(preset WindowPreset, now time.Time) (*time.Time, time.Time, error) {
	now = now.UTC()
	switch WindowPreset(strings.TrimSpace(string(preset))) {
	case WindowLast7Days:
		start := now.AddDate(0, 0, -7)
		return &start, now, nil
	case WindowLast30Days:
		start := now.AddDate(0, 0, -30)
		return &start, now, nil
	case WindowLast90Days:
		start := now.AddDate(0, 0, -90)
		return &start, now, nil
	case WindowMonthToDate:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return &start, now, nil
	case WindowYearToDate:
		start := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		return &start, now, nil
	case WindowAllTime:
		return nil, now, nil
	default:
		return nil, time.Time{}, fmt.Errorf("invalid window preset %q", preset)
	}
}

// ValidWindowPreset reports whether preset names a known window.
func ValidWindowPreset(preset WindowPreset) bool {
	_, _, err := ResolveWindow(preset, time.Now())
	return err == nil
}

// NextBucketStart returns the exclusive end of the bucket window beginning at
// start. Months add a calendar month; everything is computed in UTC so DST
// never skews the width.
func NextBucketStart(start time.Time, bucket Bucket) (time.Time, error) {
	start = start.UTC()
	switch bucket {
	case BucketHour:
		return start.Add(time.Hour), nil
	case BucketDay:
		return start.AddDate(0, 0, 1), nil
	case BucketWeek:
		return start.AddDate(0, 0, 7), nil
	case BucketMonth:
		return start.AddDate(0, 1, 0), nil
	default:
		return time.Time{}, fmt.Errorf("bucket %q has no width", bucket)
	}
}

// ParseBucketTime accepts the bucket timestamps the engine returns: RFC3339,
// or the bare SQL datetime forms the dialects emit.
func ParseBucketTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable bucket timestamp %q", raw)
}
