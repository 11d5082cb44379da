package reporting

import (
	"fmt"
	"time"

	"github.com/dompet-app/dompet/internal/apperr"
)

const dayLayout = "2006-01-02"

// Range is an inclusive time window. A zero bound is open.
type Range struct {
	From time.Time
	To   time.Time
}

// ParseDay resolves a calendar date (or any RFC 3339 instant on it) to the
// whole day in loc.
func ParseDay(field, value string, loc *time.Location) (Range, error) {
	if value == "" {
		return Range{}, nil
	}
	if t, err := time.ParseInLocation(dayLayout, value, loc); err == nil {
		return wholeDay(t), nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return Range{}, invalidDate(field, value)
	}
	t = t.In(loc)
	return wholeDay(time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)), nil
}

// ParseRange resolves start and end filters. Date-only values cover the
// whole day in loc; RFC 3339 values are used as exact bounds.
func ParseRange(startField, start, endField, end string, loc *time.Location) (Range, error) {
	var r Range
	if start != "" {
		t, _, err := parseBound(startField, start, loc)
		if err != nil {
			return Range{}, err
		}
		r.From = t
	}
	if end != "" {
		t, dateOnly, err := parseBound(endField, end, loc)
		if err != nil {
			return Range{}, err
		}
		if dateOnly {
			t = endOfDay(t)
		}
		r.To = t
	}
	if !r.From.IsZero() && !r.To.IsZero() && r.From.After(r.To) {
		return Range{}, apperr.Validation(apperr.CodeInvalidDateRange,
			fmt.Sprintf("%s must not be after %s", startField, endField), apperr.WithField(startField))
	}
	return r, nil
}

func parseBound(field, value string, loc *time.Location) (time.Time, bool, error) {
	if t, err := time.ParseInLocation(dayLayout, value, loc); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, false, invalidDate(field, value)
	}
	return t, false, nil
}

func wholeDay(start time.Time) Range {
	return Range{From: start, To: endOfDay(start)}
}

func endOfDay(start time.Time) time.Time {
	return start.AddDate(0, 0, 1).Add(-time.Nanosecond)
}

func invalidDate(field, value string) error {
	return apperr.Validation(apperr.CodeInvalidDate,
		fmt.Sprintf("%s must be a date (YYYY-MM-DD) or an RFC 3339 timestamp, got %q", field, value),
		apperr.WithField(field))
}
