// Package calendar drives paged month/year date pickers and validates date
// inputs.
package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/devicelab-dev/domkit/pkg/core"
)

var monthNames = map[string]time.Month{}

func init() {
	for m := time.January; m <= time.December; m++ {
		name := strings.ToLower(m.String())
		monthNames[name] = m
		monthNames[name[:3]] = m
	}
	monthNames["sept"] = time.September
}

// MonthIndex returns the zero-based index of a month name ("January" is 0).
// Full English names and three-letter abbreviations are accepted, in any case.
func MonthIndex(name string) (int, error) {
	m, ok := monthNames[strings.ToLower(strings.TrimSuffix(strings.TrimSpace(name), "."))]
	if !ok {
		return -1, core.ErrInvalidMonthName.WithMessagef("invalid month name %q", name)
	}
	return int(m) - 1, nil
}

// Period is a (month, year) pair collapsed to year*12 + monthIndex, so that
// periods compare as plain integers across year boundaries.
type Period int

// NewPeriod builds a Period.
func NewPeriod(year int, month time.Month) Period {
	return Period(year*12 + int(month) - 1)
}

// Year returns the period's year.
func (p Period) Year() int { return int(p) / 12 }

// Month returns the period's month.
func (p Period) Month() time.Month { return time.Month(int(p)%12 + 1) }

// Add moves the period by n months.
func (p Period) Add(n int) Period { return p + Period(n) }

// String returns e.g. "April 2026".
func (p Period) String() string {
	return fmt.Sprintf("%s %d", p.Month(), p.Year())
}

// ParsePeriod parses a picker label such as "April 2026".
func ParsePeriod(label string) (Period, error) {
	fields := strings.Fields(strings.ReplaceAll(label, ",", " "))
	if len(fields) != 2 {
		return 0, core.ErrInvalidDate.WithMessagef("cannot read month and year from label %q", label)
	}
	idx, err := MonthIndex(fields[0])
	if err != nil {
		return 0, err
	}
	year, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, core.ErrInvalidDate.WithMessagef("invalid year %q in label %q", fields[1], label)
	}
	return Period(year*12 + idx), nil
}

// Target is a date to select in a picker.
type Target struct {
	Day   int
	Month time.Month
	Year  int
}

// ParseTarget parses "D Month YYYY", e.g. "15 April 2026". An unknown month
// name fails with ErrInvalidMonthName.
func ParseTarget(s string) (Target, error) {
	fields := strings.Fields(s)
	if len(fields) != 3 {
		return Target{}, core.ErrInvalidDate.WithMessagef("target date %q is not in \"D Month YYYY\" form", s)
	}
	day, err := strconv.Atoi(fields[0])
	if err != nil || day < 1 || day > 31 {
		return Target{}, core.ErrInvalidDate.WithMessagef("invalid day %q in target date %q", fields[0], s)
	}
	idx, err := MonthIndex(fields[1])
	if err != nil {
		return Target{}, err
	}
	year, err := strconv.Atoi(fields[2])
	if err != nil {
		return Target{}, core.ErrInvalidDate.WithMessagef("invalid year %q in target date %q", fields[2], s)
	}
	return Target{Day: day, Month: time.Month(idx + 1), Year: year}, nil
}

// Period returns the target's month and year.
func (t Target) Period() Period { return NewPeriod(t.Year, t.Month) }

// String returns e.g. "15 April 2026".
func (t Target) String() string {
	return fmt.Sprintf("%d %s %d", t.Day, t.Month, t.Year)
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01/02/2006",
	"2 January 2006",
	"2 Jan 2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

// ParseDate parses s in any of the supported layouts: ISO 8601 dates and
// timestamps, 2006/01/02, US 01/02/2006, "2 January 2006" and
// "January 2, 2006".
func ParseDate(s string) (time.Time, error) {
	v := strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, core.ErrInvalidDate.WithMessagef("invalid date %q", s)
}

// VerifyDateRange checks that both dates parse and that start is not after
// end. It does not touch the page.
func VerifyDateRange(start, end string) error {
	s, errStart := ParseDate(start)
	e, errEnd := ParseDate(end)
	if errStart != nil || errEnd != nil {
		return core.ErrInvalidDate.
			WithMessagef("invalid date provided: %s or %s", start, end).
			WithDetails(map[string]interface{}{"start": start, "end": end})
	}
	if s.After(e) {
		return core.ErrDateRangeViolation.
			WithMessagef("start date (%s) cannot be after end date (%s)", start, end).
			WithDetails(map[string]interface{}{"start": start, "end": end})
	}
	return nil
}
