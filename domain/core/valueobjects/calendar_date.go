package valueobjects

import (
	"fmt"
	"time"

	pkgerrors "memorymap-backend/pkg/errors"
)

// DateLayout is the wire format of a memory's date field (dd/MM/yyyy).
const DateLayout = "02/01/2006"

// CalendarDate is a day on the proleptic Gregorian calendar, with no
// time-of-day or zone attached.
type CalendarDate struct {
	year  int
	month time.Month
	day   int
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) CalendarDate {
	y, m, d := t.Date()
	return CalendarDate{year: y, month: m, day: d}
}

// NewCalendarDate validates and creates a CalendarDate.
func NewCalendarDate(year int, month time.Month, day int) (CalendarDate, error) {
	if month < time.January || month > time.December {
		return CalendarDate{}, pkgerrors.NewValidationError(fmt.Sprintf("invalid month %d", month))
	}
	if day < 1 || day > daysIn(year, month) {
		return CalendarDate{}, pkgerrors.NewValidationError(fmt.Sprintf("invalid day %d for %04d-%02d", day, year, month))
	}
	return CalendarDate{year: year, month: month, day: day}, nil
}

// ParseCalendarDate parses a dd/MM/yyyy string.
func ParseCalendarDate(s string) (CalendarDate, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return CalendarDate{}, pkgerrors.NewValidationError(fmt.Sprintf("invalid date %q", s)).WithCause(err)
	}
	return DateOf(t), nil
}

func (d CalendarDate) Year() int         { return d.year }
func (d CalendarDate) Month() time.Month { return d.month }
func (d CalendarDate) Day() int          { return d.day }

// IsZero reports whether d is the zero value.
func (d CalendarDate) IsZero() bool {
	return d.year == 0 && d.month == 0 && d.day == 0
}

// String formats the date as dd/MM/yyyy.
func (d CalendarDate) String() string {
	if d.IsZero() {
		return ""
	}
	return fmt.Sprintf("%02d/%02d/%04d", d.day, int(d.month), d.year)
}

// Equals checks if two dates denote the same day
func (d CalendarDate) Equals(other CalendarDate) bool {
	return d == other
}

// YearsEarlier moves back n calendar years keeping month and day. A day
// that does not exist in the target month clamps to the month's last day,
// so 29/02/2024 minus one year is 28/02/2023.
func (d CalendarDate) YearsEarlier(n int) CalendarDate {
	year := d.year - n
	day := d.day
	if last := daysIn(year, d.month); day > last {
		day = last
	}
	return CalendarDate{year: year, month: d.month, day: day}
}

func daysIn(year int, month time.Month) int {
	// day 0 of the following month is the last day of month
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
