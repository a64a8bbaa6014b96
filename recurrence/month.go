package recurrence

import (
	"fmt"
	"time"
)

// Month is a calendar month independent of any time zone.
type Month struct {
	Year  int
	Month time.Month
}

// ParseMonth parses a "YYYY-MM" string.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Month{}, fmt.Errorf("invalid month %q: want YYYY-MM", s)
	}
	return Month{Year: t.Year(), Month: t.Month()}, nil
}

// MonthOf returns the month containing t in t's location.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// Add returns the month n months after m.
func (m Month) Add(n int) Month {
	return MonthOf(m.first().AddDate(0, n, 0))
}

func (m Month) Next() Month {
	return m.Add(1)
}

// Days is the number of days in m.
func (m Month) Days() int {
	return m.first().AddDate(0, 1, -1).Day()
}

func (m Month) Before(o Month) bool {
	if m.Year != o.Year {
		return m.Year < o.Year
	}
	return m.Month < o.Month
}

func (m Month) After(o Month) bool {
	return o.Before(m)
}

// Contains reports whether the calendar date of d falls in m.
func (m Month) Contains(d time.Time) bool {
	return d.Year() == m.Year && d.Month() == m.Month
}

// Date returns day of m as a UTC midnight date.
func (m Month) Date(day int) time.Time {
	return time.Date(m.Year, m.Month, day, 0, 0, 0, 0, time.UTC)
}

func (m Month) first() time.Time {
	return m.Date(1)
}
