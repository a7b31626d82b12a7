// Package billing holds the calendar and status rules used to reconcile monthly
// tuition payments. Everything here is pure and works on calendar dates expressed
// as midnight UTC.
package billing

import (
	"fmt"
	"time"
)

// Period identifies a reference month.
type Period struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

// PeriodOf returns the calendar month containing t.
func PeriodOf(t time.Time) Period {
	return Period{Month: int(t.Month()), Year: t.Year()}
}

// Valid reports whether the month is in 1..12 and the year is positive.
func (p Period) Valid() bool {
	return p.Month >= 1 && p.Month <= 12 && p.Year > 0
}

// Next returns the following month.
func (p Period) Next() Period {
	if p.Month >= 12 {
		return Period{Month: 1, Year: p.Year + 1}
	}
	return Period{Month: p.Month + 1, Year: p.Year}
}

// AddMonths shifts the period by n months, n may be negative.
func (p Period) AddMonths(n int) Period {
	idx := p.Year*12 + (p.Month - 1) + n
	return Period{Month: idx%12 + 1, Year: idx / 12}
}

// Before reports whether p is strictly earlier than o.
func (p Period) Before(o Period) bool {
	if p.Year != o.Year {
		return p.Year < o.Year
	}
	return p.Month < o.Month
}

// Equal reports whether both periods name the same month.
func (p Period) Equal(o Period) bool {
	return p.Month == o.Month && p.Year == o.Year
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// LastDay returns the number of days in the month.
func (p Period) LastDay() int {
	return time.Date(p.Year, time.Month(p.Month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ComputeDueDate returns the due date for anchorDay in the given reference month.
// An anchor past the end of the month is clamped to the month's last day.
func ComputeDueDate(anchorDay, month, year int) time.Time {
	p := Period{Month: month, Year: year}
	day := anchorDay
	if day < 1 {
		day = 1
	}
	if last := p.LastDay(); day > last {
		day = last
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// DueDate is ComputeDueDate for a Period.
func DueDate(anchorDay int, p Period) time.Time {
	return ComputeDueDate(anchorDay, p.Month, p.Year)
}

// DateOf truncates t to its calendar date in loc and returns it as midnight UTC.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
