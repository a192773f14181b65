package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Period selects an aggregation window: a calendar month, or a whole year
// when Month is zero.
type Period struct {
	Year  int `json:"year"`
	Month int `json:"month,omitempty"`
}

var ErrInvalidPeriod = errors.New("invalid period")

func MonthPeriod(year, month int) Period { return Period{Year: year, Month: month} }
func YearPeriod(year int) Period         { return Period{Year: year} }

// PeriodOf returns the month containing t.
func PeriodOf(t time.Time) Period {
	return MonthPeriod(t.Year(), int(t.Month()))
}

func (p Period) IsYear() bool { return p.Month == 0 }

func (p Period) Validate() error {
	if p.Year < 1900 || p.Year > 9999 {
		return invalid("year", ErrInvalidPeriod)
	}
	if p.Month < 0 || p.Month > 12 {
		return invalid("month", ErrInvalidPeriod)
	}
	return nil
}

// Start is the first day of the period.
func (p Period) Start() Date {
	if p.IsYear() {
		return NewDate(p.Year, 1, 1)
	}
	return NewDate(p.Year, p.Month, 1)
}

// End is the first day after the period (exclusive bound).
func (p Period) End() Date {
	if p.IsYear() {
		return NewDate(p.Year+1, 1, 1)
	}
	return Date{Time: p.Start().AddDate(0, 1, 0)}
}

// Range returns [Start, End).
func (p Period) Range() (from, to Date) {
	return p.Start(), p.End()
}

// Contains reports whether d falls inside the period.
func (p Period) Contains(d Date) bool {
	return !d.Before(p.Start().Time) && d.Before(p.End().Time)
}

// Prev returns the immediately preceding period of the same kind.
func (p Period) Prev() Period {
	if p.IsYear() {
		return YearPeriod(p.Year - 1)
	}
	if p.Month == 1 {
		return MonthPeriod(p.Year-1, 12)
	}
	return MonthPeriod(p.Year, p.Month-1)
}

// Next returns the immediately following period of the same kind.
func (p Period) Next() Period {
	if p.IsYear() {
		return YearPeriod(p.Year + 1)
	}
	if p.Month == 12 {
		return MonthPeriod(p.Year+1, 1)
	}
	return MonthPeriod(p.Year, p.Month+1)
}

// DaysIn returns the number of days in a monthly period, 0 for a year.
func (p Period) DaysIn() int {
	if p.IsYear() {
		return 0
	}
	return p.End().AddDate(0, 0, -1).Day()
}

// Key is the compact form used in cache keys and carryover markers:
// "2025-03" for months, "2025" for years.
func (p Period) Key() string {
	if p.IsYear() {
		return strconv.Itoa(p.Year)
	}
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// Label is the human form: "March 2025" or "2025".
func (p Period) Label() string {
	if p.IsYear() {
		return strconv.Itoa(p.Year)
	}
	return time.Month(p.Month).String() + " " + strconv.Itoa(p.Year)
}

func (p Period) String() string { return p.Key() }

// ParsePeriodKey is the inverse of Key.
func ParsePeriodKey(s string) (Period, error) {
	s = strings.TrimSpace(s)
	yearStr, monthStr, hasMonth := strings.Cut(s, "-")
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return Period{}, ErrInvalidPeriod
	}
	p := YearPeriod(year)
	if hasMonth {
		month, err := strconv.Atoi(monthStr)
		if err != nil || month < 1 {
			return Period{}, ErrInvalidPeriod
		}
		p.Month = month
	}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}
