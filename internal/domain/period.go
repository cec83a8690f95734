package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Default bounds of the GDELT 1.0 events table coverage we query.
const (
	MinYear = 1995
	MaxYear = 2025

	maxCalendarYear = 9999
)

// YearBounds is an inclusive range of acceptable years.
type YearBounds struct {
	Min int
	Max int
}

// DefaultYearBounds returns [MinYear, MaxYear].
func DefaultYearBounds() YearBounds {
	return YearBounds{Min: MinYear, Max: MaxYear}
}

// Clamp intersects [start, end] with b. ok is false when the ranges do not
// overlap.
func (b YearBounds) Clamp(start, end int) (lo, hi int, ok bool) {
	lo, hi = max(start, b.Min), min(end, b.Max)
	return lo, hi, lo <= hi
}

// Period identifies one fetch unit: a whole year when Month is 0, otherwise a
// single year-month.
type Period struct {
	Year  int `json:"year"`
	Month int `json:"month,omitempty"`
}

// YearPeriod returns the period covering a whole year.
func YearPeriod(year int) Period {
	return Period{Year: year}
}

// MonthPeriod returns the period covering a single month.
func MonthPeriod(year, month int) Period {
	return Period{Year: year, Month: month}
}

// HasMonth reports whether the period is a single month.
func (p Period) HasMonth() bool {
	return p.Month != 0
}

// Validate checks the period against the default year bounds.
func (p Period) Validate() error {
	return p.ValidateWithin(DefaultYearBounds())
}

// ValidateWithin checks the year against b and the month against [1, 12].
func (p Period) ValidateWithin(b YearBounds) error {
	if p.Year < b.Min || p.Year > b.Max {
		return fmt.Errorf("%w: year %d must be between %d and %d", ErrInvalidPeriod, p.Year, b.Min, b.Max)
	}
	if p.Month != 0 && (p.Month < 1 || p.Month > 12) {
		return fmt.Errorf("%w: month %d must be between 1 and 12", ErrInvalidPeriod, p.Month)
	}
	return nil
}

// MonthYear returns the YYYYMM integer used by the GDELT MonthYear column.
func (p Period) MonthYear() int {
	return p.Year*100 + p.Month
}

func (p Period) String() string {
	if p.Month == 0 {
		return fmt.Sprintf("%04d", p.Year)
	}
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// Months expands a year period into its twelve month periods. A month period
// expands to itself.
func (p Period) Months() []Period {
	if p.HasMonth() {
		return []Period{p}
	}
	months := make([]Period, 0, 12)
	for m := 1; m <= 12; m++ {
		months = append(months, MonthPeriod(p.Year, m))
	}
	return months
}

// ParseYear parses a textual year. Non-integer input wraps ErrInvalidPeriod.
// Range checks are left to Validate so callers can decide skip-vs-abort.
func ParseYear(s string) (int, error) {
	y, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: year %q is not an integer", ErrInvalidPeriod, s)
	}
	return y, nil
}

// ParseMonth parses a textual month and checks it is within [1, 12].
func ParseMonth(s string) (int, error) {
	m, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: month %q is not an integer", ErrInvalidPeriod, s)
	}
	if m < 1 || m > 12 {
		return 0, fmt.Errorf("%w: month %d must be between 1 and 12", ErrInvalidPeriod, m)
	}
	return m, nil
}

// YearRange returns one year period per year in [start, end].
func YearRange(start, end int) ([]Period, error) {
	if start > end {
		return nil, fmt.Errorf("%w: start year %d is after end year %d", ErrInvalidPeriod, start, end)
	}
	if start < 0 || end > maxCalendarYear {
		return nil, fmt.Errorf("%w: years %d..%d must be between 0 and %d", ErrInvalidPeriod, start, end, maxCalendarYear)
	}
	periods := make([]Period, 0, end-start+1)
	for y := start; y <= end; y++ {
		periods = append(periods, YearPeriod(y))
	}
	return periods, nil
}
