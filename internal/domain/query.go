package domain

import (
	"cmp"
	"slices"
	"time"
)

// DateLayout is the calendar date format accepted by the read API.
const DateLayout = "2006-01-02"

// Pair is a directed country pair.
type Pair struct {
	Origin  string
	Partner string
}

// MonthRange selects a pair's monthly rows between two months, inclusive.
type MonthRange struct {
	Pair
	StartYear, StartMonth int
	EndYear, EndMonth     int
}

// Contains reports whether the row's month lies within the range.
func (r MonthRange) Contains(row SentimentRow) bool {
	k := monthKey(row.Year, row.Month)
	return k >= monthKey(r.StartYear, r.StartMonth) && k <= monthKey(r.EndYear, r.EndMonth)
}

func monthKey(year, month int) int { return year*100 + month }

// DateRange selects a pair's daily rows between two dates, inclusive.
type DateRange struct {
	Pair
	Start, End time.Time
}

// Contains reports whether the row's calendar day lies within the range.
func (r DateRange) Contains(row SentimentRow) bool {
	d := row.Date()
	return !d.Before(r.Start) && !d.After(r.End)
}

// Date returns the row's day as a UTC midnight. Monthly rows map to the
// first of the month.
func (r SentimentRow) Date() time.Time {
	day := max(r.Day, 1)
	return time.Date(r.Year, time.Month(r.Month), day, 0, 0, 0, 0, time.UTC)
}

// SortRows orders rows by pair, then date.
func SortRows(rows []SentimentRow) {
	slices.SortFunc(rows, func(a, b SentimentRow) int {
		return cmp.Or(
			cmp.Compare(a.Origin, b.Origin),
			cmp.Compare(a.Partner, b.Partner),
			a.Date().Compare(b.Date()),
		)
	})
}

// Aggregate averages daily rows into buckets of the given level, ordered by
// date. Events counts the daily rows in each bucket.
func Aggregate(rows []SentimentRow, level AggregateLevel) []AggregateRecord {
	type bucket struct {
		year, month, day int
	}
	sums := make(map[bucket]float64)
	counts := make(map[bucket]int)
	var order []bucket
	for _, r := range rows {
		b := bucket{year: r.Year}
		switch level {
		case AggregateDaily:
			b.month, b.day = r.Month, r.Day
		case AggregateMonthly:
			b.month = r.Month
		}
		if _, ok := counts[b]; !ok {
			order = append(order, b)
		}
		sums[b] += r.AvgScore
		counts[b]++
	}

	out := make([]AggregateRecord, 0, len(order))
	for _, b := range order {
		out = append(out, AggregateRecord{
			Year:     b.year,
			Month:    b.month,
			Day:      b.day,
			AvgScore: sums[b] / float64(counts[b]),
			Events:   counts[b],
		})
	}
	slices.SortFunc(out, func(a, b AggregateRecord) int {
		return cmp.Or(cmp.Compare(a.Year, b.Year), cmp.Compare(a.Month, b.Month), cmp.Compare(a.Day, b.Day))
	})
	return out
}
