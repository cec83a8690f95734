package domain

import (
	"fmt"
	"strings"
)

// Column names shared by the result files and the table store.
const (
	ColOrigin   = "Actor1CountryCode"
	ColPartner  = "Actor2CountryCode"
	ColYear     = "Year"
	ColMonth    = "Month"
	ColDay      = "Day"
	ColAvgScore = "AvgGoldsteinScale"
)

// Granularity selects the aggregation level of sentiment rows.
type Granularity string

const (
	// GranularityMonthly averages events per pair and year-month.
	GranularityMonthly Granularity = "monthly"
	// GranularityDaily averages events per pair and calendar day.
	GranularityDaily Granularity = "daily"
)

// ParseGranularity accepts "monthly" or "daily" (case-insensitive).
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(s))); g {
	case GranularityMonthly, GranularityDaily:
		return g, nil
	default:
		return "", fmt.Errorf("unknown granularity %q (want monthly or daily)", s)
	}
}

// Columns returns the on-disk column order for the granularity.
func (g Granularity) Columns() []string {
	if g == GranularityDaily {
		return []string{ColOrigin, ColPartner, ColYear, ColMonth, ColDay, ColAvgScore}
	}
	return []string{ColOrigin, ColPartner, ColYear, ColMonth, ColAvgScore}
}

// ConflictColumns is the natural key of a row at this granularity. It is only
// used by the scheduled sync, which upserts; plain uploads never deduplicate.
func (g Granularity) ConflictColumns() []string {
	cols := g.Columns()
	return cols[:len(cols)-1]
}

// SentimentRow is one aggregated (pair, period) average Goldstein score.
type SentimentRow struct {
	Origin   string  `json:"Actor1CountryCode"`
	Partner  string  `json:"Actor2CountryCode"`
	Year     int     `json:"Year"`
	Month    int     `json:"Month"`
	Day      int     `json:"Day,omitempty"`
	AvgScore float64 `json:"AvgGoldsteinScale"`
}

// Granularity infers the aggregation level from the Day field.
func (r SentimentRow) Granularity() Granularity {
	if r.Day != 0 {
		return GranularityDaily
	}
	return GranularityMonthly
}

// InPeriod reports whether the row falls inside p.
func (r SentimentRow) InPeriod(p Period) bool {
	if r.Year != p.Year {
		return false
	}
	return p.Month == 0 || r.Month == p.Month
}

// Key identifies the row by pair and date, e.g. "USA|ISR|2024-03".
func (r SentimentRow) Key() string {
	if r.Day != 0 {
		return fmt.Sprintf("%s|%s|%04d-%02d-%02d", r.Origin, r.Partner, r.Year, r.Month, r.Day)
	}
	return fmt.Sprintf("%s|%s|%04d-%02d", r.Origin, r.Partner, r.Year, r.Month)
}

// Values returns the row's fields in the order of g.Columns().
func (r SentimentRow) Values(g Granularity) []any {
	if g == GranularityDaily {
		return []any{r.Origin, r.Partner, r.Year, r.Month, r.Day, r.AvgScore}
	}
	return []any{r.Origin, r.Partner, r.Year, r.Month, r.AvgScore}
}

// Query describes one warehouse fetch.
type Query struct {
	Period      Period
	Granularity Granularity
	// Partner optionally restricts results to a single Actor2 country code.
	Partner string
}

func (q Query) String() string {
	s := q.Period.String() + "/" + string(q.Granularity)
	if q.Partner != "" {
		s += "/" + q.Partner
	}
	return s
}

// AggregateLevel groups daily rows for the read API.
type AggregateLevel string

const (
	AggregateDaily   AggregateLevel = "daily"
	AggregateMonthly AggregateLevel = "monthly"
	AggregateYearly  AggregateLevel = "yearly"
)

// ParseAggregateLevel accepts daily, monthly, or yearly.
func ParseAggregateLevel(s string) (AggregateLevel, bool) {
	switch l := AggregateLevel(s); l {
	case AggregateDaily, AggregateMonthly, AggregateYearly:
		return l, true
	default:
		return "", false
	}
}

// AggregateRecord is a pair's mean score over one aggregation bucket.
type AggregateRecord struct {
	Year     int     `json:"year"`
	Month    int     `json:"month,omitempty"`
	Day      int     `json:"day,omitempty"`
	AvgScore float64 `json:"avgGoldsteinScale"`
	Events   int     `json:"numDays"`
}
