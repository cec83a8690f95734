// Package bigquery fetches aggregated GDELT sentiment rows from BigQuery.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/couchcryptid/brsi-pipeline/internal/domain"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z0-9_\-]+(\.[A-Za-z0-9_\-]+){1,2}$`)

// Tables names the events table and the country-pairs reference table.
type Tables struct {
	Events string // e.g. gdelt-bq.full.events
	Pairs  string // e.g. 218_Countries.Pairs
}

func (t Tables) validate() error {
	for _, name := range []string{t.Events, t.Pairs} {
		if !tableNamePattern.MatchString(name) {
			return fmt.Errorf("invalid BigQuery table name %q", name)
		}
	}
	return nil
}

// Warehouse runs the pair-sentiment aggregation against BigQuery.
type Warehouse struct {
	client   *bigquery.Client
	tables   Tables
	location string
	logger   *slog.Logger
}

// NewWarehouse opens a BigQuery client for project. Credentials come from the
// environment (GOOGLE_APPLICATION_CREDENTIALS) unless opts override them.
func NewWarehouse(ctx context.Context, project, location string, tables Tables, logger *slog.Logger, opts ...option.ClientOption) (*Warehouse, error) {
	if err := tables.validate(); err != nil {
		return nil, err
	}
	client, err := bigquery.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, fmt.Errorf("bigquery client: %w", err)
	}
	return &Warehouse{client: client, tables: tables, location: location, logger: logger}, nil
}

// Close releases the underlying client.
func (w *Warehouse) Close() error {
	return w.client.Close()
}

// Fetch runs the aggregation for q and returns its rows. Rows with a NULL in
// any column are dropped and counted in the log.
func (w *Warehouse) Fetch(ctx context.Context, q domain.Query) ([]domain.SentimentRow, error) {
	sql, params := buildQuery(w.tables, q)

	query := w.client.Query(sql)
	query.Parameters = params
	query.Location = w.location

	it, err := query.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("run query %s: %w", q, err)
	}

	var (
		rows    []domain.SentimentRow
		dropped int
	)
	for {
		var rec record
		err := it.Next(&rec)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read rows %s: %w", q, err)
		}
		row, ok := rec.toRow(q.Granularity)
		if !ok {
			dropped++
			continue
		}
		rows = append(rows, row)
	}

	if dropped > 0 {
		w.logger.Warn("dropped rows with null columns", "query", q.String(), "dropped", dropped)
	}
	w.logger.Info("fetched rows", "query", q.String(), "rows", len(rows))
	return rows, nil
}

// record mirrors one result row. Every field is nullable in GDELT.
type record struct {
	Origin   bigquery.NullString  `bigquery:"Actor1CountryCode"`
	Partner  bigquery.NullString  `bigquery:"Actor2CountryCode"`
	Year     bigquery.NullInt64   `bigquery:"Year"`
	Month    bigquery.NullInt64   `bigquery:"Month"`
	Day      bigquery.NullInt64   `bigquery:"Day"`
	AvgScore bigquery.NullFloat64 `bigquery:"AvgGoldsteinScale"`
}

func (r record) toRow(g domain.Granularity) (domain.SentimentRow, bool) {
	if !r.Origin.Valid || !r.Partner.Valid || !r.Year.Valid || !r.Month.Valid || !r.AvgScore.Valid {
		return domain.SentimentRow{}, false
	}
	if r.Origin.StringVal == "" || r.Partner.StringVal == "" {
		return domain.SentimentRow{}, false
	}
	row := domain.SentimentRow{
		Origin:   r.Origin.StringVal,
		Partner:  r.Partner.StringVal,
		Year:     int(r.Year.Int64),
		Month:    int(r.Month.Int64),
		AvgScore: r.AvgScore.Float64,
	}
	if g == domain.GranularityDaily {
		if !r.Day.Valid {
			return domain.SentimentRow{}, false
		}
		row.Day = int(r.Day.Int64)
	}
	return row, true
}

// buildQuery renders the aggregation for q. Table names are interpolated after
// validation; every value is a query parameter.
func buildQuery(t Tables, q domain.Query) (string, []bigquery.QueryParameter) {
	var (
		where  []string
		params []bigquery.QueryParameter
	)
	if q.Period.HasMonth() {
		where = append(where, "e.MonthYear = @monthyear")
		params = append(params, bigquery.QueryParameter{Name: "monthyear", Value: q.Period.MonthYear()})
	} else {
		where = append(where, "e.Year = @year")
		params = append(params, bigquery.QueryParameter{Name: "year", Value: q.Period.Year})
	}
	if q.Partner != "" {
		where = append(where, "cp.Actor2CountryCode = @partner")
		params = append(params, bigquery.QueryParameter{Name: "partner", Value: strings.ToUpper(q.Partner)})
	}

	dayExpr := "0"
	// Ordinals avoid ambiguity between the output aliases and the joined columns.
	groupBy := "1, 2, 3, 4"
	if q.Granularity == domain.GranularityDaily {
		dayExpr = "EXTRACT(DAY FROM PARSE_DATE('%Y%m%d', CAST(e.SQLDATE AS STRING)))"
		groupBy += ", 5"
	}

	var b strings.Builder
	b.WriteString("SELECT\n")
	b.WriteString("  cp.Actor1CountryCode AS Actor1CountryCode,\n")
	b.WriteString("  cp.Actor2CountryCode AS Actor2CountryCode,\n")
	b.WriteString("  EXTRACT(YEAR FROM PARSE_DATE('%Y%m%d', CAST(e.SQLDATE AS STRING))) AS Year,\n")
	b.WriteString("  EXTRACT(MONTH FROM PARSE_DATE('%Y%m%d', CAST(e.SQLDATE AS STRING))) AS Month,\n")
	fmt.Fprintf(&b, "  %s AS Day,\n", dayExpr)
	b.WriteString("  AVG(e.GoldsteinScale) AS AvgGoldsteinScale\n")
	fmt.Fprintf(&b, "FROM `%s` cp\n", t.Pairs)
	fmt.Fprintf(&b, "JOIN `%s` e\n", t.Events)
	b.WriteString("  ON cp.Actor1CountryCode = e.Actor1CountryCode AND cp.Actor2CountryCode = e.Actor2CountryCode\n")
	fmt.Fprintf(&b, "WHERE %s\n", strings.Join(where, " AND "))
	fmt.Fprintf(&b, "GROUP BY %s\n", groupBy)
	fmt.Fprintf(&b, "ORDER BY %s", groupBy)
	return b.String(), params
}
