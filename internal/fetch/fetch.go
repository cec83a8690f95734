// Package fetch pulls sentiment rows per period from a warehouse and writes
// one result file per period.
package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/couchcryptid/brsi-pipeline/internal/adapter/csvfile"
	"github.com/couchcryptid/brsi-pipeline/internal/domain"
	"github.com/couchcryptid/brsi-pipeline/internal/observability"
	"github.com/couchcryptid/brsi-pipeline/internal/pipeline"
)

// Source returns the aggregated rows for one query.
type Source interface {
	Fetch(ctx context.Context, q domain.Query) ([]domain.SentimentRow, error)
}

// Options configures a Fetcher.
type Options struct {
	Dir    string // output directory for per-period files
	Bounds domain.YearBounds
	Policy pipeline.Policy
}

// Fetcher writes per-period result files from a Source.
type Fetcher struct {
	source  Source
	opts    Options
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates a Fetcher. Zero-valued Bounds default to domain.DefaultYearBounds.
func New(source Source, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Fetcher {
	if opts.Bounds == (domain.YearBounds{}) {
		opts.Bounds = domain.DefaultYearBounds()
	}
	if opts.Policy == "" {
		opts.Policy = pipeline.PolicyContinue
	}
	return &Fetcher{source: source, opts: opts, logger: logger, metrics: metrics}
}

// Result describes one written period file.
type Result struct {
	Query domain.Query
	Path  string
	Rows  int
}

// FetchPeriod validates q.Period, fetches its rows, checks that every row
// belongs to the period, and writes them to FilePath(dir, q).
func (f *Fetcher) FetchPeriod(ctx context.Context, q domain.Query) (Result, error) {
	rows, err := f.Rows(ctx, q)
	if err != nil {
		return Result{}, err
	}

	path := FilePath(f.opts.Dir, q)
	if err := csvfile.WriteFile(path, q.Granularity, rows); err != nil {
		return Result{}, fmt.Errorf("period %s: %w", q.Period, err)
	}
	f.logger.Info("wrote period file", "period", q.Period.String(), "path", path, "rows", len(rows))
	return Result{Query: q, Path: path, Rows: len(rows)}, nil
}

// Rows validates q.Period and fetches its rows without writing a file.
func (f *Fetcher) Rows(ctx context.Context, q domain.Query) ([]domain.SentimentRow, error) {
	if q.Granularity == "" {
		q.Granularity = domain.GranularityMonthly
	}
	if err := q.Period.ValidateWithin(f.opts.Bounds); err != nil {
		return nil, err
	}

	rows, err := f.source.Fetch(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("period %s: %w", q.Period, err)
	}
	for i, r := range rows {
		if !r.InPeriod(q.Period) {
			return nil, fmt.Errorf("period %s: row %d (%s) is outside the requested period", q.Period, i, r.Key())
		}
	}
	f.metrics.RowsFetched.WithLabelValues(string(q.Granularity)).Add(float64(len(rows)))
	return rows, nil
}

// FetchRange fetches every period of [start, end] under the configured batch
// policy: one query per year for monthly rows, one per month for daily rows.
func (f *Fetcher) FetchRange(ctx context.Context, start, end int, g domain.Granularity, partner string) (pipeline.Summary, error) {
	queries, err := f.Queries(start, end, g, partner)
	if err != nil {
		return pipeline.Summary{}, err
	}

	f.logger.Info("fetching periods", "start", start, "end", end, "granularity", string(g), "periods", len(queries))
	sum, err := pipeline.RunUnits(ctx, f.opts.Policy, f.logger, queries, func(ctx context.Context, q domain.Query) error {
		_, err := f.FetchPeriod(ctx, q)
		f.metrics.PeriodsProcessed.WithLabelValues(observability.Outcome(err)).Inc()
		return err
	})
	f.logger.Info("fetch finished", "succeeded", sum.Succeeded, "failed", len(sum.Failed))
	return sum, err
}

// Queries expands [start, end] into fetch units, limited to the Fetcher's
// year bounds. Years outside the bounds are logged once and skipped, or
// rejected under the fail-fast policy.
func (f *Fetcher) Queries(start, end int, g domain.Granularity, partner string) ([]domain.Query, error) {
	if start > end {
		return nil, fmt.Errorf("%w: start year %d is after end year %d", domain.ErrInvalidPeriod, start, end)
	}
	lo, hi, ok := f.opts.Bounds.Clamp(start, end)
	if !ok || lo != start || hi != end {
		err := fmt.Errorf("%w: years %d..%d are outside %d..%d",
			domain.ErrInvalidPeriod, start, end, f.opts.Bounds.Min, f.opts.Bounds.Max)
		if f.opts.Policy == pipeline.PolicyFailFast {
			return nil, err
		}
		f.logger.Warn("skipping years outside bounds", "requested_start", start, "requested_end", end,
			"min", f.opts.Bounds.Min, "max", f.opts.Bounds.Max, "error", err)
		if !ok {
			return nil, nil
		}
	}
	return Queries(lo, hi, g, partner)
}

// Queries expands a year range into fetch units for g.
func Queries(start, end int, g domain.Granularity, partner string) ([]domain.Query, error) {
	years, err := domain.YearRange(start, end)
	if err != nil {
		return nil, err
	}
	var queries []domain.Query
	for _, y := range years {
		periods := []domain.Period{y}
		if g == domain.GranularityDaily {
			periods = y.Months()
		}
		for _, p := range periods {
			queries = append(queries, domain.Query{Period: p, Granularity: g, Partner: partner})
		}
	}
	return queries, nil
}

// FilePath names the result file of q: gdelt_2024.csv, gdelt_2024_03.csv for
// a month period, with a _<PARTNER> suffix when a partner filter is set.
func FilePath(dir string, q domain.Query) string {
	name := fmt.Sprintf("gdelt_%04d", q.Period.Year)
	if q.Period.HasMonth() {
		name += fmt.Sprintf("_%02d", q.Period.Month)
	}
	if q.Partner != "" {
		name += "_" + q.Partner
	}
	return filepath.Join(dir, name+".csv")
}

var fileNameRE = regexp.MustCompile(`^gdelt_(\d{4})(?:_(\d{2}))?(?:_([A-Z]{3}))?\.csv$`)

// ParseFilePath recovers the period and partner from a name produced by
// FilePath. The granularity is not encoded in the name and is left unset.
func ParseFilePath(path string) (domain.Query, bool) {
	m := fileNameRE.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return domain.Query{}, false
	}
	year, _ := strconv.Atoi(m[1])
	p := domain.YearPeriod(year)
	if m[2] != "" {
		month, _ := strconv.Atoi(m[2])
		if month < 1 || month > 12 {
			return domain.Query{}, false
		}
		p = domain.MonthPeriod(year, month)
	}
	return domain.Query{Period: p, Partner: m[3]}, true
}
