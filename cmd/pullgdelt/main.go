// Command pullgdelt fetches yearly GDELT bilateral sentiment from BigQuery
// into per-year CSV files and merges them into one output file.
//
// Usage:
//
//	pullgdelt [start_year [end_year]] [-test] [-format csv|parquet]
//
// With -test, no warehouse query is issued; the files in SAMPLE_DATA_DIR are
// merged into merged_sample_data.csv instead.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/brsi-pipeline/internal/adapter/bigquery"
	"github.com/couchcryptid/brsi-pipeline/internal/adapter/s3"
	"github.com/couchcryptid/brsi-pipeline/internal/config"
	"github.com/couchcryptid/brsi-pipeline/internal/domain"
	"github.com/couchcryptid/brsi-pipeline/internal/fetch"
	"github.com/couchcryptid/brsi-pipeline/internal/merge"
	"github.com/couchcryptid/brsi-pipeline/internal/observability"
	"github.com/couchcryptid/brsi-pipeline/internal/pipeline"
)

type options struct {
	start, end int
	test       bool
	format     merge.Format
}

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		return 1
	}

	if err := config.LoadDotEnv(); err != nil {
		slog.Error("failed to load .env", "error", err)
		return 1
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}
	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	defer func() {
		if err := metrics.Push(cfg.PushgatewayURL, "pullgdelt"); err != nil {
			logger.Warn("metrics push failed", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := pull(ctx, cfg, opts, logger, metrics); err != nil {
		logger.Error("pullgdelt failed", "error", err)
		return 1
	}
	logger.Info("done")
	return 0
}

func pull(ctx context.Context, cfg *config.Config, opts options, logger *slog.Logger, metrics *observability.Metrics) error {
	archiver, err := newArchiver(cfg, logger)
	if err != nil {
		return err
	}

	mopts := merge.Options{
		InputDir:  cfg.QueryResultsDir,
		OutputDir: cfg.OutputDir,
		Format:    opts.format,
	}
	if opts.test {
		mopts.InputDir = cfg.SampleDataDir
		mopts.OutputDir = "."
		mopts.Name = "merged_sample_data"
	} else {
		if err := cfg.ValidateWarehouse(); err != nil {
			return err
		}
		if err := fetchYears(ctx, cfg, opts, logger, metrics); err != nil {
			return err
		}
	}

	res, err := merge.New(mopts, archiver, clockwork.NewRealClock(), logger).Merge(ctx)
	if err != nil {
		return fmt.Errorf("merge: %w", err)
	}
	logger.Info("merged data saved", "path", res.Path, "files", len(res.Files), "rows", res.Stats.Rows)
	return nil
}

func fetchYears(ctx context.Context, cfg *config.Config, opts options, logger *slog.Logger, metrics *observability.Metrics) error {
	policy, err := pipeline.ParsePolicy(cfg.BatchPolicy)
	if err != nil {
		return err
	}
	wh, err := bigquery.NewWarehouse(ctx, cfg.GCPProject, cfg.BQLocation,
		bigquery.Tables{Events: cfg.BQEventsTable, Pairs: cfg.BQPairsTable}, logger)
	if err != nil {
		return err
	}
	defer wh.Close()

	f := fetch.New(wh, fetch.Options{
		Dir:    cfg.QueryResultsDir,
		Bounds: domain.YearBounds{Min: domain.MinYear, Max: cfg.MaxYear},
		Policy: policy,
	}, logger, metrics)

	logger.Info("fetching GDELT data", "start_year", opts.start, "end_year", opts.end)
	summary, err := f.FetchRange(ctx, opts.start, opts.end, domain.GranularityMonthly, "")
	if err != nil {
		return err
	}
	if len(summary.Failed) > 0 {
		logger.Warn("some years failed", "failed", len(summary.Failed), "succeeded", summary.Succeeded)
	}
	return nil
}

func newArchiver(cfg *config.Config, logger *slog.Logger) (merge.Archiver, error) {
	if cfg.S3Bucket == "" {
		return nil, nil
	}
	return s3.NewArchiver(cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, logger)
}

// parseArgs reads [start_year [end_year]] and the flags. start defaults to
// domain.MinYear; end defaults to the current year, or to start when only
// start is given.
func parseArgs(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("pullgdelt", flag.ContinueOnError)
	fs.SetOutput(stderr)
	test := fs.Bool("test", false, "merge the sample data instead of querying BigQuery")
	format := fs.String("format", string(merge.FormatCSV), "merged output format: csv or parquet")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: %s [start_year [end_year]] [-test] [-format csv|parquet]\n\n", filepath.Base(os.Args[0]))
		fmt.Fprintf(stderr, "Fetches GDELT sentiment per year into the query results directory and merges it.\n")
		fmt.Fprintf(stderr, "start_year defaults to %d; end_year defaults to the current year.\n\n", domain.MinYear)
		fs.PrintDefaults()
	}

	// Flags may follow the positional years.
	var positional []string
	rest := args
	for {
		if err := fs.Parse(rest); err != nil {
			return options{}, err
		}
		if fs.NArg() == 0 {
			break
		}
		positional = append(positional, fs.Arg(0))
		rest = fs.Args()[1:]
	}

	opts := options{start: domain.MinYear, end: domain.CurrentYear(), test: *test}
	f, err := merge.ParseFormat(*format)
	if err != nil {
		return usageError(fs, stderr, err)
	}
	opts.format = f

	switch len(positional) {
	case 0:
	case 1, 2:
		if opts.start, err = domain.ParseYear(positional[0]); err != nil {
			return usageError(fs, stderr, err)
		}
		opts.end = opts.start
		if len(positional) == 2 {
			if opts.end, err = domain.ParseYear(positional[1]); err != nil {
				return usageError(fs, stderr, err)
			}
		}
	default:
		return usageError(fs, stderr, fmt.Errorf("too many arguments: %v", positional))
	}
	return opts, nil
}

func usageError(fs *flag.FlagSet, stderr io.Writer, err error) (options, error) {
	fmt.Fprintf(stderr, "Error: %v\n\n", err)
	fs.Usage()
	return options{}, err
}
