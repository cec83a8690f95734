package main

import (
	"context"
	"fmt"

	"github.com/couchcryptid/brsi-pipeline/internal/adapter/bigquery"
	"github.com/couchcryptid/brsi-pipeline/internal/adapter/kafka"
	"github.com/couchcryptid/brsi-pipeline/internal/adapter/postgres"
	"github.com/couchcryptid/brsi-pipeline/internal/adapter/postgrest"
	"github.com/couchcryptid/brsi-pipeline/internal/adapter/s3"
	"github.com/couchcryptid/brsi-pipeline/internal/config"
	"github.com/couchcryptid/brsi-pipeline/internal/domain"
	"github.com/couchcryptid/brsi-pipeline/internal/fetch"
	"github.com/couchcryptid/brsi-pipeline/internal/merge"
	"github.com/couchcryptid/brsi-pipeline/internal/pipeline"
	"github.com/couchcryptid/brsi-pipeline/internal/upload"
)

// openTableStore connects to the TABLE_STORE backend.
func (a *app) openTableStore(ctx context.Context) (upload.TableStore, error) {
	if err := a.cfg.ValidateTableStore(); err != nil {
		return nil, err
	}
	switch a.cfg.TableStore {
	case config.StorePostgres:
		return postgres.Open(ctx, a.cfg.DatabaseURL)
	case config.StoreKafka:
		return kafka.NewWriter(a.cfg.KafkaBrokers, a.logger), nil
	default:
		return postgrest.NewClient(a.cfg.SupabaseURL, a.cfg.SupabaseKey, a.cfg.StoreTimeout, a.logger, a.metrics), nil
	}
}

// openSource returns the sample-file source or a BigQuery warehouse. The
// returned close function is always non-nil.
func (a *app) openSource(ctx context.Context, sample bool) (fetch.Source, func() error, error) {
	if sample {
		return fetch.NewSampleSource(a.cfg.SampleDataDir), func() error { return nil }, nil
	}
	if err := a.cfg.ValidateWarehouse(); err != nil {
		return nil, nil, err
	}
	wh, err := bigquery.NewWarehouse(ctx, a.cfg.GCPProject, a.cfg.BQLocation,
		bigquery.Tables{Events: a.cfg.BQEventsTable, Pairs: a.cfg.BQPairsTable}, a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to warehouse: %w", err)
	}
	return wh, wh.Close, nil
}

// newFetcher builds a Fetcher whose upper year bound is at least the
// current year, so scheduled and daily fetches never reject "now".
func (a *app) newFetcher(source fetch.Source, dir string) (*fetch.Fetcher, error) {
	policy, err := pipeline.ParsePolicy(a.cfg.BatchPolicy)
	if err != nil {
		return nil, err
	}
	return fetch.New(source, fetch.Options{
		Dir:    dir,
		Bounds: domain.YearBounds{Min: domain.MinYear, Max: max(a.cfg.MaxYear, domain.CurrentYear())},
		Policy: policy,
	}, a.logger, a.metrics), nil
}

func (a *app) newArchiver() (merge.Archiver, error) {
	if a.cfg.S3Bucket == "" {
		return nil, fmt.Errorf("S3_BUCKET is required to archive")
	}
	return s3.NewArchiver(a.cfg.AWSRegion, a.cfg.S3Bucket, a.cfg.S3Prefix, a.logger)
}
