// Package syncjob keeps the current year's monthly table up to date by
// re-fetching it from the warehouse and upserting it on a cron schedule.
package syncjob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/brsi-pipeline/internal/domain"
	"github.com/couchcryptid/brsi-pipeline/internal/observability"
	"github.com/couchcryptid/brsi-pipeline/internal/pipeline"
)

// ErrNotSynced is reported by CheckReadiness until the first run succeeds.
var ErrNotSynced = errors.New("no successful sync yet")

// Source returns the sentiment rows for one query.
type Source interface {
	Rows(ctx context.Context, q domain.Query) ([]domain.SentimentRow, error)
}

// Store upserts rows on their natural key.
type Store interface {
	Upsert(ctx context.Context, table string, g domain.Granularity, rows []domain.SentimentRow, conflict []string) error
}

// Options configures a Job.
type Options struct {
	Table    string
	Attempts int
	Backoff  pipeline.Backoff
}

// DefaultOptions retries each step three times, starting at 30s.
func DefaultOptions(table string) Options {
	return Options{
		Table:    table,
		Attempts: 3,
		Backoff:  pipeline.Backoff{Initial: 30 * time.Second, Max: 5 * time.Minute},
	}
}

// Job fetches the current year's monthly rows and upserts them.
type Job struct {
	source  Source
	store   Store
	opts    Options
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics

	lastSuccess atomic.Int64
}

// NewJob creates a sync job.
func NewJob(source Source, store Store, opts Options, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Job {
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	return &Job{
		source:  source,
		store:   store,
		opts:    opts,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
	}
}

// Run performs one sync. An empty result is logged and counts as success.
func (j *Job) Run(ctx context.Context) (err error) {
	logger := j.logger.With("run_id", uuid.NewString())
	start := j.clock.Now()
	defer func() {
		j.metrics.SyncRuns.WithLabelValues(observability.Outcome(err)).Inc()
	}()

	g := domain.GranularityMonthly
	q := domain.Query{Period: domain.YearPeriod(start.Year()), Granularity: g}
	logger.Info("sync started", "query", q.String())

	var rows []domain.SentimentRow
	err = j.retry(ctx, logger, "fetch", func() error {
		var ferr error
		rows, ferr = j.source.Rows(ctx, q)
		return ferr
	})
	if err != nil {
		logger.Error("sync fetch failed", "error", err)
		return fmt.Errorf("sync %s: %w", q, err)
	}

	if len(rows) == 0 {
		logger.Info("no new data to sync", "query", q.String())
	} else {
		err = j.retry(ctx, logger, "upsert", func() error {
			return j.store.Upsert(ctx, j.opts.Table, g, rows, g.ConflictColumns())
		})
		if err != nil {
			logger.Error("sync upsert failed", "table", j.opts.Table, "rows", len(rows), "error", err)
			return fmt.Errorf("sync %s into %s: %w", q, j.opts.Table, err)
		}
	}

	now := j.clock.Now()
	j.lastSuccess.Store(now.Unix())
	j.metrics.SyncLastSuccess.Set(float64(now.Unix()))
	logger.Info("sync completed", "table", j.opts.Table, "rows", len(rows), "duration", now.Sub(start))
	return nil
}

func (j *Job) retry(ctx context.Context, logger *slog.Logger, step string, fn func() error) error {
	backoff := j.opts.Backoff
	var err error
	for attempt := 1; attempt <= j.opts.Attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == j.opts.Attempts || ctx.Err() != nil {
			break
		}
		wait := backoff.Next()
		logger.Warn("sync step failed, retrying", "step", step, "attempt", attempt, "wait", wait, "error", err)
		if !pipeline.Sleep(ctx, j.clock, wait) {
			return errors.Join(err, ctx.Err())
		}
	}
	return err
}

// LastSuccess returns the time of the last successful run, or the zero time.
func (j *Job) LastSuccess() time.Time {
	sec := j.lastSuccess.Load()
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}

// CheckReadiness reports ready once a run has succeeded.
func (j *Job) CheckReadiness(context.Context) error {
	if j.lastSuccess.Load() == 0 {
		return ErrNotSynced
	}
	return nil
}
