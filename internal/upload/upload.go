// Package upload inserts sentiment rows into a table store in fixed-size batches.
package upload

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/brsi-pipeline/internal/adapter/csvfile"
	"github.com/couchcryptid/brsi-pipeline/internal/domain"
	"github.com/couchcryptid/brsi-pipeline/internal/observability"
	"github.com/couchcryptid/brsi-pipeline/internal/pipeline"
)

// DefaultBatchSize is the number of rows per insert request.
const DefaultBatchSize = 200000

// TableStore writes rows into a named table. Insert never deduplicates;
// Upsert merges on the conflict columns.
type TableStore interface {
	Insert(ctx context.Context, table string, g domain.Granularity, rows []domain.SentimentRow) error
	Upsert(ctx context.Context, table string, g domain.Granularity, rows []domain.SentimentRow, conflict []string) error
	Close() error
}

// Uploader splits rows into batches and inserts them one at a time.
type Uploader struct {
	store     TableStore
	batchSize int
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// New creates an Uploader. batchSize must be positive.
func New(store TableStore, batchSize int, logger *slog.Logger, metrics *observability.Metrics) (*Uploader, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	return &Uploader{store: store, batchSize: batchSize, logger: logger, metrics: metrics}, nil
}

// Batch is one slice of rows with its 1-based position.
type Batch struct {
	Index int
	Rows  []domain.SentimentRow
}

func (b Batch) String() string {
	return fmt.Sprintf("batch %d", b.Index)
}

// Batches splits rows into consecutive batches of at most size rows.
func Batches(rows []domain.SentimentRow, size int) ([]Batch, error) {
	if size <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", size)
	}
	batches := make([]Batch, 0, (len(rows)+size-1)/size)
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		batches = append(batches, Batch{Index: len(batches) + 1, Rows: rows[start:end]})
	}
	return batches, nil
}

// UploadBatch inserts one batch. An empty batch is rejected without a request.
func (u *Uploader) UploadBatch(ctx context.Context, table string, g domain.Granularity, rows []domain.SentimentRow) error {
	if len(rows) == 0 {
		return domain.ErrEmptyBatch
	}
	err := u.store.Insert(ctx, table, g, rows)
	u.metrics.UploadBatches.WithLabelValues(observability.Outcome(err)).Inc()
	if err != nil {
		return err
	}
	u.metrics.RowsUploaded.Add(float64(len(rows)))
	return nil
}

// Report summarizes an upload.
type Report struct {
	Batches       int
	FailedBatches []int // 1-based indexes
	RowsUploaded  int
	RowsFailed    int
}

// Upload inserts rows batch by batch. A failing batch is logged with its
// index and does not stop later batches; the returned error is non-nil only
// when ctx is cancelled.
func (u *Uploader) Upload(ctx context.Context, table string, g domain.Granularity, rows []domain.SentimentRow) (Report, error) {
	batches, err := Batches(rows, u.batchSize)
	if err != nil {
		return Report{}, err
	}

	rep := Report{Batches: len(batches)}
	sum, err := pipeline.RunUnits(ctx, pipeline.PolicyContinue, u.logger, batches, func(ctx context.Context, b Batch) error {
		if err := u.UploadBatch(ctx, table, g, b.Rows); err != nil {
			rep.FailedBatches = append(rep.FailedBatches, b.Index)
			rep.RowsFailed += len(b.Rows)
			return err
		}
		rep.RowsUploaded += len(b.Rows)
		u.logger.Info("uploaded batch", "table", table, "batch", b.Index, "of", len(batches), "rows", len(b.Rows))
		return nil
	})
	u.logger.Info("upload finished",
		"table", table,
		"batches", rep.Batches,
		"failed_batches", len(sum.Failed),
		"rows_uploaded", rep.RowsUploaded,
		"rows_failed", rep.RowsFailed,
	)
	return rep, err
}

// UploadFile reads a result file and uploads its rows.
func (u *Uploader) UploadFile(ctx context.Context, table, path string) (Report, error) {
	rows, g, err := csvfile.ReadFile(path)
	if err != nil {
		return Report{}, err
	}
	u.logger.Info("read upload file", "path", path, "rows", len(rows), "granularity", string(g))
	return u.Upload(ctx, table, g, rows)
}

// RowSource fetches the rows of one query without writing files.
type RowSource interface {
	Rows(ctx context.Context, q domain.Query) ([]domain.SentimentRow, error)
}

// DirectLoader fetches each query and inserts its rows straight into the
// table store, as the daily backfill does.
type DirectLoader struct {
	source   RowSource
	uploader *Uploader
	policy   pipeline.Policy
	logger   *slog.Logger
}

// NewDirectLoader wires a row source to an uploader.
func NewDirectLoader(source RowSource, uploader *Uploader, policy pipeline.Policy, logger *slog.Logger) *DirectLoader {
	return &DirectLoader{source: source, uploader: uploader, policy: policy, logger: logger}
}

// Load runs every query under the batch policy. A query whose batches fail
// counts as failed.
func (l *DirectLoader) Load(ctx context.Context, table string, queries []domain.Query) (pipeline.Summary, error) {
	return pipeline.RunUnits(ctx, l.policy, l.logger, queries, func(ctx context.Context, q domain.Query) error {
		rows, err := l.source.Rows(ctx, q)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			l.logger.Warn("no rows for period", "period", q.Period.String())
			return nil
		}
		rep, err := l.uploader.Upload(ctx, table, q.Granularity, rows)
		if err != nil {
			return err
		}
		if len(rep.FailedBatches) > 0 {
			return fmt.Errorf("period %s: %d of %d batches failed", q.Period, len(rep.FailedBatches), rep.Batches)
		}
		return nil
	})
}

