package syncjob

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/brsi-pipeline/internal/domain"
	"github.com/couchcryptid/brsi-pipeline/internal/observability"
	"github.com/couchcryptid/brsi-pipeline/internal/pipeline"
)

var syncNow = time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

type fakeSource struct {
	rows  []domain.SentimentRow
	errs  []error
	calls int
	got   domain.Query
}

func (f *fakeSource) Rows(_ context.Context, q domain.Query) ([]domain.SentimentRow, error) {
	f.got = q
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.rows, nil
}

type fakeStore struct {
	err      error
	calls    int
	table    string
	rows     []domain.SentimentRow
	conflict []string
}

func (f *fakeStore) Upsert(_ context.Context, table string, _ domain.Granularity, rows []domain.SentimentRow, conflict []string) error {
	f.calls++
	f.table, f.rows, f.conflict = table, rows, conflict
	return f.err
}

func newJob(src Source, store Store, opts Options) (*Job, *clockwork.FakeClock, *observability.Metrics) {
	clock := clockwork.NewFakeClockAt(syncNow)
	m := observability.NewMetricsForTesting()
	return NewJob(src, store, opts, clock, slog.New(slog.DiscardHandler), m), clock, m
}

func TestRun_UpsertsCurrentYear(t *testing.T) {
	src := &fakeSource{rows: []domain.SentimentRow{
		{Origin: "USA", Partner: "ISR", Year: 2026, Month: 1, AvgScore: 1},
		{Origin: "USA", Partner: "ISR", Year: 2026, Month: 2, AvgScore: 2},
	}}
	store := &fakeStore{}
	job, _, m := newJob(src, store, DefaultOptions("gdelt_monthly"))

	require.ErrorIs(t, job.CheckReadiness(context.Background()), ErrNotSynced)
	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, domain.Query{Period: domain.YearPeriod(2026), Granularity: domain.GranularityMonthly}, src.got)
	assert.Equal(t, "gdelt_monthly", store.table)
	assert.Len(t, store.rows, 2)
	assert.Equal(t, []string{"Actor1CountryCode", "Actor2CountryCode", "Year", "Month"}, store.conflict)

	assert.NoError(t, job.CheckReadiness(context.Background()))
	assert.Equal(t, syncNow.Unix(), job.LastSuccess().Unix())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SyncRuns.WithLabelValues("success")))
	assert.Equal(t, float64(syncNow.Unix()), testutil.ToFloat64(m.SyncLastSuccess))
}

func TestRun_EmptyResultSkipsUpsert(t *testing.T) {
	store := &fakeStore{}
	job, _, _ := newJob(&fakeSource{}, store, DefaultOptions("gdelt_monthly"))

	require.NoError(t, job.Run(context.Background()))
	assert.Zero(t, store.calls)
	assert.NoError(t, job.CheckReadiness(context.Background()))
}

func TestRun_RetriesWithBackoff(t *testing.T) {
	src := &fakeSource{
		rows: []domain.SentimentRow{{Origin: "USA", Partner: "ISR", Year: 2026, Month: 1}},
		errs: []error{errors.New("quota"), errors.New("quota"), nil},
	}
	store := &fakeStore{}
	opts := Options{Table: "gdelt_monthly", Attempts: 3, Backoff: pipeline.Backoff{Initial: time.Second, Max: time.Minute}}
	job, clock, _ := newJob(src, store, opts)

	done := make(chan error, 1)
	go func() { done <- job.Run(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, wait := range []time.Duration{time.Second, 2 * time.Second} {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		clock.Advance(wait)
	}

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("sync did not finish")
	}
	assert.Equal(t, 3, src.calls)
	assert.Equal(t, 1, store.calls)
}

func TestRun_FailureLeavesNotReady(t *testing.T) {
	store := &fakeStore{err: errors.New("connection refused")}
	opts := Options{Table: "gdelt_monthly", Attempts: 1}
	job, _, m := newJob(&fakeSource{rows: []domain.SentimentRow{{Year: 2026, Month: 1}}}, store, opts)

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.ErrorIs(t, job.CheckReadiness(context.Background()), ErrNotSynced)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SyncRuns.WithLabelValues("error")))
}

func TestRun_CancelDuringBackoff(t *testing.T) {
	src := &fakeSource{errs: []error{errors.New("quota"), errors.New("quota")}}
	job, clock, _ := newJob(src, &fakeStore{}, DefaultOptions("gdelt_monthly"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- job.Run(ctx) }()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-waitCtx.Done():
		t.Fatal("sync did not stop")
	}
	assert.Equal(t, 1, src.calls)
}

type countingRunner struct{ runs chan struct{} }

func (c countingRunner) Run(context.Context) error {
	select {
	case c.runs <- struct{}{}:
	default:
	}
	return nil
}

func TestScheduler(t *testing.T) {
	_, err := NewScheduler("not a schedule", countingRunner{}, time.Minute, slog.New(slog.DiscardHandler))
	require.Error(t, err)

	r := countingRunner{runs: make(chan struct{}, 1)}
	s, err := NewScheduler("@every 10ms", r, time.Minute, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	s.Start()
	assert.False(t, s.Next().IsZero())
	select {
	case <-r.runs:
	case <-time.After(5 * time.Second):
		t.Fatal("job was not triggered")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}
