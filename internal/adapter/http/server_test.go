package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/brsi-pipeline/internal/domain"
	"github.com/couchcryptid/brsi-pipeline/internal/observability"
)

type fakeReady struct{ err error }

func (f fakeReady) CheckReadiness(context.Context) error { return f.err }

type fakeRepo struct {
	monthly   []domain.SentimentRow
	daily     []domain.SentimentRow
	aggregate []domain.AggregateRecord
	err       error

	gotTable string
	gotMonth domain.MonthRange
	gotDates domain.DateRange
	gotLevel domain.AggregateLevel
}

func (f *fakeRepo) MonthlyRecords(_ context.Context, table string, r domain.MonthRange) ([]domain.SentimentRow, error) {
	f.gotTable, f.gotMonth = table, r
	return f.monthly, f.err
}

func (f *fakeRepo) DailyRecords(_ context.Context, table string, r domain.DateRange) ([]domain.SentimentRow, error) {
	f.gotTable, f.gotDates = table, r
	return f.daily, f.err
}

func (f *fakeRepo) Aggregate(_ context.Context, table string, level domain.AggregateLevel, r domain.DateRange) ([]domain.AggregateRecord, error) {
	f.gotTable, f.gotLevel, f.gotDates = table, level, r
	return f.aggregate, f.err
}

func newTestServer(repo Repository, ready error, opts Options) (*Server, *observability.Metrics) {
	opts.MonthlyTable = "gdelt_monthly"
	opts.DailyTable = "gdelt_daily"
	m := observability.NewMetricsForTesting()
	return NewServer(opts, repo, fakeReady{err: ready}, slog.New(slog.DiscardHandler), m), m
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(&fakeRepo{}, nil, Options{})
	assert.Equal(t, http.StatusOK, get(t, srv, "/healthz").Code)
}

func TestReadyz(t *testing.T) {
	srv, _ := newTestServer(&fakeRepo{}, nil, Options{})
	assert.Equal(t, http.StatusOK, get(t, srv, "/readyz").Code)

	srv, _ = newTestServer(&fakeRepo{}, errors.New("no successful sync yet"), Options{})
	assert.Equal(t, http.StatusServiceUnavailable, get(t, srv, "/readyz").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(&fakeRepo{}, nil, Options{})
	rec := get(t, srv, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestMonthly_OK(t *testing.T) {
	repo := &fakeRepo{monthly: []domain.SentimentRow{
		{Origin: "USA", Partner: "ISR", Year: 2024, Month: 1, AvgScore: 1.5},
	}}
	srv, m := newTestServer(repo, nil, Options{})

	rec := get(t, srv, "/api/brsi?actor1CountryCode=usa&actor2CountryCode=ISR&startYear=2023&startMonth=11&endYear=2024&endMonth=2")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "gdelt_monthly", repo.gotTable)
	assert.Equal(t, domain.MonthRange{
		Pair:      domain.Pair{Origin: "USA", Partner: "ISR"},
		StartYear: 2023, StartMonth: 11, EndYear: 2024, EndMonth: 2,
	}, repo.gotMonth)
	assert.JSONEq(t,
		`[{"Actor1CountryCode":"USA","Actor2CountryCode":"ISR","Year":2024,"Month":1,"AvgGoldsteinScale":1.5}]`,
		rec.Body.String())
	assert.Equal(t, 1, testutil.CollectAndCount(m.APIRequests))
}

func TestMonthly_Errors(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		repo   *fakeRepo
		status int
		body   string
	}{
		{"missing params", "?actor1CountryCode=USA", &fakeRepo{}, http.StatusBadRequest, "missing required parameters"},
		{"non-numeric year", "?actor1CountryCode=USA&actor2CountryCode=ISR&startYear=abc&startMonth=1&endYear=2024&endMonth=2", &fakeRepo{}, http.StatusBadRequest, "invalid startYear"},
		{"month out of range", "?actor1CountryCode=USA&actor2CountryCode=ISR&startYear=2024&startMonth=13&endYear=2024&endMonth=2", &fakeRepo{}, http.StatusBadRequest, "invalid StartMonth"},
		{"no rows", "?actor1CountryCode=USA&actor2CountryCode=ISR&startYear=2024&startMonth=1&endYear=2024&endMonth=2", &fakeRepo{}, http.StatusNotFound, "No records found"},
		{"store failure", "?actor1CountryCode=USA&actor2CountryCode=ISR&startYear=2024&startMonth=1&endYear=2024&endMonth=2", &fakeRepo{err: errors.New("boom")}, http.StatusInternalServerError, "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(tt.repo, nil, Options{})
			rec := get(t, srv, "/api/brsi"+tt.query)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.body)
		})
	}
}

func TestHistory(t *testing.T) {
	repo := &fakeRepo{daily: []domain.SentimentRow{
		{Origin: "USA", Partner: "ISR", Year: 2024, Month: 1, Day: 2, AvgScore: 3},
	}}
	srv, _ := newTestServer(repo, nil, Options{})

	rec := get(t, srv, "/api/brsi/history?actor1CountryCode=USA&actor2CountryCode=ISR&startDate=2024-01-01&endDate=2024-01-31")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "gdelt_daily", repo.gotTable)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), repo.gotDates.Start)
	assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), repo.gotDates.End)

	rec = get(t, srv, "/api/brsi/history?actor1CountryCode=USA&actor2CountryCode=ISR&startDate=01/01/2024&endDate=2024-01-31")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid date format")

	rec = get(t, srv, "/api/brsi/history?actor1CountryCode=USA&actor2CountryCode=ISR&startDate=2024-02-01&endDate=2024-01-31")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "start date must not be after end date")
}

func TestLatest(t *testing.T) {
	repo := &fakeRepo{aggregate: []domain.AggregateRecord{{Year: 2024, Month: 1, AvgScore: 2, Events: 31}}}
	srv, _ := newTestServer(repo, nil, Options{})

	rec := get(t, srv, "/api/brsi/latest/monthly?actor1CountryCode=USA&actor2CountryCode=ISR&startDate=2024-01-01&endDate=2024-03-31")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.AggregateMonthly, repo.gotLevel)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "USA", resp["actor1CountryCode"])
	assert.Equal(t, "monthly", resp["aggregateLevel"])
	assert.Equal(t, "2024-01-01", resp["startDate"])
	assert.InDelta(t, 1, resp["numRecords"], 0)
	assert.Len(t, resp["records"], 1)
}

func TestLatest_EmptyAndInvalidLevel(t *testing.T) {
	srv, _ := newTestServer(&fakeRepo{}, nil, Options{})

	rec := get(t, srv, "/api/brsi/latest/yearly?actor1CountryCode=USA&actor2CountryCode=ISR&startDate=2024-01-01&endDate=2024-03-31")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"records":[]`)
	assert.Contains(t, rec.Body.String(), `"numRecords":0`)

	rec = get(t, srv, "/api/brsi/latest/weekly?actor1CountryCode=USA&actor2CountryCode=ISR&startDate=2024-01-01&endDate=2024-03-31")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid aggregate level")
}

func TestAPI_CORS(t *testing.T) {
	srv, _ := newTestServer(&fakeRepo{}, nil, Options{CORSOrigins: []string{"https://dashboard.example"}})

	req := httptest.NewRequest(http.MethodGet, "/api/brsi/latest/daily", nil)
	req.Header.Set("Origin", "https://dashboard.example")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, "https://dashboard.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestAPI_RateLimit(t *testing.T) {
	srv, _ := newTestServer(&fakeRepo{}, nil, Options{RateLimit: 2, RateWindow: time.Minute})
	target := "/api/brsi/latest/daily"

	assert.Equal(t, http.StatusBadRequest, get(t, srv, target).Code)
	assert.Equal(t, http.StatusBadRequest, get(t, srv, target).Code)
	assert.Equal(t, http.StatusTooManyRequests, get(t, srv, target).Code)
	assert.Equal(t, http.StatusOK, get(t, srv, "/healthz").Code)
}
