// Package postgrest writes and reads sentiment tables through the Supabase
// REST interface (PostgREST).
package postgrest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"

	"github.com/couchcryptid/brsi-pipeline/internal/domain"
	"github.com/couchcryptid/brsi-pipeline/internal/observability"
)

const (
	restPath       = "/rest/v1/"
	breakerName    = "postgrest"
	maxErrorBody   = 512
	tripAfterFails = 5
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("postgrest: status %d: %s", e.Code, e.Body)
}

// Client implements upload.TableStore and the read API repository against a
// Supabase project.
type Client struct {
	baseURL    string
	key        string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	logger     *slog.Logger
}

// NewClient creates a client for the project at baseURL authenticated with key.
// Requests share one circuit breaker that opens after consecutive server or
// transport failures.
func NewClient(baseURL, key string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		key:        key,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
	metrics.StoreBreakerState.WithLabelValues(breakerName).Set(0)
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= tripAfterFails
		},
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return se.Code < http.StatusInternalServerError
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
			metrics.StoreBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
	return c
}

// Insert posts rows to the table. PostgREST inserts the whole array in one
// statement, so a failed request writes nothing.
func (c *Client) Insert(ctx context.Context, table string, _ domain.Granularity, rows []domain.SentimentRow) error {
	_, err := c.write(ctx, table, nil, "return=minimal", rows)
	return err
}

// Upsert posts rows with merge-duplicates resolution on the conflict columns.
func (c *Client) Upsert(ctx context.Context, table string, _ domain.Granularity, rows []domain.SentimentRow, conflict []string) error {
	q := url.Values{"on_conflict": {strings.Join(conflict, ",")}}
	_, err := c.write(ctx, table, q, "resolution=merge-duplicates,return=minimal", rows)
	return err
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) write(ctx context.Context, table string, q url.Values, prefer string, rows []domain.SentimentRow) ([]byte, error) {
	if len(rows) == 0 {
		return nil, domain.ErrEmptyBatch
	}
	body, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("encode rows: %w", err)
	}
	return c.do(ctx, http.MethodPost, table, q, prefer, body)
}

// MonthlyRecords returns a pair's monthly rows within r, ordered by month.
func (c *Client) MonthlyRecords(ctx context.Context, table string, r domain.MonthRange) ([]domain.SentimentRow, error) {
	q := pairFilter(r.Pair, r.StartYear, r.EndYear)
	q.Set("order", "Year.asc,Month.asc")
	rows, err := c.selectRows(ctx, table, q)
	if err != nil {
		return nil, err
	}
	return filter(rows, r.Contains), nil
}

// DailyRecords returns a pair's daily rows within r, ordered by date.
func (c *Client) DailyRecords(ctx context.Context, table string, r domain.DateRange) ([]domain.SentimentRow, error) {
	q := pairFilter(r.Pair, r.Start.Year(), r.End.Year())
	q.Set("order", "Year.asc,Month.asc,Day.asc")
	rows, err := c.selectRows(ctx, table, q)
	if err != nil {
		return nil, err
	}
	return filter(rows, r.Contains), nil
}

// Aggregate averages a pair's daily rows within r at the given level.
func (c *Client) Aggregate(ctx context.Context, table string, level domain.AggregateLevel, r domain.DateRange) ([]domain.AggregateRecord, error) {
	rows, err := c.DailyRecords(ctx, table, r)
	if err != nil {
		return nil, err
	}
	return domain.Aggregate(rows, level), nil
}

// CheckReadiness sends a HEAD request to the REST root.
func (c *Client) CheckReadiness(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodHead, "", nil, "", nil)
	return err
}

func (c *Client) selectRows(ctx context.Context, table string, q url.Values) ([]domain.SentimentRow, error) {
	data, err := c.do(ctx, http.MethodGet, table, q, "", nil)
	if err != nil {
		return nil, err
	}
	var rows []domain.SentimentRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode %s rows: %w", table, err)
	}
	return rows, nil
}

func (c *Client) do(ctx context.Context, method, table string, q url.Values, prefer string, body []byte) ([]byte, error) {
	return c.breaker.Execute(func() ([]byte, error) {
		u := c.baseURL + restPath + table
		if len(q) > 0 {
			u += "?" + q.Encode()
		}
		req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("apikey", c.key)
		req.Header.Set("Authorization", "Bearer "+c.key)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if prefer != "" {
			req.Header.Set("Prefer", prefer)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", method, table, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			if len(data) > maxErrorBody {
				data = data[:maxErrorBody]
			}
			return nil, &StatusError{Code: resp.StatusCode, Body: string(data)}
		}
		return data, nil
	})
}

func pairFilter(p domain.Pair, startYear, endYear int) url.Values {
	q := url.Values{}
	q.Set("select", "*")
	q.Set(domain.ColOrigin, "eq."+p.Origin)
	q.Set(domain.ColPartner, "eq."+p.Partner)
	q.Add(domain.ColYear, "gte."+strconv.Itoa(startYear))
	q.Add(domain.ColYear, "lte."+strconv.Itoa(endYear))
	return q
}

func filter(rows []domain.SentimentRow, keep func(domain.SentimentRow) bool) []domain.SentimentRow {
	out := rows[:0]
	for _, r := range rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
