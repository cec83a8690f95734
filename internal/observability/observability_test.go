package observability

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsForTesting_Unregistered(t *testing.T) {
	m1 := NewMetricsForTesting()
	m2 := NewMetricsForTesting()

	m1.GeocodeCache.WithLabelValues("hit").Inc()
	assert.InDelta(t, 1, testutil.ToFloat64(m1.GeocodeCache.WithLabelValues("hit")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m2.GeocodeCache.WithLabelValues("hit")), 0)

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(m1.RowsUploaded))
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "success", Outcome(nil))
	assert.Equal(t, "error", Outcome(errors.New("boom")))
}

func TestPush(t *testing.T) {
	var path, body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewMetricsForTesting()
	m.RowsUploaded.Add(42)

	require.NoError(t, m.Push(srv.URL, "brsi_upload"))
	assert.True(t, strings.HasPrefix(path, "/metrics/job/brsi_upload"), path)
	assert.NotEmpty(t, body)
}

func TestPush_EmptyURLIsNoop(t *testing.T) {
	assert.NoError(t, NewMetricsForTesting().Push("", "brsi_upload"))
}
