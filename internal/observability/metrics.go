package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "brsi"

// Metrics holds the Prometheus counters, histograms, and gauges for the pipeline commands.
type Metrics struct {
	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec // labels: status={OK,ZERO_RESULTS,OVER_QUERY_LIMIT,...,error}
	GeocodeCache       *prometheus.CounterVec // labels: result={hit,miss}
	GeocodeCheckpoints prometheus.Counter
	GeocodeAPIDuration prometheus.Histogram

	// Fetch and upload metrics.
	RowsFetched      *prometheus.CounterVec // labels: granularity={monthly,daily}
	PeriodsProcessed *prometheus.CounterVec // labels: outcome={success,error}
	UploadBatches    *prometheus.CounterVec // labels: outcome={success,error}
	RowsUploaded     prometheus.Counter

	// Scheduled sync metrics.
	SyncRuns        *prometheus.CounterVec // labels: outcome={success,error}
	SyncLastSuccess prometheus.Gauge

	// Table store and read API metrics.
	StoreBreakerState *prometheus.GaugeVec   // labels: name; 0=closed, 1=half-open, 2=open
	APIRequests       *prometheus.CounterVec // labels: route, code
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.Collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

// Collectors returns every collector, in a stable order, for registration or push.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeCheckpoints,
		m.GeocodeAPIDuration,
		m.RowsFetched,
		m.PeriodsProcessed,
		m.UploadBatches,
		m.RowsUploaded,
		m.SyncRuns,
		m.SyncLastSuccess,
		m.StoreBreakerState,
		m.APIRequests,
	}
}

func newMetrics() *Metrics {
	return &Metrics{
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Geocoding API requests by returned status.",
		}, []string{"status"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by result.",
		}, []string{"result"}),
		GeocodeCheckpoints: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_checkpoints_total",
			Help:      "Cache flushes performed during geocoding runs.",
		}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      "Google Geocoding API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		RowsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_fetched_total",
			Help:      "Sentiment rows fetched from the warehouse by granularity.",
		}, []string{"granularity"}),
		PeriodsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "periods_processed_total",
			Help:      "Fetch periods processed by outcome.",
		}, []string{"outcome"}),
		UploadBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_batches_total",
			Help:      "Table store batches by outcome.",
		}, []string{"outcome"}),
		RowsUploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_uploaded_total",
			Help:      "Rows written to the table store.",
		}),
		SyncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Scheduled sync runs by outcome.",
		}, []string{"outcome"}),
		SyncLastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sync_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful scheduled sync.",
		}),
		StoreBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_circuit_breaker_state",
			Help:      "Table store circuit breaker state (0=closed, 1=half-open, 2=open).",
		}, []string{"name"}),
		APIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Read API requests by route and status code.",
		}, []string{"route", "code"}),
	}
}

// Outcome maps an error to the "outcome" label value.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
