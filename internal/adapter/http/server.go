// Package http serves the health, metrics, and read API endpoints.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/brsi-pipeline/internal/domain"
	"github.com/couchcryptid/brsi-pipeline/internal/observability"
)

// Repository reads sentiment rows for the API.
type Repository interface {
	MonthlyRecords(ctx context.Context, table string, r domain.MonthRange) ([]domain.SentimentRow, error)
	DailyRecords(ctx context.Context, table string, r domain.DateRange) ([]domain.SentimentRow, error)
	Aggregate(ctx context.Context, table string, level domain.AggregateLevel, r domain.DateRange) ([]domain.AggregateRecord, error)
}

// Options configures the server.
type Options struct {
	Addr         string
	MonthlyTable string
	DailyTable   string
	CORSOrigins  []string
	// RateLimit is the number of API requests allowed per client IP per
	// RateWindow. Zero disables limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Server exposes health, readiness, metrics, and the read API.
type Server struct {
	httpServer *http.Server
	api        *api
	logger     *slog.Logger
}

// NewServer creates the HTTP server and its chi router.
func NewServer(opts Options, repo Repository, ready sharedobs.ReadinessChecker, logger *slog.Logger, metrics *observability.Metrics) *Server {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	s := &Server{
		httpServer: &http.Server{
			Addr:         opts.Addr,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		api: &api{
			repo:         repo,
			monthlyTable: opts.MonthlyTable,
			dailyTable:   opts.DailyTable,
			logger:       logger,
		},
		logger: logger,
	}

	r.Get("/healthz", sharedobs.LivenessHandler())
	r.Get("/readyz", sharedobs.ReadinessHandler(ready))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/brsi", func(r chi.Router) {
		origins := opts.CORSOrigins
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
		if opts.RateLimit > 0 {
			r.Use(httprate.Limit(opts.RateLimit, opts.RateWindow, httprate.WithKeyFuncs(httprate.KeyByIP)))
		}
		r.Use(countRequests(metrics))

		r.Get("/", s.api.handleMonthly)
		r.Get("/history", s.api.handleHistory)
		r.Get("/latest/{aggregateLevel}", s.api.handleLatest)
	})

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func countRequests(metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			route := chi.RouteContext(r.Context()).RoutePattern()
			metrics.APIRequests.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client may have gone away
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
