// Package geocode resolves firm addresses to coordinates through a rate-limited
// provider, caching every outcome on disk so reruns only request new addresses.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/brsi-pipeline/internal/domain"
	"github.com/couchcryptid/brsi-pipeline/internal/observability"
	"github.com/couchcryptid/brsi-pipeline/internal/pipeline"
)

// ErrorMode decides what happens when a lookup fails at the transport level.
type ErrorMode string

const (
	// ErrorModeFailFast aborts the run without flushing.
	ErrorModeFailFast ErrorMode = "fail-fast"
	// ErrorModeSkip logs the address, leaves it uncached, and continues.
	ErrorModeSkip ErrorMode = "skip"
)

// ParseErrorMode accepts fail-fast or skip. An empty string selects fail-fast.
func ParseErrorMode(s string) (ErrorMode, error) {
	switch m := ErrorMode(strings.ToLower(s)); m {
	case "":
		return ErrorModeFailFast, nil
	case ErrorModeFailFast, ErrorModeSkip:
		return m, nil
	default:
		return "", fmt.Errorf("unknown geocode error mode %q (want fail-fast or skip)", s)
	}
}

// Options tunes the request loop.
type Options struct {
	RequestDelay        time.Duration // after every request
	RateLimitPause      time.Duration // after an OVER_QUERY_LIMIT response
	MaxRateLimitRetries int           // consecutive OVER_QUERY_LIMIT responses tolerated
	CheckpointInterval  int           // addresses visited between flushes
	ErrorMode           ErrorMode
}

// DefaultOptions mirrors the provider's free-tier pacing.
func DefaultOptions() Options {
	return Options{
		RequestDelay:        10 * time.Millisecond,
		RateLimitPause:      5 * time.Second,
		MaxRateLimitRetries: 5,
		CheckpointInterval:  1000,
		ErrorMode:           ErrorModeFailFast,
	}
}

// RunStats counts what a run did.
type RunStats struct {
	Visited     int
	Hits        int
	Requested   int
	RateLimited int
	Skipped     int
	Checkpoints int
	Cached      map[string]int // new entries by status
}

// Runner walks a lookup table and fills the cache.
type Runner struct {
	geocoder domain.Geocoder
	store    Store
	opts     Options
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewRunner creates a Runner. clock drives the delays.
func NewRunner(g domain.Geocoder, store Store, opts Options, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Runner {
	return &Runner{geocoder: g, store: store, opts: opts, clock: clock, logger: logger, metrics: metrics}
}

// Run geocodes every address that is not cached yet, in order.
//
// Cancelling ctx flushes the entries recorded so far and returns
// domain.ErrInterrupted; the address in flight is not recorded.
func (r *Runner) Run(ctx context.Context, addresses []string) (RunStats, error) {
	stats := RunStats{Cached: make(map[string]int)}
	consecutiveLimited := 0

	r.logger.Info("geocoding started", "addresses", len(addresses), "cached", r.store.Len())
	for _, addr := range addresses {
		if ctx.Err() != nil {
			return stats, r.interrupt(&stats)
		}

		if _, ok := r.store.Get(addr); ok {
			stats.Hits++
			r.metrics.GeocodeCache.WithLabelValues("hit").Inc()
		} else {
			r.metrics.GeocodeCache.WithLabelValues("miss").Inc()
			if err := r.lookup(ctx, addr, &stats, &consecutiveLimited); err != nil {
				switch {
				case errors.Is(err, domain.ErrInterrupted):
					return stats, r.interrupt(&stats)
				case errors.Is(err, domain.ErrRateLimitExceeded):
					// Completed lookups are still valid; keep them.
					return stats, errors.Join(err, r.store.Flush())
				default:
					return stats, err
				}
			}
		}

		stats.Visited++
		if r.opts.CheckpointInterval > 0 && stats.Visited%r.opts.CheckpointInterval == 0 {
			if err := r.checkpoint(&stats); err != nil {
				return stats, err
			}
		}
	}

	if err := r.store.Flush(); err != nil {
		return stats, err
	}
	r.logger.Info("geocoding finished",
		"visited", stats.Visited,
		"hits", stats.Hits,
		"requested", stats.Requested,
		"skipped", stats.Skipped,
		"cache_size", r.store.Len(),
	)
	return stats, nil
}

// lookup requests addr until it gets a non-rate-limited answer, then caches it.
func (r *Runner) lookup(ctx context.Context, addr string, stats *RunStats, consecutiveLimited *int) error {
	for {
		res, err := r.geocoder.Geocode(ctx, addr)
		if err != nil {
			if ctx.Err() != nil {
				return domain.ErrInterrupted
			}
			r.metrics.GeocodeRequests.WithLabelValues("error").Inc()
			if r.opts.ErrorMode == ErrorModeSkip {
				stats.Skipped++
				r.logger.Warn("geocode failed, skipping address", "address", addr, "error", err)
				if !pipeline.Sleep(ctx, r.clock, r.opts.RequestDelay) {
					return domain.ErrInterrupted
				}
				return nil
			}
			return fmt.Errorf("geocode %q: %w", addr, err)
		}
		stats.Requested++
		r.metrics.GeocodeRequests.WithLabelValues(res.Status).Inc()

		if res.Status != domain.StatusOverQueryLimit {
			*consecutiveLimited = 0
			if err := r.store.Put(domain.EntryFromResult(addr, res)); err != nil {
				return err
			}
			stats.Cached[res.Status]++
			if !pipeline.Sleep(ctx, r.clock, r.opts.RequestDelay) {
				return domain.ErrInterrupted
			}
			return nil
		}

		stats.RateLimited++
		*consecutiveLimited++
		if !pipeline.Sleep(ctx, r.clock, r.opts.RequestDelay) {
			return domain.ErrInterrupted
		}
		if *consecutiveLimited > r.opts.MaxRateLimitRetries {
			return fmt.Errorf("%w: %d consecutive %s responses", domain.ErrRateLimitExceeded, *consecutiveLimited, domain.StatusOverQueryLimit)
		}
		r.logger.Warn("rate limit exceeded, pausing", "address", addr, "pause", r.opts.RateLimitPause, "attempt", *consecutiveLimited)
		if !pipeline.Sleep(ctx, r.clock, r.opts.RateLimitPause) {
			return domain.ErrInterrupted
		}
	}
}

func (r *Runner) checkpoint(stats *RunStats) error {
	if err := r.store.Flush(); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	if err := r.store.Reload(); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	stats.Checkpoints++
	r.metrics.GeocodeCheckpoints.Inc()
	r.logger.Info("checkpoint", "processed", stats.Visited, "cache_size", r.store.Len())
	return nil
}

func (r *Runner) interrupt(stats *RunStats) error {
	pending := r.store.Pending()
	if err := r.store.Flush(); err != nil {
		return errors.Join(domain.ErrInterrupted, err)
	}
	r.logger.Info("geocoding interrupted, cache saved", "visited", stats.Visited, "saved", pending, "cache_size", r.store.Len())
	return domain.ErrInterrupted
}
