package syncjob

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Runner is the unit of work a Scheduler triggers.
type Runner interface {
	Run(ctx context.Context) error
}

// Scheduler runs a job on a cron schedule. Overlapping triggers are skipped
// while a run is still in progress.
type Scheduler struct {
	cron    *cron.Cron
	entry   cron.EntryID
	logger  *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
}

// NewScheduler registers job under a standard five-field cron spec. Each run
// gets its own context bounded by timeout.
func NewScheduler(spec string, job Runner, timeout time.Duration, logger *slog.Logger) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.DiscardLogger),
			cron.SkipIfStillRunning(cron.DiscardLogger),
		)),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		timeout: timeout,
	}
	id, err := s.cron.AddFunc(spec, func() {
		runCtx, runCancel := context.WithTimeout(s.ctx, s.timeout)
		defer runCancel()
		if err := job.Run(runCtx); err != nil {
			s.logger.Error("scheduled sync failed", "error", err)
		}
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("invalid sync schedule %q: %w", spec, err)
	}
	s.entry = id
	return s, nil
}

// Start begins scheduling in a background goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("sync scheduler started", "next_run", s.Next())
}

// Next returns the next scheduled run time.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

// Stop halts scheduling, cancels an in-flight run, and waits for it to
// return or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
