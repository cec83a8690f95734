package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	httpadapter "github.com/couchcryptid/brsi-pipeline/internal/adapter/http"
	"github.com/couchcryptid/brsi-pipeline/internal/config"
	"github.com/couchcryptid/brsi-pipeline/internal/syncjob"
	"github.com/couchcryptid/brsi-pipeline/internal/upload"
)

// serveStore is a table store that can also answer API reads.
type serveStore interface {
	upload.TableStore
	httpadapter.Repository
	CheckReadiness(ctx context.Context) error
}

// readiness is ready once a sync has succeeded or the store is reachable.
type readiness struct {
	job   *syncjob.Job
	store serveStore
}

func (r readiness) CheckReadiness(ctx context.Context) error {
	if r.job.CheckReadiness(ctx) == nil {
		return nil
	}
	return r.store.CheckReadiness(ctx)
}

func newServeCmd(a *app) *cobra.Command {
	var (
		sample      bool
		syncOnStart bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read API and run the scheduled sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := serve(cmd.Context(), a, sample, syncOnStart); err != nil {
				a.logger.Error("serve failed", "error", err)
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&sample, "sample", false, "sync from SAMPLE_DATA_DIR instead of BigQuery")
	cmd.Flags().BoolVar(&syncOnStart, "sync-on-start", false, "run one sync immediately at startup")
	return cmd
}

func serve(ctx context.Context, a *app, sample, syncOnStart bool) error {
	if a.cfg.TableStore == config.StoreKafka {
		return errors.New("serve reads from the table store; set TABLE_STORE to postgrest or postgres")
	}
	ts, err := a.openTableStore(ctx)
	if err != nil {
		return err
	}
	store, ok := ts.(serveStore)
	if !ok {
		ts.Close() //nolint:errcheck // unusable store
		return fmt.Errorf("table store %q cannot serve reads", a.cfg.TableStore)
	}
	defer store.Close()

	source, closeSource, err := a.openSource(ctx, sample)
	if err != nil {
		return err
	}
	defer closeSource() //nolint:errcheck // best-effort close on exit
	fetcher, err := a.newFetcher(source, "")
	if err != nil {
		return err
	}

	job := syncjob.NewJob(fetcher, store, syncjob.DefaultOptions(a.cfg.SyncTable), clockwork.NewRealClock(), a.logger, a.metrics)
	scheduler, err := syncjob.NewScheduler(a.cfg.SyncSchedule, job, a.cfg.SyncTimeout, a.logger)
	if err != nil {
		return err
	}

	srv := httpadapter.NewServer(httpadapter.Options{
		Addr:         a.cfg.HTTPAddr,
		MonthlyTable: a.cfg.SyncTable,
		DailyTable:   a.cfg.DailyTable,
		CORSOrigins:  a.cfg.CORSOrigins,
		RateLimit:    a.cfg.APIRateLimit,
		RateWindow:   time.Minute,
	}, store, readiness{job: job, store: store}, a.logger, a.metrics)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", "error", err)
		}
	}()

	scheduler.Start()
	if syncOnStart {
		go func() {
			runCtx, cancel := context.WithTimeout(ctx, a.cfg.SyncTimeout)
			defer cancel()
			if err := job.Run(runCtx); err != nil {
				a.logger.Error("startup sync failed", "error", err)
			}
		}()
	}

	<-ctx.Done()
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", "error", err)
	}
	if err := scheduler.Stop(shutdownCtx); err != nil {
		a.logger.Error("sync scheduler stop error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}
