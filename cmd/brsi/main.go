// Command brsi runs the bilateral sentiment pipeline stages and the sync
// service.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/brsi-pipeline/internal/config"
	"github.com/couchcryptid/brsi-pipeline/internal/observability"
)

// app carries what every subcommand needs once configuration is loaded.
type app struct {
	envFile string
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "brsi",
		Short:         "Bilateral relations sentiment pipeline",
		Long:          `Fetch GDELT sentiment from BigQuery, merge and upload it, geocode firm addresses, and serve the results.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
	}
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "optional dotenv file to load before reading the environment")

	root.AddCommand(
		newFetchDailyCmd(a),
		newMergeCmd(a),
		newUploadCmd(a),
		newGeocodeCmd(a),
		newSpotcheckCmd(a),
		newServeCmd(a),
	)
	return root
}

func (a *app) init() error {
	if err := config.LoadDotEnv(a.envFile); err != nil {
		slog.Error("failed to load env file", "error", err)
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return err
	}
	a.cfg = cfg
	a.logger = sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	a.metrics = observability.NewMetrics()
	return nil
}

// run wraps a batch command: it logs the failure, if any, and pushes the
// run's metrics to the Pushgateway when one is configured.
func (a *app) run(job string, fn func() error) error {
	err := fn()
	if err != nil {
		a.logger.Error(job+" failed", "error", err)
	}
	if perr := a.metrics.Push(a.cfg.PushgatewayURL, "brsi_"+job); perr != nil {
		a.logger.Warn("metrics push failed", "error", perr)
	}
	return err
}
