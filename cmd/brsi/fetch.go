package main

import (
	"github.com/spf13/cobra"

	"github.com/couchcryptid/brsi-pipeline/internal/domain"
	"github.com/couchcryptid/brsi-pipeline/internal/pipeline"
	"github.com/couchcryptid/brsi-pipeline/internal/upload"
)

func newFetchDailyCmd(a *app) *cobra.Command {
	var (
		start, end int
		partner    string
		table      string
		sample     bool
	)
	cmd := &cobra.Command{
		Use:   "fetch-daily",
		Short: "Fetch daily sentiment month by month and insert it into the table store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run("fetch_daily", func() error {
				ctx := cmd.Context()
				if end == 0 {
					end = start
				}
				source, closeSource, err := a.openSource(ctx, sample)
				if err != nil {
					return err
				}
				defer closeSource() //nolint:errcheck // best-effort close on exit
				fetcher, err := a.newFetcher(source, "")
				if err != nil {
					return err
				}
				queries, err := fetcher.Queries(start, end, domain.GranularityDaily, partner)
				if err != nil {
					return err
				}

				store, err := a.openTableStore(ctx)
				if err != nil {
					return err
				}
				defer store.Close()
				uploader, err := upload.New(store, a.cfg.UploadBatchSize, a.logger, a.metrics)
				if err != nil {
					return err
				}
				policy, err := pipeline.ParsePolicy(a.cfg.BatchPolicy)
				if err != nil {
					return err
				}

				summary, err := upload.NewDirectLoader(fetcher, uploader, policy, a.logger).Load(ctx, pick(table, a.cfg.DailyTable), queries)
				if err != nil {
					return err
				}
				a.logger.Info("daily fetch finished", "months", summary.Total(), "failed", len(summary.Failed))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&start, "start", domain.CurrentYear(), "first year to fetch")
	cmd.Flags().IntVar(&end, "end", 0, "last year to fetch (defaults to --start)")
	cmd.Flags().StringVar(&partner, "partner", "", "restrict to one Actor2 country code")
	cmd.Flags().StringVar(&table, "table", "", "destination table (default DAILY_TABLE)")
	cmd.Flags().BoolVar(&sample, "sample", false, "read SAMPLE_DATA_DIR instead of querying BigQuery")
	return cmd
}
