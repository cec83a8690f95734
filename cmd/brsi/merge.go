package main

import (
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/brsi-pipeline/internal/merge"
)

func newMergeCmd(a *app) *cobra.Command {
	var (
		input, output, name, format string
		timestamped, stats, archive bool
	)
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Concatenate per-period result files into one file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run("merge", func() error {
				f, err := merge.ParseFormat(format)
				if err != nil {
					return err
				}
				opts := merge.Options{
					InputDir:    pick(input, a.cfg.QueryResultsDir),
					OutputDir:   pick(output, a.cfg.OutputDir),
					Name:        name,
					Format:      f,
					Timestamped: timestamped,
					WriteStats:  stats,
				}
				var archiver merge.Archiver
				if archive {
					if archiver, err = a.newArchiver(); err != nil {
						return err
					}
				}

				res, err := merge.New(opts, archiver, clockwork.NewRealClock(), a.logger).Merge(cmd.Context())
				if err != nil {
					return err
				}
				a.logger.Info("merge finished", "path", res.Path, "files", len(res.Files), "rows", res.Stats.Rows,
					"archive", res.ArchiveURL)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "directory of per-period CSV files (default QUERY_RESULTS_DIR)")
	cmd.Flags().StringVar(&output, "output", "", "output directory (default OUTPUT_DIR)")
	cmd.Flags().StringVar(&name, "name", "", "output base name (default merged_gdelt_data)")
	cmd.Flags().StringVar(&format, "format", "csv", "output format: csv or parquet")
	cmd.Flags().BoolVar(&timestamped, "timestamp", false, "append _YYYYMMDD_HHMM to the output name")
	cmd.Flags().BoolVar(&stats, "stats", false, "write summary statistics next to the output")
	cmd.Flags().BoolVar(&archive, "archive", false, "upload the merged file to S3_BUCKET")
	return cmd
}

func pick(flag, fallback string) string {
	if flag != "" {
		return flag
	}
	return fallback
}
