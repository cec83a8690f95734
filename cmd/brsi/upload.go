package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/brsi-pipeline/internal/upload"
)

func newUploadCmd(a *app) *cobra.Command {
	var (
		table     string
		batchSize int
	)
	cmd := &cobra.Command{
		Use:   "upload [file]",
		Short: "Insert a merged CSV file into the table store in batches",
		Long: `Insert every row of a merged CSV file into the table store. Uploads are not
idempotent: running twice inserts the rows twice.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run("upload", func() error {
				ctx := cmd.Context()
				path := filepath.Join(a.cfg.OutputDir, "merged_gdelt_data.csv")
				if len(args) == 1 {
					path = args[0]
				}

				store, err := a.openTableStore(ctx)
				if err != nil {
					return err
				}
				defer store.Close()

				uploader, err := upload.New(store, pickInt(batchSize, a.cfg.UploadBatchSize), a.logger, a.metrics)
				if err != nil {
					return err
				}
				report, err := uploader.UploadFile(ctx, pick(table, a.cfg.UploadTable), path)
				if err != nil {
					return err
				}
				if len(report.FailedBatches) > 0 {
					return fmt.Errorf("%d of %d batches failed (%d rows): batches %v",
						len(report.FailedBatches), report.Batches, report.RowsFailed, report.FailedBatches)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&table, "table", "", "destination table (default UPLOAD_TABLE)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "rows per insert request (default UPLOAD_BATCH_SIZE)")
	return cmd
}

func pickInt(flag, fallback int) int {
	if flag != 0 {
		return flag
	}
	return fallback
}
