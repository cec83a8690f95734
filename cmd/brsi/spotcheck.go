package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/brsi-pipeline/internal/geocode"
	"github.com/couchcryptid/brsi-pipeline/internal/spotcheck"
)

func newSpotcheckCmd(a *app) *cobra.Command {
	var (
		input, output string
		size          int
		seed          uint64
	)
	cmd := &cobra.Command{
		Use:   "spotcheck",
		Short: "Sample high-precision geocoded firms into a GeoJSON file for visual review",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run("spotcheck", func() error {
				rows, err := geocode.ReadGeocodedFile(pick(input, filepath.Join(a.cfg.OutputDir, "geocoded_panel.csv")))
				if err != nil {
					return err
				}
				fc := spotcheck.Build(rows, spotcheck.Options{SampleSize: size, Seed: seed})
				out := pick(output, filepath.Join(a.cfg.OutputDir, "spotcheck.geojson"))
				if err := spotcheck.WriteFile(out, fc); err != nil {
					return err
				}
				a.logger.Info("spot-check written", "path", out, "sampled", fc.Summary.Sampled,
					"high_precision", fc.Summary.HighPrecision, "center", fc.Center)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "geocoded panel (default OUTPUT_DIR/geocoded_panel.csv)")
	cmd.Flags().StringVar(&output, "output", "", "GeoJSON path (default OUTPUT_DIR/spotcheck.geojson)")
	cmd.Flags().IntVar(&size, "sample", spotcheck.DefaultSampleSize, "number of points to sample")
	cmd.Flags().Uint64Var(&seed, "seed", 42, "random seed")
	return cmd
}
