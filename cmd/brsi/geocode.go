package main

import (
	"errors"
	"path/filepath"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/brsi-pipeline/internal/adapter/googlemaps"
	"github.com/couchcryptid/brsi-pipeline/internal/domain"
	"github.com/couchcryptid/brsi-pipeline/internal/geocode"
)

func newGeocodeCmd(a *app) *cobra.Command {
	var (
		output, encoding, cache, errorMode string
		highOnly                           bool
	)
	cmd := &cobra.Command{
		Use:   "geocode <panel.csv>",
		Short: "Geocode firm addresses through the cache and write the geocoded panel",
		Long: `Build normalized addresses from the firm panel, geocode every address that is
not cached yet, and left-join the cache back onto the panel.

Interrupting the run (Ctrl-C) saves the addresses processed so far and exits
successfully; the next run resumes from the cache.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run("geocode", func() error {
				if err := a.cfg.ValidateGeocoding(); err != nil {
					return err
				}
				mode, err := geocode.ParseErrorMode(pick(errorMode, a.cfg.GeocodeErrorMode))
				if err != nil {
					return err
				}

				rows, err := geocode.ReadPanelFile(args[0], pick(encoding, a.cfg.InputEncoding), a.cfg.GeocodeCountry)
				if err != nil {
					return err
				}
				addresses := geocode.Lookup(rows)
				a.logger.Info("lookup table built", "panel_rows", len(rows), "addresses", len(addresses))

				store, err := geocode.OpenFileStore(pick(cache, a.cfg.GeocodeCacheFile))
				if err != nil {
					return err
				}
				defer store.Close()

				client := googlemaps.NewClient(a.cfg.GeocodeAPIKey, a.cfg.GeocodeCountry, a.cfg.GeocodeBaseURL,
					a.cfg.GeocodeTimeout, a.logger, a.metrics)
				opts := geocode.Options{
					RequestDelay:        a.cfg.GeocodeRequestDelay,
					RateLimitPause:      a.cfg.GeocodeRateLimitPause,
					MaxRateLimitRetries: a.cfg.GeocodeMaxRateLimitRetries,
					CheckpointInterval:  a.cfg.GeocodeCheckpointInterval,
					ErrorMode:           mode,
				}
				stats, err := geocode.NewRunner(client, store, opts, clockwork.NewRealClock(), a.logger, a.metrics).
					Run(cmd.Context(), addresses)
				if errors.Is(err, domain.ErrInterrupted) {
					a.logger.Info("geocoding interrupted, progress saved", "visited", stats.Visited, "cached", store.Len())
					return nil
				}
				if err != nil {
					return err
				}

				joined := geocode.Join(rows, store)
				if highOnly {
					joined = geocode.HighPrecision(joined)
				}
				out := pick(output, filepath.Join(a.cfg.OutputDir, "geocoded_panel.csv"))
				if err := geocode.WriteGeocodedFile(out, joined); err != nil {
					return err
				}
				a.logger.Info("geocoded panel written", "path", out, "rows", len(joined),
					"requested", stats.Requested, "hits", stats.Hits)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&output, "output", "", "geocoded panel path (default OUTPUT_DIR/geocoded_panel.csv)")
	cmd.Flags().StringVar(&encoding, "encoding", "", "panel file encoding (default INPUT_ENCODING)")
	cmd.Flags().StringVar(&cache, "cache", "", "cache file (default GEOCODE_CACHE_FILE)")
	cmd.Flags().StringVar(&errorMode, "error-mode", "", "fail-fast or skip (default GEOCODE_ERROR_MODE)")
	cmd.Flags().BoolVar(&highOnly, "high-precision", false, "keep only rooftop and range-interpolated rows")
	return cmd
}
