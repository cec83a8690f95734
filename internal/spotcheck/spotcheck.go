// Package spotcheck samples high-precision geocoded firms and writes them as
// GeoJSON for a visual sanity check on a map.
package spotcheck

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"

	geohash "github.com/TomiHiltunen/geohash-golang"
	"github.com/golang/geo/s2"

	"github.com/couchcryptid/brsi-pipeline/internal/geocode"
)

// Defaults for Options.
const (
	DefaultSampleSize = 100
	geohashPrecision  = 9
)

// Options configures sampling.
type Options struct {
	SampleSize int
	Seed       uint64
}

// FeatureCollection is a GeoJSON feature collection. Center is a foreign
// member holding the [lng, lat] center of the bounding box.
type FeatureCollection struct {
	Type     string     `json:"type"`
	BBox     []float64  `json:"bbox,omitempty"`
	Center   []float64  `json:"center,omitempty"`
	Features []Feature  `json:"features"`
	Summary  SampleInfo `json:"summary"`
}

// SampleInfo records how the sample was drawn.
type SampleInfo struct {
	Rows          int    `json:"rows"`
	HighPrecision int    `json:"high_precision"`
	Sampled       int    `json:"sampled"`
	Seed          uint64 `json:"seed"`
}

// Feature is one sampled firm-year.
type Feature struct {
	Type       string     `json:"type"`
	Geometry   Point      `json:"geometry"`
	Properties Properties `json:"properties"`
}

// Point is a GeoJSON point in [lng, lat] order.
type Point struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// Properties are the per-point attributes shown in map popups.
type Properties struct {
	FirmID       string `json:"firm_id"`
	Year         int    `json:"year,omitempty"`
	FullAddress  string `json:"full_address"`
	LocationType string `json:"location_type"`
	Geohash      string `json:"geohash"`
}

// Build keeps the high-precision rows, draws up to SampleSize of them with a
// seeded generator, and frames them with an s2 bounding rectangle.
func Build(rows []geocode.GeocodedRow, opts Options) FeatureCollection {
	if opts.SampleSize <= 0 {
		opts.SampleSize = DefaultSampleSize
	}
	high := geocode.HighPrecision(rows)
	sample := draw(high, opts.SampleSize, opts.Seed)

	fc := FeatureCollection{
		Type:     "FeatureCollection",
		Features: make([]Feature, 0, len(sample)),
		Summary: SampleInfo{
			Rows:          len(rows),
			HighPrecision: len(high),
			Sampled:       len(sample),
			Seed:          opts.Seed,
		},
	}

	rect := s2.EmptyRect()
	for _, r := range sample {
		lat, lng := *r.Entry.Lat, *r.Entry.Lng
		rect = rect.AddPoint(s2.LatLngFromDegrees(lat, lng))
		fc.Features = append(fc.Features, Feature{
			Type:     "Feature",
			Geometry: Point{Type: "Point", Coordinates: []float64{lng, lat}},
			Properties: Properties{
				FirmID:       r.FirmID,
				Year:         r.Year,
				FullAddress:  r.FullAddress,
				LocationType: r.Entry.LocationType,
				Geohash:      geohash.EncodeWithPrecision(lat, lng, geohashPrecision),
			},
		})
	}

	if !rect.IsEmpty() {
		lo, hi, c := rect.Lo(), rect.Hi(), rect.Center()
		fc.BBox = []float64{lo.Lng.Degrees(), lo.Lat.Degrees(), hi.Lng.Degrees(), hi.Lat.Degrees()}
		fc.Center = []float64{c.Lng.Degrees(), c.Lat.Degrees()}
	}
	return fc
}

// draw returns n rows chosen without replacement, in input order.
func draw(rows []geocode.GeocodedRow, n int, seed uint64) []geocode.GeocodedRow {
	if len(rows) <= n {
		return rows
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	idx := rng.Perm(len(rows))[:n]
	slices.Sort(idx)
	out := make([]geocode.GeocodedRow, n)
	for i, j := range idx {
		out[i] = rows[j]
	}
	return out
}

// Write encodes fc as indented GeoJSON.
func Write(w io.Writer, fc FeatureCollection) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(fc)
}

// WriteFile writes fc to path.
func WriteFile(path string, fc FeatureCollection) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, fc); err != nil {
		f.Close() //nolint:errcheck // encode error takes precedence
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
