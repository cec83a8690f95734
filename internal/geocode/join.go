package geocode

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/couchcryptid/brsi-pipeline/internal/domain"
)

// GeocodedColumns is the header of the joined panel file.
var GeocodedColumns = []string{
	colFirmID, colCityCode, colStreet, colCity, colYear,
	"full_address", "lat", "lng", "status", "location_type",
}

// GeocodedRow is a panel row with its cache entry, if any.
type GeocodedRow struct {
	PanelRow
	Entry domain.CacheEntry
}

// Join left-joins rows with the cache on the full address. Rows without a
// cache entry keep an empty Entry.
func Join(rows []PanelRow, cache interface {
	Get(string) (domain.CacheEntry, bool)
}) []GeocodedRow {
	out := make([]GeocodedRow, len(rows))
	for i, r := range rows {
		e, _ := cache.Get(r.FullAddress)
		e.Address = r.FullAddress
		out[i] = GeocodedRow{PanelRow: r, Entry: e}
	}
	return out
}

// HighPrecision keeps rooftop and range-interpolated rows.
func HighPrecision(rows []GeocodedRow) []GeocodedRow {
	var out []GeocodedRow
	for _, r := range rows {
		if r.Entry.HighPrecision() {
			out = append(out, r)
		}
	}
	return out
}

// WriteGeocoded writes the joined panel.
func WriteGeocoded(w io.Writer, rows []GeocodedRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(GeocodedColumns); err != nil {
		return err
	}
	for _, r := range rows {
		year := ""
		if r.Year != 0 {
			year = strconv.Itoa(r.Year)
		}
		rec := []string{
			r.FirmID, r.CityCode, r.Street, r.City, year,
			r.FullAddress, formatCoord(r.Entry.Lat), formatCoord(r.Entry.Lng), r.Entry.Status, r.Entry.LocationType,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteGeocodedFile writes the joined panel to path.
func WriteGeocodedFile(path string, rows []GeocodedRow) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteGeocoded(f, rows); err != nil {
		f.Close() //nolint:errcheck // write error takes precedence
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// ReadGeocoded parses a joined panel file. The header must equal
// GeocodedColumns; the csv reader then holds every record to that width.
func ReadGeocoded(r io.Reader) ([]GeocodedRow, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read geocoded header: %w", err)
	}
	if !slices.Equal(header, GeocodedColumns) {
		return nil, fmt.Errorf("unexpected geocoded panel header %q", strings.Join(header, ","))
	}
	var rows []GeocodedRow
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		row := GeocodedRow{PanelRow: PanelRow{
			FirmID: rec[0], CityCode: rec[1], Street: rec[2], City: rec[3], FullAddress: rec[5],
		}}
		if rec[4] != "" {
			if row.Year, err = strconv.Atoi(rec[4]); err != nil {
				return nil, fmt.Errorf("line %d: year: %w", line, err)
			}
		}
		row.Entry = domain.CacheEntry{Address: rec[5], Status: rec[8], LocationType: rec[9]}
		if row.Entry.Lat, err = parseCoord(rec[6]); err != nil {
			return nil, fmt.Errorf("line %d: lat: %w", line, err)
		}
		if row.Entry.Lng, err = parseCoord(rec[7]); err != nil {
			return nil, fmt.Errorf("line %d: lng: %w", line, err)
		}
		rows = append(rows, row)
	}
}

// ReadGeocodedFile opens path and parses it with ReadGeocoded.
func ReadGeocodedFile(path string) ([]GeocodedRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadGeocoded(f)
}
