package geocode

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/couchcryptid/brsi-pipeline/internal/domain"
)

// Raw firm dataset columns.
const (
	colFirmID   = "cnpj_cei"
	colCityCode = "city_code"
	colStreet   = "end_logradouro"
	colCity     = "city"
	colYear     = "year"
)

// PanelRow is one firm-year of the raw dataset plus its normalized address.
type PanelRow struct {
	FirmID      string
	CityCode    string
	Street      string
	City        string
	Year        int
	FullAddress string
}

// Decoder returns the x/text decoder for an input encoding name.
func Decoder(name string) (*encoding.Decoder, error) {
	switch strings.ToUpper(strings.ReplaceAll(name, "_", "-")) {
	case "", "UTF-8", "UTF8":
		return encoding.Nop.NewDecoder(), nil
	case "ISO-8859-1", "LATIN1", "LATIN-1":
		return charmap.ISO8859_1.NewDecoder(), nil
	case "ISO-8859-15", "LATIN-9":
		return charmap.ISO8859_15.NewDecoder(), nil
	case "WINDOWS-1252", "CP1252":
		return charmap.Windows1252.NewDecoder(), nil
	default:
		return nil, fmt.Errorf("unsupported input encoding %q", name)
	}
}

// ReadPanel parses the raw firm dataset in the given encoding. Missing cells
// become empty strings (year 0) and every row gets its normalized full address.
func ReadPanel(r io.Reader, enc, country string) ([]PanelRow, error) {
	dec, err := Decoder(enc)
	if err != nil {
		return nil, err
	}
	cr := csv.NewReader(dec.Reader(r))
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read panel header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, c := range []string{colStreet, colCity} {
		if _, ok := idx[c]; !ok {
			return nil, fmt.Errorf("panel is missing column %q", c)
		}
	}

	field := func(rec []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	var rows []PanelRow
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		row := PanelRow{
			FirmID:   field(rec, colFirmID),
			CityCode: field(rec, colCityCode),
			Street:   field(rec, colStreet),
			City:     field(rec, colCity),
		}
		if y := strings.TrimSpace(field(rec, colYear)); y != "" {
			if row.Year, err = strconv.Atoi(y); err != nil {
				return nil, fmt.Errorf("line %d: year %q: %w", line, y, err)
			}
		}
		row.FullAddress = domain.BuildFullAddress(row.Street, row.City, country)
		rows = append(rows, row)
	}
}

// ReadPanelFile opens path and parses it with ReadPanel.
func ReadPanelFile(path, enc, country string) ([]PanelRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rows, err := ReadPanel(f, enc, country)
	if err != nil {
		return nil, fmt.Errorf("read panel %s: %w", path, err)
	}
	return rows, nil
}

// Lookup returns the distinct full addresses of rows in first-seen order.
func Lookup(rows []PanelRow) []string {
	seen := make(map[string]struct{}, len(rows))
	var out []string
	for _, r := range rows {
		if _, ok := seen[r.FullAddress]; ok {
			continue
		}
		seen[r.FullAddress] = struct{}{}
		out = append(out, r.FullAddress)
	}
	return out
}
