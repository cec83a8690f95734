// Package csvfile reads and writes sentiment result files: comma-separated,
// one header row, columns named as in the table store.
package csvfile

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

// ErrHeader is returned when a file's header matches neither granularity.
var ErrHeader = errors.New("unrecognized sentiment header")

// GranularityOf maps a header row to its granularity.
func GranularityOf(header []string) (domain.Granularity, error) {
	for _, g := range []domain.Granularity{domain.GranularityMonthly, domain.GranularityDaily} {
		if slices.Equal(header, g.Columns()) {
			return g, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrHeader, strings.Join(header, ","))
}

// WriteRows writes a header for g followed by rows.
func WriteRows(w io.Writer, g domain.Granularity, rows []domain.SentimentRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(g.Columns()); err != nil {
		return err
	}
	rec := make([]string, len(g.Columns()))
	for _, r := range rows {
		rec = rec[:0]
		rec = append(rec, r.Origin, r.Partner, strconv.Itoa(r.Year), strconv.Itoa(r.Month))
		if g == domain.GranularityDaily {
			rec = append(rec, strconv.Itoa(r.Day))
		}
		rec = append(rec, strconv.FormatFloat(r.AvgScore, 'f', -1, 64))
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile creates (or truncates) path, creating parent directories, and
// writes rows to it.
func WriteFile(path string, g domain.Granularity, rows []domain.SentimentRow) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteRows(f, g, rows); err != nil {
		f.Close() //nolint:errcheck // write error takes precedence
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// ReadRows parses a result file. The header decides the granularity.
func ReadRows(r io.Reader) ([]domain.SentimentRow, domain.Granularity, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, "", fmt.Errorf("%w: empty file", ErrHeader)
		}
		return nil, "", err
	}
	g, err := GranularityOf(trimBOM(header))
	if err != nil {
		return nil, "", err
	}

	var rows []domain.SentimentRow
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, g, nil
		}
		if err != nil {
			return nil, "", err
		}
		row, err := parseRecord(rec, g)
		if err != nil {
			return nil, "", fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
}

// ReadFile opens path and parses it with ReadRows.
func ReadFile(path string) ([]domain.SentimentRow, domain.Granularity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()
	rows, g, err := ReadRows(f)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", path, err)
	}
	return rows, g, nil
}

// ReadHeader returns the first row of path.
func ReadHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	header, err := csv.NewReader(f).Read()
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	return trimBOM(header), nil
}

func parseRecord(rec []string, g domain.Granularity) (domain.SentimentRow, error) {
	var (
		row domain.SentimentRow
		err error
	)
	row.Origin = rec[0]
	row.Partner = rec[1]
	if row.Year, err = strconv.Atoi(rec[2]); err != nil {
		return row, fmt.Errorf("parse %s: %w", domain.ColYear, err)
	}
	if row.Month, err = strconv.Atoi(rec[3]); err != nil {
		return row, fmt.Errorf("parse %s: %w", domain.ColMonth, err)
	}
	scoreIdx := 4
	if g == domain.GranularityDaily {
		if row.Day, err = strconv.Atoi(rec[4]); err != nil {
			return row, fmt.Errorf("parse %s: %w", domain.ColDay, err)
		}
		scoreIdx = 5
	}
	if row.AvgScore, err = strconv.ParseFloat(rec[scoreIdx], 64); err != nil {
		return row, fmt.Errorf("parse %s: %w", domain.ColAvgScore, err)
	}
	return row, nil
}

func trimBOM(header []string) []string {
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	return slices.Clone(header)
}
