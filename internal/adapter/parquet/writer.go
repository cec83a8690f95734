// Package parquet writes merged sentiment rows as Snappy-compressed Parquet.
package parquet

import (
	"fmt"
	"os"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/couchcryptid/brsi-pipeline/internal/domain"
)

// Record is the Parquet schema of a sentiment row. Day is 0 for monthly rows.
type Record struct {
	Origin   string  `parquet:"name=Actor1CountryCode, type=BYTE_ARRAY, convertedtype=UTF8"`
	Partner  string  `parquet:"name=Actor2CountryCode, type=BYTE_ARRAY, convertedtype=UTF8"`
	Year     int32   `parquet:"name=Year, type=INT32"`
	Month    int32   `parquet:"name=Month, type=INT32"`
	Day      int32   `parquet:"name=Day, type=INT32"`
	AvgScore float64 `parquet:"name=AvgGoldsteinScale, type=DOUBLE"`
}

func toRecord(r domain.SentimentRow) Record {
	return Record{
		Origin:   r.Origin,
		Partner:  r.Partner,
		Year:     int32(r.Year),
		Month:    int32(r.Month),
		Day:      int32(r.Day),
		AvgScore: r.AvgScore,
	}
}

// flushEvery bounds the row group size for large merges.
const flushEvery = 100000

// WriteFile writes rows to path. The file is removed if writing fails.
func WriteFile(path string, rows []domain.SentimentRow) (err error) {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			fw.Close() //nolint:errcheck // already failing
			os.Remove(path)
		}
	}()

	pw, err := writer.NewParquetWriter(fw, new(Record), 4)
	if err != nil {
		return fmt.Errorf("parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for i, r := range rows {
		if err := pw.Write(toRecord(r)); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
		if (i+1)%flushEvery == 0 {
			if err := pw.Flush(true); err != nil {
				return fmt.Errorf("flush at row %d: %w", i+1, err)
			}
		}
	}

	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("finalize parquet: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
