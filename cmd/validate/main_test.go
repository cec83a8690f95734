package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/brsi-pipeline/internal/adapter/csvfile"
	"github.com/couchcryptid/brsi-pipeline/internal/domain"
)

func monthly(origin, partner string, year, month int, score float64) domain.SentimentRow {
	return domain.SentimentRow{Origin: origin, Partner: partner, Year: year, Month: month, AvgScore: score}
}

func writeFixtures(t *testing.T, merged []domain.SentimentRow) (inputDir, mergedPath string) {
	t.Helper()
	dir := t.TempDir()
	inputDir = filepath.Join(dir, "query-results")
	mergedPath = filepath.Join(dir, "merged.csv")

	y2020 := []domain.SentimentRow{monthly("USA", "ISR", 2020, 1, 1.5), monthly("BRA", "ARG", 2020, 7, -2.25)}
	y2021 := []domain.SentimentRow{monthly("USA", "ISR", 2021, 3, 0.75)}
	require.NoError(t, csvfile.WriteFile(filepath.Join(inputDir, "gdelt_2020.csv"), domain.GranularityMonthly, y2020))
	require.NoError(t, csvfile.WriteFile(filepath.Join(inputDir, "gdelt_2021.csv"), domain.GranularityMonthly, y2021))

	if merged == nil {
		merged = append(append([]domain.SentimentRow{}, y2020...), y2021...)
	}
	require.NoError(t, csvfile.WriteFile(mergedPath, domain.GranularityMonthly, merged))
	return inputDir, mergedPath
}

func TestRun_AllPass(t *testing.T) {
	inputDir, mergedPath := writeFixtures(t, nil)

	var out bytes.Buffer
	code := run(&out, inputDir, mergedPath, "")

	assert.Equal(t, 0, code, out.String())
	assert.Contains(t, out.String(), "All validations passed.")
	assert.Contains(t, out.String(), "2 input files, 3 input rows, 3 merged rows")
}

func TestRun_MergedMissingRow(t *testing.T) {
	inputDir, mergedPath := writeFixtures(t, []domain.SentimentRow{
		monthly("USA", "ISR", 2020, 1, 1.5),
		monthly("USA", "ISR", 2021, 3, 0.75),
	})

	var out bytes.Buffer
	code := run(&out, inputDir, mergedPath, "")

	assert.Equal(t, 1, code)
	assert.Contains(t, out.String(), "row count: 3 input rows, 2 merged rows")
	assert.Contains(t, out.String(), "Validation FAILED.")
}

func TestRun_MissingMergedFile(t *testing.T) {
	inputDir, _ := writeFixtures(t, nil)

	var out bytes.Buffer
	assert.Equal(t, 1, run(&out, inputDir, filepath.Join(t.TempDir(), "absent.csv"), ""))
	assert.Contains(t, out.String(), "FATAL")
}

func TestValidateInputs_RowOutsideFilePeriod(t *testing.T) {
	p := validateInputs([]inputFile{{
		path: "gdelt_2020_03_ISR.csv",
		gran: domain.GranularityMonthly,
		rows: []domain.SentimentRow{
			monthly("USA", "ISR", 2020, 3, 1),
			monthly("USA", "ISR", 2020, 4, 1),
			monthly("USA", "EGY", 2020, 3, 1),
			monthly("USA", "ISR", 2020, 3, 12),
		},
	}})

	require.Len(t, p.errors, 3)
	assert.Contains(t, p.errors[0], "USA|ISR|2020-04 outside period 2020-03")
	assert.Contains(t, p.errors[1], "partner EGY")
	assert.Contains(t, p.errors[2], "score 12")
}

func TestValidateInputs_UnrecognizedNameSkipsPeriodCheck(t *testing.T) {
	p := validateInputs([]inputFile{{
		path: "gdelt_sample_2020.csv",
		gran: domain.GranularityMonthly,
		rows: []domain.SentimentRow{monthly("USA", "ISR", 2021, 3, 1)},
	}})
	assert.True(t, p.passed())
}

func TestValidateUniqueness(t *testing.T) {
	p := validateUniqueness([]domain.SentimentRow{
		monthly("USA", "ISR", 2020, 3, 1),
		monthly("BRA", "ARG", 2020, 3, 1),
		monthly("USA", "ISR", 2020, 3, 2),
	})
	require.Len(t, p.errors, 1)
	assert.Contains(t, p.errors[0], "USA|ISR|2020-03 at rows 1 and 3")
}

func TestRun_GeocodeCache(t *testing.T) {
	inputDir, mergedPath := writeFixtures(t, nil)
	cache := filepath.Join(t.TempDir(), "cache.csv")
	require.NoError(t, os.WriteFile(cache, []byte(
		"full_address,lat,lng,status,location_type\n"+
			"\"Rua A, 1, São Paulo\",-23.5,-46.6,OK,ROOFTOP\n"+
			"\"Rua B, 2, Recife\",,,ZERO_RESULTS,\n"+
			"\"Rua A, 1, São Paulo\",-23.5,-46.6,OK,ROOFTOP\n"+
			"\"Rua C, 3, Natal\",10,20,MAYBE,\n",
	), 0o600))

	var out bytes.Buffer
	code := run(&out, inputDir, mergedPath, cache)

	assert.Equal(t, 1, code)
	assert.Contains(t, out.String(), "duplicate address")
	assert.Contains(t, out.String(), "unknown status \"MAYBE\"")
}
