// Command validate performs integrity checks across the pipeline's file
// outputs: the per-period query result CSVs, the merged data set built from
// them, and optionally the geocoding cache. It verifies headers, period
// membership, score ranges, row parity, and key uniqueness.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -input ./query-results \
//	  -merged ./output/merged_gdelt_data.csv \
//	  -cache geocode_cache.csv
package main

import (
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/couchcryptid/brsi-pipeline/internal/adapter/csvfile"
	"github.com/couchcryptid/brsi-pipeline/internal/domain"
	"github.com/couchcryptid/brsi-pipeline/internal/fetch"
	"github.com/couchcryptid/brsi-pipeline/internal/geocode"
)

const (
	minScore = -10
	maxScore = 10

	// maxListed caps how many row-level mismatches a phase reports.
	maxListed = 10
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

type inputFile struct {
	path string
	rows []domain.SentimentRow
	gran domain.Granularity
}

func main() {
	inputDir := flag.String("input", "", "directory containing per-period query result CSV files")
	merged := flag.String("merged", "", "path to the merged CSV built from -input")
	cache := flag.String("cache", "", "optional path to a geocoding cache CSV")
	flag.Parse()

	if *inputDir == "" || *merged == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(os.Stdout, *inputDir, *merged, *cache); code != 0 {
		os.Exit(code)
	}
}

func run(out io.Writer, inputDir, mergedPath, cachePath string) int {
	fmt.Fprintln(out, "=== BRSI Data Integrity Validation ===")
	fmt.Fprintln(out)

	inputs, err := loadInputs(inputDir)
	if err != nil {
		fmt.Fprintf(out, "FATAL: load query results: %v\n", err)
		return 1
	}
	merged, _, err := csvfile.ReadFile(mergedPath)
	if err != nil {
		fmt.Fprintf(out, "FATAL: load merged data: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateInputs(inputs),
		validateParity(inputs, merged),
		validateUniqueness(merged),
	}

	cacheEntries := 0
	if cachePath != "" {
		f, err := os.Open(cachePath)
		if err != nil {
			fmt.Fprintf(out, "FATAL: open geocode cache: %v\n", err)
			return 1
		}
		entries, err := geocode.ReadEntries(f)
		_ = f.Close()
		if err != nil {
			fmt.Fprintf(out, "FATAL: read geocode cache: %v\n", err)
			return 1
		}
		cacheEntries = len(entries)
		phases = append(phases, validateCache(entries))
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = "\033[31mFAIL\033[0m"
			allPassed = false
		}
		fmt.Fprintf(out, "  %-42s %s\n", p.name, status)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Records: %d input files, %d input rows, %d merged rows, %d cache entries\n",
		len(inputs), countRows(inputs), len(merged), cacheEntries)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(out, "\nValidation FAILED.")
	return 1
}

// loadInputs reads every *.csv in dir in name order, the same order the
// merge step concatenates them in.
func loadInputs(dir string) ([]inputFile, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no CSV files in %s", dir)
	}
	sort.Strings(paths)

	files := make([]inputFile, 0, len(paths))
	for _, p := range paths {
		rows, g, err := csvfile.ReadFile(p)
		if err != nil {
			return nil, err
		}
		files = append(files, inputFile{path: p, rows: rows, gran: g})
	}
	return files, nil
}

func countRows(files []inputFile) int {
	n := 0
	for _, f := range files {
		n += len(f.rows)
	}
	return n
}

func validateInputs(files []inputFile) *phase {
	p := &phase{name: "Query result files"}

	for _, f := range files {
		name := filepath.Base(f.path)
		if f.gran != files[0].gran {
			p.errorf("%s: granularity %s, expected %s", name, f.gran, files[0].gran)
		}

		q, named := fetch.ParseFilePath(f.path)
		listed := 0
		for i, r := range f.rows {
			if listed >= maxListed {
				p.errorf("%s: further row errors omitted", name)
				break
			}
			if msg := checkRow(r, f.gran); msg != "" {
				p.errorf("%s row %d: %s", name, i+1, msg)
				listed++
				continue
			}
			if !named {
				continue
			}
			if !r.InPeriod(q.Period) {
				p.errorf("%s row %d: %s outside period %s", name, i+1, r.Key(), q.Period)
				listed++
			} else if q.Partner != "" && r.Partner != q.Partner {
				p.errorf("%s row %d: partner %s, expected %s", name, i+1, r.Partner, q.Partner)
				listed++
			}
		}
	}
	return p
}

func checkRow(r domain.SentimentRow, g domain.Granularity) string {
	switch {
	case r.Origin == "" || r.Partner == "":
		return "empty country code"
	case r.Month < 1 || r.Month > 12:
		return fmt.Sprintf("month %d out of range", r.Month)
	case g == domain.GranularityDaily && (r.Day < 1 || r.Day > 31):
		return fmt.Sprintf("day %d out of range", r.Day)
	case math.IsNaN(r.AvgScore) || r.AvgScore < minScore || r.AvgScore > maxScore:
		return fmt.Sprintf("score %v outside [%d, %d]", r.AvgScore, minScore, maxScore)
	}
	return ""
}

func validateParity(files []inputFile, merged []domain.SentimentRow) *phase {
	p := &phase{name: "Merged row parity"}

	var inputs []domain.SentimentRow
	for _, f := range files {
		inputs = append(inputs, f.rows...)
	}
	if len(inputs) != len(merged) {
		p.errorf("row count: %d input rows, %d merged rows", len(inputs), len(merged))
	}

	listed := 0
	for i := range min(len(inputs), len(merged)) {
		if inputs[i] == merged[i] {
			continue
		}
		if listed == maxListed {
			p.errorf("further mismatches omitted")
			break
		}
		p.errorf("row %d: input %s (%.4f), merged %s (%.4f)",
			i+1, inputs[i].Key(), inputs[i].AvgScore, merged[i].Key(), merged[i].AvgScore)
		listed++
	}
	return p
}

func validateUniqueness(rows []domain.SentimentRow) *phase {
	p := &phase{name: "Merged key uniqueness"}

	seen := make(map[string]int, len(rows))
	for i, r := range rows {
		k := r.Key()
		if first, ok := seen[k]; ok {
			if len(p.errors) == maxListed {
				p.errorf("further duplicates omitted")
				break
			}
			p.errorf("duplicate key %s at rows %d and %d", k, first+1, i+1)
			continue
		}
		seen[k] = i
	}
	return p
}

var knownStatuses = map[string]bool{
	domain.StatusOK:             true,
	domain.StatusZeroResults:    true,
	domain.StatusOverQueryLimit: true,
	domain.StatusRequestDenied:  true,
	domain.StatusInvalidRequest: true,
	domain.StatusUnknownError:   true,
}

func validateCache(entries []domain.CacheEntry) *phase {
	p := &phase{name: "Geocode cache"}

	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if seen[e.Address] {
			p.errorf("duplicate address %q", e.Address)
		}
		seen[e.Address] = true

		if !knownStatuses[e.Status] {
			p.errorf("%q: unknown status %q", e.Address, e.Status)
			continue
		}
		if e.Status != domain.StatusOK && e.HasCoordinates() {
			p.errorf("%q: status %s with coordinates", e.Address, e.Status)
		}
		if e.HasCoordinates() && (math.Abs(*e.Lat) > 90 || math.Abs(*e.Lng) > 180) {
			p.errorf("%q: coordinates (%v, %v) out of range", e.Address, *e.Lat, *e.Lng)
		}
	}
	return p
}
