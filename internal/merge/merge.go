// Package merge concatenates per-period result files into a single output.
package merge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/brsi-pipeline/internal/adapter/csvfile"
	"github.com/couchcryptid/brsi-pipeline/internal/adapter/parquet"
	"github.com/couchcryptid/brsi-pipeline/internal/domain"
)

// Format selects the merged output encoding.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

// ParseFormat accepts csv or parquet. An empty string selects csv.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "":
		return FormatCSV, nil
	case FormatCSV, FormatParquet:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want csv or parquet)", s)
	}
}

// ErrNoInputs is returned when the input directory has no result files.
var ErrNoInputs = errors.New("no input files")

// Archiver copies a merged file to long-term storage.
type Archiver interface {
	Archive(ctx context.Context, path string, rows int) (string, error)
}

// Options configures a merge.
type Options struct {
	InputDir    string
	OutputDir   string
	Name        string // base name without extension, default merged_gdelt_data
	Format      Format
	Timestamped bool // append _YYYYMMDD_HHMM to Name
	WriteStats  bool // write <name>.stats.json next to the output
}

// Merger combines result files.
type Merger struct {
	opts     Options
	archiver Archiver
	clock    clockwork.Clock
	logger   *slog.Logger
}

// New creates a Merger. archiver may be nil.
func New(opts Options, archiver Archiver, clock clockwork.Clock, logger *slog.Logger) *Merger {
	if opts.Name == "" {
		opts.Name = "merged_gdelt_data"
	}
	if opts.Format == "" {
		opts.Format = FormatCSV
	}
	return &Merger{opts: opts, archiver: archiver, clock: clock, logger: logger}
}

// Result describes the merged output.
type Result struct {
	Path       string
	Files      []string
	Stats      Stats
	ArchiveURL string
}

// Merge reads every *.csv in InputDir (in name order), checks they share one
// header, and writes their rows, in order, to a single output file.
func (m *Merger) Merge(ctx context.Context) (Result, error) {
	files, err := inputFiles(m.opts.InputDir)
	if err != nil {
		return Result{}, err
	}

	var (
		all    []domain.SentimentRow
		header []string
		gran   domain.Granularity
	)
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		h, err := csvfile.ReadHeader(f)
		if err != nil {
			return Result{}, err
		}
		if header == nil {
			header = h
		} else if !slices.Equal(header, h) {
			return Result{}, fmt.Errorf("%s: header %q does not match %q", f, strings.Join(h, ","), strings.Join(header, ","))
		}
		rows, g, err := csvfile.ReadFile(f)
		if err != nil {
			return Result{}, err
		}
		gran = g
		all = append(all, rows...)
		m.logger.Debug("read input file", "path", f, "rows", len(rows))
	}

	out := m.outputPath()
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return Result{}, err
	}
	switch m.opts.Format {
	case FormatParquet:
		err = parquet.WriteFile(out, all)
	default:
		err = csvfile.WriteFile(out, gran, all)
	}
	if err != nil {
		return Result{}, err
	}

	res := Result{Path: out, Files: files, Stats: ComputeStats(all, len(files))}
	m.logger.Info("merged files",
		"files", len(files),
		"rows", res.Stats.Rows,
		"pairs", res.Stats.Pairs,
		"first_period", res.Stats.FirstPeriod,
		"last_period", res.Stats.LastPeriod,
		"path", out,
	)

	if m.opts.WriteStats {
		if err := writeStats(strings.TrimSuffix(out, filepath.Ext(out))+".stats.json", res.Stats); err != nil {
			return Result{}, err
		}
	}

	if m.archiver != nil {
		loc, err := m.archiver.Archive(ctx, out, res.Stats.Rows)
		if err != nil {
			return Result{}, err
		}
		res.ArchiveURL = loc
	}
	return res, nil
}

func (m *Merger) outputPath() string {
	name := m.opts.Name
	if m.opts.Timestamped {
		name += "_" + m.clock.Now().Format("20060102_1504")
	}
	return filepath.Join(m.opts.OutputDir, name+"."+string(m.opts.Format))
}

func inputFiles(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoInputs, dir)
	}
	sort.Strings(files)
	return files, nil
}

// Stats summarizes a merged data set.
type Stats struct {
	Files       int     `json:"files"`
	Rows        int     `json:"rows"`
	Pairs       int     `json:"pairs"`
	MinScore    float64 `json:"min_score"`
	MaxScore    float64 `json:"max_score"`
	MeanScore   float64 `json:"mean_score"`
	FirstPeriod string  `json:"first_period,omitempty"`
	LastPeriod  string  `json:"last_period,omitempty"`
}

// ComputeStats summarizes rows read from files input files.
func ComputeStats(rows []domain.SentimentRow, files int) Stats {
	s := Stats{Files: files, Rows: len(rows)}
	if len(rows) == 0 {
		return s
	}
	pairs := make(map[string]struct{})
	s.MinScore, s.MaxScore = math.Inf(1), math.Inf(-1)
	var sum float64
	first, last := rows[0], rows[0]
	for _, r := range rows {
		pairs[r.Origin+"|"+r.Partner] = struct{}{}
		s.MinScore = math.Min(s.MinScore, r.AvgScore)
		s.MaxScore = math.Max(s.MaxScore, r.AvgScore)
		sum += r.AvgScore
		if dateKey(r) < dateKey(first) {
			first = r
		}
		if dateKey(r) > dateKey(last) {
			last = r
		}
	}
	s.Pairs = len(pairs)
	s.MeanScore = sum / float64(len(rows))
	s.FirstPeriod = periodLabel(first)
	s.LastPeriod = periodLabel(last)
	return s
}

func dateKey(r domain.SentimentRow) int {
	return r.Year*10000 + r.Month*100 + r.Day
}

func periodLabel(r domain.SentimentRow) string {
	if r.Day != 0 {
		return fmt.Sprintf("%04d-%02d-%02d", r.Year, r.Month, r.Day)
	}
	return domain.MonthPeriod(r.Year, r.Month).String()
}

func writeStats(path string, s Stats) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}
