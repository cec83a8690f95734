package fetch

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/couchcryptid/brsi-pipeline/internal/adapter/csvfile"
	"github.com/couchcryptid/brsi-pipeline/internal/domain"
)

// SampleSource serves rows from the result files in a local directory. It
// backs the offline test mode.
type SampleSource struct {
	dir string
}

// NewSampleSource reads sample files from dir.
func NewSampleSource(dir string) *SampleSource {
	return &SampleSource{dir: dir}
}

// Fetch returns the sample rows matching q's period, granularity and partner.
func (s *SampleSource) Fetch(ctx context.Context, q domain.Query) ([]domain.SentimentRow, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, "*.csv"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no sample files in %s", s.dir)
	}
	sort.Strings(paths)

	var out []domain.SentimentRow
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, g, err := csvfile.ReadFile(p)
		if err != nil {
			return nil, err
		}
		if g != q.Granularity {
			continue
		}
		for _, r := range rows {
			if !r.InPeriod(q.Period) {
				continue
			}
			if q.Partner != "" && !strings.EqualFold(r.Partner, q.Partner) {
				continue
			}
			out = append(out, r)
		}
	}
	return out, nil
}
