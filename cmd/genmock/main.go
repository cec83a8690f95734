// Command genmock writes deterministic GDELT-shaped sample files for the
// pullgdelt -test mode, the sample sync source, and local development.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -out sample-data \
//	  -pairs USA:ISR,USA:CHN,BRA:ARG \
//	  -start 2020 -end 2021 -daily
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/brsi-pipeline/internal/adapter/csvfile"
	"github.com/couchcryptid/brsi-pipeline/internal/domain"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "sample-data", "output directory")
	pairsFlag := flag.String("pairs", "USA:ISR,USA:CHN,BRA:ARG,DEU:FRA", "comma-separated ORIGIN:PARTNER pairs")
	start := flag.Int("start", 2020, "first year")
	end := flag.Int("end", 2021, "last year")
	daily := flag.Bool("daily", false, "also write daily files, one per month, under <out>/daily")
	seed := flag.Uint64("seed", 1, "random seed")
	flag.Parse()

	pairs, err := parsePairs(*pairsFlag)
	if err != nil {
		return err
	}
	years, err := domain.YearRange(*start, *end)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewPCG(*seed, *seed))
	total := 0
	for _, y := range years {
		rows := monthlyRows(rng, pairs, y.Year)
		path := filepath.Join(*out, fmt.Sprintf("gdelt_sample_%d.csv", y.Year))
		if err := csvfile.WriteFile(path, domain.GranularityMonthly, rows); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		total += len(rows)
		log.Printf("%s: %d monthly rows", path, len(rows))

		if !*daily {
			continue
		}
		for _, m := range y.Months() {
			rows := dailyRows(rng, pairs, m)
			path := filepath.Join(*out, "daily", fmt.Sprintf("gdelt_sample_%d_%02d.csv", m.Year, m.Month))
			if err := csvfile.WriteFile(path, domain.GranularityDaily, rows); err != nil {
				return fmt.Errorf("writing %s: %w", path, err)
			}
			total += len(rows)
		}
		log.Printf("%d: daily files written", y.Year)
	}

	log.Printf("total: %d rows", total)
	return nil
}

func parsePairs(s string) ([]domain.Pair, error) {
	var pairs []domain.Pair
	for _, p := range strings.Split(s, ",") {
		origin, partner, ok := strings.Cut(strings.TrimSpace(p), ":")
		if !ok || origin == "" || partner == "" {
			return nil, fmt.Errorf("invalid pair %q (want ORIGIN:PARTNER)", p)
		}
		pairs = append(pairs, domain.Pair{Origin: strings.ToUpper(origin), Partner: strings.ToUpper(partner)})
	}
	return pairs, nil
}

// score draws a Goldstein-like mean: a per-pair baseline plus noise,
// clamped to the scale's [-10, 10] range and rounded to 4 decimals.
func score(rng *rand.Rand, baseline float64) float64 {
	v := baseline + rng.NormFloat64()*1.5
	v = math.Max(-10, math.Min(10, v))
	return math.Round(v*1e4) / 1e4
}

func baseline(p domain.Pair) float64 {
	h := 0
	for _, c := range p.Origin + p.Partner {
		h = h*31 + int(c)
	}
	return float64(h%9) - 3
}

func monthlyRows(rng *rand.Rand, pairs []domain.Pair, year int) []domain.SentimentRow {
	rows := make([]domain.SentimentRow, 0, len(pairs)*12)
	for _, p := range pairs {
		for month := 1; month <= 12; month++ {
			rows = append(rows, domain.SentimentRow{
				Origin: p.Origin, Partner: p.Partner,
				Year: year, Month: month,
				AvgScore: score(rng, baseline(p)),
			})
		}
	}
	return rows
}

func dailyRows(rng *rand.Rand, pairs []domain.Pair, m domain.Period) []domain.SentimentRow {
	days := time.Date(m.Year, time.Month(m.Month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
	rows := make([]domain.SentimentRow, 0, len(pairs)*days)
	for _, p := range pairs {
		for day := 1; day <= days; day++ {
			rows = append(rows, domain.SentimentRow{
				Origin: p.Origin, Partner: p.Partner,
				Year: m.Year, Month: m.Month, Day: day,
				AvgScore: score(rng, baseline(p)),
			})
		}
	}
	return rows
}
