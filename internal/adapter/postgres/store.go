// Package postgres writes sentiment rows to, and reads them back from, a
// Postgres database using lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"

	"github.com/lib/pq"

	"github.com/couchcryptid/brsi-pipeline/internal/domain"
)

// maxParams is the Postgres limit on bind parameters per statement.
const maxParams = 65535

// Store implements upload.TableStore and the read API repository.
type Store struct {
	db *sql.DB
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck // ping error takes precedence
		return nil, fmt.Errorf("ping database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	return &Store{db: db}, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Insert writes rows in one transaction using multi-row INSERT statements.
func (s *Store) Insert(ctx context.Context, table string, g domain.Granularity, rows []domain.SentimentRow) error {
	return s.write(ctx, table, g, rows, nil)
}

// Upsert writes rows in one transaction, updating the score of rows whose
// conflict columns already exist.
func (s *Store) Upsert(ctx context.Context, table string, g domain.Granularity, rows []domain.SentimentRow, conflict []string) error {
	if len(conflict) == 0 {
		return fmt.Errorf("upsert %s: no conflict columns", table)
	}
	return s.write(ctx, table, g, rows, conflict)
}

func (s *Store) write(ctx context.Context, table string, g domain.Granularity, rows []domain.SentimentRow, conflict []string) error {
	if len(rows) == 0 {
		return domain.ErrEmptyBatch
	}
	cols := g.Columns()
	per := maxParams / len(cols)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for start := 0; start < len(rows); start += per {
		chunk := rows[start:min(start+per, len(rows))]
		args := make([]any, 0, len(chunk)*len(cols))
		for _, r := range chunk {
			args = append(args, r.Values(g)...)
		}
		if _, err := tx.ExecContext(ctx, insertSQL(table, cols, len(chunk), conflict), args...); err != nil {
			return fmt.Errorf("insert into %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// insertSQL builds a multi-row INSERT for n rows. With conflict columns it
// becomes an upsert that overwrites the remaining columns.
func insertSQL(table string, cols []string, n int, conflict []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", pq.QuoteIdentifier(table), quoteAll(cols))
	p := 1
	for i := range n {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j := range cols {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", p)
			p++
		}
		b.WriteByte(')')
	}
	if len(conflict) == 0 {
		return b.String()
	}

	fmt.Fprintf(&b, " ON CONFLICT (%s) DO UPDATE SET ", quoteAll(conflict))
	var sets []string
	for _, c := range cols {
		if slices.Contains(conflict, c) {
			continue
		}
		q := pq.QuoteIdentifier(c)
		sets = append(sets, q+" = EXCLUDED."+q)
	}
	b.WriteString(strings.Join(sets, ", "))
	return b.String()
}

// MonthlyRecords returns a pair's monthly rows within r, ordered by month.
func (s *Store) MonthlyRecords(ctx context.Context, table string, r domain.MonthRange) ([]domain.SentimentRow, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s
WHERE "Actor1CountryCode" = $1 AND "Actor2CountryCode" = $2
  AND ("Year" * 100 + "Month") BETWEEN $3 AND $4
ORDER BY "Year", "Month"`, quoteAll(domain.GranularityMonthly.Columns()), pq.QuoteIdentifier(table))

	return s.queryRows(ctx, query, domain.GranularityMonthly,
		r.Origin, r.Partner, r.StartYear*100+r.StartMonth, r.EndYear*100+r.EndMonth)
}

// DailyRecords returns a pair's daily rows within r, ordered by date.
func (s *Store) DailyRecords(ctx context.Context, table string, r domain.DateRange) ([]domain.SentimentRow, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s
WHERE "Actor1CountryCode" = $1 AND "Actor2CountryCode" = $2
  AND make_date("Year", "Month", "Day") BETWEEN $3 AND $4
ORDER BY "Year", "Month", "Day"`, quoteAll(domain.GranularityDaily.Columns()), pq.QuoteIdentifier(table))

	return s.queryRows(ctx, query, domain.GranularityDaily,
		r.Origin, r.Partner, r.Start.Format(domain.DateLayout), r.End.Format(domain.DateLayout))
}

// Aggregate averages a pair's daily rows within r at the given level.
func (s *Store) Aggregate(ctx context.Context, table string, level domain.AggregateLevel, r domain.DateRange) ([]domain.AggregateRecord, error) {
	rows, err := s.db.QueryContext(ctx, aggregateSQL(table, level), r.Origin, r.Partner,
		r.Start.Format(domain.DateLayout), r.End.Format(domain.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", table, err)
	}
	defer rows.Close()

	var out []domain.AggregateRecord
	for rows.Next() {
		var rec domain.AggregateRecord
		if err := rows.Scan(&rec.Year, &rec.Month, &rec.Day, &rec.AvgScore, &rec.Events); err != nil {
			return nil, fmt.Errorf("scan aggregate: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// aggregateSQL groups daily rows by the level's date parts. Parts below the
// level are selected as 0 so every level scans into the same record.
func aggregateSQL(table string, level domain.AggregateLevel) string {
	month, day := "0", "0"
	group := `"Year"`
	switch level {
	case domain.AggregateDaily:
		month, day = `"Month"`, `"Day"`
		group = `"Year", "Month", "Day"`
	case domain.AggregateMonthly:
		month = `"Month"`
		group = `"Year", "Month"`
	}
	return fmt.Sprintf(`SELECT "Year", %s, %s, AVG("AvgGoldsteinScale"), COUNT(*) FROM %s
WHERE "Actor1CountryCode" = $1 AND "Actor2CountryCode" = $2
  AND make_date("Year", "Month", "Day") BETWEEN $3 AND $4
GROUP BY %s
ORDER BY %s`, month, day, pq.QuoteIdentifier(table), group, group)
}

func (s *Store) queryRows(ctx context.Context, query string, g domain.Granularity, args ...any) ([]domain.SentimentRow, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []domain.SentimentRow
	for rows.Next() {
		var r domain.SentimentRow
		dest := []any{&r.Origin, &r.Partner, &r.Year, &r.Month}
		if g == domain.GranularityDaily {
			dest = append(dest, &r.Day)
		}
		dest = append(dest, &r.AvgScore)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func quoteAll(cols []string) string {
	q := make([]string, len(cols))
	for i, c := range cols {
		q[i] = pq.QuoteIdentifier(c)
	}
	return strings.Join(q, ", ")
}
