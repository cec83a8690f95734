package postgres

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/couchcryptid/brsi-pipeline/internal/domain"
)

func TestInsertSQL_MultiRow(t *testing.T) {
	got := insertSQL("gdelt_monthly", domain.GranularityMonthly.Columns(), 2, nil)

	assert.Equal(t,
		`INSERT INTO "gdelt_monthly" ("Actor1CountryCode", "Actor2CountryCode", "Year", "Month", "AvgGoldsteinScale") `+
			`VALUES ($1, $2, $3, $4, $5), ($6, $7, $8, $9, $10)`,
		got)
}

func TestInsertSQL_Upsert(t *testing.T) {
	g := domain.GranularityMonthly
	got := insertSQL("gdelt_monthly", g.Columns(), 1, g.ConflictColumns())

	assert.True(t, strings.HasSuffix(got,
		` ON CONFLICT ("Actor1CountryCode", "Actor2CountryCode", "Year", "Month") DO UPDATE SET "AvgGoldsteinScale" = EXCLUDED."AvgGoldsteinScale"`),
		got)
}

func TestInsertSQL_QuotesTableName(t *testing.T) {
	got := insertSQL(`odd"name`, domain.GranularityDaily.Columns(), 1, nil)
	assert.True(t, strings.HasPrefix(got, `INSERT INTO "odd""name" (`), got)
	assert.Contains(t, got, "($1, $2, $3, $4, $5, $6)")
}

func TestAggregateSQL(t *testing.T) {
	tests := []struct {
		level domain.AggregateLevel
		sel   string
		group string
	}{
		{domain.AggregateDaily, `SELECT "Year", "Month", "Day",`, `GROUP BY "Year", "Month", "Day"`},
		{domain.AggregateMonthly, `SELECT "Year", "Month", 0,`, `GROUP BY "Year", "Month"` + "\n"},
		{domain.AggregateYearly, `SELECT "Year", 0, 0,`, `GROUP BY "Year"` + "\n"},
	}
	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			got := aggregateSQL("gdelt_daily", tt.level)
			assert.True(t, strings.HasPrefix(got, tt.sel), got)
			assert.Contains(t, got, tt.group)
			assert.Contains(t, got, `FROM "gdelt_daily"`)
		})
	}
}
