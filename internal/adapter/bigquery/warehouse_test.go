package bigquery

import (
	"testing"

	"cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/brsi-pipeline/internal/domain"
)

var testTables = Tables{Events: "gdelt-bq.full.events", Pairs: "218_Countries.Pairs"}

func TestBuildQuery_MonthlyYear(t *testing.T) {
	sql, params := buildQuery(testTables, domain.Query{
		Period:      domain.YearPeriod(2024),
		Granularity: domain.GranularityMonthly,
	})

	assert.Contains(t, sql, "FROM `218_Countries.Pairs` cp")
	assert.Contains(t, sql, "JOIN `gdelt-bq.full.events` e")
	assert.Contains(t, sql, "WHERE e.Year = @year\n")
	assert.Contains(t, sql, "0 AS Day")
	assert.Contains(t, sql, "GROUP BY 1, 2, 3, 4\n")
	assert.NotContains(t, sql, "@partner")
	assert.Equal(t, []bigquery.QueryParameter{{Name: "year", Value: 2024}}, params)
}

func TestBuildQuery_DailyMonthWithPartner(t *testing.T) {
	sql, params := buildQuery(testTables, domain.Query{
		Period:      domain.MonthPeriod(2023, 7),
		Granularity: domain.GranularityDaily,
		Partner:     "usa",
	})

	assert.Contains(t, sql, "WHERE e.MonthYear = @monthyear AND cp.Actor2CountryCode = @partner")
	assert.Contains(t, sql, "EXTRACT(DAY FROM")
	assert.Contains(t, sql, "GROUP BY 1, 2, 3, 4, 5\n")
	assert.Equal(t, []bigquery.QueryParameter{
		{Name: "monthyear", Value: 202307},
		{Name: "partner", Value: "USA"},
	}, params)
}

func TestTables_Validate(t *testing.T) {
	require.NoError(t, testTables.validate())
	assert.Error(t, Tables{Events: "events; DROP TABLE x", Pairs: "a.b"}.validate())
	assert.Error(t, Tables{Events: "gdelt-bq.full.events", Pairs: "pairs"}.validate())
}

func TestRecordToRow(t *testing.T) {
	full := record{
		Origin:   bigquery.NullString{StringVal: "USA", Valid: true},
		Partner:  bigquery.NullString{StringVal: "ISR", Valid: true},
		Year:     bigquery.NullInt64{Int64: 2024, Valid: true},
		Month:    bigquery.NullInt64{Int64: 3, Valid: true},
		Day:      bigquery.NullInt64{Int64: 14, Valid: true},
		AvgScore: bigquery.NullFloat64{Float64: 1.5, Valid: true},
	}

	row, ok := full.toRow(domain.GranularityMonthly)
	require.True(t, ok)
	assert.Equal(t, domain.SentimentRow{Origin: "USA", Partner: "ISR", Year: 2024, Month: 3, AvgScore: 1.5}, row)

	row, ok = full.toRow(domain.GranularityDaily)
	require.True(t, ok)
	assert.Equal(t, 14, row.Day)

	noScore := full
	noScore.AvgScore = bigquery.NullFloat64{}
	_, ok = noScore.toRow(domain.GranularityMonthly)
	assert.False(t, ok)

	noDay := full
	noDay.Day = bigquery.NullInt64{}
	_, ok = noDay.toRow(domain.GranularityDaily)
	assert.False(t, ok)

	emptyActor := full
	emptyActor.Partner = bigquery.NullString{Valid: true}
	_, ok = emptyActor.toRow(domain.GranularityMonthly)
	assert.False(t, ok)
}
