package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentimentRow_InPeriod(t *testing.T) {
	row := SentimentRow{Origin: "USA", Partner: "ISR", Year: 2024, Month: 3, AvgScore: 1.5}

	assert.True(t, row.InPeriod(YearPeriod(2024)))
	assert.True(t, row.InPeriod(MonthPeriod(2024, 3)))
	assert.False(t, row.InPeriod(MonthPeriod(2024, 4)))
	assert.False(t, row.InPeriod(YearPeriod(2023)))
}

func TestSentimentRow_Key(t *testing.T) {
	monthly := SentimentRow{Origin: "USA", Partner: "ISR", Year: 2024, Month: 3}
	daily := SentimentRow{Origin: "USA", Partner: "ISR", Year: 2024, Month: 3, Day: 9}

	assert.Equal(t, "USA|ISR|2024-03", monthly.Key())
	assert.Equal(t, "USA|ISR|2024-03-09", daily.Key())
	assert.Equal(t, GranularityMonthly, monthly.Granularity())
	assert.Equal(t, GranularityDaily, daily.Granularity())
}

func TestSentimentRow_JSONOmitsDayForMonthlyRows(t *testing.T) {
	data, err := json.Marshal(SentimentRow{Origin: "BRA", Partner: "ARG", Year: 2001, Month: 12, AvgScore: -2.25})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Actor1CountryCode":"BRA","Actor2CountryCode":"ARG","Year":2001,"Month":12,"AvgGoldsteinScale":-2.25}`, string(data))
}

func TestGranularity_Columns(t *testing.T) {
	assert.Equal(t, []string{ColOrigin, ColPartner, ColYear, ColMonth, ColAvgScore}, GranularityMonthly.Columns())
	assert.Equal(t, []string{ColOrigin, ColPartner, ColYear, ColMonth, ColDay, ColAvgScore}, GranularityDaily.Columns())
	assert.Equal(t, []string{ColOrigin, ColPartner, ColYear, ColMonth}, GranularityMonthly.ConflictColumns())

	row := SentimentRow{Origin: "A", Partner: "B", Year: 2000, Month: 1, Day: 2, AvgScore: 3}
	assert.Len(t, row.Values(GranularityDaily), len(GranularityDaily.Columns()))
	assert.Len(t, row.Values(GranularityMonthly), len(GranularityMonthly.Columns()))
}

func TestParseGranularity(t *testing.T) {
	g, err := ParseGranularity("Daily")
	require.NoError(t, err)
	assert.Equal(t, GranularityDaily, g)

	_, err = ParseGranularity("weekly")
	assert.Error(t, err)
}

func TestParseAggregateLevel(t *testing.T) {
	for _, s := range []string{"daily", "monthly", "yearly"} {
		l, ok := ParseAggregateLevel(s)
		assert.True(t, ok)
		assert.Equal(t, AggregateLevel(s), l)
	}
	_, ok := ParseAggregateLevel("hourly")
	assert.False(t, ok)
}
