package kafka

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/brsi-pipeline/internal/domain"
)

func TestSerializeToMessage(t *testing.T) {
	row := domain.SentimentRow{Origin: "USA", Partner: "ISR", Year: 2024, Month: 3, Day: 7, AvgScore: -1.25}

	msg, err := serializeToMessage("gdelt_daily", domain.GranularityDaily, row, "insert", nil)
	require.NoError(t, err)

	assert.Equal(t, "gdelt_daily", msg.Topic)
	assert.Equal(t, []byte("USA|ISR|2024-03-07"), msg.Key)
	assert.JSONEq(t,
		`{"Actor1CountryCode":"USA","Actor2CountryCode":"ISR","Year":2024,"Month":3,"Day":7,"AvgGoldsteinScale":-1.25}`,
		string(msg.Value))
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, HeaderGranularity, msg.Headers[0].Key)
	assert.Equal(t, []byte("daily"), msg.Headers[0].Value)
	assert.Equal(t, HeaderOperation, msg.Headers[1].Key)
	assert.Equal(t, []byte("insert"), msg.Headers[1].Value)
}

func TestSerializeToMessage_UpsertCarriesConflictColumns(t *testing.T) {
	g := domain.GranularityMonthly
	row := domain.SentimentRow{Origin: "BRA", Partner: "ARG", Year: 2025, Month: 1, AvgScore: 2}

	msg, err := serializeToMessage("gdelt_monthly", g, row, "upsert", g.ConflictColumns())
	require.NoError(t, err)

	assert.Equal(t, []byte("BRA|ARG|2025-01"), msg.Key)
	assert.NotContains(t, string(msg.Value), `"Day"`)
	require.Len(t, msg.Headers, 3)
	assert.Equal(t, HeaderConflict, msg.Headers[2].Key)
	assert.Equal(t, "Actor1CountryCode,Actor2CountryCode,Year,Month", string(msg.Headers[2].Value))
}

func TestInsert_EmptyBatch(t *testing.T) {
	w := NewWriter([]string{"localhost:0"}, slog.New(slog.DiscardHandler))
	defer w.Close()

	err := w.Insert(context.Background(), "gdelt_monthly", domain.GranularityMonthly, nil)
	assert.ErrorIs(t, err, domain.ErrEmptyBatch)
}
