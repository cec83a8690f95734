//go:build integration

package integration_test

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/goccy/go-json"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/brsi-pipeline/internal/adapter/kafka"
	"github.com/couchcryptid/brsi-pipeline/internal/domain"
	"github.com/couchcryptid/brsi-pipeline/internal/observability"
	"github.com/couchcryptid/brsi-pipeline/internal/upload"
)

const testTable = "gdelt_monthly"

func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	c, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("brsi-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(c); err != nil {
			t.Logf("terminate kafka: %v", err)
		}
	})
	brokers, err := c.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	cc, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cc.Close()

	require.NoError(t, cc.CreateTopics(kafkago.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1}))
}

// TestUploadThroughKafka uploads rows in several batches and reads every row
// back from the table topic.
func TestUploadThroughKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTable)

	logger := slog.New(slog.DiscardHandler)
	writer := kafka.NewWriter([]string{broker}, logger)
	defer writer.Close()

	up, err := upload.New(writer, 2, logger, observability.NewMetricsForTesting())
	require.NoError(t, err)

	rows := []domain.SentimentRow{
		{Origin: "USA", Partner: "ISR", Year: 2024, Month: 1, AvgScore: 1},
		{Origin: "USA", Partner: "ISR", Year: 2024, Month: 2, AvgScore: 2},
		{Origin: "USA", Partner: "CHN", Year: 2024, Month: 1, AvgScore: -3},
		{Origin: "BRA", Partner: "ARG", Year: 2024, Month: 1, AvgScore: 0.5},
		{Origin: "BRA", Partner: "ARG", Year: 2024, Month: 2, AvgScore: 4},
	}
	report, err := up.Upload(ctx, testTable, domain.GranularityMonthly, rows)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Batches)
	assert.Equal(t, len(rows), report.RowsUploaded)
	assert.Empty(t, report.FailedBatches)

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testTable,
		StartOffset: kafkago.FirstOffset,
		MaxWait:     time.Second,
	})
	defer consumer.Close()

	got := make(map[string]domain.SentimentRow)
	for range rows {
		readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
		msg, err := consumer.ReadMessage(readCtx)
		readCancel()
		require.NoError(t, err, "read from table topic")

		var row domain.SentimentRow
		require.NoError(t, json.Unmarshal(msg.Value, &row))
		assert.Equal(t, row.Key(), string(msg.Key))
		got[row.Key()] = row
	}
	for _, r := range rows {
		assert.Equal(t, r, got[r.Key()])
	}
}
