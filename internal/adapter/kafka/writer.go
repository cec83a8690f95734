// Package kafka publishes sentiment rows to Kafka topics named after the
// destination table.
package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/goccy/go-json"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/brsi-pipeline/internal/domain"
)

// Header keys set on every message.
const (
	HeaderGranularity = "granularity"
	HeaderOperation   = "operation"
	HeaderConflict    = "on_conflict"
)

// Writer implements upload.TableStore on top of a Kafka producer. Each row
// becomes one message keyed by pair and date, so a compacted topic keeps the
// latest score per key.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a producer for the given brokers. The topic is taken
// from the table name on each call.
func NewWriter(brokers []string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger}
}

// Insert publishes rows to the topic named table.
func (w *Writer) Insert(ctx context.Context, table string, g domain.Granularity, rows []domain.SentimentRow) error {
	return w.publish(ctx, table, g, rows, "insert", nil)
}

// Upsert publishes rows marked as upserts on the conflict columns.
func (w *Writer) Upsert(ctx context.Context, table string, g domain.Granularity, rows []domain.SentimentRow, conflict []string) error {
	return w.publish(ctx, table, g, rows, "upsert", conflict)
}

func (w *Writer) publish(ctx context.Context, topic string, g domain.Granularity, rows []domain.SentimentRow, op string, conflict []string) error {
	if len(rows) == 0 {
		return domain.ErrEmptyBatch
	}
	msgs := make([]kafkago.Message, len(rows))
	for i := range rows {
		msg, err := serializeToMessage(topic, g, rows[i], op, conflict)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	w.logger.Debug("rows published", "topic", topic, "count", len(msgs), "operation", op)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a row into a Kafka message for topic.
func serializeToMessage(topic string, g domain.Granularity, row domain.SentimentRow, op string, conflict []string) (kafkago.Message, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize row %s: %w", row.Key(), err)
	}
	headers := []kafkago.Header{
		{Key: HeaderGranularity, Value: []byte(g)},
		{Key: HeaderOperation, Value: []byte(op)},
	}
	if len(conflict) > 0 {
		headers = append(headers, kafkago.Header{Key: HeaderConflict, Value: []byte(strings.Join(conflict, ","))})
	}
	return kafkago.Message{
		Topic:   topic,
		Key:     []byte(row.Key()),
		Value:   data,
		Headers: headers,
	}, nil
}
