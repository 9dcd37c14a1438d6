package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/storm-data-normalizer/internal/config"
	"github.com/couchcryptid/storm-data-normalizer/internal/domain"
)

// messageWriter is the part of *kafkago.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes classified records to a Kafka topic, one message per
// record keyed by record ID. It implements pipeline.Loader.
type Writer struct {
	writer    messageWriter
	batchSize int
	logger    *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchSize:    cfg.KafkaBatchSize,
	}
	return newWriter(w, cfg.KafkaBatchSize, logger)
}

func newWriter(w messageWriter, batchSize int, logger *slog.Logger) *Writer {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Writer{writer: w, batchSize: batchSize, logger: logger}
}

// Load publishes records in chunks of the configured batch size. It stops at
// the first failed chunk; earlier chunks stay published.
func (w *Writer) Load(ctx context.Context, report *domain.Report, records []domain.ClassifiedRecord) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, 0, min(w.batchSize, len(records)))
	sent := 0
	for i := range records {
		msg, err := serializeToMessage(report, records[i])
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
		if len(msgs) == w.batchSize || i == len(records)-1 {
			if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
				return fmt.Errorf("publish after %d of %d records: %w", sent, len(records), err)
			}
			sent += len(msgs)
			msgs = msgs[:0]
		}
	}
	w.logger.Debug("records published", "run_id", report.RunID, "records", sent)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a ClassifiedRecord into a Kafka message.
func serializeToMessage(report *domain.Report, rec domain.ClassifiedRecord) (kafkago.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize record %s: %w", rec.ID, err)
	}
	return kafkago.Message{
		Key:   []byte(rec.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "category", Value: []byte(rec.Category)},
			{Key: "run_id", Value: []byte(report.RunID)},
			{Key: "reference_month", Value: []byte(report.Reference.String())},
		},
	}, nil
}
