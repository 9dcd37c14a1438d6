package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-data-normalizer/internal/config"
	"github.com/couchcryptid/storm-data-normalizer/internal/domain"
)

type mockMessageWriter struct {
	batches [][]kafkago.Message
	failOn  int // 1-based call number that fails, 0 never
	closed  bool
}

func (m *mockMessageWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if m.failOn == len(m.batches)+1 {
		return errors.New("broker unavailable")
	}
	m.batches = append(m.batches, append([]kafkago.Message(nil), msgs...))
	return nil
}

func (m *mockMessageWriter) Close() error {
	m.closed = true
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testReport = &domain.Report{RunID: "run-1", Reference: domain.YearMonth{Year: 2011, Month: 11}}

func records(n int) []domain.ClassifiedRecord {
	out := make([]domain.ClassifiedRecord, n)
	for i := range out {
		out[i] = domain.ClassifiedRecord{ID: string(rune('a' + i)), Category: domain.CategoryHail, DamagesAdjusted: domain.Known(1)}
	}
	return out
}

func TestSerializeToMessage(t *testing.T) {
	rec := domain.ClassifiedRecord{
		ID: "42", Year: 2011, Month: 10, Category: domain.CategoryTornado,
		DamagesAdjusted: domain.Missing(), Deaths: 1,
	}

	msg, err := serializeToMessage(testReport, rec)
	require.NoError(t, err)

	assert.Equal(t, []byte("42"), msg.Key)
	assert.JSONEq(t, `{"id":"42","year":2011,"month":10,"category":"tornado","damages_adjusted":null,"deaths":1,"injuries":0}`, string(msg.Value))
	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "category", msg.Headers[0].Key)
	assert.Equal(t, []byte("tornado"), msg.Headers[0].Value)
	assert.Equal(t, "run_id", msg.Headers[1].Key)
	assert.Equal(t, []byte("run-1"), msg.Headers[1].Value)
	assert.Equal(t, []byte("2011-11"), msg.Headers[2].Value)
}

func TestWriter_LoadBatches(t *testing.T) {
	mw := &mockMessageWriter{}
	w := newWriter(mw, 2, discardLogger())

	require.NoError(t, w.Load(context.Background(), testReport, records(5)))

	require.Len(t, mw.batches, 3)
	assert.Len(t, mw.batches[0], 2)
	assert.Len(t, mw.batches[1], 2)
	assert.Len(t, mw.batches[2], 1)
	assert.Equal(t, []byte("e"), mw.batches[2][0].Key)
}

func TestWriter_LoadEmpty(t *testing.T) {
	mw := &mockMessageWriter{}
	require.NoError(t, newWriter(mw, 10, discardLogger()).Load(context.Background(), testReport, nil))
	assert.Empty(t, mw.batches)
}

func TestWriter_LoadFailure(t *testing.T) {
	mw := &mockMessageWriter{failOn: 2}
	w := newWriter(mw, 2, discardLogger())

	err := w.Load(context.Background(), testReport, records(5))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 of 5")
	assert.Len(t, mw.batches, 1)
}

func TestWriter_Close(t *testing.T) {
	mw := &mockMessageWriter{}
	require.NoError(t, newWriter(mw, 0, discardLogger()).Close())
	assert.True(t, mw.closed)
}

func TestNewWriter_FromConfig(t *testing.T) {
	w := NewWriter(&config.Config{
		KafkaBrokers:   []string{"localhost:9092"},
		KafkaSinkTopic: "classified-storm-events",
		KafkaBatchSize: 50,
	}, discardLogger())
	assert.Equal(t, 50, w.batchSize)

	kw, ok := w.writer.(*kafkago.Writer)
	require.True(t, ok)
	assert.Equal(t, "classified-storm-events", kw.Topic)
	require.NoError(t, w.Close())
}
