//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/storm-data-normalizer/internal/adapter/csvsource"
	"github.com/couchcryptid/storm-data-normalizer/internal/adapter/kafka"
	"github.com/couchcryptid/storm-data-normalizer/internal/adapter/sqlite"
	"github.com/couchcryptid/storm-data-normalizer/internal/config"
	"github.com/couchcryptid/storm-data-normalizer/internal/domain"
	"github.com/couchcryptid/storm-data-normalizer/internal/observability"
	"github.com/couchcryptid/storm-data-normalizer/internal/pipeline"
)

const testSinkTopic = "test-classified"

const eventsCSV = `BGN_DATE,EVTYPE,FATALITIES,INJURIES,PROPDMG,PROPDMGEXP,CROPDMG,CROPDMGEXP,REFNUM
11/5/2011 0:00:00,FLASH FLOOD,0,0,5,K,0,,1
11/9/2011 0:00:00,Marine Mishap,0,0,3,?,0,,2
10/2/2011 0:00:00,TORNADO,1,4,2,M,0,,3
`

const priceCSV = `DATE,VALUE
2011-10-01,113
2011-11-01,226
`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("storm-norm-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminate kafka container: %v", err)
		}
	})

	brokers, err := container.Brokers(ctx)
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
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1}))
}

func writeInputs(t *testing.T) *csvsource.Source {
	t.Helper()
	dir := t.TempDir()
	events := filepath.Join(dir, "StormData.csv")
	prices := filepath.Join(dir, "CPIAUCSL.csv")
	require.NoError(t, os.WriteFile(events, []byte(eventsCSV), 0o600))
	require.NoError(t, os.WriteFile(prices, []byte(priceCSV), 0o600))
	return csvsource.New(events, prices)
}

type published struct {
	Key     string
	Headers map[string]string
	Record  map[string]any
}

func readPublished(ctx context.Context, t *testing.T, broker string, n int) []published {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	defer consumer.Close()

	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	out := make([]published, 0, n)
	for len(out) < n {
		msg, err := consumer.ReadMessage(readCtx)
		require.NoError(t, err, "read from sink topic")

		headers := make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal(msg.Value, &rec))
		out = append(out, published{Key: string(msg.Key), Headers: headers, Record: rec})
	}
	return out
}

// TestPipelineEndToEnd runs a batch from CSV files into SQLite and Kafka and
// checks both sinks saw the same classified records.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSinkTopic)

	cfg := &config.Config{
		KafkaBrokers:   []string{broker},
		KafkaSinkTopic: testSinkTopic,
		KafkaBatchSize: 1,
	}
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	store, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "storm.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	metrics := observability.NewMetricsForTesting()
	loader := pipeline.NewMultiLoader(discardLogger(), metrics,
		pipeline.Sink{Name: "sqlite", Loader: store},
		pipeline.Sink{Name: "kafka", Loader: writer},
	)
	source := writeInputs(t)
	p := pipeline.New(source, source, loader, discardLogger(), metrics, pipeline.Settings{Workers: 2})

	report, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Counts.Normalized)
	assert.Equal(t, 1, report.Counts.Unclassified)

	msgs := readPublished(ctx, t, broker, 2)
	byKey := map[string]published{}
	for _, m := range msgs {
		byKey[m.Key] = m
		assert.Equal(t, report.RunID, m.Headers["run_id"])
		assert.Equal(t, "2011-11", m.Headers["reference_month"])
	}
	require.Contains(t, byKey, "1")
	require.Contains(t, byKey, "3")
	assert.Equal(t, domain.CategoryFlood, byKey["1"].Headers["category"])
	assert.InDelta(t, 5000, byKey["1"].Record["damages_adjusted"], 1e-6)
	assert.Equal(t, domain.CategoryTornado, byKey["3"].Headers["category"])
	assert.InDelta(t, 4_000_000, byKey["3"].Record["damages_adjusted"], 1e-6)

	stored, err := store.Records(ctx, report.RunID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "1", stored[0].ID)
	assert.Equal(t, "3", stored[1].ID)
}

// TestKafkaSinkUnreachable checks a dead broker surfaces as a load error while
// the SQLite sink still commits.
func TestKafkaSinkUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	writer := kafka.NewWriter(&config.Config{
		KafkaBrokers:   []string{"127.0.0.1:1"},
		KafkaSinkTopic: testSinkTopic,
		KafkaBatchSize: 10,
	}, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	store, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "storm.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	metrics := observability.NewMetricsForTesting()
	loader := pipeline.NewMultiLoader(discardLogger(), metrics,
		pipeline.Sink{Name: "sqlite", Loader: store},
		pipeline.Sink{Name: "kafka", Loader: writer},
	)
	source := writeInputs(t)
	p := pipeline.New(source, source, loader, discardLogger(), metrics, pipeline.Settings{})

	_, err = p.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka")

	id, err := store.LatestRunID(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}
