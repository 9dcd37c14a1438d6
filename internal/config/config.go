package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/storm-data-normalizer/internal/domain"
)

const maxWorkers = 64

// Config holds all service settings, populated from environment variables.
type Config struct {
	EventsPath     string
	PriceIndexPath string
	// ReferenceMonth is nil when the latest event month should be used.
	ReferenceMonth *domain.YearMonth
	Workers        int

	// Sinks. An empty path or disabled flag turns the sink off.
	SQLitePath         string
	ParquetDir         string
	ParquetCompression string
	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaSinkTopic     string
	KafkaBatchSize     int

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	ServeAfterRun   bool
	TopN            int

	ClassifierCacheSize int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		EventsPath:         os.Getenv("EVENTS_PATH"),
		PriceIndexPath:     os.Getenv("PRICE_INDEX_PATH"),
		SQLitePath:         os.Getenv("SQLITE_PATH"),
		ParquetDir:         os.Getenv("PARQUET_DIR"),
		ParquetCompression: sharedcfg.EnvOrDefault("PARQUET_COMPRESSION", "SNAPPY"),
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "classified-storm-events"),
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
	}

	if cfg.EventsPath == "" {
		return nil, errors.New("EVENTS_PATH is required")
	}
	if cfg.PriceIndexPath == "" {
		return nil, errors.New("PRICE_INDEX_PATH is required")
	}

	if s := os.Getenv("REFERENCE_MONTH"); s != "" {
		ym, err := domain.ParseYearMonth(s)
		if err != nil {
			return nil, fmt.Errorf("invalid REFERENCE_MONTH %q: want YYYY-MM", s)
		}
		cfg.ReferenceMonth = &ym
	}

	intVars := []struct {
		key      string
		def, min int
		max      int
		dst      *int
	}{
		{"WORKERS", 4, 1, maxWorkers, &cfg.Workers},
		{"KAFKA_BATCH_SIZE", 100, 1, 10000, &cfg.KafkaBatchSize},
		{"TOP_N", 10, 1, 100, &cfg.TopN},
		{"CLASSIFIER_CACHE_SIZE", 1024, 1, 1 << 20, &cfg.ClassifierCacheSize},
	}
	for _, v := range intVars {
		n, err := parseInt(v.key, v.def, v.min, v.max)
		if err != nil {
			return nil, err
		}
		*v.dst = n
	}

	if cfg.KafkaEnabled, err = parseBool("KAFKA_ENABLED", false); err != nil {
		return nil, err
	}
	if cfg.ServeAfterRun, err = parseBool("SERVE_AFTER_RUN", false); err != nil {
		return nil, err
	}

	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
		}
		if cfg.KafkaSinkTopic == "" {
			return nil, errors.New("KAFKA_SINK_TOPIC is required when KAFKA_ENABLED is true")
		}
	}

	return cfg, nil
}

func parseInt(key string, def, lo, hi int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s %q: want an integer in [%d, %d]", key, s, lo, hi)
	}
	return n, nil
}

func parseBool(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: want true or false", key, s)
	}
	return b, nil
}
