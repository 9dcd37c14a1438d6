// Command normalize runs one normalization batch over the Storm Events table,
// writes the results to the configured sinks and logs the top categories.
// With SERVE_AFTER_RUN=true it keeps serving health, metrics and rankings
// over HTTP until interrupted.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/couchcryptid/storm-data-normalizer/internal/adapter/csvsource"
	httpadapter "github.com/couchcryptid/storm-data-normalizer/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/storm-data-normalizer/internal/adapter/kafka"
	"github.com/couchcryptid/storm-data-normalizer/internal/adapter/labelcache"
	"github.com/couchcryptid/storm-data-normalizer/internal/adapter/parquet"
	"github.com/couchcryptid/storm-data-normalizer/internal/adapter/sqlite"
	"github.com/couchcryptid/storm-data-normalizer/internal/config"
	"github.com/couchcryptid/storm-data-normalizer/internal/domain"
	"github.com/couchcryptid/storm-data-normalizer/internal/observability"
	"github.com/couchcryptid/storm-data-normalizer/internal/pipeline"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("failed to read .env", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err := run(cfg, logger); err != nil {
		logger.Error("normalize failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sinks, closers, err := openSinks(ctx, cfg, logger)
	defer func() {
		for _, c := range closers {
			if err := c.close(); err != nil {
				logger.Error("sink close error", "sink", c.name, "error", err)
			}
		}
	}()
	if err != nil {
		return err
	}

	source := csvsource.New(cfg.EventsPath, cfg.PriceIndexPath)
	p := pipeline.New(source, source, pipeline.NewMultiLoader(logger, metrics, sinks...), logger, metrics, pipeline.Settings{
		Workers:    cfg.Workers,
		Reference:  cfg.ReferenceMonth,
		Classifier: labelcache.New(domain.DefaultClassifier, cfg.ClassifierCacheSize, metrics),
	})

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, p, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		logger.Info("shutdown complete")
	}()

	logger.Info("run starting",
		"events", cfg.EventsPath,
		"price_index", cfg.PriceIndexPath,
		"workers", cfg.Workers,
		"sinks", len(sinks),
	)
	report, err := p.Run(ctx)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	logRanking(logger, report, cfg.TopN)

	if !cfg.ServeAfterRun {
		return nil
	}
	logger.Info("serving until interrupted", "addr", cfg.HTTPAddr)
	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

type closer struct {
	name  string
	close func() error
}

// openSinks builds every configured sink. Closers are returned even on error
// so already opened sinks get released.
func openSinks(ctx context.Context, cfg *config.Config, logger *slog.Logger) ([]pipeline.Sink, []closer, error) {
	var (
		sinks   []pipeline.Sink
		closers []closer
	)

	if cfg.SQLitePath != "" {
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, closers, fmt.Errorf("open sqlite sink: %w", err)
		}
		sinks = append(sinks, pipeline.Sink{Name: "sqlite", Loader: store})
		closers = append(closers, closer{"sqlite", store.Close})
		logger.Info("sqlite sink enabled", "path", cfg.SQLitePath)
	}

	if cfg.ParquetDir != "" {
		w, err := parquet.NewWriter(cfg.ParquetDir, cfg.ParquetCompression)
		if err != nil {
			return nil, closers, fmt.Errorf("parquet sink: %w", err)
		}
		sinks = append(sinks, pipeline.Sink{Name: "parquet", Loader: w})
		logger.Info("parquet sink enabled", "dir", cfg.ParquetDir, "compression", cfg.ParquetCompression)
	}

	if cfg.KafkaEnabled {
		w := kafkaadapter.NewWriter(cfg, logger)
		sinks = append(sinks, pipeline.Sink{Name: "kafka", Loader: w})
		closers = append(closers, closer{"kafka", w.Close})
		logger.Info("kafka sink enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaSinkTopic)
	}

	if len(sinks) == 0 {
		logger.Warn("no sinks configured, results are only logged and served over HTTP")
	}
	return sinks, closers, nil
}

func logRanking(logger *slog.Logger, report *domain.Report, n int) {
	for _, m := range []domain.Measure{domain.MeasureDamages, domain.MeasureDeaths, domain.MeasureInjuries} {
		for i, c := range domain.Rank(report.Categories, m, n) {
			median, mean := m.Stats(c)
			logger.Info("ranking",
				"measure", string(m),
				"rank", i+1,
				"category", c.Category,
				"median", median,
				"mean", mean,
				"years", c.Years,
			)
		}
	}
}
