package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"

	"github.com/couchcryptid/storm-data-normalizer/internal/domain"
	"github.com/couchcryptid/storm-data-normalizer/internal/observability"
)

// Sink is a named Loader, the name labels metrics and errors.
type Sink struct {
	Name   string
	Loader Loader
}

// MultiLoader fans a run out to every sink in order. A failing sink does not
// stop the others; all failures are returned together.
type MultiLoader struct {
	sinks   []Sink
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewMultiLoader creates a MultiLoader over sinks.
func NewMultiLoader(logger *slog.Logger, metrics *observability.Metrics, sinks ...Sink) *MultiLoader {
	return &MultiLoader{sinks: sinks, logger: logger, metrics: metrics}
}

// Len returns the number of sinks.
func (m *MultiLoader) Len() int { return len(m.sinks) }

func (m *MultiLoader) Load(ctx context.Context, report *domain.Report, records []domain.ClassifiedRecord) error {
	var result error
	for _, s := range m.sinks {
		if err := s.Loader.Load(ctx, report, records); err != nil {
			m.metrics.LoadErrors.WithLabelValues(s.Name).Inc()
			m.logger.Error("sink load failed", "sink", s.Name, "run_id", report.RunID, "error", err)
			result = multierror.Append(result, fmt.Errorf("%s: %w", s.Name, err))
			continue
		}
		m.metrics.RecordsLoaded.WithLabelValues(s.Name).Add(float64(len(records)))
		m.logger.Info("sink loaded", "sink", s.Name, "run_id", report.RunID, "records", len(records))
	}
	return result
}
