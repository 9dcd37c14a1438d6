package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/storm-data-normalizer/internal/domain"
	"github.com/couchcryptid/storm-data-normalizer/internal/observability"
)

// EventExtractor reads the raw event table. Rows it cannot decode are
// returned as row errors rather than failing the batch.
type EventExtractor interface {
	ExtractEvents(ctx context.Context) ([]domain.RawEventRecord, []domain.RowError, error)
}

// PriceIndexExtractor reads the monthly price index series.
type PriceIndexExtractor interface {
	ExtractPriceIndex(ctx context.Context) ([]domain.PriceIndexEntry, error)
}

// Loader writes the results of a run to a destination.
type Loader interface {
	Load(ctx context.Context, report *domain.Report, records []domain.ClassifiedRecord) error
}

// Settings tunes a Pipeline. Zero values pick defaults.
type Settings struct {
	Workers    int               // parallel normalizers, default 1
	Reference  *domain.YearMonth // deflation baseline, default latest event month
	Classifier domain.Classifier // default domain.DefaultClassifier
}

// Pipeline runs the extract-normalize-aggregate-load batch.
type Pipeline struct {
	events     EventExtractor
	prices     PriceIndexExtractor
	loader     Loader
	logger     *slog.Logger
	metrics    *observability.Metrics
	settings   Settings
	ready      atomic.Bool
	lastReport atomic.Pointer[domain.Report]
}

// New creates a Pipeline with the given stages and observability. loader may be nil.
func New(events EventExtractor, prices PriceIndexExtractor, loader Loader, logger *slog.Logger, metrics *observability.Metrics, settings Settings) *Pipeline {
	if settings.Workers < 1 {
		settings.Workers = 1
	}
	if settings.Classifier == nil {
		settings.Classifier = domain.DefaultClassifier
	}
	return &Pipeline{
		events:   events,
		prices:   prices,
		loader:   loader,
		logger:   logger,
		metrics:  metrics,
		settings: settings,
	}
}

// CheckReadiness returns nil once a run has completed successfully.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed a run yet")
	}
	return nil
}

// LatestReport returns the report of the last successful run, or nil.
func (p *Pipeline) LatestReport() *domain.Report {
	return p.lastReport.Load()
}

// Run executes one batch. It fails fast on extraction errors and on a price
// index that cannot serve the reference month; row-level problems are counted
// in the report instead.
func (p *Pipeline) Run(ctx context.Context) (*domain.Report, error) {
	start := time.Now()
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	records, rowErrs, err := p.events.ExtractEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("extract events: %w", err)
	}
	entries, err := p.prices.ExtractPriceIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("extract price index: %w", err)
	}

	reference, err := p.resolveReference(records)
	if err != nil {
		return nil, err
	}
	index, err := domain.BuildPriceIndex(entries, reference)
	if err != nil {
		return nil, fmt.Errorf("build price index: %w", err)
	}
	p.logger.Info("price index ready", "reference", reference.String(), "months", index.Len())

	counts := domain.RunCounts{
		Read:    len(records) + len(rowErrs),
		Dropped: make(map[string]int),
	}
	for _, re := range rowErrs {
		counts.Dropped[re.Reason]++
		p.logger.Debug("row dropped", "line", re.Line, "reason", re.Reason, "error", re.Err)
	}

	classified, acc, err := p.normalizeAll(ctx, records, index, &counts)
	if err != nil {
		return nil, err
	}

	report := domain.NewReport(uuid.NewString(), reference, counts, acc)
	p.recordCounts(counts)

	if p.loader != nil {
		if err := p.loader.Load(ctx, &report, classified); err != nil {
			return nil, fmt.Errorf("load run %s: %w", report.RunID, err)
		}
	}

	p.lastReport.Store(&report)
	p.ready.Store(true)
	p.metrics.RunDuration.Observe(time.Since(start).Seconds())
	p.metrics.LastRunTimestamp.Set(float64(report.GeneratedAt.Unix()))

	p.logger.Info("run complete",
		"run_id", report.RunID,
		"read", counts.Read,
		"normalized", counts.Normalized,
		"unclassified", counts.Unclassified,
		"missing_damages", counts.MissingDamages,
		"dropped", counts.Dropped,
		"categories", len(report.Categories),
		"duration", time.Since(start),
	)
	return &report, nil
}

func (p *Pipeline) resolveReference(records []domain.RawEventRecord) (domain.YearMonth, error) {
	if p.settings.Reference != nil {
		return *p.settings.Reference, nil
	}
	latest, ok := domain.LatestMonth(records)
	if !ok {
		return domain.YearMonth{}, &domain.ConfigurationError{
			Field:   "reference_month",
			Message: "not configured and no event has a parseable begin date",
		}
	}
	return latest, nil
}

// outcome is the per-record result slot written by exactly one worker.
type outcome struct {
	record  domain.ClassifiedRecord
	dropped bool
}

// workerTally is one worker's partial counts and aggregate.
type workerTally struct {
	acc            *domain.Accumulator
	unparseable    int
	unclassified   int
	missingDamages int
}

// normalizeAll splits records into contiguous chunks, one per worker. Each
// worker writes only its own outcome slots and accumulator, so the merge
// afterwards is the only shared step and input order is preserved.
func (p *Pipeline) normalizeAll(ctx context.Context, records []domain.RawEventRecord, index *domain.PriceIndex, counts *domain.RunCounts) ([]domain.ClassifiedRecord, *domain.Accumulator, error) {
	outcomes := make([]outcome, len(records))
	workers := min(p.settings.Workers, max(len(records), 1))
	tallies := make([]workerTally, workers)
	chunk := (len(records) + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := min(lo+chunk, len(records))
		tally := &tallies[w]
		tally.acc = domain.NewAccumulator()
		if lo >= hi {
			continue
		}
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if i%1024 == 0 && gctx.Err() != nil {
					return gctx.Err()
				}
				p.normalizeOne(records[i], index, &outcomes[i], tally)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("normalize: %w", err)
	}

	acc := domain.NewAccumulator()
	for i := range tallies {
		acc.Merge(tallies[i].acc)
		if tallies[i].unparseable > 0 {
			counts.Dropped[domain.DropUnparseableDate] += tallies[i].unparseable
		}
		counts.Unclassified += tallies[i].unclassified
		counts.MissingDamages += tallies[i].missingDamages
	}

	classified := make([]domain.ClassifiedRecord, 0, len(records))
	for _, o := range outcomes {
		if o.dropped || o.record.Category == domain.CategoryOther {
			continue
		}
		classified = append(classified, o.record)
	}
	counts.Normalized = len(classified)
	return classified, acc, nil
}

func (p *Pipeline) normalizeOne(rec domain.RawEventRecord, index *domain.PriceIndex, out *outcome, tally *workerTally) {
	cr, err := domain.Normalize(rec, index, p.settings.Classifier)
	if err != nil {
		out.dropped = true
		tally.unparseable++
		p.logger.Debug("record dropped", "record_id", rec.ID, "reason", domain.DropUnparseableDate, "error", err)
		return
	}
	out.record = cr
	if cr.Category == domain.CategoryOther {
		tally.unclassified++
		return
	}
	if cr.DamagesAdjusted.IsMissing() {
		tally.missingDamages++
	}
	tally.acc.Add(cr)
}

func (p *Pipeline) recordCounts(c domain.RunCounts) {
	p.metrics.RecordsRead.Add(float64(c.Read))
	p.metrics.RecordsNormalized.Add(float64(c.Normalized))
	p.metrics.RecordsUnclassified.Add(float64(c.Unclassified))
	p.metrics.DamagesMissing.Add(float64(c.MissingDamages))
	for reason, n := range c.Dropped {
		p.metrics.RecordsDropped.WithLabelValues(reason).Add(float64(n))
	}
}
