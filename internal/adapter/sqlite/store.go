// Package sqlite persists normalization runs to a SQLite database. Every row
// carries the run_id of the batch that produced it, so runs accumulate side
// by side and can be compared.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/couchcryptid/storm-data-normalizer/internal/domain"
)

//go:embed schema.sql
var schema string

// timeLayout is fixed width so generated_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// ErrNoRuns is returned when the database holds no completed run.
var ErrNoRuns = errors.New("no runs recorded")

// Store reads and writes runs. It implements pipeline.Loader.
type Store struct {
	db *sqlx.DB
}

// Open creates or opens the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn, err := buildDSN(path)
	if err != nil {
		return nil, err
	}
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	// One writer; WAL still lets readers through.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &Store{db: db}, nil
}

func buildDSN(path string) (string, error) {
	if path == "" {
		return "", errors.New("sqlite path is empty")
	}
	params := strings.Join([]string{
		"_foreign_keys=on",
		"_busy_timeout=5000",
		"_journal_mode=WAL",
	}, "&")

	if strings.HasPrefix(path, "file:") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + params, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	return fmt.Sprintf("file:%s?%s", path, params), nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

type runRow struct {
	RunID          string `db:"run_id"`
	GeneratedAt    string `db:"generated_at"`
	ReferenceMonth string `db:"reference_month"`
	RecordsRead    int    `db:"records_read"`
	Normalized     int    `db:"normalized"`
	Dropped        string `db:"dropped"`
	Unclassified   int    `db:"unclassified"`
	MissingDamages int    `db:"missing_damages"`
}

type recordRow struct {
	RunID           string          `db:"run_id"`
	RecordID        string          `db:"record_id"`
	Year            int             `db:"year"`
	Month           int             `db:"month"`
	Category        string          `db:"category"`
	DamagesAdjusted sql.NullFloat64 `db:"damages_adjusted"`
	Deaths          int             `db:"deaths"`
	Injuries        int             `db:"injuries"`
}

type yearCategoryRow struct {
	RunID    string  `db:"run_id"`
	Year     int     `db:"year"`
	Category string  `db:"category"`
	Events   int     `db:"events"`
	Damages  float64 `db:"damages"`
	Deaths   int     `db:"deaths"`
	Injuries int     `db:"injuries"`
}

type categoryRow struct {
	RunID          string  `db:"run_id"`
	Category       string  `db:"category"`
	Events         int     `db:"events"`
	Years          int     `db:"years"`
	MeanDamages    float64 `db:"mean_damages"`
	MedianDamages  float64 `db:"median_damages"`
	MeanDeaths     float64 `db:"mean_deaths"`
	MedianDeaths   float64 `db:"median_deaths"`
	MeanInjuries   float64 `db:"mean_injuries"`
	MedianInjuries float64 `db:"median_injuries"`
}

const (
	insertRun = `INSERT INTO runs (run_id, generated_at, reference_month, records_read, normalized, dropped, unclassified, missing_damages)
VALUES (:run_id, :generated_at, :reference_month, :records_read, :normalized, :dropped, :unclassified, :missing_damages)`

	insertRecord = `INSERT INTO classified_records (run_id, record_id, year, month, category, damages_adjusted, deaths, injuries)
VALUES (:run_id, :record_id, :year, :month, :category, :damages_adjusted, :deaths, :injuries)`

	insertYearCategory = `INSERT INTO year_category_aggregates (run_id, year, category, events, damages, deaths, injuries)
VALUES (:run_id, :year, :category, :events, :damages, :deaths, :injuries)`

	insertCategory = `INSERT INTO category_aggregates (run_id, category, events, years, mean_damages, median_damages, mean_deaths, median_deaths, mean_injuries, median_injuries)
VALUES (:run_id, :category, :events, :years, :mean_damages, :median_damages, :mean_deaths, :median_deaths, :mean_injuries, :median_injuries)`
)

// Load writes the run header, its classified records and both aggregate
// tables in a single transaction.
func (s *Store) Load(ctx context.Context, report *domain.Report, records []domain.ClassifiedRecord) error {
	dropped, err := json.Marshal(report.Counts.Dropped)
	if err != nil {
		return fmt.Errorf("encode dropped counts: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.NamedExecContext(ctx, insertRun, runRow{
		RunID:          report.RunID,
		GeneratedAt:    report.GeneratedAt.UTC().Format(timeLayout),
		ReferenceMonth: report.Reference.String(),
		RecordsRead:    report.Counts.Read,
		Normalized:     report.Counts.Normalized,
		Dropped:        string(dropped),
		Unclassified:   report.Counts.Unclassified,
		MissingDamages: report.Counts.MissingDamages,
	}); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if err := insertEach(ctx, tx, insertRecord, records, func(r domain.ClassifiedRecord) any {
		v, ok := r.DamagesAdjusted.Float()
		return recordRow{
			RunID: report.RunID, RecordID: r.ID, Year: r.Year, Month: r.Month, Category: r.Category,
			DamagesAdjusted: sql.NullFloat64{Float64: v, Valid: ok},
			Deaths:          r.Deaths, Injuries: r.Injuries,
		}
	}); err != nil {
		return fmt.Errorf("insert classified records: %w", err)
	}

	if err := insertEach(ctx, tx, insertYearCategory, report.YearCategory, func(a domain.YearCategoryAggregate) any {
		return yearCategoryRow{
			RunID: report.RunID, Year: a.Year, Category: a.Category,
			Events: a.Events, Damages: a.Damages, Deaths: a.Deaths, Injuries: a.Injuries,
		}
	}); err != nil {
		return fmt.Errorf("insert year aggregates: %w", err)
	}

	if err := insertEach(ctx, tx, insertCategory, report.Categories, func(c domain.CategoryAggregate) any {
		return categoryRow{
			RunID: report.RunID, Category: c.Category, Events: c.Events, Years: c.Years,
			MeanDamages: c.MeanDamages, MedianDamages: c.MedianDamages,
			MeanDeaths: c.MeanDeaths, MedianDeaths: c.MedianDeaths,
			MeanInjuries: c.MeanInjuries, MedianInjuries: c.MedianInjuries,
		}
	}); err != nil {
		return fmt.Errorf("insert category aggregates: %w", err)
	}

	return tx.Commit()
}

func insertEach[T any](ctx context.Context, tx *sqlx.Tx, query string, items []T, row func(T) any) error {
	if len(items) == 0 {
		return nil
	}
	stmt, err := tx.PrepareNamedContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i := range items {
		if _, err := stmt.ExecContext(ctx, row(items[i])); err != nil {
			return err
		}
	}
	return nil
}

// LatestRunID returns the most recently generated run.
func (s *Store) LatestRunID(ctx context.Context) (string, error) {
	var id string
	err := s.db.GetContext(ctx, &id, `SELECT run_id FROM runs ORDER BY generated_at DESC, rowid DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoRuns
	}
	if err != nil {
		return "", fmt.Errorf("latest run: %w", err)
	}
	return id, nil
}

// Report rebuilds the stored report for runID. Classified records are not
// included. Returns ErrNoRuns when the run does not exist.
func (s *Store) Report(ctx context.Context, runID string) (*domain.Report, error) {
	var run runRow
	err := s.db.GetContext(ctx, &run, `SELECT * FROM runs WHERE run_id = ?`, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNoRuns)
	}
	if err != nil {
		return nil, fmt.Errorf("select run: %w", err)
	}

	generated, err := time.Parse(timeLayout, run.GeneratedAt)
	if err != nil {
		return nil, fmt.Errorf("run %s: generated_at: %w", runID, err)
	}
	reference, err := domain.ParseYearMonth(run.ReferenceMonth)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	var dropped map[string]int
	if err := json.Unmarshal([]byte(run.Dropped), &dropped); err != nil {
		return nil, fmt.Errorf("run %s: dropped: %w", runID, err)
	}

	var years []yearCategoryRow
	if err := s.db.SelectContext(ctx, &years,
		`SELECT * FROM year_category_aggregates WHERE run_id = ? ORDER BY year, category`, runID); err != nil {
		return nil, fmt.Errorf("select year aggregates: %w", err)
	}
	var cats []categoryRow
	if err := s.db.SelectContext(ctx, &cats,
		`SELECT * FROM category_aggregates WHERE run_id = ? ORDER BY category`, runID); err != nil {
		return nil, fmt.Errorf("select category aggregates: %w", err)
	}

	report := &domain.Report{
		RunID:       run.RunID,
		GeneratedAt: generated,
		Reference:   reference,
		Counts: domain.RunCounts{
			Read:           run.RecordsRead,
			Normalized:     run.Normalized,
			Dropped:        dropped,
			Unclassified:   run.Unclassified,
			MissingDamages: run.MissingDamages,
		},
		YearCategory: make([]domain.YearCategoryAggregate, 0, len(years)),
		Categories:   make([]domain.CategoryAggregate, 0, len(cats)),
	}
	for _, y := range years {
		report.YearCategory = append(report.YearCategory, domain.YearCategoryAggregate{
			Year: y.Year, Category: y.Category, Events: y.Events,
			Damages: y.Damages, Deaths: y.Deaths, Injuries: y.Injuries,
		})
	}
	for _, c := range cats {
		report.Categories = append(report.Categories, domain.CategoryAggregate{
			Category: c.Category, Events: c.Events, Years: c.Years,
			MeanDamages: c.MeanDamages, MedianDamages: c.MedianDamages,
			MeanDeaths: c.MeanDeaths, MedianDeaths: c.MedianDeaths,
			MeanInjuries: c.MeanInjuries, MedianInjuries: c.MedianInjuries,
		})
	}
	return report, nil
}

// Records returns the classified records stored for runID in insertion order.
func (s *Store) Records(ctx context.Context, runID string) ([]domain.ClassifiedRecord, error) {
	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM classified_records WHERE run_id = ? ORDER BY rowid`, runID); err != nil {
		return nil, fmt.Errorf("select classified records: %w", err)
	}
	out := make([]domain.ClassifiedRecord, 0, len(rows))
	for _, r := range rows {
		damages := domain.Missing()
		if r.DamagesAdjusted.Valid {
			damages = domain.Known(r.DamagesAdjusted.Float64)
		}
		out = append(out, domain.ClassifiedRecord{
			ID: r.RecordID, Year: r.Year, Month: r.Month, Category: r.Category,
			DamagesAdjusted: damages, Deaths: r.Deaths, Injuries: r.Injuries,
		})
	}
	return out, nil
}
