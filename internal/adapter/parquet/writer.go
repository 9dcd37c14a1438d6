// Package parquet exports the aggregate tables of each run as Parquet files,
// one directory per run.
package parquet

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/couchcryptid/storm-data-normalizer/internal/domain"
)

// Output file names inside a run directory.
const (
	YearCategoryFile    = "year_category.parquet"
	CategorySummaryFile = "category_summary.parquet"
)

// YearCategoryRow is the Parquet layout of domain.YearCategoryAggregate.
type YearCategoryRow struct {
	RunID    string  `parquet:"name=run_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Year     int32   `parquet:"name=year, type=INT32"`
	Category string  `parquet:"name=category, type=BYTE_ARRAY, convertedtype=UTF8"`
	Events   int64   `parquet:"name=events, type=INT64"`
	Damages  float64 `parquet:"name=damages, type=DOUBLE"`
	Deaths   int64   `parquet:"name=deaths, type=INT64"`
	Injuries int64   `parquet:"name=injuries, type=INT64"`
}

// CategorySummaryRow is the Parquet layout of domain.CategoryAggregate.
type CategorySummaryRow struct {
	RunID          string  `parquet:"name=run_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Category       string  `parquet:"name=category, type=BYTE_ARRAY, convertedtype=UTF8"`
	Events         int64   `parquet:"name=events, type=INT64"`
	Years          int32   `parquet:"name=years, type=INT32"`
	MeanDamages    float64 `parquet:"name=mean_damages, type=DOUBLE"`
	MedianDamages  float64 `parquet:"name=median_damages, type=DOUBLE"`
	MeanDeaths     float64 `parquet:"name=mean_deaths, type=DOUBLE"`
	MedianDeaths   float64 `parquet:"name=median_deaths, type=DOUBLE"`
	MeanInjuries   float64 `parquet:"name=mean_injuries, type=DOUBLE"`
	MedianInjuries float64 `parquet:"name=median_injuries, type=DOUBLE"`
}

// Writer writes run aggregates under a base directory. It implements pipeline.Loader.
type Writer struct {
	baseDir string
	codec   parquet.CompressionCodec
}

// NewWriter creates a Writer rooted at baseDir. compression is one of
// SNAPPY (default), GZIP or NONE.
func NewWriter(baseDir, compression string) (*Writer, error) {
	codec, err := compressionCodec(compression)
	if err != nil {
		return nil, err
	}
	return &Writer{baseDir: baseDir, codec: codec}, nil
}

func compressionCodec(name string) (parquet.CompressionCodec, error) {
	switch strings.ToUpper(name) {
	case "", "SNAPPY":
		return parquet.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return parquet.CompressionCodec_GZIP, nil
	case "NONE", "UNCOMPRESSED":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	default:
		return 0, fmt.Errorf("unsupported parquet compression %q", name)
	}
}

// RunDir returns the directory the files of runID are written to.
func (w *Writer) RunDir(runID string) string {
	return filepath.Join(w.baseDir, "run_id="+runID)
}

// Load writes both aggregate tables. Classified records are not exported;
// a failure on one file does not prevent writing the other.
func (w *Writer) Load(ctx context.Context, report *domain.Report, _ []domain.ClassifiedRecord) error {
	dir := w.RunDir(report.RunID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	yearly := make([]YearCategoryRow, 0, len(report.YearCategory))
	for _, a := range report.YearCategory {
		yearly = append(yearly, YearCategoryRow{
			RunID: report.RunID, Year: int32(a.Year), Category: a.Category, //nolint:gosec // years fit in int32
			Events: int64(a.Events), Damages: a.Damages, Deaths: int64(a.Deaths), Injuries: int64(a.Injuries),
		})
	}
	summary := make([]CategorySummaryRow, 0, len(report.Categories))
	for _, c := range report.Categories {
		summary = append(summary, CategorySummaryRow{
			RunID: report.RunID, Category: c.Category, Events: int64(c.Events), Years: int32(c.Years), //nolint:gosec // bounded by year span
			MeanDamages: c.MeanDamages, MedianDamages: c.MedianDamages,
			MeanDeaths: c.MeanDeaths, MedianDeaths: c.MedianDeaths,
			MeanInjuries: c.MeanInjuries, MedianInjuries: c.MedianInjuries,
		})
	}

	var result error
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(dir, YearCategoryFile), new(YearCategoryRow), yearly, w.codec); err != nil {
		result = multierror.Append(result, err)
	}
	if err := ctx.Err(); err != nil {
		return multierror.Append(result, err)
	}
	if err := writeFile(filepath.Join(dir, CategorySummaryFile), new(CategorySummaryRow), summary, w.codec); err != nil {
		result = multierror.Append(result, err)
	}
	return result
}

// writeFile encodes rows in memory and then moves the finished file into
// place, so readers never see a half-written file.
func writeFile[T any](path string, prototype *T, rows []T, codec parquet.CompressionCodec) (err error) {
	buf := new(bytes.Buffer)
	pw, err := writer.NewParquetWriterFromWriter(buf, prototype, 1)
	if err != nil {
		return fmt.Errorf("%s: create writer: %w", filepath.Base(path), err)
	}
	pw.CompressionType = codec

	for i := range rows {
		if err := pw.Write(rows[i]); err != nil {
			return fmt.Errorf("%s: write row %d: %w", filepath.Base(path), i, err)
		}
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: finalize: %v", filepath.Base(path), r)
		}
	}()
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("%s: finalize: %w", filepath.Base(path), err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil { //nolint:gosec // output files are meant to be shared
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return nil
}
