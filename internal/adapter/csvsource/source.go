// Package csvsource reads the NOAA Storm Events table and a FRED style
// monthly price index series from CSV files.
package csvsource

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/storm-data-normalizer/internal/domain"
)

// ctxCheckEvery is how many rows are read between context checks.
const ctxCheckEvery = 4096

// Event table columns. REFNUM is optional; without it the record ID is
// "line:<n>", which cannot collide with a numeric REFNUM.
const (
	colRefNum     = "REFNUM"
	colBeginDate  = "BGN_DATE"
	colEventType  = "EVTYPE"
	colPropDmg    = "PROPDMG"
	colPropDmgExp = "PROPDMGEXP"
	colCropDmg    = "CROPDMG"
	colCropDmgExp = "CROPDMGEXP"
	colFatalities = "FATALITIES"
	colInjuries   = "INJURIES"
)

var requiredEventColumns = []string{
	colBeginDate, colEventType,
	colPropDmg, colPropDmgExp, colCropDmg, colCropDmgExp,
	colFatalities, colInjuries,
}

// Source reads both inputs from the local filesystem.
// It implements pipeline.EventExtractor and pipeline.PriceIndexExtractor.
type Source struct {
	eventsPath string
	pricePath  string
}

// New creates a Source for the given event table and price index files.
func New(eventsPath, pricePath string) *Source {
	return &Source{eventsPath: eventsPath, pricePath: pricePath}
}

// ExtractEvents reads the whole event table.
func (s *Source) ExtractEvents(ctx context.Context) ([]domain.RawEventRecord, []domain.RowError, error) {
	f, err := os.Open(s.eventsPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open events: %w", err)
	}
	defer f.Close()
	return ReadEvents(ctx, f)
}

// ExtractPriceIndex reads the whole price index series.
func (s *Source) ExtractPriceIndex(ctx context.Context) ([]domain.PriceIndexEntry, error) {
	f, err := os.Open(s.pricePath)
	if err != nil {
		return nil, fmt.Errorf("open price index: %w", err)
	}
	defer f.Close()
	return ReadPriceIndex(ctx, f)
}

// ReadEvents decodes an event table. Rows with unparseable or negative numeric
// fields come back as row errors; the read continues past them.
func ReadEvents(ctx context.Context, r io.Reader) ([]domain.RawEventRecord, []domain.RowError, error) {
	reader := newReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read events header: %w", err)
	}
	cols := indexColumns(header)
	for _, name := range requiredEventColumns {
		if _, ok := cols[name]; !ok {
			return nil, nil, fmt.Errorf("events: missing column %s", name)
		}
	}

	var (
		records []domain.RawEventRecord //nolint:prealloc // size depends on file contents
		rowErrs []domain.RowError
	)
	for n := 0; ; n++ {
		if n%ctxCheckEvery == 0 && ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				rowErrs = append(rowErrs, domain.RowError{Line: parseErr.StartLine, Reason: domain.DropMalformedRow, Err: err})
				continue
			}
			return nil, nil, fmt.Errorf("read events: %w", err)
		}
		line, _ := reader.FieldPos(0)

		rec, err := decodeEvent(row, cols, line)
		if err != nil {
			rowErrs = append(rowErrs, domain.RowError{Line: line, Reason: domain.DropMalformedRow, Err: err})
			continue
		}
		records = append(records, rec)
	}
	return records, rowErrs, nil
}

func decodeEvent(row []string, cols map[string]int, line int) (domain.RawEventRecord, error) {
	get := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	rec := domain.RawEventRecord{
		ID:               get(colRefNum),
		BeginDate:        get(colBeginDate),
		EventType:        get(colEventType),
		PropertyDamageEx: get(colPropDmgExp),
		CropDamageEx:     get(colCropDmgExp),
	}
	if rec.ID == "" {
		rec.ID = lineID(line)
	}

	var err error
	if rec.PropertyDamage, err = parseMagnitude(colPropDmg, get(colPropDmg)); err != nil {
		return rec, err
	}
	if rec.CropDamage, err = parseMagnitude(colCropDmg, get(colCropDmg)); err != nil {
		return rec, err
	}
	if rec.Fatalities, err = parseCount(colFatalities, get(colFatalities)); err != nil {
		return rec, err
	}
	if rec.Injuries, err = parseCount(colInjuries, get(colInjuries)); err != nil {
		return rec, err
	}
	return rec, nil
}

func lineID(line int) string {
	return "line:" + strconv.Itoa(line)
}

// parseMagnitude treats an empty cell as zero.
func parseMagnitude(col, s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", col, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s: non-finite value %q", col, s)
	}
	if v < 0 {
		return 0, fmt.Errorf("%s: negative value %q", col, s)
	}
	return v, nil
}

// parseCount accepts "3" and "3.00" but not fractional counts.
func parseCount(col, s string) (int, error) {
	v, err := parseMagnitude(col, s)
	if err != nil {
		return 0, err
	}
	if v != float64(int(v)) {
		return 0, fmt.Errorf("%s: fractional count %q", col, s)
	}
	return int(v), nil
}

// fredMissing marks a missing observation in FRED downloads.
const fredMissing = "."

var (
	dateHeaders  = []string{"DATE", "OBSERVATION_DATE"}
	valueHeaders = []string{"VALUE", "CPIAUCSL"}
)

// ReadPriceIndex decodes a two-column month,value series. Any malformed row
// is an error since the index is configuration.
func ReadPriceIndex(ctx context.Context, r io.Reader) ([]domain.PriceIndexEntry, error) {
	reader := newReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read price index header: %w", err)
	}
	cols := indexColumns(header)
	dateCol, ok := firstColumn(cols, dateHeaders)
	if !ok {
		return nil, fmt.Errorf("price index: missing date column (one of %v)", dateHeaders)
	}
	valueCol, ok := firstColumn(cols, valueHeaders)
	if !ok {
		return nil, fmt.Errorf("price index: missing value column (one of %v)", valueHeaders)
	}

	var entries []domain.PriceIndexEntry
	for n := 0; ; n++ {
		if n%ctxCheckEvery == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read price index: %w", err)
		}
		line, _ := reader.FieldPos(0)
		if dateCol >= len(row) || valueCol >= len(row) {
			return nil, fmt.Errorf("price index line %d: short row", line)
		}

		raw := strings.TrimSpace(row[valueCol])
		if raw == fredMissing || raw == "" {
			continue
		}
		ym, err := parseObservationMonth(strings.TrimSpace(row[dateCol]))
		if err != nil {
			return nil, fmt.Errorf("price index line %d: %w", line, err)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("price index line %d: value: %w", line, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("price index line %d: non-finite value %q", line, raw)
		}
		entries = append(entries, domain.PriceIndexEntry{Year: ym.Year, Month: ym.Month, Value: v})
	}
	return entries, nil
}

func parseObservationMonth(s string) (domain.YearMonth, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return domain.YearMonthOf(t), nil
	}
	return domain.ParseYearMonth(s)
}

func newReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = true
	return reader
}

// indexColumns maps upper-cased, trimmed header names to positions. The first
// occurrence of a duplicated name wins.
func indexColumns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := cols[key]; !dup {
			cols[key] = i
		}
	}
	return cols
}

func firstColumn(cols map[string]int, names []string) (int, bool) {
	for _, n := range names {
		if i, ok := cols[n]; ok {
			return i, true
		}
	}
	return 0, false
}
